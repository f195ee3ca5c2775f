// Package clocksync estimates the offset between the local clock and the
// document store's server clock using marker write/read round trips.
package clocksync

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"livequiz-player/internal/game"
)

const (
	defaultSamples     = 5
	defaultSampleDelay = 150 * time.Millisecond
	// Offsets beyond this bound indicate a broken marker read, not genuine
	// skew; callers get zero instead of a corrupting correction.
	defaultMaxOffset = 5 * time.Minute
)

// Synchronizer measures serverTime - localTime. Estimation never fails hard:
// on any trouble it degrades to a zero offset and logs a warning, so callers
// can always apply the result directly.
type Synchronizer struct {
	markers     game.MarkerStore
	clock       clockwork.Clock
	log         zerolog.Logger
	samples     int
	sampleDelay time.Duration
	maxOffset   time.Duration
}

func New(markers game.MarkerStore, log zerolog.Logger) *Synchronizer {
	return NewWithClock(markers, log, clockwork.NewRealClock())
}

// NewWithClock allows deterministic time in tests.
func NewWithClock(markers game.MarkerStore, log zerolog.Logger, clock clockwork.Clock) *Synchronizer {
	return &Synchronizer{
		markers:     markers,
		clock:       clock,
		log:         log,
		samples:     defaultSamples,
		sampleDelay: defaultSampleDelay,
		maxOffset:   defaultMaxOffset,
	}
}

// EstimateOffset runs the sampled round-trip probe. Each sample writes a
// throwaway marker the server stamps, reads the stamp back, and assumes the
// stamp was taken at the midpoint of the round trip. The highest-RTT half of
// the samples is discarded (network spikes break the symmetry assumption) and
// the rest are averaged.
func (s *Synchronizer) EstimateOffset(ctx context.Context) time.Duration {
	type sample struct {
		rtt    time.Duration
		offset time.Duration
	}

	collected := make([]sample, 0, s.samples)
	for i := 0; i < s.samples; i++ {
		if i > 0 && s.sampleDelay > 0 {
			s.clock.Sleep(s.sampleDelay)
		}

		markerID := "clock-marker-" + uuid.NewString()
		send := s.clock.Now()
		if err := s.markers.WriteMarker(ctx, markerID); err != nil {
			s.log.Warn().Err(err).Msg("clocksync: marker write failed, skipping sample")
			continue
		}
		serverStamp, err := s.markers.ReadMarker(ctx, markerID)
		recv := s.clock.Now()

		// Self-cleaning marker; deletion failure is non-fatal.
		go func() { _ = s.markers.DeleteMarker(context.Background(), markerID) }()

		if err != nil {
			s.log.Warn().Err(err).Msg("clocksync: marker read failed, skipping sample")
			continue
		}
		rtt := recv.Sub(send)
		if rtt < 0 {
			continue
		}
		estServerAtRecv := serverStamp.Add(rtt / 2)
		collected = append(collected, sample{rtt: rtt, offset: estServerAtRecv.Sub(recv)})
	}

	if len(collected) == 0 {
		s.log.Warn().Msg("clocksync: no usable samples, falling back to zero offset")
		return 0
	}

	sort.Slice(collected, func(i, j int) bool { return collected[i].rtt < collected[j].rtt })
	keep := (len(collected) + 1) / 2

	var sum time.Duration
	for _, smp := range collected[:keep] {
		sum += smp.offset
	}
	offset := sum / time.Duration(keep)

	if offset > s.maxOffset || offset < -s.maxOffset {
		s.log.Warn().
			Dur("offset", offset).
			Msg("clocksync: offset beyond sanity bound, falling back to zero")
		return 0
	}

	s.log.Debug().
		Dur("offset", offset).
		Int("samples", len(collected)).
		Int("kept", keep).
		Msg("clocksync: offset estimated")
	return offset
}
