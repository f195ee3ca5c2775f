// Package countdown derives the live remaining-time value for the active
// question, anchored to the server-stamped start instant and corrected by the
// estimated clock offset.
package countdown

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Tick is one countdown update for a question index. Remaining is whole
// seconds clamped to [0, timeLimit].
type Tick struct {
	QuestionIndex int
	Remaining     int
}

// Countdown runs a 1 Hz local tick while a question is active. Each tick the
// locally predicted value is checked against the server-anchored formula; on
// disagreement the formula wins (device clock jumps and tab suspension must
// not desync players). The emitted value never increases for a given index.
type Countdown struct {
	clock clockwork.Clock
	log   zerolog.Logger
	ticks chan Tick

	mu        sync.Mutex
	stop      chan struct{}
	active    bool
	index     int
	remaining int
}

func New(log zerolog.Logger, clock clockwork.Clock) *Countdown {
	return &Countdown{
		clock: clock,
		log:   log,
		ticks: make(chan Tick, 16),
		index: -1,
	}
}

// Ticks is the stream of countdown updates. Slow consumers lose the oldest
// update, never the newest.
func (c *Countdown) Ticks() <-chan Tick {
	return c.ticks
}

// Remaining returns the last computed value; it stays frozen after Stop.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Start begins (or restarts) ticking for a question index. Any previous run
// is cancelled first, so a stale timer can never show time from an earlier
// question.
func (c *Countdown) Start(index, timeLimitSeconds int, startAt time.Time, offset time.Duration) {
	c.mu.Lock()
	c.stopLocked()
	c.index = index
	initial := remainingAt(timeLimitSeconds, startAt, offset, c.clock.Now())
	c.remaining = initial
	if initial <= 0 {
		c.mu.Unlock()
		c.emit(Tick{QuestionIndex: index, Remaining: 0})
		return
	}
	c.active = true
	stopCh := make(chan struct{})
	c.stop = stopCh
	c.mu.Unlock()

	c.emit(Tick{QuestionIndex: index, Remaining: initial})
	go c.run(index, timeLimitSeconds, startAt, offset, initial, stopCh)
}

// Stop freezes the countdown at its current value. Safe to call repeatedly.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Countdown) stopLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.active = false
}

func (c *Countdown) run(index, limit int, startAt time.Time, offset time.Duration, initial int, stopCh chan struct{}) {
	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()

	local := initial
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.Chan():
			value := nextValue(c.log, index, local, limit, startAt, offset, c.clock.Now())

			c.mu.Lock()
			if !c.active || c.index != index {
				c.mu.Unlock()
				return
			}
			if value > c.remaining {
				value = c.remaining
			}
			c.remaining = value
			if value <= 0 {
				c.active = false
			}
			c.mu.Unlock()

			c.emit(Tick{QuestionIndex: index, Remaining: value})
			if value <= 0 {
				return
			}
			local = value
		}
	}
}

// nextValue advances the locally ticked prediction by one second and snaps to
// the server-anchored formula whenever the two disagree.
func nextValue(log zerolog.Logger, index, local, limit int, startAt time.Time, offset time.Duration, now time.Time) int {
	predicted := local - 1
	formula := remainingAt(limit, startAt, offset, now)
	if predicted != formula {
		drift := predicted - formula
		if drift > 1 || drift < -1 {
			log.Debug().
				Int("question_index", index).
				Int("local", predicted).
				Int("anchored", formula).
				Msg("countdown drift, snapping to server-anchored value")
		}
		return formula
	}
	return predicted
}

// remainingAt is the anchored formula:
// timeLimit - floor((now + offset - questionStart) / 1s), clamped to [0, limit].
func remainingAt(limit int, startAt time.Time, offset time.Duration, now time.Time) int {
	elapsed := now.Add(offset).Sub(startAt)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := limit - int(elapsed/time.Second)
	if remaining < 0 {
		return 0
	}
	if remaining > limit {
		return limit
	}
	return remaining
}

func (c *Countdown) emit(t Tick) {
	select {
	case c.ticks <- t:
	default:
		select {
		case <-c.ticks:
		default:
		}
		c.ticks <- t
	}
}
