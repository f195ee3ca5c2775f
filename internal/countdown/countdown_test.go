package countdown

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

func TestCountdownTicksDownToZero(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(zerolog.Nop(), clock)

	c.Start(0, 3, clock.Now(), 0)
	if tick := <-c.Ticks(); tick.Remaining != 3 || tick.QuestionIndex != 0 {
		t.Fatalf("expected initial tick 3, got %+v", tick)
	}

	clock.BlockUntil(1)
	want := []int{2, 1, 0}
	for _, expected := range want {
		clock.Advance(time.Second)
		tick := <-c.Ticks()
		if tick.Remaining != expected {
			t.Fatalf("expected remaining %d, got %d", expected, tick.Remaining)
		}
		if prev := expected + 1; tick.Remaining > prev {
			t.Fatalf("remaining increased from %d to %d", prev, tick.Remaining)
		}
	}
	if c.Remaining() != 0 {
		t.Fatalf("expected frozen zero, got %d", c.Remaining())
	}
}

func TestCountdownAnchorsToServerStart(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(zerolog.Nop(), clock)

	// Question started 2s ago on the server; local clock runs 1s behind
	// (offset +1s), so elapsed is really 3s.
	c.Start(0, 10, clock.Now().Add(-2*time.Second), time.Second)
	if tick := <-c.Ticks(); tick.Remaining != 7 {
		t.Fatalf("expected anchored initial 7, got %d", tick.Remaining)
	}
}

func TestCountdownExpiredOnStart(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(zerolog.Nop(), clock)

	c.Start(2, 5, clock.Now().Add(-time.Minute), 0)
	if tick := <-c.Ticks(); tick.Remaining != 0 || tick.QuestionIndex != 2 {
		t.Fatalf("expected immediate zero tick, got %+v", tick)
	}
}

func TestCountdownStopFreezes(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(zerolog.Nop(), clock)

	c.Start(0, 10, clock.Now(), 0)
	<-c.Ticks()
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	if tick := <-c.Ticks(); tick.Remaining != 9 {
		t.Fatalf("expected 9, got %d", tick.Remaining)
	}

	c.Stop()
	clock.Advance(5 * time.Second)
	select {
	case tick := <-c.Ticks():
		t.Fatalf("expected no tick after stop, got %+v", tick)
	default:
	}
	if c.Remaining() != 9 {
		t.Fatalf("expected frozen 9, got %d", c.Remaining())
	}
}

func TestCountdownRestartsForNewIndex(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(zerolog.Nop(), clock)

	c.Start(0, 10, clock.Now(), 0)
	<-c.Ticks()
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	<-c.Ticks()
	clock.Advance(time.Second)
	<-c.Ticks()

	c.Start(1, 20, clock.Now(), 0)
	tick := <-c.Ticks()
	if tick.QuestionIndex != 1 || tick.Remaining != 20 {
		t.Fatalf("expected fresh 20s countdown for index 1, got %+v", tick)
	}
}

func TestNextValueSnapsOnDrift(t *testing.T) {
	now := time.Unix(1000, 0)
	start := now.Add(-6 * time.Second)

	// Local prediction says 17s left but the anchored formula says 14s
	// (tab suspension missed ticks): snap to 14.
	if got := nextValue(zerolog.Nop(), 0, 18, 20, start, 0, now); got != 14 {
		t.Fatalf("expected snap to 14, got %d", got)
	}

	// In agreement: plain decrement.
	if got := nextValue(zerolog.Nop(), 0, 15, 20, start, 0, now); got != 14 {
		t.Fatalf("expected 14, got %d", got)
	}
}

func TestRemainingAtClamped(t *testing.T) {
	now := time.Unix(1000, 0)
	cases := []struct {
		name    string
		elapsed time.Duration
		offset  time.Duration
		want    int
	}{
		{"fresh", 0, 0, 20},
		{"mid", 7 * time.Second, 0, 13},
		{"subsecond floors", 7500 * time.Millisecond, 0, 13},
		{"expired", 25 * time.Second, 0, 0},
		{"start in future clamps high", -10 * time.Second, 0, 20},
		{"offset applies", 5 * time.Second, 2 * time.Second, 13},
	}
	for _, tc := range cases {
		got := remainingAt(20, now.Add(-tc.elapsed), tc.offset, now)
		if got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
		if got < 0 || got > 20 {
			t.Fatalf("%s: value %d outside [0,20]", tc.name, got)
		}
	}
}
