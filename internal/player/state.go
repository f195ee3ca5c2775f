package player

import "livequiz-player/internal/domain"

// State is the client-side player state. Exactly one value holds at a time;
// transitions happen only through the reducer.
type State string

const (
	StateJoining        State = "joining"
	StateLobby          State = "lobby"
	StatePreparing      State = "preparing"
	StateQuestion       State = "question"
	StateWaiting        State = "waiting"
	StateResult         State = "result"
	StateEnded          State = "ended"
	StateCancelled      State = "cancelled"
	StateReconnecting   State = "reconnecting"
	StateSessionInvalid State = "session-invalid"
)

// Terminal reports whether no transition ever leaves this state.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateCancelled
}

// Active reports whether the player is participating in a live game.
func (s State) Active() bool {
	switch s {
	case StateLobby, StatePreparing, StateQuestion, StateWaiting, StateResult:
		return true
	}
	return false
}

// frame is the reducer's working set: the current state plus the mutable
// per-question flags that must survive re-evaluation. It is owned by one
// Machine, never shared package state, so concurrent player sessions in one
// process stay independent.
type frame struct {
	state State
	// phase is the last observed host phase, consulted by the timeout race.
	phase domain.HostPhase
	// questionIndex is the last index this client consumed. The forced
	// reset below compares against it, so a double host advance observed as
	// one snapshot produces exactly one reset.
	questionIndex int
	// answered is true once this index was submitted or timed out.
	answered bool
}

// reduce is the pure transition function (state, event) -> state. All I/O
// and timer side effects live in Machine.step; this function is directly
// testable against the transition table.
func reduce(f frame, ev event) frame {
	if f.state.Terminal() {
		return f
	}

	switch ev := ev.(type) {
	case evJoined:
		if f.state == StateJoining {
			f.state = StateLobby
			f.phase = ev.session.Phase
			f.questionIndex = ev.session.CurrentQuestionIndex
			f.answered = false
		}

	case evResume:
		if f.state == StateReconnecting {
			f.state = ev.state
			f.phase = ev.session.Phase
			f.questionIndex = ev.session.CurrentQuestionIndex
			f.answered = ev.answered
		}

	case evSnapshot:
		if ev.snap.Deleted {
			if f.state != StateSessionInvalid {
				f.state = StateCancelled
			}
			return f
		}
		s := ev.snap.Session
		f.phase = s.Phase

		if s.Phase == domain.PhaseEnded {
			f.state = StateEnded
			return f
		}

		// A question-index change forces the player back to preparing from
		// any active state, so nobody is left displaying a stale question
		// or result after the host advances.
		if f.state.Active() && s.CurrentQuestionIndex != f.questionIndex {
			f.questionIndex = s.CurrentQuestionIndex
			f.answered = false
			f.state = StatePreparing
		}

		switch {
		case f.state == StateLobby && s.Phase == domain.PhasePreparing:
			f.state = StatePreparing
			f.questionIndex = s.CurrentQuestionIndex
			f.answered = false
		case f.state == StatePreparing && s.Phase == domain.PhaseQuestion:
			f.state = StateQuestion
		case (f.state == StateQuestion || f.state == StateWaiting) && s.Phase == domain.PhaseLeaderboard:
			// Covers both the normal answered path and the player who
			// never answered. Result then sticks until the next index
			// change, so repeated leaderboard snapshots cannot flicker.
			f.state = StateResult
		}

	case evTick:
		// Local timeout: no server round trip, a timeout cannot increase
		// the score. If the host has already moved to the leaderboard the
		// player goes straight to result instead of getting stuck waiting.
		if f.state == StateQuestion && ev.index == f.questionIndex && ev.remaining <= 0 && !f.answered {
			f.answered = true
			if f.phase == domain.PhaseLeaderboard {
				f.state = StateResult
			} else {
				f.state = StateWaiting
			}
		}

	case evSubmit:
		if f.state == StateQuestion && !f.answered {
			f.answered = true
			f.state = StateWaiting
		}

	case evScored, evOffset, evBoard:
		// I/O results carried by these events never change the state.
	}

	return f
}

// mapPhase translates a host phase into the player state a resumed session
// lands in, skipping the join flow entirely.
func mapPhase(p domain.HostPhase) State {
	switch p {
	case domain.PhaseLobby:
		return StateLobby
	case domain.PhasePreparing:
		return StatePreparing
	case domain.PhaseQuestion:
		return StateQuestion
	case domain.PhaseLeaderboard:
		return StateResult
	default:
		return StateLobby
	}
}
