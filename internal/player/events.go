package player

import (
	"time"

	"livequiz-player/internal/domain"
	"livequiz-player/internal/game"
	"livequiz-player/internal/scorer"
)

// event is the closed set of inputs the state machine consumes. A host-state
// change, a local timer tick, and an RPC response are all just events fed
// into one transition function, so ordering hazards reduce to channel order.
type event interface{ isEvent() }

// evJoined fires after a fresh join has been accepted by the store.
type evJoined struct {
	identity domain.PlayerIdentity
	session  domain.GameSession
	record   domain.PlayerRecord
}

// evResume carries the outcome of the reconnection handler. state is the
// already-mapped target state (session-invalid and ended included).
type evResume struct {
	state    State
	identity domain.PlayerIdentity
	session  domain.GameSession
	record   domain.PlayerRecord
	answered bool
}

// evSnapshot is one observed version of the shared game document.
type evSnapshot struct {
	snap game.Snapshot
}

// evTick is a countdown update for a question index.
type evTick struct {
	index     int
	remaining int
}

// evSubmit requests an answer submission for the active question.
type evSubmit struct {
	payload domain.AnswerPayload
}

// evScored is the scorer's response (or classified failure) for an index.
type evScored struct {
	index int
	resp  scorer.Response
	err   error
}

// evOffset delivers a finished clock-offset estimation.
type evOffset struct {
	offset time.Duration
}

// evBoard delivers the leaderboard aggregate fetched on entering result.
type evBoard struct {
	board domain.Leaderboard
	err   error
}

func (evJoined) isEvent()   {}
func (evResume) isEvent()   {}
func (evSnapshot) isEvent() {}
func (evTick) isEvent()     {}
func (evSubmit) isEvent()   {}
func (evScored) isEvent()   {}
func (evOffset) isEvent()   {}
func (evBoard) isEvent()    {}
