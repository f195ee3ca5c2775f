package domain

import "errors"

// Identity and document errors.
var (
	// ErrGameNotFound is returned when the referenced game document is gone.
	ErrGameNotFound = errors.New("game not found")
	// ErrGameEnded is returned when acting on a game that already finished.
	ErrGameEnded = errors.New("game has ended")
	// ErrPlayerNotFound is returned when a player record is missing.
	ErrPlayerNotFound = errors.New("player not found in game")
	// ErrSnapshotNotFound indicates the question snapshot could not be loaded.
	ErrSnapshotNotFound = errors.New("game snapshot not found")
)

// Categorical scorer errors. These mirror the error codes of the submitAnswer
// endpoint so clients can classify failures without string matching.
var (
	// ErrUnauthenticated means the caller is not a member of the game.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrDeadlineExceeded means the answer arrived after the time limit.
	ErrDeadlineExceeded = errors.New("deadline exceeded")
	// ErrFailedPrecondition means the game state changed incompatibly before
	// the answer could be processed.
	ErrFailedPrecondition = errors.New("failed precondition")
	// ErrInternal is the generic scorer failure.
	ErrInternal = errors.New("internal error")
)

// ErrorCode maps a categorical error to its wire code, or "internal" for
// anything unrecognized.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrDeadlineExceeded):
		return "deadline-exceeded"
	case errors.Is(err, ErrFailedPrecondition):
		return "failed-precondition"
	default:
		return "internal"
	}
}

// ErrorFromCode is the inverse of ErrorCode for the client side of the wire.
func ErrorFromCode(code string) error {
	switch code {
	case "unauthenticated":
		return ErrUnauthenticated
	case "deadline-exceeded":
		return ErrDeadlineExceeded
	case "failed-precondition":
		return ErrFailedPrecondition
	default:
		return ErrInternal
	}
}
