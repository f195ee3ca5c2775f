// Package game defines the document-store boundary the player core and the
// host controller talk through. Implementations live under internal/infra.
package game

import (
	"context"
	"time"

	"livequiz-player/internal/domain"
)

// Snapshot is one observed version of the shared game document. Deleted
// snapshots signal that the document is gone (game cancelled by the host).
type Snapshot struct {
	Session domain.GameSession
	Deleted bool
}

// Store is the player-facing view of the document store: read and watch the
// shared session, read/write the player's own record, read the standings
// feed, and run clock-sync marker round trips.
type Store interface {
	GetSession(ctx context.Context, gameID string) (domain.GameSession, error)
	// WatchSession emits a snapshot per observed change, starting with the
	// current state. The cancel func must be called to release the watch.
	WatchSession(ctx context.Context, gameID string) (<-chan Snapshot, func(), error)
	GetPlayer(ctx context.Context, gameID, playerID string) (domain.PlayerRecord, error)
	PutPlayer(ctx context.Context, gameID string, rec domain.PlayerRecord) error
	GetLeaderboard(ctx context.Context, gameID string) (domain.Leaderboard, error)

	MarkerStore
}

// MarkerStore is the throwaway-marker surface used for clock offset
// estimation. WriteMarker stamps the marker with the store's own (server)
// clock; ReadMarker returns that stamp. Markers are self-cleaning: deletion
// failures are non-fatal and implementations may also expire them.
type MarkerStore interface {
	WriteMarker(ctx context.Context, markerID string) error
	ReadMarker(ctx context.Context, markerID string) (time.Time, error)
	DeleteMarker(ctx context.Context, markerID string) error
}

// AdminStore is the host-facing surface. Only the host controller (or the
// scorer, for player records it owns the authoritative fields of) uses it.
type AdminStore interface {
	Store

	CreateSession(ctx context.Context, s domain.GameSession) error
	// MutateSession applies fn to the current session under the store's
	// write path and publishes the result to watchers.
	MutateSession(ctx context.Context, gameID string, fn func(*domain.GameSession) error) (domain.GameSession, error)
	DeleteSession(ctx context.Context, gameID string) error
	ListPlayers(ctx context.Context, gameID string) ([]domain.PlayerRecord, error)
	PutLeaderboard(ctx context.Context, lb domain.Leaderboard) error
	// FindByPin resolves a join code to a game ID.
	FindByPin(ctx context.Context, pin string) (domain.GameSession, error)
}
