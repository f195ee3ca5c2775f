// Package memory provides the in-process document store used by tests and
// the single-binary demo.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"livequiz-player/internal/domain"
	"livequiz-player/internal/game"
)

// GameStore implements game.AdminStore with subscriber fan-out per game.
// Its clock stands in for the server clock; tests can inject a skewed fake
// to exercise clock synchronization.
type GameStore struct {
	clock clockwork.Clock

	mu      sync.RWMutex
	games   map[string]*gameEntry
	markers map[string]time.Time
}

type gameEntry struct {
	session     domain.GameSession
	players     map[string]domain.PlayerRecord
	leaderboard domain.Leaderboard
	hasBoard    bool
	subs        map[chan game.Snapshot]struct{}
}

func NewGameStore() *GameStore {
	return NewGameStoreWithClock(clockwork.NewRealClock())
}

// NewGameStoreWithClock injects the store's server clock.
func NewGameStoreWithClock(clock clockwork.Clock) *GameStore {
	return &GameStore{
		clock:   clock,
		games:   make(map[string]*gameEntry),
		markers: make(map[string]time.Time),
	}
}

func (s *GameStore) GetSession(_ context.Context, gameID string) (domain.GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.games[gameID]
	if !ok {
		return domain.GameSession{}, domain.ErrGameNotFound
	}
	return entry.session, nil
}

func (s *GameStore) WatchSession(_ context.Context, gameID string) (<-chan game.Snapshot, func(), error) {
	s.mu.Lock()
	entry, ok := s.games[gameID]
	if !ok {
		s.mu.Unlock()
		return nil, nil, domain.ErrGameNotFound
	}
	ch := make(chan game.Snapshot, 8)
	entry.subs[ch] = struct{}{}
	initial := game.Snapshot{Session: entry.session}
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if entry, ok := s.games[gameID]; ok {
			if _, subscribed := entry.subs[ch]; subscribed {
				delete(entry.subs, ch)
				close(ch)
			}
		}
	}
	return ch, cancel, nil
}

func (s *GameStore) GetPlayer(_ context.Context, gameID, playerID string) (domain.PlayerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.games[gameID]
	if !ok {
		return domain.PlayerRecord{}, domain.ErrGameNotFound
	}
	rec, ok := entry.players[playerID]
	if !ok {
		return domain.PlayerRecord{}, domain.ErrPlayerNotFound
	}
	return rec, nil
}

func (s *GameStore) PutPlayer(_ context.Context, gameID string, rec domain.PlayerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.games[gameID]
	if !ok {
		return domain.ErrGameNotFound
	}
	entry.players[rec.ID] = rec
	return nil
}

func (s *GameStore) ListPlayers(_ context.Context, gameID string) ([]domain.PlayerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.games[gameID]
	if !ok {
		return nil, domain.ErrGameNotFound
	}
	players := make([]domain.PlayerRecord, 0, len(entry.players))
	for _, rec := range entry.players {
		players = append(players, rec)
	}
	return players, nil
}

func (s *GameStore) GetLeaderboard(_ context.Context, gameID string) (domain.Leaderboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.games[gameID]
	if !ok {
		return domain.Leaderboard{}, domain.ErrGameNotFound
	}
	if !entry.hasBoard {
		return domain.Leaderboard{GameID: gameID}, nil
	}
	return entry.leaderboard, nil
}

func (s *GameStore) PutLeaderboard(_ context.Context, lb domain.Leaderboard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.games[lb.GameID]
	if !ok {
		return domain.ErrGameNotFound
	}
	entry.leaderboard = lb
	entry.hasBoard = true
	return nil
}

func (s *GameStore) CreateSession(_ context.Context, session domain.GameSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.games[session.GameID]; exists {
		return fmt.Errorf("game %s already exists", session.GameID)
	}
	s.games[session.GameID] = &gameEntry{
		session: session,
		players: make(map[string]domain.PlayerRecord),
		subs:    make(map[chan game.Snapshot]struct{}),
	}
	return nil
}

func (s *GameStore) MutateSession(_ context.Context, gameID string, fn func(*domain.GameSession) error) (domain.GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.games[gameID]
	if !ok {
		return domain.GameSession{}, domain.ErrGameNotFound
	}
	next := entry.session
	if err := fn(&next); err != nil {
		return domain.GameSession{}, err
	}
	entry.session = next
	s.broadcastLocked(entry, game.Snapshot{Session: next})
	return next, nil
}

func (s *GameStore) DeleteSession(_ context.Context, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.games[gameID]
	if !ok {
		return domain.ErrGameNotFound
	}
	s.broadcastLocked(entry, game.Snapshot{Deleted: true})
	for ch := range entry.subs {
		close(ch)
	}
	delete(s.games, gameID)
	return nil
}

func (s *GameStore) FindByPin(_ context.Context, pin string) (domain.GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.games {
		if entry.session.Pin == pin {
			return entry.session, nil
		}
	}
	return domain.GameSession{}, domain.ErrGameNotFound
}

func (s *GameStore) WriteMarker(_ context.Context, markerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[markerID] = s.clock.Now()
	return nil
}

func (s *GameStore) ReadMarker(_ context.Context, markerID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stamp, ok := s.markers[markerID]
	if !ok {
		return time.Time{}, fmt.Errorf("marker %s not found", markerID)
	}
	return stamp, nil
}

func (s *GameStore) DeleteMarker(_ context.Context, markerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, markerID)
	return nil
}

// broadcastLocked delivers a snapshot to every subscriber, dropping the
// oldest queued update for consumers that fall behind.
func (s *GameStore) broadcastLocked(entry *gameEntry, snap game.Snapshot) {
	for ch := range entry.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
