// Package session persists the player's identity tuple on the device so a
// player survives reloads and reconnects. The store is client-local and never
// server-authoritative.
package session

import (
	"github.com/rs/zerolog"

	"livequiz-player/internal/domain"
)

// Store is the durable device-local storage behind the manager.
type Store interface {
	Load() (domain.PlayerIdentity, bool, error)
	Save(domain.PlayerIdentity) error
	Delete() error
}

// Manager guards access to the stored identity with the game pin the caller
// is currently looking at: a session for game A is never silently reused for
// game B, and one tab never clobbers another game's session.
type Manager struct {
	store Store
	log   zerolog.Logger
}

func NewManager(store Store, log zerolog.Logger) *Manager {
	return &Manager{store: store, log: log}
}

// Save persists the identity, replacing whatever was stored before.
func (m *Manager) Save(id domain.PlayerIdentity) error {
	if err := m.store.Save(id); err != nil {
		m.log.Warn().Err(err).Msg("session: save failed")
		return err
	}
	return nil
}

// Get returns the stored identity only if its pin matches the current pin.
func (m *Manager) Get(currentPin string) (domain.PlayerIdentity, bool) {
	id, ok, err := m.store.Load()
	if err != nil {
		m.log.Warn().Err(err).Msg("session: load failed")
		return domain.PlayerIdentity{}, false
	}
	if !ok || id.GamePin != currentPin {
		return domain.PlayerIdentity{}, false
	}
	return id, true
}

// MatchesPin reports whether a stored session exists for the given pin.
func (m *Manager) MatchesPin(pin string) bool {
	_, ok := m.Get(pin)
	return ok
}

// Clear removes the stored identity, but only when it belongs to the given
// pin; clearing is a no-op for a session of an unrelated game.
func (m *Manager) Clear(currentPin string) {
	id, ok, err := m.store.Load()
	if err != nil || !ok {
		return
	}
	if id.GamePin != currentPin {
		return
	}
	if err := m.store.Delete(); err != nil {
		m.log.Warn().Err(err).Msg("session: clear failed")
	}
}
