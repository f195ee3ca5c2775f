package session

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"livequiz-player/internal/domain"
)

func testIdentity() domain.PlayerIdentity {
	return domain.PlayerIdentity{
		PlayerID: "p1",
		GameID:   "g1",
		GamePin:  "123456",
		Nickname: "Alice",
	}
}

func TestManagerPinScoping(t *testing.T) {
	m := NewManager(NewMemoryStore(), zerolog.Nop())

	if err := m.Save(testIdentity()); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, ok := m.Get("999999"); ok {
		t.Fatalf("expected no session for a different pin")
	}
	id, ok := m.Get("123456")
	if !ok || id.PlayerID != "p1" || id.Nickname != "Alice" {
		t.Fatalf("expected stored session back, got %+v ok=%v", id, ok)
	}
	if !m.MatchesPin("123456") || m.MatchesPin("999999") {
		t.Fatalf("pin matching broken")
	}
}

func TestManagerClearIsPinScoped(t *testing.T) {
	m := NewManager(NewMemoryStore(), zerolog.Nop())
	_ = m.Save(testIdentity())

	// Another tab looking at a different game must not clobber this session.
	m.Clear("999999")
	if _, ok := m.Get("123456"); !ok {
		t.Fatalf("clear with mismatched pin should be a no-op")
	}

	m.Clear("123456")
	if _, ok := m.Get("123456"); ok {
		t.Fatalf("expected session cleared")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "player-session.json")
	store := NewFileStore(path)

	if _, ok, err := store.Load(); err != nil || ok {
		t.Fatalf("expected empty store, ok=%v err=%v", ok, err)
	}

	if err := store.Save(testIdentity()); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A fresh store on the same path sees the saved identity (reload survival).
	reloaded := NewFileStore(path)
	id, ok, err := reloaded.Load()
	if err != nil || !ok {
		t.Fatalf("load after save: ok=%v err=%v", ok, err)
	}
	if id != testIdentity() {
		t.Fatalf("expected identity back, got %+v", id)
	}

	if err := store.Delete(); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Load(); ok {
		t.Fatalf("expected store empty after delete")
	}
	if err := store.Delete(); err != nil {
		t.Fatalf("second delete should be a no-op, got %v", err)
	}
}
