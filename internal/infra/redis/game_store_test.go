package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"livequiz-player/internal/domain"
	"livequiz-player/internal/game"
)

func newStore(t *testing.T) (*GameStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewGameStore(client, zerolog.Nop()), mr
}

func testSession() domain.GameSession {
	return domain.GameSession{
		GameID:               "g1",
		Pin:                  "424242",
		Phase:                domain.PhaseLobby,
		CurrentQuestionIndex: -1,
		Questions: []domain.Question{
			{Type: domain.QuestionSingleChoice, Choices: []string{"a", "b"}, TimeLimitSeconds: 20},
		},
	}
}

func TestGameStoreSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)

	if err := store.CreateSession(ctx, testSession()); err != nil {
		t.Fatalf("create: %v", err)
	}

	sess, err := store.GetSession(ctx, "g1")
	if err != nil || sess.Pin != "424242" || sess.CurrentQuestionIndex != -1 {
		t.Fatalf("get: %+v (%v)", sess, err)
	}

	if found, err := store.FindByPin(ctx, "424242"); err != nil || found.GameID != "g1" {
		t.Fatalf("pin lookup: %+v (%v)", found, err)
	}
	if _, err := store.FindByPin(ctx, "000000"); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("unknown pin: %v", err)
	}

	sess, err = store.MutateSession(ctx, "g1", func(s *domain.GameSession) error {
		s.Phase = domain.PhaseQuestion
		s.CurrentQuestionIndex = 0
		return nil
	})
	if err != nil || sess.Phase != domain.PhaseQuestion {
		t.Fatalf("mutate: %+v (%v)", sess, err)
	}

	if err := store.DeleteSession(ctx, "g1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetSession(ctx, "g1"); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected gone, got %v", err)
	}
	if _, err := store.FindByPin(ctx, "424242"); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("pin must be released on delete, got %v", err)
	}
}

func TestGameStoreWatchDeliversUpdatesAndDeletion(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	if err := store.CreateSession(ctx, testSession()); err != nil {
		t.Fatalf("create: %v", err)
	}

	ch, cancel, err := store.WatchSession(ctx, "g1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer cancel()

	next := func() game.Snapshot {
		t.Helper()
		select {
		case snap := <-ch:
			return snap
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for a snapshot")
			return game.Snapshot{}
		}
	}

	if snap := next(); snap.Deleted || snap.Session.Phase != domain.PhaseLobby {
		t.Fatalf("unexpected initial snapshot %+v", snap)
	}

	if _, err := store.MutateSession(ctx, "g1", func(s *domain.GameSession) error {
		s.Phase = domain.PhasePreparing
		s.CurrentQuestionIndex = 0
		return nil
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if snap := next(); snap.Session.Phase != domain.PhasePreparing || snap.Session.CurrentQuestionIndex != 0 {
		t.Fatalf("unexpected update snapshot %+v", snap)
	}

	if err := store.DeleteSession(ctx, "g1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if snap := next(); !snap.Deleted {
		t.Fatalf("expected deletion snapshot, got %+v", snap)
	}
}

func TestGameStoreWatchUnknownGame(t *testing.T) {
	store, _ := newStore(t)
	if _, _, err := store.WatchSession(context.Background(), "nope"); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}

func TestGameStorePlayersAndLeaderboard(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	if err := store.CreateSession(ctx, testSession()); err != nil {
		t.Fatalf("create: %v", err)
	}

	rec := domain.PlayerRecord{ID: "p1", Name: "ada", Score: 850}
	rec.SetAnswer(domain.AnswerRecord{QuestionIndex: 0, Points: 850, IsCorrect: true, Confirmed: true})
	if err := store.PutPlayer(ctx, "g1", rec); err != nil {
		t.Fatalf("put player: %v", err)
	}

	got, err := store.GetPlayer(ctx, "g1", "p1")
	if err != nil || got.Score != 850 || len(got.Answers) != 1 {
		t.Fatalf("get player: %+v (%v)", got, err)
	}
	if _, err := store.GetPlayer(ctx, "g1", "ghost"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("ghost player: %v", err)
	}

	if err := store.PutPlayer(ctx, "g1", domain.PlayerRecord{ID: "p2", Name: "bob"}); err != nil {
		t.Fatalf("put second player: %v", err)
	}
	players, err := store.ListPlayers(ctx, "g1")
	if err != nil || len(players) != 2 {
		t.Fatalf("list players: %d (%v)", len(players), err)
	}

	lb := domain.Leaderboard{GameID: "g1", Entries: []domain.LeaderboardEntry{{PlayerID: "p1", Name: "ada", Score: 850, Rank: 1}}}
	if err := store.PutLeaderboard(ctx, lb); err != nil {
		t.Fatalf("put leaderboard: %v", err)
	}
	stored, err := store.GetLeaderboard(ctx, "g1")
	if err != nil || len(stored.Entries) != 1 || stored.Entries[0].Rank != 1 {
		t.Fatalf("get leaderboard: %+v (%v)", stored, err)
	}
}

func TestGameStoreMarkersUseServerClock(t *testing.T) {
	ctx := context.Background()
	store, mr := newStore(t)

	serverNow := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mr.SetTime(serverNow)

	if err := store.WriteMarker(ctx, "m1"); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	stamp, err := store.ReadMarker(ctx, "m1")
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	if !stamp.Equal(serverNow) {
		t.Fatalf("expected server stamp %s, got %s", serverNow, stamp)
	}

	if err := store.DeleteMarker(ctx, "m1"); err != nil {
		t.Fatalf("delete marker: %v", err)
	}
	if _, err := store.ReadMarker(ctx, "m1"); !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Fatalf("expected missing marker, got %v", err)
	}
}
