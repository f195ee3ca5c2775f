package host

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"livequiz-player/internal/domain"
	"livequiz-player/internal/infra/memory"
)

func newController(t *testing.T) (*Controller, *memory.GameStore, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	store := memory.NewGameStoreWithClock(clock)
	return NewControllerWithClock(store, zerolog.Nop(), clock), store, clock
}

func twoQuestions() []domain.Question {
	return []domain.Question{
		{Type: domain.QuestionSingleChoice, Choices: []string{"a", "b"}, TimeLimitSeconds: 20, CorrectChoice: 1},
		{Type: domain.QuestionSlider, TimeLimitSeconds: 30, CorrectValue: 42, Tolerance: 2},
	}
}

func TestControllerGameLifecycle(t *testing.T) {
	ctx := context.Background()
	c, store, clock := newController(t)

	sess, err := c.CreateGame(ctx, "424242", twoQuestions())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.Phase != domain.PhaseLobby || sess.CurrentQuestionIndex != -1 {
		t.Fatalf("new game must be in lobby at index -1, got %+v", sess)
	}
	if found, err := store.FindByPin(ctx, "424242"); err != nil || found.GameID != sess.GameID {
		t.Fatalf("pin lookup failed: %v", err)
	}

	sess, err = c.NextQuestion(ctx, sess.GameID)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if sess.CurrentQuestionIndex != 0 || sess.Phase != domain.PhasePreparing {
		t.Fatalf("expected preparing at index 0, got %+v", sess)
	}
	if !sess.QuestionStartTime.IsZero() {
		t.Fatal("start time must be clear until the question opens")
	}

	sess, err = c.StartQuestion(ctx, sess.GameID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.Phase != domain.PhaseQuestion || !sess.QuestionStartTime.Equal(clock.Now()) {
		t.Fatalf("expected question phase anchored to server now, got %+v", sess)
	}

	// The anchor is stamped exactly once per index.
	if _, err := c.StartQuestion(ctx, sess.GameID); !errors.Is(err, domain.ErrFailedPrecondition) {
		t.Fatalf("second start must fail with failed-precondition, got %v", err)
	}

	if err := c.EndGame(ctx, sess.GameID); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := c.NextQuestion(ctx, sess.GameID); !errors.Is(err, domain.ErrGameEnded) {
		t.Fatalf("advancing an ended game must fail, got %v", err)
	}
}

func TestControllerNextQuestionExhausted(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newController(t)
	sess, err := c.CreateGame(ctx, "111111", twoQuestions()[:1])
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.NextQuestion(ctx, sess.GameID); err != nil {
		t.Fatalf("first advance: %v", err)
	}
	if _, err := c.NextQuestion(ctx, sess.GameID); !errors.Is(err, domain.ErrFailedPrecondition) {
		t.Fatalf("expected failed-precondition past the last question, got %v", err)
	}
}

func TestControllerLeaderboardRanksAndTimeouts(t *testing.T) {
	ctx := context.Background()
	c, store, clock := newController(t)
	sess, err := c.CreateGame(ctx, "222222", twoQuestions())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.NextQuestion(ctx, sess.GameID); err != nil {
		t.Fatalf("next: %v", err)
	}
	if _, err := c.StartQuestion(ctx, sess.GameID); err != nil {
		t.Fatalf("start: %v", err)
	}

	answered := domain.PlayerRecord{ID: "p1", Name: "ada", Score: 850, CurrentStreak: 1, LastUpdated: clock.Now()}
	answered.SetAnswer(domain.AnswerRecord{QuestionIndex: 0, Points: 850, IsCorrect: true, Confirmed: true})
	silent := domain.PlayerRecord{ID: "p2", Name: "bob", Score: 850, CurrentStreak: 3, LastUpdated: clock.Now().Add(time.Second)}
	trailing := domain.PlayerRecord{ID: "p3", Name: "eve", Score: 200, LastUpdated: clock.Now()}
	for _, p := range []domain.PlayerRecord{answered, silent, trailing} {
		if err := store.PutPlayer(ctx, sess.GameID, p); err != nil {
			t.Fatalf("seeding %s: %v", p.ID, err)
		}
	}

	lb, err := c.ShowLeaderboard(ctx, sess.GameID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}

	if len(lb.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(lb.Entries))
	}
	// Equal scores: the earlier LastUpdated wins the tie.
	if lb.Entries[0].PlayerID != "p1" || lb.Entries[0].Rank != 1 {
		t.Fatalf("expected p1 first, got %+v", lb.Entries[0])
	}
	if lb.Entries[1].PlayerID != "p2" || lb.Entries[2].PlayerID != "p3" {
		t.Fatalf("unexpected order %+v", lb.Entries)
	}

	// The silent player is treated as timed out: streak broken server-side.
	if lb.Entries[1].Streak != 0 {
		t.Fatalf("expected silent player's streak broken, got %d", lb.Entries[1].Streak)
	}
	rec, err := store.GetPlayer(ctx, sess.GameID, "p2")
	if err != nil || rec.CurrentStreak != 0 {
		t.Fatalf("streak reset must be persisted, got %+v (%v)", rec, err)
	}
	// The answering player's streak survives.
	if lb.Entries[0].Streak != 1 {
		t.Fatalf("expected p1 streak kept, got %d", lb.Entries[0].Streak)
	}

	stored, err := store.GetLeaderboard(ctx, sess.GameID)
	if err != nil || len(stored.Entries) != 3 {
		t.Fatalf("leaderboard must be published to the store: %v", err)
	}
}

func TestControllerCancelDeletesGame(t *testing.T) {
	ctx := context.Background()
	c, store, _ := newController(t)
	sess, err := c.CreateGame(ctx, "333333", twoQuestions())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := c.CancelGame(ctx, sess.GameID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := store.GetSession(ctx, sess.GameID); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected game gone, got %v", err)
	}
}
