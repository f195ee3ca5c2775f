// Package host implements the game-control side: phase advancement over the
// shared game document and leaderboard aggregation. Control fields are
// single-writer; this controller is that writer.
package host

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"livequiz-player/internal/domain"
	"livequiz-player/internal/game"
)

type Controller struct {
	store game.AdminStore
	clock clockwork.Clock
	log   zerolog.Logger
}

func NewController(store game.AdminStore, log zerolog.Logger) *Controller {
	return NewControllerWithClock(store, log, clockwork.NewRealClock())
}

func NewControllerWithClock(store game.AdminStore, log zerolog.Logger, clock clockwork.Clock) *Controller {
	return &Controller{store: store, clock: clock, log: log}
}

// CreateGame registers a new game in the lobby phase with no active
// question yet.
func (c *Controller) CreateGame(ctx context.Context, pin string, questions []domain.Question) (domain.GameSession, error) {
	sess := domain.GameSession{
		GameID:               uuid.NewString(),
		Pin:                  pin,
		HostID:               uuid.NewString(),
		Phase:                domain.PhaseLobby,
		CurrentQuestionIndex: -1,
		Questions:            questions,
	}
	if err := c.store.CreateSession(ctx, sess); err != nil {
		return domain.GameSession{}, fmt.Errorf("creating game: %w", err)
	}
	c.log.Info().Str("game_id", sess.GameID).Str("pin", pin).Int("questions", len(questions)).Msg("host: game created")
	return sess, nil
}

// NextQuestion advances to the next question index and enters preparing. The
// start time is cleared here and stamped later by StartQuestion, so the index
// moves forward exactly once per advance and never carries a stale anchor.
func (c *Controller) NextQuestion(ctx context.Context, gameID string) (domain.GameSession, error) {
	sess, err := c.store.MutateSession(ctx, gameID, func(s *domain.GameSession) error {
		if s.Phase == domain.PhaseEnded {
			return domain.ErrGameEnded
		}
		if s.CurrentQuestionIndex+1 >= len(s.Questions) {
			return fmt.Errorf("%w: no questions left after index %d", domain.ErrFailedPrecondition, s.CurrentQuestionIndex)
		}
		s.CurrentQuestionIndex++
		s.Phase = domain.PhasePreparing
		s.QuestionStartTime = time.Time{}
		return nil
	})
	if err != nil {
		return domain.GameSession{}, fmt.Errorf("advancing question: %w", err)
	}
	c.log.Info().Str("game_id", gameID).Int("question_index", sess.CurrentQuestionIndex).Msg("host: question prepared")
	return sess, nil
}

// StartQuestion opens the active question for answers, stamping the shared
// start instant. The stamp happens exactly once per index; a second call for
// the same question fails instead of re-anchoring every player's countdown.
func (c *Controller) StartQuestion(ctx context.Context, gameID string) (domain.GameSession, error) {
	sess, err := c.store.MutateSession(ctx, gameID, func(s *domain.GameSession) error {
		if s.Phase != domain.PhasePreparing {
			return fmt.Errorf("%w: phase %s is not preparing", domain.ErrFailedPrecondition, s.Phase)
		}
		if _, ok := s.CurrentQuestion(); !ok {
			return fmt.Errorf("%w: no question at index %d", domain.ErrFailedPrecondition, s.CurrentQuestionIndex)
		}
		if !s.QuestionStartTime.IsZero() {
			return fmt.Errorf("%w: question %d already started", domain.ErrFailedPrecondition, s.CurrentQuestionIndex)
		}
		s.Phase = domain.PhaseQuestion
		s.QuestionStartTime = c.clock.Now()
		return nil
	})
	if err != nil {
		return domain.GameSession{}, fmt.Errorf("starting question: %w", err)
	}
	c.log.Info().
		Str("game_id", gameID).
		Int("question_index", sess.CurrentQuestionIndex).
		Time("start", sess.QuestionStartTime).
		Msg("host: question started")
	return sess, nil
}

// ShowLeaderboard closes the active question and publishes fresh standings.
// Players without an answer for the closed question are treated as timed
// out: zero points, streak broken, no client round trip needed.
func (c *Controller) ShowLeaderboard(ctx context.Context, gameID string) (domain.Leaderboard, error) {
	sess, err := c.store.MutateSession(ctx, gameID, func(s *domain.GameSession) error {
		if s.Phase == domain.PhaseEnded {
			return domain.ErrGameEnded
		}
		s.Phase = domain.PhaseLeaderboard
		return nil
	})
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("closing question: %w", err)
	}

	players, err := c.store.ListPlayers(ctx, gameID)
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("listing players: %w", err)
	}

	index := sess.CurrentQuestionIndex
	for i, p := range players {
		if index < 0 {
			break
		}
		if _, ok := p.AnswerFor(index); ok {
			continue
		}
		if p.CurrentStreak == 0 {
			continue
		}
		p.CurrentStreak = 0
		players[i] = p
		if err := c.store.PutPlayer(ctx, gameID, p); err != nil {
			c.log.Warn().Err(err).Str("player_id", p.ID).Msg("host: streak reset write failed")
		}
	}

	lb := buildLeaderboard(gameID, players, c.clock.Now())
	if err := c.store.PutLeaderboard(ctx, lb); err != nil {
		return domain.Leaderboard{}, fmt.Errorf("publishing leaderboard: %w", err)
	}
	c.log.Info().Str("game_id", gameID).Int("entries", len(lb.Entries)).Msg("host: leaderboard published")
	return lb, nil
}

// EndGame moves the game to its terminal ended phase. The document stays
// readable so players can resume into the final standings.
func (c *Controller) EndGame(ctx context.Context, gameID string) error {
	_, err := c.store.MutateSession(ctx, gameID, func(s *domain.GameSession) error {
		s.Phase = domain.PhaseEnded
		return nil
	})
	if err != nil {
		return fmt.Errorf("ending game: %w", err)
	}
	c.log.Info().Str("game_id", gameID).Msg("host: game ended")
	return nil
}

// CancelGame deletes the game document outright; watchers observe the
// deletion and drop into their cancelled state.
func (c *Controller) CancelGame(ctx context.Context, gameID string) error {
	if err := c.store.DeleteSession(ctx, gameID); err != nil {
		return fmt.Errorf("cancelling game: %w", err)
	}
	c.log.Info().Str("game_id", gameID).Msg("host: game cancelled")
	return nil
}

func buildLeaderboard(gameID string, players []domain.PlayerRecord, now time.Time) domain.Leaderboard {
	sorted := make([]domain.PlayerRecord, len(players))
	copy(sorted, players)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		if !sorted[i].LastUpdated.Equal(sorted[j].LastUpdated) {
			return sorted[i].LastUpdated.Before(sorted[j].LastUpdated)
		}
		return sorted[i].Name < sorted[j].Name
	})

	lb := domain.Leaderboard{GameID: gameID, UpdatedAt: now}
	for i, p := range sorted {
		lb.Entries = append(lb.Entries, domain.LeaderboardEntry{
			PlayerID: p.ID,
			Name:     p.Name,
			Score:    p.Score,
			Rank:     i + 1,
			Streak:   p.CurrentStreak,
		})
	}
	return lb
}
