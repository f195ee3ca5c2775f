package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"livequiz-player/internal/config"
	"livequiz-player/internal/domain"
	"livequiz-player/internal/host"
	"livequiz-player/internal/infra/postgres"
	infraredis "livequiz-player/internal/infra/redis"
)

// NewHostCmd builds the auto-host: it creates a game and walks every
// question on a fixed cadence, the way a presenter clicking through a deck
// would.
func NewHostCmd(configPath *string) *cobra.Command {
	var (
		pin       string
		catalogID string
		lobbyWait time.Duration
		boardWait time.Duration
	)
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Create a game and auto-advance it through all questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd.Context(), *configPath, pin, catalogID, lobbyWait, boardWait)
		},
	}
	cmd.Flags().StringVar(&pin, "pin", "424242", "join pin for the new game")
	cmd.Flags().StringVar(&catalogID, "game", "", "catalogue id to load questions from (empty: built-in demo set)")
	cmd.Flags().DurationVar(&lobbyWait, "lobby", 30*time.Second, "how long players may join before the first question")
	cmd.Flags().DurationVar(&boardWait, "board", 8*time.Second, "how long each leaderboard stays up")
	return cmd
}

func runHost(ctx context.Context, configPath, pin, catalogID string, lobbyWait, boardWait time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	store, cleanup, err := buildStore(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	questions, archive, err := loadQuestions(ctx, cfg, catalogID, log)
	if err != nil {
		return err
	}

	controller := host.NewController(store, log)
	sess, err := controller.CreateGame(ctx, pin, questions)
	if err != nil {
		return err
	}
	fmt.Printf("game created, join with pin %s\n", pin)

	log.Info().Dur("lobby", lobbyWait).Msg("waiting for players")
	select {
	case <-time.After(lobbyWait):
	case <-ctx.Done():
		return controller.CancelGame(context.Background(), sess.GameID)
	}

	for i := range questions {
		if _, err := controller.NextQuestion(ctx, sess.GameID); err != nil {
			return err
		}
		// Preparing pulse: give clients a beat to show the countdown screen.
		time.Sleep(3 * time.Second)

		started, err := controller.StartQuestion(ctx, sess.GameID)
		if err != nil {
			return err
		}
		q, _ := started.CurrentQuestion()
		wait := time.Duration(q.TimeLimitSeconds) * time.Second
		if wait == 0 {
			wait = boardWait
		}
		log.Info().Int("question_index", i).Dur("open_for", wait).Msg("question open")
		select {
		case <-time.After(wait + 2*time.Second):
		case <-ctx.Done():
			return controller.CancelGame(context.Background(), sess.GameID)
		}

		lb, err := controller.ShowLeaderboard(ctx, sess.GameID)
		if err != nil {
			return err
		}
		for _, e := range lb.Entries {
			log.Info().Int("rank", e.Rank).Str("name", e.Name).Int("score", e.Score).Msg("standings")
		}
		time.Sleep(boardWait)
	}

	final, err := controller.ShowLeaderboard(ctx, sess.GameID)
	if err != nil {
		return err
	}
	if err := controller.EndGame(ctx, sess.GameID); err != nil {
		return err
	}
	if archive != nil {
		if err := archive(final); err != nil {
			log.Warn().Err(err).Msg("archiving final standings failed")
		}
	}
	log.Info().Str("game_id", sess.GameID).Msg("game finished")
	return nil
}

// loadQuestions resolves the question set: the Postgres catalogue (cached in
// Redis when available) or the built-in demo set. The returned archive
// function, when non-nil, stores the final standings durably.
func loadQuestions(ctx context.Context, cfg config.Config, catalogID string, log zerolog.Logger) ([]domain.Question, func(domain.Leaderboard) error, error) {
	if catalogID == "" || cfg.Postgres.URL == "" {
		log.Info().Msg("using the built-in demo question set")
		return demoQuestions(), nil, nil
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, nil, err
	}
	loader := postgres.NewGameLoader(pool)

	var qs []domain.Question
	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache := infraredis.NewQuestionCache(client, loader, config.TTLDuration(cfg.Questions.TTL, 10*time.Minute))
		qs, err = cache.GetQuestions(ctx, catalogID)
	} else {
		qs, err = loader.LoadQuestions(ctx, catalogID)
	}
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	archive := func(lb domain.Leaderboard) error {
		defer pool.Close()
		return loader.ArchiveResult(context.Background(), lb)
	}
	return qs, archive, nil
}

func demoQuestions() []domain.Question {
	return []domain.Question{
		{
			Type:             domain.QuestionSingleChoice,
			Prompt:           "What is the capital of France?",
			Choices:          []string{"Lyon", "Paris", "Marseille"},
			CorrectChoice:    1,
			TimeLimitSeconds: 20,
		},
		{
			Type:             domain.QuestionMultiChoice,
			Prompt:           "Which of these are prime numbers?",
			Choices:          []string{"2", "4", "7", "9"},
			CorrectChoices:   []int{0, 2},
			TimeLimitSeconds: 25,
		},
		{
			Type:             domain.QuestionSlider,
			Prompt:           "How many minutes are in a day?",
			CorrectValue:     1440,
			Tolerance:        30,
			TimeLimitSeconds: 20,
		},
		{
			Type:             domain.QuestionFreeText,
			Prompt:           "Which planet is known as the red planet?",
			CorrectText:      "Mars",
			TypoTolerance:    1,
			TimeLimitSeconds: 20,
		},
		{
			Type:             domain.QuestionPollSingle,
			Prompt:           "Did you enjoy this round?",
			Choices:          []string{"Yes", "No"},
			TimeLimitSeconds: 15,
		},
	}
}
