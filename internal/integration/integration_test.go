package integration

import (
	"context"
	"database/sql"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"livequiz-player/internal/domain"
	"livequiz-player/internal/host"
	"livequiz-player/internal/infra/postgres"
	pgmigrations "livequiz-player/internal/infra/postgres/migrations"
	infraredis "livequiz-player/internal/infra/redis"
	"livequiz-player/internal/player"
	"livequiz-player/internal/scorer"
	"livequiz-player/internal/session"
	transport "livequiz-player/internal/transport/http"
)

// TestFullGameEndToEnd runs the whole platform against real Postgres and
// Redis: the question catalogue is seeded in Postgres, cached through Redis,
// a game is hosted on the Redis store, and a player machine joins, answers
// over the HTTP scorer, and rides the game to its end.
func TestFullGameEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	requireDocker(t)
	log := zerolog.Nop()

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	loader := postgres.NewGameLoader(pool)
	if err := loader.SaveQuestions(ctx, "catalog-1", sampleQuestions()); err != nil {
		t.Fatalf("seed questions: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()
	store := infraredis.NewGameStore(redisClient, log)

	cache := infraredis.NewQuestionCache(redisClient, loader, 5*time.Minute)
	questions, err := cache.GetQuestions(ctx, "catalog-1")
	if err != nil {
		t.Fatalf("load questions: %v", err)
	}

	controller := host.NewController(store, log)
	created, err := controller.CreateGame(ctx, "424242", questions)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}

	srv := transport.NewServer(store, scorer.NewEngine(store, log), log)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	found, err := store.FindByPin(ctx, "424242")
	if err != nil || found.GameID != created.GameID {
		t.Fatalf("pin lookup: %+v (%v)", found, err)
	}

	m := player.New(player.Config{
		Store:    store,
		Scorer:   transport.NewScorerClient(ts.URL),
		Sessions: session.NewManager(session.NewMemoryStore(), log),
		GameID:   found.GameID,
		Pin:      "424242",
		Log:      log,
	})
	if err := m.Join(ctx, "ada"); err != nil {
		t.Fatalf("join: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	waitState := func(want player.State) player.Update {
		t.Helper()
		for {
			select {
			case u := <-m.Updates():
				if u.State == want {
					return u
				}
			case <-ctx.Done():
				t.Fatalf("timed out waiting for %s (currently %s)", want, m.State())
			}
		}
	}

	waitState(player.StateLobby)

	if _, err := controller.NextQuestion(ctx, created.GameID); err != nil {
		t.Fatalf("next question: %v", err)
	}
	waitState(player.StatePreparing)

	if _, err := controller.StartQuestion(ctx, created.GameID); err != nil {
		t.Fatalf("start question: %v", err)
	}
	u := waitState(player.StateQuestion)
	if u.Remaining <= 0 || u.Remaining > 30 {
		t.Fatalf("implausible countdown %d", u.Remaining)
	}

	m.Submit(domain.ChoiceAnswer(1))
	for {
		u = waitState(player.StateWaiting)
		if u.Score > 0 {
			break
		}
	}
	if u.Streak != 1 {
		t.Fatalf("expected streak 1 after a correct answer, got %d", u.Streak)
	}

	lb, err := controller.ShowLeaderboard(ctx, created.GameID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].Name != "ada" || lb.Entries[0].Score != u.Score {
		t.Fatalf("unexpected standings %+v", lb.Entries)
	}
	waitState(player.StateResult)

	if err := controller.EndGame(ctx, created.GameID); err != nil {
		t.Fatalf("end game: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("player run: %v", err)
		}
	case <-ctx.Done():
		t.Fatal("player machine did not stop after the game ended")
	}
	if got := m.State(); got != player.StateEnded {
		t.Fatalf("expected ended, got %s", got)
	}

	// Final standings survive in the durable archive.
	if err := loader.ArchiveResult(ctx, lb); err != nil {
		t.Fatalf("archive: %v", err)
	}
	archived, err := loader.LoadResult(ctx, created.GameID)
	if err != nil || len(archived.Entries) != 1 || archived.Entries[0].Name != "ada" {
		t.Fatalf("archived standings: %+v (%v)", archived, err)
	}
}

func migrateDB(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			Type:             domain.QuestionSingleChoice,
			Prompt:           "What is 2 + 2?",
			Choices:          []string{"3", "4", "5"},
			CorrectChoice:    1,
			TimeLimitSeconds: 30,
		},
		{
			Type:             domain.QuestionFreeText,
			Prompt:           "Capital of France?",
			CorrectText:      "Paris",
			TypoTolerance:    1,
			TimeLimitSeconds: 30,
		},
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
