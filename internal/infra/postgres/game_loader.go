// Package postgres holds the durable side of the platform: the game
// catalogue (question sets, scoring keys included) and archived final
// results. The live game document itself lives in Redis.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"livequiz-player/internal/domain"
)

// GameLoader reads and writes question sets as JSONB rows.
type GameLoader struct {
	pool *pgxpool.Pool
}

func NewGameLoader(pool *pgxpool.Pool) *GameLoader {
	return &GameLoader{pool: pool}
}

// LoadQuestions returns the full question set for a game, scoring key
// included. Callers serving players must strip the key fields first.
func (l *GameLoader) LoadQuestions(ctx context.Context, gameID string) ([]domain.Question, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT questions FROM games WHERE id=$1`, gameID).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	var qs []domain.Question
	if err := json.Unmarshal(raw, &qs); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	return qs, nil
}

// SaveQuestions upserts a game's question set.
func (l *GameLoader) SaveQuestions(ctx context.Context, gameID string, qs []domain.Question) error {
	raw, err := json.Marshal(qs)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO games (id, questions) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET questions = EXCLUDED.questions`,
		gameID, raw)
	if err != nil {
		return fmt.Errorf("save questions: %w", err)
	}
	return nil
}

// ArchiveResult stores the final leaderboard of a finished game.
func (l *GameLoader) ArchiveResult(ctx context.Context, lb domain.Leaderboard) error {
	raw, err := json.Marshal(lb)
	if err != nil {
		return fmt.Errorf("marshal leaderboard: %w", err)
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO results (game_id, leaderboard) VALUES ($1, $2)
		 ON CONFLICT (game_id) DO UPDATE SET leaderboard = EXCLUDED.leaderboard, finished_at = now()`,
		lb.GameID, raw)
	if err != nil {
		return fmt.Errorf("archive result: %w", err)
	}
	return nil
}

// LoadResult returns the archived leaderboard of a finished game.
func (l *GameLoader) LoadResult(ctx context.Context, gameID string) (domain.Leaderboard, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT leaderboard FROM results WHERE game_id=$1`, gameID).Scan(&raw)
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("load result: %w", err)
	}
	var lb domain.Leaderboard
	if err := json.Unmarshal(raw, &lb); err != nil {
		return domain.Leaderboard{}, fmt.Errorf("unmarshal leaderboard: %w", err)
	}
	return lb, nil
}
