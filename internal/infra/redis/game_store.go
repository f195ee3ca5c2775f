// Package redis backs the shared game document with Redis: JSON documents
// for sessions and leaderboards, a hash per game for player records, pub/sub
// for the live snapshot feed, and server-stamped sync markers.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"livequiz-player/internal/domain"
	"livequiz-player/internal/game"
)

const (
	feedUpdate  = "update"
	feedDeleted = "deleted"
	markerTTL   = time.Minute
)

// markerScript stamps a marker key with the Redis server's own clock in
// milliseconds. Stamping inside the server removes the writer's clock from
// the offset estimate entirely.
var markerScript = redis.NewScript(`
local t = redis.call('TIME')
local ms = t[1] * 1000 + math.floor(t[2] / 1000)
redis.call('SET', KEYS[1], ms, 'PX', ARGV[1])
return ms
`)

// GameStore implements game.AdminStore on a Redis client. Layout:
//
//	game:{id}           session JSON
//	game:{id}:players   hash playerID -> record JSON
//	game:{id}:board     leaderboard JSON
//	game:pin:{pin}      gameID
//	game:{id}:feed      pub/sub channel carrying "update" / "deleted"
//	sync:marker:{id}    server-stamped unix milliseconds
type GameStore struct {
	client *redis.Client
	log    zerolog.Logger

	// mu serializes MutateSession's read-modify-write. Control fields are
	// single-writer (the host), so a process-local lock is sufficient.
	mu sync.Mutex
}

func NewGameStore(client *redis.Client, log zerolog.Logger) *GameStore {
	return &GameStore{client: client, log: log}
}

func (s *GameStore) GetSession(ctx context.Context, gameID string) (domain.GameSession, error) {
	raw, err := s.client.Get(ctx, sessionKey(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.GameSession{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.GameSession{}, err
	}
	var sess domain.GameSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return domain.GameSession{}, err
	}
	return sess, nil
}

func (s *GameStore) CreateSession(ctx context.Context, sess domain.GameSession) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(sess.GameID), raw, 0)
	if sess.Pin != "" {
		pipe.Set(ctx, pinKey(sess.Pin), sess.GameID, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return s.publish(ctx, sess.GameID, feedUpdate)
}

func (s *GameStore) MutateSession(ctx context.Context, gameID string, fn func(*domain.GameSession) error) (domain.GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.GetSession(ctx, gameID)
	if err != nil {
		return domain.GameSession{}, err
	}
	if err := fn(&sess); err != nil {
		return domain.GameSession{}, err
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return domain.GameSession{}, err
	}
	if err := s.client.Set(ctx, sessionKey(gameID), raw, 0).Err(); err != nil {
		return domain.GameSession{}, err
	}
	return sess, s.publish(ctx, gameID, feedUpdate)
}

func (s *GameStore) DeleteSession(ctx context.Context, gameID string) error {
	sess, err := s.GetSession(ctx, gameID)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey(gameID), playersKey(gameID), boardKey(gameID))
	if sess.Pin != "" {
		pipe.Del(ctx, pinKey(sess.Pin))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return s.publish(ctx, gameID, feedDeleted)
}

func (s *GameStore) FindByPin(ctx context.Context, pin string) (domain.GameSession, error) {
	gameID, err := s.client.Get(ctx, pinKey(pin)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.GameSession{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.GameSession{}, err
	}
	return s.GetSession(ctx, gameID)
}

// WatchSession subscribes to the game's feed channel. The current snapshot
// is delivered first; every published change triggers a re-read. Slow
// consumers lose intermediate snapshots, never the newest.
func (s *GameStore) WatchSession(ctx context.Context, gameID string) (<-chan game.Snapshot, func(), error) {
	initial, err := s.GetSession(ctx, gameID)
	if err != nil {
		return nil, nil, err
	}

	sub := s.client.Subscribe(ctx, feedKey(gameID))
	// Force the subscription onto the wire before reporting success, so a
	// change right after WatchSession returns cannot be missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan game.Snapshot, 8)
	out <- game.Snapshot{Session: initial}

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}

	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Payload == feedDeleted {
					emit(out, game.Snapshot{Deleted: true})
					return
				}
				sess, err := s.GetSession(ctx, gameID)
				if errors.Is(err, domain.ErrGameNotFound) {
					emit(out, game.Snapshot{Deleted: true})
					return
				}
				if err != nil {
					s.log.Warn().Err(err).Str("game_id", gameID).Msg("redis: snapshot re-read failed")
					continue
				}
				emit(out, game.Snapshot{Session: sess})
			}
		}
	}()

	return out, cancel, nil
}

func (s *GameStore) GetPlayer(ctx context.Context, gameID, playerID string) (domain.PlayerRecord, error) {
	raw, err := s.client.HGet(ctx, playersKey(gameID), playerID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PlayerRecord{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.PlayerRecord{}, err
	}
	var rec domain.PlayerRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.PlayerRecord{}, err
	}
	return rec, nil
}

func (s *GameStore) PutPlayer(ctx context.Context, gameID string, rec domain.PlayerRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, playersKey(gameID), rec.ID, raw).Err()
}

func (s *GameStore) ListPlayers(ctx context.Context, gameID string) ([]domain.PlayerRecord, error) {
	all, err := s.client.HGetAll(ctx, playersKey(gameID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.PlayerRecord, 0, len(all))
	for id, raw := range all {
		var rec domain.PlayerRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			s.log.Warn().Str("player_id", id).Msg("redis: skipping unreadable player record")
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *GameStore) GetLeaderboard(ctx context.Context, gameID string) (domain.Leaderboard, error) {
	raw, err := s.client.Get(ctx, boardKey(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Leaderboard{}, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return domain.Leaderboard{}, err
	}
	var lb domain.Leaderboard
	if err := json.Unmarshal(raw, &lb); err != nil {
		return domain.Leaderboard{}, err
	}
	return lb, nil
}

func (s *GameStore) PutLeaderboard(ctx context.Context, lb domain.Leaderboard) error {
	raw, err := json.Marshal(lb)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, boardKey(lb.GameID), raw, 0).Err()
}

func (s *GameStore) WriteMarker(ctx context.Context, markerID string) error {
	return markerScript.Run(ctx, s.client, []string{markerKey(markerID)}, markerTTL.Milliseconds()).Err()
}

func (s *GameStore) ReadMarker(ctx context.Context, markerID string) (time.Time, error) {
	raw, err := s.client.Get(ctx, markerKey(markerID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func (s *GameStore) DeleteMarker(ctx context.Context, markerID string) error {
	return s.client.Del(ctx, markerKey(markerID)).Err()
}

func (s *GameStore) publish(ctx context.Context, gameID, payload string) error {
	return s.client.Publish(ctx, feedKey(gameID), payload).Err()
}

func emit(ch chan game.Snapshot, snap game.Snapshot) {
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

func sessionKey(gameID string) string { return "game:" + gameID }
func playersKey(gameID string) string { return "game:" + gameID + ":players" }
func boardKey(gameID string) string   { return "game:" + gameID + ":board" }
func feedKey(gameID string) string    { return "game:" + gameID + ":feed" }
func pinKey(pin string) string        { return "game:pin:" + pin }
func markerKey(id string) string      { return "sync:marker:" + id }
