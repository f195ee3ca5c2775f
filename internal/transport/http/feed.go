package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"livequiz-player/internal/game"
)

// DialFeed connects to a server's snapshot feed and adapts it into the same
// channel shape the stores produce, so a machine can watch a remote game it
// has no store access to.
func DialFeed(ctx context.Context, baseURL, gameID string) (<-chan game.Snapshot, func(), error) {
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/v1/game/feed?gameId=" + gameID
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, nil, fmt.Errorf("dialing feed: game %s not found", gameID)
		}
		return nil, nil, fmt.Errorf("dialing feed: %w", err)
	}

	out := make(chan game.Snapshot, 8)
	var once sync.Once
	cancel := func() {
		once.Do(func() { _ = conn.Close() })
	}

	go func() {
		defer close(out)
		defer cancel()
		for {
			var msg feedMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch {
			case msg.Type == "deleted":
				emitSnapshot(out, game.Snapshot{Deleted: true})
				return
			case msg.Session != nil:
				emitSnapshot(out, game.Snapshot{Session: *msg.Session})
			}
		}
	}()

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return out, cancel, nil
}

func emitSnapshot(ch chan game.Snapshot, snap game.Snapshot) {
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
