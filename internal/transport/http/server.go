// Package http exposes the platform over HTTP: the authoritative answer
// scoring endpoint, pin lookup, and a websocket feed of sanitized game
// snapshots.
package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"livequiz-player/internal/domain"
	"livequiz-player/internal/game"
	"livequiz-player/internal/scorer"
)

type Server struct {
	store    game.Store
	scorer   scorer.Scorer
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewServer(store game.Store, sc scorer.Scorer, log zerolog.Logger) *Server {
	return &Server{
		store:  store,
		scorer: sc,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/answers:submit", s.handleSubmit)
	mux.HandleFunc("/v1/game", s.handleFindGame)
	mux.HandleFunc("/v1/game/feed", s.handleFeed)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleSubmit is the authoritative scoring endpoint. Failures carry a
// categorical code so clients can classify them without string matching.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req scorer.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid-argument", Message: "malformed request body"})
		return
	}

	resp, err := s.scorer.SubmitAnswer(r.Context(), req)
	if err != nil {
		code := domain.ErrorCode(err)
		s.log.Info().
			Str("code", code).
			Str("game_id", req.GameID).
			Int("question_index", req.QuestionIndex).
			Msg("http: answer rejected")
		writeJSON(w, statusFor(code), errorBody{Code: code, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleFindGame resolves a pin to the sanitized game document.
func (s *Server) handleFindGame(w http.ResponseWriter, r *http.Request) {
	pin := r.URL.Query().Get("pin")
	if pin == "" {
		http.Error(w, "missing pin", http.StatusBadRequest)
		return
	}
	admin, ok := s.store.(game.AdminStore)
	if !ok {
		http.Error(w, "pin lookup unavailable", http.StatusNotImplemented)
		return
	}
	sess, err := admin.FindByPin(r.Context(), pin)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Code: "not-found", Message: "no game with that pin"})
		return
	}
	writeJSON(w, http.StatusOK, sanitizeSession(sess))
}

type feedMessage struct {
	Type    string              `json:"type"`
	Session *domain.GameSession `json:"session,omitempty"`
}

// handleFeed upgrades to a websocket and streams sanitized snapshots. One
// writer goroutine owns the connection; the read loop only detects close.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("gameId")
	if gameID == "" {
		http.Error(w, "missing gameId", http.StatusBadRequest)
		return
	}

	snapshots, cancelWatch, err := s.store.WatchSession(r.Context(), gameID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Code: "not-found", Message: "game not found"})
		return
	}
	defer cancelWatch()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("http: ws upgrade failed")
		return
	}
	defer conn.Close()

	send := make(chan feedMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	pumpDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				s.log.Debug().Err(err).Msg("http: ws write failed")
				return
			}
		}
	}()

	go func() {
		defer close(pumpDone)
		for {
			select {
			case snap, ok := <-snapshots:
				if !ok {
					return
				}
				msg := feedMessage{Type: "snapshot"}
				if snap.Deleted {
					msg.Type = "deleted"
				} else {
					clean := sanitizeSession(snap.Session)
					msg.Session = &clean
				}
				select {
				case send <- msg:
				case <-closeSignals:
					return
				}
				if snap.Deleted {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	// Read loop: the client never sends application messages; an error here
	// means the peer went away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(closeSignals)
	<-pumpDone
	close(send)
	<-writerDone
}

// sanitizeSession strips the scoring key before a document crosses to a
// player client.
func sanitizeSession(s domain.GameSession) domain.GameSession {
	qs := make([]domain.Question, len(s.Questions))
	copy(qs, s.Questions)
	for i := range qs {
		qs[i].CorrectChoice = 0
		qs[i].CorrectChoices = nil
		qs[i].CorrectValue = 0
		qs[i].Tolerance = 0
		qs[i].CorrectText = ""
		qs[i].Alternates = nil
		qs[i].TypoTolerance = 0
	}
	s.Questions = qs
	return s
}

func statusFor(code string) int {
	switch code {
	case "unauthenticated":
		return http.StatusUnauthorized
	case "deadline-exceeded":
		return http.StatusBadRequest
	case "failed-precondition":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
