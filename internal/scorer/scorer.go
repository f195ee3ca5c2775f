// Package scorer holds the submitAnswer boundary: the client-side interface
// plus the reference server-side engine that owns the correct-answer keys.
package scorer

import (
	"context"

	"livequiz-player/internal/domain"
)

// Request is the wire shape of one submitAnswer call.
type Request struct {
	GameID            string               `json:"gameId"`
	PlayerID          string               `json:"playerId"`
	QuestionIndex     int                  `json:"questionIndex"`
	QuestionType      domain.QuestionType  `json:"questionType"`
	QuestionTimeLimit int                  `json:"questionTimeLimit"`
	TimeRemaining     int                  `json:"timeRemaining"`
	Payload           domain.AnswerPayload `json:"payload"`
}

// Response carries the authoritative scoring result. NewScore is the total
// after this answer; clients display it verbatim instead of adding points
// locally, so a server-side retry can never double-count.
type Response struct {
	Points             int  `json:"points"`
	NewScore           int  `json:"newScore"`
	IsCorrect          bool `json:"isCorrect"`
	IsPartiallyCorrect bool `json:"isPartiallyCorrect,omitempty"`
}

// Scorer is the callable scoring endpoint. Errors are the categorical
// sentinels in internal/domain.
type Scorer interface {
	SubmitAnswer(ctx context.Context, req Request) (Response, error)
}
