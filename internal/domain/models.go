package domain

import "time"

// HostPhase is the host-controlled phase of a running game. Only the host
// advances it; player clients treat it as read-only input.
type HostPhase string

const (
	PhaseLobby       HostPhase = "lobby"
	PhasePreparing   HostPhase = "preparing"
	PhaseQuestion    HostPhase = "question"
	PhaseLeaderboard HostPhase = "leaderboard"
	PhaseEnded       HostPhase = "ended"
)

// QuestionType discriminates the answer payload shape and the scoring rule.
type QuestionType string

const (
	QuestionSingleChoice QuestionType = "single-choice"
	QuestionMultiChoice  QuestionType = "multiple-choice"
	QuestionSlider       QuestionType = "slider"
	QuestionFreeText     QuestionType = "free-response"
	QuestionPollSingle   QuestionType = "poll-single"
	QuestionPollMulti    QuestionType = "poll-multiple"
	// QuestionSlide is informational content. It is never answered, never
	// scored, and never times out.
	QuestionSlide QuestionType = "slide"
)

// Scored reports whether a correct answer of this type can earn points.
func (t QuestionType) Scored() bool {
	switch t {
	case QuestionSingleChoice, QuestionMultiChoice, QuestionSlider, QuestionFreeText:
		return true
	}
	return false
}

// Poll reports whether this type collects opinions only (always 0 points).
func (t QuestionType) Poll() bool {
	return t == QuestionPollSingle || t == QuestionPollMulti
}

// Answerable reports whether players submit anything at all for this type.
func (t QuestionType) Answerable() bool {
	return t != QuestionSlide
}

// Question is one entry of a game's immutable question snapshot. The
// correct-answer fields never leave the server side; player clients receive
// the snapshot with those fields zeroed.
type Question struct {
	Type             QuestionType `json:"type"`
	Prompt           string       `json:"prompt"`
	Choices          []string     `json:"choices,omitempty"`
	TimeLimitSeconds int          `json:"timeLimitSeconds,omitempty"`
	Points           int          `json:"points,omitempty"` // base points, defaults to 1000 if zero

	// Scoring key, server-side only.
	CorrectChoice  int      `json:"correctChoice,omitempty"`
	CorrectChoices []int    `json:"correctChoices,omitempty"`
	CorrectValue   float64  `json:"correctValue,omitempty"`
	Tolerance      float64  `json:"tolerance,omitempty"`
	CorrectText    string   `json:"correctText,omitempty"`
	Alternates     []string `json:"alternates,omitempty"`
	CaseSensitive  bool     `json:"caseSensitive,omitempty"`
	TypoTolerance  int      `json:"typoTolerance,omitempty"` // max edit distance accepted for free text
}

// GameSession is the shared game document. Control fields (Phase,
// CurrentQuestionIndex, QuestionStartTime) are single-writer: only the host
// mutates them. CurrentQuestionIndex is -1 until the first question and only
// ever moves forward; QuestionStartTime is stamped exactly once per index.
type GameSession struct {
	GameID               string     `json:"gameId"`
	Pin                  string     `json:"pin"`
	HostID               string     `json:"hostId"`
	Phase                HostPhase  `json:"phase"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	QuestionStartTime    time.Time  `json:"questionStartTime"`
	Questions            []Question `json:"questions"`
}

// CurrentQuestion returns the active question, if any.
func (s GameSession) CurrentQuestion() (Question, bool) {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.CurrentQuestionIndex], true
}

// PlayerIdentity is the durable (player, game, nickname) tuple a client keeps
// across reloads. It is the reconnection key and lives only on the device.
type PlayerIdentity struct {
	PlayerID string `json:"playerId"`
	GameID   string `json:"gameId"`
	GamePin  string `json:"gamePin"`
	Nickname string `json:"nickname"`
}

// PlayerRecord is a player's server-held record. The owning client writes the
// optimistic fields; the scorer writes the authoritative ones. Answers are
// append-only and hold at most one entry per question index.
type PlayerRecord struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Score         int            `json:"score"`
	CurrentStreak int            `json:"currentStreak"`
	Answers       []AnswerRecord `json:"answers"`
	LastUpdated   time.Time      `json:"lastUpdated"`
}

// AnswerFor returns the answer record for a question index, if present.
func (r PlayerRecord) AnswerFor(index int) (AnswerRecord, bool) {
	for _, a := range r.Answers {
		if a.QuestionIndex == index {
			return a, true
		}
	}
	return AnswerRecord{}, false
}

// SetAnswer appends the record for its question index, or overwrites the
// existing one in place. There is never more than one entry per index.
func (r *PlayerRecord) SetAnswer(rec AnswerRecord) {
	for i := range r.Answers {
		if r.Answers[i].QuestionIndex == rec.QuestionIndex {
			r.Answers[i] = rec
			return
		}
	}
	r.Answers = append(r.Answers, rec)
}

// AnswerRecord is a player's answer to one question. It is created
// optimistically with zero points and updated in place exactly once when the
// scorer responds; Confirmed tags which of the two stages it is in.
type AnswerRecord struct {
	QuestionIndex      int           `json:"questionIndex"`
	QuestionType       QuestionType  `json:"questionType"`
	Timestamp          time.Time     `json:"timestamp"`
	Payload            AnswerPayload `json:"payload"`
	Points             int           `json:"points"`
	IsCorrect          bool          `json:"isCorrect"`
	IsPartiallyCorrect bool          `json:"isPartiallyCorrect,omitempty"`
	WasTimeout         bool          `json:"wasTimeout,omitempty"`
	Confirmed          bool          `json:"confirmed"`
}

// LeaderboardEntry is one row of the externally computed standings feed.
type LeaderboardEntry struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
	Streak   int    `json:"streak"`
}

// Leaderboard is the aggregate standings document. The player core only
// reads it; computation happens host-side.
type Leaderboard struct {
	GameID    string             `json:"gameId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
