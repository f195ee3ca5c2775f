package scorer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"livequiz-player/internal/domain"
	"livequiz-player/internal/game"
)

const (
	defaultBasePoints = 1000
	// submissions racing the phase change get this much slack past the limit
	deadlineGrace = 2
)

// Engine is the reference scorer. It is idempotent on (playerId,
// questionIndex): a repeated request returns the already-recorded result
// without touching the score again.
type Engine struct {
	store game.Store
	clock clockwork.Clock
	log   zerolog.Logger
}

func NewEngine(store game.Store, log zerolog.Logger) *Engine {
	return NewEngineWithClock(store, log, clockwork.NewRealClock())
}

// NewEngineWithClock allows deterministic deadlines in tests.
func NewEngineWithClock(store game.Store, log zerolog.Logger, clock clockwork.Clock) *Engine {
	return &Engine{store: store, clock: clock, log: log}
}

func (e *Engine) SubmitAnswer(ctx context.Context, req Request) (Response, error) {
	session, err := e.store.GetSession(ctx, req.GameID)
	if err != nil {
		if errors.Is(err, domain.ErrGameNotFound) {
			return Response{}, fmt.Errorf("%w: game gone", domain.ErrFailedPrecondition)
		}
		return Response{}, fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}

	if session.Phase != domain.PhaseQuestion {
		return Response{}, fmt.Errorf("%w: phase is %s", domain.ErrFailedPrecondition, session.Phase)
	}
	if req.QuestionIndex != session.CurrentQuestionIndex {
		return Response{}, fmt.Errorf("%w: question index moved on", domain.ErrFailedPrecondition)
	}
	question, ok := session.CurrentQuestion()
	if !ok || question.Type != req.QuestionType || !req.Payload.Matches(question.Type) {
		return Response{}, fmt.Errorf("%w: question/payload mismatch", domain.ErrFailedPrecondition)
	}
	if !question.Type.Answerable() {
		return Response{}, fmt.Errorf("%w: slide content is not answerable", domain.ErrFailedPrecondition)
	}

	limit := question.TimeLimitSeconds
	remaining := clampRemaining(req.TimeRemaining, limit, session, e.clock.Now().Sub(session.QuestionStartTime))
	if limit > 0 && remaining < 0 {
		return Response{}, fmt.Errorf("%w: answer arrived after the time limit", domain.ErrDeadlineExceeded)
	}

	rec, err := e.store.GetPlayer(ctx, req.GameID, req.PlayerID)
	if err != nil {
		if errors.Is(err, domain.ErrPlayerNotFound) {
			return Response{}, fmt.Errorf("%w: not a member of this game", domain.ErrUnauthenticated)
		}
		return Response{}, fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}

	// Idempotent replay: the answer was already confirmed, return the same
	// result without re-adding score.
	if existing, found := rec.AnswerFor(req.QuestionIndex); found && existing.Confirmed {
		return Response{
			Points:             existing.Points,
			NewScore:           rec.Score,
			IsCorrect:          existing.IsCorrect,
			IsPartiallyCorrect: existing.IsPartiallyCorrect,
		}, nil
	}

	points, correct, partial := scoreAnswer(question, req.Payload, remaining, limit)

	rec.Score += points
	if question.Type.Scored() {
		if correct {
			rec.CurrentStreak++
		} else {
			rec.CurrentStreak = 0
		}
	}
	rec.LastUpdated = e.clock.Now()
	rec.SetAnswer(domain.AnswerRecord{
		QuestionIndex:      req.QuestionIndex,
		QuestionType:       question.Type,
		Timestamp:          e.clock.Now(),
		Payload:            req.Payload,
		Points:             points,
		IsCorrect:          correct,
		IsPartiallyCorrect: partial,
		Confirmed:          true,
	})

	if err := e.store.PutPlayer(ctx, req.GameID, rec); err != nil {
		return Response{}, fmt.Errorf("%w: persisting result: %v", domain.ErrInternal, err)
	}

	e.log.Debug().
		Str("player_id", req.PlayerID).
		Int("question_index", req.QuestionIndex).
		Int("points", points).
		Bool("correct", correct).
		Msg("scorer: answer recorded")

	return Response{
		Points:             points,
		NewScore:           rec.Score,
		IsCorrect:          correct,
		IsPartiallyCorrect: partial,
	}, nil
}

// clampRemaining bounds the client-reported remaining time by what the
// server-stamped start instant allows, with a small grace window. Returns a
// negative value when the deadline has truly passed.
func clampRemaining(reported, limit int, session domain.GameSession, elapsed time.Duration) int {
	if limit <= 0 {
		return reported
	}
	serverRemaining := limit - int(elapsed.Seconds())
	if session.QuestionStartTime.IsZero() {
		serverRemaining = limit
	}
	if reported <= 0 || serverRemaining+deadlineGrace <= 0 {
		return -1
	}
	if reported > serverRemaining+deadlineGrace {
		reported = serverRemaining
	}
	if reported > limit {
		reported = limit
	}
	return reported
}

// scoreAnswer applies the per-type rule and the shared time-decay factor.
func scoreAnswer(q domain.Question, p domain.AnswerPayload, remaining, limit int) (points int, correct, partial bool) {
	base := q.Points
	if base == 0 {
		base = defaultBasePoints
	}

	switch q.Type {
	case domain.QuestionSingleChoice:
		if p.Choice == q.CorrectChoice {
			return decay(base, remaining, limit), true, false
		}
		return 0, false, false

	case domain.QuestionMultiChoice:
		prop := multiChoiceProportion(q.CorrectChoices, p.Choices)
		if prop <= 0 {
			return 0, false, false
		}
		pts := int(math.Round(float64(decay(base, remaining, limit)) * prop))
		return pts, prop >= 1, prop > 0 && prop < 1

	case domain.QuestionSlider:
		credit := sliderCredit(q.CorrectValue, q.Tolerance, p.Value)
		if credit <= 0 {
			return 0, false, false
		}
		pts := int(math.Round(float64(decay(base, remaining, limit)) * credit))
		return pts, credit >= 1, credit > 0 && credit < 1

	case domain.QuestionFreeText:
		if freeTextMatches(q, p.Text) {
			return decay(base, remaining, limit), true, false
		}
		return 0, false, false

	default:
		// Polls measure opinion, not correctness.
		return 0, false, false
	}
}

// decay scales base points by 0.5 + 0.5 * remaining/limit, so an instant
// answer earns full points and a last-moment one earns half.
func decay(base, remaining, limit int) int {
	if limit <= 0 {
		return base
	}
	if remaining < 0 {
		remaining = 0
	}
	if remaining > limit {
		remaining = limit
	}
	factor := 0.5 + 0.5*float64(remaining)/float64(limit)
	return int(math.Round(float64(base) * factor))
}

// multiChoiceProportion is max(0, correctSelected-wrongSelected)/totalCorrect.
func multiChoiceProportion(correct, selected []int) float64 {
	if len(correct) == 0 {
		return 0
	}
	correctSet := make(map[int]struct{}, len(correct))
	for _, c := range correct {
		correctSet[c] = struct{}{}
	}
	hits, misses := 0, 0
	seen := make(map[int]struct{}, len(selected))
	for _, s := range selected {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		if _, ok := correctSet[s]; ok {
			hits++
		} else {
			misses++
		}
	}
	prop := float64(hits-misses) / float64(len(correct))
	if prop < 0 {
		return 0
	}
	return prop
}

// sliderCredit gives full credit inside the tolerance band and linear
// partial credit decaying to zero at ten tolerances out.
func sliderCredit(correct, tolerance, value float64) float64 {
	dist := math.Abs(value - correct)
	if dist <= tolerance {
		return 1
	}
	if tolerance <= 0 {
		return 0
	}
	span := tolerance * 10
	if dist >= span {
		return 0
	}
	return 1 - (dist-tolerance)/(span-tolerance)
}

func freeTextMatches(q domain.Question, text string) bool {
	normalize := func(s string) string {
		s = strings.TrimSpace(s)
		if !q.CaseSensitive {
			s = strings.ToLower(s)
		}
		return s
	}
	given := normalize(text)
	candidates := append([]string{q.CorrectText}, q.Alternates...)
	for _, c := range candidates {
		want := normalize(c)
		if given == want {
			return true
		}
		if q.TypoTolerance > 0 && levenshtein(given, want) <= q.TypoTolerance {
			return true
		}
	}
	return false
}

// levenshtein is a plain two-row edit distance; answers are short strings.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return utf8.RuneCountInString(b)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
