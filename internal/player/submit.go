package player

import (
	"context"
	"errors"

	"livequiz-player/internal/domain"
	"livequiz-player/internal/scorer"
)

// User-facing submission failure messages (see the error taxonomy in the
// package docs). None of these are retried automatically: the client cannot
// distinguish "rejected before processing" from "processed, response lost".
const (
	noticeTooLate      = "Your answer arrived too late and was not counted."
	noticeStateChanged = "Your answer was not accepted: the game state changed."
	noticeNotMember    = "You are no longer part of this game."
	noticeSubmitFailed = "Could not submit your answer; your score may not be saved."
)

// Submit hands an answer for the active question to the event loop. The call
// never blocks; duplicate calls for the same question are no-ops.
func (m *Machine) Submit(payload domain.AnswerPayload) {
	m.post(evSubmit{payload: payload})
}

// acceptSubmitLocked is step 1-3 of the submission protocol: set the
// idempotency guard before any I/O, append the optimistic zero-point record,
// and fire the scorer call. Returns false when the submission is a no-op.
func (m *Machine) acceptSubmitLocked(ctx context.Context, payload domain.AnswerPayload) bool {
	if m.fr.state != StateQuestion || m.fr.answered {
		return false
	}
	index := m.fr.questionIndex
	if m.submitted[index] {
		return false
	}
	q, ok := m.session.CurrentQuestion()
	if !ok || m.session.CurrentQuestionIndex != index || !q.Type.Answerable() {
		return false
	}
	if !payload.Matches(q.Type) {
		m.log.Warn().
			Str("payload_kind", string(payload.Kind)).
			Str("question_type", string(q.Type)).
			Msg("player: payload kind does not match question, dropping")
		return false
	}

	// Guard first; everything after this line happens at most once per index.
	m.submitted[index] = true

	remaining := m.timer.Remaining()

	// Optimistic append: zero points, unconfirmed. The correct-answer key is
	// not available client-side, so provisional means "recorded, unscored".
	m.record.SetAnswer(domain.AnswerRecord{
		QuestionIndex: index,
		QuestionType:  q.Type,
		Timestamp:     m.clock.Now(),
		Payload:       payload,
		Confirmed:     false,
	})
	go m.writeOwnRecord(ctx, m.record)

	req := scorer.Request{
		GameID:            m.identity.GameID,
		PlayerID:          m.identity.PlayerID,
		QuestionIndex:     index,
		QuestionType:      q.Type,
		QuestionTimeLimit: q.TimeLimitSeconds,
		TimeRemaining:     remaining,
		Payload:           payload,
	}
	go func() {
		resp, err := m.scorer.SubmitAnswer(ctx, req)
		m.post(evScored{index: index, resp: resp, err: err})
	}()
	return true
}

// reconcileLocked is step 4-5: overwrite the single optimistic record in
// place with authoritative values, or classify the failure. The guard is
// never cleared on failure. Returns the user-facing notice, if any.
func (m *Machine) reconcileLocked(ev evScored) string {
	if ev.index != m.fr.questionIndex {
		// The host advanced while the response was in flight; applying it
		// to the new question's display would be worse than dropping it.
		m.log.Debug().
			Int("response_index", ev.index).
			Int("current_index", m.fr.questionIndex).
			Msg("player: discarding scorer response for a stale question index")
		return ""
	}

	if ev.err != nil {
		return m.classifyFailureLocked(ev)
	}

	rec, ok := m.record.AnswerFor(ev.index)
	if !ok {
		m.log.Warn().Int("question_index", ev.index).Msg("player: scored response without optimistic record")
		return ""
	}
	rec.Points = ev.resp.Points
	rec.IsCorrect = ev.resp.IsCorrect
	rec.IsPartiallyCorrect = ev.resp.IsPartiallyCorrect
	rec.Confirmed = true
	m.record.SetAnswer(rec)

	// Displayed score comes from newScore, never local addition, so a
	// server-side replay can never double-count.
	m.record.Score = ev.resp.NewScore
	if ev.resp.IsCorrect {
		m.record.CurrentStreak++
	} else {
		m.record.CurrentStreak = 0
	}

	m.log.Debug().
		Int("question_index", ev.index).
		Int("points", ev.resp.Points).
		Int("new_score", ev.resp.NewScore).
		Msg("player: answer reconciled")
	return ""
}

func (m *Machine) classifyFailureLocked(ev evScored) string {
	switch {
	case errors.Is(ev.err, domain.ErrDeadlineExceeded):
		// The rejection confirms no score was granted; the local record
		// stays as submitted-but-unscored.
		m.log.Info().Int("question_index", ev.index).Msg("player: answer rejected as too late")
		return noticeTooLate
	case errors.Is(ev.err, domain.ErrFailedPrecondition):
		// The host-state subscription will correct the displayed state on
		// its own shortly.
		m.log.Info().Int("question_index", ev.index).Msg("player: answer rejected, game state changed")
		return noticeStateChanged
	case errors.Is(ev.err, domain.ErrUnauthenticated):
		m.log.Warn().Int("question_index", ev.index).Msg("player: answer rejected as unauthenticated")
		return noticeNotMember
	default:
		m.log.Error().Err(ev.err).Int("question_index", ev.index).Msg("player: answer submission failed")
		return noticeSubmitFailed
	}
}
