package player

import (
	"context"
	"errors"

	"livequiz-player/internal/domain"
)

// resume recovers a stored identity into a live machine state. Every failure
// path clears the stored session and lands somewhere definite; the machine is
// never left stuck in reconnecting.
func (m *Machine) resume(ctx context.Context, id domain.PlayerIdentity) {
	invalid := func(reason string, err error) {
		m.log.Warn().Err(err).Str("reason", reason).Msg("player: resume failed, session invalid")
		m.sessions.Clear(m.pin)
		m.post(evResume{state: StateSessionInvalid})
	}

	sess, err := m.store.GetSession(ctx, id.GameID)
	if errors.Is(err, domain.ErrGameNotFound) {
		invalid("game no longer exists", err)
		return
	}
	if err != nil {
		invalid("session read failed", err)
		return
	}
	if sess.Phase == domain.PhaseEnded {
		m.sessions.Clear(m.pin)
		m.post(evResume{state: StateEnded, session: sess})
		return
	}

	rec, err := m.store.GetPlayer(ctx, id.GameID, id.PlayerID)
	if errors.Is(err, domain.ErrPlayerNotFound) {
		// The server record was purged (host cleanup). Degrade to "rejoin
		// with no history" under the same playerId instead of failing.
		rec = domain.PlayerRecord{ID: id.PlayerID, Name: id.Nickname, LastUpdated: m.clock.Now()}
		if putErr := m.store.PutPlayer(ctx, id.GameID, rec); putErr != nil {
			invalid("recreating purged record failed", putErr)
			return
		}
		m.log.Info().Str("player_id", id.PlayerID).Msg("player: server record was purged, recreated fresh")
	} else if err != nil {
		invalid("player record read failed", err)
		return
	}

	_, answered := rec.AnswerFor(sess.CurrentQuestionIndex)
	m.log.Info().
		Str("player_id", id.PlayerID).
		Str("phase", string(sess.Phase)).
		Msg("player: resumed stored session")

	m.post(evResume{
		state:    mapPhase(sess.Phase),
		identity: id,
		session:  sess,
		record:   rec,
		answered: answered,
	})
}
