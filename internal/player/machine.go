// Package player implements the client-side real-time core: the state
// machine reconciling local UI state with the host's authoritative game
// state, the exactly-once answer submission pipeline, and reconnection.
package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"livequiz-player/internal/clocksync"
	"livequiz-player/internal/countdown"
	"livequiz-player/internal/domain"
	"livequiz-player/internal/game"
	"livequiz-player/internal/scorer"
	"livequiz-player/internal/session"
)

// Update is what observers (the UI) see after every consumed event.
type Update struct {
	State         State
	QuestionIndex int
	Remaining     int
	Score         int
	Streak        int
	// Rank is this player's standing from the latest leaderboard aggregate,
	// 0 until one has been observed.
	Rank int
	// Notice is a user-facing message, empty for routine updates.
	Notice string
}

// Config wires a Machine to its collaborators.
type Config struct {
	Store    game.Store
	Scorer   scorer.Scorer
	Sessions *session.Manager
	// GameID and Pin identify the game the player is looking at.
	GameID string
	Pin    string
	Log    zerolog.Logger
	// Clock defaults to the real clock; tests inject a fake.
	Clock clockwork.Clock
}

// Machine is one player's event loop. All state lives on the machine, never
// in package globals, so many machines can run in one process.
type Machine struct {
	store    game.Store
	scorer   scorer.Scorer
	sessions *session.Manager
	gameID   string
	pin      string
	log      zerolog.Logger
	clock    clockwork.Clock

	sync  *clocksync.Synchronizer
	timer *countdown.Countdown

	events  chan event
	updates chan Update

	mu        sync.Mutex
	fr        frame
	identity  domain.PlayerIdentity
	session   domain.GameSession
	record    domain.PlayerRecord
	offset    time.Duration
	rank      int
	submitted map[int]bool
	synced    bool
	watching  bool
}

// startWatchLocked subscribes to the shared game document exactly once.
func (m *Machine) startWatchLocked(ctx context.Context) {
	if m.watching {
		return
	}
	m.watching = true
	go m.watch(ctx)
}

func New(cfg Config) *Machine {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Machine{
		store:     cfg.Store,
		scorer:    cfg.Scorer,
		sessions:  cfg.Sessions,
		gameID:    cfg.GameID,
		pin:       cfg.Pin,
		log:       cfg.Log,
		clock:     clock,
		sync:      clocksync.NewWithClock(cfg.Store, cfg.Log, clock),
		timer:     countdown.New(cfg.Log, clock),
		events:    make(chan event, 64),
		updates:   make(chan Update, 64),
		fr:        frame{state: StateJoining, questionIndex: -1},
		submitted: make(map[int]bool),
	}
}

// Updates is the stream the UI renders from. Slow consumers lose the oldest
// update, never the newest.
func (m *Machine) Updates() <-chan Update {
	return m.updates
}

// State returns the current player state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fr.state
}

// Record returns the player's local copy of their own record.
func (m *Machine) Record() domain.PlayerRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record
}

// Identity returns the player identity once joined or resumed.
func (m *Machine) Identity() domain.PlayerIdentity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// Session returns the last observed game document.
func (m *Machine) Session() domain.GameSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Offset returns the currently applied clock offset.
func (m *Machine) Offset() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offset
}

// Join creates a fresh identity for this game and registers the player
// record. Used when no stored session matches the current pin.
func (m *Machine) Join(ctx context.Context, nickname string) error {
	sess, err := m.store.GetSession(ctx, m.gameID)
	if err != nil {
		return fmt.Errorf("joining game: %w", err)
	}
	if sess.Phase == domain.PhaseEnded {
		return domain.ErrGameEnded
	}

	identity := domain.PlayerIdentity{
		PlayerID: uuid.NewString(),
		GameID:   m.gameID,
		GamePin:  m.pin,
		Nickname: nickname,
	}
	rec := domain.PlayerRecord{ID: identity.PlayerID, Name: nickname, LastUpdated: m.clock.Now()}
	if err := m.store.PutPlayer(ctx, m.gameID, rec); err != nil {
		return fmt.Errorf("registering player: %w", err)
	}
	if err := m.sessions.Save(identity); err != nil {
		// A failed save only costs reload survival; the join itself holds.
		m.log.Warn().Err(err).Msg("player: session save failed, reloads will not resume")
	}

	m.mu.Lock()
	m.identity = identity
	m.mu.Unlock()

	m.post(evJoined{identity: identity, session: sess, record: rec})
	return nil
}

// Run drives the machine until the game ends, the session turns invalid, or
// ctx is cancelled. If a stored session matches the pin the machine starts
// in reconnecting; otherwise the caller is expected to have called Join.
func (m *Machine) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.fr.state == StateJoining && m.identity.PlayerID == "" {
		if id, ok := m.sessions.Get(m.pin); ok {
			m.fr.state = StateReconnecting
			go m.resume(ctx, id)
		}
	}
	start := m.fr.state
	m.mu.Unlock()
	m.publish(Update{State: start, QuestionIndex: -1})

	for {
		select {
		case <-ctx.Done():
			m.timer.Stop()
			return ctx.Err()
		case tick := <-m.timer.Ticks():
			m.step(ctx, evTick{index: tick.QuestionIndex, remaining: tick.Remaining})
		case ev := <-m.events:
			m.step(ctx, ev)
		}

		m.mu.Lock()
		state := m.fr.state
		m.mu.Unlock()
		if state.Terminal() || state == StateSessionInvalid {
			m.timer.Stop()
			return nil
		}
	}
}

// step consumes a single event: mutate local copies, run the pure reducer,
// then perform the side effects the transition implies. It is the only place
// machine state changes.
func (m *Machine) step(ctx context.Context, ev event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.fr
	notice := ""

	switch ev := ev.(type) {
	case evJoined:
		m.identity = ev.identity
		m.session = ev.session
		m.record = ev.record
		m.startWatchLocked(ctx)

	case evResume:
		if ev.state != StateSessionInvalid && ev.state != StateEnded {
			m.identity = ev.identity
			m.session = ev.session
			m.record = ev.record
			if ev.answered {
				m.submitted[ev.session.CurrentQuestionIndex] = true
			}
			m.startWatchLocked(ctx)
			if !m.synced {
				m.synced = true
				go m.estimateOffset(ctx)
			}
		}

	case evSnapshot:
		if !ev.snap.Deleted {
			m.session = ev.snap.Session
		}

	case evOffset:
		m.offset = ev.offset

	case evSubmit:
		if !m.acceptSubmitLocked(ctx, ev.payload) {
			return
		}

	case evScored:
		notice = m.reconcileLocked(ev)

	case evBoard:
		m.applyBoardLocked(ev)

	case evTick:
		// State handling happens in the reducer; a zero tick that causes a
		// timeout transition records the local result below.
	}

	next := reduce(old, ev)
	m.fr = next

	// Timeout detected by the reducer: record a local zero-point result,
	// no scorer round trip.
	if tick, ok := ev.(evTick); ok && !old.answered && next.answered {
		m.recordTimeoutLocked(ctx, tick.index)
	}

	// A freshly estimated offset re-anchors a countdown already running.
	if _, ok := ev.(evOffset); ok && next.state == StateQuestion && !next.answered {
		m.startQuestionLocked(next.questionIndex)
	}

	m.applyTransitionLocked(ctx, old, next)
	m.publishLocked(notice)
}

// applyTransitionLocked performs the timer and lifecycle side effects of a
// state change.
func (m *Machine) applyTransitionLocked(ctx context.Context, old, next frame) {
	if old == next {
		return
	}
	m.log.Debug().
		Str("from", string(old.state)).
		Str("to", string(next.state)).
		Int("question_index", next.questionIndex).
		Msg("player: transition")

	entering := next.state != old.state || next.questionIndex != old.questionIndex

	if next.state == StateQuestion && entering {
		m.startQuestionLocked(next.questionIndex)
	}
	if old.state == StateQuestion && next.state != StateQuestion {
		m.timer.Stop()
	}

	// Front-load the clock sync cost during the lobby wait, off the
	// timing-critical path. Re-estimated once more after a resume.
	if next.state == StateLobby && !m.synced {
		m.synced = true
		go m.estimateOffset(ctx)
	}

	// The result screen shows the standing the external aggregation computed,
	// not a locally derived one. Best-effort: a failed fetch keeps the last
	// known rank.
	if next.state == StateResult && old.state != StateResult {
		go m.fetchLeaderboard(ctx)
	}

	if next.state.Terminal() || next.state == StateSessionInvalid {
		m.timer.Stop()
		m.sessions.Clear(m.pin)
	}
}

// startQuestionLocked arms the countdown for the current question. Slides
// are passively viewed: no timer, no timeout transition.
func (m *Machine) startQuestionLocked(index int) {
	q, ok := m.session.CurrentQuestion()
	if !ok || m.session.CurrentQuestionIndex != index {
		m.log.Warn().Int("question_index", index).Msg("player: question state without matching question")
		return
	}
	if !q.Type.Answerable() || q.TimeLimitSeconds <= 0 {
		return
	}
	startAt := m.session.QuestionStartTime
	if startAt.IsZero() {
		startAt = m.clock.Now()
	}
	m.timer.Start(index, q.TimeLimitSeconds, startAt, m.offset)
}

// recordTimeoutLocked writes the "timed out, zero points" answer locally and
// pushes it to the player's own record best-effort.
func (m *Machine) recordTimeoutLocked(ctx context.Context, index int) {
	m.submitted[index] = true
	rec := domain.AnswerRecord{
		QuestionIndex: index,
		Timestamp:     m.clock.Now(),
		WasTimeout:    true,
		Confirmed:     true,
	}
	if q, ok := m.session.CurrentQuestion(); ok && m.session.CurrentQuestionIndex == index {
		rec.QuestionType = q.Type
	}
	m.record.SetAnswer(rec)
	m.log.Debug().Int("question_index", index).Msg("player: question timed out locally")

	go m.writeOwnRecord(ctx, m.record)
}

func (m *Machine) writeOwnRecord(ctx context.Context, rec domain.PlayerRecord) {
	if err := m.store.PutPlayer(ctx, m.identity.GameID, rec); err != nil {
		m.log.Warn().Err(err).Msg("player: best-effort record write failed")
	}
}

// fetchLeaderboard reads the aggregate standings document and feeds it back
// in as an event.
func (m *Machine) fetchLeaderboard(ctx context.Context) {
	lb, err := m.store.GetLeaderboard(ctx, m.identity.GameID)
	m.post(evBoard{board: lb, err: err})
}

// applyBoardLocked picks this player's entry out of the standings. A fetch
// failure is tolerated: the rank simply stays at its last known value.
func (m *Machine) applyBoardLocked(ev evBoard) {
	if ev.err != nil {
		m.log.Debug().Err(ev.err).Msg("player: leaderboard fetch failed")
		return
	}
	for _, e := range ev.board.Entries {
		if e.PlayerID == m.identity.PlayerID {
			m.rank = e.Rank
			return
		}
	}
}

// estimateOffset runs the clock sync probe and feeds the result back in as
// an event; a running countdown is re-anchored by the step handler.
func (m *Machine) estimateOffset(ctx context.Context) {
	offset := m.sync.EstimateOffset(ctx)
	m.post(evOffset{offset: offset})
}

// watch pumps store snapshots into the event loop until the game document
// disappears or ctx is cancelled.
func (m *Machine) watch(ctx context.Context) {
	ch, cancel, err := m.store.WatchSession(ctx, m.identity.GameID)
	if err != nil {
		m.log.Warn().Err(err).Msg("player: watch failed, treating game as gone")
		m.post(evSnapshot{snap: game.Snapshot{Deleted: true}})
		return
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			m.post(evSnapshot{snap: snap})
		}
	}
}

func (m *Machine) post(ev event) {
	select {
	case m.events <- ev:
	default:
		// The loop has fallen far behind; dropping the oldest event keeps
		// the newest authoritative input flowing.
		select {
		case <-m.events:
		default:
		}
		m.events <- ev
	}
}

func (m *Machine) publish(u Update) {
	select {
	case m.updates <- u:
	default:
		select {
		case <-m.updates:
		default:
		}
		m.updates <- u
	}
}

func (m *Machine) publishLocked(notice string) {
	m.publish(Update{
		State:         m.fr.state,
		QuestionIndex: m.fr.questionIndex,
		Remaining:     m.timer.Remaining(),
		Score:         m.record.Score,
		Streak:        m.record.CurrentStreak,
		Rank:          m.rank,
		Notice:        notice,
	})
}
