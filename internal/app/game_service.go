package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"open-trivia-rounds/internal/domain"
	"open-trivia-rounds/internal/game"
	"open-trivia-rounds/internal/timer"
)

// SessionRepository abstracts where live tab sessions are held (in-memory, Redis, etc).
type SessionRepository interface {
	GetOrCreate(id string) (*Slot, bool)
	Get(id string) (*Slot, bool)
	Delete(id string)
	Idle(before time.Time) []string
	Publish(ctx context.Context, u Update) error
}

// SnapshotLoader is implemented by stores that can read sessions held by
// another instance.
type SnapshotLoader interface {
	Load(ctx context.Context, id string) (Update, error)
}

// SnapshotWatcher is implemented by stores that can follow sessions held by
// another instance.
type SnapshotWatcher interface {
	Watch(ctx context.Context, id string) (<-chan Update, func(), error)
}

// CategoryRepository lists the trivia categories on offer.
type CategoryRepository interface {
	Categories(ctx context.Context) ([]domain.Category, error)
}

// QuestionSource fetches the questions for one round.
type QuestionSource interface {
	FetchQuestions(ctx context.Context, amount, categoryID int, level domain.Difficulty) ([]domain.Question, error)
}

// Recorder observes service activity; telemetry.Metrics implements it.
type Recorder interface {
	Transition(action string, err error)
	TimedOut()
	SessionOpened()
	SessionClosed()
}

type nopRecorder struct{}

func (nopRecorder) Transition(string, error) {}
func (nopRecorder) TimedOut() {}
func (nopRecorder) SessionOpened() {}
func (nopRecorder) SessionClosed() {}

const (
	EventOpened          = "opened"
	EventStarted         = "started"
	EventCategoryChosen  = "categorySelected"
	EventQuestionStarted = "questionStarted"
	EventAnswered        = "answered"
	EventSkipped         = "skipped"
	EventTimedOut        = "timedOut"
	EventRoundCompleted  = "roundCompleted"
	EventRoundAdvanced   = "roundAdvanced"
	EventFinished        = "finished"
	EventReset           = "reset"
)

// GameService contains the trivia game use cases for every open tab.
type GameService struct {
	sessions   SessionRepository
	categories CategoryRepository
	questions  QuestionSource
	machine    *game.Machine
	recorder   Recorder
	now        func() time.Time
}

type Option func(*GameService)

func WithRecorder(r Recorder) Option {
	return func(s *GameService) { s.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *GameService) { s.now = now }
}

func NewGameService(store SessionRepository, categories CategoryRepository, questions QuestionSource, machine *game.Machine, opts ...Option) *GameService {
	s := &GameService{
		sessions:   store,
		categories: categories,
		questions:  questions,
		machine:    machine,
		recorder:   nopRecorder{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartParams configures a new game.
type StartParams struct {
	PlayerName        string            `json:"playerName"`
	Level             domain.Difficulty `json:"level"`
	TotalRounds       int               `json:"totalRounds"`
	QuestionsPerRound int               `json:"questionsPerRound"`
}

// Open returns the tab's session, creating an empty one on first use.
func (s *GameService) Open(_ context.Context, tabID string) Update {
	slot, created := s.sessions.GetOrCreate(tabID)
	if created {
		s.recorder.SessionOpened()
		log.Info().Str("session", tabID).Msg("session opened")
	}
	u := slot.Snapshot()
	u.Event = EventOpened
	return u
}

// Snapshot returns the tab's current state. Sessions held elsewhere are read
// through the store when it supports it.
func (s *GameService) Snapshot(ctx context.Context, tabID string) (Update, error) {
	slot, ok := s.sessions.Get(tabID)
	if ok {
		return slot.Snapshot(), nil
	}
	if l, ok := s.sessions.(SnapshotLoader); ok {
		return l.Load(ctx, tabID)
	}
	return Update{}, domain.ErrSessionNotFound
}

func (s *GameService) Start(ctx context.Context, tabID string, p StartParams) (Update, error) {
	return s.transition(ctx, tabID, game.Start{
		PlayerName:        p.PlayerName,
		Level:             p.Level,
		TotalRounds:       p.TotalRounds,
		QuestionsPerRound: p.QuestionsPerRound,
	}, EventStarted)
}

// SelectCategory begins the next round. The catalog is fetched first; when it
// cannot be, explicit ids are taken as given and Random falls back to the
// configured id range.
func (s *GameService) SelectCategory(ctx context.Context, tabID string, choice game.CategoryChoice) (Update, error) {
	catalog, err := s.categories.Categories(ctx)
	if err != nil {
		log.Warn().Err(err).Str("session", tabID).Msg("category catalog unavailable, using fallback")
		catalog = nil
	}
	return s.transition(ctx, tabID, game.SelectCategory{Choice: choice, Catalog: catalog}, EventCategoryChosen)
}

// BeginQuestion arms the question timer for the next question of the round.
func (s *GameService) BeginQuestion(ctx context.Context, tabID string) (Update, error) {
	slot, ok := s.sessions.Get(tabID)
	if !ok {
		return Update{}, domain.ErrSessionNotFound
	}

	slot.mu.Lock()
	if slot.closed {
		slot.mu.Unlock()
		return Update{}, domain.ErrSessionNotFound
	}
	if !slot.game.RoundHasRoom() {
		err := &domain.TransitionError{Action: "beginQuestion", From: string(slot.game.Status)}
		slot.mu.Unlock()
		s.logRefused(tabID, "beginQuestion", err)
		return slot.Snapshot(), err
	}
	d := s.machine.Policy().QuestionTimeout(slot.game.Level)
	slot.armed = d
	slot.timer.Arm(d, func(gen uint64) { s.onTimeout(slot, gen) })
	u := slot.broadcastLocked(EventQuestionStarted)
	slot.mu.Unlock()

	s.publish(ctx, u)
	return u, nil
}

// Answer records a correct or wrong answer. A non-positive elapsed time is
// replaced by the time the running question timer has used.
func (s *GameService) Answer(ctx context.Context, tabID string, outcome domain.Outcome, elapsed time.Duration) (Update, error) {
	return s.transition(ctx, tabID, game.RecordAnswer{Outcome: outcome, Elapsed: elapsed}, EventAnswered)
}

func (s *GameService) Skip(ctx context.Context, tabID string, elapsed time.Duration) (Update, error) {
	return s.transition(ctx, tabID, game.SkipQuestion{Elapsed: elapsed}, EventSkipped)
}

func (s *GameService) CompleteRound(ctx context.Context, tabID string) (Update, error) {
	return s.transition(ctx, tabID, game.CompleteRound{}, EventRoundCompleted)
}

func (s *GameService) AdvanceRound(ctx context.Context, tabID string) (Update, error) {
	return s.transition(ctx, tabID, game.AdvanceRound{}, EventRoundAdvanced)
}

func (s *GameService) Finish(ctx context.Context, tabID string) (Update, error) {
	return s.transition(ctx, tabID, game.Finish{}, EventFinished)
}

func (s *GameService) Reset(ctx context.Context, tabID string) (Update, error) {
	return s.transition(ctx, tabID, game.Reset{}, EventReset)
}

// Subscribe returns a channel that receives every update of a tab. The
// caller must invoke the returned cancel function to avoid leaks.
// A session held by another instance is followed through the store when it
// supports that.
func (s *GameService) Subscribe(ctx context.Context, tabID string) (<-chan Update, func(), error) {
	slot, ok := s.sessions.Get(tabID)
	if ok {
		ch, cancel := slot.subscribe()
		return ch, cancel, nil
	}
	if w, ok := s.sessions.(SnapshotWatcher); ok {
		return w.Watch(ctx, tabID)
	}
	return nil, nil, domain.ErrSessionNotFound
}

// Close stops the tab's timer and drops its session.
func (s *GameService) Close(_ context.Context, tabID string) {
	slot, ok := s.sessions.Get(tabID)
	if !ok {
		return
	}
	slot.close()
	s.sessions.Delete(tabID)
	s.recorder.SessionClosed()
	log.Info().Str("session", tabID).Msg("session closed")
}

// Sweep closes every session idle since before cutoff and returns how many.
func (s *GameService) Sweep(ctx context.Context, cutoff time.Time) int {
	ids := s.sessions.Idle(cutoff)
	for _, id := range ids {
		s.Close(ctx, id)
	}
	return len(ids)
}

// RunJanitor sweeps idle sessions every interval until ctx is done.
func (s *GameService) RunJanitor(ctx context.Context, interval, idleTTL time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := s.Sweep(ctx, s.now().Add(-idleTTL)); n > 0 {
				log.Info().Int("closed", n).Msg("idle sessions swept")
			}
		}
	}
}

// Categories lists the categories the tab has not played yet.
func (s *GameService) Categories(ctx context.Context, tabID string) ([]domain.Category, error) {
	catalog, err := s.categories.Categories(ctx)
	if err != nil {
		return nil, err
	}
	slot, ok := s.sessions.Get(tabID)
	if !ok {
		return catalog, nil
	}
	used := slot.Snapshot().Game.UsedCategoryIDs
	return lo.Filter(catalog, func(c domain.Category, _ int) bool {
		return !lo.Contains(used, c.ID)
	}), nil
}

// Questions fetches the questions of the round being played.
func (s *GameService) Questions(ctx context.Context, tabID string) ([]domain.Question, error) {
	slot, ok := s.sessions.Get(tabID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	g := slot.Snapshot().Game
	cat, ok := g.CurrentCategory()
	if g.Status != game.StatusInProgress || !ok {
		return nil, &domain.TransitionError{Action: "questions", From: string(g.Status)}
	}
	return s.questions.FetchQuestions(ctx, g.QuestionsPerRound, cat.ID, g.Level)
}

func (s *GameService) Summary(_ context.Context, tabID string) (game.Summary, error) {
	slot, ok := s.sessions.Get(tabID)
	if !ok {
		return game.Summary{}, domain.ErrSessionNotFound
	}
	return game.Summarize(slot.Snapshot().Game), nil
}

func (s *GameService) transition(ctx context.Context, tabID string, req game.Request, event string) (Update, error) {
	slot, ok := s.sessions.Get(tabID)
	if !ok {
		return Update{}, domain.ErrSessionNotFound
	}

	slot.mu.Lock()
	if slot.closed {
		slot.mu.Unlock()
		return Update{}, domain.ErrSessionNotFound
	}
	next, err := slot.game, s.expiredRefusal(slot, req)
	if err == nil {
		req = s.fillElapsed(slot, req)
		next, err = s.machine.Apply(slot.game, req)
	}
	if err != nil {
		u := slot.snapshotLocked("")
		slot.mu.Unlock()
		s.recorder.Transition(req.Action(), err)
		s.logRefused(tabID, req.Action(), err)
		return u, err
	}
	slot.game = next
	switch req.(type) {
	case game.RecordAnswer, game.SkipQuestion:
		// a tick already in flight now sees a newer generation and is ignored
		slot.timer.Disarm()
	default:
		slot.timer.Clear()
	}
	u := slot.broadcastLocked(event)
	slot.mu.Unlock()

	s.recorder.Transition(req.Action(), nil)
	s.publish(ctx, u)
	return u, nil
}

// expiredRefusal refuses an outcome for a question whose timer already ran
// out. The timeout records the skip itself; until the next question is begun
// nothing else may be recorded for it.
func (s *GameService) expiredRefusal(slot *Slot, req game.Request) error {
	switch req.(type) {
	case game.RecordAnswer, game.SkipQuestion:
	default:
		return nil
	}
	if slot.timer.Status().State != timer.StateExpired {
		return nil
	}
	return &domain.TransitionError{Action: req.Action(), From: string(slot.game.Status), Reason: "question timed out"}
}

// fillElapsed charges an answer given without a time with what the timer used.
func (s *GameService) fillElapsed(slot *Slot, req game.Request) game.Request {
	st := slot.timer.Status()
	if st.State != timer.StateRunning {
		return req
	}
	used := time.Duration(st.DurationMs-st.RemainingMs) * time.Millisecond
	switch r := req.(type) {
	case game.RecordAnswer:
		if r.Elapsed <= 0 {
			r.Elapsed = used
		}
		return r
	case game.SkipQuestion:
		if r.Elapsed <= 0 {
			r.Elapsed = used
		}
		return r
	}
	return req
}

func (s *GameService) onTimeout(slot *Slot, gen uint64) {
	slot.mu.Lock()
	if !slot.timer.Current(gen) {
		slot.mu.Unlock()
		return
	}
	d := slot.armed
	next, err := s.machine.Apply(slot.game, game.SkipQuestion{Elapsed: d})
	if err != nil {
		slot.mu.Unlock()
		s.logRefused(slot.id, "timeout", err)
		return
	}
	slot.game = next
	slot.timer.Disarm()
	u := slot.broadcastLocked(EventTimedOut)
	slot.mu.Unlock()

	s.recorder.TimedOut()
	log.Debug().Str("session", slot.id).Dur("after", d).Msg("question timed out")
	s.publish(context.Background(), u)
}

func (s *GameService) publish(ctx context.Context, u Update) {
	if err := s.sessions.Publish(ctx, u); err != nil {
		log.Warn().Err(err).Str("session", u.SessionID).Msg("publish session update")
	}
}

func (s *GameService) logRefused(tabID, action string, err error) {
	ev := log.Debug()
	var te *domain.TransitionError
	if errors.As(err, &te) {
		ev = log.Warn().Str("status", te.From)
	}
	ev.Err(err).Str("session", tabID).Str("action", action).Msg("transition refused")
}
