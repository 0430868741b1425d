package game

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"

	"open-trivia-rounds/internal/domain"
)

// Request is one transition. The set is closed: Start, SelectCategory,
// RecordAnswer, SkipQuestion, CompleteRound, AdvanceRound, Finish, Reset.
type Request interface {
	Action() string
}

type Start struct {
	PlayerName        string
	Level             domain.Difficulty
	TotalRounds       int
	QuestionsPerRound int
}

// CategoryChoice is either an explicit category id or the Random pseudo-category.
type CategoryChoice struct {
	ID     int  `json:"id,omitempty"`
	Random bool `json:"random,omitempty"`
}

func RandomCategory() CategoryChoice { return CategoryChoice{Random: true} }

func PickCategory(id int) CategoryChoice { return CategoryChoice{ID: id} }

// SelectCategory resolves the choice against Catalog. A nil Catalog means the
// category list was unavailable; a non-nil empty one means nothing is offered.
type SelectCategory struct {
	Choice  CategoryChoice
	Catalog []domain.Category
}

// RecordAnswer records a Correct or Wrong outcome.
type RecordAnswer struct {
	Outcome domain.Outcome
	Elapsed time.Duration
}

type SkipQuestion struct {
	Elapsed time.Duration
}

type CompleteRound struct{}

type AdvanceRound struct{}

type Finish struct{}

type Reset struct{}

func (Start) Action() string { return "start" }
func (SelectCategory) Action() string { return "selectCategory" }
func (RecordAnswer) Action() string { return "recordAnswer" }
func (SkipQuestion) Action() string { return "skipQuestion" }
func (CompleteRound) Action() string { return "completeRound" }
func (AdvanceRound) Action() string { return "advanceRound" }
func (Finish) Action() string { return "finish" }
func (Reset) Action() string { return "reset" }

// Machine applies transition requests under a Policy.
type Machine struct {
	policy Policy
	pick   func(n int) int
}

type Option func(*Machine)

// WithPicker replaces the uniform random index source used by Random picks.
// pick(n) must return a value in [0, n).
func WithPicker(pick func(n int) int) Option {
	return func(m *Machine) { m.pick = pick }
}

func NewMachine(p Policy, opts ...Option) *Machine {
	m := &Machine{policy: p, pick: cryptoPick}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) Policy() Policy {
	return m.policy
}

// Apply returns the session that results from req. On error the returned
// session is s, unchanged.
func (m *Machine) Apply(s Session, req Request) (Session, error) {
	var (
		next Session
		err  error
	)
	switch r := req.(type) {
	case Start:
		next, err = m.start(s, r)
	case SelectCategory:
		next, err = m.selectCategory(s, r)
	case RecordAnswer:
		if r.Outcome != domain.OutcomeCorrect && r.Outcome != domain.OutcomeWrong {
			return s, domain.NewValidationError("outcome", fmt.Sprintf("answer outcome must be correct or wrong, got %q", r.Outcome))
		}
		next, err = m.record(s, r.Action(), r.Outcome, r.Elapsed)
	case SkipQuestion:
		next, err = m.record(s, r.Action(), domain.OutcomeSkipped, r.Elapsed)
	case CompleteRound:
		next, err = m.completeRound(s)
	case AdvanceRound:
		next, err = m.advanceRound(s)
	case Finish:
		next, err = m.finish(s)
	case Reset:
		next = New()
	default:
		return s, fmt.Errorf("unknown request %T", req)
	}
	if err != nil {
		return s, err
	}
	return next, nil
}

func (m *Machine) start(s Session, r Start) (Session, error) {
	if s.Status != StatusConfiguring {
		return s, invalid(r, s)
	}
	p := m.policy

	name := strings.TrimSpace(r.PlayerName)
	if n := utf8.RuneCountInString(name); n < p.MinNameLength || n > p.MaxNameLength {
		return s, domain.NewValidationError("playerName", fmt.Sprintf("must be %d to %d characters", p.MinNameLength, p.MaxNameLength))
	}
	level, err := domain.ParseDifficulty(string(r.Level))
	if err != nil {
		return s, err
	}
	if r.TotalRounds < p.MinRounds || r.TotalRounds > p.MaxRounds {
		return s, domain.NewValidationError("totalRounds", fmt.Sprintf("must be between %d and %d", p.MinRounds, p.MaxRounds))
	}
	if r.QuestionsPerRound < p.MinQuestions || r.QuestionsPerRound > p.MaxQuestions {
		return s, domain.NewValidationError("questionsPerRound", fmt.Sprintf("must be between %d and %d", p.MinQuestions, p.MaxQuestions))
	}

	return Session{
		PlayerName:        name,
		Level:             level,
		TotalRounds:       r.TotalRounds,
		QuestionsPerRound: r.QuestionsPerRound,
		Status:            StatusSelectingCategory,
		UsedCategoryIDs:   []int{},
	}, nil
}

func (m *Machine) selectCategory(s Session, r SelectCategory) (Session, error) {
	if s.Status != StatusSelectingCategory {
		return s, invalid(r, s)
	}
	if s.CurrentRound >= s.TotalRounds {
		return s, invalid(r, s)
	}

	var (
		cat domain.Category
		err error
	)
	if r.Choice.Random {
		cat, err = m.resolveRandom(s.UsedCategoryIDs, r.Catalog)
		if err != nil {
			return s, err
		}
		if slices.Contains(s.UsedCategoryIDs, cat.ID) {
			return s, fmt.Errorf("random pick returned used category %d: %w", cat.ID, domain.ErrCategoryUsed)
		}
	} else {
		cat, err = resolveExplicit(s.UsedCategoryIDs, r.Choice.ID, r.Catalog)
		if err != nil {
			return s, err
		}
	}

	ordinal := s.CurrentRound + 1
	ledger, err := s.Rounds.BeginRound(ordinal, cat.ID, cat.Name)
	if err != nil {
		return s, err
	}

	next := s
	next.CurrentRound = ordinal
	next.Rounds = ledger
	next.UsedCategoryIDs = append(slices.Clone(s.UsedCategoryIDs), cat.ID)
	next.Status = StatusInProgress
	return next, nil
}

func (m *Machine) record(s Session, action string, o domain.Outcome, elapsed time.Duration) (Session, error) {
	if s.Status != StatusInProgress {
		return s, &domain.TransitionError{Action: action, From: string(s.Status)}
	}
	if !s.RoundHasRoom() {
		return s, &domain.TransitionError{Action: action, From: string(s.Status), Reason: "round already has all its outcomes"}
	}
	ledger, err := s.Rounds.RecordQuestionOutcome(s.CurrentRound, o, elapsed.Milliseconds())
	if err != nil {
		return s, err
	}
	next := s
	next.Rounds = ledger
	return next, nil
}

func (m *Machine) completeRound(s Session) (Session, error) {
	if s.Status != StatusInProgress {
		return s, invalid(CompleteRound{}, s)
	}
	if s.CurrentTally().Total() == 0 {
		return s, &domain.TransitionError{Action: CompleteRound{}.Action(), From: string(s.Status), Reason: "round has no outcomes"}
	}
	next := s
	next.Status = StatusRoundComplete
	return next, nil
}

func (m *Machine) advanceRound(s Session) (Session, error) {
	if s.Status != StatusRoundComplete || s.CurrentRound >= s.TotalRounds {
		return s, invalid(AdvanceRound{}, s)
	}
	next := s
	next.TotalDurationMs += currentElapsed(s)
	next.Status = StatusSelectingCategory
	return next, nil
}

func (m *Machine) finish(s Session) (Session, error) {
	if s.Status != StatusRoundComplete || s.CurrentRound != s.TotalRounds {
		return s, invalid(Finish{}, s)
	}
	next := s
	next.TotalDurationMs += currentElapsed(s)
	next.Status = StatusFinished
	return next, nil
}

func (m *Machine) resolveRandom(used []int, catalog []domain.Category) (domain.Category, error) {
	var eligible []domain.Category
	if catalog != nil {
		eligible = lo.Filter(catalog, func(c domain.Category, _ int) bool {
			return !slices.Contains(used, c.ID)
		})
	} else {
		for id := m.policy.RandomMinID; id <= m.policy.RandomMaxID; id++ {
			if !slices.Contains(used, id) {
				eligible = append(eligible, domain.Category{ID: id})
			}
		}
	}
	if len(eligible) == 0 {
		return domain.Category{}, domain.ErrNoCategoriesAvailable
	}
	i := m.pick(len(eligible))
	if i < 0 || i >= len(eligible) {
		return domain.Category{}, fmt.Errorf("random pick index %d out of %d", i, len(eligible))
	}
	return eligible[i], nil
}

func resolveExplicit(used []int, id int, catalog []domain.Category) (domain.Category, error) {
	if id <= 0 {
		return domain.Category{}, domain.NewValidationError("categoryId", "must be a positive id")
	}
	if slices.Contains(used, id) {
		return domain.Category{}, &domain.ValidationError{
			Field:  "categoryId",
			Reason: fmt.Sprintf("category %d was already played", id),
			Err:    domain.ErrCategoryUsed,
		}
	}
	if catalog == nil {
		return domain.Category{ID: id}, nil
	}
	cat, ok := lo.Find(catalog, func(c domain.Category) bool { return c.ID == id })
	if !ok {
		return domain.Category{}, domain.NewValidationError("categoryId", fmt.Sprintf("unknown category %d", id))
	}
	return cat, nil
}

func currentElapsed(s Session) int64 {
	r, ok := s.Rounds.Current()
	if !ok {
		return 0
	}
	return r.ElapsedMs
}

func invalid(r Request, s Session) error {
	return &domain.TransitionError{Action: r.Action(), From: string(s.Status)}
}

// IsInvalidTransition reports whether err is a refused transition.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, domain.ErrInvalidTransition)
}

func cryptoPick(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}
