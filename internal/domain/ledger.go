package domain

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/samber/lo"
)

// AnswerTally counts question outcomes within one round.
type AnswerTally struct {
	Correct int `json:"correct"`
	Wrong   int `json:"wrong"`
	Skipped int `json:"skipped"`
}

// Record returns the tally with exactly one counter incremented.
func (t AnswerTally) Record(o Outcome) AnswerTally {
	switch o {
	case OutcomeCorrect:
		t.Correct++
	case OutcomeWrong:
		t.Wrong++
	case OutcomeSkipped:
		t.Skipped++
	}
	return t
}

// Total is the number of outcomes recorded.
func (t AnswerTally) Total() int {
	return t.Correct + t.Wrong + t.Skipped
}

func (t AnswerTally) Add(o AnswerTally) AnswerTally {
	return AnswerTally{
		Correct: t.Correct + o.Correct,
		Wrong:   t.Wrong + o.Wrong,
		Skipped: t.Skipped + o.Skipped,
	}
}

// Round is one category-bound block of questions.
type Round struct {
	Ordinal         int         `json:"round"`
	CategoryID      int         `json:"categoryId"`
	CategoryName    string      `json:"categoryName,omitempty"`
	Tally           AnswerTally `json:"answerResult"`
	ElapsedMs       int64       `json:"elapsedTimeMs"`
	QuestionTimesMs []int64     `json:"questionTimesMs"`
}

func (r Round) clone() Round {
	r.QuestionTimesMs = slices.Clone(r.QuestionTimesMs)
	return r
}

// Ledger is the ordered list of rounds played so far. Values are immutable:
// every mutation returns a new Ledger and leaves the receiver untouched.
type Ledger struct {
	rounds []Round
}

// NewLedger rebuilds a ledger from stored rounds, checking ordinals and uniqueness.
func NewLedger(rounds []Round) (Ledger, error) {
	var l Ledger
	for _, r := range rounds {
		next, err := l.BeginRound(r.Ordinal, r.CategoryID, r.CategoryName)
		if err != nil {
			return Ledger{}, err
		}
		next.rounds[len(next.rounds)-1] = r.clone()
		l = next
	}
	return l, nil
}

// BeginRound appends a new empty round. The ordinal must be len+1 and the
// category must not have been played before.
func (l Ledger) BeginRound(ordinal, categoryID int, categoryName string) (Ledger, error) {
	if ordinal != len(l.rounds)+1 {
		return l, fmt.Errorf("begin round %d: expected ordinal %d: %w", ordinal, len(l.rounds)+1, ErrInvalidTransition)
	}
	if l.HasCategory(categoryID) {
		return l, fmt.Errorf("begin round %d: category %d: %w", ordinal, categoryID, ErrCategoryUsed)
	}
	rounds := l.cloneRounds(1)
	rounds = append(rounds, Round{
		Ordinal:         ordinal,
		CategoryID:      categoryID,
		CategoryName:    categoryName,
		QuestionTimesMs: []int64{},
	})
	return Ledger{rounds: rounds}, nil
}

// RecordQuestionOutcome updates the tally and elapsed time of the round with
// the given ordinal.
func (l Ledger) RecordQuestionOutcome(ordinal int, o Outcome, elapsedMs int64) (Ledger, error) {
	if ordinal < 1 || ordinal > len(l.rounds) {
		return l, fmt.Errorf("round %d: %w", ordinal, ErrRoundNotFound)
	}
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	rounds := l.cloneRounds(0)
	r := &rounds[ordinal-1]
	r.Tally = r.Tally.Record(o)
	r.ElapsedMs += elapsedMs
	r.QuestionTimesMs = append(r.QuestionTimesMs, elapsedMs)
	return Ledger{rounds: rounds}, nil
}

// TotalElapsedMs sums the elapsed time of every round.
func (l Ledger) TotalElapsedMs() int64 {
	return lo.SumBy(l.rounds, func(r Round) int64 { return r.ElapsedMs })
}

// TallyAt returns the tally of the round with the given ordinal.
func (l Ledger) TallyAt(ordinal int) (AnswerTally, bool) {
	if ordinal < 1 || ordinal > len(l.rounds) {
		return AnswerTally{}, false
	}
	return l.rounds[ordinal-1].Tally, true
}

// AllTallies returns the tallies in round order.
func (l Ledger) AllTallies() []AnswerTally {
	return lo.Map(l.rounds, func(r Round, _ int) AnswerTally { return r.Tally })
}

// Rounds returns a copy of the recorded rounds.
func (l Ledger) Rounds() []Round {
	return l.cloneRounds(0)
}

func (l Ledger) Len() int {
	return len(l.rounds)
}

// Current returns the last round begun.
func (l Ledger) Current() (Round, bool) {
	if len(l.rounds) == 0 {
		return Round{}, false
	}
	return l.rounds[len(l.rounds)-1].clone(), true
}

func (l Ledger) HasCategory(categoryID int) bool {
	return slices.ContainsFunc(l.rounds, func(r Round) bool { return r.CategoryID == categoryID })
}

// UsedCategoryIDs lists the categories played so far, in round order.
func (l Ledger) UsedCategoryIDs() []int {
	return lo.Map(l.rounds, func(r Round, _ int) int { return r.CategoryID })
}

func (l Ledger) MarshalJSON() ([]byte, error) {
	if l.rounds == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.rounds)
}

func (l *Ledger) UnmarshalJSON(data []byte) error {
	var rounds []Round
	if err := json.Unmarshal(data, &rounds); err != nil {
		return err
	}
	restored, err := NewLedger(rounds)
	if err != nil {
		return err
	}
	*l = restored
	return nil
}

func (l Ledger) cloneRounds(extra int) []Round {
	rounds := make([]Round, len(l.rounds), len(l.rounds)+extra)
	for i, r := range l.rounds {
		rounds[i] = r.clone()
	}
	return rounds
}
