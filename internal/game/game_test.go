package game

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"open-trivia-rounds/internal/domain"
)

func apply(t *testing.T, m *Machine, s Session, reqs ...Request) Session {
	t.Helper()
	for _, req := range reqs {
		var err error
		s, err = m.Apply(s, req)
		require.NoError(t, err, "apply %s", req.Action())
	}
	return s
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func TestTwoRoundGame(t *testing.T) {
	m := NewMachine(DefaultPolicy())

	s := apply(t, m, New(),
		Start{PlayerName: "Ada", Level: domain.DifficultyEasy, TotalRounds: 2, QuestionsPerRound: 3},
		SelectCategory{Choice: PickCategory(9)},
		RecordAnswer{Outcome: domain.OutcomeCorrect, Elapsed: ms(5000)},
		RecordAnswer{Outcome: domain.OutcomeCorrect, Elapsed: ms(5000)},
		RecordAnswer{Outcome: domain.OutcomeCorrect, Elapsed: ms(5000)},
		CompleteRound{},
		AdvanceRound{},
		SelectCategory{Choice: PickCategory(11)},
		RecordAnswer{Outcome: domain.OutcomeWrong, Elapsed: ms(3000)},
		RecordAnswer{Outcome: domain.OutcomeWrong, Elapsed: ms(3000)},
		SkipQuestion{Elapsed: ms(30000)},
		CompleteRound{},
		Finish{},
	)

	require.Equal(t, StatusFinished, s.Status)
	require.Equal(t, int64(51000), s.TotalDurationMs)
	require.Equal(t, []int{9, 11}, s.UsedCategoryIDs)

	rounds := s.Rounds.Rounds()
	require.Len(t, rounds, 2)
	require.Equal(t, 1, rounds[0].Ordinal)
	require.Equal(t, 9, rounds[0].CategoryID)
	require.Equal(t, domain.AnswerTally{Correct: 3}, rounds[0].Tally)
	require.Equal(t, int64(15000), rounds[0].ElapsedMs)
	require.Equal(t, 2, rounds[1].Ordinal)
	require.Equal(t, 11, rounds[1].CategoryID)
	require.Equal(t, domain.AnswerTally{Wrong: 2, Skipped: 1}, rounds[1].Tally)
	require.Equal(t, int64(36000), rounds[1].ElapsedMs)

	// terminal
	for _, req := range []Request{
		Start{PlayerName: "Grace", Level: domain.DifficultyHard, TotalRounds: 1, QuestionsPerRound: 1},
		SelectCategory{Choice: PickCategory(12)},
		RecordAnswer{Outcome: domain.OutcomeCorrect},
		SkipQuestion{},
		CompleteRound{},
		AdvanceRound{},
		Finish{},
	} {
		next, err := m.Apply(s, req)
		require.ErrorIs(t, err, domain.ErrInvalidTransition, req.Action())
		require.Equal(t, s, next)
	}
}

func TestStartValidation(t *testing.T) {
	m := NewMachine(DefaultPolicy())

	tests := map[string]struct {
		req   Start
		field string
	}{
		"name too short":        {req: Start{PlayerName: "Bo", Level: "easy", TotalRounds: 1, QuestionsPerRound: 5}, field: "playerName"},
		"name too long":         {req: Start{PlayerName: "Bartholomew Smith", Level: "easy", TotalRounds: 1, QuestionsPerRound: 5}, field: "playerName"},
		"unknown difficulty":    {req: Start{PlayerName: "Alice", Level: "legendary", TotalRounds: 1, QuestionsPerRound: 5}, field: "level"},
		"zero rounds":           {req: Start{PlayerName: "Alice", Level: "easy", TotalRounds: 0, QuestionsPerRound: 5}, field: "totalRounds"},
		"too many rounds":       {req: Start{PlayerName: "Alice", Level: "easy", TotalRounds: 4, QuestionsPerRound: 5}, field: "totalRounds"},
		"too many questions":    {req: Start{PlayerName: "Alice", Level: "easy", TotalRounds: 2, QuestionsPerRound: 11}, field: "questionsPerRound"},
		"zero questions":        {req: Start{PlayerName: "Alice", Level: "easy", TotalRounds: 2, QuestionsPerRound: 0}, field: "questionsPerRound"},
		"blank name is trimmed": {req: Start{PlayerName: "   Al   ", Level: "easy", TotalRounds: 1, QuestionsPerRound: 1}, field: "playerName"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s, err := m.Apply(New(), tt.req)
			require.ErrorIs(t, err, domain.ErrValidation)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tt.field, verr.Field)
			require.Equal(t, New(), s)
		})
	}
}

func TestStartProducesEmptySelectingSession(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	for _, level := range []domain.Difficulty{domain.DifficultyEasy, domain.DifficultyMedium, domain.DifficultyHard} {
		for rounds := 1; rounds <= 3; rounds++ {
			for q := 1; q <= 10; q++ {
				s, err := m.Apply(New(), Start{PlayerName: "Alice", Level: level, TotalRounds: rounds, QuestionsPerRound: q})
				require.NoError(t, err)
				require.Equal(t, StatusSelectingCategory, s.Status)
				require.Zero(t, s.CurrentRound)
				require.Zero(t, s.Rounds.Len())
				require.Empty(t, s.UsedCategoryIDs)
				require.NotNil(t, s.UsedCategoryIDs)
			}
		}
	}

	s := apply(t, m, New(), Start{PlayerName: "Alice", Level: domain.DifficultyEasy, TotalRounds: 1, QuestionsPerRound: 1})
	raw, err := json.Marshal(s)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"usedCategoryIds":[]`)
}

func TestSelectCategory(t *testing.T) {
	catalog := []domain.Category{{ID: 9, Name: "General Knowledge"}, {ID: 10, Name: "Books"}, {ID: 11, Name: "Film"}}
	started := func(t *testing.T, m *Machine, rounds int) Session {
		return apply(t, m, New(), Start{PlayerName: "Alice", Level: domain.DifficultyMedium, TotalRounds: rounds, QuestionsPerRound: 1})
	}
	playRound := func(t *testing.T, m *Machine, s Session, choice CategoryChoice) Session {
		return apply(t, m, s,
			SelectCategory{Choice: choice, Catalog: catalog},
			SkipQuestion{Elapsed: time.Second},
			CompleteRound{},
			AdvanceRound{},
		)
	}

	t.Run("explicit pick takes the catalog name", func(t *testing.T) {
		m := NewMachine(DefaultPolicy())
		s := apply(t, m, started(t, m, 3), SelectCategory{Choice: PickCategory(10), Catalog: catalog})
		cat, ok := s.CurrentCategory()
		require.True(t, ok)
		require.Equal(t, domain.Category{ID: 10, Name: "Books"}, cat)
		require.Equal(t, 1, s.CurrentRound)
		require.Equal(t, StatusInProgress, s.Status)
	})

	t.Run("used id is rejected", func(t *testing.T) {
		m := NewMachine(DefaultPolicy())
		s := playRound(t, m, started(t, m, 3), PickCategory(9))
		next, err := m.Apply(s, SelectCategory{Choice: PickCategory(9), Catalog: catalog})
		require.ErrorIs(t, err, domain.ErrValidation)
		require.ErrorIs(t, err, domain.ErrCategoryUsed)
		require.Equal(t, s, next)
	})

	t.Run("unknown id is rejected when the catalog is known", func(t *testing.T) {
		m := NewMachine(DefaultPolicy())
		_, err := m.Apply(started(t, m, 1), SelectCategory{Choice: PickCategory(99), Catalog: catalog})
		require.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("random excludes used categories", func(t *testing.T) {
		m := NewMachine(DefaultPolicy(), WithPicker(func(n int) int { return 0 }))
		s := playRound(t, m, started(t, m, 3), PickCategory(9))
		s = apply(t, m, s, SelectCategory{Choice: RandomCategory(), Catalog: catalog})
		require.Equal(t, []int{9, 10}, s.UsedCategoryIDs)
	})

	t.Run("random with every category used fails", func(t *testing.T) {
		m := NewMachine(DefaultPolicy(), WithPicker(func(n int) int { return n - 1 }))
		s := started(t, m, 3)
		s = playRound(t, m, s, PickCategory(9))
		s = playRound(t, m, s, PickCategory(10))
		// the third round is still selectable, but restrict the catalog to what was played
		next, err := m.Apply(s, SelectCategory{Choice: RandomCategory(), Catalog: catalog[:2]})
		require.ErrorIs(t, err, domain.ErrNoCategoriesAvailable)
		require.Equal(t, s, next)
	})

	t.Run("random falls back to the id range without a catalog", func(t *testing.T) {
		p := DefaultPolicy()
		p.RandomMinID, p.RandomMaxID = 20, 21
		var offered int
		m := NewMachine(p, WithPicker(func(n int) int { offered = n; return n - 1 }))
		s := apply(t, m, started(t, m, 3), SelectCategory{Choice: PickCategory(21)}, SkipQuestion{}, CompleteRound{}, AdvanceRound{})

		s = apply(t, m, s, SelectCategory{Choice: RandomCategory()})
		require.Equal(t, 1, offered)
		require.Equal(t, []int{21, 20}, s.UsedCategoryIDs)

		s = apply(t, m, s, SkipQuestion{}, CompleteRound{}, AdvanceRound{})
		_, err := m.Apply(s, SelectCategory{Choice: RandomCategory()})
		require.ErrorIs(t, err, domain.ErrNoCategoriesAvailable)
	})

	t.Run("distinct picks grow used ids by one", func(t *testing.T) {
		m := NewMachine(DefaultPolicy())
		s := started(t, m, 3)
		for i, id := range []int{11, 9, 10} {
			s = apply(t, m, s, SelectCategory{Choice: PickCategory(id), Catalog: catalog})
			require.Len(t, s.UsedCategoryIDs, i+1)
			require.Equal(t, s.Rounds.UsedCategoryIDs(), s.UsedCategoryIDs)
			require.Equal(t, s.CurrentRound, s.Rounds.Len())
			s = apply(t, m, s, RecordAnswer{Outcome: domain.OutcomeCorrect}, CompleteRound{})
			if i < 2 {
				s = apply(t, m, s, AdvanceRound{})
			}
		}
	})
}

func TestTallyNeverExceedsQuestionsPerRound(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s := apply(t, m, New(),
		Start{PlayerName: "Alice", Level: domain.DifficultyHard, TotalRounds: 1, QuestionsPerRound: 3},
		SelectCategory{Choice: PickCategory(9)},
	)

	outcomes := []Request{
		RecordAnswer{Outcome: domain.OutcomeCorrect, Elapsed: time.Second},
		SkipQuestion{Elapsed: 30 * time.Second},
		RecordAnswer{Outcome: domain.OutcomeWrong, Elapsed: 2 * time.Second},
	}
	for k, req := range outcomes {
		s = apply(t, m, s, req)
		require.Equal(t, k+1, s.CurrentTally().Total())
	}
	require.False(t, s.RoundHasRoom())

	next, err := m.Apply(s, RecordAnswer{Outcome: domain.OutcomeCorrect})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	require.Equal(t, s, next)

	_, err = m.Apply(s, RecordAnswer{Outcome: domain.OutcomeSkipped})
	require.ErrorIs(t, err, domain.ErrValidation)

	round, _ := s.Rounds.Current()
	require.Equal(t, []int64{1000, 30000, 2000}, round.QuestionTimesMs)
	require.Equal(t, int64(33000), round.ElapsedMs)
}

func TestFinishOnlyAfterAllRounds(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s := apply(t, m, New(),
		Start{PlayerName: "Alice", Level: domain.DifficultyEasy, TotalRounds: 2, QuestionsPerRound: 1},
		SelectCategory{Choice: PickCategory(9)},
	)

	_, err := m.Apply(s, Finish{})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	s = apply(t, m, s, RecordAnswer{Outcome: domain.OutcomeCorrect}, CompleteRound{})
	_, err = m.Apply(s, Finish{})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	s = apply(t, m, s, AdvanceRound{}, SelectCategory{Choice: PickCategory(10)}, SkipQuestion{}, CompleteRound{})
	_, err = m.Apply(s, AdvanceRound{})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	s = apply(t, m, s, Finish{})
	require.Equal(t, StatusFinished, s.Status)
}

func TestCompleteRoundNeedsAnOutcome(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s := apply(t, m, New(),
		Start{PlayerName: "Alice", Level: domain.DifficultyMedium, TotalRounds: 2, QuestionsPerRound: 3},
		SelectCategory{Choice: PickCategory(9)},
	)

	next, err := m.Apply(s, CompleteRound{})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	require.ErrorContains(t, err, "round has no outcomes")
	require.Equal(t, s, next)

	s = apply(t, m, s, SkipQuestion{Elapsed: time.Second}, CompleteRound{})
	require.Equal(t, StatusRoundComplete, s.Status)
	require.Equal(t, 1, s.CurrentTally().Total())
}

func TestInvalidTransitionsLeaveSessionUnchanged(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	fresh := New()

	for _, req := range []Request{
		SelectCategory{Choice: PickCategory(9)},
		RecordAnswer{Outcome: domain.OutcomeCorrect},
		SkipQuestion{},
		CompleteRound{},
		AdvanceRound{},
		Finish{},
	} {
		next, err := m.Apply(fresh, req)
		require.True(t, IsInvalidTransition(err), req.Action())
		require.Equal(t, fresh, next)
	}
}

func TestResetFromEveryStatus(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	start := Start{PlayerName: "Alice", Level: domain.DifficultyEasy, TotalRounds: 1, QuestionsPerRound: 1}

	states := map[Status]Session{
		StatusConfiguring:       New(),
		StatusSelectingCategory: apply(t, m, New(), start),
		StatusInProgress:        apply(t, m, New(), start, SelectCategory{Choice: PickCategory(9)}),
		StatusRoundComplete:     apply(t, m, New(), start, SelectCategory{Choice: PickCategory(9)}, SkipQuestion{Elapsed: time.Second}, CompleteRound{}),
		StatusFinished:          apply(t, m, New(), start, SelectCategory{Choice: PickCategory(9)}, SkipQuestion{Elapsed: time.Second}, CompleteRound{}, Finish{}),
	}

	for status, s := range states {
		require.Equal(t, status, s.Status)
		reset := apply(t, m, s, Reset{})
		require.Equal(t, New(), reset, "reset from %s", status)
	}
}

func TestSummarize(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s := apply(t, m, New(),
		Start{PlayerName: "Alice", Level: domain.DifficultyMedium, TotalRounds: 2, QuestionsPerRound: 2},
		SelectCategory{Choice: PickCategory(9), Catalog: []domain.Category{{ID: 9, Name: "General Knowledge"}}},
		RecordAnswer{Outcome: domain.OutcomeCorrect, Elapsed: 4500 * time.Millisecond},
		RecordAnswer{Outcome: domain.OutcomeWrong, Elapsed: 10 * time.Second},
		CompleteRound{},
		AdvanceRound{},
		SelectCategory{Choice: PickCategory(11)},
		RecordAnswer{Outcome: domain.OutcomeCorrect, Elapsed: 60 * time.Second},
		SkipQuestion{Elapsed: 60 * time.Second},
		CompleteRound{},
		Finish{},
	)

	sum := Summarize(s)
	require.Equal(t, "Alice", sum.PlayerName)
	require.Equal(t, domain.AnswerTally{Correct: 2, Wrong: 1, Skipped: 1}, sum.Totals)
	require.Equal(t, 4, sum.TotalQuestions)
	require.Equal(t, 4, sum.Answered)
	require.Equal(t, "50", sum.AccuracyPercent.String())
	require.Equal(t, int64(134500), sum.DurationMs)
	require.Equal(t, s.TotalDurationMs, sum.DurationMs)
	require.Equal(t, int64(2), sum.DurationMinutes)

	require.Len(t, sum.Rounds, 2)
	require.Equal(t, "General Knowledge", sum.Rounds[0].CategoryName)
	require.Equal(t, domain.AnswerTally{Correct: 1, Skipped: 1}, sum.Rounds[1].Tally)

	require.Len(t, sum.Timeline, 4)
	require.Equal(t, "4.5", sum.Timeline[0].Seconds.String())
	require.Equal(t, 2, sum.Timeline[3].Round)
	require.Equal(t, 4, sum.Timeline[3].Question)
}

func TestSummarizeEmptySession(t *testing.T) {
	sum := Summarize(New())
	require.True(t, sum.AccuracyPercent.IsZero())
	require.Empty(t, sum.Rounds)
	require.Zero(t, sum.DurationMinutes)
}

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	p := DefaultPolicy()
	p.MaxRounds = 0
	require.Error(t, p.Validate())

	p = DefaultPolicy()
	p.Timeouts[domain.DifficultyHard] = 0
	require.Error(t, p.Validate())

	require.Equal(t, 30*time.Second, DefaultPolicy().QuestionTimeout(domain.DifficultyHard))
	require.Equal(t, 90*time.Second, Policy{}.QuestionTimeout(domain.DifficultyEasy))
}
