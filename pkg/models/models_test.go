package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThoughtValidate(t *testing.T) {
	valid := Thought{Thought: "code", ThoughtNumber: 1, TotalThoughts: 1}
	assert.Nil(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(*Thought)
		message string
	}{
		{"empty thought", func(th *Thought) { th.Thought = "" }, "thought must not be empty"},
		{"zero thoughtNumber", func(th *Thought) { th.ThoughtNumber = 0 }, "thoughtNumber"},
		{"zero totalThoughts", func(th *Thought) { th.TotalThoughts = 0 }, "totalThoughts"},
		{"bad revisesThought", func(th *Thought) { zero := 0; th.RevisesThought = &zero }, "revisesThought"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := valid
			tt.mutate(&th)
			diag := th.Validate()
			require.NotNil(t, diag)
			assert.Equal(t, CategoryValidation, diag.Category)
			assert.Contains(t, diag.Message, tt.message)
		})
	}
}

func TestThoughtSessionID(t *testing.T) {
	th := Thought{BranchID: "b1"}
	assert.Equal(t, "b1", th.SessionID())

	empty := Thought{}
	assert.Equal(t, "default", empty.SessionID())
}

func TestAuditReviewValidate(t *testing.T) {
	valid := func() *AuditReview {
		return &AuditReview{
			Overall:    90,
			Verdict:    VerdictPass,
			Dimensions: []DimensionScore{{Name: "Correctness", Score: 90}},
		}
	}
	assert.Nil(t, valid().Validate())

	r := valid()
	r.Overall = 101
	require.NotNil(t, r.Validate())

	r = valid()
	r.Verdict = "maybe"
	require.NotNil(t, r.Validate())

	r = valid()
	r.Dimensions = nil
	require.NotNil(t, r.Validate())

	r = valid()
	r.Dimensions[0].Score = -1
	require.NotNil(t, r.Validate())

	r = valid()
	r.JudgeCards = []JudgeCard{{Model: "m", Score: 120}}
	require.NotNil(t, r.Validate())
}

func TestSessionAppendIteration(t *testing.T) {
	now := time.Now().UTC()
	s := &Session{ID: "s1", CreatedAt: now, UpdatedAt: now}

	require.NoError(t, s.AppendIteration(IterationRecord{ThoughtNumber: 1, Timestamp: now}))
	require.NoError(t, s.AppendIteration(IterationRecord{ThoughtNumber: 2, Timestamp: now}))
	assert.Equal(t, 2, s.CurrentLoop)
	assert.Len(t, s.Iterations, s.CurrentLoop)

	s.MarkComplete("done", now)
	err := s.AppendIteration(IterationRecord{ThoughtNumber: 3, Timestamp: now})
	assert.True(t, errors.Is(err, ErrSessionComplete))
	assert.Equal(t, 2, s.CurrentLoop)
}

func TestSessionRecentIterations(t *testing.T) {
	s := &Session{}
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.AppendIteration(IterationRecord{ThoughtNumber: i}))
	}

	recent := s.RecentIterations(3)
	require.Len(t, recent, 3)
	assert.Equal(t, 3, recent[0].ThoughtNumber)
	assert.Equal(t, 5, recent[2].ThoughtNumber)

	assert.Len(t, s.RecentIterations(10), 5)
	assert.Nil(t, s.RecentIterations(0))
}

func TestSessionLastScore(t *testing.T) {
	s := &Session{}
	assert.Equal(t, -1, s.LastScore())

	require.NoError(t, s.AppendIteration(IterationRecord{
		ThoughtNumber: 1,
		AuditResult:   &AuditReview{Overall: 77},
	}))
	assert.Equal(t, 77, s.LastScore())
}

func TestSessionClone(t *testing.T) {
	s := &Session{ID: "s1"}
	require.NoError(t, s.AppendIteration(IterationRecord{ThoughtNumber: 1, Code: "a"}))

	c := s.Clone()
	c.Iterations[0].Code = "mutated"
	assert.Equal(t, "a", s.Iterations[0].Code)
}

func TestDiagnosticError(t *testing.T) {
	diag := NewDiagnostic(CategoryTimeout, "deadline exceeded", "30s").
		WithSuggestions("raise the timeout").
		WithLinks("https://example.invalid/docs")

	assert.Equal(t, "timeout: deadline exceeded", diag.Error())
	assert.Equal(t, SeverityError, diag.Severity)

	var err error = diag
	var recovered *Diagnostic
	require.True(t, errors.As(err, &recovered))
	assert.Equal(t, CategoryTimeout, recovered.Category)
}
