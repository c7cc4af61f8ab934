package models

import (
	"errors"
	"time"
)

// ErrSessionComplete is returned when an iteration is appended to a session
// that has already been marked complete.
var ErrSessionComplete = errors.New("session is complete")

// IterationRecord is one audited candidate within a session.
type IterationRecord struct {
	ThoughtNumber int          `json:"thoughtNumber"`
	Code          string       `json:"code"`
	AuditResult   *AuditReview `json:"auditResult"`
	Timestamp     time.Time    `json:"timestamp"`
}

// Session is the durable per-branch record of all audit iterations.
// After every successful audit, len(Iterations) == CurrentLoop.
type Session struct {
	ID                 string            `json:"id"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
	CurrentLoop        int               `json:"currentLoop"`
	Iterations         []IterationRecord `json:"iterations"`
	IsComplete         bool              `json:"isComplete"`
	CompletionReason   string            `json:"completionReason,omitempty"`
	CodexContextID     string            `json:"codexContextId,omitempty"`
	CodexContextActive bool              `json:"codexContextActive"`
}

// AppendIteration adds a record and advances the loop counter.
// Appending to a complete session is an error.
func (s *Session) AppendIteration(rec IterationRecord) error {
	if s.IsComplete {
		return ErrSessionComplete
	}
	s.Iterations = append(s.Iterations, rec)
	s.CurrentLoop = len(s.Iterations)
	s.UpdatedAt = rec.Timestamp
	return nil
}

// MarkComplete finalizes the session with the given reason.
func (s *Session) MarkComplete(reason string, now time.Time) {
	s.IsComplete = true
	s.CompletionReason = reason
	s.UpdatedAt = now
}

// RecentIterations returns up to n of the most recent iteration records,
// oldest first.
func (s *Session) RecentIterations(n int) []IterationRecord {
	if n <= 0 || len(s.Iterations) == 0 {
		return nil
	}
	if len(s.Iterations) <= n {
		return s.Iterations
	}
	return s.Iterations[len(s.Iterations)-n:]
}

// LastScore returns the overall score of the most recent iteration,
// or -1 when the session has none.
func (s *Session) LastScore() int {
	if len(s.Iterations) == 0 {
		return -1
	}
	last := s.Iterations[len(s.Iterations)-1]
	if last.AuditResult == nil {
		return -1
	}
	return last.AuditResult.Overall
}

// Clone returns a copy with its own iteration slice so callers can read
// session state without racing the owner. The AuditResult reviews are shared
// pointers, not copied.
func (s *Session) Clone() *Session {
	c := *s
	c.Iterations = make([]IterationRecord, len(s.Iterations))
	copy(c.Iterations, s.Iterations)
	return &c
}
