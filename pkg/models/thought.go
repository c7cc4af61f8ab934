// Package models holds the value types shared across the audit pipeline:
// inbound thoughts, audit requests and reviews, sessions, completion results,
// and diagnostics. Everything here is plain data — no I/O, no goroutines.
package models

// Thought is the inbound tool argument produced by the upstream coding agent.
// BranchID doubles as the session identifier for loop continuity.
type Thought struct {
	Thought           string `json:"thought"`
	ThoughtNumber     int    `json:"thoughtNumber"`
	TotalThoughts     int    `json:"totalThoughts"`
	NextThoughtNeeded bool   `json:"nextThoughtNeeded"`
	BranchID          string `json:"branchId,omitempty"`
	LoopID            string `json:"loopId,omitempty"`
	IsRevision        *bool  `json:"isRevision,omitempty"`
	RevisesThought    *int   `json:"revisesThought,omitempty"`
	BranchFromThought *int   `json:"branchFromThought,omitempty"`
}

// Validate checks the required fields and value ranges of an inbound thought.
// Returns a validation Diagnostic on the first violation found.
func (t *Thought) Validate() *Diagnostic {
	if t.Thought == "" {
		return NewDiagnostic(CategoryValidation, "thought must not be empty", "").
			WithSuggestions("Provide the candidate code or analysis text in the 'thought' field")
	}
	if t.ThoughtNumber < 1 {
		return NewDiagnostic(CategoryValidation, "thoughtNumber must be >= 1", "")
	}
	if t.TotalThoughts < 1 {
		return NewDiagnostic(CategoryValidation, "totalThoughts must be >= 1", "")
	}
	if t.RevisesThought != nil && *t.RevisesThought < 1 {
		return NewDiagnostic(CategoryValidation, "revisesThought must be >= 1", "")
	}
	if t.BranchFromThought != nil && *t.BranchFromThought < 1 {
		return NewDiagnostic(CategoryValidation, "branchFromThought must be >= 1", "")
	}
	return nil
}

// SessionID returns the session key for this thought: the branch id when set,
// otherwise the shared default session.
func (t *Thought) SessionID() string {
	if t.BranchID != "" {
		return t.BranchID
	}
	return "default"
}
