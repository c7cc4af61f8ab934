package models

import "fmt"

// Verdict is the external CLI's categorical judgement of a candidate.
// Distinct from CompletionStatus, which this server computes.
type Verdict string

// Verdicts the Codex CLI may return.
const (
	VerdictPass   Verdict = "pass"
	VerdictRevise Verdict = "revise"
	VerdictReject Verdict = "reject"
)

// Valid reports whether v is one of the allowed verdicts.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictPass, VerdictRevise, VerdictReject:
		return true
	}
	return false
}

// ContextScope selects how much of the repository the audit may read.
type ContextScope string

// Context scopes.
const (
	ScopeDiff      ContextScope = "diff"
	ScopePaths     ContextScope = "paths"
	ScopeWorkspace ContextScope = "workspace"
)

// Valid reports whether s is one of the allowed scopes.
func (s ContextScope) Valid() bool {
	switch s {
	case ScopeDiff, ScopePaths, ScopeWorkspace:
		return true
	}
	return false
}

// RubricDimension is one weighted quality dimension of the audit rubric.
type RubricDimension struct {
	Name   string `json:"name"`
	Weight int    `json:"weight"`
}

// DefaultRubric returns the six standard audit dimensions with their weights.
func DefaultRubric() []RubricDimension {
	return []RubricDimension{
		{Name: "Correctness", Weight: 30},
		{Name: "Tests", Weight: 20},
		{Name: "Style", Weight: 15},
		{Name: "Security", Weight: 15},
		{Name: "Performance", Weight: 10},
		{Name: "Docs", Weight: 10},
	}
}

// AuditBudget bounds a single audit invocation.
type AuditBudget struct {
	MaxCycles      int `json:"maxCycles"`
	ScoreThreshold int `json:"scoreThreshold"`
}

// AuditRequest is the payload written to the Codex CLI's stdin as JSON.
type AuditRequest struct {
	Candidate    string            `json:"candidate"`
	Task         string            `json:"task"`
	SystemPrompt string            `json:"systemPrompt,omitempty"`
	Scope        ContextScope      `json:"scope"`
	Paths        []string          `json:"paths,omitempty"`
	Rubric       []RubricDimension `json:"rubric"`
	Judges       []string          `json:"judges,omitempty"`
	Budget       AuditBudget       `json:"budget"`
	LoopID       string            `json:"loopId,omitempty"`
}

// DimensionScore is one scored rubric dimension in a review.
type DimensionScore struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// InlineComment is a file-and-line anchored review comment.
type InlineComment struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Comment string `json:"comment"`
}

// ReviewBody carries the free-text portion of a review.
type ReviewBody struct {
	Summary string          `json:"summary"`
	Inline  []InlineComment `json:"inline,omitempty"`
}

// JudgeCard records one judge model's contribution to the review.
type JudgeCard struct {
	Model string `json:"model"`
	Score int    `json:"score"`
	Notes string `json:"notes,omitempty"`
}

// AuditReview is the strictly parsed response of one Codex CLI invocation.
type AuditReview struct {
	Overall    int              `json:"overall"`
	Verdict    Verdict          `json:"verdict"`
	Dimensions []DimensionScore `json:"dimensions"`
	Review     ReviewBody       `json:"review"`
	JudgeCards []JudgeCard      `json:"judge_cards,omitempty"`
	Iterations int              `json:"iterations,omitempty"`
}

// Validate checks value ranges on a parsed review. It returns a validation
// Diagnostic on the first violation; scores are never clamped.
func (r *AuditReview) Validate() *Diagnostic {
	if r.Overall < 0 || r.Overall > 100 {
		return NewDiagnostic(CategoryValidation,
			fmt.Sprintf("overall score %d outside 0..100", r.Overall), "")
	}
	if !r.Verdict.Valid() {
		return NewDiagnostic(CategoryValidation,
			fmt.Sprintf("verdict %q not in {pass, revise, reject}", r.Verdict), "")
	}
	if len(r.Dimensions) == 0 {
		return NewDiagnostic(CategoryValidation, "review has no dimensions", "")
	}
	for _, d := range r.Dimensions {
		if d.Score < 0 || d.Score > 100 {
			return NewDiagnostic(CategoryValidation,
				fmt.Sprintf("dimension %q score %d outside 0..100", d.Name, d.Score), "")
		}
	}
	for _, c := range r.JudgeCards {
		if c.Score < 0 || c.Score > 100 {
			return NewDiagnostic(CategoryValidation,
				fmt.Sprintf("judge %q score %d outside 0..100", c.Model, c.Score), "")
		}
	}
	return nil
}
