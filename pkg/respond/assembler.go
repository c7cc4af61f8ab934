// Package respond assembles the response envelope returned to the upstream
// agent: standard thought-tracking fields, the audit review, completion
// analysis, and structured feedback. Assembly is a deterministic merge with a
// final schema check — emitting a malformed envelope is a bug, not a
// recoverable condition.
package respond

import (
	"fmt"
	"log/slog"

	"github.com/codeready-toolchain/ganaudit/pkg/feedback"
	"github.com/codeready-toolchain/ganaudit/pkg/models"
)

// Envelope is the success payload of one tool call.
type Envelope struct {
	ThoughtNumber        int      `json:"thoughtNumber"`
	TotalThoughts        int      `json:"totalThoughts"`
	NextThoughtNeeded    bool     `json:"nextThoughtNeeded"`
	Branches             []string `json:"branches"`
	ThoughtHistoryLength int      `json:"thoughtHistoryLength"`

	SessionID  string                   `json:"sessionId,omitempty"`
	Gan        *models.AuditReview      `json:"gan,omitempty"`
	Completion *models.CompletionResult `json:"completion,omitempty"`
	Feedback   *feedback.Document       `json:"feedback,omitempty"`
}

// Input collects everything one assembly needs.
type Input struct {
	Thought       *models.Thought
	Branches      []string
	HistoryLength int
	SessionID     string
	Review        *models.AuditReview
	Completion    *models.CompletionResult
	Feedback      *feedback.Document
}

// Assemble merges the input into a validated envelope.
//
// nextThoughtNeeded resolution, in order of precedence:
//  1. completed/terminated forces false,
//  2. a revise/reject verdict forces true,
//  3. otherwise the caller's value stands.
func Assemble(in Input) (*Envelope, error) {
	env := &Envelope{
		ThoughtNumber:        in.Thought.ThoughtNumber,
		TotalThoughts:        in.Thought.TotalThoughts,
		NextThoughtNeeded:    in.Thought.NextThoughtNeeded,
		Branches:             in.Branches,
		ThoughtHistoryLength: in.HistoryLength,
		SessionID:            in.SessionID,
		Completion:           in.Completion,
		Feedback:             in.Feedback,
	}
	if env.Branches == nil {
		env.Branches = []string{}
	}

	if in.Review != nil {
		review := *in.Review
		if in.Completion != nil {
			review.Review.Summary = annotateSummary(review.Review.Summary, in.Completion)
		}
		env.Gan = &review

		if review.Verdict == models.VerdictRevise || review.Verdict == models.VerdictReject {
			env.NextThoughtNeeded = true
		}
	}

	// Completion wins over everything, including the verdict override.
	if in.Completion != nil && in.Completion.Done() {
		env.NextThoughtNeeded = false
	}

	if err := validateEnvelope(env); err != nil {
		slog.Error("Assembled envelope failed schema validation", "error", err)
		return nil, models.NewDiagnostic(models.CategoryValidation,
			"assembled response failed schema validation", err.Error())
	}
	return env, nil
}

// annotateSummary appends the completion analysis to the review summary.
func annotateSummary(summary string, completion *models.CompletionResult) string {
	switch completion.Status {
	case models.StatusCompleted:
		name := ""
		if completion.Tier != nil {
			name = completion.Tier.Name
		}
		return fmt.Sprintf("%s\n\n✅ COMPLETION: %s — %s", summary, name, completion.Reason)
	case models.StatusTerminated:
		name := ""
		if completion.KillSwitch != nil {
			name = completion.KillSwitch.Name
		}
		return fmt.Sprintf("%s\n\n⚠️ TERMINATED: %s — %s", summary, name, completion.Reason)
	default:
		return summary
	}
}

// validateEnvelope enforces the outbound schema: required fields present,
// scores in range, verdict and status in their sets.
func validateEnvelope(env *Envelope) error {
	if env.ThoughtNumber < 1 {
		return fmt.Errorf("thoughtNumber %d < 1", env.ThoughtNumber)
	}
	if env.TotalThoughts < 1 {
		return fmt.Errorf("totalThoughts %d < 1", env.TotalThoughts)
	}
	if env.Branches == nil {
		return fmt.Errorf("branches must not be nil")
	}
	if env.ThoughtHistoryLength < 0 {
		return fmt.Errorf("thoughtHistoryLength %d < 0", env.ThoughtHistoryLength)
	}
	if env.Gan != nil {
		if diag := env.Gan.Validate(); diag != nil {
			return diag
		}
	}
	if env.Completion != nil {
		switch env.Completion.Status {
		case models.StatusInProgress, models.StatusCompleted, models.StatusTerminated:
		default:
			return fmt.Errorf("completion status %q not in its set", env.Completion.Status)
		}
		if env.Completion.Done() && env.NextThoughtNeeded {
			return fmt.Errorf("nextThoughtNeeded must be false when completion is %s", env.Completion.Status)
		}
	}
	return nil
}
