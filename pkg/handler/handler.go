// Package handler owns the end-to-end request lifecycle: validate the inbound
// thought, decide whether it is audit-worthy, serialize audits per session,
// and assemble the response envelope. Sessions execute in parallel; within one
// session id, at most one audit runs at a time.
package handler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/codeready-toolchain/ganaudit/pkg/completion"
	"github.com/codeready-toolchain/ganaudit/pkg/config"
	"github.com/codeready-toolchain/ganaudit/pkg/feedback"
	"github.com/codeready-toolchain/ganaudit/pkg/models"
	"github.com/codeready-toolchain/ganaudit/pkg/respond"
	"github.com/codeready-toolchain/ganaudit/pkg/stagnation"
	"github.com/codeready-toolchain/ganaudit/pkg/store"
)

// AuditEngine is the slice of the codex engine the handler needs.
type AuditEngine interface {
	Audit(ctx context.Context, thought string, loopID string) (*models.AuditReview, error)
}

// Handler routes thoughts through the audit pipeline.
type Handler struct {
	cfg        *config.Config
	engine     AuditEngine
	sessions   *store.Store
	contexts   *store.ContextManager
	evaluator  *completion.Evaluator
	detector   *stagnation.Detector
	builder    *feedback.Builder
	locks      *keyedLocks
	sessionSem *semaphore.Weighted

	// available flips once the startup availability check passes; audit
	// requests are refused before that.
	available atomic.Bool

	// In-memory thought history and branch map, bounded by the history cap.
	mu       sync.Mutex
	history  []historyEntry
	branches map[string]int
}

type historyEntry struct {
	branchID      string
	thoughtNumber int
}

// New creates a request handler.
func New(
	cfg *config.Config,
	engine AuditEngine,
	sessions *store.Store,
	contexts *store.ContextManager,
	evaluator *completion.Evaluator,
	detector *stagnation.Detector,
	builder *feedback.Builder,
) *Handler {
	return &Handler{
		cfg:        cfg,
		engine:     engine,
		sessions:   sessions,
		contexts:   contexts,
		evaluator:  evaluator,
		detector:   detector,
		builder:    builder,
		locks:      newKeyedLocks(),
		sessionSem: semaphore.NewWeighted(int64(cfg.Sessions.MaxConcurrent)),
		branches:   make(map[string]int),
	}
}

// SetAvailable marks the Codex CLI as validated and the audit path open.
func (h *Handler) SetAvailable(ok bool) {
	h.available.Store(ok)
}

// Handle processes one thought end to end.
func (h *Handler) Handle(ctx context.Context, thought *models.Thought) (*respond.Envelope, error) {
	if diag := thought.Validate(); diag != nil {
		return nil, diag
	}

	branches, historyLen := h.recordThought(thought)

	if !h.cfg.AuditEnabled() || !shouldAudit(thought.Thought) {
		return respond.Assemble(respond.Input{
			Thought:       thought,
			Branches:      branches,
			HistoryLength: historyLen,
		})
	}

	if !h.available.Load() {
		return nil, models.NewDiagnostic(models.CategoryInstallation,
			"Codex CLI has not passed the startup availability check", "").
			WithSuggestions("Check the server startup log for the validation failure")
	}

	if !h.cfg.Synchronous() {
		// Legacy contract: dispatch the audit detached, results logged only,
		// and answer with the standard envelope immediately.
		go h.auditDetached(thought)
		return respond.Assemble(respond.Input{
			Thought:       thought,
			Branches:      branches,
			HistoryLength: historyLen,
			SessionID:     thought.SessionID(),
		})
	}

	if err := h.sessionSem.Acquire(ctx, 1); err != nil {
		return nil, models.NewDiagnostic(models.CategoryProcess,
			"cancelled while waiting for a session slot", err.Error())
	}
	defer h.sessionSem.Release(1)

	return h.auditSynchronous(ctx, thought, branches, historyLen)
}

// auditSynchronous runs one full audit cycle under the per-session lock.
func (h *Handler) auditSynchronous(ctx context.Context, thought *models.Thought, branches []string, historyLen int) (*respond.Envelope, error) {
	sessionID := thought.SessionID()
	release := h.locks.Acquire(sessionID)
	defer release()

	session, err := h.sessions.GetOrCreate(sessionID, thought.LoopID)
	if err != nil {
		return nil, models.NewDiagnostic(models.CategoryEnvironment,
			"cannot read session state", err.Error())
	}

	if session.IsComplete {
		// Once complete, no further iterations are appended; report the
		// terminal state back instead of re-auditing.
		return respond.Assemble(respond.Input{
			Thought:       thought,
			Branches:      branches,
			HistoryLength: historyLen,
			SessionID:     sessionID,
			Completion: &models.CompletionResult{
				Status:            models.StatusCompleted,
				Reason:            session.CompletionReason,
				NextThoughtNeeded: false,
			},
		})
	}

	contextToken := h.contexts.Start(ctx, session, thought.LoopID)
	if err := h.sessions.Update(session); err != nil {
		slog.Warn("Failed to persist session context state", "session_id", sessionID, "error", err)
	}

	review, err := h.engine.Audit(ctx, thought.Thought, contextToken)
	if err != nil {
		// Subprocess failures surface per-request; the session is unchanged.
		return nil, err
	}

	session, err = h.sessions.Append(sessionID, models.IterationRecord{
		ThoughtNumber: thought.ThoughtNumber,
		Code:          thought.Thought,
		AuditResult:   review,
		Timestamp:     time.Now().UTC(),
	})
	if err != nil {
		return nil, models.NewDiagnostic(models.CategoryEnvironment,
			"cannot persist session iteration", err.Error())
	}

	result := h.evaluator.Evaluate(completion.Input{
		Score:       review.Overall,
		Loop:        session.CurrentLoop,
		Stagnant:    h.detector.IsStagnant(session.Iterations),
		HasCritical: feedback.HasCriticalIssue(review.Review.Inline),
	})

	if result.Done() {
		session.MarkComplete(result.Reason, time.Now().UTC())
		h.contexts.Terminate(ctx, session, string(result.Status))
		if err := h.sessions.Update(session); err != nil {
			slog.Error("Failed to persist completed session", "session_id", sessionID, "error", err)
		}
	}

	return respond.Assemble(respond.Input{
		Thought:       thought,
		Branches:      branches,
		HistoryLength: historyLen,
		SessionID:     sessionID,
		Review:        review,
		Completion:    result,
		Feedback:      h.builder.Build(review, session.Iterations),
	})
}

// auditDetached runs a best-effort audit whose result is logged only.
// It shares nothing with the synchronous path except the session store,
// which serializes per session via the same lock map.
func (h *Handler) auditDetached(thought *models.Thought) {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.Audit.Timeout+h.cfg.Process.GracePeriod)
	defer cancel()

	sessionID := thought.SessionID()
	release := h.locks.Acquire(sessionID)
	defer release()

	if _, err := h.sessions.GetOrCreate(sessionID, thought.LoopID); err != nil {
		slog.Warn("Detached audit cannot open its session", "session_id", sessionID, "error", err)
		return
	}

	review, err := h.engine.Audit(ctx, thought.Thought, thought.LoopID)
	if err != nil {
		slog.Warn("Detached audit failed", "session_id", sessionID, "error", err)
		return
	}
	if _, err := h.sessions.Append(sessionID, models.IterationRecord{
		ThoughtNumber: thought.ThoughtNumber,
		Code:          thought.Thought,
		AuditResult:   review,
		Timestamp:     time.Now().UTC(),
	}); err != nil {
		slog.Warn("Detached audit could not persist its iteration",
			"session_id", sessionID, "error", err)
		return
	}
	slog.Info("Detached audit completed",
		"session_id", sessionID, "overall", review.Overall, "verdict", review.Verdict)
}

// recordThought updates the bounded in-memory history and the branch map,
// returning the branch list and history length for the envelope.
func (h *Handler) recordThought(thought *models.Thought) ([]string, int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.history = append(h.history, historyEntry{
		branchID:      thought.BranchID,
		thoughtNumber: thought.ThoughtNumber,
	})
	if thought.BranchID != "" {
		h.branches[thought.BranchID]++
	}
	// Evict oldest-first beyond the cap, dropping branch counts with them.
	for len(h.history) > h.cfg.Audit.HistoryLimit {
		evicted := h.history[0]
		h.history = h.history[1:]
		if evicted.branchID != "" {
			if h.branches[evicted.branchID]--; h.branches[evicted.branchID] <= 0 {
				delete(h.branches, evicted.branchID)
			}
		}
	}

	branches := make([]string, 0, len(h.branches))
	for id := range h.branches {
		branches = append(branches, id)
	}
	sort.Strings(branches)
	return branches, len(h.history)
}
