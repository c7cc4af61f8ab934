package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/ganaudit/pkg/models"
)

// ContextNotifier informs the external CLI about context-window lifecycle
// transitions. Implementations may be flaky; every call is retried briefly
// and failures are tolerated — context continuity is best-effort and must
// never block or fail an audit.
type ContextNotifier interface {
	StartContext(ctx context.Context, contextID string) error
	TerminateContext(ctx context.Context, contextID, reason string) error
}

// NoopNotifier satisfies ContextNotifier without doing anything. Used when
// the CLI manages its own context windows from the loopId in the request.
type NoopNotifier struct{}

// StartContext implements ContextNotifier.
func (NoopNotifier) StartContext(context.Context, string) error { return nil }

// TerminateContext implements ContextNotifier.
func (NoopNotifier) TerminateContext(context.Context, string, string) error { return nil }

// ContextManager binds codex context tokens to sessions. Persistence of the
// mutated session is the caller's responsibility — the handler updates the
// store once per audit cycle.
type ContextManager struct {
	notifier  ContextNotifier
	opTimeout time.Duration
}

// NewContextManager creates a context manager. A nil notifier means no-op.
func NewContextManager(notifier ContextNotifier, opTimeout time.Duration) *ContextManager {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &ContextManager{notifier: notifier, opTimeout: opTimeout}
}

// Start allocates a context token for the session unless one is active.
// The caller-provided loopID wins over a generated token. Returns the active
// token. Notifier failures are logged and the token kept — the CLI receives
// the loopId with each audit request anyway.
func (m *ContextManager) Start(ctx context.Context, session *models.Session, loopID string) string {
	if session.CodexContextActive && session.CodexContextID != "" {
		return session.CodexContextID
	}

	token := loopID
	if token == "" {
		token = uuid.New().String()
	}
	session.CodexContextID = token
	session.CodexContextActive = true

	if err := m.notify(ctx, func(c context.Context) error {
		return m.notifier.StartContext(c, token)
	}); err != nil {
		slog.Warn("Codex context start failed, continuing without continuity",
			"session_id", session.ID, "context_id", token, "error", err)
	}
	return token
}

// Maintain refreshes the binding; currently the token survives as long as the
// session does, so this only reports whether a context is active.
func (m *ContextManager) Maintain(session *models.Session) bool {
	return session.CodexContextActive && session.CodexContextID != ""
}

// Terminate releases the session's context token with a reason
// (completed, terminated, failed). Safe to call when no context is active.
func (m *ContextManager) Terminate(ctx context.Context, session *models.Session, reason string) {
	if !session.CodexContextActive || session.CodexContextID == "" {
		return
	}
	token := session.CodexContextID
	session.CodexContextActive = false

	if err := m.notify(ctx, func(c context.Context) error {
		return m.notifier.TerminateContext(c, token, reason)
	}); err != nil {
		slog.Warn("Codex context terminate failed",
			"session_id", session.ID, "context_id", token, "reason", reason, "error", err)
	}
}

// notify runs op under the configured timeout with a short retry budget.
func (m *ContextManager) notify(ctx context.Context, op func(context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), opCtx)
	return backoff.Retry(func() error { return op(opCtx) }, policy)
}
