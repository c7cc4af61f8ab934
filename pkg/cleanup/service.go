// Package cleanup provides the periodic session reaper.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/ganaudit/pkg/config"
	"github.com/codeready-toolchain/ganaudit/pkg/store"
)

// Service periodically deletes stale session files. It never blocks the
// request-handling path and survives individual sweep failures.
type Service struct {
	config *config.SessionConfig
	store  *store.Store

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.SessionConfig, sessionStore *store.Store) *Service {
	return &Service{
		config: cfg,
		store:  sessionStore,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"max_session_age", s.config.MaxAge,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweep()

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Service) sweep() {
	count, err := s.store.Reap(time.Now().UTC(), s.config.MaxAge)
	if err != nil {
		slog.Error("Retention: session sweep failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: reaped stale sessions", "count", count)
	}
}
