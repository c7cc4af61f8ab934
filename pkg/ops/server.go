// Package ops serves the optional read-only HTTP inspection endpoint.
// Disabled unless an address is configured; never on the audit path.
package ops

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/ganaudit/pkg/process"
	"github.com/codeready-toolchain/ganaudit/pkg/store"
	"github.com/codeready-toolchain/ganaudit/pkg/version"
)

// Server exposes /health and /sessions for operators.
type Server struct {
	sessions *store.Store
	procs    *process.Manager
	httpSrv  *http.Server
}

// NewServer creates an ops server bound to addr.
func NewServer(addr string, sessions *store.Store, procs *process.Manager) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{sessions: sessions, procs: procs}
	router.GET("/health", s.health)
	router.GET("/sessions", s.listSessions)

	s.httpSrv = &http.Server{Addr: addr, Handler: router}
	return s
}

// Start serves in a background goroutine until Stop is called.
func (s *Server) Start() {
	go func() {
		slog.Info("Ops endpoint listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Ops endpoint failed", "error", err)
		}
	}()
}

// Stop shuts the endpoint down gracefully.
func (s *Server) Stop(ctx context.Context) {
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		slog.Warn("Ops endpoint shutdown error", "error", err)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"version":       version.Full(),
		"active_audits": s.procs.ActiveCount(),
		"time":          time.Now().UTC(),
	})
}

func (s *Server) listSessions(c *gin.Context) {
	sessions, err := s.sessions.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	summaries := make([]gin.H, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, gin.H{
			"id":          session.ID,
			"currentLoop": session.CurrentLoop,
			"isComplete":  session.IsComplete,
			"updatedAt":   session.UpdatedAt,
			"lastScore":   session.LastScore(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": summaries, "count": len(summaries)})
}
