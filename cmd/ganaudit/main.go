// ganaudit is an MCP stdio server that audits coding-agent thoughts by
// invoking the Codex CLI, tracking per-session iteration history, and
// reporting completion or structured improvement feedback.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/ganaudit/pkg/cleanup"
	"github.com/codeready-toolchain/ganaudit/pkg/codex"
	"github.com/codeready-toolchain/ganaudit/pkg/completion"
	"github.com/codeready-toolchain/ganaudit/pkg/config"
	"github.com/codeready-toolchain/ganaudit/pkg/feedback"
	"github.com/codeready-toolchain/ganaudit/pkg/handler"
	"github.com/codeready-toolchain/ganaudit/pkg/masking"
	"github.com/codeready-toolchain/ganaudit/pkg/ops"
	"github.com/codeready-toolchain/ganaudit/pkg/process"
	"github.com/codeready-toolchain/ganaudit/pkg/server"
	"github.com/codeready-toolchain/ganaudit/pkg/stagnation"
	"github.com/codeready-toolchain/ganaudit/pkg/store"
	"github.com/codeready-toolchain/ganaudit/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config",
		getEnv("GANAUDIT_CONFIG", ""),
		"Path to the configuration file (empty = built-in defaults)")
	flag.Parse()

	// Stdout is the protocol channel; all logging goes to stderr.
	setupLogging()

	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env")
	}

	slog.Info("Starting ganaudit", "version", version.Full(), "config", *configPath)

	cfg, err := config.Initialize(*configPath)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		return 1
	}

	sessions, err := store.New(cfg.Sessions.StateDir)
	if err != nil {
		slog.Error("Failed to open session store", "error", err)
		return 1
	}

	procs := process.NewManager(cfg.Process.MaxConcurrent, cfg.Process.GracePeriod, cfg.Process.MaxOutputBytes)
	resolver := codex.NewEnvResolver(&cfg.Codex)
	engine := codex.NewEngine(cfg, resolver, procs)

	h := handler.New(
		cfg,
		engine,
		sessions,
		store.NewContextManager(nil, cfg.Codex.ContextOpTimeout),
		completion.NewEvaluator(&cfg.Completion),
		stagnation.NewDetector(cfg.Completion.StagnationThreshold, cfg.Completion.IdenticalThreshold),
		feedback.NewBuilder(masking.NewService()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Fail fast: when auditing is enabled the Codex CLI must be present,
	// executable, and recent enough — there is no mock fallback.
	if cfg.AuditEnabled() {
		result := codex.ValidateAvailability(ctx, resolver, procs, &cfg.Codex)
		if !result.Available {
			for _, issue := range result.EnvironmentIssues {
				slog.Error("Codex CLI validation failed", "issue", issue)
			}
			for _, rec := range result.Recommendations {
				slog.Info("Recommendation", "action", rec)
			}
			return 1
		}
		h.SetAvailable(true)
	} else {
		slog.Warn("Auditing disabled by configuration; serving passthrough responses only")
	}

	reaper := cleanup.NewService(&cfg.Sessions, sessions)
	reaper.Start(ctx)
	defer reaper.Stop()

	var opsSrv *ops.Server
	if cfg.Ops.Addr != "" {
		opsSrv = ops.NewServer(cfg.Ops.Addr, sessions, procs)
		opsSrv.Start()
	}

	err = server.New(h).Run(ctx)

	// Shutdown: stop accepting, then reap every child before exiting.
	procs.TerminateAll()
	if opsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		opsSrv.Stop(shutdownCtx)
		cancel()
	}

	if err != nil && ctx.Err() == nil {
		slog.Error("MCP server failed", "error", err)
		return 1
	}
	slog.Info("Shutdown complete")
	return 0
}

func setupLogging() {
	level := slog.LevelInfo
	if getEnv("GANAUDIT_LOG_LEVEL", "") == "debug" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
