// Package config loads, defaults, and validates ganaudit configuration.
// Configuration is read once at startup; every option has a default so the
// server runs with an empty config file.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/codeready-toolchain/ganaudit/pkg/models"
)

// Config is the complete runtime configuration.
type Config struct {
	// Audit toggles the whole Codex integration: the startup availability
	// check and the synchronous audit path.
	Audit AuditConfig `yaml:"audit"`

	// Codex configures the external CLI invocation.
	Codex CodexConfig `yaml:"codex"`

	// Process bounds subprocess execution.
	Process ProcessConfig `yaml:"process"`

	// Sessions configures the on-disk session store and its reaper.
	Sessions SessionConfig `yaml:"sessions"`

	// Completion configures tiers, kill switches, and stagnation detection.
	Completion CompletionConfig `yaml:"completion"`

	// Ops configures the optional read-only HTTP inspection endpoint.
	Ops OpsConfig `yaml:"ops"`
}

// AuditConfig governs whether and how audits run.
type AuditConfig struct {
	// Enabled gates the startup availability check and the audit path.
	Enabled *bool `yaml:"enabled,omitempty"`

	// Synchronous selects the blocking audit path. When false, audits are
	// dispatched as detached best-effort tasks (legacy contract).
	Synchronous *bool `yaml:"synchronous,omitempty"`

	// Timeout is the per-audit deadline.
	Timeout time.Duration `yaml:"timeout,omitempty" validate:"omitempty,min=1s"`

	// HistoryLimit caps the in-memory thought history per server instance.
	HistoryLimit int `yaml:"history_limit,omitempty" validate:"omitempty,min=1"`
}

// CodexConfig describes how to find and invoke the Codex CLI.
type CodexConfig struct {
	// ExecutableCandidates are tried in order; bare names are looked up in PATH.
	ExecutableCandidates []string `yaml:"executable_candidates,omitempty"`

	// Subcommand is the CLI subcommand used for audits.
	Subcommand string `yaml:"subcommand,omitempty"`

	// MinVersion is the minimum acceptable CLI version (semver).
	MinVersion string `yaml:"min_version,omitempty"`

	// VersionProbeTimeout bounds the startup --version check.
	VersionProbeTimeout time.Duration `yaml:"version_probe_timeout,omitempty" validate:"omitempty,min=1s"`

	// WorkingDirectory overrides repository-root discovery when set.
	WorkingDirectory string `yaml:"working_directory,omitempty"`

	// PreserveEnvVars lists environment variables passed to the child.
	// Anything not on the list (or in ExtraEnv) is omitted.
	PreserveEnvVars []string `yaml:"preserve_env_vars,omitempty"`

	// ExtraEnv adds operator-specified variables to the child environment.
	ExtraEnv map[string]string `yaml:"extra_env,omitempty"`

	// ContextOpTimeout bounds each best-effort context lifecycle call.
	ContextOpTimeout time.Duration `yaml:"context_op_timeout,omitempty" validate:"omitempty,min=1s"`
}

// ProcessConfig bounds subprocess execution.
type ProcessConfig struct {
	// MaxConcurrent caps simultaneously running children; excess executes
	// queue FIFO.
	MaxConcurrent int `yaml:"max_concurrent,omitempty" validate:"omitempty,min=1"`

	// GracePeriod is the SIGTERM→SIGKILL window.
	GracePeriod time.Duration `yaml:"grace_period,omitempty" validate:"omitempty,min=100ms"`

	// MaxOutputBytes caps each captured output stream; exceeding it kills
	// the child with a process diagnostic.
	MaxOutputBytes int `yaml:"max_output_bytes,omitempty" validate:"omitempty,min=1024"`
}

// SessionConfig configures the on-disk session store.
type SessionConfig struct {
	// StateDir holds one file per session.
	StateDir string `yaml:"state_dir,omitempty"`

	// MaxAge is the retention window; sessions idle longer are reaped.
	MaxAge time.Duration `yaml:"max_age,omitempty" validate:"omitempty,min=1m"`

	// CleanupInterval is the reaper period.
	CleanupInterval time.Duration `yaml:"cleanup_interval,omitempty" validate:"omitempty,min=10s"`

	// MaxConcurrent caps concurrently served sessions.
	MaxConcurrent int `yaml:"max_concurrent,omitempty" validate:"omitempty,min=1"`
}

// CompletionConfig configures the completion evaluator and stagnation detector.
type CompletionConfig struct {
	// MaxIterations is the hard-stop kill switch.
	MaxIterations int `yaml:"max_iterations,omitempty" validate:"omitempty,min=1"`

	// Tiers are evaluated top-down; first match wins.
	Tiers []models.CompletionTier `yaml:"tiers,omitempty"`

	// StagnationThreshold is the pairwise similarity above which the window
	// counts as stagnant.
	StagnationThreshold float64 `yaml:"stagnation_threshold,omitempty" validate:"omitempty,gt=0,lte=1"`

	// IdenticalThreshold is the stronger identical-content signal.
	IdenticalThreshold float64 `yaml:"identical_threshold,omitempty" validate:"omitempty,gt=0,lte=1"`

	// StagnationStartLoop is the first loop at which stagnation can fire.
	StagnationStartLoop int `yaml:"stagnation_start_loop,omitempty" validate:"omitempty,min=1"`

	// CriticalPersistLoop is the loop at which persisting critical inline
	// comments terminate the session.
	CriticalPersistLoop int `yaml:"critical_persist_loop,omitempty" validate:"omitempty,min=1"`
}

// OpsConfig configures the optional HTTP inspection endpoint.
type OpsConfig struct {
	// Addr enables the endpoint when non-empty, e.g. "127.0.0.1:8925".
	Addr string `yaml:"addr,omitempty"`
}

// Default values applied by ApplyDefaults.
const (
	DefaultAuditTimeout        = 30 * time.Second
	DefaultHistoryLimit        = 1000
	DefaultSubcommand          = "audit"
	DefaultMinVersion          = "0.20.0"
	DefaultVersionProbeTimeout = 10 * time.Second
	DefaultContextOpTimeout    = 10 * time.Second
	DefaultMaxConcurrentAudits = 10
	DefaultGracePeriod         = 5 * time.Second
	DefaultMaxOutputBytes      = 10 << 20
	DefaultSessionMaxAge       = 24 * time.Hour
	DefaultCleanupInterval     = 5 * time.Minute
	DefaultMaxSessions         = 50
	DefaultMaxIterations       = 25
	DefaultStagnationThreshold = 0.95
	DefaultIdenticalThreshold  = 0.99
	DefaultStagnationStart     = 10
	DefaultCriticalPersistLoop = 15
)

// DefaultTiers returns the standard completion ladder.
func DefaultTiers() []models.CompletionTier {
	return []models.CompletionTier{
		{Name: "Excellence", ScoreThreshold: 95, IterationThreshold: 10},
		{Name: "High quality", ScoreThreshold: 90, IterationThreshold: 15},
		{Name: "Acceptable", ScoreThreshold: 85, IterationThreshold: 20},
	}
}

// DefaultPreserveEnvVars returns the environment preserve-list for children.
// Secrets-bearing variables not on this list never reach the child.
func DefaultPreserveEnvVars() []string {
	return []string{
		"PATH", "HOME", "USER", "SHELL", "TERM", "TMPDIR",
		"LANG", "LC_ALL", "LC_CTYPE",
		"XDG_CONFIG_HOME", "XDG_CACHE_HOME", "XDG_DATA_HOME", "XDG_STATE_HOME",
		"CODEX_HOME", "OPENAI_API_KEY", "OPENAI_BASE_URL",
	}
}

// AuditEnabled reports the effective audit toggle (default true).
func (c *Config) AuditEnabled() bool {
	return c.Audit.Enabled == nil || *c.Audit.Enabled
}

// Synchronous reports the effective synchronous-mode toggle (default true).
func (c *Config) Synchronous() bool {
	return c.Audit.Synchronous == nil || *c.Audit.Synchronous
}

// ApplyDefaults fills every unset option with its default value.
func (c *Config) ApplyDefaults() {
	if c.Audit.Timeout == 0 {
		c.Audit.Timeout = DefaultAuditTimeout
	}
	if c.Audit.HistoryLimit == 0 {
		c.Audit.HistoryLimit = DefaultHistoryLimit
	}
	if len(c.Codex.ExecutableCandidates) == 0 {
		c.Codex.ExecutableCandidates = []string{"codex"}
	}
	if c.Codex.Subcommand == "" {
		c.Codex.Subcommand = DefaultSubcommand
	}
	if c.Codex.MinVersion == "" {
		c.Codex.MinVersion = DefaultMinVersion
	}
	if c.Codex.VersionProbeTimeout == 0 {
		c.Codex.VersionProbeTimeout = DefaultVersionProbeTimeout
	}
	if c.Codex.ContextOpTimeout == 0 {
		c.Codex.ContextOpTimeout = DefaultContextOpTimeout
	}
	if len(c.Codex.PreserveEnvVars) == 0 {
		c.Codex.PreserveEnvVars = DefaultPreserveEnvVars()
	}
	if c.Process.MaxConcurrent == 0 {
		c.Process.MaxConcurrent = DefaultMaxConcurrentAudits
	}
	if c.Process.GracePeriod == 0 {
		c.Process.GracePeriod = DefaultGracePeriod
	}
	if c.Process.MaxOutputBytes == 0 {
		c.Process.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if c.Sessions.StateDir == "" {
		c.Sessions.StateDir = defaultStateDir()
	}
	if c.Sessions.MaxAge == 0 {
		c.Sessions.MaxAge = DefaultSessionMaxAge
	}
	if c.Sessions.CleanupInterval == 0 {
		c.Sessions.CleanupInterval = DefaultCleanupInterval
	}
	if c.Sessions.MaxConcurrent == 0 {
		c.Sessions.MaxConcurrent = DefaultMaxSessions
	}
	if c.Completion.MaxIterations == 0 {
		c.Completion.MaxIterations = DefaultMaxIterations
	}
	if len(c.Completion.Tiers) == 0 {
		c.Completion.Tiers = DefaultTiers()
	}
	if c.Completion.StagnationThreshold == 0 {
		c.Completion.StagnationThreshold = DefaultStagnationThreshold
	}
	if c.Completion.IdenticalThreshold == 0 {
		c.Completion.IdenticalThreshold = DefaultIdenticalThreshold
	}
	if c.Completion.StagnationStartLoop == 0 {
		c.Completion.StagnationStartLoop = DefaultStagnationStart
	}
	if c.Completion.CriticalPersistLoop == 0 {
		c.Completion.CriticalPersistLoop = DefaultCriticalPersistLoop
	}
}

// defaultStateDir resolves $XDG_STATE_HOME/ganaudit/sessions, falling back to
// ~/.local/state/ganaudit/sessions, then a temp-dir location when HOME is unset.
func defaultStateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "ganaudit", "sessions")
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".local", "state", "ganaudit", "sessions")
	}
	return filepath.Join(os.TempDir(), "ganaudit", "sessions")
}
