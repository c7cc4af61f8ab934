// Package codex integrates the external Codex CLI: executable and working
// directory resolution, the startup availability check, and the audit engine
// that drives one CLI invocation per audit.
package codex

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/codeready-toolchain/ganaudit/pkg/config"
	"github.com/codeready-toolchain/ganaudit/pkg/models"
)

// repoMarkers identify a repository root while walking upward from the
// process working directory.
var repoMarkers = []string{".git", "go.mod", "package.json", "Cargo.toml", "pyproject.toml"}

// EnvResolver resolves the Codex executable, the audit working directory, and
// the sanitized child environment. The executable lookup is cached for the
// process lifetime.
type EnvResolver struct {
	cfg *config.CodexConfig

	mu         sync.Mutex
	executable string
}

// NewEnvResolver creates a resolver for the given Codex configuration.
func NewEnvResolver(cfg *config.CodexConfig) *EnvResolver {
	return &EnvResolver{cfg: cfg}
}

// ResolveExecutable tries the configured candidates in order: a bare name is
// looked up in PATH, a value containing a path separator must be an executable
// file. Names outside the candidate list are not searched. The first hit is
// cached and returned for all later calls.
func (r *EnvResolver) ResolveExecutable() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.executable != "" {
		return r.executable, nil
	}

	var tried []string
	for _, candidate := range r.cfg.ExecutableCandidates {
		tried = append(tried, candidate)

		// Bare names go through PATH; anything with a separator is a
		// concrete location.
		if strings.ContainsRune(candidate, os.PathSeparator) {
			if isExecutableFile(candidate) {
				r.executable = candidate
				return candidate, nil
			}
			continue
		}
		if path, err := exec.LookPath(candidate); err == nil {
			r.executable = path
			return path, nil
		}
	}

	return "", models.NewDiagnostic(models.CategoryInstallation,
		"Codex CLI executable not found",
		fmt.Sprintf("tried: %s", strings.Join(tried, ", "))).
		WithSeverity(models.SeverityCritical).
		WithSuggestions(
			"Install the Codex CLI and ensure it is on PATH",
			"Or set codex.executable_candidates to its absolute path",
		).
		WithLinks("https://github.com/openai/codex")
}

// ResolveWorkingDirectory computes the audit working directory.
//
// A readable directory hint wins, but only when it resolves inside (or equal
// to) the process working directory tree — symlink escapes and upward
// traversal are rejected. Without a usable hint, the resolver walks upward
// from the process CWD looking for a repository marker, falling back to the
// CWD itself.
func (r *EnvResolver) ResolveWorkingDirectory(hint string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", models.NewDiagnostic(models.CategoryEnvironment,
			"cannot determine process working directory", err.Error())
	}

	if hint == "" {
		hint = r.cfg.WorkingDirectory
	}
	if hint != "" {
		resolved, hintErr := resolveHint(cwd, hint)
		if hintErr != nil {
			return "", hintErr
		}
		return resolved, nil
	}

	return findRepoRoot(cwd), nil
}

// resolveHint validates a working-directory hint against the CWD tree.
func resolveHint(cwd, hint string) (string, error) {
	abs := hint
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(cwd, hint)
	}

	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", models.NewDiagnostic(models.CategoryEnvironment,
			fmt.Sprintf("working directory hint %q is not a readable directory", hint), "")
	}

	// Symlink escapes are forbidden: compare fully resolved paths.
	realCwd, err := filepath.EvalSymlinks(cwd)
	if err != nil {
		realCwd = cwd
	}
	realHint, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", models.NewDiagnostic(models.CategoryEnvironment,
			fmt.Sprintf("cannot resolve working directory hint %q", hint), err.Error())
	}
	if realHint != realCwd && !strings.HasPrefix(realHint, realCwd+string(os.PathSeparator)) {
		return "", models.NewDiagnostic(models.CategoryEnvironment,
			fmt.Sprintf("working directory hint %q escapes the process working directory tree", hint), "").
			WithSuggestions("Use a directory inside the current repository")
	}

	return realHint, nil
}

// findRepoRoot walks upward from dir until a repository marker is found.
// Returns dir unchanged when no marker exists on the path to the filesystem root.
func findRepoRoot(dir string) string {
	current := dir
	for {
		for _, marker := range repoMarkers {
			if _, err := os.Stat(filepath.Join(current, marker)); err == nil {
				return current
			}
		}
		parent := filepath.Dir(current)
		if parent == current {
			return dir
		}
		current = parent
	}
}

// BuildEnvironment assembles the child environment from the preserve-list plus
// operator-specified additions. Variables not on the list are never
// propagated, so secrets the operator did not opt into stay in the parent.
func (r *EnvResolver) BuildEnvironment() []string {
	env := make([]string, 0, len(r.cfg.PreserveEnvVars)+len(r.cfg.ExtraEnv))
	for _, key := range r.cfg.PreserveEnvVars {
		if value, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+value)
		}
	}
	for key, value := range r.cfg.ExtraEnv {
		env = append(env, key+"="+value)
	}
	return env
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
