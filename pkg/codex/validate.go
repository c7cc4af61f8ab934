package codex

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/codeready-toolchain/ganaudit/pkg/config"
	"github.com/codeready-toolchain/ganaudit/pkg/process"
)

// versionRegex extracts a semantic version from the CLI's --version output.
var versionRegex = regexp.MustCompile(`\d+\.\d+\.\d+(?:[-+][0-9A-Za-z.-]+)?`)

// ValidationResult is the outcome of the one-shot startup availability check.
type ValidationResult struct {
	Available         bool     `json:"available"`
	Executable        string   `json:"executable,omitempty"`
	Version           string   `json:"version,omitempty"`
	EnvironmentIssues []string `json:"environmentIssues,omitempty"`
	Recommendations   []string `json:"recommendations,omitempty"`
}

// ValidateAvailability runs the configured executable with a version probe
// under a short deadline and checks the reported version against the
// configured minimum. Run once at startup; the server refuses audit requests
// until it has succeeded.
func ValidateAvailability(ctx context.Context, resolver *EnvResolver, mgr *process.Manager, cfg *config.CodexConfig) *ValidationResult {
	result := &ValidationResult{}

	executable, err := resolver.ResolveExecutable()
	if err != nil {
		result.EnvironmentIssues = append(result.EnvironmentIssues, err.Error())
		result.Recommendations = append(result.Recommendations,
			"Install the Codex CLI and ensure it is on PATH, or set codex.executable_candidates")
		return result
	}
	result.Executable = executable

	probe, err := mgr.Execute(ctx, executable, []string{"--version"}, process.Options{
		Timeout: cfg.VersionProbeTimeout,
		Env:     resolver.BuildEnvironment(),
	})
	if err != nil {
		result.EnvironmentIssues = append(result.EnvironmentIssues,
			fmt.Sprintf("version probe failed: %v", err))
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("Run '%s --version' manually and fix whatever prevents it from executing", executable))
		return result
	}
	if probe.ExitCode != 0 {
		result.EnvironmentIssues = append(result.EnvironmentIssues,
			fmt.Sprintf("version probe exited with code %d: %s", probe.ExitCode, firstLine(probe.Stderr)))
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("Run '%s --version' manually and inspect its stderr", executable))
		return result
	}

	version := versionRegex.FindString(firstLine(probe.Stdout))
	if version == "" {
		result.EnvironmentIssues = append(result.EnvironmentIssues,
			fmt.Sprintf("no semantic version on the first line of version output: %q", firstLine(probe.Stdout)))
		result.Recommendations = append(result.Recommendations,
			"Check that the configured executable is actually the Codex CLI")
		return result
	}
	result.Version = version

	parsed, err := semver.NewVersion(version)
	if err != nil {
		result.EnvironmentIssues = append(result.EnvironmentIssues,
			fmt.Sprintf("cannot parse reported version %q: %v", version, err))
		return result
	}
	minimum := semver.MustParse(cfg.MinVersion)
	if parsed.LessThan(minimum) {
		result.EnvironmentIssues = append(result.EnvironmentIssues,
			fmt.Sprintf("Codex CLI version %s is below the minimum %s", version, cfg.MinVersion))
		result.Recommendations = append(result.Recommendations,
			"Upgrade the Codex CLI to a supported version")
		return result
	}

	result.Available = true
	slog.Info("Codex CLI available", "executable", executable, "version", version)
	return result
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}
