//go:build unix

package codex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/ganaudit/pkg/config"
	"github.com/codeready-toolchain/ganaudit/pkg/process"
)

func validationFixture(t *testing.T, script string, minVersion string) *ValidationResult {
	t.Helper()
	dir := t.TempDir()
	bin := writeScript(t, dir, "codex", script)

	cfg := &config.CodexConfig{
		ExecutableCandidates: []string{bin},
		MinVersion:           minVersion,
		VersionProbeTimeout:  5 * time.Second,
	}
	resolver := NewEnvResolver(cfg)
	mgr := process.NewManager(2, 500*time.Millisecond, 1<<20)
	return ValidateAvailability(context.Background(), resolver, mgr, cfg)
}

func TestValidateAvailability_OK(t *testing.T) {
	result := validationFixture(t, `echo "codex-cli 1.4.2"`, "1.0.0")

	assert.True(t, result.Available)
	assert.Equal(t, "1.4.2", result.Version)
	assert.Empty(t, result.EnvironmentIssues)
}

func TestValidateAvailability_VersionTooLow(t *testing.T) {
	result := validationFixture(t, `echo "codex-cli 0.9.0"`, "1.0.0")

	assert.False(t, result.Available)
	require.NotEmpty(t, result.EnvironmentIssues)
	assert.Contains(t, result.EnvironmentIssues[0], "below the minimum")
	assert.NotEmpty(t, result.Recommendations)
}

func TestValidateAvailability_NoVersionInOutput(t *testing.T) {
	result := validationFixture(t, `echo "hello world"`, "1.0.0")

	assert.False(t, result.Available)
	require.NotEmpty(t, result.EnvironmentIssues)
	assert.Contains(t, result.EnvironmentIssues[0], "no semantic version")
}

func TestValidateAvailability_ProbeFails(t *testing.T) {
	result := validationFixture(t, `exit 1`, "1.0.0")

	assert.False(t, result.Available)
	assert.NotEmpty(t, result.EnvironmentIssues)
}

func TestValidateAvailability_ExecutableMissing(t *testing.T) {
	cfg := &config.CodexConfig{
		ExecutableCandidates: []string{"/nope/codex"},
		MinVersion:           "1.0.0",
		VersionProbeTimeout:  time.Second,
	}
	resolver := NewEnvResolver(cfg)
	mgr := process.NewManager(1, 500*time.Millisecond, 1<<20)

	result := ValidateAvailability(context.Background(), resolver, mgr, cfg)
	assert.False(t, result.Available)
	assert.NotEmpty(t, result.EnvironmentIssues)
	assert.NotEmpty(t, result.Recommendations)
}

func TestValidateAvailability_VersionOnFirstLineOnly(t *testing.T) {
	// Version on a later line does not count.
	result := validationFixture(t, "echo banner\necho 2.0.0", "1.0.0")
	assert.False(t, result.Available)
}
