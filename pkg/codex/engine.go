package codex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codeready-toolchain/ganaudit/pkg/config"
	"github.com/codeready-toolchain/ganaudit/pkg/models"
	"github.com/codeready-toolchain/ganaudit/pkg/process"
	"github.com/codeready-toolchain/ganaudit/pkg/prompt"
)

// stdoutExcerptLimit bounds how much raw CLI output travels in a parse
// diagnostic.
const stdoutExcerptLimit = 2048

// Engine composes the environment resolver and the process manager into the
// audit operation: build the request, invoke the CLI, strictly parse the
// review. Reentrant and safe across sessions; per-session serialization is
// the request handler's job.
type Engine struct {
	cfg      *config.Config
	resolver *EnvResolver
	mgr      *process.Manager
	prompts  *prompt.Builder
}

// NewEngine creates an audit engine.
func NewEngine(cfg *config.Config, resolver *EnvResolver, mgr *process.Manager) *Engine {
	return &Engine{cfg: cfg, resolver: resolver, mgr: mgr, prompts: prompt.NewBuilder()}
}

// Audit runs one Codex invocation for the given thought.
//
// Flow:
//  1. Refuse when auditing is globally disabled — there is no fallback path.
//  2. Extract the optional inline config block; defaults fill missing fields.
//  3. Build the command line and the stdin AuditRequest.
//  4. Execute under the configured audit deadline.
//  5. Parse stdout as strict JSON; any parse failure carries the first 2 KiB
//     of stdout in the diagnostic.
//  6. Validate ranges; out-of-range values are rejected, never clamped.
func (e *Engine) Audit(ctx context.Context, thought string, loopID string) (*models.AuditReview, error) {
	if !e.cfg.AuditEnabled() {
		return nil, models.NewDiagnostic(models.CategoryValidation,
			"auditing is disabled by configuration", "").
			WithSuggestions("Set audit.enabled to true to re-enable the Codex integration")
	}

	inline, err := ExtractInlineConfig(thought)
	if err != nil {
		return nil, err
	}

	request := e.buildRequest(thought, inline, loopID)
	e.finishRequest(request)

	executable, err := e.resolver.ResolveExecutable()
	if err != nil {
		return nil, err
	}
	workingDir, err := e.resolver.ResolveWorkingDirectory("")
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, models.NewDiagnostic(models.CategoryValidation,
			"cannot encode audit request", err.Error())
	}

	args := []string{e.cfg.Codex.Subcommand, "--cwd", workingDir}
	result, err := e.mgr.Execute(ctx, executable, args, process.Options{
		WorkingDir:   workingDir,
		Timeout:      e.cfg.Audit.Timeout,
		Env:          e.resolver.BuildEnvironment(),
		StdinPayload: payload,
	})
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, models.NewDiagnostic(models.CategoryProcess,
			fmt.Sprintf("Codex CLI exited with code %d", result.ExitCode),
			excerpt(result.Stderr)).
			WithSuggestions("Inspect the CLI stderr in details; the audit was not retried")
	}

	review, diag := parseReview(result.Stdout)
	if diag != nil {
		return nil, diag
	}

	slog.Debug("Audit completed",
		"overall", review.Overall,
		"verdict", review.Verdict,
		"duration_ms", result.DurationMs)
	return review, nil
}

// buildRequest assembles the AuditRequest from the thought and inline config.
func (e *Engine) buildRequest(thought string, inline *InlineConfig, loopID string) *models.AuditRequest {
	request := &models.AuditRequest{
		Candidate: StripInlineConfig(thought),
		Task:      "Audit the candidate code for correctness, tests, style, security, performance, and docs",
		Scope:     models.ScopeWorkspace,
		Rubric:    models.DefaultRubric(),
		Budget:    models.AuditBudget{MaxCycles: 1, ScoreThreshold: 85},
		LoopID:    loopID,
	}
	if inline == nil {
		return request
	}
	if inline.Task != "" {
		request.Task = inline.Task
	}
	if inline.Scope != "" {
		request.Scope = models.ContextScope(inline.Scope)
	}
	if len(inline.Paths) > 0 {
		request.Paths = inline.Paths
	}
	if len(inline.Judges) > 0 {
		request.Judges = inline.Judges
	}
	if inline.Threshold > 0 {
		request.Budget.ScoreThreshold = inline.Threshold
	}
	if inline.MaxCycles > 0 {
		request.Budget.MaxCycles = inline.MaxCycles
	}
	return request
}

// finishRequest composes the system prompt once the request fields are final.
func (e *Engine) finishRequest(request *models.AuditRequest) {
	request.SystemPrompt = e.prompts.BuildSystemPrompt(request.Task, request.Scope, request.Rubric)
}

// parseReview strictly decodes and validates the CLI's stdout.
// No greedy or partial parsing: trailing garbage is a parse error.
func parseReview(stdout string) (*models.AuditReview, *models.Diagnostic) {
	dec := json.NewDecoder(strings.NewReader(stdout))
	dec.DisallowUnknownFields()

	var review models.AuditReview
	if err := dec.Decode(&review); err != nil {
		return nil, models.NewDiagnostic(models.CategoryParse,
			"Codex CLI output is not a valid audit review",
			fmt.Sprintf("%v; stdout: %s", err, excerpt(stdout)))
	}
	// Anything after the JSON document means the output is not one review.
	var trailing json.RawMessage
	if err := dec.Decode(&trailing); err == nil {
		return nil, models.NewDiagnostic(models.CategoryParse,
			"Codex CLI output contains trailing data after the review document",
			fmt.Sprintf("stdout: %s", excerpt(stdout)))
	}

	if diag := review.Validate(); diag != nil {
		return nil, diag
	}
	return &review, nil
}

// excerpt bounds raw CLI output carried in diagnostics.
func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stdoutExcerptLimit {
		return s[:stdoutExcerptLimit]
	}
	return s
}
