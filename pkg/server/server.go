// Package server wires the request handler into the MCP stdio transport.
// The server advertises a single tool whose arguments are the Thought schema;
// every reply is either a response envelope or a structured error carrying a
// Diagnostic.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeready-toolchain/ganaudit/pkg/handler"
	"github.com/codeready-toolchain/ganaudit/pkg/models"
	"github.com/codeready-toolchain/ganaudit/pkg/respond"
	"github.com/codeready-toolchain/ganaudit/pkg/version"
)

// ToolName is the single MCP tool this server advertises.
const ToolName = "ganauditor_codex"

const toolDescription = `Iterative adversarial code auditing. Submit a thought containing candidate code (fenced code block, diff, or inline config block); the server audits it with the Codex CLI, tracks the session across iterations, and reports completion or structured improvement feedback.`

// Server adapts the request handler to the MCP SDK.
type Server struct {
	handler *handler.Handler
	mcp     *mcpsdk.Server
}

// New creates the MCP server and registers the audit tool.
func New(h *handler.Handler) *Server {
	impl := &mcpsdk.Implementation{
		Name:    version.AppName,
		Title:   "GAN Auditor for Codex",
		Version: version.GitCommit,
	}
	srv := mcpsdk.NewServer(impl, &mcpsdk.ServerOptions{HasTools: true})

	s := &Server{handler: h, mcp: srv}
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        ToolName,
		Description: toolDescription,
	}, s.audit)

	return s
}

// Run serves requests over stdio until the context is cancelled or the
// transport closes.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("MCP server running", "tool", ToolName, "version", version.Full())
	return s.mcp.Run(ctx, &mcpsdk.StdioTransport{})
}

// audit is the tool handler. Diagnostics are returned as structured error
// content rather than Go errors so the upstream agent can read the category,
// suggestions, and documentation links.
func (s *Server) audit(ctx context.Context, _ *mcpsdk.CallToolRequest, in models.Thought) (*mcpsdk.CallToolResult, *respond.Envelope, error) {
	env, err := s.handler.Handle(ctx, &in)
	if err != nil {
		return diagnosticResult(err), nil, nil
	}
	return nil, env, nil
}

// diagnosticResult packages an error into the user-visible failure shape:
// error.code (the category), error.message, and error.data (the Diagnostic).
func diagnosticResult(err error) *mcpsdk.CallToolResult {
	var diag *models.Diagnostic
	if !errors.As(err, &diag) {
		diag = models.NewDiagnostic(models.CategoryProcess, err.Error(), "")
	}

	payload, marshalErr := json.Marshal(map[string]any{
		"error": map[string]any{
			"code":    string(diag.Category),
			"message": diag.Message,
			"data":    diag,
		},
	})
	if marshalErr != nil {
		payload = []byte(fmt.Sprintf(`{"error":{"code":"process","message":%q}}`, diag.Message))
	}

	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(payload)}},
	}
}
