package server

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeready-toolchain/ganaudit/pkg/models"
)

func TestDiagnosticResult_FromDiagnostic(t *testing.T) {
	diag := models.NewDiagnostic(models.CategoryTimeout, "deadline exceeded", "30s").
		WithSuggestions("raise audit.timeout")

	result := diagnosticResult(diag)
	require.True(t, result.IsError)
	require.Len(t, result.Content, 1)

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)

	var payload struct {
		Error struct {
			Code    string             `json:"code"`
			Message string             `json:"message"`
			Data    *models.Diagnostic `json:"data"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	assert.Equal(t, "timeout", payload.Error.Code)
	assert.Equal(t, "deadline exceeded", payload.Error.Message)
	require.NotNil(t, payload.Error.Data)
	assert.Equal(t, []string{"raise audit.timeout"}, payload.Error.Data.Suggestions)
}

func TestDiagnosticResult_FromPlainError(t *testing.T) {
	result := diagnosticResult(errors.New("boom"))
	require.True(t, result.IsError)

	text := result.Content[0].(*mcpsdk.TextContent)
	var payload map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	assert.Equal(t, "process", payload["error"]["code"])
	assert.Equal(t, "boom", payload["error"]["message"])
}
