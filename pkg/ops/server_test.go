package ops

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/ganaudit/pkg/process"
	"github.com/codeready-toolchain/ganaudit/pkg/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	sessions, err := store.New(t.TempDir())
	require.NoError(t, err)
	procs := process.NewManager(2, 500*time.Millisecond, 1<<20)
	return NewServer("127.0.0.1:0", sessions, procs), sessions
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	w := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 0, body["active_audits"])
}

func TestListSessions(t *testing.T) {
	s, sessions := newTestServer(t)
	_, err := sessions.GetOrCreate("s1", "")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Count    int `json:"count"`
		Sessions []struct {
			ID          string `json:"id"`
			CurrentLoop int    `json:"currentLoop"`
			IsComplete  bool   `json:"isComplete"`
			LastScore   int    `json:"lastScore"`
		} `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "s1", body.Sessions[0].ID)
	assert.Equal(t, -1, body.Sessions[0].LastScore)
}
