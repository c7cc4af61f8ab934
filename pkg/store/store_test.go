package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/ganaudit/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func sampleReview(overall int, verdict models.Verdict) *models.AuditReview {
	return &models.AuditReview{
		Overall: overall,
		Verdict: verdict,
		Dimensions: []models.DimensionScore{
			{Name: "Correctness", Score: overall},
		},
		Review: models.ReviewBody{Summary: "summary"},
	}
}

func TestGetOrCreate_NewSession(t *testing.T) {
	s := newTestStore(t)

	session, err := s.GetOrCreate("branch-1", "loop-abc")
	require.NoError(t, err)
	assert.Equal(t, "branch-1", session.ID)
	assert.Equal(t, 0, session.CurrentLoop)
	assert.True(t, session.CodexContextActive)
	assert.Equal(t, "loop-abc", session.CodexContextID)

	// A second call loads the same record.
	again, err := s.GetOrCreate("branch-1", "")
	require.NoError(t, err)
	assert.Equal(t, session.CreatedAt, again.CreatedAt)
}

func TestAppend_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetOrCreate("s1", "")
	require.NoError(t, err)

	rec := models.IterationRecord{
		ThoughtNumber: 1,
		Code:          "func main() {}",
		AuditResult:   sampleReview(80, models.VerdictRevise),
		Timestamp:     time.Now().UTC().Truncate(time.Millisecond),
	}
	session, err := s.Append("s1", rec)
	require.NoError(t, err)
	assert.Equal(t, 1, session.CurrentLoop)
	assert.Len(t, session.Iterations, 1)

	loaded, err := s.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, session.CurrentLoop, loaded.CurrentLoop)
	assert.Equal(t, rec.Code, loaded.Iterations[0].Code)
	assert.Equal(t, 80, loaded.Iterations[0].AuditResult.Overall)
	assert.Equal(t, len(loaded.Iterations), loaded.CurrentLoop,
		"iterations length must equal currentLoop after every audit")
}

func TestAppend_CompleteSessionRejected(t *testing.T) {
	s := newTestStore(t)
	session, err := s.GetOrCreate("s1", "")
	require.NoError(t, err)
	session.MarkComplete("done", time.Now().UTC())
	require.NoError(t, s.Update(session))

	_, err = s.Append("s1", models.IterationRecord{ThoughtNumber: 1, Timestamp: time.Now()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrSessionComplete))
}

func TestUpdate_AtomicNoTmpLeftBehind(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	session, err := s.GetOrCreate("s1", "")
	require.NoError(t, err)
	require.NoError(t, s.Update(session))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestReap(t *testing.T) {
	s := newTestStore(t)

	old, err := s.GetOrCreate("old", "")
	require.NoError(t, err)
	old.UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, s.Update(old))

	_, err = s.GetOrCreate("fresh", "")
	require.NoError(t, err)

	removed, err := s.Reap(time.Now().UTC(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.Get("old")
	assert.True(t, os.IsNotExist(err))
	_, err = s.Get("fresh")
	assert.NoError(t, err)
}

func TestSanitizeID(t *testing.T) {
	s := newTestStore(t)

	// Hostile ids must not escape the state directory.
	session, err := s.GetOrCreate("../../etc/passwd", "")
	require.NoError(t, err)
	assert.Equal(t, "../../etc/passwd", session.ID)

	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), "/")
	assert.NotContains(t, entries[0].Name(), "..")
}

func TestList_SkipsCorruptFiles(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetOrCreate("good", "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "bad.json"), []byte("{nope"), 0o600))

	sessions, err := s.List()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "good", sessions[0].ID)
}

func TestContextManager_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	cm := NewContextManager(nil, time.Second)

	session, err := s.GetOrCreate("s1", "")
	require.NoError(t, err)
	require.False(t, session.CodexContextActive)

	token := cm.Start(context.Background(), session, "")
	assert.NotEmpty(t, token)
	assert.True(t, cm.Maintain(session))

	// Starting again keeps the existing token.
	assert.Equal(t, token, cm.Start(context.Background(), session, "other"))

	cm.Terminate(context.Background(), session, "completed")
	assert.False(t, session.CodexContextActive)
	cm.Terminate(context.Background(), session, "completed") // idempotent
}

type flakyNotifier struct {
	startCalls int
}

func (f *flakyNotifier) StartContext(context.Context, string) error {
	f.startCalls++
	return errors.New("transient")
}

func (f *flakyNotifier) TerminateContext(context.Context, string, string) error { return nil }

func TestContextManager_NotifierFailureIsTolerated(t *testing.T) {
	s := newTestStore(t)
	notifier := &flakyNotifier{}
	cm := NewContextManager(notifier, time.Second)

	session, err := s.GetOrCreate("s1", "")
	require.NoError(t, err)

	token := cm.Start(context.Background(), session, "loop-1")
	assert.Equal(t, "loop-1", token, "context failures must never block the audit")
	assert.True(t, session.CodexContextActive)
	assert.GreaterOrEqual(t, notifier.startCalls, 2, "start should be retried")
}
