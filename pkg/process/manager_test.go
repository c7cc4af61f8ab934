//go:build unix

package process

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/ganaudit/pkg/models"
)

func newTestManager(t *testing.T, maxConcurrent int) *Manager {
	t.Helper()
	return NewManager(maxConcurrent, 500*time.Millisecond, 1<<20)
}

func TestExecute_Success(t *testing.T) {
	m := newTestManager(t, 2)

	result, err := m.Execute(context.Background(), "/bin/sh",
		[]string{"-c", "echo out; echo err >&2"}, Options{Timeout: 5 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, "out\n", result.Stdout)
	assert.Equal(t, "err\n", result.Stderr)
	assert.Equal(t, 0, result.ExitCode)
	assert.False(t, result.TimedOut)
}

func TestExecute_NonZeroExit(t *testing.T) {
	m := newTestManager(t, 2)

	result, err := m.Execute(context.Background(), "/bin/sh",
		[]string{"-c", "exit 3"}, Options{Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
}

func TestExecute_StdinPayload(t *testing.T) {
	m := newTestManager(t, 2)

	result, err := m.Execute(context.Background(), "/bin/cat", nil,
		Options{Timeout: 5 * time.Second, StdinPayload: []byte(`{"candidate":"x"}`)})
	require.NoError(t, err)
	assert.Equal(t, `{"candidate":"x"}`, result.Stdout)
}

func TestExecute_Timeout(t *testing.T) {
	m := newTestManager(t, 2)

	start := time.Now()
	result, err := m.Execute(context.Background(), "/bin/sh",
		[]string{"-c", "sleep 30"}, Options{Timeout: 200 * time.Millisecond})
	elapsed := time.Since(start)

	require.Error(t, err)
	var diag *models.Diagnostic
	require.ErrorAs(t, err, &diag)
	assert.Equal(t, models.CategoryTimeout, diag.Category)
	assert.True(t, result.TimedOut)
	assert.Less(t, elapsed, 5*time.Second, "child must be reaped within the grace window")
}

func TestExecute_SpawnFailure(t *testing.T) {
	m := newTestManager(t, 2)

	_, err := m.Execute(context.Background(), "/nonexistent/definitely-not-here", nil,
		Options{Timeout: time.Second})
	require.Error(t, err)
	var diag *models.Diagnostic
	require.ErrorAs(t, err, &diag)
	assert.Equal(t, models.CategoryProcess, diag.Category)
}

func TestExecute_PermissionDenied(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-executable")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o644))

	m := newTestManager(t, 2)
	_, err := m.Execute(context.Background(), path, nil, Options{Timeout: time.Second})
	require.Error(t, err)
	var diag *models.Diagnostic
	require.ErrorAs(t, err, &diag)
	assert.Equal(t, models.CategoryPermission, diag.Category)
}

func TestExecute_OutputCapKillsChild(t *testing.T) {
	m := NewManager(2, 500*time.Millisecond, 1024)

	// Emit well past the cap, then sleep; the manager must kill the child
	// rather than wait for the deadline.
	result, err := m.Execute(context.Background(), "/bin/sh",
		[]string{"-c", "head -c 4096 /dev/zero; sleep 30"},
		Options{Timeout: 30 * time.Second})

	require.Error(t, err)
	var diag *models.Diagnostic
	require.ErrorAs(t, err, &diag)
	assert.Equal(t, models.CategoryProcess, diag.Category, "overflow is a process diagnostic, not timeout")
	assert.LessOrEqual(t, len(result.Stdout), 1024)
}

func TestExecute_ConcurrencyCap(t *testing.T) {
	m := newTestManager(t, 2)

	stopSampling := make(chan struct{})
	maxSeen := 0
	sampled := make(chan struct{})
	go func() {
		defer close(sampled)
		for {
			select {
			case <-stopSampling:
				return
			case <-time.After(5 * time.Millisecond):
				if n := m.ActiveCount(); n > maxSeen {
					maxSeen = n
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Execute(context.Background(), "/bin/sh",
				[]string{"-c", "sleep 0.1"}, Options{Timeout: 5 * time.Second})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	close(stopSampling)
	<-sampled

	assert.LessOrEqual(t, maxSeen, 2, "active children must never exceed the cap")
	assert.Positive(t, maxSeen)
}

func TestExecute_QueuedWaiterCancelledByCaller(t *testing.T) {
	m := newTestManager(t, 1)

	// Occupy the only slot.
	release := make(chan struct{})
	go func() {
		_, _ = m.Execute(context.Background(), "/bin/sh",
			[]string{"-c", "sleep 0.5"}, Options{Timeout: 5 * time.Second})
		close(release)
	}()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := m.Execute(ctx, "/bin/true", nil, Options{Timeout: time.Second})
	require.Error(t, err)
	var diag *models.Diagnostic
	require.ErrorAs(t, err, &diag)
	assert.Equal(t, models.CategoryProcess, diag.Category)

	<-release
}

func TestExecute_TempFilesRemoved(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, "request.json")
	require.NoError(t, os.WriteFile(tmp, []byte("{}"), 0o600))

	m := newTestManager(t, 2)
	_, err := m.Execute(context.Background(), "/bin/true", nil,
		Options{Timeout: time.Second, TempFiles: []string{tmp}})
	require.NoError(t, err)

	_, statErr := os.Stat(tmp)
	assert.True(t, os.IsNotExist(statErr), "registered temp file must be deleted on exit")
}

func TestTerminateAll(t *testing.T) {
	m := newTestManager(t, 4)

	done := make(chan struct{})
	go func() {
		_, _ = m.Execute(context.Background(), "/bin/sh",
			[]string{"-c", "sleep 30"}, Options{Timeout: time.Minute})
		close(done)
	}()
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	m.TerminateAll()
	assert.Less(t, time.Since(start), 5*time.Second)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("in-flight Execute did not return after TerminateAll")
	}

	// New calls fail immediately.
	_, err := m.Execute(context.Background(), "/bin/true", nil, Options{Timeout: time.Second})
	require.Error(t, err)
	var diag *models.Diagnostic
	require.ErrorAs(t, err, &diag)
	assert.Equal(t, models.CategoryProcess, diag.Category)
	assert.Contains(t, diag.Message, "shutting down")
}
