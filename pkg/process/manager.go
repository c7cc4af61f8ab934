// Package process spawns child processes with bounded concurrency and hard
// lifetime caps. Children run in their own process group so that graceful and
// forceful termination reach grandchildren as well.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/codeready-toolchain/ganaudit/pkg/models"
)

// Options controls one Execute call.
type Options struct {
	// WorkingDir is the child's working directory.
	WorkingDir string

	// Timeout is the hard deadline for the child. Zero means no deadline
	// beyond the caller's context.
	Timeout time.Duration

	// Env is the child's complete environment. A nil Env makes the child
	// inherit the parent's environment (the os/exec default); an empty
	// non-nil slice gives it none.
	Env []string

	// StdinPayload, when non-empty, is written to the child's stdin.
	StdinPayload []byte

	// TempFiles are deleted when the child exits, regardless of outcome.
	TempFiles []string
}

// Result captures the outcome of one child process run.
type Result struct {
	Stdout     string
	Stderr     string
	ExitCode   int
	DurationMs int64
	TimedOut   bool
}

// Manager runs children under a FIFO weighted semaphore. At most maxConcurrent
// children run simultaneously; excess Execute calls queue in arrival order and
// may be cancelled by their caller's context while waiting.
type Manager struct {
	sem         *semaphore.Weighted
	gracePeriod time.Duration
	maxOutput   int

	active atomic.Int32
	wg     sync.WaitGroup

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	mu      sync.Mutex
	running map[*exec.Cmd]struct{}
}

// NewManager creates a Manager.
func NewManager(maxConcurrent int, gracePeriod time.Duration, maxOutputBytes int) *Manager {
	return &Manager{
		sem:         semaphore.NewWeighted(int64(maxConcurrent)),
		gracePeriod: gracePeriod,
		maxOutput:   maxOutputBytes,
		shutdownCh:  make(chan struct{}),
		running:     make(map[*exec.Cmd]struct{}),
	}
}

// ActiveCount reports currently running children (queued waiters excluded).
func (m *Manager) ActiveCount() int {
	return int(m.active.Load())
}

// shuttingDown reports whether TerminateAll has been called.
func (m *Manager) shuttingDown() bool {
	select {
	case <-m.shutdownCh:
		return true
	default:
		return false
	}
}

// Execute runs executable with args under the concurrency limit and deadline.
//
// The timeout state machine: when the deadline hits, the child's process group
// receives the graceful-stop signal; if it has not exited within the grace
// period it receives the unconditional kill signal. Result.TimedOut is true
// whenever the terminating path was entered. Caller cancellation follows the
// same path.
func (m *Manager) Execute(ctx context.Context, executable string, args []string, opts Options) (*Result, error) {
	if m.shuttingDown() {
		return nil, models.NewDiagnostic(models.CategoryProcess, "process manager is shutting down", "")
	}

	// Queue slot: FIFO via the weighted semaphore. A shutdown while queued
	// cancels the waiter without launching a child.
	acquireCtx, cancelAcquire := context.WithCancel(ctx)
	defer cancelAcquire()
	go func() {
		select {
		case <-m.shutdownCh:
			cancelAcquire()
		case <-acquireCtx.Done():
		}
	}()

	if err := m.sem.Acquire(acquireCtx, 1); err != nil {
		if m.shuttingDown() {
			return nil, models.NewDiagnostic(models.CategoryProcess, "process manager is shutting down", "")
		}
		return nil, models.NewDiagnostic(models.CategoryProcess,
			"cancelled while queued for execution", err.Error())
	}
	defer m.sem.Release(1)
	defer m.cleanupTempFiles(opts.TempFiles)

	runCtx := ctx
	var cancelRun context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancelRun = context.WithTimeout(ctx, opts.Timeout)
		defer cancelRun()
	}

	cmd := exec.Command(executable, args...)
	cmd.Dir = opts.WorkingDir
	cmd.Env = opts.Env
	if len(opts.StdinPayload) > 0 {
		cmd.Stdin = bytes.NewReader(opts.StdinPayload)
	}
	configureProcGroup(cmd)

	stdout := newBoundedWriter(m.maxOutput)
	stderr := newBoundedWriter(m.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, classifySpawnError(executable, err)
	}

	m.trackChild(cmd)
	m.active.Add(1)
	m.wg.Add(1)
	defer func() {
		m.untrackChild(cmd)
		m.active.Add(-1)
		m.wg.Done()
	}()

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	var waitErr error
	var stop stopReason

	select {
	case waitErr = <-waitCh:
		// EXITED before any deadline.
	case <-stdout.overflow:
		stop = stopOverflow
		waitErr = m.terminate(cmd, waitCh)
	case <-stderr.overflow:
		stop = stopOverflow
		waitErr = m.terminate(cmd, waitCh)
	case <-runCtx.Done():
		stop = stopDeadline
		waitErr = m.terminate(cmd, waitCh)
	case <-m.shutdownCh:
		stop = stopShutdown
		waitErr = m.terminate(cmd, waitCh)
	}

	result := &Result{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		ExitCode:   exitCode(cmd, waitErr),
		DurationMs: time.Since(start).Milliseconds(),
		TimedOut:   stop != stopNone,
	}

	switch stop {
	case stopOverflow:
		return result, models.NewDiagnostic(models.CategoryProcess,
			fmt.Sprintf("output exceeded %d byte cap, child terminated", m.maxOutput), "").
			WithSuggestions("Reduce the audit scope or raise process.max_output_bytes")
	case stopDeadline:
		return result, models.NewDiagnostic(models.CategoryTimeout,
			fmt.Sprintf("child did not finish within %s", opts.Timeout),
			fmt.Sprintf("terminated after %dms", result.DurationMs)).
			WithSuggestions("Raise audit.timeout or reduce the candidate size")
	case stopShutdown:
		return result, models.NewDiagnostic(models.CategoryProcess,
			"child terminated by shutdown", "")
	}
	return result, nil
}

// stopReason records why the terminating path was entered.
type stopReason int

const (
	stopNone stopReason = iota
	stopOverflow
	stopDeadline
	stopShutdown
)

// terminate drives TERMINATING → KILLED → EXITED: graceful-stop the group,
// give it the grace period, then kill. Always returns once the child is reaped.
func (m *Manager) terminate(cmd *exec.Cmd, waitCh <-chan error) error {
	terminateChild(cmd)

	select {
	case err := <-waitCh:
		return err
	case <-time.After(m.gracePeriod):
	}

	killChild(cmd)
	return <-waitCh
}

// TerminateAll transitions every running child to the terminating path and
// cancels all queued waiters. After it returns, Execute fails immediately.
//
// Each in-flight Execute reacts to the shutdown signal and performs its own
// graceful-stop → grace period → kill sequence, so the aggregate wait is
// bounded by one grace period plus reaping time.
func (m *Manager) TerminateAll() {
	m.shutdownOnce.Do(func() { close(m.shutdownCh) })

	m.mu.Lock()
	n := len(m.running)
	m.mu.Unlock()
	if n > 0 {
		slog.Info("Terminating running children", "count", n, "grace_period", m.gracePeriod)
	}

	m.wg.Wait()
}

func (m *Manager) trackChild(cmd *exec.Cmd) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running[cmd] = struct{}{}
}

func (m *Manager) untrackChild(cmd *exec.Cmd) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.running, cmd)
}

func (m *Manager) cleanupTempFiles(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove temp file", "path", p, "error", err)
		}
	}
}

// classifySpawnError maps a Start failure to a typed diagnostic.
func classifySpawnError(executable string, err error) *models.Diagnostic {
	if errors.Is(err, os.ErrPermission) {
		return models.NewDiagnostic(models.CategoryPermission,
			fmt.Sprintf("%s is not executable in this context", executable), err.Error()).
			WithSuggestions(fmt.Sprintf("chmod +x %s", executable))
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return models.NewDiagnostic(models.CategoryProcess,
			fmt.Sprintf("executable %s not found", executable), err.Error())
	}
	return models.NewDiagnostic(models.CategoryProcess,
		fmt.Sprintf("failed to spawn %s", executable), err.Error())
}

// exitCode extracts the child's exit code; -1 when killed by signal.
func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
