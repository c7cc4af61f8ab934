package process

import (
	"bytes"
	"io"
	"sync"
)

// boundedWriter captures a child's output stream up to a byte cap.
// The first write that would exceed the cap trips the overflow signal;
// subsequent bytes are discarded so the child never blocks on a full pipe.
type boundedWriter struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	limit    int
	overflow chan struct{}
	tripped  bool
}

func newBoundedWriter(limit int) *boundedWriter {
	return &boundedWriter{
		limit:    limit,
		overflow: make(chan struct{}),
	}
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		w.trip()
		return len(p), nil // discard to avoid blocking the child
	}
	if len(p) > remaining {
		w.trip()
		p = p[:remaining]
	}
	return w.buf.Write(p)
}

// trip signals overflow exactly once. Caller must hold w.mu.
func (w *boundedWriter) trip() {
	if !w.tripped {
		w.tripped = true
		close(w.overflow)
	}
}

// Overflowed reports whether the cap was exceeded.
func (w *boundedWriter) Overflowed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tripped
}

func (w *boundedWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

var _ io.Writer = (*boundedWriter)(nil)
