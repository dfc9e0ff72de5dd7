package runner

import "sync"

// tailBuffer is an io.Writer that retains only the most recent max bytes
// written to it. When a process produces more output than fits, the oldest
// bytes are discarded so the newest diagnostics survive for error reporting.
// Writes arrive concurrently from the process's stdout and stderr pipes, so
// every method takes the mutex.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(p) >= t.max {
		t.buf = append(t.buf[:0], p[len(p)-t.max:]...)
		return len(p), nil
	}
	t.buf = append(t.buf, p...)
	if overflow := len(t.buf) - t.max; overflow > 0 {
		t.buf = append(t.buf[:0], t.buf[overflow:]...)
	}
	return len(p), nil
}

// Bytes returns a copy of the retained tail.
func (t *tailBuffer) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]byte, len(t.buf))
	copy(out, t.buf)
	return out
}
