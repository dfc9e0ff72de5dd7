package flash

import "sync"

// portLocks serializes flash workflows per serial port. Concurrent uploads
// to the same physical port would race at the OS/device level, so the lock
// is held for the whole compile+upload span and released on every exit path.
// Locks are never removed; the set of ports a host ever sees is tiny.
type portLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPortLocks() *portLocks {
	return &portLocks{locks: make(map[string]*sync.Mutex)}
}

func (p *portLocks) get(port string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.locks[port]
	if !ok {
		l = &sync.Mutex{}
		p.locks[port] = l
	}
	return l
}
