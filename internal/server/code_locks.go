package server

import "sync"

// codeLocks hands out one mutex per match code. Entries are reference
// counted and dropped once nobody holds or waits on them.
type codeLocks struct {
	locks map[string]*codeLock
	mu    sync.Mutex
}

type codeLock struct {
	mu   sync.Mutex
	refs int
}

func newCodeLocks() *codeLocks {
	return &codeLocks{
		locks: make(map[string]*codeLock),
	}
}

// Lock blocks until code is free and returns the matching unlock func.
func (l *codeLocks) Lock(code string) (unlock func()) {
	l.mu.Lock()
	entry, exists := l.locks[code]
	if !exists {
		entry = &codeLock{}
		l.locks[code] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, code)
		}
		l.mu.Unlock()
	}
}

func (l *codeLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
