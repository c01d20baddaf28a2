package tasks

import (
	"sync"
)

// LockSet holds the ids of feeds with an update in flight. At most one
// holder per id exists at any time.
type LockSet struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

func NewLockSet() *LockSet {
	return &LockSet{held: make(map[int64]struct{})}
}

// TryAcquire marks id as held and reports true, or reports false when it
// already is. It never blocks on another holder.
func (l *LockSet) TryAcquire(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[id]; ok {
		return false
	}
	l.held[id] = struct{}{}
	return true
}

// Release is a no-op for ids that are not held.
func (l *LockSet) Release(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, id)
}

func (l *LockSet) IsHeld(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[id]
	return ok
}

func (l *LockSet) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}
