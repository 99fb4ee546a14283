package ledger

import "sync"

// accountLocks hands out one mutex per user id. Entries are reference
// counted and dropped when the last holder leaves, so the map only grows
// with concurrently active accounts.
type accountLocks struct {
	mu    sync.Mutex
	locks map[UserID]*accountLock
}

type accountLock struct {
	mu   sync.Mutex
	refs int
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[UserID]*accountLock)}
}

// lock blocks until id's section is free and returns its release func.
func (l *accountLocks) lock(id UserID) func() {
	l.mu.Lock()
	al, ok := l.locks[id]
	if !ok {
		al = &accountLock{}
		l.locks[id] = al
	}
	al.refs++
	l.mu.Unlock()

	al.mu.Lock()
	return func() {
		al.mu.Unlock()
		l.mu.Lock()
		al.refs--
		if al.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// active returns the number of ids currently held or awaited.
func (l *accountLocks) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
