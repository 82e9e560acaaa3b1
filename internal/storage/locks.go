package storage

import "sync"

// userLocks hands out one mutex per user. Entries live as long as the store.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *userLocks) get(userID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := l.locks[userID]
	if !ok {
		lock = new(sync.Mutex)
		l.locks[userID] = lock
	}
	return lock
}

type commitHooks struct {
	hooks []func()
}

func (h *commitHooks) AfterCommit(fn func()) {
	h.hooks = append(h.hooks, fn)
}

func (h *commitHooks) runHooks() {
	for _, fn := range h.hooks {
		fn()
	}
}
