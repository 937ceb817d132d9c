package calendar_sync

import (
	"context"
	"sync"

	"github.com/campusflow/campusflow/pkg/connector"
	"golang.org/x/sync/semaphore"
)

type lockKey struct {
	userId   string
	provider connector.Provider
}

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

// keyedLock serializes work per (user, provider). Entries are dropped once nobody holds
// or waits for them.
type keyedLock struct {
	mu      sync.Mutex
	entries map[lockKey]*lockEntry
}

func newKeyedLock() *keyedLock {
	return &keyedLock{entries: make(map[lockKey]*lockEntry)}
}

// Acquire blocks until the key is free or ctx ends. The returned func releases the key.
func (l *keyedLock) Acquire(ctx context.Context, key lockKey) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &lockEntry{sem: semaphore.NewWeighted(1)}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	if err := entry.sem.Acquire(ctx, 1); err != nil {
		l.unref(key, entry)
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			entry.sem.Release(1)
			l.unref(key, entry)
		})
	}, nil
}

func (l *keyedLock) unref(key lockKey, entry *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}

func (l *keyedLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
