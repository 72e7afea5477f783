package turnlock

import (
	"errors"
	"sync"
)

var ErrTurnInProgress = errors.New("turn already in progress")

// KeyedLock serializes turns per conversation id. A second caller for a held
// key is rejected instead of queued; the client retries after the in-flight
// turn finishes.
type KeyedLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func New() *KeyedLock {
	return &KeyedLock{
		held: make(map[string]struct{}),
	}
}

func (l *KeyedLock) TryAcquire(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return ErrTurnInProgress
	}
	l.held[key] = struct{}{}
	return nil
}

func (l *KeyedLock) Release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}
