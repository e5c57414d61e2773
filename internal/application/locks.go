package application

import (
	"context"
	"sync"
)

// evaluationLocks serializes operations on one evaluation while leaving
// distinct evaluations fully parallel. Entries are reference counted and
// dropped once no goroutine holds or waits for them, so the map does not
// grow with the number of evaluations ever touched.
type evaluationLocks struct {
	mu    sync.Mutex
	locks map[string]*evaluationLock
}

type evaluationLock struct {
	// ch has capacity one; holding the token means holding the lock.
	ch   chan struct{}
	refs int
}

func newEvaluationLocks() *evaluationLocks {
	return &evaluationLocks{locks: make(map[string]*evaluationLock)}
}

// acquire blocks until the lock for evaluationID is held or ctx is done.
// The returned release function must be called exactly once.
func (l *evaluationLocks) acquire(ctx context.Context, evaluationID string) (release func(), err error) {
	l.mu.Lock()
	entry, ok := l.locks[evaluationID]
	if !ok {
		entry = &evaluationLock{ch: make(chan struct{}, 1)}
		l.locks[evaluationID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(evaluationID, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.ch
			l.unref(evaluationID, entry)
		})
	}, nil
}

func (l *evaluationLocks) unref(evaluationID string, entry *evaluationLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, evaluationID)
	}
}

// size returns the number of live entries.
func (l *evaluationLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
