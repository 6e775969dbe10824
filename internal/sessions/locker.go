package sessions

import (
	"context"
	"sync"
	"time"
)

// TurnLocker serializes turns per session. A second send on a busy
// session queues behind the active turn rather than being rejected.
//
// Thread Safety:
// TurnLocker is safe for concurrent use.
type TurnLocker struct {
	mu    sync.Mutex
	locks map[string]*turnLock
}

type turnLock struct {
	ch       chan struct{}
	waiters  int
	lastUsed time.Time
}

// NewTurnLocker creates a new per-session turn locker.
func NewTurnLocker() *TurnLocker {
	return &TurnLocker{locks: make(map[string]*turnLock)}
}

// Acquire blocks until the session lock is free or ctx is done. The
// returned release function must be called exactly once.
func (l *TurnLocker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[sessionID]
	if !ok {
		lock = &turnLock{ch: make(chan struct{}, 1)}
		l.locks[sessionID] = lock
	}
	lock.waiters++
	l.mu.Unlock()

	select {
	case lock.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(sessionID, lock, false)
		return nil, ctx.Err()
	}

	return func() { l.release(sessionID, lock, true) }, nil
}

// TryAcquire acquires the lock without waiting. Returns false when the
// session already has an active turn.
func (l *TurnLocker) TryAcquire(sessionID string) (func(), bool) {
	l.mu.Lock()
	lock, ok := l.locks[sessionID]
	if !ok {
		lock = &turnLock{ch: make(chan struct{}, 1)}
		l.locks[sessionID] = lock
	}
	lock.waiters++
	l.mu.Unlock()

	select {
	case lock.ch <- struct{}{}:
		return func() { l.release(sessionID, lock, true) }, true
	default:
		l.release(sessionID, lock, false)
		return nil, false
	}
}

// Locked reports whether the session currently has an active turn.
func (l *TurnLocker) Locked(sessionID string) bool {
	l.mu.Lock()
	lock, ok := l.locks[sessionID]
	l.mu.Unlock()
	return ok && len(lock.ch) > 0
}

func (l *TurnLocker) release(sessionID string, lock *turnLock, held bool) {
	if held {
		<-lock.ch
	}
	l.mu.Lock()
	lock.waiters--
	lock.lastUsed = time.Now()
	if lock.waiters == 0 && len(lock.ch) == 0 {
		delete(l.locks, sessionID)
	}
	l.mu.Unlock()
}
