// Package lock serializes work per character.
//
// Update passes and player actions for one character must never
// interleave; passes for different characters run concurrently.
package lock

import (
	"context"
	"sync"
	"time"
)

// characterMutex wraps a mutex with reference counting for cleanup.
type characterMutex struct {
	mu       sync.Mutex
	refCount int
}

// CharacterLock provides one mutex per character id.
type CharacterLock struct {
	locks sync.Map // map[string]*characterMutex
	pool  sync.Pool
}

// NewCharacterLock creates a new CharacterLock.
func NewCharacterLock() *CharacterLock {
	return &CharacterLock{
		pool: sync.Pool{
			New: func() any {
				return &characterMutex{}
			},
		},
	}
}

// getLock retrieves or creates the mutex for a character.
func (cl *CharacterLock) getLock(characterID string) *characterMutex {
	if v, ok := cl.locks.Load(characterID); ok {
		return v.(*characterMutex)
	}

	newLock := cl.pool.Get().(*characterMutex)
	newLock.refCount = 0

	// another goroutine may have stored one first
	actual, loaded := cl.locks.LoadOrStore(characterID, newLock)
	if loaded {
		cl.pool.Put(newLock)
	}
	return actual.(*characterMutex)
}

// Lock acquires the lock for a character.
func (cl *CharacterLock) Lock(characterID string) {
	lock := cl.getLock(characterID)
	lock.mu.Lock()
	lock.refCount++
}

// Unlock releases the lock for a character.
func (cl *CharacterLock) Unlock(characterID string) {
	if v, ok := cl.locks.Load(characterID); ok {
		lock := v.(*characterMutex)
		lock.refCount--
		lock.mu.Unlock()
	}
}

// TryLock acquires the lock without blocking and reports success.
func (cl *CharacterLock) TryLock(characterID string) bool {
	lock := cl.getLock(characterID)
	if lock.mu.TryLock() {
		lock.refCount++
		return true
	}
	return false
}

// LockWithTimeout waits up to timeout for the lock and reports
// whether it was acquired.
func (cl *CharacterLock) LockWithTimeout(ctx context.Context, characterID string, timeout time.Duration) bool {
	lock := cl.getLock(characterID)

	done := make(chan struct{})
	go func() {
		lock.mu.Lock()
		close(done)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		lock.refCount++
		return true
	case <-timeoutCtx.Done():
		// release the lock once the waiting goroutine gets it
		go func() {
			<-done
			lock.mu.Unlock()
		}()
		return false
	}
}

// WithLock runs fn while holding the character's lock.
func (cl *CharacterLock) WithLock(characterID string, fn func() error) error {
	cl.Lock(characterID)
	defer cl.Unlock(characterID)
	return fn()
}

// WithLockContext runs fn while holding the character's lock. It gives
// up with ErrLockTimeout after timeout, or with the context error when
// ctx is done before fn starts.
func (cl *CharacterLock) WithLockContext(ctx context.Context, characterID string, timeout time.Duration, fn func() error) error {
	if !cl.LockWithTimeout(ctx, characterID, timeout) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrLockTimeout
	}
	defer cl.Unlock(characterID)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}

// IsLocked reports whether a character's lock is currently held.
// The answer may be stale as soon as it is returned.
func (cl *CharacterLock) IsLocked(characterID string) bool {
	if v, ok := cl.locks.Load(characterID); ok {
		lock := v.(*characterMutex)
		if lock.mu.TryLock() {
			lock.mu.Unlock()
			return false
		}
		return true
	}
	return false
}
