// Package sessions implements the session manager (C4): per-user priority
// stacks of agent sessions with interrupt/resume rules, and the TTL sweeper
// that reaps idle sessions.
package sessions

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when acquiring a per-user lock times out.
var ErrLockTimeout = errors.New("sessions: lock acquisition timeout")

// DefaultLockTimeout bounds how long a caller waits for another goroutine's
// mutation of the same user's stack to finish.
const DefaultLockTimeout = 5 * time.Second

const lockPollInterval = 5 * time.Millisecond

type userMutex struct {
	mu     sync.Mutex
	locked bool
}

// UserLocker serializes all mutations to one user's session stack (§4.4,
// §5 "one mutex per user id; the stack of that user is entirely under it").
type UserLocker struct {
	locks   sync.Map // map[string]*userMutex
	timeout time.Duration
}

// NewUserLocker creates a UserLocker with the given acquisition timeout. A
// non-positive timeout falls back to DefaultLockTimeout.
func NewUserLocker(timeout time.Duration) *UserLocker {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &UserLocker{timeout: timeout}
}

func (l *UserLocker) getOrCreate(userID string) *userMutex {
	if m, ok := l.locks.Load(userID); ok {
		return m.(*userMutex)
	}
	actual, _ := l.locks.LoadOrStore(userID, &userMutex{})
	return actual.(*userMutex)
}

// Lock acquires the per-user lock, respecting context cancellation and the
// configured timeout.
func (l *UserLocker) Lock(ctx context.Context, userID string) error {
	m := l.getOrCreate(userID)
	deadline := time.Now().Add(l.timeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		m.mu.Lock()
		if !m.locked {
			m.locked = true
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()

		if time.Now().After(deadline) {
			return ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// Unlock releases the per-user lock. Safe to call even if not held.
func (l *UserLocker) Unlock(userID string) {
	if m, ok := l.locks.Load(userID); ok {
		mu := m.(*userMutex)
		mu.mu.Lock()
		mu.locked = false
		mu.mu.Unlock()
	}
}
