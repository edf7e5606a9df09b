// Package local provides in-process versions of the coordination primitives
// for single-replica deployments that run without Redis.
package local

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

type heldLock struct {
	token   uint64
	expires time.Time
}

// LockManager implements domain.LockManager with a map of expiring tokens.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]heldLock
	next  uint64
	now   func() time.Time
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]heldLock), now: time.Now}
}

// Acquire takes key for ttl or returns domain.ErrLockHeld.
func (lm *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := lm.now()
	if l, ok := lm.locks[key]; ok && now.Before(l.expires) {
		return nil, fmt.Errorf("local: lock %s: %w", key, domain.ErrLockHeld)
	}
	lm.next++
	token := lm.next
	lm.locks[key] = heldLock{token: token, expires: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			lm.mu.Lock()
			defer lm.mu.Unlock()
			if l, ok := lm.locks[key]; ok && l.token == token {
				delete(lm.locks, key)
			}
		})
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)
