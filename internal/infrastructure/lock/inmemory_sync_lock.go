package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fintrack/backend/internal/domain/banking"
)

// InMemorySyncLock implements banking.SyncLock for single-instance deployments
// and tests. Leases expire lazily: an expired entry is treated as free on the
// next Acquire.
type InMemorySyncLock struct {
	mu     sync.Mutex
	leases map[uuid.UUID]leaseEntry
}

type leaseEntry struct {
	token     string
	expiresAt time.Time
}

// NewInMemorySyncLock creates a new in-memory lock manager
func NewInMemorySyncLock() *InMemorySyncLock {
	return &InMemorySyncLock{
		leases: make(map[uuid.UUID]leaseEntry),
	}
}

// Acquire takes the per-connection lease or fails fast with
// ErrSyncAlreadyInProgress.
func (l *InMemorySyncLock) Acquire(ctx context.Context, connectionID uuid.UUID, ttl time.Duration) (banking.ReleaseFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if entry, held := l.leases[connectionID]; held && now.Before(entry.expiresAt) {
		return nil, banking.ErrSyncAlreadyInProgress
	}

	token := uuid.NewString()
	l.leases[connectionID] = leaseEntry{
		token:     token,
		expiresAt: now.Add(ttl),
	}

	release := func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if entry, held := l.leases[connectionID]; held && entry.token == token {
			delete(l.leases, connectionID)
		}
		return nil
	}
	return release, nil
}

// Ensure InMemorySyncLock implements banking.SyncLock
var _ banking.SyncLock = (*InMemorySyncLock)(nil)
