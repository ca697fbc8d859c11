package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fintrack/backend/internal/domain/banking"
)

const defaultKeyPrefix = "banking:sync:lock:"

// releaseScript deletes the lease only when it still holds our token, so a
// lease that expired and was re-acquired by another run is never released
// by the old holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSyncLock implements banking.SyncLock on a Redis lease. Suitable for
// distributed deployments where multiple instances may trigger syncs for the
// same connection.
type RedisSyncLock struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisSyncLock creates a lock manager with an existing Redis client
func NewRedisSyncLock(client *redis.Client, keyPrefix string) *RedisSyncLock {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisSyncLock{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Acquire takes the per-connection lease. It fails fast with
// ErrSyncAlreadyInProgress when another sync holds it; it never waits.
// The TTL bounds how long a crashed run can keep the connection locked.
func (l *RedisSyncLock) Acquire(ctx context.Context, connectionID uuid.UUID, ttl time.Duration) (banking.ReleaseFunc, error) {
	key := l.keyPrefix + connectionID.String()
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !acquired {
		return nil, banking.ErrSyncAlreadyInProgress
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release sync lock: %w", err)
		}
		return nil
	}
	return release, nil
}

// Ensure RedisSyncLock implements banking.SyncLock
var _ banking.SyncLock = (*RedisSyncLock)(nil)
