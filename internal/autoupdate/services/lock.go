package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const sweepLockKey = "autoupdate:lock:sweep"

// Locker serializes sweeps across service instances
type Locker interface {
	// TryLock returns a release func when the lock was acquired, nil when it is held elsewhere
	TryLock(ctx context.Context) (func(), error)
}

// LockClient is the subset of the Redis wrapper the lock needs
type LockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}

// RedisLocker is a single-key lease lock. The token makes release safe after expiry.
type RedisLocker struct {
	client LockClient
	key    string
	ttl    time.Duration
}

func NewRedisLocker(client LockClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, key: sweepLockKey, ttl: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, nil
	}

	return func() {
		// the sweep context may be cancelled by now
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := l.client.CompareAndDelete(releaseCtx, l.key, token); err != nil {
			slog.Warn("Failed to release lock", slog.String("key", l.key), slog.String("error", err.Error()))
		}
	}, nil
}
