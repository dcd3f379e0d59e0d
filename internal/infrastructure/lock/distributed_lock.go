package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var ErrLockFailed = errors.New("failed to acquire distributed lock")

// unlockScript deletes the key only while it still holds our token, so an expired
// holder cannot release a lock someone else has since taken.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// DistributedLock is a SET NX EX lock on a single key.
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock makes a single non-blocking attempt.
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock retries TryLock every retryInterval, at most maxRetries times.
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

func (l *DistributedLock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Err()
}

// Locker hands out named mutual-exclusion sections. Callers must invoke the returned
// release func exactly once.
type Locker interface {
	Obtain(ctx context.Context, key string) (release func(), err error)
}

// Manager is the Redis-backed Locker.
type Manager struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewManager(client *redis.Client, ttl time.Duration) *Manager {
	return &Manager{
		client:        client,
		ttl:           ttl,
		retryInterval: 100 * time.Millisecond,
		maxRetries:    30,
	}
}

func (m *Manager) Obtain(ctx context.Context, key string) (func(), error) {
	l := NewDistributedLock(m.client, key, uuid.NewString(), m.ttl)
	if err := l.Lock(ctx, m.retryInterval, m.maxRetries); err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return func() {
		// release on a fresh context; the caller's may already be done
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Unlock(ctx)
	}, nil
}

func WithdrawKey(userID int64) string {
	return fmt.Sprintf("withdraw:lock:user:%d", userID)
}

func CommissionKey(orderID int64) string {
	return fmt.Sprintf("commission:lock:order:%d", orderID)
}
