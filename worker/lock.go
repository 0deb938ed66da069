package worker

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// SchedulerLock is a Redis lease that keeps a single scheduler instance
// scanning at a time. A nil lock (single-node deployments, tests)
// always acquires.
type SchedulerLock struct {
	Client *redis.Client
	Key    string
	TTL    time.Duration

	holder string
}

func NewSchedulerLock(client *redis.Client, key string, ttl time.Duration) *SchedulerLock {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &SchedulerLock{
		Client: client,
		Key:    key,
		TTL:    ttl,
		holder: uuid.New().String(),
	}
}

// TryAcquire takes or refreshes the lease. Redis being unreachable
// fails open: a deployment without Redis is assumed single-node.
func (l *SchedulerLock) TryAcquire(ctx context.Context) bool {
	if l == nil || l.Client == nil {
		return true
	}

	ok, err := l.Client.SetNX(ctx, l.Key, l.holder, l.TTL).Result()
	if err != nil {
		return true
	}
	if ok {
		return true
	}

	// Refresh if we already hold it.
	current, err := l.Client.Get(ctx, l.Key).Result()
	if err == nil && current == l.holder {
		l.Client.Expire(ctx, l.Key, l.TTL)
		return true
	}
	return false
}

// Release drops the lease if this instance holds it.
func (l *SchedulerLock) Release(ctx context.Context) {
	if l == nil || l.Client == nil {
		return
	}
	current, err := l.Client.Get(ctx, l.Key).Result()
	if err == nil && current == l.holder {
		l.Client.Del(ctx, l.Key)
	}
}
