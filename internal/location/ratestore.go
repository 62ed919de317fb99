package location

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateStore remembers when each driver last had a ping relayed.
// Allow only reads; Mark records an accepted ping.
type RateStore interface {
	Allow(ctx context.Context, driverID string, now time.Time, minInterval time.Duration) (bool, error)
	Mark(ctx context.Context, driverID string, now time.Time, minInterval time.Duration) error
	Forget(ctx context.Context, driverID string) error
}

type MemoryRateStore struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewMemoryRateStore() *MemoryRateStore {
	return &MemoryRateStore{last: make(map[string]time.Time)}
}

func (m *MemoryRateStore) Allow(_ context.Context, driverID string, now time.Time, minInterval time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	last, ok := m.last[driverID]
	return !ok || now.Sub(last) >= minInterval, nil
}

func (m *MemoryRateStore) Mark(_ context.Context, driverID string, now time.Time, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[driverID] = now
	return nil
}

func (m *MemoryRateStore) Forget(_ context.Context, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.last, driverID)
	return nil
}

// RedisRateStore keeps one expiring key per driver; the key's presence means
// the driver is still inside its quiet window.
type RedisRateStore struct {
	client *redis.Client
	prefix string
}

func NewRedisRateStore(client *redis.Client, prefix string) *RedisRateStore {
	return &RedisRateStore{client: client, prefix: prefix}
}

func (r *RedisRateStore) key(driverID string) string { return r.prefix + driverID }

func (r *RedisRateStore) Allow(ctx context.Context, driverID string, _ time.Time, _ time.Duration) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(driverID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis rate check %s: %w", driverID, err)
	}
	return n == 0, nil
}

func (r *RedisRateStore) Mark(ctx context.Context, driverID string, now time.Time, minInterval time.Duration) error {
	if err := r.client.Set(ctx, r.key(driverID), now.UnixMilli(), minInterval).Err(); err != nil {
		return fmt.Errorf("redis rate mark %s: %w", driverID, err)
	}
	return nil
}

func (r *RedisRateStore) Forget(ctx context.Context, driverID string) error {
	if err := r.client.Del(ctx, r.key(driverID)).Err(); err != nil {
		return fmt.Errorf("redis rate forget %s: %w", driverID, err)
	}
	return nil
}
