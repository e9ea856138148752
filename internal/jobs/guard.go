package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const activeKeyPrefix = "leadscout:active:"

// releaseScript deletes the marker only if it still belongs to the job
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// GuardInterface enforces at most one active job per search
type GuardInterface interface {
	// Acquire atomically claims the search for jobID. Returns false when
	// another job already holds it.
	Acquire(ctx context.Context, searchID, jobID string) (bool, error)
	Release(ctx context.Context, searchID, jobID string) error
	IsActive(ctx context.Context, searchID string) (bool, error)
}

// RedisGuard implements GuardInterface with SET NX markers. Markers expire
// after MarkerTTL of the job timeout so a crashed worker cannot block a
// search forever.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// Ensure RedisGuard implements GuardInterface
var _ GuardInterface = (*RedisGuard)(nil)

// NewRedisGuard creates a guard whose markers expire after ttl
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

func activeKey(searchID string) string {
	return activeKeyPrefix + searchID
}

func (g *RedisGuard) Acquire(ctx context.Context, searchID, jobID string) (bool, error) {
	ok, err := g.client.SetNX(ctx, activeKey(searchID), jobID, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire active marker for search %s: %w", searchID, err)
	}
	return ok, nil
}

// Release drops the marker if it is still held by jobID. Releasing a marker
// that expired or was taken over is not an error.
func (g *RedisGuard) Release(ctx context.Context, searchID, jobID string) error {
	_, err := releaseScript.Run(ctx, g.client, []string{activeKey(searchID)}, jobID).Int()
	if err != nil {
		return fmt.Errorf("failed to release active marker for search %s: %w", searchID, err)
	}
	return nil
}

func (g *RedisGuard) IsActive(ctx context.Context, searchID string) (bool, error) {
	_, err := g.client.Get(ctx, activeKey(searchID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read active marker for search %s: %w", searchID, err)
	}
	return true, nil
}
