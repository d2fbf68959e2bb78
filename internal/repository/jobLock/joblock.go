package jobLock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so a
// lock that expired and was taken by another worker is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// JobLock makes sure at most one ingestion job runs per version.
type JobLock struct {
	Client *redis.Client
	TTL    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *JobLock {
	return &JobLock{Client: client, TTL: ttl}
}

func (l *JobLock) buildKey(versionID uuid.UUID) string {
	return fmt.Sprintf("artifact-review:ingest:%s", versionID)
}

// Acquire returns ok=false when another job holds the lock. The returned
// release func is safe to call once the job is done.
func (l *JobLock) Acquire(ctx context.Context, versionID uuid.UUID) (release func(context.Context) error, ok bool, err error) {
	key := l.buildKey(versionID)
	token := uuid.NewString()

	ok, err = l.Client.SetNX(ctx, key, token, l.TTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire ingest lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func(ctx context.Context) error {
		err := releaseScript.Run(ctx, l.Client, []string{key}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release ingest lock: %w", err)
		}
		return nil
	}
	return release, true, nil
}

// Held reports whether a job currently owns the version.
func (l *JobLock) Held(ctx context.Context, versionID uuid.UUID) (bool, error) {
	n, err := l.Client.Exists(ctx, l.buildKey(versionID)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
