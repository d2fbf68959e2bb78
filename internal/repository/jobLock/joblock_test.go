package jobLock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artifact-review/internal/repository/jobLock"
)

func newLock(t *testing.T) (*jobLock.JobLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return jobLock.New(client, time.Minute), mr
}

func TestJobLock(t *testing.T) {
	ctx := context.Background()

	t.Run("second acquire is refused until release", func(t *testing.T) {
		lock, _ := newLock(t)
		id := uuid.New()

		release, ok, err := lock.Acquire(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, err = lock.Acquire(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)

		held, err := lock.Held(ctx, id)
		require.NoError(t, err)
		assert.True(t, held)

		require.NoError(t, release(ctx))
		held, err = lock.Held(ctx, id)
		require.NoError(t, err)
		assert.False(t, held)

		_, ok, err = lock.Acquire(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("versions do not share a lock", func(t *testing.T) {
		lock, _ := newLock(t)
		_, ok, err := lock.Acquire(ctx, uuid.New())
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, err = lock.Acquire(ctx, uuid.New())
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("expired lock is not released by the old holder", func(t *testing.T) {
		lock, mr := newLock(t)
		id := uuid.New()

		staleRelease, ok, err := lock.Acquire(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)

		mr.FastForward(2 * time.Minute)

		_, ok, err = lock.Acquire(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, staleRelease(ctx))
		held, err := lock.Held(ctx, id)
		require.NoError(t, err)
		assert.True(t, held, "new holder keeps the lock")
	})
}

func TestJobLockRedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.MatchExpectationsInOrder(true)
	lock := jobLock.New(db, time.Minute)
	id := uuid.New()

	mock.Regexp().ExpectSetNX("artifact-review:ingest:"+id.String(), `.+`, time.Minute).
		SetErr(errors.New("connection refused"))

	_, ok, err := lock.Acquire(context.Background(), id)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
