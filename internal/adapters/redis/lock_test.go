package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/plantopt/internal/adapters/redis"
	"github.com/aretw0/plantopt/pkg/ports"
)

var _ ports.Locker = (*redis.Locker)(nil)

func TestLocker_Exclusive(t *testing.T) {
	store, mr := newStore(t, redis.WithPrefix("test:"))
	locker := store.Locker()
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "run:q3", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:run:q3"))

	waitCtx, cancel := context.WithTimeout(ctx, 3*redis.RetryInterval)
	defer cancel()
	_, err = locker.Lock(waitCtx, "run:q3", time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "a held lock blocks until the context ends")

	other, err := locker.Lock(ctx, "run:q4", time.Minute)
	require.NoError(t, err, "locks are per key")
	require.NoError(t, other(ctx))

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:run:q3"))

	again, err := locker.Lock(ctx, "run:q3", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestLocker_Expiry(t *testing.T) {
	store, mr := newStore(t)
	locker := store.Locker()
	ctx := context.Background()

	stale, err := locker.Lock(ctx, "run:q3", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := locker.Lock(ctx, "run:q3", time.Minute)
	require.NoError(t, err, "an expired lock can be taken over")

	require.NoError(t, stale(ctx))
	assert.True(t, mr.Exists("plantopt:run:lock:run:q3"), "a stale unlock must not release the new holder")
	require.NoError(t, fresh(ctx))
}
