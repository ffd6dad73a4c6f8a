package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStore_CheckAndSetExisting(t *testing.T) {
	client, _ := newTestRedisClient(t)

	store := NewIdempotencyStore(client)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, store.prefix+"key", "cached", time.Minute).Err())

	exists, resp, err := store.CheckAndSet(ctx, "key", nil, time.Minute)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "cached", string(resp))
}

func TestIdempotencyStore_CheckAndSetLocksNewKey(t *testing.T) {
	client, mr := newTestRedisClient(t)

	store := NewIdempotencyStore(client)
	ctx := context.Background()

	exists, resp, err := store.CheckAndSet(ctx, "pending", nil, time.Minute)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Nil(t, resp)

	val, err := mr.Get(store.prefix + "pending")
	require.NoError(t, err)
	assert.Equal(t, processingMarker, val)

	exists, resp, err = store.CheckAndSet(ctx, "pending", nil, time.Minute)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, processingMarker, string(resp))
}

func TestIdempotencyStore_Update(t *testing.T) {
	client, mr := newTestRedisClient(t)

	store := NewIdempotencyStore(client)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, "complete", []byte("done"), time.Minute))

	val, err := mr.Get(store.prefix + "complete")
	require.NoError(t, err)
	assert.Equal(t, "done", val)
	assert.Equal(t, time.Minute, mr.TTL(store.prefix+"complete"))
}

func TestIdempotencyStore_Release(t *testing.T) {
	client, mr := newTestRedisClient(t)

	store := NewIdempotencyStore(client)
	ctx := context.Background()

	_, _, err := store.CheckAndSet(ctx, "retry-me", nil, time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, "retry-me"))
	assert.False(t, mr.Exists(store.prefix+"retry-me"))

	exists, _, err := store.CheckAndSet(ctx, "retry-me", nil, time.Minute)
	require.NoError(t, err)
	assert.False(t, exists)
}
