package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hartline/accountd/internal/cache"
	"github.com/hartline/accountd/internal/database/testutil"
)

func TestDatabaseStoreSetGetDelete(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	store := cache.NewDatabaseStore(db)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k1", []byte("v1"), time.Minute))

	value, ok, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v1"), value)

	require.NoError(t, store.Set(ctx, "k1", []byte("v2"), time.Minute))
	value, ok, err = store.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v2"), value)

	require.NoError(t, store.Delete(ctx, "k1"))
	_, ok, err = store.Get(ctx, "k1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDatabaseStoreExpiry(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	store := cache.NewDatabaseStore(db)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", []byte("v"), -time.Second))
	_, ok, err := store.Get(ctx, "short")
	require.NoError(t, err)
	require.True(t, ok, "non-positive ttl means no expiry")

	require.NoError(t, store.Set(ctx, "expired", []byte("v"), time.Nanosecond))
	time.Sleep(5 * time.Millisecond)
	_, ok, err = store.Get(ctx, "expired")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDatabaseStoreIncrement(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	store := cache.NewDatabaseStore(db)
	ctx := context.Background()

	count, ttl, err := store.IncrementWithTTL(ctx, "counter", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
	require.Greater(t, ttl, time.Duration(0))

	count, _, err = store.IncrementWithTTL(ctx, "counter", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}
