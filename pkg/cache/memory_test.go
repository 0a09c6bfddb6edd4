package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/NeuralTrust/TrustGuard/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := cache.NewMemoryStore(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, store.SetWithExpiry(ctx, "blocked:user:a", "1", time.Minute))
	require.NoError(t, store.SetWithExpiry(ctx, "blocked:user:b", "2", 0))
	require.NoError(t, store.SetWithExpiry(ctx, "other:c", "3", time.Minute))

	keys, err := store.KeysMatching(ctx, "blocked:user:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"blocked:user:a", "blocked:user:b"}, keys)

	now = now.Add(2 * time.Minute)
	_, err = store.Get(ctx, "blocked:user:a")
	assert.ErrorIs(t, err, cache.ErrNotFound)

	value, err := store.Get(ctx, "blocked:user:b")
	require.NoError(t, err)
	assert.Equal(t, "2", value)

	require.NoError(t, store.Delete(ctx, "blocked:user:b"))
	keys, err = store.KeysMatching(ctx, "blocked:user:*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
