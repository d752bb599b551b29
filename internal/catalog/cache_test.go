package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	payload := listPayload{Items: []ClinicService{{ID: "a", Name: "Consultation"}}, Total: 1}
	require.NoError(t, cache.SetJSON(ctx, "list:true:50:0", payload))

	var got listPayload
	hit, err := cache.GetJSON(ctx, "list:true:50:0", &got)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, "Consultation", got.Items[0].Name)
	require.EqualValues(t, 1, got.Total)
}

func TestCacheMiss(t *testing.T) {
	cache, _ := newTestCache(t)

	var got listPayload
	hit, err := cache.GetJSON(context.Background(), "list:false:50:0", &got)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestCacheInvalidateSweepsPrefix(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetJSON(ctx, "list:true:50:0", listPayload{}))
	require.NoError(t, cache.SetJSON(ctx, "list:false:50:0", listPayload{}))
	mr.Set("unrelated", "keep")

	require.NoError(t, cache.Invalidate(ctx))

	var got listPayload
	hit, err := cache.GetJSON(ctx, "list:true:50:0", &got)
	require.NoError(t, err)
	require.False(t, hit)
	require.True(t, mr.Exists("unrelated"))
}

func TestCacheTTL(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetJSON(ctx, "list:true:50:0", listPayload{Total: 3}))
	mr.FastForward(2 * time.Minute)

	var got listPayload
	hit, err := cache.GetJSON(ctx, "list:true:50:0", &got)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestNilCacheIsNoop(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	require.NoError(t, cache.SetJSON(ctx, "k", listPayload{}))
	hit, err := cache.GetJSON(ctx, "k", &listPayload{})
	require.NoError(t, err)
	require.False(t, hit)
	require.NoError(t, cache.Invalidate(ctx))
}
