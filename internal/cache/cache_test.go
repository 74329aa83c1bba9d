package cache

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/quicksearch/internal/config"
	searchdomain "github.com/smallbiznis/quicksearch/internal/search/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var sample = []searchdomain.Suggestion{{ID: "1", Name: "Boquilla niebla", PriceLabel: "Sin precio", Currency: "ARS"}}

func TestMemorySetGetClear(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(2, time.Minute)

	c.Set(ctx, "boquilla", sample)
	got, ok := c.Get(ctx, "boquilla")
	require.True(t, ok)
	assert.Equal(t, sample, got)

	c.Set(ctx, "empty", nil)
	_, ok = c.Get(ctx, "empty")
	assert.False(t, ok)

	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, 0, c.Len())
}

func TestMemoryEvictsOldest(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(2, time.Minute)
	c.Set(ctx, "a", sample)
	c.Set(ctx, "b", sample)
	c.Set(ctx, "c", sample)

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestMemoryExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(4, 20*time.Millisecond)
	c.Set(ctx, "a", sample)

	assert.Eventually(t, func() bool {
		_, ok := c.Get(ctx, "a")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestNewSuggestionCacheDrivers(t *testing.T) {
	cases := []struct {
		name   string
		cfg    config.CacheConfig
		client *redis.Client
		check  func(t *testing.T, c searchdomain.SuggestionCache)
	}{
		{
			name: "memory default",
			cfg:  config.CacheConfig{},
			check: func(t *testing.T, c searchdomain.SuggestionCache) {
				assert.IsType(t, &Memory{}, c)
			},
		},
		{
			name: "off",
			cfg:  config.CacheConfig{Driver: config.CacheDriverOff},
			check: func(t *testing.T, c searchdomain.SuggestionCache) {
				assert.IsType(t, Noop{}, c)
			},
		},
		{
			name: "redis without client",
			cfg:  config.CacheConfig{Driver: config.CacheDriverRedis},
			check: func(t *testing.T, c searchdomain.SuggestionCache) {
				assert.IsType(t, &Memory{}, c)
			},
		},
		{
			name:   "redis",
			cfg:    config.CacheConfig{Driver: config.CacheDriverRedis},
			client: redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}),
			check: func(t *testing.T, c searchdomain.SuggestionCache) {
				assert.IsType(t, &Redis{}, c)
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewSuggestionCache(Params{
				Config: config.Config{Cache: tc.cfg},
				Log:    zap.NewNop(),
				Redis:  tc.client,
			})
			tc.check(t, c)
		})
	}
}

func TestRedisUnreachableIsAMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	c := NewRedis(client, "", time.Minute, nil)
	assert.NotPanics(t, func() { c.Set(ctx, "boquilla", sample) })

	_, ok := c.Get(ctx, "boquilla")
	assert.False(t, ok)
	assert.Error(t, c.Clear(ctx))
}

func TestNoop(t *testing.T) {
	ctx := context.Background()
	var c Noop
	c.Set(ctx, "a", sample)
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	assert.NoError(t, c.Clear(ctx))
}
