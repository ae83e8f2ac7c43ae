package redis

import (
	"context"
	"testing"
	"time"

	"github.com/kirinyoku/tix-wizard/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachable returns a client whose every command fails fast.
func unreachable(t *testing.T) *redis.Client {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestStorageErrorsWhenUnreachable(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(unreachable(t), time.Hour)

	_, _, err := s.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, s.SetMany(ctx, map[string]string{"a": "1"}))
	assert.NoError(t, s.SetMany(ctx, nil))
	assert.NoError(t, s.Delete(ctx))
}

func TestFallbackOverUnreachableRedis(t *testing.T) {
	ctx := context.Background()

	degraded := 0
	fb := storage.NewFallback(NewStorage(unreachable(t), time.Hour), nil, func(error) { degraded++ })

	require.NoError(t, fb.Set(ctx, storage.SlotCurrentStep, "2"))
	v, ok, err := fb.Get(ctx, storage.SlotCurrentStep)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	assert.False(t, fb.Persistent())
	assert.Equal(t, 1, degraded)
}

func TestRenderCacheFallsThroughOnError(t *testing.T) {
	rc := NewRenderCache(New(unreachable(t)), time.Minute)

	calls := 0
	data, err := rc.GetOrRender(context.Background(), "digest", func(context.Context) ([]byte, error) {
		calls++
		return []byte("png"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)
	assert.Equal(t, 1, calls)
}

func TestParseWindowResult(t *testing.T) {
	ok, retry, err := parseWindowResult([]any{int64(1), int64(3), int64(0)})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, retry)

	ok, retry, err = parseWindowResult([]any{int64(0), int64(5), int64(1500)})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1500*time.Millisecond, retry)

	_, _, err = parseWindowResult("nope")
	assert.Error(t, err)
}
