package cachemanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReadThroughCache_CachesLoadedValue(t *testing.T) {
	calls := 0
	loader := func(ctx context.Context, input string) (string, error) {
		calls++
		return "loaded:" + input, nil
	}

	cache := NewInMemoryCacheManager[string, string]("test", DefaultExpiration, DefaultCleanupInterval)
	rtc := NewReadThroughCache[string, string, string](cache, loader, false)

	got, err := rtc.Get(context.Background(), "key", "input", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "loaded:input", got)

	got, err = rtc.Get(context.Background(), "key", "input", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "loaded:input", got)
	require.Equal(t, 1, calls, "second get should hit the cache")
}

func TestReadThroughCache_LoaderErrorNotCached(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	loader := func(ctx context.Context, input string) (string, error) {
		calls++
		if calls == 1 {
			return "", boom
		}
		return "ok", nil
	}

	cache := NewInMemoryCacheManager[string, string]("test", DefaultExpiration, DefaultCleanupInterval)
	rtc := NewReadThroughCache[string, string, string](cache, loader, false)

	_, err := rtc.Get(context.Background(), "key", "input", time.Minute)
	require.ErrorIs(t, err, boom)

	got, err := rtc.Get(context.Background(), "key", "input", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "ok", got)
	require.Equal(t, 2, calls)
}

func TestReadThroughCache_SkipCache(t *testing.T) {
	calls := 0
	loader := func(ctx context.Context, input string) (string, error) {
		calls++
		return "fresh", nil
	}

	cache := NewInMemoryCacheManager[string, string]("test", DefaultExpiration, DefaultCleanupInterval)
	rtc := NewReadThroughCache[string, string, string](cache, loader, true)

	for range 3 {
		got, err := rtc.Get(context.Background(), "key", "input", time.Minute)
		require.NoError(t, err)
		require.Equal(t, "fresh", got)
	}
	require.Equal(t, 3, calls, "skip-cache mode always calls the loader")
}
