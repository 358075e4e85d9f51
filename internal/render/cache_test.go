package render

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartialCache_Load(t *testing.T) {
	reads := 0
	reader := FileReaderFunc(func(_ context.Context, path string) (string, error) {
		reads++
		if path == "/missing.html" {
			return "", errors.New("no such file")
		}
		return "content of " + path, nil
	})
	cache := NewPartialCache(reader)
	ctx := context.Background()

	t.Run("first load reads", func(t *testing.T) {
		content, cached, err := cache.Load(ctx, "/a.html")
		require.NoError(t, err)
		assert.False(t, cached)
		assert.Equal(t, "content of /a.html", content)
		assert.Equal(t, 1, reads)
	})

	t.Run("second load hits", func(t *testing.T) {
		content, cached, err := cache.Load(ctx, "/a.html")
		require.NoError(t, err)
		assert.True(t, cached)
		assert.Equal(t, "content of /a.html", content)
		assert.Equal(t, 1, reads)
	})

	t.Run("failed read is not cached", func(t *testing.T) {
		_, _, err := cache.Load(ctx, "/missing.html")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrFileAccess))

		_, _, err = cache.Load(ctx, "/missing.html")
		require.Error(t, err)
		assert.Equal(t, 3, reads)
	})

	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, CacheStats{Hits: 1, Misses: 1}, cache.Stats())
}

func TestOSReader_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := OSReader{}.ReadFile(ctx, "/does/not/matter")
	assert.ErrorIs(t, err, context.Canceled)
}
