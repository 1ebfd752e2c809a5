//nolint:thelper // ok for tests
package cached

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/f1replay-service-go/pkg/model"
	"github.com/mpapenbr/f1replay-service-go/pkg/rawcache/sqlite"
	"github.com/mpapenbr/f1replay-service-go/pkg/source"
	"github.com/mpapenbr/f1replay-service-go/testsupport/basedata"
)

type countingFetcher struct {
	calls int
	data  []byte
}

//nolint:whitespace // can't make both editor and linter happy
func (c *countingFetcher) Fetch(
	_ context.Context, key model.SessionKey, _ source.LoadOptions,
) ([]byte, error) {
	c.calls++
	if key.Round != 1 {
		return nil, source.ErrSessionNotFound
	}
	return c.data, nil
}

func TestFetch(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "raw.db"))
	require.NoError(t, err)
	defer store.Close()

	next := &countingFetcher{data: []byte("v1")}
	f := New(next, store)
	key := basedata.SampleKey()

	got, err := f.Fetch(ctx, key, source.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)
	assert.Equal(t, 1, next.calls)

	// served from cache
	next.data = []byte("v2")
	got, err = f.Fetch(ctx, key, source.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)
	assert.Equal(t, 1, next.calls)

	// forced refresh bypasses and overwrites the cache
	got, err = f.Fetch(ctx, key, source.LoadOptions{ForceRefresh: true})
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
	assert.Equal(t, 2, next.calls)

	got, err = f.Fetch(ctx, key, source.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
	assert.Equal(t, 2, next.calls)
}

func TestFetchNotFound(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "raw.db"))
	require.NoError(t, err)
	defer store.Close()

	f := New(&countingFetcher{}, store)
	key := basedata.SampleKey()
	key.Round = 7
	_, err = f.Fetch(ctx, key, source.LoadOptions{})
	assert.ErrorIs(t, err, source.ErrSessionNotFound)

	entries, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
