//nolint:thelper // ok for tests
package archive

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/f1replay-service-go/pkg/source"
	"github.com/mpapenbr/f1replay-service-go/testsupport/basedata"
)

func TestArchive(t *testing.T) {
	dir := t.TempDir()
	a := New(dir)
	key := basedata.SampleKey()
	assert.Equal(t, filepath.Join(dir, "2025", "1", "R.json"), a.Path(key))

	_, err := a.Fetch(context.Background(), key, source.LoadOptions{})
	require.ErrorIs(t, err, source.ErrSessionNotFound)

	doc := source.Encode(basedata.SampleSession())
	require.NoError(t, a.Store(key, doc))
	got, err := a.Fetch(context.Background(), key, source.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	rounds, err := a.Rounds(2025)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, rounds)
	rounds, err = a.Rounds(1999)
	require.NoError(t, err)
	assert.Empty(t, rounds)
}

func TestArchiveLoader(t *testing.T) {
	a := New(t.TempDir())
	key := basedata.SampleKey()
	require.NoError(t, a.Store(key, source.Encode(basedata.SampleSession())))

	s, err := source.NewLoader(a).Load(context.Background(), key, source.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Test Grand Prix", s.EventName)
	assert.Len(t, s.Telemetry, 3)
}
