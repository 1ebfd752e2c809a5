//nolint:thelper,funlen // ok for tests
package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/f1replay-service-go/pkg/model"
)

func entryWithFrames(n int) *Entry {
	frames := make([]model.Frame, n)
	for i := range frames {
		frames[i] = model.Frame{Index: i, T: float64(i) / 25}
	}
	return &Entry{Frames: frames, Info: &model.SessionInfo{}, FrameRate: 25}
}

func TestGetBatch(t *testing.T) {
	c := New()
	c.Put("2025_1_R", entryWithFrames(5))

	tests := []struct {
		name      string
		start     int
		count     int
		wantLen   int
		wantEnd   int
		wantErr   error
		wantFirst int
	}{
		{name: "clamped end", start: 0, count: 10, wantLen: 5, wantEnd: 5},
		{name: "exact", start: 1, count: 2, wantLen: 2, wantEnd: 3, wantFirst: 1},
		{name: "remainder", start: 3, count: 1000, wantLen: 2, wantEnd: 5, wantFirst: 3},
		{name: "at end", start: 5, count: 10, wantLen: 0, wantEnd: 5},
		{name: "past end", start: 6, count: 10, wantErr: ErrFrameOutOfRange},
		{name: "negative start", start: -1, count: 10, wantErr: ErrFrameOutOfRange},
		{name: "zero count", start: 0, count: 0, wantErr: ErrInvalidCount},
		{name: "negative count", start: 0, count: -3, wantErr: ErrInvalidCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := c.GetBatch("2025_1_R", tt.start, tt.count)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, b.Frames, tt.wantLen)
			assert.Equal(t, tt.wantEnd, b.End)
			assert.Equal(t, tt.start, b.Start)
			assert.Equal(t, 5, b.Total)
			if tt.wantLen > 0 {
				assert.Equal(t, tt.wantFirst, b.Frames[0].Index)
			}
		})
	}
}

func TestGetFrame(t *testing.T) {
	c := New()
	c.Put("2025_1_R", entryWithFrames(5))

	f, err := c.GetFrame("2025_1_R", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, f.Index)

	for _, idx := range []int{-1, 5, 100} {
		_, err = c.GetFrame("2025_1_R", idx)
		assert.ErrorIs(t, err, ErrFrameOutOfRange, "index %d", idx)
	}
}

func TestUnknownSession(t *testing.T) {
	c := New()
	_, err := c.Get("2025_1_R")
	assert.ErrorIs(t, err, ErrSessionNotLoaded)
	_, err = c.GetFrame("2025_1_R", 0)
	assert.ErrorIs(t, err, ErrSessionNotLoaded)
	_, err = c.GetBatch("2025_1_R", 0, 10)
	assert.ErrorIs(t, err, ErrSessionNotLoaded)
}

func TestEmptySession(t *testing.T) {
	c := New()
	c.Put("2025_1_R", entryWithFrames(0))
	b, err := c.GetBatch("2025_1_R", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, b.Frames)
	assert.Equal(t, 0, b.End)
	_, err = c.GetFrame("2025_1_R", 0)
	assert.ErrorIs(t, err, ErrFrameOutOfRange)
}

func TestPutReplaces(t *testing.T) {
	c := New()
	c.Put("2025_1_R", entryWithFrames(5))
	c.Put("2024_3_S", entryWithFrames(2))
	c.Put("2025_1_R", entryWithFrames(7))

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []string{"2024_3_S", "2025_1_R"}, c.Keys())
	e, err := c.Get("2025_1_R")
	require.NoError(t, err)
	assert.Equal(t, 7, e.TotalFrames())
	assert.Equal(t, int64(9), c.numFrames())
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	c.Put("2025_1_R", entryWithFrames(5))
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Put("2025_1_R", entryWithFrames(5+i))
		}()
		go func() {
			defer wg.Done()
			b, err := c.GetBatch("2025_1_R", 0, 100)
			if assert.NoError(t, err) {
				// a batch always sees a complete entry
				assert.Equal(t, b.Total, len(b.Frames))
			}
		}()
	}
	wg.Wait()
}
