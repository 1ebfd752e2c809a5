//nolint:thelper // ok for tests
package info

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/f1replay-service-go/pkg/model"
	"github.com/mpapenbr/f1replay-service-go/pkg/processing/metadata"
	"github.com/mpapenbr/f1replay-service-go/pkg/processing/synchronizer"
	"github.com/mpapenbr/f1replay-service-go/pkg/roster"
	"github.com/mpapenbr/f1replay-service-go/pkg/utils/cache"
	"github.com/mpapenbr/f1replay-service-go/testsupport/basedata"
)

func sampleEntry(t *testing.T) *cache.Entry {
	s := basedata.SampleSession()
	ids := metadata.ResolveDrivers(s, roster.Default())
	info, err := metadata.Extract(s, roster.Default(), metadata.WithDrivers(ids))
	require.NoError(t, err)
	res, err := synchronizer.Synchronize(context.Background(), s,
		synchronizer.WithFrameRate(5),
		synchronizer.WithDriverCodes(metadata.Codes(ids)))
	require.NoError(t, err)
	return &cache.Entry{Frames: res.Frames, Info: info, FrameRate: res.FrameRate}
}

func TestRender(t *testing.T) {
	entry := sampleEntry(t)
	var buf bytes.Buffer
	render(&buf, entry)
	out := buf.String()

	assert.Contains(t, out, entry.Info.EventName)
	assert.Contains(t, out, entry.Info.Key.String())
	assert.Contains(t, out, "Drivers")
	assert.Contains(t, out, "Track status")
	for code, name := range entry.Info.DriverNames {
		assert.Contains(t, out, code)
		assert.Contains(t, out, name)
		assert.Contains(t, out, hex(entry.Info.DriverColors[code]))
	}
	// codes are listed in alphabetical order
	assert.Less(t, strings.Index(out, "DOO"), strings.Index(out, "VER"))
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "#ff8000", hex(model.RGB{255, 128, 0}))
	assert.Equal(t, "1m5s", formatSeconds(65.7))
	assert.Equal(t, "0s", formatSeconds(0))
	assert.InDelta(t, 0, duration(&cache.Entry{}), 1e-9)
}
