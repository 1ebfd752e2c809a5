//nolint:thelper // ok for tests
package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/f1replay-service-go/log"
)

func TestDefaultDirs(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	t.Setenv("XDG_CACHE_HOME", "/cache")
	assert.Equal(t, filepath.Join("/data", "frs"), DefaultDataDir())
	assert.Equal(t, filepath.Join("/cache", "frs"), DefaultCacheDir())
	assert.Equal(t, "sqlite://"+filepath.Join("/cache", "frs", "raw.db"), DefaultRawCacheURL())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, log.WarnLevel, ParseLogLevel("warn", log.InfoLevel))
	assert.Equal(t, log.InfoLevel, ParseLogLevel("nonsense", log.InfoLevel))
}

func TestNewLogger(t *testing.T) {
	defer func(format, filter string) {
		LogFormat, LogFilter = format, filter
	}(LogFormat, LogFilter)

	var buf bytes.Buffer
	LogFormat = LogFormatJSON
	LogFilter = "*:* -debug:api"
	l, err := NewLogger(&buf, "debug")
	require.NoError(t, err)
	l.Named("api").Debug("hidden")
	l.Named("api").Info("visible")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.Contains(out, `"msg":"visible"`), out)

	LogFilter = "loud:*"
	_, err = NewLogger(&buf, "info")
	assert.Error(t, err)
}
