package config

import (
	"os"
	"path/filepath"
)

const appName = "frs"

// this holds the resolved configuration values from CLI
//
//nolint:lll,gochecknoglobals // readablity
var (
	LogLevel          string // sets the log level (zap log level values)
	LogFormat         string // text vs json
	LogFilter         string // zapfilter rules, e.g. "*:* -debug:stream"
	SQLLogLevel       string // sets the log level for sql subsystem
	WaitForServices   string // duration to wait for other services to be ready
	EnableTelemetry   bool   // enable telemetry
	TelemetryEndpoint string // endpoint for telemetry, "stdout" writes to stdout
	ProfilingPort     int    // port for profiling

	DataDir         string // directory of exported session documents
	RawCacheURL     string // sqlite://<path>, postgresql://... or "none"
	UpstreamURL     string // base url of the telemetry export service
	UpstreamToken   string // bearer token for the upstream service
	UpstreamTimeout string // timeout for upstream requests
	RosterFile      string // team override table (yaml or toml)
	FrameRate       int    // frames per second of the replay
	NatsURL         string // publish session events to NATS if set
	NatsSubject     string // subject prefix for session events

	ServerAddr  string // listen addr for the http server
	StaticDir   string // web root with the images directory
	LoadTimeout string // max duration of a session load
)

// DefaultDataDir returns $XDG_DATA_HOME/frs or ~/.local/share/frs
func DefaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", appName)
	}
	return filepath.Join(os.TempDir(), appName)
}

// DefaultCacheDir returns $XDG_CACHE_HOME/frs or the os cache dir
func DefaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, appName)
	}
	return filepath.Join(os.TempDir(), appName, "cache")
}

// DefaultRawCacheURL points to a sqlite database in the cache dir
func DefaultRawCacheURL() string {
	return "sqlite://" + filepath.Join(DefaultCacheDir(), "raw.db")
}
