package config

import (
	"fmt"
	"io"

	"github.com/mpapenbr/f1replay-service-go/log"
)

const LogFormatJSON = "json"

func ParseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

// NewLogger creates a logger according to LogFormat, LogFilter and the
// given level
func NewLogger(w io.Writer, level string) (*log.Logger, error) {
	opts := []log.Option{log.WithCaller(true), log.AddCallerSkip(1)}
	if LogFilter != "" {
		filter, err := log.WithFilter(LogFilter)
		if err != nil {
			return nil, fmt.Errorf("invalid log filter %q: %w", LogFilter, err)
		}
		opts = append(opts, filter)
	}
	if LogFormat == LogFormatJSON {
		return log.New(w, ParseLogLevel(level, log.InfoLevel), opts...), nil
	}
	return log.DevLogger(w, ParseLogLevel(level, log.DebugLevel), opts...), nil
}

// SetupLogger replaces the default logger
func SetupLogger(w io.Writer) (*log.Logger, error) {
	logger, err := NewLogger(w, LogLevel)
	if err != nil {
		return nil, err
	}
	log.ResetDefault(logger)
	return logger, nil
}
