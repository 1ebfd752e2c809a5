// Package cache holds the synchronized sessions for the lifetime of the process.
//
// Entries are immutable once published by Put. There is no eviction, each
// loaded session stays in memory until the process ends.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/f1replay-service-go/log"
	"github.com/mpapenbr/f1replay-service-go/pkg/model"
)

var (
	ErrSessionNotLoaded = errors.New("session not loaded")
	ErrFrameOutOfRange  = errors.New("frame index out of range")
	ErrInvalidCount     = errors.New("count must be positive")
)

type (
	Entry struct {
		Frames    []model.Frame
		Info      *model.SessionInfo
		FrameRate int
		// session time of frame 0
		StartTime float64
		LoadedAt  time.Time
		LoadID    string
	}
	Batch struct {
		Frames []model.Frame
		Start  int
		// exclusive, clamped to Total
		End   int
		Total int
	}
	Option       func(*SessionCache)
	SessionCache struct {
		mu      sync.RWMutex
		entries map[string]*Entry
		l       *log.Logger
	}
)

func (e *Entry) TotalFrames() int {
	return len(e.Frames)
}

func WithLogger(l *log.Logger) Option {
	return func(c *SessionCache) {
		c.l = l
	}
}

func New(opts ...Option) *SessionCache {
	ret := &SessionCache{
		entries: map[string]*Entry{},
		l:       log.Default().Named("cache"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.setupMetrics()
	return ret
}

// Put publishes a completely built entry. An existing entry is replaced.
func (c *SessionCache) Put(key string, e *Entry) {
	c.mu.Lock()
	_, replaced := c.entries[key]
	c.entries[key] = e
	c.mu.Unlock()
	c.l.Debug("entry stored",
		log.String("session", key),
		log.Int("frames", e.TotalFrames()),
		log.Bool("replaced", replaced))
}

func (c *SessionCache) Get(key string) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotLoaded, key)
	}
	return e, nil
}

// GetBatch returns the frames [start, min(start+count, total)).
// start == total yields an empty batch.
func (c *SessionCache) GetBatch(key string, start, count int) (*Batch, error) {
	e, err := c.Get(key)
	if err != nil {
		return nil, err
	}
	total := e.TotalFrames()
	if count <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}
	if start < 0 || start > total {
		return nil, fmt.Errorf("%w: start %d, total %d", ErrFrameOutOfRange, start, total)
	}
	end := total
	if count < total-start {
		end = start + count
	}
	return &Batch{Frames: e.Frames[start:end], Start: start, End: end, Total: total}, nil
}

func (c *SessionCache) GetFrame(key string, index int) (*model.Frame, error) {
	e, err := c.Get(key)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= e.TotalFrames() {
		return nil, fmt.Errorf("%w: index %d, total %d",
			ErrFrameOutOfRange, index, e.TotalFrames())
	}
	return &e.Frames[index], nil
}

// Keys returns the ids of all cached sessions in ascending order
func (c *SessionCache) Keys() []string {
	c.mu.RLock()
	ret := make([]string, 0, len(c.entries))
	for k := range c.entries {
		ret = append(ret, k)
	}
	c.mu.RUnlock()
	sort.Strings(ret)
	return ret
}

func (c *SessionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *SessionCache) numFrames() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var ret int64
	for _, e := range c.entries {
		ret += int64(e.TotalFrames())
	}
	return ret
}

func (c *SessionCache) setupMetrics() {
	meter := otel.GetMeterProvider().Meter("frs.cache")
	register := func(name, desc string, value func() int64) {
		if _, err := meter.Int64ObservableGauge(
			name,
			metric.WithDescription(desc),
			metric.WithUnit("{count}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(value())
				return nil
			})); err != nil {
			c.l.Warn("failed to register metric",
				log.String("metric", name), log.ErrorField(err))
		}
	}
	register("frs.cache.sessions", "Number of cached sessions",
		func() int64 { return int64(c.Len()) })
	register("frs.cache.frames", "Number of cached frames",
		func() int64 { return c.numFrames() })
}
