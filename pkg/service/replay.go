// Package service orchestrates loading a session: fetch, synchronize, extract
// metadata and publish the result to the session cache.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/mpapenbr/f1replay-service-go/log"
	"github.com/mpapenbr/f1replay-service-go/pkg/model"
	"github.com/mpapenbr/f1replay-service-go/pkg/notify"
	"github.com/mpapenbr/f1replay-service-go/pkg/processing/metadata"
	"github.com/mpapenbr/f1replay-service-go/pkg/processing/synchronizer"
	"github.com/mpapenbr/f1replay-service-go/pkg/roster"
	"github.com/mpapenbr/f1replay-service-go/pkg/source"
	"github.com/mpapenbr/f1replay-service-go/pkg/utils/cache"
)

// DefaultLoadTimeout bounds a shared session load independent of its callers
const DefaultLoadTimeout = 5 * time.Minute

type (
	LoadRequest struct {
		Key model.SessionKey
		// reload and recompute even if the session is cached
		ForceRefresh bool
	}
	Option        func(*ReplayService)
	ReplayService struct {
		loader    source.Loader
		cache     *cache.SessionCache
		roster    *roster.Roster
		publisher notify.Publisher
		frameRate int
		timeout   time.Duration
		tracer    trace.Tracer
		l         *log.Logger
		group     singleflight.Group
		loads     metric.Int64Counter
		duration  metric.Float64Histogram
	}
	loadResult struct {
		entry  *cache.Entry
		reused bool
	}
)

func WithRoster(r *roster.Roster) Option {
	return func(s *ReplayService) {
		s.roster = r
	}
}

func WithPublisher(p notify.Publisher) Option {
	return func(s *ReplayService) {
		s.publisher = p
	}
}

func WithFrameRate(fps int) Option {
	return func(s *ReplayService) {
		s.frameRate = fps
	}
}

// WithLoadTimeout limits the duration of a load shared by concurrent callers.
func WithLoadTimeout(d time.Duration) Option {
	return func(s *ReplayService) {
		s.timeout = d
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *ReplayService) {
		s.tracer = tracer
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *ReplayService) {
		s.l = l
	}
}

func New(loader source.Loader, c *cache.SessionCache, opts ...Option) *ReplayService {
	ret := &ReplayService{
		loader:    loader,
		cache:     c,
		publisher: notify.Noop(),
		frameRate: synchronizer.DefaultFrameRate,
		timeout:   DefaultLoadTimeout,
		l:         log.Default().Named("service"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.tracer == nil {
		ret.tracer = otel.Tracer("frs")
	}
	if ret.roster == nil {
		ret.roster = roster.Default()
	}
	ret.setupMetrics()
	return ret
}

func (s *ReplayService) Cache() *cache.SessionCache {
	return s.cache
}

// LoadSession returns the cache entry of the requested session. A cached entry
// is reused unless ForceRefresh is set. Concurrent loads of the same session
// share one computation which outlives a canceled caller. Each caller stops
// waiting as soon as its own context is done. The cache is only updated when
// the load succeeded.
//
//nolint:whitespace // can't make both editor and linter happy
func (s *ReplayService) LoadSession(
	ctx context.Context, req LoadRequest,
) (entry *cache.Entry, reused bool, err error) {
	id := req.Key.String()
	if !req.ForceRefresh {
		if e, err := s.cache.Get(id); err == nil {
			s.count(ctx, "reused")
			return e, true, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	flightKey := id
	if req.ForceRefresh {
		flightKey += "/refresh"
	}
	// the shared load must not depend on whichever caller started it
	ch := s.group.DoChan(flightKey, func() (any, error) {
		lctx := context.WithoutCancel(ctx)
		if s.timeout > 0 {
			var cancel context.CancelFunc
			lctx, cancel = context.WithTimeout(lctx, s.timeout)
			defer cancel()
		}
		return s.load(lctx, req)
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, false, r.Err
		}
		res, _ := r.Val.(*loadResult)
		return res.entry, res.reused, nil
	}
}

//nolint:funlen // by design
func (s *ReplayService) load(ctx context.Context, req LoadRequest) (*loadResult, error) {
	id := req.Key.String()
	if !req.ForceRefresh {
		// another flight may have completed in the meantime
		if e, err := s.cache.Get(id); err == nil {
			return &loadResult{entry: e, reused: true}, nil
		}
	}
	loadID := uuid.NewString()
	l := s.l.With(log.String("session", id), log.String("loadId", loadID))
	ctx, span := s.tracer.Start(ctx, "LoadSession", trace.WithAttributes(
		attribute.String("session", id),
		attribute.Bool("forceRefresh", req.ForceRefresh),
	))
	defer span.End()
	start := time.Now()

	fail := func(err error) (*loadResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.count(ctx, "failed")
		l.Warn("session load failed", log.ErrorField(err))
		s.publish(ctx, l, notify.Event{
			Type:      notify.EventLoadFailed,
			SessionID: id,
			LoadID:    loadID,
			Error:     err.Error(),
			Time:      time.Now(),
		})
		return nil, err
	}

	l.Info("loading session", log.Bool("forceRefresh", req.ForceRefresh))
	session, err := s.loader.Load(ctx, req.Key,
		source.LoadOptions{ForceRefresh: req.ForceRefresh})
	if err != nil {
		return fail(err)
	}
	ids := metadata.ResolveDrivers(session, s.roster)
	// status periods use the earliest sample as origin, same as the frames
	info, err := metadata.Extract(session, s.roster, metadata.WithDrivers(ids))
	if err != nil {
		return fail(err)
	}
	result, err := synchronizer.Synchronize(ctx, session,
		synchronizer.WithFrameRate(s.frameRate),
		synchronizer.WithDriverCodes(metadata.Codes(ids)),
		synchronizer.WithLogger(l.Named("sync")),
	)
	if err != nil {
		return fail(fmt.Errorf("synchronize %s: %w", id, err))
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	entry := &cache.Entry{
		Frames:    result.Frames,
		Info:      info,
		FrameRate: result.FrameRate,
		StartTime: result.StartTime,
		LoadedAt:  time.Now(),
		LoadID:    loadID,
	}
	s.cache.Put(id, entry)

	elapsed := time.Since(start)
	s.count(ctx, "loaded")
	s.duration.Record(ctx, elapsed.Seconds())
	span.SetAttributes(attribute.Int("frames", len(result.Frames)))
	l.Info("session loaded",
		log.Int("frames", len(result.Frames)),
		log.Int("drivers", len(ids)),
		log.Duration("duration", elapsed))
	s.publish(ctx, l, notify.Event{
		Type:        notify.EventSessionLoaded,
		SessionID:   id,
		LoadID:      loadID,
		TotalFrames: len(result.Frames),
		Time:        entry.LoadedAt,
	})
	return &loadResult{entry: entry}, nil
}

func (s *ReplayService) publish(ctx context.Context, l *log.Logger, ev notify.Event) {
	if err := s.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		l.Warn("could not publish event",
			log.String("type", ev.Type), log.ErrorField(err))
	}
}

func (s *ReplayService) count(ctx context.Context, result string) {
	s.loads.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (s *ReplayService) setupMetrics() {
	meter := otel.GetMeterProvider().Meter("frs.service")
	var err error
	if s.loads, err = meter.Int64Counter("frs.service.loads",
		metric.WithDescription("Number of session load requests"),
		metric.WithUnit("{count}")); err != nil {
		s.l.Warn("failed to register metric", log.ErrorField(err))
	}
	if s.duration, err = meter.Float64Histogram("frs.service.load.duration",
		metric.WithDescription("Duration of session loads"),
		metric.WithUnit("s")); err != nil {
		s.l.Warn("failed to register metric", log.ErrorField(err))
	}
}
