// Package util wires the components shared by the commands.
package util

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mpapenbr/f1replay-service-go/log"
	"github.com/mpapenbr/f1replay-service-go/pkg/config"
	"github.com/mpapenbr/f1replay-service-go/pkg/db/postgres"
	"github.com/mpapenbr/f1replay-service-go/pkg/notify"
	"github.com/mpapenbr/f1replay-service-go/pkg/rawcache/factory"
	"github.com/mpapenbr/f1replay-service-go/pkg/roster"
	"github.com/mpapenbr/f1replay-service-go/pkg/service"
	"github.com/mpapenbr/f1replay-service-go/pkg/source"
	"github.com/mpapenbr/f1replay-service-go/pkg/source/archive"
	"github.com/mpapenbr/f1replay-service-go/pkg/source/cached"
	"github.com/mpapenbr/f1replay-service-go/pkg/source/upstream"
	"github.com/mpapenbr/f1replay-service-go/pkg/utils/broadcast"
	"github.com/mpapenbr/f1replay-service-go/pkg/utils/cache"
)

// RawCacheDisabled as raw cache url skips caching upstream documents
const RawCacheDisabled = "none"

const defaultUpstreamTimeout = 60 * time.Second

type (
	EnvOption func(*envOptions)
	envOptions struct {
		events      bool
		poolOptions []postgres.PoolConfigOption
	}
	// Env holds the components a command needs to load and replay sessions
	Env struct {
		Service *service.ReplayService
		Cache   *cache.SessionCache
		Archive *archive.Archive
		Roster  *roster.Roster
		// Events receives session events, only set if WithEventBroadcast is used
		Events  broadcast.Server[notify.Event]
		closers []func() error
	}
)

// WithEventBroadcast makes session events available via Env.Events
func WithEventBroadcast() EnvOption {
	return func(o *envOptions) {
		o.events = true
	}
}

// WithPoolOptions is used when the raw cache is a postgres database
func WithPoolOptions(opts ...postgres.PoolConfigOption) EnvOption {
	return func(o *envOptions) {
		o.poolOptions = append(o.poolOptions, opts...)
	}
}

// NewEnv builds the replay service from the resolved config values.
// Session documents are looked up in the local archive first and requested
// from the upstream service otherwise.
//
//nolint:funlen // by design
func NewEnv(ctx context.Context, opts ...EnvOption) (*Env, error) {
	o := &envOptions{}
	for _, opt := range opts {
		opt(o)
	}
	env := &Env{Archive: archive.New(config.DataDir)}

	r, err := loadRoster(ctx)
	if err != nil {
		return nil, err
	}
	env.Roster = r

	fetchers := []source.Fetcher{env.Archive}
	if config.UpstreamURL != "" {
		up, err := env.upstream(ctx, o)
		if err != nil {
			env.Close()
			return nil, err
		}
		fetchers = append(fetchers, up)
	}

	publishers := []notify.Publisher{}
	if config.NatsURL != "" {
		nc, err := notify.ConnectNats(config.NatsURL,
			notify.WithSubjectPrefix(config.NatsSubject))
		if err != nil {
			env.Close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		publishers = append(publishers, nc)
		env.closers = append(env.closers, nc.Close)
	}
	if o.events {
		ch := make(chan notify.Event, 16)
		publishers = append(publishers, notify.NewChannel(ch))
		env.Events = broadcast.New("session-events", ch)
		env.closers = append(env.closers, func() error {
			env.Events.Close()
			return nil
		})
	}

	env.Cache = cache.New()
	svcOpts := []service.Option{
		service.WithRoster(r),
		service.WithPublisher(notify.Multi(publishers...)),
	}
	if config.FrameRate > 0 {
		svcOpts = append(svcOpts, service.WithFrameRate(config.FrameRate))
	} else {
		log.Warn("invalid frame rate, using default", log.Int("frameRate", config.FrameRate))
	}
	if config.LoadTimeout != "" {
		if d, err := time.ParseDuration(config.LoadTimeout); err == nil {
			svcOpts = append(svcOpts, service.WithLoadTimeout(d))
		}
	}
	env.Service = service.New(
		source.NewLoader(source.Chain(fetchers...)),
		env.Cache,
		svcOpts...)
	return env, nil
}

// Close releases connections in reverse order of creation
func (e *Env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			log.Warn("error during shutdown", log.ErrorField(err))
		}
	}
	e.closers = nil
}

func (e *Env) upstream(ctx context.Context, o *envOptions) (source.Fetcher, error) {
	timeout, err := time.ParseDuration(config.UpstreamTimeout)
	if err != nil {
		log.Warn("Invalid duration value. Setting default",
			log.ErrorField(err), log.Duration("timeout", defaultUpstreamTimeout))
		timeout = defaultUpstreamTimeout
	}
	upOpts := []upstream.Option{upstream.WithTimeout(timeout)}
	if config.UpstreamToken != "" {
		upOpts = append(upOpts, upstream.WithToken(config.UpstreamToken))
	}
	var ret source.Fetcher = upstream.New(config.UpstreamURL, upOpts...)

	if config.RawCacheURL == "" || config.RawCacheURL == RawCacheDisabled {
		return ret, nil
	}
	store, err := factory.Open(ctx, config.RawCacheURL,
		factory.WithMigrate(true),
		factory.WithPoolOptions(o.poolOptions...))
	if err != nil {
		return nil, fmt.Errorf("open raw cache: %w", err)
	}
	e.closers = append(e.closers, store.Close)
	return cached.New(ret, store), nil
}

func loadRoster(ctx context.Context) (*roster.Roster, error) {
	if config.RosterFile == "" {
		return roster.Default(), nil
	}
	r, err := roster.Load(config.RosterFile)
	if err != nil {
		return nil, fmt.Errorf("load roster %s: %w", config.RosterFile, err)
	}
	if err := r.Watch(ctx); err != nil && !errors.Is(err, roster.ErrNoFile) {
		log.Warn("roster changes are not watched", log.ErrorField(err))
	}
	return r, nil
}
