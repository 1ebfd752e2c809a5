// Package broadcast distributes messages from one source channel to many
// listeners. Slow listeners miss messages instead of blocking the others.
package broadcast

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/f1replay-service-go/log"
)

type (
	Server[T any] interface {
		Subscribe() <-chan T
		Unsubscribe(<-chan T)
		Close()
	}
	Option[T any] func(*server[T])
	server[T any] struct {
		name           string
		source         <-chan T
		listeners      []chan T
		addListener    chan chan T
		removeListener chan (<-chan T)
		ctx            context.Context
		cancel         context.CancelFunc
		sendTimeout    time.Duration
		bufSize        int
		numRcv         atomic.Int64
		numSnd         atomic.Int64
		numSkip        atomic.Int64
		numListeners   atomic.Int64
		l              *log.Logger
	}
)

// WithSendTimeout sets how long a listener may block before the message is
// skipped for it
func WithSendTimeout[T any](d time.Duration) Option[T] {
	return func(s *server[T]) {
		s.sendTimeout = d
	}
}

func WithBufferSize[T any](n int) Option[T] {
	return func(s *server[T]) {
		s.bufSize = n
	}
}

// New starts a server reading from source until the source is closed or
// Close is called.
func New[T any](name string, source <-chan T, opts ...Option[T]) Server[T] {
	ctx, cancel := context.WithCancel(context.Background())
	s := &server[T]{
		name:           name,
		source:         source,
		addListener:    make(chan chan T),
		removeListener: make(chan (<-chan T)),
		ctx:            ctx,
		cancel:         cancel,
		sendTimeout:    50 * time.Millisecond,
		bufSize:        4,
		l:              log.Default().Named("bcst").With(log.String("name", name)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupMetrics()
	go s.serve()
	return s
}

func (s *server[T]) Subscribe() <-chan T {
	ch := make(chan T, s.bufSize)
	select {
	case s.addListener <- ch:
	case <-s.ctx.Done():
		close(ch)
	}
	return ch
}

func (s *server[T]) Unsubscribe(ch <-chan T) {
	select {
	case s.removeListener <- ch:
	case <-s.ctx.Done():
	}
}

func (s *server[T]) Close() {
	s.l.Debug("closing",
		log.Int64("rcv", s.numRcv.Load()),
		log.Int64("snd", s.numSnd.Load()),
		log.Int64("skip", s.numSkip.Load()))
	s.cancel()
}

func (s *server[T]) setupMetrics() {
	meter := otel.GetMeterProvider().Meter(fmt.Sprintf("frs.broadcast.%s", s.name))
	register := func(name, desc string, value *atomic.Int64) {
		if _, err := meter.Int64ObservableGauge(
			name,
			metric.WithDescription(desc),
			metric.WithUnit("{count}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(value.Load(),
					metric.WithAttributes(attribute.String("name", s.name)))
				return nil
			})); err != nil {
			s.l.Warn("failed to register metric",
				log.String("metric", name), log.ErrorField(err))
		}
	}
	register("frs.broadcast.rcv", "Number of received messages", &s.numRcv)
	register("frs.broadcast.snd", "Number of sent messages", &s.numSnd)
	register("frs.broadcast.skip", "Number of skipped messages", &s.numSkip)
	register("frs.broadcast.listener", "Number of listeners", &s.numListeners)
}

//nolint:cyclop // by design
func (s *server[T]) serve() {
	defer func() {
		for _, listener := range s.listeners {
			close(listener)
		}
		s.listeners = nil
		s.numListeners.Store(0)
	}()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ch := <-s.addListener:
			s.listeners = append(s.listeners, ch)
			s.numListeners.Store(int64(len(s.listeners)))
		case ch := <-s.removeListener:
			for i, listener := range s.listeners {
				if listener == ch {
					s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
					close(listener)
					break
				}
			}
			s.numListeners.Store(int64(len(s.listeners)))
		case msg, ok := <-s.source:
			if !ok {
				s.l.Debug("source closed")
				s.cancel()
				return
			}
			s.numRcv.Add(1)
			for _, listener := range s.listeners {
				select {
				case listener <- msg:
					s.numSnd.Add(1)
				case <-time.After(s.sendTimeout):
					s.numSkip.Add(1)
				}
			}
		}
	}
}
