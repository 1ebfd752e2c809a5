// Package notify publishes events about loaded sessions.
package notify

import (
	"context"
	"errors"
	"time"
)

const (
	EventSessionLoaded = "session.loaded"
	EventLoadFailed    = "session.failed"
)

type (
	Event struct {
		Type        string    `json:"type"`
		SessionID   string    `json:"session_id"`
		LoadID      string    `json:"load_id"`
		TotalFrames int       `json:"total_frames"`
		Reused      bool      `json:"reused"`
		Error       string    `json:"error,omitempty"`
		Time        time.Time `json:"time"`
	}
	Publisher interface {
		Publish(ctx context.Context, ev Event) error
		Close() error
	}
	noop struct{}
	// multi publishes to all publishers, errors are joined
	multi []Publisher
	// Channel forwards events to a channel without blocking
	Channel struct {
		ch chan<- Event
	}
)

func Noop() Publisher {
	return noop{}
}

func (noop) Publish(context.Context, Event) error { return nil }
func (noop) Close() error                         { return nil }

func Multi(pubs ...Publisher) Publisher {
	return multi(pubs)
}

func (m multi) Publish(ctx context.Context, ev Event) error {
	errs := make([]error, 0, len(m))
	for _, p := range m {
		errs = append(errs, p.Publish(ctx, ev))
	}
	return errors.Join(errs...)
}

func (m multi) Close() error {
	errs := make([]error, 0, len(m))
	for _, p := range m {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

var ErrChannelFull = errors.New("event channel full")

func NewChannel(ch chan<- Event) *Channel {
	return &Channel{ch: ch}
}

func (c *Channel) Publish(ctx context.Context, ev Event) error {
	select {
	case c.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrChannelFull
	}
}

// Close does not close the channel, it is owned by the caller
func (c *Channel) Close() error {
	return nil
}
