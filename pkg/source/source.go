// Package source contains the session loader boundary. A Fetcher provides the
// raw session document of an upstream provider, the Loader turns it into a
// model.Session.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/mpapenbr/f1replay-service-go/log"
	"github.com/mpapenbr/f1replay-service-go/pkg/model"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidDocument = errors.New("invalid session document")
)

type (
	LoadOptions struct {
		// bypass and overwrite cached raw data
		ForceRefresh bool
	}
	Fetcher interface {
		Fetch(ctx context.Context, key model.SessionKey, opts LoadOptions) ([]byte, error)
	}
	Loader interface {
		Load(ctx context.Context, key model.SessionKey, opts LoadOptions) (
			*model.Session, error)
	}
	// FetcherFunc adapts a function to the Fetcher interface
	FetcherFunc func(ctx context.Context, key model.SessionKey, opts LoadOptions) (
		[]byte, error)

	documentLoader struct {
		fetcher Fetcher
		l       *log.Logger
	}
)

func (f FetcherFunc) Fetch(
	ctx context.Context, key model.SessionKey, opts LoadOptions,
) ([]byte, error) {
	return f(ctx, key, opts)
}

// NewLoader creates a loader which decodes the documents provided by fetcher
func NewLoader(fetcher Fetcher) Loader {
	return &documentLoader{fetcher: fetcher, l: log.Default().Named("source")}
}

//nolint:whitespace // can't make both editor and linter happy
func (d *documentLoader) Load(
	ctx context.Context, key model.SessionKey, opts LoadOptions,
) (*model.Session, error) {
	data, err := d.fetcher.Fetch(ctx, key, opts)
	if err != nil {
		return nil, fmt.Errorf("fetch session %s: %w", key, err)
	}
	d.l.Debug("session document fetched",
		log.String("session", key.String()), log.Int("bytes", len(data)))
	s, err := Decode(key, data)
	if err != nil {
		return nil, fmt.Errorf("decode session %s: %w", key, err)
	}
	return s, nil
}

type chain []Fetcher

// Chain tries the fetchers in order. The next fetcher is only asked if the
// previous one does not know the session.
func Chain(fetchers ...Fetcher) Fetcher {
	return chain(fetchers)
}

func (c chain) Fetch(ctx context.Context, key model.SessionKey, opts LoadOptions) (
	[]byte, error,
) {
	for _, f := range c {
		data, err := f.Fetch(ctx, key, opts)
		if !errors.Is(err, ErrSessionNotFound) {
			return data, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
}
