// Package cached provides a fetcher which keeps raw session documents in a
// rawcache.Store.
package cached

import (
	"context"
	"errors"

	"github.com/mpapenbr/f1replay-service-go/log"
	"github.com/mpapenbr/f1replay-service-go/pkg/model"
	"github.com/mpapenbr/f1replay-service-go/pkg/rawcache"
	"github.com/mpapenbr/f1replay-service-go/pkg/source"
)

type Fetcher struct {
	next  source.Fetcher
	store rawcache.Store
	l     *log.Logger
}

var _ source.Fetcher = (*Fetcher)(nil)

func New(next source.Fetcher, store rawcache.Store) *Fetcher {
	return &Fetcher{next: next, store: store, l: log.Default().Named("rawcache")}
}

// Fetch returns the cached document if present. With ForceRefresh the cache is
// bypassed and overwritten with the fetched document.
//
//nolint:whitespace // can't make both editor and linter happy
func (f *Fetcher) Fetch(
	ctx context.Context, key model.SessionKey, opts source.LoadOptions,
) ([]byte, error) {
	id := key.String()
	if !opts.ForceRefresh {
		data, err := f.store.Get(ctx, id)
		switch {
		case err == nil:
			f.l.Debug("using cached document", log.String("session", id))
			return data, nil
		case errors.Is(err, rawcache.ErrNotFound):
		default:
			f.l.Warn("could not read raw cache", log.String("session", id),
				log.ErrorField(err))
		}
	}
	data, err := f.next.Fetch(ctx, key, opts)
	if err != nil {
		return nil, err
	}
	if err := f.store.Put(ctx, id, data); err != nil {
		// the document is still usable
		f.l.Warn("could not write raw cache", log.String("session", id),
			log.ErrorField(err))
	}
	return data, nil
}
