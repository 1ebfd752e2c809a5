// Package factory creates raw session stores from a URL.
package factory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mpapenbr/f1replay-service-go/pkg/db/migrate"
	database "github.com/mpapenbr/f1replay-service-go/pkg/db/postgres"
	"github.com/mpapenbr/f1replay-service-go/pkg/rawcache"
	"github.com/mpapenbr/f1replay-service-go/pkg/rawcache/postgres"
	"github.com/mpapenbr/f1replay-service-go/pkg/rawcache/sqlite"
)

var ErrStoreTypeNotSupported = errors.New("raw cache type not supported")

const (
	schemeSqlite     = "sqlite://"
	schemePostgresql = "postgresql://"
	schemePostgres   = "postgres://"
)

type (
	Option  func(*options)
	options struct {
		migrate     bool
		poolOptions []database.PoolConfigOption
	}
)

// WithMigrate applies pending schema migrations when opening a postgres store
func WithMigrate(b bool) Option {
	return func(o *options) {
		o.migrate = b
	}
}

func WithPoolOptions(opts ...database.PoolConfigOption) Option {
	return func(o *options) {
		o.poolOptions = append(o.poolOptions, opts...)
	}
}

// Open creates a compressing store for url.
// Supported are sqlite://<path> and postgresql://... URLs.
func Open(ctx context.Context, url string, opts ...Option) (rawcache.Store, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	backend, err := openBackend(ctx, url, o)
	if err != nil {
		return nil, err
	}
	ret, err := rawcache.NewCompressed(backend)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return ret, nil
}

func openBackend(ctx context.Context, url string, o *options) (rawcache.Store, error) {
	switch {
	case strings.HasPrefix(url, schemeSqlite):
		return sqlite.Open(ctx, strings.TrimPrefix(url, schemeSqlite))
	case strings.HasPrefix(url, schemePostgresql), strings.HasPrefix(url, schemePostgres):
		dbURL := strings.Replace(url, schemePostgres, schemePostgresql, 1)
		if o.migrate {
			if err := migrate.MigrateDB(dbURL); err != nil {
				return nil, fmt.Errorf("migrate raw cache: %w", err)
			}
		}
		pool, err := database.InitWithURL(ctx, dbURL, o.poolOptions...)
		if err != nil {
			return nil, err
		}
		return postgres.NewOwned(pool), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrStoreTypeNotSupported, url)
	}
}
