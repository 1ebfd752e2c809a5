// Package postgres provides a raw session store in a PostgreSQL database.
// The schema is managed by pkg/db/migrate.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mpapenbr/f1replay-service-go/pkg/rawcache"
)

type Store struct {
	pool *pgxpool.Pool
	// pool is closed by Close
	owned bool
}

var _ rawcache.Store = (*Store)(nil)

// New uses an existing pool. The pool is not closed by Close.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewOwned takes ownership of pool
func NewOwned(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, owned: true}
}

func (s *Store) Get(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`select data from raw_session where id=$1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", rawcache.ErrNotFound, id)
	}
	return data, err
}

func (s *Store) Put(ctx context.Context, id string, data []byte) error {
	_, err := s.pool.Exec(ctx, `
insert into raw_session (id, data, raw_size) values ($1, $2, $3)
on conflict (id) do update set
	data=excluded.data, raw_size=excluded.raw_size, updated_at=now()
	`, id, data, len(data))
	return err
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `delete from raw_session where id=$1`, id)
	return err
}

func (s *Store) List(ctx context.Context) ([]rawcache.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`select id, raw_size, updated_at from raw_session order by id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (rawcache.Entry, error) {
		var e rawcache.Entry
		err := row.Scan(&e.ID, &e.Size, &e.UpdatedAt)
		return e, err
	})
}

func (s *Store) Close() error {
	if s.owned {
		s.pool.Close()
	}
	return nil
}
