// Package sqlite provides a raw session store in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver.

	"github.com/mpapenbr/f1replay-service-go/pkg/rawcache"
)

type Store struct {
	db *sql.DB
}

var _ rawcache.Store = (*Store)(nil)

// Open opens or creates the database at path
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS raw_session (
			id TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM raw_session WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", rawcache.ErrNotFound, id)
	}
	return data, err
}

func (s *Store) Put(ctx context.Context, id string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO raw_session (id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		id, data, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM raw_session WHERE id = ?`, id)
	return err
}

func (s *Store) List(ctx context.Context) ([]rawcache.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, length(data), updated_at FROM raw_session ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ret := []rawcache.Entry{}
	for rows.Next() {
		var (
			e       rawcache.Entry
			updated string
		)
		if err := rows.Scan(&e.ID, &e.Size, &updated); err != nil {
			return nil, err
		}
		e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		ret = append(ret, e)
	}
	return ret, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
