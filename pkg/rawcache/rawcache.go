// Package rawcache stores raw session documents so they don't need to be
// fetched again after a restart.
package rawcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
)

var ErrNotFound = errors.New("raw session not found")

type (
	Store interface {
		Get(ctx context.Context, id string) ([]byte, error)
		Put(ctx context.Context, id string, data []byte) error
		Delete(ctx context.Context, id string) error
		List(ctx context.Context) ([]Entry, error)
		Close() error
	}
	Entry struct {
		ID        string
		Size      int // stored (compressed) size in bytes
		UpdatedAt time.Time
	}
)

// Compressed wraps a store and compresses the documents with zstd
type Compressed struct {
	backend Store
	enc     *zstd.Encoder
	dec     *zstd.Decoder
}

var _ Store = (*Compressed)(nil)

func NewCompressed(backend Store) (*Compressed, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Compressed{backend: backend, enc: enc, dec: dec}, nil
}

func (c *Compressed) Get(ctx context.Context, id string) ([]byte, error) {
	data, err := c.backend.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ret, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", id, err)
	}
	return ret, nil
}

func (c *Compressed) Put(ctx context.Context, id string, data []byte) error {
	return c.backend.Put(ctx, id, c.enc.EncodeAll(data, nil))
}

func (c *Compressed) Delete(ctx context.Context, id string) error {
	return c.backend.Delete(ctx, id)
}

func (c *Compressed) List(ctx context.Context) ([]Entry, error) {
	return c.backend.List(ctx)
}

func (c *Compressed) Close() error {
	c.dec.Close()
	return errors.Join(c.enc.Close(), c.backend.Close())
}
