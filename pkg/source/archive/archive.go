// Package archive provides session documents stored in a local directory
// tree: <dir>/<year>/<round>/<type>.json
package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mpapenbr/f1replay-service-go/pkg/model"
	"github.com/mpapenbr/f1replay-service-go/pkg/source"
)

type Archive struct {
	dir string
}

func New(dir string) *Archive {
	return &Archive{dir: dir}
}

// Path returns the location of the document for key
func (a *Archive) Path(key model.SessionKey) string {
	return filepath.Join(a.dir,
		strconv.Itoa(key.Year),
		strconv.Itoa(key.Round),
		string(key.Type)+".json")
}

// Fetch reads the session document. The archive is local, so opts are ignored.
//
//nolint:whitespace // can't make both editor and linter happy
func (a *Archive) Fetch(
	ctx context.Context, key model.SessionKey, _ source.LoadOptions,
) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(a.Path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", source.ErrSessionNotFound, key)
		}
		return nil, err
	}
	return data, nil
}

// Store writes a session document into the archive
func (a *Archive) Store(key model.SessionKey, data []byte) error {
	p := a.Path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o600)
}

// Rounds lists the rounds of a year available in the archive
func (a *Archive) Rounds(year int) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(a.dir, strconv.Itoa(year)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	ret := make([]int, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if r, err := strconv.Atoi(e.Name()); err == nil {
			ret = append(ret, r)
		}
	}
	return ret, nil
}
