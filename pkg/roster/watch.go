package roster

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/mpapenbr/f1replay-service-go/log"
)

var ErrNoFile = errors.New("roster was not loaded from a file")

// Watch reloads the roster whenever its file changes until ctx is done.
// The directory is watched since editors often replace files instead of
// writing them in place.
func (r *Roster) Watch(ctx context.Context) error {
	if r.path == "" {
		return ErrNoFile
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		watcher.Close()
		return err
	}
	target := filepath.Clean(r.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if err := r.Reload(); err != nil {
					r.l.Warn("could not reload roster", log.ErrorField(err))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.l.Warn("roster watcher error", log.ErrorField(err))
			}
		}
	}()
	return nil
}
