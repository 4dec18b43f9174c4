package filewatch

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SettleDelay lets a burst of editor events for one save collapse into a
// single reload.
const SettleDelay = 150 * time.Millisecond

// Watch calls load whenever path changes and passes a successful result to
// onChange. It runs until ctx is cancelled.
//
// The parent directory is watched so saves that rename a temp file over
// path keep being seen. A load error is logged and skipped; the caller keeps
// its current value.
func Watch[T any](ctx context.Context, path string, load func(string) (T, error), onChange func(T)) error {
	path = filepath.Clean(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}
	slog.Info("config: watching for changes", "path", path)

	settle := time.NewTimer(time.Hour)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == path && ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				settle.Reset(SettleDelay)
			}

		case <-settle.C:
			v, err := load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config", "path", path, "err", err)
				continue
			}
			slog.Info("config: reloaded", "path", path)
			onChange(v)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
