package shipconfig

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config file whenever it changes and sends each
// successfully parsed Config on the returned channel. The watch runs until
// ctx is cancelled, at which point the channel is closed. Parse failures are
// logged and skipped so a half-saved edit never tears the watch down.
//
// The watch is placed on the file's directory rather than the file itself:
// editors typically replace files by rename, which would silently detach a
// direct file watch.
func Watch(ctx context.Context, path string, log *slog.Logger) (<-chan Config, error) {
	if path == "" {
		path = DefaultPath
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("start watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	out := make(chan Config, 1)
	go func() {
		defer close(out)
		defer func() {
			// Best-effort watcher close; no actionable error handling path.
			_ = w.Close()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				cfg, err := Load(abs)
				if err != nil {
					log.Warn("config reload failed", slog.String("path", abs), slog.String("err", err.Error()))
					continue
				}
				select {
				case out <- cfg:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Debug("watcher error", slog.String("err", err.Error()))
			}
		}
	}()
	return out, nil
}
