package cli

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ppiankov/patchpilot/internal/scan"
)

// defaultDebounce coalesces bursts of writes (editor saves, checkouts).
const defaultDebounce = 300 * time.Millisecond

// watchTree calls fn after changes to scannable files under root settle for
// debounce. It blocks until ctx is cancelled.
func watchTree(ctx context.Context, root string, opts scan.Options, debounce time.Duration, fn func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := addTree(watcher, root); err != nil {
		return err
	}

	slog.Info("watching for changes", "dir", root, "debounce", debounce)

	var mu sync.Mutex
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) && isDir(event.Name) {
				// new directories are not watched until added
				if err := addTree(watcher, event.Name); err != nil {
					slog.Warn("watch new dir", "dir", event.Name, "error", err)
				}
				continue
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			rel, err := filepath.Rel(root, event.Name)
			if err != nil || !opts.Matches(rel) {
				continue
			}

			slog.Debug("source changed", "file", rel, "op", event.Op.String())
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				if ctx.Err() == nil {
					fn()
				}
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("watcher error", "error", err)
		}
	}
}

// addTree watches dir and every descendant directory the scanner would enter.
func addTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("watch %s: %w", dir, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && scan.SkipsDir(d.Name()) {
			return fs.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
