package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce collapses the burst of events produced by one save.
const watchDebounce = 500 * time.Millisecond

// watchFile runs fn once immediately and again after each change of path,
// strictly sequentially, until ctx is done. The directory is watched so
// that editors replacing the file by rename are seen.
func watchFile(ctx context.Context, path string, logger *slog.Logger, fn func(context.Context) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	target, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	if err := fn(ctx); err != nil {
		return err
	}

	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, _ := filepath.Abs(event.Name)
			if name != target || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			logger.Debug("label table changed", "op", event.Op.String())
			timer.Reset(watchDebounce)
		case <-timer.C:
			logger.Info("label table changed, ingesting", "path", target)
			if err := fn(ctx); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
		case <-ctx.Done():
			logger.Info("watch stopped")
			return nil
		}
	}
}
