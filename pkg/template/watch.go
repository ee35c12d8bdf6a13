package template

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the catalogue whenever its backing file changes, until ctx
// is done. The parent directory is watched so editors that replace the file
// are seen too. Reload failures are logged and the previous cards kept.
// ready, if non-nil, is closed once the watch is established.
func (c *Catalog) Watch(ctx context.Context, ready chan<- struct{}) error {
	if c.path == "" {
		return fmt.Errorf("templates have no backing file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating templates watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating templates dir: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching templates dir: %w", err)
	}

	if ready != nil {
		close(ready)
	}

	target := filepath.Clean(c.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := c.Reload(); err != nil {
				c.logger.Warn("templates reload failed", "path", c.path, "error", err)
				continue
			}
			c.logger.Info("templates reloaded", "path", c.path, "count", len(c.Cards()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("templates watcher error: %w", err)
		}
	}
}
