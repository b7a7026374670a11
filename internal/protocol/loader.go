package protocol

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// #region load
// LoadFile parses a single YAML pattern file.
func LoadFile(path string) (Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Pattern{}, fmt.Errorf("read pattern file: %w", err)
	}
	var p Pattern
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Pattern{}, fmt.Errorf("parse pattern %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Pattern{}, err
	}
	return p, nil
}

// LoadDir loads every .yaml/.yml pattern in dir into the library.
// Invalid files are logged and skipped, never fatal.
func LoadDir(lib *Library, dir string, logger *zap.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read pattern dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !isPatternFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		p, err := LoadFile(path)
		if err != nil {
			logger.Warn("skipping invalid pattern file", zap.String("path", path), zap.Error(err))
			continue
		}
		if err := lib.Put(p); err != nil {
			logger.Warn("rejecting pattern", zap.String("path", path), zap.Error(err))
			continue
		}
		logger.Info("loaded pattern", zap.String("id", p.ID), zap.String("path", path))
	}
	return nil
}

func isPatternFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// #endregion load

// #region watch

// Watch reloads pattern files as they change on disk. Blocks until ctx is
// cancelled; intended to run in its own goroutine.
func Watch(ctx context.Context, lib *Library, dir string, logger *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isPatternFile(event.Name) {
				continue
			}
			p, err := LoadFile(event.Name)
			if err != nil {
				logger.Warn("pattern reload failed", zap.String("path", event.Name), zap.Error(err))
				continue
			}
			if err := lib.Put(p); err != nil {
				logger.Warn("pattern reload rejected", zap.String("path", event.Name), zap.Error(err))
				continue
			}
			logger.Info("reloaded pattern", zap.String("id", p.ID))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("pattern watcher error", zap.Error(err))
		}
	}
}

// #endregion watch
