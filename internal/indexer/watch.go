package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch resyncs whenever the source changes, until ctx is done. Events are
// debounced so an editor save that touches several files triggers one
// sync. For a single-file source the parent directory is watched, since
// many editors replace files by rename.
func (s *Syncer) Watch(ctx context.Context) error {
	if s.cfg.Source == "" {
		return ErrNoSource
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	info, err := os.Stat(s.cfg.Source)
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}

	root := s.cfg.Source
	match := func(string) bool { return true }
	if info.IsDir() {
		if err := addDirs(watcher, root); err != nil {
			return err
		}
	} else {
		target := filepath.Clean(s.cfg.Source)
		root = filepath.Dir(target)
		match = func(name string) bool { return filepath.Clean(name) == target }
		if err := watcher.Add(root); err != nil {
			return fmt.Errorf("failed to watch %s: %w", root, err)
		}
	}

	s.logger.Info("watching source", zap.String("path", s.cfg.Source), zap.Duration("debounce", s.cfg.DebounceDelay))

	debounce := time.NewTimer(s.cfg.DebounceDelay)
	debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			debounce.Stop()
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event, info.IsDir(), match) {
				continue
			}
			// New subdirectories need their own watch.
			if info.IsDir() && event.Has(fsnotify.Create) {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					if err := addDirs(watcher, event.Name); err != nil {
						s.logger.Warn("failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
					}
				}
			}
			s.logger.Debug("source changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			// Reset never delivers a stale expiry, so bursts collapse into one sync.
			debounce.Reset(s.cfg.DebounceDelay)

		case <-debounce.C:
			if _, err := s.Sync(ctx, false); err != nil && !errors.Is(err, ErrSyncInProgress) {
				s.logger.Warn("watched sync failed", zap.Error(err))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func relevant(event fsnotify.Event, dir bool, match func(string) bool) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	if !match(event.Name) {
		return false
	}
	if !dir {
		return true
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	// Directory creations matter as well as markdown files.
	if strings.EqualFold(filepath.Ext(event.Name), ".md") {
		return true
	}
	fi, err := os.Stat(event.Name)
	return err == nil && fi.IsDir()
}

func addDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := watcher.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}
