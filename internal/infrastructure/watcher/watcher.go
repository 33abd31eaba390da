// Package watcher triggers a sync when files under a connected root change.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

const DefaultDebounce = 2 * time.Second

// Watcher collapses bursts of filesystem events into one sync call issued
// after the tree has been quiet for the debounce period.
type Watcher struct {
	dir      string
	debounce time.Duration
	trigger  func(context.Context) error
	logger   *slog.Logger
}

func New(dir string, debounce time.Duration, trigger func(context.Context) error, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{dir: filepath.Clean(dir), debounce: debounce, trigger: trigger, logger: logger}
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.dir); err != nil {
		return err
	}
	w.logger.Info("watcher_started", "dir", w.dir, "debounce", w.debounce.String())

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if isHidden(w.dir, ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				// New directories must be watched explicitly.
				if err := w.addTree(fw, ev.Name); err != nil {
					w.logger.Warn("watcher_add_failed", "path", ev.Name, "error", err)
				}
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
			pending = true
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher_error", "error", err)
		case <-timer.C:
			pending = false
			err := w.trigger(ctx)
			switch {
			case err == nil:
			case domain.IsKind(err, domain.ErrBatchInProgress):
				timer.Reset(w.debounce)
				pending = true
			case ctx.Err() != nil:
				return nil
			default:
				w.logger.Error("watcher_sync_failed", "dir", w.dir, "error", err)
			}
		}
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// A directory removed between the event and the walk is not fatal.
			if p == root && p != w.dir {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

func isHidden(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}
