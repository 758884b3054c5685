// Package watch re-runs generation when headers under a source tree change.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/phobologic/scg/internal/discover"
	"github.com/phobologic/scg/internal/lang"
	"github.com/phobologic/scg/internal/logging"
)

// DefaultDebounce is how long the watcher waits for a burst of events to
// settle before calling back.
const DefaultDebounce = 200 * time.Millisecond

// Options configures Watch.
type Options struct {
	Root string
	// Exclude lists directories that are never watched, typically the cache.
	Exclude []string
	// Extensions limits the reported headers, e.g. ".hpp". Empty means
	// lang.HeaderExtensions.
	Extensions []string
	Debounce   time.Duration
	Logger     *slog.Logger
}

// matcher reports whether a changed path is a header the target tracks.
func (o Options) matcher() func(path string) bool {
	if len(o.Extensions) == 0 {
		return lang.IsHeader
	}
	exts := make(map[string]struct{}, len(o.Extensions))
	for _, e := range o.Extensions {
		exts[strings.ToLower(e)] = struct{}{}
	}
	return func(path string) bool {
		_, ok := exts[strings.ToLower(filepath.Ext(path))]
		return ok
	}
}

// Func receives the headers that changed since the previous call, sorted.
type Func func(ctx context.Context, changed []string) error

// Watch calls fn after each settled burst of header changes until ctx is
// cancelled. Errors from fn are logged and watching continues. New
// directories are added to the watch list as they appear.
func Watch(ctx context.Context, opts Options, fn Func) error {
	log := logging.OrDiscard(opts.Logger)
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	root := discover.CleanPath(opts.Root)
	isHeader := opts.matcher()
	excluded := make(map[string]struct{}, len(opts.Exclude))
	for _, e := range opts.Exclude {
		excluded[discover.CleanPath(e)] = struct{}{}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root, excluded); err != nil {
		return err
	}
	log.Info("watcher: started", slog.String("root", root))

	pending := map[string]struct{}{}
	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			log.Info("watcher: stopped")
			return nil

		case <-fire:
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = map[string]struct{}{}
			timer, fire = nil, nil

			log.Debug("watcher: headers changed", slog.Int("count", len(changed)))
			if err := fn(ctx, changed); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Error("watcher: run failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			path := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, path, excluded); addErr != nil {
						log.Warn("watcher: add new dir failed", slog.String("path", path), slog.String("error", addErr.Error()))
					}
					continue
				}
			}
			if !isHeader(path) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending[path] = struct{}{}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and its subdirectories, skipping excluded ones.
func addDirsRecursive(w *fsnotify.Watcher, root string, excluded map[string]struct{}) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if _, skip := excluded[discover.CleanPath(path)]; skip {
			return filepath.SkipDir
		}
		if name := d.Name(); path != root && len(name) > 1 && name[0] == '.' {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
