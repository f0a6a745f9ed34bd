// Package watch calls back when watched files change, coalescing bursts
// of filesystem events.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last event before the
// callback runs.
const DefaultDebounce = 100 * time.Millisecond

// Options configures Watch.
type Options struct {
	// Extensions filters events by file extension (".json"). Empty
	// accepts every file.
	Extensions []string

	Debounce time.Duration
	Logger   *slog.Logger
}

// Watch watches paths until ctx is done and calls onChange with the last
// changed file once events settle. A directory is watched recursively,
// including directories created under it later; a file is watched through
// its parent directory so editors that replace the file are still seen.
// Watch returns only after a running onChange has finished.
func Watch(ctx context.Context, paths []string, opts Options, onChange func(name string)) error {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	files := make(map[string]bool)
	var dirs []string
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return err
		}
		if info.IsDir() {
			dirs = append(dirs, abs)
			if err := watchDirRecursive(watcher, abs); err != nil {
				return err
			}
			continue
		}
		files[abs] = true
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			return err
		}
	}

	var (
		mu      sync.Mutex
		timer   *time.Timer
		pending sync.WaitGroup
	)
	defer func() {
		mu.Lock()
		if timer != nil && timer.Stop() {
			pending.Done()
		}
		mu.Unlock()
		pending.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			name := event.Name
			if event.Op&fsnotify.Create != 0 && inDirs(name, dirs) {
				if info, err := os.Stat(name); err == nil && info.IsDir() {
					// Files may land before the new directory is watched.
					found, err := addDir(watcher, name, files, dirs, opts.Extensions)
					if err != nil {
						logger.Warn("cannot watch new directory", slog.String("dir", name), slog.Any("error", err))
					}
					if found == "" {
						continue
					}
					name = found
				}
			}
			if !matches(name, files, dirs, opts.Extensions) {
				continue
			}

			mu.Lock()
			if timer != nil && timer.Stop() {
				pending.Done()
			}
			pending.Add(1)
			timer = time.AfterFunc(opts.Debounce, func() {
				defer pending.Done()
				if ctx.Err() != nil {
					return
				}
				logger.Debug("file changed", slog.String("file", name))
				onChange(name)
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", slog.Any("error", err))
		}
	}
}

func matches(name string, files map[string]bool, dirs []string, exts []string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	if files[abs] {
		return true
	}
	if !inDirs(abs, dirs) {
		return false
	}
	return len(exts) == 0 || slices.Contains(exts, strings.ToLower(filepath.Ext(abs)))
}

func inDirs(name string, dirs []string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(dirs, func(d string) bool {
		return strings.HasPrefix(abs, d+string(filepath.Separator))
	})
}

// addDir watches a newly created directory tree and returns the last
// matching file already inside it.
func addDir(watcher *fsnotify.Watcher, dir string, files map[string]bool, dirs []string, exts []string) (string, error) {
	var found string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		if matches(path, files, dirs, exts) {
			found = path
		}
		return nil
	})
	return found, err
}

func watchDirRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
