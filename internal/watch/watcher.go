// Package watch reports edits to site files inside the workspace.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/kimaguri/htflow-panel/internal/workspace"
)

// DefaultSettle is how long a file must stay quiet before its change is published
const DefaultSettle = 150 * time.Millisecond

// extensions are the file types whose edits are published
var extensions = map[string]bool{
	".html": true,
	".htm":  true,
	".css":  true,
	".js":   true,
	".json": true,
}

// Publisher receives settled file changes
type Publisher interface {
	FileChanged(relPath, name string)
}

// Watcher watches a workspace tree recursively
type Watcher struct {
	// Settle defaults to DefaultSettle; set before Run
	Settle time.Duration

	root string
	pub  Publisher
	fsw  *fsnotify.Watcher
	log  zerolog.Logger
}

// New starts watching every non-skipped directory under root
func New(root string, pub Publisher, log zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		Settle: DefaultSettle,
		root:   root,
		pub:    pub,
		fsw:    fsw,
		log:    log.With().Str("component", "watch").Logger(),
	}
	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && workspace.Skip(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.log.Debug().Err(err).Str("dir", path).Msg("cannot watch directory")
		}
		return nil
	})
}

// Run publishes changes until ctx is cancelled. It closes the watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	settle := w.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !w.ignored(event.Name) {
					if err := w.addRecursive(event.Name); err != nil {
						w.log.Debug().Err(err).Str("dir", event.Name).Msg("cannot watch new directory")
					}
					continue
				}
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if w.relevant(event.Name) {
					pending[event.Name] = time.Now()
				}
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watcher error")

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < settle {
					continue
				}
				delete(pending, path)
				w.publish(path)
			}
		}
	}
}

func (w *Watcher) publish(path string) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	w.log.Debug().Str("file", rel).Msg("file changed")
	w.pub.FileChanged(rel, filepath.Base(path))
}

// relevant reports whether path is a site file outside skipped directories
func (w *Watcher) relevant(path string) bool {
	if !extensions[strings.ToLower(filepath.Ext(path))] {
		return false
	}
	return !w.ignored(filepath.Dir(path))
}

// ignored reports whether any directory between root and path is skipped
func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return true
	}
	if rel == "." {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if workspace.Skip(part) {
			return true
		}
	}
	return false
}
