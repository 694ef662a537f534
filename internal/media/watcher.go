// Package media watches the capture inbox where the camera and recorder
// collaborators drop finalized files, and reports each settled photo or
// audio file for the draft whose directory it landed in.
package media

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// inboxDirPerm is the permission mode for the capture inbox when it
	// is created on start.
	inboxDirPerm = fs.FileMode(0o755)

	// debounceInterval is how often pending files are checked.
	debounceInterval = 500 * time.Millisecond

	// quietPeriod is how long a file must go without writes before it is
	// treated as finalized.
	quietPeriod = 300 * time.Millisecond
)

// Kind is the type of a captured file.
type Kind string

const (
	KindPhoto Kind = "photo"
	KindAudio Kind = "audio"
)

var extKinds = map[string]Kind{
	".jpg":  KindPhoto,
	".jpeg": KindPhoto,
	".png":  KindPhoto,
	".heic": KindPhoto,
	".webp": KindPhoto,
	".m4a":  KindAudio,
	".mp3":  KindAudio,
	".wav":  KindAudio,
	".aac":  KindAudio,
	".ogg":  KindAudio,
	".opus": KindAudio,
}

// KindOf classifies a path by extension. Hidden files are never media.
func KindOf(path string) (Kind, bool) {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return "", false
	}

	k, ok := extKinds[strings.ToLower(filepath.Ext(path))]

	return k, ok
}

// Capture is one finalized media file. Key is the name of the inbox
// subdirectory, which identifies the draft it belongs to.
type Capture struct {
	Key  string
	Kind Kind
	Path string
}

// Handler receives finalized captures.
type Handler func(ctx context.Context, c Capture)

// Watcher reports files settling in <dir>/<key>/.
type Watcher struct {
	dir     string
	handle  Handler
	logger  *slog.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher over the capture inbox dir.
func NewWatcher(dir string, handle Handler, logger *slog.Logger) *Watcher {
	return &Watcher{dir: dir, handle: handle, logger: logger}
}

// Watch blocks until ctx is cancelled. Files already present when it
// starts are reported once.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	w.watcher = watcher
	defer watcher.Close()

	if err := os.MkdirAll(w.dir, inboxDirPerm); err != nil {
		return fmt.Errorf("creating capture dir: %w", err)
	}

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching capture dir: %w", err)
	}

	pending := make(map[string]time.Time)
	w.scan(pending)

	w.logger.Info("capture watcher started", slog.String("dir", w.dir))

	ticker := time.NewTicker(debounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed unexpectedly")
			}

			if event.Has(fsnotify.Create) && w.isKeyDir(event.Name) {
				if err := watcher.Add(event.Name); err != nil {
					w.logger.Warn("watching draft dir",
						slog.String("dir", event.Name),
						slog.String("error", err.Error()),
					)
				}

				w.scanKey(event.Name, pending)

				continue
			}

			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				if _, ok := w.captureFor(event.Name); ok {
					pending[event.Name] = time.Now()
				}
			}

			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				delete(pending, event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed unexpectedly")
			}

			w.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			now := time.Now()
			for path, t := range pending {
				if now.Sub(t) < quietPeriod {
					continue
				}

				delete(pending, path)
				w.emit(ctx, path)
			}
		}
	}
}

// isKeyDir reports whether path is a real directory directly under the
// inbox. Symlinks are not followed.
func (w *Watcher) isKeyDir(path string) bool {
	if filepath.Dir(path) != filepath.Clean(w.dir) {
		return false
	}

	info, err := os.Lstat(path)

	return err == nil && info.IsDir()
}

// captureFor maps a path to a capture if it is a media file exactly one
// level below the inbox.
func (w *Watcher) captureFor(path string) (Capture, bool) {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return Capture{}, false
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 || parts[0] == ".." || strings.HasPrefix(parts[0], ".") {
		return Capture{}, false
	}

	kind, ok := KindOf(path)
	if !ok {
		return Capture{}, false
	}

	return Capture{Key: parts[0], Kind: kind, Path: path}, true
}

func (w *Watcher) emit(ctx context.Context, path string) {
	c, ok := w.captureFor(path)
	if !ok {
		return
	}

	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		return
	}

	w.logger.Debug("capture finalized",
		slog.String("key", c.Key),
		slog.String("kind", string(c.Kind)),
		slog.String("path", path),
	)

	w.handle(ctx, c)
}

func (w *Watcher) scan(pending map[string]time.Time) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("scanning capture dir", slog.String("error", err.Error()))
		return
	}

	for _, e := range entries {
		dir := filepath.Join(w.dir, e.Name())
		if !w.isKeyDir(dir) {
			continue
		}

		if err := w.watcher.Add(dir); err != nil {
			w.logger.Warn("watching draft dir", slog.String("dir", dir), slog.String("error", err.Error()))
		}

		w.scanKey(dir, pending)
	}
}

// scanKey queues files already present in a draft dir. A dir created with
// files in it fires no per-file events.
func (w *Watcher) scanKey(dir string, pending map[string]time.Time) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if _, ok := w.captureFor(path); ok {
			pending[path] = time.Now()
		}
	}
}
