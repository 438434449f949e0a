// Package watcher imports caption files dropped into an inbox directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/veritube/veritube-agent/internal/logging"
	"github.com/veritube/veritube-agent/internal/pipeline"
	"github.com/veritube/veritube-agent/internal/video"
)

// DefaultSettle is how long a new file is left alone before it is read.
const DefaultSettle = 500 * time.Millisecond

// Importer runs the pipeline for a local caption file.
type Importer interface {
	ImportCaptions(ctx context.Context, videoID, path string) (*pipeline.Result, error)
}

// Watcher imports every .vtt file created in its directory, one file at a
// time. The video id is the file name up to its first dot.
type Watcher struct {
	dir      string
	importer Importer
	logger   *slog.Logger
	settle   time.Duration
	fs       *fsnotify.Watcher
	paused   atomic.Bool
	imported atomic.Int64
}

// New creates dir if needed and starts watching it. Events are only handled
// once Start is called.
func New(dir string, importer Importer, logger *slog.Logger) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create inbox: %w", err)
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}

	return &Watcher{
		dir:      dir,
		importer: importer,
		logger:   logging.WithComponent(logging.OrDiscard(logger), "watcher"),
		settle:   DefaultSettle,
		fs:       fs,
	}, nil
}

// SetSettle overrides the delay before a new file is read.
func (w *Watcher) SetSettle(d time.Duration) {
	w.settle = d
}

// Start imports the files already in the inbox and then blocks handling
// events until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("inbox watcher started", "dir", logging.SanitizePath(w.dir))
	w.scanExisting(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("inbox watcher stopped")
			return ctx.Err()

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !isCaptionFile(event.Name) {
				w.logger.Debug("ignoring non-caption file", "path", logging.SanitizePath(event.Name))
				continue
			}
			if err := w.wait(ctx); err != nil {
				return err
			}
			w.handle(ctx, event.Name)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// Stop closes the underlying watcher, which ends Start.
func (w *Watcher) Stop() error {
	return w.fs.Close()
}

// Pause makes the watcher ignore new files until Resume.
func (w *Watcher) Pause() {
	w.paused.Store(true)
	w.logger.Info("inbox watcher paused")
}

func (w *Watcher) Resume() {
	w.paused.Store(false)
	w.logger.Info("inbox watcher resumed")
}

func (w *Watcher) IsPaused() bool {
	return w.paused.Load()
}

// Imported returns the number of files imported since start.
func (w *Watcher) Imported() int64 {
	return w.imported.Load()
}

func (w *Watcher) scanExisting(ctx context.Context) {
	matches, err := filepath.Glob(filepath.Join(w.dir, "*.vtt"))
	if err != nil {
		w.logger.Warn("failed to scan inbox", "error", err)
		return
	}
	sort.Strings(matches)
	for _, path := range matches {
		if ctx.Err() != nil {
			return
		}
		w.handle(ctx, path)
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	logger := w.logger.With("path", logging.SanitizePath(path))
	if w.IsPaused() {
		logger.Info("inbox watcher paused, file skipped")
		return
	}
	if _, err := os.Stat(path); err != nil {
		// Renamed away or deleted before it settled.
		return
	}

	id := VideoIDFromFile(path)
	if id == "" {
		logger.Warn("cannot derive a video id from file name")
		return
	}

	res, err := w.importer.ImportCaptions(ctx, id, path)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Error("caption import failed", "video_id", id, "error", err)
		return
	}
	w.imported.Add(1)
	logger.Info("caption file imported", "video_id", id, "state", res.State, "cached", res.Cached)
}

func (w *Watcher) wait(ctx context.Context) error {
	if w.settle <= 0 {
		return nil
	}
	t := time.NewTimer(w.settle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// VideoIDFromFile returns the video id encoded in a caption file name
// ("<id>.en.vtt" or "<id>.vtt"), or "" when the name carries no valid id.
func VideoIDFromFile(path string) string {
	name := filepath.Base(path)
	id, _, _ := strings.Cut(name, ".")
	if !video.ValidID(id) {
		return ""
	}
	return id
}

func isCaptionFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".vtt")
}
