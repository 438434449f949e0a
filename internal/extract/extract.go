// Package extract downloads a video's metadata, captions and comments and
// locates the resulting files.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/veritube/veritube-agent/internal/artifacts"
	"github.com/veritube/veritube-agent/internal/logging"
	"github.com/veritube/veritube-agent/internal/pipelines"
	"github.com/veritube/veritube-agent/internal/video"
)

var (
	// ErrInvalidURL is returned when no video id can be derived from a URL.
	ErrInvalidURL = errors.New("extract: cannot derive a video id from url")
	// ErrNoCaptions is returned when the download produced no caption file.
	ErrNoCaptions = errors.New("extract: no captions available")
)

// Result describes the files produced for one video.
type Result struct {
	VideoID      string
	FolderPath   string
	CaptionPath  string // empty when the video has no English captions
	MetadataPath string
	Metadata     video.Metadata
	// MetadataErr is set when the info file was missing or malformed and
	// Metadata was defaulted to the bare id.
	MetadataErr error
}

// Extractor fetches a video into its artifact folder.
type Extractor interface {
	Extract(ctx context.Context, url string) (*Result, error)
}

// YTDLPExtractor implements Extractor with a yt-dlp subprocess.
type YTDLPExtractor struct {
	runner pipelines.Runner
	store  *artifacts.Store
	opts   pipelines.DownloadOptions
	logger *slog.Logger
}

func NewYTDLPExtractor(runner pipelines.Runner, store *artifacts.Store, opts pipelines.DownloadOptions, logger *slog.Logger) *YTDLPExtractor {
	return &YTDLPExtractor{
		runner: runner,
		store:  store,
		opts:   opts,
		logger: logging.OrDiscard(logger),
	}
}

// Extract downloads url. A missing caption file is not an error here; the
// caller decides whether the later stages can run.
func (e *YTDLPExtractor) Extract(ctx context.Context, url string) (*Result, error) {
	id := video.ParseID(url)
	if !video.ValidID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, url)
	}

	dir, err := e.store.Ensure(id)
	if err != nil {
		return nil, err
	}

	if _, err := e.runner.RunDownload(ctx, url, dir, id, e.opts); err != nil {
		return nil, fmt.Errorf("download %s: %w", id, err)
	}

	return Locate(e.store, id, e.logger)
}

// Locate finds the caption and metadata files already present in the
// folder of id and decodes the metadata.
func Locate(store *artifacts.Store, id string, logger *slog.Logger) (*Result, error) {
	logger = logging.OrDiscard(logger)

	dir, err := store.Dir(id)
	if err != nil {
		return nil, err
	}

	res := &Result{VideoID: id, FolderPath: dir, Metadata: video.Metadata{ID: id}}

	if res.CaptionPath, err = store.FindFile(id, id+"*.vtt"); err != nil {
		return nil, err
	}
	if res.MetadataPath, err = store.FindFile(id, id+"*.info.json"); err != nil {
		return nil, err
	}

	if res.MetadataPath == "" {
		res.MetadataErr = fmt.Errorf("%w: no info file", video.ErrInvalidMetadata)
	} else {
		data, err := os.ReadFile(res.MetadataPath)
		if err != nil {
			return nil, fmt.Errorf("read metadata: %w", err)
		}
		meta, err := video.DecodeMetadata(data)
		if err != nil {
			res.MetadataErr = err
		} else {
			res.Metadata = meta
		}
	}

	if res.MetadataErr != nil {
		logger.Warn("video metadata unusable, defaulting to id only",
			"video_id", id,
			"error", res.MetadataErr,
		)
	}
	if res.CaptionPath == "" {
		logger.Warn("no caption file found", "video_id", id)
	}

	return res, nil
}
