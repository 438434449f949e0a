// Package pipeline sequences extraction, cleaning and segmentation of a
// video and runs the on-demand comment analysis and fact-check stages.
//
// The cache is the single source of truth for whether a stage has run: each
// stage checks its marker key before doing any work and writes its output
// back under that key, mirrored to the video's artifact folder.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/veritube/veritube-agent/internal/artifacts"
	"github.com/veritube/veritube-agent/internal/cache"
	"github.com/veritube/veritube-agent/internal/caption"
	"github.com/veritube/veritube-agent/internal/catalog"
	"github.com/veritube/veritube-agent/internal/comments"
	"github.com/veritube/veritube-agent/internal/extract"
	"github.com/veritube/veritube-agent/internal/factcheck"
	"github.com/veritube/veritube-agent/internal/logging"
	"github.com/veritube/veritube-agent/internal/metrics"
	"github.com/veritube/veritube-agent/internal/segment"
	"github.com/veritube/veritube-agent/internal/summarize"
	"github.com/veritube/veritube-agent/internal/video"
)

// State of a video in the main pipeline.
type State string

const (
	StateUnseen     State = "UNSEEN"
	StateExtracting State = "EXTRACTING"
	StateExtracted  State = "EXTRACTED"
	StateCleaning   State = "CLEANING"
	StateCleaned    State = "CLEANED"
	StateSegmenting State = "SEGMENTING"
	StateSegmented  State = "SEGMENTED"
	StateFailed     State = "FAILED"
)

// Stage names used in errors, logs, metrics and the runs ledger.
const (
	StageInput     = "input"
	StageEntry     = "entry"
	StageExtract   = "extract"
	StageClean     = "clean"
	StageSegment   = "segment"
	StageComments  = "comments"
	StageFactCheck = "fact_check"
	StagePurge     = "purge"
)

// Pipeline is the orchestrator contract used by the HTTP layer and the
// inbox watcher.
type Pipeline interface {
	Process(ctx context.Context, url string) (*Result, error)
	ImportCaptions(ctx context.Context, videoID, path string) (*Result, error)
	AnalyzeComments(ctx context.Context, videoID string) (*comments.Report, error)
	FactCheck(ctx context.Context, videoID string) (*factcheck.Report, error)
	Purge(ctx context.Context, videoID string) (int, error)
	Transcript(ctx context.Context, videoID string) (*summarize.Transcript, error)
	CheckStatus(ctx context.Context, url string) (*Status, error)
}

// Result is the outcome of a main pipeline run.
type Result struct {
	VideoID       string   `json:"video_id"`
	Cached        bool     `json:"cached"`
	State         State    `json:"state"`
	FolderPath    string   `json:"folder_path,omitempty"`
	TotalSegments int      `json:"total_segments"`
	Warnings      []string `json:"warnings,omitempty"`
}

// Status reports whether a video has been processed.
type Status struct {
	VideoID    string  `json:"video_id"`
	Processed  bool    `json:"processed"`
	FolderPath *string `json:"folder_path"`
	State      State   `json:"state"`
}

// CleanTranscript is the plain-text transcript artifact.
type CleanTranscript struct {
	VideoID    string    `json:"video_id"`
	SourceFile string    `json:"source_file"`
	CleanedAt  time.Time `json:"cleaned_at"`
	Text       string    `json:"text"`
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Cache       cache.Store
	Artifacts   *artifacts.Store
	Extractor   extract.Extractor
	Builder     *summarize.Builder
	Comments    *comments.Analyzer
	FactChecker *factcheck.Checker
	Runs        *catalog.Service
	Metrics     *metrics.Metrics
	Logger      *slog.Logger

	WindowSeconds int
	// CacheTTL applies to every artifact written; zero never expires.
	CacheTTL time.Duration
	// CollapseDuplicates makes concurrent runs for the same video share one
	// execution.
	CollapseDuplicates bool
}

// Orchestrator implements Pipeline.
type Orchestrator struct {
	cache       cache.Store
	artifacts   *artifacts.Store
	extractor   extract.Extractor
	builder     *summarize.Builder
	comments    *comments.Analyzer
	factChecker *factcheck.Checker
	runs        *catalog.Service
	metrics     *metrics.Metrics
	logger      *slog.Logger

	window   int
	ttl      time.Duration
	collapse bool
	group    singleflight.Group
}

func New(cfg Config) *Orchestrator {
	window := cfg.WindowSeconds
	if window <= 0 {
		window = segment.DefaultWindow
	}
	logger := logging.WithComponent(logging.OrDiscard(cfg.Logger), "pipeline")

	builder := cfg.Builder
	if builder == nil {
		builder = summarize.NewBuilder(nil, cfg.Metrics, logger)
	}
	analyzer := cfg.Comments
	if analyzer == nil {
		analyzer = comments.NewAnalyzer(nil, logger)
	}
	checker := cfg.FactChecker
	if checker == nil {
		checker = factcheck.NewChecker(nil, logger)
	}

	return &Orchestrator{
		cache:       cfg.Cache,
		artifacts:   cfg.Artifacts,
		extractor:   cfg.Extractor,
		builder:     builder,
		comments:    analyzer,
		factChecker: checker,
		runs:        cfg.Runs,
		metrics:     cfg.Metrics,
		logger:      logger,
		window:      window,
		ttl:         cfg.CacheTTL,
		collapse:    cfg.CollapseDuplicates,
	}
}

// Process runs extraction, cleaning and segmentation for url unless the
// video's summary marker is already cached. Only extraction failures abort
// the run; cleaning and segmentation failures are returned as warnings.
func (o *Orchestrator) Process(ctx context.Context, url string) (*Result, error) {
	id, err := parseID(url)
	if err != nil {
		return nil, err
	}
	return doCollapsed(ctx, o, "process:"+id, func(ctx context.Context) (*Result, error) {
		return o.process(ctx, id, url)
	})
}

func (o *Orchestrator) process(ctx context.Context, id, url string) (*Result, error) {
	run := o.runs.Begin(ctx, catalog.RunKindProcess, id, url)
	logger := logging.WithRunID(logging.WithVideoID(o.logger, id), run.ID)

	done, err := o.cache.Exists(ctx, cache.Key(id, cache.SuffixSummary))
	if err != nil {
		err = stageError(StageEntry, KindFatal, err)
		o.runs.Fail(ctx, run, err)
		return nil, err
	}
	if done {
		logger.Info("video already processed, using cache")
		o.metrics.ObserveStage(StageEntry, "cached", 0)
		o.runs.Complete(ctx, run, true)
		return &Result{VideoID: id, Cached: true, State: o.State(ctx, id), FolderPath: o.folder(id)}, nil
	}

	res := &Result{VideoID: id, State: StateExtracting}
	logger.Info("pipeline started", "url", url)

	o.runs.SetStage(ctx, run, StageExtract)
	ext, lines, err := o.extract(ctx, logger, url)
	if err != nil {
		res.State = StateFailed
		o.runs.Fail(ctx, run, err)
		return nil, err
	}
	res.State = StateExtracted
	res.FolderPath = ext.FolderPath

	o.continueFromCaptions(ctx, logger, run, res, ext.CaptionPath, lines)

	if err := o.persist(ctx, logger, id, cache.SuffixSummary, ext.Metadata); err != nil {
		err = stageError(StageExtract, KindFatal, err)
		res.State = StateFailed
		o.runs.Fail(ctx, run, err)
		return nil, err
	}

	o.runs.Complete(ctx, run, false)
	logger.Info("pipeline finished", "state", res.State, "segments", res.TotalSegments, "warnings", len(res.Warnings))
	return res, nil
}

// continueFromCaptions runs the recoverable cleaning and segmentation stages.
func (o *Orchestrator) continueFromCaptions(ctx context.Context, logger *slog.Logger, run *catalog.Run, res *Result, captionPath string, lines []string) {
	o.runs.SetStage(ctx, run, StageClean)
	res.State = StateCleaning
	if err := o.clean(ctx, res.VideoID, captionPath, lines); err != nil {
		o.recover(logger, res, err)
		res.State = StateExtracted
	} else {
		res.State = StateCleaned
	}

	prev := res.State
	o.runs.SetStage(ctx, run, StageSegment)
	res.State = StateSegmenting
	n, err := o.segment(ctx, res.VideoID, captionPath, lines)
	if err != nil {
		o.recover(logger, res, err)
		res.State = prev
		return
	}
	res.State = StateSegmented
	res.TotalSegments = n
}

func (o *Orchestrator) recover(logger *slog.Logger, res *Result, err error) {
	logger.Warn("stage failed, continuing", "error", err)
	res.Warnings = append(res.Warnings, err.Error())
}

// extract downloads the video and loads its caption lines. A video without
// captions is not fatal here; the later stages report it.
func (o *Orchestrator) extract(ctx context.Context, logger *slog.Logger, url string) (*extract.Result, []string, error) {
	start := time.Now()
	if o.extractor == nil {
		err := stageError(StageExtract, KindFatal, errors.New("no extractor configured"))
		o.metrics.ObserveStage(StageExtract, KindFatal.String(), time.Since(start))
		return nil, nil, err
	}

	logger.Info("extraction started")
	ext, err := o.extractor.Extract(ctx, url)
	if err != nil {
		kind := KindFatal
		if errors.Is(err, extract.ErrInvalidURL) {
			kind = KindInput
		}
		o.metrics.ObserveStage(StageExtract, kind.String(), time.Since(start))
		return nil, nil, stageError(StageExtract, kind, err)
	}
	if ext.MetadataErr != nil {
		ext.Metadata = video.Metadata{ID: ext.VideoID}
	}

	lines, err := o.loadCaptions(ctx, ext.VideoID, ext.CaptionPath)
	if err != nil {
		logger.Warn("captions unavailable", "error", err)
	}

	o.metrics.ObserveStage(StageExtract, "ok", time.Since(start))
	logger.Info("extraction finished",
		"title", ext.Metadata.Title,
		"comments", len(ext.Metadata.Comments),
		"caption_lines", len(lines),
	)
	return ext, lines, nil
}

// loadCaptions reads the caption file and caches its raw text.
func (o *Orchestrator) loadCaptions(ctx context.Context, id, path string) ([]string, error) {
	if path == "" {
		return nil, extract.ErrNoCaptions
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read captions: %w", err)
	}
	text := string(data)
	if err := cache.SetJSON(ctx, o.cache, cache.Key(id, cache.SuffixCaptions), text, o.ttl); err != nil {
		return nil, err
	}
	return caption.SplitLines(text), nil
}

func (o *Orchestrator) clean(ctx context.Context, id, captionPath string, lines []string) error {
	start := time.Now()
	err := o.cleanStage(ctx, id, captionPath, lines)
	o.observe(StageClean, start, err)
	return err
}

func (o *Orchestrator) cleanStage(ctx context.Context, id, captionPath string, lines []string) error {
	if lines == nil {
		return stageError(StageClean, KindRecoverable, extract.ErrNoCaptions)
	}
	ct := CleanTranscript{
		VideoID:    id,
		SourceFile: filepath.Base(captionPath),
		CleanedAt:  time.Now().UTC(),
		Text:       caption.CleanText(lines),
	}
	if err := o.persist(ctx, o.logger, id, cache.SuffixCleanTranscript, ct); err != nil {
		return stageError(StageClean, KindRecoverable, err)
	}
	return nil
}

func (o *Orchestrator) segment(ctx context.Context, id, captionPath string, lines []string) (int, error) {
	start := time.Now()
	n, err := o.segmentStage(ctx, id, captionPath, lines)
	o.observe(StageSegment, start, err)
	return n, err
}

func (o *Orchestrator) segmentStage(ctx context.Context, id, captionPath string, lines []string) (int, error) {
	if lines == nil {
		return 0, stageError(StageSegment, KindRecoverable, extract.ErrNoCaptions)
	}
	segs := segment.Split(caption.Parse(lines), o.window)
	t := o.builder.Build(ctx, id, filepath.Base(captionPath), o.window, segs)
	if err := o.persist(ctx, o.logger, id, cache.SuffixSegmented, t); err != nil {
		return 0, stageError(StageSegment, KindRecoverable, err)
	}
	return t.TotalSegments, nil
}

// ImportCaptions runs cleaning and segmentation for a caption file that was
// not downloaded by the extractor. The file is copied into the video's
// folder. A video whose segmented transcript is cached is left untouched.
func (o *Orchestrator) ImportCaptions(ctx context.Context, videoID, path string) (*Result, error) {
	if !video.ValidID(videoID) {
		return nil, stageError(StageInput, KindInput, fmt.Errorf("%w: %q", ErrInvalidURL, videoID))
	}
	return doCollapsed(ctx, o, "process:"+videoID, func(ctx context.Context) (*Result, error) {
		return o.importCaptions(ctx, videoID, path)
	})
}

func (o *Orchestrator) importCaptions(ctx context.Context, id, path string) (*Result, error) {
	run := o.runs.Begin(ctx, catalog.RunKindImport, id, path)
	logger := logging.WithRunID(logging.WithVideoID(o.logger, id), run.ID)

	done, err := o.cache.Exists(ctx, cache.Key(id, cache.SuffixSegmented))
	if err != nil {
		err = stageError(StageEntry, KindFatal, err)
		o.runs.Fail(ctx, run, err)
		return nil, err
	}
	if done {
		logger.Info("segmented transcript already cached, skipping import")
		o.runs.Complete(ctx, run, true)
		return &Result{VideoID: id, Cached: true, State: o.State(ctx, id), FolderPath: o.folder(id)}, nil
	}

	o.runs.SetStage(ctx, run, StageExtract)
	dest, err := o.copyIntoFolder(id, path)
	if err != nil {
		err = stageError(StageExtract, KindFatal, err)
		o.runs.Fail(ctx, run, err)
		return nil, err
	}
	lines, err := o.loadCaptions(ctx, id, dest)
	if err != nil {
		err = stageError(StageExtract, KindFatal, err)
		o.runs.Fail(ctx, run, err)
		return nil, err
	}

	res := &Result{VideoID: id, State: StateExtracted, FolderPath: filepath.Dir(dest)}
	o.continueFromCaptions(ctx, logger, run, res, dest, lines)

	// Imported videos have no metadata; keep an existing marker, or write
	// the bare id so the video counts as processed.
	has, err := o.cache.Exists(ctx, cache.Key(id, cache.SuffixSummary))
	if err == nil && !has {
		err = o.persist(ctx, logger, id, cache.SuffixSummary, video.Metadata{ID: id})
	}
	if err != nil {
		err = stageError(StageExtract, KindFatal, err)
		o.runs.Fail(ctx, run, err)
		return nil, err
	}

	o.runs.Complete(ctx, run, false)
	logger.Info("caption import finished", "state", res.State, "segments", res.TotalSegments)
	return res, nil
}

func (o *Orchestrator) copyIntoFolder(id, path string) (string, error) {
	dir, err := o.artifacts.Ensure(id)
	if err != nil {
		return "", err
	}
	name := filepath.Base(path)
	if !strings.HasPrefix(name, id) {
		name = id + "_" + name
	}
	dest := filepath.Join(dir, name)
	if filepath.Clean(path) == dest {
		return dest, nil
	}

	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open captions: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create captions copy: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("copy captions: %w", err)
	}
	return dest, dst.Close()
}

// persist writes v to the cache and mirrors it to the artifact folder. The
// cache write decides the outcome; a failed mirror is only logged.
func (o *Orchestrator) persist(ctx context.Context, logger *slog.Logger, id, suffix string, v any) error {
	if err := cache.SetJSON(ctx, o.cache, cache.Key(id, suffix), v, o.ttl); err != nil {
		return err
	}
	if o.artifacts == nil {
		return nil
	}
	if _, err := o.artifacts.WriteJSON(id, suffix, v); err != nil {
		logger.Warn("failed to mirror artifact", "video_id", id, "suffix", suffix, "error", err)
	}
	return nil
}

func (o *Orchestrator) observe(stage string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	o.metrics.ObserveStage(stage, outcome, time.Since(start))
}

// State derives the pipeline state of id from its cached markers.
func (o *Orchestrator) State(ctx context.Context, id string) State {
	for _, m := range []struct {
		suffix string
		state  State
	}{
		{cache.SuffixSegmented, StateSegmented},
		{cache.SuffixCleanTranscript, StateCleaned},
		{cache.SuffixSummary, StateExtracted},
	} {
		if ok, _ := o.cache.Exists(ctx, cache.Key(id, m.suffix)); ok {
			return m.state
		}
	}
	return StateUnseen
}

func (o *Orchestrator) folder(id string) string {
	if o.artifacts == nil || !o.artifacts.Exists(id) {
		return ""
	}
	dir, _ := o.artifacts.Dir(id)
	return dir
}

func parseID(url string) (string, error) {
	id := video.ParseID(url)
	if !video.ValidID(id) {
		return "", stageError(StageInput, KindInput, fmt.Errorf("%w: %q", ErrInvalidURL, url))
	}
	return id, nil
}

// doCollapsed runs fn, sharing one execution between concurrent callers with
// the same key when collapsing is enabled. A shared execution does not inherit
// the cancellation of whichever caller started it; stage timeouts still apply.
func doCollapsed[T any](ctx context.Context, o *Orchestrator, key string, fn func(context.Context) (T, error)) (T, error) {
	if !o.collapse {
		return fn(ctx)
	}
	shared := context.WithoutCancel(ctx)
	v, err, _ := o.group.Do(key, func() (any, error) {
		return fn(shared)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
