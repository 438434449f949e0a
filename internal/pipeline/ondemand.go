package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/veritube/veritube-agent/internal/cache"
	"github.com/veritube/veritube-agent/internal/catalog"
	"github.com/veritube/veritube-agent/internal/comments"
	"github.com/veritube/veritube-agent/internal/factcheck"
	"github.com/veritube/veritube-agent/internal/logging"
	"github.com/veritube/veritube-agent/internal/summarize"
	"github.com/veritube/veritube-agent/internal/video"
)

// AnalyzeComments returns the comment report for videoID, computing and
// caching it on first use. The video must have been processed.
func (o *Orchestrator) AnalyzeComments(ctx context.Context, videoID string) (*comments.Report, error) {
	if !video.ValidID(videoID) {
		return nil, stageError(StageInput, KindInput, fmt.Errorf("%w: %q", ErrInvalidURL, videoID))
	}
	return doCollapsed(ctx, o, "comments:"+videoID, func(ctx context.Context) (*comments.Report, error) {
		return o.analyzeComments(ctx, videoID)
	})
}

func (o *Orchestrator) analyzeComments(ctx context.Context, id string) (*comments.Report, error) {
	start := time.Now()
	logger := logging.WithStage(logging.WithVideoID(o.logger, id), StageComments)

	var cached comments.Report
	err := cache.GetJSON(ctx, o.cache, cache.Key(id, cache.SuffixAnalysis), &cached)
	if err == nil {
		logger.Debug("comment analysis served from cache")
		o.metrics.ObserveStage(StageComments, "cached", time.Since(start))
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		logger.Warn("cached comment analysis unreadable, recomputing", "error", err)
	}

	var meta video.Metadata
	err = cache.GetJSON(ctx, o.cache, cache.Key(id, cache.SuffixSummary), &meta)
	if errors.Is(err, cache.ErrNotFound) {
		err = stageError(StageComments, KindMissingPrerequisite, errors.New("video metadata not found; process the video first"))
		o.observe(StageComments, start, err)
		return nil, err
	}
	if err != nil {
		logger.Warn("cached metadata is malformed, analysing without comments", "error", err)
	}
	if meta.ID == "" {
		meta = video.Metadata{ID: id}
	}

	run := o.runs.Begin(ctx, catalog.RunKindComments, id, "")
	transcript, err := o.Transcript(ctx, id)
	if err != nil {
		transcript = nil
	}

	report := o.comments.Analyze(ctx, meta, transcript)
	if err := o.persist(ctx, logger, id, cache.SuffixAnalysis, report); err != nil {
		logger.Warn("failed to cache comment analysis", "error", err)
	}

	o.runs.Complete(ctx, run, false)
	o.metrics.ObserveStage(StageComments, report.Status, time.Since(start))
	logger.Info("comment analysis finished", "status", report.Status, "comments", len(meta.Comments))
	return report, nil
}

// FactCheck returns the fact-check report for videoID. A report is always
// returned, even with an error, so callers can answer with the fixed shape.
// Only processed and skipped reports are cached.
func (o *Orchestrator) FactCheck(ctx context.Context, videoID string) (*factcheck.Report, error) {
	if !video.ValidID(videoID) {
		err := stageError(StageInput, KindInput, fmt.Errorf("%w: %q", ErrInvalidURL, videoID))
		return factcheck.Empty(videoID, factcheck.StatusError, "Invalid video id"), err
	}
	type outcome struct {
		report *factcheck.Report
		err    error
	}
	// The report travels with its error, so the shared call never fails.
	res, _ := doCollapsed(ctx, o, "factcheck:"+videoID, func(ctx context.Context) (outcome, error) {
		r, err := o.factCheck(ctx, videoID)
		return outcome{r, err}, nil
	})
	return res.report, res.err
}

func (o *Orchestrator) factCheck(ctx context.Context, id string) (*factcheck.Report, error) {
	start := time.Now()
	logger := logging.WithStage(logging.WithVideoID(o.logger, id), StageFactCheck)

	if o.artifacts == nil || !o.artifacts.Exists(id) {
		err := stageError(StageFactCheck, KindNotFound, fmt.Errorf("no data found for video %s", id))
		o.observe(StageFactCheck, start, err)
		return factcheck.Empty(id, factcheck.StatusNotFound, "Video not processed"), err
	}

	var cached factcheck.Report
	err := cache.GetJSON(ctx, o.cache, cache.Key(id, cache.SuffixFactCheck), &cached)
	if err == nil {
		logger.Debug("fact-check served from cache")
		o.metrics.ObserveStage(StageFactCheck, "cached", time.Since(start))
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		logger.Warn("cached fact-check unreadable, recomputing", "error", err)
	}

	transcript, err := o.Transcript(ctx, id)
	if err != nil {
		if KindOf(err) == KindNotFound {
			err = stageError(StageFactCheck, KindMissingPrerequisite, errors.New("segmented transcript not found"))
			o.observe(StageFactCheck, start, err)
			return factcheck.Empty(id, factcheck.StatusMissingPrerequisite, "Segmented transcript not found"), err
		}
		logger.Error("failed to load segmented transcript", "error", err)
		o.observe(StageFactCheck, start, err)
		return factcheck.Empty(id, factcheck.StatusError, "Transcript unreadable"), nil
	}

	run := o.runs.Begin(ctx, catalog.RunKindFactCheck, id, "")
	report := o.factChecker.Check(ctx, transcript)
	if report.Cacheable() {
		if err := o.persist(ctx, logger, id, cache.SuffixFactCheck, report); err != nil {
			logger.Warn("failed to cache fact-check", "error", err)
		}
	}

	if report.Status == factcheck.StatusError {
		o.runs.Fail(ctx, run, errors.New(report.Reason))
	} else {
		o.runs.Complete(ctx, run, false)
	}
	o.metrics.ObserveStage(StageFactCheck, report.Status, time.Since(start))
	logger.Info("fact-check finished", "status", report.Status, "checks", len(report.FactChecks))
	return report, nil
}

// Purge deletes the purge set of videoID from the cache and the mirrored
// artifact files, and returns the number of cache keys removed. The comment
// analysis and the downloaded files are kept.
func (o *Orchestrator) Purge(ctx context.Context, videoID string) (int, error) {
	if !video.ValidID(videoID) {
		return 0, stageError(StageInput, KindInput, fmt.Errorf("%w: %q", ErrInvalidURL, videoID))
	}
	run := o.runs.Begin(ctx, catalog.RunKindPurge, videoID, "")
	n, err := cache.Purge(ctx, o.cache, videoID)
	if err != nil {
		err = stageError(StagePurge, KindFatal, err)
		o.runs.Fail(ctx, run, err)
		return 0, err
	}
	if o.artifacts != nil && o.artifacts.Exists(videoID) {
		if err := o.artifacts.Remove(videoID, cache.PurgeSuffixes...); err != nil {
			o.logger.Warn("failed to remove artifact files", "video_id", videoID, "error", err)
		}
	}
	o.runs.Complete(ctx, run, false)
	o.logger.Info("video purged", "video_id", videoID, "keys_deleted", n)
	return n, nil
}

// Transcript returns the segmented transcript of videoID from the cache, or
// from its artifact file when the cache entry has gone.
func (o *Orchestrator) Transcript(ctx context.Context, videoID string) (*summarize.Transcript, error) {
	var t summarize.Transcript
	err := cache.GetJSON(ctx, o.cache, cache.Key(videoID, cache.SuffixSegmented), &t)
	if err == nil {
		return &t, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return nil, stageError(StageSegment, KindFatal, err)
	}

	if o.artifacts != nil {
		err = o.artifacts.ReadJSON(videoID, cache.SuffixSegmented, &t)
		if err == nil {
			return &t, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, stageError(StageSegment, KindFatal, err)
		}
	}
	return nil, stageError(StageSegment, KindNotFound, fmt.Errorf("no segmented transcript for video %s", videoID))
}

// CheckStatus reports whether the video behind url has been processed.
func (o *Orchestrator) CheckStatus(ctx context.Context, url string) (*Status, error) {
	id, err := parseID(url)
	if err != nil {
		return nil, err
	}
	done, err := o.cache.Exists(ctx, cache.Key(id, cache.SuffixSummary))
	if err != nil {
		return nil, stageError(StageEntry, KindFatal, err)
	}

	st := &Status{VideoID: id, Processed: done, State: o.State(ctx, id)}
	if dir := o.folder(id); dir != "" {
		st.FolderPath = &dir
	}
	return st, nil
}
