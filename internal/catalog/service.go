// Package catalog keeps the ledger of pipeline runs and the agent's
// key-value settings in the agent database.
package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/veritube/veritube-agent/internal/logging"
)

// Service records run lifecycles. Ledger writes never fail the run they
// describe: errors are logged and the run continues.
//
// A nil *Service is valid and records nothing.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logging.OrDiscard(logger)}
}

// Begin creates a running record for a run of kind on videoID.
func (s *Service) Begin(ctx context.Context, kind, videoID, source string) *Run {
	now := time.Now().UTC()
	run := &Run{
		ID:        NewID(),
		Kind:      kind,
		VideoID:   videoID,
		Source:    source,
		Status:    RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s == nil {
		return run
	}

	if err := s.repo.CreateRun(ctx, run); err != nil {
		s.logger.Warn("failed to record run", "run_id", run.ID, "kind", kind, "video_id", videoID, "error", err)
	}
	return run
}

// SetStage records the stage run has entered.
func (s *Service) SetStage(ctx context.Context, run *Run, stage string) {
	run.Stage = stage
	s.update(ctx, run)
}

// Complete marks run completed.
func (s *Service) Complete(ctx context.Context, run *Run, cached bool) {
	run.Status = RunStatusCompleted
	run.Cached = cached
	s.update(ctx, run)
}

// Fail marks run failed with err.
func (s *Service) Fail(ctx context.Context, run *Run, err error) {
	run.Status = RunStatusFailed
	if err != nil {
		run.Error = err.Error()
	}
	s.update(ctx, run)
}

func (s *Service) update(ctx context.Context, run *Run) {
	run.UpdatedAt = time.Now().UTC()
	if s == nil {
		return
	}
	// A cancelled request context must not lose the final state.
	if err := s.repo.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Warn("failed to update run", "run_id", run.ID, "status", run.Status, "error", err)
	}
}

func (s *Service) GetRun(ctx context.Context, id string) (*Run, error) {
	return s.repo.GetRun(ctx, id)
}

// ListRuns returns the newest runs, optionally only those for videoID.
func (s *Service) ListRuns(ctx context.Context, videoID string, limit int) ([]*Run, error) {
	if videoID != "" {
		return s.repo.ListRunsByVideo(ctx, videoID, limit)
	}
	return s.repo.ListRuns(ctx, limit)
}

func (s *Service) CountRuns(ctx context.Context) (int, error) {
	return s.repo.CountRuns(ctx, "")
}

func (s *Service) ActiveRunCount(ctx context.Context) int {
	if s == nil {
		return 0
	}
	n, err := s.repo.CountRuns(ctx, RunStatusRunning)
	if err != nil {
		return 0
	}
	return n
}

func (s *Service) GetConfig(ctx context.Context, key string) (string, error) {
	return s.repo.GetConfig(ctx, key)
}

func (s *Service) SetConfig(ctx context.Context, key, value string) error {
	return s.repo.SetConfig(ctx, key, value)
}
