package pipelines

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/veritube/veritube-agent/internal/logging"
)

const DefaultDoctorTTL = 5 * time.Minute

// CachedDoctor keeps the last tool probe so status requests and extractions
// do not spawn probe subprocesses every time. Concurrent refreshes share one
// probe.
type CachedDoctor struct {
	runner Runner
	ttl    time.Duration
	logger *slog.Logger

	probes singleflight.Group

	mu     sync.RWMutex
	cached *Capabilities
}

// NewCachedDoctor wraps runner's probe. A ttl of zero uses DefaultDoctorTTL.
func NewCachedDoctor(runner Runner, ttl time.Duration, logger *slog.Logger) *CachedDoctor {
	if ttl <= 0 {
		ttl = DefaultDoctorTTL
	}
	return &CachedDoctor{
		runner: runner,
		ttl:    ttl,
		logger: logging.WithComponent(logging.OrDiscard(logger), "doctor"),
	}
}

// Get returns the cached capabilities while fresh, otherwise probes again.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	if caps := d.Peek(); caps != nil && time.Since(caps.ProbedAt) < d.ttl {
		return caps, nil
	}
	return d.Refresh(ctx)
}

// Peek returns the last probe result without probing, or nil.
func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh probes regardless of freshness. A failed probe returns the stale
// result when there is one.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	v, err, _ := d.probes.Do("probe", func() (any, error) {
		return d.runner.RunDoctor(ctx)
	})
	if err != nil {
		d.logger.Warn("doctor probe failed", "error", err)
		if stale := d.Peek(); stale != nil {
			return stale, nil
		}
		return nil, err
	}

	caps, _ := v.(*Capabilities)
	if caps == nil {
		return nil, errors.New("doctor probe returned no capabilities")
	}
	d.mu.Lock()
	d.cached = caps
	d.mu.Unlock()

	d.logger.Debug("doctor probe complete",
		"can_extract", caps.CanExtract,
		"can_download_media", caps.CanDownloadMedia,
		"can_run_sibling", caps.CanRunSibling,
	)
	return caps, nil
}

// Invalidate drops the cached capabilities so the next Get probes.
func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
