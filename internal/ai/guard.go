package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/veritube/veritube-agent/internal/logging"
	"github.com/veritube/veritube-agent/internal/metrics"
)

// Guarded wraps a Client with a request rate limit, a per-call timeout and
// metrics. It never retries.
type Guarded struct {
	next    Client
	limiter *rate.Limiter
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// GuardOptions configures Guard. Zero values disable the matching control.
type GuardOptions struct {
	RequestsPerMinute int
	Timeout           time.Duration
	Metrics           *metrics.Metrics
	Logger            *slog.Logger
}

func Guard(next Client, opts GuardOptions) *Guarded {
	g := &Guarded{
		next:    next,
		timeout: opts.Timeout,
		metrics: opts.Metrics,
		logger:  logging.OrDiscard(opts.Logger),
	}
	if opts.RequestsPerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return g
}

func (g *Guarded) Provider() string { return g.next.Provider() }

func (g *Guarded) GenerateJSON(ctx context.Context, req Request) ([]byte, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			g.metrics.ObserveAI(g.Provider(), "throttled")
			return nil, fmt.Errorf("ai: rate limit wait: %w", err)
		}
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := g.next.GenerateJSON(ctx, req)
	if err != nil {
		g.metrics.ObserveAI(g.Provider(), "error")
		g.logger.Warn("model request failed",
			"provider", g.Provider(),
			"operation", req.Operation,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return nil, err
	}

	g.metrics.ObserveAI(g.Provider(), "ok")
	g.logger.Debug("model request complete",
		"provider", g.Provider(),
		"operation", req.Operation,
		"duration_ms", time.Since(start).Milliseconds(),
		"bytes", len(out),
	)
	return out, nil
}

// Config selects and configures a provider.
type Config struct {
	Provider          string // gemini, openai or none
	GeminiAPIKeys     []string
	GeminiModel       string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	RequestsPerMinute int
	Timeout           time.Duration
	Metrics           *metrics.Metrics
	Logger            *slog.Logger
}

// New builds the configured client. A provider without credentials yields
// Disabled so the pipeline still runs with fallback output.
func New(ctx context.Context, cfg Config) (Client, error) {
	logger := logging.OrDiscard(cfg.Logger)

	var base Client
	switch cfg.Provider {
	case "gemini":
		if len(cfg.GeminiAPIKeys) == 0 {
			logger.Warn("gemini selected but no API keys configured, AI disabled")
			return Disabled{}, nil
		}
		c, err := NewGeminiClient(ctx, GeminiConfig{APIKeys: cfg.GeminiAPIKeys, Model: cfg.GeminiModel, Logger: logger})
		if err != nil {
			return nil, err
		}
		base = c
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Warn("openai selected but no API key configured, AI disabled")
			return Disabled{}, nil
		}
		c, err := NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		base = c
	case "", "none":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("ai: unknown provider %q", cfg.Provider)
	}

	logger.Info("ai provider configured", "provider", base.Provider(), "rpm", cfg.RequestsPerMinute)
	return Guard(base, GuardOptions{
		RequestsPerMinute: cfg.RequestsPerMinute,
		Timeout:           cfg.Timeout,
		Metrics:           cfg.Metrics,
		Logger:            logger,
	}), nil
}
