package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/veritube/veritube-agent/internal/catalog"
	"github.com/veritube/veritube-agent/internal/logging"
	"github.com/veritube/veritube-agent/internal/pipeline"
	"github.com/veritube/veritube-agent/internal/pipelines"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	cfg.Logger = logging.OrDiscard(cfg.Logger)
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())
	r.Use(LoggingMiddleware(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/runs", listRunsHandler(cfg))
		r.Get("/runs/{id}", getRunHandler(cfg))
		r.Post("/sibling_pipeline", siblingHandler(cfg))

		r.Get("/check_status", checkStatusHandler(cfg))
		r.Post("/extract_video_info", extractVideoInfoHandler(cfg))
		r.Post("/analyze_comments", analyzeCommentsHandler(cfg))
		r.Post("/fact_check", factCheckHandler(cfg))
		r.Post("/purge", purgeHandler(cfg))
		r.Get("/videos/{id}/transcript", transcriptHandler(cfg))
		r.Get("/videos/{id}/segments.edl", segmentsEDLHandler(cfg))
		r.Post("/videos/{id}/export", exportEDLHandler(cfg))

		r.Group(func(r chi.Router) {
			r.Use(LoopbackGuard())

			r.Get("/get/{key}", cacheGetHandler(cfg))
			r.Put("/set/{key}", cacheSetHandler(cfg))
			r.Post("/set/{key}", cacheSetHandler(cfg))
			r.Delete("/delete/{key}", cacheDeleteHandler(cfg))
		})
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		resp := StatusResponse{
			State:         "idle",
			CacheBackend:  cfg.CacheBackend,
			AIEnabled:     cfg.AIEnabled,
			WindowSeconds: cfg.WindowSeconds,
		}

		if cfg.Runs != nil {
			resp.RunsTotal, _ = cfg.Runs.CountRuns(ctx)
			resp.RunsActive = cfg.Runs.ActiveRunCount(ctx)

			recent, _ := cfg.Runs.ListRuns(ctx, "", 10)
			for _, run := range recent {
				if run.Status == catalog.RunStatusFailed {
					resp.LastError = run.Error
					break
				}
			}
		}
		if resp.RunsActive > 0 {
			resp.State = "processing"
		} else if resp.LastError != "" {
			resp.State = "error"
		}

		if cfg.Cache != nil {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			resp.CacheHealthy = cfg.Cache.Ping(pingCtx) == nil
			cancel()
		}

		if cfg.Watcher != nil {
			resp.Watcher = &WatcherStatusResponse{
				Paused:   cfg.Watcher.IsPaused(),
				Imported: cfg.Watcher.Imported(),
			}
			if resp.Watcher.Paused && resp.State == "idle" {
				resp.State = "paused"
			}
		}

		// Never block the status call on a probe; report the last result.
		if cfg.Doctor != nil {
			if caps := cfg.Doctor.Peek(); caps != nil && !caps.ProbedAt.IsZero() {
				resp.Pipelines = caps
				resp.LastProbeAt = caps.ProbedAt.Format(time.RFC3339)
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func listRunsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Runs == nil {
			WriteJSON(w, http.StatusOK, RunsResponse{Runs: []RunResponse{}})
			return
		}

		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = n
		}

		runs, err := cfg.Runs.ListRuns(r.Context(), r.URL.Query().Get("video_id"), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list runs", "INTERNAL_ERROR")
			return
		}

		resp := RunsResponse{Runs: make([]RunResponse, len(runs))}
		for i, run := range runs {
			resp.Runs[i] = RunToResponse(run)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getRunHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "run id required", "BAD_REQUEST")
			return
		}
		if cfg.Runs == nil {
			WriteError(w, http.StatusNotFound, "run not found", "NOT_FOUND")
			return
		}

		run, err := cfg.Runs.GetRun(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if run == nil {
			WriteError(w, http.StatusNotFound, "run not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, RunToResponse(run))
	}
}

// siblingHandler starts a step of the sibling pipeline and returns at once;
// the outcome is recorded on the returned run.
func siblingHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Runner == nil {
			WriteError(w, http.StatusServiceUnavailable, "sibling pipeline not configured", "UNAVAILABLE")
			return
		}

		var req SiblingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Step == "" {
			req.Step = "all"
		}
		if !pipelines.ValidStep(req.Step) {
			WriteError(w, http.StatusBadRequest, "step must be one of all, extract, upload, analyze", "BAD_REQUEST")
			return
		}
		if cfg.Doctor != nil {
			if caps := cfg.Doctor.Peek(); caps != nil && !caps.CanRunSibling {
				WriteError(w, http.StatusServiceUnavailable, "sibling pipeline is not installed", "UNAVAILABLE")
				return
			}
		}

		ctx := context.WithoutCancel(r.Context())
		run := cfg.Runs.Begin(ctx, catalog.RunKindSibling, "", req.Step)
		cfg.Runs.SetStage(ctx, run, req.Step)
		go runSibling(ctx, cfg.Runner, cfg.Runs, run, req.Step, cfg.Logger)

		WriteJSON(w, http.StatusAccepted, SiblingResponse{Status: "accepted", Step: req.Step, RunID: run.ID})
	}
}

func runSibling(ctx context.Context, runner pipelines.Runner, runs *catalog.Service, run *catalog.Run, step string, logger *slog.Logger) {
	logger = logging.WithRunID(logger, run.ID)
	logger.Info("sibling pipeline started", "step", step)

	res, err := runner.RunSibling(ctx, step)
	if err == nil && !res.IsSuccess() {
		err = errors.New("exit code " + strconv.Itoa(res.ExitCode) + ": " + res.StderrTail)
	}
	if err != nil {
		logger.Error("sibling pipeline failed", "step", step, "error", err)
		runs.Fail(ctx, run, err)
		return
	}
	logger.Info("sibling pipeline finished", "step", step, "duration_ms", res.Duration.Milliseconds())
	runs.Complete(ctx, run, false)
}

// writePipelineError maps an orchestrator error onto a status code.
func writePipelineError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch pipeline.KindOf(err) {
	case pipeline.KindInput:
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	case pipeline.KindNotFound:
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case pipeline.KindMissingPrerequisite:
		WriteError(w, http.StatusNotFound, err.Error(), "MISSING_PREREQUISITE")
	default:
		logger.Error("pipeline request failed", "error", err)
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}
