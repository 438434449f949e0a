package api

import (
	"encoding/json"
	"time"

	"github.com/veritube/veritube-agent/internal/catalog"
	"github.com/veritube/veritube-agent/internal/pipelines"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State         string                  `json:"state"`
	LastError     string                  `json:"last_error,omitempty"`
	RunsTotal     int                     `json:"runs_total"`
	RunsActive    int                     `json:"runs_active"`
	CacheBackend  string                  `json:"cache_backend,omitempty"`
	CacheHealthy  bool                    `json:"cache_healthy"`
	AIEnabled     bool                    `json:"ai_enabled"`
	Watcher       *WatcherStatusResponse  `json:"watcher,omitempty"`
	Pipelines     *pipelines.Capabilities `json:"pipelines,omitempty"`
	LastProbeAt   string                  `json:"last_probe_at,omitempty"`
	WindowSeconds int                     `json:"window_seconds"`
}

type WatcherStatusResponse struct {
	Paused   bool  `json:"paused"`
	Imported int64 `json:"imported"`
}

type URLRequest struct {
	URL string `json:"url"`
}

type VideoRequest struct {
	VideoID string `json:"video_id"`
}

type CheckStatusResponse struct {
	VideoID    string  `json:"video_id"`
	Processed  bool    `json:"processed"`
	FolderPath *string `json:"folder_path"`
}

type ExtractResponse struct {
	Status        string   `json:"status"`
	VideoID       string   `json:"video_id"`
	Message       string   `json:"message"`
	State         string   `json:"state,omitempty"`
	TotalSegments int      `json:"total_segments"`
	Warnings      []string `json:"warnings,omitempty"`
}

type PurgeResponse struct {
	Status      string `json:"status"`
	VideoID     string `json:"video_id"`
	KeysDeleted int    `json:"keys_deleted"`
}

type CacheValueResponse struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type CacheSetResponse struct {
	Status string `json:"status"`
	Key    string `json:"key"`
	Expire int    `json:"expire,omitempty"`
}

type CacheDeleteResponse struct {
	Key     string `json:"key"`
	Deleted bool   `json:"deleted"`
}

type SiblingRequest struct {
	Step string `json:"step"`
}

type SiblingResponse struct {
	Status string `json:"status"`
	Step   string `json:"step"`
	RunID  string `json:"run_id"`
}

type RunResponse struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	VideoID   string `json:"video_id"`
	Source    string `json:"source,omitempty"`
	Status    string `json:"status"`
	Stage     string `json:"stage,omitempty"`
	Cached    bool   `json:"cached"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type RunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func RunToResponse(r *catalog.Run) RunResponse {
	return RunResponse{
		ID:        r.ID,
		Kind:      r.Kind,
		VideoID:   r.VideoID,
		Source:    r.Source,
		Status:    r.Status,
		Stage:     r.Stage,
		Cached:    r.Cached,
		Error:     r.Error,
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
		UpdatedAt: r.UpdatedAt.Format(time.RFC3339),
	}
}
