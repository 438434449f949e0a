package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/veritube/veritube-agent/internal/pipeline"
	"github.com/veritube/veritube-agent/internal/video"
)

func checkStatusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url := strings.TrimSpace(r.URL.Query().Get("url"))
		if url == "" {
			WriteError(w, http.StatusBadRequest, "No URL provided", "BAD_REQUEST")
			return
		}

		st, err := cfg.Pipeline.CheckStatus(r.Context(), url)
		if err != nil {
			writePipelineError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, CheckStatusResponse{
			VideoID:    st.VideoID,
			Processed:  st.Processed,
			FolderPath: st.FolderPath,
		})
	}
}

func extractVideoInfoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req URLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if strings.TrimSpace(req.URL) == "" {
			WriteError(w, http.StatusBadRequest, "No URL provided", "BAD_REQUEST")
			return
		}

		res, err := cfg.Pipeline.Process(r.Context(), strings.TrimSpace(req.URL))
		if err != nil {
			writePipelineError(w, cfg.Logger, err)
			return
		}

		msg := "Data extracted successfully"
		if res.Cached {
			msg = "Video already processed. Loading from cache."
		}
		WriteJSON(w, http.StatusOK, ExtractResponse{
			Status:        "success",
			VideoID:       res.VideoID,
			Message:       msg,
			State:         string(res.State),
			TotalSegments: res.TotalSegments,
			Warnings:      res.Warnings,
		})
	}
}

// decodeVideoID reads {"video_id": ...} and accepts a full video URL too.
func decodeVideoID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req VideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return "", false
	}
	id := video.ParseID(strings.TrimSpace(req.VideoID))
	if id == "" {
		WriteError(w, http.StatusBadRequest, "video_id is required", "BAD_REQUEST")
		return "", false
	}
	if !video.ValidID(id) {
		WriteError(w, http.StatusBadRequest, "invalid video_id", "BAD_REQUEST")
		return "", false
	}
	return id, true
}

func analyzeCommentsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := decodeVideoID(w, r)
		if !ok {
			return
		}

		report, err := cfg.Pipeline.AnalyzeComments(r.Context(), id)
		if err != nil {
			writePipelineError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, report)
	}
}

// factCheckHandler always answers with the report shape; unknown videos and
// missing transcripts come back as 404 with the status set accordingly.
func factCheckHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := decodeVideoID(w, r)
		if !ok {
			return
		}

		report, err := cfg.Pipeline.FactCheck(r.Context(), id)
		if err != nil {
			switch pipeline.KindOf(err) {
			case pipeline.KindNotFound, pipeline.KindMissingPrerequisite:
				WriteJSON(w, http.StatusNotFound, report)
			default:
				writePipelineError(w, cfg.Logger, err)
			}
			return
		}
		WriteJSON(w, http.StatusOK, report)
	}
}

func purgeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := decodeVideoID(w, r)
		if !ok {
			return
		}

		n, err := cfg.Pipeline.Purge(r.Context(), id)
		if err != nil {
			writePipelineError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, PurgeResponse{Status: "purged", VideoID: id, KeysDeleted: n})
	}
}

func transcriptHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !video.ValidID(id) {
			WriteError(w, http.StatusBadRequest, "invalid video id", "BAD_REQUEST")
			return
		}

		t, err := cfg.Pipeline.Transcript(r.Context(), id)
		if err != nil {
			writePipelineError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, t)
	}
}
