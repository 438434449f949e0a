package api

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/veritube/veritube-agent/internal/export"
	"github.com/veritube/veritube-agent/internal/video"
)

// segmentsEDLHandler serves the segments of a video as an EDL download.
func segmentsEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !video.ValidID(id) {
			WriteError(w, http.StatusBadRequest, "invalid video id", "BAD_REQUEST")
			return
		}

		frameRate := export.DefaultFrameRate
		if v := r.URL.Query().Get("fps"); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f <= 0 {
				WriteError(w, http.StatusBadRequest, "fps must be a positive number", "BAD_REQUEST")
				return
			}
			frameRate = f
		}

		t, err := cfg.Pipeline.Transcript(r.Context(), id)
		if err != nil {
			writePipelineError(w, cfg.Logger, err)
			return
		}

		media := export.SanitizeName(r.URL.Query().Get("media"), 160)
		edl := export.GenerateEDL(export.FromTranscript(t, media), id, frameRate)

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.edl"`)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(edl))
	}
}

// exportEDLHandler writes selected segments of a video to an EDL file in a
// local directory.
func exportEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !video.ValidID(id) {
			WriteError(w, http.StatusBadRequest, "invalid video id", "BAD_REQUEST")
			return
		}

		var req export.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Format == "" {
			req.Format = "edl"
		}
		if strings.ToLower(req.Format) != "edl" {
			WriteError(w, http.StatusBadRequest, "format must be edl", "BAD_REQUEST")
			return
		}
		if err := export.ValidateOutputDir(req.OutputDir); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		projectName := export.SanitizeName(req.ProjectName, 120)
		if projectName == "" {
			projectName = id + "_segments"
		}
		frameRate := req.FrameRate
		if frameRate <= 0 {
			frameRate = export.DefaultFrameRate
		}

		t, err := cfg.Pipeline.Transcript(r.Context(), id)
		if err != nil {
			writePipelineError(w, cfg.Logger, err)
			return
		}

		events, missing := export.Select(export.FromTranscript(t, export.SanitizeName(req.MediaName, 160)), req.SegmentIDs)
		if len(events) == 0 {
			WriteError(w, http.StatusUnprocessableEntity, "no segments matched the request", "UNRESOLVABLE_SEGMENTS")
			return
		}

		outputPath := filepath.Join(req.OutputDir, projectName+".edl")
		if err := os.WriteFile(outputPath, []byte(export.GenerateEDL(events, projectName, frameRate)), 0o644); err != nil {
			cfg.Logger.Error("failed to write export file", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to write export file", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, export.Response{
			Status:          "ok",
			Format:          "edl",
			OutputPath:      outputPath,
			EventCount:      len(events),
			MissingSegments: missing,
		})
	}
}
