package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/veritube/veritube-agent/internal/comments"
	"github.com/veritube/veritube-agent/internal/factcheck"
	"github.com/veritube/veritube-agent/internal/pipeline"
)

func TestCheckStatus_MissingURL(t *testing.T) {
	router := NewRouter(testConfig(&fakePipeline{}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/check_status", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if got := decodeJSONBody(t, rr)["error"]; got != "No URL provided" {
		t.Errorf("error = %v, want %q", got, "No URL provided")
	}
}

func TestCheckStatus_InvalidURL(t *testing.T) {
	router := NewRouter(testConfig(&fakePipeline{}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/check_status?url=nothing", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestCheckStatus_Processed(t *testing.T) {
	folder := "/data/abc123"
	p := &fakePipeline{status: &pipeline.Status{VideoID: "abc123", Processed: true, FolderPath: &folder}}
	router := NewRouter(testConfig(p))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/check_status?url=https://youtu.be/abc123", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	if body["video_id"] != "abc123" || body["processed"] != true || body["folder_path"] != folder {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestCheckStatus_UnprocessedHasNullFolder(t *testing.T) {
	p := &fakePipeline{status: &pipeline.Status{VideoID: "abc123"}}
	router := NewRouter(testConfig(p))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/check_status?url=abc123", nil))

	if !strings.Contains(rr.Body.String(), `"folder_path":null`) {
		t.Errorf("body = %s, want folder_path null", rr.Body.String())
	}
}

func TestExtractVideoInfo_Messages(t *testing.T) {
	tests := []struct {
		name    string
		cached  bool
		message string
	}{
		{name: "fresh", cached: false, message: "Data extracted successfully"},
		{name: "cached", cached: true, message: "Video already processed. Loading from cache."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakePipeline{result: &pipeline.Result{
				VideoID:       "abc123",
				Cached:        tc.cached,
				State:         pipeline.StateSegmented,
				TotalSegments: 2,
			}}
			router := NewRouter(testConfig(p))

			req := httptest.NewRequest(http.MethodPost, "/extract_video_info", strings.NewReader(`{"url":"  https://youtu.be/abc123 "}`))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (body %s)", rr.Code, rr.Body.String())
			}
			body := decodeJSONBody(t, rr)
			if body["message"] != tc.message {
				t.Errorf("message = %v, want %q", body["message"], tc.message)
			}
			if body["status"] != "success" || body["video_id"] != "abc123" {
				t.Errorf("unexpected body: %v", body)
			}
			if p.processedURL != "https://youtu.be/abc123" {
				t.Errorf("processed url = %q, want trimmed url", p.processedURL)
			}
		})
	}
}

func TestExtractVideoInfo_BadRequests(t *testing.T) {
	router := NewRouter(testConfig(&fakePipeline{}))

	for _, body := range []string{`not json`, `{}`, `{"url":"   "}`} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/extract_video_info", strings.NewReader(body)))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rr.Code)
		}
	}
}

func TestExtractVideoInfo_FatalError(t *testing.T) {
	p := &fakePipeline{processErr: &pipeline.StageError{
		Stage: pipeline.StageExtract,
		Kind:  pipeline.KindFatal,
		Err:   errors.New("yt-dlp exited with status 1"),
	}}
	router := NewRouter(testConfig(p))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/extract_video_info", strings.NewReader(`{"url":"abc123"}`)))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if got := decodeJSONBody(t, rr)["code"]; got != "INTERNAL_ERROR" {
		t.Errorf("code = %v, want INTERNAL_ERROR", got)
	}
}

func TestAnalyzeComments(t *testing.T) {
	t.Run("missing metadata", func(t *testing.T) {
		router := NewRouter(testConfig(&fakePipeline{}))

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/analyze_comments", strings.NewReader(`{"video_id":"abc123"}`)))

		if rr.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rr.Code)
		}
		if got := decodeJSONBody(t, rr)["code"]; got != "MISSING_PREREQUISITE" {
			t.Errorf("code = %v, want MISSING_PREREQUISITE", got)
		}
	})

	t.Run("report", func(t *testing.T) {
		p := &fakePipeline{comments: &comments.Report{
			VideoID:  "abc123",
			Status:   "processed",
			Analysis: comments.EmptyAnalysis("No comments available to analyze."),
		}}
		router := NewRouter(testConfig(p))

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/analyze_comments", strings.NewReader(`{"video_id":"https://www.youtube.com/watch?v=abc123"}`)))

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
		if got := decodeJSONBody(t, rr)["video_id"]; got != "abc123" {
			t.Errorf("video_id = %v, want abc123", got)
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		router := NewRouter(testConfig(&fakePipeline{}))

		for _, body := range []string{`{}`, `{"video_id":"../etc"}`} {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/analyze_comments", strings.NewReader(body)))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("body %q: status = %d, want 400", body, rr.Code)
			}
		}
	})
}

func TestFactCheck_NotFoundKeepsReportShape(t *testing.T) {
	tests := []struct {
		name   string
		status string
		kind   pipeline.Kind
	}{
		{name: "unknown video", status: factcheck.StatusNotFound, kind: pipeline.KindNotFound},
		{name: "no transcript", status: factcheck.StatusMissingPrerequisite, kind: pipeline.KindMissingPrerequisite},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakePipeline{
				factCheck: factcheck.Empty("abc123", tc.status, "nothing to check"),
				factErr:   &pipeline.StageError{Stage: pipeline.StageFactCheck, Kind: tc.kind, Err: errors.New("nothing to check")},
			}
			router := NewRouter(testConfig(p))

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/fact_check", strings.NewReader(`{"video_id":"abc123"}`)))

			if rr.Code != http.StatusNotFound {
				t.Fatalf("status = %d, want 404", rr.Code)
			}
			body := decodeJSONBody(t, rr)
			if body["status"] != tc.status {
				t.Errorf("status field = %v, want %q", body["status"], tc.status)
			}
			if checks, ok := body["fact_checks"].([]any); !ok || len(checks) != 0 {
				t.Errorf("fact_checks = %v, want empty list", body["fact_checks"])
			}
		})
	}
}

func TestFactCheck_Processed(t *testing.T) {
	report := factcheck.Empty("abc123", factcheck.StatusProcessed, "")
	report.FactChecks = []factcheck.Check{{Claim: "The sky is green", Verdict: "false", Explanation: "It is blue."}}
	router := NewRouter(testConfig(&fakePipeline{factCheck: report}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/fact_check", strings.NewReader(`{"video_id":"abc123"}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	if checks, _ := body["fact_checks"].([]any); len(checks) != 1 {
		t.Errorf("fact_checks = %v, want one entry", body["fact_checks"])
	}
}

func TestPurge(t *testing.T) {
	router := NewRouter(testConfig(&fakePipeline{purged: 4}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/purge", strings.NewReader(`{"video_id":"abc123"}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	if body["status"] != "purged" || body["keys_deleted"] != float64(4) {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestTranscript(t *testing.T) {
	t.Run("not processed", func(t *testing.T) {
		router := NewRouter(testConfig(&fakePipeline{}))

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/videos/abc123/transcript", nil))

		if rr.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rr.Code)
		}
	})

	t.Run("segments", func(t *testing.T) {
		router := NewRouter(testConfig(&fakePipeline{transcript: sampleTranscript()}))

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/videos/abc123/transcript", nil))

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
		body := decodeJSONBody(t, rr)
		if segs, _ := body["segments"].([]any); len(segs) != 2 {
			t.Errorf("segments = %v, want 2", body["segments"])
		}
	})
}
