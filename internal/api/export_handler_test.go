package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSegmentsEDL_Download(t *testing.T) {
	router := NewRouter(testConfig(&fakePipeline{transcript: sampleTranscript()}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/videos/abc123/segments.edl?media=interview.mp4", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Disposition"); got != `attachment; filename="abc123.edl"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	body := rr.Body.String()
	for _, want := range []string{"TITLE: abc123", "* FROM CLIP NAME: Intro", "* FROM CLIP NAME: Claims", "* SOURCE FILE: interview.mp4"} {
		if !strings.Contains(body, want) {
			t.Errorf("edl missing %q:\n%s", want, body)
		}
	}
}

func TestSegmentsEDL_BadFrameRate(t *testing.T) {
	router := NewRouter(testConfig(&fakePipeline{transcript: sampleTranscript()}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/videos/abc123/segments.edl?fps=fast", nil))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestSegmentsEDL_NotProcessed(t *testing.T) {
	router := NewRouter(testConfig(&fakePipeline{}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/videos/abc123/segments.edl", nil))

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestExportEDL_WritesFile(t *testing.T) {
	dir := t.TempDir()
	router := NewRouter(testConfig(&fakePipeline{transcript: sampleTranscript()}))

	body := `{"project_name":"My Cut","output_dir":"` + dir + `","segment_ids":[2,9]}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/videos/abc123/export", strings.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	resp := decodeJSONBody(t, rr)
	if resp["event_count"] != float64(1) {
		t.Errorf("event_count = %v, want 1", resp["event_count"])
	}
	missing, _ := resp["missing_segments"].([]any)
	if len(missing) != 1 || missing[0] != float64(9) {
		t.Errorf("missing_segments = %v, want [9]", resp["missing_segments"])
	}

	data, err := os.ReadFile(filepath.Join(dir, "My Cut.edl"))
	if err != nil {
		t.Fatalf("export file not written: %v", err)
	}
	if !strings.Contains(string(data), "* FROM CLIP NAME: Claims") || strings.Contains(string(data), "Intro") {
		t.Errorf("unexpected export contents:\n%s", data)
	}
}

func TestExportEDL_InvalidOutputDir(t *testing.T) {
	router := NewRouter(testConfig(&fakePipeline{transcript: sampleTranscript()}))

	for _, dir := range []string{"", "/tmp/../etc", filepath.Join(t.TempDir(), "missing")} {
		body := `{"output_dir":"` + dir + `"}`
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/videos/abc123/export", strings.NewReader(body)))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("output_dir %q: status = %d, want 400", dir, rr.Code)
		}
	}
}

func TestExportEDL_NoMatchingSegments(t *testing.T) {
	router := NewRouter(testConfig(&fakePipeline{transcript: sampleTranscript()}))

	body := `{"output_dir":"` + t.TempDir() + `","segment_ids":[42]}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/videos/abc123/export", strings.NewReader(body)))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rr.Code)
	}
}

func TestExportEDL_UnsupportedFormat(t *testing.T) {
	router := NewRouter(testConfig(&fakePipeline{transcript: sampleTranscript()}))

	body := `{"format":"fcpxml","output_dir":"` + t.TempDir() + `"}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/videos/abc123/export", strings.NewReader(body)))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}
