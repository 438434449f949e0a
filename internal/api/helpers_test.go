package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/veritube/veritube-agent/internal/cache"
	"github.com/veritube/veritube-agent/internal/catalog"
	"github.com/veritube/veritube-agent/internal/comments"
	"github.com/veritube/veritube-agent/internal/db"
	"github.com/veritube/veritube-agent/internal/factcheck"
	"github.com/veritube/veritube-agent/internal/pipeline"
	"github.com/veritube/veritube-agent/internal/pipelines"
	"github.com/veritube/veritube-agent/internal/summarize"
)

// fakePipeline answers from fixed values; a nil field yields a not-found
// error of the matching kind.
type fakePipeline struct {
	result     *pipeline.Result
	processErr error
	status     *pipeline.Status
	comments   *comments.Report
	factCheck  *factcheck.Report
	factErr    error
	transcript *summarize.Transcript
	purged     int

	processedURL string
}

func (f *fakePipeline) Process(ctx context.Context, url string) (*pipeline.Result, error) {
	f.processedURL = url
	return f.result, f.processErr
}

func (f *fakePipeline) ImportCaptions(ctx context.Context, videoID, path string) (*pipeline.Result, error) {
	return f.result, f.processErr
}

func (f *fakePipeline) AnalyzeComments(ctx context.Context, videoID string) (*comments.Report, error) {
	if f.comments == nil {
		return nil, &pipeline.StageError{Stage: pipeline.StageComments, Kind: pipeline.KindMissingPrerequisite, Err: errors.New("video metadata not found")}
	}
	return f.comments, nil
}

func (f *fakePipeline) FactCheck(ctx context.Context, videoID string) (*factcheck.Report, error) {
	return f.factCheck, f.factErr
}

func (f *fakePipeline) Purge(ctx context.Context, videoID string) (int, error) {
	return f.purged, nil
}

func (f *fakePipeline) Transcript(ctx context.Context, videoID string) (*summarize.Transcript, error) {
	if f.transcript == nil {
		return nil, &pipeline.StageError{Stage: pipeline.StageSegment, Kind: pipeline.KindNotFound, Err: errors.New("no segmented transcript")}
	}
	return f.transcript, nil
}

func (f *fakePipeline) CheckStatus(ctx context.Context, url string) (*pipeline.Status, error) {
	if f.status == nil {
		return nil, &pipeline.StageError{Stage: pipeline.StageInput, Kind: pipeline.KindInput, Err: pipeline.ErrInvalidURL}
	}
	return f.status, nil
}

type fakeRunner struct {
	caps    *pipelines.Capabilities
	sibling chan string
}

func (f *fakeRunner) RunDoctor(ctx context.Context) (*pipelines.Capabilities, error) {
	if f.caps == nil {
		return nil, errors.New("probe failed")
	}
	return f.caps, nil
}

func (f *fakeRunner) RunDownload(ctx context.Context, url, outDir, videoID string, opts pipelines.DownloadOptions) (pipelines.RunResult, error) {
	return pipelines.RunResult{}, nil
}

func (f *fakeRunner) RunSibling(ctx context.Context, step string) (pipelines.RunResult, error) {
	if f.sibling != nil {
		f.sibling <- step
	}
	return pipelines.RunResult{ExitCode: 0, Duration: time.Millisecond}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(p pipeline.Pipeline) ServerConfig {
	return ServerConfig{
		Pipeline:     p,
		Cache:        cache.NewMemoryStore(),
		CacheBackend: "memory",
		Logger:       testLogger(),
		StartTime:    time.Now(),
		Version:      "test",
	}
}

func setupRuns(t *testing.T) *catalog.Service {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return catalog.NewService(catalog.NewRepository(database.Conn()), nil)
}

func sampleTranscript() *summarize.Transcript {
	return &summarize.Transcript{
		VideoID:       "abc123",
		WindowSeconds: 300,
		TotalSegments: 2,
		Segments: []summarize.SegmentResult{
			{
				SegmentID:  1,
				Timestamps: summarize.Timestamps{StartSec: 0, EndSec: 300, Display: "0:00:00 - 0:05:00"},
				Analysis:   summarize.Analysis{Topic: "Intro", Summary: "Opening.", KeyPoints: []string{}, Sentiment: summarize.Neutral, EntitiesMentioned: []string{}},
			},
			{
				SegmentID:  2,
				Timestamps: summarize.Timestamps{StartSec: 300, EndSec: 600, Display: "0:05:00 - 0:10:00"},
				Analysis:   summarize.Analysis{Topic: "Claims", Summary: "Main part.", KeyPoints: []string{}, Sentiment: summarize.Positive, EntitiesMentioned: []string{}},
			},
		},
	}
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body %q: %v", rr.Body.String(), err)
	}
	return body
}
