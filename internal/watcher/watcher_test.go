package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/veritube/veritube-agent/internal/pipeline"
)

type recordingImporter struct {
	mu    sync.Mutex
	calls []string
	done  chan string
}

func newRecordingImporter() *recordingImporter {
	return &recordingImporter{done: make(chan string, 10)}
}

func (r *recordingImporter) ImportCaptions(ctx context.Context, videoID, path string) (*pipeline.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, videoID)
	r.mu.Unlock()
	r.done <- videoID
	return &pipeline.Result{VideoID: videoID, State: pipeline.StateSegmented}, nil
}

func startWatcher(t *testing.T, dir string, imp Importer) (*Watcher, context.CancelFunc) {
	t.Helper()
	w, err := New(dir, imp, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	w.SetSettle(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Start(ctx)
	t.Cleanup(func() {
		cancel()
		w.Stop()
	})
	return w, cancel
}

func waitFor(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for import")
		return ""
	}
}

func TestWatcher_ImportsNewCaptionFile(t *testing.T) {
	dir := t.TempDir()
	imp := newRecordingImporter()
	w, _ := startWatcher(t, dir, imp)

	// Give the watch loop a moment to start.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "abc123.en.vtt"), []byte("WEBVTT\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if id := waitFor(t, imp.done); id != "abc123" {
		t.Errorf("imported id = %q, want abc123", id)
	}
	if w.Imported() != 1 {
		t.Errorf("Imported() = %d, want 1", w.Imported())
	}
}

func TestWatcher_ImportsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "old111.vtt"), []byte("WEBVTT\n"), 0644); err != nil {
		t.Fatal(err)
	}

	imp := newRecordingImporter()
	startWatcher(t, dir, imp)

	if id := waitFor(t, imp.done); id != "old111" {
		t.Errorf("imported id = %q, want old111", id)
	}
}

func TestWatcher_PauseSkipsFiles(t *testing.T) {
	dir := t.TempDir()
	imp := newRecordingImporter()
	w, _ := startWatcher(t, dir, imp)

	w.Pause()
	if !w.IsPaused() {
		t.Fatal("IsPaused() = false after Pause")
	}
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "skip22.vtt"), []byte("WEBVTT\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case id := <-imp.done:
		t.Fatalf("paused watcher imported %q", id)
	case <-time.After(300 * time.Millisecond):
	}

	w.Resume()
	if w.IsPaused() {
		t.Error("IsPaused() = true after Resume")
	}
}

func TestVideoIDFromFile(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/inbox/abc123.en.vtt", "abc123"},
		{"abc123.vtt", "abc123"},
		{"dQw4w9WgXcQ.en-US.vtt", "dQw4w9WgXcQ"},
		{"bad name.vtt", ""},
		{".vtt", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := VideoIDFromFile(tt.path); got != tt.want {
				t.Errorf("VideoIDFromFile(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
