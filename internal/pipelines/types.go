// Package pipelines runs the external command-line tools the agent depends
// on (yt-dlp, ffmpeg and the sibling Python pipeline) as subprocesses.
package pipelines

import (
	"errors"
	"slices"
	"time"
)

// Capabilities reports which external tools are installed, as found by the
// doctor probe.
type Capabilities struct {
	YTDLP   DepInfo `json:"yt_dlp"`
	FFmpeg  DepInfo `json:"ffmpeg"`
	Python  DepInfo `json:"python"`
	Sibling DepInfo `json:"sibling_pipeline"`

	CanExtract       bool      `json:"can_extract"`
	CanDownloadMedia bool      `json:"can_download_media"`
	CanRunSibling    bool      `json:"can_run_sibling"`
	ProbedAt         time.Time `json:"probed_at"`
}

// DepInfo represents the availability status of a single dependency.
type DepInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RunResult is the structured outcome of executing a subprocess.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	OutputDir  string        `json:"output_dir,omitempty"`
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// DownloadOptions tunes a yt-dlp run.
type DownloadOptions struct {
	// MaxComments caps the top-level comments fetched. Zero skips comments.
	MaxComments int
	// Media also downloads the audio/video streams.
	Media bool
	// Language of the subtitles to fetch; default "en".
	Language string
}

// Steps accepted by the sibling pipeline.
var SiblingSteps = []string{"all", "extract", "upload", "analyze"}

// ErrUnknownStep is returned for a sibling step outside SiblingSteps.
var ErrUnknownStep = errors.New("pipelines: unknown sibling step")

// ValidStep reports whether step is one of SiblingSteps.
func ValidStep(step string) bool {
	return slices.Contains(SiblingSteps, step)
}
