package pipelines

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/veritube/veritube-agent/internal/logging"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
	maxStdoutBytes = 4 * 1024
)

// Runner executes the external tools as subprocesses.
type Runner interface {
	// RunDoctor probes yt-dlp, ffmpeg and the sibling Python module.
	RunDoctor(ctx context.Context) (*Capabilities, error)

	// RunDownload fetches metadata, English captions and comments for url
	// into outDir, naming every output after videoID.
	RunDownload(ctx context.Context, url, outDir, videoID string, opts DownloadOptions) (RunResult, error)

	// RunSibling executes `python -m <module> --<step>`.
	RunSibling(ctx context.Context, step string) (RunResult, error)
}

// Config holds the runner's configuration.
type Config struct {
	YTDLPPath       string // yt-dlp binary name or path
	FFmpegPath      string // default "ffmpeg"
	PythonPath      string // path to python binary; empty = auto-detect
	SiblingModule   string // e.g. "twelve.flow"
	SiblingDir      string // working directory of the sibling pipeline
	DoctorTimeout   time.Duration
	DownloadTimeout time.Duration
	SiblingTimeout  time.Duration
	Logger          *slog.Logger
	DebugPaths      bool // if true, log full file paths; otherwise sanitise
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig(logger *slog.Logger) Config {
	return Config{
		YTDLPPath:       "yt-dlp",
		FFmpegPath:      "ffmpeg",
		SiblingModule:   "twelve.flow",
		DoctorTimeout:   30 * time.Second,
		DownloadTimeout: 15 * time.Minute,
		SiblingTimeout:  time.Hour,
		Logger:          logger,
	}
}

// SubprocessRunner is the production implementation of Runner.
type SubprocessRunner struct {
	cfg    Config
	python string // resolved python path, empty when none was found
}

// NewRunner creates a SubprocessRunner. A missing python only disables the
// sibling pipeline; the doctor probe reports it.
func NewRunner(cfg Config) *SubprocessRunner {
	cfg.Logger = logging.OrDiscard(cfg.Logger)
	if cfg.YTDLPPath == "" {
		cfg.YTDLPPath = "yt-dlp"
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}

	python, err := resolvePython(cfg.PythonPath)
	if err != nil {
		cfg.Logger.Warn("python not found, sibling pipeline disabled", "error", err)
	}

	cfg.Logger.Info("subprocess runner initialised",
		"yt_dlp", cfg.YTDLPPath,
		"python", python,
		"sibling_module", cfg.SiblingModule,
	)

	return &SubprocessRunner{cfg: cfg, python: python}
}

// RunDoctor probes the installed tools. Missing tools are reported in the
// capabilities, not as an error.
func (r *SubprocessRunner) RunDoctor(ctx context.Context) (*Capabilities, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.DoctorTimeout)
	defer cancel()

	caps := &Capabilities{
		YTDLP:  r.probe(ctx, r.cfg.YTDLPPath, "--version"),
		FFmpeg: r.probe(ctx, r.cfg.FFmpegPath, "-version"),
	}

	if r.python == "" {
		caps.Python = DepInfo{Error: "no python binary found"}
		caps.Sibling = DepInfo{Error: "python unavailable"}
	} else {
		caps.Python = r.probe(ctx, r.python, "--version")
		if r.cfg.SiblingModule == "" {
			caps.Sibling = DepInfo{Error: "no sibling module configured"}
		} else {
			caps.Sibling = r.probe(ctx, r.python, "-c",
				"import importlib.util,sys; sys.exit(0 if importlib.util.find_spec(sys.argv[1]) else 1)",
				r.cfg.SiblingModule)
			caps.Sibling.Version = r.cfg.SiblingModule
		}
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, ctx.Err()
	}

	caps.CanExtract = caps.YTDLP.Available
	caps.CanDownloadMedia = caps.YTDLP.Available && caps.FFmpeg.Available
	caps.CanRunSibling = caps.Python.Available && caps.Sibling.Available
	caps.ProbedAt = time.Now()

	r.cfg.Logger.Info("doctor probe complete",
		"extract", caps.CanExtract,
		"media", caps.CanDownloadMedia,
		"sibling", caps.CanRunSibling,
	)

	return caps, nil
}

func (r *SubprocessRunner) probe(ctx context.Context, bin string, args ...string) DepInfo {
	path, err := exec.LookPath(bin)
	if err != nil {
		return DepInfo{Error: err.Error()}
	}

	var stdout bytes.Buffer
	result := r.exec(ctx, "", &limitedWriter{w: &stdout, limit: maxStdoutBytes}, path, args...)
	if !result.IsSuccess() {
		return DepInfo{Path: path, Error: truncate(strings.TrimSpace(result.StderrTail), 256)}
	}
	return DepInfo{Available: true, Path: path, Version: firstLine(stdout.String() + result.StderrTail)}
}

// RunDownload runs yt-dlp for one video.
func (r *SubprocessRunner) RunDownload(ctx context.Context, url, outDir, videoID string, opts DownloadOptions) (RunResult, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return RunResult{ExitCode: -1}, fmt.Errorf("cannot create output dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.DownloadTimeout)
	defer cancel()

	result := r.exec(ctx, "", io.Discard, r.cfg.YTDLPPath, downloadArgs(url, outDir, videoID, opts)...)
	result.OutputDir = outDir
	if !result.IsSuccess() {
		return result, fmt.Errorf("yt-dlp exited %d: %s", result.ExitCode, truncate(result.StderrTail, 512))
	}
	return result, nil
}

func downloadArgs(url, outDir, videoID string, opts DownloadOptions) []string {
	lang := opts.Language
	if lang == "" {
		lang = "en"
	}

	args := []string{
		"--no-progress",
		"--no-playlist",
		"--write-info-json",
		"--write-subs",
		"--write-auto-subs",
		"--sub-langs", lang,
		"--sub-format", "vtt",
		"-P", outDir,
		"-o", videoID + ".%(ext)s",
	}
	if opts.MaxComments > 0 {
		args = append(args,
			"--write-comments",
			"--extractor-args", "youtube:max_comments="+strconv.Itoa(opts.MaxComments)+",all,all,all",
		)
	}
	if !opts.Media {
		args = append(args, "--skip-download")
	}
	return append(args, "--", url)
}

// RunSibling runs one step of the sibling multimodal pipeline.
func (r *SubprocessRunner) RunSibling(ctx context.Context, step string) (RunResult, error) {
	if !ValidStep(step) {
		return RunResult{ExitCode: -1}, fmt.Errorf("%w: %q", ErrUnknownStep, step)
	}
	if r.python == "" {
		return RunResult{ExitCode: -1}, errors.New("sibling pipeline: no python binary found")
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.SiblingTimeout)
	defer cancel()

	result := r.exec(ctx, r.cfg.SiblingDir, io.Discard, r.python, "-m", r.cfg.SiblingModule, "--"+step)
	if !result.IsSuccess() {
		return result, fmt.Errorf("sibling step %s exited %d", step, result.ExitCode)
	}
	return result, nil
}

// exec is the core subprocess execution helper.
func (r *SubprocessRunner) exec(ctx context.Context, dir string, stdout io.Writer, bin string, args ...string) RunResult {
	start := time.Now()

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir

	// Capture stderr with bounded buffer
	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	cmd.Stdout = stdout

	r.cfg.Logger.Debug("executing command",
		"bin", filepath.Base(bin),
		"args", r.safeArgs(args),
	)

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	stderrTail := stderrBuf.String()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
		if stderrTail == "" {
			stderrTail = err.Error()
		}
	}

	if exitCode != 0 {
		r.cfg.Logger.Warn("command failed",
			"bin", filepath.Base(bin),
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrTail, 512),
		)
	} else {
		r.cfg.Logger.Debug("command succeeded",
			"bin", filepath.Base(bin),
			"duration_ms", elapsed.Milliseconds(),
		)
	}

	return RunResult{
		ExitCode:   exitCode,
		StderrTail: stderrTail,
		Duration:   elapsed,
	}
}

func (r *SubprocessRunner) safeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if filepath.IsAbs(a) {
			a = r.safePath(a)
		}
		out[i] = a
	}
	return out
}

func (r *SubprocessRunner) safePath(path string) string {
	if r.cfg.DebugPaths {
		return path
	}
	return logging.SanitizePath(path)
}

// resolvePython finds a usable python binary.
func resolvePython(preferred string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured python %q not found", preferred)
	}
	for _, name := range []string{"python3", "python"} {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no python binary found on PATH (tried python3, python)")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
