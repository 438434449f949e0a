package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/veritube/veritube-agent/internal/ai"
	"github.com/veritube/veritube-agent/internal/api"
	"github.com/veritube/veritube-agent/internal/artifacts"
	"github.com/veritube/veritube-agent/internal/cache"
	"github.com/veritube/veritube-agent/internal/catalog"
	"github.com/veritube/veritube-agent/internal/comments"
	"github.com/veritube/veritube-agent/internal/config"
	"github.com/veritube/veritube-agent/internal/db"
	"github.com/veritube/veritube-agent/internal/extract"
	"github.com/veritube/veritube-agent/internal/factcheck"
	"github.com/veritube/veritube-agent/internal/logging"
	"github.com/veritube/veritube-agent/internal/metrics"
	"github.com/veritube/veritube-agent/internal/pipeline"
	"github.com/veritube/veritube-agent/internal/pipelines"
	"github.com/veritube/veritube-agent/internal/summarize"
	"github.com/veritube/veritube-agent/internal/ui"
	"github.com/veritube/veritube-agent/internal/watcher"
)

var Version = "0.1.0"

const sweepInterval = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("ignoring unreadable .env: %v", err)
	}

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	for _, dir := range []string{cfg.DataDir(), cfg.DownloadDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting veritube agent", "version", Version, "data_dir", logging.SanitizePath(cfg.DataDir()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	m := metrics.New()

	backend, err := cache.Open(ctx, cache.Options{
		Backend:     cfg.CacheBackend(),
		SQLite:      database.Conn(),
		RedisURL:    cfg.RedisURL(),
		PostgresDSN: cfg.PostgresDSN(),
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open %s cache: %w", cfg.CacheBackend(), err)
	}
	defer backend.Close()
	store := cache.NewInstrumented(backend, m)
	go sweepLoop(ctx, store, logger)

	artifactStore, err := artifacts.NewStore(cfg.DownloadDir())
	if err != nil {
		return fmt.Errorf("failed to open artifact store: %w", err)
	}

	aiClient, err := ai.New(ctx, ai.Config{
		Provider:          cfg.AIProvider(),
		GeminiAPIKeys:     cfg.GeminiAPIKeys(),
		GeminiModel:       cfg.GeminiModel(),
		OpenAIAPIKey:      cfg.OpenAIAPIKey(),
		OpenAIBaseURL:     cfg.OpenAIBaseURL(),
		OpenAIModel:       cfg.OpenAIModel(),
		RequestsPerMinute: cfg.AIRequestsPerMinute(),
		Timeout:           cfg.TimeoutAI(),
		Metrics:           m,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("failed to configure ai provider: %w", err)
	}

	pipeCfg := pipelines.DefaultConfig(logger)
	pipeCfg.YTDLPPath = cfg.YTDLPPath()
	pipeCfg.PythonPath = cfg.SiblingPython()
	pipeCfg.SiblingModule = cfg.SiblingModule()
	pipeCfg.DoctorTimeout = cfg.TimeoutDoctor()
	pipeCfg.DownloadTimeout = cfg.TimeoutDownload()
	pipeCfg.SiblingTimeout = cfg.TimeoutSibling()

	runner := pipelines.NewRunner(pipeCfg)
	doctor := pipelines.NewCachedDoctor(runner, 5*time.Minute, logger)

	probeCtx, probeCancel := context.WithTimeout(ctx, pipeCfg.DoctorTimeout)
	if caps, err := doctor.Refresh(probeCtx); err != nil {
		logger.Warn("initial doctor probe failed", "error", err)
	} else {
		logger.Info("tool capabilities detected",
			"yt_dlp", caps.YTDLP.Available,
			"ffmpeg", caps.FFmpeg.Available,
			"sibling", caps.CanRunSibling,
		)
		if !caps.CanExtract {
			logger.Warn("yt-dlp not found, extraction requests will fail")
		}
	}
	probeCancel()

	runs := catalog.NewService(catalog.NewRepository(database.Conn()), logger)

	orchestrator := pipeline.New(pipeline.Config{
		Cache:     store,
		Artifacts: artifactStore,
		Extractor: extract.NewYTDLPExtractor(runner, artifactStore, pipelines.DownloadOptions{
			MaxComments: cfg.MaxComments(),
			Media:       cfg.DownloadMedia(),
		}, logger),
		Builder:            summarize.NewBuilder(summarize.NewAISummarizer(aiClient), m, logger),
		Comments:           comments.NewAnalyzer(aiClient, logger),
		FactChecker:        factcheck.NewChecker(aiClient, logger),
		Runs:               runs,
		Metrics:            m,
		Logger:             logger,
		WindowSeconds:      cfg.WindowSeconds(),
		CacheTTL:           cfg.CacheTTL(),
		CollapseDuplicates: cfg.CollapseDuplicates(),
	})

	var inbox *watcher.Watcher
	if cfg.WatchInbox() {
		if err := os.MkdirAll(cfg.InboxDir(), 0755); err != nil {
			return fmt.Errorf("failed to create inbox dir: %w", err)
		}
		inbox, err = watcher.New(cfg.InboxDir(), orchestrator, logger)
		if err != nil {
			return fmt.Errorf("failed to watch inbox: %w", err)
		}
		defer inbox.Stop()
		go func() {
			if err := inbox.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("inbox watcher stopped", "error", err)
			}
		}()
	}

	serverCfg := api.ServerConfig{
		Host:          cfg.Host(),
		Port:          cfg.Port(),
		Version:       Version,
		Pipeline:      orchestrator,
		Cache:         store,
		CacheBackend:  cfg.CacheBackend(),
		Runs:          runs,
		Doctor:        doctor,
		Runner:        runner,
		Metrics:       m,
		Tokens:        tokenSource(runs, cfg.APIToken()),
		AIEnabled:     ai.Enabled(aiClient),
		WindowSeconds: cfg.WindowSeconds(),
		Logger:        logger,
		StartTime:     startTime,
	}
	if inbox != nil {
		serverCfg.Watcher = inbox
	}
	apiServer := api.NewServer(serverCfg)
	apiURL := "http://" + net.JoinHostPort(cfg.Host(), strconv.Itoa(cfg.Port()))

	fmt.Println()
	fmt.Println("VERITUBE AGENT v" + Version)
	fmt.Println("  API URL:    " + apiURL)
	if cfg.APIToken() != "" {
		fmt.Println("  Auth Token: " + logging.SanitizeToken(cfg.APIToken()))
	}
	fmt.Println()

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})
	var quitOnce sync.Once
	quit := func() { quitOnce.Do(func() { close(quitCh) }) }

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			quit()
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		trayCfg := ui.TrayConfig{
			Runs:   runs,
			APIURL: apiURL,
			Logger: logger,
			OnQuit: quit,
		}
		if inbox != nil {
			trayCfg.Watcher = inbox
			trayCfg.OnOpenInbox = func() error { return openFolder(cfg.InboxDir()) }
		}
		go ui.NewTray(trayCfg).Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// tokenSource prefers the configured token and otherwise reads the one
// stored in the config table, so a token set at runtime takes effect on the
// next request. With neither the API stays open to loopback callers.
func tokenSource(runs *catalog.Service, configured string) api.TokenSource {
	if configured != "" {
		return api.StaticToken(configured)
	}
	return func(ctx context.Context) (string, error) {
		return runs.GetConfig(ctx, api.ConfigTokenKey)
	}
}

// sweepLoop drops expired rows from backends that do not expire on their own.
func sweepLoop(ctx context.Context, store cache.Sweeper, logger *slog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Sweep(ctx)
			if err != nil {
				logger.Warn("cache sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("cache sweep removed expired entries", "count", n)
			}
		}
	}
}

func openFolder(dir string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", dir)
	case "windows":
		cmd = exec.Command("explorer", dir)
	default:
		cmd = exec.Command("xdg-open", dir)
	}
	return cmd.Start()
}
