// Package ui runs the system tray menu of the desktop agent.
package ui

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/veritube/veritube-agent/internal/logging"
)

//go:embed icon.png
var iconBytes []byte

// Pausable is the inbox watcher as seen by the tray.
type Pausable interface {
	Pause()
	Resume()
	IsPaused() bool
}

// RunCounter reports how many pipeline runs are in flight.
type RunCounter interface {
	ActiveRunCount(ctx context.Context) int
}

type Tray struct {
	watcher Pausable
	runs    RunCounter
	apiURL  string
	logger  *slog.Logger

	statusItem *systray.MenuItem
	runsItem   *systray.MenuItem
	pauseItem  *systray.MenuItem

	mu sync.Mutex

	onOpenInbox func() error
	onQuit      func()
}

type TrayConfig struct {
	// Watcher is nil when inbox watching is disabled; the pause item is
	// then hidden.
	Watcher     Pausable
	Runs        RunCounter
	APIURL      string
	Logger      *slog.Logger
	OnOpenInbox func() error
	OnQuit      func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		watcher:     cfg.Watcher,
		runs:        cfg.Runs,
		apiURL:      cfg.APIURL,
		logger:      logging.WithComponent(logging.OrDiscard(cfg.Logger), "tray"),
		onOpenInbox: cfg.OnOpenInbox,
		onQuit:      cfg.OnQuit,
	}
}

// Run blocks until the tray exits. It must be called from the main goroutine
// on macOS.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Veritube")
	systray.SetTooltip("Veritube Agent: " + t.apiURL)

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current agent status")
	t.statusItem.Disable()

	t.runsItem = systray.AddMenuItem("Active runs: 0", "Pipeline runs in progress")
	t.runsItem.Disable()

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem("Pause inbox", "Stop importing caption files")
	if t.watcher == nil {
		t.pauseItem.Hide()
	}

	inboxItem := systray.AddMenuItem("Open inbox folder", "Drop .vtt files here to import them")
	if t.onOpenInbox == nil {
		inboxItem.Hide()
	}

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Veritube Agent")

	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.refresh()
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-inboxItem.ClickedCh:
				if err := t.onOpenInbox(); err != nil {
					t.logger.Error("failed to open inbox folder", "error", err)
				}
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.watcher == nil {
		return
	}

	if t.watcher.IsPaused() {
		t.watcher.Resume()
		t.pauseItem.SetTitle("Pause inbox")
		t.statusItem.SetTitle("Status: Idle")
	} else {
		t.watcher.Pause()
		t.pauseItem.SetTitle("Resume inbox")
		t.statusItem.SetTitle("Status: Paused")
	}
}

func (t *Tray) refresh() {
	t.mu.Lock()
	defer t.mu.Unlock()

	active := 0
	if t.runs != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		active = t.runs.ActiveRunCount(ctx)
		cancel()
	}
	t.runsItem.SetTitle(fmt.Sprintf("Active runs: %d", active))

	if t.watcher != nil && t.watcher.IsPaused() {
		return
	}
	if active > 0 {
		t.statusItem.SetTitle("Status: Processing")
	} else {
		t.statusItem.SetTitle("Status: Idle")
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}
