package pagehost

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// BrowserConfig configures the browser the host observes.
type BrowserConfig struct {
	// RemoteURL is the DevTools WebSocket URL of a running Chrome.
	// Empty = launch a local Chrome.
	RemoteURL string

	// Headless launches the local Chrome without a window. Popups are only
	// visible to the user in headful mode.
	Headless bool

	// Bin overrides the Chrome binary path.
	Bin string

	Logger *slog.Logger
}

func (c *BrowserConfig) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Browser owns the rod connection and, for a local launch, the Chrome
// process.
type Browser struct {
	cfg    BrowserConfig
	mu     sync.Mutex
	rod    *rod.Browser
	lnch   *launcher.Launcher
	closed bool
}

// Launch starts Chrome (or connects to RemoteURL) and returns the handle.
func Launch(cfg BrowserConfig) (*Browser, error) {
	cfg.defaults()
	log := cfg.Logger

	var wsURL string
	var l *launcher.Launcher
	if cfg.RemoteURL != "" {
		wsURL = cfg.RemoteURL
		log.Info("pagehost: connecting to remote browser", "url", wsURL)
	} else {
		l = launcher.New().Headless(cfg.Headless)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("pagehost: launch: %w", err)
		}
		wsURL = u
		log.Info("pagehost: launched local chrome", "url", wsURL, "headless", cfg.Headless)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Cleanup()
		}
		return nil, fmt.Errorf("pagehost: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("pagehost: ignore cert errors failed", "error", err)
	}
	return &Browser{cfg: cfg, rod: b, lnch: l}, nil
}

// Rod returns the underlying rod handle.
func (b *Browser) Rod() *rod.Browser { return b.rod }

// Close disconnects and, for a local launch, kills Chrome. A remote browser
// is left running.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var err error
	if b.lnch != nil {
		err = b.rod.Close()
		b.lnch.Cleanup()
	}
	b.cfg.Logger.Info("pagehost: browser closed")
	return err
}
