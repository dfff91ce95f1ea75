package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/scrollguard/bus"
	"github.com/hazyhaar/scrollguard/config"
	"github.com/hazyhaar/scrollguard/coordinator"
	"github.com/hazyhaar/scrollguard/httpapi"
	"github.com/hazyhaar/scrollguard/observability"
	"github.com/hazyhaar/scrollguard/pagehost"
	"github.com/hazyhaar/scrollguard/scrolltrack"
	"github.com/hazyhaar/scrollguard/settings"
)

func newServeCmd(g *globals, logOut io.Writer) *cobra.Command {
	var noBrowser bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon: browser host, coordinator and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			return runDaemon(cmd.Context(), cfg, g.logger(cfg, logOut), cfg.Pages, !noBrowser)
		},
	}
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "serve the HTTP API only (pages report from elsewhere)")
	return cmd
}

func newWatchCmd(g *globals, logOut io.Writer) *cobra.Command {
	var headless bool
	cmd := &cobra.Command{
		Use:   "watch <url>...",
		Short: "Run the daemon on the given pages, with a visible browser",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			cfg.Browser.Headless = headless
			return runDaemon(cmd.Context(), cfg, g.logger(cfg, logOut), args, true)
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "run Chrome without a window")
	return cmd
}

// runDaemon wires every component and blocks until ctx ends.
func runDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger, pages []string, withBrowser bool) error {
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Journal. The interfaces stay nil when it is disabled.
	var journal coordinator.Journal
	var journalReader httpapi.JournalReader
	if !cfg.Journal.Disabled {
		j := observability.NewJournal(store.DB, observability.WithJournalLogger(logger))
		defer j.Close()
		journal, journalReader = j, j
		go j.RunRetention(ctx, cfg.Journal.Retention, time.Hour)
	}

	// Message bus.
	router := bus.New(
		bus.WithLogger(logger),
		bus.WithMiddleware(bus.Recovery(logger), bus.Logging(logger), bus.Timeout(10*time.Second)),
	)
	defer router.Close()
	for _, rr := range cfg.Remote {
		if err := router.RegisterRemote(rr.Type, rr.URL, bus.HTTPOptions{Timeout: rr.Timeout}); err != nil {
			return fmt.Errorf("remote route %s: %w", rr.Type, err)
		}
	}

	// Pages and popups.
	reg := pagehost.NewRegistry(logger)
	host := pagehost.NewHost(pagehost.HostConfig{
		Browser: pagehost.BrowserConfig{
			RemoteURL: cfg.Browser.Remote,
			Headless:  cfg.Browser.Headless,
			Bin:       cfg.Browser.Bin,
		},
		Bus:      router,
		Registry: reg,
		Tracker: scrolltrack.Config{
			IdleTimeout:     cfg.Tracker.IdleTimeout,
			NoScrollTimeout: cfg.Tracker.NoScrollTimeout,
			PendingTimeout:  cfg.Tracker.PendingTimeout,
		},
		Logger: logger,
	})

	// Coordinator.
	coord := coordinator.New(coordinator.Config{
		Windows:  host,
		Settings: store,
		Pages:    reg,
		Journal:  journal,
		Cooldown: cfg.Coordinator.Cooldown,
		PopupURL: cfg.Coordinator.PopupURL,
		Logger:   logger,
	})
	coord.Register(router)
	coord.Activate(ctx)

	// HTTP surface.
	api := httpapi.Config{
		Bus:      router,
		Status:   coord,
		Pages:    reg,
		Journal:  journalReader,
		Settings: store,
		Logger:   logger,
	}
	if withBrowser {
		api.Opener = host
	}
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.New(api),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		logger.Info("scrollguard: http listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	// Settings written by the CLI or the API reach every page.
	feed := store.Changes(settings.FeedOptions{
		Interval: cfg.Settings.PollInterval,
		Debounce: cfg.Settings.Debounce,
		Logger:   logger,
	})
	go feed.Run(ctx, coord.BroadcastSettings)

	if withBrowser {
		if err := host.Start(ctx); err != nil {
			shutdown(srv, logger)
			return err
		}
		defer host.Stop()
		for _, u := range pages {
			if _, err := host.OpenPage(ctx, u); err != nil {
				logger.Warn("scrollguard: open page failed", "url", u, "error", err)
			}
		}
	}

	logger.Info("scrollguard: running", "pages", reg.Len(), "browser", withBrowser)
	select {
	case <-ctx.Done():
	case err := <-srvErr:
		return fmt.Errorf("http: %w", err)
	}
	shutdown(srv, logger)
	logger.Info("scrollguard: stopped")
	return nil
}

func shutdown(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("scrollguard: http shutdown", "error", err)
	}
}
