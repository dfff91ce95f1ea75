// Command scrollguard watches browser tabs for mindless scrolling and
// interrupts it with a popup of the user's todos and a tip.
//
// Usage:
//
//	scrollguard serve -c scrollguard.yaml   # daemon: browser, coordinator, HTTP API
//	scrollguard watch https://reddit.com    # daemon with ad-hoc pages
//	scrollguard settings show               # inspect or edit the settings store
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/scrollguard/config"
	"github.com/hazyhaar/scrollguard/observability"
	"github.com/hazyhaar/scrollguard/settings"
	"github.com/hazyhaar/scrollguard/trace"
)

// globals holds the persistent flags.
type globals struct {
	configPath string
	dbPath     string
	logLevel   string
	logOut     io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Logs go to logOut.
func newRootCmd(logOut io.Writer) *cobra.Command {
	g := &globals{logOut: logOut}
	root := &cobra.Command{
		Use:          "scrollguard",
		Short:        "Interrupt mindless scrolling with a todo reminder",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to scrollguard.yaml")
	root.PersistentFlags().StringVar(&g.dbPath, "db", "", "settings database (overrides config)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	root.AddCommand(
		newServeCmd(g, logOut),
		newWatchCmd(g, logOut),
		newSeedCmd(g),
		newSettingsCmd(g),
		newTipsCmd(),
		newEventsCmd(g),
	)
	return root
}

// load resolves the configuration: file (or defaults), then flags.
func (g *globals) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if g.configPath != "" {
		cfg, err = config.LoadFile(g.configPath)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		return nil, err
	}
	if g.dbPath != "" {
		cfg.DBPath = g.dbPath
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	return cfg, nil
}

func (g *globals) logger(cfg *config.Config, w io.Writer) *slog.Logger {
	logger, _ := observability.NewLogger(cfg.LogLevel, w)
	return logger
}

// openStore opens the settings database with the journal schema applied.
// With trace_sql set, every statement is logged to logger at debug level.
func openStore(cfg *config.Config, logger *slog.Logger) (*settings.Store, error) {
	var opts []settings.Option
	if cfg.TraceSQL {
		trace.SetLogger(logger)
		opts = append(opts, settings.WithDriver(trace.DriverName))
	}
	store, err := settings.Open(cfg.DBPath, opts...)
	if err != nil {
		return nil, err
	}
	if err := observability.Init(store.DB); err != nil {
		store.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return store, nil
}
