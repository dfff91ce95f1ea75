package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/scrollguard/coordinator"
	"github.com/hazyhaar/scrollguard/kit"
	"github.com/hazyhaar/scrollguard/observability"
	"github.com/hazyhaar/scrollguard/settings"
)

// withStore runs fn against the configured settings database.
func (g *globals) withStore(cmd *cobra.Command, fn func(ctx context.Context, store *settings.Store) error) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	store, err := openStore(cfg, g.logger(cfg, g.logOut))
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(kit.WithTransport(cmd.Context(), kit.TransportCLI), store)
}

func newSeedCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Write the default settings on first install",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withStore(cmd, func(ctx context.Context, store *settings.Store) error {
				seeded, err := store.Seed(ctx)
				if err != nil {
					return err
				}
				if seeded {
					fmt.Fprintln(cmd.OutOrStdout(), "defaults written")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "already set up, nothing changed")
				}
				return nil
			})
		},
	}
}

func newSettingsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the stored settings",
	}
	cmd.AddCommand(
		newSettingsShowCmd(g),
		newSettingsThresholdCmd(g),
		newSettingsWindowCmd(g),
		newSettingsIgnoreCmd(g),
		newSettingsUnignoreCmd(g),
		newSettingsPremiumCmd(g),
	)
	return cmd
}

func newSettingsShowCmd(g *globals) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the settings and the last day of interventions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withStore(cmd, func(ctx context.Context, store *settings.Store) error {
				s, err := store.Load(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if output == "json" {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(s)
				}
				if err := printSettings(out, s); err != nil {
					return err
				}

				j := observability.NewJournal(store.DB)
				defer j.Close()
				counts, err := j.Counts(ctx, time.Now().Add(-24*time.Hour))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\nlast 24h: %d shown, %d suppressed, %d ignored, %d failed\n",
					counts[coordinator.OutcomeShown], counts[coordinator.OutcomeSuppressed],
					counts[coordinator.OutcomeIgnored], counts[coordinator.OutcomeFailed])
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format (json)")
	return cmd
}

// renderTable writes a pterm table with a header row to w.
func renderTable(w io.Writer, rows pterm.TableData) error {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func printSettings(w io.Writer, s settings.Settings) error {
	ignored := "-"
	if len(s.IgnoredDomains) > 0 {
		ignored = strings.Join(s.IgnoredDomains, ", ")
	}
	rows := pterm.TableData{
		{"Setting", "Value"},
		{"Scroll threshold", strconv.Itoa(s.ScrollThreshold)},
		{"Time window", fmt.Sprintf("%ds", s.TimeWindowSeconds)},
		{"Premium", strconv.FormatBool(s.IsPremium)},
		{"Ignored domains", ignored},
	}
	if err := renderTable(w, rows); err != nil {
		return err
	}

	open := lo.Filter(s.Todos, func(t settings.Todo, _ int) bool { return !t.Completed })
	fmt.Fprintf(w, "\ntodos (%d open of %d):\n", len(open), len(s.Todos))
	for _, t := range s.Todos {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		fmt.Fprintf(w, "  [%s] %s (%s)\n", mark, t.Text, t.Priority)
	}
	return nil
}

func newSettingsThresholdCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "threshold <units>",
		Short: "Set the scroll units that trigger an intervention (1-100)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withStore(cmd, func(ctx context.Context, store *settings.Store) error {
				cur, err := store.Load(ctx)
				if err != nil {
					return err
				}
				if err := store.SetScrollSettings(ctx, args[0], cur.TimeWindowSeconds); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scroll threshold: %d\n", settings.ValidateScrollThreshold(args[0]))
				return nil
			})
		},
	}
}

func newSettingsWindowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "window <seconds>",
		Short: "Set the time window the units must fall in (5-300)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withStore(cmd, func(ctx context.Context, store *settings.Store) error {
				cur, err := store.Load(ctx)
				if err != nil {
					return err
				}
				if err := store.SetScrollSettings(ctx, cur.ScrollThreshold, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "time window: %ds\n", settings.ValidateTimeWindow(args[0]))
				return nil
			})
		},
	}
}

func newSettingsIgnoreCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "ignore <domain>...",
		Short: "Never intervene on these domains",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withStore(cmd, func(ctx context.Context, store *settings.Store) error {
				for _, d := range args {
					if err := store.AddIgnoredDomain(ctx, d); err != nil {
						return err
					}
				}
				return printIgnored(ctx, cmd.OutOrStdout(), store)
			})
		},
	}
}

func newSettingsUnignoreCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "unignore <domain>...",
		Short: "Remove domains from the ignore list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withStore(cmd, func(ctx context.Context, store *settings.Store) error {
				for _, d := range args {
					if err := store.RemoveIgnoredDomain(ctx, d); err != nil {
						return err
					}
				}
				return printIgnored(ctx, cmd.OutOrStdout(), store)
			})
		},
	}
}

func printIgnored(ctx context.Context, w io.Writer, store *settings.Store) error {
	s, err := store.Load(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "ignored domains: %s\n", strings.Join(s.IgnoredDomains, ", "))
	return nil
}

func newSettingsPremiumCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:       "premium on|off",
		Short:     "Toggle the premium flag (hides the ad placeholder)",
		ValidArgs: []string{"on", "off"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withStore(cmd, func(ctx context.Context, store *settings.Store) error {
				on := args[0] == "on"
				if err := store.SetPremium(ctx, on); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "premium: %t\n", on)
				return nil
			})
		},
	}
}

func newTipsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tips",
		Short: "Print the tip catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for i, tip := range coordinator.Tips() {
				fmt.Fprintf(cmd.OutOrStdout(), "%2d. %s\n", i+1, tip)
			}
			return nil
		},
	}
}

func newEventsCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recent intervention attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withStore(cmd, func(ctx context.Context, store *settings.Store) error {
				j := observability.NewJournal(store.DB)
				defer j.Close()
				entries, err := j.Recent(ctx, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "no interventions recorded")
					return nil
				}
				rows := pterm.TableData{{"Time", "Outcome", "Reason", "Host", "Page"}}
				for _, e := range entries {
					rows = append(rows, []string{
						e.At.Local().Format(time.DateTime), string(e.Outcome), e.Reason, e.Host, e.PageID,
					})
				}
				return renderTable(out, rows)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	return cmd
}
