package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cpbot/internal/app"
	"cpbot/internal/config"
	"cpbot/internal/core"
	"cpbot/pkg/logx"
	"cpbot/pkg/systemd"
)

var cfgPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "cpbot",
		Short:         "Daily practice reminders and contest countdowns for competitive programmers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.json", "path to config (json or yaml)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(contestsCmd())
	rootCmd.AddCommand(solveCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(envCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the Telegram bot and reminder scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := app.New(ctx, cfgPath)
			if err != nil {
				return err
			}
			if err := a.Start(ctx); err != nil {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = a.Stop(stopCtx, app.StopFatalError)
				stopCancel()
				return fmt.Errorf("start: %w", err)
			}
			_, _ = systemd.Ready()
			go func() { _ = systemd.Watchdog(ctx) }()

			var reason app.StopReason
			select {
			case sig := <-sigCh:
				reason = app.StopSIGINT
				if sig == syscall.SIGTERM {
					reason = app.StopSIGTERM
				}
			case <-a.Done():
				reason = app.StopFatalError
			}
			_, _ = systemd.Stopping()

			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			_ = a.Stop(stopCtx, reason)
			if reason == app.StopFatalError {
				return a.Err()
			}
			return nil
		},
	}
}

// openCore builds the tracker graph without Telegram. Logs go to stderr so
// command output stays clean.
func openCore(ctx context.Context) (*app.Core, error) {
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return nil, err
	}
	log := logx.NewWriter(logx.Stderr(), "warn")
	return app.OpenCore(ctx, cfg, log, nil)
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show solved count, streak and per-site totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := openCore(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			s, err := c.Tracker.GetStats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Solved:  %d / %d tracked\n", s.Solved, s.Tracked)
			fmt.Printf("Streak:  %d day(s)\n", s.Streak)
			sites := make([]string, 0, len(s.PerSite))
			for site := range s.PerSite {
				sites = append(sites, string(site))
			}
			sort.Strings(sites)
			for _, site := range sites {
				fmt.Printf("  %-12s %d solved / %d tracked\n", site, s.PerSiteSolved[core.Site(site)], s.PerSite[core.Site(site)])
			}
			if s.CodeforcesSolved != nil {
				fmt.Printf("Codeforces %s: %d solved\n", s.CodeforcesHandle, *s.CodeforcesSolved)
			}
			return nil
		},
	}
}

func contestsCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "contests",
		Short: "List the stored upcoming contests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := openCore(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			if refresh {
				if _, err := c.Tracker.RefreshContests(cmd.Context()); err != nil {
					return err
				}
			}
			list, err := c.Tracker.GetContests(cmd.Context())
			if err != nil {
				return err
			}
			if len(list.Contests) == 0 {
				fmt.Println("no upcoming contests")
				return nil
			}
			loc := c.Resolved.Location
			for i, ct := range list.Contests {
				fmt.Printf("%d. [%s] %s  %s\n", i+1, ct.Site.Short(), ct.Name, ct.StartAt.In(loc).Format("Mon Jan 2 15:04 MST"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch from the judges first")
	return cmd
}

func solveCmd() *cobra.Command {
	var site string
	cmd := &cobra.Command{
		Use:   "solve <slug>",
		Short: "Record a solved problem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := core.ParseSite(site)
			if err != nil {
				return err
			}
			c, err := openCore(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			rec, err := c.Tracker.MarkSolved(cmd.Context(), args[0], s, map[string]string{"via": "cli"})
			if err != nil {
				return err
			}
			fmt.Printf("recorded %s (%s), solve #%d\n", rec.Slug, s, len(rec.Solves))
			return nil
		},
	}
	cmd.Flags().StringVar(&site, "site", "leetcode", "leetcode or codeforces")
	return cmd
}

func exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the problem ledger as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := openCore(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			data, err := c.Tracker.ExportLedger(cmd.Context())
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = os.Stdout.Write(append(data, '\n'))
				return err
			}
			return os.WriteFile(out, data, 0o600)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the ledger with an exported JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			c, err := openCore(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			n, err := c.Tracker.ImportLedger(cmd.Context(), data)
			if err != nil {
				return err
			}
			fmt.Printf("imported %d record(s)\n", n)
			return nil
		},
	}
}

func envCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List supported environment overrides",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Println(config.EnvHelp())
		},
	}
}
