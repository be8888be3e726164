package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/autoclaim/autoclaim/internal/config"
	"github.com/autoclaim/autoclaim/internal/logging"
	"github.com/autoclaim/autoclaim/internal/metrics"
	"github.com/autoclaim/autoclaim/internal/notify"
	"github.com/autoclaim/autoclaim/internal/runner"
	"github.com/autoclaim/autoclaim/internal/scheduler"
	"github.com/autoclaim/autoclaim/internal/server"
	"github.com/autoclaim/autoclaim/internal/vendor"
)

var (
	// Global flags
	configFile string
	statePath  string

	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "autoclaim",
	Short: "Claim the vendor's daily promotion coupons automatically",
	Long: `autoclaim keeps a local calendar of the vendor's promotional activities,
claims each day's coupons once, and publishes a report of the coupon wallet.

Configuration is read from the environment (and CONFIG_FILE when set).
MCD_TOKEN is required for every command that talks to the vendor.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			if err := os.Setenv("CONFIG_FILE", configFile); err != nil {
				return err
			}
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if statePath != "" {
			cfg.State.Path = statePath
		}

		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to init logger: %w", err)
		}
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Merge this month's activity calendar into the state file",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRunner(true)
		if err != nil {
			return err
		}
		_, err = r.Refresh(cmd.Context())
		return err
	},
}

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim every pending activity dated today",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRunner(true)
		if err != nil {
			return err
		}
		_, err = r.Claim(cmd.Context())
		return err
	},
}

var fullCmd = &cobra.Command{
	Use:   "full",
	Short: "Refresh, claim today's activities, sync the wallet and report",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRunner(true)
		if err != nil {
			return err
		}
		_, err = r.Full(cmd.Context())
		return err
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Re-render the report from the state file without vendor calls",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRunner(false)
		if err != nil {
			return err
		}
		_, err = r.Report(cmd.Context())
		return err
	},
}

var skipCmd = &cobra.Command{
	Use:   "skip [activity-id]",
	Short: "Mark an activity as skipped so it is never claimed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRunner(false)
		if err != nil {
			return err
		}
		return r.Skip(cmd.Context(), args[0])
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Print UTC cron lines for every stored activity date",
	Long: `Prints one crontab schedule per stored activity date, firing the claim
run at 00:05 business time expressed in UTC. Suitable for CI schedulers
that only accept UTC cron expressions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRunner(false)
		if err != nil {
			return err
		}
		entries, err := r.Schedule()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, e := range entries {
			fmt.Fprintf(out, "%s\t# %s\n", e.Spec, e.Date)
		}
		return nil
	},
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the monthly refresh and daily claims in-process",
	Long: `Runs until interrupted. The calendar is refreshed from 00:01 on the first
day of each month (and at startup when the current month is missing), and
today's activities are claimed from 00:05 business time.

When METRICS_ADDR is set, /healthz, /metrics and the latest report page
are served on that address.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", "", "state file path (overrides STATE_FILE)")

	rootCmd.AddCommand(refreshCmd, claimCmd, fullCmd, reportCmd, skipCmd, scheduleCmd, daemonCmd)
}

func newRunner(needsVendor bool) (*runner.Runner, error) {
	collector, err := metrics.NewCollector()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics collector: %w", err)
	}
	return newRunnerWith(collector, needsVendor)
}

func newRunnerWith(collector *metrics.Collector, needsVendor bool) (*runner.Runner, error) {
	var gateway runner.Gateway
	if needsVendor {
		if cfg.Vendor.Token == "" {
			return nil, fmt.Errorf("MCD_TOKEN is not set: %w", vendor.ErrNoToken)
		}
		gateway = vendor.NewClient(cfg.Vendor, logger)
	}
	return runner.New(cfg, gateway, notify.New(cfg.Telegram, logger), collector, logger), nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	collector, err := metrics.NewCollector()
	if err != nil {
		return fmt.Errorf("failed to create metrics collector: %w", err)
	}
	r, err := newRunnerWith(collector, true)
	if err != nil {
		return err
	}

	d := scheduler.NewDaemon(r, cfg.Business.Location, logger)

	var wg sync.WaitGroup
	if cfg.Metrics.Addr != "" {
		srv := server.New(cfg.Metrics.Addr, logger, server.NewHandler(collector, d.Status, cfg.Pages.OutputPath))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				logger.Error("server error", "error", err)
			}
		}()
	}

	d.Start(ctx)
	wg.Wait()

	logger.Info("shutdown complete")
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		l := logger
		if l == nil {
			l = slog.New(slog.NewJSONHandler(os.Stderr, nil))
		}
		if errors.Is(err, context.Canceled) {
			l.Warn("interrupted", "error", err)
		} else {
			l.Error("command failed", "error", err)
		}
		stop()
		os.Exit(1)
	}
}
