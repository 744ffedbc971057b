// flysto-syncd shuttles flight logs from a FlashAir Wi-Fi SD card to the
// Flysto archive service, forever, from a small edge device.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shayo/flysto-sync/internal/config"
	"github.com/shayo/flysto-sync/internal/control"
	"github.com/shayo/flysto-sync/internal/flashair"
	"github.com/shayo/flysto-sync/internal/flysto"
	"github.com/shayo/flysto-sync/internal/ledger"
	"github.com/shayo/flysto-sync/internal/logging"
	"github.com/shayo/flysto-sync/internal/metrics"
	"github.com/shayo/flysto-sync/internal/syncer"
	"github.com/shayo/flysto-sync/internal/wifi"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:           "flysto-syncd",
		Short:         "FlashAir to Flysto log shuttle",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c",
		"/etc/flysto-sync/config.yaml", "configuration file")

	cmd.AddCommand(newRunCmd(&cfgPath))
	cmd.AddCommand(newSyncCmd(&cfgPath))
	cmd.AddCommand(newLedgerCmd(&cfgPath))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newRunCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := logging.Init(logging.Config{
				Level:  cfg.LogLevel,
				Format: cfg.LogFormat,
				File:   cfg.LogFile,
			}); err != nil {
				return err
			}
			defer logging.Sync()

			logging.Info("flysto-syncd starting",
				zap.String("version", version),
				zap.String("config", *cfgPath),
				zap.Duration("interval", cfg.SyncInterval()))

			surface := control.NewConsole()
			orch, err := buildOrchestrator(*cfgPath, cfg, surface)
			if err != nil {
				return err
			}

			surface.OnSyncRequested(orch.RequestSync)
			restarter := control.SystemRestarter{Delay: 2 * time.Second}
			surface.OnRebootRequested(func() {
				// Bypasses the cycle gate entirely; does not wait for a
				// running cycle to finish.
				surface.UpdateStatus(control.StateReboot, "rebooting", control.NoProgress)
				if err := restarter.Restart(); err != nil {
					logging.Error("reboot failed", zap.Error(err))
				}
			})

			if cfg.MetricsAddr != "" {
				go serveMetrics(cfg.MetricsAddr)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logging.Info("flysto-syncd stopped")
			return nil
		},
	}
}

func newSyncCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run exactly one sync cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: "console"}); err != nil {
				return err
			}
			defer logging.Sync()

			surface := control.NewConsole()
			orch, err := buildOrchestrator(*cfgPath, cfg, surface)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return orch.RunCycle(ctx)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "flysto-syncd", version)
		},
	}
}

func buildOrchestrator(cfgPath string, cfg *config.Config, surface control.Surface) (*syncer.Orchestrator, error) {
	// Ledgers are opened once for the process lifetime; configuration is
	// re-read at every cycle so external edits take effect next cycle.
	downloads, err := ledger.Open(cfg.LocalDBPath)
	if err != nil {
		return nil, err
	}
	uploads, err := ledger.Open(cfg.FlystoDBPath)
	if err != nil {
		return nil, err
	}

	return syncer.New(syncer.Options{
		LoadConfig: func() (*config.Config, error) { return config.Load(cfgPath) },
		Arbiter:    wifi.New(wifi.Config{}),
		NewSource: func(c *config.Config) syncer.Source {
			return flashair.New(flashair.Config{Host: c.FlashAirIP})
		},
		NewArchive: func(c *config.Config) syncer.Archive {
			return flysto.New(flysto.Config{BaseURL: c.FlystoBaseURL})
		},
		Downloads: downloads,
		Uploads:   uploads,
		Display:   surface,
	})
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	logging.Info("metrics listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logging.Error("metrics server stopped", zap.Error(err))
	}
}
