package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"benchcheck/internal/analyzer"
	"benchcheck/internal/daemon"
	"benchcheck/internal/jobs"
	"benchcheck/internal/logging"
	"benchcheck/internal/notifications"
	"benchcheck/internal/orchestrator"
	"benchcheck/internal/session"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the benchcheck daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}

			store, err := jobs.Open(cfg)
			if err != nil {
				return fmt.Errorf("open job store: %w", err)
			}

			dispatcher := newDispatcher(ctx, logger)
			notifier := notifications.NewService(cfg)
			orch := orchestrator.New(cfg, store, dispatcher, notifier, logger)
			manager := orchestrator.NewManager(cfg, store, orch, logger)

			d, err := daemon.New(cfg, store, orch, manager, logger)
			if err != nil {
				_ = store.Close()
				return err
			}
			defer d.Close()

			if err := d.Start(cmd.Context()); err != nil {
				return err
			}

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-signals:
				logger.Info("shutdown signal received", logging.String("signal", sig.String()))
			case <-cmd.Context().Done():
			}
			d.Stop()
			return nil
		},
	}
}

// newDispatcher picks the analysis transport: an HTTP analyzer when one is
// configured, otherwise a detached local process.
func newDispatcher(ctx *commandContext, logger *slog.Logger) session.Dispatcher {
	cfg := ctx.configValue()
	if cfg != nil && cfg.Orchestrator.AnalyzerURL != "" {
		return analyzer.New(cfg.Orchestrator.AnalyzerURL,
			analyzer.WithTimeout(time.Duration(cfg.Orchestrator.DispatchTimeoutSecs)*time.Second))
	}
	return session.NewLocalDispatcher(ctx.configPath, logger)
}
