package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bolatahmett-invicti/log-heal/internal/config"
	"github.com/bolatahmett-invicti/log-heal/internal/elk"
	"github.com/bolatahmett-invicti/log-heal/internal/logging"
	"github.com/bolatahmett-invicti/log-heal/internal/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one triage cycle over the configured log source",
	Long: `Fetch recent error logs, diagnose them, generate a fix, and commit
it on a new branch. Exits non-zero when the run fails outright; a run
that completes but produces no committable fix exits zero with
success=false in the output.`,
	RunE: runOnce,
}

var runMock bool

func init() {
	runCmd.Flags().BoolVar(&runMock, "mock", false, "use the built-in mock log source instead of the configured one")
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tel, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = tel.Shutdown(context.Background())
	}()

	orch, source, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	if runMock {
		source = elk.NewMockSource()
	}

	batch, err := source.FetchErrorLogs(ctx, cfg.App.LogWindow, cfg.App.LogLimit)
	if err != nil {
		return fmt.Errorf("failed to fetch error logs: %w", err)
	}
	logger.Info("fetched log batch", zap.Int("records", len(batch)))

	result, err := orch.Process(ctx, batch, nil, "", nil)
	if err != nil {
		return fmt.Errorf("triage run failed: %w", err)
	}

	if result.Success {
		fmt.Printf("Fix committed on branch %s\n", result.BranchName)
		for _, f := range result.FilesChanged {
			fmt.Printf("  %s\n", f)
		}
	} else {
		fmt.Fprintln(os.Stderr, "No fix was committed")
	}
	return nil
}
