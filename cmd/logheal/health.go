package main

import (
	"context"
	"fmt"
	"os"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bolatahmett-invicti/log-heal/internal/config"
	"github.com/bolatahmett-invicti/log-heal/internal/elk"
	"github.com/bolatahmett-invicti/log-heal/internal/index"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the configured components are usable",
	Long: `Run component checks without triggering the pipeline: configuration
validity, repository access, codebase indexing, and log-source
connectivity. Exits non-zero if any check fails.`,
	RunE: runHealth,
}

type healthCheck struct {
	name string
	run  func(ctx context.Context) error
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		fmt.Printf("FAIL  configuration: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("ok    configuration")

	logger := zap.NewNop()
	checks := []healthCheck{
		{
			name: "codebase path",
			run: func(context.Context) error {
				info, err := os.Stat(cfg.App.CodebasePath)
				if err != nil {
					return err
				}
				if !info.IsDir() {
					return fmt.Errorf("%s is not a directory", cfg.App.CodebasePath)
				}
				return nil
			},
		},
		{
			name: "git repository",
			run: func(context.Context) error {
				_, err := gogit.PlainOpen(cfg.Git.RepoPath)
				return err
			},
		},
		{
			name: "codebase index",
			run: func(context.Context) error {
				idx, err := index.Build(cfg.App.CodebasePath, index.Options{
					Extensions: cfg.Index.Extensions,
				}, logger)
				if err != nil {
					return err
				}
				files, _ := idx.Stats()
				if files == 0 {
					return fmt.Errorf("no indexable files under %s", cfg.App.CodebasePath)
				}
				return nil
			},
		},
		{
			name: "log source",
			run: func(ctx context.Context) error {
				source, err := elk.New(cfg.Elk, logger)
				if err != nil {
					return err
				}
				_, err = source.FetchErrorLogs(ctx, time.Minute, 1)
				return err
			},
		},
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	failed := 0
	for _, c := range checks {
		if err := c.run(ctx); err != nil {
			failed++
			fmt.Printf("FAIL  %s: %v\n", c.name, err)
			continue
		}
		fmt.Printf("ok    %s\n", c.name)
	}

	fmt.Printf("\n%d/%d checks passed\n", len(checks)+1-failed, len(checks)+1)
	if failed > 0 {
		os.Exit(1)
	}
	return nil
}
