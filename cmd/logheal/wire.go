package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/bolatahmett-invicti/log-heal/internal/agent"
	"github.com/bolatahmett-invicti/log-heal/internal/completion"
	"github.com/bolatahmett-invicti/log-heal/internal/config"
	"github.com/bolatahmett-invicti/log-heal/internal/elk"
	"github.com/bolatahmett-invicti/log-heal/internal/index"
	"github.com/bolatahmett-invicti/log-heal/internal/redact"
	"github.com/bolatahmett-invicti/log-heal/internal/triage"
	"github.com/bolatahmett-invicti/log-heal/internal/vcs"
)

// buildPipeline wires the full triage pipeline from configuration: the
// codebase index is built once and shared by the locator, generator, and
// committer.
func buildPipeline(cfg *config.Config, logger *zap.Logger) (*triage.Orchestrator, elk.Source, error) {
	idx, err := index.Build(cfg.App.CodebasePath, index.Options{
		Extensions: cfg.Index.Extensions,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to index codebase: %w", err)
	}

	base, err := completion.NewOpenAIClient(cfg.OpenAI, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create completion client: %w", err)
	}
	scrubber, err := redact.NewScrubber(cfg.Redact)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build secret scrubber: %w", err)
	}
	client, err := completion.NewPolicyClient(completion.NewScrubbingClient(base, scrubber, logger), cfg.Policy, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create policy client: %w", err)
	}

	committer, err := vcs.NewManager(cfg.Git, idx, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create commit manager: %w", err)
	}

	orch, err := triage.NewOrchestrator(
		agent.NewLogAnalyzer(client, logger),
		agent.NewErrorLocator(client, idx, logger),
		agent.NewSolutionArchitect(client, logger),
		agent.NewCodeGenerator(client, idx, logger),
		committer,
		logger,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	source, err := elk.New(cfg.Elk, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create log source: %w", err)
	}

	return orch, source, nil
}
