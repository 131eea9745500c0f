package triage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/bolatahmett-invicti/log-heal/internal/triage"

// Orchestrator sequences the five stage agents, enforces the early-exit
// gates, and forwards each stage's typed output to the next. One
// Orchestrator owns one run at a time; the retrieval index supplied to the
// agents at wiring time is shared by reference for the run's lifetime.
type Orchestrator struct {
	analyzer  LogAnalyzer
	locator   ErrorLocator
	architect SolutionArchitect
	generator CodeGenerator
	committer Committer

	logger *zap.Logger
	tracer trace.Tracer
	meter  metric.Meter

	runCounter   metric.Int64Counter
	stageCounter metric.Int64Counter
}

// NewOrchestrator creates an orchestrator over the given stage agents.
// All five agents are required; a nil logger falls back to zap.NewNop().
func NewOrchestrator(analyzer LogAnalyzer, locator ErrorLocator, architect SolutionArchitect, generator CodeGenerator, committer Committer, logger *zap.Logger) (*Orchestrator, error) {
	if analyzer == nil {
		return nil, errors.New("log analyzer is required")
	}
	if locator == nil {
		return nil, errors.New("error locator is required")
	}
	if architect == nil {
		return nil, errors.New("solution architect is required")
	}
	if generator == nil {
		return nil, errors.New("code generator is required")
	}
	if committer == nil {
		return nil, errors.New("committer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		analyzer:  analyzer,
		locator:   locator,
		architect: architect,
		generator: generator,
		committer: committer,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
	}
	o.initMetrics()

	return o, nil
}

func (o *Orchestrator) initMetrics() {
	var err error

	o.runCounter, err = o.meter.Int64Counter(
		"logheal.triage.runs_total",
		metric.WithDescription("Total number of triage runs by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		o.logger.Warn("failed to create run counter", zap.Error(err))
	}

	o.stageCounter, err = o.meter.Int64Counter(
		"logheal.triage.stages_total",
		metric.WithDescription("Total number of completed pipeline stages"),
		metric.WithUnit("{stage}"),
	)
	if err != nil {
		o.logger.Warn("failed to create stage counter", zap.Error(err))
	}
}

// Process runs the full pipeline over a log batch and returns the terminal
// VersionControlResult.
//
// Gates: an empty batch aborts before any agent is invoked; an empty
// Solution.AffectedFiles aborts after the proposal stage; empty FixedFiles
// abort after generation. Each gate yields a failure result with an empty
// branch name. Stage-level errors (transport or contract failures)
// terminate the run with no result object.
//
// preloaded maps affected-file identifiers to known file contents and may
// be nil. observer, when non-nil, receives one call per fixed file.
func (o *Orchestrator) Process(ctx context.Context, batch []map[string]any, preloaded map[string]string, extraContext string, observer FileObserver) (*VersionControlResult, error) {
	runID := uuid.New().String()
	logger := o.logger.With(zap.String("run_id", runID))

	ctx, span := o.tracer.Start(ctx, "triage.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.Int("batch_size", len(batch)),
	)

	stage := StageIdle

	if len(batch) == 0 {
		logger.Warn("empty log batch, aborting before analysis")
		o.countRun(ctx, "empty_batch")
		return failureResult(), nil
	}

	analysis, err := o.analyzer.Analyze(ctx, batch)
	if err != nil {
		return nil, o.fail(ctx, span, logger, stage, "log analysis failed", err)
	}
	stage = o.advance(ctx, logger, stage)
	logger.Info("log batch analyzed",
		zap.String("error_type", analysis.ErrorType),
		zap.String("severity", analysis.Severity),
		zap.Strings("affected_files", analysis.AffectedFiles),
	)

	errCtx, err := o.locator.Locate(ctx, analysis)
	if err != nil {
		return nil, o.fail(ctx, span, logger, stage, "error localization failed", err)
	}
	stage = o.advance(ctx, logger, stage)
	logger.Info("error localized",
		zap.String("location", errCtx.ErrorLocation),
		zap.Int("relevant_files", len(errCtx.RelevantFiles)),
	)

	solution, err := o.architect.Propose(ctx, analysis, errCtx, extraContext)
	if err != nil {
		return nil, o.fail(ctx, span, logger, stage, "solution proposal failed", err)
	}
	stage = o.advance(ctx, logger, stage)
	logger.Info("solution proposed",
		zap.String("description", solution.Description),
		zap.Strings("affected_files", solution.AffectedFiles),
	)

	if len(solution.AffectedFiles) == 0 {
		logger.Warn("solution affects no files, skipping generation and commit")
		o.countRun(ctx, "no_affected_files")
		return failureResult(), nil
	}

	if preloaded == nil {
		preloaded = map[string]string{}
	}
	fixed, err := o.generator.Generate(ctx, solution, preloaded, observer)
	if err != nil {
		return nil, o.fail(ctx, span, logger, stage, "code generation failed", err)
	}
	stage = o.advance(ctx, logger, stage)
	logger.Info("replacement content generated", zap.Int("fixed_files", len(fixed)))

	if len(fixed) == 0 {
		logger.Warn("no files fixed, skipping commit")
		o.countRun(ctx, "no_fixed_files")
		return failureResult(), nil
	}

	result, err := o.committer.Commit(ctx, analysis, fixed)
	if err != nil {
		return nil, o.fail(ctx, span, logger, stage, "commit failed", err)
	}
	o.advance(ctx, logger, stage)

	if result.Success {
		logger.Info("fix committed",
			zap.String("branch", result.BranchName),
			zap.Strings("files_changed", result.FilesChanged),
		)
		o.countRun(ctx, "success")
	} else {
		logger.Warn("commit produced no result", zap.String("branch", result.BranchName))
		o.countRun(ctx, "commit_failed")
	}

	span.SetAttributes(attribute.Bool("success", result.Success))
	return result, nil
}

// advance moves to the next stage, recording the transition. Transitions
// follow the strict stage order; a terminal or unknown stage is a
// programming error and is logged rather than propagated.
func (o *Orchestrator) advance(ctx context.Context, logger *zap.Logger, stage Stage) Stage {
	next, err := stage.Next()
	if err != nil {
		logger.Error("invalid stage transition", zap.String("stage", string(stage)), zap.Error(err))
		return stage
	}
	if o.stageCounter != nil {
		o.stageCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", string(next))))
	}
	logger.Debug("stage transition",
		zap.String("from", string(stage)),
		zap.String("to", string(next)),
	)
	return next
}

func (o *Orchestrator) fail(ctx context.Context, span trace.Span, logger *zap.Logger, stage Stage, msg string, err error) error {
	logger.Error(msg, zap.String("stage", string(stage)), zap.Error(err))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.countRun(ctx, "stage_error")
	return fmt.Errorf("%s: %w", msg, err)
}

func (o *Orchestrator) countRun(ctx context.Context, outcome string) {
	if o.runCounter != nil {
		o.runCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func failureResult() *VersionControlResult {
	return &VersionControlResult{
		BranchName:    "",
		CommitMessage: "",
		FilesChanged:  []string{},
		Success:       false,
	}
}
