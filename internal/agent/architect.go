package agent

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bolatahmett-invicti/log-heal/internal/completion"
	"github.com/bolatahmett-invicti/log-heal/internal/triage"
)

const architectMaxTokens = 3000

// SolutionArchitect proposes a remediation for an analyzed error. An empty
// affected-files list in the reply is the pipeline's designed early-exit
// signal, not an error.
type SolutionArchitect struct {
	client completion.Client
	logger *zap.Logger
	tracer trace.Tracer
}

// NewSolutionArchitect creates the architect stage agent.
func NewSolutionArchitect(client completion.Client, logger *zap.Logger) *SolutionArchitect {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SolutionArchitect{
		client: client,
		logger: logger.Named("solution_architect"),
		tracer: otel.Tracer(instrumentationName),
	}
}

// Propose generates a remediation proposal. errCtx and extraContext are
// optional enrichments.
func (s *SolutionArchitect) Propose(ctx context.Context, analysis *triage.LogAnalysis, errCtx *triage.ErrorContext, extraContext string) (*triage.Solution, error) {
	ctx, span := s.tracer.Start(ctx, "agent.propose_solution")
	defer span.End()
	span.SetAttributes(attribute.String("error_type", analysis.ErrorType))

	s.logger.Info("proposing solution", zap.String("error_type", analysis.ErrorType))

	affected := "Unknown"
	if len(analysis.AffectedFiles) > 0 {
		affected = strings.Join(analysis.AffectedFiles, ", ")
	}

	var contextSection string
	if errCtx != nil {
		contextSection = fmt.Sprintf(`
Error Location: %s
Root Cause: %s
Relevant Code: %s
Summary: %s
`, errCtx.ErrorLocation, errCtx.RootCause, errCtx.RelevantCode, errCtx.Summary)
	}
	if extraContext != "" {
		contextSection += fmt.Sprintf("\nAdditional Context: %s\n", extraContext)
	}

	prompt := fmt.Sprintf(`Propose a fix for the following error:

Error Type: %s
Error Message: %s
Affected Files: %s
Severity: %s

Stack Trace:
%s
%s
Respond with the proposed solution in JSON only:
{
    "description": "detailed description of the fix",
    "affected_files": ["file1.py", "file2.py"],
    "code_changes": {
        "file1.py": "description of the change to make",
        "file2.py": "description of the change to make"
    },
    "tests_needed": ["test description 1", "test description 2"]
}

RETURN ONLY JSON.`, analysis.ErrorType, analysis.ErrorMessage, affected, analysis.Severity, analysis.StackTrace, contextSection)

	reply, err := s.client.Complete(ctx, prompt, architectMaxTokens)
	if err != nil {
		return nil, err
	}

	mapping, err := decodeReply("solution_architect", reply)
	if err != nil {
		s.logger.Error("unparseable solution reply", zap.String("sample", sample(reply)))
		return nil, err
	}

	solution := fillSolution(mapping)
	s.logger.Info("solution ready", zap.Int("affected_files", len(solution.AffectedFiles)))
	span.SetAttributes(attribute.Int("affected_files", len(solution.AffectedFiles)))
	return solution, nil
}

// fillSolution builds a Solution from a parsed mapping, substituting
// documented defaults for missing keys.
func fillSolution(m map[string]any) *triage.Solution {
	return &triage.Solution{
		Description:   stringField(m, "description", "No description"),
		AffectedFiles: stringListField(m, "affected_files"),
		CodeChanges:   stringMapField(m, "code_changes"),
		TestsNeeded:   stringListField(m, "tests_needed"),
	}
}
