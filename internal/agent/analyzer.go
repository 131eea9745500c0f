package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bolatahmett-invicti/log-heal/internal/completion"
	"github.com/bolatahmett-invicti/log-heal/internal/triage"
)

const instrumentationName = "github.com/bolatahmett-invicti/log-heal/internal/agent"

const analyzerMaxTokens = 4000

// LogAnalyzer condenses a batch of arbitrary log records into one
// LogAnalysis summarizing the dominant error signature.
type LogAnalyzer struct {
	client completion.Client
	logger *zap.Logger
	tracer trace.Tracer
}

// NewLogAnalyzer creates the analyzer stage agent.
func NewLogAnalyzer(client completion.Client, logger *zap.Logger) *LogAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogAnalyzer{
		client: client,
		logger: logger.Named("log_analyzer"),
		tracer: otel.Tracer(instrumentationName),
	}
}

// Analyze embeds the batch as indented JSON and asks for the dominant
// error signature.
func (a *LogAnalyzer) Analyze(ctx context.Context, batch []map[string]any) (*triage.LogAnalysis, error) {
	ctx, span := a.tracer.Start(ctx, "agent.analyze_logs")
	defer span.End()
	span.SetAttributes(attribute.Int("batch_size", len(batch)))

	a.logger.Info("analyzing log batch", zap.Int("records", len(batch)))

	encoded, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding log batch: %w", err)
	}

	prompt := fmt.Sprintf(`Analyze the following error log records and extract:

1. The error type (e.g. NullPointerException, 404, TimeoutError)
2. The error message
3. The stack trace
4. The affected files, if any
5. The severity (critical, high, medium, low)

Log records:
%s

Respond in JSON only:
{
    "error_type": "...",
    "error_message": "...",
    "stack_trace": "...",
    "affected_files": [...],
    "severity": "..."
}

RETURN ONLY JSON, NOTHING ELSE.`, encoded)

	reply, err := a.client.Complete(ctx, prompt, analyzerMaxTokens)
	if err != nil {
		return nil, err
	}

	mapping, err := decodeReply("log_analyzer", reply)
	if err != nil {
		a.logger.Error("unparseable analysis reply", zap.String("sample", sample(reply)))
		return nil, err
	}

	analysis := fillLogAnalysis(mapping)
	a.logger.Info("analysis complete",
		zap.String("error_type", analysis.ErrorType),
		zap.String("severity", analysis.Severity),
	)
	span.SetAttributes(attribute.String("error_type", analysis.ErrorType))
	return analysis, nil
}

// fillLogAnalysis builds a LogAnalysis from a parsed mapping, substituting
// documented defaults for missing keys.
func fillLogAnalysis(m map[string]any) *triage.LogAnalysis {
	return &triage.LogAnalysis{
		ErrorType:     stringField(m, "error_type", "Unknown Error"),
		ErrorMessage:  stringField(m, "error_message", "No message"),
		StackTrace:    stringField(m, "stack_trace", "No stack trace"),
		AffectedFiles: stringListField(m, "affected_files"),
		Severity:      stringField(m, "severity", "medium"),
		Timestamp:     time.Now(),
	}
}
