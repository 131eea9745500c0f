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
	"github.com/bolatahmett-invicti/log-heal/internal/index"
	"github.com/bolatahmett-invicti/log-heal/internal/triage"
)

const (
	locatorMaxTokens   = 3000
	locatorMaxExcerpts = 10
	excerptCharLimit   = 500
)

// ErrorLocator analyzes the stack trace and error message to localize the
// error source. When a retrieval index is supplied, relevant file excerpts
// are embedded in the prompt and every consulted path is recorded in the
// resulting ErrorContext. Without an index a reduced prompt containing
// only the analysis fields is used.
type ErrorLocator struct {
	client completion.Client
	index  *index.Index // may be nil
	logger *zap.Logger
	tracer trace.Tracer
}

// NewErrorLocator creates the locator stage agent. idx may be nil.
func NewErrorLocator(client completion.Client, idx *index.Index, logger *zap.Logger) *ErrorLocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorLocator{
		client: client,
		index:  idx,
		logger: logger.Named("error_locator"),
		tracer: otel.Tracer(instrumentationName),
	}
}

// Locate determines the probable error source and root cause.
func (l *ErrorLocator) Locate(ctx context.Context, analysis *triage.LogAnalysis) (*triage.ErrorContext, error) {
	ctx, span := l.tracer.Start(ctx, "agent.locate_error")
	defer span.End()
	span.SetAttributes(attribute.String("error_type", analysis.ErrorType))

	l.logger.Info("localizing error source", zap.String("error_type", analysis.ErrorType))

	var excerptSection string
	consulted := []string{}
	if l.index != nil {
		excerpts := l.index.FindRelevantFiles(analysis.StackTrace, analysis.ErrorMessage, locatorMaxExcerpts)
		if len(excerpts) == 0 {
			l.logger.Warn("no relevant files found in index")
		} else {
			l.logger.Info("relevant files retrieved", zap.Int("count", len(excerpts)))
			var sb strings.Builder
			sb.WriteString("\nRelevant files:\n")
			for i, ex := range excerpts {
				sb.WriteString(fmt.Sprintf("\n%d. %s (line %s) - %s\n", i+1, ex.Filename, ex.Line, ex.Relevance))
				sb.WriteString(truncate(ex.Content, excerptCharLimit))
				sb.WriteString("\n")
				consulted = append(consulted, ex.Path)
			}
			excerptSection = sb.String()
		}
	}

	prompt := fmt.Sprintf(`Analyze the following error information and localize its source:

Error Type: %s
Error Message: %s
Severity: %s

Stack Trace:
%s
%s
Your task:
1. Analyze the stack trace line by line
2. Determine the file, class, method, and line where the error occurred
3. Analyze the code excerpts from the relevant files above, if present
4. Identify the probable root cause
5. Prepare a high-level summary

Respond in JSON only:
{
    "error_location": "exact error location (file:line:method)",
    "root_cause": "probable root cause, detailed analysis",
    "relevant_code": "most critical code snippet and its context (~10 lines)",
    "summary": "high-level summary of the error, 2-3 sentences"
}

RETURN ONLY JSON.`, analysis.ErrorType, analysis.ErrorMessage, analysis.Severity, analysis.StackTrace, excerptSection)

	reply, err := l.client.Complete(ctx, prompt, locatorMaxTokens)
	if err != nil {
		return nil, err
	}

	mapping, err := decodeReply("error_locator", reply)
	if err != nil {
		l.logger.Error("unparseable localization reply", zap.String("sample", sample(reply)))
		return nil, err
	}

	errCtx := fillErrorContext(mapping, consulted)
	l.logger.Info("error localized",
		zap.String("location", errCtx.ErrorLocation),
		zap.Int("relevant_files", len(errCtx.RelevantFiles)),
	)
	span.SetAttributes(attribute.String("location", errCtx.ErrorLocation))
	return errCtx, nil
}

// fillErrorContext builds an ErrorContext from a parsed mapping. The
// consulted paths are recorded verbatim, independent of the model's reply.
func fillErrorContext(m map[string]any, consulted []string) *triage.ErrorContext {
	return &triage.ErrorContext{
		ErrorLocation: stringField(m, "error_location", "Unknown"),
		RootCause:     stringField(m, "root_cause", "Unknown"),
		RelevantCode:  stringField(m, "relevant_code", "N/A"),
		Summary:       stringField(m, "summary", "No summary available"),
		RelevantFiles: consulted,
	}
}
