package agent

import (
	"context"
	"fmt"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bolatahmett-invicti/log-heal/internal/completion"
	"github.com/bolatahmett-invicti/log-heal/internal/index"
	"github.com/bolatahmett-invicti/log-heal/internal/triage"
)

const generatorMaxTokens = 4000

// CodeGenerator produces full replacement content for every file the
// solution targets, one completion call per file executed sequentially.
// Content source order per file: the preloaded map, then the retrieval
// index by base filename; a file found in neither is skipped with a
// logged warning.
type CodeGenerator struct {
	client completion.Client
	index  *index.Index // may be nil
	logger *zap.Logger
	tracer trace.Tracer
}

// NewCodeGenerator creates the generator stage agent. idx may be nil.
func NewCodeGenerator(client completion.Client, idx *index.Index, logger *zap.Logger) *CodeGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CodeGenerator{
		client: client,
		index:  idx,
		logger: logger.Named("code_generator"),
		tracer: otel.Tracer(instrumentationName),
	}
}

// Generate returns the fixed-file map for the solution's affected files.
// observer, when non-nil, is invoked once per fixed file in generation
// order; observer panics are recovered and never abort the pipeline.
func (g *CodeGenerator) Generate(ctx context.Context, solution *triage.Solution, preloaded map[string]string, observer triage.FileObserver) (triage.FixedFiles, error) {
	ctx, span := g.tracer.Start(ctx, "agent.generate_fix")
	defer span.End()
	span.SetAttributes(attribute.Int("affected_files", len(solution.AffectedFiles)))

	g.logger.Info("generating code changes", zap.Int("affected_files", len(solution.AffectedFiles)))

	fixed := triage.FixedFiles{}
	for _, file := range solution.AffectedFiles {
		g.logger.Info("fixing file", zap.String("file", file))

		original := preloaded[file]
		if original == "" && g.index != nil {
			if path, ok := g.index.Lookup(filepath.Base(file)); ok {
				original = g.index.Content(path)
				g.logger.Debug("file content resolved via index", zap.String("path", path))
			}
		}
		if original == "" {
			g.logger.Warn("file content not found, skipping", zap.String("file", file))
			continue
		}

		prompt := fmt.Sprintf(`Fix the following file:

File: %s
Change to make: %s

Overall fix: %s

Current code:
`+"```"+`
%s
`+"```"+`

Return the COMPLETE fixed code. Return only the code, no explanations.`,
			file, solution.CodeChanges[file], solution.Description, original)

		reply, err := g.client.Complete(ctx, prompt, generatorMaxTokens)
		if err != nil {
			return nil, err
		}

		content := stripCodeFences(reply)
		fixed[file] = content

		if observer != nil {
			g.notify(observer, filepath.Base(file), original, content)
		}
	}

	g.logger.Info("code generation complete", zap.Int("fixed_files", len(fixed)))
	span.SetAttributes(attribute.Int("fixed_files", len(fixed)))
	return fixed, nil
}

// notify delivers one before/after pair to the observer, containing any
// panic so a misbehaving consumer cannot abort the run.
func (g *CodeGenerator) notify(observer triage.FileObserver, filename, original, fixed string) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Warn("file observer panicked", zap.String("file", filename), zap.Any("panic", r))
		}
	}()
	observer(filename, original, fixed)
}
