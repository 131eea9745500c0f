package completion

import (
	"context"

	"go.uber.org/zap"

	"github.com/bolatahmett-invicti/log-heal/internal/redact"
)

// ScrubbingClient redacts secrets from prompts before delegating to
// the wrapped client. Log excerpts and source snippets can carry
// credentials; this keeps them out of requests to the completion API.
type ScrubbingClient struct {
	inner    Client
	scrubber *redact.Scrubber
	logger   *zap.Logger
}

// NewScrubbingClient wraps inner with prompt redaction.
func NewScrubbingClient(inner Client, scrubber *redact.Scrubber, logger *zap.Logger) *ScrubbingClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScrubbingClient{
		inner:    inner,
		scrubber: scrubber,
		logger:   logger.Named("scrub"),
	}
}

// Complete scrubs prompt and forwards the result to the inner client.
func (s *ScrubbingClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	scrubbed, findings := s.scrubber.Scrub(prompt)
	if len(findings) > 0 {
		rules := make([]string, 0, len(findings))
		for _, f := range findings {
			rules = append(rules, f.RuleID)
		}
		s.logger.Warn("redacted secrets from prompt",
			zap.Int("findings", len(findings)),
			zap.Strings("rules", rules),
		)
	}
	return s.inner.Complete(ctx, scrubbed, maxTokens)
}
