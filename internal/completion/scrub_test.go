package completion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bolatahmett-invicti/log-heal/internal/redact"
)

type recordingClient struct {
	prompts []string
	reply   string
}

func (r *recordingClient) Complete(_ context.Context, prompt string, _ int) (string, error) {
	r.prompts = append(r.prompts, prompt)
	return r.reply, nil
}

func TestScrubbingClientRedactsPrompt(t *testing.T) {
	scrubber, err := redact.NewScrubber(redact.DefaultConfig())
	require.NoError(t, err)

	inner := &recordingClient{reply: "ok"}
	client := NewScrubbingClient(inner, scrubber, zap.NewNop())

	out, err := client.Complete(context.Background(), "dial error: postgres://app:s3cr3t@db:5432/orders", 100)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	require.Len(t, inner.prompts, 1)
	assert.NotContains(t, inner.prompts[0], "s3cr3t")
	assert.Contains(t, inner.prompts[0], redact.DefaultReplacement)
}

func TestScrubbingClientPassesCleanPrompt(t *testing.T) {
	scrubber, err := redact.NewScrubber(redact.DefaultConfig())
	require.NoError(t, err)

	inner := &recordingClient{reply: "ok"}
	client := NewScrubbingClient(inner, scrubber, zap.NewNop())

	prompt := "Analyze the following error log records"
	_, err = client.Complete(context.Background(), prompt, 100)
	require.NoError(t, err)
	require.Len(t, inner.prompts, 1)
	assert.Equal(t, prompt, inner.prompts[0])
}
