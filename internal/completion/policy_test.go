package completion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyClient fails a fixed number of times before succeeding.
type flakyClient struct {
	failures int
	calls    int
	reply    string
	err      error
}

func (f *flakyClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		if f.err != nil {
			return "", f.err
		}
		return "", errors.New("transient failure")
	}
	return f.reply, nil
}

func fastPolicy() PolicyConfig {
	return PolicyConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		CacheEnabled:    false,
	}
}

func TestPolicyClient_RequiresInner(t *testing.T) {
	_, err := NewPolicyClient(nil, fastPolicy(), nil)
	require.Error(t, err)
}

func TestPolicyClient_PassesThroughSuccess(t *testing.T) {
	inner := &flakyClient{reply: "ok"}
	p, err := NewPolicyClient(inner, fastPolicy(), nil)
	require.NoError(t, err)

	reply, err := p.Complete(context.Background(), "prompt", 10)
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.Equal(t, 1, inner.calls)
}

func TestPolicyClient_RetriesTransientFailures(t *testing.T) {
	inner := &flakyClient{failures: 2, reply: "eventually"}
	p, err := NewPolicyClient(inner, fastPolicy(), nil)
	require.NoError(t, err)

	reply, err := p.Complete(context.Background(), "prompt", 10)
	require.NoError(t, err)
	assert.Equal(t, "eventually", reply)
	assert.Equal(t, 3, inner.calls)
}

func TestPolicyClient_ExhaustsAttempts(t *testing.T) {
	inner := &flakyClient{failures: 10}
	p, err := NewPolicyClient(inner, fastPolicy(), nil)
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), "prompt", 10)
	require.Error(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestPolicyClient_ContextCancellationIsNotRetried(t *testing.T) {
	inner := &flakyClient{failures: 10, err: context.Canceled}
	p, err := NewPolicyClient(inner, fastPolicy(), nil)
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), "prompt", 10)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.calls)
}

func TestPolicyClient_CachesReplies(t *testing.T) {
	inner := &flakyClient{reply: "cached"}
	cfg := fastPolicy()
	cfg.CacheEnabled = true
	cfg.CacheSize = 8
	cfg.CacheTTL = time.Minute
	p, err := NewPolicyClient(inner, cfg, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		reply, err := p.Complete(context.Background(), "same prompt", 10)
		require.NoError(t, err)
		assert.Equal(t, "cached", reply)
	}
	assert.Equal(t, 1, inner.calls)

	// A different token budget is a different cache entry.
	_, err = p.Complete(context.Background(), "same prompt", 20)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestPolicyClient_RateLimiterHonorsBurst(t *testing.T) {
	inner := &flakyClient{reply: "ok"}
	cfg := fastPolicy()
	cfg.RateLimitCalls = 2
	cfg.RateLimitPeriod = time.Hour
	p, err := NewPolicyClient(inner, cfg, nil)
	require.NoError(t, err)

	// Two calls fit in the burst; the third would block past the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	for i := 0; i < 2; i++ {
		_, err := p.Complete(ctx, "p", i)
		require.NoError(t, err)
	}
	_, err = p.Complete(ctx, "p", 99)
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCacheKey_DistinguishesPromptAndBudget(t *testing.T) {
	assert.Equal(t, cacheKey("a", 1), cacheKey("a", 1))
	assert.NotEqual(t, cacheKey("a", 1), cacheKey("a", 2))
	assert.NotEqual(t, cacheKey("a", 1), cacheKey("b", 1))
}
