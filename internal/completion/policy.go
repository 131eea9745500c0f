package completion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// PolicyConfig configures the external call policy around a Client.
type PolicyConfig struct {
	// MaxAttempts is the total number of attempts per call (default: 3).
	MaxAttempts int `koanf:"max_attempts"`

	// InitialInterval seeds the exponential backoff (default: 1s).
	InitialInterval time.Duration `koanf:"initial_interval"`

	// RateLimitCalls allows this many calls per RateLimitPeriod.
	// Zero disables rate limiting.
	RateLimitCalls int `koanf:"rate_limit_calls"`

	// RateLimitPeriod is the rate-limit window (default: 1m).
	RateLimitPeriod time.Duration `koanf:"rate_limit_period"`

	// CacheEnabled turns on the TTL'd reply cache.
	CacheEnabled bool `koanf:"cache_enabled"`

	// CacheSize is the maximum number of cached replies (default: 128).
	CacheSize int `koanf:"cache_size"`

	// CacheTTL is how long a cached reply stays valid (default: 1h).
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// DefaultPolicyConfig returns sensible defaults.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		RateLimitCalls:  10,
		RateLimitPeriod: time.Minute,
		CacheEnabled:    true,
		CacheSize:       128,
		CacheTTL:        time.Hour,
	}
}

// PolicyClient wraps a Client with exponential-backoff retry, token-bucket
// rate limiting, and an optional TTL'd LRU reply cache keyed by prompt
// hash. The inner client stays policy-free; context cancellation is
// honored and never retried.
type PolicyClient struct {
	inner   Client
	config  PolicyConfig
	limiter *rate.Limiter
	cache   *expirable.LRU[string, string]
	logger  *zap.Logger
}

// NewPolicyClient wraps inner with the given policy.
func NewPolicyClient(inner Client, cfg PolicyConfig, logger *zap.Logger) (*PolicyClient, error) {
	if inner == nil {
		return nil, errors.New("inner completion client is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultPolicyConfig().MaxAttempts
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultPolicyConfig().InitialInterval
	}
	if cfg.RateLimitPeriod <= 0 {
		cfg.RateLimitPeriod = DefaultPolicyConfig().RateLimitPeriod
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultPolicyConfig().CacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultPolicyConfig().CacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &PolicyClient{
		inner:  inner,
		config: cfg,
		logger: logger,
	}
	if cfg.RateLimitCalls > 0 {
		interval := cfg.RateLimitPeriod / time.Duration(cfg.RateLimitCalls)
		p.limiter = rate.NewLimiter(rate.Every(interval), cfg.RateLimitCalls)
	}
	if cfg.CacheEnabled {
		p.cache = expirable.NewLRU[string, string](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return p, nil
}

// Complete applies cache, rate limit, and retry around the inner call.
func (p *PolicyClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	key := cacheKey(prompt, maxTokens)
	if p.cache != nil {
		if reply, ok := p.cache.Get(key); ok {
			p.logger.Debug("completion cache hit", zap.String("key", key[:12]))
			return reply, nil
		}
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.config.InitialInterval

	attempt := 0
	reply, err := backoff.RetryWithData(func() (string, error) {
		attempt++
		out, err := p.inner.Complete(ctx, prompt, maxTokens)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return "", backoff.Permanent(err)
			}
			p.logger.Warn("completion attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", p.config.MaxAttempts),
				zap.Error(err),
			)
			return "", err
		}
		return out, nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.config.MaxAttempts-1)), ctx))
	if err != nil {
		return "", err
	}

	if p.cache != nil {
		p.cache.Add(key, reply)
	}
	return reply, nil
}

func cacheKey(prompt string, maxTokens int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d\x00%s", maxTokens, prompt)))
	return hex.EncodeToString(sum[:])
}
