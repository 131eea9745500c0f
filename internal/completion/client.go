// Package completion provides the shared text-completion capability used
// by every stage agent: one prompt in, one reply out. The OpenAIClient
// talks to an OpenAI-style chat-completions endpoint; PolicyClient layers
// the external call policy (retry, rate limiting, reply caching) on top.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Client sends one prompt and a token budget to a completion endpoint and
// returns the first completion's text.
type Client interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// TransportError reports a failed exchange with the completion endpoint:
// a non-success status or a response with no completion choices.
type TransportError struct {
	StatusCode int
	Message    string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("completion endpoint error (status %d): %s", e.StatusCode, e.Message)
}

// Config configures the OpenAI-style client.
type Config struct {
	// BaseURL is the chat-completions endpoint URL.
	BaseURL string `koanf:"base_url"`

	// Model is the model identifier sent with every request.
	Model string `koanf:"model"`

	// APIKey is the bearer credential, supplied out of band.
	APIKey string `koanf:"api_key"`

	// Temperature is the sampling temperature.
	Temperature float64 `koanf:"temperature"`

	// Timeout bounds one request round trip.
	Timeout time.Duration `koanf:"timeout"`
}

// DefaultConfig returns sensible defaults. The API key must still be set.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://api.openai.com/v1/chat/completions",
		Model:       "gpt-4o",
		Temperature: 0.7,
		Timeout:     120 * time.Second,
	}
}

// OpenAIClient implements Client against an OpenAI-style chat-completions
// endpoint. It performs no retry or rate limiting; that is the
// PolicyClient's concern.
type OpenAIClient struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIClient creates a client. The API key is required.
func NewOpenAIClient(cfg Config, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("completion API key is required (set LOGHEAL_OPENAI_API_KEY)")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIClient{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one user-role prompt and returns the first choice's text.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.config.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: c.config.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("encoding completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading completion response: %w", err)
	}

	var parsed chatResponse
	// Decode errors are surfaced through the checks below: a body that is
	// not the expected shape has no choices.
	_ = json.Unmarshal(respBody, &parsed)

	if resp.StatusCode != http.StatusOK {
		msg := parsed.Error.Message
		if msg == "" {
			msg = truncate(string(respBody), 200)
		}
		return "", &TransportError{StatusCode: resp.StatusCode, Message: msg}
	}
	if len(parsed.Choices) == 0 {
		return "", &TransportError{StatusCode: resp.StatusCode, Message: "response contained no completion choices"}
	}

	c.logger.Debug("completion received",
		zap.Int("prompt_len", len(prompt)),
		zap.Int("reply_len", len(parsed.Choices[0].Message.Content)),
	)
	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
