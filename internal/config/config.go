// Package config provides configuration loading for logheal.
package config

import (
	"fmt"
	"time"

	"github.com/bolatahmett-invicti/log-heal/internal/completion"
	"github.com/bolatahmett-invicti/log-heal/internal/elk"
	"github.com/bolatahmett-invicti/log-heal/internal/logging"
	"github.com/bolatahmett-invicti/log-heal/internal/redact"
	"github.com/bolatahmett-invicti/log-heal/internal/telemetry"
	"github.com/bolatahmett-invicti/log-heal/internal/vcs"
)

// Config is the full logheal configuration.
type Config struct {
	App       AppConfig               `koanf:"app"`
	Server    ServerConfig            `koanf:"server"`
	Logging   logging.Config          `koanf:"logging"`
	OpenAI    completion.Config       `koanf:"openai"`
	Policy    completion.PolicyConfig `koanf:"policy"`
	Elk       elk.Config              `koanf:"elk"`
	Git       vcs.Config              `koanf:"git"`
	Index     IndexConfig             `koanf:"index"`
	Redact    redact.Config           `koanf:"redact"`
	Telemetry telemetry.Config        `koanf:"telemetry"`
}

// AppConfig holds pipeline-level settings.
type AppConfig struct {
	// CodebasePath is the root of the clone that is indexed and fixed.
	CodebasePath string `koanf:"codebase_path"`
	// LogWindow is how far back error logs are fetched.
	LogWindow time.Duration `koanf:"log_window"`
	// LogLimit caps the number of records fetched per run.
	LogLimit int `koanf:"log_limit"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	// Port is the HTTP listen port.
	Port int `koanf:"port"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// IndexConfig controls codebase indexing.
type IndexConfig struct {
	// Extensions lists the file extensions that are indexed. Empty uses
	// the built-in set.
	Extensions []string `koanf:"extensions"`
	// MaxRelevantFiles caps retrieval results per error.
	MaxRelevantFiles int `koanf:"max_relevant_files"`
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.App.CodebasePath == "" {
		return fmt.Errorf("app.codebase_path is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.App.LogLimit < 0 {
		return fmt.Errorf("app.log_limit must not be negative")
	}
	if c.Index.MaxRelevantFiles < 0 {
		return fmt.Errorf("index.max_relevant_files must not be negative")
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	return nil
}

// applyDefaults fills unset fields with working defaults.
func applyDefaults(cfg *Config) {
	if cfg.App.CodebasePath == "" {
		cfg.App.CodebasePath = "."
	}
	if cfg.App.LogWindow == 0 {
		cfg.App.LogWindow = 15 * time.Minute
	}
	if cfg.App.LogLimit == 0 {
		cfg.App.LogLimit = 50
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	defOpenAI := completion.DefaultConfig()
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = defOpenAI.BaseURL
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = defOpenAI.Model
	}
	if cfg.OpenAI.Temperature == 0 {
		cfg.OpenAI.Temperature = defOpenAI.Temperature
	}
	if cfg.OpenAI.Timeout == 0 {
		cfg.OpenAI.Timeout = defOpenAI.Timeout
	}

	defPolicy := completion.DefaultPolicyConfig()
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy.MaxAttempts = defPolicy.MaxAttempts
	}
	if cfg.Policy.InitialInterval == 0 {
		cfg.Policy.InitialInterval = defPolicy.InitialInterval
	}
	if cfg.Policy.RateLimitCalls == 0 {
		cfg.Policy.RateLimitCalls = defPolicy.RateLimitCalls
	}
	if cfg.Policy.RateLimitPeriod == 0 {
		cfg.Policy.RateLimitPeriod = defPolicy.RateLimitPeriod
	}
	if cfg.Policy.CacheSize == 0 {
		cfg.Policy.CacheSize = defPolicy.CacheSize
	}
	if cfg.Policy.CacheTTL == 0 {
		cfg.Policy.CacheTTL = defPolicy.CacheTTL
	}

	defElk := elk.DefaultConfig()
	if cfg.Elk.Index == "" {
		cfg.Elk.Index = defElk.Index
	}
	if cfg.Elk.LevelField == "" {
		cfg.Elk.LevelField = defElk.LevelField
	}
	if cfg.Elk.TimeField == "" {
		cfg.Elk.TimeField = defElk.TimeField
	}

	if cfg.Redact.Replacement == "" {
		cfg.Redact.Replacement = redact.DefaultReplacement
	}

	defGit := vcs.DefaultConfig()
	if cfg.Git.RepoPath == "" {
		cfg.Git.RepoPath = cfg.App.CodebasePath
	}
	if cfg.Git.BranchPrefix == "" {
		cfg.Git.BranchPrefix = defGit.BranchPrefix
	}

	if cfg.Index.MaxRelevantFiles == 0 {
		cfg.Index.MaxRelevantFiles = 10
	}

	defTel := telemetry.DefaultConfig()
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = defTel.Endpoint
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = defTel.Protocol
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = defTel.ServiceName
	}
	if cfg.Telemetry.SamplingRate == 0 {
		cfg.Telemetry.SamplingRate = defTel.SamplingRate
	}
}
