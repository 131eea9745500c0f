package elk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"
)

// Source is any provider of error-level log records.
type Source interface {
	// FetchErrorLogs returns ERROR records observed within the trailing
	// window, newest first, capped at limit.
	FetchErrorLogs(ctx context.Context, window time.Duration, limit int) ([]map[string]any, error)
}

// Config holds Elasticsearch connection settings.
type Config struct {
	// Addresses lists cluster node URLs. Empty selects the mock source.
	Addresses []string `koanf:"addresses"`
	Username  string   `koanf:"username"`
	Password  string   `koanf:"password"`
	// Index is the index or data stream queried for log records.
	Index string `koanf:"index"`
	// LevelField and TimeField name the severity and timestamp fields.
	LevelField string `koanf:"level_field"`
	TimeField  string `koanf:"time_field"`
}

// DefaultConfig returns settings for a mock-backed source reading the
// conventional logstash field names.
func DefaultConfig() Config {
	return Config{
		Index:      "logs-*",
		LevelField: "level",
		TimeField:  "@timestamp",
	}
}

// New returns a Source for cfg: an Elasticsearch connector when
// addresses are configured, the mock source otherwise.
func New(cfg Config, logger *zap.Logger) (Source, error) {
	if len(cfg.Addresses) == 0 {
		if logger != nil {
			logger.Info("no elasticsearch addresses configured, using mock log source")
		}
		return NewMockSource(), nil
	}
	return NewConnector(cfg, logger)
}

// Connector reads error logs from an Elasticsearch cluster.
type Connector struct {
	cfg    Config
	client *elasticsearch.Client
	logger *zap.Logger
}

// NewConnector dials the cluster described by cfg.
func NewConnector(cfg Config, logger *zap.Logger) (*Connector, error) {
	if cfg.Index == "" {
		return nil, fmt.Errorf("elk: index is required")
	}
	if cfg.LevelField == "" {
		cfg.LevelField = "level"
	}
	if cfg.TimeField == "" {
		cfg.TimeField = "@timestamp"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("elk: create client: %w", err)
	}
	return &Connector{cfg: cfg, client: client, logger: logger.Named("elk")}, nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// FetchErrorLogs queries the configured index for ERROR documents inside
// the trailing window.
func (c *Connector) FetchErrorLogs(ctx context.Context, window time.Duration, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 50
	}
	query := map[string]any{
		"size": limit,
		"sort": []map[string]any{
			{c.cfg.TimeField: map[string]any{"order": "desc"}},
		},
		"query": map[string]any{
			"bool": map[string]any{
				"must": []map[string]any{
					{"match_phrase": map[string]any{c.cfg.LevelField: "ERROR"}},
					{"range": map[string]any{
						c.cfg.TimeField: map[string]any{
							"gte": fmt.Sprintf("now-%ds", int(window.Seconds())),
						},
					}},
				},
			},
		},
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("elk: marshal query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{c.cfg.Index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, fmt.Errorf("elk: search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("elk: search failed: %s: %s", res.Status(), msg)
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("elk: decode response: %w", err)
	}

	records := make([]map[string]any, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		records = append(records, hit.Source)
	}
	c.logger.Info("fetched error logs",
		zap.Int("count", len(records)),
		zap.Duration("window", window))
	return records, nil
}
