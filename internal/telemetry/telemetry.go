// Package telemetry initializes the global OpenTelemetry providers.
//
// When disabled, the globals stay no-op and every tracer and meter in
// the process degrades gracefully. Exporter failures never crash the
// daemon.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// Config controls telemetry export.
type Config struct {
	// Enabled turns on OTLP export of traces and metrics.
	Enabled bool `koanf:"enabled"`
	// Endpoint is the OTLP collector address (host:port).
	Endpoint string `koanf:"endpoint"`
	// Protocol is grpc or http/protobuf.
	Protocol string `koanf:"protocol"`
	// Insecure disables transport security toward the collector.
	Insecure bool `koanf:"insecure"`
	// ServiceName identifies this process in traces and metrics.
	ServiceName string `koanf:"service_name"`
	// SamplingRate is the trace sampling ratio, 0 to 1.
	SamplingRate float64 `koanf:"sampling_rate"`
}

// DefaultConfig returns disabled telemetry with working export settings.
func DefaultConfig() Config {
	return Config{
		Endpoint:     "localhost:4317",
		Protocol:     "grpc",
		Insecure:     true,
		ServiceName:  "logheal",
		SamplingRate: 1.0,
	}
}

// Validate checks the export settings.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("telemetry endpoint is required when enabled")
	}
	if c.Protocol != "grpc" && c.Protocol != "http/protobuf" {
		return fmt.Errorf("unsupported telemetry protocol %q", c.Protocol)
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling rate out of range: %f", c.SamplingRate)
	}
	return nil
}

// Telemetry owns the SDK providers installed as the process globals.
type Telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	logger         *zap.Logger
}

// Init installs tracer and meter providers as the otel globals. With
// cfg.Enabled false it returns a no-op instance and leaves the globals
// untouched.
func Init(ctx context.Context, cfg Config, logger *zap.Logger) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Telemetry{logger: logger.Named("telemetry")}
	if !cfg.Enabled {
		return t, nil
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	tp, err := newTracerProvider(ctx, cfg, res)
	if err != nil {
		t.logger.Warn("trace export disabled", zap.Error(err))
	} else {
		t.tracerProvider = tp
		otel.SetTracerProvider(tp)
	}

	mp, err := newMeterProvider(ctx, cfg, res)
	if err != nil {
		t.logger.Warn("metric export disabled", zap.Error(err))
	} else {
		t.meterProvider = mp
		otel.SetMeterProvider(mp)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t.logger.Info("telemetry export enabled",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("protocol", cfg.Protocol),
	)
	return t, nil
}

// Shutdown flushes and stops the installed providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
