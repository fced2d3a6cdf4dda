// Package telemetry sets up the OpenTelemetry tracer and meter providers
// that back the per-package instruments across vectorsync. When disabled,
// the otel globals stay no-op and instrumented code pays nothing.
package telemetry

import (
	"fmt"
	"time"
)

// Config holds telemetry configuration.
type Config struct {
	// Enabled turns OTLP export on. Off by default so deployments without
	// a collector run clean.
	Enabled bool `koanf:"enabled"`

	// Endpoint is the OTLP collector address (host:port).
	// Default: "localhost:4317"
	Endpoint string `koanf:"endpoint"`

	// Protocol selects the exporter transport: "grpc" or "http/protobuf".
	// Default: "grpc"
	Protocol string `koanf:"protocol"`

	// ServiceName identifies this service in traces and metrics.
	// Default: "vectorsyncd"
	ServiceName string `koanf:"service_name"`

	// ServiceVersion is attached to the service resource.
	ServiceVersion string `koanf:"service_version"`

	// Insecure disables TLS toward the collector.
	Insecure bool `koanf:"insecure"`

	// SampleRate is the trace sampling ratio in [0, 1]. Default: 1.0
	SampleRate float64 `koanf:"sample_rate"`

	// ExportInterval is the metric export period. Default: 15s
	ExportInterval time.Duration `koanf:"export_interval"`

	// ShutdownTimeout bounds provider flush on shutdown. Default: 5s
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4317"
	}
	if c.Protocol == "" {
		c.Protocol = "grpc"
	}
	if c.ServiceName == "" {
		c.ServiceName = "vectorsyncd"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.ExportInterval == 0 {
		c.ExportInterval = 15 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when telemetry is enabled")
	}
	if c.Protocol != "grpc" && c.Protocol != "http/protobuf" {
		return fmt.Errorf("invalid protocol %q: must be grpc or http/protobuf", c.Protocol)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be within [0, 1], got %f", c.SampleRate)
	}
	return nil
}
