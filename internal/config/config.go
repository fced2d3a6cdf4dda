// Package config loads the vectorsyncd configuration: YAML file, then
// environment overrides, then per-section defaults.
package config

import (
	"fmt"

	"github.com/vantagekit/vectorsync/internal/chunking"
	"github.com/vantagekit/vectorsync/internal/embeddings"
	"github.com/vantagekit/vectorsync/internal/httpserver"
	"github.com/vantagekit/vectorsync/internal/logging"
	"github.com/vantagekit/vectorsync/internal/resilience"
	"github.com/vantagekit/vectorsync/internal/telemetry"
	"github.com/vantagekit/vectorsync/internal/usage"
	"github.com/vantagekit/vectorsync/internal/vectorstore"
)

// Config is the full vectorsyncd configuration.
type Config struct {
	Logging   logging.Config    `koanf:"logging"`
	Telemetry telemetry.Config  `koanf:"telemetry"`
	Server    httpserver.Config `koanf:"server"`

	Qdrant vectorstore.QdrantConfig `koanf:"qdrant"`
	Client vectorstore.ClientConfig `koanf:"client"`

	// StoreExecutor guards vector store calls; EmbeddingExecutor guards the
	// embedding provider. One executor per dependency keeps their circuit
	// breakers independent.
	StoreExecutor     resilience.Config `koanf:"store_executor"`
	EmbeddingExecutor resilience.Config `koanf:"embedding_executor"`

	Provider   embeddings.HTTPConfig    `koanf:"provider"`
	Embeddings embeddings.ServiceConfig `koanf:"embeddings"`

	Chunking chunking.Config `koanf:"chunking"`
	Usage    usage.Config    `koanf:"usage"`
}

// ApplyDefaults sets default values across all sections.
func (c *Config) ApplyDefaults() {
	c.Logging.ApplyDefaults()
	c.Telemetry.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Qdrant.ApplyDefaults()
	c.Client.ApplyDefaults()

	if c.StoreExecutor.Dependency == "" {
		c.StoreExecutor.Dependency = "qdrant"
	}
	if c.EmbeddingExecutor.Dependency == "" {
		c.EmbeddingExecutor.Dependency = "embeddings"
	}
	c.StoreExecutor.ApplyDefaults()
	c.EmbeddingExecutor.ApplyDefaults()

	c.Provider.ApplyDefaults()
	c.Embeddings.Cache.ApplyDefaults()
	c.Chunking.ApplyDefaults()
	c.Usage.ApplyDefaults()
}

// Validate validates every section.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		err  error
	}{
		{"logging", c.Logging.Validate()},
		{"telemetry", c.Telemetry.Validate()},
		{"server", c.Server.Validate()},
		{"qdrant", c.Qdrant.Validate()},
		{"store_executor", c.StoreExecutor.Validate()},
		{"embedding_executor", c.EmbeddingExecutor.Validate()},
		{"provider", c.Provider.Validate()},
		{"chunking", c.Chunking.Validate()},
		{"usage", c.Usage.Validate()},
	}
	for _, s := range sections {
		if s.err != nil {
			return fmt.Errorf("%s: %w", s.name, s.err)
		}
	}
	return nil
}

// Redacted returns a copy safe for startup logging: secrets are masked.
func (c Config) Redacted() Config {
	out := c
	if out.Qdrant.APIKey != "" {
		out.Qdrant.APIKey = "[REDACTED]"
	}
	if out.Provider.APIKey != "" {
		out.Provider.APIKey = "[REDACTED]"
	}
	return out
}
