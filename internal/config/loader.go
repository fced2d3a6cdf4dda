package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "VECTORSYNC_"

// maxConfigFileSize rejects runaway config files.
const maxConfigFileSize = 1 << 20

// DefaultPath returns the default config file location,
// ~/.config/vectorsyncd/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "vectorsyncd", "config.yaml"), nil
}

// Load reads configuration with precedence environment > YAML file >
// defaults. A missing file is not an error; the path argument of "" means
// the default location.
//
// Environment variables map section-first:
//
//	VECTORSYNC_QDRANT_HOST        -> qdrant.host
//	VECTORSYNC_SERVER_PORT        -> server.port
//	VECTORSYNC_USAGE_BURST_WINDOW -> usage.burst_window
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	if info, err := os.Stat(path); err == nil {
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file %s is %d bytes, limit is %d", path, info.Size(), maxConfigFileSize)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// envSections are the known section names, multi-word first so prefix
// matching picks the longest.
var envSections = []string{
	"store_executor",
	"embedding_executor",
	"logging",
	"telemetry",
	"server",
	"qdrant",
	"client",
	"provider",
	"embeddings",
	"chunking",
	"usage",
}

// envTransform maps VECTORSYNC_SECTION_FIELD_NAME to section.field_name.
// The section is matched against the known section names so underscores
// inside both section and field survive.
func envTransform(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range envSections {
		if strings.HasPrefix(lower, section+"_") {
			return section + "." + strings.TrimPrefix(lower, section+"_")
		}
	}
	return strings.Replace(lower, "_", ".", 1)
}
