package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestConfigDefaults(t *testing.T) {
	config := Config{}
	config.ApplyDefaults()
	assert.Equal(t, "info", config.Level)
	assert.Equal(t, "json", config.Format)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "valid json", config: Config{Level: "debug", Format: "json"}},
		{name: "valid console", config: Config{Level: "warn", Format: "console"}},
		{name: "bad level", config: Config{Level: "loud", Format: "json"}, wantErr: true},
		{name: "bad format", config: Config{Level: "info", Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew(t *testing.T) {
	logger, err := New(Config{Level: "debug", Format: "console"})
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = New(Config{Level: "nope"})
	assert.Error(t, err)
}
