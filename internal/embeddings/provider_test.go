package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagekit/vectorsync/internal/resilience"
)

func TestHTTPProviderEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "BAAI/bge-base-en-v1.5", req.Model)

		vectors := make([][]float32, len(req.Inputs))
		for i := range vectors {
			vectors[i] = []float32{float32(i), 1, 2}
		}
		require.NoError(t, json.NewEncoder(w).Encode(vectors))
	}))
	defer server.Close()

	provider, err := NewHTTPProvider(HTTPConfig{BaseURL: server.URL, APIKey: "secret"})
	require.NoError(t, err)
	defer func() { _ = provider.Close() }()

	vectors, err := provider.Embed(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0, 1, 2}, vectors[0])
	assert.Equal(t, []float32{1, 1, 2}, vectors[1])
}

func TestHTTPProviderEmptyInput(t *testing.T) {
	provider, err := NewHTTPProvider(HTTPConfig{BaseURL: "http://localhost:1"})
	require.NoError(t, err)

	_, err = provider.Embed(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestHTTPConfigBaseURLDefault(t *testing.T) {
	config := HTTPConfig{}
	config.ApplyDefaults()
	assert.Equal(t, "http://localhost:8080", config.BaseURL)
}

func TestHTTPProviderStatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{name: "server error is transient", status: http.StatusInternalServerError, transient: true},
		{name: "rate limited is transient", status: http.StatusTooManyRequests, transient: true},
		{name: "bad request is permanent", status: http.StatusBadRequest, transient: false},
		{name: "unauthorized is permanent", status: http.StatusUnauthorized, transient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			provider, err := NewHTTPProvider(HTTPConfig{BaseURL: server.URL})
			require.NoError(t, err)

			_, err = provider.Embed(context.Background(), []string{"text"})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrEmbeddingFailed)
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
		})
	}
}

func TestHTTPProviderCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode([][]float32{{1}}))
	}))
	defer server.Close()

	provider, err := NewHTTPProvider(HTTPConfig{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = provider.Embed(context.Background(), []string{"one", "two"})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestHTTPConfigDefaults(t *testing.T) {
	config := HTTPConfig{BaseURL: "http://example.com"}
	config.ApplyDefaults()
	assert.Equal(t, "BAAI/bge-base-en-v1.5", config.Model)
	assert.Equal(t, 768, config.NativeDimension)
}
