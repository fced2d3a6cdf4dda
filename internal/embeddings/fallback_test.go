package embeddings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagekit/vectorsync/internal/vectorstore"
)

func TestFallbackEmbeddingDeterministic(t *testing.T) {
	a := FallbackEmbedding("some document text")
	b := FallbackEmbedding("some document text")
	assert.Equal(t, a, b)
}

func TestFallbackEmbeddingVariesByText(t *testing.T) {
	a := FallbackEmbedding("first")
	b := FallbackEmbedding("second")
	assert.NotEqual(t, a, b)
}

func TestFallbackEmbeddingUnitNorm(t *testing.T) {
	for _, text := range []string{"x", "hello world", "a much longer piece of text to embed"} {
		vector := FallbackEmbedding(text)
		require.Len(t, vector, vectorstore.Dimension)

		var sum float64
		for _, x := range vector {
			sum += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, sum, 1e-4, "text %q", text)
	}
}

func TestNormalizeDimension(t *testing.T) {
	tests := []struct {
		name  string
		input int
	}{
		{name: "exact", input: vectorstore.Dimension},
		{name: "shorter is padded", input: 768},
		{name: "longer is truncated", input: vectorstore.Dimension + 512},
		{name: "empty", input: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := make([]float32, tt.input)
			for i := range input {
				input[i] = float32(i + 1)
			}

			got := NormalizeDimension(input)
			require.Len(t, got, vectorstore.Dimension)

			// Shared prefix is preserved.
			for i := 0; i < min(tt.input, vectorstore.Dimension); i++ {
				require.Equal(t, float32(i+1), got[i])
			}
			// Padding is zero.
			for i := tt.input; i < vectorstore.Dimension; i++ {
				require.Equal(t, float32(0), got[i])
			}
		})
	}
}
