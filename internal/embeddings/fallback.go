package embeddings

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/vantagekit/vectorsync/internal/vectorstore"
)

// FallbackEmbedding produces a deterministic pseudo-embedding from a hash of
// the text. It performs no I/O and always returns a unit-normalized vector
// of the store dimension.
//
// This trades semantic quality for availability: it is used only after the
// provider path has exhausted its retries, so that indexing can proceed even
// while the embedding service is down.
func FallbackEmbedding(text string) []float32 {
	vector := make([]float32, vectorstore.Dimension)

	// Derive the vector from a chain of hashes so every position depends on
	// the full input text.
	var buf [8]byte
	h := xxhash.Sum64String(text)
	for i := range vector {
		binary.LittleEndian.PutUint64(buf[:], h)
		h = xxhash.Sum64(buf[:])
		// Map the hash into [-1, 1).
		vector[i] = float32(int64(h)) / math.MaxInt64
	}

	normalize(vector)
	return vector
}

// normalize scales the vector to unit length in place.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}

// NormalizeDimension pads with zeros or truncates so the vector has exactly
// the store dimension.
func NormalizeDimension(vector []float32) []float32 {
	switch {
	case len(vector) == vectorstore.Dimension:
		return vector
	case len(vector) > vectorstore.Dimension:
		return vector[:vectorstore.Dimension]
	default:
		padded := make([]float32, vectorstore.Dimension)
		copy(padded, vector)
		return padded
	}
}
