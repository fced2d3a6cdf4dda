package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vantagekit/vectorsync/internal/resilience"
	"github.com/vantagekit/vectorsync/internal/vectorstore"
)

// embedBatchSize is the number of texts sent to the provider per request.
const embedBatchSize = 10

// ServiceConfig holds configuration for the embedding service.
type ServiceConfig struct {
	// Cache configures the embedding cache.
	Cache CacheConfig `koanf:"cache"`

	// DisableFallback turns off the deterministic fallback, so exhausted
	// provider calls surface their error instead of degrading silently.
	DisableFallback bool `koanf:"disable_fallback"`
}

// Service generates embeddings with caching, retries through the shared
// executor, and a deterministic fallback once the provider path is
// exhausted. Fallback vectors are never cached so the provider is retried
// on the next request for the same text.
type Service struct {
	config   ServiceConfig
	provider Provider
	cache    *Cache
	executor *resilience.Executor
	logger   *zap.Logger
	metrics  *serviceMetrics
}

var _ vectorstore.Embedder = (*Service)(nil)

// NewService creates an embedding service.
func NewService(config ServiceConfig, provider Provider, executor *resilience.Executor, logger *zap.Logger) (*Service, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: provider required", ErrInvalidConfig)
	}
	if executor == nil {
		return nil, fmt.Errorf("%w: executor required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config:   config,
		provider: provider,
		cache:    NewCache(config.Cache),
		executor: executor,
		logger:   logger,
		metrics:  newServiceMetrics(logger),
	}, nil
}

// GenerateEmbedding returns a store-dimension vector for text. The cache is
// consulted first; on a miss the provider is called through the executor,
// and if that path is exhausted the deterministic fallback is used.
func (s *Service) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	start := time.Now()

	if vector := s.cache.Get(text); vector != nil {
		s.metrics.recordHits(ctx, 1)
		s.metrics.recordDuration(ctx, "cache", time.Since(start))
		return vector, nil
	}
	s.metrics.recordMisses(ctx, 1)

	var vector []float32
	err := s.executor.Execute(ctx, resilience.OpEmbedding, func(ctx context.Context) error {
		raw, embedErr := s.provider.Embed(ctx, []string{text})
		if embedErr != nil {
			return embedErr
		}
		if len(raw) != 1 {
			return fmt.Errorf("%w: provider returned %d embeddings for 1 text", ErrEmbeddingFailed, len(raw))
		}
		vector = NormalizeDimension(raw[0])
		return nil
	})
	if err != nil {
		if !s.fallbackEligible(err) {
			s.metrics.recordError(ctx)
			return nil, fmt.Errorf("generating embedding: %w", err)
		}
		s.logger.Warn("embedding provider exhausted, using deterministic fallback",
			zap.Int("text_length", len(text)),
			zap.Error(err),
		)
		s.metrics.recordFallbacks(ctx, 1)
		s.metrics.recordDuration(ctx, "fallback", time.Since(start))
		return FallbackEmbedding(text), nil
	}

	s.cache.Put(text, vector)
	s.metrics.recordDuration(ctx, "provider", time.Since(start))
	return vector, nil
}

// GenerateBatch returns one store-dimension vector per text, in input order.
// Cached texts are served directly; the rest go to the provider in
// sub-batches through the executor. If the provider path is exhausted, every
// text still missing a vector gets the deterministic fallback.
func (s *Service) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("%w: text %d is empty", ErrEmptyInput, i)
		}
	}

	start := time.Now()
	s.metrics.recordBatch(ctx, len(texts))

	results := make([][]float32, len(texts))
	var missing []int
	for i, text := range texts {
		if vector := s.cache.Get(text); vector != nil {
			results[i] = vector
			continue
		}
		missing = append(missing, i)
	}
	s.metrics.recordHits(ctx, int64(len(texts)-len(missing)))
	s.metrics.recordMisses(ctx, int64(len(missing)))

	if len(missing) == 0 {
		s.metrics.recordDuration(ctx, "cache", time.Since(start))
		return results, nil
	}

	// Each sub-batch writes a disjoint set of result slots, so no locking
	// is needed across the concurrent provider calls.
	var ops []func(context.Context) error
	for _, group := range partitionInts(missing, embedBatchSize) {
		ops = append(ops, func(ctx context.Context) error {
			batch := make([]string, len(group))
			for j, idx := range group {
				batch[j] = texts[idx]
			}
			raw, err := s.provider.Embed(ctx, batch)
			if err != nil {
				return err
			}
			if len(raw) != len(batch) {
				return fmt.Errorf("%w: provider returned %d embeddings for %d texts", ErrEmbeddingFailed, len(raw), len(batch))
			}
			for j, idx := range group {
				vector := NormalizeDimension(raw[j])
				results[idx] = vector
				s.cache.Put(texts[idx], vector)
			}
			return nil
		})
	}

	err := s.executor.ExecuteBatch(ctx, resilience.OpEmbedding, ops, resilience.BatchOptions{
		BatchSize:   1,
		Parallelism: 3,
	})
	if err != nil {
		if !s.fallbackEligible(err) {
			s.metrics.recordError(ctx)
			return nil, fmt.Errorf("generating batch embeddings: %w", err)
		}

		var fallbacks int64
		for _, idx := range missing {
			if results[idx] == nil {
				results[idx] = FallbackEmbedding(texts[idx])
				fallbacks++
			}
		}
		s.logger.Warn("embedding provider exhausted during batch, using deterministic fallback",
			zap.Int("texts", len(texts)),
			zap.Int64("fallbacks", fallbacks),
			zap.Error(err),
		)
		s.metrics.recordFallbacks(ctx, fallbacks)
		s.metrics.recordDuration(ctx, "fallback", time.Since(start))
		return results, nil
	}

	s.metrics.recordDuration(ctx, "provider", time.Since(start))
	return results, nil
}

// fallbackEligible reports whether the fallback may stand in for err.
// Only exhausted retries and an open circuit qualify; validation errors and
// caller cancellation must surface.
func (s *Service) fallbackEligible(err error) bool {
	if s.config.DisableFallback {
		return false
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return true
	}
	var perr *resilience.PermanentError
	return errors.As(err, &perr)
}

// CacheLen returns the number of cached embeddings.
func (s *Service) CacheLen() int {
	return s.cache.Len()
}

// Close releases the provider.
func (s *Service) Close() error {
	return s.provider.Close()
}

// partitionInts splits indices into groups of at most size.
func partitionInts(indices []int, size int) [][]int {
	var groups [][]int
	for start := 0; start < len(indices); start += size {
		end := min(start+size, len(indices))
		groups = append(groups, indices[start:end])
	}
	return groups
}
