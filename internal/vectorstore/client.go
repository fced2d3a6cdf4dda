package vectorstore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vantagekit/vectorsync/internal/resilience"
)

// ClientConfig holds configuration for the high-level client.
type ClientConfig struct {
	// UpsertBatchSize is the number of records per upsert call.
	// Default: 100
	UpsertBatchSize int `koanf:"upsert_batch_size"`

	// BatchParallelism is the number of concurrent batch groups.
	// Default: 3
	BatchParallelism int `koanf:"batch_parallelism"`

	// ListLimit caps the ids returned by the list-by-filter workaround.
	// Default: 10000
	ListLimit int `koanf:"list_limit"`

	// ProjectNamespace is the namespace project records live in.
	// Default: "projects"
	ProjectNamespace string `koanf:"project_namespace"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ClientConfig) ApplyDefaults() {
	if c.UpsertBatchSize <= 0 || c.UpsertBatchSize > 100 {
		c.UpsertBatchSize = 100
	}
	if c.BatchParallelism <= 0 {
		c.BatchParallelism = 3
	}
	if c.ListLimit <= 0 {
		c.ListLimit = 10000
	}
	if c.ProjectNamespace == "" {
		c.ProjectNamespace = "projects"
	}
}

// Item is a logical record to embed and persist in one step.
type Item struct {
	ID       string
	Text     string
	Metadata Metadata
}

// SearchOptions configures SearchSimilar.
type SearchOptions struct {
	Namespace     string
	TopK          int
	Filter        *Filter
	IncludeValues bool
}

// Client is the namespace-aware vector operations client. Every store call
// goes through the resilience executor; the client itself holds no retry
// logic.
type Client struct {
	store    Store
	embedder Embedder
	executor *resilience.Executor
	config   ClientConfig
	logger   *zap.Logger
}

// NewClient creates a Client. embedder may be nil if only raw vector
// operations are needed; SearchSimilar and UpsertWithEmbeddings then fail.
func NewClient(store Store, embedder Embedder, executor *resilience.Executor, config ClientConfig, logger *zap.Logger) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if executor == nil {
		return nil, fmt.Errorf("%w: executor is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	return &Client{
		store:    store,
		embedder: embedder,
		executor: executor,
		config:   config,
		logger:   logger,
	}, nil
}

// Query runs a similarity query in a namespace.
func (c *Client) Query(ctx context.Context, namespace string, vector []float32, opts QueryOptions) ([]Match, error) {
	if len(vector) != Dimension {
		return nil, &ValidationError{
			Field:  "vector",
			Reason: fmt.Sprintf("query vector has %d dimensions, store requires %d", len(vector), Dimension),
		}
	}
	if err := opts.Filter.Validate(); err != nil {
		return nil, err
	}

	var matches []Match
	err := c.executor.Execute(ctx, resilience.OpQuery, func(ctx context.Context) error {
		res, err := c.store.Query(ctx, namespace, vector, opts)
		if err != nil {
			return err
		}
		matches = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// Upsert validates and writes records in batches with bounded parallelism.
// Upserts are idempotent by id, so batches that committed before a failure
// are safe to leave in place.
func (c *Client) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("record %q: %w", rec.ID, err)
		}
	}

	var ops []func(context.Context) error
	for start := 0; start < len(records); start += c.config.UpsertBatchSize {
		end := min(start+c.config.UpsertBatchSize, len(records))
		batch := records[start:end]
		ops = append(ops, func(ctx context.Context) error {
			return c.store.Upsert(ctx, namespace, batch)
		})
	}

	return c.executor.ExecuteBatch(ctx, resilience.OpUpsert, ops, resilience.BatchOptions{
		Parallelism: c.config.BatchParallelism,
	})
}

// Delete removes records by id.
func (c *Client) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.executor.Execute(ctx, resilience.OpDelete, func(ctx context.Context) error {
		return c.store.Delete(ctx, namespace, ids)
	})
}

// Fetch returns records by id. Missing ids are absent from the result.
func (c *Client) Fetch(ctx context.Context, namespace string, ids []string) (map[string]Record, error) {
	if len(ids) == 0 {
		return map[string]Record{}, nil
	}

	var records map[string]Record
	err := c.executor.Execute(ctx, resilience.OpFetch, func(ctx context.Context) error {
		res, err := c.store.Fetch(ctx, namespace, ids)
		if err != nil {
			return err
		}
		records = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SearchSimilar embeds text and queries for its nearest records.
func (c *Client) SearchSimilar(ctx context.Context, text string, opts SearchOptions) ([]Match, error) {
	if c.embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", ErrInvalidConfig)
	}
	if text == "" {
		return nil, &ValidationError{Field: "text", Reason: "search text is required"}
	}

	vector, err := c.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding search text: %w", err)
	}

	return c.Query(ctx, opts.Namespace, vector, QueryOptions{
		TopK:            opts.TopK,
		Filter:          opts.Filter,
		IncludeMetadata: true,
		IncludeValues:   opts.IncludeValues,
	})
}

// UpsertWithEmbeddings embeds every item's text and upserts the resulting
// records, annotated with the source text and a last-modified timestamp.
func (c *Client) UpsertWithEmbeddings(ctx context.Context, namespace string, items []Item) error {
	if c.embedder == nil {
		return fmt.Errorf("%w: no embedder configured", ErrInvalidConfig)
	}
	if len(items) == 0 {
		return nil
	}

	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Text
	}

	vectors, err := c.embedder.GenerateBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %d items: %w", len(items), err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	records := make([]Record, len(items))
	for i, item := range items {
		metadata := make(Metadata, len(item.Metadata)+2)
		for k, v := range item.Metadata {
			metadata[k] = v
		}
		metadata["text"] = item.Text
		metadata["last_modified"] = now

		records[i] = Record{
			ID:        item.ID,
			Values:    vectors[i],
			Metadata:  metadata,
			Namespace: namespace,
		}
	}

	return c.Upsert(ctx, namespace, records)
}

// ListByFilter returns record ids in a namespace matching filter.
//
// When the store implements the Lister capability the native path is used.
// Otherwise the client falls back to the documented workaround: a query with
// a zero vector and a large topK, collecting ids from the matches. The
// workaround is bounded by ListLimit and does not guarantee completeness
// beyond it.
func (c *Client) ListByFilter(ctx context.Context, namespace string, filter *Filter, limit int) ([]string, error) {
	if limit <= 0 || limit > c.config.ListLimit {
		limit = c.config.ListLimit
	}

	if lister, ok := c.store.(Lister); ok {
		var ids []string
		err := c.executor.Execute(ctx, resilience.OpQuery, func(ctx context.Context) error {
			res, err := lister.ListIDs(ctx, namespace, filter, limit)
			if err != nil {
				return err
			}
			ids = res
			return nil
		})
		if err != nil {
			return nil, err
		}
		return ids, nil
	}

	// Workaround path: the store cannot list, so query with a zero vector.
	matches, err := c.Query(ctx, namespace, make([]float32, Dimension), QueryOptions{
		TopK:   limit,
		Filter: filter,
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// GetProjectVectors returns every record belonging to an owner in the
// project namespace.
func (c *Client) GetProjectVectors(ctx context.Context, ownerID string) ([]Record, error) {
	if ownerID == "" {
		return nil, &ValidationError{Field: "owner_id", Reason: "owner id is required"}
	}

	ids, err := c.ListByFilter(ctx, c.config.ProjectNamespace, Eq("owner_id", ownerID), 0)
	if err != nil {
		return nil, fmt.Errorf("listing project vectors for %s: %w", ownerID, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	fetched, err := c.Fetch(ctx, c.config.ProjectNamespace, ids)
	if err != nil {
		return nil, fmt.Errorf("fetching project vectors for %s: %w", ownerID, err)
	}

	records := make([]Record, 0, len(fetched))
	for _, id := range ids {
		if rec, ok := fetched[id]; ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// DeleteProjectVectors removes every record belonging to an owner in the
// project namespace and returns the number of ids deleted.
func (c *Client) DeleteProjectVectors(ctx context.Context, ownerID string) (int, error) {
	if ownerID == "" {
		return 0, &ValidationError{Field: "owner_id", Reason: "owner id is required"}
	}

	ids, err := c.ListByFilter(ctx, c.config.ProjectNamespace, Eq("owner_id", ownerID), 0)
	if err != nil {
		return 0, fmt.Errorf("listing project vectors for %s: %w", ownerID, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := c.Delete(ctx, c.config.ProjectNamespace, ids); err != nil {
		return 0, fmt.Errorf("deleting project vectors for %s: %w", ownerID, err)
	}

	c.logger.Info("deleted project vectors",
		zap.String("owner_id", ownerID),
		zap.Int("count", len(ids)),
	)
	return len(ids), nil
}

// HealthCheck issues a minimal store call and reports status with latency.
func (c *Client) HealthCheck(ctx context.Context) HealthStatus {
	start := time.Now()
	err := c.store.HealthCheck(ctx)
	latency := time.Since(start)

	recordHealthCheck(err == nil, latency)

	if err != nil {
		c.logger.Warn("vector store health check failed", zap.Error(err))
		return HealthStatus{Healthy: false, Error: err.Error()}
	}
	return HealthStatus{
		Healthy:   true,
		LatencyMS: float64(latency.Microseconds()) / 1000.0,
	}
}

// Metrics exposes the executor's operation metrics.
func (c *Client) Metrics() *resilience.Metrics {
	return c.executor.Metrics()
}
