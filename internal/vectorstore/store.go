package vectorstore

import "context"

// Store is the wire-level contract of the vector database. Implementations
// perform a single call with no retry; resilience is layered on by Client.
type Store interface {
	// Upsert writes records into a namespace. Records are keyed by id;
	// re-upserting an id overwrites the previous record.
	Upsert(ctx context.Context, namespace string, records []Record) error

	// Query returns the topK nearest records to vector within a namespace.
	Query(ctx context.Context, namespace string, vector []float32, opts QueryOptions) ([]Match, error)

	// Fetch returns records by id. Missing ids are simply absent from the
	// result; fetching only unknown ids is not an error.
	Fetch(ctx context.Context, namespace string, ids []string) (map[string]Record, error)

	// Delete removes records by id.
	Delete(ctx context.Context, namespace string, ids []string) error

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// Lister is an optional Store capability: listing record ids by metadata
// filter without a similarity query. Stores that lack a native list
// primitive do not implement it, and Client falls back to the zero-vector
// query workaround.
type Lister interface {
	// ListIDs returns up to limit record ids in the namespace matching filter.
	ListIDs(ctx context.Context, namespace string, filter *Filter, limit int) ([]string, error)
}

// Embedder generates fixed-dimension embeddings from text. Implemented by
// the embeddings service; defined here so the client does not depend on a
// concrete provider.
type Embedder interface {
	// GenerateEmbedding returns a Dimension-length vector for text.
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// GenerateBatch returns one Dimension-length vector per text.
	GenerateBatch(ctx context.Context, texts []string) ([][]float32, error)
}
