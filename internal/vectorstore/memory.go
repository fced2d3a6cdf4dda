package vectorstore

import (
	"context"
	"math"
	"slices"
	"sync"
)

// MemoryStore is an in-memory Store used for local development and tests.
// Similarity is brute-force cosine. It intentionally does not implement the
// Lister capability, mirroring stores that lack a native list-by-filter
// primitive, so the client's zero-vector workaround is exercised against it.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]Record // namespace -> id -> record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]Record)}
}

// Upsert writes records into a namespace, overwriting by id.
func (s *MemoryStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.data[namespace]
	if !ok {
		ns = make(map[string]Record)
		s.data[namespace] = ns
	}
	for _, rec := range records {
		stored := rec
		stored.Namespace = namespace
		stored.Values = slices.Clone(rec.Values)
		ns[rec.ID] = stored
	}
	return nil
}

// Query returns the topK records by cosine similarity, after filtering.
func (s *MemoryStore) Query(ctx context.Context, namespace string, vector []float32, opts QueryOptions) ([]Match, error) {
	opts.ApplyDefaults()
	if err := opts.Filter.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []Match
	for _, rec := range s.data[namespace] {
		if !matchesFilter(rec.Metadata, opts.Filter) {
			continue
		}
		m := Match{ID: rec.ID, Score: cosineSimilarity(vector, rec.Values)}
		if opts.IncludeMetadata {
			m.Metadata = rec.Metadata
		}
		if opts.IncludeValues {
			m.Values = slices.Clone(rec.Values)
		}
		matches = append(matches, m)
	}

	slices.SortFunc(matches, func(a, b Match) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	if len(matches) > opts.TopK {
		matches = matches[:opts.TopK]
	}
	return matches, nil
}

// Fetch returns records by id.
func (s *MemoryStore) Fetch(ctx context.Context, namespace string, ids []string) (map[string]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]Record, len(ids))
	for _, id := range ids {
		if rec, ok := s.data[namespace][id]; ok {
			result[id] = rec
		}
	}
	return result, nil
}

// Delete removes records by id.
func (s *MemoryStore) Delete(ctx context.Context, namespace string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.data[namespace], id)
	}
	return nil
}

// HealthCheck always succeeds.
func (s *MemoryStore) HealthCheck(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of records in a namespace.
func (s *MemoryStore) Len(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[namespace])
}

// matchesFilter evaluates a filter against record metadata.
func matchesFilter(metadata Metadata, f *Filter) bool {
	if f == nil {
		return true
	}
	for _, c := range f.Conditions {
		value, present := metadata[c.Field]
		switch c.Op {
		case FilterEq:
			if !present || !scalarEqual(value, c.Value) {
				return false
			}
		case FilterNe:
			if present && scalarEqual(value, c.Value) {
				return false
			}
		case FilterIn:
			str, ok := value.(string)
			if !ok || !slices.Contains(c.Values, str) {
				return false
			}
		case FilterNin:
			if str, ok := value.(string); ok && slices.Contains(c.Values, str) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// scalarEqual compares metadata scalars, treating int and int64 as the same
// numeric domain.
func scalarEqual(a, b any) bool {
	ai, aok := asInt64(a)
	bi, bok := asInt64(b)
	if aok && bok {
		return ai == bi
	}
	return a == b
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths score zero.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
