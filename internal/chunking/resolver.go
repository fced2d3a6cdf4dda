package chunking

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/vantagekit/vectorsync/internal/vectorstore"
)

// Resolver substitutes chunk references with their stored content on read.
// Resolution is idempotent: fields with no references pass through with no
// I/O, and the sentinel never survives past a successful Resolve.
type Resolver struct {
	config Config
	store  ChunkStore
	logger *zap.Logger
}

// NewResolver creates a resolver reading chunks from store.
func NewResolver(config Config, store ChunkStore, logger *zap.Logger) (*Resolver, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: store required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Resolver{config: config, store: store, logger: logger}, nil
}

// Resolve parses wire-form fields and replaces every chunk reference with
// the referenced content, reassembled from its part records in one batched
// fetch per round.
func (r *Resolver) Resolve(ctx context.Context, raw map[string]string) (map[string]string, error) {
	return r.ResolveFields(ctx, DecodeFields(raw))
}

// ResolveFields replaces chunk references with their stored content.
func (r *Resolver) ResolveFields(ctx context.Context, fields map[string]FieldValue) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	var refs []string
	for name, value := range fields {
		if value.IsReference() {
			refs = append(refs, value.ChunkID())
			continue
		}
		out[name] = value.Content()
	}
	if len(refs) == 0 {
		return out, nil
	}

	// First round fetches the base part of every referenced chunk; the base
	// part carries the part count, so the remaining parts go in one second
	// round.
	base, err := r.store.Fetch(ctx, r.config.Namespace, refs)
	if err != nil {
		return nil, fmt.Errorf("fetching chunks: %w", err)
	}

	var restIDs []string
	counts := make(map[string]int, len(refs))
	for _, chunkID := range refs {
		record, ok := base[chunkID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrChunkNotFound, chunkID)
		}
		parts := partCount(record.Metadata)
		counts[chunkID] = parts
		for i := 1; i < parts; i++ {
			restIDs = append(restIDs, partID(chunkID, i))
		}
	}

	rest := map[string]vectorstore.Record{}
	if len(restIDs) > 0 {
		rest, err = r.store.Fetch(ctx, r.config.Namespace, restIDs)
		if err != nil {
			return nil, fmt.Errorf("fetching chunk parts: %w", err)
		}
	}

	for name, value := range fields {
		if !value.IsReference() {
			continue
		}
		chunkID := value.ChunkID()
		content, err := assemble(chunkID, counts[chunkID], base, rest)
		if err != nil {
			return nil, err
		}
		out[name] = content
	}

	r.logger.Debug("resolved chunk references",
		zap.Int("references", len(refs)),
		zap.Int("part_records", len(restIDs)+len(refs)),
	)
	return out, nil
}

// ListChunkIDs returns the chunk part ids referenced by wire-form fields,
// in deterministic order. Used when cascading a parent delete.
func ListChunkIDs(raw map[string]string) []string {
	var ids []string
	for _, value := range raw {
		parsed := ParseFieldValue(value)
		if parsed.IsReference() {
			ids = append(ids, parsed.ChunkID())
		}
	}
	sort.Strings(ids)
	return ids
}

// assemble concatenates the parts of one chunk in order.
func assemble(chunkID string, parts int, base, rest map[string]vectorstore.Record) (string, error) {
	var b strings.Builder
	for i := 0; i < parts; i++ {
		id := partID(chunkID, i)
		record, ok := base[id]
		if !ok {
			record, ok = rest[id]
		}
		if !ok {
			return "", fmt.Errorf("%w: part %d of %s", ErrChunkNotFound, i, chunkID)
		}
		content, ok := record.Metadata["content"].(string)
		if !ok {
			return "", fmt.Errorf("%w: part %d of %s has no content", ErrChunkNotFound, i, chunkID)
		}
		b.WriteString(content)
	}
	return b.String(), nil
}

// partCount reads the part count from chunk metadata. Single-part chunks
// written without a count still resolve.
func partCount(m vectorstore.Metadata) int {
	switch v := m["parts"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 1
	}
}
