package chunking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/vantagekit/vectorsync/internal/vectorstore"
)

var (
	// ErrInvalidConfig indicates invalid chunking configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrChunkNotFound indicates a referenced chunk record that does not
	// exist in the store.
	ErrChunkNotFound = errors.New("chunk not found")
)

// ChunkStore is the subset of the vector client the chunker needs.
type ChunkStore interface {
	Upsert(ctx context.Context, namespace string, records []vectorstore.Record) error
	Fetch(ctx context.Context, namespace string, ids []string) (map[string]vectorstore.Record, error)
	Delete(ctx context.Context, namespace string, ids []string) error
}

// Config holds chunking configuration.
type Config struct {
	// Namespace is where chunk records live. Default: "documents"
	Namespace string `koanf:"namespace"`

	// SafetyThreshold is the serialized parent size above which fields get
	// extracted. Kept below the store ceiling so substituted parents always
	// fit. Default: 36000
	SafetyThreshold int `koanf:"safety_threshold"`

	// FieldThreshold is the per-field size above which a field is always
	// extracted from an oversized parent. Default: 30000
	FieldThreshold int `koanf:"field_threshold"`

	// PartSize is the maximum content bytes per chunk record. Fields larger
	// than this are stored across multiple part records behind one
	// reference. Default: 30000
	PartSize int `koanf:"part_size"`

	// MaxParts caps parts per field; beyond it the field is unchunkable.
	// Default: 32
	MaxParts int `koanf:"max_parts"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Namespace == "" {
		c.Namespace = "documents"
	}
	if c.SafetyThreshold == 0 {
		c.SafetyThreshold = 36_000
	}
	if c.FieldThreshold == 0 {
		c.FieldThreshold = 30_000
	}
	if c.PartSize == 0 {
		c.PartSize = 30_000
	}
	if c.MaxParts == 0 {
		c.MaxParts = 32
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.SafetyThreshold > vectorstore.MaxMetadataBytes {
		return fmt.Errorf("%w: safety threshold %d exceeds the store ceiling %d", ErrInvalidConfig, c.SafetyThreshold, vectorstore.MaxMetadataBytes)
	}
	if c.PartSize <= 0 || c.PartSize > c.SafetyThreshold {
		return fmt.Errorf("%w: part size must be within (0, %d]", ErrInvalidConfig, c.SafetyThreshold)
	}
	return nil
}

// Splitter extracts oversized fields into chunk records so the parent fits
// under the store's metadata ceiling.
type Splitter struct {
	config Config
	store  ChunkStore
	logger *zap.Logger
}

// NewSplitter creates a splitter writing chunks through store.
func NewSplitter(config Config, store ChunkStore, logger *zap.Logger) (*Splitter, error) {
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

	return &Splitter{config: config, store: store, logger: logger}, nil
}

// Split returns the parent's fields with oversized ones replaced by chunk
// references, persisting the extracted content as chunk records. Parents
// already under the safety threshold pass through untouched with no I/O.
//
// Fields are extracted largest first: every field over the per-field
// threshold, then more if the parent is still over the safety threshold.
// The returned fields always serialize under the store ceiling.
func (s *Splitter) Split(ctx context.Context, ownerID string, fields map[string]string) (map[string]FieldValue, error) {
	if ownerID == "" {
		return nil, &vectorstore.ValidationError{Field: "owner_id", Reason: "owner id is required"}
	}

	out := make(map[string]FieldValue, len(fields))
	for name, value := range fields {
		out[name] = Inline(value)
	}

	size := encodedSize(fields)
	if size <= s.config.SafetyThreshold {
		return out, nil
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return len(fields[names[i]]) > len(fields[names[j]])
	})

	var records []vectorstore.Record
	for _, name := range names {
		value := fields[name]
		if size <= s.config.SafetyThreshold && len(value) <= s.config.FieldThreshold {
			break
		}

		chunkID := ChunkID(ownerID, name)
		encodedRef := Reference(chunkID).Encode()
		// Extracting a field shorter than its own sentinel makes the
		// parent larger, not smaller.
		if len(value) <= len(encodedRef) {
			continue
		}

		chunks, err := s.chunkRecords(ownerID, name, chunkID, value)
		if err != nil {
			return nil, err
		}
		records = append(records, chunks...)
		out[name] = Reference(chunkID)
		// Recompute exactly: JSON escaping makes the encoded size differ
		// from raw byte arithmetic.
		size = encodedSize(EncodeFields(out))
	}

	if final := encodedSize(EncodeFields(out)); final > vectorstore.MaxMetadataBytes {
		return nil, &vectorstore.ValidationError{
			Reason: fmt.Sprintf("record serializes to %d bytes after chunking, limit is %d", final, vectorstore.MaxMetadataBytes),
		}
	}

	if len(records) > 0 {
		if err := s.store.Upsert(ctx, s.config.Namespace, records); err != nil {
			return nil, fmt.Errorf("writing chunk records: %w", err)
		}
		s.logger.Info("extracted oversized fields into chunks",
			zap.String("owner_id", ownerID),
			zap.Int("chunk_records", len(records)),
		)
	}

	return out, nil
}

// chunkRecords builds the part records for one field. Parts split on rune
// boundaries so each part survives JSON serialization; concatenation
// restores the original bytes exactly.
func (s *Splitter) chunkRecords(ownerID, fieldName, chunkID, content string) ([]vectorstore.Record, error) {
	parts := splitRunes(content, s.config.PartSize)
	if len(parts) > s.config.MaxParts {
		return nil, &vectorstore.ValidationError{
			Field:  fieldName,
			Reason: fmt.Sprintf("field of %d bytes needs %d chunk parts, limit is %d", len(content), len(parts), s.config.MaxParts),
		}
	}

	records := make([]vectorstore.Record, len(parts))
	for i, part := range parts {
		records[i] = vectorstore.Record{
			ID:     partID(chunkID, i),
			Values: placeholderVector(),
			Metadata: vectorstore.Metadata{
				"content":  part,
				"owner_id": ownerID,
				"field":    fieldName,
				"part":     i,
				"parts":    len(parts),
			},
			Namespace: s.config.Namespace,
		}
	}
	return records, nil
}

// DeleteChunks removes every chunk record for the given owner's fields.
// Missing chunks are not an error.
func (s *Splitter) DeleteChunks(ctx context.Context, ownerID string, fields map[string]FieldValue) error {
	ids := chunkPartIDs(fields, s.config.MaxParts)
	if len(ids) == 0 {
		return nil
	}
	if err := s.store.Delete(ctx, s.config.Namespace, ids); err != nil {
		return fmt.Errorf("deleting chunk records: %w", err)
	}
	return nil
}

// chunkPartIDs expands chunk references into every possible part id.
// Deleting ids that never existed is a no-op at the store.
func chunkPartIDs(fields map[string]FieldValue, maxParts int) []string {
	var ids []string
	for _, value := range fields {
		if !value.IsReference() {
			continue
		}
		for i := 0; i < maxParts; i++ {
			ids = append(ids, partID(value.ChunkID(), i))
		}
	}
	return ids
}

// placeholderVector returns a fixed unit vector. Chunk records are only
// ever fetched by id, never searched, but the store still requires a
// non-degenerate embedding of the full dimension.
func placeholderVector() []float32 {
	v := make([]float32, vectorstore.Dimension)
	v[0] = 1
	return v
}

// splitRunes cuts content into pieces of at most size bytes, never splitting
// a UTF-8 rune across pieces.
func splitRunes(content string, size int) []string {
	var parts []string
	for len(content) > 0 {
		if len(content) <= size {
			parts = append(parts, content)
			break
		}
		end := size
		for end > 0 && !utf8.RuneStart(content[end]) {
			end--
		}
		if end == 0 {
			end = size
		}
		parts = append(parts, content[:end])
		content = content[end:]
	}
	return parts
}

// encodedSize returns the JSON-serialized size of the field map in bytes.
func encodedSize(fields map[string]string) int {
	if len(fields) == 0 {
		return 0
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return 0
	}
	return len(b)
}
