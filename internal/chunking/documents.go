package chunking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vantagekit/vectorsync/internal/vectorstore"
)

// fieldKeyPrefix namespaces document fields inside parent metadata so they
// cannot collide with bookkeeping keys.
const fieldKeyPrefix = "f_"

// DocumentStore persists multi-field documents as one searchable parent
// record plus chunk records for oversized fields, and reassembles them on
// read. It is the write/read path that keeps every stored record under the
// store's metadata ceiling.
type DocumentStore struct {
	config   Config
	splitter *Splitter
	resolver *Resolver
	store    ChunkStore
	embedder vectorstore.Embedder
	logger   *zap.Logger
}

// NewDocumentStore creates a document store. The embedder produces the
// parent's searchable vector.
func NewDocumentStore(config Config, store ChunkStore, embedder vectorstore.Embedder, logger *zap.Logger) (*DocumentStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	splitter, err := NewSplitter(config, store, logger)
	if err != nil {
		return nil, err
	}
	resolver, err := NewResolver(config, store, logger)
	if err != nil {
		return nil, err
	}

	return &DocumentStore{
		config:   splitter.config,
		splitter: splitter,
		resolver: resolver,
		store:    store,
		embedder: embedder,
		logger:   logger,
	}, nil
}

// parentNamespace is where parent document records live.
const parentNamespace = "projects"

// Save persists the document: oversized fields become chunk records, the
// rest rides in the parent's metadata, and the parent's vector embeds the
// full original content so similarity search sees everything.
//
// The splitter's ceiling check covers the bare field map; the parent record
// additionally carries the field key prefixes and bookkeeping entries, so
// the assembled metadata is checked again before the parent write. A parent
// that cannot fit rolls its chunk records back instead of orphaning them.
func (d *DocumentStore) Save(ctx context.Context, ownerID string, fields map[string]string) error {
	// Embed before any write so a provider failure leaves no partial state.
	vector, err := d.embedder.GenerateEmbedding(ctx, documentText(fields))
	if err != nil {
		return fmt.Errorf("embedding document: %w", err)
	}

	split, err := d.splitter.Split(ctx, ownerID, fields)
	if err != nil {
		return err
	}

	metadata := vectorstore.Metadata{
		"owner_id":      ownerID,
		"last_modified": time.Now().UTC().Format(time.RFC3339),
	}
	for name, value := range EncodeFields(split) {
		metadata[fieldKeyPrefix+name] = value
	}

	if size := metadata.SerializedSize(); size > vectorstore.MaxMetadataBytes {
		if derr := d.splitter.DeleteChunks(ctx, ownerID, split); derr != nil {
			d.logger.Warn("failed to remove chunk records of rejected document",
				zap.String("owner_id", ownerID),
				zap.Error(derr),
			)
		}
		return &vectorstore.ValidationError{
			Field:  "metadata",
			Reason: fmt.Sprintf("document serializes to %d bytes with record overhead, limit is %d", size, vectorstore.MaxMetadataBytes),
		}
	}

	record := vectorstore.Record{
		ID:        ownerID,
		Values:    vector,
		Metadata:  metadata,
		Namespace: parentNamespace,
	}
	if err := d.store.Upsert(ctx, parentNamespace, []vectorstore.Record{record}); err != nil {
		return fmt.Errorf("writing parent record: %w", err)
	}
	return nil
}

// Load fetches the document and resolves every chunk reference. The result
// matches what was saved byte for byte.
func (d *DocumentStore) Load(ctx context.Context, ownerID string) (map[string]string, error) {
	raw, err := d.rawFields(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return d.resolver.Resolve(ctx, raw)
}

// Delete removes the document and every chunk record it references.
func (d *DocumentStore) Delete(ctx context.Context, ownerID string) error {
	raw, err := d.rawFields(ctx, ownerID)
	if err != nil {
		return err
	}

	if err := d.splitter.DeleteChunks(ctx, ownerID, DecodeFields(raw)); err != nil {
		return err
	}
	if err := d.store.Delete(ctx, parentNamespace, []string{ownerID}); err != nil {
		return fmt.Errorf("deleting parent record: %w", err)
	}
	return nil
}

// rawFields fetches the parent record and strips its fields to wire form.
func (d *DocumentStore) rawFields(ctx context.Context, ownerID string) (map[string]string, error) {
	if ownerID == "" {
		return nil, &vectorstore.ValidationError{Field: "owner_id", Reason: "owner id is required"}
	}

	fetched, err := d.store.Fetch(ctx, parentNamespace, []string{ownerID})
	if err != nil {
		return nil, fmt.Errorf("fetching parent record: %w", err)
	}
	parent, ok := fetched[ownerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vectorstore.ErrNotFound, ownerID)
	}

	raw := make(map[string]string)
	for key, value := range parent.Metadata {
		name, found := strings.CutPrefix(key, fieldKeyPrefix)
		if !found {
			continue
		}
		if s, ok := value.(string); ok {
			raw[name] = s
		}
	}
	return raw, nil
}

// documentText joins the document's fields in stable order for embedding.
func documentText(fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(fields[name])
		b.WriteString("\n")
	}
	return b.String()
}
