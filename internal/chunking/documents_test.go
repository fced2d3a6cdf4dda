package chunking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vantagekit/vectorsync/internal/vectorstore"
)

type stubEmbedder struct {
	calls int
}

func (s *stubEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	v := make([]float32, vectorstore.Dimension)
	v[len(text)%vectorstore.Dimension] = 1
	return v, nil
}

func (s *stubEmbedder) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, _ := s.GenerateEmbedding(ctx, text)
		out[i] = vec
	}
	return out, nil
}

func newTestDocumentStore(t *testing.T) (*DocumentStore, *vectorstore.MemoryStore) {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	docs, err := NewDocumentStore(Config{}, store, &stubEmbedder{}, zap.NewNop())
	require.NoError(t, err)
	return docs, store
}

func TestDocumentStoreRoundTrip(t *testing.T) {
	docs, store := newTestDocumentStore(t)
	ctx := context.Background()

	requirements := strings.Repeat("the loader shall resume from the last offset. ", 1200)
	require.Greater(t, len(requirements), 40_000)

	fields := map[string]string{
		"name":         "ingest pipeline",
		"summary":      "streams documents into the vector store",
		"requirements": requirements,
	}

	require.NoError(t, docs.Save(ctx, "p1", fields))

	// Parent record stays under the metadata ceiling.
	fetched, err := store.Fetch(ctx, parentNamespace, []string{"p1"})
	require.NoError(t, err)
	parent := fetched["p1"]
	assert.LessOrEqual(t, parent.Metadata.SerializedSize(), vectorstore.MaxMetadataBytes)
	assert.Equal(t, "p1", parent.Metadata["owner_id"])

	loaded, err := docs.Load(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, fields, loaded)
}

func TestDocumentStoreSmallDocumentWritesNoChunks(t *testing.T) {
	docs, store := newTestDocumentStore(t)
	ctx := context.Background()

	fields := map[string]string{"name": "tiny", "summary": "fits inline"}
	require.NoError(t, docs.Save(ctx, "p2", fields))

	assert.Equal(t, 0, store.Len("documents"))

	loaded, err := docs.Load(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, fields, loaded)
}

func TestDocumentStoreDeleteRemovesChunks(t *testing.T) {
	docs, store := newTestDocumentStore(t)
	ctx := context.Background()

	fields := map[string]string{
		"name":  "doomed",
		"notes": strings.Repeat("pending removal ", 3000),
	}
	require.NoError(t, docs.Save(ctx, "p3", fields))
	require.Greater(t, store.Len("documents"), 0)

	require.NoError(t, docs.Delete(ctx, "p3"))

	assert.Equal(t, 0, store.Len("documents"))
	_, err := docs.Load(ctx, "p3")
	assert.True(t, errors.Is(err, vectorstore.ErrNotFound))
}

func TestDocumentStoreRejectsOverheadOverflowAndRollsBack(t *testing.T) {
	docs, store := newTestDocumentStore(t)
	ctx := context.Background()

	// One extractable field plus enough tiny fields that the bare map stays
	// under the store ceiling but the parent's key prefixes and bookkeeping
	// entries push the assembled metadata over it. The tiny values are
	// shorter than their own chunk sentinel, so none of them can be
	// extracted to compensate.
	fields := map[string]string{
		"notes": strings.Repeat("carry-over content ", 2500),
	}
	for i := 0; i < 1700; i++ {
		fields[fmt.Sprintf("k%04d", i)] = "abcdefghijkl"
	}

	split, err := newTestSplitterFields(t, docs, fields)
	require.NoError(t, err)
	require.LessOrEqual(t, encodedSize(EncodeFields(split)), vectorstore.MaxMetadataBytes,
		"bare fields must pass the splitter ceiling for this case to bite")

	err = docs.Save(ctx, "p9", fields)
	var verr *vectorstore.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "record overhead")

	assert.Equal(t, 0, store.Len("documents"), "rejected documents leave no chunk records")
	assert.Equal(t, 0, store.Len(parentNamespace))
}

// newTestSplitterFields runs a dry split against a scratch store to measure
// the bare field map the document store will assemble from.
func newTestSplitterFields(t *testing.T, docs *DocumentStore, fields map[string]string) (map[string]FieldValue, error) {
	t.Helper()
	scratch, err := NewSplitter(docs.config, vectorstore.NewMemoryStore(), zap.NewNop())
	require.NoError(t, err)
	return scratch.Split(context.Background(), "p9", fields)
}

func TestDocumentStoreLoadMissing(t *testing.T) {
	docs, _ := newTestDocumentStore(t)

	_, err := docs.Load(context.Background(), "ghost")
	assert.True(t, errors.Is(err, vectorstore.ErrNotFound))
}

func TestDocumentStoreSaveOverwriteReusesChunkIDs(t *testing.T) {
	docs, store := newTestDocumentStore(t)
	ctx := context.Background()

	big := strings.Repeat("first revision of the requirements text. ", 1100)
	require.NoError(t, docs.Save(ctx, "p4", map[string]string{"requirements": big}))
	before := store.Len("documents")

	updated := strings.Repeat("second revision, still oversized content. ", 1100)
	require.NoError(t, docs.Save(ctx, "p4", map[string]string{"requirements": updated}))
	assert.Equal(t, before, store.Len("documents"), "chunk ids are deterministic per owner and field")

	loaded, err := docs.Load(ctx, "p4")
	require.NoError(t, err)
	assert.Equal(t, updated, loaded["requirements"])
}
