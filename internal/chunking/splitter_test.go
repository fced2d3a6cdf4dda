package chunking

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vantagekit/vectorsync/internal/vectorstore"
)

func newTestChunker(t *testing.T, config Config) (*Splitter, *Resolver, *vectorstore.MemoryStore) {
	t.Helper()
	store := vectorstore.NewMemoryStore()

	splitter, err := NewSplitter(config, store, zap.NewNop())
	require.NoError(t, err)
	resolver, err := NewResolver(config, store, zap.NewNop())
	require.NoError(t, err)
	return splitter, resolver, store
}

func TestSplitSmallParentPassesThrough(t *testing.T) {
	splitter, _, store := newTestChunker(t, Config{})

	fields := map[string]string{"name": "alpha", "summary": "a short summary"}
	out, err := splitter.Split(context.Background(), "p1", fields)
	require.NoError(t, err)

	for name, value := range out {
		assert.False(t, value.IsReference())
		assert.Equal(t, fields[name], value.Content())
	}
	assert.Equal(t, 0, store.Len("documents"), "no chunks for small parents")
}

func TestSplitLargeFieldRoundTrip(t *testing.T) {
	splitter, resolver, store := newTestChunker(t, Config{})

	requirements := strings.Repeat("the system shall retry. ", 2100) // ~50KB
	require.Greater(t, len(requirements), 40_000)

	fields := map[string]string{
		"name":         "big project",
		"requirements": requirements,
	}

	out, err := splitter.Split(context.Background(), "p1", fields)
	require.NoError(t, err)

	require.True(t, out["requirements"].IsReference())
	assert.Equal(t, "doc_p1_requirements", out["requirements"].ChunkID())
	assert.False(t, out["name"].IsReference())

	// A 50KB field at the default 30KB part size spans two records.
	assert.Equal(t, 2, store.Len("documents"))

	encoded := EncodeFields(out)
	assert.LessOrEqual(t, encodedSize(encoded), vectorstore.MaxMetadataBytes)

	resolved, err := resolver.Resolve(context.Background(), encoded)
	require.NoError(t, err)
	assert.Equal(t, requirements, resolved["requirements"])
	assert.Equal(t, "big project", resolved["name"])
}

func TestSplitManyMediumFields(t *testing.T) {
	splitter, resolver, _ := newTestChunker(t, Config{})

	// No single field crosses the per-field threshold, but together they
	// exceed the safety threshold; the largest get extracted anyway.
	fields := map[string]string{
		"a": strings.Repeat("x", 15_000),
		"b": strings.Repeat("y", 15_000),
		"c": strings.Repeat("z", 15_000),
	}

	out, err := splitter.Split(context.Background(), "p2", fields)
	require.NoError(t, err)

	encoded := EncodeFields(out)
	assert.LessOrEqual(t, encodedSize(encoded), vectorstore.MaxMetadataBytes)

	resolved, err := resolver.Resolve(context.Background(), encoded)
	require.NoError(t, err)
	assert.Equal(t, fields, resolved)
}

func TestSplitUnchunkableField(t *testing.T) {
	splitter, _, _ := newTestChunker(t, Config{PartSize: 1000, MaxParts: 2})

	fields := map[string]string{"huge": strings.Repeat("x", 50_000)}
	_, err := splitter.Split(context.Background(), "p3", fields)

	var verr *vectorstore.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "huge", verr.Field)
}

func TestSplitRequiresOwner(t *testing.T) {
	splitter, _, _ := newTestChunker(t, Config{})

	_, err := splitter.Split(context.Background(), "", map[string]string{"a": "b"})
	var verr *vectorstore.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSplitMultibyteRoundTrip(t *testing.T) {
	splitter, resolver, _ := newTestChunker(t, Config{})

	content := strings.Repeat("héllo wörld ünïcode ", 2500) // >40KB, multibyte
	out, err := splitter.Split(context.Background(), "p4", map[string]string{"doc": content})
	require.NoError(t, err)
	require.True(t, out["doc"].IsReference())

	resolved, err := resolver.Resolve(context.Background(), EncodeFields(out))
	require.NoError(t, err)
	assert.Equal(t, content, resolved["doc"])
}

func TestDeleteChunks(t *testing.T) {
	splitter, resolver, store := newTestChunker(t, Config{})

	content := strings.Repeat("x", 45_000)
	out, err := splitter.Split(context.Background(), "p5", map[string]string{"doc": content})
	require.NoError(t, err)
	require.Greater(t, store.Len("documents"), 0)

	require.NoError(t, splitter.DeleteChunks(context.Background(), "p5", out))
	assert.Equal(t, 0, store.Len("documents"))

	_, err = resolver.ResolveFields(context.Background(), out)
	assert.ErrorIs(t, err, ErrChunkNotFound)
}

func TestResolveIdempotent(t *testing.T) {
	_, resolver, _ := newTestChunker(t, Config{})

	fields := map[string]string{"name": "plain", "notes": "nothing chunked here"}
	resolved, err := resolver.Resolve(context.Background(), fields)
	require.NoError(t, err)
	assert.Equal(t, fields, resolved)

	again, err := resolver.Resolve(context.Background(), resolved)
	require.NoError(t, err)
	assert.Equal(t, fields, again)
}

func TestResolveMissingChunk(t *testing.T) {
	_, resolver, _ := newTestChunker(t, Config{})

	_, err := resolver.Resolve(context.Background(), map[string]string{
		"doc": "[CHUNKED:doc_missing_field]",
	})
	assert.ErrorIs(t, err, ErrChunkNotFound)
}

func TestListChunkIDs(t *testing.T) {
	ids := ListChunkIDs(map[string]string{
		"a": "plain",
		"b": "[CHUNKED:doc_o_b]",
		"c": "[CHUNKED:doc_o_c]",
	})
	assert.Equal(t, []string{"doc_o_b", "doc_o_c"}, ids)
}
