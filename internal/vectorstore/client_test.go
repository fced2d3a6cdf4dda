package vectorstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagekit/vectorsync/internal/resilience"
)

// stubEmbedder returns a unit vector whose hot index is derived from the
// text length, which is enough to make similarity deterministic in tests.
type stubEmbedder struct {
	calls int
}

func (s *stubEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	v := make([]float32, Dimension)
	v[len(text)%Dimension] = 1
	return v, nil
}

func (s *stubEmbedder) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := s.GenerateEmbedding(ctx, t)
		out[i] = v
	}
	return out, nil
}

func newTestClient(t *testing.T, store Store, embedder Embedder) *Client {
	t.Helper()

	exec, err := resilience.NewExecutor(resilience.Config{
		Dependency: "vectorstore",
		BaseDelay:  time.Millisecond,
	}, nil)
	require.NoError(t, err)

	client, err := NewClient(store, embedder, exec, ClientConfig{}, nil)
	require.NoError(t, err)
	return client
}

func TestClientUpsertFetchDelete(t *testing.T) {
	store := NewMemoryStore()
	client := newTestClient(t, store, nil)
	ctx := context.Background()

	rec := validRecord()
	require.NoError(t, client.Upsert(ctx, "projects", []Record{rec}))
	assert.Equal(t, 1, store.Len("projects"))

	fetched, err := client.Fetch(ctx, "projects", []string{rec.ID, "missing"})
	require.NoError(t, err)
	require.Len(t, fetched, 1)
	assert.Equal(t, rec.ID, fetched[rec.ID].ID)
	assert.Equal(t, "user-1", fetched[rec.ID].Metadata["owner_id"])

	require.NoError(t, client.Delete(ctx, "projects", []string{rec.ID}))
	assert.Equal(t, 0, store.Len("projects"))
}

func TestClientUpsertValidatesRecords(t *testing.T) {
	client := newTestClient(t, NewMemoryStore(), nil)

	bad := Record{ID: "bad", Values: make([]float32, 10)}
	err := client.Upsert(context.Background(), "projects", []Record{bad})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestClientUpsertBatches(t *testing.T) {
	store := NewMemoryStore()
	client := newTestClient(t, store, nil)

	records := make([]Record, 250)
	for i := range records {
		records[i] = Record{
			ID:     fmt.Sprintf("rec-%d", i),
			Values: make([]float32, Dimension),
		}
	}

	require.NoError(t, client.Upsert(context.Background(), "projects", records))
	assert.Equal(t, 250, store.Len("projects"))
}

func TestClientQueryValidatesDimension(t *testing.T) {
	client := newTestClient(t, NewMemoryStore(), nil)

	_, err := client.Query(context.Background(), "projects", make([]float32, 768), QueryOptions{})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestClientSearchSimilar(t *testing.T) {
	store := NewMemoryStore()
	embedder := &stubEmbedder{}
	client := newTestClient(t, store, embedder)
	ctx := context.Background()

	require.NoError(t, client.UpsertWithEmbeddings(ctx, "projects", []Item{
		{ID: "a", Text: "abc", Metadata: Metadata{"owner_id": "user-1"}},
		{ID: "b", Text: "abcdef", Metadata: Metadata{"owner_id": "user-2"}},
	}))

	matches, err := client.SearchSimilar(ctx, "xyz", SearchOptions{Namespace: "projects", TopK: 1})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	// "xyz" embeds identically to "abc" (same length).
	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, "abc", matches[0].Metadata["text"])
	assert.NotEmpty(t, matches[0].Metadata["last_modified"])
}

func TestClientSearchSimilarRequiresEmbedder(t *testing.T) {
	client := newTestClient(t, NewMemoryStore(), nil)

	_, err := client.SearchSimilar(context.Background(), "text", SearchOptions{Namespace: "projects"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestClientListByFilterWorkaround(t *testing.T) {
	store := NewMemoryStore()
	client := newTestClient(t, store, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		owner := "user-1"
		if i >= 3 {
			owner = "user-2"
		}
		require.NoError(t, client.Upsert(ctx, "projects", []Record{{
			ID:       fmt.Sprintf("rec-%d", i),
			Values:   make([]float32, Dimension),
			Metadata: Metadata{"owner_id": owner},
		}}))
	}

	// MemoryStore is not a Lister, so this goes through the zero-vector
	// query workaround.
	ids, err := client.ListByFilter(ctx, "projects", Eq("owner_id", "user-1"), 0)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

// listerStore wraps MemoryStore with a native ListIDs to cover the
// capability path.
type listerStore struct {
	*MemoryStore
	listCalls int
}

func (s *listerStore) ListIDs(ctx context.Context, namespace string, filter *Filter, limit int) ([]string, error) {
	s.listCalls++
	matches, err := s.Query(ctx, namespace, make([]float32, Dimension), QueryOptions{TopK: limit, Filter: filter})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func TestClientListByFilterNative(t *testing.T) {
	store := &listerStore{MemoryStore: NewMemoryStore()}
	client := newTestClient(t, store, nil)
	ctx := context.Background()

	require.NoError(t, client.Upsert(ctx, "projects", []Record{{
		ID:       "rec-1",
		Values:   make([]float32, Dimension),
		Metadata: Metadata{"owner_id": "user-1"},
	}}))

	ids, err := client.ListByFilter(ctx, "projects", Eq("owner_id", "user-1"), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-1"}, ids)
	assert.Equal(t, 1, store.listCalls, "native lister should be preferred")
}

func TestClientProjectVectors(t *testing.T) {
	store := NewMemoryStore()
	client := newTestClient(t, store, nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		owner := "user-1"
		if i == 3 {
			owner = "user-2"
		}
		require.NoError(t, client.Upsert(ctx, "projects", []Record{{
			ID:       fmt.Sprintf("rec-%d", i),
			Values:   make([]float32, Dimension),
			Metadata: Metadata{"owner_id": owner},
		}}))
	}

	records, err := client.GetProjectVectors(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, records, 3)

	deleted, err := client.DeleteProjectVectors(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)
	assert.Equal(t, 1, store.Len("projects"))

	// Deleting an owner with no records is not an error.
	deleted, err = client.DeleteProjectVectors(ctx, "user-3")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestClientHealthCheck(t *testing.T) {
	client := newTestClient(t, NewMemoryStore(), nil)

	status := client.HealthCheck(context.Background())
	assert.True(t, status.Healthy)
	assert.Empty(t, status.Error)
	assert.GreaterOrEqual(t, status.LatencyMS, 0.0)
}
