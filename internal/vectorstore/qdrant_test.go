package vectorstore

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointIDStable(t *testing.T) {
	a := pointID("projects", "rec-1")
	b := pointID("projects", "rec-1")
	assert.Equal(t, a.GetUuid(), b.GetUuid())

	// Same id in a different namespace is a different point.
	c := pointID("documents", "rec-1")
	assert.NotEqual(t, a.GetUuid(), c.GetUuid())
}

func TestToPayloadRoundTrip(t *testing.T) {
	rec := Record{
		ID: "rec-1",
		Metadata: Metadata{
			"name":   "Acme",
			"active": true,
			"score":  0.5,
			"count":  int64(7),
			"tags":   []string{"a", "b"},
		},
	}

	payload, err := toPayload("projects", rec)
	require.NoError(t, err)
	assert.Equal(t, "rec-1", payload[payloadKeyID].GetStringValue())
	assert.Equal(t, "projects", payload[payloadKeyNamespace].GetStringValue())

	id, metadata := fromPayload(payload)
	assert.Equal(t, "rec-1", id)
	assert.NotContains(t, metadata, payloadKeyNamespace)
	assert.Equal(t, "Acme", metadata["name"])
	assert.Equal(t, true, metadata["active"])
	assert.Equal(t, 0.5, metadata["score"])
	assert.Equal(t, int64(7), metadata["count"])
	assert.Equal(t, []string{"a", "b"}, metadata["tags"])
}

func TestToPayloadRejectsReservedKeys(t *testing.T) {
	for _, key := range []string{payloadKeyID, payloadKeyNamespace} {
		rec := Record{ID: "rec-1", Metadata: Metadata{key: "x"}}
		_, err := toPayload("projects", rec)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "key %q", key)
	}
}

func TestToQdrantFilterInjectsNamespace(t *testing.T) {
	qf, err := toQdrantFilter("projects", nil)
	require.NoError(t, err)
	require.Len(t, qf.Must, 1)

	field := qf.Must[0].GetField()
	assert.Equal(t, payloadKeyNamespace, field.GetKey())
	assert.Equal(t, "projects", field.GetMatch().GetKeyword())
}

func TestToQdrantFilterTranslation(t *testing.T) {
	f := Eq("owner_id", "user-1").
		And(Eq("count", 3)).
		And(Eq("active", true)).
		And(Ne("status", "archived")).
		And(In("kind", "project", "analysis")).
		And(Nin("tag", "internal"))

	qf, err := toQdrantFilter("projects", f)
	require.NoError(t, err)

	// Namespace + eq string + eq int + eq bool + in.
	require.Len(t, qf.Must, 5)
	// ne + nin.
	require.Len(t, qf.MustNot, 2)

	assert.Equal(t, "user-1", qf.Must[1].GetField().GetMatch().GetKeyword())
	assert.Equal(t, int64(3), qf.Must[2].GetField().GetMatch().GetInteger())
	assert.Equal(t, true, qf.Must[3].GetField().GetMatch().GetBoolean())
	assert.Equal(t, []string{"project", "analysis"}, qf.Must[4].GetField().GetMatch().GetKeywords().GetStrings())
	assert.Equal(t, "archived", qf.MustNot[0].GetField().GetMatch().GetKeyword())
	assert.Equal(t, []string{"internal"}, qf.MustNot[1].GetField().GetMatch().GetKeywords().GetStrings())
}

func TestToQdrantFilterRejectsFloatMatch(t *testing.T) {
	_, err := toQdrantFilter("projects", &Filter{
		Conditions: []Condition{{Field: "score", Op: FilterEq, Value: 0.5}},
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestQdrantConfigDefaults(t *testing.T) {
	var cfg QdrantConfig
	cfg.ApplyDefaults()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6334, cfg.Port)
	assert.Equal(t, "vectorsync", cfg.Collection)
	assert.Equal(t, 50*1024*1024, cfg.MaxMessageSize)
	require.NoError(t, cfg.Validate())
}

func TestQdrantConfigValidate(t *testing.T) {
	cfg := QdrantConfig{Host: "localhost", Port: 70000}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

// Sanity check the qdrant value kinds survive a manual construction round trip.
func TestFromValueKinds(t *testing.T) {
	assert.Nil(t, fromValue(&qdrant.Value{}))
}
