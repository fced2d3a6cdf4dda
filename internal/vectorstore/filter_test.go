package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterBuilders(t *testing.T) {
	f := Eq("owner_id", "user-1").
		And(Ne("status", "archived")).
		And(In("kind", "project", "analysis")).
		And(Nin("tag", "internal"))

	require.Len(t, f.Conditions, 4)
	assert.Equal(t, FilterEq, f.Conditions[0].Op)
	assert.Equal(t, FilterNe, f.Conditions[1].Op)
	assert.Equal(t, FilterIn, f.Conditions[2].Op)
	assert.Equal(t, FilterNin, f.Conditions[3].Op)
	assert.NoError(t, f.Validate())
}

func TestFilterAndNil(t *testing.T) {
	f := Eq("a", "b")
	assert.Same(t, f, f.And(nil))
	assert.Same(t, f, (*Filter)(nil).And(f))
}

func TestFilterValidate(t *testing.T) {
	tests := []struct {
		name    string
		filter  *Filter
		wantErr bool
	}{
		{name: "nil filter", filter: nil},
		{name: "eq string", filter: Eq("f", "v")},
		{name: "eq int", filter: Eq("f", 42)},
		{name: "eq bool", filter: Eq("f", true)},
		{name: "eq float rejected", filter: Eq("f", 1.5), wantErr: true},
		{name: "missing field", filter: &Filter{Conditions: []Condition{{Op: FilterEq, Value: "v"}}}, wantErr: true},
		{name: "in empty values", filter: &Filter{Conditions: []Condition{{Field: "f", Op: FilterIn}}}, wantErr: true},
		{name: "unknown operator", filter: &Filter{Conditions: []Condition{{Field: "f", Op: "$gt", Value: 1}}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			if tt.wantErr {
				var verr *ValidationError
				assert.ErrorAs(t, err, &verr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMatchesFilter(t *testing.T) {
	metadata := Metadata{
		"owner_id": "user-1",
		"status":   "active",
		"count":    int64(3),
	}

	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{name: "nil matches", filter: nil, want: true},
		{name: "eq match", filter: Eq("owner_id", "user-1"), want: true},
		{name: "eq mismatch", filter: Eq("owner_id", "user-2"), want: false},
		{name: "eq missing field", filter: Eq("absent", "x"), want: false},
		{name: "eq int across widths", filter: Eq("count", 3), want: true},
		{name: "ne match", filter: Ne("status", "archived"), want: true},
		{name: "ne mismatch", filter: Ne("status", "active"), want: false},
		{name: "ne missing field matches", filter: Ne("absent", "x"), want: true},
		{name: "in match", filter: In("status", "active", "pending"), want: true},
		{name: "in mismatch", filter: In("status", "archived"), want: false},
		{name: "nin match", filter: Nin("status", "archived"), want: true},
		{name: "nin mismatch", filter: Nin("status", "active"), want: false},
		{name: "conjunction", filter: Eq("owner_id", "user-1").And(Eq("status", "archived")), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesFilter(metadata, tt.filter))
		})
	}
}
