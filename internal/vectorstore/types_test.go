package vectorstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() Record {
	return Record{
		ID:       "rec-1",
		Values:   make([]float32, Dimension),
		Metadata: Metadata{"owner_id": "user-1"},
	}
}

func TestRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Record)
		wantErr string
	}{
		{name: "valid", mutate: func(r *Record) {}},
		{
			name:    "missing id",
			mutate:  func(r *Record) { r.ID = "" },
			wantErr: "id is required",
		},
		{
			name:    "wrong dimension",
			mutate:  func(r *Record) { r.Values = make([]float32, 768) },
			wantErr: "768 dimensions",
		},
		{
			name:    "unsupported metadata type",
			mutate:  func(r *Record) { r.Metadata["bad"] = map[string]string{} },
			wantErr: "unsupported metadata type",
		},
		{
			name:    "oversized metadata",
			mutate:  func(r *Record) { r.Metadata["blob"] = strings.Repeat("x", MaxMetadataBytes+1) },
			wantErr: "limit is 40000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			tt.mutate(&rec)

			err := rec.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMetadataSerializedSize(t *testing.T) {
	assert.Zero(t, Metadata(nil).SerializedSize())

	m := Metadata{"k": "v"}
	// {"k":"v"}
	assert.Equal(t, 9, m.SerializedSize())
}

func TestQueryOptionsDefaults(t *testing.T) {
	var opts QueryOptions
	opts.ApplyDefaults()
	assert.Equal(t, 10, opts.TopK)
}
