// Package vectorstore provides the namespace-aware client for the vector
// database, built on the resilience executor.
package vectorstore

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Dimension is the fixed embedding dimension for every persisted vector,
// regardless of the embedding provider's native dimension.
const Dimension = 1024

// MaxMetadataBytes is the store's per-record serialized metadata ceiling.
const MaxMetadataBytes = 40_000

var (
	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates the store could not be reached.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrNotFound indicates a record id that does not exist.
	ErrNotFound = errors.New("record not found")
)

// ValidationError indicates a record that can never be accepted by the
// store: wrong vector dimension, oversized metadata, unsupported metadata
// value. Validation failures are not retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// Metadata holds a record's payload. Values are restricted to scalars
// (string, bool, int, int64, float64) and short string lists.
type Metadata map[string]any

// SerializedSize returns the JSON-serialized size of the metadata in bytes.
func (m Metadata) SerializedSize() int {
	if len(m) == 0 {
		return 0
	}
	b, err := json.Marshal(m)
	if err != nil {
		return 0
	}
	return len(b)
}

// Validate checks value types and the serialized size ceiling.
func (m Metadata) Validate() error {
	for k, v := range m {
		switch v.(type) {
		case string, bool, int, int64, float64, []string:
		default:
			return &ValidationError{Field: k, Reason: fmt.Sprintf("unsupported metadata type %T", v)}
		}
	}
	if size := m.SerializedSize(); size > MaxMetadataBytes {
		return &ValidationError{Reason: fmt.Sprintf("serialized metadata is %d bytes, limit is %d", size, MaxMetadataBytes)}
	}
	return nil
}

// Record is one vector record: id, fixed-dimension embedding, metadata, and
// the namespace it lives in.
type Record struct {
	ID        string
	Values    []float32
	Metadata  Metadata
	Namespace string
}

// Validate checks the record against the store's wire contract.
func (r Record) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Reason: "id is required"}
	}
	if len(r.Values) != Dimension {
		return &ValidationError{
			Field:  "values",
			Reason: fmt.Sprintf("embedding has %d dimensions, store requires %d", len(r.Values), Dimension),
		}
	}
	return r.Metadata.Validate()
}

// Match is one query hit.
type Match struct {
	ID       string
	Score    float32
	Values   []float32
	Metadata Metadata
}

// QueryOptions configures a similarity query.
type QueryOptions struct {
	// TopK is the number of matches to return. Default: 10
	TopK int

	// Filter restricts matches by metadata. Nil means no filter.
	Filter *Filter

	// IncludeMetadata returns each match's metadata.
	IncludeMetadata bool

	// IncludeValues returns each match's vector.
	IncludeValues bool
}

// ApplyDefaults sets default values for unset fields.
func (o *QueryOptions) ApplyDefaults() {
	if o.TopK <= 0 {
		o.TopK = 10
	}
}

// HealthStatus is the result of a store health check.
type HealthStatus struct {
	Healthy   bool    `json:"healthy"`
	LatencyMS float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}
