// Package chunking splits oversized logical records into a primary record
// plus side chunk records, and resolves them back on read. It exists because
// the vector store caps serialized per-record metadata; entities with long
// text fields would otherwise be unstorable.
package chunking

import (
	"fmt"
	"strings"
)

const (
	sentinelPrefix = "[CHUNKED:"
	sentinelSuffix = "]"
)

type fieldKind int

const (
	kindInline fieldKind = iota
	kindReference
)

// FieldValue is either the field's inline content or a reference to a chunk
// record holding the real content. The wire encoding of a reference is the
// sentinel "[CHUNKED:<chunkID>]" so parents remain plain string metadata.
type FieldValue struct {
	kind  fieldKind
	value string
}

// Inline wraps literal field content.
func Inline(content string) FieldValue {
	return FieldValue{kind: kindInline, value: content}
}

// Reference wraps a chunk record id.
func Reference(chunkID string) FieldValue {
	return FieldValue{kind: kindReference, value: chunkID}
}

// IsReference reports whether the value points at a chunk record.
func (v FieldValue) IsReference() bool {
	return v.kind == kindReference
}

// Content returns the inline content. Empty for references.
func (v FieldValue) Content() string {
	if v.kind != kindInline {
		return ""
	}
	return v.value
}

// ChunkID returns the referenced chunk id. Empty for inline values.
func (v FieldValue) ChunkID() string {
	if v.kind != kindReference {
		return ""
	}
	return v.value
}

// Encode returns the wire form: inline content unchanged, references as the
// sentinel string.
func (v FieldValue) Encode() string {
	if v.kind == kindReference {
		return sentinelPrefix + v.value + sentinelSuffix
	}
	return v.value
}

// ParseFieldValue decodes a wire-form field. Only a string that is exactly
// the sentinel, with a non-empty chunk id, parses as a reference; everything
// else is inline content. A substring match is deliberately not enough.
func ParseFieldValue(raw string) FieldValue {
	if !strings.HasPrefix(raw, sentinelPrefix) || !strings.HasSuffix(raw, sentinelSuffix) {
		return Inline(raw)
	}
	id := raw[len(sentinelPrefix) : len(raw)-len(sentinelSuffix)]
	if id == "" || strings.ContainsAny(id, "[]") {
		return Inline(raw)
	}
	return Reference(id)
}

// ChunkID builds the chunk record id for a field of an owner.
func ChunkID(ownerID, fieldName string) string {
	return fmt.Sprintf("doc_%s_%s", ownerID, fieldName)
}

// partID builds the id of part n of a chunk. Part 0 is the base chunk id
// itself, so references stay a single id.
func partID(chunkID string, part int) string {
	if part == 0 {
		return chunkID
	}
	return fmt.Sprintf("%s_p%d", chunkID, part)
}

// EncodeFields converts resolved field values to their wire form for storage
// in parent metadata.
func EncodeFields(fields map[string]FieldValue) map[string]string {
	out := make(map[string]string, len(fields))
	for name, value := range fields {
		out[name] = value.Encode()
	}
	return out
}

// DecodeFields parses wire-form fields.
func DecodeFields(raw map[string]string) map[string]FieldValue {
	out := make(map[string]FieldValue, len(raw))
	for name, value := range raw {
		out[name] = ParseFieldValue(value)
	}
	return out
}
