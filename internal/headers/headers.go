// Package headers implements the ordered, duplicate-permitting header
// list described by the HeaderList data model: arrival order is
// preserved, field names are compared case-insensitively but kept
// case-preserved on the wire, and accumulation is capped so a peer
// cannot force unbounded memory growth while headers are being
// collected.
package headers

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// ErrMalformedField is returned for a header line that does not parse
// as "name:value" with a valid token name.
var ErrMalformedField = errors.New("malformed header field")

// ErrTooLarge is returned once the accumulated header bytes exceed the
// cap passed to New.
var ErrTooLarge = errors.New("header section exceeds byte cap")

// Field is one (name, value) pair in wire order. Name keeps its
// original case; comparisons against it are case-insensitive.
type Field struct {
	Name  string
	Value string
}

// Headers is an ordered sequence of Fields. Insertion order equals
// arrival order; duplicates are kept as separate Fields rather than
// merged. The teacher's version (github.com/.../internal/headers) is
// map-backed, which loses order and comma-joins duplicates; spec.md's
// HeaderList data model requires neither, so this is a plain ordered
// slice instead. Per spec.md §9's design note, the "reversed
// accumulation" described in §3 is an artifact of a singly-linked
// list and is dropped here in favor of append-in-arrival-order.
type Headers struct {
	fields   []Field
	maxBytes int
	byteLen  int
}

// New returns an empty Headers. maxBytes of 0 means unlimited; the
// handler always passes a concrete cap (spec.md §5 recommends 64KiB).
func New(maxBytes int) *Headers {
	return &Headers{maxBytes: maxBytes}
}

// ParseFieldLine parses a single "name: value" line (no trailing
// CRLF).
func ParseFieldLine(line []byte) (name, value string, err error) {
	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return "", "", fmt.Errorf("%w: no colon", ErrMalformedField)
	}
	rawName := line[:idx]
	if bytes.HasSuffix(rawName, []byte(" ")) || bytes.HasSuffix(rawName, []byte("\t")) {
		return "", "", fmt.Errorf("%w: whitespace before colon", ErrMalformedField)
	}
	rawName = bytes.TrimSpace(rawName)
	rawValue := bytes.TrimSpace(line[idx+1:])

	name = string(rawName)
	value = string(rawValue)
	if !httpguts.ValidHeaderFieldName(name) {
		return "", "", fmt.Errorf("%w: invalid field name %q", ErrMalformedField, name)
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return "", "", fmt.Errorf("%w: invalid field value for %q", ErrMalformedField, name)
	}
	return name, value, nil
}

// Add appends name/value as a new field, preserving any existing
// occurrences of the same name. lineBytes is the wire length of the
// field the caller is accounting for the byte cap with; pass 0 to
// skip cap tracking for this call.
func (h *Headers) Add(name, value string, lineBytes int) error {
	if h.maxBytes > 0 {
		h.byteLen += lineBytes
		if h.byteLen > h.maxBytes {
			return ErrTooLarge
		}
	}
	h.fields = append(h.fields, Field{Name: name, Value: value})
	return nil
}

// Get returns the value of the first field matching name
// case-insensitively.
func (h *Headers) Get(name string) (string, bool) {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Replace mutates the first field matching name in place, preserving
// its position in the list; if no field matches it appends a new one
// at the end. This is the operation the Max-Forwards decrement uses
// (spec.md §4.1.1: "replace the header in place, preserve position").
func (h *Headers) Replace(name, value string) {
	for i := range h.fields {
		if strings.EqualFold(h.fields[i].Name, name) {
			h.fields[i].Value = value
			return
		}
	}
	h.fields = append(h.fields, Field{Name: name, Value: value})
}

// Delete removes every field matching name.
func (h *Headers) Delete(name string) {
	out := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	h.fields = out
}

// ForEach visits every field in arrival order.
func (h *Headers) ForEach(cb func(name, value string)) {
	for _, f := range h.fields {
		cb(f.Name, f.Value)
	}
}

// Len returns the number of fields currently held.
func (h *Headers) Len() int {
	return len(h.fields)
}

// Clone returns an independent copy: later changes to either list do
// not affect the other.
func (h *Headers) Clone() *Headers {
	clone := &Headers{maxBytes: h.maxBytes, byteLen: h.byteLen}
	clone.fields = append(clone.fields, h.fields...)
	return clone
}
