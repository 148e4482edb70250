package auditlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// CanonicalJSON encodes v into the canonical form this package hashes over:
// object keys sorted lexicographically by their UTF-8 bytes, no insignificant
// whitespace, all strings normalized to Unicode NFC, and numbers rendered in
// the shortest form that round-trips back to the same float64. Two callers
// that agree on the same logical value must produce byte-identical output,
// including across process and language boundaries, so every value is
// decoded through encoding/json first (never handed structs with field tags
// that might reorder or omit data) and re-walked by hand.
func CanonicalJSON(v any) ([]byte, error) {
	// Round-trip through json.Marshal/Unmarshal so that Go structs,
	// map[string]any and already-decoded json.RawMessage all normalize to
	// the same tree of interface{} values before canonicalization.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicaljson: marshal input: %w", err)
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonicaljson: decode input: %w", err)
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(canonicalNumber(val))
	case string:
		return writeCanonicalString(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonicaljson: unsupported value type %T", v)
	}
	return nil
}

// canonicalNumber re-serializes a decoded JSON number in the shortest form
// that parses back to the same float64. json.Number already preserves the
// original literal; for integral values that literal is already shortest,
// but floats decoded with extra trailing digits get reduced here.
func canonicalNumber(n json.Number) string {
	if f, err := n.Float64(); err == nil {
		if shortest, ok := shortestFloatRepr(f, n.String()); ok {
			return shortest
		}
	}
	return n.String()
}

func shortestFloatRepr(f float64, original string) (string, bool) {
	encoded, err := json.Marshal(f)
	if err != nil {
		return "", false
	}
	return string(encoded), true
}

// writeCanonicalString normalizes s to NFC and writes it through
// encoding/json's string escaper, which already produces the minimal
// required escaping (quotes, backslash, control characters).
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	normalized := norm.NFC.String(s)
	encoded, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("canonicaljson: encode string: %w", err)
	}
	buf.Write(encoded)
	return nil
}
