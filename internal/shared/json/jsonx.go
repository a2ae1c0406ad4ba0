package jsonx

import (
	"bytes"

	"github.com/goccy/go-json"
)

// Thin wrapper so hot paths can swap JSON implementations in one place.
var (
	Marshal       = json.Marshal
	MarshalIndent = json.MarshalIndent
	Unmarshal     = json.Unmarshal
	NewDecoder    = json.NewDecoder
	NewEncoder    = json.NewEncoder
)

type RawMessage = json.RawMessage
type Number = json.Number

// Canonical encodes v with map keys sorted and without HTML escaping, so equal
// values always produce equal bytes.
func Canonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MarshalString encodes v and returns the result as a string, falling back to
// fallback when encoding fails.
func MarshalString(v any, fallback string) string {
	data, err := Marshal(v)
	if err != nil {
		return fallback
	}
	return string(data)
}
