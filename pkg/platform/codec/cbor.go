// Package codec provides the deterministic CBOR encoding used wherever bytes
// must be reproducible: verification hashing, challenge records in Redis and
// inference request bodies.
//
// Encoding uses RFC 8949 core deterministic rules (sorted map keys, smallest
// integer encodings, no indefinite lengths), so equal values always encode to
// equal bytes.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	// any-typed targets decode maps as map[string]any so values stay
	// compatible with encoding/json.
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder returns a deterministic streaming encoder.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// CanonicalJSON re-encodes a JSON document as deterministic CBOR. Object key
// order and insignificant whitespace do not affect the output. Numbers are
// kept as their decimal text so no precision is lost.
func CanonicalJSON(doc []byte) ([]byte, error) {
	if len(bytes.TrimSpace(doc)) == 0 {
		return encMode.Marshal(nil)
	}
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canonical json: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("canonical json: trailing data")
	}
	return encMode.Marshal(normalizeNumbers(v))
}

// normalizeNumbers replaces json.Number with its canonical text form wrapped
// in a tagged string, so 1.0 and 1 stay distinct exactly as the client sent
// them but key order never matters.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeNumbers(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalizeNumbers(val)
		}
		return t
	case json.Number:
		return cbor.Tag{Number: numberTag, Content: t.String()}
	default:
		return v
	}
}

// numberTag marks JSON numbers carried as decimal text.
const numberTag = 40000
