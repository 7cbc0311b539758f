// Package codec converts between stream entry fields and handler payloads.
package codec

import (
	"fmt"
	"sort"

	jsoniter "github.com/json-iterator/go"

	"github.com/ibs-source/stream-consumer/internal/message"
)

// JSON is the jsoniter configuration shared by every encoder in the module
var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

// decodeJSON keeps numbers as json.Number so integers above 2^53 survive a
// decode and re-encode unchanged
var decodeJSON = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// DataField holds the encoded payload when it is not a field map
const DataField = "data"

// Fields is an ordered list of alternating field names and values, ready for XADD
type Fields []string

// Len returns the number of field/value pairs
func (f Fields) Len() int {
	return len(f) / 2
}

// Serializer turns a response payload into stream fields
type Serializer func(payload interface{}, mc *message.Context) (Fields, error)

// Deserializer turns a raw stream entry into a handler payload
type Deserializer func(entry message.Entry, mc *message.Context) (interface{}, error)

// Serialize is the default Serializer.
// Field maps become one stream field per key in sorted order: strings are
// written as-is and anything else is JSON encoded. Every other payload is
// JSON encoded into a single "data" field.
func Serialize(payload interface{}, _ *message.Context) (Fields, error) {
	switch p := payload.(type) {
	case map[string]string:
		if len(p) == 0 {
			break
		}
		keys := make([]string, 0, len(p))
		for k := range p {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make(Fields, 0, len(p)*2)
		for _, k := range keys {
			fields = append(fields, k, p[k])
		}
		return fields, nil
	case map[string]interface{}:
		if len(p) == 0 {
			break
		}
		keys := make([]string, 0, len(p))
		for k := range p {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make(Fields, 0, len(p)*2)
		for _, k := range keys {
			v, err := encodeValue(p[k])
			if err != nil {
				return nil, fmt.Errorf("failed to encode field %s: %w", k, err)
			}
			fields = append(fields, k, v)
		}
		return fields, nil
	}

	// XADD needs at least one field, so empty maps land here too
	v, err := encodeValue(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return Fields{DataField, v}, nil
}

func encodeValue(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	default:
		return JSON.MarshalToString(v)
	}
}

// Deserialize is the default Deserializer.
// It returns the entry fields as a map; string values holding a JSON
// object or array are decoded with numbers kept as json.Number, everything
// else is kept verbatim.
func Deserialize(entry message.Entry, _ *message.Context) (interface{}, error) {
	payload := make(map[string]interface{}, len(entry.Values))
	for k, v := range entry.Values {
		str, ok := v.(string)
		if !ok || !isJSON(str) {
			payload[k] = v
			continue
		}
		var decoded interface{}
		if err := decodeJSON.UnmarshalFromString(str, &decoded); err != nil {
			payload[k] = str
			continue
		}
		payload[k] = decoded
	}
	return payload, nil
}

// isJSON quickly checks if a string might be a JSON document (starts with { or [)
func isJSON(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', '[':
			return true
		default:
			return false
		}
	}
	return false
}
