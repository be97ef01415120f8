package checkpoint

import (
	"encoding/json"
	"fmt"
)

// Codec turns an in-memory value into a (type tag, bytes) pair and back.
// It must round-trip exactly for every value the engine places in
// channels or metadata.
type Codec interface {
	// Encode serializes v, returning the type tag to store alongside the
	// payload.
	Encode(v any) (typeTag string, data []byte, err error)

	// Decode deserializes data into v, which must be a pointer.
	Decode(typeTag string, data []byte, v any) error
}

// BlobTypeEmpty is the sentinel type tag for "no value at this version".
// Blobs tagged with it carry no payload and must not be decoded.
const BlobTypeEmpty = "empty"

// JSONCodec is the default Codec, serializing values as JSON with the
// type tag "json".
type JSONCodec struct{}

const jsonTypeTag = "json"

// Encode implements Codec.
func (JSONCodec) Encode(v any) (string, []byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("encode value: %w", err)
	}
	return jsonTypeTag, data, nil
}

// Decode implements Codec.
func (JSONCodec) Decode(typeTag string, data []byte, v any) error {
	if typeTag != jsonTypeTag {
		return fmt.Errorf("unknown serialization type %q", typeTag)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	return nil
}
