package codec

import (
	"bytes"
	"encoding/gob"
)

// BinaryCodec serializes a handler's argument or reply value with
// encoding/gob. Each Encode call uses a fresh gob encoder, so every body
// carries gob's type description, field names included, ahead of the
// value.
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode is a no-op on an empty body, matching JSONCodec.
func (c *BinaryCodec) Decode(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}
