// Package codec provides the payload serialization layer router uses to
// turn a handler's argument/reply struct into body bytes and back. The
// path a frame targets and any handler error travel as frame-native
// mechanisms (frame.Request.Path and a HeaderField on the RESPONSE)
// rather than as a second length-prefixed wrapper around the body, so a
// codec here only ever sees the caller's own argument or reply value.
//
// It defines a pluggable Codec interface with two implementations:
//   - JSONCodec:   human-readable, easy to debug, slower (~589 ns/op)
//   - BinaryCodec: gob encoding; each body carries gob's type description
//     (field names included) ahead of the value
//
// A Router picks its codec once (Router.SetCodec). The choice is not sent
// on the wire, so both peers must be configured with the same codec.
package codec

// CodecType identifies the serialization format.
type CodecType byte

const (
	CodecTypeJSON   CodecType = 0 // JSON serialization (encoding/json)
	CodecTypeBinary CodecType = 1 // gob serialization
)

// Codec is the interface for serialization/deserialization of a handler's
// argument or reply value. Implementing this interface allows adding new
// formats (e.g. Protobuf) without changing any other layer.
type Codec interface {
	Encode(v any) ([]byte, error)    // serialize a struct to bytes
	Decode(data []byte, v any) error // deserialize bytes back to a struct
	Type() CodecType                 // return the codec type identifier
}

// GetCodec is a factory function that returns the appropriate codec by type.
func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeJSON {
		return &JSONCodec{}
	}
	return &BinaryCodec{}
}
