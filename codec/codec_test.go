package codec

import "testing"

// readingArgs mirrors the shape a router handler's argument/reply struct
// would take — codec never sees path or error, only this.
type readingArgs struct {
	SensorID string
	Celsius  float64
}

func TestJSONCodec(t *testing.T) {
	jsonCodec := &JSONCodec{}

	original := &readingArgs{SensorID: "sensor-1", Celsius: 21.5}

	data, err := jsonCodec.Encode(original)
	if err != nil {
		t.Fatalf("JSONCodec Encode failed: %v", err)
	}

	var decoded readingArgs
	if err := jsonCodec.Decode(data, &decoded); err != nil {
		t.Fatalf("JSONCodec Decode failed: %v", err)
	}

	if decoded != *original {
		t.Errorf("got %+v, want %+v", decoded, *original)
	}
}

func TestJSONCodecDecodeEmptyIsNoOp(t *testing.T) {
	jsonCodec := &JSONCodec{}
	decoded := readingArgs{SensorID: "untouched"}
	if err := jsonCodec.Decode(nil, &decoded); err != nil {
		t.Fatalf("Decode of empty body failed: %v", err)
	}
	if decoded.SensorID != "untouched" {
		t.Errorf("empty-body decode should leave v unmodified, got %+v", decoded)
	}
}

func TestBinaryCodec(t *testing.T) {
	binaryCodec := &BinaryCodec{}

	original := &readingArgs{SensorID: "sensor-1", Celsius: 21.5}

	data, err := binaryCodec.Encode(original)
	if err != nil {
		t.Fatalf("BinaryCodec Encode failed: %v", err)
	}

	var decoded readingArgs
	if err := binaryCodec.Decode(data, &decoded); err != nil {
		t.Fatalf("BinaryCodec Decode failed: %v", err)
	}

	if decoded != *original {
		t.Errorf("got %+v, want %+v", decoded, *original)
	}
}

func TestBinaryCodecDecodeEmptyIsNoOp(t *testing.T) {
	binaryCodec := &BinaryCodec{}
	decoded := readingArgs{SensorID: "untouched"}
	if err := binaryCodec.Decode(nil, &decoded); err != nil {
		t.Fatalf("Decode of empty body failed: %v", err)
	}
	if decoded.SensorID != "untouched" {
		t.Errorf("empty-body decode should leave v unmodified, got %+v", decoded)
	}
}

func TestGetCodecSelectsByType(t *testing.T) {
	if _, ok := GetCodec(CodecTypeJSON).(*JSONCodec); !ok {
		t.Fatal("GetCodec(CodecTypeJSON) did not return a *JSONCodec")
	}
	if _, ok := GetCodec(CodecTypeBinary).(*BinaryCodec); !ok {
		t.Fatal("GetCodec(CodecTypeBinary) did not return a *BinaryCodec")
	}
}
