package frame

import (
	"bytes"
	"testing"
)

// TestMinimalSignal covers spec.md §8 scenario 1: a bare SIGNAL with no
// id/path/headers/body.
func TestMinimalSignal(t *testing.T) {
	r := NewReassembler()
	completed, remainder, err := r.Feed([]byte{0x04, 0x04}, DefaultBufferSize)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(remainder) != 0 {
		t.Fatalf("expected empty remainder, got %d bytes", len(remainder))
	}
	if len(completed) != 1 {
		t.Fatalf("expected 1 completed request, got %d", len(completed))
	}
	req := completed[0]
	if req.Method != MethodSignal || req.Version != 1 {
		t.Fatalf("unexpected method/version: %v/%v", req.Method, req.Version)
	}
	if req.HasID || req.HasPath || req.HasBody {
		t.Fatalf("expected no id/path/body, got %+v", req)
	}
}

// TestSignalWithPathAndBody covers spec.md §8 scenario 2.
func TestSignalWithPathAndBody(t *testing.T) {
	want := []byte{0x05, 0x05, '/', 'x', 0x03, 0x02, 'h', 'i'}

	enc, err := Encode(&Request{
		Method: MethodSignal,
		HasPath: true,
		Path:    "/x",
		HasBody: true,
		Body:    []byte("hi"),
	}, DefaultBufferSize)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got := append(append([]byte(nil), enc.Prefix...), enc.Body...)
	if !bytes.Equal(got, want) {
		t.Fatalf("encode mismatch:\n got  %x\n want %x", got, want)
	}

	r := NewReassembler()
	completed, remainder, err := r.Feed(want, DefaultBufferSize)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(remainder) != 0 {
		t.Fatalf("expected empty remainder, got %d bytes", len(remainder))
	}
	if len(completed) != 1 {
		t.Fatalf("expected 1 completed request, got %d", len(completed))
	}
	req := completed[0]
	if req.Path != "/x" || string(req.Body) != "hi" {
		t.Fatalf("round-trip mismatch: path=%q body=%q", req.Path, req.Body)
	}
}

// TestRequestWithHeader covers spec.md §8 scenario 3.
func TestRequestWithHeader(t *testing.T) {
	want := []byte{
		0x07, 0x0B, // MSCB, LSCB
		0x01, 0x14, // id = 276
		'/', 'a', 0x03, // path
		0x01, 'f', 'o', 'o', 0x1E, 'b', 'a', 'r', 0x03, // 1 header: foo=bar
		0x00, 0x02, // body len = 2
		'h', 'i',
	}

	enc, err := Encode(&Request{
		Method: MethodRequest,
		HasID:   true,
		ID:      276,
		HasPath: true,
		Path:    "/a",
		Headers: []HeaderField{{Key: "foo", Value: "bar"}},
		HasBody: true,
		Body:    []byte("hi"),
	}, DefaultBufferSize)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got := append(append([]byte(nil), enc.Prefix...), enc.Body...)
	if !bytes.Equal(got, want) {
		t.Fatalf("encode mismatch:\n got  %x\n want %x", got, want)
	}

	r := NewReassembler()
	completed, _, err := r.Feed(want, DefaultBufferSize)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(completed) != 1 {
		t.Fatalf("expected 1 completed request, got %d", len(completed))
	}
	req := completed[0]
	if req.ID != 276 || req.Path != "/a" || len(req.Headers) != 1 ||
		req.Headers[0].Key != "foo" || req.Headers[0].Value != "bar" ||
		string(req.Body) != "hi" {
		t.Fatalf("round-trip mismatch: %+v", req)
	}
}

// TestMultipartStreaming covers spec.md §8 scenario 4: 1500B body at
// bufferSize=1024 fragments into 2 writes and reassembles to one request.
func TestMultipartStreaming(t *testing.T) {
	body := make([]byte, 1500)
	for i := range body {
		body[i] = byte(i)
	}

	enc, err := Encode(&Request{
		Method: MethodStreaming,
		HasID:  true,
		ID:     7,
		HasBody: true,
		Body:   body,
	}, 1024)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	fragments := enc.Fragments(1024)
	if len(fragments) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(fragments))
	}
	if len(fragments[0]) != 1024 {
		t.Fatalf("expected first write length 1024, got %d", len(fragments[0]))
	}
	wantSecond := 1500 - (1024 - len(enc.Prefix)) + len(enc.Prefix)
	if len(fragments[1]) != wantSecond {
		t.Fatalf("expected second write length %d, got %d", wantSecond, len(fragments[1]))
	}

	r := NewReassembler()
	var completed []*Request
	for _, f := range fragments {
		c, remainder, err := r.Feed(f, 1024)
		if err != nil {
			t.Fatalf("Feed failed: %v", err)
		}
		if len(remainder) != 0 {
			t.Fatalf("unexpected remainder after fragment: %d bytes", len(remainder))
		}
		completed = append(completed, c...)
	}
	if len(completed) != 1 {
		t.Fatalf("expected 1 reassembled request, got %d", len(completed))
	}
	req := completed[0]
	if req.Parts != 2 {
		t.Fatalf("expected parts=2, got %d", req.Parts)
	}
	if req.TotalBodyLength != 1500 {
		t.Fatalf("expected totalBodyLength=1500, got %d", req.TotalBodyLength)
	}
	if !bytes.Equal(req.Body, body) {
		t.Fatalf("reassembled body mismatch")
	}
}

// TestArbitrarySplitPoints is the property test from spec.md §8 invariant
// 2: delivered requests must not depend on how the byte stream happens to
// be chunked.
func TestArbitrarySplitPoints(t *testing.T) {
	var stream []byte
	for i := 0; i < 5; i++ {
		enc, err := Encode(&Request{
			Method: MethodSignal,
			HasPath: true,
			Path:    "/x",
			HasBody: true,
			Body:    []byte{byte(i)},
		}, DefaultBufferSize)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		stream = append(stream, append(append([]byte(nil), enc.Prefix...), enc.Body...)...)
	}

	for splitEvery := 1; splitEvery <= 7; splitEvery++ {
		r := NewReassembler()
		var completed []*Request
		var remainder []byte
		for pos := 0; pos < len(stream); pos += splitEvery {
			end := pos + splitEvery
			if end > len(stream) {
				end = len(stream)
			}
			chunk := append(append([]byte(nil), remainder...), stream[pos:end]...)
			c, rem, err := r.Feed(chunk, DefaultBufferSize)
			if err != nil {
				t.Fatalf("split=%d: Feed failed: %v", splitEvery, err)
			}
			completed = append(completed, c...)
			remainder = rem
		}
		if len(remainder) != 0 {
			t.Fatalf("split=%d: leftover remainder %d bytes", splitEvery, len(remainder))
		}
		if len(completed) != 5 {
			t.Fatalf("split=%d: expected 5 requests, got %d", splitEvery, len(completed))
		}
		for i, req := range completed {
			if len(req.Body) != 1 || req.Body[0] != byte(i) {
				t.Fatalf("split=%d: request %d body mismatch: %+v", splitEvery, i, req)
			}
		}
	}
}

func TestEncodeRoundTripStable(t *testing.T) {
	req := &Request{
		Method: MethodRequest,
		HasID:   true,
		ID:      42,
		HasPath: true,
		Path:    "/device/temp",
		Headers: []HeaderField{{Key: "content-type", Value: "application/json"}},
		HasBody: true,
		Body:    []byte(`{"c":21.5}`),
	}
	enc1, err := Encode(req, DefaultBufferSize)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	wire := append(append([]byte(nil), enc1.Prefix...), enc1.Body...)

	r := NewReassembler()
	completed, _, err := r.Feed(wire, DefaultBufferSize)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(completed) != 1 {
		t.Fatalf("expected 1 request, got %d", len(completed))
	}
	decoded := completed[0]
	decoded.Version = req.Version

	enc2, err := Encode(decoded, DefaultBufferSize)
	if err != nil {
		t.Fatalf("re-encode failed: %v", err)
	}
	wire2 := append(append([]byte(nil), enc2.Prefix...), enc2.Body...)
	if !bytes.Equal(wire, wire2) {
		t.Fatalf("encode(decode(encode(r))) != encode(r):\n wire1 %x\n wire2 %x", wire, wire2)
	}
}

func TestHeaderCountBoundary(t *testing.T) {
	headers := make([]HeaderField, 255)
	for i := range headers {
		headers[i] = HeaderField{Key: "k", Value: "v"}
	}
	if _, err := Encode(&Request{Method: MethodSignal, Headers: headers}, 4096); err != nil {
		t.Fatalf("255 headers should be accepted: %v", err)
	}

	headers = append(headers, HeaderField{Key: "k", Value: "v"})
	if _, err := Encode(&Request{Method: MethodSignal, Headers: headers}, 4096); err != ErrTooManyHeaders {
		t.Fatalf("256 headers should be rejected, got %v", err)
	}
}

func TestSignalBodyBoundary(t *testing.T) {
	body := make([]byte, MaxSignalBody)
	if _, err := Encode(&Request{Method: MethodSignal, HasBody: true, Body: body}, DefaultBufferSize); err != nil {
		t.Fatalf("255-byte signal body should be accepted: %v", err)
	}
	body = make([]byte, MaxSignalBody+1)
	if _, err := Encode(&Request{Method: MethodSignal, HasBody: true, Body: body}, DefaultBufferSize); err != ErrBodyTooLarge {
		t.Fatalf("256-byte signal body should be rejected, got %v", err)
	}
}

func TestRequestBodyBoundary(t *testing.T) {
	body := make([]byte, MaxRequestBody)
	if _, err := Encode(&Request{Method: MethodRequest, HasID: true, ID: 1, HasBody: true, Body: body}, 70000); err != nil {
		t.Fatalf("65535-byte request body should be accepted: %v", err)
	}
	body = make([]byte, MaxRequestBody+1)
	if _, err := Encode(&Request{Method: MethodRequest, HasID: true, ID: 1, HasBody: true, Body: body}, 70000); err != ErrBodyTooLarge {
		t.Fatalf("65536-byte request body should be rejected, got %v", err)
	}
}

func TestPathHeadersBufferBoundary(t *testing.T) {
	bufferSize := 64
	path := "/p"
	// path (2 bytes + ETX) + headers must equal bufferSize-8 exactly.
	budget := bufferSize - frameOverhead - (len(path) + 1)
	value := make([]byte, budget-len("k")-2) // minus RS/ETX and key byte
	for i := range value {
		value[i] = 'v'
	}
	headers := []HeaderField{{Key: "k", Value: string(value)}}

	if _, err := Encode(&Request{Method: MethodSignal, HasPath: true, Path: path, Headers: headers}, bufferSize); err != nil {
		t.Fatalf("boundary-fit path+headers should be accepted: %v", err)
	}

	headers[0].Value = string(append(value, 'x'))
	if _, err := Encode(&Request{Method: MethodSignal, HasPath: true, Path: path, Headers: headers}, bufferSize); err != ErrPathHeadersTooLarge {
		t.Fatalf("one-byte-over path+headers should be rejected, got %v", err)
	}
}

func TestAliveFrameCannotCarryPayload(t *testing.T) {
	r := NewReassembler()
	// ALIVE_REQUEST (method=5) with the PATH flag set is a protocol
	// violation per spec.md §9.2.
	bad := []byte{mscbPathFlag, byte(MethodAliveRequest) << 2, '/', 'x', 0x03}
	_, _, err := r.Feed(bad, DefaultBufferSize)
	if err != ErrAliveCarriesPayload {
		t.Fatalf("expected ErrAliveCarriesPayload, got %v", err)
	}
}
