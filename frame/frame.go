// Package frame implements the binary wire format of the IoT request/response
// protocol: encoding a logical Request into a control-byte prefix plus a body
// blob, and decoding raw bytes back into zero or more logical Requests.
//
// Wire layout (identical inbound and outbound):
//
//	MSCB LSCB [ID:2BE] [PATH bytes, ETX] [HEADER_COUNT:1] {key,RS,value,ETX}xn [BODY_LEN:1|2|4 BE] [BODY bytes]
//
// MSCB packs version (bits 7..2) and the ID/PATH presence flags (bits 1,0).
// LSCB packs the method (bits 7..2) and the HEADER/BODY presence flags
// (bits 1,0). A multipart logical frame repeats the full prefix (through
// BODY_LEN) on every TCP write; BODY_LEN always states the total body
// length, not the chunk length of the current write.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Method identifies the kind of frame on the wire.
type Method byte

// Method constants are prefixed (MethodRequest, not Request) because the
// wire method named REQUEST would otherwise collide with the Request
// struct type below, the way http.MethodGet avoids colliding with
// http.Request.
const (
	MethodSignal             Method = 1
	MethodRequest            Method = 2
	MethodResponse           Method = 3
	MethodStreaming          Method = 4
	MethodAliveRequest       Method = 5
	MethodAliveResponse      Method = 6
	MethodBufferSizeRequest  Method = 7
	MethodBufferSizeResponse Method = 8
)

func (m Method) String() string {
	switch m {
	case MethodSignal:
		return "SIGNAL"
	case MethodRequest:
		return "REQUEST"
	case MethodResponse:
		return "RESPONSE"
	case MethodStreaming:
		return "STREAMING"
	case MethodAliveRequest:
		return "ALIVE_REQUEST"
	case MethodAliveResponse:
		return "ALIVE_RESPONSE"
	case MethodBufferSizeRequest:
		return "BUFFER_SIZE_REQUEST"
	case MethodBufferSizeResponse:
		return "BUFFER_SIZE_RESPONSE"
	default:
		return fmt.Sprintf("METHOD(%d)", byte(m))
	}
}

// Control byte bits, per spec.md §4.1/§6.
const (
	mscbIDFlag   byte = 0x02
	mscbPathFlag byte = 0x01

	lscbHeaderFlag byte = 0x02
	lscbBodyFlag   byte = 0x01

	// ETX terminates path strings and header key/value segments.
	ETX byte = 0x03
	// RS separates a header key from its value.
	RS byte = 0x1E
)

// Defaults, per spec.md §6.
const (
	DefaultVersion        byte = 1
	DefaultBufferSize          = 1024
	DefaultAliveInterval       = 60  // seconds
	MultipartTimeoutMs         = 5000
	DefaultResponseTimeoutMs   = 1000
	DefaultWriteLockPollMs     = 300

	MaxSignalBody    = 255
	MaxRequestBody   = 65535
	MaxStreamingBody = 4294967295

	MaxHeaderCount = 255

	// frameOverhead is the fixed byte budget (§6) reserved outside of the
	// path + header payload when negotiating against bufferSize.
	frameOverhead = 8
)

// HeaderField is one key/value header pair. Headers are kept as an ordered
// slice rather than a map so that round-trip encoding preserves wire order
// (spec.md §9.4).
type HeaderField struct {
	Key   string
	Value string
}

// Request is one logical frame of the protocol.
type Request struct {
	Version byte
	Method  Method

	HasID bool
	ID    uint16

	HasPath bool
	Path    string

	Headers []HeaderField

	HasBody bool
	Body    []byte

	// BodyLength is the number of body bytes delivered by the fragment that
	// produced this Request (equal to TotalBodyLength once complete).
	BodyLength int
	// TotalBodyLength is the authoritative length declared by the first
	// fragment of the message.
	TotalBodyLength int

	// Parts is, on send, the number of TCP writes used to deliver the
	// frame; on receive, the number of fragments reassembled.
	Parts int
}

// Clone returns a deep-enough copy suitable for a pending-response snapshot.
func (r *Request) Clone() *Request {
	c := *r
	if r.Headers != nil {
		c.Headers = append([]HeaderField(nil), r.Headers...)
	}
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return &c
}

// usesID reports whether the given method ever carries an ID on the wire.
// ALIVE_* and BUFFER_SIZE_* never do (spec.md §3, open question §9.1
// resolved as "no ID").
func usesID(m Method) bool {
	switch m {
	case MethodAliveRequest, MethodAliveResponse, MethodBufferSizeRequest, MethodBufferSizeResponse:
		return false
	default:
		return true
	}
}

// carriesBody reports whether the method's wire layout includes a BODY_LEN
// field at all. ALIVE_* frames never do.
func carriesBody(m Method) bool {
	return m != MethodAliveRequest && m != MethodAliveResponse
}

// bodyLenWidth returns the width in bytes of the BODY_LEN field for m.
func bodyLenWidth(m Method) int {
	switch m {
	case MethodSignal, MethodBufferSizeRequest, MethodBufferSizeResponse:
		return 1
	case MethodRequest, MethodResponse:
		return 2
	case MethodStreaming:
		return 4
	default:
		return 0
	}
}

func maxBodyFor(m Method) int {
	switch m {
	case MethodSignal:
		return MaxSignalBody
	case MethodRequest, MethodResponse:
		return MaxRequestBody
	case MethodStreaming:
		return MaxStreamingBody
	case MethodBufferSizeRequest, MethodBufferSizeResponse:
		return 4
	default:
		return 0
	}
}

var (
	// ErrTooManyHeaders is returned at encode time when a request carries
	// more than MaxHeaderCount header pairs.
	ErrTooManyHeaders = errors.New("frame: header count exceeds 255")
	// ErrPathHeadersTooLarge is returned at encode time when path+headers
	// would not fit the negotiated buffer size.
	ErrPathHeadersTooLarge = errors.New("frame: path and headers exceed bufferSize-8")
	// ErrBodyTooLarge is returned at encode time when the body exceeds the
	// method's length-field capacity.
	ErrBodyTooLarge = errors.New("frame: body exceeds method's maximum length")
	// ErrAliveCarriesPayload is returned when decoding an ALIVE_* frame
	// whose control bytes claim a path, header, or body (spec.md §9.2).
	ErrAliveCarriesPayload = errors.New("frame: ALIVE frame must not carry path, headers or body")
	// ErrUnterminatedField signals a path or header segment that grew past
	// the negotiated buffer size without finding its ETX terminator — a
	// protocol violation rather than a simple truncation (spec.md §4.1
	// step 3, resolved per the bufferSize-8 invariant of spec.md §6).
	ErrUnterminatedField = errors.New("frame: path or header field exceeds bufferSize without terminator")
)

// Encoded is the split wire representation of a Request: everything through
// BODY_LEN (Prefix) and the body blob. A writer fragments Body across
// multiple physical writes when it exceeds the negotiated buffer size,
// re-emitting Prefix on each one (spec.md glossary: Multipart).
type Encoded struct {
	Prefix []byte
	Body   []byte
}

// Encode serializes req into its wire prefix and body, validating the
// preconditions in spec.md §4.1 and §6. req.ID must already be resolved by
// the caller for ID-bearing methods (see session.Connection.AllocateID);
// Encode does not allocate IDs itself.
func Encode(req *Request, bufferSize int) (*Encoded, error) {
	if len(req.Headers) > MaxHeaderCount {
		return nil, ErrTooManyHeaders
	}

	version := req.Version
	if version == 0 {
		version = DefaultVersion
	}

	hasID := usesID(req.Method) && req.HasID
	hasPath := req.HasPath && req.Path != ""
	hasBody := carriesBody(req.Method) && req.HasBody

	var pathBytes []byte
	if hasPath {
		pathBytes = append([]byte(req.Path), ETX)
	}

	headerBytes := encodeHeaders(req.Headers)

	if len(pathBytes)+len(headerBytes) > bufferSize-frameOverhead {
		return nil, ErrPathHeadersTooLarge
	}

	body := req.Body
	if !hasBody {
		body = nil
	}
	maxBody := maxBodyFor(req.Method)
	if len(body) > maxBody {
		return nil, ErrBodyTooLarge
	}

	mscb := (version << 2)
	if hasID {
		mscb |= mscbIDFlag
	}
	if hasPath {
		mscb |= mscbPathFlag
	}

	lscb := byte(req.Method) << 2
	hasHeaders := len(req.Headers) > 0
	if hasHeaders {
		lscb |= lscbHeaderFlag
	}
	bodyLenWidth := bodyLenWidth(req.Method)
	if hasBody && bodyLenWidth > 0 {
		lscb |= lscbBodyFlag
	}

	prefix := make([]byte, 0, 2+2+len(pathBytes)+1+len(headerBytes)+4)
	prefix = append(prefix, mscb, lscb)
	if hasID {
		var idBuf [2]byte
		binary.BigEndian.PutUint16(idBuf[:], req.ID)
		prefix = append(prefix, idBuf[:]...)
	}
	if hasPath {
		prefix = append(prefix, pathBytes...)
	}
	if hasHeaders {
		prefix = append(prefix, byte(len(req.Headers)))
		prefix = append(prefix, headerBytes...)
	}
	if hasBody && bodyLenWidth > 0 {
		prefix = append(prefix, encodeBodyLen(bodyLenWidth, len(body))...)
	}

	return &Encoded{Prefix: prefix, Body: body}, nil
}

func encodeHeaders(headers []HeaderField) []byte {
	if len(headers) == 0 {
		return nil
	}
	var out []byte
	for _, h := range headers {
		out = append(out, []byte(h.Key)...)
		out = append(out, RS)
		out = append(out, []byte(h.Value)...)
		out = append(out, ETX)
	}
	return out
}

func encodeBodyLen(width, n int) []byte {
	switch width {
	case 1:
		return []byte{byte(n)}
	case 2:
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(n))
		return buf
	case 4:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(n))
		return buf
	default:
		return nil
	}
}

// Fragments splits an Encoded frame into the sequence of physical writes a
// sender performs, re-emitting Prefix on every fragment once the body
// exceeds bufferSize (spec.md glossary: Multipart; §8 scenario 4). The
// engine's send records the number of returned fragments as req.Parts.
func (e *Encoded) Fragments(bufferSize int) [][]byte {
	chunkSize := bufferSize - len(e.Prefix)
	if chunkSize <= 0 {
		chunkSize = len(e.Body)
		if chunkSize == 0 {
			chunkSize = 1
		}
	}
	if len(e.Body) <= chunkSize {
		frame := make([]byte, 0, len(e.Prefix)+len(e.Body))
		frame = append(frame, e.Prefix...)
		frame = append(frame, e.Body...)
		return [][]byte{frame}
	}

	var out [][]byte
	remaining := e.Body
	for len(remaining) > 0 {
		n := chunkSize
		if n > len(remaining) {
			n = len(remaining)
		}
		frag := make([]byte, 0, len(e.Prefix)+n)
		frag = append(frag, e.Prefix...)
		frag = append(frag, remaining[:n]...)
		out = append(out, frag)
		remaining = remaining[n:]
	}
	return out
}
