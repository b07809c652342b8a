package frame

import (
	"bytes"
	"encoding/binary"
	"sync"
	"time"
)

// noIDKey is the reassembly-table key used for body-bearing frames sent
// without an ID (a SIGNAL, an id-less STREAMING, or a BUFFER_SIZE_*
// frame); at most one such frame can be in flight on a connection at a
// time since framing is strictly sequential.
const noIDKey uint16 = 0

type reassemblyEntry struct {
	req      *Request
	body     []byte
	received int
	total    int
	parts    int
	timer    *time.Timer
}

// Reassembler decodes a byte stream into logical Requests, tracking
// per-id partial bodies across fragments until totalBodyLength bytes have
// been received (spec.md §4.3). It owns its own mutex because the
// inactivity timers that silently discard stalled entries fire from a
// separate goroutine.
type Reassembler struct {
	mu      sync.Mutex
	entries map[uint16]*reassemblyEntry
	timeout time.Duration
}

// NewReassembler creates a Reassembler using the spec's default 5000ms
// multipart inactivity timeout.
func NewReassembler() *Reassembler {
	return &Reassembler{
		entries: make(map[uint16]*reassemblyEntry),
		timeout: MultipartTimeoutMs * time.Millisecond,
	}
}

// Pending reports the number of ids currently awaiting more fragments.
// Exposed for tests and metrics, not part of the decode contract.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Feed parses as many complete logical Requests as possible from the head
// of data, returning them plus any leftover bytes that must be prepended
// to the next Feed call. bufferSize bounds how far an unterminated path or
// header segment may grow before it is treated as a protocol violation
// rather than a plain truncation (spec.md §4.1 step 3, §6). It is also the
// fragment size the peer writes with: a body-bearing fragment that is not
// yet wholly in data is returned in the remainder.
//
// A non-nil error means the stream desynchronized (an ALIVE_* frame
// claiming a payload, or a path/header segment that outgrew bufferSize
// without its terminator); per spec.md §7 the caller should drop the
// connection's remainder entirely and let higher layers decide whether to
// tear down the connection.
func (r *Reassembler) Feed(data []byte, bufferSize int) (completed []*Request, remainder []byte, err error) {
	pos := 0
	for {
		buf := data[pos:]
		if len(buf) < 2 {
			return completed, buf, nil
		}

		mscb := buf[0]
		lscb := buf[1]
		version := mscb >> 2
		hasIDFlag := mscb&mscbIDFlag != 0
		hasPathFlag := mscb&mscbPathFlag != 0
		method := Method(lscb >> 2)
		hasHeaderFlag := lscb&lscbHeaderFlag != 0
		hasBodyFlag := lscb&lscbBodyFlag != 0

		if method == MethodAliveRequest || method == MethodAliveResponse {
			if hasIDFlag || hasPathFlag || hasHeaderFlag || hasBodyFlag {
				return completed, nil, ErrAliveCarriesPayload
			}
			completed = append(completed, &Request{Version: version, Method: method, Parts: 1})
			pos += 2
			continue
		}

		cursor := 2

		var id uint16
		if hasIDFlag {
			if len(buf) < cursor+2 {
				return completed, buf, nil
			}
			id = binary.BigEndian.Uint16(buf[cursor : cursor+2])
			cursor += 2
		}

		var path string
		if hasPathFlag {
			idx := bytes.IndexByte(buf[cursor:], ETX)
			if idx < 0 {
				if len(buf)-cursor > bufferSize-frameOverhead {
					return completed, nil, ErrUnterminatedField
				}
				return completed, buf, nil
			}
			path = string(buf[cursor : cursor+idx])
			cursor += idx + 1
		}

		var headers []HeaderField
		if hasHeaderFlag {
			if len(buf) < cursor+1 {
				return completed, buf, nil
			}
			n := int(buf[cursor])
			cursor++
			headerStart := cursor
			headers = make([]HeaderField, 0, n)
			for i := 0; i < n; i++ {
				rsIdx := bytes.IndexByte(buf[cursor:], RS)
				if rsIdx < 0 {
					if len(buf)-headerStart > bufferSize-frameOverhead {
						return completed, nil, ErrUnterminatedField
					}
					return completed, buf, nil
				}
				key := string(buf[cursor : cursor+rsIdx])
				cursor += rsIdx + 1

				etxIdx := bytes.IndexByte(buf[cursor:], ETX)
				if etxIdx < 0 {
					if len(buf)-headerStart > bufferSize-frameOverhead {
						return completed, nil, ErrUnterminatedField
					}
					return completed, buf, nil
				}
				value := string(buf[cursor : cursor+etxIdx])
				cursor += etxIdx + 1

				headers = append(headers, HeaderField{Key: key, Value: value})
			}
		}

		width := bodyLenWidth(method)
		hasBody := hasBodyFlag && width > 0
		var total int
		if hasBody {
			if len(buf) < cursor+width {
				return completed, buf, nil
			}
			total = decodeBodyLen(buf[cursor : cursor+width])
			cursor += width
		}

		if !hasBody {
			pos += cursor
			completed = append(completed, &Request{
				Version: version,
				Method:  method,
				HasID:   hasIDFlag,
				ID:      id,
				HasPath: hasPathFlag,
				Path:    path,
				Headers: headers,
				Parts:   1,
			})
			continue
		}

		key := id
		if !hasIDFlag {
			key = noIDKey
		}

		// A fragment carries at most bufferSize minus its prefix of body
		// bytes (Encoded.Fragments); until that whole share has arrived
		// the fragment stays in the remainder.
		r.mu.Lock()
		want := total
		if e, ok := r.entries[key]; ok {
			want = e.total - e.received
		}
		r.mu.Unlock()
		if chunk := bufferSize - cursor; chunk > 0 && want > chunk {
			want = chunk
		}
		if len(buf)-cursor < want {
			return completed, buf, nil
		}
		req, consumed, done := r.accumulate(key, total, buf[cursor:], want, version, method, hasIDFlag, id, hasPathFlag, path, headers)

		pos += cursor + consumed
		if done {
			completed = append(completed, req)
		}
	}
}

// accumulate folds one fragment's body chunk into the reassembly entry for
// key, creating the entry on first sight. It returns done=true once the
// logical frame is complete, alongside how many of the fragment's body
// bytes were consumed in this call.
func (r *Reassembler) accumulate(key uint16, total int, available []byte, chunkAvail int, version byte, method Method, hasID bool, id uint16, hasPath bool, path string, headers []HeaderField) (*Request, int, bool) {
	r.mu.Lock()

	e, ok := r.entries[key]
	if !ok {
		e = &reassemblyEntry{
			req: &Request{
				Version: version,
				Method:  method,
				HasID:   hasID,
				ID:      id,
				HasPath: hasPath,
				Path:    path,
				Headers: headers,
			},
			total: total,
		}
		e.timer = time.AfterFunc(r.timeout, func() { r.expire(key) })
		r.entries[key] = e
	} else {
		e.timer.Reset(r.timeout)
	}

	remainingNeeded := e.total - e.received
	n := chunkAvail
	if n > remainingNeeded {
		n = remainingNeeded
	}
	e.body = append(e.body, available[:n]...)
	e.received += n
	e.parts++

	if e.received >= e.total {
		e.timer.Stop()
		delete(r.entries, key)
		r.mu.Unlock()

		e.req.HasBody = true
		e.req.Body = e.body
		e.req.BodyLength = e.total
		e.req.TotalBodyLength = e.total
		e.req.Parts = e.parts
		return e.req, n, true
	}
	r.mu.Unlock()
	return nil, n, false
}

// expire silently discards a reassembly entry that has gone 5000ms without
// a new fragment (spec.md §4.3, §7): no error is surfaced here, a pending
// response descriptor (if any) will still time out on its own schedule.
func (r *Reassembler) expire(key uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
}

func decodeBodyLen(b []byte) int {
	switch len(b) {
	case 1:
		return int(b[0])
	case 2:
		return int(binary.BigEndian.Uint16(b))
	case 4:
		return int(binary.BigEndian.Uint32(b))
	default:
		return 0
	}
}
