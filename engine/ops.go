package engine

import (
	"encoding/binary"
	"time"

	"iot-proto/frame"
	"iot-proto/session"
)

// send encodes req, fragments it to the connection's negotiated buffer
// size, and writes every fragment while holding the connection's single
// write lock (spec.md §4.2/§5: exactly one logical send in flight at a
// time). On success it resets the connection's keep-alive timer, since
// spec.md §4.5 resets the interval "after every... outbound
// multi-fragment write", not only on inbound activity.
func (e *Engine) send(c *session.Connection, req *frame.Request) error {
	if c.Closed() {
		return ErrConnectionClosed
	}

	enc, err := frame.Encode(req, c.BufferSize())
	if err != nil {
		return err
	}
	fragments := enc.Fragments(c.BufferSize())
	req.Parts = len(fragments)

	c.Lock()
	defer c.Unlock()
	for _, frag := range fragments {
		if _, err := c.Write(frag); err != nil {
			return err
		}
	}
	c.ResetKeepAlive()
	return nil
}

// Signal sends a one-way SIGNAL frame; no response is expected.
func (e *Engine) Signal(c *session.Connection, path string, body []byte) error {
	return e.send(c, &frame.Request{
		Method:  frame.MethodSignal,
		HasPath: path != "",
		Path:    path,
		HasBody: len(body) > 0,
		Body:    body,
	})
}

// Request sends a REQUEST frame and blocks until a matching RESPONSE
// arrives or the connection's response timeout elapses (spec.md §4.4/§5:
// "exactly one of onResponse(final) or onTimeout is invoked"). A timeout
// is reported as ErrResponseTimeout rather than a zero-value Request —
// callers that need to race on both outcomes without an error value
// should use RequestAsync directly.
func (e *Engine) Request(c *session.Connection, path string, headers []frame.HeaderField, body []byte) (*frame.Request, error) {
	ch, err := e.RequestAsync(c, path, headers, body)
	if err != nil {
		return nil, err
	}
	resp, ok := <-ch
	if !ok {
		return nil, ErrResponseTimeout
	}
	return resp, nil
}

// RequestAsync sends a REQUEST frame and returns a channel that receives
// the matching RESPONSE, or is closed without a value once the
// connection's response timeout elapses (spec.md §4.1 pending table, §6
// default 1000ms).
func (e *Engine) RequestAsync(c *session.Connection, path string, headers []frame.HeaderField, body []byte) (<-chan *frame.Request, error) {
	id, err := c.AllocateID()
	if err != nil {
		return nil, err
	}

	out := make(chan *frame.Request, 1)
	timeout := time.Duration(e.opts.ResponseTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = frame.DefaultResponseTimeoutMs * time.Millisecond
	}

	c.Pending().Insert(id, &session.PendingEntry{
		Timeout: timeout,
		OnResponse: func(resp *frame.Request) {
			e.metrics.responsesMatched.Inc()
			out <- resp
		},
		OnTimeout: func() {
			e.metrics.pendingTimeouts.Inc()
			close(out)
		},
	})

	req := &frame.Request{
		Method:  frame.MethodRequest,
		HasID:   true,
		ID:      id,
		HasPath: path != "",
		Path:    path,
		Headers: headers,
		HasBody: len(body) > 0,
		Body:    body,
	}
	if err := e.send(c, req); err != nil {
		c.Pending().Resolve(id, nil, true)
		return nil, err
	}
	return out, nil
}

// Response replies to a REQUEST, echoing its id (spec.md §4.1). headers
// may be nil; router uses this to carry a handler's error message as a
// HEADER pair instead of a second encoded envelope.
func (e *Engine) Response(c *session.Connection, id uint16, headers []frame.HeaderField, body []byte) error {
	return e.send(c, &frame.Request{
		Method:  frame.MethodResponse,
		HasID:   true,
		ID:      id,
		Headers: headers,
		HasBody: len(body) > 0,
		Body:    body,
	})
}

// Streaming sends a one-way STREAMING frame with no response descriptor,
// whose BODY_LEN is a 4-byte field supporting payloads up to
// frame.MaxStreamingBody.
func (e *Engine) Streaming(c *session.Connection, path string, body []byte) error {
	return e.send(c, &frame.Request{
		Method:  frame.MethodStreaming,
		HasPath: path != "",
		Path:    path,
		HasBody: len(body) > 0,
		Body:    body,
	})
}

// StreamingAsync sends a STREAMING frame carrying an id and registers a
// pending-response descriptor, mirroring RequestAsync (spec.md §4.7 lists
// `streaming(req, resp?)` with the same optional-response shape as
// `request(req, resp?)`). Use Streaming instead when no response is
// expected, since carrying an unused id still occupies a pending-table
// slot until its timeout elapses.
func (e *Engine) StreamingAsync(c *session.Connection, path string, body []byte) (<-chan *frame.Request, error) {
	id, err := c.AllocateID()
	if err != nil {
		return nil, err
	}

	out := make(chan *frame.Request, 1)
	timeout := time.Duration(e.opts.ResponseTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = frame.DefaultResponseTimeoutMs * time.Millisecond
	}

	c.Pending().Insert(id, &session.PendingEntry{
		Timeout: timeout,
		OnResponse: func(resp *frame.Request) {
			e.metrics.responsesMatched.Inc()
			out <- resp
		},
		OnTimeout: func() {
			e.metrics.pendingTimeouts.Inc()
			close(out)
		},
	})

	req := &frame.Request{
		Method:  frame.MethodStreaming,
		HasID:   true,
		ID:      id,
		HasPath: path != "",
		Path:    path,
		HasBody: len(body) > 0,
		Body:    body,
	}
	if err := e.send(c, req); err != nil {
		c.Pending().Resolve(id, nil, true)
		return nil, err
	}
	return out, nil
}

// AliveResponse answers an inbound ALIVE_REQUEST.
func (e *Engine) AliveResponse(c *session.Connection) error {
	return e.send(c, &frame.Request{Method: frame.MethodAliveResponse})
}

// BufferSizeRequest asks the peer to renegotiate the fragmentation size;
// newSize of 0 restores frame.DefaultBufferSize (spec.md §4.6). Like
// ALIVE_*, BUFFER_SIZE_* frames carry no id.
func (e *Engine) BufferSizeRequest(c *session.Connection, newSize int) error {
	var body [4]byte
	binary.BigEndian.PutUint32(body[:], uint32(newSize))
	return e.send(c, &frame.Request{Method: frame.MethodBufferSizeRequest, HasBody: true, Body: body[:]})
}

// BufferSizeResponse acknowledges a BUFFER_SIZE_REQUEST, echoing the size
// now in effect.
func (e *Engine) BufferSizeResponse(c *session.Connection, size int) error {
	var body [4]byte
	binary.BigEndian.PutUint32(body[:], uint32(size))
	return e.send(c, &frame.Request{Method: frame.MethodBufferSizeResponse, HasBody: true, Body: body[:]})
}

// sendAliveRequest is invoked by the keep-alive controller on inactivity
// (spec.md §4.5). It arms a one-shot timeout that destroys the connection
// if no ALIVE_RESPONSE follows.
func (e *Engine) sendAliveRequest(c *session.Connection) {
	ch := make(chan struct{})
	e.aliveMu.Lock()
	e.aliveing[c] = ch
	e.aliveMu.Unlock()

	if err := e.send(c, &frame.Request{Method: frame.MethodAliveRequest}); err != nil {
		e.clearAliveWait(c)
		c.Close()
		return
	}

	timeout := time.Duration(e.opts.ResponseTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = frame.DefaultResponseTimeoutMs * time.Millisecond
	}
	go func() {
		select {
		case <-ch:
		case <-time.After(timeout):
			e.metrics.aliveTimeouts.Inc()
			e.clearAliveWait(c)
			c.CloseWithReason(ErrAliveTimeout)
		}
	}()
}

func (e *Engine) resolveAliveWait(c *session.Connection) {
	e.aliveMu.Lock()
	ch, ok := e.aliveing[c]
	if ok {
		delete(e.aliveing, c)
	}
	e.aliveMu.Unlock()
	if ok {
		close(ch)
	}
}

func (e *Engine) clearAliveWait(c *session.Connection) {
	e.aliveMu.Lock()
	delete(e.aliveing, c)
	e.aliveMu.Unlock()
}
