package engine

import (
	"encoding/binary"

	"iot-proto/frame"
	"iot-proto/session"
)

// dispatch routes one completed inbound frame: RESPONSE/ALIVE_RESPONSE
// resolve an outstanding wait; ALIVE_REQUEST/BUFFER_SIZE_REQUEST get an
// automatic reply; SIGNAL/REQUEST/STREAMING run the middleware chain ahead
// of the installed Handler (spec.md §4.7, §9.3 "only frames with no
// matching pending id"); frames of any other method are dropped.
func (e *Engine) dispatch(c *session.Connection, req *frame.Request) {
	switch req.Method {
	case frame.MethodAliveRequest:
		e.AliveResponse(c)

	case frame.MethodAliveResponse:
		e.resolveAliveWait(c)

	case frame.MethodBufferSizeRequest:
		e.handleBufferSizeRequest(c, req)

	case frame.MethodBufferSizeResponse:
		// No ID accompanies BUFFER_SIZE_RESPONSE (spec.md open question,
		// resolved "no ID"); the negotiation is fire-and-forget from the
		// requester's perspective once this ack is observed.
		e.metrics.bufferSizeAcks.Inc()

	case frame.MethodResponse:
		if req.HasID && c.Pending().Has(req.ID) {
			c.Pending().Resolve(req.ID, req, true)
			return
		}
		e.metrics.orphanResponses.Inc()

	case frame.MethodSignal, frame.MethodRequest, frame.MethodStreaming:
		e.chain.Run(req, func(req *frame.Request) {
			if e.handler != nil {
				e.handler(c, req)
			}
		})
	}
}

func (e *Engine) handleBufferSizeRequest(c *session.Connection, req *frame.Request) {
	newSize := frame.DefaultBufferSize
	if len(req.Body) == 4 {
		newSize = int(binary.BigEndian.Uint32(req.Body))
	}
	if newSize == 0 {
		newSize = frame.DefaultBufferSize
	}
	c.SetBufferSize(newSize)
	e.BufferSizeResponse(c, newSize)
}
