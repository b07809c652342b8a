// Package middleware implements the Protocol Engine's middleware chain
// (spec.md §4.7): it is evaluated only for inbound SIGNAL, REQUEST, and
// STREAMING frames that have no matching pending response (spec.md §9.3).
//
// Unlike the teacher's onion model — where a Middleware wraps and returns
// a new HandlerFunc — spec.md's contract is explicit continuation passing:
// "Each middleware receives (request, next). Calling next() advances;
// omitting it terminates the chain." There is no built-in error
// propagation across middlewares; a panicking middleware is the host's
// concern (spec.md §4.7, §7).
package middleware

import "iot-proto/frame"

// Next advances the chain to the following middleware, or to the final
// handler if this was the last one registered.
type Next func()

// Middleware is one link in the chain. Not calling next terminates
// dispatch for this request.
type Middleware func(req *frame.Request, next Next)

// Chain runs a fixed sequence of middlewares ahead of a terminal handler.
type Chain struct {
	middlewares []Middleware
}

// Use appends mw to the chain, in registration order (spec.md §4.7 `use`).
func (c *Chain) Use(mw Middleware) {
	c.middlewares = append(c.middlewares, mw)
}

// Run dispatches req through every middleware in registration order,
// invoking final once the chain is exhausted (or never, if some
// middleware declines to call next).
func (c *Chain) Run(req *frame.Request, final func(*frame.Request)) {
	var step func(i int)
	step = func(i int) {
		if i >= len(c.middlewares) {
			final(req)
			return
		}
		c.middlewares[i](req, func() { step(i + 1) })
	}
	step(0)
}
