// Package router implements path-based request dispatch atop an
// engine.Engine, adapted from the teacher's reflection-based RPC service
// dispatch (server/service.go) — "Service.Method" strings there become
// the frame's own PATH field here, and the teacher's RPCMessage.Error
// becomes a single RESPONSE header instead of a second encoded wrapper,
// since this protocol's frame already carries both PATH and HEADER
// fields natively.
package router

import (
	"fmt"
	"reflect"

	"iot-proto/codec"
	"iot-proto/engine"
	"iot-proto/frame"
	"iot-proto/session"
)

// ErrorHeaderKey is the RESPONSE header carrying a handler's error
// message, set only when the call failed (spec.md §4.1 HEADER is an
// arbitrary key/value list; router reserves this one key).
const ErrorHeaderKey = "error"

// errorType is used to check that a registered handler's return type is
// error, exactly as the teacher's service.go does.
var errorType = reflect.TypeOf((*error)(nil)).Elem()

// handlerType stores the reflection metadata for one registered path
// handler, the path-keyed counterpart of the teacher's methodType.
type handlerType struct {
	fn        reflect.Value
	ArgType   reflect.Type
	ReplyType reflect.Type
}

func newHandler(fn any) (*handlerType, error) {
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return nil, fmt.Errorf("router: handler must be a func, got %s", t.Kind())
	}
	if t.NumIn() != 2 || t.NumOut() != 1 {
		return nil, fmt.Errorf("router: handler must be func(*Args, *Reply) error")
	}
	if t.Out(0) != errorType {
		return nil, fmt.Errorf("router: handler's return type must be error")
	}
	if t.In(0).Kind() != reflect.Ptr || t.In(1).Kind() != reflect.Ptr {
		return nil, fmt.Errorf("router: handler's args and reply must be pointer types")
	}
	return &handlerType{fn: v, ArgType: t.In(0).Elem(), ReplyType: t.In(1).Elem()}, nil
}

func (h *handlerType) call(argv, replyv reflect.Value) error {
	results := h.fn.Call([]reflect.Value{argv, replyv})
	if !results[0].IsNil() {
		return results[0].Interface().(error)
	}
	return nil
}

// Router dispatches inbound SIGNAL/REQUEST/STREAMING frames to a
// registered handler by path, mirroring the teacher's Server.Register +
// businessHandler decode/call/encode pipeline.
type Router struct {
	eng      *engine.Engine
	handlers map[string]*handlerType
	codec    codec.CodecType
}

// New creates a Router bound to eng. Call Install once handlers are
// registered to wire Router.Handle as the engine's terminal handler.
func New(eng *engine.Engine) *Router {
	return &Router{eng: eng, handlers: make(map[string]*handlerType), codec: codec.CodecTypeJSON}
}

// SetCodec selects the codec used to serialize handler arguments and
// replies. Defaults to JSON, the same default the teacher's transport
// uses.
func (r *Router) SetCodec(t codec.CodecType) { r.codec = t }

// Register binds path to fn, which must have the signature
// func(args *Args, reply *Reply) error — the same convention the
// teacher's RegisterMethods enforces via reflection, applied here to a
// plain function instead of a struct's methods.
func (r *Router) Register(path string, fn any) error {
	h, err := newHandler(fn)
	if err != nil {
		return err
	}
	r.handlers[path] = h
	return nil
}

// Install wires Router.Handle as the engine's OnFrame handler.
func (r *Router) Install() { r.eng.OnFrame(r.Handle) }

// Handle is the engine.Handler entry point: look up the path carried by
// the frame itself, decode the body directly into the handler's argument
// type, invoke the handler via reflection, and — for REQUEST frames only
// — send back an encoded RESPONSE (spec.md §4.1: SIGNAL/STREAMING never
// receive a reply).
func (r *Router) Handle(c *session.Connection, req *frame.Request) {
	h, ok := r.handlers[req.Path]
	if !ok {
		r.reply(c, req, nil, fmt.Errorf("router: no handler registered for %q", req.Path))
		return
	}

	cdc := codec.GetCodec(r.codec)
	argv := reflect.New(h.ArgType)
	if req.HasBody {
		if err := cdc.Decode(req.Body, argv.Interface()); err != nil {
			r.reply(c, req, nil, err)
			return
		}
	}

	replyv := reflect.New(h.ReplyType)
	callErr := h.call(argv, replyv)
	r.reply(c, req, replyv.Interface(), callErr)
}

// reply encodes replyValue as the RESPONSE body, or — if callErr is
// non-nil — sends an empty body with an ErrorHeaderKey header carrying
// the error's message instead of a wrapper struct.
func (r *Router) reply(c *session.Connection, req *frame.Request, replyValue any, callErr error) {
	if req.Method != frame.MethodRequest || !req.HasID {
		return
	}

	if callErr != nil {
		r.eng.Response(c, req.ID, []frame.HeaderField{{Key: ErrorHeaderKey, Value: callErr.Error()}}, nil)
		return
	}

	cdc := codec.GetCodec(r.codec)
	body, err := cdc.Encode(replyValue)
	if err != nil {
		r.eng.Response(c, req.ID, []frame.HeaderField{{Key: ErrorHeaderKey, Value: err.Error()}}, nil)
		return
	}
	r.eng.Response(c, req.ID, nil, body)
}
