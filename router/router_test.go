package router

import (
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"iot-proto/codec"
	"iot-proto/engine"
)

type pipeConn struct {
	net.Conn
	addr string
}

func (p *pipeConn) RemoteAddr() string { return p.addr }

type addArgs struct {
	A, B int
}

type addReply struct {
	Sum int
}

func newTestEngine() *engine.Engine {
	opts := engine.DefaultOptions()
	opts.Metrics = engine.NewMetrics(prometheus.NewRegistry())
	return engine.New(opts)
}

func TestRouterDispatchesRegisteredPath(t *testing.T) {
	a, b := net.Pipe()
	clientEngine := newTestEngine()
	serverEngine := newTestEngine()

	clientConn := clientEngine.Listen(&pipeConn{Conn: a, addr: "client:1"})
	serverEngine.Listen(&pipeConn{Conn: b, addr: "server:1"})

	r := New(serverEngine)
	if err := r.Register("/math/add", func(args *addArgs, reply *addReply) error {
		reply.Sum = args.A + args.B
		return nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r.Install()

	jsonCodec := codec.GetCodec(codec.CodecTypeJSON)
	body, err := jsonCodec.Encode(&addArgs{A: 2, B: 3})
	if err != nil {
		t.Fatalf("encode request body: %v", err)
	}

	resp, err := clientEngine.Request(clientConn, "/math/add", nil, body)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	for _, h := range resp.Headers {
		if h.Key == ErrorHeaderKey {
			t.Fatalf("unexpected handler error: %s", h.Value)
		}
	}

	var reply addReply
	if err := jsonCodec.Decode(resp.Body, &reply); err != nil {
		t.Fatalf("decode reply body: %v", err)
	}
	if reply.Sum != 5 {
		t.Fatalf("got sum %d, want 5", reply.Sum)
	}
}

func TestRouterRejectsUnknownPath(t *testing.T) {
	a, b := net.Pipe()
	clientEngine := newTestEngine()
	serverEngine := newTestEngine()

	clientConn := clientEngine.Listen(&pipeConn{Conn: a, addr: "client:2"})
	serverEngine.Listen(&pipeConn{Conn: b, addr: "server:2"})

	r := New(serverEngine)
	r.Install()

	resp, err := clientEngine.Request(clientConn, "/no/such/path", nil, nil)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	found := false
	for _, h := range resp.Headers {
		if h.Key == ErrorHeaderKey && h.Value != "" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an error header for an unregistered path")
	}
	if resp.HasBody {
		t.Fatal("an error response should carry no body")
	}
}

func TestNewHandlerRejectsBadSignature(t *testing.T) {
	if _, err := newHandler(func() {}); err == nil {
		t.Fatal("expected error for zero-arg func")
	}
	if _, err := newHandler(func(a, b int) error { return nil }); err == nil {
		t.Fatal("expected error for non-pointer args")
	}
	if _, err := newHandler(func(a, b *int) {}); err == nil {
		t.Fatal("expected error for missing error return")
	}
	if _, err := newHandler("not a func"); err == nil {
		t.Fatal("expected error for a non-func value")
	}
}
