package stream

import (
	"crypto/tls"
	"net"
	"sync/atomic"
)

// Listener accepts TCP connections and hands each one, wrapped as a
// TCPStream, to onAccept — mirroring the teacher's Server.Serve accept
// loop (one goroutine per connection, here left to onAccept's caller).
type Listener struct {
	ln     net.Listener
	closed atomic.Bool
}

// Listen opens a TCP listener on address, the same "network, address"
// shape as the teacher's Server.Serve.
func Listen(network, address string) (*Listener, error) {
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln}, nil
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Serve accepts connections until Close is called or Accept fails,
// invoking onAccept with each connection wrapped as a Stream. Like the
// teacher's accept loop, Serve returns nil on an intentional Close and
// the underlying error otherwise.
func (l *Listener) Serve(onAccept func(*TCPStream)) error {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.closed.Load() {
				return nil
			}
			return err
		}
		onAccept(NewTCP(conn))
	}
}

// Close stops the listener; any Accept blocked in Serve returns an error
// and Serve exits with nil.
func (l *Listener) Close() error {
	l.closed.Store(true)
	return l.ln.Close()
}

// Dial connects to address and returns it wrapped as a Stream, the
// client-side counterpart of Listen/Serve.
func Dial(network, address string) (*TCPStream, error) {
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, err
	}
	return NewTCP(conn), nil
}

// ListenTLS is Listen's TLS counterpart (spec.md §1: "Transport may be
// plain TCP or TLS"). The core never distinguishes the two — it consumes
// whatever Stream a collaborator hands it — so this is purely
// crypto/tls.Listen wrapped to produce the same *Listener shape.
func ListenTLS(network, address string, cfg *tls.Config) (*Listener, error) {
	ln, err := tls.Listen(network, address, cfg)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln}, nil
}

// DialTLS is Dial's TLS counterpart.
func DialTLS(network, address string, cfg *tls.Config) (*TCPStream, error) {
	conn, err := tls.Dial(network, address, cfg)
	if err != nil {
		return nil, err
	}
	return NewTCP(conn), nil
}
