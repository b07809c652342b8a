// Package stream adapts real TCP/TLS connections to the session.Stream
// interface the protocol core consumes, the way the teacher's transport
// package sits between net.Conn and the RPC layer. It is a collaborator,
// not part of the core: the core never imports net directly.
package stream

import "net"

// TCPStream wraps a net.Conn so it satisfies session.Stream without the
// session package importing net.
type TCPStream struct {
	conn net.Conn
}

// NewTCP wraps conn for use as a Connection's Stream.
func NewTCP(conn net.Conn) *TCPStream {
	return &TCPStream{conn: conn}
}

func (s *TCPStream) Write(p []byte) (int, error) { return s.conn.Write(p) }

// Read satisfies engine.Conn (session.Stream plus Read), so a *TCPStream
// can be handed directly to Engine.Listen.
func (s *TCPStream) Read(p []byte) (int, error) { return s.conn.Read(p) }

func (s *TCPStream) Close() error { return s.conn.Close() }

// RemoteAddr returns the "ip:port" registry key (spec.md §4.2), which is
// conn.RemoteAddr().String(), or "unknown" when conn reports no remote
// address at all. net.Pipe ends report "pipe", so every pipe-based stream
// yields that same key.
func (s *TCPStream) RemoteAddr() string {
	if a := s.conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return "unknown"
}

// Conn returns the underlying connection, for callers that need
// read-deadline or keep-alive socket options the Stream interface does
// not expose.
func (s *TCPStream) Conn() net.Conn { return s.conn }
