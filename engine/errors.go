package engine

import "errors"

var (
	// errShutdownTimeout is returned by Shutdown if connections do not
	// drain within the given timeout.
	errShutdownTimeout = errors.New("engine: shutdown timed out waiting for connections to drain")
	// ErrAliveTimeout is passed as the reason to a Connection's
	// OnDisconnect hook when the peer's ALIVE_RESPONSE never arrives
	// (spec.md §4.5) and the connection is force-closed.
	ErrAliveTimeout = errors.New("engine: alive request timed out")
	// ErrResponseTimeout is returned by Request when no RESPONSE arrives
	// within the connection's negotiated response timeout.
	ErrResponseTimeout = errors.New("engine: response timed out")
	// ErrConnectionClosed is returned by send operations on a closed
	// connection.
	ErrConnectionClosed = errors.New("engine: connection is closed")
)
