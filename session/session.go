// Package session implements the per-connection Connection State of
// spec.md §4.2: the in-flight (pending-response) table, the reassembly
// table, the leftover-bytes remainder, the write lock, the negotiated
// buffer size, and the process-wide connection registry keyed by peer
// address.
//
// The design notes in spec.md §9 direct implementers to prefer "a proper
// async mutex or single-writer channel... over a polled boolean" for the
// write lock; in Go that is simply sync.Mutex, so Connection uses one
// instead of the cooperative-poll design described for non-threaded
// targets.
package session

import (
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"

	"iot-proto/frame"
)

// Stream is the downward API a transport collaborator provides (spec.md
// §6): a writable byte sink, a close operation, and a peer-address
// accessor. Byte delivery and half-close notification happen out of band
// (engine's read loop calls Connection.Feed with each read and
// Connection.Close at end of stream).
type Stream interface {
	Write(p []byte) (int, error)
	Close() error
	RemoteAddr() string
}

// Config carries the defaults from spec.md §6.
type Config struct {
	AliveIntervalSeconds int // default 60; 0 disables
	BufferSize           int // default 1024
	ResponseTimeoutMs    int // default 1000
}

// DefaultConfig returns the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		AliveIntervalSeconds: frame.DefaultAliveInterval,
		BufferSize:           frame.DefaultBufferSize,
		ResponseTimeoutMs:    frame.DefaultResponseTimeoutMs,
	}
}

// Connection is one peer's Connection State.
type Connection struct {
	stream Stream
	addr   string

	reassembler *frame.Reassembler
	pending     *PendingTable

	writeLock sync.Mutex

	remainMu sync.Mutex
	remain   []byte

	bufferSize atomic.Int64

	aliveIntervalMu sync.Mutex
	aliveInterval   int64 // seconds; 0 disables

	onDisconnectMu sync.Mutex
	onDisconnect   func(reason error)

	keepAliveMu    sync.Mutex
	keepAliveReset func()

	idSource *rand.Rand
	idMu     sync.Mutex

	closed atomic.Bool

	registry *Registry
}

// New creates Connection State for a freshly accepted or dialed stream.
// It does not register the connection; the caller (typically
// engine.Engine.Listen) does that once handlers are installed.
func New(stream Stream, cfg Config) *Connection {
	c := &Connection{
		stream:      stream,
		addr:        stream.RemoteAddr(),
		reassembler: frame.NewReassembler(),
		pending:     NewPendingTable(),
		idSource:    rand.New(rand.NewSource(int64(seedFromAddr(stream.RemoteAddr())))),
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = frame.DefaultBufferSize
	}
	c.bufferSize.Store(int64(bufferSize))
	c.aliveInterval = int64(cfg.AliveIntervalSeconds)
	return c
}

func seedFromAddr(addr string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(addr); i++ {
		h ^= uint32(addr[i])
		h *= 16777619
	}
	if h == 0 {
		h = 1
	}
	return h
}

// RemoteKey is the registry key of spec.md §4.2: the peer address exactly
// as the Stream's RemoteAddr reports it ("ip:port" for a stream.TCPStream).
func (c *Connection) RemoteKey() string { return c.addr }

// Pending returns the connection's request/response table.
func (c *Connection) Pending() *PendingTable { return c.pending }

// BufferSize returns the negotiated outbound fragmentation size.
func (c *Connection) BufferSize() int { return int(c.bufferSize.Load()) }

// SetBufferSize updates the negotiated buffer size, restoring the default
// when n is 0 (spec.md §4.6).
func (c *Connection) SetBufferSize(n int) {
	if n == 0 {
		n = frame.DefaultBufferSize
	}
	c.bufferSize.Store(int64(n))
}

// AliveInterval returns the keep-alive interval in seconds (0 disables).
func (c *Connection) AliveInterval() int {
	c.aliveIntervalMu.Lock()
	defer c.aliveIntervalMu.Unlock()
	return int(c.aliveInterval)
}

// SetAliveInterval changes the keep-alive interval.
func (c *Connection) SetAliveInterval(seconds int) {
	c.aliveIntervalMu.Lock()
	defer c.aliveIntervalMu.Unlock()
	c.aliveInterval = int64(seconds)
}

// OnDisconnect registers the hook invoked when the connection is torn
// down, either by a half-close or by an alive timeout. reason is nil for
// an ordinary half-close and non-nil (e.g. engine.ErrAliveTimeout) when
// teardown was forced by a protocol-level failure.
func (c *Connection) OnDisconnect(fn func(reason error)) {
	c.onDisconnectMu.Lock()
	defer c.onDisconnectMu.Unlock()
	c.onDisconnect = fn
}

func (c *Connection) fireDisconnect(reason error) {
	c.onDisconnectMu.Lock()
	fn := c.onDisconnect
	c.onDisconnectMu.Unlock()
	if fn != nil {
		fn(reason)
	}
}

// SetKeepAliveReset installs the callback invoked after every successful
// outbound write, so the keep-alive controller's inactivity timer resets
// on send activity the same way it already resets on inbound reads
// (spec.md §4.5: "after every successful inbound parse *and* every
// outbound multi-fragment write, the interval timer is reset").
func (c *Connection) SetKeepAliveReset(fn func()) {
	c.keepAliveMu.Lock()
	defer c.keepAliveMu.Unlock()
	c.keepAliveReset = fn
}

// ResetKeepAlive invokes the installed keep-alive reset callback, if any.
// Called by engine.send after a successful write.
func (c *Connection) ResetKeepAlive() {
	c.keepAliveMu.Lock()
	fn := c.keepAliveReset
	c.keepAliveMu.Unlock()
	if fn != nil {
		fn()
	}
}

// Feed folds newly-arrived bytes into any carried-over remainder and
// decodes as many logical requests as the buffer yields (spec.md §4.2 On
// data). A non-nil error indicates a protocol violation (spec.md §7); the
// caller should treat the connection as unrecoverable.
func (c *Connection) Feed(data []byte) ([]*frame.Request, error) {
	c.remainMu.Lock()
	buf := data
	if len(c.remain) > 0 {
		buf = append(append([]byte(nil), c.remain...), data...)
		c.remain = nil
	}
	c.remainMu.Unlock()

	completed, remainder, err := c.reassembler.Feed(buf, c.BufferSize())

	c.remainMu.Lock()
	c.remain = remainder
	c.remainMu.Unlock()

	return completed, err
}

// Lock acquires the connection's single write lock: exactly one logical
// send (response, signal, alive, buffer-size exchange, or multi-fragment
// write) may be in flight at a time (spec.md §4.2, §5).
func (c *Connection) Lock() { c.writeLock.Lock() }

// Unlock releases the write lock.
func (c *Connection) Unlock() { c.writeLock.Unlock() }

// Write performs one physical write to the underlying stream. Callers
// must hold the write lock.
func (c *Connection) Write(b []byte) (int, error) {
	return c.stream.Write(b)
}

// ErrIDsExhausted is returned by AllocateID if no free id could be found
// after repeated collisions, which should never happen in practice given
// the 1..9999 ID space and realistic in-flight counts.
var ErrIDsExhausted = errors.New("session: could not allocate a free request id")

// AllocateID assigns a pseudo-random id in [1,9999], rejecting 0 and any
// collision with the in-flight pending table (spec.md §4.1).
func (c *Connection) AllocateID() (uint16, error) {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	for attempt := 0; attempt < 10000; attempt++ {
		id := uint16(1 + c.idSource.Intn(9999))
		if !c.pending.Has(id) {
			return id, nil
		}
	}
	return 0, ErrIDsExhausted
}

// Closed reports whether the connection has already been torn down.
func (c *Connection) Closed() bool { return c.closed.Load() }

// Close tears down the connection: the underlying stream is closed, every
// pending response is resolved via its timeout callback (no response will
// ever arrive), and the connection is removed from its registry if it was
// registered. Close is idempotent.
func (c *Connection) Close() error {
	return c.CloseWithReason(nil)
}

// CloseWithReason is Close, annotated with why the connection is being
// torn down (e.g. engine.ErrAliveTimeout); the reason is passed to the
// OnDisconnect hook so callers can distinguish a forced teardown from an
// ordinary half-close.
func (c *Connection) CloseWithReason(reason error) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.pending.CloseAll()
	if c.registry != nil {
		c.registry.Remove(c.addr)
	}
	err := c.stream.Close()
	c.fireDisconnect(reason)
	return err
}

func (c *Connection) attachRegistry(r *Registry) { c.registry = r }
