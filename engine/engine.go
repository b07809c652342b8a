// Package engine is the Protocol Engine (spec.md §1): the public API a
// host program uses to speak the wire protocol over any bidirectional
// byte stream. It wires together frame (codec), session (per-connection
// state), keepalive (the alive sub-protocol) and middleware (inbound
// dispatch) the way the teacher's server.Server wires together protocol,
// codec, middleware and registry.
package engine

import (
	"io"
	"log"
	"sync"
	"time"

	"iot-proto/frame"
	"iot-proto/keepalive"
	"iot-proto/middleware"
	"iot-proto/session"
)

// Conn is what Listen needs from a transport collaborator: a
// session.Stream (write/close/peer-address) plus the ability to read
// inbound bytes. stream.TCPStream satisfies this.
type Conn interface {
	session.Stream
	Read(p []byte) (int, error)
}

// Handler processes an inbound SIGNAL/REQUEST/STREAMING frame that has no
// matching pending response (spec.md §9.3) and survived the middleware
// chain. Engines without a Handler simply drop such frames after running
// the chain.
type Handler func(c *session.Connection, req *frame.Request)

// Options configures an Engine. Zero values fall back to spec.md §6
// defaults, except AliveIntervalSeconds, where 0 disables keep-alive.
type Options struct {
	BufferSize           int
	AliveIntervalSeconds int
	ResponseTimeoutMs    int
	ReadChunkSize        int
	Logger               *log.Logger
	Metrics              *Metrics
}

// DefaultOptions returns spec.md's stated defaults.
func DefaultOptions() Options {
	return Options{
		BufferSize:           frame.DefaultBufferSize,
		AliveIntervalSeconds: frame.DefaultAliveInterval,
		ResponseTimeoutMs:    frame.DefaultResponseTimeoutMs,
		ReadChunkSize:        4096,
	}
}

func (o Options) sessionConfig() session.Config {
	return session.Config{
		AliveIntervalSeconds: o.AliveIntervalSeconds,
		BufferSize:           o.BufferSize,
		ResponseTimeoutMs:    o.ResponseTimeoutMs,
	}
}

// Engine is the process-wide Protocol Engine: one registry of live
// connections, one middleware chain, one optional inbound Handler.
type Engine struct {
	opts     Options
	chain    middleware.Chain
	registry *session.Registry
	handler  Handler
	logger   *log.Logger
	metrics  *Metrics

	wg       sync.WaitGroup
	aliveMu  sync.Mutex
	aliveing map[*session.Connection]chan struct{}
}

// New creates an Engine. Call Use to install middleware and OnFrame to
// install the terminal handler before accepting connections.
func New(opts Options) *Engine {
	def := DefaultOptions()
	if opts.BufferSize <= 0 {
		opts.BufferSize = def.BufferSize
	}
	if opts.ResponseTimeoutMs <= 0 {
		opts.ResponseTimeoutMs = def.ResponseTimeoutMs
	}
	if opts.ReadChunkSize <= 0 {
		opts.ReadChunkSize = def.ReadChunkSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Engine{
		opts:     opts,
		registry: session.NewRegistry(),
		logger:   logger,
		metrics:  metrics,
		aliveing: make(map[*session.Connection]chan struct{}),
	}
}

// Use registers a middleware, evaluated in registration order ahead of
// the terminal Handler (spec.md §4.7).
func (e *Engine) Use(mw middleware.Middleware) { e.chain.Use(mw) }

// OnFrame installs the terminal handler for inbound frames that pass the
// middleware chain.
func (e *Engine) OnFrame(h Handler) { e.handler = h }

// Registry exposes the live-connection directory for collaborators
// (presence, dispatch) that need to look up or enumerate connections.
func (e *Engine) Registry() *session.Registry { return e.registry }

// Listen adopts conn as a new Connection: it registers it, starts its
// keep-alive controller, and spawns the sequential read loop that feeds
// inbound bytes to the reassembler and dispatches completed frames
// (spec.md §4.2, mirroring the teacher's one-goroutine-per-connection
// Server.handleConn). It returns immediately; the connection runs until
// the peer closes it, a read error or protocol violation occurs, an alive
// round trip times out, or it is closed locally.
func (e *Engine) Listen(conn Conn) *session.Connection {
	c := session.New(conn, e.opts.sessionConfig())
	e.registry.Add(c)
	e.metrics.activeConnections.Inc()

	ka := keepalive.New(time.Duration(c.AliveInterval())*time.Second, func() {
		e.sendAliveRequest(c)
	})
	c.SetKeepAliveReset(ka.Reset)
	c.OnDisconnect(func(reason error) {
		ka.Stop()
		e.metrics.activeConnections.Dec()
	})
	ka.Start()

	e.wg.Add(1)
	go e.readLoop(c, conn, ka)
	return c
}

func (e *Engine) readLoop(c *session.Connection, conn Conn, ka *keepalive.Controller) {
	defer e.wg.Done()
	buf := make([]byte, e.opts.ReadChunkSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			ka.Reset()
			reqs, decodeErr := c.Feed(buf[:n])
			for _, req := range reqs {
				e.metrics.framesDecoded.WithLabelValues(req.Method.String()).Inc()
				if req.Parts > 1 {
					e.metrics.fragmentsReassembled.Add(float64(req.Parts))
				}
				e.dispatch(c, req)
			}
			if decodeErr != nil {
				e.logger.Printf("engine: protocol violation from %s: %v", c.RemoteKey(), decodeErr)
				c.Close()
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				e.logger.Printf("engine: read error from %s: %v", c.RemoteKey(), err)
			}
			c.Close()
			return
		}
	}
}

// Shutdown stops accepting new work on every registered connection and
// waits up to timeout for in-flight read loops to drain, grounded on the
// teacher's Server.Shutdown (close first, then bounded Wait).
func (e *Engine) Shutdown(timeout time.Duration) error {
	e.registry.Range(func(_ string, c *session.Connection) bool {
		c.Close()
		return true
	})

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errShutdownTimeout
	}
}
