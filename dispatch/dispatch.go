// Package dispatch distributes live connections across a fixed number of
// worker shards, the way the teacher's loadbalance package distributes RPC
// calls across service instances. The repurposing: loadbalance.Balancer
// picks a *registry.ServiceInstance* for an outbound call; dispatch.Shard
// picks a *worker pool index* for an inbound connection's frames. Under
// ConsistentHash, frames from any one connection are always processed by
// the same worker (ordering is already per-connection per spec.md §5;
// sharding just bounds the number of workers doing that processing instead
// of one goroutine per connection); RoundRobin ignores the connection and
// spreads successive frames, even from one connection, across all workers.
package dispatch

import (
	"fmt"
	"hash/crc32"
	"sort"
	"sync/atomic"

	"iot-proto/frame"
	"iot-proto/session"
)

// Shard picks a worker index in [0, n) for a connection key. Grounded on
// loadbalance.Balancer's Pick contract (stateless, goroutine-safe, called
// on every dispatch).
type Shard interface {
	Pick(key string) (int, error)
	Name() string
}

// RoundRobin cycles through shard indices in order, adapted from
// loadbalance.RoundRobinBalancer: Best for uniform per-connection load.
type RoundRobin struct {
	n       int
	counter int64
}

// NewRoundRobin creates a round-robin shard picker over n workers.
func NewRoundRobin(n int) *RoundRobin { return &RoundRobin{n: n} }

func (b *RoundRobin) Pick(_ string) (int, error) {
	if b.n <= 0 {
		return 0, fmt.Errorf("dispatch: no worker shards configured")
	}
	idx := atomic.AddInt64(&b.counter, 1) % int64(b.n)
	return int(idx), nil
}

func (b *RoundRobin) Name() string { return "RoundRobin" }

// ConsistentHash maps a connection's peer-address key onto a worker shard
// using a hash ring, adapted from loadbalance.ConsistentHashBalancer: the
// same connection key always lands on the same worker (useful when a
// worker pool keeps per-device local state such as recent reassembly
// buffers), and adding/removing shards reshuffles only a fraction of keys.
type ConsistentHash struct {
	replicas int
	ring     []uint32
	shards   map[uint32]int
}

// NewConsistentHash builds a hash ring with n worker shards, 100 virtual
// nodes each (matching the teacher's replica count).
func NewConsistentHash(n int) *ConsistentHash {
	b := &ConsistentHash{replicas: 100, shards: make(map[uint32]int)}
	for i := 0; i < n; i++ {
		for r := 0; r < b.replicas; r++ {
			key := fmt.Sprintf("%d#%d", i, r)
			hash := crc32.ChecksumIEEE([]byte(key))
			b.ring = append(b.ring, hash)
			b.shards[hash] = i
		}
	}
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
	return b
}

func (b *ConsistentHash) Pick(key string) (int, error) {
	if len(b.ring) == 0 {
		return 0, fmt.Errorf("dispatch: no worker shards configured")
	}
	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool { return b.ring[i] >= hash })
	if idx == len(b.ring) {
		idx = 0
	}
	return b.shards[b.ring[idx]], nil
}

func (b *ConsistentHash) Name() string { return "ConsistentHash" }

// Job is one completed frame awaiting handler processing on its assigned
// shard, paired with the connection it arrived on.
type Job struct {
	Conn    *session.Connection
	Request *frame.Request
}

// Pool runs n worker goroutines, each draining its own job queue in order,
// and a Shard picker deciding which queue a given connection's jobs land
// on. This bounds total handler goroutines to n regardless of connection
// count, the connection-count analogue of the teacher's bounded instance
// pool per balancer.
type Pool struct {
	shard   Shard
	queues  []chan Job
	handler func(*session.Connection, *frame.Request)
	done    chan struct{}
}

// NewPool creates a dispatch pool with n worker shards, queue depth per
// shard, a Shard picker, and the handler each worker invokes for its jobs.
func NewPool(n int, queueDepth int, shard Shard, handler func(*session.Connection, *frame.Request)) *Pool {
	p := &Pool{shard: shard, handler: handler, done: make(chan struct{})}
	p.queues = make([]chan Job, n)
	for i := range p.queues {
		p.queues[i] = make(chan Job, queueDepth)
		go p.worker(p.queues[i])
	}
	return p
}

func (p *Pool) worker(q chan Job) {
	for {
		select {
		case job, ok := <-q:
			if !ok {
				return
			}
			p.handler(job.Conn, job.Request)
		case <-p.done:
			return
		}
	}
}

// Submit routes a completed frame to the worker shard the Shard picker
// chooses for c's peer address (always the same shard under
// ConsistentHash, the next in turn under RoundRobin). It returns an error only if the shard picker itself fails
// (e.g. zero shards configured); a full queue blocks the caller, same
// back-pressure contract as a single unbuffered dispatch would have.
func (p *Pool) Submit(c *session.Connection, req *frame.Request) error {
	idx, err := p.shard.Pick(c.RemoteKey())
	if err != nil {
		return err
	}
	p.queues[idx] <- Job{Conn: c, Request: req}
	return nil
}

// Close stops all workers. In-flight jobs already popped from a queue
// finish; jobs still queued may or may not run, since a worker with both
// a queued job and the stop signal ready picks between them at random.
func (p *Pool) Close() {
	close(p.done)
}
