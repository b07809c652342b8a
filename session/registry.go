package session

import "sync"

// Registry is the process-wide connection directory keyed by peer address
// (Connection.RemoteKey) described in spec.md §3/§4.2. It never
// cross-references connections with one another — it is purely a lookup
// table collaborators (presence, dispatch) use to find a live connection
// by peer address.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Connection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

// Add registers c under its RemoteKey and attaches the registry to it so
// Connection.Close can remove itself.
func (r *Registry) Add(c *Connection) {
	r.mu.Lock()
	r.conns[c.RemoteKey()] = c
	r.mu.Unlock()
	c.attachRegistry(r)
}

// Remove deletes the entry for key. Idempotent.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	delete(r.conns, key)
	r.mu.Unlock()
}

// Get looks up a connection by peer address.
func (r *Registry) Get(key string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[key]
	return c, ok
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Range iterates the registry; fn returning false stops iteration early.
func (r *Registry) Range(fn func(key string, c *Connection) bool) {
	r.mu.Lock()
	snapshot := make(map[string]*Connection, len(r.conns))
	for k, v := range r.conns {
		snapshot[k] = v
	}
	r.mu.Unlock()
	for k, v := range snapshot {
		if !fn(k, v) {
			return
		}
	}
}
