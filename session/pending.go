package session

import (
	"sync"
	"time"

	"iot-proto/frame"
)

// PendingEntry describes a sent REQUEST or STREAMING frame awaiting its
// response (spec.md §3 Pending Response). ALIVE_* and BUFFER_SIZE_* frames
// carry no id and never get an entry.
type PendingEntry struct {
	OnResponse func(*frame.Request)
	OnTimeout  func()
	Timeout    time.Duration
	Snapshot   *frame.Request

	timer *time.Timer
}

// PendingTable is the Request/Response Table of spec.md §4.4: id -> pending
// descriptor.
type PendingTable struct {
	mu      sync.Mutex
	entries map[uint16]*PendingEntry
}

// NewPendingTable creates an empty table.
func NewPendingTable() *PendingTable {
	return &PendingTable{entries: make(map[uint16]*PendingEntry)}
}

// Has reports whether id currently has a pending entry, used by the ID
// allocator to reject collisions.
func (t *PendingTable) Has(id uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[id]
	return ok
}

// Insert registers a pending entry for id and arms its timeout timer. If
// an entry already occupies id it is replaced (callers are expected to
// have checked Has via the ID allocator first).
func (t *PendingTable) Insert(id uint16, e *PendingEntry) {
	if e.Timeout <= 0 {
		e.Timeout = time.Duration(frame.DefaultResponseTimeoutMs) * time.Millisecond
	}
	e.timer = time.AfterFunc(e.Timeout, func() { t.expire(id) })

	t.mu.Lock()
	t.entries[id] = e
	t.mu.Unlock()
}

// Resolve is called for every inbound fragment whose id matches a pending
// entry. final indicates the fragment completed the response: the entry
// is then removed and OnResponse invoked with the assembled request;
// otherwise the timeout is refreshed per spec.md §4.4's per-fragment
// refresh rule and OnResponse is invoked with the partial request.
// Resolve reports whether id matched a pending entry at all.
func (t *PendingTable) Resolve(id uint16, resp *frame.Request, final bool) bool {
	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok {
		t.mu.Unlock()
		return false
	}
	if final {
		delete(t.entries, id)
	} else {
		e.timer.Reset(e.Timeout)
	}
	t.mu.Unlock()

	if final {
		e.timer.Stop()
	}
	if e.OnResponse != nil {
		e.OnResponse(resp)
	}
	return true
}

// expire fires when a pending entry's timer elapses before completion.
func (t *PendingTable) expire(id uint16) {
	t.mu.Lock()
	e, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()
	if ok && e.OnTimeout != nil {
		e.OnTimeout()
	}
}

// CloseAll fires every remaining entry's OnTimeout (no response can ever
// arrive once the connection is gone) and clears the table. Called from
// Connection.Close.
func (t *PendingTable) CloseAll() {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[uint16]*PendingEntry)
	t.mu.Unlock()

	for _, e := range entries {
		e.timer.Stop()
		if e.OnTimeout != nil {
			e.OnTimeout()
		}
	}
}

// Len reports the number of in-flight pending entries, exposed for tests
// and metrics.
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
