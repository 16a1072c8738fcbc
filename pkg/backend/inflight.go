package backend

import "sync"

// Inflight tracks the expected-response counter and query queue of spec
// section 4.B: the router increments the counter when it forwards a
// request that will produce a reply, decrements on reply complete, and
// buffers client-issued queries that arrive while a reply is outstanding.
// It is owned by one client session (single-threaded owner per spec
// section 5), so its mutex exists only to guard against the rare
// cross-worker diagnostic read, not for routine contention.
type Inflight struct {
	mu       sync.Mutex
	expected int
	queue    [][]byte
}

func NewInflight() *Inflight { return &Inflight{} }

// BeginRequest increments the expected-response counter for a forwarded
// request that will elicit a reply.
func (f *Inflight) BeginRequest() {
	f.mu.Lock()
	f.expected++
	f.mu.Unlock()
}

// CompleteRequest decrements the counter when a reply finishes. It returns
// the queued packets to drain if the counter has reached zero, per spec
// section 4.B ("Queries queued by the client... are drained when
// expected_responses reaches zero"); otherwise it returns nil.
func (f *Inflight) CompleteRequest() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expected > 0 {
		f.expected--
	}
	if f.expected == 0 && len(f.queue) > 0 {
		drained := f.queue
		f.queue = nil
		return drained
	}
	return nil
}

// Enqueue buffers a client packet that arrived while a reply is pending.
func (f *Inflight) Enqueue(packet []byte) {
	f.mu.Lock()
	f.queue = append(f.queue, packet)
	f.mu.Unlock()
}

// Expected returns the current outstanding-request count.
func (f *Inflight) Expected() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expected
}

// CanDrain reports whether the query queue may be drained right now
// (expected_responses == 0), the invariant spec section 8 property 5
// states.
func (f *Inflight) CanDrain() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expected == 0
}

// QueueLen reports the number of buffered packets, for diagnostics.
func (f *Inflight) QueueLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}
