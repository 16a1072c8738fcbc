package backend

import (
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/lishubing/sqlgate/pkg/wire"
)

// idleConn is one pooled, authenticated-but-idle connection to a server.
type idleConn struct {
	conn   *wire.Conn
	pushed time.Time
}

// Pool caches idle backend connections per server so a newly acquired
// backend session can reuse one instead of paying handshake cost again,
// per spec section 9's design note adapting the teacher's FIFO
// connection-cache store to per-server (rather than per-CN-tenant) keying.
// A pooled connection is returned to service only while the Server it
// belongs to is still referenced (spec section 3's server lifecycle); the
// caller is responsible for discarding a pool on server destroy.
type Pool struct {
	mu         sync.Mutex
	maxPerKey  int
	maxTotal   int
	total      int
	byServer   map[string][]idleConn
	replayPool *ants.Pool
}

// NewPool creates a Pool bounded by maxPerKey connections per server and
// maxTotal overall. replayWorkers bounds the goroutine pool used for
// fanning out session-command replay across multiple backends at once
// (e.g. when the schema router acquires several shards simultaneously).
func NewPool(maxPerKey, maxTotal, replayWorkers int) (*Pool, error) {
	p, err := ants.NewPool(replayWorkers)
	if err != nil {
		return nil, err
	}
	return &Pool{
		maxPerKey:  maxPerKey,
		maxTotal:   maxTotal,
		byServer:   make(map[string][]idleConn),
		replayPool: p,
	}, nil
}

// Push returns an idle connection to the pool for a given server. It is
// dropped (closed) if the pool is already at capacity.
func (p *Pool) Push(server string, conn *wire.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total >= p.maxTotal || len(p.byServer[server]) >= p.maxPerKey {
		conn.Close()
		return
	}
	p.byServer[server] = append(p.byServer[server], idleConn{conn: conn, pushed: time.Now()})
	p.total++
}

// Pop removes and returns the oldest idle connection for server, FIFO,
// matching the teacher's entryOpFIFO strategy.
func (p *Pool) Pop(server string) *wire.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.byServer[server]
	if len(list) == 0 {
		return nil
	}
	c := list[0]
	p.byServer[server] = list[1:]
	p.total--
	return c.conn
}

// Len reports how many idle connections are pooled for server.
func (p *Pool) Len(server string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byServer[server])
}

// ReplayAll submits a replay callback for every backend in sessions to the
// bounded goroutine pool and waits for them all to finish, returning the
// first error encountered (if any). This is how the schema router (E)
// brings several freshly acquired shard backends up to date with session
// history concurrently instead of serially.
func (p *Pool) ReplayAll(sessions []*Session, drainReply func(*Session) func() error) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(sessions))
	for _, s := range sessions {
		s := s
		wg.Add(1)
		err := p.replayPool.Submit(func() {
			defer wg.Done()
			if err := s.ReplayHistory(drainReply(s)); err != nil {
				errCh <- err
			}
		})
		if err != nil {
			wg.Done()
			errCh <- err
		}
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

// Release stops the pool's goroutine pool and closes every idle
// connection, used on shutdown.
func (p *Pool) Release() {
	p.mu.Lock()
	for _, list := range p.byServer {
		for _, c := range list {
			c.conn.Close()
		}
	}
	p.byServer = make(map[string][]idleConn)
	p.total = 0
	p.mu.Unlock()
	p.replayPool.Release()
}
