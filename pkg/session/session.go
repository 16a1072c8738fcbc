package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/lishubing/sqlgate/pkg/backend"
	"github.com/lishubing/sqlgate/pkg/router/rwsplit"
	"github.com/lishubing/sqlgate/pkg/wire"
)

// State is the client session lifecycle of spec section 3.
type State int

const (
	StateCreated State = iota
	StateStarted
	StateStopping
	StateStopped
)

// RetainedStatement is one entry of the retained-last-statements ring
// spec section 3 keeps per client session for diagnostics.
type RetainedStatement struct {
	SQL []byte
}

// RouterSession is what a routed client session asks of whichever router
// (D or E) the owning service was configured with; pkg/router/rwsplit and
// pkg/router/shard each provide an implementation so pkg/session never
// imports either concrete router package's internals directly.
type RouterSession interface {
	CapabilityProvider
	// RouteQuery decides which backend(s) stmt goes to and returns the
	// server names to execute it on, in order (normally one; more than
	// one for ALL-routed session commands and COM_STMT_PREPARE).
	RouteQuery(stmt []byte, sqlMode string) ([]string, error)
	// ObserveReply hands the router the completed reply to the statement
	// it most recently routed: the decoded session-track info (zero value
	// if the capability wasn't negotiated) and the raw bytes read back
	// from the backend. RWSplitAdapter uses this to advance the
	// transaction state machine and feed the replay checksum; ShardAdapter
	// has no use for it.
	ObserveReply(trk wire.SessionTrackInfo, result []byte)
}

// ClientSession is the object graph root of spec section 4.F: created on
// accept, owns the router session, filter chain, and per-backend B
// objects for the lifetime of one client connection.
type ClientSession struct {
	mu sync.Mutex

	ID uint32 // the wire-protocol thread id: 4 bytes, carried in the initial handshake packet

	// ServiceName is the owning Service's name, set by the Listener that
	// accepted this session; it lets code outside the session package
	// (the dispatch loop) look the Service back up for its backend
	// credentials without threading it through every call.
	ServiceName string

	// TraceID correlates this session's log lines and diagnostics across
	// workers and restarts; unlike ID it is never put on the wire, and
	// stays stable for the session's lifetime even if ID were ever
	// reused after a 32-bit wraparound.
	TraceID uuid.UUID

	Conn  *wire.Conn
	State State

	Router  RouterSession
	Filters *Chain

	Backends map[string]*backend.Session // server name -> backend session

	TrxState   rwsplit.TrxState
	Autocommit bool
	SQLMode    string
	LastGTID   string

	Prepared *rwsplit.PreparedRegistry

	retained    []RetainedStatement
	retainedCap int

	CloseReason CloseReason
}

// New creates a session in StateCreated; call Start once the handshake
// completes.
func New(id uint32, conn *wire.Conn, router RouterSession, filters []Filter, retainedCap int) *ClientSession {
	s := &ClientSession{
		ID:          id,
		TraceID:     uuid.New(),
		Conn:        conn,
		State:       StateCreated,
		Router:      router,
		Backends:    make(map[string]*backend.Session),
		Autocommit:  true,
		Prepared:    rwsplit.NewPreparedRegistry(),
		retainedCap: retainedCap,
	}
	s.Filters = NewChain(s, filters)
	return s
}

// Start transitions the session past the handshake into normal operation.
func (s *ClientSession) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = StateStarted
}

// RouteQuery implements spec section 4.F's routeQuery(buf) convention:
// 1 means the statement was accepted for routing, 0 means it failed and
// the session records reason as the cause. The actual backend dispatch
// happens in the caller (pkg/session.Worker), which owns the goroutine
// this session runs on; RouteQuery only decides targets and records a
// retained-statement entry.
func (s *ClientSession) RouteQuery(buf []byte, reason CloseReason) ([]string, int) {
	rewritten, ok := s.Filters.RouteQuery(buf)
	if !ok {
		s.fail(reason)
		return nil, 0
	}
	targets, err := s.Router.RouteQuery(rewritten, s.SQLMode)
	if err != nil {
		s.fail(reason)
		return nil, 0
	}
	s.retain(rewritten)
	return targets, 1
}

func (s *ClientSession) retain(stmt []byte) {
	if s.retainedCap <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retained = append(s.retained, RetainedStatement{SQL: append([]byte(nil), stmt...)})
	if len(s.retained) > s.retainedCap {
		s.retained = s.retained[len(s.retained)-s.retainedCap:]
	}
}

// RetainedStatements returns a snapshot of the retained-last-statements
// ring, oldest first.
func (s *ClientSession) RetainedStatements() []RetainedStatement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RetainedStatement, len(s.retained))
	copy(out, s.retained)
	return out
}

func (s *ClientSession) fail(reason CloseReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CloseReason == CloseNone {
		s.CloseReason = reason
	}
}

// Close tears the session down: every backend session is closed (B
// cannot outlive the session, per spec section 3), the filter chain is
// closed, and the state moves to Stopped.
func (s *ClientSession) Close(reason CloseReason) {
	s.mu.Lock()
	if s.State == StateStopped {
		s.mu.Unlock()
		return
	}
	s.State = StateStopping
	if s.CloseReason == CloseNone {
		s.CloseReason = reason
	}
	backends := make([]*backend.Session, 0, len(s.Backends))
	for _, b := range s.Backends {
		backends = append(backends, b)
	}
	s.mu.Unlock()

	for _, b := range backends {
		b.Close(backend.CloseClientQuit)
	}
	s.Filters.Close()

	s.mu.Lock()
	s.State = StateStopped
	s.mu.Unlock()
}
