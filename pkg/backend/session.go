package backend

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/lishubing/sqlgate/pkg/wire"
	"github.com/lishubing/sqlgate/pkg/wireerr"
)

// State is the backend session lifecycle of spec section 3.
type State int

const (
	NotInUse State = iota
	Connecting
	InUse
	WaitingResult
	ReplayingHistory
	Closed
)

// CloseReason records why a backend session ended, for diagnostics.
type CloseReason string

const (
	CloseNone            CloseReason = ""
	CloseNormal          CloseReason = "normal"
	CloseReplayFailed    CloseReason = "replay-failed"
	CloseBackendHangup   CloseReason = "backend-hangup"
	CloseClientQuit      CloseReason = "client-quit"
	CloseKilled          CloseReason = "killed"
	CloseRouteFailure    CloseReason = "route-failure"
)

// Session is component B: one outbound connection to one server, scoped
// to one client session. It implements the operations spec section 4.B
// names: write, ack_write, execute_session_command, close, and the
// read-only accessors.
type Session struct {
	mu sync.Mutex

	server   string // server name this session is bound to
	conn     *wire.Conn
	state    State
	reason   CloseReason

	history      *History
	replayedPos  uint64 // position up to which this backend has replayed

	numSelects      int64
	bytesOut        int64
	lastWriteTS     atomic.Int64 // unix nanos
	sessionCmdCount int64
}

// New creates a backend session bound to server, sharing the client
// session's command history.
func New(server string, conn *wire.Conn, history *History) *Session {
	s := &Session{server: server, conn: conn, history: history, state: NotInUse}
	return s
}

// Write queues or sends a packet to the backend. If isSessionCommand is
// true, the write is counted in SessionCommandCount; the replayed position
// is advanced by ExecuteSessionCommand, not here.
func (s *Session) Write(payload []byte, isSessionCommand bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return wireerr.New(wireerr.BackendUnavailable, 2006, "HY000", "backend", "write to closed backend session")
	}
	if err := s.conn.WriteMessage(payload); err != nil {
		s.closeLocked(CloseBackendHangup)
		return wireerr.Wrap(wireerr.BackendUnavailable, 2006, "HY000", "backend", err)
	}
	s.state = WaitingResult
	s.lastWriteTS.Store(time.Now().UnixNano())
	s.bytesOut += int64(len(payload))
	if isSessionCommand {
		s.sessionCmdCount++
	}
	return nil
}

// AckWrite is called by the router when a complete reply has arrived for
// the most recent write; it advances the backend back to in-use.
func (s *Session) AckWrite() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == WaitingResult || s.state == ReplayingHistory {
		s.state = InUse
	}
}

// ExecuteSessionCommand pops the next unsent session command from the
// shared history (by this backend's replayed position) and writes it.
// expectsReply is always true for session commands: every one of them
// elicits at least an OK/ERR.
func (s *Session) ExecuteSessionCommand() (expectsReply bool, err error) {
	s.mu.Lock()
	pending := s.history.Since(s.replayedPos)
	s.mu.Unlock()
	if len(pending) == 0 {
		return false, nil
	}
	next := pending[0]
	if err := s.Write(next.Payload, true); err != nil {
		return false, err
	}
	s.mu.Lock()
	s.replayedPos = next.Position
	s.state = ReplayingHistory
	s.mu.Unlock()
	return true, nil
}

// ReplayHistory executes every session command with position greater than
// this backend's current position, in order, discarding their responses,
// per spec section 4.B. drainReply must read and fully consume one reply
// from the backend connection (its concrete form depends on negotiated
// capabilities, so it is supplied by the caller rather than hardcoded
// here). If any replay fails, the backend session is closed.
func (s *Session) ReplayHistory(drainReply func() error) error {
	if s.history.Disabled() && s.replayedPos == 0 && s.history.Len() > 0 {
		// A fresh backend may not join mid-session when history replay is
		// disabled outright.
		s.Close(CloseReplayFailed)
		return wireerr.New(wireerr.FatalSession, 1927, "HY000", "backend", "cannot acquire backend mid-session: session command history replay disabled")
	}
	for {
		expects, err := s.ExecuteSessionCommand()
		if err != nil {
			s.Close(CloseReplayFailed)
			return err
		}
		if !expects {
			return nil
		}
		if err := drainReply(); err != nil {
			s.Close(CloseReplayFailed)
			return wireerr.Wrap(wireerr.BackendUnavailable, 1927, "HY000", "backend", err)
		}
		s.AckWrite()
	}
}

// Close releases the connection and records the close reason.
func (s *Session) Close(reason CloseReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(reason)
}

func (s *Session) closeLocked(reason CloseReason) {
	if s.state == Closed {
		return
	}
	s.state = Closed
	s.reason = reason
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

// --- accessors ---

func (s *Session) Server() string { return s.server }

// Conn returns the backend's underlying wire connection, for callers
// (the router's query-forwarding loop) that need to write a command and
// read its reply directly; Session itself only tracks state transitions
// and session-command history around that traffic.
func (s *Session) Conn() *wire.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Session) InUse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == InUse || s.state == WaitingResult || s.state == ReplayingHistory
}

func (s *Session) IsWaitingResult() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == WaitingResult
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SessionCommandCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionCmdCount
}

func (s *Session) HasSessionCommands() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history.Since(s.replayedPos)) > 0
}

func (s *Session) LastWriteTS() time.Time {
	return time.Unix(0, s.lastWriteTS.Load())
}

func (s *Session) NumSelects() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numSelects
}

// RecordSelect increments the select counter, called by the router when it
// classifies a forwarded statement as a read.
func (s *Session) RecordSelect() {
	s.mu.Lock()
	s.numSelects++
	s.mu.Unlock()
}

// CloseReasonValue returns the recorded close reason (CloseNone if still
// open).
func (s *Session) CloseReasonValue() CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// MarkInUse transitions a NotInUse backend to InUse when the router starts
// routing a statement to it.
func (s *Session) MarkInUse() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == NotInUse {
		s.state = InUse
	}
}
