package session

import (
	"go.uber.org/zap"
)

// workerMsgKind discriminates the values sent over a Worker's inbox,
// per spec section 5's message-passing discipline: cross-worker
// communication is always a value on a channel, never a shared pointer
// mutated in place.
type workerMsgKind int

const (
	msgSessionAssigned workerMsgKind = iota
	msgQuery
	msgSessionClosed
	msgConfigBroadcast
)

type workerMsg struct {
	kind      workerMsgKind
	session   *ClientSession
	sessionID uint32
	payload   []byte
	config    ConfigBroadcast
}

// ConfigBroadcast is a value sent to every worker when the runtime config
// plane applies a change that affects in-flight sessions (for example, a
// server being drained), per spec section 5.
type ConfigBroadcast struct {
	Kind   string
	Detail string
}

// Worker owns a disjoint subset of a server's client sessions on its own
// goroutine, per spec section 5's per-worker ownership model, grounded on
// the teacher's one-goroutine-per-tunnel pattern. Only the owning worker
// ever touches a session's mutable routing state; readers push decoded
// query bytes onto the worker's inbox rather than mutating session state
// from their own goroutine.
type Worker struct {
	id       int
	inbox    chan workerMsg
	sessions map[uint32]*ClientSession
	log      *zap.Logger

	dispatch func(cs *ClientSession, query []byte)
}

// NewWorker creates a worker with the given inbox depth. dispatch is
// called on the worker's own goroutine for every query message; it
// implements the actual route-and-forward step (wired in by the server
// that owns the session/backend/router glue).
func NewWorker(id int, inboxDepth int, dispatch func(cs *ClientSession, query []byte), log *zap.Logger) *Worker {
	return &Worker{
		id:       id,
		inbox:    make(chan workerMsg, inboxDepth),
		sessions: make(map[uint32]*ClientSession),
		log:      log,
		dispatch: dispatch,
	}
}

// Assign hands a freshly accepted session to this worker and starts the
// goroutine that reads raw client packets and forwards them as Query
// messages; the owning worker goroutine is the only one that mutates the
// session afterward.
func (w *Worker) Assign(cs *ClientSession) {
	w.inbox <- workerMsg{kind: msgSessionAssigned, session: cs}
	go w.readLoop(cs)
}

func (w *Worker) readLoop(cs *ClientSession) {
	for {
		msg, err := cs.Conn.ReadMessage()
		if err != nil {
			w.inbox <- workerMsg{kind: msgSessionClosed, sessionID: cs.ID}
			return
		}
		w.inbox <- workerMsg{kind: msgQuery, sessionID: cs.ID, payload: msg}
	}
}

// Broadcast delivers a config-plane notification to the worker; safe to
// call from any goroutine.
func (w *Worker) Broadcast(c ConfigBroadcast) {
	w.inbox <- workerMsg{kind: msgConfigBroadcast, config: c}
}

// Run processes the worker's inbox until stop is closed. It must be
// called on the goroutine that is to own this worker's sessions.
func (w *Worker) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case m := <-w.inbox:
			w.handle(m)
		}
	}
}

func (w *Worker) handle(m workerMsg) {
	switch m.kind {
	case msgSessionAssigned:
		w.sessions[m.session.ID] = m.session
		m.session.Start()
	case msgQuery:
		cs, ok := w.sessions[m.sessionID]
		if !ok {
			return
		}
		w.dispatch(cs, m.payload)
	case msgSessionClosed:
		cs, ok := w.sessions[m.sessionID]
		if !ok {
			return
		}
		cs.Close(CloseClientQuit)
		delete(w.sessions, m.sessionID)
	case msgConfigBroadcast:
		w.log.Info("config broadcast received", zap.Int("worker", w.id), zap.String("kind", m.config.Kind))
	}
}

// SessionCount reports how many sessions this worker currently owns; safe
// to call only from the worker's own goroutine (matches the rest of
// Worker's single-owner discipline).
func (w *Worker) SessionCount() int { return len(w.sessions) }
