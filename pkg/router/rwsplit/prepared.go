package rwsplit

import "sync"

// PreparedStmt tracks one client-visible prepared statement id and the
// per-backend ids it maps to, per spec section 4.D: COM_STMT_PREPARE is
// routed to every backend currently eligible to execute it (TargetAll),
// and each backend hands back its own statement id, so later
// COM_STMT_EXECUTE/CLOSE on the external id must be translated per
// backend before being forwarded.
type PreparedStmt struct {
	ExternalID uint32
	SQL        []byte
	backendIDs map[string]uint32 // backend name -> backend's own stmt id
}

// PreparedRegistry owns the external-id -> PreparedStmt mapping for one
// client session.
type PreparedRegistry struct {
	mu      sync.Mutex
	next    uint32
	stmts   map[uint32]*PreparedStmt
}

// NewPreparedRegistry returns an empty registry. External ids start at 1;
// 0 is never issued, matching the protocol's reserved id.
func NewPreparedRegistry() *PreparedRegistry {
	return &PreparedRegistry{next: 1, stmts: make(map[uint32]*PreparedStmt)}
}

// Prepare allocates a new external id for sql and returns the record the
// caller should populate with backend ids as PREPARE responses arrive.
func (r *PreparedRegistry) Prepare(sql []byte) *PreparedStmt {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.next++
	ps := &PreparedStmt{ExternalID: id, SQL: append([]byte(nil), sql...), backendIDs: make(map[string]uint32)}
	r.stmts[id] = ps
	return ps
}

// BindBackendID records the id a backend assigned when it prepared
// externalID's statement.
func (r *PreparedRegistry) BindBackendID(externalID uint32, backend string, backendID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ps, ok := r.stmts[externalID]; ok {
		ps.backendIDs[backend] = backendID
	}
}

// BackendID returns the backend-local statement id for externalID on
// backend, translating an incoming COM_STMT_EXECUTE/CLOSE before it is
// forwarded. ok is false if the statement was never prepared on backend.
func (r *PreparedRegistry) BackendID(externalID uint32, backend string) (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.stmts[externalID]
	if !ok {
		return 0, false
	}
	id, ok := ps.backendIDs[backend]
	return id, ok
}

// Close drops externalID's mapping, called when the client issues
// COM_STMT_CLOSE or the session ends.
func (r *PreparedRegistry) Close(externalID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stmts, externalID)
}

// Get returns the registry entry for externalID, if any, so a caller
// preparing a late-joining backend can re-issue the original SQL.
func (r *PreparedRegistry) Get(externalID uint32) (*PreparedStmt, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.stmts[externalID]
	return ps, ok
}

// BackendNames reports which backends currently hold a prepared copy of
// externalID, used to decide which backends a late PREPARE must still be
// sent to before an EXECUTE can be routed there.
func (ps *PreparedStmt) BackendNames() []string {
	names := make([]string, 0, len(ps.backendIDs))
	for name := range ps.backendIDs {
		names = append(names, name)
	}
	return names
}
