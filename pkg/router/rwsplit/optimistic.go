package rwsplit

import "github.com/lishubing/sqlgate/pkg/classify"

// OptimisticTrxState tracks a transaction opened optimistically on a slave
// under the optimistic_trx setting of spec section 4.D: a BEGIN with no
// statement yet known to write is sent to a slave on the chance the whole
// transaction turns out to be read-only, and is restarted on the master,
// replaying everything issued so far, the moment a write is seen.
type OptimisticTrxState struct {
	Enabled    bool
	OnSlave    bool
	buf        *TrxBuffer
}

// NewOptimisticTrxState starts tracking a freshly-opened transaction.
func NewOptimisticTrxState(enabled bool) *OptimisticTrxState {
	return &OptimisticTrxState{Enabled: enabled, OnSlave: enabled, buf: NewTrxBuffer()}
}

// Observe records a statement's classification and reports whether the
// transaction must now be migrated to the master: true the first time a
// write-class statement appears while still running on a slave.
func (o *OptimisticTrxState) Observe(mask classify.TypeMask, stmt []byte) (migrate bool) {
	if !o.Enabled || !o.OnSlave {
		return false
	}
	o.buf.Record(ReplayConfig{}, stmt)
	if isWriteClass(mask) {
		o.OnSlave = false
		return true
	}
	return false
}

// ReplayStatements returns the statements issued so far, to be replayed
// against the master after a migrate signal, in issue order.
func (o *OptimisticTrxState) ReplayStatements() [][]byte {
	return o.buf.Statements()
}
