package rwsplit

import "github.com/lishubing/sqlgate/pkg/wire"

// Galera/WSREP and InnoDB deadlock error codes spec section 4.D calls out
// for automatic close-and-retry (outside a transaction) or replay (inside
// one), rather than surfacing the error to the client.
const (
	ErrCodeDeadlock     = 1213 // ER_LOCK_DEADLOCK
	ErrCodeLockWaitTimeout = 1205 // ER_LOCK_WAIT_TIMEOUT
	ErrCodeWsrepConflict = 1047 // used by some Galera builds for a BF abort
)

const wsrepState = "08S01"

// IsRetryableBackendError reports whether e is one of the transient
// conditions spec section 4.D says should trigger a retry rather than
// being passed through to the client: a deadlock, a WSREP certification
// conflict (identified either by error code or SQLSTATE 08S01), or a lock
// wait timeout.
func IsRetryableBackendError(e wire.ErrPacket) bool {
	switch e.Code {
	case ErrCodeDeadlock, ErrCodeLockWaitTimeout, ErrCodeWsrepConflict:
		return true
	}
	return e.State == wsrepState
}

// RetryDecision is what the router does in response to a retryable
// backend error, depending on whether a transaction is open.
type RetryDecision int

const (
	RetryNone RetryDecision = iota
	RetryCloseAndReconnect       // no transaction open: drop the connection, pick a new backend, resend
	RetryReplayOnNewBackend      // transaction open: replay the buffered transaction on a new backend
	RetryGiveUp                  // attempts exhausted; surface the error
)

// DecideRetry determines the retry action for a retryable error, given
// whether a transaction is currently open and how many attempts remain.
func DecideRetry(trxOpen bool, buf *TrxBuffer, cfg ReplayConfig) RetryDecision {
	if !trxOpen {
		return RetryCloseAndReconnect
	}
	if buf == nil || !buf.CanRetry(cfg) {
		return RetryGiveUp
	}
	return RetryReplayOnNewBackend
}
