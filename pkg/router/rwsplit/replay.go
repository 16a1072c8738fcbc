package rwsplit

import (
	"crypto/sha1"
	"time"
)

// ReplayConfig mirrors the delayed_retry / trx_max_attempts tunables of
// spec section 4.D.
type ReplayConfig struct {
	DelayedRetry        bool
	DelayedRetryTimeout  time.Duration
	TrxMaxAttempts       int
	TrxMaxSize           int // bytes; 0 means unbounded
}

// TrxBuffer accumulates a transaction's statements so it can be replayed
// against a new master if the one it started on fails before COMMIT, per
// spec section 4.D. It tracks two running SHA1 checksums: one over the
// issued statement bytes (so a replay can be verified to have re-issued
// the same statements in the same order) and, critically, one over the
// backend's reply bytes for each of those statements. A replay that
// reissues byte-identical statements but produces different results —
// a non-deterministic function, a lost update, a concurrent write that
// landed between the original run and the replay — must be caught by
// comparing the result checksums, not the statement checksums; see
// original_source/server/modules/routing/readwritesplit/rwsplitsession.cc's
// m_trx.add_result(writebuf) and the checksum comparison that follows it.
type TrxBuffer struct {
	statements [][]byte
	size       int
	attempts   int
	sum        [sha1.Size]byte
	opened     bool

	results   [][]byte
	resultSum [sha1.Size]byte
}

// NewTrxBuffer returns an empty buffer for a transaction that has not yet
// issued its first statement.
func NewTrxBuffer() *TrxBuffer {
	return &TrxBuffer{}
}

// Record appends a statement to the buffer and updates the running
// checksum. It returns false if appending would exceed cfg.TrxMaxSize,
// in which case the transaction is no longer replayable and must fail
// outright on backend loss, per spec section 4.D.
func (b *TrxBuffer) Record(cfg ReplayConfig, stmt []byte) bool {
	if cfg.TrxMaxSize > 0 && b.size+len(stmt) > cfg.TrxMaxSize {
		return false
	}
	b.statements = append(b.statements, append([]byte(nil), stmt...))
	b.size += len(stmt)
	b.opened = true
	b.sum = b.checksum()
	return true
}

func (b *TrxBuffer) checksum() [sha1.Size]byte {
	h := sha1.New()
	for _, s := range b.statements {
		h.Write(s)
		h.Write([]byte{0})
	}
	var out [sha1.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Checksum reports the running checksum over statements recorded so far.
func (b *TrxBuffer) Checksum() [sha1.Size]byte { return b.sum }

// RecordResult folds the backend's reply bytes for the most recently
// recorded statement into the transaction's result checksum. The caller
// (the dispatch loop) must call this once per statement, with the exact
// bytes read back from the backend for that statement, during both the
// original execution and any later replay attempt.
func (b *TrxBuffer) RecordResult(result []byte) {
	b.results = append(b.results, append([]byte(nil), result...))
	b.resultSum = b.resultChecksum()
}

func (b *TrxBuffer) resultChecksum() [sha1.Size]byte {
	h := sha1.New()
	for _, r := range b.results {
		h.Write(r)
		h.Write([]byte{0})
	}
	var out [sha1.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ResultChecksum reports the running checksum over backend reply bytes
// recorded so far via RecordResult.
func (b *TrxBuffer) ResultChecksum() [sha1.Size]byte { return b.resultSum }

// VerifyReplayResult is the testable property spec section 8 names:
// SHA1(concat(result_bytes_original)) == SHA1(concat(result_bytes_replay)).
// The caller accumulates a fresh TrxBuffer's worth of RecordResult calls
// during the replay attempt and passes its ResultChecksum here against
// the original buffer that recorded the first, failed run.
func (b *TrxBuffer) VerifyReplayResult(replayed [sha1.Size]byte) bool {
	return b.resultSum == replayed
}

// Statements returns the recorded statements in issue order.
func (b *TrxBuffer) Statements() [][]byte { return b.statements }

// JustOpened reports whether the transaction has recorded at most a BEGIN
// with no further statements yet, the case spec section 4.D calls out for
// a direct retry against a new master rather than a full replay.
func (b *TrxBuffer) JustOpened() bool { return b.opened && len(b.statements) <= 1 }

// CanRetry reports whether another replay attempt is still allowed under
// cfg.TrxMaxAttempts. It must be called once per attempt, before the
// attempt is made.
func (b *TrxBuffer) CanRetry(cfg ReplayConfig) bool {
	if cfg.TrxMaxAttempts > 0 && b.attempts >= cfg.TrxMaxAttempts {
		return false
	}
	b.attempts++
	return true
}

// Reset clears the buffer for the next transaction, keeping the attempt
// counter's history out of the new transaction's accounting.
func (b *TrxBuffer) Reset() {
	*b = TrxBuffer{}
}

// Results returns the recorded reply bytes in issue order.
func (b *TrxBuffer) Results() [][]byte { return b.results }

// VerifyChecksum reports whether recomputing the checksum over the
// buffered statements still matches what was recorded when they were
// issued, guarding against a buffer mutated out from under a replay.
func (b *TrxBuffer) VerifyChecksum() bool {
	return b.checksum() == b.sum
}
