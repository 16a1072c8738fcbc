package rwsplit

import (
	"fmt"

	"github.com/lishubing/sqlgate/pkg/wire"
)

// CausalReadMode is the causal_reads setting of spec section 4.D.
type CausalReadMode int

const (
	CausalReadsOff CausalReadMode = iota
	CausalReadsLocal
	CausalReadsGlobal
	CausalReadsFastGlobal
)

// GTIDWaitQuery builds the MASTER_GTID_WAIT probe prepended ahead of a
// statement routed to a slave under causal_reads, per spec section 4.D:
// the router sends MASTER_GTID_WAIT(<gtid>, <timeout>) before the real
// statement, then discards the probe's own reply so the client only sees
// the statement's result with the sequence numbers renumbered as if the
// probe never happened.
func GTIDWaitQuery(gtid string, timeoutSeconds int) []byte {
	return []byte(fmt.Sprintf("SELECT MASTER_GTID_WAIT('%s', %d)", gtid, timeoutSeconds))
}

// CausalReadPlan is what the router does to route one statement under a
// causal-read mode that requires waiting for a slave to catch up.
type CausalReadPlan struct {
	ProbeQuery []byte // nil when no wait is needed (CausalReadsOff, or already caught up)
}

// PlanCausalRead decides whether a GTID wait probe must precede the
// statement being routed to target, given the last GTID position known to
// have been written by the master in this session (lastGTID) and the
// session's causal-read mode.
func PlanCausalRead(mode CausalReadMode, target TargetKind, lastGTID string, timeoutSeconds int) CausalReadPlan {
	if mode == CausalReadsOff {
		return CausalReadPlan{}
	}
	if target != TargetSlave && target != TargetRlagMax {
		return CausalReadPlan{}
	}
	if lastGTID == "" {
		return CausalReadPlan{}
	}
	return CausalReadPlan{ProbeQuery: GTIDWaitQuery(lastGTID, timeoutSeconds)}
}

// StripProbeReply removes the MASTER_GTID_WAIT probe's own reply frames
// from a backend's combined [probe-reply][statement-reply] frame sequence
// and renumbers what remains to start at sequence 1, so the client only
// ever observes the statement's reply.
func StripProbeReply(frames [][]byte, probeFrameCount int) [][]byte {
	if probeFrameCount >= len(frames) {
		return nil
	}
	rest := frames[probeFrameCount:]
	wire.RewriteSequenceNumbers(rest, 1)
	return rest
}
