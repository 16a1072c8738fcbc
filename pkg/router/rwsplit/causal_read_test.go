package rwsplit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlanCausalReadSkipsWhenOff(t *testing.T) {
	plan := PlanCausalRead(CausalReadsOff, TargetSlave, "0-1-5", 10)
	require.Nil(t, plan.ProbeQuery)
}

func TestPlanCausalReadSkipsOnMaster(t *testing.T) {
	plan := PlanCausalRead(CausalReadsGlobal, TargetMaster, "0-1-5", 10)
	require.Nil(t, plan.ProbeQuery)
}

func TestPlanCausalReadProbesSlave(t *testing.T) {
	plan := PlanCausalRead(CausalReadsGlobal, TargetSlave, "0-1-5", 10)
	require.NotNil(t, plan.ProbeQuery)
	require.Contains(t, string(plan.ProbeQuery), "MASTER_GTID_WAIT")
	require.Contains(t, string(plan.ProbeQuery), "0-1-5")
}

// TestStripProbeReplyRenumbersSequence is spec section 8 property 2: the
// client must never observe the probe's own reply, and what remains must
// look like a fresh reply starting at sequence 1.
func TestStripProbeReplyRenumbersSequence(t *testing.T) {
	probe := [][]byte{{5, 0, 0, 9, 0x00}}           // sequence 9, discarded
	stmtReply := [][]byte{{5, 0, 0, 77, 0x00}, {5, 0, 0, 78, 0xfe}}
	frames := append(append([][]byte{}, probe...), stmtReply...)

	out := StripProbeReply(frames, len(probe))
	require.Len(t, out, 2)
	require.Equal(t, byte(1), out[0][3])
	require.Equal(t, byte(2), out[1][3])
}

func TestStripProbeReplyAllProbeIsEmpty(t *testing.T) {
	frames := [][]byte{{5, 0, 0, 9, 0x00}}
	out := StripProbeReply(frames, 1)
	require.Nil(t, out)
}
