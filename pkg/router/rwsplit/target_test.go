package rwsplit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lishubing/sqlgate/pkg/classify"
)

func TestDecideHintOverridesEverything(t *testing.T) {
	in := DecisionInput{
		Hint: Hint{Present: true, Target: TargetNamedServer, Server: "db3"},
		Trx:  TrxActiveRW,
		Mask: classify.Write,
	}
	require.Equal(t, TargetNamedServer, Decide(in))
}

func TestDecideActiveWriteTrxForcesMaster(t *testing.T) {
	in := DecisionInput{Trx: TrxActiveRW, Mask: classify.Read}
	require.Equal(t, TargetMaster, Decide(in))
}

func TestDecideActiveReadOnlyTrxStaysOnCurrentNode(t *testing.T) {
	in := DecisionInput{Trx: TrxActiveRO, Mask: classify.Read}
	require.Equal(t, TargetLastUsed, Decide(in))
}

func TestDecideWriteClassForcesMaster(t *testing.T) {
	in := DecisionInput{Trx: TrxInactive, Mask: classify.Write}
	require.Equal(t, TargetMaster, Decide(in))
}

func TestDecideSessionWriteOnlyRoutesAll(t *testing.T) {
	in := DecisionInput{Trx: TrxInactive, Mask: classify.SessionWrite}
	require.Equal(t, TargetAll, Decide(in))
}

func TestDecideDefaultsToSlave(t *testing.T) {
	in := DecisionInput{Trx: TrxInactive, Mask: classify.Read}
	require.Equal(t, TargetSlave, Decide(in))
}
