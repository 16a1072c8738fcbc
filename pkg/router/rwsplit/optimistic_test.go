package rwsplit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lishubing/sqlgate/pkg/classify"
)

func TestOptimisticTrxMigratesOnFirstWrite(t *testing.T) {
	o := NewOptimisticTrxState(true)
	require.True(t, o.OnSlave)

	require.False(t, o.Observe(classify.Read, []byte("SELECT 1")))
	require.True(t, o.OnSlave)

	require.True(t, o.Observe(classify.Write, []byte("UPDATE t SET x=1")))
	require.False(t, o.OnSlave)

	require.Len(t, o.ReplayStatements(), 2)
}

func TestOptimisticTrxDisabledNeverMigrates(t *testing.T) {
	o := NewOptimisticTrxState(false)
	require.False(t, o.Observe(classify.Write, []byte("UPDATE t SET x=1")))
}
