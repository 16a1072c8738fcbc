package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMonitorTickElectsMasterAndUpdatesFailoverState(t *testing.T) {
	exec := newFakeExecutor()
	exec.gtids["m"] = "0-1-10"
	exec.gtids["s1"] = "0-1-8"
	m := &Server{Name: "m", Rank: 1}
	s1 := &Server{Name: "s1", Rank: 2}

	mon, err := NewMonitor("cluster1", PollConfig{}, []*Server{m, s1}, exec, 4, zap.NewNop())
	require.NoError(t, err)

	mon.Tick(time.Now())

	require.True(t, m.Reachable())
	require.True(t, s1.Reachable())
	require.True(t, m.Status.Has(Master))
	require.NotNil(t, mon.Topology)
	require.Equal(t, 0, mon.Failover.consecutiveUnreachable)
}

func TestMonitorTickMarksUnreachableServersOnExecError(t *testing.T) {
	exec := &erroringExecutor{}
	m := &Server{Name: "m"}

	mon, err := NewMonitor("cluster1", PollConfig{}, []*Server{m}, exec, 2, zap.NewNop())
	require.NoError(t, err)

	mon.Tick(time.Now())
	require.False(t, m.Reachable())
}

type erroringExecutor struct{}

func (erroringExecutor) Exec(*Server, string) error                    { return errBoom }
func (erroringExecutor) GTIDPosition(*Server) (string, error)          { return "", errBoom }
func (erroringExecutor) SlaveIODisconnectedFor(*Server) (time.Duration, bool) { return 0, false }

var errBoom = failoverError("boom")
