package monitor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildTopologyEdges(t *testing.T) {
	master := &Server{Name: "m", Address: "10.0.0.1:3306"}
	slave := &Server{Name: "s", Address: "10.0.0.2:3306", MasterHost: "10.0.0.1:3306"}
	topo := BuildTopology([]*Server{master, slave})

	require.Equal(t, "m", topo.edges["s"])
	_, hasEdge := topo.edges["m"]
	require.False(t, hasEdge)
}

func TestCyclesDetectsMultiMasterRing(t *testing.T) {
	a := &Server{Name: "a", Address: "10.0.0.1:3306", MasterHost: "10.0.0.2:3306"}
	b := &Server{Name: "b", Address: "10.0.0.2:3306", MasterHost: "10.0.0.1:3306"}
	topo := BuildTopology([]*Server{a, b})

	cycles := topo.Cycles()
	require.Len(t, cycles, 1)
	require.ElementsMatch(t, []string{"a", "b"}, cycles[0])
}

func TestRootsHaveNoOutgoingEdge(t *testing.T) {
	master := &Server{Name: "m", Address: "10.0.0.1:3306"}
	slave := &Server{Name: "s", Address: "10.0.0.2:3306", MasterHost: "10.0.0.1:3306"}
	topo := BuildTopology([]*Server{master, slave})

	roots := topo.Roots()
	require.Len(t, roots, 1)
	require.Equal(t, "m", roots[0].Name)
}
