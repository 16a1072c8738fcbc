package monitor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustReachable(s *Server) *Server {
	s.reachable = true
	s.Status |= Running
	return s
}

// TestElectionMasterUniqueness is spec section 8 property 7: across any
// set of eligible candidates, election chooses exactly one master, and
// applying it clears the bit everywhere else.
func TestElectionMasterUniqueness(t *testing.T) {
	s1 := mustReachable(&Server{Name: "s1", Rank: 2})
	s2 := mustReachable(&Server{Name: "s2", Rank: 1})
	s3 := mustReachable(&Server{Name: "s3", Rank: 3})
	servers := []*Server{s1, s2, s3}
	topo := BuildTopology(servers)

	elected, ok := Elect(servers, topo, "")
	require.True(t, ok)
	require.Equal(t, "s2", elected.Name) // lowest rank value wins

	ApplyElection(servers, elected)

	var masters int
	for _, s := range servers {
		if s.Status.Has(Master) {
			masters++
			require.Equal(t, "s2", s.Name)
		}
	}
	require.Equal(t, 1, masters)
}

func TestElectionStickyOnPreviousMaster(t *testing.T) {
	s1 := mustReachable(&Server{Name: "s1", Rank: 1})
	s2 := mustReachable(&Server{Name: "s2", Rank: 2})
	servers := []*Server{s1, s2}
	topo := BuildTopology(servers)

	elected, ok := Elect(servers, topo, "s2")
	require.True(t, ok)
	require.Equal(t, "s2", elected.Name)
}

func TestElectionExcludesReadOnlyAndMaintenance(t *testing.T) {
	s1 := mustReachable(&Server{Name: "s1", Rank: 1, ReadOnly: true})
	s2 := mustReachable(&Server{Name: "s2", Rank: 2})
	s2.Status |= Maintenance
	s3 := mustReachable(&Server{Name: "s3", Rank: 3})
	servers := []*Server{s1, s2, s3}
	topo := BuildTopology(servers)

	elected, ok := Elect(servers, topo, "")
	require.True(t, ok)
	require.Equal(t, "s3", elected.Name)
}

func TestElectionNoEligibleCandidates(t *testing.T) {
	s1 := &Server{Name: "s1"} // unreachable
	_, ok := Elect([]*Server{s1}, BuildTopology([]*Server{s1}), "")
	require.False(t, ok)
}
