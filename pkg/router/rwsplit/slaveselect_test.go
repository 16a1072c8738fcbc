package rwsplit

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSelectLeastCurrentOperations(t *testing.T) {
	cands := []Candidate{
		{Name: "s1", Rank: 1, CurrentOps: 5},
		{Name: "s2", Rank: 1, CurrentOps: 2},
		{Name: "s3", Rank: 1, CurrentOps: 9},
	}
	got, ok := Select(cands, 1, 0, LeastCurrentOperations, nil)
	require.True(t, ok)
	require.Equal(t, "s2", got.Name)
}

func TestSelectFiltersByRankAndLag(t *testing.T) {
	cands := []Candidate{
		{Name: "s1", Rank: 1, ReplicationLag: 30 * time.Second},
		{Name: "s2", Rank: 2, ReplicationLag: time.Second},
		{Name: "s3", Rank: 1, ReplicationLag: time.Second},
	}
	got, ok := Select(cands, 1, 5*time.Second, LeastBehindMaster, nil)
	require.True(t, ok)
	require.Equal(t, "s3", got.Name)
}

func TestSelectNoneEligible(t *testing.T) {
	cands := []Candidate{{Name: "s1", Rank: 2}}
	_, ok := Select(cands, 1, 0, LeastCurrentOperations, nil)
	require.False(t, ok)
}

// TestSelectAdaptiveFloor checks the 1/197-of-wheel floor from spec
// section 4.D: even a slave with an extremely high average response time
// relative to its peers must still retain a nonzero share of selections.
func TestSelectAdaptiveFloor(t *testing.T) {
	cands := []Candidate{
		{Name: "fast", Rank: 1, AvgResponseTime: time.Millisecond},
		{Name: "slow", Rank: 1, AvgResponseTime: time.Second},
	}
	rng := rand.New(rand.NewSource(42))
	counts := map[string]int{}
	for i := 0; i < 10000; i++ {
		got, ok := Select(cands, 1, 0, Adaptive, rng)
		require.True(t, ok)
		counts[got.Name]++
	}
	require.Greater(t, counts["slow"], 0)
}
