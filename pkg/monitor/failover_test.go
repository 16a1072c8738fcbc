package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	gtids     map[string]string
	execCalls []string
	ioDownFor map[string]time.Duration
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{gtids: map[string]string{}, ioDownFor: map[string]time.Duration{}}
}

func (f *fakeExecutor) Exec(s *Server, sql string) error {
	f.execCalls = append(f.execCalls, s.Name+":"+sql)
	return nil
}

func (f *fakeExecutor) GTIDPosition(s *Server) (string, error) {
	return f.gtids[s.Name], nil
}

func (f *fakeExecutor) SlaveIODisconnectedFor(s *Server) (time.Duration, bool) {
	d, ok := f.ioDownFor[s.Name]
	return d, ok
}

func TestSelectPromotionCandidatePicksHighestGTID(t *testing.T) {
	exec := newFakeExecutor()
	exec.gtids["s1"] = "0-1-5"
	exec.gtids["s2"] = "0-1-9"
	s1 := &Server{Name: "s1"}
	s2 := &Server{Name: "s2"}

	chosen, ok := SelectPromotionCandidate([]*Server{s1, s2}, exec)
	require.True(t, ok)
	require.Equal(t, "s2", chosen.Name)
}

func TestSelectPromotionCandidateExcludesExcluded(t *testing.T) {
	exec := newFakeExecutor()
	exec.gtids["s1"] = "0-1-5"
	exec.gtids["s2"] = "0-1-9"
	s1 := &Server{Name: "s1"}
	s2 := &Server{Name: "s2", Excluded: true}

	chosen, ok := SelectPromotionCandidate([]*Server{s1, s2}, exec)
	require.True(t, ok)
	require.Equal(t, "s1", chosen.Name)
}

func TestFailoverRunsPromoteAndRedirect(t *testing.T) {
	exec := newFakeExecutor()
	master := &Server{Name: "master"}
	s1 := &Server{Name: "s1"}
	s2 := &Server{Name: "s2", Address: "10.0.0.3:3306"}
	exec.gtids["s1"] = "0-1-9"
	exec.gtids["s2"] = "0-1-5"

	chosen, err := Failover(exec, master, []*Server{s1, s2}, FailoverConfig{FailoverTimeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, "s1", chosen.Name)
	require.True(t, chosen.Status.Has(Master))
	require.True(t, master.Status.Has(WasMaster))
	require.Contains(t, exec.execCalls, "s2:STOP SLAVE")
}

func TestFailoverAbortsWhenVerificationFails(t *testing.T) {
	exec := newFakeExecutor()
	s1 := &Server{Name: "s1"}
	exec.ioDownFor["s1"] = time.Second

	_, err := Failover(exec, nil, []*Server{s1}, FailoverConfig{
		FailoverTimeout:       time.Second,
		VerifyMasterFailure:   true,
		MasterFailureTimeout:  10 * time.Second,
	})
	require.Error(t, err)
}

func TestFailoverStateObserve(t *testing.T) {
	var fs FailoverState
	cfg := FailoverConfig{FailCount: 3}
	require.False(t, fs.Observe(false, cfg))
	require.False(t, fs.Observe(false, cfg))
	require.True(t, fs.Observe(false, cfg))
	require.False(t, fs.Observe(true, cfg))
}
