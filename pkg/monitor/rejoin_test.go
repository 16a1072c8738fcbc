package monitor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNeedsRejoinWhenNoSlaveThread(t *testing.T) {
	master := &Server{Name: "master", Address: "10.0.0.1:3306"}
	s := &Server{Name: "s1", Status: Running}
	require.True(t, NeedsRejoin(s, master, false))
}

func TestNeedsRejoinFalseForMaintenanceOrExcluded(t *testing.T) {
	master := &Server{Name: "master", Address: "10.0.0.1:3306"}
	maint := &Server{Name: "s1", Status: Running | Maintenance}
	require.False(t, NeedsRejoin(maint, master, false))

	excluded := &Server{Name: "s2", Status: Running, Excluded: true}
	require.False(t, NeedsRejoin(excluded, master, false))
}

func TestNeedsRejoinDetectsStaleTopology(t *testing.T) {
	master := &Server{Name: "master", Address: "10.0.0.1:3306"}
	s := &Server{Name: "s1", Status: Running, MasterHost: "10.0.0.9:3306"}
	require.False(t, NeedsRejoin(s, master, false))
	require.True(t, NeedsRejoin(s, master, true))
}

func TestRejoinRedirectsToCurrentMaster(t *testing.T) {
	exec := newFakeExecutor()
	master := &Server{Name: "master", Address: "10.0.0.1:3306"}
	s := &Server{Name: "s1", MasterHost: "10.0.0.9:3306"}

	require.NoError(t, Rejoin(exec, s, master))
	require.Equal(t, "10.0.0.1:3306", s.MasterHost)
	require.Contains(t, exec.execCalls, "s1:STOP SLAVE")
}
