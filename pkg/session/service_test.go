package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewServiceRejectsBothServersAndMonitor(t *testing.T) {
	_, err := NewService("svc1", "rwsplit", ServiceParams{}, nil, []string{"s1"}, "mon1")
	require.Error(t, err)
}

func TestNewServiceRejectsNeitherServersNorMonitor(t *testing.T) {
	_, err := NewService("svc1", "rwsplit", ServiceParams{}, nil, nil, "")
	require.Error(t, err)
}

func TestNewServiceWithExplicitServers(t *testing.T) {
	svc, err := NewService("svc1", "rwsplit", ServiceParams{}, nil, []string{"s1", "s2"}, "")
	require.NoError(t, err)
	require.Equal(t, []string{"s1", "s2"}, svc.ExplicitServers())
	_, usesMonitor := svc.UsesMonitor()
	require.False(t, usesMonitor)
}

func TestServiceSessionTracking(t *testing.T) {
	svc, err := NewService("svc1", "rwsplit", ServiceParams{}, nil, []string{"s1"}, "")
	require.NoError(t, err)
	cs := &ClientSession{ID: 7}
	svc.NewSession(cs)
	require.Equal(t, 1, svc.SessionCount())
	svc.CloseSession(7)
	require.Equal(t, 0, svc.SessionCount())
}
