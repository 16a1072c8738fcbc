package shard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFetcher struct {
	byServer map[string][]string
}

func (f *fakeFetcher) Databases(server string) ([]string, error) {
	return f.byServer[server], nil
}

func TestSchedulerRefreshPopulatesMap(t *testing.T) {
	m := NewMap(time.Minute, DuplicateFatal)
	fetcher := &fakeFetcher{byServer: map[string][]string{
		"s1": {"billing"},
		"s2": {"analytics"},
	}}
	servers := func() []string { return []string{"s1", "s2"} }

	sched := NewScheduler(m, fetcher, servers, zap.NewNop())
	require.NoError(t, sched.Start("@every 1h"))
	defer sched.Stop()

	server, found, _ := m.Lookup("billing", time.Now())
	require.True(t, found)
	require.Equal(t, "s1", server)
}
