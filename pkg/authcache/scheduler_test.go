package authcache

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLoader struct {
	users []UserEntry
	dbs   []string
}

func (f *fakeLoader) LoadAll() ([]UserEntry, []string, error) {
	return f.users, f.dbs, nil
}

func TestSchedulerStartPopulatesCacheImmediately(t *testing.T) {
	loader := &fakeLoader{
		users: []UserEntry{{User: "app", Host: "%", AnyDB: true}},
		dbs:   []string{"billing"},
	}
	cache := NewCache()
	sched := NewScheduler(loader, cache, zap.NewNop())

	require.NoError(t, sched.Start("@every 1h"))
	defer sched.Stop()

	require.True(t, cache.Loaded())
	_, ok := cache.Lookup("app", "any-host", "billing")
	require.True(t, ok)
}
