package shard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRebuildAndLookup(t *testing.T) {
	m := NewMap(time.Minute, DuplicateFatal)
	now := time.Now()
	skipped, err := m.Rebuild(map[string][]string{
		"s1": {"appdb", "logsdb"},
		"s2": {"billingdb"},
	}, now)
	require.NoError(t, err)
	require.Empty(t, skipped)

	server, found, stale := m.Lookup("appdb", now)
	require.True(t, found)
	require.False(t, stale)
	require.Equal(t, "s1", server)

	_, found, stale = m.Lookup("nope", now)
	require.False(t, found)
	require.True(t, stale)
}

func TestRebuildDuplicateFatal(t *testing.T) {
	m := NewMap(0, DuplicateFatal)
	_, err := m.Rebuild(map[string][]string{
		"s1": {"appdb"},
		"s2": {"appdb"},
	}, time.Now())
	require.Error(t, err)
	var dup *DuplicateDatabaseError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "appdb", dup.DB)
}

func TestRebuildDuplicateLogAndSkip(t *testing.T) {
	m := NewMap(0, DuplicateLogAndSkip)
	skipped, err := m.Rebuild(map[string][]string{
		"s1": {"appdb"},
		"s2": {"appdb"},
	}, time.Now())
	require.NoError(t, err)
	require.Len(t, skipped, 1)

	server, found, _ := m.Lookup("appdb", time.Now())
	require.True(t, found)
	require.Equal(t, "s1", server)
}

func TestStaleAfterRefreshInterval(t *testing.T) {
	m := NewMap(time.Second, DuplicateFatal)
	base := time.Now()
	_, err := m.Rebuild(map[string][]string{"s1": {"appdb"}}, base)
	require.NoError(t, err)

	_, _, stale := m.Lookup("appdb", base.Add(2*time.Second))
	require.True(t, stale)
}

func TestDatabasesAndAllServers(t *testing.T) {
	m := NewMap(0, DuplicateFatal)
	_, err := m.Rebuild(map[string][]string{
		"s1": {"bdb", "adb"},
		"s2": {"cdb"},
	}, time.Now())
	require.NoError(t, err)

	require.Equal(t, []string{"adb", "bdb", "cdb"}, m.Databases())
	require.ElementsMatch(t, []string{"s1", "s2"}, m.AllServers())
}
