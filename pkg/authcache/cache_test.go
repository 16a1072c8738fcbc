package authcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupMatchesExactHostAndAnyDB(t *testing.T) {
	c := NewCache()
	c.Load([]UserEntry{
		{User: "app", Host: "10.0.0.5", AnyDB: true, Password: []byte("hash")},
	}, nil)

	entry, ok := c.Lookup("app", "10.0.0.5", "billing")
	require.True(t, ok)
	require.Equal(t, []byte("hash"), entry.Password)
}

func TestLookupMatchesWildcardHost(t *testing.T) {
	c := NewCache()
	c.Load([]UserEntry{
		{User: "app", Host: "10.0.%", AnyDB: true},
	}, nil)

	_, ok := c.Lookup("app", "10.0.5.9", "x")
	require.True(t, ok)

	_, ok = c.Lookup("app", "192.168.1.1", "x")
	require.False(t, ok)
}

func TestLookupRestrictsToGrantedDatabase(t *testing.T) {
	c := NewCache()
	c.Load([]UserEntry{
		{User: "reporting", Host: "%", DB: "analytics"},
	}, nil)

	_, ok := c.Lookup("reporting", "any-host", "analytics")
	require.True(t, ok)

	_, ok = c.Lookup("reporting", "any-host", "other_db")
	require.False(t, ok)
}

func TestLookupAllowsInformationSchemaRegardlessOfGrant(t *testing.T) {
	c := NewCache()
	c.Load([]UserEntry{
		{User: "reporting", Host: "%", DB: "analytics"},
	}, nil)

	_, ok := c.Lookup("reporting", "any-host", "information_schema")
	require.True(t, ok)

	_, ok = c.Lookup("reporting", "any-host", "")
	require.True(t, ok)
}

func TestLookupNoMatchForUnknownUser(t *testing.T) {
	c := NewCache()
	c.Load([]UserEntry{{User: "app", Host: "%", AnyDB: true}}, nil)

	_, ok := c.Lookup("ghost", "any-host", "x")
	require.False(t, ok)
}

func TestHasDatabaseReflectsLastLoad(t *testing.T) {
	c := NewCache()
	require.False(t, c.Loaded())
	c.Load(nil, []string{"billing", "analytics"})
	require.True(t, c.Loaded())
	require.True(t, c.HasDatabase("billing"))
	require.False(t, c.HasDatabase("unknown"))
}
