package authcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInjectMonitorCredentialsIsFoundByLookup(t *testing.T) {
	c := NewCache()
	InjectMonitorCredentials(c, "monitor_user", "%", []byte("monitorhash"))

	entry, ok := c.Lookup("monitor_user", "10.1.1.1", "any_db")
	require.True(t, ok)
	require.Equal(t, []byte("monitorhash"), entry.Password)
	require.True(t, c.Loaded())
}
