package configplane

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiffAllowsWhitelistedKeyChange(t *testing.T) {
	old := map[string]interface{}{"rank": "1", "address": "10.0.0.1"}
	new := map[string]interface{}{"rank": "2", "address": "10.0.0.1"}
	changed, err := Diff(TypeServer, old, new, DefaultWhitelists[TypeServer])
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"rank": "2"}, changed)
}

func TestDiffRejectsStaticKeyChange(t *testing.T) {
	old := map[string]interface{}{"protocol": "MySQLBackend"}
	new := map[string]interface{}{"protocol": "MySQLBackendV2"}
	_, err := Diff(TypeServer, old, new, DefaultWhitelists[TypeServer])
	require.Error(t, err)
}

func TestDiffRejectsRemovingStaticKey(t *testing.T) {
	old := map[string]interface{}{"protocol": "MySQLBackend", "rank": "1"}
	new := map[string]interface{}{"rank": "1"}
	_, err := Diff(TypeServer, old, new, DefaultWhitelists[TypeServer])
	require.Error(t, err)
}

func TestDiffIsEmptyWhenNothingChanges(t *testing.T) {
	old := map[string]interface{}{"rank": "1"}
	new := map[string]interface{}{"rank": "1"}
	changed, err := Diff(TypeServer, old, new, DefaultWhitelists[TypeServer])
	require.NoError(t, err)
	require.Empty(t, changed)
}
