package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	classifysql "github.com/lishubing/sqlgate/pkg/classify/sql"
	"github.com/lishubing/sqlgate/pkg/router/rwsplit"
	"github.com/lishubing/sqlgate/pkg/router/shard"
	"github.com/lishubing/sqlgate/pkg/wire"
)

func newRWSplitAdapter() *RWSplitAdapter {
	return &RWSplitAdapter{
		Classifier: classifysql.New(),
		Master:     func() string { return "master1" },
		Slaves:     func() []string { return []string{"slave1"} },
	}
}

func TestRWSplitAdapterBeginTrxRoutesMasterAndOpensTrx(t *testing.T) {
	a := newRWSplitAdapter()
	require.Equal(t, rwsplit.TrxInactive, a.Trx)

	targets, err := a.RouteQuery([]byte("BEGIN"), "")
	require.NoError(t, err)
	require.Equal(t, []string{"master1"}, targets)
	require.Equal(t, rwsplit.TrxActiveRW, a.Trx)
	require.Equal(t, [][]byte{[]byte("BEGIN")}, a.Buf.Statements())
}

func TestRWSplitAdapterStaysOnMasterWhileTrxActive(t *testing.T) {
	a := newRWSplitAdapter()
	_, err := a.RouteQuery([]byte("BEGIN"), "")
	require.NoError(t, err)

	targets, err := a.RouteQuery([]byte("SELECT 1"), "")
	require.NoError(t, err)
	require.Equal(t, []string{"master1"}, targets)
}

func TestRWSplitAdapterCommitEndsTrxOnObserveReply(t *testing.T) {
	a := newRWSplitAdapter()
	_, err := a.RouteQuery([]byte("BEGIN"), "")
	require.NoError(t, err)
	a.ObserveReply(wire.SessionTrackInfo{}, []byte("OK"))

	_, err = a.RouteQuery([]byte("COMMIT"), "")
	require.NoError(t, err)
	require.Equal(t, rwsplit.TrxEnding, a.Trx)

	a.ObserveReply(wire.SessionTrackInfo{}, []byte("OK"))
	require.Equal(t, rwsplit.TrxInactive, a.Trx)
	require.Empty(t, a.Buf.Statements())
}

func TestRWSplitAdapterObserveReplyNarrowsToReadOnlyTrx(t *testing.T) {
	a := newRWSplitAdapter()
	_, err := a.RouteQuery([]byte("BEGIN"), "")
	require.NoError(t, err)
	require.Equal(t, rwsplit.TrxActiveRW, a.Trx)

	a.ObserveReply(wire.SessionTrackInfo{TrxExplicit: true, TrxReadOnly: true}, []byte("OK"))
	require.Equal(t, rwsplit.TrxActiveRO, a.Trx)
}

func TestRWSplitAdapterObserveReplyTracksGTIDAndResultChecksum(t *testing.T) {
	a := newRWSplitAdapter()
	_, err := a.RouteQuery([]byte("BEGIN"), "")
	require.NoError(t, err)

	a.ObserveReply(wire.SessionTrackInfo{GTID: "0-1-42"}, []byte("OK"))
	require.Equal(t, "0-1-42", a.LastGTID)
	require.NotEqual(t, [20]byte{}, a.Buf.ResultChecksum())
}

func TestRWSplitAdapterNoEligibleBackendWhenMasterMissing(t *testing.T) {
	a := newRWSplitAdapter()
	a.Master = func() string { return "" }
	_, err := a.RouteQuery([]byte("UPDATE t SET x=1"), "")
	require.Error(t, err)
}

func newShardAdapter(t *testing.T) *ShardAdapter {
	t.Helper()
	m := shard.NewMap(0, shard.DuplicateFatal)
	_, err := m.Rebuild(map[string][]string{
		"s1": {"appdb"},
		"s2": {"billingdb"},
	}, time.Now())
	require.NoError(t, err)
	return &ShardAdapter{Map: m, Classifier: classifysql.New()}
}

func TestShardAdapterUseSetsCurrentDB(t *testing.T) {
	a := newShardAdapter(t)
	targets, err := a.RouteQuery([]byte("USE appdb"), "")
	require.NoError(t, err)
	require.Equal(t, []string{"s1"}, targets)
	require.Equal(t, "appdb", a.State.CurrentDB)
	require.False(t, a.Broadcast())
}

func TestShardAdapterQualifiedTableRoutesByReferencedDB(t *testing.T) {
	a := newShardAdapter(t)
	targets, err := a.RouteQuery([]byte("SELECT * FROM billingdb.invoices"), "")
	require.NoError(t, err)
	require.Equal(t, []string{"s2"}, targets)
}

func TestShardAdapterUnqualifiedUsesCurrentDB(t *testing.T) {
	a := newShardAdapter(t)
	_, err := a.RouteQuery([]byte("USE appdb"), "")
	require.NoError(t, err)

	targets, err := a.RouteQuery([]byte("SELECT * FROM accounts"), "")
	require.NoError(t, err)
	require.Equal(t, []string{"s1"}, targets)
}

func TestShardAdapterUnknownUseIsError(t *testing.T) {
	a := newShardAdapter(t)
	_, err := a.RouteQuery([]byte("USE ghostdb"), "")
	require.Error(t, err)
}

func TestShardAdapterShowDatabasesBroadcasts(t *testing.T) {
	a := newShardAdapter(t)
	targets, err := a.RouteQuery([]byte("SHOW DATABASES"), "")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"s1", "s2"}, targets)
	require.True(t, a.Broadcast())
}

func TestShardAdapterShowTablesBroadcasts(t *testing.T) {
	a := newShardAdapter(t)
	targets, err := a.RouteQuery([]byte("show tables"), "")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"s1", "s2"}, targets)
	require.True(t, a.Broadcast())
}
