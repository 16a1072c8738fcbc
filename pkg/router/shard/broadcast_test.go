package shard

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lishubing/sqlgate/pkg/wire"
)

func frame(seq byte, payload string) []byte {
	p := []byte(payload)
	out := make([]byte, 4+len(p))
	out[0] = byte(len(p))
	out[3] = seq
	copy(out[4:], p)
	return out
}

func TestUnionResultSetDedupesRows(t *testing.T) {
	replies := []BackendReply{
		{
			Server: "s1",
			Header: [][]byte{frame(1, "coldef:Database")},
			Rows:   [][]byte{frame(2, "appdb"), frame(3, "shared")},
		},
		{
			Server: "s2",
			Header: [][]byte{frame(1, "coldef:Database")},
			Rows:   [][]byte{frame(2, "billingdb"), frame(3, "shared")},
		},
	}
	out := UnionResultSet(replies, true)

	var rowCount int
	for _, m := range out {
		payload := string(m[4:])
		if payload == "appdb" || payload == "billingdb" || payload == "shared" {
			rowCount++
		}
	}
	require.Equal(t, 3, rowCount)
	require.Equal(t, byte(1), out[0][3])
}

func TestUnionResultSetInsertsFieldEOFWithoutDeprecateEOF(t *testing.T) {
	replies := []BackendReply{
		{Header: [][]byte{frame(1, "coldef")}, Rows: [][]byte{frame(2, "a")}},
	}
	out := UnionResultSet(replies, false)
	require.Equal(t, wire.RespEOF, out[1][4])
}
