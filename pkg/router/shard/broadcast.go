package shard

import (
	"github.com/lishubing/sqlgate/pkg/wire"
)

// BackendReply is one backend's reply to a broadcast statement, already
// decomposed by the caller's framing layer: the column-count packet and
// its column definitions, then the row payloads, with any field-EOF and
// trailing EOF/OK terminator already stripped.
type BackendReply struct {
	Server  string
	Header  [][]byte // column-count packet + one message per column
	Rows    [][]byte
}

// UnionResultSet merges per-backend SHOW DATABASES / SHOW TABLES replies
// into one client-visible resultset, per spec section 4.E: the header
// (column count + column definitions) is taken from the first backend to
// reply, every backend's rows are concatenated with duplicates (the same
// row reported by more than one backend) dropped, and a single EOF is
// appended with every message renumbered to a fresh sequence starting at
// 1, with an optional mid-stream field-terminating EOF inserted when the
// negotiated capabilities don't include DEPRECATE_EOF.
func UnionResultSet(replies []BackendReply, hasDeprecateEOF bool) [][]byte {
	if len(replies) == 0 {
		return nil
	}
	var out [][]byte
	out = append(out, replies[0].Header...)
	if !hasDeprecateEOF {
		out = append(out, frameOf(wire.EncodeEOF(0, 0)))
	}

	seenRow := make(map[string]bool)
	for _, r := range replies {
		for _, row := range r.Rows {
			key := string(row)
			if seenRow[key] {
				continue
			}
			seenRow[key] = true
			out = append(out, row)
		}
	}
	out = append(out, frameOf(wire.EncodeEOF(0, wire.ServerStatusAutocommit)))
	wire.RewriteSequenceNumbers(out, 1)
	return out
}

// frameOf wraps a synthesized payload in a physical packet header so it
// can sit alongside the already-framed backend messages in out; its
// sequence byte is a placeholder, overwritten by RewriteSequenceNumbers.
func frameOf(payload []byte) []byte {
	hdr := make([]byte, 4+len(payload))
	hdr[0] = byte(len(payload))
	hdr[1] = byte(len(payload) >> 8)
	hdr[2] = byte(len(payload) >> 16)
	copy(hdr[4:], payload)
	return hdr
}
