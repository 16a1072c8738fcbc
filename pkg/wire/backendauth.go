package wire

import (
	"encoding/binary"

	"github.com/lishubing/sqlgate/pkg/wireerr"
)

// ServerGreeting is the decoded form of the Initial Handshake Packet v10
// this proxy receives when it dials out to a real backend as a client,
// the mirror image of BuildInitialHandshake/HandshakeParams on the
// server-facing side.
type ServerGreeting struct {
	ServerVersion string
	ConnectionID  uint32
	Scramble      []byte // 20 bytes, reassembled from the two on-wire chunks
	Capabilities  uint32
	CharsetID     byte
	StatusFlags   uint16
	AuthPlugin    string
}

// ParseServerGreeting decodes a backend's Initial Handshake Packet v10.
func ParseServerGreeting(payload []byte) (ServerGreeting, error) {
	tag := "backend"
	if len(payload) < 1 || payload[0] != 10 {
		return ServerGreeting{}, wireerr.New(wireerr.WireFormat, 1927, "HY000", tag, "unsupported handshake protocol version")
	}
	off := 1
	var g ServerGreeting
	var ok bool
	g.ServerVersion, off, ok = ReadNullTerminatedString(payload, off)
	if !ok || off+4 > len(payload) {
		return ServerGreeting{}, wireerr.New(wireerr.WireFormat, 1927, "HY000", tag, "truncated server greeting")
	}
	g.ConnectionID = binary.LittleEndian.Uint32(payload[off : off+4])
	off += 4
	if off+8 > len(payload) {
		return ServerGreeting{}, wireerr.New(wireerr.WireFormat, 1927, "HY000", tag, "truncated auth-plugin-data-part-1")
	}
	scramble := append([]byte(nil), payload[off:off+8]...)
	off += 8
	off++ // filler
	if off+2 > len(payload) {
		return ServerGreeting{}, wireerr.New(wireerr.WireFormat, 1927, "HY000", tag, "truncated capability flags (low)")
	}
	capLow := uint32(binary.LittleEndian.Uint16(payload[off : off+2]))
	off += 2
	if off >= len(payload) {
		return ServerGreeting{}, wireerr.New(wireerr.WireFormat, 1927, "HY000", tag, "truncated charset")
	}
	g.CharsetID = payload[off]
	off++
	if off+2 > len(payload) {
		return ServerGreeting{}, wireerr.New(wireerr.WireFormat, 1927, "HY000", tag, "truncated status flags")
	}
	g.StatusFlags = binary.LittleEndian.Uint16(payload[off : off+2])
	off += 2
	capHigh := uint32(0)
	if off+2 <= len(payload) {
		capHigh = uint32(binary.LittleEndian.Uint16(payload[off : off+2]))
	}
	off += 2
	g.Capabilities = capLow | capHigh<<16

	authLen := 0
	if off < len(payload) {
		authLen = int(payload[off])
	}
	off++
	off += 10 // filler, last 4 bytes are MariaDB extended capabilities; not needed here

	if g.Capabilities&ClientSecureConnection != 0 {
		rest := authLen - 8
		if rest < 13 {
			rest = 13 // MySQL always reserves 13 bytes here regardless of authLen
		}
		if off+rest > len(payload) {
			rest = len(payload) - off
		}
		if rest > 0 {
			tail := payload[off : off+rest]
			// drop the trailing NUL if present
			if len(tail) > 0 && tail[len(tail)-1] == 0 {
				tail = tail[:len(tail)-1]
			}
			scramble = append(scramble, tail...)
			off += rest
		}
	}
	g.Scramble = scramble
	if g.Capabilities&ClientPluginAuth != 0 && off < len(payload) {
		g.AuthPlugin, _, _ = ReadNullTerminatedString(payload, off)
	}
	return g, nil
}

// BackendHandshakeResponse builds a HandshakeResponse41 this proxy sends
// when authenticating as a client against a real backend, mirroring
// ParseHandshakeResponse on the server-facing side of this package.
func BackendHandshakeResponse(user, database string, authResponse []byte, capabilities uint32, charset byte) []byte {
	buf := make([]byte, 0, 64+len(user)+len(database)+len(authResponse))
	var caps [4]byte
	binary.LittleEndian.PutUint32(caps[:], capabilities)
	buf = append(buf, caps[:]...)
	buf = append(buf, 0, 0, 0, 0) // max packet size: unbounded
	buf = append(buf, charset)
	buf = append(buf, make([]byte, 23)...) // filler
	buf = append(buf, user...)
	buf = append(buf, 0)
	buf = append(buf, byte(len(authResponse)))
	buf = append(buf, authResponse...)
	if capabilities&ClientConnectWithDB != 0 {
		buf = append(buf, database...)
		buf = append(buf, 0)
	}
	if capabilities&ClientPluginAuth != 0 {
		buf = append(buf, "mysql_native_password"...)
		buf = append(buf, 0)
	}
	return buf
}

// outboundCapabilities is what this proxy requests of a backend it
// connects to as a client: protocol 4.1, secure auth, plugin auth, and
// (when db is non-empty) connect-with-db.
func outboundCapabilities(db string) uint32 {
	caps := ClientProtocol41 | ClientSecureConnection | ClientPluginAuth | ClientTransactions | ClientMultiResults
	if db != "" {
		caps |= ClientConnectWithDB
	}
	return caps
}

// OutboundCapabilities exposes outboundCapabilities for callers (such as
// pkg/backend's dialer) that need to request the same set a second time,
// e.g. to check the server agreed to ClientDeprecateEOF before deciding
// how to interpret replies.
func OutboundCapabilities(db string) uint32 { return outboundCapabilities(db) }
