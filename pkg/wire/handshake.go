package wire

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/lishubing/sqlgate/pkg/wireerr"
)

const scrambleLen = 20

// AuthPacketBaseSize is the size of an SSLRequest packet (capability flags,
// max packet size, charset, 23 filler bytes). A handshake response of
// exactly this many bytes and no more is an SSLRequest, not a full
// HandshakeResponse, per spec section 8's boundary behavior.
const AuthPacketBaseSize = 4 + 4 + 1 + 23

// GenerateScramble returns a fresh, random 20-byte authentication
// scramble, used both for the initial handshake and for AuthSwitchRequest.
func GenerateScramble() ([]byte, error) {
	b := make([]byte, scrambleLen)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	// MySQL scrambles must not contain a NUL byte, since parts of it are
	// sent null-terminated on the wire.
	for i, c := range b {
		if c == 0 {
			b[i] = 0x41
		}
	}
	return b, nil
}

// HandshakeParams configures the initial handshake packet this proxy sends
// to an incoming client.
type HandshakeParams struct {
	ConnectionID   uint32
	ServerVersion  string
	Scramble       []byte // 20 bytes
	Capabilities   uint32
	CharsetID      byte
	StatusFlags    uint16
	AuthPluginName string
	MariaDBExtended bool
}

// BuildInitialHandshake encodes the server's Initial Handshake Packet v10,
// per spec section 4.A: protocol version 10, version string, 4-byte thread
// id, 8 scramble bytes, filler, capability low, language, status, capability
// high, scramble length, 10-byte filler (last 4 bytes carry MariaDB
// extended capabilities when advertised), remaining 12 scramble bytes,
// trailing zero, auth plugin name, trailing zero.
func BuildInitialHandshake(p HandshakeParams) []byte {
	buf := make([]byte, 0, 128)
	buf = append(buf, 10) // protocol version
	buf = append(buf, p.ServerVersion...)
	buf = append(buf, 0)
	var tid [4]byte
	binary.LittleEndian.PutUint32(tid[:], p.ConnectionID)
	buf = append(buf, tid[:]...)
	buf = append(buf, p.Scramble[:8]...)
	buf = append(buf, 0) // filler
	var capLow [2]byte
	binary.LittleEndian.PutUint16(capLow[:], uint16(p.Capabilities))
	buf = append(buf, capLow[:]...)
	buf = append(buf, p.CharsetID)
	var status [2]byte
	binary.LittleEndian.PutUint16(status[:], p.StatusFlags)
	buf = append(buf, status[:]...)
	var capHigh [2]byte
	binary.LittleEndian.PutUint16(capHigh[:], uint16(p.Capabilities>>16))
	buf = append(buf, capHigh[:]...)
	buf = append(buf, byte(scrambleLen+1)) // scramble length including trailing NUL
	filler := make([]byte, 10)
	if p.MariaDBExtended {
		binary.LittleEndian.PutUint32(filler[6:10], MariaDBClientExtendedCapability)
	}
	buf = append(buf, filler...)
	buf = append(buf, p.Scramble[8:20]...)
	buf = append(buf, 0)
	buf = append(buf, p.AuthPluginName...)
	buf = append(buf, 0)
	return buf
}

// HandshakeResponse is the decoded result of a client's response to the
// initial handshake, whichever sub-version was used.
type HandshakeResponse struct {
	Capabilities    uint32
	MaxPacketSize   uint32
	CharsetID       byte
	Username        string
	AuthResponse    []byte
	Database        string
	AuthPluginName  string
	IsSSLRequest    bool
	IsProtocol41    bool
}

// ParseHandshakeResponse decodes a HandshakeResponse41 or, if
// ClientProtocol41 is not set, a legacy v3.20 response. A payload of
// exactly AuthPacketBaseSize bytes is treated as an SSLRequest per spec
// section 8's boundary rule: the capability/charset fields are read but
// username/auth are absent.
func ParseHandshakeResponse(payload []byte) (HandshakeResponse, error) {
	tag := "wire"
	if len(payload) < 4 {
		return HandshakeResponse{}, wireerr.New(wireerr.WireFormat, 1927, "HY000", tag, "received a broken handshake response packet")
	}
	capLow := binary.LittleEndian.Uint32(payload[0:4])

	if capLow&ClientProtocol41 == 0 {
		return parseHandshakeResponse320(payload)
	}

	if len(payload) == AuthPacketBaseSize {
		return HandshakeResponse{Capabilities: capLow, IsSSLRequest: true, IsProtocol41: true}, nil
	}
	if len(payload) < AuthPacketBaseSize {
		return HandshakeResponse{}, wireerr.New(wireerr.WireFormat, 1927, "HY000", tag, "handshake response too short")
	}

	resp := HandshakeResponse{Capabilities: capLow, IsProtocol41: true}
	resp.MaxPacketSize = binary.LittleEndian.Uint32(payload[4:8])
	resp.CharsetID = payload[8]
	off := 9 + 23 // skip the 23 filler bytes

	var ok bool
	resp.Username, off, ok = ReadNullTerminatedString(payload, off)
	if !ok {
		return HandshakeResponse{}, wireerr.New(wireerr.WireFormat, 1927, "HY000", tag, "handshake response missing username")
	}

	if capLow&ClientPluginAuthLenencClientData != 0 {
		resp.AuthResponse, off, ok = readLenEncBytes(payload, off)
		if !ok {
			return HandshakeResponse{}, wireerr.New(wireerr.WireFormat, 1927, "HY000", tag, "bad auth-response length")
		}
	} else if capLow&ClientSecureConnection != 0 {
		if off >= len(payload) {
			return HandshakeResponse{}, wireerr.New(wireerr.WireFormat, 1927, "HY000", tag, "missing auth-response length")
		}
		n := int(payload[off])
		off++
		if off+n > len(payload) {
			return HandshakeResponse{}, wireerr.New(wireerr.WireFormat, 1927, "HY000", tag, "auth-response truncated")
		}
		resp.AuthResponse = payload[off : off+n]
		off += n
	} else {
		var s string
		s, off, ok = ReadNullTerminatedString(payload, off)
		if ok {
			resp.AuthResponse = []byte(s)
		}
	}

	if capLow&ClientConnectWithDB != 0 {
		resp.Database, off, _ = ReadNullTerminatedString(payload, off)
	}
	if capLow&ClientPluginAuth != 0 {
		resp.AuthPluginName, off, _ = ReadNullTerminatedString(payload, off)
	}
	_ = off
	return resp, nil
}

func parseHandshakeResponse320(payload []byte) (HandshakeResponse, error) {
	tag := "wire"
	if len(payload) < 5 {
		return HandshakeResponse{}, wireerr.New(wireerr.WireFormat, 1927, "HY000", tag, "v3.20 handshake response too short")
	}
	caps := uint32(binary.LittleEndian.Uint16(payload[0:2]))
	maxPkt := uint32(payload[2]) | uint32(payload[3])<<8 | uint32(payload[4])<<16
	off := 5
	resp := HandshakeResponse{Capabilities: caps, MaxPacketSize: maxPkt}
	var ok bool
	resp.Username, off, ok = ReadNullTerminatedString(payload, off)
	if !ok {
		return HandshakeResponse{}, wireerr.New(wireerr.WireFormat, 1927, "HY000", tag, "v3.20 handshake missing username")
	}
	if caps&ClientConnectWithDB != 0 {
		var s string
		s, off, ok = ReadNullTerminatedString(payload, off)
		if ok {
			resp.AuthResponse = []byte(s[:0]) // placeholder; legacy clients rarely negotiate this path
			resp.Database, off, _ = ReadNullTerminatedString(payload, off)
		}
	} else {
		resp.AuthResponse = payload[off:]
	}
	return resp, nil
}

func readLenEncBytes(buf []byte, off int) ([]byte, int, bool) {
	n, off2, ok := ReadLenEncInt(buf, off)
	if !ok || off2+int(n) > len(buf) {
		return nil, off, false
	}
	return buf[off2 : off2+int(n)], off2 + int(n), true
}

// BuildAuthSwitchRequest encodes the 0xfe AuthSwitchRequest sent when the
// client's requested plugin is not mysql_native_password.
func BuildAuthSwitchRequest(pluginName string, scramble []byte) []byte {
	buf := make([]byte, 0, 1+len(pluginName)+1+len(scramble)+1)
	buf = append(buf, 0xfe)
	buf = append(buf, pluginName...)
	buf = append(buf, 0)
	buf = append(buf, scramble...)
	buf = append(buf, 0)
	return buf
}
