package session

import (
	"net"

	"github.com/lishubing/sqlgate/pkg/authcache"
	"github.com/lishubing/sqlgate/pkg/wire"
	"github.com/lishubing/sqlgate/pkg/wireerr"
)

// HandshakeParams configures the server-side greeting/auth exchange a
// Listener runs against every accepted connection before handing it to a
// worker, per spec section 4.A's handshake sequence and section 4.I's
// lookup-against-the-cache authentication step.
type HandshakeParams struct {
	ServerVersion string
	Capabilities  uint32
	Cache         *authcache.Cache // nil disables auth entirely (every user accepted)
}

// runHandshake sends the Initial Handshake Packet v10, parses the
// client's response, checks it against cache, and writes the terminal
// OK or ERR packet. It returns the authenticated username and the
// database the client asked to use, or an error if the client failed to
// authenticate or the exchange was malformed on the wire.
func runHandshake(conn *wire.Conn, connID uint32, params HandshakeParams) (user, database string, err error) {
	scramble, err := wire.GenerateScramble()
	if err != nil {
		return "", "", err
	}
	greeting := wire.BuildInitialHandshake(wire.HandshakeParams{
		ConnectionID:   connID,
		ServerVersion:  params.ServerVersion,
		Scramble:       scramble,
		Capabilities:   params.Capabilities,
		CharsetID:      0x21, // utf8_general_ci
		StatusFlags:    wire.ServerStatusAutocommit,
		AuthPluginName: "mysql_native_password",
	})
	if err := conn.WriteMessage(greeting); err != nil {
		return "", "", err
	}

	payload, err := conn.ReadMessage()
	if err != nil {
		return "", "", err
	}
	resp, err := wire.ParseHandshakeResponse(payload)
	if err != nil {
		return "", "", err
	}
	if resp.IsSSLRequest {
		return "", "", wireerr.New(wireerr.AuthFailure, 1045, "28000", "handshake", "TLS is not supported on this listener")
	}

	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())

	if params.Cache != nil {
		entry, ok := params.Cache.Lookup(resp.Username, host, resp.Database)
		if !ok || !wire.CheckPassword(entry.Password, scramble, resp.AuthResponse) {
			e := wireerr.BadPassword("handshake")
			_ = conn.WriteMessage(wire.EncodeErrFromWire(e))
			return "", "", e
		}
	}

	if err := conn.WriteMessage(wire.EncodeOK(0, 0, wire.ServerStatusAutocommit, 0)); err != nil {
		return "", "", err
	}
	conn.ResetSequence()
	return resp.Username, resp.Database, nil
}
