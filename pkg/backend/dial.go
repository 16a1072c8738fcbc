package backend

import (
	"net"
	"time"

	"github.com/lishubing/sqlgate/pkg/wire"
	"github.com/lishubing/sqlgate/pkg/wireerr"
)

// Credentials are the username/password/default-database this proxy
// authenticates with when it dials a real backend as a client, per spec
// section 4.F's service-level backend user/password.
type Credentials struct {
	User     string
	Password string
	Database string
}

// Dial opens a raw TCP connection to addr and runs the MySQL/MariaDB
// client-side handshake against it, returning a wire.Conn ready to carry
// framed command/reply traffic and the capabilities the backend agreed
// to. This is the proxy acting as a client of its own backends — a
// distinct connection from pkg/monitor's database/sql-based admin
// connections, since only a raw wire.Conn supports the session-command
// replay this package's Session needs.
func Dial(addr string, creds Credentials, connectTimeout time.Duration) (*wire.Conn, uint32, error) {
	raw, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		return nil, 0, wireerr.Wrap(wireerr.BackendUnavailable, 2003, "HY000", "backend", err)
	}
	conn := wire.NewConn(raw)

	greeting, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, 0, wireerr.Wrap(wireerr.BackendUnavailable, 2003, "HY000", "backend", err)
	}
	g, err := wire.ParseServerGreeting(greeting)
	if err != nil {
		conn.Close()
		return nil, 0, err
	}

	caps := wire.OutboundCapabilities(creds.Database) & g.Capabilities
	// ClientProtocol41/ClientSecureConnection are not optional for a
	// backend this proxy is willing to talk to; ClientPluginAuth is kept
	// only when the backend offers it.
	caps |= wire.ClientProtocol41 | wire.ClientSecureConnection

	var scramble []byte
	if creds.Password != "" {
		scramble = wire.ComputeAuthResponse(creds.Password, g.Scramble)
	}
	resp := wire.BackendHandshakeResponse(creds.User, creds.Database, scramble, caps, g.CharsetID)
	if err := conn.WriteMessage(resp); err != nil {
		conn.Close()
		return nil, 0, wireerr.Wrap(wireerr.BackendUnavailable, 2003, "HY000", "backend", err)
	}

	reply, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, 0, wireerr.Wrap(wireerr.BackendUnavailable, 2003, "HY000", "backend", err)
	}
	if len(reply) > 0 && reply[0] == wire.RespErr {
		e, _ := wire.DecodeErr(reply)
		conn.Close()
		return nil, 0, wireerr.New(wireerr.AuthFailure, e.Code, e.State, "backend", e.Message)
	}
	conn.ResetSequence()
	return conn, caps, nil
}
