package session

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lishubing/sqlgate/pkg/authcache"
	"github.com/lishubing/sqlgate/pkg/wire"
)

// fakeClient drives the client side of runHandshake over a net.Pipe,
// sending a HandshakeResponse41 built from the scramble it reads out of
// the server's greeting.
func fakeClient(t *testing.T, clientConn net.Conn, user, password, database string) error {
	t.Helper()
	conn := wire.NewConn(clientConn)
	greeting, err := conn.ReadMessage()
	require.NoError(t, err)
	g, err := wire.ParseServerGreeting(greeting)
	require.NoError(t, err)

	var authResp []byte
	if password != "" {
		authResp = wire.ComputeAuthResponse(password, g.Scramble)
	}
	resp := wire.BackendHandshakeResponse(user, database, authResp, wire.OutboundCapabilities(database)|wire.ClientProtocol41|wire.ClientSecureConnection, g.CharsetID)
	if err := conn.WriteMessage(resp); err != nil {
		return err
	}
	_, err = conn.ReadMessage()
	return err
}

func TestRunHandshakeAcceptsMatchingPassword(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	cache := authcache.NewCache()
	cache.Load([]authcache.UserEntry{{User: "app", AnyDB: true, Password: wire.HashPassword("secret")}}, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- fakeClient(t, client, "app", "secret", "billing") }()

	user, db, err := runHandshake(wire.NewConn(server), 7, HandshakeParams{
		ServerVersion: "5.7.34-sqlgate",
		Capabilities:  wire.DefaultServerCapabilities,
		Cache:         cache,
	})
	require.NoError(t, err)
	require.Equal(t, "app", user)
	require.Equal(t, "billing", db)
	require.NoError(t, <-errCh)
}

func TestRunHandshakeRejectsWrongPassword(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	cache := authcache.NewCache()
	cache.Load([]authcache.UserEntry{{User: "app", AnyDB: true, Password: wire.HashPassword("secret")}}, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- fakeClient(t, client, "app", "wrong", "") }()

	_, _, err := runHandshake(wire.NewConn(server), 7, HandshakeParams{
		ServerVersion: "5.7.34-sqlgate",
		Capabilities:  wire.DefaultServerCapabilities,
		Cache:         cache,
	})
	require.Error(t, err)
	<-errCh
}

func TestRunHandshakeWithoutCacheAcceptsAnyCredentials(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- fakeClient(t, client, "anyone", "anything", "") }()

	user, _, err := runHandshake(wire.NewConn(server), 7, HandshakeParams{
		ServerVersion: "5.7.34-sqlgate",
		Capabilities:  wire.DefaultServerCapabilities,
	})
	require.NoError(t, err)
	require.Equal(t, "anyone", user)
	require.NoError(t, <-errCh)
}
