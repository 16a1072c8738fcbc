package backend

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lishubing/sqlgate/pkg/wire"
)

func fakeBackend(t *testing.T, respondOK bool) (addr string, scrambleUsed chan []byte) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	scrambleUsed = make(chan []byte, 1)

	go func() {
		raw, err := ln.Accept()
		if err != nil {
			return
		}
		defer raw.Close()
		conn := wire.NewConn(raw)

		scramble, _ := wire.GenerateScramble()
		greeting := wire.BuildInitialHandshake(wire.HandshakeParams{
			ConnectionID:   1,
			ServerVersion:  "8.0.30",
			Scramble:       scramble,
			Capabilities:   wire.DefaultServerCapabilities,
			CharsetID:      0x21,
			AuthPluginName: "mysql_native_password",
		})
		if err := conn.WriteMessage(greeting); err != nil {
			return
		}

		resp, err := conn.ReadMessage()
		if err != nil {
			return
		}
		scrambleUsed <- append([]byte(nil), resp...)

		if respondOK {
			conn.WriteMessage(wire.EncodeOK(0, 0, wire.ServerStatusAutocommit, 0))
		} else {
			conn.WriteMessage(wire.EncodeErr(1045, "28000", "Access denied"))
		}
	}()

	return ln.Addr().String(), scrambleUsed
}

func TestDialSucceedsOnOK(t *testing.T) {
	addr, handshakes := fakeBackend(t, true)
	conn, caps, err := Dial(addr, Credentials{User: "proxyuser", Password: "secret", Database: "billing"}, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, conn)
	require.NotEqual(t, uint32(0), caps&wire.ClientProtocol41)
	defer conn.Close()

	select {
	case resp := <-handshakes:
		require.Contains(t, string(resp), "proxyuser")
	case <-time.After(time.Second):
		t.Fatal("backend never received a handshake response")
	}
}

func TestDialFailsOnBackendErr(t *testing.T) {
	addr, _ := fakeBackend(t, false)
	_, _, err := Dial(addr, Credentials{User: "proxyuser", Password: "wrong"}, 2*time.Second)
	require.Error(t, err)
}
