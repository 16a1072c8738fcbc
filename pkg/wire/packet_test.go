package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		{1, 2, 3},
		make([]byte, 1000),
		make([]byte, MaxPayloadSize),
	}
	for _, payload := range cases {
		var buf bytes.Buffer
		require.NoError(t, WriteFrame(&buf, 7, payload))
		f, err := ReadFrame(&buf)
		require.NoError(t, err)
		require.Equal(t, byte(7), f.Sequence)
		require.Equal(t, payload, f.Payload)
	}
}

func TestMessageRoundTripContinuation(t *testing.T) {
	// A message exactly MaxPayloadSize long must produce a trailing
	// zero-length continuation packet and still decode as one message.
	payload := bytes.Repeat([]byte{0xab}, MaxPayloadSize)
	var buf bytes.Buffer
	next, err := WriteMessage(&buf, 0, payload)
	require.NoError(t, err)
	require.Equal(t, byte(2), next) // one full packet + one empty continuation

	got, seq, err := ReadMessage(&buf, 0)
	require.NoError(t, err)
	require.Equal(t, byte(2), seq)
	require.Equal(t, payload, got)
}

func Test16MiBLogicalMessageIsOneCommand(t *testing.T) {
	payload := bytes.Repeat([]byte{0x01}, MaxPayloadSize+4)
	var buf bytes.Buffer
	_, err := WriteMessage(&buf, 0, payload)
	require.NoError(t, err)
	got, _, err := ReadMessage(&buf, 0)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestSequenceGapRejected(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, 5, []byte("x")))
	_, _, err := ReadMessage(&buf, 0)
	require.Error(t, err)
}

func TestLenEncIntRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 250, 251, 65535, 65536, 1 << 24, 1 << 40}
	for _, v := range values {
		buf := AppendLenEncInt(nil, v)
		got, n, ok := ReadLenEncInt(buf, 0)
		require.True(t, ok)
		require.Equal(t, len(buf), n)
		require.Equal(t, v, got)
	}
}

func TestLenEncStringRoundTrip(t *testing.T) {
	buf := AppendLenEncString(nil, "hello world")
	s, n, ok := ReadLenEncString(buf, 0)
	require.True(t, ok)
	require.Equal(t, "hello world", s)
	require.Equal(t, len(buf), n)
}
