package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplyOKComplete(t *testing.T) {
	r := NewReply(ComQuery, false, true)
	msg := EncodeOK(1, 0, ServerStatusAutocommit, 0)
	complete := r.Feed(msg)
	require.True(t, complete)
	require.True(t, r.IsComplete)
	require.EqualValues(t, 1, r.AffectedRows)
}

func TestReplyErrComplete(t *testing.T) {
	r := NewReply(ComQuery, false, true)
	msg := EncodeErr(1045, "28000", "Access denied")
	complete := r.Feed(msg)
	require.True(t, complete)
	require.NotNil(t, r.LastError)
	require.Equal(t, uint16(1045), r.LastError.Code)
}

func TestReplyResultsetCompletesOnEOF(t *testing.T) {
	r := NewReply(ComQuery, false, false)
	// column count = 1
	require.False(t, r.Feed(AppendLenEncInt(nil, 1)))
	// one column definition packet (opaque to Reply)
	require.False(t, r.Feed([]byte("coldef")))
	// one row
	require.False(t, r.Feed([]byte{0x01, '1'}))
	// terminal EOF
	require.True(t, r.Feed(EncodeEOF(0, ServerStatusAutocommit)))
	require.True(t, r.IsComplete)
}

func TestEncodeDecodeErrRoundTrip(t *testing.T) {
	buf := EncodeErr(1049, "42000", "Unknown database 'x'")
	got, ok := DecodeErr(buf)
	require.True(t, ok)
	require.Equal(t, uint16(1049), got.Code)
	require.Equal(t, "42000", got.State)
	require.Equal(t, "Unknown database 'x'", got.Message)
}

func TestRewriteSequenceNumbers(t *testing.T) {
	frames := [][]byte{
		{0, 0, 0, 9, 0xAA},
		{0, 0, 0, 10, 0xBB},
		{0, 0, 0, 11, 0xCC},
	}
	RewriteSequenceNumbers(frames, 1)
	require.Equal(t, byte(1), frames[0][3])
	require.Equal(t, byte(2), frames[1][3])
	require.Equal(t, byte(3), frames[2][3])
}
