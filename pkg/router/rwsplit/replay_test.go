package rwsplit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestTrxBufferChecksumDeterministic is spec section 8 property 4: two
// buffers fed the identical statement sequence must produce identical
// checksums, and verification must fail if a statement differs.
func TestTrxBufferChecksumDeterministic(t *testing.T) {
	cfg := ReplayConfig{TrxMaxSize: 0}

	a := NewTrxBuffer()
	require.True(t, a.Record(cfg, []byte("BEGIN")))
	require.True(t, a.Record(cfg, []byte("UPDATE t SET x=1")))

	b := NewTrxBuffer()
	require.True(t, b.Record(cfg, []byte("BEGIN")))
	require.True(t, b.Record(cfg, []byte("UPDATE t SET x=1")))

	require.Equal(t, a.Checksum(), b.Checksum())
	require.True(t, a.VerifyChecksum())

	c := NewTrxBuffer()
	require.True(t, c.Record(cfg, []byte("BEGIN")))
	require.True(t, c.Record(cfg, []byte("UPDATE t SET x=2")))
	require.NotEqual(t, a.Checksum(), c.Checksum())
}

func TestTrxBufferRejectsOverMaxSize(t *testing.T) {
	cfg := ReplayConfig{TrxMaxSize: 10}
	b := NewTrxBuffer()
	require.True(t, b.Record(cfg, []byte("BEGIN")))
	require.False(t, b.Record(cfg, []byte("UPDATE t SET x=1 WHERE y=2")))
}

func TestTrxBufferJustOpened(t *testing.T) {
	cfg := ReplayConfig{}
	b := NewTrxBuffer()
	require.True(t, b.Record(cfg, []byte("BEGIN")))
	require.True(t, b.JustOpened())
	require.True(t, b.Record(cfg, []byte("UPDATE t SET x=1")))
	require.False(t, b.JustOpened())
}

func TestTrxBufferCanRetryRespectsMaxAttempts(t *testing.T) {
	cfg := ReplayConfig{TrxMaxAttempts: 2}
	b := NewTrxBuffer()
	require.True(t, b.CanRetry(cfg))
	require.True(t, b.CanRetry(cfg))
	require.False(t, b.CanRetry(cfg))
}

func TestDecideRetryAction(t *testing.T) {
	cfg := ReplayConfig{TrxMaxAttempts: 1}
	buf := NewTrxBuffer()
	require.Equal(t, RetryCloseAndReconnect, DecideRetry(false, buf, cfg))
	require.Equal(t, RetryReplayOnNewBackend, DecideRetry(true, buf, cfg))
	require.Equal(t, RetryGiveUp, DecideRetry(true, buf, cfg))
}

// TestTrxBufferResultChecksumCatchesDivergentReplay is spec section 8
// property 4: the checksum that must match after a replay is over the
// backend's reply bytes, not the re-issued statement text, so a replay
// that reproduces the same statements but different results must be
// caught.
func TestTrxBufferResultChecksumCatchesDivergentReplay(t *testing.T) {
	cfg := ReplayConfig{}

	original := NewTrxBuffer()
	require.True(t, original.Record(cfg, []byte("BEGIN")))
	original.RecordResult([]byte("OK"))
	require.True(t, original.Record(cfg, []byte("UPDATE t SET c=c+1 WHERE id=5")))
	original.RecordResult([]byte("OK:affected=1"))
	require.True(t, original.Record(cfg, []byte("SELECT c FROM t WHERE id=5")))
	original.RecordResult([]byte("ROW:c=6"))

	replaySame := NewTrxBuffer()
	replaySame.RecordResult([]byte("OK"))
	replaySame.RecordResult([]byte("OK:affected=1"))
	replaySame.RecordResult([]byte("ROW:c=6"))
	require.True(t, original.VerifyReplayResult(replaySame.ResultChecksum()))

	replayDivergent := NewTrxBuffer()
	replayDivergent.RecordResult([]byte("OK"))
	replayDivergent.RecordResult([]byte("OK:affected=1"))
	replayDivergent.RecordResult([]byte("ROW:c=7")) // a concurrent update landed between runs
	require.False(t, original.VerifyReplayResult(replayDivergent.ResultChecksum()))
}
