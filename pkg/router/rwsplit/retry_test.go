package rwsplit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lishubing/sqlgate/pkg/wire"
)

func TestIsRetryableBackendError(t *testing.T) {
	require.True(t, IsRetryableBackendError(wire.ErrPacket{Code: ErrCodeDeadlock}))
	require.True(t, IsRetryableBackendError(wire.ErrPacket{State: wsrepState}))
	require.False(t, IsRetryableBackendError(wire.ErrPacket{Code: 1064}))
}
