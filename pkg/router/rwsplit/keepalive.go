package rwsplit

import (
	"time"

	"github.com/lishubing/sqlgate/pkg/wire"
)

// KeepaliveCommand is the zero-payload COM_PING spec section 4.D sends to
// a backend that has sat idle for connection_keepalive seconds, to keep
// the backend's own idle-connection timeout from firing underneath a
// session the router still considers live.
var KeepaliveCommand = []byte{wire.ComPing}

// NeedsKeepalive reports whether a backend idle since lastActivity should
// be pinged now, given the configured interval.
func NeedsKeepalive(lastActivity time.Time, interval time.Duration, now time.Time) bool {
	if interval <= 0 {
		return false
	}
	return now.Sub(lastActivity) >= interval
}
