package session

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Stats is a server-wide counter set, grounded on the teacher's
// counterSet: a handful of named atomic counters exported as log fields
// rather than through a metrics registry (spec section 1 scopes metrics
// export out; these counters back operational logging only).
type Stats struct {
	connAccepted     atomic.Int64
	connRefused      atomic.Int64
	clientDisconnect atomic.Int64
	backendDisconnect atomic.Int64
	authFailed       atomic.Int64
	routingFailed    atomic.Int64
}

// NewStats returns a zeroed counter set.
func NewStats() *Stats { return &Stats{} }

func (s *Stats) RecordAccepted()         { s.connAccepted.Add(1) }
func (s *Stats) RecordRefused()          { s.connRefused.Add(1) }
func (s *Stats) RecordClientDisconnect() { s.clientDisconnect.Add(1) }
func (s *Stats) RecordBackendDisconnect() { s.backendDisconnect.Add(1) }
func (s *Stats) RecordAuthFailed()       { s.authFailed.Add(1) }
func (s *Stats) RecordRoutingFailed()    { s.routingFailed.Add(1) }

// RecordClose increments the counter matching a session's close reason,
// mirroring the teacher's updateWithErr dispatch-by-cause pattern.
func (s *Stats) RecordClose(reason CloseReason) {
	switch reason {
	case CloseClientQuit:
		s.RecordClientDisconnect()
	case CloseBackendFailure:
		s.RecordBackendDisconnect()
	case CloseAuthFailure:
		s.RecordAuthFailed()
	case CloseRoutingFailed, CloseHandshakeFailed:
		s.RecordRoutingFailed()
	}
}

// Export renders the counter set as zap fields, the shape the teacher's
// counterLogExporter produces for periodic operational logging.
func (s *Stats) Export() []zap.Field {
	return []zap.Field{
		zap.Int64("accepted_connections", s.connAccepted.Load()),
		zap.Int64("refused_connections", s.connRefused.Load()),
		zap.Int64("client_disconnects", s.clientDisconnect.Load()),
		zap.Int64("backend_disconnects", s.backendDisconnect.Load()),
		zap.Int64("auth_failed", s.authFailed.Load()),
		zap.Int64("routing_failed", s.routingFailed.Load()),
	}
}
