package session

// Filter is a named module instance, instantiated per service, that sees
// every query and every reply flowing through a client session, per spec
// section 3's Filter data model entry.
type Filter interface {
	CapabilityProvider
	Name() string
	// NewSession creates the per-session filter object that actually
	// observes traffic; the Filter value itself only carries
	// configuration shared across sessions.
	NewSession(s *ClientSession) FilterSession
}

// FilterSession is the per-client-session instance a Filter creates. Both
// hooks return the (possibly rewritten) buffer and whether processing
// should continue down the chain; returning ok=false short-circuits the
// remaining chain and, for RouteQuery, fails the statement without
// reaching the router.
type FilterSession interface {
	RouteQuery(buf []byte) (rewritten []byte, ok bool)
	ClientReply(buf []byte) (rewritten []byte, ok bool)
	Close()
}

// Chain is an ordered sequence of filter-session instances, invoked in
// order on the way to the router and in reverse order on the way back to
// the client, matching the teacher's wrap/unwrap symmetry for proxied
// streams.
type Chain struct {
	sessions []FilterSession
}

// NewChain instantiates one FilterSession per Filter for s, in
// configured order.
func NewChain(s *ClientSession, filters []Filter) *Chain {
	c := &Chain{sessions: make([]FilterSession, len(filters))}
	for i, f := range filters {
		c.sessions[i] = f.NewSession(s)
	}
	return c
}

// RouteQuery runs every filter's RouteQuery hook in chain order on buf.
func (c *Chain) RouteQuery(buf []byte) ([]byte, bool) {
	for _, fs := range c.sessions {
		var ok bool
		buf, ok = fs.RouteQuery(buf)
		if !ok {
			return buf, false
		}
	}
	return buf, true
}

// ClientReply runs every filter's ClientReply hook in reverse chain
// order on buf, mirroring the order replies cross back over the filters
// a query passed through on the way out.
func (c *Chain) ClientReply(buf []byte) ([]byte, bool) {
	for i := len(c.sessions) - 1; i >= 0; i-- {
		var ok bool
		buf, ok = c.sessions[i].ClientReply(buf)
		if !ok {
			return buf, false
		}
	}
	return buf, true
}

// Close tears down every filter session, in chain order.
func (c *Chain) Close() {
	for _, fs := range c.sessions {
		fs.Close()
	}
}
