package wire

import (
	"bufio"
	"net"
	"time"
)

// Conn wraps a net.Conn with the MySQL packet-sequence bookkeeping shared
// by both the client-facing and backend-facing sides of the proxy: the
// sequence number resets to 0 at the start of each command and increments
// through the whole reply, and reads/writes work in terms of logical
// messages rather than physical frames.
type Conn struct {
	raw  net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
	seq  byte
	addr string
}

// NewConn adapts an already-established net.Conn (accepted from a client,
// or dialed to a backend) into a Conn.
func NewConn(raw net.Conn) *Conn {
	return &Conn{
		raw: raw,
		r:   bufio.NewReaderSize(raw, 16*1024),
		w:   bufio.NewWriterSize(raw, 16*1024),
	}
}

// ResetSequence starts a new command-reply exchange.
func (c *Conn) ResetSequence() { c.seq = 0 }

// ReadMessage reads the next logical message and advances the sequence
// counter accordingly.
func (c *Conn) ReadMessage() ([]byte, error) {
	msg, next, err := ReadMessage(c.r, c.seq)
	c.seq = next
	return msg, err
}

// WriteMessage writes a logical message at the current sequence number,
// flushing immediately (proxies are latency sensitive; there is no
// batching benefit to deferring the flush across packets belonging to one
// reply).
func (c *Conn) WriteMessage(payload []byte) error {
	next, err := WriteMessage(c.w, c.seq, payload)
	c.seq = next
	if err != nil {
		return err
	}
	return c.w.Flush()
}

// WriteFrames writes a sequence of already-framed physical packets
// verbatim (header and payload both already in frame) and advances the
// sequence counter past the last one, used by the shard broadcast-union
// path to relay a merged resultset whose frames were built and
// renumbered ahead of time by shard.UnionResultSet.
func (c *Conn) WriteFrames(frames [][]byte) error {
	for _, f := range frames {
		if _, err := c.w.Write(f); err != nil {
			return err
		}
		if len(f) >= headerLen {
			c.seq = f[3] + 1
		}
	}
	return c.w.Flush()
}

// CurrentSequence returns the next sequence number that will be used.
func (c *Conn) CurrentSequence() byte { return c.seq }

// SetSequence forces the next sequence number, used by the causal-read
// rewrite path which must restart numbering at 1 for the rewritten reply.
func (c *Conn) SetSequence(n byte) { c.seq = n }

func (c *Conn) SetDeadline(t time.Time) error      { return c.raw.SetDeadline(t) }
func (c *Conn) SetReadDeadline(t time.Time) error  { return c.raw.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.raw.SetWriteDeadline(t) }
func (c *Conn) RemoteAddr() net.Addr               { return c.raw.RemoteAddr() }
func (c *Conn) LocalAddr() net.Addr                { return c.raw.LocalAddr() }
func (c *Conn) Close() error                       { return c.raw.Close() }
func (c *Conn) Raw() net.Conn                       { return c.raw }
