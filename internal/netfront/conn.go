//go:build linux

package netfront

// conn holds per-connection state: the raw fd, the accumulation buffer
// for inbound bytes not yet parsed into a complete command, and any
// outbound bytes that could not be written without blocking. Every field
// is touched only from the single readiness-loop goroutine, so conn needs
// no lock of its own.
type conn struct {
	fd int

	inbuf  []byte
	outbuf []byte

	wantWrite bool
	closed    bool
}

// appendInbound extends the accumulation buffer with freshly read bytes.
func (c *conn) appendInbound(b []byte) {
	c.inbuf = append(c.inbuf, b...)
}

// consume drops the first n bytes of inbuf (a fully parsed command) and
// compacts the remainder so a long-lived connection's buffer doesn't grow
// without bound from repeated append/reslice.
func (c *conn) consume(n int) {
	rest := c.inbuf[n:]
	if len(rest) == 0 {
		c.inbuf = nil
		return
	}
	compacted := make([]byte, len(rest))
	copy(compacted, rest)
	c.inbuf = compacted
}

// queue appends a reply to the pending outbound buffer.
func (c *conn) queue(b []byte) {
	c.outbuf = append(c.outbuf, b...)
}
