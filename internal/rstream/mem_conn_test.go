package rstream

import "errors"

// memConn is an in-process Conn used only by this package's tests, so
// stream-level tests don't depend on a real socket.
type memConn struct {
	sent   []Token
	toRecv []Token
	closed bool
}

func (c *memConn) SendToken(t Token) error {
	if c.closed {
		return errors.New("memConn: closed")
	}
	c.sent = append(c.sent, t)
	return nil
}

func (c *memConn) RecvToken() (Token, error) {
	if len(c.toRecv) == 0 {
		return 0, errors.New("memConn: no token queued")
	}
	t := c.toRecv[0]
	c.toRecv = c.toRecv[1:]
	return t, nil
}

func (c *memConn) TryRecvToken() (Token, bool, error) {
	if len(c.toRecv) == 0 {
		return 0, false, nil
	}
	t := c.toRecv[0]
	c.toRecv = c.toRecv[1:]
	return t, true, nil
}

func (c *memConn) Close() error {
	c.closed = true
	return nil
}
