//go:build linux

package rstream

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// SeqpacketConn is the real Conn implementation, a AF_UNIX SOCK_SEQPACKET
// socket carrying single-byte Token messages, per spec.md §6. SEQPACKET
// preserves message boundaries (unlike SOCK_STREAM) so a 1-byte token
// read never has to worry about coalescing with a neighboring message.
type SeqpacketConn struct {
	fd int
}

// NewSeqpacketPair creates a connected pair of SEQPACKET sockets, one for
// the daemon side and one to hand to the client process (e.g. via
// SCM_RIGHTS alongside the SHM memfd).
func NewSeqpacketPair() (daemon *SeqpacketConn, client *SeqpacketConn, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("rstream: socketpair: %w", err)
	}
	return &SeqpacketConn{fd: fds[0]}, &SeqpacketConn{fd: fds[1]}, nil
}

func (c *SeqpacketConn) SendToken(t Token) error {
	_, err := unix.Write(c.fd, []byte{byte(t)})
	return err
}

func (c *SeqpacketConn) RecvToken() (Token, error) {
	buf := make([]byte, 1)
	n, err := unix.Read(c.fd, buf)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("rstream: peer closed connection")
	}
	return Token(buf[0]), nil
}

// TryRecvToken is RecvToken's non-blocking sibling, used by Pass A
// (spec.md §4.1) which may never block the audio thread. EAGAIN/EWOULDBLOCK
// means no token is queued, not an error.
func (c *SeqpacketConn) TryRecvToken() (Token, bool, error) {
	buf := make([]byte, 1)
	n, _, err := unix.Recvfrom(c.fd, buf, unix.MSG_DONTWAIT)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if n == 0 {
		return 0, false, fmt.Errorf("rstream: peer closed connection")
	}
	return Token(buf[0]), true, nil
}

func (c *SeqpacketConn) Close() error {
	return unix.Close(c.fd)
}

// Fd exposes the raw descriptor for passing the client half over to
// another process via SCM_RIGHTS.
func (c *SeqpacketConn) Fd() int { return c.fd }
