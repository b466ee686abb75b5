//go:build linux

package a2dp

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// L2CAPTransport writes SBC frames to a connected Bluetooth headset over
// an L2CAP socket (BlueZ's AF_BLUETOOTH/BTPROTO_L2CAP), grounded on the
// same golang.org/x/sys/unix low-level-socket usage as pkg/shm's SEQPACKET
// and memfd code.
type L2CAPTransport struct {
	fd int
}

// DialL2CAP connects to a headset at addr (a 6-byte BD address) on the
// given PSM (A2DP sink typically advertises PSM 25).
func DialL2CAP(addr [6]byte, psm uint16) (*L2CAPTransport, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_SEQPACKET, unix.BTPROTO_L2CAP)
	if err != nil {
		return nil, fmt.Errorf("a2dp: socket: %w", err)
	}
	sa := &unix.SockaddrL2{PSM: psm, Addr: addr}
	if err := unix.Connect(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("a2dp: connect: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("a2dp: set nonblocking: %w", err)
	}
	return &L2CAPTransport{fd: fd}, nil
}

func (t *L2CAPTransport) Write(p []byte) (int, error) {
	n, err := unix.Write(t.fd, p)
	if err == nil {
		return n, nil
	}
	switch {
	case err == syscall.EAGAIN || err == syscall.EWOULDBLOCK:
		return 0, ErrAgain
	case err == syscall.ENOTCONN || err == syscall.ECONNRESET:
		return 0, ErrNotConnected
	default:
		return 0, fmt.Errorf("a2dp: write: %w", err)
	}
}

func (t *L2CAPTransport) Close() error {
	return unix.Close(t.fd)
}
