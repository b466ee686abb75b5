//go:build linux

package shm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Shared wraps a Buffer whose backing array lives in an anonymous memfd,
// so its file descriptor can be passed to a client process (over the
// rstream SEQPACKET connection) and mmap'd there too. This is the Go
// analogue of spec.md §3's "SHM segment ... shared between the audio
// thread and the client process via a file descriptor". Only the frame
// data lives in the mapping: the offsets, overrun counter and
// callback-pending flag are fields of each process's own Buffer value
// and are not shared through the memfd.
type Shared struct {
	*Buffer
	fd int
}

// NewShared creates a memfd-backed ring buffer of the given capacity and
// mmaps it into this process. The returned Shared owns the fd and the
// mapping; call Close to release both.
func NewShared(name string, capacityFrames, frameBytes int) (*Shared, error) {
	size := capacityFrames * frameBytes
	fd, err := unix.MemfdCreate(name, 0)
	if err != nil {
		return nil, fmt.Errorf("shm: memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: ftruncate: %w", err)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: mmap: %w", err)
	}
	return &Shared{
		Buffer: &Buffer{
			capacityFrames: capacityFrames,
			frameBytes:     frameBytes,
			data:           data,
		},
		fd: fd,
	}, nil
}

// OpenShared maps an existing memfd (received from another process, e.g.
// over a SEQPACKET control message) as the client side of a ring buffer
// already created by NewShared.
func OpenShared(fd, capacityFrames, frameBytes int) (*Shared, error) {
	size := capacityFrames * frameBytes
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap: %w", err)
	}
	return &Shared{
		Buffer: &Buffer{
			capacityFrames: capacityFrames,
			frameBytes:     frameBytes,
			data:           data,
		},
		fd: fd,
	}, nil
}

// Fd returns the underlying memfd, for passing over a SCM_RIGHTS message.
func (s *Shared) Fd() int { return s.fd }

// Close unmaps the buffer and closes its file descriptor.
func (s *Shared) Close() error {
	if err := unix.Munmap(s.data); err != nil {
		return fmt.Errorf("shm: munmap: %w", err)
	}
	return unix.Close(s.fd)
}
