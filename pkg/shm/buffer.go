// Package shm implements the single-producer/single-consumer shared memory
// ring buffer that carries audio frames between a client process and the
// audio thread, per spec.md §3 ("Shared audio buffer (SHM)").
package shm

import (
	"errors"
	"sync/atomic"
)

// ErrOverflow is returned by CommitWrite when the caller tries to commit
// more frames than were reserved by GetWriteArea, an invariant violation
// per spec.md §7 ("put_buffer of more than writable ... return
// invalid-argument and do not mutate state").
var ErrOverflow = errors.New("shm: commit exceeds writable frames")

// Buffer is a byte ring of whole audio frames. The audio thread and the
// client each own one side (producer/consumer), and the roles swap by
// direction: for playback the client produces and the audio thread
// consumes; for capture the audio thread produces and the client consumes.
//
// Frame counters are monotonically increasing and never wrapped; indexing
// into data wraps them mod capacityFrames. This avoids torn-wraparound
// bookkeeping at the cost of counters that grow without bound (they fit in
// a uint64 for any realistic session length).
//
// writeFrames and publishedWriteFrames are spec.md's two write offsets.
// GetWriteArea reserves nothing; CommitWrite advances writeFrames and
// then copies it to publishedWriteFrames in the same call, and the reader
// only looks at publishedWriteFrames. A producer that fills an area from
// GetWriteArea and never commits it (e.g. on an application crash) leaves
// both offsets untouched, so the reader's view of queued frames cannot
// include incomplete writes.
type Buffer struct {
	capacityFrames int
	frameBytes     int
	data           []byte

	writeFrames          atomic.Uint64
	publishedWriteFrames atomic.Uint64
	readFrames           atomic.Uint64

	overrunCount    atomic.Uint64
	callbackPending atomic.Bool
}

// New allocates an in-process ring buffer. Use NewShared (shm_linux.go) for
// a buffer backed by an anonymous memfd, suitable for sharing with a
// separate client process via mmap.
func New(capacityFrames, frameBytes int) *Buffer {
	return &Buffer{
		capacityFrames: capacityFrames,
		frameBytes:     frameBytes,
		data:           make([]byte, capacityFrames*frameBytes),
	}
}

func (b *Buffer) CapacityFrames() int { return b.capacityFrames }
func (b *Buffer) FrameBytes() int     { return b.frameBytes }

// QueuedFrames returns W-R, the frames published but not yet read. Used
// directly by the "no phantom frames" property in spec.md §8.
func (b *Buffer) QueuedFrames() int {
	w := b.publishedWriteFrames.Load()
	r := b.readFrames.Load()
	return int(w - r)
}

// WritableFrames returns the room left before the ring is full, enforcing
// invariant I2/I3-adjacent bound writable+queued <= capacity.
func (b *Buffer) WritableFrames() int {
	return b.capacityFrames - b.QueuedFrames()
}

// OverrunCount returns the monotonically increasing overrun counter
// (invariant I5: only grows).
func (b *Buffer) OverrunCount() uint64 { return b.overrunCount.Load() }

func (b *Buffer) CallbackPending() bool     { return b.callbackPending.Load() }
func (b *Buffer) SetCallbackPending(v bool) { b.callbackPending.Store(v) }

// GetWriteArea returns a byte slice view of up to maxFrames of writable
// space starting at the current reservation point, and the number of
// frames it covers. The returned slice may be shorter than maxFrames if
// the ring wraps; callers should call GetWriteArea again after committing
// to obtain the remainder, matching spec.md §4.1's "loop at most twice"
// wrap-around handling.
func (b *Buffer) GetWriteArea(maxFrames int) ([]byte, int) {
	avail := b.WritableFrames()
	if maxFrames < avail {
		avail = maxFrames
	}
	if avail <= 0 {
		return nil, 0
	}
	start := int(b.writeFrames.Load() % uint64(b.capacityFrames))
	toEnd := b.capacityFrames - start
	if avail > toEnd {
		avail = toEnd
	}
	off := start * b.frameBytes
	return b.data[off : off+avail*b.frameBytes], avail
}

// CommitWrite reserves and publishes n frames in one step (playback
// producer side: the client writes directly into the area returned by
// GetWriteArea, then commits).
func (b *Buffer) CommitWrite(n int) error {
	if n < 0 || n > b.WritableFrames() {
		return ErrOverflow
	}
	b.writeFrames.Add(uint64(n))
	// Release: make the newly written bytes visible before publishing.
	b.publishedWriteFrames.Store(b.writeFrames.Load())
	return nil
}

// GetReadArea returns a byte slice view of up to maxFrames of queued data
// starting at the current read point, and the number of frames it covers.
// As with GetWriteArea, the view may be short if the ring wraps.
func (b *Buffer) GetReadArea(maxFrames int) ([]byte, int) {
	avail := b.QueuedFrames()
	if maxFrames < avail {
		avail = maxFrames
	}
	if avail <= 0 {
		return nil, 0
	}
	start := int(b.readFrames.Load() % uint64(b.capacityFrames))
	toEnd := b.capacityFrames - start
	if avail > toEnd {
		avail = toEnd
	}
	off := start * b.frameBytes
	return b.data[off : off+avail*b.frameBytes], avail
}

// CommitRead advances the read (consumer) offset by n frames with a
// release fence, so a subsequent producer's acquire-load of readFrames
// observes the freed space.
func (b *Buffer) CommitRead(n int) error {
	if n < 0 || n > b.QueuedFrames() {
		return ErrOverflow
	}
	b.readFrames.Add(uint64(n))
	return nil
}

// Overrun records that the producer could not publish because the reader
// had not drained enough space, and repositions the read cursor forward by
// droppedFrames so the producer can keep writing without blocking
// (spec.md §8 test 6: "data is dropped, not wrapped silently; read cursor
// is repositioned by exactly the overflow amount").
func (b *Buffer) Overrun(droppedFrames int) {
	b.overrunCount.Add(1)
	b.readFrames.Add(uint64(droppedFrames))
}
