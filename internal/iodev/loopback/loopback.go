// Package loopback implements a playback device whose output is made
// available to a paired capture device instead of real hardware — the
// in-process analogue of a hardware loopback/monitor jack, used to route
// one stream's output back in as another stream's input without leaving
// the daemon.
//
// Grounded on the teacher's FanOutDevice
// (pkg/audiodevice/device/faninfanoutdevice.go) for the "one producer,
// buffered handoff to a consumer" shape, simplified from its
// multi-sink/timeout-eviction design because both ends of a loopback run
// on the single audio thread already serialized by internal/devio — no
// extra synchronization is needed, so pkg/shm.Buffer's atomics are used
// directly instead of a mutex-guarded slice of sinks.
package loopback

import (
	"github.com/sorad-project/sorad/internal/iodev"
	"github.com/sorad-project/sorad/pkg/format"
	"github.com/sorad-project/sorad/pkg/shm"
)

// Pair is a connected (playback, capture) loopback device pair sharing one
// ring buffer.
type Pair struct {
	ring *shm.Buffer
	fmt  format.Format
}

// NewPair allocates a loopback ring sized for capacityFrames of the given
// format and returns its playback (sink) and capture (source) ends.
func NewPair(fmt format.Format, capacityFrames int) (*PlaybackDevice, *CaptureDevice) {
	p := &Pair{fmt: fmt, ring: shm.New(capacityFrames, fmt.Channels*4)}
	return &PlaybackDevice{Base: iodev.NewBase(iodev.Playback), pair: p},
		&CaptureDevice{Base: iodev.NewBase(iodev.Capture), pair: p}
}

type PlaybackDevice struct {
	iodev.Base
	pair *Pair
	area format.Samples
}

func (d *PlaybackDevice) UpdateSupportedFormats() ([]format.Format, error) {
	return []format.Format{d.pair.fmt}, nil
}

func (d *PlaybackDevice) OpenDev(f format.Format) (format.Format, error) {
	d.MarkOpen(d.pair.fmt)
	return d.pair.fmt, nil
}

func (d *PlaybackDevice) CloseDev() error { d.MarkClosed(); return nil }

func (d *PlaybackDevice) FramesQueued() (int, error) { return d.pair.ring.QueuedFrames(), nil }
func (d *PlaybackDevice) DelayFrames() (int, error)  { return 0, nil }

func (d *PlaybackDevice) GetBuffer(maxFrames int) (format.Samples, int, error) {
	raw, n := d.pair.ring.GetWriteArea(maxFrames)
	samples := bytesToSamples(raw)
	return samples, n, nil
}

func (d *PlaybackDevice) PutBuffer(nframes int) error {
	return d.pair.ring.CommitWrite(nframes)
}

func (d *PlaybackDevice) OutputUnderrun() error { return nil }
func (d *PlaybackDevice) NoStream() error       { return nil }

type CaptureDevice struct {
	iodev.Base
	pair *Pair
}

func (d *CaptureDevice) UpdateSupportedFormats() ([]format.Format, error) {
	return []format.Format{d.pair.fmt}, nil
}

func (d *CaptureDevice) OpenDev(f format.Format) (format.Format, error) {
	d.MarkOpen(d.pair.fmt)
	return d.pair.fmt, nil
}

func (d *CaptureDevice) CloseDev() error { d.MarkClosed(); return nil }

func (d *CaptureDevice) FramesQueued() (int, error) { return d.pair.ring.QueuedFrames(), nil }
func (d *CaptureDevice) DelayFrames() (int, error)  { return 0, nil }

func (d *CaptureDevice) GetBuffer(maxFrames int) (format.Samples, int, error) {
	raw, n := d.pair.ring.GetReadArea(maxFrames)
	samples := bytesToSamples(raw)
	return samples, n, nil
}

func (d *CaptureDevice) PutBuffer(nframes int) error {
	return d.pair.ring.CommitRead(nframes)
}

func (d *CaptureDevice) OutputUnderrun() error { return nil }
func (d *CaptureDevice) NoStream() error       { return nil }

// bytesToSamples copies a raw shm byte area into a newly allocated slice
// of normalized int32 samples. Loopback rings always store
// format.S32LE-equivalent normalized samples (frameBytes = channels*4),
// so each 4-byte little-endian word becomes one sample unchanged; the
// returned slice does not alias raw.
func bytesToSamples(raw []byte) format.Samples {
	n := len(raw) / 4
	out := make(format.Samples, n)
	for i := 0; i < n; i++ {
		off := i * 4
		out[i] = int32(uint32(raw[off]) | uint32(raw[off+1])<<8 | uint32(raw[off+2])<<16 | uint32(raw[off+3])<<24)
	}
	return out
}
