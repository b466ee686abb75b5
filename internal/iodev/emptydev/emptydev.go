// Package emptydev implements a no-op playback/capture device: playback
// silently discards every buffer it's given, capture always hands back
// silence. It exists so the scheduler always has at least one device per
// direction to target (the "null sink"/"null source" pattern), and as a
// harness for scheduler tests.
//
// Grounded on the teacher's pkg/audiodevice/device/dummydevice.go
// (DummyAudioSourceDevice/DummyAudioSinkDevice), generalized from the
// push-channel model to iodev.Device's pull/buffer-handle model.
package emptydev

import (
	"github.com/sorad-project/sorad/internal/iodev"
	"github.com/sorad-project/sorad/pkg/format"
)

type Device struct {
	iodev.Base
	buf format.Samples
}

func New(dir iodev.Direction) *Device {
	return &Device{Base: iodev.NewBase(dir)}
}

func (d *Device) UpdateSupportedFormats() ([]format.Format, error) { return nil, nil }

func (d *Device) OpenDev(f format.Format) (format.Format, error) {
	d.buf = make(format.Samples, f.Channels*4096)
	d.MarkOpen(f)
	return f, nil
}

func (d *Device) CloseDev() error {
	d.MarkClosed()
	return nil
}

func (d *Device) FramesQueued() (int, error) { return 0, nil }
func (d *Device) DelayFrames() (int, error)  { return 0, nil }

func (d *Device) GetBuffer(maxFrames int) (format.Samples, int, error) {
	f := d.Format()
	frames := maxFrames
	if frames*f.Channels > len(d.buf) {
		frames = len(d.buf) / f.Channels
	}
	format.Zero(d.buf[:frames*f.Channels])
	return d.buf[:frames*f.Channels], frames, nil
}

func (d *Device) PutBuffer(nframes int) error { return nil }
func (d *Device) OutputUnderrun() error       { return nil }
func (d *Device) NoStream() error             { return nil }
