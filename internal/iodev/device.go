// Package iodev is the hardware/virtual device abstraction from spec.md
// §4.3: a capability-table interface implemented by concrete backends
// (pcmdev, loopback, emptydev, filedev, and internal/a2dp), wrapped by
// OpenDevice state and scheduled by internal/devio.
//
// The interface shape follows the teacher's device.go
// (AudioSourceDevice/AudioSinkDevice), generalized from a push-channel
// model to the pull/buffer-handle model the spec requires so the
// scheduler can own exact timing.
package iodev

import (
	"errors"

	"github.com/sorad-project/sorad/pkg/format"
	"github.com/sorad-project/sorad/pkg/ids"
)

// ErrDeviceReset is returned by GetBuffer/PutBuffer when the device hit a
// recoverable hardware fault (e.g. ALSA EPIPE) and needs to be closed and
// reopened before it can run again. internal/devio closes such a device
// and removes it from its list; it does not reopen it.
var ErrDeviceReset = errors.New("iodev: device needs reset")

// ErrDeviceFatal is returned when the device cannot be recovered and
// should be removed from the device list entirely.
var ErrDeviceFatal = errors.New("iodev: device failed permanently")

// Direction distinguishes playback (sink) from capture (source) devices.
type Direction int

const (
	Playback Direction = iota
	Capture
)

// Device is the capability table every concrete backend implements,
// mirroring spec.md §4.3's open_dev/close_dev/is_open/frames_queued/
// delay_frames/get_buffer/put_buffer/dev_running/no_stream contract.
type Device interface {
	ID() ids.DeviceID
	Direction() Direction

	// UpdateSupportedFormats refreshes the set of formats the hardware
	// can run, for devices whose capability set is dynamic (e.g. a file
	// device matches its file's format exactly, a PCM device queries
	// the driver).
	UpdateSupportedFormats() ([]format.Format, error)

	// OpenDev opens the device at fmt and returns the actual negotiated
	// format, which may differ from the request if the device rounded
	// it to a supported rate/width.
	OpenDev(fmt format.Format) (format.Format, error)
	CloseDev() error
	IsOpen() bool

	// FramesQueued returns frames currently buffered in the hardware/
	// backend that have not yet been consumed (playback) or produced
	// (capture).
	FramesQueued() (int, error)

	// DelayFrames returns the additional latency, in frames, between a
	// sample leaving GetBuffer and it reaching the listener (playback)
	// or between it occurring and arriving in GetBuffer (capture).
	DelayFrames() (int, error)

	// GetBuffer returns a buffer of up to maxFrames that the caller may
	// fill (playback) or read (capture), and the number of frames it
	// actually covers.
	GetBuffer(maxFrames int) (format.Samples, int, error)

	// PutBuffer commits nframes of the buffer previously returned by
	// GetBuffer (frames written for playback, frames consumed for
	// capture).
	PutBuffer(nframes int) error

	// DevRunning reports whether the device is actively producing or
	// consuming audio (false right after open, before the first real
	// stream attaches, per spec.md's NO_STREAM_RUN state).
	DevRunning() bool

	// OutputUnderrun is called by the scheduler when playback_write
	// found nothing to write to an open device; backends may play
	// silence or otherwise keep the hardware fed.
	OutputUnderrun() error

	// NoStream is called once per pass while the device has no attached
	// streams, so backends (e.g. PCM) can keep the hardware clocked
	// with silence instead of closing and reopening on every stream
	// churn.
	NoStream() error
}
