// Package a2dp implements the A2DP Bluetooth output iodev.Device from
// spec.md §4.4: a device with no hardware feedback on how much audio the
// headset has actually consumed, so its "frames queued" is a pacing model
// rather than a real measurement — virtual_queued_frames =
// bt_written_frames - (now - dev_open_time) * frame_rate, clamped at
// zero.
//
// Grounded on the teacher's go.mod dependency surface for the transport
// (golang.org/x/sys/unix, also used by pkg/shm for SEQPACKET/memfd) and on
// spec.md §4.4's pseudocode directly, since no example repo implements an
// A2DP/Bluetooth transport (the teacher's networking stack is
// WebRTC/pion-based and explicitly not wired — see DESIGN.md).
package a2dp

import (
	"errors"
	"time"

	"github.com/sorad-project/sorad/internal/iodev"
	"github.com/sorad-project/sorad/internal/sbc"
	"github.com/sorad-project/sorad/pkg/clock"
	"github.com/sorad-project/sorad/pkg/format"
	"github.com/sorad-project/sorad/pkg/shm"
)

// ErrNotConnected is returned when the transport reports the headset has
// disconnected (ENOTCONN-equivalent); the scheduler should force-suspend
// and remove the device.
var ErrNotConnected = errors.New("a2dp: transport not connected")

// ErrAgain is returned when a write would block because the kernel's
// socket buffer toward the headset is full; this is not a fatal error,
// just backpressure the device's write-path loop retries later.
var ErrAgain = errors.New("a2dp: transport write would block")

// Transport abstracts the actual Bluetooth L2CAP/RFCOMM socket so tests
// can substitute a fake one; the real implementation opens an L2CAP
// socket via golang.org/x/sys/unix.
type Transport interface {
	Write(p []byte) (int, error)
	Close() error
}

// ForceSuspendFunc is called when the transport becomes permanently
// unusable, so the daemon can notify higher-level connection management
// (outside this package's scope) to renegotiate or drop the headset.
type ForceSuspendFunc func(err error)

type Device struct {
	iodev.Base

	transport    Transport
	clock        clock.Clock
	encoder      *sbc.Encoder
	pcmStage     *shm.ByteRing
	encodedStage *shm.ByteRing

	openTime           time.Time
	writtenFrames      int64
	encodedStageFrames int // PCM-equivalent frames represented by encodedStage's bytes
	forceSuspend       ForceSuspendFunc
	pending            format.Samples
}

// New creates an A2DP playback device writing encoded SBC over transport.
// stageCapacityFrames bounds how much PCM can be queued ahead of the
// encoder before GetBuffer starts reporting no room (spec.md §4.4's
// bounded internal staging, distinct from the virtual pacing counter).
func New(transport Transport, clk clock.Clock, forceSuspend ForceSuspendFunc, stageCapacityFrames int) *Device {
	if clk == nil {
		clk = clock.Real
	}
	return &Device{
		Base:         iodev.NewBase(iodev.Playback),
		transport:    transport,
		clock:        clk,
		forceSuspend: forceSuspend,
		pcmStage:     shm.NewByteRing(stageCapacityFrames * 8), // 8 bytes/frame at stereo normalized int32
		// encodedStage holds SBC frames that have been compressed but not
		// yet accepted by the transport; sized generously against the
		// same PCM-frame budget since compressed audio is always smaller.
		encodedStage: shm.NewByteRing(stageCapacityFrames * 8),
	}
}

func (d *Device) UpdateSupportedFormats() ([]format.Format, error) {
	return []format.Format{
		{SampleRate: 44100, Channels: 2, Encoding: format.S16LE},
		{SampleRate: 48000, Channels: 2, Encoding: format.S16LE},
	}, nil
}

func (d *Device) OpenDev(f format.Format) (format.Format, error) {
	d.encoder = sbc.NewEncoder(f.Channels)
	d.openTime = d.clock.Now()
	d.writtenFrames = 0
	d.MarkOpen(f)
	return f, nil
}

func (d *Device) CloseDev() error {
	d.MarkClosed()
	return d.transport.Close()
}

// virtualQueuedFrames implements spec.md §4.4's pacing formula: frames
// handed to the transport so far, minus however many frames worth of
// wall-clock time have elapsed since the device opened, clamped at zero
// since the headset can't have "negative" backlog.
func (d *Device) virtualQueuedFrames() int {
	elapsed := d.clock.Now().Sub(d.openTime)
	consumedEstimate := int64(elapsed.Seconds() * float64(d.Format().SampleRate))
	q := d.writtenFrames - consumedEstimate
	if q < 0 {
		return 0
	}
	return int(q)
}

// FramesQueued implements spec.md §4.4's full frames_queued = ring_frames
// + sbc_internal_frames + virtual_queued_frames: audio staged ahead of
// the encoder, audio encoded but not yet accepted by the transport, and
// the pacing model's estimate of what the headset hasn't consumed yet.
// Without the first two terms, a pass that just filled pcmStage/
// encodedStage but hasn't had the transport accept anything would look
// falsely idle to the scheduler's pull-size and rate-adjust math.
func (d *Device) FramesQueued() (int, error) {
	frameBytes := d.Format().Channels * 4
	ringFrames := d.pcmStage.Len() / frameBytes
	return ringFrames + d.encodedStageFrames + d.virtualQueuedFrames(), nil
}

func (d *Device) DelayFrames() (int, error) { return d.virtualQueuedFrames(), nil }

// GetBuffer hands back scratch space sized to one or more whole SBC
// frames, bounded by the room left in the PCM stage (zero frames when
// less than one SBC frame fits); PutBuffer does the actual
// encode-and-write.
func (d *Device) GetBuffer(maxFrames int) (format.Samples, int, error) {
	room := d.pcmStage.Free() / (d.Format().Channels * 4)
	if maxFrames > room {
		maxFrames = room
	}
	frames := maxFrames - (maxFrames % sbc.FrameSamples)
	if frames <= 0 {
		if room < sbc.FrameSamples {
			return nil, 0, nil
		}
		frames = sbc.FrameSamples
	}
	d.pending = make(format.Samples, frames*d.Format().Channels)
	return d.pending, frames, nil
}

// PutBuffer encodes whole SBC frames out of the committed PCM, stages the
// encoded bytes, and flushes as much of the staged backlog to the
// transport as it will currently accept, per spec.md §4.4's write-path
// flush loop.
func (d *Device) PutBuffer(nframes int) error {
	channels := d.Format().Channels
	raw := make([]byte, nframes*channels*4)
	format.Encode(raw, d.pending[:nframes*channels], format.S32LE)
	d.pcmStage.Write(raw)

	frameBytes := sbc.FrameSamples * channels * 4
	pcmBuf := make([]byte, frameBytes)
	for d.pcmStage.Len() >= frameBytes {
		d.pcmStage.Read(pcmBuf)
		samples := make(format.Samples, sbc.FrameSamples*channels)
		format.Decode(samples, pcmBuf, format.S32LE, channels)
		encoded := d.encoder.EncodeFrame(nil, samples)
		d.pcmStage.Discard(frameBytes)
		d.encodedStage.Write(encoded)
		d.encodedStageFrames += sbc.FrameSamples
	}

	return d.flushEncodedStage()
}

// flushEncodedStage writes as much of the already-encoded SBC backlog to
// the transport as it will accept. Read peeks the stage without
// consuming it, so on EAGAIN the unsent bytes are simply left in place
// rather than being lost or re-queued; only bytes the transport actually
// accepted are discarded. ENOTCONN is fatal and triggers force-suspend.
func (d *Device) flushEncodedStage() error {
	pending := d.encodedStage.Len()
	if pending == 0 {
		return nil
	}
	buf := make([]byte, pending)
	d.encodedStage.Read(buf)

	n, err := d.transport.Write(buf)
	if n > 0 {
		d.encodedStage.Discard(n)
		retired := d.encodedStageFrames * n / pending
		d.writtenFrames += int64(retired)
		d.encodedStageFrames -= retired
	}
	if err != nil {
		if errors.Is(err, ErrNotConnected) {
			if d.forceSuspend != nil {
				d.forceSuspend(err)
			}
			return ErrNotConnected
		}
		if errors.Is(err, ErrAgain) {
			return nil
		}
		return err
	}
	return nil
}

func (d *Device) OutputUnderrun() error { return nil }
func (d *Device) NoStream() error       { return nil }
