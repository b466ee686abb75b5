// Package devio implements the dev_io scheduler: the four ordered passes
// over open devices and their attached dev_streams, per spec.md §4.1.
// Exactly one goroutine (cmd/sorad's audio thread) calls into Scheduler;
// nothing here is safe for concurrent use, matching spec.md §5's
// single-audio-thread ownership model.
package devio

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sorad-project/sorad/internal/devstream"
	"github.com/sorad-project/sorad/internal/iodev"
	"github.com/sorad-project/sorad/pkg/format"
)

// Attachment pairs one DevStream with the OpenDevice it currently targets,
// so the scheduler can walk "streams attached to this device" without
// every device needing to know about rstream.
type Attachment struct {
	Dev    *iodev.OpenDevice
	Stream *devstream.DevStream
}

// Scheduler runs Pass A-D over a playback device list, a capture device
// list, and the stream attachments connecting them to both.
type Scheduler struct {
	Playback *iodev.OpenDevices
	Capture  *iodev.OpenDevices

	streams []*Attachment

	log *slog.Logger
}

func New(playback, capture *iodev.OpenDevices, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{Playback: playback, Capture: capture, log: log}
}

func (s *Scheduler) Attach(a *Attachment) { s.streams = append(s.streams, a) }

func (s *Scheduler) Detach(a *Attachment) {
	for i, x := range s.streams {
		if x == a {
			s.streams = append(s.streams[:i], s.streams[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) streamsFor(od *iodev.OpenDevice) []*Attachment {
	var out []*Attachment
	for _, a := range s.streams {
		if a.Dev == od {
			out = append(out, a)
		}
	}
	return out
}

// RunPass runs Pass A (playback_fetch), Pass B (playback_write), Pass C
// (capture), and Pass D (send_captured_samples) once, in that exact
// order, per spec.md §4.1.
func (s *Scheduler) RunPass(now time.Time) {
	s.playbackFetch(now)
	s.playbackWrite(now)
	s.capture()
	s.sendCapturedSamples()
}

// playbackFetch is Pass A: for every playback device with at least one
// attached stream, drain any tokens the client has already sent (so
// stale buffer-ready signals don't pile up on the control socket),
// detect a client that has gone backwards on its SHM offsets, propagate
// the device's current hardware delay to the stream, and — if the
// stream is due per its own callback cadence — ask it for more data over
// the control socket, per spec.md §4.1 Pass A and §6's token protocol.
func (s *Scheduler) playbackFetch(now time.Time) {
	s.Playback.Each(func(od *iodev.OpenDevice) bool {
		delay, err := od.Device.DelayFrames()
		if err != nil {
			delay = 0
		}

		for _, a := range s.streamsFor(od) {
			st := a.Stream.Stream

			if err := st.DrainPendingToken(); err != nil {
				st.SetDraining()
				continue
			}

			if st.Ring.QueuedFrames() < 0 {
				// The client's published offset regressed relative to
				// the read offset — a crashed or misbehaving producer.
				// Stop trusting it rather than mixing garbage.
				st.SetDraining()
				continue
			}

			a.Stream.SetDelay(delay)

			if st.Draining() {
				continue
			}
			if !st.CanFetch(now) {
				continue
			}

			if err := st.RequestSamples(); err != nil {
				st.SetDraining()
				continue
			}
			st.AdvanceNextFetchTime(now)
		}
		return true
	})
}

// playbackWrite is Pass B: mix every attached stream's available audio
// into each open playback device's buffer via writeStreams, then hand the
// result to the device. Devices with no streams get NoStream and are
// marked idle (an audio-thread-owned device keeps the hardware clocked
// rather than closing between streams, per spec.md §4.3's NO_STREAM_RUN
// state); devices whose streams supplied nothing get OutputUnderrun.
func (s *Scheduler) playbackWrite(now time.Time) {
	s.Playback.Each(func(od *iodev.OpenDevice) bool {
		attachments := s.streamsFor(od)
		if len(attachments) == 0 {
			if err := od.Device.NoStream(); err != nil {
				return s.handleDeviceError(od, err)
			}
			if idler, ok := od.Device.(interface{ MarkIdle() }); ok {
				idler.MarkIdle()
			}
			return true
		}

		hwLevel, err := od.Device.FramesQueued()
		if err != nil {
			return s.handleDeviceError(od, err)
		}
		s.adjustRate(od, hwLevel, attachments)

		maxFrames, err := devicePullSize(od.Device)
		if err != nil {
			return s.handleDeviceError(od, err)
		}

		buf, frames, err := od.Device.GetBuffer(maxFrames)
		if err != nil {
			return s.handleDeviceError(od, err)
		}
		if frames == 0 {
			return true
		}

		format.Zero(buf[:frames*devChannels(od.Device)])
		wrote := writeStreams(buf, frames, devChannels(od.Device), attachments)
		if wrote == 0 {
			if err := od.Device.OutputUnderrun(); err != nil {
				return s.handleDeviceError(od, err)
			}
		} else {
			if err := od.Device.PutBuffer(wrote); err != nil {
				return s.handleDeviceError(od, err)
			}
			if runner, ok := od.Device.(interface{ MarkRunning() }); ok {
				runner.MarkRunning()
			}
		}

		od.WakeTime = minStreamWakeTime(now, attachments)
		return true
	})

	s.dropDrainedStreams()
}

// rateAdjustTargetFrames/rateAdjustDeadbandFrames stand in for spec.md
// §4.1's per-device min_cb_level/max_cb_level thresholds: the Device
// capability table (spec.md §4.3) doesn't expose those knobs, so
// coarse_rate_adjust's occupancy target is derived from the scheduler's
// own fixed pull-size budget instead, preserving the ternary's shape
// (speed up when starved, slow down when backed up, hold inside a
// hysteresis band) without widening the Device interface.
const (
	rateAdjustTargetFrames   = maxPullFrames / 2
	rateAdjustDeadbandFrames = maxPullFrames / 8
)

// adjustRate is spec.md §4.1 Pass B step 2 / Pass C step 1: compute the
// coarse_rate_adjust ternary from the device's current buffer occupancy,
// fold it into the device's persistent RateEstimator, and propagate the
// resulting effective rate to every attached dev_stream's set_dev_rate.
func (s *Scheduler) adjustRate(od *iodev.OpenDevice, hwLevel int, attachments []*Attachment) {
	coarseAdjust := iodev.CoarseRateAdjust(hwLevel, rateAdjustTargetFrames, rateAdjustDeadbandFrames)
	od.Rate.Update(coarseAdjust)

	devHz := devSampleRate(od.Device)
	if devHz <= 0 {
		return
	}
	masterRatio := od.Rate.EffectiveRate(devHz) / float64(devHz)

	for _, a := range attachments {
		a.Stream.SetDevRate(devHz, 1.0, masterRatio, coarseAdjust)
	}
}

// writeStreams implements spec.md §4.1's write_streams: attachments are
// partitioned into playing and draining, draining streams are bounded by
// drain_limit so they can't hold back a still-playing stream, and the
// device only commits cras_iodev_all_streams_written — the minimum
// number of frames every data-bearing stream of the limiting group
// (the playing streams, or the draining ones when none is playing)
// actually supplied — so a slower stream isn't starved by a faster one
// racing ahead of it (invariant I3). dst is assumed already zero-filled by the caller, which
// stands in for the zero-fill-to-max_offset boundary step since this
// scheduler mixes a device's whole pulled buffer in one pass rather than
// CRAS's multi-iteration wrap-around loop.
func writeStreams(dst format.Samples, maxFrames, channels int, attachments []*Attachment) int {
	type pending struct {
		att   *Attachment
		avail int
	}
	var playing, draining []pending
	for _, a := range attachments {
		avail := a.Stream.PlaybackFrames()
		if avail < 0 {
			// Negative availability means the stream's producer offset
			// went backwards (spec.md §4.1): leave it for playbackFetch
			// to mark draining, don't mix from it this pass.
			continue
		}
		if avail > maxFrames {
			avail = maxFrames
		}
		p := pending{att: a, avail: avail}
		if a.Stream.Stream.Draining() {
			draining = append(draining, p)
		} else {
			playing = append(playing, p)
		}
	}

	// write_limit/drain_limit are bounded by streams that actually still
	// have data, not by a playing stream that's momentarily run dry: a
	// dry-but-not-draining stream contributes silence at its offset (the
	// buffer is already zeroed) without holding back streams that do
	// have audio, matching spec.md §8 scenario 3.
	limit, limitSet := 0, false
	for _, p := range playing {
		if p.avail > 0 && (!limitSet || p.avail < limit) {
			limit, limitSet = p.avail, true
		}
	}
	drainOnly := !limitSet
	if !limitSet {
		for _, p := range draining {
			if p.avail > 0 && (!limitSet || p.avail < limit) {
				limit, limitSet = p.avail, true
			}
		}
	}
	if !limitSet {
		return 0
	}

	committed := limit
	mix := func(p pending, bounds bool) {
		n, err := p.att.Stream.Mix(dst, limit)
		if err != nil {
			n = 0
		}
		if bounds && p.avail > 0 && n < committed {
			committed = n
		}
	}
	for _, p := range playing {
		mix(p, true)
	}
	for _, p := range draining {
		mix(p, drainOnly)
	}
	return committed
}

// capture is Pass C: pull available audio from every open capture device
// into each attached stream's ring, converting format as needed.
func (s *Scheduler) capture() {
	s.Capture.Each(func(od *iodev.OpenDevice) bool {
		attachments := s.streamsFor(od)
		if len(attachments) == 0 {
			od.InputStreaming = false
			if err := od.Device.NoStream(); err != nil {
				return s.handleDeviceError(od, err)
			}
			return true
		}

		queued, err := od.Device.FramesQueued()
		if err != nil {
			return s.handleDeviceError(od, err)
		}
		if queued == 0 {
			return true
		}
		s.adjustRate(od, queued, attachments)

		delay, err := od.Device.DelayFrames()
		if err == nil {
			for _, a := range attachments {
				a.Stream.SetDelay(delay)
			}
		}

		buf, frames, err := od.Device.GetBuffer(queued)
		if err != nil {
			return s.handleDeviceError(od, err)
		}
		if frames == 0 {
			return true
		}

		for _, a := range attachments {
			if _, err := a.Stream.Capture(buf[:frames*devChannels(od.Device)], frames); err != nil {
				s.log.Warn("devio: capture stream write failed", "err", err)
			}
		}

		if err := od.Device.PutBuffer(frames); err != nil {
			return s.handleDeviceError(od, err)
		}
		od.InputStreaming = true
		return true
	})
}

// sendCapturedSamples is Pass D: notify every capture stream's client
// that new data is ready, per spec.md §4.1.
func (s *Scheduler) sendCapturedSamples() {
	for _, a := range s.streams {
		if a.Stream.Stream.Direction != devicesDirectionCapture {
			continue
		}
		if a.Stream.Stream.AvailFrames() == 0 {
			continue
		}
		if err := a.Stream.Stream.NotifyClient(); err != nil {
			s.log.Warn("devio: notify capture client failed", "err", err)
		}
	}
}

const devicesDirectionCapture = iodev.Capture

// dropDrainedStreams removes streams (of either direction) that were
// marked draining and have no frames left in their ring, per spec.md §7's
// graceful-disconnect handling.
func (s *Scheduler) dropDrainedStreams() {
	kept := s.streams[:0]
	for _, a := range s.streams {
		if a.Stream.Stream.Draining() && a.Stream.Stream.AvailFrames() == 0 {
			continue
		}
		kept = append(kept, a)
	}
	s.streams = kept
}

// handleDeviceError applies spec.md §7's error isolation rule: any device
// error, ErrDeviceReset included, closes the device and removes it from
// its list; the scheduler does not reopen a device after ErrDeviceReset.
// Only this device is affected — its streams are detached from the
// scheduler, matching the stream-level/device-level error isolation
// distinction.
func (s *Scheduler) handleDeviceError(od *iodev.OpenDevice, err error) bool {
	s.log.Error("devio: device error", "device", od.Device.ID().String(), "err", err)
	for _, a := range s.streamsFor(od) {
		s.Detach(a)
	}
	if errors.Is(err, iodev.ErrDeviceReset) {
		od.Device.CloseDev()
		return false
	}
	od.Device.CloseDev()
	return false
}

func devChannels(d iodev.Device) int {
	return channelsOf(d)
}

// channelsOf is split out from devChannels only so a future device type
// that doesn't expose Format() (e.g. a pure pass-through) has one place
// to special-case; every current backend embeds iodev.Base.
func channelsOf(d iodev.Device) int {
	type formatter interface {
		Format() format.Format
	}
	if f, ok := d.(formatter); ok {
		return f.Format().Channels
	}
	return 2
}

// devSampleRate returns a device's negotiated sample rate, or 0 if it
// doesn't expose Format() (matching channelsOf's fallback pattern).
func devSampleRate(d iodev.Device) int {
	type formatter interface {
		Format() format.Format
	}
	if f, ok := d.(formatter); ok {
		return f.Format().SampleRate
	}
	return 0
}

// maxPullFrames bounds how far devicePullSize lets a playback device get
// ahead of real time, and doubles as rateAdjustTargetFrames/
// rateAdjustDeadbandFrames's scale above.
const maxPullFrames = 4096

func devicePullSize(d iodev.Device) (int, error) {
	queued, err := d.FramesQueued()
	if err != nil {
		return 0, err
	}
	room := maxPullFrames - queued
	if room <= 0 {
		return 0, nil
	}
	return room, nil
}

func minStreamWakeTime(now time.Time, attachments []*Attachment) time.Time {
	const maxWake = 20 * time.Second
	best := now.Add(maxWake)
	for _, a := range attachments {
		if wt := a.Stream.WakeTime(now); wt.Before(best) {
			best = wt
		}
	}
	return best
}

// NextWakeTime returns the minimum wake time across all open devices,
// clamped to now+20s, per spec.md §4.1's wake-time computation. A device
// whose WakeTime was never set (the zero time) is ignored.
func (s *Scheduler) NextWakeTime(now time.Time) time.Time {
	const maxWake = 20 * time.Second
	best := now.Add(maxWake)
	s.Playback.Each(func(od *iodev.OpenDevice) bool {
		if !od.WakeTime.IsZero() && od.WakeTime.Before(best) {
			best = od.WakeTime
		}
		return true
	})
	s.Capture.Each(func(od *iodev.OpenDevice) bool {
		if !od.WakeTime.IsZero() && od.WakeTime.Before(best) {
			best = od.WakeTime
		}
		return true
	})
	return best
}
