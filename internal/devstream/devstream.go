// Package devstream implements the bridge between one rstream.Stream and
// the iodev.Device it's attached to: format conversion, mixing into the
// device's buffer, and the wake-time math that tells internal/devio when
// this stream next needs servicing. This is spec.md §4.2 "dev_stream".
package devstream

import (
	"time"

	"github.com/sorad-project/sorad/internal/rstream"
	"github.com/sorad-project/sorad/pkg/format"
)

// DevStream owns the (possibly nil, if formats already match) Converter
// between a stream's negotiated format and its device's format, per
// spec.md §4.2's "build a format converter iff stream.fmt != dev_fmt".
type DevStream struct {
	Stream    *rstream.Stream
	DevFormat format.Format

	converter *format.Converter

	delayFrames int
	devRateHz   int
}

// Create builds a DevStream for stream against a device running at
// devFormat. A playback stream's converter runs stream->device; a capture
// stream's runs device->stream.
func Create(stream *rstream.Stream, devFormat format.Format) *DevStream {
	ds := &DevStream{Stream: stream, DevFormat: devFormat, devRateHz: devFormat.SampleRate}
	if !stream.Format.Equal(devFormat) {
		if stream.Direction == rstream.Capture {
			ds.converter = format.NewConverter(devFormat, stream.Format)
		} else {
			ds.converter = format.NewConverter(stream.Format, devFormat)
		}
	}
	return ds
}

// PlaybackFrames estimates how many device-rate frames this stream could
// currently contribute to a mix, without consuming anything from its
// ring, per spec.md §4.2's playback_frames(). Used by write_streams to
// partition attachments into playing/draining and size write_limit/
// drain_limit before any stream is actually mixed.
func (ds *DevStream) PlaybackFrames() int {
	srcFrames := ds.Stream.AvailFrames()
	if srcFrames <= 0 {
		return srcFrames
	}
	if ds.Stream.Format.SampleRate == ds.DevFormat.SampleRate {
		return srcFrames
	}
	return srcFrames * ds.DevFormat.SampleRate / ds.Stream.Format.SampleRate
}

// Mix pulls up to maxFrames worth of converted samples from the stream's
// ring and adds them into dst (already in device format), per spec.md
// §4.1 write_streams. Returns the number of device-format frames it
// contributed, which may be less than maxFrames if the stream ran dry or
// its readable data wraps past the end of the ring (only the part up to
// the ring's end is read in one call).
func (ds *DevStream) Mix(dst format.Samples, maxFrames int) (int, error) {
	channels := ds.DevFormat.Channels
	srcChannels := ds.Stream.Format.Channels

	srcMaxFrames := maxFrames
	if ds.converter != nil && ds.Stream.Format.SampleRate != ds.DevFormat.SampleRate {
		// Pull proportionally more/less source frames when rates differ
		// so the resampler has enough input to produce maxFrames of
		// output; exact accounting happens inside Converter, this is
		// just a generous upper bound on how much to read from the ring.
		srcMaxFrames = maxFrames*ds.Stream.Format.SampleRate/ds.DevFormat.SampleRate + 1
	}

	raw, rawFrames := ds.Stream.Ring.GetReadArea(srcMaxFrames)
	if rawFrames == 0 {
		return 0, nil
	}

	srcSamples := make(format.Samples, rawFrames*srcChannels)
	format.Decode(srcSamples, raw, ds.Stream.Format.Encoding, srcChannels)

	var converted format.Samples
	if ds.converter != nil {
		converted = ds.converter.Convert(srcSamples)
	} else {
		converted = srcSamples
	}

	frames := len(converted) / channels
	if frames > maxFrames {
		frames = maxFrames
	}
	format.MixAdd(dst[:frames*channels], converted[:frames*channels])

	if err := ds.Stream.Ring.CommitRead(rawFrames); err != nil {
		return 0, err
	}
	ds.Stream.RecordFetch(time.Now())
	return frames, nil
}

// Capture pushes up to maxFrames of device-format samples (already
// decoded to normalized int32 by the caller) into the stream's ring,
// converting to the stream's negotiated format first if needed.
func (ds *DevStream) Capture(src format.Samples, maxFrames int) (int, error) {
	channels := ds.Stream.Format.Channels

	var converted format.Samples
	if ds.converter != nil {
		converted = ds.converter.Convert(src)
	} else {
		converted = src
	}

	frames := len(converted) / channels
	if frames > maxFrames {
		frames = maxFrames
	}
	if frames == 0 {
		return 0, nil
	}

	if writable := ds.Stream.Ring.WritableFrames(); writable < frames {
		// The client hasn't drained its read side fast enough to hold
		// this device's full capture chunk: spec.md §4.2 "check overrun
		// first; bump overrun counter if the client has not drained",
		// invariant I5. Overrun repositions the read cursor forward by
		// exactly the shortfall so the write below always has room.
		ds.Stream.Ring.Overrun(frames - writable)
	}

	// Two rounds at most: the write area can stop at the ring's end, and
	// the remainder continues from its start.
	written := 0
	for written < frames {
		area, n := ds.Stream.Ring.GetWriteArea(frames - written)
		if n == 0 {
			break
		}
		format.Encode(area, converted[written*channels:(written+n)*channels], ds.Stream.Format.Encoding)
		if err := ds.Stream.Ring.CommitWrite(n); err != nil {
			return written, err
		}
		written += n
	}
	if written == 0 {
		return 0, nil
	}
	ds.Stream.RecordFetch(time.Now())
	return written, nil
}

// SetDelay records the device-reported hardware delay so WakeTime can
// account for it.
func (ds *DevStream) SetDelay(frames int) { ds.delayFrames = frames }

// rateAdjustEpsilon is the fractional correction set_dev_rate applies per
// unit of coarse_adjust (spec.md §4.2): 100 ppm, separate from
// internal/iodev.RateEstimator's own 1 ppm step.
const rateAdjustEpsilon = 100e-6

// SetDevRate folds the device's nominal rate, this stream's rate ratio
// against the device, the master clock's ratio, and the current coarse
// rate-adjust hint into the effective device rate WakeTime's
// frames-to-duration math runs against, per spec.md §4.2's
// set_dev_rate(dev_rate, dev_ratio, master_ratio, coarse_adjust):
//
//	effective = dev_rate * (dev_ratio / master_ratio) * (1 + epsilon*coarse_adjust)
//
// devRatio is this stream's own negotiated-rate ratio (1.0 unless a
// future multi-rate-master scheme assigns it otherwise); masterRatio is
// the device's ppm-corrected drift ratio from its RateEstimator. The
// correction only ever affects pacing/wake-time math here, not the
// resampler's fixed conversion ratio (pkg/format.Converter) — the
// resampler is built once, at stream negotiation, from the client's and
// device's negotiated rates, and has no runtime rate-adjustment API.
func (ds *DevStream) SetDevRate(devRate int, devRatio, masterRatio float64, coarseAdjust int) {
	if masterRatio == 0 {
		masterRatio = 1
	}
	effective := float64(devRate) * (devRatio / masterRatio) * (1 + rateAdjustEpsilon*float64(coarseAdjust))
	ds.devRateHz = int(effective)
}

// DevRateHz returns the effective device rate last computed by
// SetDevRate, for diagnostics and tests.
func (ds *DevStream) DevRateHz() int { return ds.devRateHz }

// WakeTime computes when this stream will next need servicing: enough
// time for its buffered frames (minus hardware delay) to drain at the
// device's rate, per spec.md §4.1's per-device wake time component.
func (ds *DevStream) WakeTime(now time.Time) time.Time {
	queued := ds.Stream.AvailFrames() - ds.delayFrames
	if queued <= 0 {
		return now
	}
	if ds.devRateHz <= 0 {
		return now
	}
	d := time.Duration(queued) * time.Second / time.Duration(ds.devRateHz)
	return now.Add(d)
}
