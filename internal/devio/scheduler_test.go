package devio

import (
	"errors"
	"testing"
	"time"

	"github.com/sorad-project/sorad/internal/devstream"
	"github.com/sorad-project/sorad/internal/iodev"
	"github.com/sorad-project/sorad/internal/iodev/emptydev"
	"github.com/sorad-project/sorad/internal/rstream"
	"github.com/sorad-project/sorad/pkg/format"
)

// fakeConn is a minimal rstream.Conn double for exercising Pass A's
// token-request path from outside the rstream package (which keeps its
// own memConn test double unexported).
type fakeConn struct {
	sent    []rstream.Token
	toRecv  []rstream.Token
	sendErr error
	closed  bool
}

func (c *fakeConn) SendToken(t rstream.Token) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, t)
	return nil
}

func (c *fakeConn) RecvToken() (rstream.Token, error) {
	if len(c.toRecv) == 0 {
		return 0, nil
	}
	t := c.toRecv[0]
	c.toRecv = c.toRecv[1:]
	return t, nil
}

func (c *fakeConn) TryRecvToken() (rstream.Token, bool, error) {
	if len(c.toRecv) == 0 {
		return 0, false, nil
	}
	t := c.toRecv[0]
	c.toRecv = c.toRecv[1:]
	return t, true, nil
}

func (c *fakeConn) Close() error { c.closed = true; return nil }

func openPlayback(t *testing.T, fmt format.Format) (*iodev.OpenDevices, *iodev.OpenDevice) {
	t.Helper()
	devs := iodev.NewOpenDevices()
	d := emptydev.New(iodev.Playback)
	if _, err := d.OpenDev(fmt); err != nil {
		t.Fatalf("OpenDev: %v", err)
	}
	return devs, devs.Add(d)
}

func writeSamples(t *testing.T, s *rstream.Stream, frames int, value int32) {
	t.Helper()
	channels := s.Format.Channels
	samples := make(format.Samples, frames*channels)
	for i := range samples {
		samples[i] = value
	}
	raw := make([]byte, frames*s.Format.FrameBytes())
	format.Encode(raw, samples, s.Format.Encoding)

	area, n := s.Ring.GetWriteArea(frames)
	if n != frames {
		t.Fatalf("got %d writable frames, want %d", n, frames)
	}
	copy(area, raw)
	if err := s.Ring.CommitWrite(n); err != nil {
		t.Fatalf("CommitWrite: %v", err)
	}
}

// TestSinglePlaybackStreamDrains is spec.md §8 scenario 1: one stream
// feeding one device should have its buffered frames consumed.
func TestSinglePlaybackStreamDrains(t *testing.T) {
	fmt := format.Format{SampleRate: 48000, Channels: 2, Encoding: format.S16LE}
	playback, od := openPlayback(t, fmt)
	capture := iodev.NewOpenDevices()

	sched := New(playback, capture, nil)

	stream := rstream.New(rstream.Playback, fmt, 480, od, nil)
	writeSamples(t, stream, 480, 1000<<16)

	ds := devstream.Create(stream, fmt)
	att := &Attachment{Dev: od, Stream: ds}
	sched.Attach(att)

	sched.RunPass(time.Unix(0, 0))

	if got := stream.AvailFrames(); got != 0 {
		t.Fatalf("AvailFrames after pass = %d, want 0", got)
	}
}

// TestTwoStreamsOneDrainsOtherContinues is spec.md §8 scenario 3: when one of two
// streams attached to the same device runs dry, the other keeps playing
// and the device isn't affected.
func TestTwoStreamsOneDrainsOtherContinues(t *testing.T) {
	fmt := format.Format{SampleRate: 48000, Channels: 2, Encoding: format.S16LE}
	playback, od := openPlayback(t, fmt)
	capture := iodev.NewOpenDevices()
	sched := New(playback, capture, nil)

	dry := rstream.New(rstream.Playback, fmt, 480, od, nil)
	full := rstream.New(rstream.Playback, fmt, 480, od, nil)
	writeSamples(t, full, 480, 2000<<16)

	sched.Attach(&Attachment{Dev: od, Stream: devstream.Create(dry, fmt)})
	sched.Attach(&Attachment{Dev: od, Stream: devstream.Create(full, fmt)})

	sched.RunPass(time.Unix(0, 0))

	if got := full.AvailFrames(); got != 0 {
		t.Fatalf("full stream AvailFrames after pass = %d, want 0", got)
	}
	if len(sched.streams) != 2 {
		t.Fatalf("both streams should remain attached, got %d", len(sched.streams))
	}
}

// TestDrainingStreamIsDroppedOnceEmpty is spec.md §7's graceful-drain
// behavior.
func TestDrainingStreamIsDroppedOnceEmpty(t *testing.T) {
	fmt := format.Format{SampleRate: 48000, Channels: 2, Encoding: format.S16LE}
	playback, od := openPlayback(t, fmt)
	capture := iodev.NewOpenDevices()
	sched := New(playback, capture, nil)

	s := rstream.New(rstream.Playback, fmt, 480, od, nil)
	writeSamples(t, s, 480, 500<<16)
	s.SetDraining()

	sched.Attach(&Attachment{Dev: od, Stream: devstream.Create(s, fmt)})
	sched.RunPass(time.Unix(0, 0))

	if len(sched.streams) != 0 {
		t.Fatalf("drained stream should be dropped, got %d remaining", len(sched.streams))
	}
}

// TestPassARequestsSamplesWhenDue is spec.md §4.1 Pass A: a stream whose
// SleepInterval has elapsed since the last request should be sent a
// TokenRequest, and its next_fetch_time should advance.
func TestPassARequestsSamplesWhenDue(t *testing.T) {
	fmt := format.Format{SampleRate: 48000, Channels: 2, Encoding: format.S16LE}
	playback, od := openPlayback(t, fmt)
	capture := iodev.NewOpenDevices()
	sched := New(playback, capture, nil)

	conn := &fakeConn{}
	stream := rstream.New(rstream.Playback, fmt, 480, od, conn)
	stream.SleepInterval = 10 * time.Millisecond
	writeSamples(t, stream, 480, 1000<<16)

	att := &Attachment{Dev: od, Stream: devstream.Create(stream, fmt)}
	sched.Attach(att)

	now := time.Unix(0, 0)
	sched.RunPass(now)

	if len(conn.sent) != 1 || conn.sent[0] != rstream.TokenRequest {
		t.Fatalf("sent tokens after first pass = %v, want [TokenRequest]", conn.sent)
	}

	// A second pass immediately after shouldn't re-request; SleepInterval
	// hasn't elapsed yet.
	sched.RunPass(now.Add(time.Millisecond))
	if len(conn.sent) != 1 {
		t.Fatalf("sent tokens after second immediate pass = %v, want still 1", conn.sent)
	}

	sched.RunPass(now.Add(10 * time.Millisecond))
	if len(conn.sent) != 2 {
		t.Fatalf("sent tokens after SleepInterval elapsed = %v, want 2", conn.sent)
	}
}

// TestPassADrainsStaleTokensFromClient is spec.md §4.1 Pass A: tokens the
// client already sent (buffer-ready) should be drained off the socket
// without blocking, rather than accumulating.
func TestPassADrainsStaleTokensFromClient(t *testing.T) {
	fmt := format.Format{SampleRate: 48000, Channels: 2, Encoding: format.S16LE}
	playback, od := openPlayback(t, fmt)
	capture := iodev.NewOpenDevices()
	sched := New(playback, capture, nil)

	conn := &fakeConn{toRecv: []rstream.Token{rstream.TokenBufferReady, rstream.TokenBufferReady}}
	stream := rstream.New(rstream.Playback, fmt, 480, od, conn)
	writeSamples(t, stream, 480, 1000<<16)

	att := &Attachment{Dev: od, Stream: devstream.Create(stream, fmt)}
	sched.Attach(att)

	sched.RunPass(time.Unix(0, 0))

	if len(conn.toRecv) != 0 {
		t.Fatalf("queued tokens after pass = %d, want 0", len(conn.toRecv))
	}
}

// TestPassAMarksStreamDrainingOnConnError covers spec.md §4.1 Pass A's
// error path: a client whose control socket fails should be marked
// draining rather than crashing the pass.
func TestPassAMarksStreamDrainingOnConnError(t *testing.T) {
	fmt := format.Format{SampleRate: 48000, Channels: 2, Encoding: format.S16LE}
	playback, od := openPlayback(t, fmt)
	capture := iodev.NewOpenDevices()
	sched := New(playback, capture, nil)

	conn := &fakeConn{sendErr: errors.New("broken pipe")}
	stream := rstream.New(rstream.Playback, fmt, 480, od, conn)
	stream.SleepInterval = 0
	writeSamples(t, stream, 480, 1000<<16)

	att := &Attachment{Dev: od, Stream: devstream.Create(stream, fmt)}
	sched.Attach(att)

	sched.RunPass(time.Unix(0, 0))

	if !stream.Draining() {
		t.Fatalf("stream should be marked draining after a control-socket error")
	}
}

// TestAdjustRateUpdatesDeviceEstimatorAndStreams is spec.md §4.1's
// coarse_rate_adjust wiring: a starved device (low occupancy) should push
// a positive coarse_adjust into the device's RateEstimator and raise the
// attached stream's effective dev rate above nominal.
func TestAdjustRateUpdatesDeviceEstimatorAndStreams(t *testing.T) {
	fmt := format.Format{SampleRate: 48000, Channels: 2, Encoding: format.S16LE}
	playback, od := openPlayback(t, fmt)
	capture := iodev.NewOpenDevices()
	sched := New(playback, capture, nil)

	stream := rstream.New(rstream.Playback, fmt, 480, od, nil)
	writeSamples(t, stream, 480, 1000<<16)
	ds := devstream.Create(stream, fmt)
	att := &Attachment{Dev: od, Stream: ds}
	sched.Attach(att)

	sched.adjustRate(od, 0, []*Attachment{att})

	if ds.DevRateHz() <= 48000 {
		t.Fatalf("devRateHz after starved adjustRate = %d, want >48000", ds.DevRateHz())
	}
}

// TestWriteStreamsCommitsShorterPlayingStreamLength is spec.md §4.1's
// write_streams: the device's committable length tracks the shorter of
// two playing streams that both have data, not the longer one.
func TestWriteStreamsCommitsShorterPlayingStreamLength(t *testing.T) {
	fmt := format.Format{SampleRate: 48000, Channels: 2, Encoding: format.S16LE}
	short := rstream.New(rstream.Playback, fmt, 480, nil, nil)
	long := rstream.New(rstream.Playback, fmt, 480, nil, nil)
	writeSamples(t, short, 100, 1000<<16)
	writeSamples(t, long, 300, 2000<<16)

	attachments := []*Attachment{
		{Stream: devstream.Create(short, fmt)},
		{Stream: devstream.Create(long, fmt)},
	}

	dst := make(format.Samples, 300*fmt.Channels)
	got := writeStreams(dst, 300, fmt.Channels, attachments)
	if got != 100 {
		t.Fatalf("writeStreams committed = %d, want 100 (shorter playing stream)", got)
	}
}

func TestNextWakeTimeClampedTo20s(t *testing.T) {
	fmt := format.Format{SampleRate: 48000, Channels: 2, Encoding: format.S16LE}
	playback, _ := openPlayback(t, fmt)
	capture := iodev.NewOpenDevices()
	sched := New(playback, capture, nil)

	now := time.Unix(1000, 0)
	wt := sched.NextWakeTime(now)
	if wt.Sub(now) != 20*time.Second {
		t.Fatalf("NextWakeTime delta = %v, want 20s", wt.Sub(now))
	}
}
