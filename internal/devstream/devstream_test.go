package devstream

import (
	"testing"
	"time"

	"github.com/sorad-project/sorad/internal/rstream"
	"github.com/sorad-project/sorad/pkg/format"
)

func newPlaybackStream(t *testing.T, fmt format.Format) *rstream.Stream {
	t.Helper()
	return rstream.New(rstream.Playback, fmt, 480, nil, nil)
}

func writeTone(t *testing.T, s *rstream.Stream, frames int, value int32) {
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

func TestMixIdentityFormatAddsSamples(t *testing.T) {
	fmt := format.Format{SampleRate: 48000, Channels: 2, Encoding: format.S16LE}
	s := newPlaybackStream(t, fmt)
	writeTone(t, s, 10, 1000<<16)

	ds := Create(s, fmt)
	dst := make(format.Samples, 10*fmt.Channels)

	n, err := ds.Mix(dst, 10)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if n != 10 {
		t.Fatalf("Mix returned %d frames, want 10", n)
	}
	for i, v := range dst {
		if v != 1000<<16 {
			t.Fatalf("sample %d = %d, want %d", i, v, 1000<<16)
		}
	}
}

func TestMixOnEmptyStreamReturnsZero(t *testing.T) {
	fmt := format.Format{SampleRate: 48000, Channels: 2, Encoding: format.S16LE}
	s := newPlaybackStream(t, fmt)
	ds := Create(s, fmt)
	dst := make(format.Samples, 10*fmt.Channels)

	n, err := ds.Mix(dst, 10)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if n != 0 {
		t.Fatalf("Mix on empty stream returned %d, want 0", n)
	}
}

func TestWakeTimeZeroWhenDrained(t *testing.T) {
	fmt := format.Format{SampleRate: 48000, Channels: 2, Encoding: format.S16LE}
	s := newPlaybackStream(t, fmt)
	ds := Create(s, fmt)

	now := time.Unix(100, 0)
	if wt := ds.WakeTime(now); !wt.Equal(now) {
		t.Fatalf("WakeTime on drained stream = %v, want %v", wt, now)
	}
}

func TestWakeTimeAccountsForQueuedFramesAndDelay(t *testing.T) {
	fmt := format.Format{SampleRate: 48000, Channels: 2, Encoding: format.S16LE}
	s := rstream.New(rstream.Playback, fmt, 12000, nil, nil) // ring capacity 48000 frames
	writeTone(t, s, 48000, 0)                                // 1 second queued

	ds := Create(s, fmt)
	ds.SetDelay(0)
	ds.SetDevRate(48000, 1.0, 1.0, 0)

	now := time.Unix(100, 0)
	wt := ds.WakeTime(now)
	if wt.Sub(now) != time.Second {
		t.Fatalf("WakeTime delta = %v, want 1s", wt.Sub(now))
	}
}

func TestCaptureConvertsAndFillsRing(t *testing.T) {
	fmt := format.Format{SampleRate: 48000, Channels: 2, Encoding: format.S16LE}
	s := rstream.New(rstream.Capture, fmt, 480, nil, nil)
	ds := Create(s, fmt)

	src := make(format.Samples, 10*fmt.Channels)
	for i := range src {
		src[i] = 500 << 16
	}
	n, err := ds.Capture(src, 10)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if n != 10 {
		t.Fatalf("Capture wrote %d frames, want 10", n)
	}
	if got := s.AvailFrames(); got != 10 {
		t.Fatalf("AvailFrames = %d, want 10", got)
	}
}

func TestCaptureOverrunsWhenClientHasNotDrained(t *testing.T) {
	fmt := format.Format{SampleRate: 48000, Channels: 2, Encoding: format.S16LE}
	s := rstream.New(rstream.Capture, fmt, 480, nil, nil) // ring capacity 1920 frames
	ds := Create(s, fmt)

	capacity := s.Ring.CapacityFrames()
	area, n := s.Ring.GetWriteArea(capacity - 5)
	if n != capacity-5 {
		t.Fatalf("got %d writable frames priming the ring, want %d", n, capacity-5)
	}
	if err := s.Ring.CommitWrite(n); err != nil {
		t.Fatalf("CommitWrite: %v", err)
	}

	src := make(format.Samples, 10*fmt.Channels)
	if _, err := ds.Capture(src, 10); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	if got := s.Ring.OverrunCount(); got != 1 {
		t.Fatalf("OverrunCount = %d, want 1", got)
	}
}

func TestSetDevRateAppliesCoarseAdjustAndRatio(t *testing.T) {
	fmt := format.Format{SampleRate: 48000, Channels: 2, Encoding: format.S16LE}
	s := newPlaybackStream(t, fmt)
	ds := Create(s, fmt)

	ds.SetDevRate(48000, 1.0, 1.0, 0)
	if ds.devRateHz != 48000 {
		t.Fatalf("devRateHz = %d, want 48000 with no adjustment", ds.devRateHz)
	}

	ds.SetDevRate(48000, 1.0, 1.0, 1)
	if ds.devRateHz <= 48000 {
		t.Fatalf("devRateHz = %d, want >48000 for +1 coarse_adjust", ds.devRateHz)
	}

	ds.SetDevRate(48000, 1.0, 1.0, -1)
	if ds.devRateHz >= 48000 {
		t.Fatalf("devRateHz = %d, want <48000 for -1 coarse_adjust", ds.devRateHz)
	}

	ds.SetDevRate(48000, 1.0, 2.0, 0)
	if ds.devRateHz != 24000 {
		t.Fatalf("devRateHz = %d, want 24000 when master_ratio halves the effective rate", ds.devRateHz)
	}
}
