package rstream

import (
	"testing"
	"time"

	"github.com/sorad-project/sorad/pkg/format"
)

func newTestStream(t *testing.T, dir Direction) *Stream {
	t.Helper()
	fmt := format.Format{SampleRate: 48000, Channels: 2, Encoding: format.S16LE}
	return New(dir, fmt, 480, nil, &memConn{})
}

func TestNewStreamRingSizedForDoubleBuffering(t *testing.T) {
	s := newTestStream(t, Playback)
	if got := s.Ring.CapacityFrames(); got < 480*2 {
		t.Fatalf("ring capacity = %d, want at least %d", got, 480*2)
	}
}

func TestDrainingDefaultsFalse(t *testing.T) {
	s := newTestStream(t, Playback)
	if s.Draining() {
		t.Fatalf("new stream should not be draining")
	}
	s.SetDraining()
	if !s.Draining() {
		t.Fatalf("SetDraining should mark stream as draining")
	}
}

func TestAvailAndWritableFramesTrackRing(t *testing.T) {
	s := newTestStream(t, Playback)
	if got := s.AvailFrames(); got != 0 {
		t.Fatalf("AvailFrames on empty ring = %d, want 0", got)
	}
	area, n := s.Ring.GetWriteArea(100)
	if n != 100 {
		t.Fatalf("got %d writable frames, want 100", n)
	}
	_ = area
	if err := s.Ring.CommitWrite(n); err != nil {
		t.Fatalf("CommitWrite: %v", err)
	}
	if got := s.AvailFrames(); got != 100 {
		t.Fatalf("AvailFrames after commit = %d, want 100", got)
	}
}

func TestRecordFetchTracksLongestInterval(t *testing.T) {
	s := newTestStream(t, Capture)
	base := time.Unix(0, 0)

	s.RecordFetch(base)
	s.RecordFetch(base.Add(10 * time.Millisecond))
	s.RecordFetch(base.Add(10*time.Millisecond + 50*time.Millisecond))

	if got := s.LongestFetchInterval(); got != 50*time.Millisecond {
		t.Fatalf("LongestFetchInterval = %v, want 50ms", got)
	}
}

func TestNotifyClientSendsToken(t *testing.T) {
	s := newTestStream(t, Playback)
	if err := s.NotifyClient(); err != nil {
		t.Fatalf("NotifyClient: %v", err)
	}
	mc := s.Conn.(*memConn)
	if len(mc.sent) != 1 || mc.sent[0] != TokenBufferReady {
		t.Fatalf("sent tokens = %v, want [TokenBufferReady]", mc.sent)
	}
}

func TestRequestSamplesSendsTokenRequest(t *testing.T) {
	s := newTestStream(t, Playback)
	if err := s.RequestSamples(); err != nil {
		t.Fatalf("RequestSamples: %v", err)
	}
	mc := s.Conn.(*memConn)
	if len(mc.sent) != 1 || mc.sent[0] != TokenRequest {
		t.Fatalf("sent tokens = %v, want [TokenRequest]", mc.sent)
	}
}

func TestCanFetchTrueUntilDeadline(t *testing.T) {
	s := newTestStream(t, Playback)
	s.SleepInterval = 10 * time.Millisecond
	now := time.Unix(0, 0)

	if !s.CanFetch(now) {
		t.Fatalf("a stream that has never been asked should be fetchable")
	}
	s.AdvanceNextFetchTime(now)

	if s.CanFetch(now.Add(time.Millisecond)) {
		t.Fatalf("CanFetch should be false well before SleepInterval elapses")
	}
	if !s.CanFetch(now.Add(10 * time.Millisecond)) {
		t.Fatalf("CanFetch should be true once SleepInterval has elapsed")
	}
	if !s.CanFetch(now.Add(10*time.Millisecond - earlyWakeFuzz)) {
		t.Fatalf("CanFetch should tolerate waking earlyWakeFuzz early")
	}
}

func TestDrainPendingTokenConsumesQueuedTokens(t *testing.T) {
	s := newTestStream(t, Playback)
	mc := s.Conn.(*memConn)
	mc.toRecv = []Token{TokenBufferReady, TokenBufferReady}

	if err := s.DrainPendingToken(); err != nil {
		t.Fatalf("DrainPendingToken: %v", err)
	}
	if len(mc.toRecv) != 0 {
		t.Fatalf("DrainPendingToken left %d tokens queued, want 0", len(mc.toRecv))
	}
}
