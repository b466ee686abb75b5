// Package rstream implements the client-facing audio stream: identity,
// negotiated format, the shared-memory handle, and the SEQPACKET control
// socket that carries buffer-ready and request tokens
// (spec.md §3 "Client stream" and §6 "Stream control socket").
//
// Grounded on the teacher's internal/audiomanager/processingstream.go for
// the notion of a per-connection format-matching stage between a client
// and the shared audio pipeline, generalized here from a goroutine+channel
// pipeline stage to a struct the single audio thread pulls from directly
// (spec.md §5's single-audio-thread ownership model forbids a stream
// owning its own goroutine).
package rstream

import (
	"time"

	"github.com/sorad-project/sorad/internal/iodev"
	"github.com/sorad-project/sorad/pkg/format"
	"github.com/sorad-project/sorad/pkg/ids"
	"github.com/sorad-project/sorad/pkg/shm"
)

// Direction mirrors iodev.Direction for the stream side: a playback
// stream feeds a sink device, a capture stream drains a source device.
type Direction = iodev.Direction

const (
	Playback = iodev.Playback
	Capture  = iodev.Capture
)

// Token is the message rstream exchanges with the client over the
// SEQPACKET control socket, per spec.md §6's 0x01/0x02 token protocol.
type Token byte

const (
	// TokenBufferReady is sent client->daemon (playback) once new data
	// has been published into the SHM ring, or daemon->client (capture)
	// once newly captured data is ready to read.
	TokenBufferReady Token = 0x01
	// TokenRequest is sent daemon->client only, during Pass A
	// (playback_fetch): "top up your write side of the ring, the audio
	// thread is about to run low." There is no client->daemon use of
	// this token.
	TokenRequest Token = 0x02
)

// earlyWakeFuzz lets Pass A treat a stream as due for a fetch request a
// touch before its computed deadline, so a stream whose next_fetch_time
// lands a few hundred microseconds past "now" isn't skipped only to fire
// on the very next pass anyway (spec.md §4.1 Pass A).
const earlyWakeFuzz = 500 * time.Microsecond

// Stream is one client's audio connection.
type Stream struct {
	ID        ids.StreamID
	Direction Direction
	Format    format.Format

	// CallbackThreshold is the number of frames the client wants to be
	// notified about at a time (its preferred wakeup granularity).
	CallbackThreshold int
	// SleepInterval is how long the client expects to sleep between
	// callbacks at its chosen buffer size and format.
	SleepInterval time.Duration

	// MasterDevice is the device this stream is currently attached to.
	// A stream may be reassigned to a different device of the same
	// direction (e.g. on hot-plug), but never changes direction.
	MasterDevice *iodev.OpenDevice

	Ring *shm.Buffer

	Conn Conn

	draining             bool
	longestFetchInterval time.Duration
	lastFetchTime        time.Time
	nextFetchTime        time.Time
}

// Conn abstracts the SEQPACKET control socket so tests can substitute an
// in-memory pipe instead of a real unix socket.
type Conn interface {
	SendToken(Token) error
	RecvToken() (Token, error)
	// TryRecvToken is RecvToken's non-blocking sibling: ok is false and
	// err is nil when nothing is queued. Pass A (spec.md §4.1) must
	// never block the audio thread, so it drains pending tokens with
	// this instead of RecvToken.
	TryRecvToken() (Token, bool, error)
	Close() error
}

// New creates a stream attached to dev, with a SHM ring sized to hold at
// least 2x the callback threshold so the client always has somewhere to
// write/read while the daemon is mid-pass on the other half.
func New(dir Direction, fmt format.Format, callbackThreshold int, dev *iodev.OpenDevice, conn Conn) *Stream {
	capacityFrames := callbackThreshold * 4
	ring := shm.New(capacityFrames, fmt.FrameBytes())
	return &Stream{
		ID:                ids.NewStreamID(),
		Direction:         dir,
		Format:            fmt,
		CallbackThreshold: callbackThreshold,
		MasterDevice:      dev,
		Ring:              ring,
		Conn:              conn,
	}
}

// Draining reports whether the stream has been told it will receive no
// more data (client disconnecting gracefully) and should be dropped once
// its buffered data is exhausted.
func (s *Stream) Draining() bool { return s.draining }

// SetDraining marks the stream as draining; the scheduler keeps pulling
// from it until QueuedFrames reaches zero, then removes it (spec.md §7's
// graceful-drain requirement, distinct from an abrupt client crash).
func (s *Stream) SetDraining() { s.draining = true }

// AvailFrames is how many frames are ready for the audio thread to
// consume (capture: readable; playback: the producer has published).
func (s *Stream) AvailFrames() int {
	return s.Ring.QueuedFrames()
}

// WritableFrames is how much room the client still has to write into
// (playback) or the daemon has to write into (capture).
func (s *Stream) WritableFrames() int {
	return s.Ring.WritableFrames()
}

// RecordFetch updates the longest observed interval between two
// successive audio-thread reads of this stream, used by internal/metrics
// to flag streams that are starving their buffer.
func (s *Stream) RecordFetch(now time.Time) {
	if !s.lastFetchTime.IsZero() {
		if gap := now.Sub(s.lastFetchTime); gap > s.longestFetchInterval {
			s.longestFetchInterval = gap
		}
	}
	s.lastFetchTime = now
}

func (s *Stream) LongestFetchInterval() time.Duration { return s.longestFetchInterval }

// NotifyClient sends a buffer-ready token to the client and is a no-op if
// no Conn is attached (used in scheduler-only unit tests).
func (s *Stream) NotifyClient() error {
	if s.Conn == nil {
		return nil
	}
	return s.Conn.SendToken(TokenBufferReady)
}

// CanFetch is Pass A's can_fetch gate (spec.md §4.1): true once the
// stream has never been asked, or its self-reported SleepInterval has
// elapsed (within earlyWakeFuzz) since the last request, so a client that
// asked for a large buffer isn't pestered every pass.
func (s *Stream) CanFetch(now time.Time) bool {
	if s.nextFetchTime.IsZero() {
		return true
	}
	return !now.Add(earlyWakeFuzz).Before(s.nextFetchTime)
}

// AdvanceNextFetchTime records that a fetch request was just sent and
// schedules the next one no sooner than SleepInterval from now.
func (s *Stream) AdvanceNextFetchTime(now time.Time) {
	s.nextFetchTime = now.Add(s.SleepInterval)
}

// DrainPendingToken consumes every token currently queued from the
// client, if any, without blocking. The audio thread always re-derives
// real state from the SHM ring counters, not the token itself — this
// just keeps stale buffer-ready signals from piling up on the control
// socket ahead of Pass A's own decision of whether to request more data.
func (s *Stream) DrainPendingToken() error {
	if s.Conn == nil {
		return nil
	}
	for {
		_, ok, err := s.Conn.TryRecvToken()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

// RequestSamples sends the daemon->client "request playback samples"
// token (spec.md §6's TokenRequest), asking the client to top up its
// ring before the audio thread runs dry.
func (s *Stream) RequestSamples() error {
	if s.Conn == nil {
		return nil
	}
	return s.Conn.SendToken(TokenRequest)
}
