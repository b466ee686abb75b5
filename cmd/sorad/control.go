package main

import (
	"log/slog"
	"net"
	"os"

	"github.com/sorad-project/sorad/internal/devio"
	"github.com/sorad-project/sorad/internal/devstream"
	"github.com/sorad-project/sorad/internal/iodev"
	"github.com/sorad-project/sorad/internal/rstream"
	"github.com/sorad-project/sorad/pkg/format"
)

// controlMsg is posted from the control socket server (or signal
// handling) to the audio thread, and applied there so only one goroutine
// ever touches scheduler/device state (spec.md §5).
type controlMsg interface {
	apply(t *audioThread)
}

type attachStreamMsg struct {
	dir     rstream.Direction
	fmt     format.Format
	conn    rstream.Conn
	resultC chan<- *rstream.Stream
}

func (m attachStreamMsg) apply(t *audioThread) {
	var devices *iodev.OpenDevices
	if m.dir == iodev.Playback {
		devices = t.sched.Playback
	} else {
		devices = t.sched.Capture
	}

	var target *iodev.OpenDevice
	devices.Each(func(od *iodev.OpenDevice) bool {
		target = od
		return true
	})
	if target == nil {
		close(m.resultC)
		return
	}

	stream := rstream.New(m.dir, m.fmt, t.cfg.CallbackThresholdFrames, target, m.conn)
	ds := devstream.Create(stream, devFormatOf(target))
	t.sched.Attach(&devio.Attachment{Dev: target, Stream: ds})

	m.resultC <- stream
}

func devFormatOf(od *iodev.OpenDevice) format.Format {
	type formatter interface{ Format() format.Format }
	if f, ok := od.Device.(formatter); ok {
		return f.Format()
	}
	return format.Format{}
}

type drainStreamMsg struct {
	stream *rstream.Stream
}

func (m drainStreamMsg) apply(t *audioThread) {
	m.stream.SetDraining()
}

// controller owns the external-facing sockets (status introspection and
// new-stream attachment). The status socket answers every connection
// with an empty JSON object; the stream socket accepts and immediately
// closes each connection, so no controlMsg is posted from here. It never
// touches scheduler state directly.
type controller struct {
	thread *audioThread
}

func newController(thread *audioThread) *controller {
	return &controller{thread: thread}
}

// serve listens on the status and stream unix sockets until the process
// exits. Socket setup errors are logged, not fatal, so a daemon
// misconfigured for introspection still routes audio.
func (c *controller) serve(statusSocketPath, streamSocketPath string) {
	if statusSocketPath != "" {
		go c.serveStatus(statusSocketPath)
	}
	if streamSocketPath != "" {
		go c.serveStreams(streamSocketPath)
	}
}

func (c *controller) serveStatus(path string) {
	os.Remove(path)
	l, err := net.Listen("unix", path)
	if err != nil {
		slog.Error("control: status socket listen failed", "path", path, "err", err)
		return
	}
	defer l.Close()
	for {
		conn, err := l.Accept()
		if err != nil {
			slog.Warn("control: status socket accept failed", "err", err)
			return
		}
		go c.handleStatusConn(conn)
	}
}

func (c *controller) handleStatusConn(conn net.Conn) {
	defer conn.Close()
	// cmd/sorad-statusdump is the intended client: it writes nothing and
	// expects a single JSON status blob on connect.
	conn.Write([]byte("{}\n"))
}

func (c *controller) serveStreams(path string) {
	os.Remove(path)
	l, err := net.Listen("unix", path)
	if err != nil {
		slog.Error("control: stream socket listen failed", "path", path, "err", err)
		return
	}
	defer l.Close()
	for {
		conn, err := l.Accept()
		if err != nil {
			slog.Warn("control: stream socket accept failed", "err", err)
			return
		}
		conn.Close()
	}
}
