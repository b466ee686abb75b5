package iodev

import (
	"github.com/sorad-project/sorad/pkg/format"
	"github.com/sorad-project/sorad/pkg/ids"
)

// State is the per-device lifecycle state from spec.md §4.3:
// CLOSED -> OPEN -> NO_STREAM_RUN <-> NORMAL_RUN -> CLOSED.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateNoStreamRun
	StateNormalRun
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateNoStreamRun:
		return "no_stream_run"
	case StateNormalRun:
		return "normal_run"
	default:
		return "unknown"
	}
}

// Base is embedded by every concrete Device implementation to supply the
// bookkeeping common to all backends (id, direction, negotiated format,
// open/running state), following the teacher's base-struct-embedding
// pattern seen across pkg/audiodevice/device/*.go (each concrete device
// embeds nothing explicit but repeats the same Close/properties
// boilerplate; here it's factored into Base since Go has no struct
// inheritance).
type Base struct {
	id         ids.DeviceID
	dir        Direction
	state      State
	negotiated format.Format
}

func NewBase(dir Direction) Base {
	return Base{id: ids.NewDeviceID(), dir: dir, state: StateClosed}
}

func (b *Base) ID() ids.DeviceID     { return b.id }
func (b *Base) Direction() Direction { return b.dir }
func (b *Base) IsOpen() bool         { return b.state != StateClosed }
func (b *Base) DevRunning() bool     { return b.state == StateNormalRun }
func (b *Base) State() State         { return b.state }
func (b *Base) Format() format.Format { return b.negotiated }

func (b *Base) MarkOpen(f format.Format) {
	b.negotiated = f
	b.state = StateNoStreamRun
}

func (b *Base) MarkClosed() {
	b.state = StateClosed
}

func (b *Base) MarkRunning() {
	if b.state == StateNoStreamRun {
		b.state = StateNormalRun
	}
}

func (b *Base) MarkIdle() {
	if b.state == StateNormalRun {
		b.state = StateNoStreamRun
	}
}
