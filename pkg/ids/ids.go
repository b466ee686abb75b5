// Package ids provides identity types for streams and devices, grounded
// on the teacher's use of github.com/google/uuid for client/device
// identity (pkg/audiodevice/device/filedevice.go).
package ids

import "github.com/google/uuid"

// StreamID identifies one rstream for the lifetime of its client
// connection.
type StreamID uuid.UUID

func NewStreamID() StreamID { return StreamID(uuid.New()) }

func (id StreamID) String() string { return uuid.UUID(id).String() }

// DeviceID identifies one iodev across reconfiguration (an iodev keeps
// its DeviceID even if it's closed and reopened after a format change).
type DeviceID uuid.UUID

func NewDeviceID() DeviceID { return DeviceID(uuid.New()) }

func (id DeviceID) String() string { return uuid.UUID(id).String() }

// NodeID identifies one NodeInfo (a jack/port on a device), per spec.md
// §3's device/node distinction.
type NodeID uuid.UUID

func NewNodeID() NodeID { return NodeID(uuid.New()) }

func (id NodeID) String() string { return uuid.UUID(id).String() }
