package iodev

import (
	"github.com/sorad-project/sorad/pkg/format"
	"github.com/sorad-project/sorad/pkg/ids"
)

// Info is the wire-visible snapshot of a device for status/introspection
// tools (cmd/sorad-statusdump), per spec.md §6's external status surface.
type Info struct {
	ID        ids.DeviceID  `json:"id"`
	Direction Direction     `json:"direction"`
	Name      string        `json:"name"`
	Format    format.Format `json:"format"`
	State     State         `json:"state"`
	Nodes     []NodeInfo    `json:"nodes"`
}

// NodeInfo describes one jack/port exposed by a device. IodevIdx is a
// plain index into the device list rather than a pointer, per spec.md
// §9's guidance to break cyclic device<->node references with an index
// instead of carrying a back-pointer through the wire/status format.
type NodeInfo struct {
	ID       ids.NodeID `json:"id"`
	IodevIdx int        `json:"iodev_idx"`
	Name     string     `json:"name"`
	Plugged  bool       `json:"plugged"`
	Priority int        `json:"priority"`
}
