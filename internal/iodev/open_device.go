package iodev

import (
	"container/list"
	"time"

	"github.com/sorad-project/sorad/pkg/ids"
)

// OpenDevice wraps a Device with the scheduling metadata internal/devio
// needs per pass: its next wake time, whether any stream is currently
// producing/consuming on it, and its rate estimator. This is the Go
// equivalent of the spec's intrusive doubly-linked list node — rather
// than embedding list pointers in the device struct (spec.md §9's
// cyclic-reference note), the device list itself is a container/list.List
// of *OpenDevice, which is the idiomatic Go substitute for an intrusive
// list.
type OpenDevice struct {
	Device Device

	WakeTime       time.Time
	InputStreaming bool // true once at least one stream is attached and running

	Rate *RateEstimator

	elem *list.Element
}

// OpenDevices is the live set of open devices, one list per direction so
// Pass A/B only walk playback devices and Pass C/D only walk capture
// devices (spec.md §4.1).
type OpenDevices struct {
	l *list.List
}

func NewOpenDevices() *OpenDevices {
	return &OpenDevices{l: list.New()}
}

func (ods *OpenDevices) Add(d Device) *OpenDevice {
	od := &OpenDevice{Device: d, Rate: NewRateEstimator()}
	od.elem = ods.l.PushBack(od)
	return od
}

func (ods *OpenDevices) Remove(od *OpenDevice) {
	if od.elem != nil {
		ods.l.Remove(od.elem)
		od.elem = nil
	}
}

// Each calls fn for every open device in insertion order. fn may return
// false to request removal of the device it was called with (matching
// spec.md's "device-level errors remove just that device" isolation
// rule); the removal happens after iteration completes so fn never
// observes a mutated list mid-walk.
func (ods *OpenDevices) Each(fn func(*OpenDevice) bool) {
	var toRemove []*OpenDevice
	for e := ods.l.Front(); e != nil; e = e.Next() {
		od := e.Value.(*OpenDevice)
		if !fn(od) {
			toRemove = append(toRemove, od)
		}
	}
	for _, od := range toRemove {
		ods.Remove(od)
	}
}

func (ods *OpenDevices) Len() int { return ods.l.Len() }

// Find returns the OpenDevice wrapping the device with the given id, or
// nil.
func (ods *OpenDevices) Find(id ids.DeviceID) *OpenDevice {
	for e := ods.l.Front(); e != nil; e = e.Next() {
		od := e.Value.(*OpenDevice)
		if od.Device.ID() == id {
			return od
		}
	}
	return nil
}
