package iodev

import (
	"testing"

	"github.com/sorad-project/sorad/pkg/format"
)

func TestRateEstimatorClampsAndTracksDirection(t *testing.T) {
	r := NewRateEstimator()
	var last float64
	for i := 0; i < 1000; i++ {
		last = r.Update(1)
	}
	if last != r.maxPPM {
		t.Fatalf("ppm = %v, want clamped to %v", last, r.maxPPM)
	}

	r2 := NewRateEstimator()
	if got := r2.Update(0); got != 0 {
		t.Fatalf("zero adjust should leave ppm at 0, got %v", got)
	}
}

func TestCoarseRateAdjustDeadband(t *testing.T) {
	if got := CoarseRateAdjust(100, 100, 5); got != 0 {
		t.Fatalf("on target = %d, want 0", got)
	}
	if got := CoarseRateAdjust(80, 100, 5); got != 1 {
		t.Fatalf("running low = %d, want 1", got)
	}
	if got := CoarseRateAdjust(120, 100, 5); got != -1 {
		t.Fatalf("running high = %d, want -1", got)
	}
}

func TestOpenDevicesAddRemoveEach(t *testing.T) {
	ods := NewOpenDevices()
	d1 := &emptyTestDevice{Base: NewBase(Playback)}
	d2 := &emptyTestDevice{Base: NewBase(Playback)}
	ods.Add(d1)
	ods.Add(d2)

	if ods.Len() != 2 {
		t.Fatalf("Len = %d, want 2", ods.Len())
	}

	seen := 0
	ods.Each(func(od *OpenDevice) bool {
		seen++
		return true
	})
	if seen != 2 {
		t.Fatalf("Each visited %d, want 2", seen)
	}

	ods.Each(func(od *OpenDevice) bool {
		return od.Device.ID() != d1.ID()
	})
	if ods.Len() != 1 {
		t.Fatalf("Len after removal = %d, want 1", ods.Len())
	}
	if ods.Find(d2.ID()) == nil {
		t.Fatalf("d2 should remain")
	}
}

// emptyTestDevice is a minimal Device stub for exercising OpenDevices
// bookkeeping without pulling in a concrete backend package.
type emptyTestDevice struct {
	Base
}

func (d *emptyTestDevice) UpdateSupportedFormats() ([]format.Format, error) { return nil, nil }
func (d *emptyTestDevice) OpenDev(f format.Format) (format.Format, error)   { d.MarkOpen(f); return f, nil }
func (d *emptyTestDevice) CloseDev() error                                 { d.MarkClosed(); return nil }
func (d *emptyTestDevice) FramesQueued() (int, error)                      { return 0, nil }
func (d *emptyTestDevice) DelayFrames() (int, error)                       { return 0, nil }
func (d *emptyTestDevice) GetBuffer(maxFrames int) (format.Samples, int, error) {
	return nil, 0, nil
}
func (d *emptyTestDevice) PutBuffer(nframes int) error { return nil }
func (d *emptyTestDevice) OutputUnderrun() error       { return nil }
func (d *emptyTestDevice) NoStream() error             { return nil }
