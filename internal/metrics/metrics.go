// Package metrics records the fetch-interval and underrun observability
// the spec keeps even though its non-goals exclude a full metrics/export
// surface (spec.md §9 Non-goals): it logs through log/slog at warn/info
// level rather than exporting counters to an external system, matching
// the teacher's logging-only observability approach throughout
// pkg/audiodevice (no metrics client is wired anywhere in the teacher or
// the rest of the pack).
package metrics

import (
	"log/slog"
	"time"
)

// Recorder accumulates simple counters per stream/device and logs
// notable events as they happen; it does not aggregate across a
// reporting window, consistent with spec.md's exclusion of a metrics
// pipeline.
type Recorder struct {
	log *slog.Logger

	underruns      map[string]uint64
	overruns       map[string]uint64
	longestFetches map[string]time.Duration
}

func New(log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		log:            log,
		underruns:      make(map[string]uint64),
		overruns:       make(map[string]uint64),
		longestFetches: make(map[string]time.Duration),
	}
}

// RecordUnderrun logs a device-level output underrun.
func (r *Recorder) RecordUnderrun(deviceID string) {
	r.underruns[deviceID]++
	r.log.Warn("metrics: output underrun", "device", deviceID, "count", r.underruns[deviceID])
}

// RecordOverrun logs a stream-level ring buffer overrun.
func (r *Recorder) RecordOverrun(streamID string, droppedFrames int) {
	r.overruns[streamID]++
	r.log.Warn("metrics: buffer overrun", "stream", streamID, "dropped_frames", droppedFrames, "count", r.overruns[streamID])
}

// RecordFetchInterval updates the longest observed gap between two
// successive fetches for a stream, logging only when it grows so normal
// steady-state operation doesn't spam the log.
func (r *Recorder) RecordFetchInterval(streamID string, interval time.Duration) {
	if prev, ok := r.longestFetches[streamID]; ok && interval <= prev {
		return
	}
	r.longestFetches[streamID] = interval
	r.log.Info("metrics: new longest fetch interval", "stream", streamID, "interval", interval)
}

func (r *Recorder) UnderrunCount(deviceID string) uint64 { return r.underruns[deviceID] }
func (r *Recorder) OverrunCount(streamID string) uint64  { return r.overruns[streamID] }
