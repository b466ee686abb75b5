package main

import (
	"log/slog"
	"time"

	"github.com/sorad-project/sorad/internal/boardconfig"
	"github.com/sorad-project/sorad/internal/devio"
	"github.com/sorad-project/sorad/internal/iodev"
	"github.com/sorad-project/sorad/internal/iodev/emptydev"
	"github.com/sorad-project/sorad/internal/metrics"
	"github.com/sorad-project/sorad/pkg/clock"
	"github.com/sorad-project/sorad/pkg/format"
)

// audioThread is the single goroutine that owns every iodev and
// dev_stream, per spec.md §5. All mutation of device/stream state happens
// here; other goroutines (the control socket server) only ever hand it
// work through controlMsgs, consumed between scheduler passes.
type audioThread struct {
	cfg     boardconfig.Config
	sched   *devio.Scheduler
	metrics *metrics.Recorder
	clk     clock.Clock

	controlMsgs chan controlMsg
	stopCh      chan struct{}
	doneCh      chan struct{}
}

func newAudioThread(cfg boardconfig.Config) (*audioThread, error) {
	playback := iodev.NewOpenDevices()
	capture := iodev.NewOpenDevices()

	// A null sink/source is always present so the scheduler has
	// somewhere to target even before any real hardware or loopback
	// device is configured, following spec.md's NO_STREAM_RUN-capable
	// device contract.
	nullSink := emptydev.New(iodev.Playback)
	fmt := format.Format{
		SampleRate: cfg.DefaultOutputSampleRate,
		Channels:   cfg.DefaultOutputChannels,
		Encoding:   encodingFromString(cfg.DefaultOutputEncoding),
	}
	if _, err := nullSink.OpenDev(fmt); err != nil {
		return nil, err
	}
	playback.Add(nullSink)

	nullSource := emptydev.New(iodev.Capture)
	inFmt := format.Format{
		SampleRate: cfg.DefaultInputSampleRate,
		Channels:   cfg.DefaultInputChannels,
		Encoding:   encodingFromString(cfg.DefaultInputEncoding),
	}
	if _, err := nullSource.OpenDev(inFmt); err != nil {
		return nil, err
	}
	capture.Add(nullSource)

	log := slog.Default().With("component", "audiothread")
	return &audioThread{
		cfg:         cfg,
		sched:       devio.New(playback, capture, log),
		metrics:     metrics.New(log),
		clk:         clock.Real,
		controlMsgs: make(chan controlMsg, 32),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

func encodingFromString(s string) format.Encoding {
	switch s {
	case "S24LE":
		return format.S24LE
	case "S32LE":
		return format.S32LE
	default:
		return format.S16LE
	}
}

// run is the scheduler loop: drain pending control messages, run one
// full Pass A-D, then sleep until the earliest device's next wake time
// (or a new control message arrives), per spec.md §4.1's wake-time model.
func (t *audioThread) run() {
	defer close(t.doneCh)
	for {
		select {
		case <-t.stopCh:
			return
		case msg := <-t.controlMsgs:
			msg.apply(t)
			continue
		default:
		}

		now := t.clk.Now()
		t.sched.RunPass(now)
		wake := t.sched.NextWakeTime(now)

		sleep := wake.Sub(t.clk.Now())
		if sleep < 0 {
			sleep = 0
		}
		timer := time.NewTimer(sleep)
		select {
		case <-t.stopCh:
			timer.Stop()
			return
		case msg := <-t.controlMsgs:
			timer.Stop()
			msg.apply(t)
		case <-timer.C:
		}
	}
}

func (t *audioThread) stop() {
	close(t.stopCh)
	<-t.doneCh
}

// post enqueues a control message for the audio thread to apply on its
// next loop iteration. Safe to call from any goroutine.
func (t *audioThread) post(msg controlMsg) {
	t.controlMsgs <- msg
}
