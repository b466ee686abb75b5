// Package filedev implements a capture device that reads from a WAV file
// instead of real hardware, and a playback device that writes one out,
// for use as fixtures. No board config key selects or configures these
// devices.
//
// Grounded on the teacher's pkg/audiodevice/device/filedevice.go
// (FileAudioInputDevice/FileAudioOutputDevice), adapted from its
// ticker-paced push-channel model to iodev.Device's pull/buffer-handle
// model: the scheduler, not a goroutine ticker, decides when to pull the
// next chunk.
package filedev

import (
	"errors"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/sorad-project/sorad/internal/iodev"
	"github.com/sorad-project/sorad/pkg/format"
)

// CaptureDevice loops a WAV file as a capture source.
type CaptureDevice struct {
	iodev.Base

	path    string
	file    *os.File
	decoder *wav.Decoder
	pcm     *goaudio.IntBuffer
	pos     int
	loop    bool

	fileFormat format.Format
	scratch    format.Samples
}

func NewCapture(path string, loop bool) (*CaptureDevice, error) {
	d := &CaptureDevice{Base: iodev.NewBase(iodev.Capture), path: path, loop: loop}
	if err := d.load(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *CaptureDevice) load() error {
	f, err := os.Open(d.path)
	if err != nil {
		return err
	}
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return errors.New("filedev: not a valid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		f.Close()
		return err
	}
	d.file = f
	d.decoder = dec
	d.pcm = buf
	d.fileFormat = format.Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		Encoding:   bitDepthToEncoding(int(dec.BitDepth)),
	}
	return nil
}

func bitDepthToEncoding(bits int) format.Encoding {
	switch bits {
	case 24:
		return format.S24LE
	case 32:
		return format.S32LE
	default:
		return format.S16LE
	}
}

func (d *CaptureDevice) UpdateSupportedFormats() ([]format.Format, error) {
	return []format.Format{d.fileFormat}, nil
}

func (d *CaptureDevice) OpenDev(f format.Format) (format.Format, error) {
	d.MarkOpen(d.fileFormat)
	d.scratch = make(format.Samples, len(d.pcm.Data))
	shift := uint(32 - int(d.decoder.BitDepth))
	for i, v := range d.pcm.Data {
		d.scratch[i] = int32(v) << shift
	}
	return d.fileFormat, nil
}

func (d *CaptureDevice) CloseDev() error {
	d.MarkClosed()
	return d.file.Close()
}

func (d *CaptureDevice) FramesQueued() (int, error) {
	return (len(d.scratch) - d.pos) / d.fileFormat.Channels, nil
}

func (d *CaptureDevice) DelayFrames() (int, error) { return 0, nil }

func (d *CaptureDevice) GetBuffer(maxFrames int) (format.Samples, int, error) {
	ch := d.fileFormat.Channels
	remaining := (len(d.scratch) - d.pos) / ch
	if remaining == 0 {
		if !d.loop {
			return nil, 0, io.EOF
		}
		d.pos = 0
		remaining = len(d.scratch) / ch
	}
	frames := maxFrames
	if frames > remaining {
		frames = remaining
	}
	return d.scratch[d.pos : d.pos+frames*ch], frames, nil
}

func (d *CaptureDevice) PutBuffer(nframes int) error {
	d.pos += nframes * d.fileFormat.Channels
	return nil
}

func (d *CaptureDevice) OutputUnderrun() error { return nil }
func (d *CaptureDevice) NoStream() error       { return nil }

// PlaybackDevice writes playback output to a WAV file, so a fixture can
// inspect what the scheduler played.
type PlaybackDevice struct {
	iodev.Base

	path    string
	file    *os.File
	encoder *wav.Encoder
	pending format.Samples
}

func NewPlayback(path string, fmt format.Format) (*PlaybackDevice, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	enc := wav.NewEncoder(f, fmt.SampleRate, int(fmt.Encoding), fmt.Channels, 1)
	d := &PlaybackDevice{Base: iodev.NewBase(iodev.Playback), path: path, file: f, encoder: enc}
	d.MarkOpen(fmt)
	return d, nil
}

func (d *PlaybackDevice) UpdateSupportedFormats() ([]format.Format, error) {
	return []format.Format{d.Format()}, nil
}

func (d *PlaybackDevice) OpenDev(f format.Format) (format.Format, error) {
	d.MarkOpen(f)
	return f, nil
}

func (d *PlaybackDevice) CloseDev() error {
	d.MarkClosed()
	if err := d.encoder.Close(); err != nil {
		d.file.Close()
		return err
	}
	return d.file.Close()
}

func (d *PlaybackDevice) FramesQueued() (int, error) { return 0, nil }
func (d *PlaybackDevice) DelayFrames() (int, error)  { return 0, nil }

func (d *PlaybackDevice) GetBuffer(maxFrames int) (format.Samples, int, error) {
	fmt := d.Format()
	d.pending = make(format.Samples, maxFrames*fmt.Channels)
	return d.pending, maxFrames, nil
}

func (d *PlaybackDevice) PutBuffer(nframes int) error {
	fmt := d.Format()
	n := nframes * fmt.Channels
	if n > len(d.pending) {
		n = len(d.pending)
	}
	shift := uint(32 - int(fmt.Encoding))
	data := make([]int, n)
	for i := 0; i < n; i++ {
		data[i] = int(d.pending[i] >> shift)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{SampleRate: fmt.SampleRate, NumChannels: fmt.Channels},
		Data:           data,
		SourceBitDepth: int(fmt.Encoding),
	}
	return d.encoder.Write(buf)
}

func (d *PlaybackDevice) OutputUnderrun() error { return nil }
func (d *PlaybackDevice) NoStream() error       { return nil }
