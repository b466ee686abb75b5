// Package format describes audio sample formats and converts buffers between
// them: resampling, channel remapping, and sample-width scaling.
package format

import "fmt"

// Encoding identifies a linear PCM sample width. Only little-endian signed
// integer encodings are modelled; CRAS-style devices never see float samples
// on the wire.
type Encoding int

const (
	S16LE Encoding = 16
	S24LE Encoding = 24
	S32LE Encoding = 32
)

// BytesPerSample returns the wire width of one sample in this encoding.
// S24LE is packed in 3 bytes, matching ALSA's S24_3LE.
func (e Encoding) BytesPerSample() int {
	switch e {
	case S16LE:
		return 2
	case S24LE:
		return 3
	case S32LE:
		return 4
	default:
		return 0
	}
}

func (e Encoding) String() string {
	switch e {
	case S16LE:
		return "S16LE"
	case S24LE:
		return "S24LE"
	case S32LE:
		return "S32LE"
	default:
		return fmt.Sprintf("Encoding(%d)", int(e))
	}
}

// Format is the negotiated audio format of a stream or a device.
type Format struct {
	SampleRate int
	Channels   int
	Encoding   Encoding
}

// FrameBytes is channels * bytes_per_sample, per spec.md §3.
func (f Format) FrameBytes() int {
	return f.Channels * f.Encoding.BytesPerSample()
}

func (f Format) Equal(other Format) bool {
	return f.SampleRate == other.SampleRate && f.Channels == other.Channels && f.Encoding == other.Encoding
}
