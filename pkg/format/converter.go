package format

import "github.com/oov/audio/resampler"

// To avoid reallocating per mix/capture call, buffers are sized for the
// worst case chunk a dev_stream is expected to hand the converter: a few
// callback periods at 48kHz stereo. Grounded on the teacher's
// audioformatconversiondevice.go bufferSize constant.
const workBufferFrames = 16384

const resampleQuality = 10

// Converter resamples and remaps channels between a stream's negotiated
// format and a device's format. It does not change sample width: Samples
// is always normalized int32 (see samples.go), so bit-depth conversion
// happens only at the SHM/hardware byte boundary via Decode/Encode.
//
// Converter is created once per dev_stream (spec.md §4.2 "create") and
// reused for the stream's lifetime; it is not safe for concurrent use,
// matching the single-audio-thread ownership model in spec.md §5.
type Converter struct {
	src, dst Format

	monoToStereo bool
	stereoToMono bool
	resample     bool

	resamplers []*resampler.Resampler

	floatSrc   [][]float32 // per-channel planar scratch, pre-remap
	floatMid   [][]float32 // per-channel planar scratch, post-remap pre-resample
	floatDst   [][]float32 // per-channel planar scratch, post-resample
	interleave []float32
	outBuf     Samples
}

// NewConverter builds a Converter from src to dst without checking whether
// they differ; callers should check src.Equal(dst) first and skip
// conversion entirely when formats match,
// per spec.md §4.2 ("build a format converter iff stream.fmt != dev_fmt").
func NewConverter(src, dst Format) *Converter {
	c := &Converter{src: src, dst: dst}

	if src.Channels == 1 && dst.Channels == 2 {
		c.monoToStereo = true
	}
	if src.Channels == 2 && dst.Channels == 1 {
		c.stereoToMono = true
	}
	if src.SampleRate != dst.SampleRate {
		c.resample = true
		midChannels := src.Channels
		if c.monoToStereo {
			midChannels = 2
		} else if c.stereoToMono {
			midChannels = 1
		}
		c.resamplers = make([]*resampler.Resampler, midChannels)
		for i := range c.resamplers {
			c.resamplers[i] = resampler.New(1, src.SampleRate, dst.SampleRate, resampleQuality)
		}
		c.floatMid = make([][]float32, midChannels)
		c.floatDst = make([][]float32, midChannels)
		for i := range c.floatMid {
			c.floatMid[i] = make([]float32, workBufferFrames)
			c.floatDst[i] = make([]float32, workBufferFrames)
		}
	}

	c.floatSrc = make([][]float32, src.Channels)
	for i := range c.floatSrc {
		c.floatSrc[i] = make([]float32, workBufferFrames)
	}
	c.interleave = make([]float32, workBufferFrames*dst.Channels)
	c.outBuf = make(Samples, workBufferFrames*dst.Channels)

	return c
}

// Convert maps srcSamples (interleaved, src.Channels wide, normalized int32)
// to the device's channel count and rate, returning interleaved normalized
// int32 samples. The returned slice aliases internal scratch space and is
// only valid until the next call to Convert.
func (c *Converter) Convert(srcSamples Samples) Samples {
	frames := len(srcSamples) / c.src.Channels
	if frames == 0 {
		return nil
	}
	if frames > workBufferFrames {
		frames = workBufferFrames
	}

	deinterleaveToFloat(c.floatSrc, srcSamples, c.src.Channels, frames)

	planar := c.floatSrc
	planarFrames := frames

	if c.monoToStereo {
		planar = [][]float32{planar[0], planar[0]}
	} else if c.stereoToMono {
		mono := c.floatSrc[0][:frames]
		for i := 0; i < frames; i++ {
			mono[i] = (c.floatSrc[0][i] + c.floatSrc[1][i]) / 2
		}
		planar = [][]float32{mono}
	}

	if c.resample {
		written := 0
		for ch := range planar {
			_, w := c.resamplers[ch].ProcessFloat32(0, planar[ch][:planarFrames], c.floatDst[ch])
			written = w
		}
		planar = c.floatDst
		planarFrames = written
	}

	out := c.interleave[:planarFrames*c.dst.Channels]
	interleaveFromFloat(out, planar, c.dst.Channels, planarFrames)
	return c.toNormalizedInt32(out)
}

func deinterleaveToFloat(dst [][]float32, src Samples, channels, frames int) {
	const scale = 1.0 / float32(1<<31)
	for ch := 0; ch < channels; ch++ {
		row := dst[ch]
		for i := 0; i < frames; i++ {
			row[i] = float32(src[i*channels+ch]) * scale
		}
	}
}

func interleaveFromFloat(dst []float32, src [][]float32, channels, frames int) {
	for ch := 0; ch < channels; ch++ {
		row := src[ch]
		for i := 0; i < frames; i++ {
			dst[i*channels+ch] = row[i]
		}
	}
}

// toNormalizedInt32 scales normalized float32 [-1,1) back to int32 full
// range, reusing c.outBuf to avoid allocating on the audio thread.
func (c *Converter) toNormalizedInt32(f []float32) Samples {
	const scale = float32(1 << 31)
	out := c.outBuf[:len(f)]
	for i, v := range f {
		s := int64(v * scale)
		out[i] = saturate32(s)
	}
	return out
}
