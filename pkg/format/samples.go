package format

import "math"

// Samples is an interleaved buffer of PCM samples normalized to full
// int32 range (a S16LE sample of 1 is stored as 1<<16, S24LE as 1<<8,
// and so on). Normalizing lets dev_io mix streams of different hardware
// bit depths with one saturating-add implementation instead of one per
// encoding, and keeps devstream's converter working in a single fixed-point
// domain between the channel remap and resample stages.
type Samples []int32

func normalizeShift(enc Encoding) uint {
	return uint(32 - enc.BytesPerSample()*8)
}

// Decode unpacks frames worth of raw little-endian PCM bytes of the given
// encoding into dst, which must have at least frames*channels capacity.
// Returns the number of samples decoded.
func Decode(dst Samples, src []byte, enc Encoding, channels int) int {
	bps := enc.BytesPerSample()
	n := len(src) / bps
	if n > len(dst) {
		n = len(dst)
	}
	shift := normalizeShift(enc)
	for i := 0; i < n; i++ {
		off := i * bps
		var v int32
		switch enc {
		case S16LE:
			v = int32(int16(uint16(src[off]) | uint16(src[off+1])<<8))
		case S24LE:
			raw := uint32(src[off]) | uint32(src[off+1])<<8 | uint32(src[off+2])<<16
			if raw&0x800000 != 0 {
				raw |= 0xFF000000
			}
			v = int32(raw)
		case S32LE:
			v = int32(uint32(src[off]) | uint32(src[off+1])<<8 | uint32(src[off+2])<<16 | uint32(src[off+3])<<24)
		}
		dst[i] = v << shift
	}
	return n
}

// Encode packs src samples into dst as little-endian PCM of the given
// encoding. Returns the number of bytes written.
func Encode(dst []byte, src Samples, enc Encoding) int {
	bps := enc.BytesPerSample()
	n := len(dst) / bps
	if n > len(src) {
		n = len(src)
	}
	shift := normalizeShift(enc)
	for i := 0; i < n; i++ {
		v := uint32(src[i] >> shift)
		off := i * bps
		switch enc {
		case S16LE:
			dst[off] = byte(v)
			dst[off+1] = byte(v >> 8)
		case S24LE:
			dst[off] = byte(v)
			dst[off+1] = byte(v >> 8)
			dst[off+2] = byte(v >> 16)
		case S32LE:
			dst[off] = byte(v)
			dst[off+1] = byte(v >> 8)
			dst[off+2] = byte(v >> 16)
			dst[off+3] = byte(v >> 24)
		}
	}
	return n * bps
}

// MixAdd adds src into dst sample-by-sample with saturation, per spec.md
// §4.1 write_streams ("mix ... by adding (with saturation)"). dst and src
// need not be the same length; only the overlapping prefix is mixed.
func MixAdd(dst, src Samples) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		sum := int64(dst[i]) + int64(src[i])
		dst[i] = saturate32(sum)
	}
}

func saturate32(v int64) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

// Zero fills dst with silence.
func Zero(dst Samples) {
	for i := range dst {
		dst[i] = 0
	}
}
