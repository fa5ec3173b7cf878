// Package codec decodes the compressed sample formats found in sample
// directories: Nintendo DSP-ADPCM (GameCube), N64 VADPCM and raw 16-bit PCM
// in either byte order.
//
// All decoders work one frame at a time and carry the predictor history in
// caller owned variables, so a voice can stop, seek to a loop start and
// restore the history it saved there.
package codec

const (
	// DSPFrameBytes is the size of one DSP-ADPCM frame: a header byte and 7
	// bytes of nibbles.
	DSPFrameBytes = 8
	// DSPFrameSamples is the number of samples decoded from one frame.
	DSPFrameSamples = 14
)

// DSPCoefs holds the eight predictor coefficient pairs of a DSP-ADPCM sample
// in 5.11 fixed point.
type DSPCoefs = [8][2]int16

func signNibble(n byte) int32 {
	v := int32(n & 0xf)
	if v >= 8 {
		v -= 16
	}
	return v
}

func clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// DSPDecodeFrame decodes up to len(out) (at most 14) samples of a single
// frame, updating hist1 (the previous sample) and hist2 (the one before).
// It returns the number of samples written.
func DSPDecodeFrame(out []int16, frame []byte, coefs *DSPCoefs, hist1, hist2 *int16) int {
	return DSPDecodeFrameRange(out, frame, coefs, hist1, hist2, 0)
}

// DSPDecodeFrameRange is DSPDecodeFrame starting at sample index first of
// the frame. Samples before first are decoded to advance the history but not
// written.
func DSPDecodeFrameRange(out []int16, frame []byte, coefs *DSPCoefs, hist1, hist2 *int16, first int) int {
	if len(frame) < DSPFrameBytes {
		return 0
	}
	header := frame[0]
	coefIdx := (header >> 4) & 0x7
	exp := uint(header & 0xf)
	c1 := int32(coefs[coefIdx][0])
	c2 := int32(coefs[coefIdx][1])
	h1, h2 := int32(*hist1), int32(*hist2)
	written := 0
	for i := 0; i < DSPFrameSamples && written < len(out); i++ {
		b := frame[1+i/2]
		nib := b >> 4
		if i&1 == 1 {
			nib = b
		}
		v := ((signNibble(nib) << exp) << 11) + 1024 + c1*h1 + c2*h2
		s := clamp16(v >> 11)
		h2, h1 = h1, int32(s)
		if i >= first {
			out[written] = s
			written++
		}
	}
	*hist1, *hist2 = int16(h1), int16(h2)
	return written
}

// DSPDecode decodes numSamples samples starting at the beginning of data into
// out, frame after frame. It returns the number of samples written.
func DSPDecode(out []int16, data []byte, numSamples int, coefs *DSPCoefs, hist1, hist2 *int16) int {
	written := 0
	for off := 0; written < numSamples && written < len(out) && off+DSPFrameBytes <= len(data); off += DSPFrameBytes {
		end := min(len(out), numSamples)
		written += DSPDecodeFrame(out[written:end], data[off:], coefs, hist1, hist2)
	}
	return written
}

// DSPFrameOf returns the frame index holding sample and the sample's index
// within that frame.
func DSPFrameOf(sample int) (frame, index int) {
	return sample / DSPFrameSamples, sample % DSPFrameSamples
}
