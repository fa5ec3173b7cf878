package codec

const (
	// VADPCMFrameBytes is the size of one VADPCM frame: a header byte and 8
	// bytes of nibbles.
	VADPCMFrameBytes = 9
	// VADPCMFrameSamples is the number of samples decoded from one frame.
	VADPCMFrameSamples = 16
)

// VADPCMBook is an order 2 codebook with up to 16 predictors, each holding 8
// coefficients per order in 5.11 fixed point.
type VADPCMBook = [16][2][8]int16

// VADPCMDecodeFrame decodes up to len(out) (at most 16) samples of a single
// frame. prev1 and prev2 are the last and second to last decoded samples and
// are updated for the next frame. It returns the number of samples written.
func VADPCMDecodeFrame(out []int16, frame []byte, book *VADPCMBook, prev1, prev2 *int16) int {
	return VADPCMDecodeFrameRange(out, frame, book, prev1, prev2, 0)
}

// VADPCMDecodeFrameRange is VADPCMDecodeFrame starting at sample index first
// of the frame.
func VADPCMDecodeFrameRange(out []int16, frame []byte, book *VADPCMBook, prev1, prev2 *int16, first int) int {
	if len(frame) < VADPCMFrameBytes {
		return 0
	}
	header := frame[0]
	scale := int32(1) << (header >> 4)
	pred := &book[header&0xf]
	p1, p2 := int32(*prev1), int32(*prev2)
	written := 0
	for half := 0; half < 2; half++ {
		var ix [8]int32
		for i := 0; i < 8; i += 2 {
			b := frame[1+half*4+i/2]
			ix[i] = signNibble(b>>4) * scale
			ix[i+1] = signNibble(b) * scale
		}
		var decoded [8]int32
		for i := 0; i < 8; i++ {
			total := int32(pred[0][i])*p2 + int32(pred[1][i])*p1
			for j := 0; j < i; j++ {
				total += int32(pred[1][i-j-1]) * ix[j]
			}
			total += ix[i] << 11
			decoded[i] = int32(clamp16(total >> 11))
		}
		for i, s := range decoded {
			if half*8+i >= first && written < len(out) {
				out[written] = int16(s)
				written++
			}
		}
		p2, p1 = decoded[6], decoded[7]
	}
	*prev1, *prev2 = int16(p1), int16(p2)
	return written
}

// VADPCMDecode decodes numSamples samples from the beginning of data.
func VADPCMDecode(out []int16, data []byte, numSamples int, book *VADPCMBook, prev1, prev2 *int16) int {
	written := 0
	for off := 0; written < numSamples && written < len(out) && off+VADPCMFrameBytes <= len(data); off += VADPCMFrameBytes {
		end := min(len(out), numSamples)
		written += VADPCMDecodeFrame(out[written:end], data[off:], book, prev1, prev2)
	}
	return written
}

// VADPCMFrameOf returns the frame index holding sample and the sample's
// index within that frame.
func VADPCMFrameOf(sample int) (frame, index int) {
	return sample / VADPCMFrameSamples, sample % VADPCMFrameSamples
}
