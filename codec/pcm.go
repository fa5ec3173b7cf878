package codec

import "encoding/binary"

// PCMDecode copies up to len(out) 16-bit samples starting at sample index
// first from data stored in the given byte order.
func PCMDecode(out []int16, data []byte, first int, order binary.ByteOrder) int {
	written := 0
	for off := first * 2; written < len(out) && off+2 <= len(data); off += 2 {
		out[written] = int16(order.Uint16(data[off:]))
		written++
	}
	return written
}
