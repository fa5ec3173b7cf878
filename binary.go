package amuse

import (
	"encoding/binary"
	"fmt"
)

// reader decodes fixed layout records from a group buffer. The first out of
// bounds access sets err; later reads return zero values, so a record can be
// read field by field and checked once.
type reader struct {
	data  []byte
	order binary.ByteOrder
	pos   int
	err   error
}

func newReader(data []byte, order binary.ByteOrder, pos int) *reader {
	return &reader{data: data, order: order, pos: pos}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("%w: reading %d bytes at offset %d of %d", ErrTruncated, n, r.pos, len(r.data))
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return r.order.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return r.order.Uint32(b)
	}
	return 0
}

func (r *reader) skip(n int) {
	r.take(n)
}

func (r *reader) seek(pos int) {
	r.pos = pos
}

// writer appends fixed layout records to a growing buffer.
type writer struct {
	buf   []byte
	order binary.ByteOrder
}

func newWriter(order binary.ByteOrder) *writer {
	return &writer{order: order}
}

func (w *writer) u8(v uint8) { w.buf = append(w.buf, v) }
func (w *writer) pad(n int)  { w.buf = append(w.buf, make([]byte, n)...) }

func (w *writer) u16(v uint16) {
	var b [2]byte
	w.order.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) u32(v uint32) {
	var b [4]byte
	w.order.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *writer) bytes(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *writer) len() int { return len(w.buf) }

// putU32 overwrites a previously reserved u32 at offset off.
func (w *writer) putU32(off int, v uint32) {
	w.order.PutUint32(w.buf[off:], v)
}

func isBigEndian(order binary.ByteOrder) bool {
	return order.Uint16([]byte{0, 1}) == 1
}
