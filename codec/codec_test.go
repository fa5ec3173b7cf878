package codec_test

import (
	"encoding/binary"
	"testing"

	"github.com/amuse-audio/amuse/codec"
)

func TestDSPDecodeFrameNoPrediction(t *testing.T) {
	var coefs codec.DSPCoefs
	frame := []byte{0x00, 0x12, 0x34, 0x56, 0x7f, 0x89, 0xab, 0xcd}
	var out [codec.DSPFrameSamples]int16
	var h1, h2 int16
	n := codec.DSPDecodeFrame(out[:], frame, &coefs, &h1, &h2)
	if n != codec.DSPFrameSamples {
		t.Fatalf("decoded %d samples", n)
	}
	want := [codec.DSPFrameSamples]int16{1, 2, 3, 4, 5, 6, 7, -1, -8, -7, -6, -5, -4, -3}
	if out != want {
		t.Fatalf("got %v, want %v", out, want)
	}
	if h1 != -3 || h2 != -4 {
		t.Fatalf("history = %d %d, want -3 -4", h1, h2)
	}
}

func TestDSPDecodeExponentAndPrediction(t *testing.T) {
	var coefs codec.DSPCoefs
	coefs[1] = [2]int16{2048, 0} // s[n] = nibble + s[n-1]
	frame := []byte{0x12, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11}
	var out [codec.DSPFrameSamples]int16
	h1, h2 := int16(100), int16(0)
	codec.DSPDecodeFrame(out[:], frame, &coefs, &h1, &h2)
	// exponent 2 scales each nibble by 4
	for i, s := range out {
		if want := int16(100 + 4*(i+1)); s != want {
			t.Fatalf("sample %d = %d, want %d", i, s, want)
		}
	}
}

func TestDSPDecodeFrameRange(t *testing.T) {
	var coefs codec.DSPCoefs
	coefs[0] = [2]int16{2048, 0}
	frame := []byte{0x00, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11}
	var out [4]int16
	var h1, h2 int16
	n := codec.DSPDecodeFrameRange(out[:], frame, &coefs, &h1, &h2, 10)
	if n != 4 || out != [4]int16{11, 12, 13, 14} {
		t.Fatalf("got %d samples %v", n, out)
	}
	if h1 != 14 {
		t.Fatalf("history = %d, want 14", h1)
	}
}

func TestDSPClamp(t *testing.T) {
	var coefs codec.DSPCoefs
	coefs[0] = [2]int16{2048, 0}
	frame := []byte{0x0c, 0x77, 0x77, 0x77, 0x77, 0x77, 0x77, 0x77}
	var out [codec.DSPFrameSamples]int16
	var h1, h2 int16
	codec.DSPDecodeFrame(out[:], frame, &coefs, &h1, &h2)
	if out[13] != 32767 {
		t.Fatalf("last sample = %d, want saturation", out[13])
	}
}

func TestDSPDecodeMultipleFrames(t *testing.T) {
	var coefs codec.DSPCoefs
	data := make([]byte, 3*codec.DSPFrameBytes)
	for f := 0; f < 3; f++ {
		data[f*8+1] = 0x70
	}
	out := make([]int16, 30)
	var h1, h2 int16
	if n := codec.DSPDecode(out, data, 30, &coefs, &h1, &h2); n != 30 {
		t.Fatalf("decoded %d samples, want 30", n)
	}
	for _, i := range []int{0, 14, 28} {
		if out[i] != 7 {
			t.Errorf("sample %d = %d, want 7", i, out[i])
		}
	}
	if f, i := codec.DSPFrameOf(29); f != 2 || i != 1 {
		t.Errorf("DSPFrameOf(29) = %d %d", f, i)
	}
}

func TestVADPCMDecodeFrame(t *testing.T) {
	var book codec.VADPCMBook
	frame := []byte{0x10, 0x12, 0x34, 0x56, 0x7f, 0x89, 0xab, 0xcd, 0xef}
	var out [codec.VADPCMFrameSamples]int16
	var p1, p2 int16
	if n := codec.VADPCMDecodeFrame(out[:], frame, &book, &p1, &p2); n != 16 {
		t.Fatalf("decoded %d samples", n)
	}
	// scale 2, no prediction
	want := [16]int16{2, 4, 6, 8, 10, 12, 14, -2, -16, -14, -12, -10, -8, -6, -4, -2}
	if out != want {
		t.Fatalf("got %v, want %v", out, want)
	}
	if p1 != -2 || p2 != -4 {
		t.Fatalf("history = %d %d", p1, p2)
	}
}

func TestVADPCMPrediction(t *testing.T) {
	var book codec.VADPCMBook
	// predictor 1 only uses the previous sample for the first output
	book[1][1][0] = 2048
	frame := []byte{0x01, 0x10, 0, 0, 0, 0, 0, 0, 0}
	var out [codec.VADPCMFrameSamples]int16
	p1, p2 := int16(50), int16(0)
	codec.VADPCMDecodeFrame(out[:], frame, &book, &p1, &p2)
	if out[0] != 51 {
		t.Fatalf("first sample = %d, want 51", out[0])
	}
	// the residual of sample 0 feeds sample 1 through book[1][1][0]
	if out[1] != 1 {
		t.Fatalf("second sample = %d, want 1", out[1])
	}
}

func TestPCMDecode(t *testing.T) {
	data := []byte{0x01, 0x02, 0xff, 0xfe, 0x00, 0x10}
	out := make([]int16, 4)
	if n := codec.PCMDecode(out, data, 1, binary.BigEndian); n != 2 || out[0] != -2 || out[1] != 0x10 {
		t.Fatalf("big endian: %d %v", n, out)
	}
	if n := codec.PCMDecode(out, data, 0, binary.LittleEndian); n != 3 || out[0] != 0x0201 {
		t.Fatalf("little endian: %d %v", n, out)
	}
}
