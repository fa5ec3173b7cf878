package amuse_test

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/amuse-audio/amuse"
)

func TestWAVRoundTrip(t *testing.T) {
	name := filepath.Join(t.TempDir(), "ramp.wav")
	pcm := []int16{0, 1, -1, 32767, -32768, 1234, -4321}
	if err := amuse.WriteWAVFile(name, pcm, 22050, 1); err != nil {
		t.Fatal(err)
	}
	got, rate, err := amuse.ReadWAVFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if rate != 22050 || !reflect.DeepEqual(got, pcm) {
		t.Fatalf("read back %v at %d Hz", got, rate)
	}
}

func TestReadWAVTakesFirstChannel(t *testing.T) {
	name := filepath.Join(t.TempDir(), "stereo.wav")
	if err := amuse.WriteWAVFile(name, []int16{1, 2, 3, 4, 5, 6}, 48000, 2); err != nil {
		t.Fatal(err)
	}
	got, _, err := amuse.ReadWAVFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []int16{1, 3, 5}) {
		t.Fatalf("read %v from a stereo file", got)
	}
}

func TestReadWAVRejectsGarbage(t *testing.T) {
	name := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(name, []byte("not a wave file at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := amuse.ReadWAVFile(name); err == nil {
		t.Fatal("garbage accepted as WAV")
	}
}

func TestRawEncoding(t *testing.T) {
	buf := []float32{0, 1, -1, 2, -2, 0.5}
	pcm := amuse.Raw(buf, true)
	want := []int16{0, 32767, -32767, 32767, -32768, 16383}
	for i, w := range want {
		if got := int16(binary.LittleEndian.Uint16(pcm[2*i:])); got != w {
			t.Errorf("sample %d encoded as %d, expected %d", i, got, w)
		}
	}
	f := amuse.AppendRaw([]byte{9}, buf[:2], false)
	if len(f) != 9 || f[0] != 9 || math.Float32frombits(binary.LittleEndian.Uint32(f[5:])) != 1 {
		t.Fatalf("float encoding %v", f)
	}
}
