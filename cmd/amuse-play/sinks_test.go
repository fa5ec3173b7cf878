package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/amuse-audio/amuse"
)

func TestFileSinks(t *testing.T) {
	dir := t.TempDir()
	blocks := [][]float32{{0.5, -0.5, 1, -1}, {0.25, 0, 2, -2}}
	for _, pcm16 := range []bool{false, true} {
		rawPath := filepath.Join(dir, "out.raw")
		wavPath := filepath.Join(dir, "out.wav")
		raw, err := openRawSink(rawPath, pcm16)
		if err != nil {
			t.Fatal(err)
		}
		sink := multiSink{raw, &wavSink{path: wavPath, rate: 32000, channels: 2}}
		var want []byte
		for _, b := range blocks {
			if err := sink.WriteAudio(b); err != nil {
				t.Fatal(err)
			}
			want = append(want, amuse.Raw(b, pcm16)...)
		}
		if err := sink.Close(); err != nil {
			t.Fatal(err)
		}
		got, err := os.ReadFile(rawPath)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("pcm16 %v: raw output differs from the rendered blocks", pcm16)
		}
		// samples are read back from the first channel
		left, rate, err := amuse.ReadWAVFile(wavPath)
		if err != nil {
			t.Fatal(err)
		}
		if rate != 32000 || len(left) != 4 || left[1] != 32767 || left[3] != 32767 {
			t.Fatalf("wav output: %d Hz, %v", rate, left)
		}
	}
}
