package amuse

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ReadWAV decodes a WAV stream to 16 bit mono PCM. Multi-channel files keep
// only their first channel; other bit depths are rescaled to 16 bits.
func ReadWAV(r io.ReadSeeker) (pcm []int16, sampleRate int, err error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("cannot decode WAV: %w", err)
	}
	channels := 1
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	depth := int(dec.SampleBitDepth())
	pcm = make([]int16, len(buf.Data)/channels)
	for i := range pcm {
		v := buf.Data[i*channels]
		switch {
		case depth > 16:
			v >>= depth - 16
		case depth == 8:
			v = (v - 128) << 8
		}
		pcm[i] = int16(v)
	}
	return pcm, int(dec.SampleRate), nil
}

// ReadWAVFile is ReadWAV on a file.
func ReadWAVFile(path string) ([]int16, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return ReadWAV(f)
}

// WriteWAV encodes interleaved 16 bit PCM.
func WriteWAV(w io.WriteSeeker, pcm []int16, sampleRate, channels int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           make([]int, len(pcm)),
		SourceBitDepth: 16,
	}
	for i, s := range pcm {
		buf.Data[i] = int(s)
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("cannot write WAV: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("cannot finish WAV: %w", err)
	}
	return nil
}

// WriteWAVFile is WriteWAV to a new file.
func WriteWAVFile(path string, pcm []int16, sampleRate, channels int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteWAV(f, pcm, sampleRate, channels)
}

// ExportSamples decodes every sample of g and writes it to dir as
// <name>.wav, naming samples through reg.
func ExportSamples(dir string, g *AudioGroup, reg *NameRegistry) error {
	if reg == nil {
		return ErrNoNameRegistry
	}
	order := g.Format().ByteOrder()
	for _, id := range sortedKeys(g.SampleDirectory().Entries) {
		e, data := g.Sample(id)
		if e == nil {
			continue
		}
		name := reg.Ensure(SampleNames, uint16(id))
		path := filepath.Join(dir, name+".wav")
		if err := WriteWAVFile(path, e.Decode(data, order), int(e.SampleRate), 1); err != nil {
			return fmt.Errorf("sample %q: %w", name, err)
		}
	}
	return nil
}
