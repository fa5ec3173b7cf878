package amuse

import (
	"encoding/binary"
	"fmt"

	"github.com/amuse-audio/amuse/codec"
)

type (
	// SampleFormat is the encoding of a sample's data.
	SampleFormat uint8

	DSPParms struct {
		BytesPerFrame uint16
		PS            uint8
		LPS           uint8
		Hist2         int16
		Hist1         int16
		Coefs         codec.DSPCoefs
	}

	VADPCMParms struct {
		Coefs codec.VADPCMBook
	}

	// ADPCMParms holds the decoder parameters of a compressed sample; which
	// member is meaningful depends on the sample format.
	ADPCMParms struct {
		DSP    DSPParms
		VADPCM VADPCMParms
	}

	// SampleEntry describes one sample of the sample directory.
	SampleEntry struct {
		Id                SampleId
		SampleOff         uint32
		Pitch             uint8 // MIDI key the sample plays at unshifted
		SampleRate        uint16
		NumSamples        uint32
		LoopStartSample   uint32
		LoopLengthSamples uint32
		Format            SampleFormat
		ADPCM             ADPCMParms
	}

	// AudioGroupSampleDirectory indexes the samples of a group.
	AudioGroupSampleDirectory struct {
		Entries map[SampleId]*SampleEntry
	}
)

const (
	FormatDSP   SampleFormat = 0
	FormatIMA   SampleFormat = 1
	FormatPCM   SampleFormat = 2
	FormatN64   SampleFormat = 3
	FormatPCMPC SampleFormat = 4
)

const (
	sdirEntrySize = 32
	dspParmsSize  = 40
	vadpcmSize    = 16 * 2 * 8 * 2
)

func (f SampleFormat) String() string {
	switch f {
	case FormatDSP:
		return "dsp"
	case FormatIMA:
		return "ima"
	case FormatPCM:
		return "pcm"
	case FormatN64:
		return "n64"
	case FormatPCMPC:
		return "pcmpc"
	}
	return fmt.Sprintf("SampleFormat(%d)", uint8(f))
}

// IsLooped reports whether the sample has a loop region.
func (e *SampleEntry) IsLooped() bool {
	return e.LoopLengthSamples != 0
}

// LastSample returns the index one past the last sample played before the
// loop wraps or the sample ends.
func (e *SampleEntry) LastSample() uint32 {
	if e.IsLooped() {
		return e.LoopStartSample + e.LoopLengthSamples
	}
	return e.NumSamples
}

// DataSize returns the number of bytes of sample data the entry occupies.
func (e *SampleEntry) DataSize() int {
	n := int(e.NumSamples)
	switch e.Format {
	case FormatDSP:
		return (n + codec.DSPFrameSamples - 1) / codec.DSPFrameSamples * codec.DSPFrameBytes
	case FormatN64:
		return (n + codec.VADPCMFrameSamples - 1) / codec.VADPCMFrameSamples * codec.VADPCMFrameBytes
	}
	return n * 2
}

// Validate checks the loop region lies inside the sample.
func (e *SampleEntry) Validate() error {
	if e.IsLooped() && uint64(e.LoopStartSample)+uint64(e.LoopLengthSamples) > uint64(e.NumSamples) {
		return fmt.Errorf("sample %d: loop %d+%d past the end %d", e.Id, e.LoopStartSample, e.LoopLengthSamples, e.NumSamples)
	}
	return nil
}

// Decode decodes the whole sample to 16 bit PCM. order is the byte order of
// the group, used for PCM data.
func (e *SampleEntry) Decode(data []byte, order binary.ByteOrder) []int16 {
	out := make([]int16, e.NumSamples)
	var n int
	switch e.Format {
	case FormatDSP:
		h1, h2 := int16(0), int16(0)
		n = codec.DSPDecode(out, data, len(out), &e.ADPCM.DSP.Coefs, &h1, &h2)
	case FormatN64:
		p1, p2 := int16(0), int16(0)
		n = codec.VADPCMDecode(out, data, len(out), &e.ADPCM.VADPCM.Coefs, &p1, &p2)
	case FormatPCM:
		n = codec.PCMDecode(out, data, 0, binary.BigEndian)
	case FormatPCMPC:
		n = codec.PCMDecode(out, data, 0, binary.LittleEndian)
	}
	return out[:n]
}

func NewAudioGroupSampleDirectory() *AudioGroupSampleDirectory {
	return &AudioGroupSampleDirectory{Entries: map[SampleId]*SampleEntry{}}
}

// Entry returns the entry with the given id or nil.
func (d *AudioGroupSampleDirectory) Entry(id SampleId) *SampleEntry {
	return d.Entries[id]
}

func (d *AudioGroupSampleDirectory) Validate() error {
	for _, id := range sortedKeys(d.Entries) {
		if err := d.Entries[id].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ReadAudioGroupSampleDirectory parses a sample directory buffer.
func ReadAudioGroupSampleDirectory(data []byte, order binary.ByteOrder) (*AudioGroupSampleDirectory, error) {
	d := NewAudioGroupSampleDirectory()
	r := newReader(data, order, 0)
	for off := 0; off+2 <= len(data); off += sdirEntrySize {
		r.seek(off)
		id := r.u16()
		if id == endOfList16 {
			break
		}
		e := &SampleEntry{Id: SampleId(id)}
		r.skip(2)
		e.SampleOff = r.u32()
		r.skip(4)
		e.Pitch = r.u8()
		r.skip(1)
		e.SampleRate = r.u16()
		n := r.u32()
		e.NumSamples = n & 0xffffff
		e.Format = SampleFormat(n >> 24)
		e.LoopStartSample = r.u32()
		e.LoopLengthSamples = r.u32()
		adpcmOff := int(r.u32())
		if r.err != nil {
			return nil, fmt.Errorf("sample directory entry at %d: %w", off, r.err)
		}
		if adpcmOff != 0 {
			pr := newReader(data, order, adpcmOff)
			switch e.Format {
			case FormatDSP:
				readDSPParms(pr, &e.ADPCM.DSP)
			case FormatN64:
				readVADPCMParms(pr, &e.ADPCM.VADPCM)
			}
			if pr.err != nil {
				return nil, fmt.Errorf("sample %d adpcm parameters: %w", e.Id, pr.err)
			}
		}
		d.Entries[e.Id] = e
	}
	return d, nil
}

func readDSPParms(r *reader, p *DSPParms) {
	p.BytesPerFrame = r.u16()
	p.PS = r.u8()
	p.LPS = r.u8()
	p.Hist2 = int16(r.u16())
	p.Hist1 = int16(r.u16())
	for i := range p.Coefs {
		p.Coefs[i][0] = int16(r.u16())
		p.Coefs[i][1] = int16(r.u16())
	}
}

func readVADPCMParms(r *reader, p *VADPCMParms) {
	for i := range p.Coefs {
		for j := range p.Coefs[i] {
			for k := range p.Coefs[i][j] {
				p.Coefs[i][j][k] = int16(r.u16())
			}
		}
	}
}

// Encode serializes the directory. The ADPCM parameter blocks follow the
// entry table.
func (d *AudioGroupSampleDirectory) Encode(order binary.ByteOrder) []byte {
	ids := sortedKeys(d.Entries)
	w := newWriter(order)
	adpcmOff := (len(ids) + 1) * sdirEntrySize
	for _, id := range ids {
		e := d.Entries[id]
		w.u16(uint16(e.Id))
		w.pad(2)
		w.u32(e.SampleOff)
		w.pad(4)
		w.u8(e.Pitch)
		w.pad(1)
		w.u16(e.SampleRate)
		w.u32(e.NumSamples&0xffffff | uint32(e.Format)<<24)
		w.u32(e.LoopStartSample)
		w.u32(e.LoopLengthSamples)
		switch e.Format {
		case FormatDSP:
			w.u32(uint32(adpcmOff))
			adpcmOff += dspParmsSize
		case FormatN64:
			w.u32(uint32(adpcmOff))
			adpcmOff += vadpcmSize
		default:
			w.u32(0)
		}
	}
	w.u16(endOfList16)
	w.pad(sdirEntrySize - 2)
	for _, id := range ids {
		e := d.Entries[id]
		switch e.Format {
		case FormatDSP:
			p := &e.ADPCM.DSP
			w.u16(p.BytesPerFrame)
			w.u8(p.PS)
			w.u8(p.LPS)
			w.u16(uint16(p.Hist2))
			w.u16(uint16(p.Hist1))
			for _, c := range p.Coefs {
				w.u16(uint16(c[0]))
				w.u16(uint16(c[1]))
			}
		case FormatN64:
			for _, pred := range e.ADPCM.VADPCM.Coefs {
				for _, ord := range pred {
					for _, c := range ord {
						w.u16(uint16(c))
					}
				}
			}
		}
	}
	return w.buf
}
