package amuse

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type (
	// DataFormat is the platform a group was authored for. It decides the
	// byte order of every table.
	DataFormat int

	// AudioGroupData holds the four raw buffers of an audio group. The
	// buffers are never modified after loading and may be shared by every
	// voice playing from the group.
	AudioGroupData struct {
		Proj   []byte
		Pool   []byte
		Sdir   []byte
		Samp   []byte
		Format DataFormat
	}

	// AudioGroup is the parsed, playable form of an AudioGroupData.
	AudioGroup struct {
		data    *AudioGroupData
		project *AudioGroupProject
		pool    *AudioGroupPool
		sdir    *AudioGroupSampleDirectory
	}
)

const (
	GCN DataFormat = iota
	N64
	PC
)

func (f DataFormat) String() string {
	switch f {
	case GCN:
		return "gcn"
	case N64:
		return "n64"
	case PC:
		return "pc"
	}
	return fmt.Sprintf("DataFormat(%d)", int(f))
}

// ParseDataFormat accepts the names printed by DataFormat.String.
func ParseDataFormat(s string) (DataFormat, error) {
	switch strings.ToLower(s) {
	case "gcn", "gc", "gamecube":
		return GCN, nil
	case "n64":
		return N64, nil
	case "pc":
		return PC, nil
	}
	return GCN, fmt.Errorf("unknown data format %q", s)
}

// ByteOrder returns the byte order of the tables: big endian on the
// consoles, little endian on PC.
func (f DataFormat) ByteOrder() binary.ByteOrder {
	if f == PC {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// NewAudioGroupData wraps buffers owned by the caller.
func NewAudioGroupData(proj, pool, sdir, samp []byte, format DataFormat) *AudioGroupData {
	return &AudioGroupData{Proj: proj, Pool: pool, Sdir: sdir, Samp: samp, Format: format}
}

// ReadAudioGroupData reads <name>.proj, .pool, .sdir and .samp from dir.
func ReadAudioGroupData(dir, name string, format DataFormat) (*AudioGroupData, error) {
	d := &AudioGroupData{Format: format}
	for _, part := range []struct {
		ext string
		buf *[]byte
	}{{".proj", &d.Proj}, {".pool", &d.Pool}, {".sdir", &d.Sdir}, {".samp", &d.Samp}} {
		b, err := os.ReadFile(filepath.Join(dir, name+part.ext))
		if err != nil {
			return nil, fmt.Errorf("cannot read audio group: %w", err)
		}
		*part.buf = b
	}
	return d, nil
}

// WriteAudioGroupData writes the four buffers next to each other in dir.
func WriteAudioGroupData(dir, name string, d *AudioGroupData) error {
	for _, part := range []struct {
		ext string
		buf []byte
	}{{".proj", d.Proj}, {".pool", d.Pool}, {".sdir", d.Sdir}, {".samp", d.Samp}} {
		if err := os.WriteFile(filepath.Join(dir, name+part.ext), part.buf, 0644); err != nil {
			return fmt.Errorf("cannot write audio group: %w", err)
		}
	}
	return nil
}

// NewAudioGroup parses the project, pool and sample directory of data.
func NewAudioGroup(data *AudioGroupData) (*AudioGroup, error) {
	order := data.Format.ByteOrder()
	proj, err := ReadAudioGroupProject(data.Proj, order)
	if err != nil {
		return nil, fmt.Errorf("cannot parse project: %w", err)
	}
	pool, err := ReadAudioGroupPool(data.Pool, order)
	if err != nil {
		return nil, fmt.Errorf("cannot parse pool: %w", err)
	}
	sdir, err := ReadAudioGroupSampleDirectory(data.Sdir, order)
	if err != nil {
		return nil, fmt.Errorf("cannot parse sample directory: %w", err)
	}
	return &AudioGroup{data: data, project: proj, pool: pool, sdir: sdir}, nil
}

// BuildAudioGroup assembles a group from parsed tables and sample data and
// encodes the binary buffers for it.
func BuildAudioGroup(proj *AudioGroupProject, pool *AudioGroupPool, sdir *AudioGroupSampleDirectory, samp []byte, format DataFormat) *AudioGroup {
	order := format.ByteOrder()
	data := &AudioGroupData{
		Proj:   proj.Encode(order),
		Pool:   pool.Encode(order),
		Sdir:   sdir.Encode(order),
		Samp:   samp,
		Format: format,
	}
	return &AudioGroup{data: data, project: proj, pool: pool, sdir: sdir}
}

func (g *AudioGroup) Data() *AudioGroupData                       { return g.data }
func (g *AudioGroup) Project() *AudioGroupProject                 { return g.project }
func (g *AudioGroup) Pool() *AudioGroupPool                       { return g.pool }
func (g *AudioGroup) SampleDirectory() *AudioGroupSampleDirectory { return g.sdir }
func (g *AudioGroup) Format() DataFormat                          { return g.data.Format }

// Sample returns the directory entry and the data of a sample, or nil if
// the id is unknown or its data lies outside the sample buffer.
func (g *AudioGroup) Sample(id SampleId) (*SampleEntry, []byte) {
	e := g.sdir.Entry(id)
	if e == nil {
		return nil, nil
	}
	start := int(e.SampleOff)
	end := start + e.DataSize()
	if start > len(g.data.Samp) {
		return nil, nil
	}
	if end > len(g.data.Samp) {
		end = len(g.data.Samp)
	}
	return e, g.data.Samp[start:end]
}

// Validate checks the cross references of the group.
func (g *AudioGroup) Validate() error {
	if err := g.project.Validate(g.pool); err != nil {
		return err
	}
	return g.sdir.Validate()
}
