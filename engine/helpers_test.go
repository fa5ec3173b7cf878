package engine_test

import (
	"encoding/binary"

	"github.com/amuse-audio/amuse"
	"github.com/amuse-audio/amuse/backend"
	"github.com/amuse-audio/amuse/effect"
	"github.com/amuse-audio/amuse/engine"
)

const testRate = 32000

// groupBuilder assembles a GCN audio group in memory.
type groupBuilder struct {
	proj *amuse.AudioGroupProject
	pool *amuse.AudioGroupPool
	sdir *amuse.AudioGroupSampleDirectory
	samp []byte
}

func newGroupBuilder() *groupBuilder {
	return &groupBuilder{
		proj: amuse.NewAudioGroupProject(),
		pool: amuse.NewAudioGroupPool(),
		sdir: amuse.NewAudioGroupSampleDirectory(),
	}
}

func (b *groupBuilder) macro(id amuse.ObjectId, cmds ...amuse.Cmd) *groupBuilder {
	b.pool.SoundMacros[id] = &amuse.SoundMacro{Cmds: cmds}
	return b
}

// pcmSample adds big endian PCM data as sample id, pitched at key 60.
func (b *groupBuilder) pcmSample(id amuse.SampleId, pcm []int16, loopStart, loopLen uint32) *groupBuilder {
	b.sdir.Entries[id] = &amuse.SampleEntry{
		Id:                id,
		SampleOff:         uint32(len(b.samp)),
		Pitch:             60,
		SampleRate:        testRate,
		NumSamples:        uint32(len(pcm)),
		LoopStartSample:   loopStart,
		LoopLengthSamples: loopLen,
		Format:            amuse.FormatPCM,
	}
	for _, s := range pcm {
		b.samp = binary.BigEndian.AppendUint16(b.samp, uint16(s))
	}
	return b
}

func (b *groupBuilder) sfx(group amuse.GroupId, id amuse.SFXId, ent amuse.SFXEntry) *groupBuilder {
	g := b.proj.SFXGroups[group]
	if g == nil {
		g = amuse.NewSFXGroupIndex()
		b.proj.SFXGroups[group] = g
	}
	g.SFXEntries[id] = ent
	return b
}

func (b *groupBuilder) songGroup(group amuse.GroupId) *amuse.SongGroupIndex {
	g := b.proj.SongGroups[group]
	if g == nil {
		g = amuse.NewSongGroupIndex()
		b.proj.SongGroups[group] = g
	}
	return g
}

func (b *groupBuilder) build() *amuse.AudioGroup {
	return amuse.BuildAudioGroup(b.proj, b.pool, b.sdir, b.samp, amuse.GCN)
}

func testConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.SampleRate = testRate
	cfg.Format = effect.FormatFloat32
	cfg.ChannelSet = amuse.Stereo
	cfg.AuxA, cfg.AuxB = nil, nil
	return cfg
}

// newTestEngine plays g through a software mixer at the sample rate of the
// test samples.
func newTestEngine(g *amuse.AudioGroup, cfg engine.Config) (*engine.Engine, *backend.Mixer) {
	m := backend.New(cfg.SampleRate, cfg.Format, cfg.ChannelSet)
	e := engine.New(m, cfg)
	if g != nil {
		e.AddParsedAudioGroup(g)
	}
	return e, m
}

func pump(e *engine.Engine, n int, dt float64) {
	for i := 0; i < n; i++ {
		e.PumpEngine(dt)
	}
}

func cmd(op amuse.CmdOp, args ...int32) amuse.Cmd { return amuse.NewCmd(op, args...) }

// waitForever is a WaitTicks without timeout or wake up condition.
func waitForever() amuse.Cmd { return cmd(amuse.WaitTicks, 0, 0, 0, 0, 0, 0xffff) }

func ramp(n int) []int16 {
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = int16((i*517)%20000 - 10000)
	}
	return pcm
}
