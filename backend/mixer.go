// Package backend is a software implementation of the amuse backend
// interfaces. A Mixer resamples the PCM of every started voice to the
// output rate, routes it into submix buses with per-speaker levels, runs the
// submix effects and sums the main outputs, 5 ms at a time.
package backend

import (
	"math"
	"sync"

	"github.com/amuse-audio/amuse"
	"github.com/amuse-audio/amuse/effect"
	"github.com/viterin/vek/vek32"
)

type (
	// Mixer renders interleaved float32 audio. Render and Do serialize on
	// an internal mutex, so the engine may be driven from another goroutine
	// through Do while a device pulls audio.
	Mixer struct {
		mu          sync.Mutex
		sampleRate  float64
		format      effect.Format
		channelSet  amuse.ChannelSet
		chans       int
		blockFrames int
		callback    amuse.EngineCallback
		volume      float32

		voices   []*voice
		submixes []*submix

		pending []float32
		out     []float32
		mono    []float32
		routed  []float32
		i16     []int16
		i32     []int32
	}
)

// New creates a mixer. format is the sample format submix effects run in.
func New(sampleRate float64, format effect.Format, set amuse.ChannelSet) *Mixer {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	m := &Mixer{
		sampleRate:  sampleRate,
		format:      format,
		channelSet:  set,
		chans:       set.Count(),
		blockFrames: int(math.Round(sampleRate * 0.005)),
		volume:      1,
	}
	m.out = make([]float32, m.blockFrames*m.chans)
	m.mono = make([]float32, m.blockFrames)
	m.routed = make([]float32, m.blockFrames)
	return m
}

func (m *Mixer) SampleRate() float64 { return m.sampleRate }

// Channels returns the number of interleaved output channels.
func (m *Mixer) Channels() int { return m.chans }

func (m *Mixer) ChannelSet() amuse.ChannelSet { return m.channelSet }

func (m *Mixer) SetCallback(cb amuse.EngineCallback) {
	m.callback = cb
}

// BlockFrames returns the number of frames of one 5 ms block.
func (m *Mixer) BlockFrames() int { return m.blockFrames }

func (m *Mixer) SetVolume(vol float32) {
	m.volume = max(0, min(vol, 1))
}

// Do runs f while holding the render lock.
func (m *Mixer) Do(f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f()
}

func (m *Mixer) AllocateVoice(client amuse.VoiceSource, sampleRate float64, dynamicPitch bool) amuse.BackendVoice {
	v := &voice{mixer: m, client: client, sampleRate: sampleRate, dynamicPitch: dynamicPitch, ratio: 1}
	m.voices = append(m.voices, v)
	return v
}

func (m *Mixer) AllocateSubmix(client amuse.SubmixSource, mainOut bool, busID int) amuse.BackendSubmix {
	s := &submix{mixer: m, client: client, mainOut: mainOut, busID: busID, index: len(m.submixes)}
	s.buf = make([]float32, m.blockFrames*m.chans)
	client.ResetOutputSampleRate(m.sampleRate)
	m.submixes = append(m.submixes, s)
	return s
}

// Render fills out with interleaved frames, running as many 5 ms blocks as
// needed. len(out) should be a multiple of the channel count.
func (m *Mixer) Render(out []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(out) > 0 {
		if len(m.pending) == 0 {
			m.pending = m.pump()
		}
		n := copy(out, m.pending)
		out = out[n:]
		m.pending = m.pending[n:]
	}
}

// Pump mixes one 5 ms block and returns it. The block is reused by the
// next call. Frames left over from Render are discarded.
func (m *Mixer) Pump() []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
	return m.pump()
}

func (m *Mixer) pump() []float32 {
	frames := m.blockFrames
	dt := float64(frames) / m.sampleRate
	if m.callback != nil {
		m.callback.On5MsInterval(dt)
	}
	for _, s := range m.submixes {
		vek32.Zeros_Into(s.buf, len(s.buf))
	}
	m.pruneClosed()
	for i := 0; i < len(m.voices); i++ {
		if v := m.voices[i]; !v.closed {
			v.client.PreSupplyAudio(dt)
		}
	}
	for _, v := range m.voices {
		if v.closed || !v.started {
			continue
		}
		v.render(frames, m.mono)
		for _, r := range v.routes {
			if r.sub.closed {
				continue
			}
			v.client.RouteAudio(frames, dt, r.sub.busID, m.mono, m.routed)
			r.mixInto(r.sub.buf, m.routed[:frames], m.chans)
		}
	}
	vek32.Zeros_Into(m.out, len(m.out))
	chanMap := m.channelSet.ChannelMap()
	for _, s := range m.order() {
		s.applyEffects(frames, chanMap)
		for _, send := range s.sends {
			if !send.target.closed {
				vek32.MulNumber_Into(m.scratch(len(s.buf)), s.buf, send.level)
				vek32.Add_Inplace(send.target.buf, m.routed[:len(s.buf)])
			}
		}
		if s.mainOut {
			vek32.Add_Inplace(m.out, s.buf)
		}
	}
	vek32.MulNumber_Inplace(m.out, m.volume)
	if m.callback != nil {
		m.callback.OnPumpCycleComplete()
	}
	return m.out
}

// scratch returns the routing buffer grown to n samples.
func (m *Mixer) scratch(n int) []float32 {
	if cap(m.routed) < n {
		m.routed = make([]float32, n)
	}
	return m.routed[:n]
}

func (m *Mixer) pruneClosed() {
	voices := m.voices[:0]
	for _, v := range m.voices {
		if !v.closed {
			voices = append(voices, v)
		}
	}
	clear(m.voices[len(voices):])
	m.voices = voices
	subs := m.submixes[:0]
	for _, s := range m.submixes {
		if !s.closed {
			subs = append(subs, s)
		}
	}
	clear(m.submixes[len(subs):])
	m.submixes = subs
}

// order sorts the submixes so that every submix is processed before the
// submixes it sends to.
func (m *Mixer) order() []*submix {
	indeg := make(map[*submix]int, len(m.submixes))
	for _, s := range m.submixes {
		for _, send := range s.sends {
			indeg[send.target]++
		}
	}
	var queue, out []*submix
	for _, s := range m.submixes {
		if indeg[s] == 0 {
			queue = append(queue, s)
		}
	}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		out = append(out, s)
		for _, send := range s.sends {
			if indeg[send.target]--; indeg[send.target] == 0 {
				queue = append(queue, send.target)
			}
		}
	}
	if len(out) < len(m.submixes) {
		seen := make(map[*submix]bool, len(out))
		for _, s := range out {
			seen[s] = true
		}
		for _, s := range m.submixes {
			if !seen[s] {
				out = append(out, s)
			}
		}
	}
	return out
}
