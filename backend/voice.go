package backend

import (
	"math"

	"github.com/amuse-audio/amuse"
)

type (
	voice struct {
		mixer        *Mixer
		client       amuse.VoiceSource
		sampleRate   float64
		dynamicPitch bool
		ratio        float64
		started      bool
		closed       bool
		routes       []*route

		// resampler state: last is the source sample at position 0 and frac
		// the read position past it
		last int16
		frac float64
		src  []int16
	}

	// route is the per-speaker gain of a voice on one submix.
	route struct {
		sub       *submix
		cur, want [8]float32
	}
)

func (v *voice) ResetSampleRate(sampleRate float64) {
	v.sampleRate = sampleRate
	v.last, v.frac = 0, 0
}

func (v *voice) ResetChannelLevels() {
	v.routes = v.routes[:0]
}

func (v *voice) SetPitchRatio(ratio float64, slew bool) {
	if !v.dynamicPitch && v.started {
		return
	}
	v.ratio = max(ratio, 0)
}

func (v *voice) SetChannelLevels(sub amuse.BackendSubmix, levels [8]float32, slew bool) {
	s, ok := sub.(*submix)
	if !ok || s.mixer != v.mixer {
		return
	}
	for _, r := range v.routes {
		if r.sub == s {
			r.want = levels
			if !slew {
				r.cur = levels
			}
			return
		}
	}
	r := &route{sub: s, want: levels}
	if !slew {
		r.cur = levels
	}
	v.routes = append(v.routes, r)
}

func (v *voice) Start() { v.started = true }

func (v *voice) Stop() { v.started = false }

func (v *voice) Close() {
	v.closed = true
	v.started = false
}

// step is how many source samples advance per output frame.
func (v *voice) step() float64 {
	return v.sampleRate * v.ratio / v.mixer.sampleRate
}

// render pulls source PCM from the client and linearly resamples it into
// out[:frames], scaled to [-1, 1).
func (v *voice) render(frames int, out []float32) {
	step := v.step()
	if step <= 0 {
		for i := range out[:frames] {
			out[i] = float32(v.last) / 32768
		}
		return
	}
	end := v.frac + float64(frames)*step
	need := max(int(math.Floor(v.frac+float64(frames-1)*step))+1, int(math.Floor(end)))
	if cap(v.src) < need+1 {
		v.src = make([]int16, need+1)
	}
	src := v.src[:need+1]
	src[0] = v.last
	if need > 0 {
		v.client.SupplyAudio(need, src[1:])
	}
	x := v.frac
	for i := range out[:frames] {
		j := int(x)
		f := float32(x - float64(j))
		a := float32(src[j])
		b := a
		if j+1 < len(src) {
			b = float32(src[j+1])
		}
		out[i] = (a + (b-a)*f) / 32768
		x += step
	}
	k := min(int(math.Floor(end)), need)
	v.last = src[k]
	v.frac = end - float64(k)
}

// mixInto adds mono into the interleaved buf using the route levels,
// ramping from the previous levels over the block.
func (r *route) mixInto(buf, mono []float32, chans int) {
	frames := len(mono)
	for c := 0; c < chans && c < 8; c++ {
		g, end := r.cur[c], r.want[c]
		if g == 0 && end == 0 {
			continue
		}
		d := (end - g) / float32(frames)
		for i, x := range mono {
			buf[i*chans+c] += x * g
			g += d
		}
	}
	r.cur = r.want
}
