package backend

import (
	"math"

	"github.com/amuse-audio/amuse"
	"github.com/amuse-audio/amuse/effect"
)

type (
	submix struct {
		mixer   *Mixer
		client  amuse.SubmixSource
		mainOut bool
		busID   int
		index   int
		closed  bool
		sends   []send
		buf     []float32
	}

	send struct {
		target *submix
		level  float32
	}
)

func (s *submix) SetSendLevel(target amuse.BackendSubmix, level float32, slew bool) {
	t, ok := target.(*submix)
	if !ok || t == s || t.mixer != s.mixer {
		return
	}
	for i := range s.sends {
		if s.sends[i].target == t {
			if level == 0 {
				s.sends = append(s.sends[:i], s.sends[i+1:]...)
			} else {
				s.sends[i].level = level
			}
			return
		}
	}
	if level != 0 {
		s.sends = append(s.sends, send{target: t, level: level})
	}
}

func (s *submix) SampleRate() float64 { return s.mixer.sampleRate }

func (s *submix) SampleFormat() effect.Format { return s.mixer.format }

func (s *submix) Close() {
	s.closed = true
	s.sends = nil
}

// applyEffects runs the submix effects over buf in the mixer's sample
// format, converting to and from the float mix.
func (s *submix) applyEffects(frames int, chanMap effect.ChannelMap) {
	if !s.client.CanApplyEffect() {
		return
	}
	m := s.mixer
	switch m.format {
	case effect.FormatInt16:
		if cap(m.i16) < len(s.buf) {
			m.i16 = make([]int16, len(s.buf))
		}
		a := m.i16[:len(s.buf)]
		for i, x := range s.buf {
			a[i] = amuse.FloatToInt16(x)
		}
		s.client.ApplyEffectInt16(a, frames, chanMap)
		for i, x := range a {
			s.buf[i] = float32(x) / 32768
		}
	case effect.FormatInt32:
		if cap(m.i32) < len(s.buf) {
			m.i32 = make([]int32, len(s.buf))
		}
		a := m.i32[:len(s.buf)]
		for i, x := range s.buf {
			a[i] = int32(max(-1, min(float64(x), 1)) * math.MaxInt32)
		}
		s.client.ApplyEffectInt32(a, frames, chanMap)
		for i, x := range a {
			s.buf[i] = float32(float64(x) / math.MaxInt32)
		}
	default:
		s.client.ApplyEffectFloat32(s.buf, frames, chanMap)
	}
}
