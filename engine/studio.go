package engine

import (
	"errors"
	"fmt"

	"github.com/amuse-audio/amuse"
	"github.com/amuse-audio/amuse/effect"
)

type (
	// Submix is one bus of a Studio with its effect stack. Effects are
	// created in the sample format the backend mixes the bus in; the
	// returned control interfaces do not depend on that format.
	Submix struct {
		studio     *Studio
		busID      int
		backend    amuse.BackendSubmix
		format     effect.Format
		sampleRate float64
		i16        effect.Stack[int16]
		i32        effect.Stack[int32]
		f32        effect.Stack[float32]
		controls   []any
	}

	// StudioSend routes the buses of one studio into another at the given
	// levels.
	StudioSend struct {
		Target    *Studio
		DryLevel  float32
		AuxALevel float32
		AuxBLevel float32
	}

	// Studio is a set of three submixes: the dry master bus and two aux
	// buses voices send reverb and aux B levels to.
	Studio struct {
		engine  *Engine
		mainOut bool
		master  *Submix
		auxA    *Submix
		auxB    *Submix
		sends   []StudioSend
	}
)

const (
	busMaster = iota
	busAuxA
	busAuxB
)

var ErrStudioCycle = errors.New("studio send would create a cycle")

func newStudio(e *Engine, mainOut bool) *Studio {
	s := &Studio{engine: e, mainOut: mainOut}
	s.master = s.newSubmix(busMaster, mainOut)
	s.auxA = s.newSubmix(busAuxA, mainOut)
	s.auxB = s.newSubmix(busAuxB, mainOut)
	if !mainOut {
		s.auxA.backend.SetSendLevel(s.master.backend, 1, false)
		s.auxB.backend.SetSendLevel(s.master.backend, 1, false)
	}
	return s
}

func (s *Studio) newSubmix(busID int, mainOut bool) *Submix {
	sub := &Submix{studio: s, busID: busID}
	sub.backend = s.engine.backend.AllocateSubmix(sub, mainOut, busID)
	sub.format = sub.backend.SampleFormat()
	sub.sampleRate = sub.backend.SampleRate()
	return sub
}

func (s *Studio) Master() *Submix { return s.master }
func (s *Studio) AuxA() *Submix   { return s.auxA }
func (s *Studio) AuxB() *Submix   { return s.auxB }

func (s *Studio) Sends() []StudioSend { return s.sends }

func (s *Studio) submixes() [3]*Submix { return [3]*Submix{s.master, s.auxA, s.auxB} }

// AddStudioSend mixes this studio's master bus into target. It fails if
// target already feeds this studio.
func (s *Studio) AddStudioSend(target *Studio, dry, auxA, auxB float32) error {
	if target == s || target.reaches(s) {
		return ErrStudioCycle
	}
	s.sends = append(s.sends, StudioSend{Target: target, DryLevel: dry, AuxALevel: auxA, AuxBLevel: auxB})
	s.master.backend.SetSendLevel(target.master.backend, dry, false)
	s.master.backend.SetSendLevel(target.auxA.backend, auxA, false)
	s.master.backend.SetSendLevel(target.auxB.backend, auxB, false)
	return nil
}

func (s *Studio) reaches(other *Studio) bool {
	for _, send := range s.sends {
		if send.Target == other || send.Target.reaches(other) {
			return true
		}
	}
	return false
}

func (s *Studio) close() {
	for _, sub := range s.submixes() {
		sub.backend.Close()
	}
}

func (s *Submix) BusID() int { return s.busID }

// Controls returns the control interface of every effect in stack order.
func (s *Submix) Controls() []any { return s.controls }

// MakeDelay appends a Delay to the stack.
func (s *Submix) MakeDelay(delay, feedback, output uint32) effect.DelayControl {
	var c effect.DelayControl
	switch s.format {
	case effect.FormatInt16:
		e := effect.NewDelay[int16](delay, feedback, output, s.sampleRate)
		s.i16.Push(e)
		c = e
	case effect.FormatInt32:
		e := effect.NewDelay[int32](delay, feedback, output, s.sampleRate)
		s.i32.Push(e)
		c = e
	default:
		e := effect.NewDelay[float32](delay, feedback, output, s.sampleRate)
		s.f32.Push(e)
		c = e
	}
	s.controls = append(s.controls, c)
	return c
}

// MakeReverbStd appends a standard reverb to the stack.
func (s *Submix) MakeReverbStd(coloration, mix, time, damping, preDelay float32) effect.ReverbControl {
	var c effect.ReverbControl
	switch s.format {
	case effect.FormatInt16:
		e := effect.NewReverbStd[int16](coloration, mix, time, damping, preDelay, s.sampleRate)
		s.i16.Push(e)
		c = e
	case effect.FormatInt32:
		e := effect.NewReverbStd[int32](coloration, mix, time, damping, preDelay, s.sampleRate)
		s.i32.Push(e)
		c = e
	default:
		e := effect.NewReverbStd[float32](coloration, mix, time, damping, preDelay, s.sampleRate)
		s.f32.Push(e)
		c = e
	}
	s.controls = append(s.controls, c)
	return c
}

// MakeReverbHi appends a high quality reverb to the stack.
func (s *Submix) MakeReverbHi(coloration, mix, time, damping, preDelay, crosstalk float32) effect.ReverbHiControl {
	var c effect.ReverbHiControl
	switch s.format {
	case effect.FormatInt16:
		e := effect.NewReverbHi[int16](coloration, mix, time, damping, preDelay, crosstalk, s.sampleRate)
		s.i16.Push(e)
		c = e
	case effect.FormatInt32:
		e := effect.NewReverbHi[int32](coloration, mix, time, damping, preDelay, crosstalk, s.sampleRate)
		s.i32.Push(e)
		c = e
	default:
		e := effect.NewReverbHi[float32](coloration, mix, time, damping, preDelay, crosstalk, s.sampleRate)
		s.f32.Push(e)
		c = e
	}
	s.controls = append(s.controls, c)
	return c
}

// MakeChorus appends a chorus to the stack.
func (s *Submix) MakeChorus(baseDelay, variation, period uint32) effect.ChorusControl {
	var c effect.ChorusControl
	switch s.format {
	case effect.FormatInt16:
		e := effect.NewChorus[int16](baseDelay, variation, period, s.sampleRate)
		s.i16.Push(e)
		c = e
	case effect.FormatInt32:
		e := effect.NewChorus[int32](baseDelay, variation, period, s.sampleRate)
		s.i32.Push(e)
		c = e
	default:
		e := effect.NewChorus[float32](baseDelay, variation, period, s.sampleRate)
		s.f32.Push(e)
		c = e
	}
	s.controls = append(s.controls, c)
	return c
}

// MakeEffect appends an effect described by configuration.
func (s *Submix) MakeEffect(cfg EffectConfig) (any, error) {
	switch cfg.Type {
	case "delay":
		return s.MakeDelay(cfg.Delay, cfg.Feedback, cfg.Output), nil
	case "reverb":
		return s.MakeReverbStd(cfg.Coloration, cfg.Mix, cfg.Time, cfg.Damping, cfg.PreDelay), nil
	case "reverbhi":
		return s.MakeReverbHi(cfg.Coloration, cfg.Mix, cfg.Time, cfg.Damping, cfg.PreDelay, cfg.Crosstalk), nil
	case "chorus":
		return s.MakeChorus(cfg.BaseDelay, cfg.Variation, cfg.Period), nil
	}
	return nil, fmt.Errorf("unknown effect type %q", cfg.Type)
}

func (s *Submix) ClearEffects() {
	s.i16.Clear()
	s.i32.Clear()
	s.f32.Clear()
	s.controls = nil
}

// setEffectParam sets parameter i of the first effect from a 0..1 macro
// value. Reverbs take mix, time and damping; delays output, feedback and
// delay; the chorus base delay, variation and period.
func (s *Submix) setEffectParam(i int, val float32) {
	if len(s.controls) == 0 {
		return
	}
	switch c := s.controls[0].(type) {
	case effect.ReverbControl:
		switch i {
		case 0:
			c.SetMix(val)
		case 1:
			c.SetTime(val * 10)
		default:
			c.SetDamping(val)
		}
	case effect.DelayControl:
		switch i {
		case 0:
			c.SetOutput(uint32(val * 100))
		case 1:
			c.SetFeedback(uint32(val * 100))
		default:
			c.SetDelay(uint32(val * 5000))
		}
	case effect.ChorusControl:
		switch i {
		case 0:
			c.SetBaseDelay(uint32(val * 15))
		case 1:
			c.SetVariation(uint32(val * 5))
		default:
			c.SetPeriod(uint32(val * 10000))
		}
	}
}

func (s *Submix) CanApplyEffect() bool {
	switch s.format {
	case effect.FormatInt16:
		return s.i16.Len() > 0
	case effect.FormatInt32:
		return s.i32.Len() > 0
	}
	return s.f32.Len() > 0
}

func (s *Submix) ApplyEffectInt16(audio []int16, frames int, chanMap effect.ChannelMap) {
	s.i16.Apply(audio, frames, chanMap)
}

func (s *Submix) ApplyEffectInt32(audio []int32, frames int, chanMap effect.ChannelMap) {
	s.i32.Apply(audio, frames, chanMap)
}

func (s *Submix) ApplyEffectFloat32(audio []float32, frames int, chanMap effect.ChannelMap) {
	s.f32.Apply(audio, frames, chanMap)
}

func (s *Submix) ResetOutputSampleRate(sampleRate float64) {
	s.sampleRate = sampleRate
	s.i16.ResetOutputSampleRate(sampleRate)
	s.i32.ResetOutputSampleRate(sampleRate)
	s.f32.ResetOutputSampleRate(sampleRate)
}
