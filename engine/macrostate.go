package engine

import (
	"math"

	"github.com/amuse-audio/amuse"
)

type (
	macroFrame struct {
		id    amuse.ObjectId
		macro *amuse.SoundMacro
		pc    int
	}

	// eventTrap is a macro continuation armed by TrapEvent. macro is
	// NoObject while disarmed.
	eventTrap struct {
		macro amuse.ObjectId
		step  int
	}

	// TrapEventKind is the event a trap waits for.
	TrapEventKind uint8

	// SoundMacroState is the interpreter state of the macro running on one
	// voice.
	SoundMacroState struct {
		frames []macroFrame

		ticksPerSec float64
		initKey     int
		initVel     int
		initMod     int
		curVel      int
		curMod      int
		curPitch    int32 // cents

		keyoff    bool
		sampleEnd bool

		inWait         bool
		indefiniteWait bool
		keyoffWait     bool
		sampleEndWait  bool
		execTime       float64
		waitCountdown  float64

		loopCountdown    int
		lastPlayMacroVid VoiceID

		useAdsrControllers bool
		adsrCtrls          [4]uint8 // attack, decay, sustain, release controllers

		portamentoMode uint8
		portamentoType uint8
		portamentoTime float64

		volumeSel      Evaluator
		panSel         Evaluator
		pitchWheelSel  Evaluator
		modWheelSel    Evaluator
		pedalSel       Evaluator
		portamentoSel  Evaluator
		reverbSel      Evaluator
		preAuxASel     Evaluator
		preAuxBSel     Evaluator
		postAuxBSel    Evaluator
		spanSel        Evaluator
		dopplerSel     Evaluator
		tremoloSel     Evaluator
		auxAFxSel      [3]Evaluator
		auxBFxSel      [3]Evaluator

		variables [32]int32

		keyoffTrap    eventTrap
		sampleEndTrap eventTrap
		messageTrap   eventTrap
	}
)

const (
	TrapKeyOff TrapEventKind = iota
	TrapSampleEnd
	TrapMessage
)

const (
	portamentoDisable = iota
	portamentoEnable
	portamentoMIDIControlled
)

// maxStepsPerAdvance bounds the commands run in one Advance so a macro that
// branches in a circle without waiting cannot stall the pump.
const maxStepsPerAdvance = 4096

var noTrap = eventTrap{macro: amuse.NoObject}

// initialize resets the state and starts macro at step.
func (s *SoundMacroState) initialize(id amuse.ObjectId, macro *amuse.SoundMacro, step int, ticksPerSec float64, key, vel, mod int) {
	macro.AssertPC(step)
	*s = SoundMacroState{
		frames:           append(s.frames[:0], macroFrame{id: id, macro: macro, pc: step}),
		ticksPerSec:      ticksPerSec,
		initKey:          key,
		initVel:          vel,
		initMod:          mod,
		curVel:           vel,
		curMod:           mod,
		curPitch:         int32(key) * 100,
		loopCountdown:    -1,
		lastPlayMacroVid: -1,
		keyoffTrap:       noTrap,
		sampleEndTrap:    noTrap,
		messageTrap:      noTrap,
	}
}

// jump replaces the running frame with step of macro.
func (s *SoundMacroState) jump(id amuse.ObjectId, macro *amuse.SoundMacro, step int) {
	macro.AssertPC(step)
	f := macroFrame{id: id, macro: macro, pc: step}
	if len(s.frames) == 0 {
		s.frames = append(s.frames, f)
	} else {
		s.frames[len(s.frames)-1] = f
	}
	s.inWait = false
}

func (s *SoundMacroState) push(id amuse.ObjectId, macro *amuse.SoundMacro, step int) {
	macro.AssertPC(step)
	s.frames = append(s.frames, macroFrame{id: id, macro: macro, pc: step})
}

func (s *SoundMacroState) setPC(step int) {
	f := &s.frames[len(s.frames)-1]
	f.macro.AssertPC(step)
	f.pc = step
}

func (s *SoundMacroState) top() *macroFrame {
	if len(s.frames) == 0 {
		return nil
	}
	return &s.frames[len(s.frames)-1]
}

// ObjectId returns the id of the macro running in the top frame.
func (s *SoundMacroState) ObjectId() amuse.ObjectId {
	if f := s.top(); f != nil {
		return f.id
	}
	return amuse.NoObject
}

// Done reports whether the macro reached End or Stop.
func (s *SoundMacroState) Done() bool {
	f := s.top()
	return f == nil || f.pc < 0
}

// PC returns the step the macro will execute next, or -1 when done.
func (s *SoundMacroState) PC() int {
	if f := s.top(); f != nil {
		return f.pc
	}
	return -1
}

// Variable returns macro variable i (0..31).
func (s *SoundMacroState) Variable(i int) int32 { return s.variables[i&0x1f] }

// SetVariable sets macro variable i (0..31).
func (s *SoundMacroState) SetVariable(i int, val int32) { s.variables[i&0x1f] = val }

// Pitch returns the current macro pitch in cents.
func (s *SoundMacroState) Pitch() int32 { return s.curPitch }

func (s *SoundMacroState) InWait() bool { return s.inWait }

func (s *SoundMacroState) keyoffNotify() { s.keyoff = true }

func (s *SoundMacroState) sampleEndNotify() { s.sampleEnd = true }

func (s *SoundMacroState) trap(kind TrapEventKind) *eventTrap {
	switch kind {
	case TrapKeyOff:
		return &s.keyoffTrap
	case TrapSampleEnd:
		return &s.sampleEndTrap
	case TrapMessage:
		return &s.messageTrap
	}
	return nil
}

// Advance runs commands until a wait is pending or the macro ends. It
// returns true once the macro has reached End or Stop.
func (s *SoundMacroState) Advance(v *Voice, dt float64) bool {
	if s.Done() {
		return true
	}
	for steps := 0; ; steps++ {
		if s.inWait {
			switch {
			case s.keyoffWait && s.keyoff:
				s.inWait = false
			case s.sampleEndWait && s.sampleEnd:
				s.inWait = false
			case !s.indefiniteWait:
				s.waitCountdown -= dt
				if s.waitCountdown < 0 {
					s.inWait = false
				}
			}
			if s.inWait {
				s.execTime += dt
				return false
			}
		}
		if steps == maxStepsPerAdvance {
			break
		}
		f := s.top()
		f.macro.AssertPC(f.pc)
		cmd := f.macro.Cmds[f.pc]
		f.pc++
		if s.exec(v, cmd) {
			s.execTime += dt
			return true
		}
	}
	s.execTime += dt
	return false
}

func (s *SoundMacroState) waitTime(ticksOrMs int32, msSwitch bool) float64 {
	q := s.ticksPerSec
	if msSwitch {
		q = 1000
	}
	if q == 0 {
		return 0
	}
	return float64(ticksOrMs) / q
}

func (s *SoundMacroState) wait(v *Voice, keyOff, random, sampleEnd, absolute, msSwitch bool, ticksOrMs int32) {
	if ticksOrMs != 0xffff {
		q := s.ticksPerSec
		if msSwitch {
			q = 1000
		}
		secTime := float64(ticksOrMs) / q
		if random && secTime > 0 {
			secTime = math.Mod(float64(v.engine.NextRandom())/q, secTime)
		}
		if absolute {
			if secTime <= s.execTime {
				return
			}
			s.waitCountdown = secTime - s.execTime
		} else {
			s.waitCountdown = secTime
		}
		s.indefiniteWait = false
	} else {
		s.indefiniteWait = true
	}
	s.inWait = true
	s.keyoffWait = keyOff
	s.sampleEndWait = sampleEnd
}

// delay arms a plain timed wait, as the note commands do after changing
// pitch.
func (s *SoundMacroState) delay(ticksOrMs int32, msSwitch bool) {
	if ticksOrMs == 0 {
		return
	}
	s.waitCountdown = s.waitTime(ticksOrMs, msSwitch)
	s.indefiniteWait = false
	s.keyoffWait = false
	s.sampleEndWait = false
	s.inWait = true
}

// branch jumps to step, within the running macro or into another one.
func (s *SoundMacroState) branch(v *Voice, macro amuse.ObjectId, step int32) {
	if macro == s.ObjectId() {
		s.setPC(int(step))
		return
	}
	v.loadMacro(macro, int(step), false)
}

func (v *Voice) operand(isCtrl bool, idx int32) int32 {
	if isCtrl {
		return int32(v.CtrlValue(uint8(idx)))
	}
	return v.state.variables[idx&0x1f]
}

func (v *Voice) setOperand(isCtrl bool, idx int32, val int32) {
	if isCtrl {
		v.SetCtrlValue(uint8(idx), int8(max(0, min(val, 127))))
		return
	}
	v.state.variables[idx&0x1f] = val
}

func selectScale(percent, fine int32) float32 {
	return (float32(percent) + float32(fine)/100) / 100
}

func (s *SoundMacroState) selector(op amuse.CmdOp, paramIndex int32) *Evaluator {
	switch op {
	case amuse.VolSelect:
		return &s.volumeSel
	case amuse.PanSelect:
		return &s.panSel
	case amuse.PitchWheelSelect:
		return &s.pitchWheelSel
	case amuse.ModWheelSelect:
		return &s.modWheelSel
	case amuse.PedalSelect:
		return &s.pedalSel
	case amuse.PortamentoSelect:
		return &s.portamentoSel
	case amuse.ReverbSelect:
		return &s.reverbSel
	case amuse.SpanSelect:
		return &s.spanSel
	case amuse.DopplerSelect:
		return &s.dopplerSel
	case amuse.TremoloSelect:
		return &s.tremoloSel
	case amuse.PreASelect:
		return &s.preAuxASel
	case amuse.PreBSelect:
		return &s.preAuxBSel
	case amuse.PostBSelect:
		return &s.postAuxBSel
	case amuse.AuxAFXSelect:
		return &s.auxAFxSel[max(0, min(int(paramIndex), 2))]
	case amuse.AuxBFXSelect:
		return &s.auxBFxSel[max(0, min(int(paramIndex), 2))]
	}
	return nil
}

// exec performs one command and reports whether the macro ended.
func (s *SoundMacroState) exec(v *Voice, c amuse.Cmd) bool {
	a := c.Args
	pool := v.group.Pool()
	switch c.Op {
	case amuse.End, amuse.Stop:
		s.top().pc = -1
		return true
	case amuse.SplitKey:
		if int32(s.initKey) >= a[0] {
			s.branch(v, amuse.ObjectId(a[1]), a[2])
		}
	case amuse.SplitVel:
		if int32(s.curVel) >= a[0] {
			s.branch(v, amuse.ObjectId(a[1]), a[2])
		}
	case amuse.SplitMod:
		if int32(s.curMod) >= a[0] {
			s.branch(v, amuse.ObjectId(a[1]), a[2])
		}
	case amuse.SplitRnd:
		if uint32(a[0]) <= v.engine.NextRandom()%256 {
			s.branch(v, amuse.ObjectId(a[1]), a[2])
		}
	case amuse.Goto:
		s.branch(v, amuse.ObjectId(a[0]), a[1])
	case amuse.WaitTicks:
		s.wait(v, a[0] != 0, a[1] != 0, a[2] != 0, a[3] != 0, a[4] != 0, a[5])
	case amuse.WaitMs:
		s.wait(v, a[0] != 0, a[1] != 0, a[2] != 0, a[3] != 0, true, a[4])
	case amuse.Loop:
		if (a[0] != 0 && s.keyoff) || (a[2] != 0 && s.sampleEnd) {
			s.loopCountdown = -1
			break
		}
		times := a[4]
		if times == 0xffff {
			s.setPC(int(a[3]))
			break
		}
		if a[1] != 0 && times > 0 {
			times = int32(v.engine.NextRandom() % uint32(times))
		}
		if s.loopCountdown == -1 {
			s.loopCountdown = int(times)
		}
		if s.loopCountdown > 0 {
			s.loopCountdown--
			s.setPC(int(a[3]))
		} else {
			s.loopCountdown = -1
		}
	case amuse.PlayMacro:
		if child := v.startChildMacro(int(a[0]), amuse.ObjectId(a[1]), int(a[2])); child != nil {
			s.lastPlayMacroVid = child.id
		}
	case amuse.SendKeyOff:
		vid := VoiceID(s.variables[a[0]&0x1f])
		if a[1] != 0 {
			vid = s.lastPlayMacroVid
		}
		if other := v.engine.FindVoice(vid); other != nil {
			other.KeyOff()
		}
	case amuse.PianoPan:
		pan := (int32(s.initKey)-a[1])*a[0]/127 + a[2]
		pan = max(0, min(pan, 127))
		v.SetPan(float32(pan)/64 - 1)
	case amuse.SetAdsr:
		v.setAdsr(amuse.ObjectId(a[0]), a[1] != 0)
	case amuse.ScaleVolume:
		vel := s.curVel
		if a[3] != 0 {
			vel = s.initVel
		}
		eval := max(0, min(int32(vel)*a[0]/127+a[1], 127))
		if curve := pool.TableAsCurve(amuse.ObjectId(a[2])); a[2] != 0 && curve != nil && len(curve.Data) >= 128 {
			v.curVol = float32(curve.Value(int(eval))) / 127
		} else {
			v.curVol = float32(eval) / 127
		}
	case amuse.ScaleVolumeDLS:
		vel := s.curVel
		if a[1] != 0 {
			vel = s.initVel
		}
		v.curVol = clamp32(float32(vel)*float32(a[0])/4096/127, 0, 1)
	case amuse.Panning:
		v.startPanning(float64(a[1])/1000, a[0], a[2])
	case amuse.Spanning:
		v.startSpanning(float64(a[1])/1000, a[0], a[2])
	case amuse.Envelope, amuse.FadeIn:
		eval := max(0, min(int32(s.curVel)*a[0]/127+a[1], 127))
		var curve *amuse.Curve
		if a[2] != 0 {
			if cv := pool.TableAsCurve(amuse.ObjectId(a[2])); cv != nil && len(cv.Data) >= 128 {
				curve = cv
			}
		}
		dur := s.waitTime(a[4], a[3] != 0)
		if c.Op == amuse.FadeIn {
			v.startFadeIn(dur, eval, curve)
		} else {
			v.startEnvelope(dur, eval, curve)
		}
	case amuse.StartSample:
		offset := uint32(a[2])
		switch a[1] {
		case 1:
			offset = uint32(uint64(offset) * uint64(s.curVel) / 127)
		case 2:
			offset = uint32(uint64(offset) * uint64(max(0, v.CtrlValue(1))) / 127)
		}
		v.StartSample(amuse.SampleId(a[0]), offset)
	case amuse.StopSample:
		v.StopSample()
	case amuse.KeyOff:
		v.macroKeyOff()
	case amuse.SetAdsrCtrl:
		s.useAdsrControllers = true
		s.adsrCtrls = [4]uint8{uint8(a[0]), uint8(a[1]), uint8(a[2]), uint8(a[3])}
		v.volAdsr.ResetControlled()
	case amuse.RndNote:
		lo, hi := a[0], a[2]
		if a[4] != 0 {
			lo = int32(s.initKey) - a[0]
			hi = a[0] + a[2]
		}
		lo *= 100
		hi *= 100
		if hi == lo {
			s.curPitch = hi
		} else {
			if hi < lo {
				lo, hi = hi, lo
			}
			s.curPitch = int32(v.engine.NextRandom()%uint32(hi-lo)) + lo
		}
		if a[3] == 0 {
			s.curPitch = s.curPitch/100*100 + a[1]
		}
		v.pitchDirty = true
	case amuse.AddNote:
		base := s.curPitch
		if a[2] != 0 {
			base = int32(s.initKey) * 100
		}
		s.curPitch = base + a[0]*100 + a[1]
		v.pitchDirty = true
		s.delay(a[4], a[3] != 0)
	case amuse.SetNote:
		s.curPitch = a[0]*100 + a[1]
		v.pitchDirty = true
		s.delay(a[3], a[2] != 0)
	case amuse.LastNote:
		s.curPitch = (a[0]+int32(v.lastNote))*100 + a[1]
		v.pitchDirty = true
		s.delay(a[3], a[2] != 0)
	case amuse.Portamento:
		s.portamentoMode = uint8(a[0])
		s.portamentoType = uint8(a[1])
		s.portamentoTime = float64(a[2]) / 1000
	case amuse.Vibrato:
		v.setVibrato(a[0]*100+a[1], a[2] != 0, s.waitTime(a[4], a[3] != 0))
	case amuse.PitchSweep1:
		v.setPitchSweep(0, int(a[0]), a[1], s.waitTime(a[3], a[2] != 0))
	case amuse.PitchSweep2:
		v.setPitchSweep(1, int(a[0]), a[1], s.waitTime(a[3], a[2] != 0))
	case amuse.SetPitch:
		v.setPitchFrequency(uint32(a[0]), uint16(a[1]))
	case amuse.SetPitchAdsr:
		v.setPitchAdsr(amuse.ObjectId(a[0]), a[1]*100+a[2])
	case amuse.Mod2Vibrange:
		v.vibratoModLevel = a[0]*100 + a[1]
	case amuse.SetupTremolo:
		v.tremoloScale = float32(a[0]) / 4096
		v.tremoloModScale = float32(a[1]) / 4096
	case amuse.Return:
		if len(s.frames) > 1 {
			s.frames = s.frames[:len(s.frames)-1]
		}
	case amuse.GoSub:
		if amuse.ObjectId(a[0]) == s.ObjectId() {
			f := s.top()
			s.push(f.id, f.macro, int(a[1]))
		} else {
			v.loadMacro(amuse.ObjectId(a[0]), int(a[1]), true)
		}
	case amuse.TrapEvent:
		if t := s.trap(TrapEventKind(a[0])); t != nil {
			*t = eventTrap{macro: amuse.ObjectId(a[1]), step: int(a[2])}
		}
	case amuse.UntrapEvent:
		if t := s.trap(TrapEventKind(a[0])); t != nil {
			*t = noTrap
		}
	case amuse.SendMessage:
		val := s.variables[a[3]&0x1f]
		if a[0] != 0 {
			if other := v.engine.FindVoice(VoiceID(s.variables[a[2]&0x1f])); other != nil {
				other.Message(val)
			}
		} else {
			v.engine.SendMacroMessage(amuse.ObjectId(a[1]), val)
		}
	case amuse.GetMessage:
		var val int32
		if len(v.messages) > 0 {
			val = v.messages[0]
			v.messages = v.messages[1:]
		}
		s.variables[a[0]&0x1f] = val
	case amuse.GetVid:
		if a[1] != 0 {
			s.variables[a[0]&0x1f] = int32(s.lastPlayMacroVid)
		} else {
			s.variables[a[0]&0x1f] = int32(v.id)
		}
	case amuse.AddAgeCount:
		v.age = max(0, v.age+float64(a[0]))
	case amuse.SetAgeCount:
		v.age = float64(a[0])
	case amuse.AgeCntSpeed:
		if a[0] > 0 {
			v.ageSpeed = 1000 / float64(uint32(a[0]))
		} else {
			v.ageSpeed = 0
		}
	case amuse.AgeCntVel:
		v.age = float64(a[0]) + float64(a[1])*float64(s.curVel)/127
	case amuse.SendFlag:
		v.engine.flags[a[0]&0xff] = uint8(a[1])
	case amuse.PitchWheelR:
		v.pitchWheelUp = a[0] * 100
		v.pitchWheelDown = a[1] * 100
	case amuse.SetPriority:
		v.priority = int(a[0])
	case amuse.AddPriority:
		v.priority += int(a[0])
	case amuse.VolSelect, amuse.PanSelect, amuse.PitchWheelSelect, amuse.ModWheelSelect,
		amuse.PedalSelect, amuse.PortamentoSelect, amuse.ReverbSelect, amuse.SpanSelect,
		amuse.DopplerSelect, amuse.TremoloSelect, amuse.PreASelect, amuse.PreBSelect,
		amuse.PostBSelect, amuse.AuxAFXSelect, amuse.AuxBFXSelect:
		s.selector(c.Op, a[5]).AddComponent(uint8(a[0]), selectScale(a[1], a[4]), Combine(a[2]), VarType(a[3]))
	case amuse.SetupLFO:
		v.lfoPeriods[a[0]&1] = float64(a[1]) / 1000
	case amuse.ModeSelect:
		v.dlsVol = a[0] != 0
	case amuse.SetKeygroup:
		v.keygroup = 0
		if kg := uint8(a[0]); kg != 0 {
			v.engine.KillKeygroup(kg, a[1] != 0)
			v.keygroup = kg
		}
	case amuse.SRCmodeSelect, amuse.WiiUnknown, amuse.WiiUnknown2:
	case amuse.AddVars, amuse.SubVars, amuse.MulVars, amuse.DivVars:
		b := v.operand(a[2] != 0, a[3])
		cv := v.operand(a[4] != 0, a[5])
		var r int32
		switch c.Op {
		case amuse.AddVars:
			r = b + cv
		case amuse.SubVars:
			r = b - cv
		case amuse.MulVars:
			r = b * cv
		case amuse.DivVars:
			if cv != 0 {
				r = b / cv
			}
		}
		v.setOperand(a[0] != 0, a[1], r)
	case amuse.AddIVars:
		v.setOperand(a[0] != 0, a[1], v.operand(a[2] != 0, a[3])+a[4])
	case amuse.SetVar:
		v.setOperand(a[0] != 0, a[1], a[2])
	case amuse.IfEqual:
		if (v.operand(a[0] != 0, a[1]) == v.operand(a[2] != 0, a[3])) != (a[4] != 0) {
			s.setPC(int(a[5]))
		}
	case amuse.IfLess:
		if (v.operand(a[0] != 0, a[1]) < v.operand(a[2] != 0, a[3])) != (a[4] != 0) {
			s.setPC(int(a[5]))
		}
	}
	return false
}
