package engine

import "math"

type (
	// Combine is how a component merges into the running value of an
	// Evaluator.
	Combine uint8

	// VarType selects whether a component reads a MIDI controller or a
	// macro variable.
	VarType uint8

	Component struct {
		MidiCtrl uint8
		Scale    float32
		Combine  Combine
		VarType  VarType
	}

	// Evaluator computes a voice parameter from a weighted list of
	// controller or variable sources. The *Select commands append to it.
	Evaluator struct {
		comps []Component
	}
)

const (
	CombineSet Combine = iota
	CombineAdd
	CombineMult
)

const (
	VarTypeCtrl VarType = iota
	VarTypeVar
)

// Controller numbers past the 128 MIDI controllers that read voice state.
const (
	CtrlPitchWheel = 128 + iota
	CtrlAftertouch
	CtrlLFO1
	CtrlLFO2
	CtrlSurroundPan
	CtrlStartKey
	CtrlStartVelocity
	CtrlExecTime
)

func (e *Evaluator) AddComponent(midiCtrl uint8, scale float32, combine Combine, varType VarType) {
	e.comps = append(e.comps, Component{MidiCtrl: midiCtrl, Scale: scale, Combine: combine, VarType: varType})
}

// Active reports whether any component has been added.
func (e *Evaluator) Active() bool { return len(e.comps) != 0 }

func (e *Evaluator) Reset() { e.comps = e.comps[:0] }

func (e *Evaluator) evaluate(v *Voice) float32 {
	var value float32
	for i, c := range e.comps {
		var x float32
		if c.VarType == VarTypeVar {
			x = float32(v.state.variables[c.MidiCtrl&0x1f])
		} else {
			x = v.sourceValue(c.MidiCtrl)
		}
		x *= c.Scale
		if i == 0 {
			value = x
			continue
		}
		switch c.Combine {
		case CombineAdd:
			value += x
		case CombineMult:
			value *= x
		default:
			value = x
		}
	}
	return value
}

// sourceValue reads a controller on the 0..127 scale.
func (v *Voice) sourceValue(ctrl uint8) float32 {
	switch ctrl {
	case CtrlPitchWheel:
		return (v.pitchWheel*0.5 + 0.5) * 127
	case CtrlAftertouch:
		return float32(v.aftertouch) * 2
	case CtrlLFO1, CtrlLFO2:
		period := v.lfoPeriods[ctrl-CtrlLFO1]
		if period == 0 {
			return 0
		}
		return float32(math.Sin(v.voiceTime/period*2*math.Pi)*0.5+0.5) * 127
	case CtrlSurroundPan:
		return v.curSpan*64 + 64
	case CtrlStartKey:
		return float32(v.state.initKey)
	case CtrlStartVelocity:
		return float32(v.state.initVel)
	case CtrlExecTime:
		return clamp32(float32(v.state.execTime*1000), 0, 16383)
	}
	if ctrl < 128 {
		return float32(v.ctrlVals[ctrl])
	}
	return 0
}
