package engine

import "github.com/amuse-audio/amuse"

type (
	// EnvelopeState is the phase of an Envelope.
	EnvelopeState int

	// EnvelopeControls holds the MIDI controller values that replace the
	// table times when a macro switched the envelope to controller mode with
	// SetAdsrCtrl.
	EnvelopeControls struct {
		Attack, Decay, Sustain, Release int8
	}

	// Envelope is an attack, decay, sustain, release generator. Advance is
	// called once per block and returns the current multiplier in [0,1].
	Envelope struct {
		phase              EnvelopeState
		curTime            float64
		attackTime         float64
		decayTime          float64
		sustainFactor      float64
		releaseTime        float64
		releaseStartFactor float64
		adsrSet            bool
	}
)

const (
	EnvelopeAttack EnvelopeState = iota
	EnvelopeDecay
	EnvelopeSustain
	EnvelopeRelease
	EnvelopeComplete
)

// midiToTime maps a controller value to milliseconds in controller mode.
var midiToTime = [104]int32{
	0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100, 110, 110, 120, 130, 140,
	150, 160, 170, 190, 200, 210, 230, 240, 260, 270, 290, 310, 330, 350, 370, 390,
	410, 440, 460, 490, 520, 550, 580, 610, 640, 680, 720, 760, 800, 840, 890, 940,
	990, 1040, 1100, 1170, 1230, 1300, 1370, 1440, 1520, 1600, 1690, 1780, 1880, 1980, 2090, 2200,
	2320, 2440, 2580, 2720, 2860, 3020, 3180, 3350, 3530, 3720, 3920, 4130, 4350, 4580, 4830, 5090,
	5360, 5650, 5950, 6270, 6600, 6960, 7330, 7720, 8130, 8570, 9030, 9510, 10020, 10560, 11120, 11720,
	12350, 13010, 13710, 14450, 15220, 16040, 16900, 17810,
}

func ctrlTime(v int8) float64 {
	i := max(0, min(int(v), len(midiToTime)-1))
	return float64(midiToTime[i]) / 1000
}

func (s EnvelopeState) String() string {
	switch s {
	case EnvelopeAttack:
		return "attack"
	case EnvelopeDecay:
		return "decay"
	case EnvelopeSustain:
		return "sustain"
	case EnvelopeRelease:
		return "release"
	}
	return "complete"
}

// Reset restarts the envelope from an ADSR table.
func (e *Envelope) Reset(adsr *amuse.ADSR) {
	e.phase = EnvelopeAttack
	e.curTime = 0
	e.attackTime = adsr.AttackTime()
	e.decayTime = adsr.DecayTime()
	e.sustainFactor = clamp64(adsr.SustainFactor(), 0, 1)
	e.releaseTime = adsr.ReleaseTime()
	e.releaseStartFactor = 0
	e.adsrSet = true
}

// ResetDLS restarts the envelope from a DLS table, scaling attack by the
// velocity and decay by the key.
func (e *Envelope) ResetDLS(adsr *amuse.ADSRDLS, key, vel int) {
	e.phase = EnvelopeAttack
	e.curTime = 0
	e.attackTime = adsr.AttackTimeForVel(vel)
	e.decayTime = adsr.DecayTimeForKey(key)
	e.sustainFactor = clamp64(adsr.SustainFactor(), 0, 1)
	e.releaseTime = adsr.ReleaseTime()
	e.releaseStartFactor = 0
	e.adsrSet = true
}

// ResetTable restarts the envelope from either kind of ADSR table. It
// reports false for any other table.
func (e *Envelope) ResetTable(t amuse.Table, key, vel int) bool {
	switch t := t.(type) {
	case *amuse.ADSR:
		e.Reset(t)
	case *amuse.ADSRDLS:
		e.ResetDLS(t, key, vel)
	default:
		return false
	}
	return true
}

// ResetControlled restarts the envelope with every time taken from
// controllers.
func (e *Envelope) ResetControlled() {
	*e = Envelope{adsrSet: true}
}

// KeyOff enters the release phase, or completes immediately when there is
// no release time.
func (e *Envelope) KeyOff(ctl *EnvelopeControls) {
	rel := e.releaseTime
	if ctl != nil {
		rel = ctrlTime(ctl.Release)
	}
	if rel != 0 {
		e.phase = EnvelopeRelease
	} else {
		e.phase = EnvelopeComplete
	}
	e.curTime = 0
}

// Advance moves the envelope forward by dt seconds and returns the level at
// the start of the step. ctl is nil unless controller mode is active; its
// values are read on every call.
func (e *Envelope) Advance(dt float64, ctl *EnvelopeControls) float64 {
	thisTime := e.curTime
	e.curTime += dt

	switch e.phase {
	case EnvelopeAttack:
		attack := e.attackTime
		if ctl != nil {
			attack = ctrlTime(ctl.Attack)
		}
		if attack == 0 || thisTime/attack >= 1 {
			e.phase = EnvelopeDecay
			e.curTime = 0
			e.releaseStartFactor = 1
			return 1
		}
		e.releaseStartFactor = thisTime / attack
		return e.releaseStartFactor
	case EnvelopeDecay:
		decay, sustain := e.decayTime, e.sustainFactor
		if ctl != nil {
			decay = ctrlTime(ctl.Decay)
			sustain = clamp64(float64(ctl.Sustain)/127, 0, 1)
		}
		if decay == 0 || thisTime/decay >= 1 {
			e.phase = EnvelopeSustain
			e.curTime = 0
			e.releaseStartFactor = sustain
			return sustain
		}
		f := thisTime / decay
		e.releaseStartFactor = (1 - f) + f*sustain
		return e.releaseStartFactor
	case EnvelopeSustain:
		sustain := e.sustainFactor
		if ctl != nil {
			sustain = clamp64(float64(ctl.Sustain)/127, 0, 1)
		}
		e.releaseStartFactor = sustain
		return sustain
	case EnvelopeRelease:
		rel := e.releaseTime
		if ctl != nil {
			rel = ctrlTime(ctl.Release)
		}
		if rel == 0 || thisTime/rel >= 1 {
			e.phase = EnvelopeComplete
			return 0
		}
		return min(e.releaseStartFactor, 1-thisTime/rel)
	}
	return 0
}

func (e *Envelope) State() EnvelopeState { return e.phase }

// IsComplete reports whether the release has finished.
func (e *Envelope) IsComplete() bool { return e.phase == EnvelopeComplete }

// IsSet reports whether the envelope has been given a table.
func (e *Envelope) IsSet() bool { return e.adsrSet }

func clamp64(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
