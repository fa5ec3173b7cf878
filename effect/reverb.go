package effect

import (
	"math"
)

type (
	// ReverbControl is the format independent parameter interface shared by
	// ReverbStd and ReverbHi.
	ReverbControl interface {
		SetColoration(c float32)
		Coloration() float32
		SetMix(m float32)
		Mix() float32
		SetTime(seconds float32)
		Time() float32
		SetDamping(d float32)
		Damping() float32
		SetPreDelay(seconds float32)
		PreDelay() float32
	}

	// ReverbHiControl adds the channel crosstalk parameter of ReverbHi.
	ReverbHiControl interface {
		ReverbControl
		SetCrosstalk(c float32)
		Crosstalk() float32
	}

	// reverbParams holds the user facing reverb parameters. The setters clamp
	// and mark the owning effect dirty.
	reverbParams struct {
		coloration float32 // 0..1, all-pass coefficient
		mix        float32 // 0..1, wet/dry
		time       float32 // 0.01..10 seconds
		damping    float32 // 0..1
		preDelay   float32 // 0..0.1 seconds
		dirty      bool
	}

	// ReverbStd is a Schroeder reverb with two comb filters and two all-pass
	// filters per channel.
	ReverbStd[T Sample] struct {
		reverbParams
		core reverbCore
		rng  sampleRange
		buf  workBuf
	}

	// ReverbHi is the high quality reverb: three comb filters, two all-pass
	// filters, a per-channel low-pass delay stage and crosstalk between the
	// channels.
	ReverbHi[T Sample] struct {
		reverbParams
		crosstalk float32 // 0..1
		core      reverbCore
		lpLines   [8]delayLine
		crossWet  float32
		rng       sampleRange
		buf       workBuf
	}

	// reverbCore is the per-channel filter network shared by both reverbs.
	reverbCore struct {
		combs        int
		comb         [8][3]delayLine
		combCoef     [8][3]float32
		allPass      [8][2]delayLine
		lpLastOut    [8]float32
		apCoef       float32
		dampCoef     float32
		wet, dry     float32
		preDelay     [8][]float32
		preDelayPos  [8]int
		sampleRate   float64
		blockSamples int
	}

	// delayLine is a circular buffer with separate read and write heads used
	// by the comb and all-pass filters.
	delayLine struct {
		in, out int
		buf     []float32
		last    float32
	}
)

var (
	combTapDelays    = [3]int{1789, 1999, 2333}
	allPassTapDelays = [2]int{433, 149}
	hiAllPassTap2    = 47
	lpTapDelays      = [8]int{47, 73, 67, 57, 43, 57, 83, 73}
)

func (p *reverbParams) SetColoration(c float32) { p.coloration = clampF32(c, 0, 1); p.dirty = true }
func (p *reverbParams) Coloration() float32     { return p.coloration }
func (p *reverbParams) SetMix(m float32)        { p.mix = clampF32(m, 0, 1); p.dirty = true }
func (p *reverbParams) Mix() float32            { return p.mix }
func (p *reverbParams) SetTime(t float32)       { p.time = clampF32(t, 0.01, 10); p.dirty = true }
func (p *reverbParams) Time() float32           { return p.time }
func (p *reverbParams) SetDamping(d float32)    { p.damping = clampF32(d, 0, 1); p.dirty = true }
func (p *reverbParams) Damping() float32        { return p.damping }
func (p *reverbParams) SetPreDelay(t float32)   { p.preDelay = clampF32(t, 0, 0.1); p.dirty = true }
func (p *reverbParams) PreDelay() float32       { return p.preDelay }

func newReverbParams(coloration, mix, time, damping, preDelay float32) reverbParams {
	var p reverbParams
	p.SetColoration(coloration)
	p.SetMix(mix)
	p.SetTime(time)
	p.SetDamping(damping)
	p.SetPreDelay(preDelay)
	return p
}

// NewReverbStd creates a standard reverb for a bus running at sampleRate.
func NewReverbStd[T Sample](coloration, mix, time, damping, preDelay float32, sampleRate float64) *ReverbStd[T] {
	r := &ReverbStd[T]{
		reverbParams: newReverbParams(coloration, mix, time, damping, preDelay),
		rng:          rangeOf[T](),
	}
	r.core.combs = 2
	r.ResetOutputSampleRate(sampleRate)
	return r
}

func (r *ReverbStd[T]) ResetOutputSampleRate(sampleRate float64) {
	r.core.sampleRate = sampleRate
	_, r.core.blockSamples = blockSize(sampleRate)
	r.core.allocate(allPassTapDelays)
	r.dirty = true
}

func (r *ReverbStd[T]) ApplyEffect(audio []T, frames int, chanMap ChannelMap) {
	if r.dirty {
		r.core.update(&r.reverbParams, allPassTapDelays)
		r.dirty = false
	}
	stride := chanMap.Count
	chans := min(stride, 8)
	for c := 0; c < chans; c++ {
		gather(&r.buf, audio, frames, stride, c)
		for i, in := range r.buf.in {
			r.buf.out[i] = r.core.process(c, in)
		}
		r.buf.mixWetDry(r.core.wet, r.core.dry)
		scatter(&r.buf, audio, stride, c, r.rng)
	}
}

// NewReverbHi creates a high quality reverb for a bus running at sampleRate.
func NewReverbHi[T Sample](coloration, mix, time, damping, preDelay, crosstalk float32, sampleRate float64) *ReverbHi[T] {
	r := &ReverbHi[T]{
		reverbParams: newReverbParams(coloration, mix, time, damping, preDelay),
		rng:          rangeOf[T](),
	}
	r.core.combs = 3
	r.SetCrosstalk(crosstalk)
	r.ResetOutputSampleRate(sampleRate)
	return r
}

func (r *ReverbHi[T]) SetCrosstalk(c float32) {
	r.crosstalk = clampF32(c, 0, 1)
	r.dirty = true
}

func (r *ReverbHi[T]) Crosstalk() float32 {
	return r.crosstalk
}

func (r *ReverbHi[T]) hiAllPassTaps() [2]int {
	return [2]int{allPassTapDelays[0], hiAllPassTap2}
}

func (r *ReverbHi[T]) ResetOutputSampleRate(sampleRate float64) {
	r.core.sampleRate = sampleRate
	_, r.core.blockSamples = blockSize(sampleRate)
	r.core.allocate(r.hiAllPassTaps())
	for c := range r.lpLines {
		tap := scaleTap(lpTapDelays[c], sampleRate)
		r.lpLines[c].allocate(tap)
		r.lpLines[c].setDelay(tap)
	}
	r.dirty = true
}

func (r *ReverbHi[T]) ApplyEffect(audio []T, frames int, chanMap ChannelMap) {
	if r.dirty {
		r.core.update(&r.reverbParams, r.hiAllPassTaps())
		r.crossWet = r.crosstalk * 0.5
		r.dirty = false
	}
	stride := chanMap.Count
	chans := min(stride, 8)
	for f := 0; f < frames; f += r.core.blockSamples {
		n := min(r.core.blockSamples, frames-f)
		block := audio[f*stride:]
		for c := 0; c < chans; c++ {
			gather(&r.buf, block, n, stride, c)
			for i, in := range r.buf.in {
				r.buf.out[i] = r.lpLines[c].delay(r.core.process(c, in))
			}
			r.buf.mixWetDry(r.core.wet, r.core.dry)
			scatter(&r.buf, block, stride, c, r.rng)
		}
		if r.crossWet > 0 && chans > 1 {
			r.doCrosstalk(audio[f*stride:(f+n)*stride], n, stride, chans)
		}
	}
}

// doCrosstalk blends each channel with the sum of all channels.
func (r *ReverbHi[T]) doCrosstalk(audio []T, frames, stride, chans int) {
	wet := r.crossWet
	dry := 1 - wet
	for f := 0; f < frames; f++ {
		base := audio[f*stride:]
		var allWet float32
		for c := 0; c < chans; c++ {
			allWet += float32(base[c]) * wet
		}
		for c := 0; c < chans; c++ {
			base[c] = T(r.rng.clamp(float32(base[c])*dry + allWet))
		}
	}
}

func scaleTap(tap int, sampleRate float64) int {
	t := int(float64(tap) * sampleRate / NativeSampleRate)
	if t < 1 {
		t = 1
	}
	return t
}

func (rc *reverbCore) allocate(apTaps [2]int) {
	for c := 0; c < 8; c++ {
		for j := 0; j < rc.combs; j++ {
			rc.comb[c][j].allocate(scaleTap(combTapDelays[j], rc.sampleRate))
		}
		for j := range apTaps {
			rc.allPass[c][j].allocate(scaleTap(apTaps[j], rc.sampleRate))
		}
		rc.lpLastOut[c] = 0
	}
}

func (rc *reverbCore) update(p *reverbParams, apTaps [2]int) {
	timeSamples := float64(p.time) * rc.sampleRate
	rc.apCoef = p.coloration
	for c := 0; c < 8; c++ {
		for j := 0; j < rc.combs; j++ {
			tap := scaleTap(combTapDelays[j], rc.sampleRate)
			rc.combCoef[c][j] = float32(math.Pow(10, -3*float64(tap)/timeSamples))
			rc.comb[c][j].setDelay(tap)
		}
		for j := range apTaps {
			rc.allPass[c][j].setDelay(scaleTap(apTaps[j], rc.sampleRate))
		}
	}
	damping := max(p.damping, 0.05)
	rc.dampCoef = 1 - (damping*0.8 + 0.05)
	rc.wet = p.mix * 0.6
	rc.dry = 0.6 - rc.wet

	preDelay := int(float64(p.preDelay) * rc.sampleRate)
	for c := 0; c < 8; c++ {
		if preDelay > 0 {
			rc.preDelay[c] = make([]float32, preDelay)
		} else {
			rc.preDelay[c] = nil
		}
		rc.preDelayPos[c] = 0
	}
}

// process runs one sample of channel c through pre-delay, the parallel
// combs, the first all-pass, the damping low-pass and the second all-pass.
func (rc *reverbCore) process(c int, in float32) float32 {
	if line := rc.preDelay[c]; line != nil {
		pos := rc.preDelayPos[c]
		in, line[pos] = line[pos], in
		rc.preDelayPos[c] = (pos + 1) % len(line)
	}
	var sum float32
	for j := 0; j < rc.combs; j++ {
		sum += rc.comb[c][j].comb(in, rc.combCoef[c][j])
	}
	ap := rc.allPass[c][0].allPass(sum, rc.apCoef)
	lp := rc.dampCoef*rc.lpLastOut[c] + ap*0.3
	rc.lpLastOut[c] = lp
	return rc.allPass[c][1].allPass(lp, rc.apCoef)
}

func (l *delayLine) allocate(delay int) {
	l.buf = make([]float32, delay+2)
	l.in = 0
	l.last = 0
	l.setDelay(delay)
}

func (l *delayLine) setDelay(delay int) {
	l.out = l.in - delay
	for l.out < 0 {
		l.out += len(l.buf)
	}
}

func (l *delayLine) step() {
	l.in++
	if l.in == len(l.buf) {
		l.in = 0
	}
	l.last = l.buf[l.out]
	l.out++
	if l.out == len(l.buf) {
		l.out = 0
	}
}

func (l *delayLine) comb(x, coef float32) float32 {
	l.buf[l.in] = coef*l.last + x
	l.step()
	return l.last
}

func (l *delayLine) allPass(x, coef float32) float32 {
	l.buf[l.in] = coef*l.last + x
	y := -(coef*l.buf[l.in] - l.last)
	l.step()
	return y
}

func (l *delayLine) delay(x float32) float32 {
	l.buf[l.in] = x
	l.step()
	return l.last
}
