package effect

import "github.com/viterin/vek/vek32"

type (
	// DelayControl is the format independent parameter interface of a Delay.
	// Delays are in milliseconds (10..5000), feedback and output in percent
	// (0..100).
	DelayControl interface {
		SetDelay(ms uint32)
		SetChanDelay(channel int, ms uint32)
		ChanDelay(channel int) uint32
		SetFeedback(percent uint32)
		SetChanFeedback(channel int, percent uint32)
		ChanFeedback(channel int) uint32
		SetOutput(percent uint32)
		SetChanOutput(channel int, percent uint32)
		ChanOutput(channel int) uint32
	}

	// Delay is a feedback delay with independently sized lines per channel.
	// The lines are ring buffers of whole 5 ms blocks, so the delay time is
	// quantized to the block length.
	Delay[T Sample] struct {
		delay    [8]uint32
		feedback [8]uint32
		output   [8]uint32

		currentSize     [8]int // in blocks
		currentPos      [8]int
		currentFeedback [8]float32
		currentOutput   [8]float32
		lines           [8][]T

		sampsPerMs   int
		blockSamples int
		rng          sampleRange
		buf          workBuf
		dirty        bool
	}
)

// NewDelay creates a delay with the same parameters on every channel.
func NewDelay[T Sample](delay, feedback, output uint32, sampleRate float64) *Delay[T] {
	d := &Delay[T]{rng: rangeOf[T]()}
	delay = clampU32(delay, 10, 5000)
	feedback = clampU32(feedback, 0, 100)
	output = clampU32(output, 0, 100)
	for i := range d.delay {
		d.delay[i] = delay
		d.feedback[i] = feedback
		d.output[i] = output
	}
	d.ResetOutputSampleRate(sampleRate)
	return d
}

func (d *Delay[T]) SetDelay(ms uint32) {
	ms = clampU32(ms, 10, 5000)
	for i := range d.delay {
		d.delay[i] = ms
	}
	d.dirty = true
}

func (d *Delay[T]) SetChanDelay(channel int, ms uint32) {
	if channel < 0 || channel >= 8 {
		return
	}
	d.delay[channel] = clampU32(ms, 10, 5000)
	d.dirty = true
}

func (d *Delay[T]) ChanDelay(channel int) uint32 {
	if channel < 0 || channel >= 8 {
		return 0
	}
	return d.delay[channel]
}

func (d *Delay[T]) SetFeedback(percent uint32) {
	percent = clampU32(percent, 0, 100)
	for i := range d.feedback {
		d.feedback[i] = percent
	}
	d.dirty = true
}

func (d *Delay[T]) SetChanFeedback(channel int, percent uint32) {
	if channel < 0 || channel >= 8 {
		return
	}
	d.feedback[channel] = clampU32(percent, 0, 100)
	d.dirty = true
}

func (d *Delay[T]) ChanFeedback(channel int) uint32 {
	if channel < 0 || channel >= 8 {
		return 0
	}
	return d.feedback[channel]
}

func (d *Delay[T]) SetOutput(percent uint32) {
	percent = clampU32(percent, 0, 100)
	for i := range d.output {
		d.output[i] = percent
	}
	d.dirty = true
}

func (d *Delay[T]) SetChanOutput(channel int, percent uint32) {
	if channel < 0 || channel >= 8 {
		return
	}
	d.output[channel] = clampU32(percent, 0, 100)
	d.dirty = true
}

func (d *Delay[T]) ChanOutput(channel int) uint32 {
	if channel < 0 || channel >= 8 {
		return 0
	}
	return d.output[channel]
}

func (d *Delay[T]) ResetOutputSampleRate(sampleRate float64) {
	d.sampsPerMs, d.blockSamples = blockSize(sampleRate)
	d.dirty = true
}

func (d *Delay[T]) update() {
	for i := 0; i < 8; i++ {
		size := (int(d.delay[i])*d.sampsPerMs + d.blockSamples - 1) / d.blockSamples
		if size < 1 {
			size = 1
		}
		d.currentSize[i] = size
		d.currentPos[i] = 0
		d.currentFeedback[i] = float32(d.feedback[i]*128/100) / 128
		d.currentOutput[i] = float32(d.output[i]*128/100) / 128
		d.lines[i] = make([]T, size*d.blockSamples)
	}
	d.dirty = false
}

func (d *Delay[T]) ApplyEffect(audio []T, frames int, chanMap ChannelMap) {
	if d.dirty {
		d.update()
	}
	stride := chanMap.Count
	chans := min(stride, 8)
	for f := 0; f < frames; f += d.blockSamples {
		n := min(d.blockSamples, frames-f)
		block := audio[f*stride:]
		for c := 0; c < chans; c++ {
			line := d.lines[c][d.currentPos[c]*d.blockSamples:]
			fb := d.currentFeedback[c]
			gather(&d.buf, block, n, stride, c)
			for i, in := range d.buf.in {
				s := T(d.rng.clamp(float32(line[i])*fb + in))
				line[i] = s
				d.buf.out[i] = float32(s)
			}
			vek32.MulNumber_Inplace(d.buf.out, d.currentOutput[c])
			scatter(&d.buf, block, stride, c, d.rng)
			d.currentPos[c] = (d.currentPos[c] + 1) % d.currentSize[c]
		}
	}
}
