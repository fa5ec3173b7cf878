package effect

type (
	// ChorusControl is the format independent parameter interface of a
	// Chorus. Base delay and variation are milliseconds, period is the
	// modulation period in milliseconds.
	ChorusControl interface {
		SetBaseDelay(ms uint32)
		BaseDelay() uint32
		SetVariation(ms uint32)
		Variation() uint32
		SetPeriod(ms uint32)
		Period() uint32
	}

	// Chorus mixes a delayed copy of the input back in while sweeping the
	// delay up and down in a triangle. The read head is fractional and uses
	// 4-tap cubic interpolation, so the sweep resamples the delayed copy
	// rather than stepping through it.
	Chorus[T Sample] struct {
		baseDelay uint32 // 5..15 ms
		variation uint32 // 0..5 ms
		period    uint32 // 500..10000 ms

		history  [8][]float32
		writePos int

		curDelay    float64 // in samples
		minDelay    float64
		maxDelay    float64
		pitchOffset float64 // delay change per sample

		pitchOffsetPeriod      int // in blocks
		pitchOffsetPeriodCount int

		sampsPerMs   int
		blockSamples int
		rng          sampleRange
		dirty        bool
	}
)

// chorusHistoryBlocks is the ring length in 5 ms blocks: enough for the
// largest base delay plus variation plus the interpolation taps.
const chorusHistoryBlocks = 6

func NewChorus[T Sample](baseDelay, variation, period uint32, sampleRate float64) *Chorus[T] {
	c := &Chorus[T]{rng: rangeOf[T]()}
	c.SetBaseDelay(baseDelay)
	c.SetVariation(variation)
	c.SetPeriod(period)
	c.ResetOutputSampleRate(sampleRate)
	return c
}

func (c *Chorus[T]) SetBaseDelay(ms uint32) { c.baseDelay = clampU32(ms, 5, 15); c.dirty = true }
func (c *Chorus[T]) BaseDelay() uint32      { return c.baseDelay }
func (c *Chorus[T]) SetVariation(ms uint32) { c.variation = clampU32(ms, 0, 5); c.dirty = true }
func (c *Chorus[T]) Variation() uint32      { return c.variation }
func (c *Chorus[T]) SetPeriod(ms uint32)    { c.period = clampU32(ms, 500, 10000); c.dirty = true }
func (c *Chorus[T]) Period() uint32         { return c.period }

func (c *Chorus[T]) ResetOutputSampleRate(sampleRate float64) {
	c.sampsPerMs, c.blockSamples = blockSize(sampleRate)
	for i := range c.history {
		c.history[i] = make([]float32, chorusHistoryBlocks*c.blockSamples)
	}
	c.writePos = 0
	c.dirty = true
}

func (c *Chorus[T]) update() {
	base := float64(c.baseDelay) * float64(c.sampsPerMs)
	variation := float64(c.variation) * float64(c.sampsPerMs)
	c.minDelay = base - variation
	c.maxDelay = base + variation
	if c.minDelay < 3 {
		c.minDelay = 3
	}
	c.curDelay = base

	// the period is split in two halves of whole blocks; the sweep direction
	// flips at every half
	c.pitchOffsetPeriod = (int(c.period)/5 + 1) &^ 1
	half := c.pitchOffsetPeriod / 2
	c.pitchOffset = 0
	if half > 0 {
		c.pitchOffset = 2 * variation / float64(half*c.blockSamples)
	}
	c.pitchOffsetPeriodCount = half / 2
	c.dirty = false
}

func (c *Chorus[T]) ApplyEffect(audio []T, frames int, chanMap ChannelMap) {
	if c.dirty {
		c.update()
	}
	stride := chanMap.Count
	chans := min(stride, 8)
	histLen := len(c.history[0])
	for f := 0; f < frames; f += c.blockSamples {
		n := min(c.blockSamples, frames-f)
		for i := 0; i < n; i++ {
			delay := c.curDelay
			if delay < c.minDelay {
				delay = c.minDelay
			} else if delay > c.maxDelay {
				delay = c.maxDelay
			}
			read := float64(c.writePos) - delay
			for read < 0 {
				read += float64(histLen)
			}
			pos := int(read)
			frac := float32(read - float64(pos))
			for ch := 0; ch < chans; ch++ {
				idx := (f+i)*stride + ch
				in := float32(audio[idx])
				hist := c.history[ch]
				hist[c.writePos] = in
				wet := cubic(hist, pos, frac)
				audio[idx] = T(c.rng.clamp(0.5*in + 0.5*wet))
			}
			c.writePos++
			if c.writePos == histLen {
				c.writePos = 0
			}
			c.curDelay += c.pitchOffset
		}
		c.pitchOffsetPeriodCount--
		if c.pitchOffsetPeriodCount <= 0 {
			c.pitchOffset = -c.pitchOffset
			c.pitchOffsetPeriodCount = c.pitchOffsetPeriod / 2
		}
	}
}

// cubic interpolates hist between pos and pos+1 using the neighbours at
// pos-1 and pos+2 (Catmull-Rom).
func cubic(hist []float32, pos int, frac float32) float32 {
	n := len(hist)
	y0 := hist[(pos-1+n)%n]
	y1 := hist[pos%n]
	y2 := hist[(pos+1)%n]
	y3 := hist[(pos+2)%n]
	a0 := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
	a1 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	a2 := -0.5*y0 + 0.5*y2
	return ((a0*frac+a1)*frac+a2)*frac + y1
}
