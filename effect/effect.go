// Package effect implements the submix effects of the engine: a standard and a
// high quality reverb, a multi-channel delay and a chorus. Every effect is
// generic over the sample representation of the bus it is inserted on, so a
// submix running 16-bit integer audio gets an int16 instance and a floating
// point submix a float32 one.
//
// Parameters are clamped by their setters and never rejected. Changing a
// parameter only marks the effect dirty; internal delay lines are rebuilt at
// the start of the next ApplyEffect call, never in the middle of a buffer.
package effect

import (
	"fmt"
	"math"
	"strings"

	"github.com/viterin/vek/vek32"
)

type (
	// Sample is the set of sample representations an effect can run on.
	Sample interface {
		int16 | int32 | float32
	}

	// Format names one of the Sample representations at runtime, e.g. when a
	// submix is created from configuration.
	Format int

	// Channel is the speaker position of one interleaved channel.
	Channel int

	// ChannelMap tells an effect how many channels are interleaved in the
	// audio it is given and which speaker each one feeds.
	ChannelMap struct {
		Count    int
		Channels [8]Channel
	}

	// Effect is a single processor in a submix effect stack. audio holds
	// frames*chanMap.Count interleaved samples and is processed in place.
	Effect[T Sample] interface {
		ApplyEffect(audio []T, frames int, chanMap ChannelMap)
		ResetOutputSampleRate(sampleRate float64)
	}

	// Stack is the ordered list of effects of one submix.
	Stack[T Sample] struct {
		effects []Effect[T]
	}
)

const (
	FormatInt16 Format = iota
	FormatInt32
	FormatFloat32
)

const (
	FrontLeft Channel = iota
	FrontRight
	RearLeft
	RearRight
	FrontCenter
	LFE
	SideLeft
	SideRight
	Unknown
)

// NativeSampleRate is the rate the reverb tap lengths were tuned at; other
// rates scale the taps proportionally.
const NativeSampleRate = 32000.0

var formatNames = [...]string{"int16", "int32", "float32"}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return fmt.Sprintf("Format(%d)", int(f))
	}
	return formatNames[f]
}

// MarshalText lets configuration files spell the format by name.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Format) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for i, n := range formatNames {
		if n == s {
			*f = Format(i)
			return nil
		}
	}
	return fmt.Errorf("unknown sample format %q", s)
}

// StereoMap returns the channel map of a plain left/right bus.
func StereoMap() ChannelMap {
	return ChannelMap{Count: 2, Channels: [8]Channel{FrontLeft, FrontRight}}
}

// MapForCount returns the conventional channel map for a bus with count
// interleaved channels (1, 2, 4, 6 or 8).
func MapForCount(count int) ChannelMap {
	switch count {
	case 1:
		return ChannelMap{Count: 1, Channels: [8]Channel{FrontCenter}}
	case 4:
		return ChannelMap{Count: 4, Channels: [8]Channel{FrontLeft, FrontRight, RearLeft, RearRight}}
	case 6:
		return ChannelMap{Count: 6, Channels: [8]Channel{FrontLeft, FrontRight, FrontCenter, LFE, RearLeft, RearRight}}
	case 8:
		return ChannelMap{Count: 8, Channels: [8]Channel{FrontLeft, FrontRight, FrontCenter, LFE, RearLeft, RearRight, SideLeft, SideRight}}
	}
	return StereoMap()
}

// Push appends an effect to the end of the stack.
func (s *Stack[T]) Push(e Effect[T]) {
	s.effects = append(s.effects, e)
}

func (s *Stack[T]) Len() int {
	return len(s.effects)
}

// Clear removes every effect.
func (s *Stack[T]) Clear() {
	s.effects = nil
}

// Effects returns the effects in processing order.
func (s *Stack[T]) Effects() []Effect[T] {
	return s.effects
}

// Apply runs every effect in order over the buffer.
func (s *Stack[T]) Apply(audio []T, frames int, chanMap ChannelMap) {
	for _, e := range s.effects {
		e.ApplyEffect(audio, frames, chanMap)
	}
}

func (s *Stack[T]) ResetOutputSampleRate(sampleRate float64) {
	for _, e := range s.effects {
		e.ResetOutputSampleRate(sampleRate)
	}
}

// blockSize returns the number of samples per millisecond (rounded up) and
// the number of samples in one 5 ms processing block.
func blockSize(sampleRate float64) (sampsPerMs, block int) {
	sampsPerMs = int(math.Ceil(sampleRate / 1000.0))
	if sampsPerMs < 1 {
		sampsPerMs = 1
	}
	return sampsPerMs, sampsPerMs * 5
}

// sampleRange holds the representable range of a Sample type so the per
// sample loops do not need a type switch.
type sampleRange struct {
	lo, hi   float64
	floating bool
}

func rangeOf[T Sample]() sampleRange {
	var zero T
	switch any(zero).(type) {
	case int16:
		return sampleRange{lo: math.MinInt16, hi: math.MaxInt16}
	case int32:
		return sampleRange{lo: math.MinInt32, hi: math.MaxInt32}
	}
	return sampleRange{floating: true}
}

func (r sampleRange) clamp(v float32) float64 {
	f := float64(v)
	if r.floating {
		return f
	}
	if f < r.lo {
		return r.lo
	}
	if f > r.hi {
		return r.hi
	}
	return f
}

// workBuf holds one channel of a block in float32 while an effect runs.
type workBuf struct {
	in, out []float32
}

func (b *workBuf) grow(n int) {
	if cap(b.in) < n {
		b.in = make([]float32, n)
		b.out = make([]float32, n)
	}
	b.in, b.out = b.in[:n], b.out[:n]
}

// gather copies channel c of n interleaved frames into b.in.
func gather[T Sample](b *workBuf, audio []T, n, stride, c int) {
	b.grow(n)
	for i := range b.in {
		b.in[i] = float32(audio[i*stride+c])
	}
}

// scatter writes b.out back to channel c, clamped to the sample range.
func scatter[T Sample](b *workBuf, audio []T, stride, c int, rng sampleRange) {
	for i, v := range b.out {
		audio[i*stride+c] = T(rng.clamp(v))
	}
}

// mixWetDry leaves wet*out + dry*in in b.out. b.in is scaled in place.
func (b *workBuf) mixWetDry(wet, dry float32) {
	vek32.MulNumber_Inplace(b.out, wet)
	vek32.MulNumber_Inplace(b.in, dry)
	vek32.Add_Inplace(b.out, b.in)
}

func clampU32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampF32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
