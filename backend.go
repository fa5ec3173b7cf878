package amuse

import (
	"fmt"

	"github.com/amuse-audio/amuse/effect"
)

type (
	// ChannelSet is the speaker layout of the output.
	ChannelSet int

	// VoiceSource is the engine side of a backend voice. Once per block the
	// backend calls PreSupplyAudio to run the voice's macro, pulls decoded
	// PCM at the voice's own sample rate with SupplyAudio, resamples it, and
	// then asks the voice to apply its gain once per bus with RouteAudio.
	VoiceSource interface {
		PreSupplyAudio(dt float64)
		// SupplyAudio fills data[:frames] with mono samples at the voice
		// sample rate and returns how many were decoded. The rest of the
		// range is zeroed.
		SupplyAudio(frames int, data []int16) int
		// RouteAudio scales the resampled input for bus busID (0 main, 1
		// aux A, 2 aux B) into out. dt is the length of the block in seconds.
		RouteAudio(frames int, dt float64, busID int, in, out []float32)
	}

	// SubmixSource is the engine side of a backend submix: an effect stack
	// that runs on whichever sample format the backend mixes the submix in.
	SubmixSource interface {
		CanApplyEffect() bool
		ApplyEffectInt16(audio []int16, frames int, chanMap effect.ChannelMap)
		ApplyEffectInt32(audio []int32, frames int, chanMap effect.ChannelMap)
		ApplyEffectFloat32(audio []float32, frames int, chanMap effect.ChannelMap)
		ResetOutputSampleRate(sampleRate float64)
	}

	// EngineCallback is how the backend drives the engine. On5MsInterval is
	// called before each 5 ms block is mixed, OnPumpCycleComplete after a
	// whole pump.
	EngineCallback interface {
		On5MsInterval(dt float64)
		OnPumpCycleComplete()
	}

	// BackendVoice is one playing sample stream inside the backend.
	BackendVoice interface {
		ResetSampleRate(sampleRate float64)
		// ResetChannelLevels silences the voice on every submix.
		ResetChannelLevels()
		SetPitchRatio(ratio float64, slew bool)
		// SetChannelLevels sets the per-speaker gain of the voice on a
		// submix.
		SetChannelLevels(submix BackendSubmix, levels [8]float32, slew bool)
		Start()
		Stop()
		Close()
	}

	// BackendSubmix is one mixing bus inside the backend.
	BackendSubmix interface {
		// SetSendLevel routes the output of this submix into target.
		SetSendLevel(target BackendSubmix, level float32, slew bool)
		SampleRate() float64
		SampleFormat() effect.Format
		Close()
	}

	// AudioSink receives the rendered output of a backend as interleaved
	// float32 frames.
	AudioSink interface {
		WriteAudio(buffer []float32) error
		Close() error
	}

	// AudioContext is an output device that sinks are opened on.
	AudioContext interface {
		Output() AudioSink
		Close() error
	}

	// BackendVoiceAllocator creates voices and submixes. The engine never
	// opens an audio device itself; it is handed an allocator.
	BackendVoiceAllocator interface {
		AllocateVoice(client VoiceSource, sampleRate float64, dynamicPitch bool) BackendVoice
		AllocateSubmix(client SubmixSource, mainOut bool, busID int) BackendSubmix
		ChannelSet() ChannelSet
		SetCallback(cb EngineCallback)
		SetVolume(vol float32)
	}
)

const (
	Stereo ChannelSet = iota
	Quad
	Surround51
	Surround71
)

// Count returns the number of interleaved channels.
func (c ChannelSet) Count() int {
	switch c {
	case Quad:
		return 4
	case Surround51:
		return 6
	case Surround71:
		return 8
	}
	return 2
}

// ChannelMap returns the effect channel map of the layout.
func (c ChannelSet) ChannelMap() effect.ChannelMap {
	return effect.MapForCount(c.Count())
}

func (c ChannelSet) String() string {
	switch c {
	case Stereo:
		return "stereo"
	case Quad:
		return "quad"
	case Surround51:
		return "5.1"
	case Surround71:
		return "7.1"
	}
	return fmt.Sprintf("ChannelSet(%d)", int(c))
}

func (c ChannelSet) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ChannelSet) UnmarshalText(text []byte) error {
	for _, s := range []ChannelSet{Stereo, Quad, Surround51, Surround71} {
		if s.String() == string(text) {
			*c = s
			return nil
		}
	}
	return fmt.Errorf("unknown channel set %q", text)
}
