package engine_test

import (
	"testing"

	"github.com/amuse-audio/amuse"
	"github.com/amuse-audio/amuse/engine"
)

const envStep = 1.0 / 64

func TestEnvelopePhases(t *testing.T) {
	var env engine.Envelope
	env.Reset(&amuse.ADSR{Attack: 125, Decay: 250, Sustain: 0x800, Release: 125})
	for k := 0; k < 8; k++ {
		if got, want := env.Advance(envStep, nil), float64(k)/8; got != want {
			t.Fatalf("attack step %d: got %v, expected %v", k, got, want)
		}
	}
	if got := env.Advance(envStep, nil); got != 1 || env.State() != engine.EnvelopeDecay {
		t.Fatalf("end of attack: got %v in %v", got, env.State())
	}
	for j := 0; j < 16; j++ {
		if got, want := env.Advance(envStep, nil), 1-float64(j)/32; got != want {
			t.Fatalf("decay step %d: got %v, expected %v", j, got, want)
		}
	}
	for i := 0; i < 10; i++ {
		if got := env.Advance(envStep, nil); got != 0.5 {
			t.Fatalf("sustain step %d: got %v", i, got)
		}
	}
	if env.State() != engine.EnvelopeSustain {
		t.Fatalf("expected sustain, got %v", env.State())
	}
	env.KeyOff(nil)
	want := []float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.375, 0.25, 0.125, 0}
	for r, w := range want {
		if got := env.Advance(envStep, nil); got != w {
			t.Fatalf("release step %d: got %v, expected %v", r, got, w)
		}
	}
	if !env.IsComplete() {
		t.Fatalf("release did not complete: %v", env.State())
	}
}

func TestEnvelopeZeroAttack(t *testing.T) {
	var env engine.Envelope
	env.Reset(&amuse.ADSR{Attack: 0, Decay: 0x8000, Sustain: 0x1000, Release: 0})
	if got := env.Advance(envStep, nil); got != 1 {
		t.Fatalf("zero attack started at %v", got)
	}
	if got := env.Advance(envStep, nil); got != 1 || env.State() != engine.EnvelopeSustain {
		t.Fatalf("missing decay went to %v in %v", got, env.State())
	}
	env.KeyOff(nil)
	if !env.IsComplete() {
		t.Fatal("KeyOff without release time did not complete at once")
	}
}

func TestEnvelopeControllerTimes(t *testing.T) {
	var env engine.Envelope
	env.ResetControlled()
	if !env.IsSet() {
		t.Fatal("controlled envelope reports unset")
	}
	ctl := &engine.EnvelopeControls{Attack: 0, Decay: 0, Sustain: 127, Release: 0}
	if got := env.Advance(envStep, ctl); got != 1 {
		t.Fatalf("controller attack 0 gave %v", got)
	}
	if got := env.Advance(envStep, ctl); got != 1 {
		t.Fatalf("controller sustain 127 gave %v", got)
	}
	ctl.Sustain = 0
	if got := env.Advance(envStep, ctl); got != 0 {
		t.Fatalf("controller sustain is read on every step, got %v", got)
	}
}

func TestEnvelopeUnsetByDefault(t *testing.T) {
	var env engine.Envelope
	if env.IsSet() {
		t.Fatal("zero envelope reports a table")
	}
	if !env.ResetTable(&amuse.ADSRDLS{Attack: 0x80000000, Decay: 0x80000000, Sustain: 1000, Release: 0x80000000, VelToAttack: 0x80000000, KeyToDecay: 0x80000000}, 60, 100) {
		t.Fatal("DLS table rejected")
	}
	if env.ResetTable(&amuse.Curve{}, 60, 100) {
		t.Fatal("curve accepted as an envelope")
	}
	if got := env.Advance(envStep, nil); got != 1 {
		t.Fatalf("zero time DLS envelope started at %v", got)
	}
}
