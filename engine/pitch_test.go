package engine_test

import (
	"math"
	"testing"

	"github.com/amuse-audio/amuse"
	"github.com/amuse-audio/amuse/engine"
)

// startPitched plays cmds on a looped sample pitched at key 60, so the
// voice pitch ratio reflects the macro pitch in cents.
func startPitched(t *testing.T, cmds ...amuse.Cmd) (*engine.Engine, *engine.Voice) {
	t.Helper()
	g := newGroupBuilder().
		macro(0, append([]amuse.Cmd{cmd(amuse.StartSample, 1, 0, 0)}, cmds...)...).
		pcmSample(1, ramp(100), 20, 50).
		build()
	e, _ := newTestEngine(g, testConfig())
	v := e.MacroStart(g, 0, 60, 100, 0, nil)
	if v == nil {
		t.Fatal("MacroStart returned nil")
	}
	return e, v
}

func checkCents(t *testing.T, v *engine.Voice, cents float64) {
	t.Helper()
	want := math.Exp2(cents / 1200)
	if got := v.PitchRatio(); math.Abs(got-want) > 1e-6 {
		t.Fatalf("pitch ratio %v, expected %v (%v cents)", got, want, cents)
	}
}

func TestPitchSweeps(t *testing.T) {
	e, v := startPitched(t,
		cmd(amuse.PitchSweep1, 2, 100, 1, 8),
		cmd(amuse.PitchSweep2, 0, -50, 1, 8),
		waitForever(),
	)
	pump(e, 1, 0.005)
	checkCents(t, v, 0)
	pump(e, 2, 0.005)
	// one step of each sweep after 15 ms
	checkCents(t, v, 50)
	pump(e, 16, 0.005)
	// 11 steps after 95 ms; the first sweep stops after two
	checkCents(t, v, 200-550)
}

func TestVibrato(t *testing.T) {
	e, v := startPitched(t, cmd(amuse.Vibrato, 1, 0, 0, 1, 40), waitForever())
	for _, step := range []struct {
		pumps int
		cents float64
	}{
		{2, 100},
		{2, 0},
		{2, -100},
		{2, 0},
	} {
		pump(e, step.pumps, 0.005)
		checkCents(t, v, step.cents)
	}
}

func TestVibratoFollowsModWheel(t *testing.T) {
	e, v := startPitched(t,
		cmd(amuse.Mod2Vibrange, 2, 0),
		cmd(amuse.Vibrato, 1, 0, 1, 1, 40),
		waitForever(),
	)
	pump(e, 1, 0.005)
	checkCents(t, v, 0)
	v.SetCtrlValue(1, 127)
	pump(e, 1, 0.005)
	checkCents(t, v, 200)
}

func TestPortamento(t *testing.T) {
	e, v := startPitched(t, cmd(amuse.Portamento, 1, 0, 100), waitForever())
	pump(e, 1, 0.005)
	if !v.DoPortamento(72) {
		t.Fatal("portamento enabled by the macro was refused")
	}
	if v.LastNote() != 72 {
		t.Fatalf("last note %d after portamento", v.LastNote())
	}
	pump(e, 10, 0.005)
	checkCents(t, v, 600)
	pump(e, 15, 0.005)
	checkCents(t, v, 1200)
	if v.MacroState().Pitch() != 7200 {
		t.Fatalf("macro pitch %d after the glide, expected 7200", v.MacroState().Pitch())
	}
}

func TestPortamentoModes(t *testing.T) {
	e, off := startPitched(t, waitForever())
	pump(e, 1, 0.005)
	if off.DoPortamento(72) {
		t.Fatal("portamento ran without being enabled")
	}
	e, ctl := startPitched(t, cmd(amuse.Portamento, 2, 0, 100), waitForever())
	pump(e, 1, 0.005)
	if ctl.DoPortamento(72) {
		t.Fatal("MIDI controlled portamento ran with the pedal up")
	}
	ctl.SetCtrlValue(65, 127)
	if !ctl.DoPortamento(72) {
		t.Fatal("MIDI controlled portamento refused with the pedal down")
	}
}
