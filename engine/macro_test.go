package engine_test

import (
	"testing"

	"github.com/amuse-audio/amuse"
	"github.com/amuse-audio/amuse/engine"
	"github.com/davecgh/go-spew/spew"
)

func startMacro(t *testing.T, cmds ...amuse.Cmd) (*engine.Engine, *engine.Voice) {
	t.Helper()
	g := newGroupBuilder().macro(0, cmds...).pcmSample(1, ramp(100), 0, 0).build()
	e, _ := newTestEngine(g, testConfig())
	v := e.MacroStart(g, 0, 60, 100, 0, nil)
	if v == nil {
		t.Fatal("MacroStart returned nil")
	}
	return e, v
}

func TestWaitTicksTiming(t *testing.T) {
	e, v := startMacro(t,
		cmd(amuse.WaitTicks, 0, 0, 0, 0, 1, 10),
		cmd(amuse.SetVar, 0, 0, 7),
		waitForever(),
	)
	pump(e, 9, 0.001)
	if got := v.MacroState().Variable(0); got != 0 {
		t.Fatalf("wait of 10 ms released after 9 ms: var0 = %d", got)
	}
	pump(e, 2, 0.001)
	if got := v.MacroState().Variable(0); got != 7 {
		t.Fatalf("wait of 10 ms still pending after 11 ms: var0 = %d", got)
	}
}

func TestWaitTicksUsesTicksPerSecond(t *testing.T) {
	g := newGroupBuilder().macro(0,
		cmd(amuse.WaitTicks, 0, 0, 0, 0, 0, 50),
		cmd(amuse.SetVar, 0, 0, 1),
		waitForever(),
	).build()
	e, _ := newTestEngine(g, testConfig())
	v := e.MacroStart(g, 0, 60, 100, 0, nil)
	// MacroStart runs at 1000 ticks per second
	pump(e, 40, 0.001)
	if v.MacroState().Variable(0) != 0 {
		t.Fatal("50 tick wait released after 40 ms")
	}
	pump(e, 12, 0.001)
	if v.MacroState().Variable(0) != 1 {
		t.Fatal("50 tick wait still pending after 52 ms")
	}
}

func TestLoopCountdown(t *testing.T) {
	e, v := startMacro(t,
		cmd(amuse.AddIVars, 0, 0, 0, 0, 1),
		cmd(amuse.Loop, 0, 0, 0, 0, 3),
		waitForever(),
	)
	pump(e, 1, 0.005)
	if got := v.MacroState().Variable(0); got != 4 {
		t.Fatalf("loop of 3 ran the body %d times, expected 4", got)
	}
	if v.MacroState().PC() != 3 {
		t.Fatalf("macro stopped at step %d", v.MacroState().PC())
	}
}

func TestLoopCountdownAcrossWaits(t *testing.T) {
	e, v := startMacro(t,
		cmd(amuse.AddIVars, 0, 0, 0, 0, 1),
		cmd(amuse.WaitTicks, 0, 0, 0, 0, 1, 10),
		cmd(amuse.Loop, 0, 0, 0, 0, 3),
		waitForever(),
	)
	pump(e, 1, 0.005)
	if got := v.MacroState().Variable(0); got != 1 || !v.MacroState().InWait() {
		t.Fatalf("first pass: var0 = %d, waiting %v", got, v.MacroState().InWait())
	}
	pump(e, 40, 0.005)
	if got := v.MacroState().Variable(0); got != 4 {
		t.Fatalf("loop of 3 around a wait ran the body %d times, expected 4", got)
	}
	if v.MacroState().PC() != 4 {
		t.Fatalf("macro stopped at step %d", v.MacroState().PC())
	}
}

func TestVariableArithmetic(t *testing.T) {
	tests := []struct {
		name string
		cmds []amuse.Cmd
		want int32
	}{
		{"add", []amuse.Cmd{cmd(amuse.SetVar, 0, 1, 5), cmd(amuse.SetVar, 0, 2, 6), cmd(amuse.AddVars, 0, 0, 0, 1, 0, 2)}, 11},
		{"sub", []amuse.Cmd{cmd(amuse.SetVar, 0, 1, 5), cmd(amuse.SetVar, 0, 2, 6), cmd(amuse.SubVars, 0, 0, 0, 1, 0, 2)}, -1},
		{"mul", []amuse.Cmd{cmd(amuse.SetVar, 0, 1, 5), cmd(amuse.SetVar, 0, 2, 6), cmd(amuse.MulVars, 0, 0, 0, 1, 0, 2)}, 30},
		{"div", []amuse.Cmd{cmd(amuse.SetVar, 0, 1, 30), cmd(amuse.SetVar, 0, 2, 6), cmd(amuse.DivVars, 0, 0, 0, 1, 0, 2)}, 5},
		{"div by zero", []amuse.Cmd{cmd(amuse.SetVar, 0, 0, 9), cmd(amuse.SetVar, 0, 1, 30), cmd(amuse.DivVars, 0, 0, 0, 1, 0, 2)}, 0},
		{"if equal", []amuse.Cmd{cmd(amuse.IfEqual, 0, 1, 0, 2, 0, 2), cmd(amuse.SetVar, 0, 0, 1), cmd(amuse.SetVar, 0, 3, 1)}, 0},
		{"if less", []amuse.Cmd{cmd(amuse.SetVar, 0, 1, 2), cmd(amuse.IfLess, 0, 1, 0, 2, 0, 3), cmd(amuse.SetVar, 0, 0, 1)}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, v := startMacro(t, append(tt.cmds, waitForever())...)
			pump(e, 1, 0.005)
			if got := v.MacroState().Variable(0); got != tt.want {
				t.Errorf("var0 = %d, expected %d", got, tt.want)
			}
		})
	}
}

func TestGoSubReturn(t *testing.T) {
	g := newGroupBuilder().
		macro(0, cmd(amuse.GoSub, 1, 0), cmd(amuse.AddIVars, 0, 0, 0, 0, 10), waitForever()).
		macro(1, cmd(amuse.SetVar, 0, 0, 1), cmd(amuse.Return)).
		build()
	e, _ := newTestEngine(g, testConfig())
	v := e.MacroStart(g, 0, 60, 100, 0, nil)
	pump(e, 1, 0.005)
	if got := v.MacroState().Variable(0); got != 11 {
		t.Fatalf("var0 = %d after subroutine, expected 11", got)
	}
	if v.MacroState().ObjectId() != 0 {
		t.Fatalf("returned into macro %v", v.MacroState().ObjectId())
	}
}

func TestSplitKey(t *testing.T) {
	g := newGroupBuilder().
		macro(0, cmd(amuse.SplitKey, 64, 0, 3), cmd(amuse.SetVar, 0, 0, 1), waitForever(), cmd(amuse.SetVar, 0, 0, 2), waitForever()).
		build()
	e, _ := newTestEngine(g, testConfig())
	low := e.MacroStart(g, 0, 60, 100, 0, nil)
	high := e.MacroStart(g, 0, 70, 100, 0, nil)
	pump(e, 1, 0.005)
	if low.MacroState().Variable(0) != 1 || high.MacroState().Variable(0) != 2 {
		t.Fatalf("split at key 64: low var0 %d, high var0 %d", low.MacroState().Variable(0), high.MacroState().Variable(0))
	}
}

func TestSampleEndTrapFiresOnce(t *testing.T) {
	e, v := startMacro(t,
		cmd(amuse.TrapEvent, int32(engine.TrapSampleEnd), 0, 4),
		cmd(amuse.StartSample, 1, 0, 0),
		waitForever(),
		cmd(amuse.End),
		cmd(amuse.AddIVars, 0, 0, 0, 0, 1),
		waitForever(),
	)
	// the mixer is not rendering, so pull the sample through by hand
	buf := make([]int16, 64)
	for i := 0; i < 20; i++ {
		e.PumpEngine(0.005)
		v.SupplyAudio(len(buf), buf)
	}
	if got := v.MacroState().Variable(0); got != 1 {
		t.Fatalf("sample end trap ran %d times, expected once", got)
	}
	if v.State() == engine.VoiceDead {
		t.Fatal("voice died while its macro waits")
	}
}

func TestSampleEndWaitEndsVoice(t *testing.T) {
	e, v := startMacro(t,
		cmd(amuse.StartSample, 1, 0, 0),
		cmd(amuse.WaitTicks, 0, 0, 1, 0, 0, 0xffff),
		cmd(amuse.End),
	)
	buf := make([]int16, 64)
	e.PumpEngine(0.005)
	if pos, playing := v.SamplePosition(); !playing || pos != 0 {
		t.Fatalf("sample not started: pos %d playing %v", pos, playing)
	}
	if n := v.SupplyAudio(len(buf), buf); n != len(buf) {
		t.Fatalf("supplied %d samples, expected %d", n, len(buf))
	}
	if n := v.SupplyAudio(len(buf), buf); n != 36 {
		t.Fatalf("supplied %d samples at the end, expected 36", n)
	}
	for i := 36; i < len(buf); i++ {
		if buf[i] != 0 {
			t.Fatalf("sample %d past the end is %d", i, buf[i])
		}
	}
	e.PumpEngine(0.005)
	if v.State() != engine.VoiceDead {
		t.Fatalf("voice state %v after its sample ended", v.State())
	}
	if e.FindVoice(v.ID()) != nil || e.ActiveVoiceCount() != 0 {
		t.Fatal("dead voice was not reaped")
	}
}

func TestKeyOffTrap(t *testing.T) {
	e, v := startMacro(t,
		cmd(amuse.TrapEvent, int32(engine.TrapKeyOff), 0, 3),
		waitForever(),
		cmd(amuse.End),
		cmd(amuse.SetVar, 0, 1, 9),
		waitForever(),
	)
	pump(e, 2, 0.005)
	v.KeyOff()
	pump(e, 1, 0.005)
	if got := v.MacroState().Variable(1); got != 9 {
		t.Fatalf("keyoff trap not taken: var1 = %d", got)
	}
}

func TestKeyOffReleasesWait(t *testing.T) {
	e, v := startMacro(t,
		cmd(amuse.WaitTicks, 1, 0, 0, 0, 0, 0xffff),
		cmd(amuse.SetVar, 0, 0, 3),
		waitForever(),
	)
	pump(e, 3, 0.005)
	if v.MacroState().Variable(0) != 0 {
		t.Fatal("keyoff wait released early")
	}
	v.KeyOff()
	pump(e, 1, 0.005)
	if v.MacroState().Variable(0) != 3 {
		t.Fatal("keyoff wait not released by KeyOff")
	}
}

func TestPlayMacroStartsChild(t *testing.T) {
	g := newGroupBuilder().
		macro(0, cmd(amuse.PlayMacro, 2, 1, 0, 0, 0), cmd(amuse.GetVid, 4, 1), waitForever()).
		macro(1, waitForever()).
		build()
	e, _ := newTestEngine(g, testConfig())
	v := e.MacroStart(g, 0, 60, 100, 0, nil)
	pump(e, 1, 0.005)
	if len(v.Children()) != 1 {
		t.Fatalf("expected one child voice, got %v", spew.Sdump(v.Children()))
	}
	child := e.FindVoice(v.Children()[0])
	if child == nil {
		t.Fatal("child voice not found")
	}
	if child.MacroState().ObjectId() != 1 || child.LastNote() != 62 {
		t.Fatalf("child runs %v at key %d", child.MacroState().ObjectId(), child.LastNote())
	}
	if got := v.MacroState().Variable(4); engine.VoiceID(got) != child.ID() {
		t.Fatalf("GetVid stored %d, expected %d", got, child.ID())
	}
	v.Kill()
	pump(e, 1, 0.005)
	if e.ActiveVoiceCount() != 0 || e.FindVoice(child.ID()) != nil {
		t.Fatal("killing the parent left the child running")
	}
}

func TestSendMessage(t *testing.T) {
	g := newGroupBuilder().
		macro(0, cmd(amuse.TrapEvent, int32(engine.TrapMessage), 0, 2), waitForever(), cmd(amuse.GetMessage, 5), waitForever()).
		macro(1, cmd(amuse.SetVar, 0, 3, 42), cmd(amuse.SendMessage, 0, 0, 0, 3), waitForever()).
		build()
	e, _ := newTestEngine(g, testConfig())
	receiver := e.MacroStart(g, 0, 60, 100, 0, nil)
	pump(e, 1, 0.005)
	e.MacroStart(g, 1, 60, 100, 0, nil)
	pump(e, 2, 0.005)
	if got := receiver.MacroState().Variable(5); got != 42 {
		t.Fatalf("receiver got message %d, expected 42", got)
	}
}

func TestCorruptMacroKillsOnlyItsVoice(t *testing.T) {
	g := newGroupBuilder().
		macro(0, cmd(amuse.Goto, 0, 9)).
		macro(1, waitForever()).
		build()
	e, _ := newTestEngine(g, testConfig())
	bad := e.MacroStart(g, 0, 60, 100, 0, nil)
	good := e.MacroStart(g, 1, 60, 100, 0, nil)
	pump(e, 1, 0.005)
	if bad.State() != engine.VoiceDead {
		t.Fatal("voice with an out of range jump kept running")
	}
	if good.State() != engine.VoicePlaying {
		t.Fatalf("unrelated voice is %v", good.State())
	}
}

func TestAssertPCPanics(t *testing.T) {
	m := &amuse.SoundMacro{Cmds: []amuse.Cmd{cmd(amuse.End)}}
	defer func() {
		if recover() == nil {
			t.Fatal("AssertPC(1) on a one command macro did not panic")
		}
	}()
	m.AssertPC(1)
}
