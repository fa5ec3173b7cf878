package engine_test

import (
	"errors"
	"math"
	"testing"

	"github.com/amuse-audio/amuse"
	"github.com/amuse-audio/amuse/engine"
)

func sfxEntry(macro amuse.ObjectId, prio, maxVoices uint8) amuse.SFXEntry {
	return amuse.SFXEntry{ObjectId: macro, Priority: prio, MaxVoices: maxVoices, DefVel: 100, Panning: 64, DefKey: 60}
}

func TestFxStartPlaysSampleThroughMixer(t *testing.T) {
	pcm := ramp(2000)
	g := newGroupBuilder().
		macro(0, cmd(amuse.StartSample, 1, 0, 0), cmd(amuse.WaitTicks, 0, 0, 1, 0, 0, 0xffff), cmd(amuse.End)).
		pcmSample(1, pcm, 0, 0).
		sfx(0, 5, sfxEntry(0, 0, 0)).
		build()
	cfg := testConfig()
	e, m := newTestEngine(g, cfg)
	v := e.FxStart(5, 1, 0, nil)
	if v == nil {
		t.Fatal("FxStart returned nil")
	}
	if e.FxStart(6, 1, 0, nil) != nil {
		t.Fatal("FxStart of an unknown effect returned a voice")
	}
	block := m.BlockFrames()
	out := make([]float32, 4*block*2)
	m.Render(out)
	// levels ramp in during the first block
	gain := float32(math.Sqrt(0.5)) * cfg.Volume
	for n := block; n < 4*block; n++ {
		want := float32(pcm[n-1]) / 32768 * gain
		for ch := 0; ch < 2; ch++ {
			if got := out[2*n+ch]; math.Abs(float64(got-want)) > 1e-5 {
				t.Fatalf("frame %d channel %d: got %v, expected %v", n, ch, got, want)
			}
		}
	}
	if pos, playing := v.SamplePosition(); !playing || pos != uint32(4*block) {
		t.Fatalf("sample at %d playing %v after 4 blocks", pos, playing)
	}
}

func TestFxStartReapsFinishedVoice(t *testing.T) {
	g := newGroupBuilder().
		macro(0, cmd(amuse.StartSample, 1, 0, 0), cmd(amuse.WaitTicks, 0, 0, 1, 0, 0, 0xffff), cmd(amuse.End)).
		pcmSample(1, ramp(300), 0, 0).
		sfx(0, 5, sfxEntry(0, 0, 0)).
		build()
	e, m := newTestEngine(g, testConfig())
	v := e.FxStart(5, 1, 0, nil)
	for i := 0; i < 5; i++ {
		m.Pump()
	}
	if v.State() != engine.VoiceDead || e.ActiveVoiceCount() != 0 || len(e.Voices()) != 0 {
		t.Fatalf("voice not reaped after its sample: state %v, %d voices", v.State(), len(e.Voices()))
	}
	for i, x := range m.Pump() {
		if x != 0 {
			t.Fatalf("sample %d is %v after the voice ended", i, x)
		}
	}
}

func TestLoopedSampleKeepsPlaying(t *testing.T) {
	g := newGroupBuilder().
		macro(0, cmd(amuse.StartSample, 1, 0, 0), waitForever()).
		pcmSample(1, ramp(100), 20, 50).
		build()
	e, _ := newTestEngine(g, testConfig())
	v := e.MacroStart(g, 0, 60, 100, 0, nil)
	e.PumpEngine(0.005)
	buf := make([]int16, 1000)
	if n := v.SupplyAudio(len(buf), buf); n != len(buf) {
		t.Fatalf("looped sample supplied %d of %d samples", n, len(buf))
	}
	pcm := ramp(100)
	// 70 samples to the loop end, then 50 sample laps from sample 20
	if buf[70] != pcm[20] || buf[120] != pcm[20] || buf[119] != pcm[69] {
		t.Fatalf("loop does not wrap at sample 70 to 20: %d %d %d", buf[70], buf[120], buf[119])
	}
}

func TestVoiceStealingByPriority(t *testing.T) {
	g := newGroupBuilder().macro(0, waitForever()).build()
	cfg := testConfig()
	cfg.MaxVoices = 2
	e, _ := newTestEngine(g, cfg)
	high := e.MacroStart(g, 0, 60, 100, 0, nil)
	high.SetPriority(10)
	low := e.MacroStart(g, 0, 60, 100, 0, nil)
	third := e.MacroStart(g, 0, 60, 100, 0, nil)
	if third == nil {
		t.Fatal("no voice when the limit could be met by stealing")
	}
	if low.State() != engine.VoiceDead || high.State() == engine.VoiceDead {
		t.Fatalf("stole the wrong voice: high %v low %v", high.State(), low.State())
	}
	pump(e, 1, 0.005)
	if e.ActiveVoiceCount() != 2 {
		t.Fatalf("%d voices active, limit is 2", e.ActiveVoiceCount())
	}
}

func TestSFXMaxVoices(t *testing.T) {
	g := newGroupBuilder().
		macro(0, waitForever()).
		sfx(0, 1, sfxEntry(0, 0, 1)).
		build()
	e, _ := newTestEngine(g, testConfig())
	first := e.FxStart(1, 1, 0, nil)
	second := e.FxStart(1, 1, 0, nil)
	if first == nil || second == nil {
		t.Fatal("FxStart failed")
	}
	if first.State() != engine.VoiceDead || second.State() != engine.VoicePlaying {
		t.Fatalf("single voice effect: first %v second %v", first.State(), second.State())
	}
}

func TestKeygroupKillsEarlierVoice(t *testing.T) {
	g := newGroupBuilder().macro(0, cmd(amuse.SetKeygroup, 1, 1), waitForever()).build()
	e, _ := newTestEngine(g, testConfig())
	first := e.MacroStart(g, 0, 60, 100, 0, nil)
	pump(e, 1, 0.005)
	if first.Keygroup() != 1 {
		t.Fatalf("keygroup %d, expected 1", first.Keygroup())
	}
	second := e.MacroStart(g, 0, 62, 100, 0, nil)
	pump(e, 1, 0.005)
	if first.State() != engine.VoiceDead {
		t.Fatal("earlier voice of the keygroup still plays")
	}
	if second.State() != engine.VoicePlaying {
		t.Fatalf("new voice is %v", second.State())
	}
}

func TestRemoveAudioGroup(t *testing.T) {
	g := newGroupBuilder().macro(0, waitForever()).sfx(0, 1, sfxEntry(0, 0, 0)).build()
	e, _ := newTestEngine(g, testConfig())
	v := e.FxStart(1, 1, 0, nil)
	e.RemoveAudioGroup(g)
	pump(e, 1, 0.005)
	if v.State() != engine.VoiceDead || len(e.Voices()) != 0 || len(e.Groups()) != 0 {
		t.Fatal("voices of a removed group survive")
	}
	if e.FxStart(1, 1, 0, nil) != nil {
		t.Fatal("effects of a removed group still start")
	}
}

func TestSendFlag(t *testing.T) {
	g := newGroupBuilder().macro(0, cmd(amuse.SendFlag, 3, 7), waitForever()).build()
	e, _ := newTestEngine(g, testConfig())
	e.MacroStart(g, 0, 60, 100, 0, nil)
	pump(e, 1, 0.005)
	if e.Flag(3) != 7 {
		t.Fatalf("flag 3 is %d", e.Flag(3))
	}
}

func TestEmitterPlacement(t *testing.T) {
	g := newGroupBuilder().macro(0, waitForever()).sfx(0, 1, sfxEntry(0, 0, 0)).build()
	e, _ := newTestEngine(g, testConfig())
	e.AddListener(engine.Vector3{}, engine.Vector3{}, engine.Vector3{0, 0, -1}, engine.Vector3{0, 1, 0}, 1, 0)
	em := e.AddEmitter(engine.Vector3{5, 0, 0}, engine.Vector3{-10, 0, 0}, 10, 1, 1, 0, 1, true, nil)
	if em == nil {
		t.Fatal("AddEmitter returned nil")
	}
	v := em.Voice()
	if pan, span := v.Pan(); math.Abs(float64(pan-1)) > 1e-6 || math.Abs(float64(span)) > 1e-6 {
		t.Fatalf("emitter to the right gave pan %v span %v", pan, span)
	}
	pump(e, 1, 0.005)
	if want := 343.0 / 333.0; math.Abs(v.PitchRatio()-want) > 1e-4 {
		t.Fatalf("approaching emitter has pitch ratio %v, expected %v", v.PitchRatio(), want)
	}
	em.SetVectors(engine.Vector3{0, 0, 5}, engine.Vector3{})
	pump(e, 1, 0.005)
	if pan, span := v.Pan(); math.Abs(float64(pan)) > 1e-6 || math.Abs(float64(span-1)) > 1e-6 {
		t.Fatalf("emitter behind gave pan %v span %v", pan, span)
	}
	if v.PitchRatio() != 1 {
		t.Fatalf("resting emitter has pitch ratio %v", v.PitchRatio())
	}
}

func TestStudioSendCycle(t *testing.T) {
	e, _ := newTestEngine(nil, testConfig())
	a := e.AddStudio(false)
	b := e.AddStudio(false)
	if err := a.AddStudioSend(b, 1, 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := b.AddStudioSend(e.DefaultStudio(), 1, 0.5, 0); err != nil {
		t.Fatal(err)
	}
	if err := e.DefaultStudio().AddStudioSend(a, 1, 0, 0); !errors.Is(err, engine.ErrStudioCycle) {
		t.Fatalf("expected ErrStudioCycle, got %v", err)
	}
	if err := a.AddStudioSend(a, 1, 0, 0); !errors.Is(err, engine.ErrStudioCycle) {
		t.Fatalf("send to itself gave %v", err)
	}
	if len(a.Sends()) != 1 || a.Sends()[0].Target != b {
		t.Fatalf("unexpected sends %v", a.Sends())
	}
}

func TestStudioSendReachesOutput(t *testing.T) {
	g := newGroupBuilder().
		macro(0, cmd(amuse.StartSample, 1, 0, 0), waitForever()).
		pcmSample(1, ramp(2000), 0, 0).
		build()
	e, m := newTestEngine(g, testConfig())
	side := e.AddStudio(false)
	if err := side.AddStudioSend(e.DefaultStudio(), 1, 0, 0); err != nil {
		t.Fatal(err)
	}
	e.MacroStart(g, 0, 60, 100, 0, side)
	m.Pump()
	loud := false
	for _, x := range m.Pump() {
		if x != 0 {
			loud = true
		}
	}
	if !loud {
		t.Fatal("a studio that is not a main output is silent through its send")
	}
}

func emptyKeymap() *amuse.Keymap {
	km := &amuse.Keymap{}
	for i := range km {
		km[i] = amuse.KeymapEntry{Macro: amuse.NoObject}
	}
	return km
}

func TestPageObjectKeymap(t *testing.T) {
	b := newGroupBuilder().
		macro(3, cmd(amuse.StartSample, 1, 0, 0), waitForever()).
		pcmSample(1, ramp(100), 20, 50)
	km := emptyKeymap()
	km[60] = amuse.KeymapEntry{Macro: 3, Transpose: 2, Pan: 64, PrioOffset: 5}
	km[61] = amuse.KeymapEntry{Macro: 3, Pan: 127}
	km[62] = amuse.KeymapEntry{Macro: 3, Pan: 0}
	b.pool.Keymaps[amuse.KeymapObject(0)] = km
	g := b.build()
	e, _ := newTestEngine(g, testConfig())
	plain := e.MacroStart(g, 3, 60, 100, 0, nil)

	center := e.PageObjectStart(g, amuse.KeymapObject(0), 60, 100, 0, nil)
	if center == nil {
		t.Fatal("keymap entry did not start a voice")
	}
	if pan, _ := center.Pan(); pan != 0 {
		t.Errorf("keymap pan 64 placed the voice at %v, expected the centre", pan)
	}
	if center.LastNote() != 62 {
		t.Errorf("transposed note is %d, expected 62", center.LastNote())
	}
	if center.Priority() != plain.Priority()+5 {
		t.Errorf("priority %d, expected %d", center.Priority(), plain.Priority()+5)
	}
	for key, want := range map[uint8]float32{61: 63.0 / 64, 62: -1} {
		v := e.PageObjectStart(g, amuse.KeymapObject(0), key, 100, 0, nil)
		if v == nil {
			t.Fatalf("key %d did not start a voice", key)
		}
		if pan, _ := v.Pan(); pan != want {
			t.Errorf("key %d: pan %v, expected %v", key, pan, want)
		}
	}
	if e.PageObjectStart(g, amuse.KeymapObject(0), 63, 100, 0, nil) != nil {
		t.Fatal("unmapped key started a voice")
	}
	if e.PageObjectStart(g, amuse.KeymapObject(1), 60, 100, 0, nil) != nil {
		t.Fatal("missing keymap started a voice")
	}
}

func TestPageObjectLayerStartsChildren(t *testing.T) {
	b := newGroupBuilder().
		macro(3, cmd(amuse.StartSample, 1, 0, 0), waitForever()).
		macro(4, cmd(amuse.StartSample, 1, 0, 0), waitForever()).
		pcmSample(1, ramp(100), 20, 50)
	b.pool.Layers[amuse.LayerObject(0)] = &amuse.Layer{Mappings: []amuse.LayerMapping{
		{Macro: 3, KeyLo: 0, KeyHi: 127, Volume: 127, Pan: 0, Span: 64},
		{Macro: 4, KeyLo: 50, KeyHi: 70, Transpose: -12, Volume: 64, Pan: 127, Span: 64, PrioOffset: 1},
		{Macro: 3, KeyLo: 80, KeyHi: 90, Volume: 127, Pan: 64, Span: 64},
	}}
	g := b.build()
	e, _ := newTestEngine(g, testConfig())

	root := e.PageObjectStart(g, amuse.LayerObject(0), 60, 100, 0, nil)
	if root == nil {
		t.Fatal("layer did not start a voice")
	}
	if len(e.Voices()) != 2 || len(root.Children()) != 1 {
		t.Fatalf("%d voices, %d children; expected one voice per matching mapping", len(e.Voices()), len(root.Children()))
	}
	child := e.FindVoice(root.Children()[0])
	if child == nil || child.MacroState().ObjectId() != 4 {
		t.Fatal("second mapping did not run its macro on a child voice")
	}
	if pan, _ := root.Pan(); pan != -1 {
		t.Errorf("root pan %v, expected -1", pan)
	}
	if pan, span := child.Pan(); pan != 63.0/64 || span != 0 {
		t.Errorf("child pan %v span %v", pan, span)
	}
	if user, _ := child.Volume(); user != float32(64)/127 {
		t.Errorf("child volume %v", user)
	}
	if child.LastNote() != 48 || root.LastNote() != 60 {
		t.Errorf("notes %d and %d, expected 60 and 48", root.LastNote(), child.LastNote())
	}
	if child.Priority() != root.Priority()+1 {
		t.Errorf("child priority %d, root %d", child.Priority(), root.Priority())
	}

	if v := e.PageObjectStart(g, amuse.LayerObject(0), 100, 100, 0, nil); v == nil || len(v.Children()) != 0 {
		t.Fatal("key outside the second mapping started children")
	}
}
