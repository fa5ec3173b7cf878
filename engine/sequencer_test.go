package engine_test

import (
	"testing"

	"github.com/amuse-audio/amuse"
	"github.com/amuse-audio/amuse/engine"
)

// releasedMacro holds until keyoff, then ends.
func releasedMacro() []amuse.Cmd {
	return []amuse.Cmd{cmd(amuse.WaitTicks, 1, 0, 0, 0, 0, 0xffff), cmd(amuse.End)}
}

func songGroupFixture() (*amuse.AudioGroup, *amuse.SongGroupIndex) {
	b := newGroupBuilder().
		macro(0, releasedMacro()...).
		macro(1, releasedMacro()...).
		macro(2, releasedMacro()...)
	sg := b.songGroup(0)
	sg.NormalPages[0] = amuse.PageEntry{ObjectId: 0}
	sg.NormalPages[3] = amuse.PageEntry{ObjectId: 1, ProgramNo: 3}
	sg.DrumPages[0] = amuse.PageEntry{ObjectId: 2}
	sg.MIDISetups[7] = &[16]amuse.MIDISetup{0: {ProgramNo: 3, Volume: 100, Panning: 64}}
	return b.build(), sg
}

func TestSequencerPlaysSong(t *testing.T) {
	g, _ := songGroupFixture()
	e, _ := newTestEngine(g, testConfig())
	seq, err := e.SeqPlay(0, 0, testSong(false), false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if seq.State() != engine.SequencerPlaying {
		t.Fatalf("sequencer is %v", seq.State())
	}
	pump(e, 1, 0.005)
	if seq.VoiceCount() != 1 {
		t.Fatalf("%d voices after the first note", seq.VoiceCount())
	}
	v := e.Voices()[0]
	if v.ObjectId() != 1 || v.LastNote() != 60 || seq.ChanProgram(0) != 3 {
		t.Fatalf("note plays macro %v key %d on program %d", v.ObjectId(), v.LastNote(), seq.ChanProgram(0))
	}
	pump(e, 101, 0.005)
	if v.State() != engine.VoiceDead || seq.VoiceCount() != 0 {
		t.Fatalf("voice is %v after its note ended", v.State())
	}
	pump(e, 100, 0.005)
	if seq.State() != engine.SequencerInteractive || seq.Song().State() != engine.SongStopped {
		t.Fatalf("sequencer %v after the song ended", seq.State())
	}
}

func TestSequencerTruncatedSong(t *testing.T) {
	g, _ := songGroupFixture()
	e, _ := newTestEngine(g, testConfig())
	if _, err := e.SeqPlay(0, 0, testSong(false)[:100], false, nil); err == nil {
		t.Fatal("truncated song accepted")
	}
	if _, err := e.SeqPlay(9, 0, nil, false, nil); err == nil {
		t.Fatal("unknown group accepted")
	}
}

func TestSequencerInteractive(t *testing.T) {
	g, _ := songGroupFixture()
	e, _ := newTestEngine(g, testConfig())
	seq, err := e.SeqPlay(0, 7, nil, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if seq.ChanProgram(0) != 3 || seq.CtrlValue(0, 7) != 100 {
		t.Fatalf("MIDI setup not applied: program %d volume %d", seq.ChanProgram(0), seq.CtrlValue(0, 7))
	}
	v := seq.KeyOn(0, 64, 90)
	if v == nil || v.ObjectId() != 1 {
		t.Fatal("KeyOn did not start the program's macro")
	}
	if user, _ := v.Volume(); user != float32(100)/127 {
		t.Fatalf("channel volume %v not applied", user)
	}
	drum := seq.KeyOn(9, 36, 90)
	if drum == nil || drum.ObjectId() != 2 {
		t.Fatal("drum channel does not use the drum pages")
	}
	if seq.KeyOn(1, 60, 90) == nil {
		t.Fatal("channel 1 does not start on program 0")
	}
	seq.SetChanProgram(1, 50)
	if seq.KeyOn(1, 61, 90) != nil {
		t.Fatal("program without a page started a voice")
	}
	seq.NextChanProgram(1)
	if seq.ChanProgram(1) != 50 {
		t.Fatalf("next program from 50 moved to %d", seq.ChanProgram(1))
	}
	seq.PrevChanProgram(1)
	if seq.ChanProgram(1) != 3 {
		t.Fatalf("previous program from 50 is %d, expected 3", seq.ChanProgram(1))
	}
	seq.KeyOff(0, 64, 0)
	pump(e, 1, 0.005)
	if v.State() != engine.VoiceDead {
		t.Fatalf("released voice is %v", v.State())
	}
	seq.AllOff(true)
	pump(e, 1, 0.005)
	if seq.VoiceCount() != 0 || e.ActiveVoiceCount() != 0 {
		t.Fatalf("%d voices after AllOff", e.ActiveVoiceCount())
	}
}

func TestSequencerRetriggerReleasesNote(t *testing.T) {
	g, _ := songGroupFixture()
	e, _ := newTestEngine(g, testConfig())
	seq, _ := e.SeqPlay(0, 0, nil, false, nil)
	first := seq.KeyOn(0, 60, 100)
	second := seq.KeyOn(0, 60, 100)
	if first == second {
		t.Fatal("retrigger reused the voice")
	}
	if first.State() != engine.VoiceKeyOff {
		t.Fatalf("retriggered voice is %v", first.State())
	}
}

func TestSequencerPedal(t *testing.T) {
	g, _ := songGroupFixture()
	e, _ := newTestEngine(g, testConfig())
	seq, _ := e.SeqPlay(0, 0, nil, false, nil)
	v := seq.KeyOn(0, 60, 100)
	seq.SetCtrlValue(0, 64, 127)
	seq.KeyOff(0, 60, 0)
	pump(e, 2, 0.005)
	if v.State() != engine.VoicePlaying {
		t.Fatalf("held voice is %v", v.State())
	}
	seq.SetCtrlValue(0, 64, 0)
	pump(e, 1, 0.005)
	if v.State() != engine.VoiceDead {
		t.Fatalf("voice is %v after the pedal was released", v.State())
	}
}

func TestSequencerVolumeFade(t *testing.T) {
	g, _ := songGroupFixture()
	e, _ := newTestEngine(g, testConfig())
	seq, _ := e.SeqPlay(0, 0, nil, false, nil)
	v := seq.KeyOn(0, 60, 100)
	seq.SetVolume(0, 0.1)
	pump(e, 10, 0.005)
	if vol := seq.Volume(); vol <= 0.45 || vol >= 0.55 {
		t.Fatalf("halfway through the fade the volume is %v", vol)
	}
	pump(e, 11, 0.005)
	if user, _ := v.Volume(); seq.Volume() != 0 || user != 0 {
		t.Fatalf("fade ended at %v, voice at %v", seq.Volume(), user)
	}
}

func TestSFXSequencerPrograms(t *testing.T) {
	g := newGroupBuilder().
		macro(0, releasedMacro()...).
		macro(1, releasedMacro()...).
		sfx(4, 10, sfxEntry(0, 0, 0)).
		sfx(4, 11, sfxEntry(1, 0, 0)).
		build()
	e, _ := newTestEngine(g, testConfig())
	seq, err := e.SeqPlay(4, 0, nil, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	seq.SetChanProgram(0, 1)
	if v := seq.KeyOn(0, 60, 100); v == nil || v.ObjectId() != 1 {
		t.Fatal("program 1 of an SFX group does not play its second effect")
	}
	seq.Kill()
	pump(e, 1, 0.005)
	if len(e.Sequencers()) != 0 || e.ActiveVoiceCount() != 0 {
		t.Fatal("killed sequencer was not dropped")
	}
}
