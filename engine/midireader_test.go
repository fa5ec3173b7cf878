package engine_test

import (
	"sync"
	"testing"

	"github.com/amuse-audio/amuse/engine"
	"gitlab.com/gomidi/midi/v2"
)

func TestMIDIReaderProcess(t *testing.T) {
	g, _ := songGroupFixture()
	e, _ := newTestEngine(g, testConfig())
	seq, _ := e.SeqPlay(0, 0, nil, false, nil)
	r := e.AddMIDIReader(seq)

	if !r.Process(midi.ProgramChange(0, 3)) || seq.ChanProgram(0) != 3 {
		t.Fatalf("program change gave program %d", seq.ChanProgram(0))
	}
	if !r.Process(midi.ControlChange(0, 7, 64)) || seq.CtrlValue(0, 7) != 64 {
		t.Fatalf("control change gave %d", seq.CtrlValue(0, 7))
	}
	if !r.Process(midi.NoteOn(0, 60, 100)) || seq.VoiceCount() != 1 {
		t.Fatalf("note on started %d voices", seq.VoiceCount())
	}
	v := e.Voices()[0]
	if v.ObjectId() != 1 {
		t.Fatalf("note on plays macro %v", v.ObjectId())
	}
	if !r.Process(midi.Pitchbend(0, 8191)) {
		t.Fatal("pitch bend ignored")
	}
	r.Process(midi.NoteOn(0, 60, 0))
	if v.State() != engine.VoiceKeyOff {
		t.Fatalf("note on with zero velocity left the voice %v", v.State())
	}
	r.Process(midi.NoteOn(0, 62, 100))
	r.Process(midi.NoteOff(0, 62))
	if e.Voices()[1].State() != engine.VoiceKeyOff {
		t.Fatal("note off did not release the voice")
	}
	if r.Process(midi.Activesense()) {
		t.Fatal("active sensing reported as handled")
	}
}

func TestMIDIReaderQueue(t *testing.T) {
	g, _ := songGroupFixture()
	e, _ := newTestEngine(g, testConfig())
	seq, _ := e.SeqPlay(0, 0, nil, false, nil)
	r := e.AddMIDIReader(seq)

	var wg sync.WaitGroup
	for n := uint8(0); n < 4; n++ {
		wg.Add(1)
		n := n
		go func() {
			defer wg.Done()
			r.Queue(midi.NoteOn(0, 40+n, 100))
		}()
	}
	wg.Wait()
	if seq.VoiceCount() != 0 {
		t.Fatal("queued notes played before the engine ran")
	}
	pump(e, 1, 0.005)
	if seq.VoiceCount() != 4 {
		t.Fatalf("%d voices after draining the queue, expected 4", seq.VoiceCount())
	}
	if r.Dropped() != 0 {
		t.Fatalf("%d messages dropped", r.Dropped())
	}
}

func TestMIDIReaderDropsWhenFull(t *testing.T) {
	g, _ := songGroupFixture()
	e, _ := newTestEngine(g, testConfig())
	seq, _ := e.SeqPlay(0, 0, nil, false, nil)
	r := e.AddMIDIReader(seq)
	for i := 0; i < 1030; i++ {
		r.Queue(midi.ControlChange(0, 1, uint8(i%128)))
	}
	if r.Dropped() != 6 {
		t.Fatalf("dropped %d messages, expected 6", r.Dropped())
	}
	pump(e, 1, 0.005)
	r.Queue(midi.ControlChange(0, 1, 5))
	pump(e, 1, 0.005)
	if seq.CtrlValue(0, 1) != 5 || r.Dropped() != 6 {
		t.Fatalf("queue did not recover: mod %d dropped %d", seq.CtrlValue(0, 1), r.Dropped())
	}
}
