package engine_test

import (
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/amuse-audio/amuse"
	"github.com/amuse-audio/amuse/engine"
	"github.com/davecgh/go-spew/spew"
)

type recordingSink struct {
	events []string
}

func (r *recordingSink) NoteOn(ch, note, vel uint8) {
	r.events = append(r.events, fmt.Sprintf("on %d %d %d", ch, note, vel))
}

func (r *recordingSink) NoteOff(ch, note, vel uint8) {
	r.events = append(r.events, fmt.Sprintf("off %d %d", ch, note))
}

func (r *recordingSink) SetCtrlValue(ch, ctrl, val uint8) {
	r.events = append(r.events, fmt.Sprintf("ctrl %d %d %d", ch, ctrl, val))
}

func (r *recordingSink) SetChanProgram(ch, prog uint8) {
	r.events = append(r.events, fmt.Sprintf("program %d %d", ch, prog))
}

func (r *recordingSink) SetPitchWheel(ch uint8, pw float32) {
	r.events = append(r.events, fmt.Sprintf("pitch %d %v", ch, pw))
}

// testSong is one track on channel 0 playing program 3, note 60 for a
// beat at 120 bpm. The track ends, or loops back, at tick 768.
func testSong(loop bool) []byte {
	be := binary.BigEndian
	var b []byte
	u32 := func(v uint32) { b = be.AppendUint32(b, v) }
	u16 := func(v uint16) { b = be.AppendUint16(b, v) }
	// header: track index, region index, channel map, tempo table, tempo
	u32(28)
	u32(24)
	u32(284)
	u32(0)
	u32(120)
	u32(0)
	// region index
	u32(372)
	// track index
	u32(348)
	for i := 1; i < 64; i++ {
		u32(0)
	}
	// channel map
	b = append(b, make([]byte, 64)...)
	// track regions
	u32(0)
	b = append(b, 3, 0, 0, 0)
	u16(0)
	u16(0)
	u32(768)
	b = append(b, 0, 0, 0, 0)
	if loop {
		u16(0xfffe)
	} else {
		u16(0xffff)
	}
	u16(0)
	// region header
	u32(0)
	u32(0)
	u32(0)
	u32(388)
	// events
	u16(0)
	b = append(b, 60, 100)
	u16(384)
	u16(0)
	u16(0xffff)
	return b
}

func TestSongEvents(t *testing.T) {
	song, err := engine.ParseSong(testSong(false), binary.BigEndian, false)
	if err != nil {
		t.Fatal(err)
	}
	sink := &recordingSink{}
	if song.Advance(sink, 0.005) {
		t.Fatal("song ended after one step")
	}
	if want := []string{"program 0 3", "on 0 60 100"}; fmt.Sprint(sink.events) != fmt.Sprint(want) {
		t.Fatalf("first step events %v, expected %v", spew.Sdump(sink.events), want)
	}
	offStep := 0
	ended := 0
	for step := 2; step <= 300 && ended == 0; step++ {
		n := len(sink.events)
		if song.Advance(sink, 0.005) {
			ended = step
		}
		if len(sink.events) > n && offStep == 0 {
			offStep = step
			if sink.events[n] != "off 0 60" {
				t.Fatalf("unexpected event %q", sink.events[n])
			}
		}
	}
	// a beat is 0.5 s, the track ends after a second
	if offStep < 100 || offStep > 101 {
		t.Fatalf("note released at step %d, expected 100 or 101", offStep)
	}
	if ended < 200 || ended > 201 {
		t.Fatalf("song ended at step %d, expected 200 or 201", ended)
	}
	if song.State() != engine.SongStopped || len(sink.events) != 3 {
		t.Fatalf("state %v, events %v", song.State(), sink.events)
	}
}

func TestSongLoops(t *testing.T) {
	song, err := engine.ParseSong(testSong(true), binary.BigEndian, true)
	if err != nil {
		t.Fatal(err)
	}
	sink := &recordingSink{}
	for step := 0; step < 300; step++ {
		if song.Advance(sink, 0.005) {
			t.Fatalf("looping song ended at step %d", step)
		}
	}
	ons := 0
	for _, ev := range sink.events {
		if ev == "on 0 60 100" {
			ons++
		}
	}
	if ons != 2 {
		t.Fatalf("expected the note twice in 1.5 s, got %v", sink.events)
	}
}

func TestSongLoopMarkerWithoutLooping(t *testing.T) {
	song, err := engine.ParseSong(testSong(true), binary.BigEndian, false)
	if err != nil {
		t.Fatal(err)
	}
	sink := &recordingSink{}
	steps := 0
	for !song.Advance(sink, 0.005) {
		if steps++; steps > 1000 {
			t.Fatal("song with looping off never ends")
		}
	}
}

func TestSongTempo(t *testing.T) {
	song, err := engine.ParseSong(testSong(false), binary.BigEndian, false)
	if err != nil {
		t.Fatal(err)
	}
	if song.Tempo() != 120 {
		t.Fatalf("tempo %d", song.Tempo())
	}
	song.SetTempo(240)
	sink := &recordingSink{}
	song.Advance(sink, 0.25)
	if song.Tick() != 384 {
		t.Fatalf("a quarter second at 240 bpm is tick %d, expected 384", song.Tick())
	}
}

func TestParseSongTruncated(t *testing.T) {
	data := testSong(false)
	for _, n := range []int{0, 20, 300, 352} {
		if _, err := engine.ParseSong(data[:n], binary.BigEndian, false); !errors.Is(err, amuse.ErrTruncated) {
			t.Errorf("%d bytes: expected ErrTruncated, got %v", n, err)
		}
	}
}

func TestParseSongBadRegion(t *testing.T) {
	data := testSong(false)
	binary.BigEndian.PutUint16(data[356:], 5)
	if _, err := engine.ParseSong(data, binary.BigEndian, false); err == nil {
		t.Fatal("reference to a missing region accepted")
	}
}
