package engine

import (
	"sync/atomic"

	"gitlab.com/gomidi/midi/v2"
)

// MIDIReader feeds MIDI channel messages to a Sequencer. Messages can be
// queued from any goroutine with Queue; the engine drains the queue at the
// start of every 5 ms interval. Process dispatches one message at once and
// must only be called from the goroutine driving the engine.
type MIDIReader struct {
	seq     *Sequencer
	events  chan midi.Message
	dropped atomic.Int64
}

const midiQueueSize = 1024

// AddMIDIReader creates a reader driving seq.
func (e *Engine) AddMIDIReader(seq *Sequencer) *MIDIReader {
	r := &MIDIReader{seq: seq, events: make(chan midi.Message, midiQueueSize)}
	e.midiReaders = append(e.midiReaders, r)
	return r
}

// Queue adds msg for the next interval. It never blocks; messages beyond
// the queue size are dropped and counted.
func (r *MIDIReader) Queue(msg midi.Message) {
	select {
	case r.events <- msg:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns how many queued messages were lost to a full queue.
func (r *MIDIReader) Dropped() int { return int(r.dropped.Load()) }

func (r *MIDIReader) drain() {
	for {
		select {
		case msg := <-r.events:
			r.Process(msg)
		default:
			return
		}
	}
}

// Process dispatches a note, control change, program change, pitch bend or
// channel aftertouch message. It reports false for anything else.
func (r *MIDIReader) Process(msg midi.Message) bool {
	var ch, key, vel, ctrl, val uint8
	var rel int16
	var abs uint16
	switch {
	case msg.GetNoteOn(&ch, &key, &vel):
		if vel == 0 {
			r.seq.KeyOff(ch, key, 0)
		} else {
			r.seq.KeyOn(ch, key, vel)
		}
	case msg.GetNoteOff(&ch, &key, &vel):
		r.seq.KeyOff(ch, key, vel)
	case msg.GetControlChange(&ch, &ctrl, &val):
		r.seq.SetCtrlValue(ch, ctrl, val)
	case msg.GetProgramChange(&ch, &val):
		r.seq.SetChanProgram(ch, val)
	case msg.GetPitchBend(&ch, &rel, &abs):
		r.seq.SetPitchWheel(ch, clamp32(float32(rel)/8191, -1, 1))
	case msg.GetAfterTouch(&ch, &val):
		r.seq.SetAftertouch(ch, val)
	default:
		return false
	}
	return true
}
