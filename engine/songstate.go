package engine

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/amuse-audio/amuse"
)

type (
	// SongPlayState is whether a SongState is still producing events.
	SongPlayState int

	// SongEventSink receives the channel events of a playing song.
	// *Sequencer implements it.
	SongEventSink interface {
		NoteOn(ch, note, vel uint8)
		NoteOff(ch, note, vel uint8)
		SetCtrlValue(ch, ctrl, val uint8)
		SetChanProgram(ch, prog uint8)
		SetPitchWheel(ch uint8, pw float32)
	}

	tempoChange struct {
		tick  uint32
		tempo uint32
	}

	trackRegion struct {
		startTick    uint32
		program      uint8
		regionIndex  int16
		loopToRegion int16
	}

	// continuous is a delta encoded controller stream of a region.
	continuous struct {
		data     []byte
		nextTick int64
		value    int32
	}

	songTrack struct {
		song     *SongState
		midiChan uint8
		regions  []trackRegion
		next     int

		curTick       int64
		data          []byte
		waitCountdown int64
		pitch, mod    continuous
		noteLengths   [128]int64
		ended         bool
	}

	// SongState plays the arrangement data of a song: up to 64 tracks, each
	// a chain of regions of note, control and program events. Ticks run at
	// 384 per beat.
	SongState struct {
		data     []byte
		order    binary.ByteOrder
		regions  []uint32
		tracks   [64]*songTrack
		tempos   []tempoChange
		tempoIdx int
		tempo    uint32
		curTick  int64
		curDt    float64
		state    SongPlayState
		loop     bool
	}
)

const (
	SongStopped SongPlayState = iota
	SongPlaying
)

const (
	songTicksPerBeat = 384
	regionEnd        = -1
	regionLoop       = -2
	rleEnd           = math.MaxUint32
)

// ParseSong reads song arrangement data. loop selects whether loop markers
// jump back or end the track.
func ParseSong(data []byte, order binary.ByteOrder, loop bool) (*SongState, error) {
	s := &SongState{data: data, order: order, loop: loop, state: SongPlaying}
	if len(data) < 24 {
		return nil, fmt.Errorf("%w: song header", amuse.ErrTruncated)
	}
	trackIdx := order.Uint32(data[0:])
	regionIdx := order.Uint32(data[4:])
	chanMap := order.Uint32(data[8:])
	tempoTable := order.Uint32(data[12:])
	s.tempo = order.Uint32(data[16:]) & 0x7fffffff

	if trackIdx == 0 || regionIdx == 0 || regionIdx > trackIdx {
		return nil, fmt.Errorf("song: bad index offsets %#x %#x", trackIdx, regionIdx)
	}
	for off := int(regionIdx); off+4 <= int(trackIdx); off += 4 {
		s.regions = append(s.regions, order.Uint32(data[off:]))
	}
	if tempoTable != 0 {
		for off := int(tempoTable); ; off += 8 {
			if off+8 > len(data) {
				return nil, fmt.Errorf("%w: tempo table", amuse.ErrTruncated)
			}
			tick := order.Uint32(data[off:])
			if tick == math.MaxUint32 {
				break
			}
			s.tempos = append(s.tempos, tempoChange{tick: tick, tempo: order.Uint32(data[off+4:]) & 0x7fffffff})
		}
	}
	if int(trackIdx)+64*4 > len(data) || int(chanMap)+64 > len(data) {
		return nil, fmt.Errorf("%w: track index", amuse.ErrTruncated)
	}
	for i := range s.tracks {
		off := order.Uint32(data[int(trackIdx)+i*4:])
		if off == 0 {
			continue
		}
		t := &songTrack{song: s, midiChan: data[int(chanMap)+i] & 0xf}
		for p := int(off); ; p += 12 {
			if p+12 > len(data) {
				return nil, fmt.Errorf("%w: track %d regions", amuse.ErrTruncated, i)
			}
			r := trackRegion{
				startTick:    order.Uint32(data[p:]),
				program:      data[p+4],
				regionIndex:  int16(order.Uint16(data[p+8:])),
				loopToRegion: int16(order.Uint16(data[p+10:])),
			}
			if r.regionIndex >= 0 && int(r.regionIndex) >= len(s.regions) {
				return nil, fmt.Errorf("song: track %d references region %d of %d", i, r.regionIndex, len(s.regions))
			}
			t.regions = append(t.regions, r)
			if r.regionIndex < 0 {
				if r.regionIndex == regionLoop && (r.loopToRegion < 0 || int(r.loopToRegion) >= len(t.regions)-1) {
					return nil, fmt.Errorf("song: track %d loops to region %d", i, r.loopToRegion)
				}
				break
			}
		}
		s.tracks[i] = t
	}
	return s, nil
}

func (s *SongState) State() SongPlayState { return s.state }
func (s *SongState) Tick() int64          { return s.curTick }
func (s *SongState) Tempo() uint32        { return s.tempo }

// SetTempo overrides the current tempo in beats per minute.
func (s *SongState) SetTempo(bpm uint32) { s.tempo = bpm }

func (s *SongState) Stop() { s.state = SongStopped }

// Advance plays dt seconds of the song into sink. It reports true once
// every track has ended.
func (s *SongState) Advance(sink SongEventSink, dt float64) bool {
	if s.state == SongStopped {
		return true
	}
	s.curDt += dt
	for s.curDt > 0 {
		tps := float64(s.tempo) * songTicksPerBeat / 60
		ticks := int64(math.Floor(s.curDt * tps))
		if s.tempoIdx < len(s.tempos) {
			next := s.tempos[s.tempoIdx]
			if s.curTick+ticks >= int64(next.tick) {
				ticks = int64(next.tick) - s.curTick
				if ticks <= 0 {
					s.tempo = next.tempo
					s.tempoIdx++
					continue
				}
			}
		}
		if ticks <= 0 {
			break
		}
		for _, t := range s.tracks {
			if t != nil && !t.ended {
				t.advance(sink, ticks)
			}
		}
		s.curTick += ticks
		s.curDt -= float64(ticks) / tps
	}
	for _, t := range s.tracks {
		if t != nil && !t.ended {
			return false
		}
	}
	s.state = SongStopped
	return true
}

func (t *songTrack) advance(sink SongEventSink, ticks int64) {
	end := t.curTick + ticks
	for !t.ended {
		segEnd := end
		var nr *trackRegion
		if t.next < len(t.regions) {
			nr = &t.regions[t.next]
			if int64(nr.startTick) <= segEnd {
				segEnd = max(int64(nr.startTick), t.curTick)
			} else {
				nr = nil
			}
		}
		t.run(sink, segEnd)
		if nr == nil {
			break
		}
		switch {
		case nr.regionIndex >= 0:
			t.setRegion(sink, t.next)
		case nr.regionIndex == regionLoop && t.song.loop:
			to := &t.regions[nr.loopToRegion]
			if int64(to.startTick) >= t.curTick {
				t.finish()
				break
			}
			rem := end - t.curTick
			t.curTick = int64(to.startTick)
			end = t.curTick + rem
			t.setRegion(sink, int(nr.loopToRegion))
		default:
			t.finish()
		}
	}
	t.checkEnded()
}

func (t *songTrack) finish() {
	t.next = len(t.regions)
	t.data = nil
	t.pitch.data, t.mod.data = nil, nil
}

func (t *songTrack) checkEnded() {
	if t.next < len(t.regions) || t.data != nil {
		return
	}
	for _, l := range t.noteLengths {
		if l > 0 {
			return
		}
	}
	t.ended = true
}

func (t *songTrack) setRegion(sink SongEventSink, idx int) {
	r := t.regions[idx]
	t.next = idx + 1
	t.data, t.pitch.data, t.mod.data = nil, nil, nil
	s := t.song
	off := int(s.regions[r.regionIndex])
	if off+16 > len(s.data) {
		return
	}
	pitchOff := s.order.Uint32(s.data[off+4:])
	modOff := s.order.Uint32(s.data[off+8:])
	dataOff := s.order.Uint32(s.data[off+12:])
	sink.SetChanProgram(t.midiChan, r.program)
	if dataOff != 0 && int(dataOff) < len(s.data) {
		t.data = s.data[dataOff:]
		t.waitCountdown = t.decodeTime()
	}
	t.pitch.start(s.data, pitchOff, t.curTick)
	t.mod.start(s.data, modOff, t.curTick)
}

func (c *continuous) start(data []byte, off uint32, tick int64) {
	c.data = nil
	c.value = 0
	if off == 0 || int(off) >= len(data) {
		return
	}
	c.data = data[off:]
	c.schedule(tick)
}

func (c *continuous) schedule(from int64) {
	delta, ok := decodeRLE(&c.data)
	if !ok || delta == rleEnd {
		c.data = nil
		return
	}
	c.nextTick = from + int64(delta)
}

// step applies every change up to tick and reports whether the value moved.
func (c *continuous) step(tick int64) bool {
	moved := false
	for c.data != nil && c.nextTick <= tick {
		d, ok := decodeContinuousRLE(&c.data)
		if !ok {
			c.data = nil
			break
		}
		c.value += d
		moved = true
		c.schedule(c.nextTick)
	}
	return moved
}

// run plays events up to and including tick to.
func (t *songTrack) run(sink SongEventSink, to int64) {
	ticks := to - t.curTick
	if ticks < 0 {
		return
	}
	for n, l := range t.noteLengths {
		if l <= 0 {
			continue
		}
		if t.noteLengths[n] = l - ticks; t.noteLengths[n] <= 0 {
			sink.NoteOff(t.midiChan, uint8(n), 0)
		}
	}
	if t.pitch.step(to) {
		sink.SetPitchWheel(t.midiChan, clamp32(float32(t.pitch.value)/8191, -1, 1))
	}
	if t.mod.step(to) {
		sink.SetCtrlValue(t.midiChan, 1, uint8(max(0, min(t.mod.value*128/16384, 127))))
	}
	if t.data != nil {
		t.waitCountdown -= ticks
		for t.data != nil && t.waitCountdown <= 0 {
			t.event(sink)
		}
	}
	t.curTick = to
}

func (t *songTrack) event(sink SongEventSink) {
	d := t.data
	if len(d) < 2 || t.song.order.Uint16(d) == 0xffff {
		t.data = nil
		return
	}
	switch {
	case d[0]&0x80 != 0 && d[1]&0x80 != 0:
		sink.SetCtrlValue(t.midiChan, d[1]&0x7f, d[0]&0x7f)
		t.data = d[2:]
	case d[0]&0x80 != 0:
		sink.SetChanProgram(t.midiChan, d[0]&0x7f)
		t.data = d[2:]
	default:
		if len(d) < 4 {
			t.data = nil
			return
		}
		note := d[0] & 0x7f
		length := int64(t.song.order.Uint16(d[2:]))
		sink.NoteOn(t.midiChan, note, d[1]&0x7f)
		// waitCountdown is how far past the event the track already is.
		if rem := length + t.waitCountdown; length == 0 || rem <= 0 {
			sink.NoteOff(t.midiChan, note, 0)
			t.noteLengths[note] = 0
		} else {
			t.noteLengths[note] = rem
		}
		t.data = d[4:]
	}
	t.waitCountdown += t.decodeTime()
}

// decodeTime reads an event delta time. 0xffff continues into the next
// word after two bytes of padding.
func (t *songTrack) decodeTime() int64 {
	var ret int64
	for {
		if len(t.data) < 2 {
			t.data = nil
			return ret
		}
		part := t.song.order.Uint16(t.data)
		if part == 0xffff {
			ret += 0xffff
			if len(t.data) < 4 {
				t.data = nil
				return ret
			}
			t.data = t.data[4:]
			continue
		}
		t.data = t.data[2:]
		return ret + int64(part)
	}
}

// decodeRLE reads a 7 bit or, with the top bit set, 15 bit value. A 15 bit
// zero ends the stream and 32767 continues into the next value.
func decodeRLE(data *[]byte) (uint32, bool) {
	var ret uint32
	for {
		d := *data
		if len(d) < 1 {
			return 0, false
		}
		part := uint32(d[0] & 0x7f)
		if d[0]&0x80 == 0 {
			*data = d[1:]
			return ret + part, true
		}
		if len(d) < 2 {
			return 0, false
		}
		part = part<<8 | uint32(d[1])
		*data = d[2:]
		if part == 0 {
			return rleEnd, true
		}
		if part == 32767 {
			ret += 32767
			continue
		}
		return ret + part, true
	}
}

func decodeContinuousRLE(data *[]byte) (int32, bool) {
	v, ok := decodeRLE(data)
	if !ok || v == rleEnd {
		return 0, false
	}
	if v >= 16384 {
		return int32(v) - 32767, true
	}
	return int32(v), true
}
