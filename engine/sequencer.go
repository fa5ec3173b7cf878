package engine

import (
	"fmt"
	"slices"

	"github.com/amuse-audio/amuse"
)

type (
	// SequencerState is the lifecycle of a Sequencer.
	SequencerState int

	// ChannelState is one of the 16 MIDI channels of a Sequencer: its
	// controller values, program and the voices it started.
	ChannelState struct {
		seq        *Sequencer
		id         uint8
		page       amuse.PageEntry
		hasPage    bool
		program    uint8
		ctrlVals   [128]int8
		pitchWheel float32
		curVol     float32
		curPan     float32
		voices     map[uint8]VoiceID
		keyoffs    []VoiceID
		lastVoice  VoiceID
	}

	fade struct {
		time, dur float64
		from, to  float32
	}

	// Sequencer routes MIDI style channel events to the voices of one song
	// or SFX group, and optionally plays a song.
	Sequencer struct {
		engine      *Engine
		group       *amuse.AudioGroup
		groupID     amuse.GroupId
		songGroup   *amuse.SongGroupIndex
		sfxGroup    *amuse.SFXGroupIndex
		sfxMappings []amuse.SFXEntry
		midiSetup   *[16]amuse.MIDISetup
		studio      *Studio
		state       SequencerState
		song        *SongState
		ticksPerSec float64
		curVol      float32
		volFade     *fade
		stopFade    *fade
		stopNow     bool
		chans       [16]*ChannelState
	}
)

const (
	SequencerInteractive SequencerState = iota
	SequencerPlaying
	SequencerDead
)

const drumChannel = 9

func (s SequencerState) String() string {
	switch s {
	case SequencerInteractive:
		return "interactive"
	case SequencerPlaying:
		return "playing"
	}
	return "dead"
}

func newSongSequencer(e *Engine, group *amuse.AudioGroup, groupID amuse.GroupId, sg *amuse.SongGroupIndex, setup amuse.SongId, studio *Studio) *Sequencer {
	s := &Sequencer{engine: e, group: group, groupID: groupID, songGroup: sg, studio: studio, ticksPerSec: 1000, curVol: 1}
	s.midiSetup = sg.MIDISetups[setup]
	return s
}

func newSFXSequencer(e *Engine, group *amuse.AudioGroup, groupID amuse.GroupId, sg *amuse.SFXGroupIndex, studio *Studio) *Sequencer {
	s := &Sequencer{engine: e, group: group, groupID: groupID, sfxGroup: sg, studio: studio, ticksPerSec: 1000, curVol: 1}
	ids := make([]amuse.SFXId, 0, len(sg.SFXEntries))
	for id := range sg.SFXEntries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		s.sfxMappings = append(s.sfxMappings, sg.SFXEntries[id])
	}
	return s
}

func (s *Sequencer) State() SequencerState  { return s.state }
func (s *Sequencer) GroupID() amuse.GroupId { return s.groupID }
func (s *Sequencer) Studio() *Studio        { return s.studio }
func (s *Sequencer) Volume() float32        { return s.curVol }

// Song returns the song being played or nil.
func (s *Sequencer) Song() *SongState { return s.song }

func (s *Sequencer) channel(ch uint8) *ChannelState {
	ch &= 0xf
	if c := s.chans[ch]; c != nil {
		return c
	}
	c := &ChannelState{seq: s, id: ch, curVol: 1, voices: map[uint8]VoiceID{}, lastVoice: -1}
	if s.midiSetup != nil {
		setup := s.midiSetup[ch]
		c.ctrlVals[7] = int8(setup.Volume & 0x7f)
		c.ctrlVals[10] = int8(setup.Panning & 0x7f)
		c.ctrlVals[91] = int8(setup.Reverb & 0x7f)
		c.ctrlVals[93] = int8(setup.Chorus & 0x7f)
		c.curVol = float32(c.ctrlVals[7]) / 127
		c.curPan = float32(c.ctrlVals[10]-64) / 64
		c.setProgram(setup.ProgramNo)
	} else {
		c.setProgram(0)
	}
	s.chans[ch] = c
	return c
}

func (c *ChannelState) setProgram(prog uint8) {
	c.program = prog
	s := c.seq
	switch {
	case s.songGroup != nil:
		pages := s.songGroup.NormalPages
		if c.id == drumChannel {
			pages = s.songGroup.DrumPages
		}
		c.page, c.hasPage = pages[prog]
	case len(s.sfxMappings) != 0:
		ent := s.sfxMappings[int(prog)%len(s.sfxMappings)]
		c.page = amuse.PageEntry{ObjectId: ent.ObjectId, Priority: ent.Priority, MaxVoices: ent.MaxVoices, ProgramNo: prog}
		c.hasPage = true
	default:
		c.hasPage = false
	}
}

func (c *ChannelState) voice(id VoiceID) *Voice {
	return c.seq.engine.voices[id]
}

// liveVoices returns the voices of the channel that are still sounding and
// drops the rest.
func (c *ChannelState) liveVoices() []*Voice {
	var out []*Voice
	for note, id := range c.voices {
		if v := c.voice(id); v != nil && !v.IsDead() {
			out = append(out, v)
		} else {
			delete(c.voices, note)
		}
	}
	c.keyoffs = slices.DeleteFunc(c.keyoffs, func(id VoiceID) bool {
		v := c.voice(id)
		if v == nil || v.IsDead() {
			return true
		}
		out = append(out, v)
		return false
	})
	return out
}

func (c *ChannelState) keyOn(note, vel uint8) *Voice {
	if !c.hasPage {
		return nil
	}
	s := c.seq
	if last := c.voice(c.lastVoice); last != nil {
		lastNote := uint8(last.LastNote())
		if last.DoPortamento(int(note)) {
			delete(c.voices, lastNote)
			c.voices[note] = last.id
			return last
		}
	}
	if id, ok := c.voices[note]; ok {
		if id == c.lastVoice {
			c.lastVoice = -1
		}
		if v := c.voice(id); v != nil {
			v.KeyOff()
			v.SetPedal(false)
			c.keyoffs = append(c.keyoffs, id)
		}
		delete(c.voices, note)
	}

	s.engine.makeRoom(c.page.ObjectId, int(c.page.MaxVoices), int(c.page.Priority))
	v := s.engine.allocateVoice(s.group, s.groupID, s.studio, nil)
	if v == nil {
		return nil
	}
	v.origin = c.page.ObjectId
	v.priority = int(c.page.Priority)
	v.installCtrlValues(&c.ctrlVals)
	if !v.LoadPageObject(c.page.ObjectId, s.ticksPerSec, int(note), int(vel), int(c.ctrlVals[1])) {
		s.engine.destroyVoice(v)
		return nil
	}
	c.applyChannel(v)
	c.voices[note] = v.id
	c.lastVoice = v.id
	return v
}

func (c *ChannelState) applyChannel(v *Voice) {
	v.SetVolume(c.seq.curVol * c.curVol)
	v.SetReverbVol(float32(c.ctrlVals[91]) / 127)
	v.SetAuxBVol(float32(c.ctrlVals[93]) / 127)
	v.SetPan(c.curPan)
	v.SetPitchWheel(c.pitchWheel)
	if c.ctrlVals[64] >= 64 {
		v.SetPedal(true)
	}
	for _, id := range v.children {
		if child := c.voice(id); child != nil {
			c.applyChannel(child)
		}
	}
}

func (c *ChannelState) keyOff(note uint8) {
	id, ok := c.voices[note]
	if !ok {
		return
	}
	delete(c.voices, note)
	if id == c.lastVoice {
		c.lastVoice = -1
	}
	if v := c.voice(id); v != nil {
		v.KeyOff()
		c.keyoffs = append(c.keyoffs, id)
	}
}

func (c *ChannelState) setCtrlValue(ctrl, val uint8) {
	ctrl &= 0x7f
	val &= 0x7f
	c.ctrlVals[ctrl] = int8(val)
	voices := c.liveVoices()
	switch ctrl {
	case 7:
		c.curVol = float32(val) / 127
		for _, v := range voices {
			v.SetVolume(c.seq.curVol * c.curVol)
		}
	case 10:
		c.curPan = float32(int(val)-64) / 64
		for _, v := range voices {
			v.SetPan(c.curPan)
		}
	case 91:
		for _, v := range voices {
			v.SetReverbVol(float32(val) / 127)
		}
	case 93:
		for _, v := range voices {
			v.SetAuxBVol(float32(val) / 127)
		}
	case 64:
		for _, v := range voices {
			v.SetPedal(val >= 64)
		}
	}
}

func (c *ChannelState) allOff(now bool) {
	for _, v := range c.liveVoices() {
		if now {
			v.Kill()
		} else {
			v.KeyOff()
		}
	}
	for note, id := range c.voices {
		c.keyoffs = append(c.keyoffs, id)
		delete(c.voices, note)
	}
	c.lastVoice = -1
}

// KeyOn starts a voice for note on channel ch. A note already sounding on
// the channel is released first. It returns nil if the channel's program
// has no page or no voice could be started.
func (s *Sequencer) KeyOn(ch, note, vel uint8) *Voice {
	if s.state == SequencerDead {
		return nil
	}
	return s.channel(ch).keyOn(note&0x7f, vel&0x7f)
}

func (s *Sequencer) KeyOff(ch, note, vel uint8) {
	s.channel(ch).keyOff(note & 0x7f)
}

func (s *Sequencer) NoteOn(ch, note, vel uint8)  { s.KeyOn(ch, note, vel) }
func (s *Sequencer) NoteOff(ch, note, vel uint8) { s.KeyOff(ch, note, vel) }

// SetCtrlValue sets a MIDI controller of channel ch. Volume, pan, reverb,
// chorus and the sustain pedal act on the channel's voices at once.
func (s *Sequencer) SetCtrlValue(ch, ctrl, val uint8) {
	s.channel(ch).setCtrlValue(ctrl, val)
}

func (s *Sequencer) CtrlValue(ch, ctrl uint8) uint8 {
	return uint8(s.channel(ch).ctrlVals[ctrl&0x7f])
}

func (s *Sequencer) SetPitchWheel(ch uint8, pw float32) {
	c := s.channel(ch)
	c.pitchWheel = clamp32(pw, -1, 1)
	for _, v := range c.liveVoices() {
		v.SetPitchWheel(c.pitchWheel)
	}
}

func (s *Sequencer) SetAftertouch(ch, val uint8) {
	for _, v := range s.channel(ch).liveVoices() {
		v.SetAftertouch(int(val))
	}
}

func (s *Sequencer) SetChanProgram(ch, prog uint8) {
	s.channel(ch).setProgram(prog & 0x7f)
}

func (s *Sequencer) ChanProgram(ch uint8) uint8 { return s.channel(ch).program }

// NextChanProgram moves channel ch to the next program that has a page.
func (s *Sequencer) NextChanProgram(ch uint8) {
	c := s.channel(ch)
	orig := c.program
	for p := int(orig) + 1; p < 128; p++ {
		if c.setProgram(uint8(p)); c.hasPage {
			return
		}
	}
	c.setProgram(orig)
}

// PrevChanProgram moves channel ch to the previous program that has a page.
func (s *Sequencer) PrevChanProgram(ch uint8) {
	c := s.channel(ch)
	orig := c.program
	for p := int(orig) - 1; p >= 0; p-- {
		if c.setProgram(uint8(p)); c.hasPage {
			return
		}
	}
	c.setProgram(orig)
}

// AllOff releases every voice of the sequencer, or kills them when now is
// set.
func (s *Sequencer) AllOff(now bool) {
	for _, c := range s.chans {
		if c != nil {
			c.allOff(now)
		}
	}
}

func (s *Sequencer) AllOffChannel(ch uint8, now bool) {
	s.channel(ch).allOff(now)
}

func (s *Sequencer) KillKeygroup(kg uint8, now bool) {
	for _, c := range s.chans {
		if c == nil {
			continue
		}
		for _, v := range c.liveVoices() {
			if v.keygroup != kg {
				continue
			}
			if now {
				v.Kill()
			} else {
				v.KeyOff()
			}
		}
	}
}

// FindVoice returns a live voice of this sequencer.
func (s *Sequencer) FindVoice(id VoiceID) *Voice {
	for _, c := range s.chans {
		if c == nil {
			continue
		}
		for _, v := range c.liveVoices() {
			if v.id == id {
				return v
			}
		}
	}
	return nil
}

// SendMacroMessage delivers val to every voice of the sequencer running
// macro id.
func (s *Sequencer) SendMacroMessage(id amuse.ObjectId, val int32) {
	for _, c := range s.chans {
		if c == nil {
			continue
		}
		for _, v := range c.liveVoices() {
			if v.ObjectId() == id {
				v.Message(val)
			}
		}
	}
}

func (s *Sequencer) VoiceCount() int {
	n := 0
	for _, c := range s.chans {
		if c != nil {
			n += len(c.liveVoices())
		}
	}
	return n
}

// PlaySong starts playing arrangement data from its beginning.
func (s *Sequencer) PlaySong(data []byte, loop bool) error {
	song, err := ParseSong(data, s.group.Format().ByteOrder(), loop)
	if err != nil {
		return fmt.Errorf("cannot play song: %w", err)
	}
	s.AllOff(true)
	s.song = song
	s.stopFade = nil
	s.ticksPerSec = float64(song.Tempo()) * songTicksPerBeat / 60
	s.state = SequencerPlaying
	return nil
}

// StopSong stops the song, fading the sequencer out over fadeTime seconds
// first. Voices are killed when now is set and released otherwise.
func (s *Sequencer) StopSong(fadeTime float64, now bool) {
	if fadeTime > 0 {
		s.stopFade = &fade{dur: fadeTime, from: s.curVol, to: 0}
		s.stopNow = now
		return
	}
	s.stopSong(now)
}

func (s *Sequencer) stopSong(now bool) {
	if s.song != nil {
		s.song.Stop()
	}
	s.AllOff(now)
	if s.state == SequencerPlaying {
		s.state = SequencerInteractive
	}
}

// SetTempo overrides the song tempo in beats per minute.
func (s *Sequencer) SetTempo(bpm uint32) {
	if s.song != nil {
		s.song.SetTempo(bpm)
	}
	s.ticksPerSec = float64(bpm) * songTicksPerBeat / 60
}

// SetVolume fades the sequencer volume to vol over fadeTime seconds.
func (s *Sequencer) SetVolume(vol, fadeTime float64) {
	target := clamp32(float32(vol), 0, 1)
	if fadeTime <= 0 {
		s.volFade = nil
		s.applyVolume(target)
		return
	}
	s.volFade = &fade{dur: fadeTime, from: s.curVol, to: target}
}

func (s *Sequencer) applyVolume(vol float32) {
	s.curVol = vol
	for _, c := range s.chans {
		if c == nil {
			continue
		}
		for _, v := range c.liveVoices() {
			v.SetVolume(s.curVol * c.curVol)
		}
	}
}

func (f *fade) advance(dt float64) (float32, bool) {
	f.time += dt
	t := float32(1)
	if f.dur > 0 {
		t = clamp32(float32(f.time/f.dur), 0, 1)
	}
	return f.from + (f.to-f.from)*t, t >= 1
}

// Kill silences the sequencer. The engine drops it at the end of the pump
// cycle.
func (s *Sequencer) Kill() {
	s.AllOff(true)
	if s.song != nil {
		s.song.Stop()
	}
	s.state = SequencerDead
}

func (s *Sequencer) advance(dt float64) {
	if s.state == SequencerDead {
		return
	}
	if s.volFade != nil {
		vol, done := s.volFade.advance(dt)
		s.applyVolume(vol)
		if done {
			s.volFade = nil
		}
	}
	if s.stopFade != nil {
		vol, done := s.stopFade.advance(dt)
		s.applyVolume(vol)
		if done {
			s.stopFade = nil
			s.stopSong(s.stopNow)
			return
		}
	}
	if s.state == SequencerPlaying && s.song != nil {
		if s.song.Advance(s, dt) {
			s.state = SequencerInteractive
		}
		s.ticksPerSec = float64(s.song.Tempo()) * songTicksPerBeat / 60
	}
}
