// Package engine runs SoundMacro voices on top of an injected backend. An
// Engine owns every voice, sequencer, studio and emitter; the backend drives
// it through the amuse.EngineCallback interface, or PumpEngine advances it
// without one.
package engine

import (
	"fmt"
	"log"
	"slices"

	"github.com/amuse-audio/amuse"
)

type (
	sfxRef struct {
		group   *amuse.AudioGroup
		groupID amuse.GroupId
		entry   amuse.SFXEntry
	}

	// Engine is not safe for concurrent use. Backends call it from the
	// single goroutine that mixes audio.
	Engine struct {
		backend    amuse.BackendVoiceAllocator
		cfg        Config
		channelSet amuse.ChannelSet

		groups     []*amuse.AudioGroup
		songGroups map[amuse.GroupId]*amuse.AudioGroup
		sfxGroups  map[amuse.GroupId]*amuse.AudioGroup
		sfxLookup  map[amuse.SFXId]sfxRef

		voices     map[VoiceID]*Voice
		active     []*Voice
		nextVid    VoiceID
		sequencers []*Sequencer
		emitters   []*Emitter
		listeners  []*Listener

		midiReaders []*MIDIReader

		defaultStudio *Studio
		studios       []*Studio

		flags  [256]uint8
		random uint32
	}
)

// NativeSampleRate is the rate voices are allocated at until a sample
// sets its own.
const NativeSampleRate = 32000

// New creates an engine that plays through backend.
func New(backend amuse.BackendVoiceAllocator, cfg Config) *Engine {
	e := &Engine{
		backend:    backend,
		cfg:        cfg,
		channelSet: backend.ChannelSet(),
		songGroups: map[amuse.GroupId]*amuse.AudioGroup{},
		sfxGroups:  map[amuse.GroupId]*amuse.AudioGroup{},
		sfxLookup:  map[amuse.SFXId]sfxRef{},
		voices:     map[VoiceID]*Voice{},
		random:     1,
	}
	backend.SetCallback(e)
	backend.SetVolume(cfg.Volume)
	e.defaultStudio = newStudio(e, true)
	e.studios = append(e.studios, e.defaultStudio)
	for _, fx := range cfg.AuxA {
		if _, err := e.defaultStudio.auxA.MakeEffect(fx); err != nil {
			log.Printf("aux A: %v", err)
		}
	}
	for _, fx := range cfg.AuxB {
		if _, err := e.defaultStudio.auxB.MakeEffect(fx); err != nil {
			log.Printf("aux B: %v", err)
		}
	}
	return e
}

// AddAudioGroup parses data and makes its song and SFX groups playable.
func (e *Engine) AddAudioGroup(data *amuse.AudioGroupData) (*amuse.AudioGroup, error) {
	g, err := amuse.NewAudioGroup(data)
	if err != nil {
		return nil, fmt.Errorf("cannot add audio group: %w", err)
	}
	e.AddParsedAudioGroup(g)
	return g, nil
}

// AddParsedAudioGroup registers an already parsed group.
func (e *Engine) AddParsedAudioGroup(g *amuse.AudioGroup) {
	e.groups = append(e.groups, g)
	proj := g.Project()
	for id := range proj.SongGroups {
		e.songGroups[id] = g
	}
	for id, sg := range proj.SFXGroups {
		e.sfxGroups[id] = g
		for sfx, ent := range sg.SFXEntries {
			e.sfxLookup[sfx] = sfxRef{group: g, groupID: id, entry: ent}
		}
	}
}

// RemoveAudioGroup kills everything playing from g and forgets it.
func (e *Engine) RemoveAudioGroup(g *amuse.AudioGroup) {
	for _, v := range e.active {
		if v.group == g {
			v.Kill()
		}
	}
	for _, s := range e.sequencers {
		if s.group == g {
			s.Kill()
		}
	}
	for id, sg := range e.songGroups {
		if sg == g {
			delete(e.songGroups, id)
		}
	}
	for id, sg := range e.sfxGroups {
		if sg == g {
			delete(e.sfxGroups, id)
		}
	}
	for id, ref := range e.sfxLookup {
		if ref.group == g {
			delete(e.sfxLookup, id)
		}
	}
	e.groups = slices.DeleteFunc(e.groups, func(x *amuse.AudioGroup) bool { return x == g })
}

func (e *Engine) Groups() []*amuse.AudioGroup { return e.groups }

func (e *Engine) DefaultStudio() *Studio { return e.defaultStudio }

// AddStudio creates a studio. A studio that is not a main output is only
// heard through studio sends.
func (e *Engine) AddStudio(mainOut bool) *Studio {
	s := newStudio(e, mainOut)
	e.studios = append(e.studios, s)
	return s
}

func (e *Engine) groupID(g *amuse.AudioGroup) amuse.GroupId {
	for id, sg := range e.songGroups {
		if sg == g {
			return id
		}
	}
	for id, sg := range e.sfxGroups {
		if sg == g {
			return id
		}
	}
	return 0
}

// FxStart plays sound effect id. A zero pan takes the panning of the SFX
// entry. It returns nil if the effect is unknown or cannot start.
func (e *Engine) FxStart(id amuse.SFXId, vol, pan float32, studio *Studio) *Voice {
	return e.fxStart(id, vol, pan, studio, nil)
}

func (e *Engine) fxStart(id amuse.SFXId, vol, pan float32, studio *Studio, emitter *Emitter) *Voice {
	ref, ok := e.sfxLookup[id]
	if !ok {
		return nil
	}
	ent := ref.entry
	e.makeRoom(ent.ObjectId, int(ent.MaxVoices), int(ent.Priority))
	v := e.allocateVoice(ref.group, ref.groupID, studio, emitter)
	if v == nil {
		return nil
	}
	v.origin = ent.ObjectId
	v.priority = int(ent.Priority)
	if !v.LoadPageObject(ent.ObjectId, 1000, int(ent.DefKey), int(ent.DefVel), 0) {
		e.destroyVoice(v)
		return nil
	}
	v.SetVolume(vol)
	if pan == 0 {
		pan = (float32(ent.Panning) - 64) / 63
	}
	v.SetPan(clamp32(pan, -1, 1))
	return v
}

// MacroStart plays a SoundMacro of g directly.
func (e *Engine) MacroStart(g *amuse.AudioGroup, id amuse.ObjectId, key, vel, mod uint8, studio *Studio) *Voice {
	v := e.allocateVoice(g, e.groupID(g), studio, nil)
	if v == nil {
		return nil
	}
	v.origin = id
	if !v.LoadMacroObject(id, 0, 1000, int(key), int(vel), int(mod)) {
		e.destroyVoice(v)
		return nil
	}
	return v
}

// PageObjectStart plays a SoundMacro, Keymap or Layer of g.
func (e *Engine) PageObjectStart(g *amuse.AudioGroup, id amuse.ObjectId, key, vel, mod uint8, studio *Studio) *Voice {
	v := e.allocateVoice(g, e.groupID(g), studio, nil)
	if v == nil {
		return nil
	}
	v.origin = id
	if !v.LoadPageObject(id, 1000, int(key), int(vel), int(mod)) {
		e.destroyVoice(v)
		return nil
	}
	return v
}

// SeqPlay creates a sequencer for group groupID using the MIDI setup of
// song. If songData is not nil the song starts playing at once. An SFX group
// gets an interactive sequencer whose programs index its effects.
func (e *Engine) SeqPlay(groupID amuse.GroupId, song amuse.SongId, songData []byte, loop bool, studio *Studio) (*Sequencer, error) {
	if studio == nil {
		studio = e.defaultStudio
	}
	var seq *Sequencer
	if g, ok := e.songGroups[groupID]; ok {
		seq = newSongSequencer(e, g, groupID, g.Project().SongGroup(groupID), song, studio)
	} else if g, ok := e.sfxGroups[groupID]; ok {
		seq = newSFXSequencer(e, g, groupID, g.Project().SFXGroup(groupID), studio)
	} else {
		return nil, fmt.Errorf("no group %d loaded", groupID)
	}
	if songData != nil {
		if err := seq.PlaySong(songData, loop); err != nil {
			return nil, err
		}
	}
	e.sequencers = append(e.sequencers, seq)
	return seq, nil
}

func (e *Engine) Sequencers() []*Sequencer { return e.sequencers }

// AddEmitter starts SFX id as a positioned voice.
func (e *Engine) AddEmitter(pos, velocity Vector3, maxDist, falloff float32, id amuse.SFXId, minVol, maxVol float32, doppler bool, studio *Studio) *Emitter {
	em := &Emitter{
		engine:   e,
		pos:      pos,
		velocity: velocity,
		maxDist:  maxDist,
		falloff:  falloff,
		minVol:   clamp32(minVol, 0, 1),
		maxVol:   clamp32(maxVol, 0, 1),
		doppler:  doppler,
		dirty:    true,
	}
	v := e.fxStart(id, 1, 0, studio, em)
	if v == nil {
		return nil
	}
	em.voice = v.id
	e.emitters = append(e.emitters, em)
	em.update(e.listeners, true)
	return em
}

func (e *Engine) RemoveEmitter(em *Emitter) {
	if v := em.Voice(); v != nil {
		v.KeyOff()
	}
	e.emitters = slices.DeleteFunc(e.emitters, func(x *Emitter) bool { return x == em })
}

// AddListener adds a point of view. With several listeners each emitter
// follows the one it is loudest for.
func (e *Engine) AddListener(pos, velocity, heading, up Vector3, volume, soundSpeed float32) *Listener {
	l := &Listener{Pos: pos, Velocity: velocity, Heading: heading, Up: up, Volume: volume, SoundSpeed: soundSpeed, dirty: true}
	e.listeners = append(e.listeners, l)
	return l
}

func (e *Engine) RemoveListener(l *Listener) {
	e.listeners = slices.DeleteFunc(e.listeners, func(x *Listener) bool { return x == l })
	for _, em := range e.emitters {
		em.dirty = true
	}
}

// SetVolume sets the master volume of the backend.
func (e *Engine) SetVolume(vol float32) {
	e.cfg.Volume = clamp32(vol, 0, 1)
	e.backend.SetVolume(e.cfg.Volume)
}

// FindVoice returns a voice that is still sounding, or nil.
func (e *Engine) FindVoice(id VoiceID) *Voice {
	if v := e.voices[id]; v != nil && !v.IsDead() {
		return v
	}
	return nil
}

// Voices returns every voice that has not been reaped yet.
func (e *Engine) Voices() []*Voice { return e.active }

// ActiveVoiceCount counts the voices that are not dead.
func (e *Engine) ActiveVoiceCount() int {
	n := 0
	for _, v := range e.active {
		if v.voxState != VoiceDead {
			n++
		}
	}
	return n
}

// KillKeygroup releases, or with now kills, every voice in keygroup kg.
func (e *Engine) KillKeygroup(kg uint8, now bool) {
	for _, v := range e.active {
		if v.keygroup != kg || v.voxState == VoiceDead {
			continue
		}
		if now {
			v.Kill()
		} else {
			v.KeyOff()
		}
	}
}

// SendMacroMessage delivers val to every voice running macro id.
func (e *Engine) SendMacroMessage(id amuse.ObjectId, val int32) {
	for _, v := range e.active {
		if v.voxState != VoiceDead && v.ObjectId() == id {
			v.Message(val)
		}
	}
}

// NextRandom steps the engine's linear congruential generator.
func (e *Engine) NextRandom() uint32 {
	e.random = e.random*0x41c64e6d + 0x3039
	return e.random >> 16
}

// Flag returns one of the 256 global macro flags.
func (e *Engine) Flag(i uint8) uint8 { return e.flags[i] }

// PumpEngine advances the engine by dt seconds without mixing, for
// backends that have no audio to produce.
func (e *Engine) PumpEngine(dt float64) {
	e.On5MsInterval(dt)
	for _, v := range slices.Clone(e.active) {
		v.PreSupplyAudio(dt)
	}
	e.OnPumpCycleComplete()
}

// On5MsInterval delivers queued MIDI, then advances sequencers and
// emitters.
func (e *Engine) On5MsInterval(dt float64) {
	for _, r := range e.midiReaders {
		r.drain()
	}
	for _, s := range e.sequencers {
		s.advance(dt)
	}
	force := false
	for _, l := range e.listeners {
		force = force || l.dirty
	}
	for _, em := range e.emitters {
		em.update(e.listeners, force)
	}
	for _, l := range e.listeners {
		l.dirty = false
	}
}

// OnPumpCycleComplete reaps dead voices, sequencers and emitters.
func (e *Engine) OnPumpCycleComplete() {
	e.active = slices.DeleteFunc(e.active, func(v *Voice) bool {
		if !v.IsDead() {
			return false
		}
		v.backend.Close()
		delete(e.voices, v.id)
		return true
	})
	e.sequencers = slices.DeleteFunc(e.sequencers, func(s *Sequencer) bool {
		return s.state == SequencerDead
	})
	e.midiReaders = slices.DeleteFunc(e.midiReaders, func(r *MIDIReader) bool {
		return r.seq.state == SequencerDead
	})
	e.emitters = slices.DeleteFunc(e.emitters, func(em *Emitter) bool {
		return e.voices[em.voice] == nil
	})
}

func (e *Engine) allocateVoice(g *amuse.AudioGroup, groupID amuse.GroupId, studio *Studio, emitter *Emitter) *Voice {
	if studio == nil {
		studio = e.defaultStudio
	}
	if e.cfg.MaxVoices > 0 && e.ActiveVoiceCount() >= e.cfg.MaxVoices {
		victim := e.stealCandidate(func(*Voice) bool { return true })
		if victim == nil {
			return nil
		}
		victim.Kill()
	}
	v := newVoice(e, g, groupID, e.nextVid, studio, emitter)
	e.nextVid++
	v.backend = e.backend.AllocateVoice(v, NativeSampleRate, true)
	e.voices[v.id] = v
	e.active = append(e.active, v)
	return v
}

// destroyVoice removes a voice that never started.
func (e *Engine) destroyVoice(v *Voice) {
	v.voxState = VoiceDead
	v.backend.Close()
	delete(e.voices, v.id)
	e.active = slices.DeleteFunc(e.active, func(x *Voice) bool { return x == v })
}

// stealCandidate picks the live voice to give up: the lowest priority,
// then the lowest age, then the oldest.
func (e *Engine) stealCandidate(match func(*Voice) bool) *Voice {
	var best *Voice
	for _, v := range e.active {
		if v.voxState == VoiceDead || !match(v) {
			continue
		}
		if best == nil || v.priority < best.priority ||
			(v.priority == best.priority && v.age < best.age) {
			best = v
		}
	}
	return best
}

// makeRoom kills voices started for origin until fewer than maxVoices
// remain. Voices of higher priority than the new one are kept.
func (e *Engine) makeRoom(origin amuse.ObjectId, maxVoices, priority int) {
	if maxVoices <= 0 {
		return
	}
	match := func(v *Voice) bool { return v.origin == origin && v.parent < 0 }
	for {
		n := 0
		for _, v := range e.active {
			if v.voxState != VoiceDead && match(v) {
				n++
			}
		}
		if n < maxVoices {
			return
		}
		victim := e.stealCandidate(match)
		if victim == nil || victim.priority > priority {
			return
		}
		victim.Kill()
	}
}
