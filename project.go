package amuse

import (
	"encoding/binary"
	"fmt"
	"sort"
)

type (
	// PageEntry maps a MIDI program to a pool object.
	PageEntry struct {
		ObjectId  ObjectId
		Priority  uint8
		MaxVoices uint8
		ProgramNo uint8
	}

	// MIDISetup is the initial state of one MIDI channel for a song.
	MIDISetup struct {
		ProgramNo uint8
		Volume    uint8
		Panning   uint8
		Reverb    uint8
		Chorus    uint8
	}

	// SongGroupIndex holds the program tables of a song group. Channel 9
	// (drums) uses DrumPages, every other channel NormalPages.
	SongGroupIndex struct {
		NormalPages map[uint8]PageEntry
		DrumPages   map[uint8]PageEntry
		MIDISetups  map[SongId]*[16]MIDISetup
	}

	SFXEntry struct {
		ObjectId  ObjectId
		Priority  uint8
		MaxVoices uint8
		DefVel    uint8
		Panning   uint8
		DefKey    uint8
	}

	SFXGroupIndex struct {
		SFXEntries map[SFXId]SFXEntry
	}

	// AudioGroupProject is the index of the song and sound effect groups in
	// an audio group.
	AudioGroupProject struct {
		SongGroups map[GroupId]*SongGroupIndex
		SFXGroups  map[GroupId]*SFXGroupIndex
	}
)

const (
	groupTypeSong = 0
	groupTypeSFX  = 1

	groupHeaderSize = 40
	pageEntrySize   = 6
	sfxEntrySize    = 10
	endOfList16     = 0xffff
)

func NewAudioGroupProject() *AudioGroupProject {
	return &AudioGroupProject{
		SongGroups: map[GroupId]*SongGroupIndex{},
		SFXGroups:  map[GroupId]*SFXGroupIndex{},
	}
}

func NewSongGroupIndex() *SongGroupIndex {
	return &SongGroupIndex{
		NormalPages: map[uint8]PageEntry{},
		DrumPages:   map[uint8]PageEntry{},
		MIDISetups:  map[SongId]*[16]MIDISetup{},
	}
}

func NewSFXGroupIndex() *SFXGroupIndex {
	return &SFXGroupIndex{SFXEntries: map[SFXId]SFXEntry{}}
}

// SongGroup returns the song group with the given id or nil.
func (p *AudioGroupProject) SongGroup(id GroupId) *SongGroupIndex {
	return p.SongGroups[id]
}

// SFXGroup returns the sound effect group with the given id or nil.
func (p *AudioGroupProject) SFXGroup(id GroupId) *SFXGroupIndex {
	return p.SFXGroups[id]
}

// FindSFX searches every sound effect group for id.
func (p *AudioGroupProject) FindSFX(id SFXId) (SFXEntry, GroupId, bool) {
	for _, gid := range sortedKeys(p.SFXGroups) {
		if e, ok := p.SFXGroups[gid].SFXEntries[id]; ok {
			return e, gid, true
		}
	}
	return SFXEntry{}, 0, false
}

// Validate checks that every page and sound effect references an object
// present in the pool.
func (p *AudioGroupProject) Validate(pool *AudioGroupPool) error {
	for _, gid := range sortedKeys(p.SongGroups) {
		g := p.SongGroups[gid]
		for _, pages := range []map[uint8]PageEntry{g.NormalPages, g.DrumPages} {
			for prog, e := range pages {
				if !pool.hasObject(e.ObjectId) {
					return fmt.Errorf("song group %d program %d: unresolved %s", gid, prog, e.ObjectId)
				}
			}
		}
	}
	for _, gid := range sortedKeys(p.SFXGroups) {
		for sid, e := range p.SFXGroups[gid].SFXEntries {
			if !pool.hasObject(e.ObjectId) {
				return fmt.Errorf("sfx group %d sfx %d: unresolved %s", gid, sid, e.ObjectId)
			}
		}
	}
	return nil
}

func (p *AudioGroupPool) hasObject(id ObjectId) bool {
	switch id.Kind() {
	case KindSoundMacro:
		return p.SoundMacros[id] != nil
	case KindKeymap:
		return p.Keymaps[id] != nil
	case KindLayer:
		return p.Layers[id] != nil
	}
	return p.Tables[id] != nil
}

func sortedKeys[K ~uint16 | ~uint8, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// ReadAudioGroupProject parses a project buffer.
func ReadAudioGroupProject(data []byte, order binary.ByteOrder) (*AudioGroupProject, error) {
	p := NewAudioGroupProject()
	r := newReader(data, order, 0)
	for off := 0; off+4 <= len(data); {
		r.seek(off)
		endOff := r.u32()
		if endOff == endOfList32 {
			break
		}
		groupId := GroupId(r.u16())
		typ := r.u16()
		var offs [8]uint32
		for i := range offs {
			offs[i] = r.u32()
		}
		if r.err != nil {
			return nil, fmt.Errorf("group header at %d: %w", off, r.err)
		}
		pageOff, drumOff, setupOff := offs[5], offs[6], offs[7]
		switch typ {
		case groupTypeSong:
			g := NewSongGroupIndex()
			if err := readPages(r, int(pageOff), g.NormalPages); err != nil {
				return nil, fmt.Errorf("song group %d pages: %w", groupId, err)
			}
			if err := readPages(r, int(drumOff), g.DrumPages); err != nil {
				return nil, fmt.Errorf("song group %d drum pages: %w", groupId, err)
			}
			if err := readMIDISetups(r, int(setupOff), g.MIDISetups); err != nil {
				return nil, fmt.Errorf("song group %d midi setups: %w", groupId, err)
			}
			p.SongGroups[groupId] = g
		case groupTypeSFX:
			g := NewSFXGroupIndex()
			if err := readSFXTable(r, int(pageOff), g.SFXEntries); err != nil {
				return nil, fmt.Errorf("sfx group %d: %w", groupId, err)
			}
			p.SFXGroups[groupId] = g
		default:
			return nil, fmt.Errorf("group %d has unknown type %d", groupId, typ)
		}
		if int(endOff) <= off {
			return nil, fmt.Errorf("group %d: end offset %d does not advance", groupId, endOff)
		}
		off = int(endOff)
	}
	return p, nil
}

func readPages(r *reader, off int, pages map[uint8]PageEntry) error {
	if off == 0 {
		return nil
	}
	r.seek(off)
	for {
		id := r.u16()
		if r.err != nil {
			return r.err
		}
		if id == endOfList16 {
			return nil
		}
		e := PageEntry{ObjectId: ObjectId(id), Priority: r.u8(), MaxVoices: r.u8(), ProgramNo: r.u8()}
		r.skip(1)
		pages[e.ProgramNo] = e
	}
}

func readMIDISetups(r *reader, off int, setups map[SongId]*[16]MIDISetup) error {
	if off == 0 {
		return nil
	}
	r.seek(off)
	for {
		id := r.u16()
		if r.err != nil {
			return r.err
		}
		if id == endOfList16 {
			return nil
		}
		r.skip(2)
		var s [16]MIDISetup
		for i := range s {
			s[i] = MIDISetup{ProgramNo: r.u8(), Volume: r.u8(), Panning: r.u8(), Reverb: r.u8(), Chorus: r.u8()}
		}
		setups[SongId(id)] = &s
	}
}

func readSFXTable(r *reader, off int, entries map[SFXId]SFXEntry) error {
	if off == 0 {
		return nil
	}
	r.seek(off)
	count := int(r.u16())
	r.skip(2)
	for i := 0; i < count && r.err == nil; i++ {
		id := SFXId(r.u16())
		e := SFXEntry{ObjectId: ObjectId(r.u16())}
		e.Priority, e.MaxVoices, e.DefVel, e.Panning, e.DefKey = r.u8(), r.u8(), r.u8(), r.u8(), r.u8()
		r.skip(1)
		entries[id] = e
	}
	return r.err
}

// Encode serializes the project. Song groups are written before sound
// effect groups, each in ascending id order.
func (p *AudioGroupProject) Encode(order binary.ByteOrder) []byte {
	w := newWriter(order)
	for _, gid := range sortedKeys(p.SongGroups) {
		g := p.SongGroups[gid]
		start := w.len()
		writeGroupHeader(w, gid, groupTypeSong)
		w.putU32(start+8+5*4, uint32(w.len()))
		writePages(w, g.NormalPages)
		w.putU32(start+8+6*4, uint32(w.len()))
		writePages(w, g.DrumPages)
		w.putU32(start+8+7*4, uint32(w.len()))
		for _, sid := range sortedKeys(g.MIDISetups) {
			w.u16(uint16(sid))
			w.pad(2)
			for _, s := range g.MIDISetups[sid] {
				w.u8(s.ProgramNo)
				w.u8(s.Volume)
				w.u8(s.Panning)
				w.u8(s.Reverb)
				w.u8(s.Chorus)
			}
		}
		w.u16(endOfList16)
		alignTo4(w)
		w.putU32(start, uint32(w.len()))
	}
	for _, gid := range sortedKeys(p.SFXGroups) {
		g := p.SFXGroups[gid]
		start := w.len()
		writeGroupHeader(w, gid, groupTypeSFX)
		w.putU32(start+8+5*4, uint32(w.len()))
		w.u16(uint16(len(g.SFXEntries)))
		w.pad(2)
		for _, sid := range sortedKeys(g.SFXEntries) {
			e := g.SFXEntries[sid]
			w.u16(uint16(sid))
			w.u16(uint16(e.ObjectId))
			w.u8(e.Priority)
			w.u8(e.MaxVoices)
			w.u8(e.DefVel)
			w.u8(e.Panning)
			w.u8(e.DefKey)
			w.pad(1)
		}
		alignTo4(w)
		w.putU32(start, uint32(w.len()))
	}
	w.u32(endOfList32)
	return w.buf
}

// writeGroupHeader reserves a group header; the end offset and the table
// offsets are patched in once the tables are written. The object id lists
// are left empty.
func writeGroupHeader(w *writer, id GroupId, typ uint16) {
	w.u32(0)
	w.u16(uint16(id))
	w.u16(typ)
	w.pad(8 * 4)
}

func writePages(w *writer, pages map[uint8]PageEntry) {
	for _, prog := range sortedKeys(pages) {
		e := pages[prog]
		w.u16(uint16(e.ObjectId))
		w.u8(e.Priority)
		w.u8(e.MaxVoices)
		w.u8(prog)
		w.pad(1)
	}
	w.u16(endOfList16)
}

func alignTo4(w *writer) {
	if n := w.len() % 4; n != 0 {
		w.pad(4 - n)
	}
}
