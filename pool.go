package amuse

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

type (
	// SoundMacro is a flat list of commands. The program counter of a macro
	// is an index into Cmds.
	SoundMacro struct {
		Cmds []Cmd
	}

	// Table is one of *ADSR, *ADSRDLS or *Curve.
	Table interface {
		tableSize() int
	}

	// ADSR is a classic envelope: attack, decay and release in milliseconds
	// and the sustain level in 1/0x1000 units.
	ADSR struct {
		Attack  uint16
		Decay   uint16
		Sustain uint16
		Release uint16
	}

	// ADSRDLS is a DLS style envelope with times in timecents.
	ADSRDLS struct {
		Attack      uint32
		Decay       uint32
		Sustain     uint16 // 1/1000 units
		Release     uint32
		VelToAttack uint32
		KeyToDecay  uint32
	}

	// Curve maps a 7 bit controller value to a 7 bit output value.
	Curve struct {
		Data []byte
	}

	KeymapEntry struct {
		Macro      ObjectId
		Transpose  int8
		Pan        int8
		PrioOffset int8
	}

	// Keymap assigns a SoundMacro to each of the 128 MIDI keys.
	Keymap [128]KeymapEntry

	LayerMapping struct {
		Macro      ObjectId
		KeyLo      int8
		KeyHi      int8
		Transpose  int8
		Volume     int8
		PrioOffset int8
		Span       int8
		Pan        int8
	}

	// Layer starts every mapping whose key range contains the played key.
	Layer struct {
		Mappings []LayerMapping
	}

	// AudioGroupPool holds the objects of a group, keyed by their full ids.
	AudioGroupPool struct {
		SoundMacros map[ObjectId]*SoundMacro
		Tables      map[ObjectId]Table
		Keymaps     map[ObjectId]*Keymap
		Layers      map[ObjectId]*Layer
	}
)

const (
	adsrSize      = 8
	adsrDLSSize   = 24
	keymapEntSize = 8
	layerMapSize  = 12
	objHeaderSize = 8
	endOfList32   = 0xffffffff
)

func NewAudioGroupPool() *AudioGroupPool {
	return &AudioGroupPool{
		SoundMacros: map[ObjectId]*SoundMacro{},
		Tables:      map[ObjectId]Table{},
		Keymaps:     map[ObjectId]*Keymap{},
		Layers:      map[ObjectId]*Layer{},
	}
}

// AssertPC panics with ErrPCOutOfRange if pc is not a valid step of the
// macro. An out of range step means the group data is corrupt.
func (m *SoundMacro) AssertPC(pc int) {
	if pc < 0 || pc >= len(m.Cmds) {
		panic(fmt.Errorf("%w: step %d of %d", ErrPCOutOfRange, pc, len(m.Cmds)))
	}
}

func (*ADSR) tableSize() int    { return adsrSize }
func (*ADSRDLS) tableSize() int { return adsrDLSSize }
func (c *Curve) tableSize() int { return len(c.Data) }

// AttackTime returns the attack time in seconds.
func (a *ADSR) AttackTime() float64 { return float64(a.Attack) / 1000 }

// DecayTime returns the decay time in seconds; 0x8000 means no decay.
func (a *ADSR) DecayTime() float64 {
	if a.Decay == 0x8000 {
		return 0
	}
	return float64(a.Decay) / 1000
}

// SustainFactor returns the sustain level in [0,1].
func (a *ADSR) SustainFactor() float64 { return float64(a.Sustain) / 0x1000 }

// ReleaseTime returns the release time in seconds.
func (a *ADSR) ReleaseTime() float64 { return float64(a.Release) / 1000 }

// TimeCentsToSeconds converts a 16.16 fixed point timecent value.
// 0x80000000 is the DLS encoding of zero time.
func TimeCentsToSeconds(tc uint32) float64 {
	if tc == 0x80000000 {
		return 0
	}
	return math.Exp2(float64(int32(tc)) / (1200 * 65536))
}

func (a *ADSRDLS) AttackTime() float64    { return TimeCentsToSeconds(a.Attack) }
func (a *ADSRDLS) DecayTime() float64     { return TimeCentsToSeconds(a.Decay) }
func (a *ADSRDLS) SustainFactor() float64 { return float64(a.Sustain) / 1000 }
func (a *ADSRDLS) ReleaseTime() float64   { return TimeCentsToSeconds(a.Release) }

// AttackTimeForVel returns the attack time scaled by the note velocity.
func (a *ADSRDLS) AttackTimeForVel(vel int) float64 {
	if a.VelToAttack == 0x80000000 {
		return a.AttackTime()
	}
	return a.AttackTime() + float64(vel)*TimeCentsToSeconds(a.VelToAttack)/128
}

// DecayTimeForKey returns the decay time scaled by the note key.
func (a *ADSRDLS) DecayTimeForKey(key int) float64 {
	if a.KeyToDecay == 0x80000000 {
		return a.DecayTime()
	}
	return a.DecayTime() + float64(key)*TimeCentsToSeconds(a.KeyToDecay)/128
}

// Value looks up a 7 bit input; inputs past the end of the curve return the
// last entry.
func (c *Curve) Value(in int) int {
	if len(c.Data) == 0 {
		return in
	}
	if in < 0 {
		in = 0
	}
	if in >= len(c.Data) {
		in = len(c.Data) - 1
	}
	return int(c.Data[in])
}

// SoundMacro returns the macro with the given id or nil.
func (p *AudioGroupPool) SoundMacro(id ObjectId) *SoundMacro {
	return p.SoundMacros[id]
}

func (p *AudioGroupPool) Table(id ObjectId) Table {
	return p.Tables[id]
}

// TableAsADSR returns the table if it is an *ADSR or *ADSRDLS, else nil.
func (p *AudioGroupPool) TableAsADSR(id ObjectId) Table {
	switch t := p.Tables[id].(type) {
	case *ADSR, *ADSRDLS:
		return t
	}
	return nil
}

func (p *AudioGroupPool) TableAsCurve(id ObjectId) *Curve {
	c, _ := p.Tables[id].(*Curve)
	return c
}

func (p *AudioGroupPool) Keymap(id ObjectId) *Keymap {
	return p.Keymaps[id]
}

func (p *AudioGroupPool) Layer(id ObjectId) *Layer {
	return p.Layers[id]
}

func sortedIds[V any](m map[ObjectId]V) []ObjectId {
	ids := make([]ObjectId, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ReadAudioGroupPool parses a pool buffer.
func ReadAudioGroupPool(data []byte, order binary.ByteOrder) (*AudioGroupPool, error) {
	p := NewAudioGroupPool()
	if len(data) == 0 {
		return p, nil
	}
	r := newReader(data, order, 0)
	var offsets [4]uint32
	for i := range offsets {
		offsets[i] = r.u32()
	}
	if r.err != nil {
		return nil, fmt.Errorf("pool header: %w", r.err)
	}
	for ns, off := range offsets {
		if off == 0 {
			continue
		}
		if err := p.readNamespace(r, ns, int(off)); err != nil {
			return nil, fmt.Errorf("pool %s namespace: %w", ObjectKind(ns), err)
		}
	}
	return p, nil
}

func (p *AudioGroupPool) readNamespace(r *reader, ns int, off int) error {
	r.seek(off)
	for {
		start := r.pos
		size := r.u32()
		if r.err != nil {
			return r.err
		}
		if size == endOfList32 {
			return nil
		}
		if size < objHeaderSize {
			return fmt.Errorf("object at offset %d has size %d", start, size)
		}
		id := ObjectId(r.u16())
		r.skip(2)
		payload := r.take(int(size) - objHeaderSize)
		if r.err != nil {
			return r.err
		}
		pr := newReader(payload, r.order, 0)
		var err error
		switch ObjectKind(ns) {
		case KindSoundMacro:
			err = p.readSoundMacro(pr, id)
		case KindTable:
			err = p.readTable(pr, id)
		case KindKeymap:
			err = p.readKeymap(pr, id)
		case KindLayer:
			err = p.readLayer(pr, id)
		}
		if err != nil {
			return fmt.Errorf("object %s: %w", id, err)
		}
	}
}

func (p *AudioGroupPool) readSoundMacro(r *reader, id ObjectId) error {
	m := &SoundMacro{}
	for r.pos+CmdSize <= len(r.data) {
		c, err := decodeCmd(r)
		if err != nil {
			return err
		}
		m.Cmds = append(m.Cmds, c)
	}
	p.SoundMacros[id] = m
	return nil
}

func (p *AudioGroupPool) readTable(r *reader, id ObjectId) error {
	switch len(r.data) {
	case adsrSize:
		p.Tables[id] = &ADSR{Attack: r.u16(), Decay: r.u16(), Sustain: r.u16(), Release: r.u16()}
	case adsrDLSSize:
		t := &ADSRDLS{Attack: r.u32(), Decay: r.u32(), Sustain: r.u16()}
		r.skip(2)
		t.Release, t.VelToAttack, t.KeyToDecay = r.u32(), r.u32(), r.u32()
		p.Tables[id] = t
	default:
		p.Tables[id] = &Curve{Data: append([]byte(nil), r.data...)}
	}
	return r.err
}

func (p *AudioGroupPool) readKeymap(r *reader, id ObjectId) error {
	k := &Keymap{}
	for i := range k {
		k[i].Macro = ObjectId(r.u16())
		k[i].Transpose = int8(r.u8())
		k[i].Pan = int8(r.u8())
		k[i].PrioOffset = int8(r.u8())
		r.skip(3)
	}
	if r.err != nil {
		return r.err
	}
	p.Keymaps[id] = k
	return nil
}

func (p *AudioGroupPool) readLayer(r *reader, id ObjectId) error {
	l := &Layer{}
	count := r.u32()
	for i := uint32(0); i < count && r.err == nil; i++ {
		m := LayerMapping{Macro: ObjectId(r.u16())}
		m.KeyLo, m.KeyHi, m.Transpose = int8(r.u8()), int8(r.u8()), int8(r.u8())
		m.Volume, m.PrioOffset, m.Span, m.Pan = int8(r.u8()), int8(r.u8()), int8(r.u8()), int8(r.u8())
		r.skip(3)
		l.Mappings = append(l.Mappings, m)
	}
	if r.err != nil {
		return r.err
	}
	p.Layers[id] = l
	return nil
}

// Encode serializes the pool in the given byte order. Objects are written
// in ascending id order so the output is deterministic.
func (p *AudioGroupPool) Encode(order binary.ByteOrder) []byte {
	w := newWriter(order)
	w.pad(16)
	var offsets [4]uint32

	offsets[KindSoundMacro] = uint32(w.len())
	for _, id := range sortedIds(p.SoundMacros) {
		m := p.SoundMacros[id]
		writeObjectHeader(w, id, len(m.Cmds)*CmdSize)
		for _, c := range m.Cmds {
			encodeCmd(w, c)
		}
	}
	w.u32(endOfList32)

	offsets[KindTable] = uint32(w.len())
	for _, id := range sortedIds(p.Tables) {
		t := p.Tables[id]
		writeObjectHeader(w, id, t.tableSize())
		switch t := t.(type) {
		case *ADSR:
			w.u16(t.Attack)
			w.u16(t.Decay)
			w.u16(t.Sustain)
			w.u16(t.Release)
		case *ADSRDLS:
			w.u32(t.Attack)
			w.u32(t.Decay)
			w.u16(t.Sustain)
			w.pad(2)
			w.u32(t.Release)
			w.u32(t.VelToAttack)
			w.u32(t.KeyToDecay)
		case *Curve:
			w.bytes(t.Data)
		}
	}
	w.u32(endOfList32)

	offsets[KindKeymap] = uint32(w.len())
	for _, id := range sortedIds(p.Keymaps) {
		writeObjectHeader(w, id, 128*keymapEntSize)
		for _, e := range p.Keymaps[id] {
			w.u16(uint16(e.Macro))
			w.u8(uint8(e.Transpose))
			w.u8(uint8(e.Pan))
			w.u8(uint8(e.PrioOffset))
			w.pad(3)
		}
	}
	w.u32(endOfList32)

	offsets[KindLayer] = uint32(w.len())
	for _, id := range sortedIds(p.Layers) {
		l := p.Layers[id]
		writeObjectHeader(w, id, 4+len(l.Mappings)*layerMapSize)
		w.u32(uint32(len(l.Mappings)))
		for _, m := range l.Mappings {
			w.u16(uint16(m.Macro))
			for _, b := range []int8{m.KeyLo, m.KeyHi, m.Transpose, m.Volume, m.PrioOffset, m.Span, m.Pan} {
				w.u8(uint8(b))
			}
			w.pad(3)
		}
	}
	w.u32(endOfList32)

	for i, off := range offsets {
		w.putU32(i*4, off)
	}
	return w.buf
}

func writeObjectHeader(w *writer, id ObjectId, payload int) {
	w.u32(uint32(objHeaderSize + payload))
	w.u16(uint16(id))
	w.pad(2)
}
