package amuse

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// The textual project format. Objects are keyed by name and reference each
// other by name; numeric ids are kept next to the names so a rebuilt group
// has the same ids as the original.
type (
	projectDoc struct {
		Format      string               `yaml:"format,omitempty"`
		SoundMacros map[string]yaml.Node `yaml:"soundMacros,omitempty"`
		Tables      map[string]yaml.Node `yaml:"tables,omitempty"`
		Keymaps     map[string]yaml.Node `yaml:"keymaps,omitempty"`
		Layers      map[string]yaml.Node `yaml:"layers,omitempty"`
		Samples     map[string]yaml.Node `yaml:"samples,omitempty"`
		SongGroups  map[string]yaml.Node `yaml:"songGroups,omitempty"`
		SFXGroups   map[string]yaml.Node `yaml:"sfxGroups,omitempty"`
	}

	idDoc struct {
		ID uint16 `yaml:"id"`
	}

	macroDoc struct {
		ID   uint16       `yaml:"id"`
		Cmds []yaml.Node `yaml:"cmds"`
	}

	adsrDoc struct {
		Attack  uint16 `yaml:"attack"`
		Decay   uint16 `yaml:"decay"`
		Sustain uint16 `yaml:"sustain"`
		Release uint16 `yaml:"release"`
	}

	adsrDLSDoc struct {
		Attack      uint32 `yaml:"attack"`
		Decay       uint32 `yaml:"decay"`
		Sustain     uint16 `yaml:"sustain"`
		Release     uint32 `yaml:"release"`
		VelToAttack uint32 `yaml:"velToAttack"`
		KeyToDecay  uint32 `yaml:"keyToDecay"`
	}

	tableDoc struct {
		ID      uint16      `yaml:"id"`
		ADSR    *adsrDoc    `yaml:"adsr,omitempty,flow"`
		ADSRDLS *adsrDLSDoc `yaml:"adsrDLS,omitempty,flow"`
		Curve   []int       `yaml:"curve,omitempty,flow"`
	}

	keymapEntryDoc struct {
		Macro      string `yaml:"macro"`
		Transpose  int8   `yaml:"transpose,omitempty"`
		Pan        int8   `yaml:"pan,omitempty"`
		PrioOffset int8   `yaml:"prioOffset,omitempty"`
	}

	keymapDoc struct {
		ID   uint16                 `yaml:"id"`
		Keys map[int]keymapEntryDoc `yaml:"keys"`
	}

	layerMappingDoc struct {
		Macro      string `yaml:"macro"`
		KeyLo      int8   `yaml:"keyLo"`
		KeyHi      int8   `yaml:"keyHi"`
		Transpose  int8   `yaml:"transpose,omitempty"`
		Volume     int8   `yaml:"volume"`
		PrioOffset int8   `yaml:"prioOffset,omitempty"`
		Span       int8   `yaml:"span,omitempty"`
		Pan        int8   `yaml:"pan"`
	}

	layerDoc struct {
		ID       uint16            `yaml:"id"`
		Mappings []layerMappingDoc `yaml:"mappings"`
	}

	sampleDoc struct {
		ID         uint16 `yaml:"id"`
		Pitch      uint8  `yaml:"pitch"`
		SampleRate uint16 `yaml:"sampleRate"`
		LoopStart  uint32 `yaml:"loopStart,omitempty"`
		LoopLength uint32 `yaml:"loopLength,omitempty"`
	}

	pageDoc struct {
		Object    string `yaml:"object"`
		Priority  uint8  `yaml:"priority"`
		MaxVoices uint8  `yaml:"maxVoices"`
	}

	midiSetupDoc struct {
		Program uint8 `yaml:"program"`
		Volume  uint8 `yaml:"volume"`
		Panning uint8 `yaml:"panning"`
		Reverb  uint8 `yaml:"reverb"`
		Chorus  uint8 `yaml:"chorus"`
	}

	songSetupDoc struct {
		ID       uint16         `yaml:"id"`
		Channels []midiSetupDoc `yaml:"channels"`
	}

	songGroupDoc struct {
		ID          uint16                  `yaml:"id"`
		NormalPages map[int]pageDoc         `yaml:"normalPages,omitempty"`
		DrumPages   map[int]pageDoc         `yaml:"drumPages,omitempty"`
		MIDISetups  map[string]songSetupDoc `yaml:"midiSetups,omitempty"`
	}

	sfxDoc struct {
		ID        uint16 `yaml:"id"`
		Object    string `yaml:"object"`
		Priority  uint8  `yaml:"priority"`
		MaxVoices uint8  `yaml:"maxVoices"`
		DefVel    uint8  `yaml:"defVel"`
		Panning   uint8  `yaml:"panning"`
		DefKey    uint8  `yaml:"defKey"`
	}

	sfxGroupDoc struct {
		ID  uint16            `yaml:"id"`
		SFX map[string]sfxDoc `yaml:"sfx"`
	}
)

func sortedNames(m map[string]yaml.Node) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// registerAll binds the name and id of every entry of a section. Entries
// without a readable id are logged and dropped from the section.
func registerAll(reg *NameRegistry, kind NameKind, section map[string]yaml.Node) {
	for _, name := range sortedNames(section) {
		node := section[name]
		var d idDoc
		if err := node.Decode(&d); err != nil {
			log.Printf("project: skipping %s %q: %v", kind, name, err)
			delete(section, name)
			continue
		}
		if err := reg.Register(kind, name, d.ID); err != nil {
			log.Printf("project: skipping %s %q: %v", kind, name, err)
			delete(section, name)
		}
	}
}

// ReadProjectYAML builds an audio group from a project.yaml document.
// Sample data is loaded from <dir>/<sample name>.wav. Malformed entries and
// missing sample files are logged and skipped.
func ReadProjectYAML(r io.Reader, dir string, reg *NameRegistry) (*AudioGroup, error) {
	if reg == nil {
		return nil, ErrNoNameRegistry
	}
	var doc projectDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("cannot parse project: %w", err)
	}
	format := GCN
	if doc.Format != "" {
		f, err := ParseDataFormat(doc.Format)
		if err != nil {
			return nil, err
		}
		format = f
	}

	// tables, keymaps and layers are registered by index, without the
	// namespace bits
	registerAll(reg, SoundMacroNames, doc.SoundMacros)
	registerAll(reg, TableNames, doc.Tables)
	registerAll(reg, KeymapNames, doc.Keymaps)
	registerAll(reg, LayerNames, doc.Layers)
	registerAll(reg, SampleNames, doc.Samples)
	registerAll(reg, GroupNames, doc.SongGroups)
	registerAll(reg, GroupNames, doc.SFXGroups)

	pool := NewAudioGroupPool()
	for _, name := range sortedNames(doc.SoundMacros) {
		node := doc.SoundMacros[name]
		var d macroDoc
		if err := node.Decode(&d); err != nil {
			log.Printf("project: skipping soundmacro %q: %v", name, err)
			continue
		}
		m := &SoundMacro{}
		for i := range d.Cmds {
			c, err := decodeCmdNode(&d.Cmds[i], reg)
			if err != nil {
				log.Printf("project: soundmacro %q step %d: %v", name, i, err)
				c = Cmd{Op: End}
			}
			m.Cmds = append(m.Cmds, c)
		}
		pool.SoundMacros[ObjectId(d.ID)] = m
	}
	for _, name := range sortedNames(doc.Tables) {
		node := doc.Tables[name]
		var d tableDoc
		if err := node.Decode(&d); err != nil {
			log.Printf("project: skipping table %q: %v", name, err)
			continue
		}
		id := ObjectId(d.ID | tableBits)
		switch {
		case d.ADSR != nil:
			pool.Tables[id] = &ADSR{Attack: d.ADSR.Attack, Decay: d.ADSR.Decay, Sustain: d.ADSR.Sustain, Release: d.ADSR.Release}
		case d.ADSRDLS != nil:
			a := d.ADSRDLS
			pool.Tables[id] = &ADSRDLS{Attack: a.Attack, Decay: a.Decay, Sustain: a.Sustain, Release: a.Release, VelToAttack: a.VelToAttack, KeyToDecay: a.KeyToDecay}
		default:
			c := &Curve{Data: make([]byte, len(d.Curve))}
			for i, v := range d.Curve {
				c.Data[i] = byte(v)
			}
			pool.Tables[id] = c
		}
	}
	for _, name := range sortedNames(doc.Keymaps) {
		node := doc.Keymaps[name]
		var d keymapDoc
		if err := node.Decode(&d); err != nil {
			log.Printf("project: skipping keymap %q: %v", name, err)
			continue
		}
		k := &Keymap{}
		for i := range k {
			k[i].Macro = NoObject
		}
		for key, e := range d.Keys {
			if key < 0 || key >= len(k) {
				log.Printf("project: keymap %q: key %d out of range", name, key)
				continue
			}
			macro, err := reg.ResolveOrParse(SoundMacroNames, e.Macro)
			if err != nil {
				log.Printf("project: keymap %q key %d: %v", name, key, err)
				continue
			}
			k[key] = KeymapEntry{Macro: ObjectId(macro), Transpose: e.Transpose, Pan: e.Pan, PrioOffset: e.PrioOffset}
		}
		pool.Keymaps[ObjectId(d.ID|keymapBit)] = k
	}
	for _, name := range sortedNames(doc.Layers) {
		node := doc.Layers[name]
		var d layerDoc
		if err := node.Decode(&d); err != nil {
			log.Printf("project: skipping layer %q: %v", name, err)
			continue
		}
		l := &Layer{}
		for i, m := range d.Mappings {
			macro, err := reg.ResolveOrParse(SoundMacroNames, m.Macro)
			if err != nil {
				log.Printf("project: layer %q mapping %d: %v", name, i, err)
				continue
			}
			l.Mappings = append(l.Mappings, LayerMapping{Macro: ObjectId(macro), KeyLo: m.KeyLo, KeyHi: m.KeyHi,
				Transpose: m.Transpose, Volume: m.Volume, PrioOffset: m.PrioOffset, Span: m.Span, Pan: m.Pan})
		}
		pool.Layers[ObjectId(d.ID|layerBit)] = l
	}

	sdir := NewAudioGroupSampleDirectory()
	var samp []byte
	order := format.ByteOrder()
	pcmFormat := FormatPCM
	if format == PC {
		pcmFormat = FormatPCMPC
	}
	for _, name := range sortedNames(doc.Samples) {
		node := doc.Samples[name]
		var d sampleDoc
		if err := node.Decode(&d); err != nil {
			log.Printf("project: skipping sample %q: %v", name, err)
			continue
		}
		pcm, rate, err := ReadWAVFile(filepath.Join(dir, name+".wav"))
		if err != nil {
			log.Printf("project: skipping sample %q: %v", name, err)
			continue
		}
		if d.SampleRate == 0 {
			d.SampleRate = uint16(rate)
		}
		e := &SampleEntry{
			Id:                SampleId(d.ID),
			SampleOff:         uint32(len(samp)),
			Pitch:             d.Pitch,
			SampleRate:        d.SampleRate,
			NumSamples:        uint32(len(pcm)),
			LoopStartSample:   d.LoopStart,
			LoopLengthSamples: d.LoopLength,
			Format:            pcmFormat,
		}
		if err := e.Validate(); err != nil {
			log.Printf("project: sample %q: %v; dropping the loop", name, err)
			e.LoopStartSample, e.LoopLengthSamples = 0, 0
		}
		for _, s := range pcm {
			var b [2]byte
			order.PutUint16(b[:], uint16(s))
			samp = append(samp, b[:]...)
		}
		sdir.Entries[e.Id] = e
	}

	proj := NewAudioGroupProject()
	for _, name := range sortedNames(doc.SongGroups) {
		node := doc.SongGroups[name]
		var d songGroupDoc
		if err := node.Decode(&d); err != nil {
			log.Printf("project: skipping song group %q: %v", name, err)
			continue
		}
		g := NewSongGroupIndex()
		readPageDocs(reg, name, d.NormalPages, g.NormalPages)
		readPageDocs(reg, name, d.DrumPages, g.DrumPages)
		for song, setup := range d.MIDISetups {
			if err := reg.Register(SongNames, song, setup.ID); err != nil {
				log.Printf("project: song group %q midi setup: %v", name, err)
			}
			var s [16]MIDISetup
			for i := 0; i < len(setup.Channels) && i < 16; i++ {
				m := setup.Channels[i]
				s[i] = MIDISetup{ProgramNo: m.Program, Volume: m.Volume, Panning: m.Panning, Reverb: m.Reverb, Chorus: m.Chorus}
			}
			g.MIDISetups[SongId(setup.ID)] = &s
		}
		proj.SongGroups[GroupId(d.ID)] = g
	}
	for _, name := range sortedNames(doc.SFXGroups) {
		node := doc.SFXGroups[name]
		var d sfxGroupDoc
		if err := node.Decode(&d); err != nil {
			log.Printf("project: skipping sfx group %q: %v", name, err)
			continue
		}
		g := NewSFXGroupIndex()
		for sfxName, s := range d.SFX {
			obj, err := resolveObject(reg, s.Object)
			if err != nil {
				log.Printf("project: sfx %q: %v", sfxName, err)
				continue
			}
			if err := reg.Register(SFXNames, sfxName, s.ID); err != nil {
				log.Printf("project: sfx %q: %v", sfxName, err)
			}
			g.SFXEntries[SFXId(s.ID)] = SFXEntry{ObjectId: obj, Priority: s.Priority, MaxVoices: s.MaxVoices,
				DefVel: s.DefVel, Panning: s.Panning, DefKey: s.DefKey}
		}
		proj.SFXGroups[GroupId(d.ID)] = g
	}
	return BuildAudioGroup(proj, pool, sdir, samp, format), nil
}

func readPageDocs(reg *NameRegistry, group string, docs map[int]pageDoc, pages map[uint8]PageEntry) {
	for prog, p := range docs {
		obj, err := resolveObject(reg, p.Object)
		if err != nil {
			log.Printf("project: song group %q program %d: %v", group, prog, err)
			continue
		}
		pages[uint8(prog)] = PageEntry{ObjectId: obj, Priority: p.Priority, MaxVoices: p.MaxVoices, ProgramNo: uint8(prog)}
	}
}

// resolveObject resolves a page object name, which may name a SoundMacro, a
// Keymap or a Layer.
func resolveObject(reg *NameRegistry, name string) (ObjectId, error) {
	if id, ok := reg.Resolve(SoundMacroNames, name); ok {
		return ObjectId(id), nil
	}
	if id, ok := reg.Resolve(KeymapNames, name); ok {
		return KeymapObject(id), nil
	}
	if id, ok := reg.Resolve(LayerNames, name); ok {
		return LayerObject(id), nil
	}
	id, err := reg.ResolveOrParse(SoundMacroNames, name)
	return ObjectId(id), err
}

// decodeCmdNode decodes one command mapping, e.g.
// {cmd: SplitKey, key: 60, macro: Lead, macroStep: 2}.
func decodeCmdNode(n *yaml.Node, reg *NameRegistry) (Cmd, error) {
	if n.Kind != yaml.MappingNode {
		return Cmd{}, fmt.Errorf("line %d: command is not a mapping", n.Line)
	}
	values := map[string]*yaml.Node{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		values[n.Content[i].Value] = n.Content[i+1]
	}
	nameNode, ok := values["cmd"]
	if !ok {
		return Cmd{}, fmt.Errorf("line %d: missing cmd", n.Line)
	}
	op, ok := CmdOpByName(nameNode.Value)
	if !ok {
		return Cmd{}, fmt.Errorf("line %d: %w %q", n.Line, ErrUnknownCmdOp, nameNode.Value)
	}
	c := Cmd{Op: op}
	for i, fl := range op.Fields() {
		v, ok := values[fl.Name]
		if !ok {
			if fl.Type == FieldMacro || fl.Type == FieldTable || fl.Type == FieldSample {
				c.Args[i] = int32(NoObject)
			}
			continue
		}
		var val int64
		var err error
		switch fl.Type {
		case FieldBool:
			var b bool
			if b, err = strconv.ParseBool(v.Value); err == nil && b {
				val = 1
			}
		case FieldMacro:
			var id uint16
			id, err = reg.ResolveOrParse(SoundMacroNames, v.Value)
			val = int64(id)
		case FieldTable:
			var id uint16
			if id, err = reg.ResolveOrParse(TableNames, v.Value); err == nil {
				val = int64(id | tableBits)
			}
		case FieldSample:
			var id uint16
			id, err = reg.ResolveOrParse(SampleNames, v.Value)
			val = int64(id)
		default:
			val, err = strconv.ParseInt(v.Value, 0, 64)
		}
		if err != nil {
			return Cmd{}, fmt.Errorf("line %d: field %s: %w", v.Line, fl.Name, err)
		}
		c.Args[i] = int32(val)
	}
	return c, nil
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: v}
}

// encodeCmdNode writes a command as a flow mapping with the fields in wire
// order.
func encodeCmdNode(c Cmd, reg *NameRegistry) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode, Style: yaml.FlowStyle}
	n.Content = append(n.Content, scalar("cmd"), scalar(c.Op.String()))
	for i, fl := range c.Op.Fields() {
		var v string
		arg := c.Args[i]
		switch fl.Type {
		case FieldBool:
			v = strconv.FormatBool(arg != 0)
		case FieldMacro:
			v = reg.NameOrID(SoundMacroNames, uint16(arg))
		case FieldTable:
			if ObjectId(arg) == NoObject {
				v = reg.NameOrID(TableNames, uint16(arg))
			} else {
				v = reg.NameOrID(TableNames, uint16(arg)&^tableBits)
			}
		case FieldSample:
			v = reg.NameOrID(SampleNames, uint16(arg))
		default:
			v = strconv.FormatInt(int64(arg), 10)
		}
		n.Content = append(n.Content, scalar(fl.Name), scalar(v))
	}
	return n
}

// WriteProjectYAML writes the textual form of g. Objects without a name in
// reg get a generated one, which is registered so that ExportSamples and
// later writes agree on it.
func WriteProjectYAML(w io.Writer, g *AudioGroup, reg *NameRegistry) error {
	if reg == nil {
		return ErrNoNameRegistry
	}
	pool := g.Pool()
	out := struct {
		Format      string                  `yaml:"format"`
		SoundMacros map[string]macroDoc     `yaml:"soundMacros,omitempty"`
		Tables      map[string]tableDoc     `yaml:"tables,omitempty"`
		Keymaps     map[string]keymapDoc    `yaml:"keymaps,omitempty"`
		Layers      map[string]layerDoc     `yaml:"layers,omitempty"`
		Samples     map[string]sampleDoc    `yaml:"samples,omitempty"`
		SongGroups  map[string]songGroupDoc `yaml:"songGroups,omitempty"`
		SFXGroups   map[string]sfxGroupDoc  `yaml:"sfxGroups,omitempty"`
	}{
		Format:      g.Format().String(),
		SoundMacros: map[string]macroDoc{},
		Tables:      map[string]tableDoc{},
		Keymaps:     map[string]keymapDoc{},
		Layers:      map[string]layerDoc{},
		Samples:     map[string]sampleDoc{},
		SongGroups:  map[string]songGroupDoc{},
		SFXGroups:   map[string]sfxGroupDoc{},
	}

	// names first, so references can be written as names
	for id := range pool.SoundMacros {
		reg.Ensure(SoundMacroNames, uint16(id))
	}
	for id := range pool.Tables {
		reg.Ensure(TableNames, uint16(id)&^tableBits)
	}
	for id := range pool.Keymaps {
		reg.Ensure(KeymapNames, uint16(id)&^keymapBit)
	}
	for id := range pool.Layers {
		reg.Ensure(LayerNames, uint16(id)&^layerBit)
	}
	for id := range g.SampleDirectory().Entries {
		reg.Ensure(SampleNames, uint16(id))
	}

	objectName := func(id ObjectId) string {
		switch id.Kind() {
		case KindKeymap:
			return reg.NameOrID(KeymapNames, uint16(id)&^keymapBit)
		case KindLayer:
			return reg.NameOrID(LayerNames, uint16(id)&^layerBit)
		}
		return reg.NameOrID(SoundMacroNames, uint16(id))
	}

	for id, m := range pool.SoundMacros {
		d := macroDoc{ID: uint16(id)}
		for _, c := range m.Cmds {
			d.Cmds = append(d.Cmds, *encodeCmdNode(c, reg))
		}
		out.SoundMacros[reg.NameOrID(SoundMacroNames, uint16(id))] = d
	}
	for id, t := range pool.Tables {
		d := tableDoc{ID: uint16(id) &^ tableBits}
		switch t := t.(type) {
		case *ADSR:
			d.ADSR = &adsrDoc{Attack: t.Attack, Decay: t.Decay, Sustain: t.Sustain, Release: t.Release}
		case *ADSRDLS:
			d.ADSRDLS = &adsrDLSDoc{Attack: t.Attack, Decay: t.Decay, Sustain: t.Sustain, Release: t.Release, VelToAttack: t.VelToAttack, KeyToDecay: t.KeyToDecay}
		case *Curve:
			for _, b := range t.Data {
				d.Curve = append(d.Curve, int(b))
			}
		}
		out.Tables[reg.NameOrID(TableNames, d.ID)] = d
	}
	for id, k := range pool.Keymaps {
		d := keymapDoc{ID: uint16(id) &^ keymapBit, Keys: map[int]keymapEntryDoc{}}
		for key, e := range k {
			if e.Macro == NoObject {
				continue
			}
			d.Keys[key] = keymapEntryDoc{Macro: reg.NameOrID(SoundMacroNames, uint16(e.Macro)), Transpose: e.Transpose, Pan: e.Pan, PrioOffset: e.PrioOffset}
		}
		out.Keymaps[reg.NameOrID(KeymapNames, d.ID)] = d
	}
	for id, l := range pool.Layers {
		d := layerDoc{ID: uint16(id) &^ layerBit}
		for _, m := range l.Mappings {
			d.Mappings = append(d.Mappings, layerMappingDoc{Macro: reg.NameOrID(SoundMacroNames, uint16(m.Macro)),
				KeyLo: m.KeyLo, KeyHi: m.KeyHi, Transpose: m.Transpose, Volume: m.Volume, PrioOffset: m.PrioOffset, Span: m.Span, Pan: m.Pan})
		}
		out.Layers[reg.NameOrID(LayerNames, d.ID)] = d
	}
	for id, e := range g.SampleDirectory().Entries {
		out.Samples[reg.NameOrID(SampleNames, uint16(id))] = sampleDoc{ID: uint16(id), Pitch: e.Pitch, SampleRate: e.SampleRate,
			LoopStart: e.LoopStartSample, LoopLength: e.LoopLengthSamples}
	}
	proj := g.Project()
	for gid, sg := range proj.SongGroups {
		d := songGroupDoc{ID: uint16(gid), NormalPages: map[int]pageDoc{}, DrumPages: map[int]pageDoc{}, MIDISetups: map[string]songSetupDoc{}}
		for prog, p := range sg.NormalPages {
			d.NormalPages[int(prog)] = pageDoc{Object: objectName(p.ObjectId), Priority: p.Priority, MaxVoices: p.MaxVoices}
		}
		for prog, p := range sg.DrumPages {
			d.DrumPages[int(prog)] = pageDoc{Object: objectName(p.ObjectId), Priority: p.Priority, MaxVoices: p.MaxVoices}
		}
		for sid, setups := range sg.MIDISetups {
			docs := make([]midiSetupDoc, 16)
			for i, s := range setups {
				docs[i] = midiSetupDoc{Program: s.ProgramNo, Volume: s.Volume, Panning: s.Panning, Reverb: s.Reverb, Chorus: s.Chorus}
			}
			d.MIDISetups[reg.Ensure(SongNames, uint16(sid))] = songSetupDoc{ID: uint16(sid), Channels: docs}
		}
		out.SongGroups[reg.Ensure(GroupNames, uint16(gid))] = d
	}
	for gid, sg := range proj.SFXGroups {
		d := sfxGroupDoc{ID: uint16(gid), SFX: map[string]sfxDoc{}}
		for sid, e := range sg.SFXEntries {
			d.SFX[reg.Ensure(SFXNames, uint16(sid))] = sfxDoc{ID: uint16(sid), Object: objectName(e.ObjectId), Priority: e.Priority,
				MaxVoices: e.MaxVoices, DefVel: e.DefVel, Panning: e.Panning, DefKey: e.DefKey}
		}
		out.SFXGroups[reg.Ensure(GroupNames, uint16(gid))] = d
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("cannot write project: %w", err)
	}
	return enc.Close()
}

// WriteProjectDir writes project.yaml and one WAV file per sample to dir.
func WriteProjectDir(dir string, g *AudioGroup, reg *NameRegistry) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create project directory: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, "project.yaml"))
	if err != nil {
		return fmt.Errorf("cannot create project file: %w", err)
	}
	defer f.Close()
	if err := WriteProjectYAML(f, g, reg); err != nil {
		return err
	}
	return ExportSamples(dir, g, reg)
}

// ReadProjectDir reads dir/project.yaml and the samples next to it.
func ReadProjectDir(dir string, reg *NameRegistry) (*AudioGroup, error) {
	f, err := os.Open(filepath.Join(dir, "project.yaml"))
	if err != nil {
		return nil, fmt.Errorf("cannot open project: %w", err)
	}
	defer f.Close()
	return ReadProjectYAML(f, dir, reg)
}
