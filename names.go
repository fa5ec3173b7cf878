package amuse

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

type (
	// NameKind selects one of the id spaces of a NameRegistry.
	NameKind int

	// NameRegistry maps object names to ids and back, one table per
	// NameKind. It is passed explicitly to the project reader and writer.
	// Names are stored in Unicode NFC form so that differently composed
	// spellings of the same name resolve to the same id.
	NameRegistry struct {
		ids   [numNameKinds]map[string]uint16
		names [numNameKinds]map[uint16]string
	}
)

const (
	SoundMacroNames NameKind = iota
	TableNames
	KeymapNames
	LayerNames
	SampleNames
	SongNames
	SFXNames
	GroupNames
	numNameKinds
)

var nameKindStrings = [numNameKinds]string{"soundmacro", "table", "keymap", "layer", "sample", "song", "sfx", "group"}

func (k NameKind) String() string {
	if k < 0 || k >= numNameKinds {
		return fmt.Sprintf("NameKind(%d)", int(k))
	}
	return nameKindStrings[k]
}

// nameKindOf returns the registry table for a pool object id.
func nameKindOf(id ObjectId) NameKind {
	switch id.Kind() {
	case KindKeymap:
		return KeymapNames
	case KindLayer:
		return LayerNames
	case KindTable:
		return TableNames
	}
	return SoundMacroNames
}

func NewNameRegistry() *NameRegistry {
	r := &NameRegistry{}
	for i := range r.ids {
		r.ids[i] = map[string]uint16{}
		r.names[i] = map[uint16]string{}
	}
	return r
}

// Register binds name to id. Rebinding a name to a different id is an error;
// an id keeps the first name it was given.
func (r *NameRegistry) Register(kind NameKind, name string, id uint16) error {
	name = norm.NFC.String(name)
	if name == "" {
		return fmt.Errorf("empty %s name for id 0x%04x", kind, id)
	}
	if old, ok := r.ids[kind][name]; ok && old != id {
		return fmt.Errorf("%s name %q already used for 0x%04x", kind, name, old)
	}
	r.ids[kind][name] = id
	if _, ok := r.names[kind][id]; !ok {
		r.names[kind][id] = name
	}
	return nil
}

// Resolve returns the id bound to name.
func (r *NameRegistry) Resolve(kind NameKind, name string) (uint16, bool) {
	id, ok := r.ids[kind][norm.NFC.String(name)]
	return id, ok
}

// Name returns the name bound to id.
func (r *NameRegistry) Name(kind NameKind, id uint16) (string, bool) {
	n, ok := r.names[kind][id]
	return n, ok
}

// NameOrID returns the name of id, or the id in hex if it has none.
func (r *NameRegistry) NameOrID(kind NameKind, id uint16) string {
	if n, ok := r.names[kind][id]; ok {
		return n
	}
	return fmt.Sprintf("0x%04x", id)
}

// ResolveOrParse resolves a name, falling back to parsing it as a number
// (decimal or 0x prefixed hex).
func (r *NameRegistry) ResolveOrParse(kind NameKind, s string) (uint16, error) {
	if id, ok := r.Resolve(kind, s); ok {
		return id, nil
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown %s %q", kind, s)
	}
	return uint16(v), nil
}

// Ensure returns the name of id, registering a generated one if needed.
func (r *NameRegistry) Ensure(kind NameKind, id uint16) string {
	if n, ok := r.names[kind][id]; ok {
		return n
	}
	n := fmt.Sprintf("%s_%04x", kind, id)
	for i := 2; r.Register(kind, n, id) != nil; i++ {
		n = fmt.Sprintf("%s_%04x_%d", kind, id, i)
	}
	return n
}

// Len returns the number of names registered for kind.
func (r *NameRegistry) Len(kind NameKind) int {
	return len(r.ids[kind])
}
