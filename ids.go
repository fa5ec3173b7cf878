package amuse

import (
	"errors"
	"fmt"
)

type (
	// ObjectId identifies a pool object. The two high bits select the
	// namespace: SoundMacros, Keymaps, Layers or Tables.
	ObjectId uint16

	// ObjectKind is the namespace of an ObjectId.
	ObjectKind int

	SoundMacroId = ObjectId
	TableId      = ObjectId
	KeymapId     = ObjectId
	LayersId     = ObjectId

	SampleId uint16
	SongId   uint16
	SFXId    uint16
	GroupId  uint16
)

const (
	KindSoundMacro ObjectKind = iota
	KindKeymap
	KindLayer
	KindTable
)

// NoObject is the all-ones sentinel used for missing references.
const NoObject ObjectId = 0xffff

const (
	keymapBit = 0x4000
	layerBit  = 0x8000
	tableBits = 0xc000
)

var (
	ErrPCOutOfRange   = errors.New("soundmacro step out of range")
	ErrNoNameRegistry = errors.New("no name registry to resolve object names")
	ErrTruncated      = errors.New("data truncated")
	ErrUnknownCmdOp   = errors.New("unknown soundmacro command")
)

// Kind returns the namespace selected by the high bits of the id.
func (id ObjectId) Kind() ObjectKind {
	switch id & 0xc000 {
	case keymapBit:
		return KindKeymap
	case layerBit:
		return KindLayer
	case tableBits:
		return KindTable
	}
	return KindSoundMacro
}

// KeymapObject returns the keymap id with index n.
func KeymapObject(n uint16) ObjectId { return ObjectId(n&0x3fff | keymapBit) }

// LayerObject returns the layer id with index n.
func LayerObject(n uint16) ObjectId { return ObjectId(n&0x3fff | layerBit) }

// TableObject returns the table id with index n.
func TableObject(n uint16) ObjectId { return ObjectId(n&0x3fff | tableBits) }

func (id ObjectId) String() string {
	if id == NoObject {
		return "none"
	}
	return fmt.Sprintf("%s 0x%04x", id.Kind(), uint16(id))
}

func (k ObjectKind) String() string {
	switch k {
	case KindSoundMacro:
		return "soundmacro"
	case KindKeymap:
		return "keymap"
	case KindLayer:
		return "layer"
	case KindTable:
		return "table"
	}
	return fmt.Sprintf("ObjectKind(%d)", int(k))
}
