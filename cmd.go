package amuse

import (
	"fmt"
	"sort"
)

type (
	// CmdOp is the opcode of a SoundMacro command. The set of opcodes is
	// closed; every valid opcode has an entry in the command table.
	CmdOp uint8

	// Cmd is one decoded SoundMacro command. Args holds the fields of the
	// command in the order listed by Op.Fields().
	Cmd struct {
		Op   CmdOp
		Args [7]int32
	}

	// FieldType is the wire type of a command field. The Macro, Table and
	// Sample types are 16-bit ids that the textual project format writes as
	// names.
	FieldType int

	// CmdField documents one field of a command.
	CmdField struct {
		Name   string
		Type   FieldType
		Offset int // byte offset within the 7 field bytes following the opcode
	}

	cmdInfo struct {
		name   string
		fields []CmdField
	}
)

const (
	FieldBool FieldType = iota
	FieldU8
	FieldI8
	FieldU16
	FieldI16
	FieldU24
	FieldU32
	FieldMacro
	FieldTable
	FieldSample
	fieldPad
)

const (
	End CmdOp = iota
	Stop
	SplitKey
	SplitVel
	WaitTicks
	Loop
	Goto
	WaitMs
	PlayMacro
	SendKeyOff
	SplitMod
	PianoPan
	SetAdsr
	ScaleVolume
	Panning
	Envelope
	StartSample
	StopSample
	KeyOff
	SplitRnd
	FadeIn
	Spanning
	SetAdsrCtrl
	RndNote
	AddNote
	SetNote
	LastNote
	Portamento
	Vibrato
	PitchSweep1
	PitchSweep2
	SetPitch
	SetPitchAdsr
	ScaleVolumeDLS
	Mod2Vibrange
	SetupTremolo
	Return
	GoSub
)

const (
	TrapEvent CmdOp = iota + 0x28
	UntrapEvent
	SendMessage
	GetMessage
	GetVid
)

const (
	AddAgeCount CmdOp = iota + 0x30
	SetAgeCount
	SendFlag
	PitchWheelR
	SetPriority
	AddPriority
	AgeCntSpeed
	AgeCntVel
)

const (
	VolSelect CmdOp = iota + 0x40
	PanSelect
	PitchWheelSelect
	ModWheelSelect
	PedalSelect
	PortamentoSelect
	ReverbSelect
	SpanSelect
	DopplerSelect
	TremoloSelect
	PreASelect
	PreBSelect
	PostBSelect
	AuxAFXSelect
	AuxBFXSelect
)

const (
	SetupLFO CmdOp = 0x50

	ModeSelect CmdOp = iota + 0x57
	SetKeygroup
	SRCmodeSelect
	WiiUnknown
	WiiUnknown2
)

const (
	AddVars CmdOp = iota + 0x60
	SubVars
	MulVars
	DivVars
	AddIVars
	SetVar
)

const (
	IfEqual CmdOp = iota + 0x70
	IfLess
)

// CmdSize is the size of one encoded command.
const CmdSize = 8

var fieldSizes = [...]int{
	FieldBool:   1,
	FieldU8:     1,
	FieldI8:     1,
	FieldU16:    2,
	FieldI16:    2,
	FieldU24:    3,
	FieldU32:    4,
	FieldMacro:  2,
	FieldTable:  2,
	FieldSample: 2,
}

func field(name string, t FieldType) CmdField { return CmdField{Name: name, Type: t} }
func padding(n int) CmdField                  { return CmdField{Type: fieldPad, Offset: n} }

var (
	waitFields = []CmdField{field("keyOff", FieldBool), field("random", FieldBool), field("sampleEnd", FieldBool), field("absolute", FieldBool)}
	splitTail  = []CmdField{field("macro", FieldMacro), field("macroStep", FieldU16)}
	timeTail   = []CmdField{field("msSwitch", FieldBool), field("ticksOrMs", FieldU16)}
	selectBody = []CmdField{field("midiControl", FieldU8), field("scalingPercentage", FieldI16), field("combine", FieldI8), field("isVar", FieldBool), field("fineScaling", FieldI8)}
	arithBody  = []CmdField{field("varCtrlA", FieldBool), field("a", FieldI8), field("varCtrlB", FieldBool), field("b", FieldI8), field("varCtrlC", FieldBool), field("c", FieldI8)}
	envBody    = []CmdField{field("scale", FieldI8), field("add", FieldI8), field("table", FieldTable)}
)

func join(parts ...[]CmdField) []CmdField {
	var ret []CmdField
	for _, p := range parts {
		ret = append(ret, p...)
	}
	return ret
}

func list(fields ...CmdField) []CmdField { return fields }

// cmdTable documents the name and field layout of every opcode.
var cmdTable = map[CmdOp]*cmdInfo{
	End:              {"End", nil},
	Stop:             {"Stop", nil},
	SplitKey:         {"SplitKey", join(list(field("key", FieldI8)), splitTail)},
	SplitVel:         {"SplitVel", join(list(field("velocity", FieldI8)), splitTail)},
	WaitTicks:        {"WaitTicks", join(waitFields, list(field("msSwitch", FieldBool), field("ticksOrMs", FieldU16)))},
	Loop:             {"Loop", list(field("keyOff", FieldBool), field("random", FieldBool), field("sampleEnd", FieldBool), field("macroStep", FieldU16), field("times", FieldU16))},
	Goto:             {"Goto", join(list(padding(1)), splitTail)},
	WaitMs:           {"WaitMs", join(waitFields, list(padding(1), field("ms", FieldU16)))},
	PlayMacro:        {"PlayMacro", join(list(field("addNote", FieldI8)), splitTail, list(field("priority", FieldU8), field("maxVoices", FieldU8)))},
	SendKeyOff:       {"SendKeyOff", list(field("variable", FieldU8), field("lastStarted", FieldBool))},
	SplitMod:         {"SplitMod", join(list(field("modValue", FieldI8)), splitTail)},
	PianoPan:         {"PianoPan", list(field("scale", FieldI8), field("centerKey", FieldI8), field("centerPan", FieldI8))},
	SetAdsr:          {"SetAdsr", list(field("table", FieldTable), field("dlsMode", FieldBool))},
	ScaleVolume:      {"ScaleVolume", join(envBody, list(field("originalVol", FieldBool)))},
	Panning:          {"Panning", list(field("panPosition", FieldI8), field("timeMs", FieldU16), field("width", FieldI8))},
	Envelope:         {"Envelope", join(envBody, timeTail)},
	StartSample:      {"StartSample", list(field("sample", FieldSample), field("mode", FieldI8), field("offset", FieldU32))},
	StopSample:       {"StopSample", nil},
	KeyOff:           {"KeyOff", nil},
	SplitRnd:         {"SplitRnd", join(list(field("rnd", FieldU8)), splitTail)},
	FadeIn:           {"FadeIn", join(envBody, timeTail)},
	Spanning:         {"Spanning", list(field("spanPosition", FieldI8), field("timeMs", FieldU16), field("width", FieldI8))},
	SetAdsrCtrl:      {"SetAdsrCtrl", list(field("attack", FieldU8), field("decay", FieldU8), field("sustain", FieldU8), field("release", FieldU8), field("dlsMode", FieldBool))},
	RndNote:          {"RndNote", list(field("noteLo", FieldI8), field("detune", FieldI8), field("noteHi", FieldI8), field("fixedFree", FieldBool), field("absRel", FieldBool))},
	AddNote:          {"AddNote", join(list(field("add", FieldI8), field("detune", FieldI8), field("originalKey", FieldBool), padding(1)), timeTail)},
	SetNote:          {"SetNote", join(list(field("key", FieldI8), field("detune", FieldI8), padding(2)), timeTail)},
	LastNote:         {"LastNote", join(list(field("add", FieldI8), field("detune", FieldI8)), timeTail)},
	Portamento:       {"Portamento", list(field("portState", FieldI8), field("portType", FieldI8), padding(2), field("portTime", FieldU16))},
	Vibrato:          {"Vibrato", join(list(field("levelNote", FieldI8), field("levelFine", FieldI8), field("modwAddScale", FieldBool)), timeTail)},
	PitchSweep1:      {"PitchSweep1", join(list(field("times", FieldI8), field("add", FieldI16)), timeTail)},
	PitchSweep2:      {"PitchSweep2", join(list(field("times", FieldI8), field("add", FieldI16)), timeTail)},
	SetPitch:         {"SetPitch", list(field("hz", FieldU24), field("fine", FieldU16))},
	SetPitchAdsr:     {"SetPitchAdsr", list(field("table", FieldTable), padding(1), field("keys", FieldI8), field("cents", FieldI8))},
	ScaleVolumeDLS:   {"ScaleVolumeDLS", list(field("scale", FieldI16), field("originalVol", FieldBool))},
	Mod2Vibrange:     {"Mod2Vibrange", list(field("keys", FieldI8), field("cents", FieldI8))},
	SetupTremolo:     {"SetupTremolo", list(field("scale", FieldI16), padding(1), field("modwAddScale", FieldI16))},
	Return:           {"Return", nil},
	GoSub:            {"GoSub", join(list(padding(1)), splitTail)},
	TrapEvent:        {"TrapEvent", join(list(field("event", FieldU8)), splitTail)},
	UntrapEvent:      {"UntrapEvent", list(field("event", FieldU8))},
	SendMessage:      {"SendMessage", list(field("isVar", FieldBool), field("macro", FieldMacro), field("voiceVar", FieldU8), field("valueVar", FieldU8))},
	GetMessage:       {"GetMessage", list(field("variable", FieldU8))},
	GetVid:           {"GetVid", list(field("variable", FieldU8), field("playMacro", FieldBool))},
	AddAgeCount:      {"AddAgeCount", list(padding(1), field("add", FieldI16))},
	SetAgeCount:      {"SetAgeCount", list(padding(1), field("counter", FieldU16))},
	SendFlag:         {"SendFlag", list(field("flagId", FieldU8), field("value", FieldU8))},
	PitchWheelR:      {"PitchWheelR", list(field("rangeUp", FieldI8), field("rangeDown", FieldI8))},
	SetPriority:      {"SetPriority", list(field("prio", FieldU8))},
	AddPriority:      {"AddPriority", list(padding(1), field("prio", FieldI16))},
	AgeCntSpeed:      {"AgeCntSpeed", list(padding(3), field("time", FieldU32))},
	AgeCntVel:        {"AgeCntVel", list(padding(1), field("ageBase", FieldU16), field("ageScale", FieldU16))},
	VolSelect:        {"VolSelect", selectBody},
	PanSelect:        {"PanSelect", selectBody},
	PitchWheelSelect: {"PitchWheelSelect", selectBody},
	ModWheelSelect:   {"ModWheelSelect", selectBody},
	PedalSelect:      {"PedalSelect", selectBody},
	PortamentoSelect: {"PortamentoSelect", selectBody},
	ReverbSelect:     {"ReverbSelect", selectBody},
	SpanSelect:       {"SpanSelect", selectBody},
	DopplerSelect:    {"DopplerSelect", selectBody},
	TremoloSelect:    {"TremoloSelect", selectBody},
	PreASelect:       {"PreASelect", selectBody},
	PreBSelect:       {"PreBSelect", selectBody},
	PostBSelect:      {"PostBSelect", selectBody},
	AuxAFXSelect:     {"AuxAFXSelect", join(selectBody, list(field("paramIndex", FieldU8)))},
	AuxBFXSelect:     {"AuxBFXSelect", join(selectBody, list(field("paramIndex", FieldU8)))},
	SetupLFO:         {"SetupLFO", list(field("lfoNumber", FieldU8), field("periodInMs", FieldI16))},
	ModeSelect:       {"ModeSelect", list(field("dlsVol", FieldBool), field("itd", FieldBool))},
	SetKeygroup:      {"SetKeygroup", list(field("group", FieldU8), field("killNow", FieldBool))},
	SRCmodeSelect:    {"SRCmodeSelect", list(field("srcType", FieldU8), field("type0SrcFilter", FieldU8))},
	WiiUnknown:       {"WiiUnknown", list(field("flag", FieldBool))},
	WiiUnknown2:      {"WiiUnknown2", list(field("flag", FieldBool))},
	AddVars:          {"AddVars", arithBody},
	SubVars:          {"SubVars", arithBody},
	MulVars:          {"MulVars", arithBody},
	DivVars:          {"DivVars", arithBody},
	AddIVars:         {"AddIVars", list(field("varCtrlA", FieldBool), field("a", FieldI8), field("varCtrlB", FieldBool), field("b", FieldI8), field("imm", FieldI16))},
	SetVar:           {"SetVar", list(field("varCtrlA", FieldBool), field("a", FieldI8), field("imm", FieldI16))},
	IfEqual:          {"IfEqual", list(field("varCtrlA", FieldBool), field("a", FieldI8), field("varCtrlB", FieldBool), field("b", FieldI8), field("notEq", FieldBool), field("macroStep", FieldU16))},
	IfLess:           {"IfLess", list(field("varCtrlA", FieldBool), field("a", FieldI8), field("varCtrlB", FieldBool), field("b", FieldI8), field("notEq", FieldBool), field("macroStep", FieldU16))},
}

var cmdOpsByName = map[string]CmdOp{}

// init strips the padding entries out of the field lists and assigns the
// byte offsets.
func init() {
	for op, info := range cmdTable {
		off := 0
		var fields []CmdField
		for _, fl := range info.fields {
			if fl.Type == fieldPad {
				off += fl.Offset
				continue
			}
			fl.Offset = off
			off += fieldSizes[fl.Type]
			fields = append(fields, fl)
		}
		if off > CmdSize-1 || len(fields) > 7 {
			panic(fmt.Sprintf("command %s does not fit in %d bytes", info.name, CmdSize))
		}
		info.fields = fields
		cmdOpsByName[info.name] = op
	}
}

// Valid reports whether op is a known opcode.
func (op CmdOp) Valid() bool {
	_, ok := cmdTable[op]
	return ok
}

func (op CmdOp) String() string {
	if info, ok := cmdTable[op]; ok {
		return info.name
	}
	return fmt.Sprintf("CmdOp(0x%02x)", uint8(op))
}

// Fields returns the field layout of the opcode.
func (op CmdOp) Fields() []CmdField {
	if info, ok := cmdTable[op]; ok {
		return info.fields
	}
	return nil
}

// CmdOpByName looks up an opcode by its command name, e.g. "WaitTicks".
func CmdOpByName(name string) (CmdOp, bool) {
	op, ok := cmdOpsByName[name]
	return op, ok
}

// CmdOps returns every valid opcode in ascending order.
func CmdOps() []CmdOp {
	ops := make([]CmdOp, 0, len(cmdTable))
	for op := range cmdTable {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// NewCmd builds a command from positional field values.
func NewCmd(op CmdOp, args ...int32) Cmd {
	c := Cmd{Op: op}
	copy(c.Args[:], args)
	return c
}

func fieldIndex(op CmdOp, name string) int {
	for i, fl := range op.Fields() {
		if fl.Name == name {
			return i
		}
	}
	return -1
}

// Field returns the value of the named field.
func (c Cmd) Field(name string) (int32, bool) {
	if i := fieldIndex(c.Op, name); i >= 0 {
		return c.Args[i], true
	}
	return 0, false
}

// SetField sets the named field, reporting whether it exists.
func (c *Cmd) SetField(name string, v int32) bool {
	if i := fieldIndex(c.Op, name); i >= 0 {
		c.Args[i] = v
		return true
	}
	return false
}

func (c Cmd) String() string {
	s := c.Op.String()
	for i, fl := range c.Op.Fields() {
		s += fmt.Sprintf(" %s=%d", fl.Name, c.Args[i])
	}
	return s
}

// decodeCmd decodes one 8 byte command.
func decodeCmd(r *reader) (Cmd, error) {
	start := r.pos
	body := r.take(CmdSize)
	if body == nil {
		return Cmd{}, r.err
	}
	c := Cmd{Op: CmdOp(body[0])}
	info, ok := cmdTable[c.Op]
	if !ok {
		return Cmd{}, fmt.Errorf("%w 0x%02x at offset %d", ErrUnknownCmdOp, body[0], start)
	}
	fields := body[1:]
	for i, fl := range info.fields {
		b := fields[fl.Offset:]
		switch fl.Type {
		case FieldBool, FieldU8:
			c.Args[i] = int32(b[0])
		case FieldI8:
			c.Args[i] = int32(int8(b[0]))
		case FieldU16, FieldMacro, FieldTable, FieldSample:
			c.Args[i] = int32(r.order.Uint16(b))
		case FieldI16:
			c.Args[i] = int32(int16(r.order.Uint16(b)))
		case FieldU24:
			if isBigEndian(r.order) {
				c.Args[i] = int32(b[0])<<16 | int32(b[1])<<8 | int32(b[2])
			} else {
				c.Args[i] = int32(b[2])<<16 | int32(b[1])<<8 | int32(b[0])
			}
		case FieldU32:
			c.Args[i] = int32(r.order.Uint32(b))
		}
	}
	return c, nil
}

// encodeCmd appends the 8 byte encoding of c.
func encodeCmd(w *writer, c Cmd) {
	var body [CmdSize]byte
	body[0] = byte(c.Op)
	fields := body[1:]
	for i, fl := range c.Op.Fields() {
		b := fields[fl.Offset:]
		v := c.Args[i]
		switch fl.Type {
		case FieldBool, FieldU8, FieldI8:
			b[0] = byte(v)
		case FieldU16, FieldI16, FieldMacro, FieldTable, FieldSample:
			w.order.PutUint16(b, uint16(v))
		case FieldU24:
			if isBigEndian(w.order) {
				b[0], b[1], b[2] = byte(v>>16), byte(v>>8), byte(v)
			} else {
				b[0], b[1], b[2] = byte(v), byte(v>>8), byte(v>>16)
			}
		case FieldU32:
			w.order.PutUint32(b, uint32(v))
		}
	}
	w.bytes(body[:])
}
