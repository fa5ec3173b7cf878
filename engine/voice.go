package engine

import (
	"encoding/binary"
	"log"
	"math"

	"github.com/amuse-audio/amuse"
	"github.com/amuse-audio/amuse/codec"
	"github.com/viterin/vek/vek32"
)

type (
	// VoiceID identifies a voice for the lifetime of an Engine.
	VoiceID int32

	// VoiceState is the lifecycle stage of a voice.
	VoiceState int

	// ramp moves a value linearly, optionally shaped by a curve, over dur
	// seconds. time is negative while idle.
	ramp struct {
		time, dur  float64
		start, end float32
		curve      *amuse.Curve
	}

	// sweep is a positional move of pan or span over time: position to
	// position+width.
	sweep struct {
		time, dur  float64
		pos, width int32
	}

	pitchSweep struct {
		times  int
		steps  int
		add    int32
		period float64
		time   float64
		value  int32
	}

	// Voice plays one note: it runs a SoundMacro, streams the sample the
	// macro starts and carries all continuous control state. Voices are
	// owned by an Engine and addressed by VoiceID.
	Voice struct {
		engine  *Engine
		group   *amuse.AudioGroup
		groupID amuse.GroupId
		id      VoiceID
		studio  *Studio
		emitter *Emitter
		backend amuse.BackendVoice

		parent   VoiceID
		children []VoiceID

		objectID amuse.ObjectId
		state    SoundMacroState
		voxState VoiceState
		messages []int32
		// origin is the page or SFX object the voice was started for.
		origin amuse.ObjectId

		// sample playback
		curSample     *amuse.SampleEntry
		curSampleData []byte
		curSamplePos  uint32
		lastSamplePos uint32
		sampleRate    float64
		frame         [codec.VADPCMFrameSamples]int16
		frameIdx      int
		frameLen      int
		nextFrame     int
		prev1, prev2  int16
		loopHist      [2]int16
		loopHistSet   bool

		// volume and routing
		userVol     float32
		curVol      float32
		evalVol     float32
		emitterVol  float32
		envelope    ramp
		reverbVol   float32
		auxBVol     float32
		preAuxAVol  float32
		postAuxBVol float32
		dlsVol      bool
		busCache    [3]VolumeCache
		busStart    [3]float32
		busEnd      [3]float32
		volAdsr     Envelope

		curPan      float32
		curSpan     float32
		panning     sweep
		spanning    sweep
		levelsDirty bool

		tremoloScale    float32
		tremoloModScale float32
		tremoloValue    float32
		lfoPeriods      [2]float64

		// pitch
		pitchWheel       float32
		pitchWheelUp     int32
		pitchWheelDown   int32
		aftertouch       int
		vibratoTime      float64
		vibratoPeriod    float64
		vibratoLevel     int32
		vibratoModLevel  int32
		vibratoModWheel  bool
		sweeps           [2]pitchSweep
		pitchAdsr        Envelope
		pitchEnv         bool
		pitchEnvRange    int32
		portamentoTime   float64
		portamentoStart  int32
		portamentoTarget int32
		fixedRate        bool
		dopplerRatio     float64
		macroDoppler     float64
		pitchRatio       float64
		pitchDirty       bool
		lastNote         int

		ctrlVals      *[128]int8
		ownCtrls      [128]int8
		pedal         bool
		sustainKeyOff bool
		keygroup      uint8
		priority      int
		age           float64
		ageSpeed      float64
		voiceTime     float64
	}
)

const (
	VoicePlaying VoiceState = iota
	VoiceKeyOff
	VoiceDead
)

func (s VoiceState) String() string {
	switch s {
	case VoicePlaying:
		return "playing"
	case VoiceKeyOff:
		return "keyoff"
	}
	return "dead"
}

func newVoice(e *Engine, group *amuse.AudioGroup, groupID amuse.GroupId, id VoiceID, studio *Studio, emitter *Emitter) *Voice {
	v := &Voice{
		engine:         e,
		group:          group,
		groupID:        groupID,
		id:             id,
		studio:         studio,
		emitter:        emitter,
		parent:         -1,
		objectID:       amuse.NoObject,
		origin:         amuse.NoObject,
		sampleRate:     NativeSampleRate,
		userVol:        1,
		curVol:         1,
		evalVol:        1,
		emitterVol:     1,
		envelope:       ramp{time: -1},
		preAuxAVol:     1,
		postAuxBVol:    1,
		panning:        sweep{time: -1},
		spanning:       sweep{time: -1},
		levelsDirty:    true,
		pitchWheelUp:   200,
		pitchWheelDown: 200,
		vibratoTime:    -1,
		portamentoTime: -1,
		dopplerRatio:   1,
		macroDoppler:   1,
		pitchDirty:     true,
	}
	v.ctrlVals = &v.ownCtrls
	v.state.lastPlayMacroVid = -1
	v.state.keyoffTrap, v.state.sampleEndTrap, v.state.messageTrap = noTrap, noTrap, noTrap
	return v
}

func (v *Voice) ID() VoiceID                    { return v.id }
func (v *Voice) State() VoiceState              { return v.voxState }
func (v *Voice) ObjectId() amuse.ObjectId       { return v.objectID }
func (v *Voice) MacroState() *SoundMacroState   { return &v.state }
func (v *Voice) Group() *amuse.AudioGroup       { return v.group }
func (v *Voice) Studio() *Studio                { return v.studio }
func (v *Voice) Children() []VoiceID            { return v.children }
func (v *Voice) Keygroup() uint8                { return v.keygroup }
func (v *Voice) Priority() int                  { return v.priority }
func (v *Voice) Age() float64                   { return v.age }
func (v *Voice) LastNote() int                  { return v.lastNote }
func (v *Voice) PitchRatio() float64            { return v.pitchRatio }
func (v *Voice) Pan() (pan, span float32)       { return v.curPan, v.curSpan }
func (v *Voice) SetKeygroup(kg uint8)           { v.keygroup = kg }
func (v *Voice) SetAftertouch(val int)          { v.aftertouch = max(0, min(val, 127)) }
func (v *Voice) installCtrlValues(c *[128]int8) { v.ctrlVals = c }
func (v *Voice) SetPriority(p int)              { v.priority = p }
func (v *Voice) trapArmed(t *eventTrap) bool    { return t.macro != amuse.NoObject }
func (v *Voice) Volume() (user, macro float32)  { return v.userVol, v.curVol }
func (v *Voice) Sends() (reverb, auxB float32)  { return v.reverbVol, v.auxBVol }
func (v *Voice) SamplePosition() (uint32, bool) { return v.curSamplePos, v.curSample != nil }

// IsDead reports whether the voice and every voice it spawned are dead.
func (v *Voice) IsDead() bool {
	if v.voxState != VoiceDead {
		return false
	}
	for _, id := range v.children {
		if c := v.engine.voices[id]; c != nil && !c.IsDead() {
			return false
		}
	}
	return true
}

// LoadMacroObject starts macro id at step. The macro first runs on the
// next PreSupplyAudio.
func (v *Voice) LoadMacroObject(id amuse.ObjectId, step int, ticksPerSec float64, key, vel, mod int) bool {
	macro := v.group.Pool().SoundMacro(id)
	if macro == nil || step < 0 || step >= len(macro.Cmds) {
		return false
	}
	key = max(0, min(key, 127))
	v.state.initialize(id, macro, step, ticksPerSec, key, vel, mod)
	v.objectID = id
	v.lastNote = key
	v.voxState = VoicePlaying
	v.pitchDirty = true
	return true
}

// loadMacro continues in another macro from inside the interpreter,
// either replacing the running frame or calling it.
func (v *Voice) loadMacro(id amuse.ObjectId, step int, push bool) bool {
	macro := v.group.Pool().SoundMacro(id)
	if macro == nil {
		return false
	}
	if push {
		v.state.push(id, macro, step)
	} else {
		v.state.jump(id, macro, step)
	}
	v.objectID = id
	return true
}

// LoadPageObject starts a SoundMacro, Keymap or Layer for a MIDI note.
// Layers start one voice per matching mapping: the first mapping plays on
// v, the rest on child voices.
func (v *Voice) LoadPageObject(id amuse.ObjectId, ticksPerSec float64, key, vel, mod int) bool {
	pool := v.group.Pool()
	switch id.Kind() {
	case amuse.KindKeymap:
		km := pool.Keymap(id)
		if km == nil || key < 0 || key > 127 {
			return false
		}
		ent := km[key]
		if ent.Macro == amuse.NoObject {
			return false
		}
		if !v.LoadMacroObject(ent.Macro, 0, ticksPerSec, key+int(ent.Transpose), vel, mod) {
			return false
		}
		v.SetPan(float32(int(ent.Pan)-64) / 64)
		v.priority += int(ent.PrioOffset)
		return true
	case amuse.KindLayer:
		layer := pool.Layer(id)
		if layer == nil {
			return false
		}
		ok := false
		for _, m := range layer.Mappings {
			if key < int(m.KeyLo) || key > int(m.KeyHi) {
				continue
			}
			mKey := key + int(m.Transpose)
			target := v
			if ok {
				target = v.spawnChild()
				if target == nil {
					continue
				}
			}
			if !target.LoadMacroObject(m.Macro, 0, ticksPerSec, mKey, vel, mod) {
				if target != v {
					v.engine.destroyVoice(target)
				}
				continue
			}
			target.SetVolume(float32(m.Volume) / 127)
			target.SetPan(float32(int(m.Pan)-64) / 64)
			target.SetSurroundPan(float32(int(m.Span)-64) / 64)
			target.priority += int(m.PrioOffset)
			ok = true
		}
		return ok
	case amuse.KindSoundMacro:
		return v.LoadMacroObject(id, 0, ticksPerSec, key, vel, mod)
	}
	return false
}

func (v *Voice) spawnChild() *Voice {
	child := v.engine.allocateVoice(v.group, v.groupID, v.studio, v.emitter)
	if child == nil {
		return nil
	}
	child.parent = v.id
	child.origin = v.origin
	child.priority = v.priority
	child.ctrlVals = v.ctrlVals
	child.userVol = v.userVol
	child.curPan, child.curSpan = v.curPan, v.curSpan
	child.reverbVol, child.auxBVol = v.reverbVol, v.auxBVol
	child.pitchWheel = v.pitchWheel
	v.children = append(v.children, child.id)
	return child
}

// StartChildMacro plays macro id on a new child voice, transposed by
// addNote from this voice's key.
func (v *Voice) StartChildMacro(addNote int, id amuse.ObjectId, step int) *Voice {
	return v.startChildMacro(addNote, id, step)
}

func (v *Voice) startChildMacro(addNote int, id amuse.ObjectId, step int) *Voice {
	child := v.spawnChild()
	if child == nil {
		return nil
	}
	if !child.LoadMacroObject(id, step, v.state.ticksPerSec, v.state.initKey+addNote, v.state.initVel, v.state.initMod) {
		v.children = v.children[:len(v.children)-1]
		v.engine.destroyVoice(child)
		return nil
	}
	return child
}

// StartSample starts playing sample id from sample index offset.
func (v *Voice) StartSample(id amuse.SampleId, offset uint32) {
	entry, data := v.group.Sample(id)
	if entry == nil {
		return
	}
	v.curSample = entry
	v.curSampleData = data
	v.lastSamplePos = entry.LastSample()
	v.curSamplePos = offset
	v.frameLen = 0
	v.nextFrame = 0
	v.prev1, v.prev2 = 0, 0
	v.loopHistSet = false
	v.state.sampleEnd = false
	if !v.fixedRate {
		v.sampleRate = float64(entry.SampleRate)
		v.backend.ResetSampleRate(v.sampleRate)
	}
	v.pitchDirty = true
	if v.curSamplePos >= v.lastSamplePos {
		v.checkSamplePos()
	}
	if v.voxState != VoiceDead {
		v.backend.Start()
	}
}

func (v *Voice) StopSample() {
	v.curSample = nil
	v.curSampleData = nil
}

func (v *Voice) frameSize() (bytes, samples int) {
	switch v.curSample.Format {
	case amuse.FormatDSP:
		return codec.DSPFrameBytes, codec.DSPFrameSamples
	case amuse.FormatN64:
		return codec.VADPCMFrameBytes, codec.VADPCMFrameSamples
	}
	return 0, 0
}

func (v *Voice) loopFrame() int {
	_, samples := v.frameSize()
	return int(v.curSample.LoopStartSample) / samples
}

// decodeFrame decodes frame fi, continuing from the current history.
func (v *Voice) decodeFrame(fi int) bool {
	bytes, _ := v.frameSize()
	off := fi * bytes
	if off+bytes > len(v.curSampleData) {
		return false
	}
	if v.curSample.IsLooped() && !v.loopHistSet && fi == v.loopFrame() {
		v.loopHist = [2]int16{v.prev1, v.prev2}
		v.loopHistSet = true
	}
	src := v.curSampleData[off : off+bytes]
	var n int
	if v.curSample.Format == amuse.FormatDSP {
		n = codec.DSPDecodeFrame(v.frame[:], src, &v.curSample.ADPCM.DSP.Coefs, &v.prev1, &v.prev2)
	} else {
		n = codec.VADPCMDecodeFrame(v.frame[:], src, &v.curSample.ADPCM.VADPCM.Coefs, &v.prev1, &v.prev2)
	}
	v.frameIdx, v.frameLen, v.nextFrame = fi, n, fi+1
	return n > 0
}

// ensureFrame makes frame fi the buffered frame, decoding the frames before
// it when seeking forward and restarting from the top when seeking back.
func (v *Voice) ensureFrame(fi int) bool {
	if v.frameLen > 0 && v.frameIdx == fi {
		return true
	}
	if fi < v.nextFrame {
		v.nextFrame = 0
		v.prev1, v.prev2 = 0, 0
	}
	for v.nextFrame <= fi {
		if !v.decodeFrame(v.nextFrame) {
			return false
		}
	}
	return true
}

func (v *Voice) readSamples(out []int16) int {
	pos := int(v.curSamplePos)
	switch v.curSample.Format {
	case amuse.FormatPCM:
		return codec.PCMDecode(out, v.curSampleData, pos, binary.BigEndian)
	case amuse.FormatPCMPC:
		return codec.PCMDecode(out, v.curSampleData, pos, binary.LittleEndian)
	case amuse.FormatDSP, amuse.FormatN64:
		_, fs := v.frameSize()
		n := 0
		for n < len(out) {
			p := pos + n
			fi, idx := p/fs, p%fs
			if !v.ensureFrame(fi) || idx >= v.frameLen {
				break
			}
			n += copy(out[n:], v.frame[idx:v.frameLen])
		}
		return n
	}
	return 0
}

// restoreLoop wraps playback to the loop start with the predictor history
// the decoder had there.
func (v *Voice) restoreLoop() {
	v.curSamplePos = v.curSample.LoopStartSample
	if bytes, _ := v.frameSize(); bytes == 0 {
		return
	}
	lf := v.loopFrame()
	if v.frameLen > 0 && v.frameIdx == lf {
		v.nextFrame = lf + 1
		return
	}
	switch {
	case v.loopHistSet:
		v.prev1, v.prev2 = v.loopHist[0], v.loopHist[1]
	case v.curSample.Format == amuse.FormatDSP:
		v.prev1, v.prev2 = v.curSample.ADPCM.DSP.Hist1, v.curSample.ADPCM.DSP.Hist2
	default:
		v.prev1, v.prev2 = 0, 0
	}
	v.nextFrame = lf
	v.frameLen = 0
}

// checkSamplePos handles the end of the playable range and reports
// whether the sample is still playing.
func (v *Voice) checkSamplePos() bool {
	if v.curSample == nil {
		return false
	}
	if v.curSamplePos < v.lastSamplePos {
		return true
	}
	if v.curSample.IsLooped() {
		v.restoreLoop()
		return true
	}
	v.endSample()
	return false
}

func (v *Voice) endSample() {
	v.curSample = nil
	v.curSampleData = nil
	v.state.sampleEndNotify()
	if t := v.state.sampleEndTrap; v.trapArmed(&t) {
		v.jumpToTrap(t)
	}
}

func (v *Voice) jumpToTrap(t eventTrap) {
	if t.macro == v.state.ObjectId() {
		v.state.setPC(t.step)
		v.state.inWait = false
		return
	}
	v.loadMacro(t.macro, t.step, false)
}

// SupplyAudio decodes frames samples of the playing sample into data at the
// sample's own rate, looping or ending as the sample dictates.
func (v *Voice) SupplyAudio(frames int, data []int16) int {
	out := data[:frames]
	n := 0
	for n < frames && v.curSample != nil {
		if v.curSamplePos >= v.lastSamplePos {
			if !v.checkSamplePos() {
				break
			}
			continue
		}
		want := min(frames-n, int(v.lastSamplePos-v.curSamplePos))
		got := v.readSamples(out[n : n+want])
		if got == 0 {
			v.endSample()
			break
		}
		n += got
		v.curSamplePos += uint32(got)
	}
	clear(out[n:])
	if v.curSample != nil && v.curSamplePos >= v.lastSamplePos {
		v.checkSamplePos()
	}
	return n
}

// RouteAudio applies the bus gain of this block to in, ramping from the
// previous block's gain.
func (v *Voice) RouteAudio(frames int, dt float64, busID int, in, out []float32) {
	b := max(0, min(busID, 2))
	in, out = in[:frames], out[:frames]
	start, end := v.busStart[b], v.busEnd[b]
	if start == end || frames == 0 {
		vek32.MulNumber_Into(out, in, end)
		return
	}
	step := (end - start) / float32(frames)
	g := start
	for i, x := range in {
		out[i] = x * g
		g += step
	}
}

// KeyOff releases the note: it runs the keyoff trap when one is armed, or
// releases the envelopes otherwise. One-shot samples keep playing to their
// end. Child voices are released too.
func (v *Voice) KeyOff() {
	if v.voxState != VoiceDead {
		if t := v.state.keyoffTrap; v.trapArmed(&t) {
			v.state.keyoffNotify()
			v.jumpToTrap(t)
		} else if v.curSample == nil || v.curSample.IsLooped() {
			v.macroKeyOff()
		} else {
			v.state.keyoffNotify()
			v.voxState = VoiceKeyOff
		}
	}
	for _, id := range v.children {
		if c := v.engine.voices[id]; c != nil {
			c.KeyOff()
		}
	}
}

func (v *Voice) macroKeyOff() {
	if v.pedal {
		v.sustainKeyOff = true
		return
	}
	v.volAdsr.KeyOff(v.adsrControls())
	if v.pitchEnv {
		v.pitchAdsr.KeyOff(nil)
	}
	v.state.keyoffNotify()
	v.voxState = VoiceKeyOff
}

// Kill silences the voice and its children at once. The engine reclaims
// them at the end of the pump cycle.
func (v *Voice) Kill() {
	if v.voxState != VoiceDead {
		v.voxState = VoiceDead
		v.backend.Stop()
	}
	for _, id := range v.children {
		if c := v.engine.voices[id]; c != nil {
			c.Kill()
		}
	}
}

// Message queues val for GetMessage and runs the message trap.
func (v *Voice) Message(val int32) {
	v.messages = append(v.messages, val)
	if t := v.state.messageTrap; v.trapArmed(&t) {
		v.jumpToTrap(t)
	}
}

func (v *Voice) SetVolume(vol float32) { v.userVol = clamp32(vol, 0, 1) }

func (v *Voice) SetPan(pan float32) {
	v.curPan = clamp32(pan, -1, 1)
	v.levelsDirty = true
}

func (v *Voice) SetSurroundPan(span float32) {
	v.curSpan = clamp32(span, -1, 1)
	v.levelsDirty = true
}

func (v *Voice) SetPitchWheel(pw float32) {
	v.pitchWheel = clamp32(pw, -1, 1)
	v.pitchDirty = true
	for _, id := range v.children {
		if c := v.engine.voices[id]; c != nil {
			c.SetPitchWheel(pw)
		}
	}
}

func (v *Voice) setEmitterParams(vol, pan, span float32, doppler float64) {
	v.emitterVol = clamp32(vol, 0, 1)
	v.SetPan(pan)
	v.SetSurroundPan(span)
	v.dopplerRatio = doppler
}

func (v *Voice) SetReverbVol(vol float32) { v.reverbVol = clamp32(vol, 0, 1) }

func (v *Voice) SetAuxBVol(vol float32) { v.auxBVol = clamp32(vol, 0, 1) }

// SetPedal holds or releases the sustain pedal. Releasing it delivers a
// keyoff that arrived while it was held.
func (v *Voice) SetPedal(pedal bool) {
	if v.pedal && !pedal && v.sustainKeyOff {
		v.pedal = false
		v.sustainKeyOff = false
		v.macroKeyOff()
	}
	v.pedal = pedal
}

// CtrlValue returns MIDI controller ctrl, or one of the voice sources
// numbered from 128.
func (v *Voice) CtrlValue(ctrl uint8) int {
	if ctrl < 128 {
		return int(v.ctrlVals[ctrl])
	}
	return int(v.sourceValue(ctrl))
}

func (v *Voice) SetCtrlValue(ctrl uint8, val int8) {
	v.ctrlVals[ctrl&0x7f] = val
	if ctrl == 64 {
		v.SetPedal(val >= 64)
	}
}

// DoPortamento glides to newNote instead of starting a new voice when
// portamento is enabled on the voice.
func (v *Voice) DoPortamento(newNote int) bool {
	var on bool
	switch v.state.portamentoMode {
	case portamentoEnable:
		on = true
	case portamentoMIDIControlled:
		on = v.CtrlValue(65) >= 64
	}
	if !on || v.voxState != VoicePlaying {
		return false
	}
	v.portamentoStart = v.state.curPitch
	v.portamentoTarget = int32(newNote) * 100
	v.portamentoTime = 0
	v.state.initKey = newNote
	v.lastNote = newNote
	return true
}

func (v *Voice) adsrControls() *EnvelopeControls {
	if !v.state.useAdsrControllers {
		return nil
	}
	c := v.state.adsrCtrls
	return &EnvelopeControls{
		Attack:  int8(v.CtrlValue(c[0])),
		Decay:   int8(v.CtrlValue(c[1])),
		Sustain: int8(v.CtrlValue(c[2])),
		Release: int8(v.CtrlValue(c[3])),
	}
}

// setAdsr loads the volume envelope. The table type decides between the
// classic and the DLS interpretation, so dls only has to agree with it.
func (v *Voice) setAdsr(id amuse.ObjectId, dls bool) {
	t := v.group.Pool().TableAsADSR(id)
	if _, isDLS := t.(*amuse.ADSRDLS); t != nil && isDLS != dls {
		log.Printf("voice %d: table %v used as %s envelope", v.id, id, map[bool]string{false: "classic", true: "DLS"}[dls])
	}
	if v.volAdsr.ResetTable(t, v.state.initKey, v.state.initVel) {
		v.state.useAdsrControllers = false
	}
}

func (v *Voice) setPitchAdsr(id amuse.ObjectId, cents int32) {
	if v.pitchAdsr.ResetTable(v.group.Pool().TableAsADSR(id), v.state.initKey, v.state.initVel) {
		v.pitchEnv = true
		v.pitchEnvRange = cents
	}
}

func (v *Voice) startEnvelope(dur float64, vol int32, curve *amuse.Curve) {
	v.envelope = ramp{dur: dur, start: clamp32(v.curVol, 0, 1), end: float32(vol) / 127, curve: curve}
}

func (v *Voice) startFadeIn(dur float64, vol int32, curve *amuse.Curve) {
	v.envelope = ramp{dur: dur, start: 0, end: float32(vol) / 127, curve: curve}
	v.curVol = 0
}

func (v *Voice) startPanning(dur float64, pos, width int32) {
	v.panning = sweep{dur: dur, pos: pos, width: width}
}

func (v *Voice) startSpanning(dur float64, pos, width int32) {
	v.spanning = sweep{dur: dur, pos: pos, width: width}
}

func (v *Voice) setVibrato(level int32, modWheel bool, period float64) {
	v.vibratoLevel = level
	v.vibratoModWheel = modWheel
	v.vibratoPeriod = period
	if period > 0 {
		v.vibratoTime = 0
	} else {
		v.vibratoTime = -1
	}
}

func (v *Voice) setPitchSweep(i, times int, add int32, period float64) {
	v.sweeps[i] = pitchSweep{times: times, add: add, period: period}
	v.pitchDirty = true
}

func (v *Voice) setPitchFrequency(hz uint32, fine uint16) {
	v.fixedRate = true
	v.sampleRate = float64(hz) + float64(fine)/65536
	v.backend.ResetSampleRate(v.sampleRate)
	v.pitchRatio = 1
	v.backend.SetPitchRatio(1, false)
}

// PreSupplyAudio runs the macro for one block and resolves volume, pan and
// pitch for it. A voice whose macro has ended and whose sound has finished
// dies here.
func (v *Voice) PreSupplyAudio(dt float64) {
	if v.voxState == VoiceDead {
		return
	}
	v.voiceTime += dt
	if v.ageSpeed > 0 {
		v.age = max(0, v.age-v.ageSpeed*dt)
	}
	done := v.advanceMacro(dt)
	if v.voxState == VoiceDead {
		return
	}
	v.applyEvaluators()
	v.advanceRamps(dt)
	v.advancePitch(dt)
	v.advanceLevel(dt)
	if v.levelsDirty {
		v.pushChannelLevels()
	}

	if done && (v.curSample == nil || (v.voxState == VoiceKeyOff && v.volAdsr.IsComplete())) &&
		(v.curSample == nil || !v.trapArmed(&v.state.sampleEndTrap)) && !v.trapArmed(&v.state.messageTrap) {
		v.voxState = VoiceDead
		v.backend.Stop()
	}
}

// advanceMacro runs the interpreter. A panic from corrupt macro data kills
// only this voice.
func (v *Voice) advanceMacro(dt float64) (done bool) {
	defer func() {
		if err := recover(); err != nil {
			log.Printf("voice %d: macro %v aborted: %v", v.id, v.state.ObjectId(), err)
			v.Kill()
			done = true
		}
	}()
	return v.state.Advance(v, dt)
}

func (v *Voice) applyEvaluators() {
	s := &v.state
	if s.volumeSel.Active() {
		v.evalVol = clamp32(s.volumeSel.evaluate(v)/127, 0, 1)
	}
	if s.panSel.Active() {
		v.SetPan((s.panSel.evaluate(v) - 64) / 64)
	}
	if s.pitchWheelSel.Active() {
		v.SetPitchWheel((s.pitchWheelSel.evaluate(v) - 64) / 64)
	}
	if s.modWheelSel.Active() {
		v.SetCtrlValue(1, int8(clamp32(s.modWheelSel.evaluate(v), 0, 127)))
	}
	if s.pedalSel.Active() {
		v.SetPedal(s.pedalSel.evaluate(v) >= 64)
	}
	if s.portamentoSel.Active() {
		v.SetCtrlValue(65, int8(clamp32(s.portamentoSel.evaluate(v), 0, 127)))
	}
	if s.reverbSel.Active() {
		v.SetReverbVol(s.reverbSel.evaluate(v) / 127)
	}
	if s.preAuxASel.Active() {
		v.preAuxAVol = clamp32(s.preAuxASel.evaluate(v)/127, 0, 1)
	}
	if s.preAuxBSel.Active() {
		v.SetAuxBVol(s.preAuxBSel.evaluate(v) / 127)
	}
	if s.postAuxBSel.Active() {
		v.postAuxBVol = clamp32(s.postAuxBSel.evaluate(v)/127, 0, 1)
	}
	if s.spanSel.Active() {
		v.SetSurroundPan((s.spanSel.evaluate(v) - 64) / 64)
	}
	if s.dopplerSel.Active() {
		v.macroDoppler = math.Exp2(float64(s.dopplerSel.evaluate(v)-64) / 64)
	}
	if s.tremoloSel.Active() {
		v.tremoloValue = clamp32(s.tremoloSel.evaluate(v)/127, 0, 1)
	}
	for i := range s.auxAFxSel {
		if s.auxAFxSel[i].Active() {
			v.studio.auxA.setEffectParam(i, clamp32(s.auxAFxSel[i].evaluate(v)/127, 0, 1))
		}
		if s.auxBFxSel[i].Active() {
			v.studio.auxB.setEffectParam(i, clamp32(s.auxBFxSel[i].evaluate(v)/127, 0, 1))
		}
	}
}

func (r *ramp) advance(dt float64) (float32, bool) {
	if r.time < 0 {
		return 0, false
	}
	r.time += dt
	t := float32(1)
	if r.dur > 0 {
		t = clamp32(float32(r.time/r.dur), 0, 1)
	}
	if r.curve != nil && len(r.curve.Data) >= 128 {
		t = float32(r.curve.Value(int(t*127))) / 127
	}
	val := clamp32(r.start*(1-t)+r.end*t, 0, 1)
	if r.time >= r.dur {
		r.time = -1
	}
	return val, true
}

func (s *sweep) advance(dt float64) (float32, bool) {
	if s.time < 0 {
		return 0, false
	}
	s.time += dt
	t := 1.0
	if s.dur > 0 {
		t = clamp64(s.time/s.dur, 0, 1)
	}
	if s.time >= s.dur {
		s.time = -1
	}
	return clamp32((float32(s.pos)+float32(s.width)*float32(t)-64)/64, -1, 1), true
}

func (v *Voice) advanceRamps(dt float64) {
	if vol, ok := v.envelope.advance(dt); ok {
		v.curVol = vol
	}
	if pan, ok := v.panning.advance(dt); ok {
		v.SetPan(pan)
	}
	if span, ok := v.spanning.advance(dt); ok {
		v.SetSurroundPan(span)
	}
}

func (v *Voice) advancePitch(dt float64) {
	cents := float64(v.state.curPitch)
	if v.portamentoTime >= 0 {
		v.portamentoTime += dt
		t := 1.0
		if v.state.portamentoTime > 0 {
			t = clamp64(v.portamentoTime/v.state.portamentoTime, 0, 1)
		}
		cents = float64(v.portamentoStart)*(1-t) + float64(v.portamentoTarget)*t
		if t >= 1 {
			v.state.curPitch = v.portamentoTarget
			v.portamentoTime = -1
		}
	}
	if v.vibratoTime >= 0 {
		v.vibratoTime += dt
		vib := math.Sin(v.vibratoTime / v.vibratoPeriod * 2 * math.Pi)
		if v.vibratoModWheel {
			cents += float64(v.vibratoModLevel) * vib * float64(v.CtrlValue(1)) / 127
		} else {
			cents += float64(v.vibratoLevel) * vib
		}
	}
	for i := range v.sweeps {
		sw := &v.sweeps[i]
		if sw.add == 0 {
			continue
		}
		sw.time += dt
		for (sw.times == 0 || sw.steps < sw.times) && sw.time >= sw.period {
			sw.time -= sw.period
			sw.steps++
			sw.value += sw.add
			if sw.period <= 0 {
				break
			}
		}
		cents += float64(sw.value)
	}
	if v.pitchEnv {
		cents += v.pitchAdsr.Advance(dt, nil) * float64(v.pitchEnvRange)
	}
	if v.pitchWheel > 0 {
		cents += float64(v.pitchWheel) * float64(v.pitchWheelUp)
	} else {
		cents += float64(v.pitchWheel) * float64(v.pitchWheelDown)
	}

	ratio := 1.0
	if !v.fixedRate && v.curSample != nil {
		cents = clamp64(cents, 0, 12700)
		ratio = math.Exp2((cents - float64(v.curSample.Pitch)*100) / 1200)
	}
	if !v.fixedRate {
		ratio *= v.dopplerRatio * v.macroDoppler
	}
	if ratio != v.pitchRatio || v.pitchDirty {
		v.pitchRatio = ratio
		v.backend.SetPitchRatio(ratio, !v.pitchDirty)
		v.pitchDirty = false
	}
}

// level is the linear gain of the voice before the volume curve.
func (v *Voice) level(dt float64) float32 {
	adsr := float32(1)
	if v.volAdsr.IsSet() {
		adsr = float32(v.volAdsr.Advance(dt, v.adsrControls()))
	}
	l := v.userVol * v.curVol * v.evalVol * v.emitterVol * adsr
	if v.tremoloScale != 0 || v.tremoloModScale != 0 {
		depth := v.tremoloScale + v.tremoloModScale*float32(v.CtrlValue(1))/127
		lfo := v.tremoloValue
		if !v.state.tremoloSel.Active() {
			lfo = v.sourceValue(CtrlLFO1) / 127
		}
		l *= 1 - clamp32(depth*lfo, 0, 1)
	}
	return clamp32(l, 0, 1)
}

func (v *Voice) advanceLevel(dt float64) {
	l := v.level(dt)
	gains := [3]float32{1, v.reverbVol * v.preAuxAVol, v.auxBVol * v.postAuxBVol}
	for b, g := range gains {
		v.busStart[b] = v.busEnd[b]
		v.busEnd[b] = v.busCache[b].Volume(l*g, v.dlsVol)
	}
}

// panLevels is the per-speaker gain of a source at pan (left/right) and
// span (front/back) for the output layout.
func panLevels(set amuse.ChannelSet, pan, span float32) [8]float32 {
	sq := func(x float32) float32 { return float32(math.Sqrt(float64(clamp32(x, 0, 1)))) }
	l, r := sq(-pan*0.5+0.5), sq(pan*0.5+0.5)
	front, back := sq(-span*0.5+0.5), sq(span*0.5+0.5)
	var lv [8]float32
	switch set {
	case amuse.Quad:
		lv[0], lv[1], lv[2], lv[3] = l*front, r*front, l*back, r*back
	case amuse.Surround51:
		lv[0], lv[1], lv[4], lv[5] = l*front, r*front, l*back, r*back
	case amuse.Surround71:
		side := 1 - float32(math.Abs(float64(span)))
		front, back = sq(-span), sq(span)
		lv[0], lv[1], lv[4], lv[5] = l*front, r*front, l*back, r*back
		lv[6], lv[7] = l*sq(side), r*sq(side)
	default:
		lv[0], lv[1] = l, r
	}
	return lv
}

// pushChannelLevels sends the pan law to the three buses of the voice's
// studio. Studio sends carry the mix further from there.
func (v *Voice) pushChannelLevels() {
	v.levelsDirty = false
	if v.studio == nil {
		return
	}
	lv := panLevels(v.engine.channelSet, v.curPan, v.curSpan)
	for _, sub := range v.studio.submixes() {
		v.backend.SetChannelLevels(sub.backend, lv, true)
	}
}
