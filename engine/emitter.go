package engine

import (
	"math"

	"github.com/viterin/vek/vek32"
)

type (
	// Vector3 is a position or velocity in world units.
	Vector3 [3]float32

	// Listener is a point of view for emitters. Heading and Up orient it;
	// Velocity feeds the doppler shift.
	Listener struct {
		Pos, Velocity, Heading, Up Vector3
		Volume                     float32
		SoundSpeed                 float32
		dirty                      bool
	}

	// Emitter positions a voice in space. Each pump it sets the volume, pan
	// and span of its voice from the nearest listener.
	Emitter struct {
		engine         *Engine
		voice          VoiceID
		pos, velocity  Vector3
		maxDist        float32
		falloff        float32
		minVol, maxVol float32
		doppler        bool
		dirty          bool
	}
)

const defaultSoundSpeed = 343

// SetVectors moves the listener.
func (l *Listener) SetVectors(pos, velocity, heading, up Vector3) {
	l.Pos, l.Velocity, l.Heading, l.Up = pos, velocity, heading, up
	l.dirty = true
}

// SetVectors moves the emitter.
func (e *Emitter) SetVectors(pos, velocity Vector3) {
	e.pos, e.velocity = pos, velocity
	e.dirty = true
}

func (e *Emitter) Voice() *Voice { return e.engine.voices[e.voice] }

func (e *Emitter) SetMaxVol(vol float32) { e.maxVol = clamp32(vol, 0, 1); e.dirty = true }

func cross(a, b Vector3) Vector3 {
	return Vector3{a[1]*b[2] - a[2]*b[1], a[2]*b[0] - a[0]*b[2], a[0]*b[1] - a[1]*b[0]}
}

func normalize(v Vector3) (Vector3, float32) {
	n := vek32.Norm(v[:])
	if n == 0 {
		return v, 0
	}
	vek32.DivNumber_Inplace(v[:], n)
	return v, n
}

// attenuation is the emitter volume at dist: maxVol at the emitter, minVol
// at and past maxDist. falloff above one bends the curve towards minVol.
func (e *Emitter) attenuation(dist float32) float32 {
	if e.maxDist <= 0 || dist >= e.maxDist {
		return e.minVol
	}
	att := 1 - dist/e.maxDist
	if e.falloff > 0 {
		att = float32(math.Pow(float64(att), float64(e.falloff)))
	}
	return e.minVol + (e.maxVol-e.minVol)*att
}

// spatialize computes volume, pan, span and doppler ratio as heard by l.
func (e *Emitter) spatialize(l *Listener) (vol, pan, span float32, ratio float64) {
	var delta Vector3
	vek32.Sub_Into(delta[:], e.pos[:], l.Pos[:])
	dir, dist := normalize(delta)
	vol = e.attenuation(dist) * l.Volume
	ratio = 1
	if dist == 0 {
		return vol, 0, 0, ratio
	}
	heading, _ := normalize(l.Heading)
	up, _ := normalize(l.Up)
	right, _ := normalize(cross(heading, up))
	pan = clamp32(vek32.Dot(dir[:], right[:]), -1, 1)
	span = clamp32(-vek32.Dot(dir[:], heading[:]), -1, 1)
	if e.doppler {
		c := l.SoundSpeed
		if c <= 0 {
			c = defaultSoundSpeed
		}
		towardSource := vek32.Dot(l.Velocity[:], dir[:])
		towardListener := -vek32.Dot(e.velocity[:], dir[:])
		ratio = float64(c+towardSource) / float64(max(c-towardListener, c/16))
	}
	return vol, pan, span, ratio
}

func (e *Emitter) update(listeners []*Listener, force bool) {
	v := e.Voice()
	if v == nil || len(listeners) == 0 || (!e.dirty && !force) {
		return
	}
	e.dirty = false
	best := float32(-1)
	var pan, span float32
	ratio := 1.0
	for _, l := range listeners {
		lv, lp, ls, lr := e.spatialize(l)
		if lv > best {
			best, pan, span, ratio = lv, lp, ls, lr
		}
	}
	v.setEmitterParams(best, pan, span, ratio)
}
