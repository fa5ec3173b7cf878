// Package oto plays rendered audio on the default output device.
package oto

import (
	"fmt"
	"io"
	"time"

	"github.com/amuse-audio/amuse"
	"github.com/ebitengine/oto/v3"
)

type (
	// Context is an open output device.
	Context struct {
		ctx      *oto.Context
		channels int
	}

	// Output streams float32 frames to the device. WriteAudio blocks while
	// the device buffer is full.
	Output struct {
		player    *oto.Player
		pipe      *io.PipeWriter
		tmpBuffer []byte
	}
)

const otoBufferSize = 50 * time.Millisecond

// NewContext opens the device at sampleRate with the given number of
// interleaved channels.
func NewContext(sampleRate, channels int) (*Context, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   otoBufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &Context{ctx: ctx, channels: channels}, nil
}

func (c *Context) Output() amuse.AudioSink {
	r, w := io.Pipe()
	p := c.ctx.NewPlayer(r)
	p.Play()
	return &Output{player: p, pipe: w}
}

// Close suspends the device. oto keeps one context per process, so the
// device itself stays open.
func (c *Context) Close() error {
	if err := c.ctx.Suspend(); err != nil {
		return fmt.Errorf("cannot suspend oto context: %w", err)
	}
	return nil
}

// WriteAudio queues interleaved float32 frames for playback.
func (o *Output) WriteAudio(floatBuffer []float32) error {
	o.tmpBuffer = amuse.AppendRaw(o.tmpBuffer[:0], floatBuffer, false)
	if _, err := o.pipe.Write(o.tmpBuffer); err != nil {
		return fmt.Errorf("cannot write to player: %w", err)
	}
	return nil
}

// Close waits for the queued audio to finish and releases the player.
func (o *Output) Close() error {
	o.pipe.Close()
	for o.player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}
	if err := o.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}
