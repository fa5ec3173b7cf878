package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"

	"github.com/amuse-audio/amuse"
	"github.com/amuse-audio/amuse/oto"
)

type (
	// rawSink streams little endian samples to a file.
	rawSink struct {
		f     *os.File
		w     *bufio.Writer
		pcm16 bool
	}

	// wavSink keeps 16-bit frames and writes them as a WAV file on Close.
	wavSink struct {
		path     string
		rate     int
		channels int
		pcm      []int16
	}

	// multiSink fans one buffer out to several sinks.
	multiSink []amuse.AudioSink
)

func openRawSink(path string, pcm16 bool) (*rawSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("cannot create raw output: %w", err)
	}
	return &rawSink{f: f, w: bufio.NewWriter(f), pcm16: pcm16}, nil
}

func (s *rawSink) WriteAudio(buffer []float32) error {
	if _, err := s.w.Write(amuse.Raw(buffer, s.pcm16)); err != nil {
		return fmt.Errorf("cannot write raw output: %w", err)
	}
	return nil
}

func (s *rawSink) Close() error {
	return errors.Join(s.w.Flush(), s.f.Close())
}

func (s *wavSink) WriteAudio(buffer []float32) error {
	for _, v := range buffer {
		s.pcm = append(s.pcm, amuse.FloatToInt16(v))
	}
	return nil
}

func (s *wavSink) Close() error {
	return amuse.WriteWAVFile(s.path, s.pcm, s.rate, s.channels)
}

func (m multiSink) WriteAudio(buffer []float32) error {
	for _, s := range m {
		if err := s.WriteAudio(buffer); err != nil {
			return err
		}
	}
	return nil
}

func (m multiSink) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

func openDevice(sampleRate, channels int) (amuse.AudioContext, error) {
	ctx, err := oto.NewContext(sampleRate, channels)
	if err != nil {
		return nil, err
	}
	return ctx, nil
}
