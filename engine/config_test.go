package engine_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/amuse-audio/amuse"
	"github.com/amuse-audio/amuse/effect"
	"github.com/amuse-audio/amuse/engine"
	"github.com/davecgh/go-spew/spew"
)

func TestDefaultConfig(t *testing.T) {
	cfg := engine.DefaultConfig()
	if cfg.SampleRate != 48000 || cfg.Format != effect.FormatFloat32 || cfg.ChannelSet != amuse.Stereo {
		t.Fatalf("unexpected output defaults: %v", spew.Sdump(cfg))
	}
	if cfg.Volume != 1 || cfg.MaxVoices != 64 {
		t.Fatalf("unexpected engine defaults: %v", spew.Sdump(cfg))
	}
	if len(cfg.AuxA) != 1 || cfg.AuxA[0].Type != "reverb" || len(cfg.AuxB) != 1 || cfg.AuxB[0].Type != "chorus" {
		t.Fatalf("unexpected default effects: %v", spew.Sdump(cfg.AuxA, cfg.AuxB))
	}
}

func TestReadConfigOverrides(t *testing.T) {
	cfg, err := engine.ReadConfig(strings.NewReader("samplerate: 32000\nchannels: quad\nmaxvoices: 8\nauxb: []\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SampleRate != 32000 || cfg.ChannelSet != amuse.Quad || cfg.MaxVoices != 8 {
		t.Fatalf("overrides not applied: %v", spew.Sdump(cfg))
	}
	if cfg.Volume != 1 || len(cfg.AuxA) != 1 || len(cfg.AuxB) != 0 {
		t.Fatalf("defaults lost: %v", spew.Sdump(cfg))
	}
}

func TestReadConfigErrors(t *testing.T) {
	for _, doc := range []string{
		"samplerate: 48000\nbogus: 1\n",
		"samplerate: 0\n",
		"format: float64\n",
	} {
		if _, err := engine.ReadConfig(strings.NewReader(doc)); err == nil {
			t.Errorf("config %q accepted", doc)
		}
	}
	if cfg, err := engine.ReadConfig(strings.NewReader("")); err != nil || cfg.SampleRate != 48000 {
		t.Errorf("empty config gave %v, %v", cfg.SampleRate, err)
	}
}

func TestReadConfigFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(name, []byte("volume: 0.5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := engine.ReadConfigFile(name)
	if err != nil || cfg.Volume != 0.5 {
		t.Fatalf("got volume %v, %v", cfg.Volume, err)
	}
	if _, err := engine.ReadConfigFile(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("missing explicit config file accepted")
	}
}

func TestEngineAppliesConfigEffects(t *testing.T) {
	cfg := testConfig()
	cfg.AuxA = []engine.EffectConfig{{Type: "delay", Delay: 100, Feedback: 50, Output: 100}}
	e, _ := newTestEngine(nil, cfg)
	if n := len(e.DefaultStudio().AuxA().Controls()); n != 1 {
		t.Fatalf("aux A has %d effects, expected 1", n)
	}
	if _, ok := e.DefaultStudio().AuxA().Controls()[0].(effect.DelayControl); !ok {
		t.Fatalf("aux A effect is %T", e.DefaultStudio().AuxA().Controls()[0])
	}
}
