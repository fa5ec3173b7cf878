package engine

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/amuse-audio/amuse"
	"github.com/amuse-audio/amuse/effect"
	"gopkg.in/yaml.v3"
)

type (
	// Config holds the output and engine settings. Backends read the
	// output fields; the engine reads Volume, MaxVoices and the effects of
	// the default studio.
	Config struct {
		SampleRate float64          `yaml:"samplerate"`
		Format     effect.Format    `yaml:"format"`
		ChannelSet amuse.ChannelSet `yaml:"channels"`
		Volume     float32          `yaml:"volume"`
		MaxVoices  int              `yaml:"maxvoices"`
		AuxA       []EffectConfig   `yaml:"auxa,omitempty"`
		AuxB       []EffectConfig   `yaml:"auxb,omitempty"`
	}

	// EffectConfig describes one effect of a submix. Type is delay, reverb,
	// reverbhi or chorus; only the fields of that type are used.
	EffectConfig struct {
		Type string `yaml:"type"`

		Delay    uint32 `yaml:"delay,omitempty"`
		Feedback uint32 `yaml:"feedback,omitempty"`
		Output   uint32 `yaml:"output,omitempty"`

		Coloration float32 `yaml:"coloration,omitempty"`
		Mix        float32 `yaml:"mix,omitempty"`
		Time       float32 `yaml:"time,omitempty"`
		Damping    float32 `yaml:"damping,omitempty"`
		PreDelay   float32 `yaml:"predelay,omitempty"`
		Crosstalk  float32 `yaml:"crosstalk,omitempty"`

		BaseDelay uint32 `yaml:"basedelay,omitempty"`
		Variation uint32 `yaml:"variation,omitempty"`
		Period    uint32 `yaml:"period,omitempty"`
	}
)

//go:embed config.yml
var defaultConfigYaml []byte

// DefaultConfig returns the built in configuration.
func DefaultConfig() Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultConfigYaml, &cfg); err != nil {
		panic(fmt.Errorf("failed to unmarshal default config: %w", err))
	}
	return cfg
}

// ReadConfig reads a YAML configuration over the defaults. Unknown fields
// are an error.
func ReadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, fmt.Errorf("cannot read config: %w", err)
	}
	if cfg.SampleRate <= 0 {
		return cfg, fmt.Errorf("invalid sample rate %v", cfg.SampleRate)
	}
	return cfg, nil
}

// ReadConfigFile reads filename, or amuse/config.yml in the user
// configuration directory when filename is empty. A missing default file
// gives the defaults.
func ReadConfigFile(filename string) (Config, error) {
	if filename == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return DefaultConfig(), nil
		}
		filename = filepath.Join(dir, "amuse", "config.yml")
		if _, err := os.Stat(filename); err != nil {
			return DefaultConfig(), nil
		}
	}
	f, err := os.Open(filename)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("cannot read config: %w", err)
	}
	defer f.Close()
	return ReadConfig(f)
}
