package amuse_test

import (
	"testing"

	"github.com/amuse-audio/amuse"
	"gopkg.in/yaml.v3"
)

func TestChannelSetText(t *testing.T) {
	for _, tt := range []struct {
		set   amuse.ChannelSet
		name  string
		count int
	}{
		{amuse.Stereo, "stereo", 2},
		{amuse.Quad, "quad", 4},
		{amuse.Surround51, "5.1", 6},
		{amuse.Surround71, "7.1", 8},
	} {
		var doc struct {
			Channels amuse.ChannelSet `yaml:"channels"`
		}
		if err := yaml.Unmarshal([]byte("channels: \""+tt.name+"\"\n"), &doc); err != nil {
			t.Fatal(err)
		}
		if doc.Channels != tt.set || doc.Channels.Count() != tt.count {
			t.Errorf("%q parsed as %v with %d channels", tt.name, doc.Channels, doc.Channels.Count())
		}
		out, err := yaml.Marshal(doc)
		if err != nil {
			t.Fatal(err)
		}
		var back struct {
			Channels amuse.ChannelSet `yaml:"channels"`
		}
		if err := yaml.Unmarshal(out, &back); err != nil || back.Channels != tt.set {
			t.Errorf("%v does not survive marshalling: %s", tt.set, out)
		}
	}
	var c amuse.ChannelSet
	if err := c.UnmarshalText([]byte("mono")); err == nil {
		t.Fatal("unknown channel set accepted")
	}
}
