package main

import (
	_ "embed"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"slices"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/amuse-audio/amuse"
	"github.com/amuse-audio/amuse/backend"
	"github.com/amuse-audio/amuse/engine"
	"github.com/amuse-audio/amuse/version"
	"github.com/spf13/pflag"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed info.tmpl
var infoTemplate string

var (
	name       = pflag.String("name", "", "base name of the group files; defaults to the directory name")
	format     = pflag.String("format", "gcn", "data format of the group: gcn, n64 or pc")
	info       = pflag.Bool("info", false, "print a summary of the group")
	sfx        = pflag.Int("sfx", -1, "play the sound effect with this id")
	song       = pflag.Int("song", -1, "play the song with this id, using --songdata")
	songData   = pflag.String("songdata", "", "song data file for --song")
	loop       = pflag.Bool("loop", false, "loop the song")
	duration   = pflag.Float64("duration", 10, "maximum length to render in seconds")
	wavOut     = pflag.String("wav", "", "write the rendered audio to this .wav file")
	rawOut     = pflag.String("raw", "", "write the rendered audio to this file as raw little endian samples")
	pcm        = pflag.Bool("pcm", false, "write raw output as 16-bit signed PCM instead of float32")
	play       = pflag.Bool("play", false, "play the rendered audio")
	configFile = pflag.String("config", "", "engine configuration file")
	exportDir  = pflag.String("export", "", "write the group as project.yaml and .wav samples to this directory")
	versionFlg = pflag.Bool("version", false, "print version")
)

// tail is how long rendering continues after the last voice has died.
const tail = 1.0

func main() {
	log.SetFlags(0)
	pflag.Usage = printUsage
	pflag.Parse()
	if *versionFlg {
		fmt.Println(version.VersionOrHash)
		return
	}
	if pflag.NArg() != 1 {
		pflag.Usage()
		os.Exit(1)
	}
	if err := run(pflag.Arg(0)); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}

func run(dir string) error {
	cfg, err := engine.ReadConfigFile(*configFile)
	if err != nil {
		return err
	}
	dataFormat, err := amuse.ParseDataFormat(*format)
	if err != nil {
		return err
	}
	groupName := *name
	if groupName == "" {
		groupName = filepath.Base(filepath.Clean(dir))
	}
	reg := amuse.NewNameRegistry()
	data, err := loadGroupData(dir, groupName, dataFormat, reg)
	if err != nil {
		return err
	}
	mixer := backend.New(cfg.SampleRate, cfg.Format, cfg.ChannelSet)
	eng := engine.New(mixer, cfg)
	group, err := eng.AddAudioGroup(data)
	if err != nil {
		return fmt.Errorf("cannot load group %v: %w", groupName, err)
	}
	if *info {
		if err := printInfo(groupName, group); err != nil {
			return err
		}
	}
	if *exportDir != "" {
		if err := amuse.WriteProjectDir(*exportDir, group, reg); err != nil {
			return err
		}
	}
	var seq *engine.Sequencer
	switch {
	case *sfx >= 0:
		if eng.FxStart(amuse.SFXId(*sfx), 1, 0, nil) == nil {
			return fmt.Errorf("cannot start sfx %d", *sfx)
		}
	case *song >= 0:
		if *songData == "" {
			return errors.New("--song needs --songdata")
		}
		b, err := os.ReadFile(*songData)
		if err != nil {
			return fmt.Errorf("cannot read song data: %w", err)
		}
		gid, ok := songGroupFor(group.Project(), amuse.SongId(*song))
		if !ok {
			return fmt.Errorf("no song group in %v", groupName)
		}
		if seq, err = eng.SeqPlay(gid, amuse.SongId(*song), b, *loop, nil); err != nil {
			return fmt.Errorf("cannot play song %d: %w", *song, err)
		}
	default:
		if !*info && *exportDir == "" {
			return errors.New("nothing to do; give --sfx, --song, --info or --export")
		}
		return nil
	}
	return render(eng, mixer, seq)
}

// loadGroupData reads a project directory if dir holds a project.yaml and
// the binary group files otherwise.
func loadGroupData(dir, groupName string, format amuse.DataFormat, reg *amuse.NameRegistry) (*amuse.AudioGroupData, error) {
	if _, err := os.Stat(filepath.Join(dir, "project.yaml")); err == nil {
		g, err := amuse.ReadProjectDir(dir, reg)
		if err != nil {
			return nil, err
		}
		return g.Data(), nil
	}
	return amuse.ReadAudioGroupData(dir, groupName, format)
}

// songGroupFor returns the song group that has a MIDI setup for id, or the
// first song group.
func songGroupFor(proj *amuse.AudioGroupProject, id amuse.SongId) (amuse.GroupId, bool) {
	ids := make([]amuse.GroupId, 0, len(proj.SongGroups))
	for gid := range proj.SongGroups {
		ids = append(ids, gid)
	}
	slices.Sort(ids)
	for _, gid := range ids {
		if _, ok := proj.SongGroups[gid].MIDISetups[id]; ok {
			return gid, true
		}
	}
	if len(ids) == 0 {
		return 0, false
	}
	return ids[0], true
}

func render(eng *engine.Engine, mixer *backend.Mixer, seq *engine.Sequencer) error {
	rate, channels := int(mixer.SampleRate()), mixer.Channels()
	var sink multiSink
	if *play {
		dev, err := openDevice(rate, channels)
		if err != nil {
			return err
		}
		defer dev.Close()
		sink = append(sink, dev.Output())
	}
	if *rawOut != "" {
		raw, err := openRawSink(*rawOut, *pcm)
		if err != nil {
			sink.Close()
			return err
		}
		sink = append(sink, raw)
	}
	if *wavOut != "" {
		sink = append(sink, &wavSink{path: *wavOut, rate: rate, channels: channels})
	}
	blocks := int(math.Ceil(*duration / 0.005))
	idle := 0
	for i := 0; i < blocks && float64(idle)*0.005 < tail; i++ {
		if err := sink.WriteAudio(mixer.Pump()); err != nil {
			sink.Close()
			return err
		}
		if eng.ActiveVoiceCount() == 0 && (seq == nil || seq.State() != engine.SequencerPlaying) {
			idle++
		} else {
			idle = 0
		}
	}
	return sink.Close()
}

func printInfo(groupName string, g *amuse.AudioGroup) error {
	caser := cases.Title(language.English)
	funcs := sprig.TxtFuncMap()
	funcs["title"] = caser.String
	tmpl, err := template.New("info").Funcs(funcs).Parse(infoTemplate)
	if err != nil {
		return fmt.Errorf("cannot parse info template: %w", err)
	}
	return tmpl.Execute(os.Stdout, struct {
		Name    string
		Format  amuse.DataFormat
		Project *amuse.AudioGroupProject
		Pool    *amuse.AudioGroupPool
		Samples *amuse.AudioGroupSampleDirectory
	}{groupName, g.Format(), g.Project(), g.Pool(), g.SampleDirectory()})
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "amuse-play renders sound effects and songs of a MusyX audio group.\nUsage: %s [flags] <group-dir>\n", os.Args[0])
	pflag.PrintDefaults()
}
