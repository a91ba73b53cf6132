// Package config loads avpipe job files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/harshabose/avpipe/internal/logging"
)

var (
	ErrUnknownExtension = errors.New("config: unknown file extension")
	ErrInvalid          = errors.New("config: invalid")
)

const (
	SelectBest = "best"
	SelectAll  = "all"

	ModeCopy      = "copy"
	ModeTranscode = "transcode"
	ModeDrop      = "drop"

	// HardwareAny enables every accelerator the engine was built with.
	HardwareAny = "any"
)

type Config struct {
	Log         Log      `yaml:"log" toml:"log"`
	Metrics     Metrics  `yaml:"metrics" toml:"metrics"`
	Hardware    Hardware `yaml:"hardware" toml:"hardware"`
	Watch       Watch    `yaml:"watch" toml:"watch"`
	Concurrency int      `yaml:"concurrency" toml:"concurrency"`
	Jobs        []Job    `yaml:"jobs" toml:"jobs"`
}

type Log struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

type Metrics struct {
	Listen string `yaml:"listen" toml:"listen"`
}

type Hardware struct {
	Devices []string `yaml:"devices" toml:"devices"`
}

// Watch turns every job into a template applied to files created in Dir.
type Watch struct {
	Dir string `yaml:"dir" toml:"dir"`
}

type Job struct {
	Name          string            `yaml:"name" toml:"name"`
	Input         string            `yaml:"input" toml:"input"`
	InputFormat   string            `yaml:"input_format" toml:"input_format"`
	InputOptions  map[string]string `yaml:"input_options" toml:"input_options"`
	Output        string            `yaml:"output" toml:"output"`
	OutputFormat  string            `yaml:"output_format" toml:"output_format"`
	OutputOptions map[string]string `yaml:"output_options" toml:"output_options"`
	Streams       []StreamRule      `yaml:"streams" toml:"streams"`
	// Atomic writes the output to a temporary file in the same directory and
	// renames it into place once the trailer is written.
	Atomic bool `yaml:"atomic" toml:"atomic"`
}

// StreamRule routes the streams of one kind. Kinds without a rule are dropped.
type StreamRule struct {
	Kind             string            `yaml:"kind" toml:"kind"`
	Select           string            `yaml:"select" toml:"select"`
	Mode             string            `yaml:"mode" toml:"mode"`
	Encoder          *Encoder          `yaml:"encoder" toml:"encoder"`
	DecoderOptions   map[string]string `yaml:"decoder_options" toml:"decoder_options"`
	HardwareDownload bool              `yaml:"hardware_download" toml:"hardware_download"`
}

// Encoder settings left at zero follow the source stream.
type Encoder struct {
	Codec        string            `yaml:"codec" toml:"codec"`
	Bitrate      int64             `yaml:"bitrate" toml:"bitrate"`
	Width        int               `yaml:"width" toml:"width"`
	Height       int               `yaml:"height" toml:"height"`
	PixelFormat  string            `yaml:"pixel_format" toml:"pixel_format"`
	FrameRate    float64           `yaml:"frame_rate" toml:"frame_rate"`
	SampleRate   int               `yaml:"sample_rate" toml:"sample_rate"`
	SampleFormat string            `yaml:"sample_format" toml:"sample_format"`
	Channels     int               `yaml:"channels" toml:"channels"`
	Profile      int               `yaml:"profile" toml:"profile"`
	Level        int               `yaml:"level" toml:"level"`
	Options      map[string]string `yaml:"options" toml:"options"`
}

// Override adjusts a decoded config before defaults and validation, after
// environment variables. Command line flags use it.
type Override = func(*Config)

// Load reads path as YAML or TOML depending on its extension, then applies
// environment overrides and defaults, and validates the result.
func Load(path string, overrides ...Override) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data, filepath.Ext(path), overrides...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data in the format named by ext (".yaml", ".yml" or ".toml").
// Unknown keys are rejected.
func Parse(data []byte, ext string, overrides ...Override) (*Config, error) {
	cfg := &Config{}
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExtension, ext)
	}

	envErr := cfg.applyEnv()
	for _, override := range overrides {
		override(cfg)
	}
	cfg.applyDefaults()
	if err := errors.Join(envErr, cfg.Validate()); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	log := logging.WithComponent("config")

	if v, ok := os.LookupEnv("AVPIPE_LOG_LEVEL"); ok && v != "" {
		log.Debug().Str("key", "AVPIPE_LOG_LEVEL").Str("value", v).Msg("using environment variable")
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv("AVPIPE_METRICS_LISTEN"); ok && v != "" {
		log.Debug().Str("key", "AVPIPE_METRICS_LISTEN").Str("value", v).Msg("using environment variable")
		c.Metrics.Listen = v
	}
	if v, ok := os.LookupEnv("AVPIPE_CONCURRENCY"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: AVPIPE_CONCURRENCY %q is not an integer", ErrInvalid, v)
		}
		log.Debug().Str("key", "AVPIPE_CONCURRENCY").Int("value", n).Msg("using environment variable")
		c.Concurrency = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Concurrency == 0 {
		c.Concurrency = 1
	}
	for i := range c.Jobs {
		for j := range c.Jobs[i].Streams {
			if c.Jobs[i].Streams[j].Select == "" {
				c.Jobs[i].Streams[j].Select = SelectBest
			}
		}
	}
}

// Templates reports whether jobs are watch templates rather than concrete jobs.
func (c *Config) Templates() bool {
	return c.Watch.Dir != ""
}
