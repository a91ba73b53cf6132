package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Validate reports every problem in c at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s: %s", ErrInvalid, field, fmt.Sprintf(format, args...)))
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		add("log.level", "unknown level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "console":
	default:
		add("log.format", "must be json or console, got %q", c.Log.Format)
	}
	if c.Concurrency < 1 {
		add("concurrency", "must be at least 1, got %d", c.Concurrency)
	}
	for i, d := range c.Hardware.Devices {
		if strings.TrimSpace(d) == "" {
			add(fmt.Sprintf("hardware.devices[%d]", i), "empty device name")
		}
	}

	if len(c.Jobs) == 0 {
		add("jobs", "at least one job is required")
	}
	names := map[string]int{}
	for i, job := range c.Jobs {
		field := fmt.Sprintf("jobs[%d]", i)
		if job.Name == "" {
			add(field+".name", "required")
		} else if prev, ok := names[job.Name]; ok {
			add(field+".name", "%q already used by jobs[%d]", job.Name, prev)
		} else {
			names[job.Name] = i
		}
		errs = append(errs, job.validate(field, c.Templates())...)
	}
	return errors.Join(errs...)
}

func (j Job) validate(field string, template bool) []error {
	var errs []error
	add := func(sub, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s.%s: %s", ErrInvalid, field, sub, fmt.Sprintf(format, args...)))
	}

	if j.Input == "" && !template {
		add("input", "required")
	}
	if j.Output == "" {
		add("output", "required")
	}
	if j.Atomic && (j.Output == "-" || strings.Contains(j.Output, "://")) {
		add("atomic", "needs a local file output, got %q", j.Output)
	}
	if len(j.Streams) == 0 {
		add("streams", "at least one stream rule is required")
	}

	kinds := map[string]bool{}
	for i, s := range j.Streams {
		sub := fmt.Sprintf("streams[%d]", i)
		switch s.Kind {
		case "video", "audio", "subtitle":
		default:
			add(sub+".kind", "must be video, audio or subtitle, got %q", s.Kind)
		}
		if kinds[s.Kind] {
			add(sub+".kind", "duplicate rule for %s", s.Kind)
		}
		kinds[s.Kind] = true

		switch s.Select {
		case SelectBest, SelectAll:
		default:
			add(sub+".select", "must be best or all, got %q", s.Select)
		}

		switch s.Mode {
		case ModeCopy, ModeDrop:
			if s.Encoder != nil {
				add(sub+".encoder", "only allowed with mode transcode")
			}
		case ModeTranscode:
			if s.Kind == "subtitle" {
				add(sub+".mode", "subtitles can only be copied or dropped")
			}
			if s.Encoder == nil || s.Encoder.Codec == "" {
				add(sub+".encoder.codec", "required for mode transcode")
			} else {
				errs = append(errs, s.Encoder.validate(field+"."+sub+".encoder")...)
			}
		default:
			add(sub+".mode", "must be copy, transcode or drop, got %q", s.Mode)
		}
		if s.Mode != ModeTranscode && (len(s.DecoderOptions) > 0 || s.HardwareDownload) {
			add(sub, "decoder settings need mode transcode")
		}
	}
	return errs
}

func (e Encoder) validate(field string) []error {
	var errs []error
	negative := func(name string, v int64) {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%w: %s.%s: must not be negative", ErrInvalid, field, name))
		}
	}
	negative("bitrate", e.Bitrate)
	negative("width", int64(e.Width))
	negative("height", int64(e.Height))
	negative("sample_rate", int64(e.SampleRate))
	negative("channels", int64(e.Channels))
	if e.FrameRate < 0 {
		errs = append(errs, fmt.Errorf("%w: %s.frame_rate: must not be negative", ErrInvalid, field))
	}
	if (e.Width == 0) != (e.Height == 0) {
		errs = append(errs, fmt.Errorf("%w: %s: width and height must be set together", ErrInvalid, field))
	}
	for k := range e.Options {
		if k == "" {
			errs = append(errs, fmt.Errorf("%w: %s.options: empty key", ErrInvalid, field))
		}
	}
	return errs
}
