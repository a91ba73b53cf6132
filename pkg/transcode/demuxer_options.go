package transcode

import (
	"fmt"

	"github.com/rs/zerolog"
)

type DemuxerOption = func(*Demuxer) error

// WithInputFormat forces the demuxer, e.g. "image2pipe" for piped stills.
func WithInputFormat(format string) DemuxerOption {
	return func(d *Demuxer) error {
		d.input.Format = format
		return nil
	}
}

func WithInputOption(key, value string) DemuxerOption {
	return func(d *Demuxer) error {
		if key == "" {
			return fmt.Errorf("%w: empty key", ErrInvalidOption)
		}
		if d.input.Options == nil {
			d.input.Options = map[string]string{}
		}
		d.input.Options[key] = value
		return nil
	}
}

// WithURLHint names a reader-backed input so the engine can guess its format.
func WithURLHint(url string) DemuxerOption {
	return func(d *Demuxer) error {
		d.input.URL = url
		return nil
	}
}

func WithDemuxerBufferSize(size int) DemuxerOption {
	return func(d *Demuxer) error {
		if size <= 0 {
			return fmt.Errorf("%w: buffer size %d", ErrInvalidOption, size)
		}
		d.input.BufferSize = size
		return nil
	}
}

func WithDemuxerLogger(logger zerolog.Logger) DemuxerOption {
	return func(d *Demuxer) error {
		d.log = logger
		return nil
	}
}

// WithNoBuffering lowers probing latency for live inputs.
func WithNoBuffering() DemuxerOption {
	return func(d *Demuxer) error {
		if err := WithInputOption("fflags", "nobuffer")(d); err != nil {
			return err
		}
		return WithInputOption("flags", "low_delay")(d)
	}
}
