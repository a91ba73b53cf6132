package transcode

import "github.com/rs/zerolog"

type MuxerOption = func(*Muxer) error

func WithOutputFormat(format string) MuxerOption {
	return func(m *Muxer) error {
		m.output.Format = format
		return nil
	}
}

func WithMuxerBufferSize(size int) MuxerOption {
	return func(m *Muxer) error {
		if size <= 0 {
			return ErrInvalidOption
		}
		m.output.BufferSize = size
		return nil
	}
}

func WithMuxerLogger(logger zerolog.Logger) MuxerOption {
	return func(m *Muxer) error {
		m.log = logger
		return nil
	}
}
