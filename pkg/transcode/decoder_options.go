package transcode

import (
	"github.com/rs/zerolog"
)

type DecoderOption = func(*Decoder) error

func WithHardwareDecoder(deviceType string) DecoderOption {
	return func(d *Decoder) error {
		d.EnableHardware(deviceType)
		return nil
	}
}

func WithAnyHardwareDecoder() DecoderOption {
	return func(d *Decoder) error {
		d.EnableAnyHardware()
		return nil
	}
}

func WithDecoderLogger(logger zerolog.Logger) DecoderOption {
	return func(d *Decoder) error {
		d.log = logger
		return nil
	}
}
