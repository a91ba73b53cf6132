package transcode

import (
	"github.com/rs/zerolog"
)

type TranscoderOption = func(*Transcoder) error

func WithTranscoderLogger(logger zerolog.Logger) TranscoderOption {
	return func(t *Transcoder) error {
		t.log = logger
		return nil
	}
}

// WithHardwareDecoding enables the listed accelerator types for every
// transcoded stream. Streams fall back to software when none can be used.
func WithHardwareDecoding(deviceTypes ...string) TranscoderOption {
	return func(t *Transcoder) error {
		if len(deviceTypes) == 0 {
			return ErrInvalidOption
		}
		for _, deviceType := range deviceTypes {
			t.decoderOptions = append(t.decoderOptions, WithHardwareDecoder(deviceType))
		}
		return nil
	}
}

func WithAnyHardwareDecoding() TranscoderOption {
	return func(t *Transcoder) error {
		t.decoderOptions = append(t.decoderOptions, WithAnyHardwareDecoder())
		return nil
	}
}

func WithObserver(observer Observer) TranscoderOption {
	return func(t *Transcoder) error {
		if observer == nil {
			return ErrInterfaceMismatch
		}
		t.observer = observer
		return nil
	}
}

type RouteOption = func(*transcodeRoute) error

// WithDecoderOptions passes codec private options to the stream's decoder.
func WithDecoderOptions(options map[string]string) RouteOption {
	return func(r *transcodeRoute) error {
		if err := validateOptions(options); err != nil {
			return err
		}
		r.decoderOptions = cloneOptions(options)
		return nil
	}
}

// WithHardwareDownload copies hardware decoded frames to host memory before
// any conversion stage.
func WithHardwareDownload() RouteOption {
	return func(r *transcodeRoute) error {
		r.download = true
		return nil
	}
}
