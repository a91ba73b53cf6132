package transcode

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/harshabose/avpipe/pkg/media"
)

type EncoderOption = func(*Encoder) error

func (e *Encoder) isVideo() bool {
	return e.codec.Kind() == media.MediaTypeVideo
}

func (e *Encoder) isAudio() bool {
	return e.codec.Kind() == media.MediaTypeAudio
}

func requireVideo(e *Encoder, setting string) error {
	if !e.isVideo() {
		return fmt.Errorf("%w: cannot set %s on %s encoder %s", ErrInvalidEncoderConfig, setting, e.codec.Kind(), e.codec.Name())
	}
	return nil
}

func requireAudio(e *Encoder, setting string) error {
	if !e.isAudio() {
		return fmt.Errorf("%w: cannot set %s on %s encoder %s", ErrInvalidEncoderConfig, setting, e.codec.Kind(), e.codec.Name())
	}
	return nil
}

func WithWidth(width int) EncoderOption {
	return func(e *Encoder) error {
		if err := requireVideo(e, "width"); err != nil {
			return err
		}
		e.config.Width = width
		return nil
	}
}

func WithHeight(height int) EncoderOption {
	return func(e *Encoder) error {
		if err := requireVideo(e, "height"); err != nil {
			return err
		}
		e.config.Height = height
		return nil
	}
}

func WithPixelFormat(format int) EncoderOption {
	return func(e *Encoder) error {
		if err := requireVideo(e, "pixel format"); err != nil {
			return err
		}
		e.config.PixelFormat = format
		return nil
	}
}

// WithFrameRate also sets the encoder timebase to 1/fps.
func WithFrameRate(fps float64) EncoderOption {
	return func(e *Encoder) error {
		if err := requireVideo(e, "frame rate"); err != nil {
			return err
		}
		if e.config.SampleRate > 0 {
			return fmt.Errorf("%w: frame rate and sample rate are exclusive", ErrInvalidEncoderConfig)
		}
		r := media.FloatToRational(fps, 90000)
		if r.IsZero() || r.Num < 0 {
			return fmt.Errorf("%w: frame rate %v", ErrInvalidEncoderConfig, fps)
		}
		e.config.FrameRate = r
		e.config.TimeBase = r.Invert()
		return nil
	}
}

// WithSampleRate also sets the encoder timebase to 1/rate.
func WithSampleRate(rate int) EncoderOption {
	return func(e *Encoder) error {
		if err := requireAudio(e, "sample rate"); err != nil {
			return err
		}
		if !e.config.FrameRate.IsZero() {
			return fmt.Errorf("%w: frame rate and sample rate are exclusive", ErrInvalidEncoderConfig)
		}
		if rate <= 0 {
			return fmt.Errorf("%w: sample rate %d", ErrInvalidEncoderConfig, rate)
		}
		e.config.SampleRate = rate
		e.config.TimeBase = media.NewRational(1, rate)
		return nil
	}
}

func WithSampleFormat(format int) EncoderOption {
	return func(e *Encoder) error {
		if err := requireAudio(e, "sample format"); err != nil {
			return err
		}
		e.config.SampleFormat = format
		return nil
	}
}

func WithChannels(channels int) EncoderOption {
	return func(e *Encoder) error {
		if err := requireAudio(e, "channels"); err != nil {
			return err
		}
		if channels <= 0 {
			return fmt.Errorf("%w: %d channels", ErrInvalidEncoderConfig, channels)
		}
		e.config.Channels = channels
		return nil
	}
}

func WithTimeBase(tb media.Rational) EncoderOption {
	return func(e *Encoder) error {
		if tb.IsZero() {
			return fmt.Errorf("%w: timebase %s", ErrInvalidEncoderConfig, tb)
		}
		e.config.TimeBase = tb
		return nil
	}
}

func WithBitrate(bps int64) EncoderOption {
	return func(e *Encoder) error {
		e.config.BitRate = bps
		return nil
	}
}

func WithProfile(profile int) EncoderOption {
	return func(e *Encoder) error {
		e.config.Profile = profile
		return nil
	}
}

func WithLevel(level int) EncoderOption {
	return func(e *Encoder) error {
		e.config.Level = level
		return nil
	}
}

// WithGlobalHeader places codec headers in extradata, as containers like mp4 require.
func WithGlobalHeader() EncoderOption {
	return func(e *Encoder) error {
		e.config.GlobalHeader = true
		return nil
	}
}

func WithCodecOption(key, value string) EncoderOption {
	return func(e *Encoder) error {
		if key == "" {
			return fmt.Errorf("%w: empty key", ErrInvalidOption)
		}
		e.config.Options[key] = value
		return nil
	}
}

func WithCodecSettings(settings codecSettings) EncoderOption {
	return func(e *Encoder) error {
		s, ok := any(e).(CanSetEncoderCodecSettings)
		if !ok {
			return ErrInterfaceMismatch
		}
		return s.SetEncoderCodecSettings(settings)
	}
}

func WithEncoderLogger(logger zerolog.Logger) EncoderOption {
	return func(e *Encoder) error {
		e.log = logger
		return nil
	}
}
