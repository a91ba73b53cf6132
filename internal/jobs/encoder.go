package jobs

import (
	"fmt"

	"github.com/harshabose/avpipe/internal/config"
	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/media"
	"github.com/harshabose/avpipe/pkg/transcode"
)

// encoderOptions resolves settings against the source stream. Unset
// geometry, rates and formats follow the source.
func encoderOptions(eng engine.Formats, stream media.StreamDescriptor, cfg config.Encoder, globalHeader bool) ([]transcode.EncoderOption, error) {
	var options []transcode.EncoderOption

	switch stream.Kind {
	case media.MediaTypeVideo:
		width, height := cfg.Width, cfg.Height
		if width == 0 || height == 0 {
			width, height = stream.Width, stream.Height
		}
		options = append(options, transcode.WithWidth(width), transcode.WithHeight(height))

		format := stream.Format
		if cfg.PixelFormat != "" {
			f, err := eng.PixelFormatByName(cfg.PixelFormat)
			if err != nil {
				return nil, err
			}
			format = f
		}
		options = append(options, transcode.WithPixelFormat(format))

		fps := cfg.FrameRate
		if fps == 0 {
			fps = stream.FPS
		}
		if fps > 0 {
			options = append(options, transcode.WithFrameRate(fps))
		}

	case media.MediaTypeAudio:
		rate := cfg.SampleRate
		if rate == 0 {
			rate = stream.SampleRate
		}
		channels := cfg.Channels
		if channels == 0 {
			channels = stream.Channels
		}
		options = append(options, transcode.WithSampleRate(rate), transcode.WithChannels(channels))

		format := stream.Format
		if cfg.SampleFormat != "" {
			f, err := eng.SampleFormatByName(cfg.SampleFormat)
			if err != nil {
				return nil, err
			}
			format = f
		}
		options = append(options, transcode.WithSampleFormat(format))

	default:
		return nil, fmt.Errorf("%w: %s", transcode.ErrUnsupportedMedia, stream.Kind)
	}

	if cfg.Profile != 0 {
		options = append(options, transcode.WithProfile(cfg.Profile))
	}
	if cfg.Level != 0 {
		options = append(options, transcode.WithLevel(cfg.Level))
	}
	if globalHeader {
		options = append(options, transcode.WithGlobalHeader())
	}
	return options, nil
}

// encoderBuilder carries the resolved options, the codec private settings and
// the target bitrate. Empty setting values are skipped.
func encoderBuilder(eng engine.Formats, stream media.StreamDescriptor, cfg config.Encoder, globalHeader bool) (*transcode.EncoderBuilder, error) {
	options, err := encoderOptions(eng, stream, cfg, globalHeader)
	if err != nil {
		return nil, err
	}

	var settings transcode.CodecSettings
	if len(cfg.Options) > 0 {
		settings = transcode.CodecSettings(cfg.Options)
	}
	b := transcode.NewEncoderBuilderByName(cfg.Codec, settings, options...)
	if cfg.Bitrate > 0 {
		if err := b.AdaptBitrate(cfg.Bitrate); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func newEncoder(eng engine.Engine, stream media.StreamDescriptor, cfg config.Encoder, globalHeader bool, extra ...transcode.EncoderOption) (*transcode.Encoder, error) {
	b, err := encoderBuilder(eng, stream, cfg, globalHeader)
	if err != nil {
		return nil, fmt.Errorf("encoder %s for stream #%d: %w", cfg.Codec, stream.Index, err)
	}
	enc, err := b.Build(eng, extra...)
	if err != nil {
		return nil, fmt.Errorf("encoder %s for stream #%d: %w", cfg.Codec, stream.Index, err)
	}
	return enc, nil
}
