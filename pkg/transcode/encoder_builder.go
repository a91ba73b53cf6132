package transcode

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harshabose/avpipe/pkg/engine"
)

// CodecSettings holds codec private options, e.g. {"preset": "veryfast"}.
type CodecSettings map[string]string

func (s CodecSettings) ForEach(fn func(string, string) error) error {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(k, s[k]); err != nil {
			return err
		}
	}
	return nil
}

// EncoderBuilder keeps everything needed to open identical encoders, one per
// Transcoder, since encoders are never shared between runs.
type EncoderBuilder struct {
	codecID   int
	codecName string
	options   []EncoderOption
	settings  codecSettings
	bitrate   int64
}

func NewEncoderBuilder(codecID int, settings codecSettings, options ...EncoderOption) *EncoderBuilder {
	return &EncoderBuilder{codecID: codecID, settings: settings, options: options}
}

func NewEncoderBuilderByName(name string, settings codecSettings, options ...EncoderOption) *EncoderBuilder {
	return &EncoderBuilder{codecName: name, settings: settings, options: options}
}

func (b *EncoderBuilder) String() string {
	if b.codecName != "" {
		return b.codecName
	}
	return fmt.Sprintf("codec-%d", b.codecID)
}

// ### IMPLEMENTS CanAdaptBitrate

func (b *EncoderBuilder) AdaptBitrate(bps int64) error {
	if bps <= 0 {
		return fmt.Errorf("%w: bitrate %d", ErrInvalidEncoderConfig, bps)
	}
	b.bitrate = bps
	return nil
}

// ### IMPLEMENTS CanGetCurrentBitrate

func (b *EncoderBuilder) GetCurrentBitrate() (int64, error) {
	return b.bitrate, nil
}

func (b *EncoderBuilder) Build(eng engine.Encoding, extra ...EncoderOption) (*Encoder, error) {
	options := append([]EncoderOption{}, b.options...)
	if b.settings != nil {
		options = append(options, WithCodecSettings(b.settings))
	}
	if b.bitrate > 0 {
		options = append(options, WithBitrate(b.bitrate))
	}
	options = append(options, extra...)

	if b.codecName != "" {
		return CreateEncoderByName(eng, strings.TrimSpace(b.codecName), options...)
	}
	return CreateEncoder(eng, b.codecID, options...)
}
