//go:build cgo_enabled

// Package ffmpeg implements engine.Engine on top of go-astiav.
package ffmpeg

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/asticode/go-astiav"
	"github.com/rs/zerolog"

	"github.com/harshabose/avpipe/internal/logging"
	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/media"
)

var (
	ErrorAllocateFormatContext = errors.New("error allocating format context")
	ErrorAllocateCodecContext  = errors.New("error allocating codec context")
	ErrorGeneralAllocate       = errors.New("error allocating general object")
	ErrorNoCodecFound          = errors.New("no codec found")
	ErrorUnknownFormat         = errors.New("unknown format")
	ErrorUnconsumedOption      = errors.New("option not found")
	ErrorChannelLayout         = errors.New("no channel layout for channel count")
	ErrorForeignObject         = errors.New("object was not allocated by this engine")
)

var registerDevices sync.Once

// hardwareNames are probed at startup; only types the linked FFmpeg knows are reported.
var hardwareNames = []string{
	"cuda", "vaapi", "vdpau", "qsv", "videotoolbox", "d3d11va", "dxva2",
	"drm", "opencl", "mediacodec", "vulkan",
}

type Engine struct {
	hardware []string
	log      zerolog.Logger
}

type Option = func(*Engine) error

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) error {
		e.log = logger
		return nil
	}
}

// WithLogRedirect routes FFmpeg's own log output into the engine logger.
func WithLogRedirect() Option {
	return func(e *Engine) error {
		RedirectLogs(e.log)
		return nil
	}
}

func New(options ...Option) (*Engine, error) {
	registerDevices.Do(astiav.RegisterAllDevices)

	e := &Engine{log: logging.WithComponent("ffmpeg")}
	for _, option := range options {
		if err := option(e); err != nil {
			return nil, err
		}
	}

	for _, name := range hardwareNames {
		if astiav.FindHardwareDeviceTypeByName(name) != astiav.HardwareDeviceTypeNone {
			e.hardware = append(e.hardware, name)
		}
	}
	sort.Strings(e.hardware)
	return e, nil
}

// mapError translates astiav loop signals into engine sentinels. Every other
// error keeps FFmpeg's own message.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, astiav.ErrEagain):
		return engine.ErrTryAgain
	case errors.Is(err, astiav.ErrEof):
		return engine.ErrEndOfStream
	default:
		return err
	}
}

func toRational(r astiav.Rational) media.Rational {
	return media.NewRational(r.Num(), r.Den())
}

func fromRational(r media.Rational) astiav.Rational {
	return astiav.NewRational(r.Num, r.Den)
}

func toMediaType(t astiav.MediaType) media.MediaType {
	switch t {
	case astiav.MediaTypeVideo:
		return media.MediaTypeVideo
	case astiav.MediaTypeAudio:
		return media.MediaTypeAudio
	case astiav.MediaTypeSubtitle:
		return media.MediaTypeSubtitle
	default:
		return media.MediaTypeUnknown
	}
}

// newDictionary copies options into an astiav dictionary. The caller frees it.
func newDictionary(options map[string]string) (*astiav.Dictionary, error) {
	d := astiav.NewDictionary()
	if d == nil {
		return nil, fmt.Errorf("error allocating astiav.Dictionary (%w)", ErrorGeneralAllocate)
	}
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := d.Set(k, options[k], 0); err != nil {
			d.Free()
			return nil, fmt.Errorf("set option %s: %w", k, err)
		}
	}
	return d, nil
}

// unconsumed reports the first option FFmpeg left in d after an open call.
func unconsumed(d *astiav.Dictionary) error {
	entry := d.Get("", nil, astiav.NewDictionaryFlags(astiav.DictionaryFlagIgnoreSuffix))
	if entry == nil {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrorUnconsumedOption, entry.Key())
}

func (e *Engine) CodecName(codecID int) string {
	return astiav.CodecID(codecID).Name()
}

func (e *Engine) HardwareDeviceTypes() []string {
	return append([]string(nil), e.hardware...)
}

func (e *Engine) PixelFormatByName(name string) (int, error) {
	f := astiav.FindPixelFormatByName(name)
	if f == astiav.PixelFormatNone {
		return -1, fmt.Errorf("%w: pixel format %q", ErrorUnknownFormat, name)
	}
	return int(f), nil
}

var sampleFormats = []astiav.SampleFormat{
	astiav.SampleFormatU8, astiav.SampleFormatS16, astiav.SampleFormatS32, astiav.SampleFormatS64,
	astiav.SampleFormatFlt, astiav.SampleFormatDbl,
	astiav.SampleFormatU8P, astiav.SampleFormatS16P, astiav.SampleFormatS32P, astiav.SampleFormatS64P,
	astiav.SampleFormatFltp, astiav.SampleFormatDblp,
}

// SampleFormatByName matches av_get_sample_fmt_name output, e.g. "s16" or "fltp".
func (e *Engine) SampleFormatByName(name string) (int, error) {
	for _, f := range sampleFormats {
		if f.Name() == name {
			return int(f), nil
		}
	}
	return -1, fmt.Errorf("%w: sample format %q", ErrorUnknownFormat, name)
}

func channelLayout(channels int) (astiav.ChannelLayout, error) {
	switch channels {
	case 1:
		return astiav.ChannelLayoutMono, nil
	case 2:
		return astiav.ChannelLayoutStereo, nil
	case 6:
		return astiav.ChannelLayout5Point1, nil
	case 8:
		return astiav.ChannelLayout7Point1, nil
	default:
		return astiav.ChannelLayout{}, fmt.Errorf("%w: %d", ErrorChannelLayout, channels)
	}
}

var _ engine.Engine = (*Engine)(nil)
