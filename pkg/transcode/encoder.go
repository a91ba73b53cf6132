package transcode

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/harshabose/avpipe/internal/logging"
	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/media"
)

// Encoder is a configured, opened encode state machine.
type Encoder struct {
	codec  engine.EncoderCodec
	ctx    engine.EncodeContext
	config engine.EncoderConfig

	streamIndex int
	log         zerolog.Logger
	once        sync.Once
}

func CreateEncoder(eng engine.Encoding, codecID int, options ...EncoderOption) (*Encoder, error) {
	codec, err := eng.FindEncoder(codecID)
	if err != nil || codec == nil {
		return nil, fmt.Errorf("%w: encoder for codec id %d", ErrCodecNotFound, codecID)
	}
	return newEncoder(codec, options...)
}

func CreateEncoderByName(eng engine.Encoding, name string, options ...EncoderOption) (*Encoder, error) {
	codec, err := eng.FindEncoderByName(name)
	if err != nil || codec == nil {
		return nil, fmt.Errorf("%w: %s", ErrCodecNotFound, name)
	}
	return newEncoder(codec, options...)
}

func newEncoder(codec engine.EncoderCodec, options ...EncoderOption) (*Encoder, error) {
	e := &Encoder{
		codec:       codec,
		streamIndex: -1,
		log:         logging.WithComponent("encoder"),
		config: engine.EncoderConfig{
			Kind:    codec.Kind(),
			Options: map[string]string{},
		},
	}

	for _, option := range options {
		if err := option(e); err != nil {
			return nil, err
		}
	}

	if e.config.TimeBase.IsZero() {
		e.config.TimeBase = media.NewRational(1, 1)
	}

	ctx, err := codec.NewContext(e.config)
	if err != nil {
		return nil, fmt.Errorf("open encoder %s: %w", codec.Name(), err)
	}
	e.ctx = ctx

	cfg := ctx.Config()
	e.log.Debug().Str("codec", codec.Name()).Str("kind", cfg.Kind.String()).Int64("bitrate", cfg.BitRate).
		Int("frame_size", ctx.FrameSize()).Msg("encoder opened")
	return e, nil
}

func (e *Encoder) Name() string {
	return e.codec.Name()
}

func (e *Encoder) Kind() media.MediaType {
	return e.codec.Kind()
}

// Config is the effective configuration reported by the opened encoder.
func (e *Encoder) Config() engine.EncoderConfig {
	return e.ctx.Config()
}

func (e *Encoder) TimeBase() media.Rational {
	return e.ctx.TimeBase()
}

// FrameSize is the fixed audio frame size, 0 when any size is accepted.
func (e *Encoder) FrameSize() int {
	return e.ctx.FrameSize()
}

func (e *Encoder) Context() engine.EncodeContext {
	return e.ctx
}

// SetStreamIndex makes every produced packet carry index.
func (e *Encoder) SetStreamIndex(index int) {
	e.streamIndex = index
}

func (e *Encoder) StreamIndex() (int, bool) {
	return e.streamIndex, e.streamIndex >= 0
}

// Encode sends frame and returns every packet that became available. The
// engine sees the pts in the encoder timebase; frame is handed back unchanged
// and the caller keeps ownership. A nil frame flushes the encoder.
func (e *Encoder) Encode(frame *media.Frame) ([]*media.Packet, error) {
	if frame != nil {
		tb := e.TimeBase()
		if ftb := frame.TimeBase(); !ftb.IsZero() && ftb != tb {
			pts := frame.Pts()
			frame.SetPts(media.RescaleTS(pts, ftb, tb))
			defer frame.SetPts(pts)
		}
	}

	var out []*media.Packet
	for {
		err := e.ctx.SendFrame(frame)
		switch {
		case err == nil:
			return e.receive(out)
		case frame == nil && errors.Is(err, engine.ErrEndOfStream):
			e.log.Trace().Str("codec", e.Name()).Int("packets", len(out)).Msg("encoder drained")
			return out, nil
		case errors.Is(err, engine.ErrTryAgain):
			before := len(out)
			if out, err = e.receive(out); err != nil {
				return nil, err
			}
			if len(out) == before {
				e.log.Warn().Str("codec", e.Name()).Msg("encoder refused input without producing output")
				releasePackets(out)
				return nil, fmt.Errorf("encode %s: no progress: %w", e.Name(), engine.ErrTryAgain)
			}
		default:
			releasePackets(out)
			return nil, fmt.Errorf("encode %s: %w", e.Name(), err)
		}
	}
}

func (e *Encoder) Flush() ([]*media.Packet, error) {
	return e.Encode(nil)
}

func (e *Encoder) receive(out []*media.Packet) ([]*media.Packet, error) {
	for {
		raw, err := e.ctx.ReceivePacket()
		if err != nil {
			if engine.IsTransient(err) {
				return out, nil
			}
			releasePackets(out)
			return nil, fmt.Errorf("receive packet %s: %w", e.Name(), err)
		}

		pkt := media.NewPacket(raw, e.TimeBase())
		if e.Kind() == media.MediaTypeVideo && pkt.Duration() == 0 {
			pkt.SetDuration(1)
		}
		if e.streamIndex >= 0 {
			pkt.SetStreamIndex(e.streamIndex)
		}
		out = append(out, pkt)
	}
}

// Reset returns a flushed encoder to its freshly opened state.
func (e *Encoder) Reset() error {
	if err := e.ctx.Reset(); err != nil {
		return fmt.Errorf("reset encoder %s: %w", e.Name(), err)
	}
	e.log.Debug().Str("codec", e.Name()).Msg("encoder reset")
	return nil
}

func (e *Encoder) Close() {
	e.once.Do(func() {
		if e.ctx != nil {
			e.ctx.Free()
		}
	})
}

// ### IMPLEMENTS CanSetEncoderCodecSettings

func (e *Encoder) SetEncoderCodecSettings(settings codecSettings) error {
	return settings.ForEach(func(key, value string) error {
		if value == "" {
			return nil
		}
		if key == "" {
			return fmt.Errorf("%w: empty key", ErrInvalidOption)
		}
		e.config.Options[key] = value
		return nil
	})
}

func releasePackets(packets []*media.Packet) {
	for _, p := range packets {
		p.Release()
	}
}
