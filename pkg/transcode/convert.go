package transcode

import (
	"fmt"

	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/media"
)

// Scaler converts video frames to a fixed geometry and pixel format. The
// engine context is created on the first frame and recreated whenever the
// input geometry changes.
type Scaler struct {
	engine engine.Converting
	dst    engine.VideoFormat
	src    engine.VideoFormat
	ctx    engine.ScaleContext
}

func NewScaler(eng engine.Converting, dst engine.VideoFormat) *Scaler {
	return &Scaler{engine: eng, dst: dst}
}

func (s *Scaler) Target() engine.VideoFormat {
	return s.dst
}

// Process returns a new frame; the caller keeps ownership of frame.
func (s *Scaler) Process(frame *media.Frame) (*media.Frame, error) {
	if frame.IsHardware() {
		return nil, fmt.Errorf("scale: %w", ErrHardwareFrame)
	}

	src := engine.VideoFormat{Width: frame.Width(), Height: frame.Height(), PixelFormat: frame.PixelFormat()}
	if s.ctx == nil || src != s.src {
		if s.ctx != nil {
			s.ctx.Free()
			s.ctx = nil
		}
		ctx, err := s.engine.NewScaler(src, s.dst)
		if err != nil {
			return nil, fmt.Errorf("scale: create context %dx%d -> %dx%d: %w", src.Width, src.Height, s.dst.Width, s.dst.Height, err)
		}
		s.ctx, s.src = ctx, src
	}

	raw, err := s.ctx.Scale(frame.Raw())
	if err != nil {
		return nil, fmt.Errorf("scale: %w", err)
	}
	return media.NewFrame(raw, media.MediaTypeVideo, frame.TimeBase()), nil
}

func (s *Scaler) Close() {
	if s.ctx != nil {
		s.ctx.Free()
		s.ctx = nil
	}
}

// Resampler converts audio frames to a fixed sample format, rate and channel count.
type Resampler struct {
	engine engine.Converting
	dst    engine.AudioFormat
	ctx    engine.ResampleContext
}

func NewResampler(eng engine.Converting, dst engine.AudioFormat) *Resampler {
	return &Resampler{engine: eng, dst: dst}
}

func (r *Resampler) Target() engine.AudioFormat {
	return r.dst
}

func (r *Resampler) Process(frame *media.Frame) (*media.Frame, error) {
	if frame.IsHardware() {
		return nil, fmt.Errorf("resample: %w", ErrHardwareFrame)
	}

	if r.ctx == nil {
		ctx, err := r.engine.NewResampler(r.dst)
		if err != nil {
			return nil, fmt.Errorf("resample: create context: %w", err)
		}
		r.ctx = ctx
	}

	raw, err := r.ctx.Resample(frame.Raw())
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}
	return media.NewFrame(raw, media.MediaTypeAudio, frame.TimeBase()), nil
}

func (r *Resampler) Close() {
	if r.ctx != nil {
		r.ctx.Free()
		r.ctx = nil
	}
}

// DownloadFrame copies a device-memory frame into host memory. The result is a
// new frame; frame itself is left untouched and still owned by the caller.
func DownloadFrame(eng engine.Converting, frame *media.Frame) (*media.Frame, error) {
	if !frame.IsHardware() {
		return nil, fmt.Errorf("download: frame already in host memory")
	}
	raw, err := eng.TransferToHost(frame.Raw())
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	return media.NewFrame(raw, frame.Kind(), frame.TimeBase()), nil
}
