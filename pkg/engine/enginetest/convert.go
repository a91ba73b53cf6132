package enginetest

import (
	"fmt"
	"sync"

	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/media"
)

type scaleContext struct {
	eng      *Engine
	src, dst engine.VideoFormat
	once     sync.Once
}

func (e *Engine) NewScaler(src, dst engine.VideoFormat) (engine.ScaleContext, error) {
	if dst.Width <= 0 || dst.Height <= 0 {
		return nil, fmt.Errorf("%w: scaler target %dx%d", ErrInvalidData, dst.Width, dst.Height)
	}
	e.alloc("scaler")
	e.event("new-scaler %dx%d->%dx%d", src.Width, src.Height, dst.Width, dst.Height)
	return &scaleContext{eng: e, src: src, dst: dst}, nil
}

func (s *scaleContext) Scale(src media.RawFrame) (media.RawFrame, error) {
	f, ok := src.(*Frame)
	if !ok {
		return nil, fmt.Errorf("%w: foreign frame", ErrState)
	}
	if f.hardware {
		return nil, fmt.Errorf("%w: hardware frame", ErrInvalidData)
	}
	if f.width != s.src.Width || f.height != s.src.Height {
		return nil, fmt.Errorf("%w: frame geometry changed", ErrInvalidData)
	}
	return s.eng.newFrame(Frame{
		pts:          f.pts,
		width:        s.dst.Width,
		height:       s.dst.Height,
		pixelFormat:  s.dst.PixelFormat,
		sampleFormat: -1,
	}), nil
}

func (s *scaleContext) Free() {
	s.once.Do(func() { s.eng.free("scaler") })
}

type resampleContext struct {
	eng  *Engine
	dst  engine.AudioFormat
	once sync.Once
}

func (e *Engine) NewResampler(dst engine.AudioFormat) (engine.ResampleContext, error) {
	if dst.SampleRate <= 0 || dst.Channels <= 0 {
		return nil, fmt.Errorf("%w: resampler target", ErrInvalidData)
	}
	e.alloc("resampler")
	e.event("new-resampler %dHz %dch", dst.SampleRate, dst.Channels)
	return &resampleContext{eng: e, dst: dst}, nil
}

func (r *resampleContext) Resample(src media.RawFrame) (media.RawFrame, error) {
	f, ok := src.(*Frame)
	if !ok {
		return nil, fmt.Errorf("%w: foreign frame", ErrState)
	}
	if f.hardware {
		return nil, fmt.Errorf("%w: hardware frame", ErrInvalidData)
	}
	n := f.nbSamples
	if f.sampleRate > 0 && f.sampleRate != r.dst.SampleRate {
		n = f.nbSamples * r.dst.SampleRate / f.sampleRate
	}
	return r.eng.newFrame(Frame{
		pts:          f.pts,
		pixelFormat:  -1,
		sampleFormat: r.dst.SampleFormat,
		sampleRate:   r.dst.SampleRate,
		channels:     r.dst.Channels,
		nbSamples:    n,
	}), nil
}

func (r *resampleContext) Free() {
	r.once.Do(func() { r.eng.free("resampler") })
}

func (e *Engine) TransferToHost(src media.RawFrame) (media.RawFrame, error) {
	f, ok := src.(*Frame)
	if !ok {
		return nil, fmt.Errorf("%w: foreign frame", ErrState)
	}
	if !f.hardware {
		return nil, fmt.Errorf("%w: not a hardware frame", ErrInvalidData)
	}
	c := *f
	c.freed = false
	c.hardware = false
	c.pixelFormat = PixelFormatNV12
	return e.newFrame(c), nil
}

type sampleQueue struct {
	eng    *Engine
	format engine.AudioFormat
	size   int
	once   sync.Once
}

func (e *Engine) NewSampleQueue(format engine.AudioFormat) (engine.SampleQueue, error) {
	if format.Channels <= 0 {
		return nil, fmt.Errorf("%w: fifo channels", ErrInvalidData)
	}
	e.alloc("fifo")
	return &sampleQueue{eng: e, format: format}, nil
}

func (q *sampleQueue) Write(frame media.RawFrame) error {
	if frame.SampleFormat() != q.format.SampleFormat || frame.Channels() != q.format.Channels {
		return fmt.Errorf("%w: fifo format", ErrInvalidData)
	}
	q.size += frame.NbSamples()
	return nil
}

func (q *sampleQueue) Size() int {
	return q.size
}

func (q *sampleQueue) Read(n int) (media.RawFrame, int, error) {
	got := n
	if got > q.size {
		got = q.size
	}
	if q.eng.ShortReads && got > 0 {
		got--
	}
	q.size -= got
	f := q.eng.newFrame(Frame{
		pixelFormat:  -1,
		sampleFormat: q.format.SampleFormat,
		sampleRate:   q.format.SampleRate,
		channels:     q.format.Channels,
		nbSamples:    got,
	})
	return f, got, nil
}

func (q *sampleQueue) Free() {
	q.once.Do(func() { q.eng.free("fifo") })
}
