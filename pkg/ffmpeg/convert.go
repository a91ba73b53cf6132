//go:build cgo_enabled

package ffmpeg

import (
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/media"
)

type scaleContext struct {
	c   *astiav.SoftwareScaleContext
	dst engine.VideoFormat
}

func (e *Engine) NewScaler(src, dst engine.VideoFormat) (engine.ScaleContext, error) {
	c, err := astiav.CreateSoftwareScaleContext(
		src.Width, src.Height, astiav.PixelFormat(src.PixelFormat),
		dst.Width, dst.Height, astiav.PixelFormat(dst.PixelFormat),
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
	)
	if err != nil {
		return nil, err
	}
	return &scaleContext{c: c, dst: dst}, nil
}

func (s *scaleContext) Scale(src media.RawFrame) (media.RawFrame, error) {
	in, err := asFrame(src)
	if err != nil {
		return nil, err
	}

	out := astiav.AllocFrame()
	if out == nil {
		return nil, ErrorGeneralAllocate
	}
	out.SetWidth(s.dst.Width)
	out.SetHeight(s.dst.Height)
	out.SetPixelFormat(astiav.PixelFormat(s.dst.PixelFormat))
	if err := s.c.ScaleFrame(in, out); err != nil {
		out.Free()
		return nil, err
	}
	out.SetPts(in.Pts())
	return &frame{f: out}, nil
}

func (s *scaleContext) Free() {
	s.c.Free()
}

type resampleContext struct {
	c      *astiav.SoftwareResampleContext
	dst    engine.AudioFormat
	layout astiav.ChannelLayout
}

func (e *Engine) NewResampler(dst engine.AudioFormat) (engine.ResampleContext, error) {
	layout, err := channelLayout(dst.Channels)
	if err != nil {
		return nil, err
	}
	c := astiav.AllocSoftwareResampleContext()
	if c == nil {
		return nil, ErrorGeneralAllocate
	}
	return &resampleContext{c: c, dst: dst, layout: layout}, nil
}

// Resample may return fewer samples than src holds; the remainder stays
// buffered in the context and comes out with a later frame.
func (r *resampleContext) Resample(src media.RawFrame) (media.RawFrame, error) {
	in, err := asFrame(src)
	if err != nil {
		return nil, err
	}

	out := astiav.AllocFrame()
	if out == nil {
		return nil, ErrorGeneralAllocate
	}
	out.SetSampleFormat(astiav.SampleFormat(r.dst.SampleFormat))
	out.SetSampleRate(r.dst.SampleRate)
	out.SetChannelLayout(r.layout)
	if err := r.c.ConvertFrame(in, out); err != nil {
		out.Free()
		return nil, err
	}
	out.SetPts(in.Pts())
	return &frame{f: out}, nil
}

func (r *resampleContext) Free() {
	r.c.Free()
}

func (e *Engine) TransferToHost(src media.RawFrame) (media.RawFrame, error) {
	in, err := asFrame(src)
	if err != nil {
		return nil, err
	}

	out := astiav.AllocFrame()
	if out == nil {
		return nil, ErrorGeneralAllocate
	}
	if err := in.TransferHardwareData(out); err != nil {
		out.Free()
		return nil, fmt.Errorf("transfer hardware frame: %w", err)
	}
	out.SetPts(in.Pts())
	return &frame{f: out}, nil
}

type sampleQueue struct {
	fifo   *astiav.AudioFifo
	format engine.AudioFormat
	layout astiav.ChannelLayout
}

func (e *Engine) NewSampleQueue(format engine.AudioFormat) (engine.SampleQueue, error) {
	layout, err := channelLayout(format.Channels)
	if err != nil {
		return nil, err
	}
	fifo := astiav.AllocAudioFifo(astiav.SampleFormat(format.SampleFormat), format.Channels, 1)
	if fifo == nil {
		return nil, ErrorGeneralAllocate
	}
	return &sampleQueue{fifo: fifo, format: format, layout: layout}, nil
}

func (q *sampleQueue) Write(src media.RawFrame) error {
	in, err := asFrame(src)
	if err != nil {
		return err
	}
	if _, err := q.fifo.Write(in); err != nil {
		return err
	}
	return nil
}

func (q *sampleQueue) Size() int {
	return q.fifo.Size()
}

func (q *sampleQueue) Read(n int) (media.RawFrame, int, error) {
	out := astiav.AllocFrame()
	if out == nil {
		return nil, 0, ErrorGeneralAllocate
	}
	out.SetNbSamples(n)
	out.SetSampleFormat(astiav.SampleFormat(q.format.SampleFormat))
	out.SetSampleRate(q.format.SampleRate)
	out.SetChannelLayout(q.layout)
	if err := out.AllocBuffer(0); err != nil {
		out.Free()
		return nil, 0, err
	}

	got, err := q.fifo.Read(out)
	if err != nil {
		out.Free()
		return nil, 0, err
	}
	out.SetNbSamples(got)
	return &frame{f: out}, got, nil
}

func (q *sampleQueue) Free() {
	q.fifo.Free()
}
