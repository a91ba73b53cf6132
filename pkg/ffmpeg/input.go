//go:build cgo_enabled

package ffmpeg

import (
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/media"
)

type inputContext struct {
	formatContext *astiav.FormatContext
	streams       []*astiav.Stream
	once          sync.Once
}

type streamParameters struct {
	index  int
	params *astiav.CodecParameters
}

func (p streamParameters) StreamIndex() int { return p.index }

func (e *Engine) OpenInput(spec engine.InputSpec) (engine.InputContext, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, ErrorAllocateFormatContext
	}

	pb, err := asIOContext(spec.IO)
	if err != nil {
		fc.Free()
		return nil, err
	}
	if pb != nil {
		fc.SetPb(pb)
	}

	var inputFormat *astiav.InputFormat
	if spec.Format != "" {
		if inputFormat = astiav.FindInputFormat(spec.Format); inputFormat == nil {
			fc.Free()
			return nil, fmt.Errorf("%w: input format %q", ErrorUnknownFormat, spec.Format)
		}
	}

	options, err := newDictionary(spec.Options)
	if err != nil {
		fc.Free()
		return nil, err
	}
	defer options.Free()

	url := spec.URL
	if pb != nil && url == "pipe:" {
		url = ""
	}
	if err := fc.OpenInput(url, inputFormat, options); err != nil {
		fc.Free()
		return nil, err
	}
	if err := unconsumed(options); err != nil {
		fc.CloseInput()
		fc.Free()
		return nil, err
	}

	return &inputContext{formatContext: fc}, nil
}

func (c *inputContext) FindStreamInfo() error {
	if err := c.formatContext.FindStreamInfo(nil); err != nil {
		return err
	}
	c.streams = c.formatContext.Streams()
	return nil
}

func (c *inputContext) Streams() []media.StreamDescriptor {
	out := make([]media.StreamDescriptor, 0, len(c.streams))
	for _, s := range c.streams {
		out = append(out, describe(c.formatContext, s))
	}
	return out
}

func describe(fc *astiav.FormatContext, s *astiav.Stream) media.StreamDescriptor {
	p := s.CodecParameters()
	d := media.StreamDescriptor{
		Index:      s.Index(),
		Kind:       toMediaType(p.MediaType()),
		CodecID:    int(p.CodecID()),
		CodecName:  p.CodecID().Name(),
		TimeBase:   toRational(s.TimeBase()),
		BitRate:    p.BitRate(),
		Profile:    int(p.Profile()),
		Level:      int(p.Level()),
		Parameters: streamParameters{index: s.Index(), params: p},
	}

	if start := s.StartTime(); start != astiav.NoPtsValue {
		d.StartTime = float64(start) * d.TimeBase.Float64()
	}

	switch d.Kind {
	case media.MediaTypeVideo:
		d.Width, d.Height = p.Width(), p.Height()
		d.Format = int(p.PixelFormat())
		d.FormatName = p.PixelFormat().String()
		d.FrameRate = toRational(fc.GuessFrameRate(s, nil))
		d.FPS = d.FrameRate.Float64()
		d.ColorSpace = int(p.ColorSpace())
		d.ColorRange = int(p.ColorRange())
	case media.MediaTypeAudio:
		d.SampleRate = p.SampleRate()
		d.Channels = p.ChannelLayout().Channels()
		d.Format = int(p.SampleFormat())
		d.FormatName = p.SampleFormat().Name()
	}

	if md := s.Metadata(); md != nil {
		if entry := md.Get("language", nil, astiav.NewDictionaryFlags()); entry != nil {
			d.Language = entry.Value()
		}
	}
	return d
}

func (c *inputContext) Container() engine.ContainerInfo {
	info := engine.ContainerInfo{
		Duration: float64(c.formatContext.Duration()) / float64(astiav.TimeBase),
		BitRate:  c.formatContext.BitRate(),
	}
	if f := c.formatContext.InputFormat(); f != nil {
		info.Format = f.Name()
	}
	return info
}

func (c *inputContext) ReadPacket() (*media.Packet, error) {
	p := astiav.AllocPacket()
	if p == nil {
		return nil, fmt.Errorf("read packet: %w", ErrorGeneralAllocate)
	}
	if err := c.formatContext.ReadFrame(p); err != nil {
		p.Free()
		return nil, mapError(err)
	}

	tb := media.Rational{}
	if i := p.StreamIndex(); i >= 0 && i < len(c.streams) {
		tb = toRational(c.streams[i].TimeBase())
	}
	return media.NewPacket(&packet{p: p}, tb), nil
}

// Close leaves a custom I/O context to the bridge that allocated it.
func (c *inputContext) Close() error {
	c.once.Do(func() {
		c.formatContext.CloseInput()
		c.formatContext.Free()
	})
	return nil
}
