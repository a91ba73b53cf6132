//go:build cgo_enabled

package ffmpeg

import (
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/harshabose/avpipe/pkg/avio"
	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/media"
)

type outputContext struct {
	formatContext *astiav.FormatContext
	url           string
	streams       []*astiav.Stream
	owned         *astiav.IOContext
	closed        bool
}

func (e *Engine) AllocOutput(spec engine.OutputSpec) (engine.OutputContext, error) {
	fc, err := astiav.AllocOutputFormatContext(nil, spec.Format, spec.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrorAllocateFormatContext, err)
	}
	if fc == nil {
		return nil, ErrorAllocateFormatContext
	}
	return &outputContext{formatContext: fc, url: spec.URL}, nil
}

func (c *outputContext) NeedsFile() bool {
	return !c.formatContext.OutputFormat().Flags().Has(astiav.IOFormatFlagNofile)
}

func (c *outputContext) NeedsGlobalHeader() bool {
	return c.formatContext.OutputFormat().Flags().Has(astiav.IOFormatFlagGlobalheader)
}

func (c *outputContext) NewStreamFromEncoder(enc engine.EncodeContext) (int, error) {
	ec, ok := enc.(*encodeContext)
	if !ok {
		return -1, ErrorForeignObject
	}

	s := c.formatContext.NewStream(nil)
	if s == nil {
		return -1, fmt.Errorf("new stream: %w", ErrorGeneralAllocate)
	}
	if err := s.CodecParameters().FromCodecContext(ec.codecContext); err != nil {
		return -1, fmt.Errorf("new stream: %w", err)
	}
	s.SetTimeBase(ec.codecContext.TimeBase())
	c.streams = append(c.streams, s)
	return s.Index(), nil
}

func (c *outputContext) NewStreamCopy(src media.StreamDescriptor) (int, error) {
	params, ok := src.Parameters.(streamParameters)
	if !ok {
		return -1, ErrorForeignObject
	}

	s := c.formatContext.NewStream(nil)
	if s == nil {
		return -1, fmt.Errorf("new stream: %w", ErrorGeneralAllocate)
	}
	if err := params.params.Copy(s.CodecParameters()); err != nil {
		return -1, fmt.Errorf("new stream: %w", err)
	}
	// the source container's tag may be meaningless in the output container
	s.CodecParameters().SetCodecTag(0)
	s.SetTimeBase(fromRational(src.TimeBase))
	c.streams = append(c.streams, s)
	return s.Index(), nil
}

// StreamTimeBase is only final after Open, since writing the header may change it.
func (c *outputContext) StreamTimeBase(index int) media.Rational {
	if index < 0 || index >= len(c.streams) {
		return media.Rational{}
	}
	return toRational(c.streams[index].TimeBase())
}

func (c *outputContext) Open(io avio.Context, options map[string]string) error {
	pb, err := asIOContext(io)
	if err != nil {
		return err
	}

	switch {
	case pb != nil:
		c.formatContext.SetPb(pb)
	case c.NeedsFile():
		owned, err := astiav.OpenIOContext(c.url, astiav.NewIOContextFlags(astiav.IOContextFlagWrite), nil, nil)
		if err != nil {
			return fmt.Errorf("open %s: %w", c.url, err)
		}
		c.owned = owned
		c.formatContext.SetPb(owned)
	}

	dict, err := newDictionary(options)
	if err != nil {
		return err
	}
	defer dict.Free()

	if err := c.formatContext.WriteHeader(dict); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return unconsumed(dict)
}

func (c *outputContext) WritePacket(pkt *media.Packet) error {
	p, err := asPacket(pkt.Raw())
	if err != nil {
		return err
	}
	i := p.StreamIndex()
	if i < 0 || i >= len(c.streams) {
		return fmt.Errorf("write packet: no output stream %d", i)
	}
	if tb := pkt.TimeBase(); !tb.IsZero() {
		p.RescaleTs(fromRational(tb), c.streams[i].TimeBase())
		pkt.SetTimeBase(toRational(c.streams[i].TimeBase()))
	}
	return c.formatContext.WriteInterleavedFrame(p)
}

func (c *outputContext) WriteTrailer() error {
	return c.formatContext.WriteTrailer()
}

// Close frees the container and any file it opened itself. An attached
// custom I/O context belongs to the bridge.
func (c *outputContext) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var err error
	if c.owned != nil {
		err = c.owned.Close()
		c.owned = nil
	}
	c.formatContext.Free()
	return err
}
