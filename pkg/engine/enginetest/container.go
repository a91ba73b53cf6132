package enginetest

import (
	"fmt"
	"sync"

	"github.com/harshabose/avpipe/pkg/avio"
	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/media"
)

type params struct{ index int }

func (p params) StreamIndex() int { return p.index }

type inputContext struct {
	eng       *Engine
	container *Container
	next      int
	analyzed  bool
	once      sync.Once
}

func (e *Engine) OpenInput(spec engine.InputSpec) (engine.InputContext, error) {
	key := spec.URL
	if spec.IO != nil {
		io, ok := spec.IO.(*ioContext)
		if !ok {
			return nil, fmt.Errorf("%w: foreign io context", ErrState)
		}
		key = string(io.readAll())
	}

	e.mu.Lock()
	c, ok := e.containers[key]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, spec.URL)
	}
	if spec.Format != "" && spec.Format != c.Format {
		return nil, fmt.Errorf("%w: not a %s container", ErrInvalidData, spec.Format)
	}

	e.alloc("input")
	e.event("open-input %s", c.Format)
	return &inputContext{eng: e, container: c}, nil
}

func (c *inputContext) FindStreamInfo() error {
	if c.container.ProbeError != nil {
		return c.container.ProbeError
	}
	c.analyzed = true
	return nil
}

func (c *inputContext) Streams() []media.StreamDescriptor {
	out := make([]media.StreamDescriptor, len(c.container.Streams))
	for i, s := range c.container.Streams {
		s.Parameters = params{index: i}
		if s.CodecName == "" {
			s.CodecName = c.eng.CodecName(s.CodecID)
		}
		out[i] = s
	}
	return out
}

func (c *inputContext) Container() engine.ContainerInfo {
	return engine.ContainerInfo{
		Format:    c.container.Format,
		MimeTypes: c.container.MimeTypes,
		Duration:  c.container.Duration,
		BitRate:   c.container.BitRate,
	}
}

func (c *inputContext) ReadPacket() (*media.Packet, error) {
	if c.next >= len(c.container.Packets) {
		return nil, engine.ErrEndOfStream
	}
	d := c.container.Packets[c.next]
	c.next++

	tb := media.Rational{}
	if d.Stream >= 0 && d.Stream < len(c.container.Streams) {
		tb = c.container.Streams[d.Stream].TimeBase
	}
	return media.NewPacket(c.eng.NewPacket(d), tb), nil
}

func (c *inputContext) Close() error {
	c.once.Do(func() {
		c.eng.free("input")
		c.eng.event("close-input")
	})
	return nil
}

// OutputStream is one stream of a fake output container.
type OutputStream struct {
	Kind      media.MediaType
	CodecName string
	TimeBase  media.Rational
	Copied    bool
}

// Output records everything written to a fake output container.
type Output struct {
	mu sync.Mutex

	URL     string
	Format  string
	Options map[string]string

	Streams []OutputStream
	Packets []PacketData

	HeaderWritten  bool
	TrailerWritten bool
	Bytes          []byte
}

func (o *Output) Snapshot() (packets []PacketData, header, trailer bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]PacketData(nil), o.Packets...), o.HeaderWritten, o.TrailerWritten
}

// PacketsFor returns the packets written to one output stream.
func (o *Output) PacketsFor(stream int) []PacketData {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []PacketData
	for _, p := range o.Packets {
		if p.Stream == stream {
			out = append(out, p)
		}
	}
	return out
}

type outputContext struct {
	eng  *Engine
	out  *Output
	io   *ioContext
	once sync.Once
}

func (e *Engine) AllocOutput(spec engine.OutputSpec) (engine.OutputContext, error) {
	if spec.Format == "" && spec.URL == "" {
		return nil, fmt.Errorf("%w: unable to guess output format", ErrInvalidData)
	}
	format := spec.Format
	if format == "" {
		format = "matroska"
	}
	out := &Output{URL: spec.URL, Format: format}

	e.alloc("output")
	e.mu.Lock()
	e.outputs = append(e.outputs, out)
	e.mu.Unlock()
	e.event("alloc-output %s", format)
	return &outputContext{eng: e, out: out}, nil
}

func (c *outputContext) NewStreamFromEncoder(enc engine.EncodeContext) (int, error) {
	ec, ok := enc.(*encodeContext)
	if !ok {
		return -1, fmt.Errorf("%w: foreign encoder", ErrState)
	}
	c.out.mu.Lock()
	defer c.out.mu.Unlock()
	if c.out.HeaderWritten {
		return -1, fmt.Errorf("%w: header already written", ErrState)
	}
	c.out.Streams = append(c.out.Streams, OutputStream{Kind: ec.codec.Kind, CodecName: ec.codec.Name, TimeBase: ec.TimeBase()})
	return len(c.out.Streams) - 1, nil
}

func (c *outputContext) NewStreamCopy(src media.StreamDescriptor) (int, error) {
	c.out.mu.Lock()
	defer c.out.mu.Unlock()
	if c.out.HeaderWritten {
		return -1, fmt.Errorf("%w: header already written", ErrState)
	}
	c.out.Streams = append(c.out.Streams, OutputStream{Kind: src.Kind, CodecName: src.CodecName, TimeBase: src.TimeBase, Copied: true})
	return len(c.out.Streams) - 1, nil
}

func (c *outputContext) StreamTimeBase(index int) media.Rational {
	c.out.mu.Lock()
	defer c.out.mu.Unlock()
	if index < 0 || index >= len(c.out.Streams) {
		return media.Rational{}
	}
	return c.out.Streams[index].TimeBase
}

func (c *outputContext) NeedsFile() bool {
	return c.out.Format != "null"
}

func (c *outputContext) NeedsGlobalHeader() bool {
	return c.out.Format == "mp4" || c.out.Format == "matroska"
}

func (c *outputContext) Open(ioctx avio.Context, options map[string]string) error {
	c.out.mu.Lock()
	defer c.out.mu.Unlock()
	if c.out.HeaderWritten {
		return fmt.Errorf("%w: header already written", ErrState)
	}
	if ioctx != nil {
		io, ok := ioctx.(*ioContext)
		if !ok {
			return fmt.Errorf("%w: foreign io context", ErrState)
		}
		c.io = io
	} else if c.NeedsFile() && c.out.URL == "" {
		return fmt.Errorf("%w: no output url", ErrInvalidData)
	}
	if len(c.out.Streams) == 0 {
		return fmt.Errorf("%w: no streams", ErrInvalidData)
	}

	c.out.Options = options
	if c.out.Format == "mpegts" {
		for i := range c.out.Streams {
			c.out.Streams[i].TimeBase = media.NewRational(1, 90000)
		}
	}
	c.out.HeaderWritten = true
	return c.write([]byte("HEADER;"))
}

func (c *outputContext) write(b []byte) error {
	c.out.Bytes = append(c.out.Bytes, b...)
	if c.io == nil {
		return nil
	}
	if _, err := c.io.cb.Write(b); err != nil {
		return err
	}
	return nil
}

func (c *outputContext) WritePacket(pkt *media.Packet) error {
	c.out.mu.Lock()
	defer c.out.mu.Unlock()
	if !c.out.HeaderWritten || c.out.TrailerWritten {
		return fmt.Errorf("%w: write outside header/trailer", ErrState)
	}
	index := pkt.StreamIndex()
	if index < 0 || index >= len(c.out.Streams) {
		return fmt.Errorf("%w: stream %d", ErrInvalidData, index)
	}

	pkt.Rescale(c.out.Streams[index].TimeBase)
	c.out.Packets = append(c.out.Packets, PacketData{
		Stream:   index,
		Pts:      pkt.Pts(),
		Dts:      pkt.Dts(),
		Duration: pkt.Duration(),
		Data:     append([]byte(nil), pkt.Data()...),
	})
	return c.write(pkt.Data())
}

func (c *outputContext) WriteTrailer() error {
	c.out.mu.Lock()
	defer c.out.mu.Unlock()
	if !c.out.HeaderWritten || c.out.TrailerWritten {
		return fmt.Errorf("%w: trailer without header", ErrState)
	}
	c.out.TrailerWritten = true
	c.eng.event("write-trailer")
	return c.write([]byte(";TRAILER"))
}

func (c *outputContext) Close() error {
	c.once.Do(func() {
		c.eng.free("output")
		c.eng.event("close-output")
	})
	return nil
}
