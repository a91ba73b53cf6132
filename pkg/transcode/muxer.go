package transcode

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/harshabose/avpipe/internal/logging"
	"github.com/harshabose/avpipe/pkg/avio"
	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/media"
)

// Muxer writes packets into an output container. After Reset it can be
// pointed at a new output and initialised again.
type Muxer struct {
	engine engine.Engine
	output engine.Output

	ctx    engine.OutputContext
	bridge *avio.Bridge
	opened bool
	stats  avio.Stats

	log zerolog.Logger
}

func CreateMuxer(eng engine.Engine, output engine.Output, options ...MuxerOption) (*Muxer, error) {
	m := &Muxer{
		engine: eng,
		output: output,
		log:    logging.WithComponent("muxer"),
	}

	for _, option := range options {
		if err := option(m); err != nil {
			return nil, err
		}
	}

	if err := m.Init(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Muxer) Initialized() bool {
	return m.ctx != nil
}

func (m *Muxer) Opened() bool {
	return m.opened
}

// Init allocates the output context for the current URL/format/writer.
func (m *Muxer) Init() error {
	if m.ctx != nil {
		return ErrMuxerInitialized
	}
	if m.output.URL == "" && (m.output.Writer == nil || m.output.Format == "") {
		return ErrMissingOutputSpec
	}

	ctx, err := m.engine.AllocOutput(engine.OutputSpec{URL: m.output.URL, Format: m.output.Format})
	if err != nil {
		return fmt.Errorf("allocate output %s: %w", m.name(), err)
	}
	m.ctx = ctx
	return nil
}

func (m *Muxer) SetURL(url string) error {
	if m.ctx != nil {
		return ErrMuxerInitialized
	}
	m.output.URL = url
	return nil
}

func (m *Muxer) SetFormat(format string) error {
	if m.ctx != nil {
		return ErrMuxerInitialized
	}
	m.output.Format = format
	return nil
}

func (m *Muxer) SetWriter(w io.Writer) error {
	if m.ctx != nil {
		return ErrMuxerInitialized
	}
	m.output.Writer = w
	return nil
}

// SetOutput replaces the whole output description while uninitialised.
func (m *Muxer) SetOutput(output engine.Output) error {
	if m.ctx != nil {
		return ErrMuxerInitialized
	}
	m.output = output
	return nil
}

// RequiresGlobalHeader reports whether encoders feeding this container must
// be opened with WithGlobalHeader.
func (m *Muxer) RequiresGlobalHeader() bool {
	return m.ctx != nil && m.ctx.NeedsGlobalHeader()
}

func (m *Muxer) AddEncoderStream(enc *Encoder) (int, error) {
	if m.ctx == nil {
		return -1, ErrMuxerNotInit
	}
	if m.opened {
		return -1, ErrMuxerOpen
	}
	index, err := m.ctx.NewStreamFromEncoder(enc.Context())
	if err != nil {
		return -1, fmt.Errorf("add %s stream to %s: %w", enc.Name(), m.name(), err)
	}
	return index, nil
}

func (m *Muxer) AddCopyStream(stream media.StreamDescriptor) (int, error) {
	if m.ctx == nil {
		return -1, ErrMuxerNotInit
	}
	if m.opened {
		return -1, ErrMuxerOpen
	}
	index, err := m.ctx.NewStreamCopy(stream)
	if err != nil {
		return -1, fmt.Errorf("add copy of stream #%d to %s: %w", stream.Index, m.name(), err)
	}
	return index, nil
}

func (m *Muxer) StreamTimeBase(index int) media.Rational {
	if m.ctx == nil {
		return media.Rational{}
	}
	return m.ctx.StreamTimeBase(index)
}

// Open attaches the output and writes the container header. Writer-backed
// outputs go through an avio.Bridge, seekable when the writer is an io.Seeker.
func (m *Muxer) Open(options map[string]string) error {
	if m.ctx == nil {
		return ErrMuxerNotInit
	}
	if m.opened {
		return ErrMuxerOpen
	}
	if err := validateOptions(options); err != nil {
		return err
	}

	var ioctx avio.Context
	if m.output.Writer != nil && m.ctx.NeedsFile() {
		bridgeOptions := []avio.Option{avio.WithLogger(m.log)}
		if m.output.BufferSize > 0 {
			bridgeOptions = append(bridgeOptions, avio.WithBufferSize(m.output.BufferSize))
		}

		var (
			bridge *avio.Bridge
			err    error
		)
		if ws, ok := m.output.Writer.(io.WriteSeeker); ok {
			bridge, err = avio.NewWriteSeeker(m.engine, ws, bridgeOptions...)
		} else {
			bridge, err = avio.NewWriter(m.engine, m.output.Writer, bridgeOptions...)
		}
		if err != nil {
			return fmt.Errorf("bridge output %s: %w", m.name(), err)
		}
		m.bridge, m.stats = bridge, avio.Stats{}
		ioctx = bridge.Context()
	}

	if err := m.ctx.Open(ioctx, options); err != nil {
		return fmt.Errorf("open output %s: %w", m.name(), err)
	}
	m.opened = true
	return nil
}

// WritePacket rescales pkt into its output stream's timebase and writes it.
// The caller keeps ownership of pkt.
func (m *Muxer) WritePacket(pkt *media.Packet) error {
	if !m.opened {
		return ErrMuxerNotOpen
	}
	if err := m.ctx.WritePacket(pkt); err != nil {
		return fmt.Errorf("write packet to %s stream %d: %w", m.name(), pkt.StreamIndex(), err)
	}
	return nil
}

// Reset writes the trailer and releases the output. The muxer must be
// initialised again before reuse.
func (m *Muxer) Reset() error {
	if m.ctx == nil {
		return ErrMuxerNotInit
	}

	var err error
	if m.opened {
		if err = m.ctx.WriteTrailer(); err != nil {
			err = fmt.Errorf("write trailer to %s: %w", m.name(), err)
		}
	}
	if cerr := m.release(); err == nil {
		err = cerr
	}
	return err
}

// release closes the output context first, then the bridge it wrote through.
func (m *Muxer) release() error {
	var err error
	if m.ctx != nil {
		if cerr := m.ctx.Close(); cerr != nil {
			err = fmt.Errorf("close output %s: %w", m.name(), cerr)
		}
		m.ctx = nil
	}
	if m.bridge != nil {
		m.stats = m.bridge.Stats()
		if cerr := m.bridge.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output writer %s: %w", m.name(), cerr)
		}
		m.bridge = nil
	}
	m.opened = false
	return err
}

// BridgeStats reports the bytes written through the current writer, or
// through the last one once the output is released.
func (m *Muxer) BridgeStats() avio.Stats {
	if m.bridge == nil {
		return m.stats
	}
	return m.bridge.Stats()
}

// Close releases the output without writing a trailer.
func (m *Muxer) Close() {
	if err := m.release(); err != nil {
		m.log.Warn().Err(err).Msg("close muxer")
	}
}

func (m *Muxer) name() string {
	if m.output.URL != "" {
		return m.output.URL
	}
	return "<writer>"
}
