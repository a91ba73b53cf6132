package transcode

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/harshabose/avpipe/internal/logging"
	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/media"
)

// DecoderContext is one stream's codec state machine inside a Decoder.
type DecoderContext struct {
	codec   engine.DecoderCodec
	ctx     engine.DecodeContext
	hw      *engine.HardwareConfig
	stream  media.StreamDescriptor
	options map[string]string
}

func (c *DecoderContext) StreamIndex() int {
	return c.stream.Index
}

// Hardware returns the negotiated accelerator, or nil for software decoding.
func (c *DecoderContext) Hardware() *engine.HardwareConfig {
	return c.hw
}

// CodecName is the codec name, suffixed with the accelerator type when one is attached.
func (c *DecoderContext) CodecName() string {
	if c.hw == nil {
		return c.codec.Name()
	}
	return c.codec.Name() + "_" + c.hw.DeviceType
}

func (c *DecoderContext) String() string {
	return fmt.Sprintf("stream #%d %s", c.stream.Index, c.CodecName())
}

func (c *DecoderContext) wrap(raw media.RawFrame) *media.Frame {
	f := media.NewFrame(raw, c.stream.Kind, c.stream.TimeBase)
	if c.hw != nil && raw.PixelFormat() == c.hw.PixelFormat {
		f.SetHardware(true)
	}
	return f
}

type DecodedFrame struct {
	StreamIndex int
	Frame       *media.Frame
}

// Decoder multiplexes per-stream codec contexts behind one handle.
type Decoder struct {
	engine   engine.Decoding
	contexts map[int]*DecoderContext
	hwTypes  map[string]struct{}
	log      zerolog.Logger
}

func NewDecoder(eng engine.Decoding, options ...DecoderOption) (*Decoder, error) {
	d := &Decoder{
		engine:   eng,
		contexts: map[int]*DecoderContext{},
		log:      logging.WithComponent("decoder"),
	}

	for _, option := range options {
		if err := option(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// EnableHardware adds one accelerator type to the negotiation set.
func (d *Decoder) EnableHardware(deviceType string) {
	if d.hwTypes == nil {
		d.hwTypes = map[string]struct{}{}
	}
	d.hwTypes[deviceType] = struct{}{}
}

// EnableAnyHardware adds every accelerator type the engine knows about.
func (d *Decoder) EnableAnyHardware() {
	for _, t := range d.engine.HardwareDeviceTypes() {
		d.EnableHardware(t)
	}
	if d.hwTypes == nil {
		d.hwTypes = map[string]struct{}{}
	}
}

func (d *Decoder) HardwareEnabled() bool {
	return d.hwTypes != nil
}

// SupportedHardware lists the accelerator types the codec can attach as a device context.
func (d *Decoder) SupportedHardware(codecID int) ([]string, error) {
	codec, err := d.engine.FindDecoder(codecID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCodecNotFound, d.engine.CodecName(codecID))
	}

	var out []string
	for _, cfg := range codec.HardwareConfigs() {
		if cfg.DeviceContext {
			out = append(out, cfg.DeviceType)
		}
	}
	return out, nil
}

// Setup registers stream for decoding. A stream can be registered only once.
func (d *Decoder) Setup(stream media.StreamDescriptor, options map[string]string) (*DecoderContext, error) {
	if _, ok := d.contexts[stream.Index]; ok {
		return nil, fmt.Errorf("%w: stream #%d", ErrDecoderAlreadySetup, stream.Index)
	}
	if err := validateOptions(options); err != nil {
		return nil, err
	}

	codec, err := d.engine.FindDecoder(stream.CodecID)
	if err != nil || codec == nil {
		return nil, fmt.Errorf("%w: %s", ErrCodecNotFound, d.engine.CodecName(stream.CodecID))
	}

	ctx, err := codec.NewContext()
	if err != nil {
		return nil, fmt.Errorf("allocate decoder context for stream #%d: %w", stream.Index, err)
	}

	c := &DecoderContext{codec: codec, ctx: ctx, stream: stream, options: options}
	if err := d.open(c); err != nil {
		ctx.Free()
		return nil, err
	}

	d.contexts[stream.Index] = c
	d.log.Debug().Int("stream", stream.Index).Str("codec", c.CodecName()).Msg("decoder ready")
	return c, nil
}

func (d *Decoder) open(c *DecoderContext) error {
	if err := c.ctx.SetParameters(c.stream); err != nil {
		return fmt.Errorf("copy codec parameters for stream #%d: %w", c.stream.Index, err)
	}

	c.hw = d.negotiateHardware(c)

	if err := c.ctx.Open(c.options); err != nil {
		return fmt.Errorf("open decoder %s: %w", c, err)
	}
	return nil
}

func (d *Decoder) negotiateHardware(c *DecoderContext) *engine.HardwareConfig {
	if d.hwTypes == nil {
		return nil
	}

	for _, cfg := range c.codec.HardwareConfigs() {
		if _, ok := d.hwTypes[cfg.DeviceType]; !ok {
			d.log.Trace().Str("codec", c.codec.Name()).Str("device", cfg.DeviceType).Msg("hardware type not enabled, skipping")
			continue
		}
		if !cfg.DeviceContext {
			continue
		}
		if err := c.ctx.AttachHardwareDevice(cfg); err != nil {
			d.log.Warn().Err(err).Str("codec", c.codec.Name()).Str("device", cfg.DeviceType).Msg("hardware device creation failed, trying next")
			continue
		}

		d.log.Info().Int("stream", c.stream.Index).Str("codec", c.codec.Name()).Str("device", cfg.DeviceType).Msg("hardware decoding enabled")
		hw := cfg
		return &hw
	}

	d.log.Debug().Int("stream", c.stream.Index).Str("codec", c.codec.Name()).Msg("no usable hardware, decoding in software")
	return nil
}

func (d *Decoder) Context(streamIndex int) (*DecoderContext, bool) {
	c, ok := d.contexts[streamIndex]
	return c, ok
}

// Remove frees the context registered for streamIndex, if any.
func (d *Decoder) Remove(streamIndex int) {
	if c, ok := d.contexts[streamIndex]; ok {
		c.ctx.Free()
		delete(d.contexts, streamIndex)
	}
}

// Decode feeds pkt to the context registered for its stream and returns every
// frame that became available. A nil packet flushes all streams. Packets of
// unregistered streams yield nothing. On error no frames are returned.
func (d *Decoder) Decode(pkt *media.Packet) ([]DecodedFrame, error) {
	if pkt == nil {
		return d.Flush()
	}

	c, ok := d.contexts[pkt.StreamIndex()]
	if !ok {
		return nil, nil
	}
	return d.decode(c, pkt)
}

// Flush drains every registered stream in ascending index order.
func (d *Decoder) Flush() ([]DecodedFrame, error) {
	var out []DecodedFrame
	for _, index := range d.indices() {
		frames, err := d.decode(d.contexts[index], nil)
		if err != nil {
			releaseDecoded(out)
			return nil, err
		}
		out = append(out, frames...)
	}
	return out, nil
}

func (d *Decoder) decode(c *DecoderContext, pkt *media.Packet) ([]DecodedFrame, error) {
	var out []DecodedFrame
	for {
		err := c.ctx.SendPacket(pkt)
		switch {
		case err == nil:
			return d.receive(c, out)
		case pkt == nil && errors.Is(err, engine.ErrEndOfStream):
			return out, nil
		case errors.Is(err, engine.ErrTryAgain):
			before := len(out)
			if out, err = d.receive(c, out); err != nil {
				return nil, err
			}
			if len(out) == before {
				releaseDecoded(out)
				return nil, fmt.Errorf("decode %s: no progress: %w", c, engine.ErrTryAgain)
			}
		default:
			releaseDecoded(out)
			return nil, fmt.Errorf("decode %s: %w", c, err)
		}
	}
}

// receive drains every frame the context has ready. On a hard error all
// frames collected so far, including out, are released.
func (d *Decoder) receive(c *DecoderContext, out []DecodedFrame) ([]DecodedFrame, error) {
	for {
		raw, err := c.ctx.ReceiveFrame()
		if err != nil {
			if engine.IsTransient(err) {
				return out, nil
			}
			releaseDecoded(out)
			return nil, fmt.Errorf("receive frame %s: %w", c, err)
		}
		out = append(out, DecodedFrame{StreamIndex: c.stream.Index, Frame: c.wrap(raw)})
	}
}

func releaseDecoded(frames []DecodedFrame) {
	for _, f := range frames {
		f.Frame.Release()
	}
}

// Reset returns every context to its freshly opened state so the decoder can
// be fed again after a flush.
func (d *Decoder) Reset() error {
	for _, index := range d.indices() {
		c := d.contexts[index]
		if err := c.ctx.Reset(); err != nil {
			return fmt.Errorf("reset %s: %w", c, err)
		}
	}
	return nil
}

// Rebind points a registered context at a new descriptor for the same stream
// index, e.g. after reopening the input.
func (d *Decoder) Rebind(stream media.StreamDescriptor) error {
	c, ok := d.contexts[stream.Index]
	if !ok {
		return fmt.Errorf("%w: stream #%d not registered", ErrInvalidStream, stream.Index)
	}
	c.stream = stream
	return nil
}

func (d *Decoder) indices() []int {
	out := make([]int, 0, len(d.contexts))
	for index := range d.contexts {
		out = append(out, index)
	}
	sort.Ints(out)
	return out
}

func (d *Decoder) Close() {
	for _, index := range d.indices() {
		d.contexts[index].ctx.Free()
	}
	d.contexts = map[int]*DecoderContext{}
}

func validateOptions(options map[string]string) error {
	for k := range options {
		if k == "" {
			return fmt.Errorf("%w: empty key", ErrInvalidOption)
		}
	}
	return nil
}

func cloneOptions(options map[string]string) map[string]string {
	if options == nil {
		return nil
	}
	out := make(map[string]string, len(options))
	for k, v := range options {
		out[k] = v
	}
	return out
}
