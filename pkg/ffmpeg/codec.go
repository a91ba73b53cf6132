//go:build cgo_enabled

package ffmpeg

import (
	"fmt"
	"strconv"

	"github.com/asticode/go-astiav"

	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/media"
)

// ### Decoding

type decoderCodec struct {
	codec *astiav.Codec
}

func (e *Engine) FindDecoder(codecID int) (engine.DecoderCodec, error) {
	codec := astiav.FindDecoder(astiav.CodecID(codecID))
	if codec == nil {
		return nil, fmt.Errorf("%w: decoder for %s", ErrorNoCodecFound, e.CodecName(codecID))
	}
	return &decoderCodec{codec: codec}, nil
}

func (c *decoderCodec) ID() int      { return int(c.codec.ID()) }
func (c *decoderCodec) Name() string { return c.codec.Name() }

func (c *decoderCodec) HardwareConfigs() []engine.HardwareConfig {
	configs := c.codec.HardwareConfigs()
	out := make([]engine.HardwareConfig, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, engine.HardwareConfig{
			DeviceType:    cfg.HardwareDeviceType().String(),
			PixelFormat:   int(cfg.PixelFormat()),
			DeviceContext: cfg.MethodFlags().Has(astiav.CodecHardwareConfigMethodFlagHwDeviceCtx),
		})
	}
	return out
}

func (c *decoderCodec) NewContext() (engine.DecodeContext, error) {
	cc := astiav.AllocCodecContext(c.codec)
	if cc == nil {
		return nil, ErrorAllocateCodecContext
	}
	return &decodeContext{codec: c.codec, codecContext: cc}, nil
}

type decodeContext struct {
	codec        *astiav.Codec
	codecContext *astiav.CodecContext
	device       *astiav.HardwareDeviceContext
	pixelFormat  astiav.PixelFormat
	// params is a private copy so Reset survives the source container closing
	params   *astiav.CodecParameters
	timeBase media.Rational
	rate     media.Rational
	options  map[string]string
}

func (c *decodeContext) SetParameters(stream media.StreamDescriptor) error {
	src, ok := stream.Parameters.(streamParameters)
	if !ok {
		return ErrorForeignObject
	}
	params := astiav.AllocCodecParameters()
	if params == nil {
		return fmt.Errorf("copy codec parameters: %w", ErrorGeneralAllocate)
	}
	if err := src.params.Copy(params); err != nil {
		params.Free()
		return fmt.Errorf("copy codec parameters: %w", err)
	}
	if c.params != nil {
		c.params.Free()
	}
	c.params, c.timeBase = params, stream.TimeBase
	if stream.Kind == media.MediaTypeVideo {
		c.rate = stream.FrameRate
	}
	return c.apply(c.codecContext)
}

func (c *decodeContext) apply(cc *astiav.CodecContext) error {
	if err := c.params.ToCodecContext(cc); err != nil {
		return fmt.Errorf("copy codec parameters: %w", err)
	}
	cc.SetTimeBase(fromRational(c.timeBase))
	if !c.rate.IsZero() {
		cc.SetFramerate(fromRational(c.rate))
	}
	if c.device != nil {
		want := c.pixelFormat
		cc.SetHardwareDeviceContext(c.device)
		cc.SetPixelFormatCallback(func(formats []astiav.PixelFormat) astiav.PixelFormat {
			for _, f := range formats {
				if f == want {
					return f
				}
			}
			return astiav.PixelFormatNone
		})
	}
	return nil
}

func (c *decodeContext) AttachHardwareDevice(cfg engine.HardwareConfig) error {
	t := astiav.FindHardwareDeviceTypeByName(cfg.DeviceType)
	if t == astiav.HardwareDeviceTypeNone {
		return fmt.Errorf("%w: hardware device %s", ErrorUnknownFormat, cfg.DeviceType)
	}
	device, err := astiav.CreateHardwareDeviceContext(t, "", nil, 0)
	if err != nil {
		return fmt.Errorf("create %s device: %w", cfg.DeviceType, err)
	}
	c.device, c.pixelFormat = device, astiav.PixelFormat(cfg.PixelFormat)
	if c.params == nil {
		return nil
	}
	return c.apply(c.codecContext)
}

func (c *decodeContext) Open(options map[string]string) error {
	if err := c.open(c.codecContext, options); err != nil {
		return err
	}
	c.options = options
	return nil
}

func (c *decodeContext) open(cc *astiav.CodecContext, options map[string]string) error {
	dict, err := newDictionary(options)
	if err != nil {
		return err
	}
	defer dict.Free()

	if err := cc.Open(c.codec, dict); err != nil {
		return fmt.Errorf("open decoder %s: %w", c.codec.Name(), err)
	}
	return unconsumed(dict)
}

func (c *decodeContext) SendPacket(pkt *media.Packet) error {
	if pkt == nil {
		return mapError(c.codecContext.SendPacket(nil))
	}
	p, err := asPacket(pkt.Raw())
	if err != nil {
		return err
	}
	return mapError(c.codecContext.SendPacket(p))
}

func (c *decodeContext) ReceiveFrame() (media.RawFrame, error) {
	f := astiav.AllocFrame()
	if f == nil {
		return nil, fmt.Errorf("receive frame: %w", ErrorGeneralAllocate)
	}
	if err := c.codecContext.ReceiveFrame(f); err != nil {
		f.Free()
		return nil, mapError(err)
	}
	return &frame{f: f}, nil
}

// Reset reopens the codec with the parameters and device it was configured with.
func (c *decodeContext) Reset() error {
	cc := astiav.AllocCodecContext(c.codec)
	if cc == nil {
		return ErrorAllocateCodecContext
	}
	if err := c.apply(cc); err != nil {
		cc.Free()
		return err
	}
	if err := c.open(cc, c.options); err != nil {
		cc.Free()
		return err
	}
	c.codecContext.Free()
	c.codecContext = cc
	return nil
}

func (c *decodeContext) Free() {
	if c.codecContext != nil {
		c.codecContext.Free()
		c.codecContext = nil
	}
	if c.params != nil {
		c.params.Free()
		c.params = nil
	}
	if c.device != nil {
		c.device.Free()
		c.device = nil
	}
}

// ### Encoding

type encoderCodec struct {
	codec *astiav.Codec
}

func (e *Engine) FindEncoder(codecID int) (engine.EncoderCodec, error) {
	codec := astiav.FindEncoder(astiav.CodecID(codecID))
	if codec == nil {
		return nil, fmt.Errorf("%w: encoder for %s", ErrorNoCodecFound, e.CodecName(codecID))
	}
	return &encoderCodec{codec: codec}, nil
}

func (e *Engine) FindEncoderByName(name string) (engine.EncoderCodec, error) {
	codec := astiav.FindEncoderByName(name)
	if codec == nil {
		return nil, fmt.Errorf("%w: encoder %s", ErrorNoCodecFound, name)
	}
	return &encoderCodec{codec: codec}, nil
}

func (c *encoderCodec) ID() int               { return int(c.codec.ID()) }
func (c *encoderCodec) Name() string          { return c.codec.Name() }
func (c *encoderCodec) Kind() media.MediaType { return toMediaType(c.codec.ID().MediaType()) }

func (c *encoderCodec) NewContext(cfg engine.EncoderConfig) (engine.EncodeContext, error) {
	cfg.Kind = c.Kind()
	ctx := &encodeContext{codec: c.codec, cfg: cfg}
	if err := ctx.open(); err != nil {
		return nil, err
	}
	return ctx, nil
}

type encodeContext struct {
	codec        *astiav.Codec
	codecContext *astiav.CodecContext
	cfg          engine.EncoderConfig
}

func (c *encodeContext) open() error {
	cc := astiav.AllocCodecContext(c.codec)
	if cc == nil {
		return ErrorAllocateCodecContext
	}
	if err := c.configure(cc); err != nil {
		cc.Free()
		return err
	}

	options := make(map[string]string, len(c.cfg.Options)+2)
	for k, v := range c.cfg.Options {
		options[k] = v
	}
	if c.cfg.Profile != 0 {
		options["profile"] = strconv.Itoa(c.cfg.Profile)
	}
	if c.cfg.Level != 0 {
		options["level"] = strconv.Itoa(c.cfg.Level)
	}
	dict, err := newDictionary(options)
	if err != nil {
		cc.Free()
		return err
	}
	defer dict.Free()

	if err := cc.Open(c.codec, dict); err != nil {
		cc.Free()
		return fmt.Errorf("open encoder %s: %w", c.codec.Name(), err)
	}
	if err := unconsumed(dict); err != nil {
		cc.Free()
		return err
	}

	c.codecContext = cc
	c.cfg.TimeBase = toRational(cc.TimeBase())
	switch c.cfg.Kind {
	case media.MediaTypeVideo:
		c.cfg.PixelFormat = int(cc.PixelFormat())
	case media.MediaTypeAudio:
		c.cfg.SampleFormat = int(cc.SampleFormat())
	}
	return nil
}

func (c *encodeContext) configure(cc *astiav.CodecContext) error {
	cfg := c.cfg
	switch cfg.Kind {
	case media.MediaTypeVideo:
		cc.SetWidth(cfg.Width)
		cc.SetHeight(cfg.Height)
		cc.SetPixelFormat(pickPixelFormat(c.codec, astiav.PixelFormat(cfg.PixelFormat)))
		if !cfg.FrameRate.IsZero() {
			cc.SetFramerate(fromRational(cfg.FrameRate))
		}
		tb := cfg.TimeBase
		if tb.IsZero() && !cfg.FrameRate.IsZero() {
			tb = cfg.FrameRate.Invert()
		}
		cc.SetTimeBase(fromRational(tb))
	case media.MediaTypeAudio:
		layout, err := channelLayout(cfg.Channels)
		if err != nil {
			return err
		}
		cc.SetSampleRate(cfg.SampleRate)
		cc.SetSampleFormat(pickSampleFormat(c.codec, astiav.SampleFormat(cfg.SampleFormat)))
		cc.SetChannelLayout(layout)
		tb := cfg.TimeBase
		if tb.IsZero() {
			tb = media.NewRational(1, cfg.SampleRate)
		}
		cc.SetTimeBase(fromRational(tb))
	default:
		return fmt.Errorf("encoder %s: unsupported media type %s", c.codec.Name(), cfg.Kind)
	}

	if cfg.BitRate > 0 {
		cc.SetBitRate(cfg.BitRate)
	}
	if cfg.GlobalHeader {
		cc.SetFlags(astiav.NewCodecContextFlags(astiav.CodecContextFlagGlobalHeader))
	}
	return nil
}

// pickPixelFormat keeps want when the codec accepts it, else falls back to the
// codec's preferred format.
func pickPixelFormat(codec *astiav.Codec, want astiav.PixelFormat) astiav.PixelFormat {
	supported := codec.PixelFormats()
	for _, f := range supported {
		if f == want {
			return want
		}
	}
	if len(supported) == 0 {
		return want
	}
	return supported[0]
}

func pickSampleFormat(codec *astiav.Codec, want astiav.SampleFormat) astiav.SampleFormat {
	supported := codec.SampleFormats()
	for _, f := range supported {
		if f == want {
			return want
		}
	}
	if len(supported) == 0 {
		return want
	}
	return supported[0]
}

func (c *encodeContext) Config() engine.EncoderConfig { return c.cfg }
func (c *encodeContext) TimeBase() media.Rational     { return c.cfg.TimeBase }

// FrameSize is read from the opened context; encoders accepting any frame size report 0.
func (c *encodeContext) FrameSize() int {
	return c.codecContext.FrameSize()
}

func (c *encodeContext) SendFrame(f *media.Frame) error {
	if f == nil {
		return mapError(c.codecContext.SendFrame(nil))
	}
	raw, err := asFrame(f.Raw())
	if err != nil {
		return err
	}
	raw.SetPictureType(astiav.PictureTypeNone)
	return mapError(c.codecContext.SendFrame(raw))
}

func (c *encodeContext) ReceivePacket() (media.RawPacket, error) {
	p := astiav.AllocPacket()
	if p == nil {
		return nil, fmt.Errorf("receive packet: %w", ErrorGeneralAllocate)
	}
	if err := c.codecContext.ReceivePacket(p); err != nil {
		p.Free()
		return nil, mapError(err)
	}
	return &packet{p: p}, nil
}

// Reset reopens the encoder with the configuration it was created with.
func (c *encodeContext) Reset() error {
	old := c.codecContext
	if err := c.open(); err != nil {
		c.codecContext = old
		return err
	}
	old.Free()
	return nil
}

func (c *encodeContext) Free() {
	if c.codecContext != nil {
		c.codecContext.Free()
		c.codecContext = nil
	}
}

// ### Describing

func (e *Engine) DescribeDecoder(codecID int) (engine.CodecInfo, error) {
	codec := astiav.FindDecoder(astiav.CodecID(codecID))
	if codec == nil {
		return engine.CodecInfo{}, fmt.Errorf("%w: decoder for %s", ErrorNoCodecFound, e.CodecName(codecID))
	}
	return describe(codec)
}

func (e *Engine) DescribeEncoder(name string) (engine.CodecInfo, error) {
	codec := astiav.FindEncoderByName(name)
	if codec == nil {
		return engine.CodecInfo{}, fmt.Errorf("%w: encoder %s", ErrorNoCodecFound, name)
	}
	return describe(codec)
}

func describe(codec *astiav.Codec) (engine.CodecInfo, error) {
	info := engine.CodecInfo{Name: codec.Name(), Kind: toMediaType(codec.ID().MediaType())}
	for _, f := range codec.PixelFormats() {
		info.PixelFormats = append(info.PixelFormats, f.Name())
	}
	for _, f := range codec.SampleFormats() {
		info.SampleFormats = append(info.SampleFormats, f.Name())
	}

	// Private options only exist on an allocated context.
	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return engine.CodecInfo{}, ErrorAllocateCodecContext
	}
	defer cc.Free()
	pd := cc.PrivateData()
	if pd == nil {
		return info, nil
	}
	// Named constants are listed with the options and can repeat across units.
	seen := map[string]bool{}
	for _, o := range pd.Options().List() {
		if name := o.Name(); !seen[name] {
			seen[name] = true
			info.Options = append(info.Options, name)
		}
	}
	return info, nil
}
