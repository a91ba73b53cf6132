package enginetest

import (
	"fmt"
	"sync"

	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/media"
)

type decoderCodec struct {
	eng   *Engine
	codec *Codec
}

func (c *decoderCodec) ID() int      { return c.codec.ID }
func (c *decoderCodec) Name() string { return c.codec.Name }
func (c *decoderCodec) HardwareConfigs() []engine.HardwareConfig {
	return append([]engine.HardwareConfig(nil), c.codec.HardwareConfigs...)
}

func (c *decoderCodec) NewContext() (engine.DecodeContext, error) {
	c.eng.alloc("decoder")
	return &decodeContext{eng: c.eng, codec: c.codec}, nil
}

type decodeContext struct {
	eng    *Engine
	codec  *Codec
	stream media.StreamDescriptor
	hw     *engine.HardwareConfig

	opened   bool
	draining bool
	sends    int
	queue    []*Frame
	once     sync.Once
}

func (c *decodeContext) SetParameters(stream media.StreamDescriptor) error {
	if stream.Parameters == nil {
		return fmt.Errorf("%w: stream has no codec parameters", ErrInvalidData)
	}
	c.stream = stream
	return nil
}

func (c *decodeContext) AttachHardwareDevice(cfg engine.HardwareConfig) error {
	if c.eng.FailDevices[cfg.DeviceType] {
		return fmt.Errorf("%w: %s", ErrDevice, cfg.DeviceType)
	}
	c.hw = &cfg
	c.eng.event("attach-hw %s", cfg.DeviceType)
	return nil
}

func (c *decodeContext) Open(options map[string]string) error {
	if c.codec.OpenError != nil {
		return c.codec.OpenError
	}
	if _, ok := options["bogus"]; ok {
		return fmt.Errorf("%w: option bogus not found", ErrInvalidData)
	}
	c.opened = true
	return nil
}

func (c *decodeContext) SendPacket(pkt *media.Packet) error {
	if !c.opened {
		return fmt.Errorf("%w: decoder not opened", ErrState)
	}
	if c.draining {
		return engine.ErrEndOfStream
	}
	if pkt == nil {
		c.draining = true
		return nil
	}

	c.sends++
	if c.codec.FailAfter > 0 && c.sends >= c.codec.FailAfter {
		return fmt.Errorf("%w: corrupt bitstream", ErrInvalidData)
	}
	if c.codec.MaxPending > 0 && len(c.queue) >= c.codec.MaxPending {
		return engine.ErrTryAgain
	}

	f := Frame{pts: pkt.Pts(), pixelFormat: -1, sampleFormat: -1}
	switch c.stream.Kind {
	case media.MediaTypeVideo:
		f.width, f.height, f.pixelFormat = c.stream.Width, c.stream.Height, c.stream.Format
		if c.hw != nil {
			f.pixelFormat = c.hw.PixelFormat
			f.hardware = true
		}
	case media.MediaTypeAudio:
		f.sampleFormat = c.stream.Format
		f.sampleRate = c.stream.SampleRate
		f.channels = c.stream.Channels
		f.nbSamples = int(pkt.Duration())
	}
	c.queue = append(c.queue, c.eng.newFrame(f))
	return nil
}

func (c *decodeContext) ReceiveFrame() (media.RawFrame, error) {
	if len(c.queue) > c.codec.Delay || (c.draining && len(c.queue) > 0) {
		f := c.queue[0]
		c.queue = c.queue[1:]
		return f, nil
	}
	if c.draining {
		return nil, engine.ErrEndOfStream
	}
	return nil, engine.ErrTryAgain
}

func (c *decodeContext) Reset() error {
	for _, f := range c.queue {
		f.Free()
	}
	c.queue = nil
	c.draining = false
	c.eng.event("reset-decoder %s", c.codec.Name)
	return nil
}

func (c *decodeContext) Free() {
	c.once.Do(func() {
		for _, f := range c.queue {
			f.Free()
		}
		c.queue = nil
		c.eng.free("decoder")
		c.eng.event("free-decoder %s", c.codec.Name)
	})
}

type encoderCodec struct {
	eng   *Engine
	codec *Codec
}

func (c *encoderCodec) ID() int               { return c.codec.ID }
func (c *encoderCodec) Name() string          { return c.codec.Name }
func (c *encoderCodec) Kind() media.MediaType { return c.codec.Kind }

func (c *encoderCodec) NewContext(cfg engine.EncoderConfig) (engine.EncodeContext, error) {
	if c.codec.OpenError != nil {
		return nil, c.codec.OpenError
	}
	if _, ok := cfg.Options["bogus"]; ok {
		return nil, fmt.Errorf("%w: option bogus not found", ErrInvalidData)
	}
	if cfg.TimeBase.IsZero() {
		cfg.TimeBase = media.NewRational(1, 1)
	}
	cfg.Kind = c.codec.Kind
	c.eng.alloc("encoder")
	return &encodeContext{eng: c.eng, codec: c.codec, cfg: cfg}, nil
}

type encodeContext struct {
	eng   *Engine
	codec *Codec
	cfg   engine.EncoderConfig

	draining bool
	sends    int
	queue    []*Packet
	once     sync.Once
}

func (c *encodeContext) Config() engine.EncoderConfig { return c.cfg }
func (c *encodeContext) TimeBase() media.Rational     { return c.cfg.TimeBase }
func (c *encodeContext) FrameSize() int               { return c.codec.FrameSize }

func (c *encodeContext) SendFrame(frame *media.Frame) error {
	if c.draining {
		return engine.ErrEndOfStream
	}
	if frame == nil {
		c.draining = true
		return nil
	}
	if c.codec.MaxPending > 0 && len(c.queue) >= c.codec.MaxPending {
		return engine.ErrTryAgain
	}

	c.sends++
	if c.codec.FailAfter > 0 && c.sends >= c.codec.FailAfter {
		return fmt.Errorf("%w: encoder failure", ErrInvalidData)
	}
	if c.codec.FrameSize > 0 && frame.NbSamples() != c.codec.FrameSize {
		return fmt.Errorf("%w: got %d samples, want %d", ErrFrameSize, frame.NbSamples(), c.codec.FrameSize)
	}
	if c.codec.Kind == media.MediaTypeVideo && c.cfg.PixelFormat != frame.PixelFormat() {
		return fmt.Errorf("%w: pixel format %d, want %d", ErrInvalidData, frame.PixelFormat(), c.cfg.PixelFormat)
	}

	p := Packet{pts: frame.Pts(), dts: frame.Pts(), stream: 0}
	if c.codec.Kind == media.MediaTypeAudio {
		p.duration = int64(frame.NbSamples())
	}
	p.data = []byte(fmt.Sprintf("%s/%d", c.codec.Name, frame.Pts()))
	c.queue = append(c.queue, c.eng.newPacket(p))
	return nil
}

func (c *encodeContext) ReceivePacket() (media.RawPacket, error) {
	if len(c.queue) > c.codec.Delay || (c.draining && len(c.queue) > 0) {
		p := c.queue[0]
		c.queue = c.queue[1:]
		return p, nil
	}
	if c.draining {
		return nil, engine.ErrEndOfStream
	}
	return nil, engine.ErrTryAgain
}

func (c *encodeContext) Reset() error {
	for _, p := range c.queue {
		p.Free()
	}
	c.queue = nil
	c.draining = false
	c.eng.event("reset-encoder %s", c.codec.Name)
	return nil
}

func (c *encodeContext) Free() {
	c.once.Do(func() {
		for _, p := range c.queue {
			p.Free()
		}
		c.queue = nil
		c.eng.free("encoder")
		c.eng.event("free-encoder %s", c.codec.Name)
	})
}
