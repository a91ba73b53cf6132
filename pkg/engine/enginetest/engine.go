// Package enginetest provides a deterministic in-memory engine.Engine. It
// tracks every allocation so tests can assert that nothing leaks and that
// teardown happens in the expected order.
package enginetest

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/harshabose/avpipe/pkg/avio"
	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/media"
)

const (
	CodecH264  = 27
	CodecHEVC  = 173
	CodecPCM   = 65536
	CodecAAC   = 86018
	CodecOpus  = 86076
	CodecSRT   = 94216
	CodecMJPEG = 7
)

const (
	PixelFormatYUV420P = 0
	PixelFormatNV12    = 23
	PixelFormatCUDA    = 117
	PixelFormatVAAPI   = 44

	SampleFormatS16  = 1
	SampleFormatFLT  = 3
	SampleFormatFLTP = 8
)

var (
	ErrNotFound    = errors.New("enginetest: not found")
	ErrInvalidData = errors.New("enginetest: invalid data found when processing input")
	ErrDevice      = errors.New("enginetest: device creation failed")
	ErrFrameSize   = errors.New("enginetest: invalid frame size")
	ErrState       = errors.New("enginetest: invalid state")
)

// PacketData is a container packet before it is read, or after it is written.
type PacketData struct {
	Stream   int
	Pts      int64
	Dts      int64
	Duration int64
	Data     []byte
}

// Container is an input the engine can open, by URL or by content through custom IO.
type Container struct {
	Format     string
	MimeTypes  string
	Duration   float64
	BitRate    int64
	Streams    []media.StreamDescriptor
	Packets    []PacketData
	ProbeError error
}

// Codec describes the behaviour of one fake decoder or encoder.
type Codec struct {
	ID   int
	Name string
	Kind media.MediaType

	// Delay frames (or packets) are held back until the codec is drained.
	Delay int
	// FrameSize is the fixed audio frame size an encoder demands.
	FrameSize int
	// MaxPending makes send return ErrTryAgain while this many outputs wait.
	MaxPending int

	HardwareConfigs []engine.HardwareConfig
	OpenError       error

	// Options, PixelFormats and SampleFormats are reported by Describe*.
	Options       []string
	PixelFormats  []string
	SampleFormats []string
	// FailAfter makes the codec fail on the Nth send (1-based).
	FailAfter int
}

type Engine struct {
	mu sync.Mutex

	containers map[string]*Container
	decoders   map[int]*Codec
	encoders   map[int]*Codec
	byName     map[string]*Codec

	HardwareTypes []string
	FailDevices   map[string]bool
	ShortReads    bool

	live    map[string]int
	events  []string
	outputs []*Output
}

func New() *Engine {
	return &Engine{
		containers:  map[string]*Container{},
		decoders:    map[int]*Codec{},
		encoders:    map[int]*Codec{},
		byName:      map[string]*Codec{},
		FailDevices: map[string]bool{},
		live:        map[string]int{},
	}
}

// AddContainer registers c under key. Opening by URL uses key as the URL;
// custom IO inputs match when the bytes read through the bridge equal key.
func (e *Engine) AddContainer(key string, c *Container) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range c.Streams {
		c.Streams[i].Index = i
	}
	e.containers[key] = c
}

func (e *Engine) AddDecoder(c *Codec) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.decoders[c.ID] = c
}

func (e *Engine) AddEncoder(c *Codec) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.encoders[c.ID] = c
	e.byName[c.Name] = c
}

func (e *Engine) alloc(kind string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.live[kind]++
}

func (e *Engine) free(kind string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.live[kind]--
	if e.live[kind] < 0 {
		panic(fmt.Sprintf("enginetest: double free of %s", kind))
	}
}

func (e *Engine) event(format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, fmt.Sprintf(format, args...))
}

// Live is the number of engine objects currently allocated.
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := 0
	for _, n := range e.live {
		total += n
	}
	return total
}

// LiveByKind reports outstanding allocations per object kind.
func (e *Engine) LiveByKind() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := map[string]int{}
	for k, n := range e.live {
		if n != 0 {
			out[k] = n
		}
	}
	return out
}

func (e *Engine) Events() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func (e *Engine) Outputs() []*Output {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Output(nil), e.outputs...)
}

// LastOutput returns the most recently allocated output, or nil.
func (e *Engine) LastOutput() *Output {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.outputs) == 0 {
		return nil
	}
	return e.outputs[len(e.outputs)-1]
}

// ### IO

type ioContext struct {
	eng  *Engine
	cb   avio.Callbacks
	size int
	once sync.Once
}

func (c *ioContext) Free() {
	c.once.Do(func() {
		c.eng.free("io")
		c.eng.event("free-io")
	})
}

func (e *Engine) NewIOContext(bufferSize int, writable bool, cb avio.Callbacks) (avio.Context, error) {
	if (writable && cb.Write == nil) || (!writable && cb.Read == nil) {
		return nil, fmt.Errorf("%w: missing callback", ErrState)
	}
	e.alloc("io")
	return &ioContext{eng: e, cb: cb, size: bufferSize}, nil
}

func (c *ioContext) readAll() []byte {
	var out []byte
	buf := make([]byte, c.size)
	for {
		n, err := c.cb.Read(buf)
		out = append(out, buf[:n]...)
		if err != nil || n == 0 {
			return out
		}
	}
}

// ### Lookups

func (e *Engine) FindDecoder(codecID int) (engine.DecoderCodec, error) {
	e.mu.Lock()
	c, ok := e.decoders[codecID]
	e.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &decoderCodec{eng: e, codec: c}, nil
}

func (e *Engine) FindEncoder(codecID int) (engine.EncoderCodec, error) {
	e.mu.Lock()
	c, ok := e.encoders[codecID]
	e.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &encoderCodec{eng: e, codec: c}, nil
}

func (e *Engine) FindEncoderByName(name string) (engine.EncoderCodec, error) {
	e.mu.Lock()
	c, ok := e.byName[name]
	e.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &encoderCodec{eng: e, codec: c}, nil
}

func (e *Engine) CodecName(codecID int) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.decoders[codecID]; ok {
		return c.Name
	}
	if c, ok := e.encoders[codecID]; ok {
		return c.Name
	}
	return fmt.Sprintf("codec-%d", codecID)
}

func (e *Engine) HardwareDeviceTypes() []string {
	out := append([]string(nil), e.HardwareTypes...)
	sort.Strings(out)
	return out
}

func (e *Engine) DescribeDecoder(codecID int) (engine.CodecInfo, error) {
	e.mu.Lock()
	c, ok := e.decoders[codecID]
	e.mu.Unlock()
	if !ok {
		return engine.CodecInfo{}, ErrNotFound
	}
	return c.info(), nil
}

func (e *Engine) DescribeEncoder(name string) (engine.CodecInfo, error) {
	e.mu.Lock()
	c, ok := e.byName[name]
	e.mu.Unlock()
	if !ok {
		return engine.CodecInfo{}, fmt.Errorf("%w: encoder %s", ErrNotFound, name)
	}
	return c.info(), nil
}

func (c *Codec) info() engine.CodecInfo {
	return engine.CodecInfo{
		Name:          c.Name,
		Kind:          c.Kind,
		Options:       append([]string(nil), c.Options...),
		PixelFormats:  append([]string(nil), c.PixelFormats...),
		SampleFormats: append([]string(nil), c.SampleFormats...),
	}
}

var pixelFormats = map[string]int{
	"yuv420p": PixelFormatYUV420P,
	"nv12":    PixelFormatNV12,
	"cuda":    PixelFormatCUDA,
	"vaapi":   PixelFormatVAAPI,
}

var sampleFormats = map[string]int{
	"s16":  SampleFormatS16,
	"flt":  SampleFormatFLT,
	"fltp": SampleFormatFLTP,
}

func (e *Engine) PixelFormatByName(name string) (int, error) {
	if v, ok := pixelFormats[name]; ok {
		return v, nil
	}
	return -1, fmt.Errorf("%w: pixel format %q", ErrNotFound, name)
}

func (e *Engine) SampleFormatByName(name string) (int, error) {
	if v, ok := sampleFormats[name]; ok {
		return v, nil
	}
	return -1, fmt.Errorf("%w: sample format %q", ErrNotFound, name)
}

// VideoStream and AudioStream build descriptors for containers.
func VideoStream(codecID, width, height int, fps float64, tb media.Rational) media.StreamDescriptor {
	return media.StreamDescriptor{
		Kind:      media.MediaTypeVideo,
		CodecID:   codecID,
		Width:     width,
		Height:    height,
		FPS:       fps,
		Format:    PixelFormatYUV420P,
		TimeBase:  tb,
		FrameRate: media.NewRational(int(fps), 1),
	}
}

func AudioStream(codecID, sampleRate, channels, sampleFormat int) media.StreamDescriptor {
	return media.StreamDescriptor{
		Kind:       media.MediaTypeAudio,
		CodecID:    codecID,
		SampleRate: sampleRate,
		Channels:   channels,
		Format:     sampleFormat,
		TimeBase:   media.NewRational(1, sampleRate),
	}
}

func SubtitleStream(codecID int, language string) media.StreamDescriptor {
	return media.StreamDescriptor{
		Kind:     media.MediaTypeSubtitle,
		CodecID:  codecID,
		Language: language,
		TimeBase: media.NewRational(1, 1000),
	}
}

var _ engine.Engine = (*Engine)(nil)
