// Package engine declares the primitives the transcoding core needs from a
// codec/container engine. Implementations live in pkg/ffmpeg and, for tests,
// pkg/engine/enginetest.
package engine

import (
	"errors"
	"io"

	"github.com/harshabose/avpipe/pkg/avio"
	"github.com/harshabose/avpipe/pkg/media"
)

var (
	// ErrTryAgain means the state machine needs the other half of its loop
	// (more input, or draining output) before it can make progress.
	ErrTryAgain = errors.New("engine: resource temporarily unavailable")

	// ErrEndOfStream marks a fully drained stream. It is io.EOF so either
	// sentinel matches with errors.Is.
	ErrEndOfStream = io.EOF
)

// IsTransient reports whether err is a loop-termination signal rather than a failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTryAgain) || errors.Is(err, ErrEndOfStream)
}

type Engine interface {
	avio.ContextFactory
	Demuxing
	Muxing
	Decoding
	Encoding
	Converting
	Buffering
	Formats
	Describing
}

type Demuxing interface {
	OpenInput(spec InputSpec) (InputContext, error)
}

type Muxing interface {
	AllocOutput(spec OutputSpec) (OutputContext, error)
}

type Decoding interface {
	FindDecoder(codecID int) (DecoderCodec, error)
	CodecName(codecID int) string
	// HardwareDeviceTypes lists every accelerator type the engine was built with.
	HardwareDeviceTypes() []string
}

type Encoding interface {
	FindEncoder(codecID int) (EncoderCodec, error)
	FindEncoderByName(name string) (EncoderCodec, error)
}

type Converting interface {
	NewScaler(src, dst VideoFormat) (ScaleContext, error)
	NewResampler(dst AudioFormat) (ResampleContext, error)
	// TransferToHost copies a device-memory frame into a new host frame with the same timestamps.
	TransferToHost(frame media.RawFrame) (media.RawFrame, error)
}

type Buffering interface {
	NewSampleQueue(format AudioFormat) (SampleQueue, error)
}

type Formats interface {
	PixelFormatByName(name string) (int, error)
	SampleFormatByName(name string) (int, error)
}

// Describing lists what a codec accepts. Options are the codec's private
// option names, usable as encoder or decoder settings.
type Describing interface {
	DescribeDecoder(codecID int) (CodecInfo, error)
	DescribeEncoder(name string) (CodecInfo, error)
}

type CodecInfo struct {
	Name          string
	Kind          media.MediaType
	Options       []string
	PixelFormats  []string
	SampleFormats []string
}

// InputSpec addresses a container by URL or by an attached I/O context. With
// IO set, URL is only a hint for format detection.
type InputSpec struct {
	URL     string
	Format  string
	Options map[string]string
	IO      avio.Context
}

type OutputSpec struct {
	URL    string
	Format string
}

type ContainerInfo struct {
	Format    string
	MimeTypes string
	Duration  float64
	BitRate   int64
}

type InputContext interface {
	FindStreamInfo() error
	Streams() []media.StreamDescriptor
	Container() ContainerInfo
	// ReadPacket returns the next packet stamped with its stream's timebase, or ErrEndOfStream.
	ReadPacket() (*media.Packet, error)
	// Close releases the container. An attached I/O context is left to its owner.
	Close() error
}

type OutputContext interface {
	NewStreamFromEncoder(enc EncodeContext) (int, error)
	NewStreamCopy(src media.StreamDescriptor) (int, error)
	StreamTimeBase(index int) media.Rational
	NeedsFile() bool
	NeedsGlobalHeader() bool
	// Open attaches io, or opens the URL when io is nil and NeedsFile, then writes the header.
	Open(io avio.Context, options map[string]string) error
	// WritePacket rescales pkt into its stream's timebase and interleaves it into the output.
	WritePacket(pkt *media.Packet) error
	WriteTrailer() error
	Close() error
}

type HardwareConfig struct {
	DeviceType    string
	PixelFormat   int
	DeviceContext bool
}

type DecoderCodec interface {
	ID() int
	Name() string
	HardwareConfigs() []HardwareConfig
	NewContext() (DecodeContext, error)
}

type DecodeContext interface {
	SetParameters(stream media.StreamDescriptor) error
	AttachHardwareDevice(cfg HardwareConfig) error
	Open(options map[string]string) error
	// SendPacket with nil enters draining mode.
	SendPacket(pkt *media.Packet) error
	ReceiveFrame() (media.RawFrame, error)
	// Reset returns a drained context to its freshly opened state.
	Reset() error
	Free()
}

type EncoderCodec interface {
	ID() int
	Name() string
	Kind() media.MediaType
	NewContext(cfg EncoderConfig) (EncodeContext, error)
}

type EncodeContext interface {
	Config() EncoderConfig
	TimeBase() media.Rational
	// FrameSize is the fixed number of samples per audio frame, or 0 when any size is accepted.
	FrameSize() int
	// SendFrame with nil enters draining mode.
	SendFrame(frame *media.Frame) error
	ReceivePacket() (media.RawPacket, error)
	Reset() error
	Free()
}

type VideoFormat struct {
	Width       int
	Height      int
	PixelFormat int
}

type AudioFormat struct {
	SampleFormat int
	SampleRate   int
	Channels     int
}

// TimeBase is the natural sample-counting timebase of the format.
func (f AudioFormat) TimeBase() media.Rational {
	return media.NewRational(1, f.SampleRate)
}

type ScaleContext interface {
	Scale(src media.RawFrame) (media.RawFrame, error)
	Free()
}

type ResampleContext interface {
	Resample(src media.RawFrame) (media.RawFrame, error)
	Free()
}

// SampleQueue is the engine's audio FIFO.
type SampleQueue interface {
	Write(frame media.RawFrame) error
	Size() int
	// Read removes up to n samples into a new frame and reports how many were read.
	Read(n int) (media.RawFrame, int, error)
	Free()
}
