package engine

import (
	"io"

	"github.com/harshabose/avpipe/pkg/media"
)

// EncoderConfig holds every setting applied to an encoder before it is opened.
// Zero values mean "engine default".
type EncoderConfig struct {
	Kind media.MediaType

	Width       int
	Height      int
	PixelFormat int
	FrameRate   media.Rational

	SampleRate   int
	SampleFormat int
	Channels     int

	TimeBase     media.Rational
	BitRate      int64
	Profile      int
	Level        int
	GlobalHeader bool
	Options      map[string]string
}

func (c EncoderConfig) VideoFormat() VideoFormat {
	return VideoFormat{Width: c.Width, Height: c.Height, PixelFormat: c.PixelFormat}
}

func (c EncoderConfig) AudioFormat() AudioFormat {
	return AudioFormat{SampleFormat: c.SampleFormat, SampleRate: c.SampleRate, Channels: c.Channels}
}

// Input describes where a container is read from. A non-nil Reader takes
// precedence over URL, which then only hints the format.
type Input struct {
	URL        string
	Format     string
	Options    map[string]string
	Reader     io.Reader
	BufferSize int
}

// Output describes where a container is written to. A non-nil Writer takes
// precedence over URL; Format is then required.
type Output struct {
	URL        string
	Format     string
	Writer     io.Writer
	BufferSize int
}
