package enginetest

import (
	"github.com/harshabose/avpipe/pkg/media"
)

// Frame is the fake engine's decoded frame record.
type Frame struct {
	eng *Engine

	pts          int64
	width        int
	height       int
	pixelFormat  int
	sampleFormat int
	sampleRate   int
	channels     int
	nbSamples    int
	hardware     bool
	freed        bool
}

func (e *Engine) newFrame(f Frame) *Frame {
	e.alloc("frame")
	f.eng = e
	return &f
}

// NewVideoFrame and NewAudioFrame allocate tracked frames for direct use in tests.
func (e *Engine) NewVideoFrame(pts int64, width, height, pixelFormat int) *Frame {
	return e.newFrame(Frame{pts: pts, width: width, height: height, pixelFormat: pixelFormat, sampleFormat: -1})
}

func (e *Engine) NewAudioFrame(pts int64, nbSamples, sampleRate, channels, sampleFormat int) *Frame {
	return e.newFrame(Frame{
		pts:          pts,
		pixelFormat:  -1,
		sampleFormat: sampleFormat,
		sampleRate:   sampleRate,
		channels:     channels,
		nbSamples:    nbSamples,
	})
}

func (f *Frame) Pts() int64        { return f.pts }
func (f *Frame) SetPts(pts int64)  { f.pts = pts }
func (f *Frame) Width() int        { return f.width }
func (f *Frame) Height() int       { return f.height }
func (f *Frame) PixelFormat() int  { return f.pixelFormat }
func (f *Frame) SampleFormat() int { return f.sampleFormat }
func (f *Frame) SampleRate() int   { return f.sampleRate }
func (f *Frame) Channels() int     { return f.channels }
func (f *Frame) NbSamples() int    { return f.nbSamples }
func (f *Frame) Hardware() bool    { return f.hardware }

func (f *Frame) Clone() (media.RawFrame, error) {
	c := *f
	c.freed = false
	return f.eng.newFrame(c), nil
}

func (f *Frame) Free() {
	if f.freed {
		panic("enginetest: frame freed twice")
	}
	f.freed = true
	f.eng.free("frame")
}

// Packet is the fake engine's encoded unit record.
type Packet struct {
	eng *Engine

	stream   int
	pts      int64
	dts      int64
	duration int64
	data     []byte
	freed    bool
}

func (e *Engine) newPacket(p Packet) *Packet {
	e.alloc("packet")
	p.eng = e
	return &p
}

// NewPacket allocates a tracked packet for direct use in tests.
func (e *Engine) NewPacket(d PacketData) *Packet {
	return e.newPacket(Packet{
		stream:   d.Stream,
		pts:      d.Pts,
		dts:      d.Dts,
		duration: d.Duration,
		data:     append([]byte(nil), d.Data...),
	})
}

func (p *Packet) StreamIndex() int     { return p.stream }
func (p *Packet) SetStreamIndex(i int) { p.stream = i }
func (p *Packet) Pts() int64           { return p.pts }
func (p *Packet) SetPts(v int64)       { p.pts = v }
func (p *Packet) Dts() int64           { return p.dts }
func (p *Packet) SetDts(v int64)       { p.dts = v }
func (p *Packet) Duration() int64      { return p.duration }
func (p *Packet) SetDuration(v int64)  { p.duration = v }
func (p *Packet) Data() []byte         { return p.data }

func (p *Packet) Clone() (media.RawPacket, error) {
	c := *p
	c.freed = false
	c.data = append([]byte(nil), p.data...)
	return p.eng.newPacket(c), nil
}

func (p *Packet) Free() {
	if p.freed {
		panic("enginetest: packet freed twice")
	}
	p.freed = true
	p.eng.free("packet")
}
