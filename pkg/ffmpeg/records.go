//go:build cgo_enabled

package ffmpeg

import (
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/harshabose/avpipe/pkg/media"
)

type frame struct {
	f *astiav.Frame
}

func (f *frame) Pts() int64        { return f.f.Pts() }
func (f *frame) SetPts(pts int64)  { f.f.SetPts(pts) }
func (f *frame) Width() int        { return f.f.Width() }
func (f *frame) Height() int       { return f.f.Height() }
func (f *frame) PixelFormat() int  { return int(f.f.PixelFormat()) }
func (f *frame) SampleFormat() int { return int(f.f.SampleFormat()) }
func (f *frame) SampleRate() int   { return f.f.SampleRate() }
func (f *frame) Channels() int     { return f.f.ChannelLayout().Channels() }
func (f *frame) NbSamples() int    { return f.f.NbSamples() }

// Clone copies the frame data into buffers owned by the clone.
func (f *frame) Clone() (media.RawFrame, error) {
	c := astiav.AllocFrame()
	if c == nil {
		return nil, fmt.Errorf("clone frame: %w", ErrorGeneralAllocate)
	}
	if err := c.Ref(f.f); err != nil {
		c.Free()
		return nil, fmt.Errorf("clone frame: %w", err)
	}
	if err := c.MakeWritable(); err != nil {
		c.Free()
		return nil, fmt.Errorf("clone frame: %w", err)
	}
	return &frame{f: c}, nil
}

func (f *frame) Free() {
	f.f.Free()
}

func asFrame(raw media.RawFrame) (*astiav.Frame, error) {
	f, ok := raw.(*frame)
	if !ok {
		return nil, ErrorForeignObject
	}
	return f.f, nil
}

type packet struct {
	p *astiav.Packet
}

func (p *packet) StreamIndex() int     { return p.p.StreamIndex() }
func (p *packet) SetStreamIndex(i int) { p.p.SetStreamIndex(i) }
func (p *packet) Pts() int64           { return p.p.Pts() }
func (p *packet) SetPts(v int64)       { p.p.SetPts(v) }
func (p *packet) Dts() int64           { return p.p.Dts() }
func (p *packet) SetDts(v int64)       { p.p.SetDts(v) }
func (p *packet) Duration() int64      { return p.p.Duration() }
func (p *packet) SetDuration(v int64)  { p.p.SetDuration(v) }
func (p *packet) Data() []byte         { return p.p.Data() }

func (p *packet) Clone() (media.RawPacket, error) {
	c := p.p.Clone()
	if c == nil {
		return nil, fmt.Errorf("clone packet: %w", ErrorGeneralAllocate)
	}
	return &packet{p: c}, nil
}

func (p *packet) Free() {
	p.p.Free()
}

func asPacket(raw media.RawPacket) (*astiav.Packet, error) {
	p, ok := raw.(*packet)
	if !ok {
		return nil, ErrorForeignObject
	}
	return p.p, nil
}
