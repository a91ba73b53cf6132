package media

import "runtime"

// RawPacket is an engine-allocated encoded unit. Free returns it to the engine.
type RawPacket interface {
	StreamIndex() int
	SetStreamIndex(int)
	Pts() int64
	SetPts(int64)
	Dts() int64
	SetDts(int64)
	Duration() int64
	SetDuration(int64)
	Data() []byte
	Clone() (RawPacket, error)
	Free()
}

// Packet exclusively owns one RawPacket with the same release contract as Frame.
// The timebase is tracked on the handle since not every engine record carries one.
type Packet struct {
	raw      RawPacket
	timeBase Rational
}

func NewPacket(raw RawPacket, timeBase Rational) *Packet {
	if raw == nil {
		panic("media: NewPacket with nil raw packet")
	}
	p := &Packet{raw: raw, timeBase: timeBase}
	runtime.SetFinalizer(p, (*Packet).Release)
	return p
}

func (p *Packet) live() RawPacket {
	if p.raw == nil {
		panic(ErrReleased)
	}
	return p.raw
}

func (p *Packet) Raw() RawPacket {
	return p.live()
}

func (p *Packet) Released() bool {
	return p.raw == nil
}

func (p *Packet) Release() {
	if p.raw == nil {
		return
	}
	raw := p.raw
	p.raw = nil
	runtime.SetFinalizer(p, nil)
	raw.Free()
}

func (p *Packet) Clone() (*Packet, error) {
	raw, err := p.live().Clone()
	if err != nil {
		return nil, err
	}
	return NewPacket(raw, p.timeBase), nil
}

func (p *Packet) TimeBase() Rational {
	return p.timeBase
}

func (p *Packet) SetTimeBase(tb Rational) {
	p.timeBase = tb
}

// Rescale moves pts, dts and duration into tb and adopts it as the packet timebase.
func (p *Packet) Rescale(tb Rational) {
	raw := p.live()
	if p.timeBase.IsZero() || p.timeBase == tb {
		p.timeBase = tb
		return
	}
	raw.SetPts(RescaleTS(raw.Pts(), p.timeBase, tb))
	raw.SetDts(RescaleTS(raw.Dts(), p.timeBase, tb))
	if d := raw.Duration(); d > 0 {
		raw.SetDuration(RescaleQ(d, p.timeBase, tb))
	}
	p.timeBase = tb
}

func (p *Packet) StreamIndex() int {
	return p.live().StreamIndex()
}

func (p *Packet) SetStreamIndex(i int) {
	p.live().SetStreamIndex(i)
}

func (p *Packet) Pts() int64 {
	return p.live().Pts()
}

func (p *Packet) SetPts(pts int64) {
	p.live().SetPts(pts)
}

func (p *Packet) Dts() int64 {
	return p.live().Dts()
}

func (p *Packet) SetDts(dts int64) {
	p.live().SetDts(dts)
}

func (p *Packet) Duration() int64 {
	return p.live().Duration()
}

func (p *Packet) SetDuration(d int64) {
	p.live().SetDuration(d)
}

// Data returns the payload. The slice aliases engine memory and is only valid
// until the packet is released.
func (p *Packet) Data() []byte {
	return p.live().Data()
}
