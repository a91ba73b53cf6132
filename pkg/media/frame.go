package media

import (
	"errors"
	"runtime"
)

// ErrReleased is the panic value for any access to a handle after Release.
var ErrReleased = errors.New("media: handle used after release")

// RawFrame is an engine-allocated decoded frame. Free returns it to the engine.
type RawFrame interface {
	Pts() int64
	SetPts(int64)
	Width() int
	Height() int
	PixelFormat() int
	SampleFormat() int
	SampleRate() int
	Channels() int
	NbSamples() int
	Clone() (RawFrame, error)
	Free()
}

// Frame exclusively owns one RawFrame. The raw frame is freed exactly once:
// by Release, or by the garbage collector if the handle is dropped unreleased.
// A Frame may move between goroutines but must not be used by two at once.
type Frame struct {
	raw      RawFrame
	kind     MediaType
	timeBase Rational
	hardware bool
}

func NewFrame(raw RawFrame, kind MediaType, timeBase Rational) *Frame {
	if raw == nil {
		panic("media: NewFrame with nil raw frame")
	}
	f := &Frame{raw: raw, kind: kind, timeBase: timeBase}
	runtime.SetFinalizer(f, (*Frame).Release)
	return f
}

func (f *Frame) live() RawFrame {
	if f.raw == nil {
		panic(ErrReleased)
	}
	return f.raw
}

// Raw exposes the engine record for engine implementations.
func (f *Frame) Raw() RawFrame {
	return f.live()
}

func (f *Frame) Released() bool {
	return f.raw == nil
}

func (f *Frame) Release() {
	if f.raw == nil {
		return
	}
	raw := f.raw
	f.raw = nil
	runtime.SetFinalizer(f, nil)
	raw.Free()
}

// Clone deep-copies the frame through the engine.
func (f *Frame) Clone() (*Frame, error) {
	raw, err := f.live().Clone()
	if err != nil {
		return nil, err
	}
	c := NewFrame(raw, f.kind, f.timeBase)
	c.hardware = f.hardware
	return c, nil
}

func (f *Frame) Kind() MediaType {
	return f.kind
}

func (f *Frame) TimeBase() Rational {
	return f.timeBase
}

func (f *Frame) SetTimeBase(tb Rational) {
	f.timeBase = tb
}

// IsHardware reports whether the frame's planes live in device memory.
func (f *Frame) IsHardware() bool {
	return f.hardware
}

func (f *Frame) SetHardware(hw bool) {
	f.hardware = hw
}

func (f *Frame) Pts() int64 {
	return f.live().Pts()
}

func (f *Frame) SetPts(pts int64) {
	f.live().SetPts(pts)
}

func (f *Frame) Width() int {
	return f.live().Width()
}

func (f *Frame) Height() int {
	return f.live().Height()
}

func (f *Frame) PixelFormat() int {
	return f.live().PixelFormat()
}

func (f *Frame) SampleFormat() int {
	return f.live().SampleFormat()
}

func (f *Frame) SampleRate() int {
	return f.live().SampleRate()
}

func (f *Frame) Channels() int {
	return f.live().Channels()
}

func (f *Frame) NbSamples() int {
	return f.live().NbSamples()
}
