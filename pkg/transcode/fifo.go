package transcode

import (
	"fmt"

	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/media"
)

// AudioFifo turns variable-sized audio frames into fixed-size ones. Output
// timestamps count samples from the pts of the first buffered frame, in units
// of 1/sample_rate.
type AudioFifo struct {
	queue  engine.SampleQueue
	format engine.AudioFormat

	pts    int64
	seeded bool
}

func NewAudioFifo(eng engine.Buffering, format engine.AudioFormat) (*AudioFifo, error) {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("audio fifo: invalid format %+v", format)
	}
	queue, err := eng.NewSampleQueue(format)
	if err != nil {
		return nil, fmt.Errorf("audio fifo: %w", err)
	}
	return &AudioFifo{queue: queue, format: format}, nil
}

func (f *AudioFifo) Format() engine.AudioFormat {
	return f.format
}

// Size is the number of buffered samples.
func (f *AudioFifo) Size() int {
	return f.queue.Size()
}

// PTS returns the timestamp the next drained frame will carry, once seeded.
func (f *AudioFifo) PTS() (int64, bool) {
	return f.pts, f.seeded
}

// Buffer appends every sample of frame. The caller keeps ownership of frame.
func (f *AudioFifo) Buffer(frame *media.Frame) error {
	if frame.SampleFormat() != f.format.SampleFormat || frame.Channels() != f.format.Channels {
		return fmt.Errorf("%w: got format %d/%dch, want %d/%dch", ErrFormatMismatch,
			frame.SampleFormat(), frame.Channels(), f.format.SampleFormat, f.format.Channels)
	}

	if err := f.queue.Write(frame.Raw()); err != nil {
		return fmt.Errorf("audio fifo: write: %w", err)
	}

	if !f.seeded {
		f.pts = 0
		if pts := frame.Pts(); pts != media.NoPTS {
			f.pts = media.RescaleTS(pts, frame.TimeBase(), f.format.TimeBase())
		}
		f.seeded = true
	}
	return nil
}

// Drain removes exactly n samples into a new frame. ok is false, with no
// error, while fewer than n samples are buffered.
func (f *AudioFifo) Drain(n int) (frame *media.Frame, ok bool, err error) {
	if n <= 0 {
		return nil, false, fmt.Errorf("audio fifo: invalid drain size %d", n)
	}
	if f.queue.Size() < n {
		return nil, false, nil
	}

	raw, got, err := f.queue.Read(n)
	if err != nil {
		return nil, false, fmt.Errorf("audio fifo: read: %w", err)
	}
	out := media.NewFrame(raw, media.MediaTypeAudio, f.format.TimeBase())
	if got != n {
		out.Release()
		return nil, false, fmt.Errorf("%w: read %d of %d samples", ErrFifoUnderrun, got, n)
	}

	out.SetPts(f.pts)
	f.pts += int64(n)
	return out, true, nil
}

func (f *AudioFifo) Close() {
	if f.queue != nil {
		f.queue.Free()
		f.queue = nil
	}
}
