package transcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/engine/enginetest"
	"github.com/harshabose/avpipe/pkg/media"
)

var stereo48k = engine.AudioFormat{SampleFormat: enginetest.SampleFormatFLTP, SampleRate: 48000, Channels: 2}

func drainAll(t *testing.T, f *AudioFifo, n int) []int64 {
	t.Helper()
	var pts []int64
	for {
		frame, ok, err := f.Drain(n)
		require.NoError(t, err)
		if !ok {
			return pts
		}
		assert.Equal(t, n, frame.NbSamples())
		assert.Equal(t, stereo48k.TimeBase(), frame.TimeBase())
		pts = append(pts, frame.Pts())
		frame.Release()
	}
}

func TestAudioFifo_FixedBlocks(t *testing.T) {
	eng := newTestEngine()
	f, err := NewAudioFifo(eng, stereo48k)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		frame := audioFrame(eng, int64(i*1000), 1000, audioTB)
		require.NoError(t, f.Buffer(frame))
		frame.Release()
	}
	assert.Equal(t, 5000, f.Size())

	assert.Equal(t, []int64{0, 1024, 2048, 3072}, drainAll(t, f, 1024))
	assert.Equal(t, 5000-4*1024, f.Size())

	next, seeded := f.PTS()
	assert.True(t, seeded)
	assert.Equal(t, int64(4096), next)

	f.Close()
	assert.Zero(t, eng.Live(), eng.LiveByKind())
}

func TestAudioFifo_SeedsFromFirstFrame(t *testing.T) {
	eng := newTestEngine()

	t.Run("rescaled", func(t *testing.T) {
		f, err := NewAudioFifo(eng, stereo48k)
		require.NoError(t, err)
		defer f.Close()

		frame := audioFrame(eng, 500, 2048, media.NewRational(1, 1000))
		require.NoError(t, f.Buffer(frame))
		frame.Release()
		assert.Equal(t, []int64{24000, 25024}, drainAll(t, f, 1024))
	})

	t.Run("no pts", func(t *testing.T) {
		f, err := NewAudioFifo(eng, stereo48k)
		require.NoError(t, err)
		defer f.Close()

		frame := audioFrame(eng, media.NoPTS, 1024, audioTB)
		require.NoError(t, f.Buffer(frame))
		frame.Release()
		assert.Equal(t, []int64{0}, drainAll(t, f, 1024))
	})

	assert.Zero(t, eng.Live(), eng.LiveByKind())
}

func TestAudioFifo_FormatMismatch(t *testing.T) {
	eng := newTestEngine()
	f, err := NewAudioFifo(eng, stereo48k)
	require.NoError(t, err)
	defer f.Close()

	raw := eng.NewAudioFrame(0, 1024, 48000, 2, enginetest.SampleFormatS16)
	frame := media.NewFrame(raw, media.MediaTypeAudio, audioTB)
	defer frame.Release()

	assert.ErrorIs(t, f.Buffer(frame), ErrFormatMismatch)
	assert.Zero(t, f.Size())
}

func TestAudioFifo_Underrun(t *testing.T) {
	eng := newTestEngine()
	eng.ShortReads = true
	f, err := NewAudioFifo(eng, stereo48k)
	require.NoError(t, err)

	frame := audioFrame(eng, 0, 2048, audioTB)
	require.NoError(t, f.Buffer(frame))
	frame.Release()

	out, ok, err := f.Drain(1024)
	assert.ErrorIs(t, err, ErrFifoUnderrun)
	assert.False(t, ok)
	assert.Nil(t, out)

	f.Close()
	assert.Zero(t, eng.Live(), eng.LiveByKind())
}

func TestAudioFifo_InvalidFormat(t *testing.T) {
	_, err := NewAudioFifo(newTestEngine(), engine.AudioFormat{SampleRate: 48000})
	assert.Error(t, err)

	f, err := NewAudioFifo(newTestEngine(), stereo48k)
	require.NoError(t, err)
	defer f.Close()
	_, _, err = f.Drain(0)
	assert.Error(t, err)
}
