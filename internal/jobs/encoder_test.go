package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshabose/avpipe/internal/config"
	"github.com/harshabose/avpipe/pkg/engine/enginetest"
	"github.com/harshabose/avpipe/pkg/media"
)

func TestNewEncoder_FollowsSource(t *testing.T) {
	eng := newTestEngine()
	video := enginetest.VideoStream(enginetest.CodecH264, 640, 360, 30, media.NewRational(1, 1000))

	enc, err := newEncoder(eng, video, config.Encoder{Codec: "libx264"}, true)
	require.NoError(t, err)
	defer enc.Close()

	cfg := enc.Config()
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 360, cfg.Height)
	assert.Equal(t, enginetest.PixelFormatYUV420P, cfg.PixelFormat)
	assert.Equal(t, media.NewRational(30, 1), cfg.FrameRate)
	assert.Equal(t, media.NewRational(1, 30), enc.TimeBase())
	assert.True(t, cfg.GlobalHeader)
}

func TestNewEncoder_OverridesAndOptions(t *testing.T) {
	eng := newTestEngine()
	audio := enginetest.AudioStream(enginetest.CodecAAC, 44100, 2, enginetest.SampleFormatFLTP)

	enc, err := newEncoder(eng, audio, config.Encoder{
		Codec:        "aac",
		SampleRate:   48000,
		Channels:     1,
		SampleFormat: "s16",
		Bitrate:      128000,
		Options:      map[string]string{"b": "x", "a": "y"},
	}, false)
	require.NoError(t, err)
	defer enc.Close()

	cfg := enc.Config()
	assert.Equal(t, 48000, cfg.SampleRate)
	assert.Equal(t, 1, cfg.Channels)
	assert.Equal(t, enginetest.SampleFormatS16, cfg.SampleFormat)
	assert.Equal(t, int64(128000), cfg.BitRate)
	assert.Equal(t, map[string]string{"a": "y", "b": "x"}, cfg.Options)
	assert.False(t, cfg.GlobalHeader)
}

func TestNewEncoder_Errors(t *testing.T) {
	eng := newTestEngine()
	video := enginetest.VideoStream(enginetest.CodecH264, 640, 360, 30, media.NewRational(1, 1000))

	_, err := newEncoder(eng, video, config.Encoder{Codec: "libx264", PixelFormat: "rgb48"}, false)
	assert.ErrorIs(t, err, enginetest.ErrNotFound)

	_, err = newEncoder(eng, video, config.Encoder{Codec: "aac"}, false)
	assert.Error(t, err)

	_, err = newEncoder(eng, enginetest.SubtitleStream(enginetest.CodecSRT, "eng"), config.Encoder{Codec: "srt"}, false)
	assert.Error(t, err)
}

func TestEncoderBuilder_FromConfig(t *testing.T) {
	eng := newTestEngine()
	video := enginetest.VideoStream(enginetest.CodecH264, 640, 360, 30, media.NewRational(1, 1000))

	b, err := encoderBuilder(eng, video, config.Encoder{
		Codec:   "libx264",
		Width:   320,
		Height:  180,
		Bitrate: 800_000,
		Options: map[string]string{"preset": "veryfast", "tune": ""},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, "libx264", b.String())

	bps, err := b.GetCurrentBitrate()
	require.NoError(t, err)
	assert.Equal(t, int64(800_000), bps)

	first, err := b.Build(eng)
	require.NoError(t, err)
	defer first.Close()

	require.NoError(t, b.AdaptBitrate(400_000))
	second, err := b.Build(eng)
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, int64(800_000), first.Config().BitRate)
	assert.Equal(t, int64(400_000), second.Config().BitRate)
	assert.Equal(t, 320, second.Config().Width)
	assert.Equal(t, map[string]string{"preset": "veryfast"}, second.Config().Options)
}
