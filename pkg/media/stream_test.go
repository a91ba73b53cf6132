package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func manifest(streams ...StreamDescriptor) ContainerManifest {
	for i := range streams {
		streams[i].Index = i
	}
	return ContainerManifest{Format: "matroska", Streams: streams}
}

func TestBestVideoPrefersLargerRaster(t *testing.T) {
	m := manifest(
		StreamDescriptor{Kind: MediaTypeVideo, Width: 640, Height: 480, FPS: 30},
		StreamDescriptor{Kind: MediaTypeAudio, SampleRate: 44100},
		StreamDescriptor{Kind: MediaTypeVideo, Width: 1920, Height: 1080, FPS: 30},
	)

	best, ok := m.BestVideo()
	require.True(t, ok)
	assert.Equal(t, 2, best.Index)
	assert.True(t, m.IsBestStream(2))
	assert.False(t, m.IsBestStream(0))
}

func TestBestAudioPrefersHigherRate(t *testing.T) {
	m := manifest(
		StreamDescriptor{Kind: MediaTypeAudio, SampleRate: 44100},
		StreamDescriptor{Kind: MediaTypeAudio, SampleRate: 48000},
	)

	best, ok := m.BestAudio()
	require.True(t, ok)
	assert.Equal(t, 48000, best.SampleRate)
}

func TestBestStreamTiesKeepEarliest(t *testing.T) {
	m := manifest(
		StreamDescriptor{Kind: MediaTypeAudio, SampleRate: 48000},
		StreamDescriptor{Kind: MediaTypeAudio, SampleRate: 48000},
		StreamDescriptor{Kind: MediaTypeSubtitle},
		StreamDescriptor{Kind: MediaTypeSubtitle},
	)

	audio, ok := m.BestAudio()
	require.True(t, ok)
	assert.Equal(t, 0, audio.Index)

	sub, ok := m.BestSubtitle()
	require.True(t, ok)
	assert.Equal(t, 2, sub.Index)
}

func TestBestStreamMissingKind(t *testing.T) {
	m := manifest(StreamDescriptor{Kind: MediaTypeAudio, SampleRate: 8000})

	_, ok := m.BestVideo()
	assert.False(t, ok)
	assert.Len(t, m.StreamsOf(MediaTypeAudio), 1)
	assert.Equal(t, 1, m.Len())

	_, ok = m.Stream(3)
	assert.False(t, ok)
}

func TestManifestString(t *testing.T) {
	m := manifest(StreamDescriptor{Kind: MediaTypeVideo, CodecName: "h264", Width: 2, Height: 2, FPS: 1, Language: "eng"})
	assert.Contains(t, m.String(), "h264")
	assert.Contains(t, m.String(), "[eng]")
	assert.Contains(t, m.String(), "(best)")
}
