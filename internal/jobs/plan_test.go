package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshabose/avpipe/internal/config"
	"github.com/harshabose/avpipe/pkg/media"
)

func manifest() media.ContainerManifest {
	return media.ContainerManifest{Streams: []media.StreamDescriptor{
		{Index: 0, Kind: media.MediaTypeVideo, Width: 1280, Height: 720, FPS: 30},
		{Index: 1, Kind: media.MediaTypeAudio, SampleRate: 44100},
		{Index: 2, Kind: media.MediaTypeAudio, SampleRate: 48000},
		{Index: 3, Kind: media.MediaTypeVideo, Width: 1920, Height: 1080, FPS: 30},
		{Index: 4, Kind: media.MediaTypeSubtitle},
	}}
}

func indices(routes []Route) []int {
	out := make([]int, 0, len(routes))
	for _, r := range routes {
		out = append(out, r.Stream.Index)
	}
	return out
}

func TestPlan_BestPicksHighestRanked(t *testing.T) {
	routes, err := Plan(manifest(), config.Job{Streams: []config.StreamRule{
		{Kind: "audio", Select: config.SelectBest, Mode: config.ModeCopy},
		{Kind: "video", Select: config.SelectBest, Mode: config.ModeTranscode, Encoder: &config.Encoder{Codec: "libx264"}},
	}})
	require.NoError(t, err)

	assert.Equal(t, []int{2, 3}, indices(routes))
	assert.True(t, routes[0].Copy())
	assert.False(t, routes[1].Copy())
}

func TestPlan_AllKeepsInputOrder(t *testing.T) {
	routes, err := Plan(manifest(), config.Job{Streams: []config.StreamRule{
		{Kind: "subtitle", Select: config.SelectAll, Mode: config.ModeCopy},
		{Kind: "video", Select: config.SelectAll, Mode: config.ModeCopy},
		{Kind: "audio", Select: config.SelectAll, Mode: config.ModeCopy},
	}})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, indices(routes))
}

func TestPlan_DropRemovesEarlierSelection(t *testing.T) {
	routes, err := Plan(manifest(), config.Job{Streams: []config.StreamRule{
		{Kind: "audio", Select: config.SelectAll, Mode: config.ModeCopy},
		{Kind: "audio", Select: config.SelectBest, Mode: config.ModeDrop},
	}})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, indices(routes))
}

func TestPlan_NothingRouted(t *testing.T) {
	_, err := Plan(manifest(), config.Job{Streams: []config.StreamRule{
		{Kind: "video", Select: config.SelectAll, Mode: config.ModeDrop},
	}})
	assert.ErrorIs(t, err, ErrNothingRouted)

	_, err = Plan(media.ContainerManifest{}, copyJob("empty", "a", "b"))
	assert.ErrorIs(t, err, ErrNothingRouted)
}

func TestPlan_UnknownKind(t *testing.T) {
	_, err := Plan(manifest(), config.Job{Streams: []config.StreamRule{{Kind: "data", Mode: config.ModeCopy}}})
	assert.ErrorIs(t, err, ErrUnknownKind)
}
