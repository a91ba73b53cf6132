package transcode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/engine/enginetest"
	"github.com/harshabose/avpipe/pkg/media"
)

func hardwareEngine(configs ...engine.HardwareConfig) *enginetest.Engine {
	eng := newTestEngine()
	eng.AddDecoder(&enginetest.Codec{
		ID: enginetest.CodecH264, Name: "h264", Kind: media.MediaTypeVideo,
		HardwareConfigs: configs,
	})
	for _, cfg := range configs {
		eng.HardwareTypes = append(eng.HardwareTypes, cfg.DeviceType)
	}
	return eng
}

var (
	cudaConfig  = engine.HardwareConfig{DeviceType: "cuda", PixelFormat: enginetest.PixelFormatCUDA, DeviceContext: true}
	vaapiConfig = engine.HardwareConfig{DeviceType: "vaapi", PixelFormat: enginetest.PixelFormatVAAPI, DeviceContext: true}
)

func TestDecoder_SetupTwice(t *testing.T) {
	eng := newTestEngine()
	eng.AddContainer("in.mkv", sampleContainer(1, 1))
	m := probeStreams(t, eng, "in.mkv")
	video, _ := m.BestVideo()

	d, err := NewDecoder(eng)
	require.NoError(t, err)

	_, err = d.Setup(video, nil)
	require.NoError(t, err)

	_, err = d.Setup(video, nil)
	assert.ErrorIs(t, err, ErrDecoderAlreadySetup)

	d.Close()
	assert.Zero(t, eng.Live(), eng.LiveByKind())
}

func TestDecoder_CodecNotFoundNamesCodec(t *testing.T) {
	eng := newTestEngine()
	c := sampleContainer(1, 0)
	c.Streams[0].CodecID = enginetest.CodecHEVC
	eng.AddContainer("in.mkv", c)
	m := probeStreams(t, eng, "in.mkv")

	d, err := NewDecoder(eng)
	require.NoError(t, err)
	defer d.Close()

	_, err = d.Setup(m.Streams[0], nil)
	require.ErrorIs(t, err, ErrCodecNotFound)
	assert.Contains(t, err.Error(), "codec-173")
}

func TestDecoder_InvalidOptions(t *testing.T) {
	eng := newTestEngine()
	eng.AddContainer("in.mkv", sampleContainer(1, 0))
	m := probeStreams(t, eng, "in.mkv")

	d, err := NewDecoder(eng)
	require.NoError(t, err)

	_, err = d.Setup(m.Streams[0], map[string]string{"": "x"})
	assert.ErrorIs(t, err, ErrInvalidOption)

	_, err = d.Setup(m.Streams[0], map[string]string{"bogus": "1"})
	assert.ErrorIs(t, err, enginetest.ErrInvalidData)
	_, ok := d.Context(0)
	assert.False(t, ok)
	assert.Zero(t, eng.Live(), "failed setup must free its context")

	d.Close()
}

func TestDecoder_HardwareFallsThroughFailedDevices(t *testing.T) {
	eng := hardwareEngine(cudaConfig, vaapiConfig)
	eng.FailDevices["cuda"] = true
	eng.AddContainer("in.mkv", sampleContainer(1, 0))
	m := probeStreams(t, eng, "in.mkv")

	d, err := NewDecoder(eng, WithAnyHardwareDecoder())
	require.NoError(t, err)
	defer d.Close()

	c, err := d.Setup(m.Streams[0], nil)
	require.NoError(t, err)
	require.NotNil(t, c.Hardware())
	assert.Equal(t, "vaapi", c.Hardware().DeviceType)
	assert.Equal(t, "h264_vaapi", c.CodecName())

	pkt := packetFor(eng, m.Streams[0], 0, 33)
	frames, err := d.Decode(pkt)
	pkt.Release()
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.True(t, frames[0].Frame.IsHardware())
	assert.Equal(t, enginetest.PixelFormatVAAPI, frames[0].Frame.PixelFormat())
	releaseAll(frames)
}

func TestDecoder_HardwareOnlyEnabledTypes(t *testing.T) {
	eng := hardwareEngine(cudaConfig, vaapiConfig)
	eng.AddContainer("in.mkv", sampleContainer(1, 0))
	m := probeStreams(t, eng, "in.mkv")

	d, err := NewDecoder(eng, WithHardwareDecoder("vaapi"))
	require.NoError(t, err)
	defer d.Close()

	c, err := d.Setup(m.Streams[0], nil)
	require.NoError(t, err)
	require.NotNil(t, c.Hardware())
	assert.Equal(t, "vaapi", c.Hardware().DeviceType)
	assert.NotContains(t, eng.Events(), "attach-hw cuda")
}

func TestDecoder_SoftwareFallback(t *testing.T) {
	eng := hardwareEngine(cudaConfig)
	eng.FailDevices["cuda"] = true
	eng.AddContainer("in.mkv", sampleContainer(1, 0))
	m := probeStreams(t, eng, "in.mkv")

	d, err := NewDecoder(eng, WithHardwareDecoder("cuda"))
	require.NoError(t, err)
	defer d.Close()

	c, err := d.Setup(m.Streams[0], nil)
	require.NoError(t, err)
	assert.Nil(t, c.Hardware())
	assert.Equal(t, "h264", c.CodecName())

	pkt := packetFor(eng, m.Streams[0], 0, 33)
	frames, err := d.Decode(pkt)
	pkt.Release()
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.False(t, frames[0].Frame.IsHardware())
	releaseAll(frames)
}

func TestDecoder_SupportedHardware(t *testing.T) {
	eng := hardwareEngine(cudaConfig, engine.HardwareConfig{DeviceType: "drm", PixelFormat: 1, DeviceContext: false})
	d, err := NewDecoder(eng)
	require.NoError(t, err)

	types, err := d.SupportedHardware(enginetest.CodecH264)
	require.NoError(t, err)
	assert.Equal(t, []string{"cuda"}, types)

	_, err = d.SupportedHardware(enginetest.CodecHEVC)
	assert.ErrorIs(t, err, ErrCodecNotFound)
}

func TestDecoder_UnregisteredStreamYieldsNothing(t *testing.T) {
	eng := newTestEngine()
	eng.AddContainer("in.mkv", sampleContainer(1, 1))
	m := probeStreams(t, eng, "in.mkv")

	d, err := NewDecoder(eng)
	require.NoError(t, err)
	defer d.Close()
	_, err = d.Setup(m.Streams[0], nil)
	require.NoError(t, err)

	pkt := packetFor(eng, m.Streams[1], 0, 1000)
	frames, err := d.Decode(pkt)
	pkt.Release()
	assert.NoError(t, err)
	assert.Empty(t, frames)
}

func TestDecoder_DelayAndFlush(t *testing.T) {
	eng := newTestEngine()
	eng.AddDecoder(&enginetest.Codec{ID: enginetest.CodecH264, Name: "h264", Kind: media.MediaTypeVideo, Delay: 2})
	eng.AddContainer("in.mkv", sampleContainer(5, 0))
	m := probeStreams(t, eng, "in.mkv")

	d, err := NewDecoder(eng)
	require.NoError(t, err)
	_, err = d.Setup(m.Streams[0], nil)
	require.NoError(t, err)

	var pts []int64
	collect := func(frames []DecodedFrame) {
		for _, f := range frames {
			assert.Equal(t, 0, f.StreamIndex)
			assert.Equal(t, videoTB, f.Frame.TimeBase())
			pts = append(pts, f.Frame.Pts())
		}
		releaseAll(frames)
	}

	decoded := 0
	for i := 0; i < 5; i++ {
		pkt := packetFor(eng, m.Streams[0], int64(i*33), 33)
		frames, err := d.Decode(pkt)
		pkt.Release()
		require.NoError(t, err)
		decoded += len(frames)
		collect(frames)
	}
	assert.Equal(t, 3, decoded)

	frames, err := d.Decode(nil)
	require.NoError(t, err)
	assert.Len(t, frames, 2)
	collect(frames)

	assert.Equal(t, []int64{0, 33, 66, 99, 132}, pts)

	frames, err = d.Flush()
	require.NoError(t, err)
	assert.Empty(t, frames, "flushing a drained decoder yields nothing")

	require.NoError(t, d.Reset())
	pkt := packetFor(eng, m.Streams[0], 165, 33)
	frames, err = d.Decode(pkt)
	pkt.Release()
	require.NoError(t, err)
	assert.Empty(t, frames)

	d.Close()
	assert.Zero(t, eng.Live(), eng.LiveByKind())
}

func TestDecoder_FlushOrdersStreams(t *testing.T) {
	eng := newTestEngine()
	eng.AddDecoder(&enginetest.Codec{ID: enginetest.CodecH264, Name: "h264", Kind: media.MediaTypeVideo, Delay: 1})
	eng.AddDecoder(&enginetest.Codec{ID: enginetest.CodecAAC, Name: "aac", Kind: media.MediaTypeAudio, Delay: 1})
	eng.AddContainer("in.mkv", sampleContainer(1, 1))
	m := probeStreams(t, eng, "in.mkv")

	d, err := NewDecoder(eng)
	require.NoError(t, err)
	defer d.Close()
	for _, s := range []media.StreamDescriptor{m.Streams[1], m.Streams[0]} {
		_, err := d.Setup(s, nil)
		require.NoError(t, err)
	}

	for _, s := range []media.StreamDescriptor{m.Streams[1], m.Streams[0]} {
		pkt := packetFor(eng, s, 0, 1000)
		frames, err := d.Decode(pkt)
		pkt.Release()
		require.NoError(t, err)
		require.Empty(t, frames)
	}

	frames, err := d.Flush()
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, 0, frames[0].StreamIndex)
	assert.Equal(t, 1, frames[1].StreamIndex)
	assert.Equal(t, 1000, frames[1].Frame.NbSamples())
	releaseAll(frames)
}

func TestDecoder_NoProgressIsAnError(t *testing.T) {
	eng := newTestEngine()
	eng.AddDecoder(&enginetest.Codec{ID: enginetest.CodecH264, Name: "h264", Kind: media.MediaTypeVideo, Delay: 1, MaxPending: 1})
	eng.AddContainer("in.mkv", sampleContainer(2, 0))
	m := probeStreams(t, eng, "in.mkv")

	d, err := NewDecoder(eng)
	require.NoError(t, err)
	_, err = d.Setup(m.Streams[0], nil)
	require.NoError(t, err)

	pkt := packetFor(eng, m.Streams[0], 0, 33)
	frames, err := d.Decode(pkt)
	pkt.Release()
	require.NoError(t, err)
	require.Empty(t, frames)

	pkt = packetFor(eng, m.Streams[0], 33, 33)
	frames, err = d.Decode(pkt)
	pkt.Release()
	assert.True(t, errors.Is(err, engine.ErrTryAgain))
	assert.Nil(t, frames)

	d.Close()
	assert.Zero(t, eng.Live(), eng.LiveByKind())
}

func TestDecoder_HardErrorReleasesFrames(t *testing.T) {
	eng := newTestEngine()
	eng.AddDecoder(&enginetest.Codec{ID: enginetest.CodecH264, Name: "h264", Kind: media.MediaTypeVideo, FailAfter: 2})
	eng.AddContainer("in.mkv", sampleContainer(2, 0))
	m := probeStreams(t, eng, "in.mkv")

	d, err := NewDecoder(eng)
	require.NoError(t, err)
	_, err = d.Setup(m.Streams[0], nil)
	require.NoError(t, err)

	pkt := packetFor(eng, m.Streams[0], 0, 33)
	frames, err := d.Decode(pkt)
	pkt.Release()
	require.NoError(t, err)
	releaseAll(frames)

	pkt = packetFor(eng, m.Streams[0], 33, 33)
	_, err = d.Decode(pkt)
	pkt.Release()
	assert.ErrorIs(t, err, enginetest.ErrInvalidData)

	d.Close()
	assert.Zero(t, eng.Live(), eng.LiveByKind())
}

func TestDecoder_RebindUnknownStream(t *testing.T) {
	d, err := NewDecoder(newTestEngine())
	require.NoError(t, err)
	assert.ErrorIs(t, d.Rebind(media.StreamDescriptor{Index: 4}), ErrInvalidStream)
}
