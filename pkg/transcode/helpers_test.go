package transcode

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/engine/enginetest"
	"github.com/harshabose/avpipe/pkg/media"
)

var (
	videoTB = media.NewRational(1, 1000)
	audioTB = media.NewRational(1, 48000)
)

// newTestEngine registers the codecs most tests need: h264 and aac decoders,
// libx264 and aac encoders. The aac encoder has a fixed 1024 sample frame.
func newTestEngine() *enginetest.Engine {
	eng := enginetest.New()
	eng.AddDecoder(&enginetest.Codec{ID: enginetest.CodecH264, Name: "h264", Kind: media.MediaTypeVideo})
	eng.AddDecoder(&enginetest.Codec{ID: enginetest.CodecAAC, Name: "aac", Kind: media.MediaTypeAudio})
	eng.AddEncoder(&enginetest.Codec{ID: enginetest.CodecH264, Name: "libx264", Kind: media.MediaTypeVideo})
	eng.AddEncoder(&enginetest.Codec{ID: enginetest.CodecAAC, Name: "aac", Kind: media.MediaTypeAudio, FrameSize: 1024})
	eng.AddEncoder(&enginetest.Codec{ID: enginetest.CodecPCM, Name: "pcm_s16le", Kind: media.MediaTypeAudio})
	return eng
}

// sampleContainer holds a 640x360 h264 stream, a 48 kHz stereo aac stream
// and one subtitle packet. Audio packets carry 1000 samples each.
func sampleContainer(videoPackets, audioPackets int) *enginetest.Container {
	c := &enginetest.Container{
		Format:    "matroska",
		MimeTypes: "video/x-matroska",
		Duration:  1.5,
		Streams: []media.StreamDescriptor{
			enginetest.VideoStream(enginetest.CodecH264, 640, 360, 30, videoTB),
			enginetest.AudioStream(enginetest.CodecAAC, 48000, 2, enginetest.SampleFormatFLTP),
			enginetest.SubtitleStream(enginetest.CodecSRT, "eng"),
		},
	}

	n := max(videoPackets, audioPackets)
	for i := 0; i < n; i++ {
		if i < videoPackets {
			c.Packets = append(c.Packets, enginetest.PacketData{
				Stream: 0, Pts: int64(i * 33), Dts: int64(i * 33), Duration: 33,
				Data: []byte(fmt.Sprintf("v%d", i)),
			})
		}
		if i < audioPackets {
			c.Packets = append(c.Packets, enginetest.PacketData{
				Stream: 1, Pts: int64(i * 1000), Dts: int64(i * 1000), Duration: 1000,
				Data: []byte(fmt.Sprintf("a%d", i)),
			})
		}
	}
	c.Packets = append(c.Packets, enginetest.PacketData{Stream: 2, Pts: 0, Duration: 1000, Data: []byte("s0")})
	return c
}

func probeStreams(t *testing.T, eng *enginetest.Engine, url string) media.ContainerManifest {
	t.Helper()
	m, err := Probe(eng, engineInput(url))
	require.NoError(t, err)
	return m
}

func packetFor(eng *enginetest.Engine, stream media.StreamDescriptor, pts, duration int64) *media.Packet {
	raw := eng.NewPacket(enginetest.PacketData{Stream: stream.Index, Pts: pts, Dts: pts, Duration: duration})
	return media.NewPacket(raw, stream.TimeBase)
}

func audioFrame(eng *enginetest.Engine, pts int64, samples int, tb media.Rational) *media.Frame {
	return media.NewFrame(eng.NewAudioFrame(pts, samples, 48000, 2, enginetest.SampleFormatFLTP), media.MediaTypeAudio, tb)
}

func videoFrame(eng *enginetest.Engine, pts int64, tb media.Rational) *media.Frame {
	return media.NewFrame(eng.NewVideoFrame(pts, 640, 360, enginetest.PixelFormatYUV420P), media.MediaTypeVideo, tb)
}

func releaseAll(frames []DecodedFrame) {
	releaseDecoded(frames)
}

func engineInput(url string) engine.Input {
	return engine.Input{URL: url}
}
