package jobs

import (
	"fmt"

	"github.com/harshabose/avpipe/internal/config"
	"github.com/harshabose/avpipe/pkg/engine/enginetest"
	"github.com/harshabose/avpipe/pkg/media"
)

func newTestEngine() *enginetest.Engine {
	eng := enginetest.New()
	eng.AddDecoder(&enginetest.Codec{ID: enginetest.CodecH264, Name: "h264", Kind: media.MediaTypeVideo})
	eng.AddDecoder(&enginetest.Codec{ID: enginetest.CodecAAC, Name: "aac", Kind: media.MediaTypeAudio})
	eng.AddEncoder(&enginetest.Codec{ID: enginetest.CodecH264, Name: "libx264", Kind: media.MediaTypeVideo})
	eng.AddEncoder(&enginetest.Codec{ID: enginetest.CodecAAC, Name: "aac", Kind: media.MediaTypeAudio, FrameSize: 1024})
	return eng
}

// clip holds a 640x360 h264 stream, a 48 kHz stereo aac stream and one
// subtitle packet.
func clip(videoPackets, audioPackets int) *enginetest.Container {
	c := &enginetest.Container{
		Format:   "matroska",
		Duration: 1,
		Streams: []media.StreamDescriptor{
			enginetest.VideoStream(enginetest.CodecH264, 640, 360, 30, media.NewRational(1, 1000)),
			enginetest.AudioStream(enginetest.CodecAAC, 48000, 2, enginetest.SampleFormatFLTP),
			enginetest.SubtitleStream(enginetest.CodecSRT, "eng"),
		},
	}
	for i := 0; i < max(videoPackets, audioPackets); i++ {
		if i < videoPackets {
			c.Packets = append(c.Packets, enginetest.PacketData{
				Stream: 0, Pts: int64(i * 33), Dts: int64(i * 33), Duration: 33,
				Data: []byte(fmt.Sprintf("v%d", i)),
			})
		}
		if i < audioPackets {
			c.Packets = append(c.Packets, enginetest.PacketData{
				Stream: 1, Pts: int64(i * 1024), Dts: int64(i * 1024), Duration: 1024,
				Data: []byte(fmt.Sprintf("a%d", i)),
			})
		}
	}
	c.Packets = append(c.Packets, enginetest.PacketData{Stream: 2, Pts: 0, Duration: 1000, Data: []byte("s0")})
	return c
}

func copyJob(name, input, output string) config.Job {
	return config.Job{
		Name:   name,
		Input:  input,
		Output: output,
		Streams: []config.StreamRule{
			{Kind: "video", Select: config.SelectBest, Mode: config.ModeCopy},
			{Kind: "audio", Select: config.SelectBest, Mode: config.ModeCopy},
		},
	}
}
