//go:build cgo_enabled

package ffmpeg

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/media"
	"github.com/harshabose/avpipe/pkg/transcode"
)

// wav builds a mono 16-bit PCM file holding a sine tone.
func wav(t *testing.T, rate, samples int) []byte {
	t.Helper()

	pcm := new(bytes.Buffer)
	for i := 0; i < samples; i++ {
		v := int16(math.Sin(2*math.Pi*440*float64(i)/float64(rate)) * 8000)
		require.NoError(t, binary.Write(pcm, binary.LittleEndian, v))
	}

	out := new(bytes.Buffer)
	out.WriteString("RIFF")
	_ = binary.Write(out, binary.LittleEndian, uint32(36+pcm.Len()))
	out.WriteString("WAVEfmt ")
	_ = binary.Write(out, binary.LittleEndian, uint32(16))
	_ = binary.Write(out, binary.LittleEndian, uint16(1))
	_ = binary.Write(out, binary.LittleEndian, uint16(1))
	_ = binary.Write(out, binary.LittleEndian, uint32(rate))
	_ = binary.Write(out, binary.LittleEndian, uint32(rate*2))
	_ = binary.Write(out, binary.LittleEndian, uint16(2))
	_ = binary.Write(out, binary.LittleEndian, uint16(16))
	out.WriteString("data")
	_ = binary.Write(out, binary.LittleEndian, uint32(pcm.Len()))
	out.Write(pcm.Bytes())
	return out.Bytes()
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := New()
	require.NoError(t, err)
	return eng
}

func TestEngine_ProbeFromReader(t *testing.T) {
	eng := newEngine(t)

	m, err := transcode.Probe(eng, engine.Input{Reader: bytes.NewReader(wav(t, 8000, 8000)), Format: "wav"})
	require.NoError(t, err)
	require.Equal(t, 1, m.Len())

	s := m.Streams[0]
	assert.Equal(t, media.MediaTypeAudio, s.Kind)
	assert.Equal(t, "pcm_s16le", s.CodecName)
	assert.Equal(t, 8000, s.SampleRate)
	assert.Equal(t, 1, s.Channels)
	assert.Equal(t, "s16", s.FormatName)
	assert.InDelta(t, 1.0, m.Duration, 0.01)
}

// Raw PCM has no length field, so only the reader running dry ends the demuxer.
func TestEngine_ReaderRunsToEOF(t *testing.T) {
	eng := newEngine(t)
	data := bytes.Repeat([]byte{0x80, 0x90, 0x70, 0x80}, 2000)

	d, err := transcode.CreateDemuxer(eng, engine.Input{Reader: bytes.NewReader(data), Format: "u8"})
	require.NoError(t, err)
	defer d.Close()

	m, err := d.Probe()
	require.NoError(t, err)
	require.Equal(t, 1, m.Len())

	total := 0
	for {
		pkt, err := d.ReadPacket()
		if err != nil {
			assert.ErrorIs(t, err, engine.ErrEndOfStream)
			break
		}
		total += len(pkt.Data())
		pkt.Release()
	}
	assert.Equal(t, len(data), total)
	assert.Equal(t, int64(len(data)), d.BridgeStats().BytesRead)
}

func TestEngine_UnconsumedInputOption(t *testing.T) {
	eng := newEngine(t)

	_, err := transcode.Probe(eng, engine.Input{
		Reader:  bytes.NewReader(wav(t, 8000, 800)),
		Format:  "wav",
		Options: map[string]string{"not_an_option": "1"},
	})
	assert.ErrorIs(t, err, ErrorUnconsumedOption)
}

func TestEngine_CopyRemuxToWriter(t *testing.T) {
	eng := newEngine(t)
	out := new(bytes.Buffer)

	tr, err := transcode.CreateTranscoder(eng,
		engine.Input{Reader: bytes.NewReader(wav(t, 8000, 4000)), Format: "wav"},
		engine.Output{Writer: out, Format: "wav"},
	)
	require.NoError(t, err)
	defer tr.Close()

	m, err := tr.Prepare()
	require.NoError(t, err)
	require.NoError(t, tr.CopyStream(m.Streams[0]))
	require.NoError(t, tr.Run(nil))

	require.Greater(t, out.Len(), 8000)
	assert.Equal(t, "RIFF", out.String()[:4])
	assert.Equal(t, int64(out.Len()), tr.Stats().BytesWritten)

	again, err := transcode.Probe(eng, engine.Input{Reader: bytes.NewReader(out.Bytes()), Format: "wav"})
	require.NoError(t, err)
	assert.Equal(t, 8000, again.Streams[0].SampleRate)
}

func TestEngine_TranscodeResamples(t *testing.T) {
	eng := newEngine(t)
	out := new(bytes.Buffer)

	s16, err := eng.SampleFormatByName("s16")
	require.NoError(t, err)

	tr, err := transcode.CreateTranscoder(eng,
		engine.Input{Reader: bytes.NewReader(wav(t, 8000, 8000)), Format: "wav"},
		engine.Output{Writer: out, Format: "wav"},
	)
	require.NoError(t, err)
	defer tr.Close()

	m, err := tr.Prepare()
	require.NoError(t, err)

	enc, err := transcode.CreateEncoderByName(eng, "pcm_s16le",
		transcode.WithSampleRate(16000),
		transcode.WithChannels(1),
		transcode.WithSampleFormat(s16),
	)
	require.NoError(t, err)
	require.NoError(t, tr.TranscodeStream(m.Streams[0], enc))
	require.NoError(t, tr.Run(nil))

	again, err := transcode.Probe(eng, engine.Input{Reader: bytes.NewReader(out.Bytes()), Format: "wav"})
	require.NoError(t, err)
	require.Equal(t, 1, again.Len())
	assert.Equal(t, 16000, again.Streams[0].SampleRate)
	assert.Greater(t, tr.Stats().PacketsEncoded, int64(0))
}

func TestEngine_Formats(t *testing.T) {
	eng := newEngine(t)

	yuv, err := eng.PixelFormatByName("yuv420p")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, yuv, 0)

	_, err = eng.PixelFormatByName("not-a-format")
	assert.ErrorIs(t, err, ErrorUnknownFormat)

	fltp, err := eng.SampleFormatByName("fltp")
	require.NoError(t, err)
	assert.Equal(t, int(astiav.SampleFormatFltp), fltp)

	_, err = eng.SampleFormatByName("not-a-format")
	assert.ErrorIs(t, err, ErrorUnknownFormat)

	aac, err := eng.FindEncoderByName("aac")
	require.NoError(t, err)
	assert.Equal(t, media.MediaTypeAudio, aac.Kind())

	_, err = eng.FindEncoderByName("not-a-codec")
	assert.ErrorIs(t, err, ErrorNoCodecFound)
}

func TestEngine_DescribeCodecs(t *testing.T) {
	eng := newEngine(t)

	aac, err := eng.DescribeEncoder("aac")
	require.NoError(t, err)
	assert.Equal(t, "aac", aac.Name)
	assert.Equal(t, media.MediaTypeAudio, aac.Kind)
	assert.Contains(t, aac.SampleFormats, "fltp")
	assert.Contains(t, aac.Options, "aac_coder")

	h264, err := eng.DescribeDecoder(int(astiav.CodecIDH264))
	require.NoError(t, err)
	assert.Equal(t, "h264", h264.Name)
	assert.Equal(t, media.MediaTypeVideo, h264.Kind)

	_, err = eng.DescribeEncoder("not-a-codec")
	assert.ErrorIs(t, err, ErrorNoCodecFound)
}

func TestLogLevelMapping(t *testing.T) {
	assert.Equal(t, zerolog.ErrorLevel, fromLogLevel(astiav.LogLevelError))
	assert.Equal(t, zerolog.WarnLevel, fromLogLevel(astiav.LogLevelWarning))
	assert.Equal(t, zerolog.InfoLevel, fromLogLevel(astiav.LogLevelInfo))
	assert.Equal(t, zerolog.TraceLevel, fromLogLevel(astiav.LogLevelDebug))
	assert.Equal(t, astiav.LogLevelDebug, toLogLevel(zerolog.TraceLevel))

	assert.Equal(t, astiav.LogLevelQuiet, toLogLevel(zerolog.Disabled))
	assert.Equal(t, astiav.LogLevelWarning, toLogLevel(zerolog.WarnLevel))
}
