package jobs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshabose/avpipe/internal/config"
	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/engine/enginetest"
	"github.com/harshabose/avpipe/pkg/media"
)

func newRunner(t *testing.T, eng engine.Engine, options ...RunnerOption) *Runner {
	t.Helper()
	options = append([]RunnerOption{WithRunnerLogger(zerolog.Nop())}, options...)
	r, err := NewRunner(eng, options...)
	require.NoError(t, err)
	return r
}

func TestRunner_CopyAndTranscode(t *testing.T) {
	eng := newTestEngine()
	eng.AddContainer("in.mkv", clip(4, 3))

	job := config.Job{
		Name:   "mixed",
		Input:  "in.mkv",
		Output: "out.mkv",
		Streams: []config.StreamRule{
			{Kind: "video", Select: config.SelectBest, Mode: config.ModeTranscode, Encoder: &config.Encoder{Codec: "libx264", Width: 320, Height: 180}},
			{Kind: "audio", Select: config.SelectBest, Mode: config.ModeCopy},
			{Kind: "subtitle", Select: config.SelectAll, Mode: config.ModeDrop},
		},
	}

	res, err := newRunner(t, eng).Run(context.Background(), job)
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "mixed", res.Job)
	require.Len(t, res.Routes, 2)

	out := eng.LastOutput()
	_, header, trailer := out.Snapshot()
	assert.True(t, header)
	assert.True(t, trailer)
	require.Len(t, out.Streams, 2)
	assert.Equal(t, "libx264", out.Streams[0].CodecName)
	assert.True(t, out.Streams[1].Copied)
	assert.Len(t, out.PacketsFor(0), 4)
	assert.Len(t, out.PacketsFor(1), 3)

	assert.Contains(t, eng.Events(), "new-scaler 640x360->320x180")
	assert.Equal(t, int64(8), res.Stats.PacketsRead)
	assert.Equal(t, int64(3), res.Stats.PacketsCopied)
	assert.Equal(t, int64(1), res.Stats.PacketsDropped)
	assert.Equal(t, 0, eng.Live())
}

func TestRunner_CanceledBeforeFirstPacket(t *testing.T) {
	eng := newTestEngine()
	eng.AddContainer("in.mkv", clip(4, 3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newRunner(t, eng).Run(ctx, copyJob("canceled", "in.mkv", "out.mkv"))
	require.ErrorIs(t, err, context.Canceled)

	_, _, trailer := eng.LastOutput().Snapshot()
	assert.False(t, trailer)
	assert.Equal(t, 0, eng.Live())
}

func TestRunner_PlanFailureReleasesEverything(t *testing.T) {
	eng := newTestEngine()
	eng.AddContainer("in.mkv", clip(1, 1))

	job := config.Job{Name: "nothing", Input: "in.mkv", Output: "out.mkv", Streams: []config.StreamRule{
		{Kind: "video", Select: config.SelectAll, Mode: config.ModeDrop},
	}}
	_, err := newRunner(t, eng).Run(context.Background(), job)
	require.ErrorIs(t, err, ErrNothingRouted)
	assert.Contains(t, err.Error(), "job nothing")
	assert.Equal(t, 0, eng.Live())
}

func TestRunner_UnknownEncoder(t *testing.T) {
	eng := newTestEngine()
	eng.AddContainer("in.mkv", clip(1, 1))

	job := copyJob("bad-encoder", "in.mkv", "out.mkv")
	job.Streams[0] = config.StreamRule{Kind: "video", Mode: config.ModeTranscode, Encoder: &config.Encoder{Codec: "libvpx"}}

	_, err := newRunner(t, eng).Run(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "libvpx")
	assert.Equal(t, 0, eng.Live())
}

func TestRunner_AnyHardwareWithDownload(t *testing.T) {
	eng := newTestEngine()
	eng.HardwareTypes = []string{"cuda"}
	eng.AddDecoder(&enginetest.Codec{
		ID: enginetest.CodecH264, Name: "h264", Kind: media.MediaTypeVideo,
		HardwareConfigs: []engine.HardwareConfig{{DeviceType: "cuda", PixelFormat: enginetest.PixelFormatCUDA, DeviceContext: true}},
	})
	eng.AddContainer("in.mkv", clip(2, 0))

	job := config.Job{Name: "hw", Input: "in.mkv", Output: "out.mkv", Streams: []config.StreamRule{{
		Kind: "video", Mode: config.ModeTranscode, HardwareDownload: true,
		Encoder: &config.Encoder{Codec: "libx264"},
	}}}

	_, err := newRunner(t, eng, WithHardware([]string{config.HardwareAny})).Run(context.Background(), job)
	require.NoError(t, err)
	assert.Contains(t, eng.Events(), "attach-hw cuda")
	assert.Len(t, eng.LastOutput().PacketsFor(0), 2)
	assert.Equal(t, 0, eng.Live())
}

func TestRunner_Stdio(t *testing.T) {
	eng := newTestEngine()
	eng.AddContainer("container-from-stdin", clip(2, 0))

	stdout := new(bytes.Buffer)
	r := newRunner(t, eng, WithStdio(strings.NewReader("container-from-stdin"), stdout))

	job := copyJob("pipe", Stdio, Stdio)
	job.OutputFormat = "matroska"
	res, err := r.Run(context.Background(), job)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(stdout.String(), "HEADER;"))
	assert.True(t, strings.HasSuffix(stdout.String(), "TRAILER"))
	assert.Equal(t, int64(stdout.Len()), res.Stats.BytesWritten)
	assert.Equal(t, int64(len("container-from-stdin")), res.Stats.BytesRead)
}

func TestRunner_StdioFilesStayOpen(t *testing.T) {
	eng := newTestEngine()
	eng.AddContainer("container-from-stdin", clip(2, 0))

	dir := t.TempDir()
	in, err := os.Create(filepath.Join(dir, "stdin"))
	require.NoError(t, err)
	defer in.Close()
	_, err = in.WriteString("container-from-stdin")
	require.NoError(t, err)
	_, err = in.Seek(0, io.SeekStart)
	require.NoError(t, err)

	out, err := os.Create(filepath.Join(dir, "stdout"))
	require.NoError(t, err)
	defer out.Close()

	job := copyJob("pipe", Stdio, Stdio)
	job.OutputFormat = "matroska"
	_, err = newRunner(t, eng, WithStdio(in, out)).Run(context.Background(), job)
	require.NoError(t, err)

	_, err = in.Seek(0, io.SeekStart)
	assert.NoError(t, err, "stdin is not closed by the job")
	_, err = out.WriteString(";MORE")
	assert.NoError(t, err, "stdout is not closed by the job")

	written, err := os.ReadFile(out.Name())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(written), "HEADER;"))
	assert.True(t, strings.HasSuffix(string(written), "TRAILER;MORE"))
}

func TestRunAll_IndependentJobs(t *testing.T) {
	eng := newTestEngine()
	eng.AddContainer("a.mkv", clip(3, 3))
	eng.AddContainer("c.mkv", clip(5, 0))

	jobs := []config.Job{
		copyJob("a", "a.mkv", "a-out.mkv"),
		copyJob("broken", "missing.mkv", "b-out.mkv"),
		copyJob("c", "c.mkv", "c-out.mkv"),
	}
	results, err := RunAll(context.Background(), newRunner(t, eng), jobs, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job broken")
	assert.NotContains(t, err.Error(), "job a:")

	require.Len(t, results, 3)
	assert.Equal(t, int64(6), results[0].Stats.PacketsCopied)
	assert.Equal(t, int64(5), results[2].Stats.PacketsCopied)
	assert.Equal(t, 0, eng.Live())
}

func TestRunAll_CanceledContext(t *testing.T) {
	eng := newTestEngine()
	eng.AddContainer("a.mkv", clip(1, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := RunAll(ctx, newRunner(t, eng), []config.Job{copyJob("a", "a.mkv", "out.mkv")}, 0)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "a", results[0].Job)
}
