package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harshabose/avpipe/internal/config"
	"github.com/harshabose/avpipe/internal/jobs"
)

type outputFlags struct {
	format  string
	options map[string]string
}

func (f *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "output container format (guessed from the output name when empty)")
	cmd.Flags().StringToStringVar(&f.options, "output-option", nil, "muxer option key=value (repeatable)")
}

func newRemuxCmd(root *rootOptions) *cobra.Command {
	var (
		in  inputFlags
		out outputFlags
	)
	cmd := &cobra.Command{
		Use:   "remux <input> <output>",
		Short: "Copy every stream into a new container without re-encoding",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := jobFromArgs("remux", args, in, out)
			for _, kind := range []string{"video", "audio", "subtitle"} {
				job.Streams = append(job.Streams, config.StreamRule{Kind: kind, Select: config.SelectAll, Mode: config.ModeCopy})
			}
			return runOne(cmd, root, job, nil)
		},
	}
	in.register(cmd)
	out.register(cmd)
	return cmd
}

type transcodeFlags struct {
	videoCodec   string
	audioCodec   string
	width        int
	height       int
	fps          float64
	pixelFormat  string
	sampleRate   int
	channels     int
	bitrate      int64
	audioBitrate int64
	hw           string
	download     bool
}

func newTranscodeCmd(root *rootOptions) *cobra.Command {
	var (
		in  inputFlags
		out outputFlags
		f   transcodeFlags
	)
	cmd := &cobra.Command{
		Use:   "transcode <input> <output>",
		Short: "Re-encode the best video and audio stream",
		Long: `Re-encodes the best video stream with --vcodec and the best audio stream with --acodec.
A kind without a codec is copied. Settings left unset follow the source stream.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.videoCodec == "" && f.audioCodec == "" {
				return fmt.Errorf("transcode: at least one of --vcodec and --acodec is required; use remux to copy")
			}
			if (f.width == 0) != (f.height == 0) {
				return fmt.Errorf("transcode: --width and --height must be set together")
			}

			job := jobFromArgs("transcode", args, in, out)
			job.Streams = []config.StreamRule{f.videoRule(), f.audioRule()}

			var hardware []string
			if f.hw != "" {
				hardware = []string{f.hw}
			}
			return runOne(cmd, root, job, hardware)
		},
	}
	in.register(cmd)
	out.register(cmd)

	flags := cmd.Flags()
	flags.StringVar(&f.videoCodec, "vcodec", "", "video encoder name, e.g. libx264")
	flags.StringVar(&f.audioCodec, "acodec", "", "audio encoder name, e.g. aac")
	flags.IntVar(&f.width, "width", 0, "output width")
	flags.IntVar(&f.height, "height", 0, "output height")
	flags.Float64Var(&f.fps, "fps", 0, "output frame rate")
	flags.StringVar(&f.pixelFormat, "pix-fmt", "", "output pixel format")
	flags.IntVar(&f.sampleRate, "sample-rate", 0, "output sample rate")
	flags.IntVar(&f.channels, "channels", 0, "output channel count")
	flags.Int64Var(&f.bitrate, "bitrate", 0, "video bitrate in bits per second")
	flags.Int64Var(&f.audioBitrate, "audio-bitrate", 0, "audio bitrate in bits per second")
	flags.StringVar(&f.hw, "hw", "", `hardware decoder type, or "any"`)
	flags.BoolVar(&f.download, "hw-download", false, "download hardware frames before encoding")
	return cmd
}

func (f transcodeFlags) videoRule() config.StreamRule {
	rule := config.StreamRule{Kind: "video", Select: config.SelectBest, Mode: config.ModeCopy}
	if f.videoCodec == "" {
		return rule
	}
	rule.Mode = config.ModeTranscode
	rule.HardwareDownload = f.download
	rule.Encoder = &config.Encoder{
		Codec:       f.videoCodec,
		Bitrate:     f.bitrate,
		Width:       f.width,
		Height:      f.height,
		PixelFormat: f.pixelFormat,
		FrameRate:   f.fps,
	}
	return rule
}

func (f transcodeFlags) audioRule() config.StreamRule {
	rule := config.StreamRule{Kind: "audio", Select: config.SelectBest, Mode: config.ModeCopy}
	if f.audioCodec == "" {
		return rule
	}
	rule.Mode = config.ModeTranscode
	rule.Encoder = &config.Encoder{
		Codec:      f.audioCodec,
		Bitrate:    f.audioBitrate,
		SampleRate: f.sampleRate,
		Channels:   f.channels,
	}
	return rule
}

func jobFromArgs(kind string, args []string, in inputFlags, out outputFlags) config.Job {
	return config.Job{
		Name:          kind + ":" + strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0])),
		Input:         args[0],
		InputFormat:   in.format,
		InputOptions:  in.options,
		Output:        args[1],
		OutputFormat:  out.format,
		OutputOptions: out.options,
	}
}

func runOne(cmd *cobra.Command, root *rootOptions, job config.Job, hardware []string) error {
	log := root.logger(cmd, config.Log{})
	eng, err := newEngine(log)
	if err != nil {
		return err
	}
	r, err := root.runner(cmd, eng, log, hardware)
	if err != nil {
		return err
	}
	res, err := r.Run(cmd.Context(), job)
	if err != nil {
		return err
	}
	if job.Output == jobs.Stdio {
		return nil
	}
	return printResult(cmd.OutOrStdout(), res)
}

func printResult(w io.Writer, res jobs.Result) error {
	for _, route := range res.Routes {
		if _, err := fmt.Fprintln(w, route); err != nil {
			return err
		}
	}
	s := res.Stats
	_, err := fmt.Fprintf(w, "%s: read %d, copied %d, encoded %d packets in %s\n",
		res.Job, s.PacketsRead, s.PacketsCopied, s.PacketsEncoded, res.Elapsed.Round(time.Millisecond))
	return err
}
