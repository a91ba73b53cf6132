package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harshabose/avpipe/internal/config"
	"github.com/harshabose/avpipe/internal/jobs"
	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/media"
	"github.com/harshabose/avpipe/pkg/transcode"
)

type inputFlags struct {
	format  string
	options map[string]string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.format, "input-format", "", "force the input container format")
	cmd.Flags().StringToStringVar(&f.options, "input-option", nil, "demuxer option key=value (repeatable)")
}

func (f *inputFlags) input(cmd *cobra.Command, name string) engine.Input {
	in := engine.Input{URL: name, Format: f.format, Options: f.options}
	if name == jobs.Stdio {
		in = engine.Input{Reader: cmd.InOrStdin(), Format: f.format, Options: f.options}
	}
	return in
}

func newProbeCmd(root *rootOptions) *cobra.Command {
	var (
		in     inputFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "probe <input>",
		Short: "Print the container and stream manifest",
		Long:  `Opens the input, analyses its streams and prints what was found. Use "-" to read from stdin.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := root.logger(cmd, config.Log{})
			eng, err := newEngine(log)
			if err != nil {
				return err
			}
			manifest, err := transcode.Probe(eng, in.input(cmd, args[0]), transcode.WithDemuxerLogger(log))
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(manifest)
			}
			return printManifest(cmd.OutOrStdout(), manifest)
		},
	}
	in.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the manifest as JSON")
	return cmd
}

func printManifest(w io.Writer, m media.ContainerManifest) error {
	fmt.Fprintf(w, "format: %s  duration: %.3fs  bitrate: %d\n", m.Format, m.Duration, m.BitRate)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tKIND\tCODEC\tDETAIL\tTIMEBASE")
	for _, s := range m.Streams {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", s.Index, s.Kind, s.CodecName, streamDetail(s), s.TimeBase)
	}
	return tw.Flush()
}

func streamDetail(s media.StreamDescriptor) string {
	switch s.Kind {
	case media.MediaTypeVideo:
		return fmt.Sprintf("%dx%d %.2ffps", s.Width, s.Height, s.FPS)
	case media.MediaTypeAudio:
		detail := fmt.Sprintf("%dHz %dch", s.SampleRate, s.Channels)
		if s.FormatName != "" {
			detail += " " + s.FormatName
		}
		return detail
	case media.MediaTypeSubtitle:
		if s.Language != "" {
			return "lang=" + s.Language
		}
	}
	return "-"
}
