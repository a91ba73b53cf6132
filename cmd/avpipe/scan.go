package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harshabose/avpipe/internal/config"
	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/media"
	"github.com/harshabose/avpipe/pkg/transcode"
)

type scanResult struct {
	stream   media.StreamDescriptor
	hardware string
	frames   int64
}

func newScanCmd(root *rootOptions) *cobra.Command {
	var (
		in       inputFlags
		hw       string
		describe bool
		encoders []string
	)
	cmd := &cobra.Command{
		Use:   "scan <input>",
		Short: "Decode every audio and video stream and count frames",
		Long: `Decodes all audio and video streams of the input to check that they are readable.
With --hw a hardware decoder of that type is tried first; "any" tries every type the engine knows.
With --describe each decoder's options and formats are listed after the counts; --encoder lists
the same for a named encoder.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := root.logger(cmd, config.Log{})
			eng, err := newEngine(log)
			if err != nil {
				return err
			}

			demuxer, err := transcode.CreateDemuxer(eng, in.input(cmd, args[0]), transcode.WithDemuxerLogger(log))
			if err != nil {
				return err
			}
			defer demuxer.Close()

			options := []transcode.DecoderOption{transcode.WithDecoderLogger(log)}
			switch hw {
			case "":
			case config.HardwareAny:
				options = append(options, transcode.WithAnyHardwareDecoder())
			default:
				options = append(options, transcode.WithHardwareDecoder(hw))
			}
			decoder, err := transcode.NewDecoder(eng, options...)
			if err != nil {
				return err
			}
			defer decoder.Close()

			results, err := scan(cmd, demuxer, decoder, log)
			if err != nil {
				return err
			}
			if err := printScan(cmd.OutOrStdout(), results); err != nil {
				return err
			}

			var listed []codecListing
			if describe {
				for _, r := range results {
					info, err := eng.DescribeDecoder(r.stream.CodecID)
					if err != nil {
						return err
					}
					listed = append(listed, codecListing{role: "decoder", info: info})
				}
			}
			for _, name := range encoders {
				info, err := eng.DescribeEncoder(name)
				if err != nil {
					return err
				}
				listed = append(listed, codecListing{role: "encoder", info: info})
			}
			return printCodecs(cmd.OutOrStdout(), listed)
		},
	}
	in.register(cmd)
	cmd.Flags().StringVar(&hw, "hw", "", `hardware device type to decode with, or "any"`)
	cmd.Flags().BoolVar(&describe, "describe", false, "list options and formats of each decoder")
	cmd.Flags().StringSliceVar(&encoders, "encoder", nil, "list options and formats of this encoder (repeatable)")
	return cmd
}

func scan(cmd *cobra.Command, demuxer *transcode.Demuxer, decoder *transcode.Decoder, log zerolog.Logger) ([]*scanResult, error) {
	manifest, err := demuxer.Probe()
	if err != nil {
		return nil, err
	}

	var results []*scanResult
	byStream := map[int]*scanResult{}
	for _, s := range manifest.Streams {
		if s.Kind != media.MediaTypeVideo && s.Kind != media.MediaTypeAudio {
			continue
		}
		c, err := decoder.Setup(s, nil)
		if err != nil {
			return nil, err
		}
		r := &scanResult{stream: s, hardware: "software"}
		if hw := c.Hardware(); hw != nil {
			r.hardware = hw.DeviceType
		}
		log.Debug().Stringer("decoder", c).Msg("decoder ready")
		results = append(results, r)
		byStream[s.Index] = r
	}

	count := func(frames []transcode.DecodedFrame) {
		for _, f := range frames {
			byStream[f.StreamIndex].frames++
			f.Frame.Release()
		}
	}

	ctx := cmd.Context()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pkt, err := demuxer.ReadPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		frames, err := decoder.Decode(pkt)
		pkt.Release()
		if err != nil {
			return nil, err
		}
		count(frames)
	}

	frames, err := decoder.Flush()
	if err != nil {
		return nil, err
	}
	count(frames)
	return results, nil
}

func printScan(w io.Writer, results []*scanResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tKIND\tCODEC\tDECODER\tFRAMES")
	for _, r := range results {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\n", r.stream.Index, r.stream.Kind, r.stream.CodecName, r.hardware, r.frames)
	}
	return tw.Flush()
}

type codecListing struct {
	role string
	info engine.CodecInfo
}

func printCodecs(w io.Writer, listed []codecListing) error {
	join := func(v []string) string {
		if len(v) == 0 {
			return "-"
		}
		return strings.Join(v, ", ")
	}
	for _, l := range listed {
		info := l.info
		if _, err := fmt.Fprintf(w, "\n%s %s (%s)\n", l.role, info.Name, info.Kind); err != nil {
			return err
		}
		if len(info.PixelFormats) > 0 || info.Kind == media.MediaTypeVideo {
			fmt.Fprintf(w, "  pixel formats:  %s\n", join(info.PixelFormats))
		}
		if len(info.SampleFormats) > 0 || info.Kind == media.MediaTypeAudio {
			fmt.Fprintf(w, "  sample formats: %s\n", join(info.SampleFormats))
		}
		if _, err := fmt.Fprintf(w, "  options:        %s\n", join(info.Options)); err != nil {
			return err
		}
	}
	return nil
}
