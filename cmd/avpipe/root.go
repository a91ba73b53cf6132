package main

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/harshabose/avpipe/internal/config"
	"github.com/harshabose/avpipe/internal/jobs"
	"github.com/harshabose/avpipe/internal/logging"
	"github.com/harshabose/avpipe/pkg/engine"
)

type rootOptions struct {
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "avpipe",
		Short:         "Probe, remux and transcode media containers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetGlobalNormalizationFunc(normalizeFlag)
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "console", "log format (console, json)")

	cmd.AddCommand(
		newProbeCmd(opts),
		newScanCmd(opts),
		newRemuxCmd(opts),
		newTranscodeCmd(opts),
		newRunCmd(opts),
	)
	return cmd
}

// normalizeFlag accepts the snake_case spelling used by job files.
func normalizeFlag(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// logger configures the process logger once. Flags win over file settings.
func (o *rootOptions) logger(cmd *cobra.Command, file config.Log) zerolog.Logger {
	cfg := logging.Config{Level: file.Level, Format: file.Format, Output: cmd.ErrOrStderr()}
	if o.logLevel != "" {
		cfg.Level = o.logLevel
	}
	if cfg.Format == "" {
		cfg.Format = o.logFormat
	}
	logging.Configure(cfg)
	return logging.WithComponent(cmd.Name())
}

func (o *rootOptions) runner(cmd *cobra.Command, eng engine.Engine, log zerolog.Logger, hardware []string) (*jobs.Runner, error) {
	options := []jobs.RunnerOption{
		jobs.WithRunnerLogger(log),
		jobs.WithStdio(cmd.InOrStdin(), cmd.OutOrStdout()),
	}
	if len(hardware) > 0 {
		options = append(options, jobs.WithHardware(hardware))
	}
	return jobs.NewRunner(eng, options...)
}
