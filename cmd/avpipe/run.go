package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/harshabose/avpipe/internal/config"
	"github.com/harshabose/avpipe/internal/jobs"
	"github.com/harshabose/avpipe/internal/metrics"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		metricsAddr string
		watchDir    string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "run <jobs.yaml|jobs.toml>",
		Short: "Run the jobs of a job file",
		Long: `Runs every job of the file, at most --concurrency at a time. With --watch, or a watch
section in the file, jobs are templates applied to every file created in the directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0], func(c *config.Config) {
				if metricsAddr != "" {
					c.Metrics.Listen = metricsAddr
				}
				if watchDir != "" {
					c.Watch.Dir = watchDir
				}
				if concurrency > 0 {
					c.Concurrency = concurrency
				}
			})
			if err != nil {
				return err
			}

			log := root.logger(cmd, cfg.Log)
			eng, err := newEngine(log)
			if err != nil {
				return err
			}
			r, err := root.runner(cmd, eng, log, cfg.Hardware.Devices)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			g, ctx := errgroup.WithContext(ctx)

			if cfg.Metrics.Listen != "" {
				g.Go(func() error {
					return metrics.Serve(ctx, cfg.Metrics.Listen)
				})
			}
			g.Go(func() error {
				// the metrics server lives as long as the work
				defer cancel()
				if cfg.Templates() {
					return jobs.Watch(ctx, r, cfg.Watch.Dir, cfg.Jobs, jobs.WithWatchConcurrency(cfg.Concurrency))
				}

				results, err := jobs.RunAll(ctx, r, cfg.Jobs, cfg.Concurrency)
				for _, res := range results {
					if res.ID == "" {
						continue
					}
					if printErr := printResult(cmd.OutOrStdout(), res); printErr != nil {
						err = errors.Join(err, printErr)
					}
				}
				return err
			})
			return g.Wait()
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&metricsAddr, "metrics", "", "serve prometheus metrics on this address")
	flags.StringVar(&watchDir, "watch", "", "treat jobs as templates for files created in this directory")
	flags.IntVar(&concurrency, "concurrency", 0, "maximum number of jobs in flight")
	return cmd
}
