package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harshabose/avpipe/internal/config"
	"github.com/harshabose/avpipe/internal/logging"
	"github.com/harshabose/avpipe/internal/metrics"
	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/transcode"
)

// Stdio is the input and output name that selects the process's stdin or stdout.
const Stdio = "-"

type Result struct {
	ID      string
	Job     string
	Routes  []Route
	Stats   transcode.Stats
	Elapsed time.Duration
}

// Runner executes jobs against one engine. Each Run owns its own transcoder,
// so a Runner may serve concurrent runs.
type Runner struct {
	engine   engine.Engine
	hardware []string
	stdin    io.Reader
	stdout   io.Writer
	log      zerolog.Logger
}

type RunnerOption = func(*Runner) error

// WithHardware enables hardware decoding for the named device types.
// config.HardwareAny enables every type the engine knows.
func WithHardware(devices []string) RunnerOption {
	return func(r *Runner) error {
		r.hardware = append([]string(nil), devices...)
		return nil
	}
}

func WithStdio(in io.Reader, out io.Writer) RunnerOption {
	return func(r *Runner) error {
		r.stdin, r.stdout = in, out
		return nil
	}
}

func WithRunnerLogger(logger zerolog.Logger) RunnerOption {
	return func(r *Runner) error {
		r.log = logger
		return nil
	}
}

func NewRunner(eng engine.Engine, options ...RunnerOption) (*Runner, error) {
	r := &Runner{
		engine: eng,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		log:    logging.WithComponent("jobs"),
	}
	for _, option := range options {
		if err := option(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Runner) transcoderOptions(log zerolog.Logger, job config.Job) []transcode.TranscoderOption {
	options := []transcode.TranscoderOption{
		transcode.WithTranscoderLogger(log),
		transcode.WithObserver(metrics.NewObserver(job.Name)),
	}

	var devices []string
	for _, d := range r.hardware {
		if d == config.HardwareAny {
			return append(options, transcode.WithAnyHardwareDecoding())
		}
		devices = append(devices, d)
	}
	if len(devices) > 0 {
		options = append(options, transcode.WithHardwareDecoding(devices...))
	}
	return options
}

func (r *Runner) endpoints(job config.Job) (engine.Input, engine.Output) {
	input := engine.Input{URL: job.Input, Format: job.InputFormat, Options: job.InputOptions}
	if job.Input == Stdio {
		input = engine.Input{Reader: streamReader{r.stdin}, Format: job.InputFormat, Options: job.InputOptions}
	}
	output := engine.Output{URL: job.Output, Format: job.OutputFormat}
	if job.Output == Stdio {
		output = engine.Output{Writer: streamWriter{r.stdout}, Format: job.OutputFormat}
	}
	return input, output
}

// streamReader and streamWriter hide Seek and Close: stdio may be a pipe and
// outlives the job.
type streamReader struct{ r io.Reader }

func (s streamReader) Read(p []byte) (int, error) { return s.r.Read(p) }

type streamWriter struct{ w io.Writer }

func (s streamWriter) Write(p []byte) (int, error) { return s.w.Write(p) }

// Run executes job to completion. Cancelling ctx stops the run between two
// packets without writing the trailer.
func (r *Runner) Run(ctx context.Context, job config.Job) (result Result, err error) {
	id := uuid.NewString()
	log := r.log.With().Str("job_id", id).Str("job", job.Name).Logger()
	ctx = log.WithContext(logging.ContextWithJobID(ctx, id))

	result = Result{ID: id, Job: job.Name}
	start := time.Now()

	input, output := r.endpoints(job)
	var pending *renameio.PendingFile
	if job.Atomic {
		if output, pending, err = atomicOutput(job); err != nil {
			return result, fmt.Errorf("job %s: %w", job.Name, err)
		}
	}

	tr, err := transcode.CreateTranscoder(r.engine, input, output, r.transcoderOptions(log, job)...)
	if err != nil {
		if pending != nil {
			_ = pending.Cleanup()
		}
		return result, fmt.Errorf("job %s: %w", job.Name, err)
	}
	defer func() {
		tr.Close()
		if pending != nil {
			if err == nil {
				if cerr := pending.CloseAtomicallyReplace(); cerr != nil {
					err = fmt.Errorf("job %s: commit output: %w", job.Name, cerr)
				}
			}
			// no-op once the file was renamed into place
			_ = pending.Cleanup()
		}
		result.Stats, result.Elapsed = tr.Stats(), time.Since(start)

		outcome := metrics.ResultOK
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			outcome = metrics.ResultCanceled
		case err != nil:
			outcome = metrics.ResultFailed
		}
		metrics.RecordJob(outcome, result.Elapsed, result.Stats)
	}()

	routes, err := r.prepare(tr, job, log)
	result.Routes = routes
	if err != nil {
		return result, fmt.Errorf("job %s: %w", job.Name, err)
	}

	if err := r.loop(ctx, tr, job); err != nil {
		return result, fmt.Errorf("job %s: %w", job.Name, err)
	}

	s := tr.Stats()
	log.Info().
		Int64("packets_read", s.PacketsRead).
		Int64("packets_copied", s.PacketsCopied).
		Int64("packets_encoded", s.PacketsEncoded).
		Dur("elapsed", time.Since(start)).
		Msg("job finished")
	return result, nil
}

func (r *Runner) prepare(tr *transcode.Transcoder, job config.Job, log zerolog.Logger) ([]Route, error) {
	manifest, err := tr.Prepare()
	if err != nil {
		return nil, err
	}
	routes, err := Plan(manifest, job)
	if err != nil {
		return nil, err
	}

	for _, route := range routes {
		if route.Copy() {
			if err := tr.CopyStream(route.Stream); err != nil {
				return routes, err
			}
			continue
		}
		if route.Rule.Encoder == nil {
			return routes, fmt.Errorf("%w: stream #%d has no encoder", transcode.ErrInvalidEncoderConfig, route.Stream.Index)
		}

		enc, err := newEncoder(r.engine, route.Stream, *route.Rule.Encoder, tr.RequiresGlobalHeader(), transcode.WithEncoderLogger(log))
		if err != nil {
			return routes, err
		}
		var options []transcode.RouteOption
		if len(route.Rule.DecoderOptions) > 0 {
			options = append(options, transcode.WithDecoderOptions(route.Rule.DecoderOptions))
		}
		if route.Rule.HardwareDownload {
			options = append(options, transcode.WithHardwareDownload())
		}
		if err := tr.TranscodeStream(route.Stream, enc, options...); err != nil {
			enc.Close()
			return routes, err
		}
	}
	return routes, nil
}

func (r *Runner) loop(ctx context.Context, tr *transcode.Transcoder, job config.Job) error {
	if err := tr.Start(job.OutputOptions); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := tr.Step()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}
