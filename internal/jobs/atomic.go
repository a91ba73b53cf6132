package jobs

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/harshabose/avpipe/internal/config"
	"github.com/harshabose/avpipe/pkg/engine"
)

var ErrUnknownOutputFormat = errors.New("cannot tell the output format from the file name")

// pendingOutput exposes only Write and Seek so that closing the transcoder
// leaves the pending file open for the commit.
type pendingOutput struct {
	file *renameio.PendingFile
}

func (p *pendingOutput) Write(b []byte) (int, error) {
	return p.file.Write(b)
}

func (p *pendingOutput) Seek(offset int64, whence int) (int64, error) {
	return p.file.Seek(offset, whence)
}

// formatForPath maps the extension of path back to a muxer name.
func formatForPath(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	for format, e := range extensions {
		if e == ext {
			return format, true
		}
	}
	return "", false
}

// atomicOutput writes job's output through a pending file next to the target.
func atomicOutput(job config.Job) (engine.Output, *renameio.PendingFile, error) {
	format := job.OutputFormat
	if format == "" {
		f, ok := formatForPath(job.Output)
		if !ok {
			return engine.Output{}, nil, fmt.Errorf("%w: %s, set output_format", ErrUnknownOutputFormat, job.Output)
		}
		format = f
	}

	file, err := renameio.NewPendingFile(job.Output, renameio.WithPermissions(0o644))
	if err != nil {
		return engine.Output{}, nil, fmt.Errorf("create pending output: %w", err)
	}
	return engine.Output{Writer: &pendingOutput{file: file}, Format: format}, file, nil
}
