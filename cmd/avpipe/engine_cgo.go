//go:build cgo_enabled

package main

import (
	"github.com/rs/zerolog"

	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/ffmpeg"
)

var newEngine = func(log zerolog.Logger) (engine.Engine, error) {
	return ffmpeg.New(ffmpeg.WithLogger(log), ffmpeg.WithLogRedirect())
}
