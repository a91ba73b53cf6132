//go:build !cgo_enabled

package main

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/harshabose/avpipe/pkg/engine"
)

var ErrEngineUnavailable = errors.New("avpipe was built without the ffmpeg engine; rebuild with -tags cgo_enabled")

var newEngine = func(zerolog.Logger) (engine.Engine, error) {
	return nil, ErrEngineUnavailable
}
