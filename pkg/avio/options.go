package avio

import (
	"fmt"

	"github.com/rs/zerolog"
)

type Option = func(*Bridge) error

func WithBufferSize(size int) Option {
	return func(b *Bridge) error {
		if size <= 0 {
			return fmt.Errorf("avio: invalid buffer size %d", size)
		}
		b.bufferSize = size
		return nil
	}
}

func WithMaxRequest(max int) Option {
	return func(b *Bridge) error {
		if max <= 0 {
			return fmt.Errorf("avio: invalid max request %d", max)
		}
		b.maxRequest = max
		return nil
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bridge) error {
		b.log = logger
		return nil
	}
}
