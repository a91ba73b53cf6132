//go:build cgo_enabled

package ffmpeg

import (
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/harshabose/avpipe/pkg/avio"
)

type ioContext struct {
	c *astiav.IOContext
}

func (c *ioContext) Free() {
	c.c.Free()
}

func (e *Engine) NewIOContext(bufferSize int, writable bool, cb avio.Callbacks) (avio.Context, error) {
	var (
		read  astiav.IOContextReadFunc
		seek  astiav.IOContextSeekFunc
		write astiav.IOContextWriteFunc
	)
	if cb.Read != nil {
		read = astiav.IOContextReadFunc(cb.Read)
	}
	if cb.Seek != nil {
		seek = astiav.IOContextSeekFunc(cb.Seek)
	}
	if cb.Write != nil {
		write = astiav.IOContextWriteFunc(cb.Write)
	}

	c, err := astiav.AllocIOContext(bufferSize, writable, read, seek, write)
	if err != nil {
		return nil, fmt.Errorf("allocate io context: %w", err)
	}
	return &ioContext{c: c}, nil
}

func asIOContext(c avio.Context) (*astiav.IOContext, error) {
	if c == nil {
		return nil, nil
	}
	io, ok := c.(*ioContext)
	if !ok {
		return nil, ErrorForeignObject
	}
	return io.c, nil
}
