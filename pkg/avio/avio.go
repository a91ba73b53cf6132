// Package avio adapts Go readers, writers and seekers to the callback based
// I/O contexts of a media engine.
package avio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/harshabose/avpipe/internal/logging"
)

const (
	DefaultReadBufferSize  = 4 * 1024
	DefaultWriteBufferSize = 32 * 1024

	// DefaultMaxRequest bounds a single read request. Larger requests fail closed.
	DefaultMaxRequest = math.MaxInt32
)

// Whence values understood by the seek adapter, matching the engine's AVSEEK_* flags.
const (
	SeekSize  = 0x10000
	SeekForce = 0x20000
)

var (
	// ErrEndOfStream wraps io.EOF; engines map io.EOF to their own end of file code.
	ErrEndOfStream = fmt.Errorf("avio: end of stream: %w", io.EOF)
	ErrWriteFailed = errors.New("avio: write failed")
	ErrNotSeekable = errors.New("avio: not seekable")
	ErrClosed      = errors.New("avio: bridge closed")
	ErrNilObject   = errors.New("avio: nil object")
)

type (
	ReadFunc  func(p []byte) (int, error)
	WriteFunc func(p []byte) (int, error)
	SeekFunc  func(offset int64, whence int) (int64, error)
)

// Callbacks is the set handed to the engine when it allocates an I/O context.
type Callbacks struct {
	Read  ReadFunc
	Write WriteFunc
	Seek  SeekFunc
}

// Context is the engine side of a bridge. It owns the transfer buffer.
type Context interface {
	Free()
}

// ContextFactory is implemented by engines that can allocate I/O contexts.
type ContextFactory interface {
	NewIOContext(bufferSize int, writable bool, callbacks Callbacks) (Context, error)
}

type Mode int

const (
	ModeRead Mode = iota
	ModeReadSeek
	ModeWrite
	ModeWriteSeek
)

func (m Mode) Writable() bool {
	return m == ModeWrite || m == ModeWriteSeek
}

func (m Mode) Seekable() bool {
	return m == ModeReadSeek || m == ModeWriteSeek
}

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeReadSeek:
		return "read+seek"
	case ModeWrite:
		return "write"
	case ModeWriteSeek:
		return "write+seek"
	default:
		return "invalid"
	}
}

type Stats struct {
	BytesRead    int64
	BytesWritten int64
}

// Bridge moves an application object behind an engine I/O context. The object
// and the engine context are separate fields and Close releases them in that
// order: context first, object second, each exactly once.
type Bridge struct {
	mode       Mode
	bufferSize int
	maxRequest int

	object any
	ctx    Context

	closed  atomic.Bool
	read    atomic.Int64
	written atomic.Int64

	log  zerolog.Logger
	once sync.Once
}

func newBridge(mode Mode, object any, options ...Option) (*Bridge, error) {
	if object == nil {
		return nil, ErrNilObject
	}

	b := &Bridge{
		mode:       mode,
		object:     object,
		maxRequest: DefaultMaxRequest,
		bufferSize: DefaultReadBufferSize,
		log:        logging.WithComponent("avio"),
	}
	if mode.Writable() {
		b.bufferSize = DefaultWriteBufferSize
	}

	for _, option := range options {
		if err := option(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *Bridge) attach(factory ContextFactory) error {
	ctx, err := factory.NewIOContext(b.bufferSize, b.mode.Writable(), b.callbacks())
	if err != nil {
		return err
	}
	b.ctx = ctx
	return nil
}

func (b *Bridge) callbacks() Callbacks {
	cb := Callbacks{}
	switch b.mode {
	case ModeRead:
		cb.Read = b.readAdapter(b.object.(io.Reader))
	case ModeReadSeek:
		cb.Read = b.readAdapter(b.object.(io.Reader))
		cb.Seek = b.seekAdapter(b.object.(io.Seeker))
	case ModeWrite:
		cb.Write = b.writeAdapter(b.object.(io.Writer))
	case ModeWriteSeek:
		cb.Write = b.writeAdapter(b.object.(io.Writer))
		cb.Seek = b.seekAdapter(b.object.(io.Seeker))
	}
	return cb
}

// NewReader bridges a pull-only source.
func NewReader(factory ContextFactory, r io.Reader, options ...Option) (*Bridge, error) {
	return open(factory, ModeRead, r, options...)
}

func NewReadSeeker(factory ContextFactory, rs io.ReadSeeker, options ...Option) (*Bridge, error) {
	return open(factory, ModeReadSeek, rs, options...)
}

// NewWriter bridges a push-only sink. Containers that rewrite their header on
// close need NewWriteSeeker instead.
func NewWriter(factory ContextFactory, w io.Writer, options ...Option) (*Bridge, error) {
	return open(factory, ModeWrite, w, options...)
}

func NewWriteSeeker(factory ContextFactory, ws io.WriteSeeker, options ...Option) (*Bridge, error) {
	return open(factory, ModeWriteSeek, ws, options...)
}

func open(factory ContextFactory, mode Mode, object any, options ...Option) (*Bridge, error) {
	b, err := newBridge(mode, object, options...)
	if err != nil {
		return nil, err
	}
	if err := b.attach(factory); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bridge) Mode() Mode {
	return b.mode
}

func (b *Bridge) BufferSize() int {
	return b.bufferSize
}

// Context returns the engine context, or nil once the bridge is closed.
func (b *Bridge) Context() Context {
	if b.closed.Load() {
		return nil
	}
	return b.ctx
}

func (b *Bridge) Stats() Stats {
	return Stats{BytesRead: b.read.Load(), BytesWritten: b.written.Load()}
}

func (b *Bridge) Closed() bool {
	return b.closed.Load()
}

// Close frees the engine context and then releases the adapted object,
// closing it when it is an io.Closer. The error is the object's Close error.
func (b *Bridge) Close() error {
	var err error
	b.once.Do(func() {
		b.closed.Store(true)

		ctx := b.ctx
		b.ctx = nil
		if ctx != nil {
			ctx.Free()
		}

		object := b.object
		b.object = nil
		if c, ok := object.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}
