package avio

import (
	"errors"
	"io"
)

func (b *Bridge) readAdapter(r io.Reader) ReadFunc {
	return func(p []byte) (int, error) {
		if b.closed.Load() {
			return 0, ErrEndOfStream
		}
		if len(p) > b.maxRequest {
			b.log.Warn().Int("requested", len(p)).Int("max", b.maxRequest).Msg("read request over limit, reporting end of stream")
			return 0, ErrEndOfStream
		}

		n, err := r.Read(p)
		if n > 0 {
			b.read.Add(int64(n))
			// io.Reader may return data with an error; hand the data over now and
			// let the next call surface the error.
			return n, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			b.log.Warn().Err(err).Msg("read failed, reporting end of stream")
		}
		return 0, ErrEndOfStream
	}
}

func (b *Bridge) writeAdapter(w io.Writer) WriteFunc {
	return func(p []byte) (int, error) {
		if b.closed.Load() {
			return 0, ErrWriteFailed
		}

		total := 0
		for total < len(p) {
			n, err := w.Write(p[total:])
			total += n
			b.written.Add(int64(n))
			if err != nil {
				b.log.Error().Err(err).Int("written", total).Int("requested", len(p)).Msg("write failed")
				return total, ErrWriteFailed
			}
			if n == 0 {
				b.log.Error().Err(io.ErrShortWrite).Int("written", total).Int("requested", len(p)).Msg("write made no progress")
				return total, ErrWriteFailed
			}
		}
		return total, nil
	}
}

func (b *Bridge) seekAdapter(s io.Seeker) SeekFunc {
	return func(offset int64, whence int) (int64, error) {
		if b.closed.Load() {
			return -1, ErrNotSeekable
		}

		whence &^= SeekForce
		switch whence {
		case io.SeekStart, io.SeekCurrent, io.SeekEnd:
			pos, err := s.Seek(offset, whence)
			if err != nil {
				b.log.Debug().Err(err).Int64("offset", offset).Int("whence", whence).Msg("seek failed")
				return -1, ErrNotSeekable
			}
			return pos, nil
		case SeekSize:
			return b.size(s)
		default:
			b.log.Warn().Int("whence", whence).Msg("unsupported seek mode")
			return -1, ErrNotSeekable
		}
	}
}

// size reports the total length without moving the current position.
func (b *Bridge) size(s io.Seeker) (int64, error) {
	cur, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return -1, ErrNotSeekable
	}
	end, err := s.Seek(0, io.SeekEnd)
	if err != nil {
		return -1, ErrNotSeekable
	}
	if _, err := s.Seek(cur, io.SeekStart); err != nil {
		return -1, ErrNotSeekable
	}
	return end, nil
}
