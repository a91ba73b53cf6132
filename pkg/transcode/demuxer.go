package transcode

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/harshabose/avpipe/internal/logging"
	"github.com/harshabose/avpipe/pkg/avio"
	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/media"
)

// Demuxer opens an input container, by URL or through an avio.Bridge, and
// reads its packets.
type Demuxer struct {
	engine engine.Engine
	input  engine.Input

	ctx      engine.InputContext
	bridge   *avio.Bridge
	manifest *media.ContainerManifest
	stats    avio.Stats

	log  zerolog.Logger
	once sync.Once
}

func CreateDemuxer(eng engine.Engine, input engine.Input, options ...DemuxerOption) (*Demuxer, error) {
	input.Options = cloneOptions(input.Options)
	d := &Demuxer{
		engine: eng,
		input:  input,
		log:    logging.WithComponent("demuxer"),
	}

	for _, option := range options {
		if err := option(d); err != nil {
			return nil, err
		}
	}

	if d.input.Reader == nil && d.input.URL == "" {
		return nil, fmt.Errorf("demuxer: input needs a url or a reader")
	}
	return d, nil
}

// Probe opens the container, runs stream analysis and returns the manifest.
// Later calls return the same manifest. On failure everything opened so far
// is released and the demuxer can be probed again.
func (d *Demuxer) Probe() (media.ContainerManifest, error) {
	if d.manifest != nil {
		return *d.manifest, nil
	}

	if err := d.open(); err != nil {
		d.release()
		return media.ContainerManifest{}, err
	}

	if err := d.ctx.FindStreamInfo(); err != nil {
		d.release()
		return media.ContainerManifest{}, fmt.Errorf("find stream info %s: %w", d.name(), err)
	}

	info := d.ctx.Container()
	m := media.ContainerManifest{
		Format:    info.Format,
		MimeTypes: info.MimeTypes,
		Duration:  info.Duration,
		BitRate:   info.BitRate,
		Streams:   d.ctx.Streams(),
	}
	for i, s := range m.Streams {
		if s.Index != i {
			d.release()
			return media.ContainerManifest{}, fmt.Errorf("%w: stream %d reports index %d", ErrInvalidStream, i, s.Index)
		}
	}

	d.manifest = &m
	d.log.Debug().Str("input", d.name()).Str("format", m.Format).Int("streams", m.Len()).Msg("probed")
	return m, nil
}

func (d *Demuxer) open() error {
	if d.ctx != nil {
		return ErrDemuxerOpen
	}

	spec := engine.InputSpec{URL: d.input.URL, Format: d.input.Format, Options: d.input.Options}
	if d.input.Reader != nil {
		var (
			bridge *avio.Bridge
			err    error
		)
		options := []avio.Option{avio.WithLogger(d.log)}
		if d.input.BufferSize > 0 {
			options = append(options, avio.WithBufferSize(d.input.BufferSize))
		}
		if rs, ok := d.input.Reader.(io.ReadSeeker); ok {
			bridge, err = avio.NewReadSeeker(d.engine, rs, options...)
		} else {
			bridge, err = avio.NewReader(d.engine, d.input.Reader, options...)
		}
		if err != nil {
			return fmt.Errorf("bridge input %s: %w", d.name(), err)
		}
		d.bridge = bridge
		spec.IO = bridge.Context()
	}

	ctx, err := d.engine.OpenInput(spec)
	if err != nil {
		return fmt.Errorf("open input %s: %w", d.name(), err)
	}
	d.ctx = ctx
	return nil
}

func (d *Demuxer) name() string {
	if d.input.URL != "" {
		return d.input.URL
	}
	return "<reader>"
}

func (d *Demuxer) Manifest() (media.ContainerManifest, bool) {
	if d.manifest == nil {
		return media.ContainerManifest{}, false
	}
	return *d.manifest, true
}

func (d *Demuxer) Stream(index int) (media.StreamDescriptor, error) {
	if d.manifest == nil {
		return media.StreamDescriptor{}, ErrDemuxerNotOpen
	}
	s, ok := d.manifest.Stream(index)
	if !ok {
		return media.StreamDescriptor{}, fmt.Errorf("%w: %d", ErrInvalidStream, index)
	}
	return s, nil
}

// ReadPacket returns the next packet, stamped with its stream's timebase, or io.EOF.
func (d *Demuxer) ReadPacket() (*media.Packet, error) {
	if d.ctx == nil || d.manifest == nil {
		return nil, ErrDemuxerNotOpen
	}

	pkt, err := d.ctx.ReadPacket()
	if err != nil {
		if errors.Is(err, engine.ErrEndOfStream) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read packet %s: %w", d.name(), err)
	}

	s, ok := d.manifest.Stream(pkt.StreamIndex())
	if !ok {
		index := pkt.StreamIndex()
		pkt.Release()
		return nil, fmt.Errorf("%w: packet for stream %d", ErrInvalidStream, index)
	}
	if pkt.TimeBase().IsZero() {
		pkt.SetTimeBase(s.TimeBase)
	}
	return pkt, nil
}

func (d *Demuxer) BridgeStats() avio.Stats {
	if d.bridge == nil {
		return d.stats
	}
	return d.bridge.Stats()
}

// release closes the input context before the bridge that feeds it.
func (d *Demuxer) release() {
	if d.ctx != nil {
		if err := d.ctx.Close(); err != nil {
			d.log.Warn().Err(err).Str("input", d.name()).Msg("close input")
		}
		d.ctx = nil
	}
	if d.bridge != nil {
		d.stats = d.bridge.Stats()
		if err := d.bridge.Close(); err != nil {
			d.log.Warn().Err(err).Str("input", d.name()).Msg("close input object")
		}
		d.bridge = nil
	}
	d.manifest = nil
}

func (d *Demuxer) Close() {
	d.once.Do(d.release)
}

// Probe opens input, returns its manifest and closes it again.
func Probe(eng engine.Engine, input engine.Input, options ...DemuxerOption) (media.ContainerManifest, error) {
	d, err := CreateDemuxer(eng, input, options...)
	if err != nil {
		return media.ContainerManifest{}, err
	}
	defer d.Close()
	return d.Probe()
}
