package transcode

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/rs/zerolog"

	"github.com/harshabose/avpipe/internal/logging"
	"github.com/harshabose/avpipe/pkg/engine"
	"github.com/harshabose/avpipe/pkg/media"
)

type State int

const (
	StateIdle State = iota
	StatePrepared
	StateRunning
	StateFlushing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePrepared:
		return "prepared"
	case StateRunning:
		return "running"
	case StateFlushing:
		return "flushing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Stats struct {
	PacketsRead    int64
	PacketsCopied  int64
	PacketsDropped int64
	FramesDecoded  int64
	PacketsEncoded int64
	// BytesRead and BytesWritten count only reader and writer backed containers.
	BytesRead    int64
	BytesWritten int64
}

// route is either a *copyRoute or a *transcodeRoute.
type route interface {
	source() media.StreamDescriptor
}

type copyRoute struct {
	stream media.StreamDescriptor
	output int
}

func (r *copyRoute) source() media.StreamDescriptor { return r.stream }

type transcodeRoute struct {
	stream  media.StreamDescriptor
	encoder *Encoder
	output  int

	scaler    *Scaler
	resampler *Resampler
	fifo      *AudioFifo

	decoderOptions map[string]string
	download       bool
}

func (r *transcodeRoute) source() media.StreamDescriptor { return r.stream }

// closeStages frees the conversion contexts. Scaler and resampler rebuild
// theirs from the next frame; the fifo is gone for good.
func (r *transcodeRoute) closeStages() {
	if r.scaler != nil {
		r.scaler.Close()
	}
	if r.resampler != nil {
		r.resampler.Close()
	}
	if r.fifo != nil {
		r.fifo.Close()
	}
}

func (r *transcodeRoute) close() {
	r.closeStages()
	r.encoder.Close()
}

// Transcoder reads one container and writes one container. Every input stream
// is copied, transcoded or dropped according to the routes registered between
// Prepare and Run. It is single threaded and not safe for concurrent use.
type Transcoder struct {
	engine engine.Engine
	input  engine.Input
	output engine.Output

	demuxer *Demuxer
	decoder *Decoder
	muxer   *Muxer

	manifest media.ContainerManifest
	routes   map[int]route
	order    []int

	decoderOptions []DecoderOption
	observer       Observer

	state    State
	failure  error
	released bool
	stats    Stats
	log      zerolog.Logger
}

func CreateTranscoder(eng engine.Engine, input engine.Input, output engine.Output, options ...TranscoderOption) (*Transcoder, error) {
	t := &Transcoder{
		engine:   eng,
		input:    input,
		output:   output,
		routes:   map[int]route{},
		observer: nopObserver{},
		log:      logging.WithComponent("transcoder"),
	}

	for _, option := range options {
		if err := option(t); err != nil {
			return nil, err
		}
	}

	decoder, err := NewDecoder(eng, append([]DecoderOption{WithDecoderLogger(t.log)}, t.decoderOptions...)...)
	if err != nil {
		return nil, err
	}
	t.decoder = decoder
	return t, nil
}

func (t *Transcoder) State() State {
	return t.state
}

func (t *Transcoder) Manifest() media.ContainerManifest {
	return t.manifest
}

// RequiresGlobalHeader reports whether encoders routed into the prepared
// output must be created with WithGlobalHeader.
func (t *Transcoder) RequiresGlobalHeader() bool {
	return t.muxer != nil && t.muxer.RequiresGlobalHeader()
}

// Stats returns the counters of the current run.
func (t *Transcoder) Stats() Stats {
	s := t.stats
	if t.demuxer != nil {
		s.BytesRead = t.demuxer.BridgeStats().BytesRead
	}
	if t.muxer != nil {
		s.BytesWritten = t.muxer.BridgeStats().BytesWritten
	}
	return s
}

func (t *Transcoder) check(want State) error {
	if t.failure != nil {
		return fmt.Errorf("%w: %w", ErrTranscoderFailed, t.failure)
	}
	if t.released {
		return fmt.Errorf("%w: transcoder closed", ErrInvalidState)
	}
	if t.state != want {
		return fmt.Errorf("%w: %s, want %s", ErrInvalidState, t.state, want)
	}
	return nil
}

func (t *Transcoder) fail(err error) error {
	t.failure = err
	t.log.Error().Err(err).Str("state", t.state.String()).Msg("transcode failed")
	return err
}

// ### PREPARATION

// Prepare probes the input and allocates the output.
func (t *Transcoder) Prepare() (media.ContainerManifest, error) {
	if err := t.check(StateIdle); err != nil {
		return media.ContainerManifest{}, err
	}

	demuxer, err := CreateDemuxer(t.engine, t.input, WithDemuxerLogger(t.log))
	if err != nil {
		return media.ContainerManifest{}, err
	}
	manifest, err := demuxer.Probe()
	if err != nil {
		demuxer.Close()
		return media.ContainerManifest{}, err
	}

	muxer, err := CreateMuxer(t.engine, t.output, WithMuxerLogger(t.log))
	if err != nil {
		demuxer.Close()
		return media.ContainerManifest{}, err
	}

	t.demuxer, t.muxer, t.manifest = demuxer, muxer, manifest
	t.state = StatePrepared
	t.log.Debug().Int("streams", manifest.Len()).Str("format", manifest.Format).Msg("input probed")
	return manifest, nil
}

func (t *Transcoder) routable(stream media.StreamDescriptor) (media.StreamDescriptor, error) {
	if err := t.check(StatePrepared); err != nil {
		return media.StreamDescriptor{}, err
	}
	s, ok := t.manifest.Stream(stream.Index)
	if !ok {
		return media.StreamDescriptor{}, fmt.Errorf("%w: %d", ErrInvalidStream, stream.Index)
	}
	if _, ok := t.routes[s.Index]; ok {
		return media.StreamDescriptor{}, fmt.Errorf("%w: stream #%d", ErrStreamAlreadyRouted, s.Index)
	}
	return s, nil
}

// CopyStream forwards a stream's packets to the output unchanged.
func (t *Transcoder) CopyStream(stream media.StreamDescriptor) error {
	s, err := t.routable(stream)
	if err != nil {
		return err
	}

	output, err := t.muxer.AddCopyStream(s)
	if err != nil {
		return err
	}

	t.addRoute(&copyRoute{stream: s, output: output})
	t.log.Debug().Int("stream", s.Index).Int("output", output).Msg("stream copy")
	return nil
}

// TranscodeStream decodes a stream and re-encodes it with enc. On success
// the transcoder owns enc; on error the caller keeps it.
func (t *Transcoder) TranscodeStream(stream media.StreamDescriptor, enc *Encoder, options ...RouteOption) error {
	s, err := t.routable(stream)
	if err != nil {
		return err
	}
	if s.Kind != media.MediaTypeVideo && s.Kind != media.MediaTypeAudio {
		return fmt.Errorf("%w: cannot transcode %s stream #%d", ErrUnsupportedMedia, s.Kind, s.Index)
	}
	if enc.Kind() != s.Kind {
		return fmt.Errorf("%w: %s encoder for %s stream #%d", ErrInvalidEncoderConfig, enc.Kind(), s.Kind, s.Index)
	}

	r := &transcodeRoute{stream: s, encoder: enc}
	for _, option := range options {
		if err := option(r); err != nil {
			return err
		}
	}

	if _, err := t.decoder.Setup(s, r.decoderOptions); err != nil {
		return err
	}

	if err := t.inferStages(r); err != nil {
		r.closeStages()
		t.decoder.Remove(s.Index)
		return err
	}

	output, err := t.muxer.AddEncoderStream(enc)
	if err != nil {
		r.closeStages()
		t.decoder.Remove(s.Index)
		return err
	}
	enc.SetStreamIndex(output)
	r.output = output

	t.addRoute(r)
	t.log.Debug().Int("stream", s.Index).Int("output", output).Str("encoder", enc.Name()).
		Bool("scale", r.scaler != nil).Bool("resample", r.resampler != nil).Bool("fifo", r.fifo != nil).
		Msg("stream transcode")
	return nil
}

func (t *Transcoder) addRoute(r route) {
	index := r.source().Index
	t.routes[index] = r
	t.order = append(t.order, index)
}

// inferStages adds the conversion stages needed between the decoded stream
// and the encoder. Zero encoder settings follow the source.
func (t *Transcoder) inferStages(r *transcodeRoute) error {
	cfg := r.encoder.Config()
	s := r.stream

	switch s.Kind {
	case media.MediaTypeVideo:
		dst := engine.VideoFormat{Width: cfg.Width, Height: cfg.Height, PixelFormat: cfg.PixelFormat}
		if dst.Width == 0 {
			dst.Width = s.Width
		}
		if dst.Height == 0 {
			dst.Height = s.Height
		}
		src := engine.VideoFormat{Width: s.Width, Height: s.Height, PixelFormat: s.Format}
		// downloaded frames arrive in whatever host format the device uses
		if dst != src || r.download {
			r.scaler = NewScaler(t.engine, dst)
		}

	case media.MediaTypeAudio:
		dst := cfg.AudioFormat()
		if dst.SampleRate == 0 {
			dst.SampleRate = s.SampleRate
		}
		if dst.Channels == 0 {
			dst.Channels = s.Channels
		}
		src := engine.AudioFormat{SampleFormat: s.Format, SampleRate: s.SampleRate, Channels: s.Channels}
		if dst != src {
			r.resampler = NewResampler(t.engine, dst)
		}
		if r.encoder.FrameSize() > 0 {
			fifo, err := NewAudioFifo(t.engine, dst)
			if err != nil {
				return err
			}
			r.fifo = fifo
		}
	}
	return nil
}

// ### RUNNING

// Start opens the output and writes its header.
func (t *Transcoder) Start(muxOptions map[string]string) error {
	if err := t.check(StatePrepared); err != nil {
		return err
	}
	if len(t.routes) == 0 {
		return fmt.Errorf("%w: no stream routed", ErrInvalidState)
	}

	if err := t.muxer.Open(muxOptions); err != nil {
		return t.fail(err)
	}
	t.state = StateRunning
	return nil
}

// Run processes the whole input and finalises the output.
func (t *Transcoder) Run(muxOptions map[string]string) error {
	if t.state == StatePrepared {
		if err := t.Start(muxOptions); err != nil {
			return err
		}
	}

	for {
		done, err := t.Step()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// Step reads and processes one packet. At end of input it flushes every
// stage, writes the trailer and reports done.
func (t *Transcoder) Step() (bool, error) {
	if err := t.check(StateRunning); err != nil {
		return false, err
	}

	pkt, err := t.demuxer.ReadPacket()
	if errors.Is(err, io.EOF) {
		if err := t.finish(); err != nil {
			return false, t.fail(err)
		}
		return true, nil
	}
	if err != nil {
		return false, t.fail(err)
	}

	if err := t.process(pkt); err != nil {
		return false, t.fail(err)
	}
	return false, nil
}

func (t *Transcoder) process(pkt *media.Packet) error {
	defer pkt.Release()

	index := pkt.StreamIndex()
	s, _ := t.manifest.Stream(index)
	t.stats.PacketsRead++
	t.observer.PacketRead(index, s.Kind)

	switch r := t.routes[index].(type) {
	case *copyRoute:
		pkt.SetStreamIndex(r.output)
		if err := t.muxer.WritePacket(pkt); err != nil {
			return err
		}
		t.stats.PacketsCopied++
		t.observer.PacketCopied(index)
		return nil

	case *transcodeRoute:
		frames, err := t.decoder.Decode(pkt)
		if err != nil {
			return err
		}
		return t.processDecoded(frames)

	default:
		t.stats.PacketsDropped++
		t.observer.PacketDropped(index)
		return nil
	}
}

// processDecoded takes ownership of frames.
func (t *Transcoder) processDecoded(frames []DecodedFrame) error {
	for i, f := range frames {
		r, ok := t.routes[f.StreamIndex].(*transcodeRoute)
		if !ok {
			f.Frame.Release()
			continue
		}
		if err := t.processFrame(r, f.Frame); err != nil {
			releaseDecoded(frames[i+1:])
			return err
		}
	}
	return nil
}

// processFrame runs frame through the route's stages and encoder, writing
// every packet produced. It releases frame and every intermediate frame.
func (t *Transcoder) processFrame(r *transcodeRoute, frame *media.Frame) error {
	t.stats.FramesDecoded++
	t.observer.FrameDecoded(r.stream.Index)

	owned := []*media.Frame{frame}
	defer func() {
		for _, f := range owned {
			f.Release()
		}
	}()

	current := frame
	if r.download && current.IsHardware() {
		host, err := DownloadFrame(t.engine, current)
		if err != nil {
			return err
		}
		owned = append(owned, host)
		current = host
	}
	if r.scaler != nil {
		scaled, err := r.scaler.Process(current)
		if err != nil {
			return err
		}
		owned = append(owned, scaled)
		current = scaled
	}
	if r.resampler != nil {
		resampled, err := r.resampler.Process(current)
		if err != nil {
			return err
		}
		owned = append(owned, resampled)
		current = resampled
	}

	if r.fifo == nil {
		return t.encode(r, current)
	}

	if err := r.fifo.Buffer(current); err != nil {
		return err
	}
	for {
		block, ok, err := r.fifo.Drain(r.encoder.FrameSize())
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		err = t.encode(r, block)
		block.Release()
		if err != nil {
			return err
		}
	}
}

// encode feeds frame (nil to flush) to the route's encoder and writes the result.
func (t *Transcoder) encode(r *transcodeRoute, frame *media.Frame) error {
	packets, err := r.encoder.Encode(frame)
	if err != nil {
		return err
	}

	for i, pkt := range packets {
		err := t.muxer.WritePacket(pkt)
		pkt.Release()
		if err != nil {
			releasePackets(packets[i+1:])
			return err
		}
		t.stats.PacketsEncoded++
		t.observer.PacketEncoded(r.stream.Index)
	}
	return nil
}

// finish drains the decoder, then every encoder in source index order, then
// writes the trailer.
func (t *Transcoder) finish() error {
	t.state = StateFlushing

	frames, err := t.decoder.Flush()
	if err != nil {
		return err
	}
	if err := t.processDecoded(frames); err != nil {
		return err
	}

	indices := make([]int, 0, len(t.routes))
	for index := range t.routes {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	for _, index := range indices {
		r, ok := t.routes[index].(*transcodeRoute)
		if !ok {
			continue
		}
		if r.fifo != nil && r.fifo.Size() > 0 {
			t.log.Debug().Int("stream", index).Int("samples", r.fifo.Size()).Int("frame_size", r.encoder.FrameSize()).
				Msg("discarding audio shorter than one encoder frame")
		}
		if err := t.encode(r, nil); err != nil {
			return err
		}
	}

	if err := t.muxer.Reset(); err != nil {
		return err
	}
	t.demuxer.Close()

	t.state = StateClosed
	t.log.Info().Int64("read", t.stats.PacketsRead).Int64("copied", t.stats.PacketsCopied).
		Int64("encoded", t.stats.PacketsEncoded).Int64("dropped", t.stats.PacketsDropped).Msg("transcode finished")
	return nil
}

// ### REINITIALISATION

// Reinit points a finished transcoder at a new input and output with the same
// routed stream layout. Decoders and encoders are reset, not rebuilt. The
// transcoder is Prepared again on success.
func (t *Transcoder) Reinit(input engine.Input, output engine.Output) error {
	if err := t.check(StateClosed); err != nil {
		return err
	}

	demuxer, err := CreateDemuxer(t.engine, input, WithDemuxerLogger(t.log))
	if err != nil {
		return t.fail(err)
	}
	manifest, err := demuxer.Probe()
	if err != nil {
		demuxer.Close()
		return t.fail(err)
	}

	if err := t.matchLayout(manifest); err != nil {
		demuxer.Close()
		return t.fail(err)
	}
	t.input, t.demuxer, t.manifest = input, demuxer, manifest

	if err := t.muxer.SetOutput(output); err != nil {
		return t.fail(err)
	}
	if err := t.muxer.Init(); err != nil {
		return t.fail(err)
	}
	t.output = output

	if err := t.decoder.Reset(); err != nil {
		return t.fail(err)
	}

	for _, index := range t.order {
		s, _ := manifest.Stream(index)
		switch r := t.routes[index].(type) {
		case *copyRoute:
			r.stream = s
			if r.output, err = t.muxer.AddCopyStream(s); err != nil {
				return t.fail(err)
			}
		case *transcodeRoute:
			r.stream = s
			if err := t.decoder.Rebind(s); err != nil {
				return t.fail(err)
			}
			if err := r.encoder.Reset(); err != nil {
				return t.fail(err)
			}
			if r.output, err = t.muxer.AddEncoderStream(r.encoder); err != nil {
				return t.fail(err)
			}
			r.encoder.SetStreamIndex(r.output)
			if r.scaler != nil {
				r.scaler.Close()
			}
			if r.resampler != nil {
				r.resampler.Close()
			}
			if r.fifo != nil {
				format := r.fifo.Format()
				r.fifo.Close()
				if r.fifo, err = NewAudioFifo(t.engine, format); err != nil {
					return t.fail(err)
				}
			}
		}
	}

	t.stats = Stats{}
	t.state = StatePrepared
	t.log.Debug().Int("streams", manifest.Len()).Msg("transcoder reinitialised")
	return nil
}

func (t *Transcoder) matchLayout(manifest media.ContainerManifest) error {
	for _, index := range t.order {
		old := t.routes[index].source()
		s, ok := manifest.Stream(index)
		if !ok {
			return fmt.Errorf("%w: stream #%d missing", ErrLayoutMismatch, index)
		}
		if s.Kind != old.Kind || s.CodecID != old.CodecID {
			return fmt.Errorf("%w: stream #%d is %s/%s, was %s/%s", ErrLayoutMismatch, index,
				s.Kind, s.CodecName, old.Kind, old.CodecName)
		}
	}
	return nil
}

// Close releases every owned engine resource in any state. The output is
// not finalised when Close interrupts a run.
func (t *Transcoder) Close() {
	if t.released {
		return
	}
	t.released = true

	for _, index := range t.order {
		if r, ok := t.routes[index].(*transcodeRoute); ok {
			r.close()
		}
	}
	t.decoder.Close()
	if t.muxer != nil {
		t.muxer.Close()
	}
	if t.demuxer != nil {
		t.demuxer.Close()
	}
	t.state = StateClosed
}
