package transcode

import "github.com/harshabose/avpipe/pkg/media"

// codecSettings is a bag of codec private options, e.g. x264 presets.
type codecSettings interface {
	ForEach(func(string, string) error) error
}

type CanSetEncoderCodecSettings interface {
	SetEncoderCodecSettings(codecSettings) error
}

type CanAdaptBitrate interface {
	AdaptBitrate(int64) error
}

type CanGetCurrentBitrate interface {
	GetCurrentBitrate() (int64, error)
}

// Observer receives per-stream progress counts from a Transcoder run. Calls
// happen on the goroutine driving the run.
type Observer interface {
	PacketRead(stream int, kind media.MediaType)
	PacketCopied(stream int)
	PacketDropped(stream int)
	FrameDecoded(stream int)
	PacketEncoded(stream int)
}

type nopObserver struct{}

func (nopObserver) PacketRead(int, media.MediaType) {}
func (nopObserver) PacketCopied(int)                {}
func (nopObserver) PacketDropped(int)               {}
func (nopObserver) FrameDecoded(int)                {}
func (nopObserver) PacketEncoded(int)               {}
