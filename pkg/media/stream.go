package media

import (
	"fmt"
	"strings"
)

// Parameters is an engine-owned reference to a stream's codec parameters. It
// stays valid only while the container it was probed from is open.
type Parameters interface {
	StreamIndex() int
}

// StreamDescriptor describes one elementary stream of a probed container.
type StreamDescriptor struct {
	Index      int       `json:"index"`
	Kind       MediaType `json:"kind"`
	CodecID    int       `json:"codec_id"`
	CodecName  string    `json:"codec"`
	Format     int       `json:"format"`
	FormatName string    `json:"format_name,omitempty"`

	Width     int      `json:"width,omitempty"`
	Height    int      `json:"height,omitempty"`
	FPS       float64  `json:"fps,omitempty"`
	FrameRate Rational `json:"frame_rate,omitempty"`

	SampleRate int `json:"sample_rate,omitempty"`
	Channels   int `json:"channels,omitempty"`

	TimeBase   Rational `json:"timebase"`
	StartTime  float64  `json:"start_time"`
	Language   string   `json:"language,omitempty"`
	BitRate    int64    `json:"bitrate,omitempty"`
	Profile    int      `json:"profile"`
	Level      int      `json:"level"`
	ColorSpace int      `json:"color_space,omitempty"`
	ColorRange int      `json:"color_range,omitempty"`

	Parameters Parameters `json:"-"`
}

// BestMetric ranks streams of the same kind; the highest wins.
func (s StreamDescriptor) BestMetric() float64 {
	switch s.Kind {
	case MediaTypeVideo:
		return float64(s.Width) * float64(s.Height) * s.FPS
	case MediaTypeAudio:
		return float64(s.SampleRate)
	case MediaTypeSubtitle:
		return float64(999 - s.Index)
	default:
		return 0
	}
}

func (s StreamDescriptor) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s %s", s.Index, s.Kind, s.CodecName)
	switch s.Kind {
	case MediaTypeVideo:
		fmt.Fprintf(&b, " %dx%d@%.3f %s", s.Width, s.Height, s.FPS, s.FormatName)
	case MediaTypeAudio:
		fmt.Fprintf(&b, " %dHz %dch %s", s.SampleRate, s.Channels, s.FormatName)
	}
	if s.Language != "" {
		fmt.Fprintf(&b, " [%s]", s.Language)
	}
	fmt.Fprintf(&b, " tb=%s", s.TimeBase)
	return b.String()
}

// ContainerManifest is the normalized result of probing a container.
type ContainerManifest struct {
	Format    string             `json:"format"`
	MimeTypes string             `json:"mime_types,omitempty"`
	Duration  float64            `json:"duration"`
	BitRate   int64              `json:"bitrate"`
	Streams   []StreamDescriptor `json:"streams"`
}

func (m ContainerManifest) Len() int {
	return len(m.Streams)
}

func (m ContainerManifest) Stream(index int) (StreamDescriptor, bool) {
	if index < 0 || index >= len(m.Streams) {
		return StreamDescriptor{}, false
	}
	return m.Streams[index], true
}

func (m ContainerManifest) StreamsOf(kind MediaType) []StreamDescriptor {
	var out []StreamDescriptor
	for _, s := range m.Streams {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// BestStream returns the highest ranked stream of kind. Equal metrics keep the
// earliest stream.
func (m ContainerManifest) BestStream(kind MediaType) (StreamDescriptor, bool) {
	var (
		best  StreamDescriptor
		found bool
	)
	for _, s := range m.Streams {
		if s.Kind != kind {
			continue
		}
		if !found || s.BestMetric() > best.BestMetric() {
			best = s
			found = true
		}
	}
	return best, found
}

func (m ContainerManifest) BestVideo() (StreamDescriptor, bool) {
	return m.BestStream(MediaTypeVideo)
}

func (m ContainerManifest) BestAudio() (StreamDescriptor, bool) {
	return m.BestStream(MediaTypeAudio)
}

func (m ContainerManifest) BestSubtitle() (StreamDescriptor, bool) {
	return m.BestStream(MediaTypeSubtitle)
}

func (m ContainerManifest) IsBestStream(index int) bool {
	s, ok := m.Stream(index)
	if !ok {
		return false
	}
	best, ok := m.BestStream(s.Kind)
	return ok && best.Index == index
}

func (m ContainerManifest) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s duration=%.3fs bitrate=%d streams=%d", m.Format, m.Duration, m.BitRate, len(m.Streams))
	for _, s := range m.Streams {
		b.WriteString("\n  ")
		b.WriteString(s.String())
		if m.IsBestStream(s.Index) {
			b.WriteString(" (best)")
		}
	}
	return b.String()
}
