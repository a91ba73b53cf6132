// Package jobs turns configured jobs into transcoder runs.
package jobs

import (
	"errors"
	"fmt"
	"sort"

	"github.com/harshabose/avpipe/internal/config"
	"github.com/harshabose/avpipe/pkg/media"
)

var (
	ErrNothingRouted = errors.New("jobs: no input stream matched a copy or transcode rule")
	ErrUnknownKind   = errors.New("jobs: unknown stream kind")
)

// Route is the decision for one input stream.
type Route struct {
	Stream media.StreamDescriptor
	Rule   config.StreamRule
}

func (r Route) Copy() bool {
	return r.Rule.Mode == config.ModeCopy
}

func (r Route) String() string {
	return fmt.Sprintf("%s: %s", r.Stream, r.Rule.Mode)
}

// Plan applies the stream rules of job to m. Routes come out in input stream
// order, so output streams keep the input's relative order.
func Plan(m media.ContainerManifest, job config.Job) ([]Route, error) {
	selected := map[int]Route{}
	for _, rule := range job.Streams {
		kind := media.ParseMediaType(rule.Kind)
		if kind == media.MediaTypeUnknown {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKind, rule.Kind)
		}

		var streams []media.StreamDescriptor
		switch rule.Select {
		case config.SelectAll:
			streams = m.StreamsOf(kind)
		default:
			if s, ok := m.BestStream(kind); ok {
				streams = []media.StreamDescriptor{s}
			}
		}

		for _, s := range streams {
			if rule.Mode == config.ModeDrop {
				delete(selected, s.Index)
				continue
			}
			selected[s.Index] = Route{Stream: s, Rule: rule}
		}
	}

	if len(selected) == 0 {
		return nil, ErrNothingRouted
	}

	routes := make([]Route, 0, len(selected))
	for _, r := range selected {
		routes = append(routes, r)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Stream.Index < routes[j].Stream.Index })
	return routes, nil
}
