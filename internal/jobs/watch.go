package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/harshabose/avpipe/internal/config"
)

// extensions maps muxer names to the file extension written in watch mode.
var extensions = map[string]string{
	"matroska": ".mkv",
	"webm":     ".webm",
	"mp4":      ".mp4",
	"mov":      ".mov",
	"mpegts":   ".ts",
	"wav":      ".wav",
	"flac":     ".flac",
	"ogg":      ".ogg",
	"adts":     ".aac",
	"mp3":      ".mp3",
}

type Watcher struct {
	runner      *Runner
	dir         string
	templates   []config.Job
	settle      time.Duration
	concurrency int
	started     func(config.Job)
}

type WatchOption = func(*Watcher) error

// WithSettle sets how long a new file must stay unchanged before it is processed.
func WithSettle(d time.Duration) WatchOption {
	return func(w *Watcher) error {
		if d <= 0 {
			return fmt.Errorf("watch: settle %s must be positive", d)
		}
		w.settle = d
		return nil
	}
}

func WithWatchConcurrency(n int) WatchOption {
	return func(w *Watcher) error {
		if n < 1 {
			return fmt.Errorf("watch: concurrency %d must be at least 1", n)
		}
		w.concurrency = n
		return nil
	}
}

// WithJobStarted registers a callback for every job derived from a new file.
func WithJobStarted(fn func(config.Job)) WatchOption {
	return func(w *Watcher) error {
		w.started = fn
		return nil
	}
}

func NewWatcher(r *Runner, dir string, templates []config.Job, options ...WatchOption) (*Watcher, error) {
	w := &Watcher{
		runner:      r,
		dir:         dir,
		templates:   templates,
		settle:      500 * time.Millisecond,
		concurrency: 1,
	}
	for _, option := range options {
		if err := option(w); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Watch runs one job per template for every file created in dir until ctx is
// canceled. Job failures are logged, not returned.
func Watch(ctx context.Context, r *Runner, dir string, templates []config.Job, options ...WatchOption) error {
	w, err := NewWatcher(r, dir, templates, options...)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

// Derive builds the concrete job for path: the template's output is a
// directory, and the file keeps its base name.
func Derive(template config.Job, path string) config.Job {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	ext := filepath.Ext(base)
	if template.OutputFormat != "" {
		ext = "." + template.OutputFormat
		if known, ok := extensions[template.OutputFormat]; ok {
			ext = known
		}
	}

	job := template
	job.Name = template.Name + "/" + base
	job.Input = path
	job.Output = filepath.Join(template.Output, stem+ext)
	return job
}

func (w *Watcher) Run(ctx context.Context) error {
	log := w.runner.log.With().Str("dir", w.dir).Logger()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	var (
		pending = map[string]*time.Timer{}
		ready   = make(chan string)
		stop    = make(chan struct{})
		g       errgroup.Group
	)
	g.SetLimit(w.concurrency)
	defer func() {
		close(stop)
		for _, t := range pending {
			t.Stop()
		}
		_ = g.Wait()
	}()

	log.Info().Int("templates", len(w.templates)).Msg("watching for new files")
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			// every write restarts the settle timer so partially copied files wait
			if t, ok := pending[event.Name]; ok {
				t.Reset(w.settle)
			} else if event.Has(fsnotify.Create) {
				path := event.Name
				pending[path] = time.AfterFunc(w.settle, func() {
					select {
					case ready <- path:
					case <-stop:
					}
				})
			}

		case path := <-ready:
			if _, ok := pending[path]; !ok {
				continue
			}
			delete(pending, path)
			if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
				continue
			}
			for _, template := range w.templates {
				job := Derive(template, path)
				if w.started != nil {
					w.started(job)
				}
				g.Go(func() error {
					if _, err := w.runner.Run(ctx, job); err != nil {
						log.Warn().Err(err).Str("input", path).Msg("watched job failed")
					}
					return nil
				})
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watcher error")
		}
	}
}
