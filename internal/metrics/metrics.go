// Package metrics exposes Prometheus counters for transcode jobs.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harshabose/avpipe/internal/logging"
	"github.com/harshabose/avpipe/pkg/media"
	"github.com/harshabose/avpipe/pkg/transcode"
)

// Per-stream labels are bounded by the number of streams in a job's input,
// the job label by the number of configured jobs.
var (
	PacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avpipe_packets_total",
		Help: "Packets handled per stream, by outcome (read, copied, dropped, encoded).",
	}, []string{"job", "stream", "result"})

	FramesDecodedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avpipe_frames_decoded_total",
		Help: "Frames produced by the decoder per stream.",
	}, []string{"job", "stream"})

	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avpipe_jobs_total",
		Help: "Finished jobs, by result (ok, failed, canceled).",
	}, []string{"result"})

	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "avpipe_job_duration_seconds",
		Help:    "Wall time of a job from open to trailer.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 16), // 10ms to ~5.5min
	})

	BridgeBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avpipe_bridge_bytes_total",
		Help: "Bytes moved through custom I/O bridges, by direction (read, write).",
	}, []string{"direction"})
)

const (
	ResultOK       = "ok"
	ResultFailed   = "failed"
	ResultCanceled = "canceled"
)

// Observer feeds transcoder callbacks into the packet and frame counters of one job.
type Observer struct {
	job string
}

func NewObserver(job string) *Observer {
	return &Observer{job: job}
}

func (o *Observer) PacketRead(stream int, _ media.MediaType) { o.packet(stream, "read") }
func (o *Observer) PacketCopied(stream int)                  { o.packet(stream, "copied") }
func (o *Observer) PacketDropped(stream int)                 { o.packet(stream, "dropped") }
func (o *Observer) PacketEncoded(stream int)                 { o.packet(stream, "encoded") }

func (o *Observer) FrameDecoded(stream int) {
	FramesDecodedTotal.WithLabelValues(o.job, strconv.Itoa(stream)).Inc()
}

func (o *Observer) packet(stream int, result string) {
	PacketsTotal.WithLabelValues(o.job, strconv.Itoa(stream), result).Inc()
}

var _ transcode.Observer = (*Observer)(nil)

// RecordJob counts a finished job and its duration.
func RecordJob(result string, elapsed time.Duration, stats transcode.Stats) {
	JobsTotal.WithLabelValues(result).Inc()
	JobDuration.Observe(elapsed.Seconds())
	if stats.BytesRead > 0 {
		BridgeBytesTotal.WithLabelValues("read").Add(float64(stats.BytesRead))
	}
	if stats.BytesWritten > 0 {
		BridgeBytesTotal.WithLabelValues("write").Add(float64(stats.BytesWritten))
	}
}

// Serve exposes /metrics on addr until ctx is canceled.
// Router serves /metrics and a /healthz liveness probe.
func Router() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}

func Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return serve(ctx, ln)
}

func serve(ctx context.Context, ln net.Listener) error {
	log := logging.WithComponent("metrics")

	srv := &http.Server{Handler: Router(), ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
