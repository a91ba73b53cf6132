package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/harshabose/avpipe/pkg/media"
	"github.com/harshabose/avpipe/pkg/transcode"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestObserver_CountsPerStream(t *testing.T) {
	o := NewObserver("observer-test")

	o.PacketRead(0, media.MediaTypeVideo)
	o.PacketRead(0, media.MediaTypeVideo)
	o.PacketRead(1, media.MediaTypeAudio)
	o.PacketCopied(1)
	o.PacketDropped(2)
	o.FrameDecoded(0)
	o.PacketEncoded(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(PacketsTotal.WithLabelValues("observer-test", "0", "read")))
	assert.Equal(t, 1.0, testutil.ToFloat64(PacketsTotal.WithLabelValues("observer-test", "1", "read")))
	assert.Equal(t, 1.0, testutil.ToFloat64(PacketsTotal.WithLabelValues("observer-test", "1", "copied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(PacketsTotal.WithLabelValues("observer-test", "2", "dropped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(PacketsTotal.WithLabelValues("observer-test", "0", "encoded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(FramesDecodedTotal.WithLabelValues("observer-test", "0")))
}

func TestRecordJob(t *testing.T) {
	okBefore := testutil.ToFloat64(JobsTotal.WithLabelValues(ResultOK))
	readBefore := testutil.ToFloat64(BridgeBytesTotal.WithLabelValues("read"))
	writeBefore := testutil.ToFloat64(BridgeBytesTotal.WithLabelValues("write"))

	RecordJob(ResultOK, time.Second, transcode.Stats{BytesRead: 100})

	assert.Equal(t, okBefore+1, testutil.ToFloat64(JobsTotal.WithLabelValues(ResultOK)))
	assert.Equal(t, readBefore+100, testutil.ToFloat64(BridgeBytesTotal.WithLabelValues("read")))
	assert.Equal(t, writeBefore, testutil.ToFloat64(BridgeBytesTotal.WithLabelValues("write")))
}

func TestServe_ExposesAndShutsDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	NewObserver("serve-test").PacketRead(0, media.MediaTypeVideo)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, ln) }()

	client := &http.Client{Timeout: 5 * time.Second, Transport: &http.Transport{DisableKeepAlives: true}}
	var body []byte
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + ln.Addr().String() + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err = io.ReadAll(resp.Body)
		return err == nil && resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, string(body), `avpipe_packets_total{job="serve-test",result="read",stream="0"} 1`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("metrics server did not stop")
	}
	client.CloseIdleConnections()
}

func TestRouter_Healthz(t *testing.T) {
	rec := httptest.NewRecorder()
	Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())

	rec = httptest.NewRecorder()
	Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
