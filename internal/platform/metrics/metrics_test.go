package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveCapture("ok", time.Second)
	m.IncCaptureCacheHit()
	m.IncStreamStart()
	m.IncStreamCrash()
	m.IncStreamIdleStop()
	m.SetStreamsRunning(2)
	m.IncWatchdogProbeFailure()
	m.IncWatchdogRestart()
	m.ObserveRequest("/image", 200)
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveCapture("timeout", 10*time.Second)
	m.IncStreamStart()
	m.SetStreamsRunning(3)
	m.ObserveRequest("/player", 200)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	out := string(body)

	for _, want := range []string{
		`rtsplive_capture_jobs_total{result="timeout"} 1`,
		`rtsplive_stream_starts_total 1`,
		`rtsplive_streams_running 3`,
		`rtsplive_http_requests_total{route="/player",status="200"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
