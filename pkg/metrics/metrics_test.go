package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.StatusRead("queued")
	m.RunFinished("completed", time.Second)
	m.Turn("ok")
	m.Fragment()
}

func TestCounters(t *testing.T) {
	m := New()
	m.StatusRead("queued")
	m.StatusRead("queued")
	m.StatusRead("completed")
	m.RunFinished("completed", 3*time.Second)
	m.Fragment()

	if got := testutil.ToFloat64(m.StatusReads.WithLabelValues("queued")); got != 2 {
		t.Fatalf("expected 2 queued reads, got %v", got)
	}
	if got := testutil.ToFloat64(m.RunsFinished.WithLabelValues("completed")); got != 1 {
		t.Fatalf("expected 1 finished run, got %v", got)
	}
	if got := testutil.ToFloat64(m.StreamFragments); got != 1 {
		t.Fatalf("expected 1 fragment, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Turn("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `anbud_turns_total{outcome="ok"} 1`) {
		t.Fatalf("metrics output missing turn counter:\n%s", rec.Body.String())
	}
}
