package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.ObserveRender("allowed", 25*time.Millisecond)
	m.ObserveRender("allowed", 10*time.Millisecond)
	m.ObserveRender("denied", 5*time.Millisecond)
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordCacheLookup(false)
	m.RecordTrustDecision("allowed", true)
	m.RecordPluginFailure("mermaid", "transform")

	if got := testutil.ToFloat64(m.RendersTotal.WithLabelValues("allowed")); got != 2 {
		t.Errorf("renders_total{allowed} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RendersTotal.WithLabelValues("denied")); got != 1 {
		t.Errorf("renders_total{denied} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CacheHitsTotal); got != 1 {
		t.Errorf("cache_hits_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CacheMissesTotal); got != 2 {
		t.Errorf("cache_misses_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.TrustDecisionsTotal.WithLabelValues("allowed", "true")); got != 1 {
		t.Errorf("trust_decisions_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PluginFailuresTotal.WithLabelValues("mermaid", "transform")); got != 1 {
		t.Errorf("plugin_failures_total = %v, want 1", got)
	}
}

func TestMetrics_HandlerExposition(t *testing.T) {
	m := NewMetrics()
	m.ObserveRender("none", time.Millisecond)
	m.RecordExportJob("completed")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("metrics endpoint returned %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	for _, want := range []string{
		`docrender_renders_total{status="none"} 1`,
		`docrender_export_jobs_total{status="completed"} 1`,
		"docrender_render_duration_seconds_count 1",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRender("allowed", time.Second)
	m.RecordCacheLookup(true)
	m.RecordPluginFailure("x", "transform")
	m.RecordCodeBlock("x")
	m.RecordTrustDecision("denied", false)
	m.RecordExportJob("failed")
	m.RecordSettingsReload("ok")
	if m.Handler() == nil {
		t.Error("nil metrics must still produce a handler")
	}
}
