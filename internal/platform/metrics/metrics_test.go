package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, m *Metrics, update func()) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler(update).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape: expected 200, got %d", rec.Code)
	}
	b, _ := io.ReadAll(rec.Body)
	return string(b)
}

func TestMetrics_exposition(t *testing.T) {
	m := New()
	m.ObserveRewrite("media", 1, 3, 2)
	m.IncPassthrough("opaque")
	m.IncPassthrough("opaque")
	m.IncTokenLookup("miss")
	m.AddTokensIssued(4)
	m.IncUpstreamFailures()

	out := scrape(t, m, func() { m.SetStoreEntries(42) })

	for _, want := range []string{
		`hls_relay_manifests_rewritten_total{playlist="media"} 1`,
		`hls_relay_manifest_references_total{outcome="key"} 1`,
		`hls_relay_manifest_references_total{outcome="media"} 3`,
		`hls_relay_manifest_references_total{outcome="malformed"} 2`,
		`hls_relay_passthrough_total{class="opaque"} 2`,
		`hls_relay_token_lookups_total{result="miss"} 1`,
		`hls_relay_tokens_issued_total 4`,
		`hls_relay_upstream_failures_total 1`,
		`hls_relay_store_entries 42`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in exposition:\n%s", want, out)
		}
	}
}

func TestRequestMiddleware(t *testing.T) {
	m := New()
	h := RequestMiddleware(m, "/metrics")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	for _, p := range []string{"/", "/missing", "/metrics"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	out := scrape(t, m, nil)
	if !strings.Contains(out, "hls_relay_requests_total 2") {
		t.Errorf("expected 2 counted requests:\n%s", out)
	}
	if !strings.Contains(out, "hls_relay_errors_total 1") {
		t.Errorf("expected 1 error:\n%s", out)
	}
}
