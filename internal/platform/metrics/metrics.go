package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the HLS relay.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	manifestsRewritten  *prometheus.CounterVec
	referencesRewritten *prometheus.CounterVec
	passthroughTotal    *prometheus.CounterVec
	tokenLookups        *prometheus.CounterVec
	tokensIssued        prometheus.Counter
	upstreamFailures    prometheus.Counter
	storeEntries        prometheus.Gauge
}

// New creates and registers Prometheus metrics for the relay.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_relay_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_relay_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	manifestsRewritten := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hls_relay_manifests_rewritten_total",
		Help: "Manifests rewritten, by playlist kind (master, media, unknown)",
	}, []string{"playlist"})
	referencesRewritten := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hls_relay_manifest_references_total",
		Help: "Manifest references processed, by outcome (key, media, malformed)",
	}, []string{"outcome"})
	passthroughTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hls_relay_passthrough_total",
		Help: "Responses relayed without rewriting, by content class (opaque, plain)",
	}, []string{"class"})
	tokenLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hls_relay_token_lookups_total",
		Help: "Indirection token lookups, by result (hit, miss, error)",
	}, []string{"result"})
	tokensIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_relay_tokens_issued_total",
		Help: "Indirection tokens written to the store",
	})
	upstreamFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_relay_upstream_failures_total",
		Help: "Upstream fetches that failed or timed out",
	})
	storeEntries := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hls_relay_store_entries",
		Help: "Number of resident indirection store entries",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		manifestsRewritten,
		referencesRewritten,
		passthroughTotal,
		tokenLookups,
		tokensIssued,
		upstreamFailures,
		storeEntries,
	)

	return &Metrics{
		registry:            registry,
		requestsTotal:       requestsTotal,
		errorsTotal:         errorsTotal,
		manifestsRewritten:  manifestsRewritten,
		referencesRewritten: referencesRewritten,
		passthroughTotal:    passthroughTotal,
		tokenLookups:        tokenLookups,
		tokensIssued:        tokensIssued,
		upstreamFailures:    upstreamFailures,
		storeEntries:        storeEntries,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// ObserveRewrite records one rewritten manifest and its reference counts.
func (m *Metrics) ObserveRewrite(playlist string, keys, media, malformed int) {
	m.manifestsRewritten.WithLabelValues(playlist).Inc()
	m.referencesRewritten.WithLabelValues("key").Add(float64(keys))
	m.referencesRewritten.WithLabelValues("media").Add(float64(media))
	m.referencesRewritten.WithLabelValues("malformed").Add(float64(malformed))
}

// IncPassthrough records a response relayed unmodified.
func (m *Metrics) IncPassthrough(class string) {
	m.passthroughTotal.WithLabelValues(class).Inc()
}

// IncTokenLookup records a token lookup with result "hit", "miss" or "error".
func (m *Metrics) IncTokenLookup(result string) {
	m.tokenLookups.WithLabelValues(result).Inc()
}

// AddTokensIssued records n tokens written to the indirection store.
func (m *Metrics) AddTokensIssued(n int) {
	m.tokensIssued.Add(float64(n))
}

// IncUpstreamFailures increments the failed upstream fetch counter.
func (m *Metrics) IncUpstreamFailures() {
	m.upstreamFailures.Inc()
}

// SetStoreEntries sets the resident store entries gauge.
func (m *Metrics) SetStoreEntries(n int) {
	m.storeEntries.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. store entries).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
