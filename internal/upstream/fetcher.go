// Package upstream fetches origin resources on behalf of relay clients.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTimeout bounds a single upstream fetch.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBodyBytes caps how much of an upstream body is relayed.
	DefaultMaxBodyBytes int64 = 64 << 20
	// DefaultUserAgent is sent when the caller supplies none.
	DefaultUserAgent = "Mozilla/5.0 (compatible; hls-relay)"
)

// ErrBodyTooLarge is returned when an upstream body exceeds MaxBodyBytes.
var ErrBodyTooLarge = errors.New("upstream body exceeds size limit")

// Response is a fully-read upstream response. Body must be treated as
// read-only: concurrent identical fetches share it.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fetcher performs a GET against an origin URL with optional header overrides.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, header http.Header) (*Response, error)
}

// Config configures an HTTPFetcher.
type Config struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	UserAgent    string
	// Transport defaults to a clone of http.DefaultTransport.
	Transport http.RoundTripper
}

// HTTPFetcher is the net/http Fetcher. Concurrent fetches of the same URL
// with the same headers share one upstream round trip.
type HTTPFetcher struct {
	client    *http.Client
	transport http.RoundTripper
	cfg       Config
	group     singleflight.Group
}

// New returns an HTTPFetcher. Zero Config fields take their defaults.
func New(cfg Config) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		transport: transport,
		cfg:       cfg,
	}
}

// Fetch implements Fetcher. The upstream request is detached from ctx
// cancellation and bounded by the configured timeout instead, so one caller
// going away does not fail others sharing the same round trip.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, header http.Header) (*Response, error) {
	ch := f.group.DoChan(requestKey(rawURL, header), func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.cfg.Timeout)
		defer cancel()
		return f.do(fctx, rawURL, header)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		shared := res.Val.(*Response)
		return &Response{
			StatusCode: shared.StatusCode,
			Header:     shared.Header.Clone(),
			Body:       shared.Body,
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *HTTPFetcher) do(ctx context.Context, rawURL string, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	for k, vs := range header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		return nil, ErrBodyTooLarge
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// Close releases idle upstream connections.
func (f *HTTPFetcher) Close() {
	if t, ok := f.transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
}

// requestKey identifies fetches that may share a round trip.
func requestKey(rawURL string, header http.Header) string {
	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, http.CanonicalHeaderKey(k))
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(rawURL)
	for _, k := range keys {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.Join(header.Values(k), ","))
	}
	return b.String()
}
