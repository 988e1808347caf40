package relay

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"hls-relay/internal/platform/metrics"
	"hls-relay/internal/upstream"
)

// ImmutableCacheControl is attached to successful segment and key responses;
// published media never changes.
const ImmutableCacheControl = "public, max-age=31536000, immutable"

// Service resolves the target of a relay request, fetches it upstream, and
// either passes the body through or rewrites it as a manifest.
type Service struct {
	fetcher upstream.Fetcher
	store   Store
	emit    Emitter
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewService returns a Service. store may be nil when tokens are never
// issued; token requests then report ErrNotFound. Metrics may be nil to
// disable metric recording (e.g. in tests).
func NewService(fetcher upstream.Fetcher, store Store, emit Emitter, log *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{fetcher: fetcher, store: store, emit: emit, log: log, metrics: m}
}

// Relay handles one request end to end.
func (s *Service) Relay(ctx context.Context, req Request) (*Result, error) {
	target, referer, err := s.resolveTarget(ctx, req)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if referer != "" {
		header.Set("Referer", referer)
	}
	resp, err := s.fetcher.Fetch(ctx, target, header)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncUpstreamFailures()
		}
		return nil, newError(KindNetwork, "failed to fetch upstream", err)
	}

	contentType := resp.Header.Get("Content-Type")
	class := Confirm(Classify(contentType, target), resp.Body)

	if class == Manifest {
		base, err := ParseBase(target)
		if err == nil {
			return s.rewrite(ctx, resp, base, referer)
		}
		s.log.Debug("manifest base unusable, passing through", slog.String("error", err.Error()))
		class = PlainText
	}

	if s.metrics != nil {
		s.metrics.IncPassthrough(class.String())
	}
	res := &Result{
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        resp.Body,
		Class:       class,
	}
	switch class {
	case PlainText:
		if res.ContentType == "" {
			res.ContentType = plainContentType
		}
	default:
		if res.ContentType == "" {
			res.ContentType = opaqueContentType
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			res.CacheControl = ImmutableCacheControl
		}
	}
	return res, nil
}

func (s *Service) rewrite(ctx context.Context, resp *upstream.Response, base *url.URL, referer string) (*Result, error) {
	text, stats, err := Rewrite(ctx, string(resp.Body), base, referer, s.emit)
	if err != nil {
		return nil, err
	}

	kind := PlaylistKind(resp.Body)
	if stats.Malformed > 0 {
		s.log.Debug("manifest references left unresolved",
			slog.Int("malformed", stats.Malformed),
			slog.String("host", base.Host))
	}
	s.log.Debug("manifest rewritten",
		slog.String("playlist", kind),
		slog.String("host", base.Host),
		slog.Int("lines", stats.Lines),
		slog.Int("keys", stats.Keys),
		slog.Int("media", stats.Media))
	if s.metrics != nil {
		s.metrics.ObserveRewrite(kind, stats.Keys, stats.Media, stats.Malformed)
		// Every rewritten reference in token mode is one successful Put.
		if _, ok := s.emit.(TokenEmitter); ok {
			s.metrics.AddTokensIssued(stats.Keys + stats.Media)
		}
	}

	return &Result{
		StatusCode:   resp.StatusCode,
		ContentType:  manifestContentType,
		Body:         []byte(text),
		Class:        Manifest,
		PlaylistKind: kind,
		Rewrite:      stats,
	}, nil
}

// resolveTarget returns the origin URL and referer a request points at.
func (s *Service) resolveTarget(ctx context.Context, req Request) (string, string, error) {
	if req.Token != "" {
		if s.store == nil {
			return "", "", tokenNotFound()
		}
		e, err := s.store.Get(ctx, req.Token)
		if s.metrics != nil {
			switch KindOf(err) {
			case "":
				s.metrics.IncTokenLookup("hit")
			case KindNotFound:
				s.metrics.IncTokenLookup("miss")
			default:
				s.metrics.IncTokenLookup("error")
			}
		}
		if err != nil {
			return "", "", err
		}
		return e.OriginURL, e.Referer, nil
	}

	target := strings.TrimSpace(req.URL)
	if target == "" {
		return "", "", newError(KindMissingParameter, "no url or token provided", nil)
	}
	return target, req.Referer, nil
}
