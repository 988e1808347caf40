package relay

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Relay paths. Token-mode follow-ups append "/{token}" to SegmentPath or KeyPath.
const (
	ManifestPath = "/"
	SegmentPath  = "/segment"
	KeyPath      = "/key"
)

// Query parameter names accepted and produced by the relay.
const (
	ParamURL     = "url"
	ParamReferer = "ref"
)

// Mode selects how rewritten references are emitted.
type Mode string

const (
	// ModeDirect encodes origin URL and referer as query parameters.
	ModeDirect Mode = "direct"
	// ModeToken stores the origin in the indirection store and emits only a token.
	ModeToken Mode = "token"
)

// ParseMode validates a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeDirect, ModeToken:
		return m, nil
	default:
		return "", fmt.Errorf("unknown relay mode %q", s)
	}
}

// URLBuilder builds relay URLs. Every value is escaped; nothing is spliced
// into a path or query raw.
type URLBuilder struct {
	base string
}

// NewURLBuilder returns a builder rooted at publicBase. An empty base yields
// root-relative URLs such as "/segment?url=...".
func NewURLBuilder(publicBase string) URLBuilder {
	return URLBuilder{base: strings.TrimRight(publicBase, "/")}
}

// Query returns path with the target URL and optional referer as query values.
func (b URLBuilder) Query(path, target, referer string) string {
	v := url.Values{}
	v.Set(ParamURL, target)
	if referer != "" {
		v.Set(ParamReferer, referer)
	}
	return b.base + path + "?" + v.Encode()
}

// Token returns path parameterized by t alone.
func (b URLBuilder) Token(path string, t Token) string {
	return b.base + path + "/" + url.PathEscape(string(t))
}

func followUpPath(kind LineKind) string {
	if kind == KeyDirective {
		return KeyPath
	}
	return SegmentPath
}

// DirectEmitter emits query-parameter relay URLs.
type DirectEmitter struct {
	URLs URLBuilder
}

// Emit implements Emitter.
func (e DirectEmitter) Emit(_ context.Context, kind LineKind, resolved, referer string) (string, error) {
	return e.URLs.Query(followUpPath(kind), resolved, referer), nil
}

// TokenEmitter registers each reference in a Store and emits a token URL.
type TokenEmitter struct {
	URLs  URLBuilder
	Store Store
}

// Emit implements Emitter.
func (e TokenEmitter) Emit(ctx context.Context, kind LineKind, resolved, referer string) (string, error) {
	tok, err := e.Store.Put(ctx, Entry{OriginURL: resolved, Referer: referer})
	if err != nil {
		return "", err
	}
	return e.URLs.Token(followUpPath(kind), tok), nil
}

// NewEmitter returns the Emitter for mode. store is only used in ModeToken.
func NewEmitter(mode Mode, urls URLBuilder, store Store) (Emitter, error) {
	switch mode {
	case ModeDirect:
		return DirectEmitter{URLs: urls}, nil
	case ModeToken:
		if store == nil {
			return nil, fmt.Errorf("token mode requires an indirection store")
		}
		return TokenEmitter{URLs: urls, Store: store}, nil
	default:
		return nil, fmt.Errorf("unknown relay mode %q", mode)
	}
}
