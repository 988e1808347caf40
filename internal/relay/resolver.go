package relay

import (
	"net/url"
	"strings"
)

// ParseBase parses the absolute URL of the manifest being processed. Its
// scheme, host and directory are the base for every relative reference in it.
func ParseBase(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, newError(KindMalformedReference, "invalid base url", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, newError(KindMalformedReference, "base url must be absolute", nil)
	}
	return u, nil
}

// Resolve turns a URI found inside a manifest into a fully-qualified origin
// URL. Absolute URIs come back unchanged apart from normalization; relative
// ones are joined against base using RFC 3986 reference resolution.
func Resolve(raw string, base *url.URL) (string, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", newError(KindMalformedReference, "unparseable reference", err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	if base == nil {
		return "", newError(KindMalformedReference, "relative reference without base", nil)
	}
	return base.ResolveReference(ref).String(), nil
}
