package relay

import "time"

// Token is an opaque identifier that stands in for an origin URL in
// token-mode manifests. It carries no information about the URL it denotes.
type Token string

// Entry is what the indirection store keeps behind a Token.
// Entries are never mutated after creation.
type Entry struct {
	OriginURL string    `json:"origin_url"`
	Referer   string    `json:"referer,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// expired reports whether the entry is past its expiry at now.
func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// LineKind classifies a single manifest line.
type LineKind int

const (
	// CommentOrBlank lines are emitted verbatim.
	CommentOrBlank LineKind = iota
	// KeyDirective is an #EXT-X-KEY line carrying a URI="..." attribute.
	KeyDirective
	// MediaReference is any other non-empty line: a segment or variant playlist URI.
	MediaReference
)

func (k LineKind) String() string {
	switch k {
	case KeyDirective:
		return "key"
	case MediaReference:
		return "media"
	default:
		return "comment"
	}
}

// ContentClass is the outcome of classifying an upstream response.
type ContentClass int

const (
	// KeyOrOpaque bodies are relayed byte-for-byte.
	KeyOrOpaque ContentClass = iota
	// PlainText is a body labelled as a manifest that lacks the #EXTM3U marker.
	PlainText
	// Manifest bodies are rewritten.
	Manifest
)

func (c ContentClass) String() string {
	switch c {
	case PlainText:
		return "plain"
	case Manifest:
		return "manifest"
	default:
		return "opaque"
	}
}

// Request is one client request as seen by the Service. Exactly one of
// URL or Token is expected; Token wins when both are set.
type Request struct {
	URL     string
	Referer string
	Token   Token
}

// Result is the outgoing response produced by the Service.
type Result struct {
	StatusCode   int
	ContentType  string
	CacheControl string
	Body         []byte

	// Class and PlaylistKind describe how the body was handled.
	Class        ContentClass
	PlaylistKind string
	// Rewrite holds per-line counters when Class is Manifest.
	Rewrite RewriteStats
}
