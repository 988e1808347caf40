package relay

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/grafov/m3u8"
)

const (
	manifestContentType = "application/vnd.apple.mpegurl"
	opaqueContentType   = "application/octet-stream"
	plainContentType    = "text/plain"

	manifestMagic = "#EXTM3U"
	keySuffix     = ".key"
)

// manifestMIMETokens are the two content types origins use for HLS playlists.
var manifestMIMETokens = []string{
	"application/vnd.apple.mpegurl",
	"application/x-mpegurl",
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Classify decides how a fetched body is handled from its declared content
// type and the URL it was fetched from. A Manifest result is provisional:
// Confirm must still see the #EXTM3U marker.
func Classify(contentType, rawURL string) ContentClass {
	if hasKeySuffix(rawURL) {
		return KeyOrOpaque
	}
	ct := strings.ToLower(contentType)
	for _, token := range manifestMIMETokens {
		if strings.Contains(ct, token) {
			return Manifest
		}
	}
	return KeyOrOpaque
}

// Confirm downgrades a Manifest classification to PlainText when the body
// does not start with the manifest magic marker.
func Confirm(class ContentClass, body []byte) ContentClass {
	if class != Manifest {
		return class
	}
	if !bytes.HasPrefix(bytes.TrimPrefix(body, utf8BOM), []byte(manifestMagic)) {
		return PlainText
	}
	return Manifest
}

func hasKeySuffix(rawURL string) bool {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	return strings.HasSuffix(strings.ToLower(p), keySuffix)
}

// PlaylistKind reports "master" or "media" for a confirmed manifest body,
// or "unknown" when the playlist does not decode.
func PlaylistKind(body []byte) (kind string) {
	// The decoder panics on some valid playlists, e.g. a keyed segment
	// without #EXTINF.
	defer func() {
		if recover() != nil {
			kind = "unknown"
		}
	}()

	_, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return "unknown"
	}
	switch listType {
	case m3u8.MASTER:
		return "master"
	case m3u8.MEDIA:
		return "media"
	default:
		return "unknown"
	}
}
