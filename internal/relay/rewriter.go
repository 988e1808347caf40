package relay

import (
	"context"
	"net/url"
	"regexp"
	"strings"
)

// keyURIPattern finds the quoted URI attribute of an #EXT-X-KEY directive.
var keyURIPattern = regexp.MustCompile(`[:,]\s*URI="([^"]+)"`)

// Emitter produces the relay URL that replaces a resolved origin reference.
type Emitter interface {
	Emit(ctx context.Context, kind LineKind, resolved, referer string) (string, error)
}

// EmitFunc adapts a plain function to Emitter.
type EmitFunc func(ctx context.Context, kind LineKind, resolved, referer string) (string, error)

// Emit implements Emitter.
func (f EmitFunc) Emit(ctx context.Context, kind LineKind, resolved, referer string) (string, error) {
	return f(ctx, kind, resolved, referer)
}

// RewriteStats counts what a rewrite did to a manifest.
type RewriteStats struct {
	Lines     int
	Keys      int
	Media     int
	Malformed int
}

// ClassifyLine assigns a manifest line exactly one LineKind.
func ClassifyLine(line string) LineKind {
	t := strings.TrimSpace(line)
	switch {
	case t == "":
		return CommentOrBlank
	case strings.HasPrefix(t, "#EXT-X-KEY") && keyURIPattern.MatchString(t):
		return KeyDirective
	case strings.HasPrefix(t, "#"):
		return CommentOrBlank
	default:
		return MediaReference
	}
}

// Rewrite routes every key and media reference in doc back through the relay.
// Lines keep their order and count, and "\r\n" endings survive. A reference
// that fails to resolve leaves its line untouched; an emit failure aborts the
// whole rewrite.
func Rewrite(ctx context.Context, doc string, base *url.URL, referer string, emit Emitter) (string, RewriteStats, error) {
	lines := strings.Split(doc, "\n")
	stats := RewriteStats{Lines: len(lines)}

	for i, line := range lines {
		switch ClassifyLine(line) {
		case KeyDirective:
			loc := keyURIPattern.FindStringSubmatchIndex(line)
			start, end := loc[2], loc[3]
			resolved, err := Resolve(line[start:end], base)
			if err != nil {
				stats.Malformed++
				continue
			}
			out, err := emit.Emit(ctx, KeyDirective, resolved, referer)
			if err != nil {
				return "", stats, err
			}
			lines[i] = line[:start] + out + line[end:]
			stats.Keys++

		case MediaReference:
			eol := ""
			if strings.HasSuffix(line, "\r") {
				eol = "\r"
			}
			resolved, err := Resolve(strings.TrimSpace(line), base)
			if err != nil {
				stats.Malformed++
				continue
			}
			out, err := emit.Emit(ctx, MediaReference, resolved, referer)
			if err != nil {
				return "", stats, err
			}
			lines[i] = out + eol
			stats.Media++
		}
	}

	return strings.Join(lines, "\n"), stats, nil
}
