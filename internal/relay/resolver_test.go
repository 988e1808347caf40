package relay

import (
	"errors"
	"net/url"
	"testing"
)

const scenarioBase = "https://origin.example/video/index.m3u8?session=abc"

func mustBase(t *testing.T, raw string) *url.URL {
	t.Helper()
	b, err := ParseBase(raw)
	if err != nil {
		t.Fatalf("ParseBase(%q): %v", raw, err)
	}
	return b
}

func TestResolve(t *testing.T) {
	base := mustBase(t, scenarioBase)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"relative_file", "seg0.ts", "https://origin.example/video/seg0.ts"},
		{"dot_segment", "./hd/seg0.ts", "https://origin.example/video/hd/seg0.ts"},
		{"parent_segment", "../audio/a0.aac", "https://origin.example/audio/a0.aac"},
		{"root_relative", "/other/seg.ts", "https://origin.example/other/seg.ts"},
		{"keeps_own_query", "seg1.ts?sig=x", "https://origin.example/video/seg1.ts?sig=x"},
		{"absolute_untouched", "https://cdn.example/seg1.ts", "https://cdn.example/seg1.ts"},
		{"absolute_http", "http://cdn.example/a/b.ts?t=1", "http://cdn.example/a/b.ts?t=1"},
		{"scheme_relative", "//cdn2.example/s.ts", "https://cdn2.example/s.ts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.raw, base)
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestResolve_idempotent(t *testing.T) {
	base := mustBase(t, scenarioBase)
	for _, raw := range []string{"seg0.ts", "../a/b.ts", "/x.ts", "https://cdn.example/seg1.ts", "seg 2.ts", "k.key?x=1&y=2"} {
		first, err := Resolve(raw, base)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", raw, err)
		}
		second, err := Resolve(first, base)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", first, err)
		}
		if first != second {
			t.Errorf("resolving %q twice: %q then %q", raw, first, second)
		}
	}
}

func TestResolve_malformed(t *testing.T) {
	base := mustBase(t, scenarioBase)
	for _, raw := range []string{"seg%zz.ts", "http://[::1"} {
		_, err := Resolve(raw, base)
		if !errors.Is(err, ErrMalformedReference) {
			t.Errorf("Resolve(%q): expected ErrMalformedReference, got %v", raw, err)
		}
	}
}

func TestResolve_relative_without_base(t *testing.T) {
	if _, err := Resolve("seg0.ts", nil); !errors.Is(err, ErrMalformedReference) {
		t.Errorf("expected ErrMalformedReference, got %v", err)
	}
	got, err := Resolve("https://cdn.example/a.ts", nil)
	if err != nil || got != "https://cdn.example/a.ts" {
		t.Errorf("absolute without base: got %q, %v", got, err)
	}
}

func TestParseBase_rejects_relative(t *testing.T) {
	for _, raw := range []string{"index.m3u8", "/video/index.m3u8", "%zz"} {
		if _, err := ParseBase(raw); err == nil {
			t.Errorf("ParseBase(%q): expected error", raw)
		}
	}
}
