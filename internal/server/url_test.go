package server

import "testing"

func TestNormalizeTargetURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "   ", ""},
		{"plain", "https://example.com/a", "https://example.com/a"},
		{"no scheme", "example.com/a", "http://example.com/a"},
		{"double encoded", "https%3A%2F%2Fexample.com%2Fa%3Fb%3D1", "https://example.com/a?b=1"},
		{"lower encoded", "http%3a%2f%2fexample.com", "http://example.com"},
		{"broken encoding kept", "http%3a%2f%zz", "http://http%3a%2f%zz"},
		{"file scheme", "file:///etc/passwd", "http://file:///etc/passwd"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := normalizeTargetURL(tc.in); got != tc.want {
				t.Fatalf("normalizeTargetURL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "", "x", "y"); got != "x" {
		t.Fatalf("firstNonEmpty = %q", got)
	}
	if got := firstNonEmpty(); got != "" {
		t.Fatalf("firstNonEmpty() = %q", got)
	}
}
