package snap

import "testing"

func TestMediaMatches(t *testing.T) {
	t.Parallel()
	vp := Viewport{Width: 800, Height: 600}
	cases := []struct {
		query string
		want  bool
	}{
		{"", true},
		{"all", true},
		{"screen", true},
		{"print", false},
		{"(max-width: 600px)", false},
		{"(min-width: 600px)", true},
		{"screen and (min-width: 600px) and (max-width: 900px)", true},
		{"screen and (max-width: 40em)", false},
		{"print, (orientation: landscape)", true},
		{"(orientation: portrait)", false},
		{"not print", true},
		{"only screen and (min-height: 500px)", true},
		{"(prefers-color-scheme: dark)", false},
		{"(hover: hover)", true},
	}
	for _, tc := range cases {
		if got := MediaMatches(tc.query, vp); got != tc.want {
			t.Errorf("MediaMatches(%q) = %v, want %v", tc.query, got, tc.want)
		}
	}
}

func TestMediaMatchesDarkScheme(t *testing.T) {
	if !MediaMatches("(prefers-color-scheme: dark)", Viewport{Width: 100, Height: 100, Dark: true}) {
		t.Fatal("dark viewport should match dark scheme")
	}
}
