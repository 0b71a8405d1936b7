package snap

import (
	"reflect"
	"testing"
)

func TestScan(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		text     string
		start    int
		prefix   string
		suffixes string
		want     Token
		ok       bool
	}{
		{"simple", "a url(x.png) b", 0, "url(", ")", Token{At: 2, Value: "x.png"}, true},
		{"from start index", "url(a) url(b)", 1, "url(", ")", Token{At: 7, Value: "b"}, true},
		{"none", "no refs here", 0, "url(", ")", Token{}, false},
		{"unterminated keeps remainder", "url(open", 0, "url(", ")", Token{At: 0, Value: "open"}, true},
		{"any suffix", `<img src=x.png alt=y>`, 0, "src=", " >\t", Token{At: 5, Value: "x.png"}, true},
		{"start past end", "url(a)", 10, "url(", ")", Token{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Scan(tc.text, tc.start, tc.prefix, tc.suffixes)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("Scan(%q, %d) = (%+v,%v), want (%+v,%v)", tc.text, tc.start, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestTokensEnumeratesEveryOccurrenceOnce(t *testing.T) {
	text := "url(a) x url(bb) url() url(c"
	toks := Tokens(text, "url(", ")")
	var got []string
	for _, tok := range toks {
		got = append(got, tok.Value)
	}
	want := []string{"a", "bb", "", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokens = %q, want %q", got, want)
	}
	for i := 1; i < len(toks); i++ {
		if toks[i].At <= toks[i-1].At {
			t.Fatalf("tokens not advancing: %+v", toks)
		}
	}
}

func TestTokensManualAdvance(t *testing.T) {
	text := "url(one) url(two) url(three)"
	pos, n := 0, 0
	for {
		tok, ok := Scan(text, pos, "url(", ")")
		if !ok {
			break
		}
		n++
		pos = tok.Next()
		if n > 10 {
			t.Fatal("scan did not terminate")
		}
	}
	if n != 3 {
		t.Fatalf("expected 3 matches, got %d", n)
	}
}

func TestUnterminated(t *testing.T) {
	if Unterminated(".a{background:url(x.png)}", "url(", ")") {
		t.Fatal("terminated url reported as open")
	}
	if !Unterminated(".a{background:url(x.png", "url(", ")") {
		t.Fatal("open url not reported")
	}
}
