package snap

import (
	"reflect"
	"testing"
)

func TestExtractCSSRefs(t *testing.T) {
	t.Parallel()
	got := ExtractCSSRefs(`background: url("a.png") url('b.png')`)
	want := []string{"a.png", "b.png"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractCSSRefs = %q, want %q", got, want)
	}
}

func TestExtractCSSRefsKeepsDuplicatesAndOrder(t *testing.T) {
	got := ExtractCSSRefs(`.a{background:url(z.png)} .b{background:url( "a.png" )} .c{background:url(z.png)}`)
	want := []string{"z.png", "a.png", "z.png"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractCSSRefs = %q, want %q", got, want)
	}
}

func TestExtractMarkupRefs(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"quoted", `<img src="x.png" alt="y">`, []string{"x.png"}},
		{"unquoted", `<img src=x.png>`, []string{"x.png"}},
		{"single quoted", `<img src='x.png'>`, []string{"x.png"}},
		{"tab", "<img src=x.png\talt=y>", []string{"x.png"}},
		{"several", `<img src="a.png"><script src="b.js"></script>`, []string{"a.png", "b.js"}},
		{"none", `<p>hello</p>`, nil},
		{"unterminated", `<img src=tail.png`, []string{"tail.png"}},
		{"self closing", `<img src="x.png"/>`, []string{"x.png"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractMarkupRefs(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ExtractMarkupRefs(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestExtractBodyRefs(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"style attribute", `<body><div style="background: url(&quot;bg.png&quot;)"><img src="pic.png"></div></body>`, []string{"bg.png", "pic.png"}},
		{"script source ignored", `<body><script>var s=document.createElement('script');s.src=cdn+'/a.js';</script><img src="pic.png"></body>`, []string{"pic.png"}},
		{"script src ignored", `<script src="app.js"></script><img src="pic.png">`, []string{"pic.png"}},
		{"prose ignored", `<p>Write url(foo.png) or src=bar.png in your stylesheet</p><img src="pic.png">`, []string{"pic.png"}},
		{"space in value", `<img src="my pic.png">`, []string{"my pic.png"}},
		{"entities decoded", `<img src="a.png?x=1&amp;y=2">`, []string{"a.png?x=1&y=2"}},
		{"style element", `<style>.a{background:url('s.png')}</style><img src="s.png">`, []string{"s.png"}},
		{"repeats dropped", `<img src="a.png"><img src="a.png">`, []string{"a.png"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractBodyRefs(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ExtractBodyRefs(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
