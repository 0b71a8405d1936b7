package snap

import (
	"regexp"
	"sort"
)

const (
	quoteOpt       = `["']?`
	markupQuoteOpt = `(?:["']|&quot;|&#34;|&#39;|&apos;)?`
)

// SubstituteCSS replaces every url(ref) occurrence in css with url('data').
func SubstituteCSS(css string, res []InlineResource) string {
	for _, r := range orderForReplace(res) {
		re := regexp.MustCompile(`url\(\s*` + quoteOpt + regexp.QuoteMeta(r.URL) + quoteOpt + `\s*\)`)
		css = re.ReplaceAllLiteralString(css, "url('"+r.Encoded+"')")
	}
	return css
}

// SubstituteMarkup replaces src=ref attributes and url(ref) values of inline
// style attributes. Quote style around src values is kept as found.
func SubstituteMarkup(markup string, res []InlineResource) string {
	for _, r := range orderForReplace(res) {
		lit := regexp.QuoteMeta(r.URL)
		src := regexp.MustCompile(`src=(["']?)` + lit + `(["']|[\s>]|$)`)
		markup = src.ReplaceAllStringFunc(markup, func(m string) string {
			sm := src.FindStringSubmatch(m)
			return "src=" + sm[1] + r.Encoded + sm[2]
		})
		css := regexp.MustCompile(`url\(\s*` + markupQuoteOpt + lit + markupQuoteOpt + `\s*\)`)
		markup = css.ReplaceAllLiteralString(markup, "url("+r.Encoded+")")
	}
	return markup
}

// orderForReplace drops duplicate and no-op pairs and sorts the rest longest
// reference first, so a reference that contains another is rewritten before it.
func orderForReplace(res []InlineResource) []InlineResource {
	seen := make(map[string]struct{}, len(res))
	out := make([]InlineResource, 0, len(res))
	for _, r := range res {
		if r.URL == "" || r.URL == r.Encoded {
			continue
		}
		if _, ok := seen[r.URL]; ok {
			continue
		}
		seen[r.URL] = struct{}{}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].URL) > len(out[j].URL) })
	return out
}
