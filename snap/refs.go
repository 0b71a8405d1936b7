package snap

import "strings"

const (
	cssRefPrefix    = "url("
	cssRefSuffixes  = ")"
	markupRefPrefix = "src="
	// markup attribute values end at whitespace or the closing bracket
	markupRefSuffixes = " >\t\n\r"
)

// ExtractCSSRefs returns the url(...) references found in css, in order, with
// quotes stripped.
func ExtractCSSRefs(css string) []string {
	return extractRefs(css, cssRefPrefix, cssRefSuffixes)
}

// ExtractMarkupRefs returns the src=... references found in markup.
func ExtractMarkupRefs(markup string) []string {
	return extractRefs(markup, markupRefPrefix, markupRefSuffixes, cutQuoted)
}

func extractRefs(text, prefix, suffixes string, clean ...func(string) string) []string {
	toks := Tokens(text, prefix, suffixes)
	if len(toks) == 0 {
		return nil
	}
	out := make([]string, 0, len(toks))
	for _, tok := range toks {
		v := tok.Value
		for _, fn := range clean {
			v = fn(v)
		}
		ref := strings.TrimSpace(removeQuotes(v))
		if ref == "" {
			continue
		}
		out = append(out, ref)
	}
	return out
}

// cutQuoted ends a quoted attribute value at its closing quote, so serialized
// void elements like <img src="a.png"/> do not leak the slash.
func cutQuoted(v string) string {
	if len(v) < 2 || (v[0] != '"' && v[0] != '\'') {
		return v
	}
	if end := strings.IndexByte(v[1:], v[0]); end != -1 {
		return v[1 : end+1]
	}
	return v
}

func removeQuotes(s string) string {
	if !strings.ContainsAny(s, `"'`) {
		return s
	}
	return strings.Map(func(r rune) rune {
		if r == '"' || r == '\'' {
			return -1
		}
		return r
	}, s)
}

// uniqueRefs drops repeated references, keeping first-appearance order.
func uniqueRefs(refs []string) []string {
	seen := make(map[string]struct{}, len(refs))
	out := refs[:0:0]
	for _, r := range refs {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
