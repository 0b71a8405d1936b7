package snap

import "strings"

// Token is a single delimiter-bounded match found by Scan.
type Token struct {
	At    int
	Value string
}

// Next is the index a caller resumes scanning from after this token.
func (t Token) Next() int { return t.At + len(t.Value) }

// Scan looks for prefix at or after start and collects everything after it up to
// the first byte listed in suffixes. A missing terminator yields the remainder of
// text. ok is false once no further prefix exists.
func Scan(text string, start int, prefix string, suffixes string) (Token, bool) {
	if start < 0 {
		start = 0
	}
	if start > len(text) || prefix == "" {
		return Token{}, false
	}
	idx := strings.Index(text[start:], prefix)
	if idx == -1 {
		return Token{}, false
	}
	at := start + idx
	rest := text[at+len(prefix):]
	end := strings.IndexAny(rest, suffixes)
	if end == -1 || suffixes == "" {
		end = len(rest)
	}
	return Token{At: at, Value: rest[:end]}, true
}

// Tokens enumerates every occurrence of prefix in text.
func Tokens(text, prefix, suffixes string) []Token {
	var out []Token
	pos := 0
	for {
		tok, ok := Scan(text, pos, prefix, suffixes)
		if !ok {
			return out
		}
		out = append(out, tok)
		next := tok.Next()
		// an empty value would otherwise find the same prefix again
		if floor := tok.At + len(prefix); next < floor {
			next = floor
		}
		pos = next
	}
}

// Unterminated reports whether some occurrence of prefix in text runs to the end
// of text without meeting a terminator.
func Unterminated(text, prefix, suffixes string) bool {
	for _, tok := range Tokens(text, prefix, suffixes) {
		if tok.At+len(prefix)+len(tok.Value) >= len(text) {
			return true
		}
	}
	return false
}
