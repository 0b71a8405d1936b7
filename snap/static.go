package snap

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	cssast "github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
)

const maxImportDepth = 8

var (
	selStyles = cascadia.MustCompile(`style, link[rel~="stylesheet"]`)
	selBase   = cascadia.MustCompile(`base[href]`)
	selBody   = cascadia.MustCompile(`body`)
)

// StaticLoader loads markup without a browser: stylesheets are parsed from
// <style> and <link> elements, media queries are evaluated against a fixed
// viewport and the scroll size is the viewport size.
type StaticLoader struct {
	fetcher  *Fetcher
	viewport Viewport
	logger   *log.Logger
	debug    bool
}

// NewStaticLoader returns a loader fetching linked sheets through f.
func NewStaticLoader(f *Fetcher, opts Options) *StaticLoader {
	opts = opts.withDefaults()
	return &StaticLoader{fetcher: f, viewport: opts.Viewport, logger: opts.Logger, debug: opts.Debug}
}

func (l *StaticLoader) Load(_ context.Context, markup, baseHref string) (Frame, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, &LoadError{Source: "markup", Err: err}
	}
	base := baseHref
	if n := selBase.MatchFirst(doc); n != nil {
		href := strings.TrimSpace(getAttr(n, "href"))
		if abs := resolveAbsURL(baseHref, href); abs != "" {
			base = abs
		} else if base == "" {
			base = href
		}
	}
	return &StaticFrame{loader: l, doc: doc, base: base}, nil
}

// StaticFrame is a parsed document produced by StaticLoader.
type StaticFrame struct {
	loader *StaticLoader

	mu       sync.Mutex
	doc      *html.Node
	base     string
	detached bool
}

func (f *StaticFrame) Capture(ctx context.Context) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detached {
		return nil, ErrDetached
	}
	body := selBody.MatchFirst(f.doc)
	if body == nil {
		return nil, fmt.Errorf("document has no body")
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, body); err != nil {
		return nil, err
	}
	vp := f.loader.viewport
	return &Snapshot{
		Stylesheets: f.loader.stylesheets(ctx, f.doc, f.base),
		Body:        buf.String(),
		BaseHref:    f.base,
		Width:       vp.Width,
		Height:      vp.Height,
	}, nil
}

func (f *StaticFrame) Detach() error {
	f.mu.Lock()
	f.detached = true
	f.doc = nil
	f.mu.Unlock()
	return nil
}

func (l *StaticLoader) stylesheets(ctx context.Context, doc *html.Node, base string) []Stylesheet {
	visited := map[string]struct{}{}
	var sheets []Stylesheet
	for _, n := range selStyles.MatchAll(doc) {
		media := strings.TrimSpace(getAttr(n, "media"))
		var sh Stylesheet
		switch n.Data {
		case "style":
			var text strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					text.WriteString(c.Data)
				}
			}
			sh = Stylesheet{Rules: l.parseSheet(ctx, text.String(), base, 0, visited)}
		case "link":
			if typ := strings.ToLower(strings.TrimSpace(getAttr(n, "type"))); typ != "" && typ != "text/css" {
				continue
			}
			abs := resolveAbsURL(base, strings.TrimSpace(getAttr(n, "href")))
			if abs == "" {
				continue
			}
			if _, seen := visited[abs]; seen {
				continue
			}
			visited[abs] = struct{}{}
			text, err := l.fetcher.FetchText(ctx, abs, "text/css,*/*;q=0.1")
			if err != nil {
				l.logger.Printf("FLATTEN skip stylesheet %s: %v", abs, err)
				continue
			}
			sh = Stylesheet{Href: abs, Rules: RebaseRules(l.parseSheet(ctx, text, abs, 0, visited), abs)}
		}
		if media != "" {
			sh.Rules = []Rule{l.conditional(media, sh.Rules)}
		}
		sheets = append(sheets, sh)
	}
	return sheets
}

func (l *StaticLoader) conditional(media string, rules []Rule) ConditionalRule {
	vp := l.viewport
	return ConditionalRule{
		Condition: media,
		Active:    func() bool { return MediaMatches(media, vp) },
		Rules:     rules,
	}
}

func (l *StaticLoader) parseSheet(ctx context.Context, text, base string, depth int, visited map[string]struct{}) []Rule {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || depth >= maxImportDepth {
		return nil
	}
	sheet, err := parser.Parse(trimmed)
	if err != nil {
		l.logger.Printf("FLATTEN css parse error base=%s: %v", base, err)
		return nil
	}
	return l.convertRules(ctx, sheet.Rules, base, depth, visited)
}

func (l *StaticLoader) convertRules(ctx context.Context, list []*cssast.Rule, base string, depth int, visited map[string]struct{}) []Rule {
	out := make([]Rule, 0, len(list))
	for _, rule := range list {
		if rule == nil {
			continue
		}
		if rule.Kind == cssast.QualifiedRule {
			out = append(out, l.plain(rule.String(), base))
			continue
		}
		switch strings.ToLower(strings.TrimSpace(rule.Name)) {
		case "@charset":
		case "@media":
			out = append(out, l.conditional(strings.TrimSpace(rule.Prelude), l.convertRules(ctx, rule.Rules, base, depth, visited)))
		case "@supports":
			out = append(out, ConditionalRule{
				Condition: strings.TrimSpace(rule.Prelude),
				Rules:     l.convertRules(ctx, rule.Rules, base, depth, visited),
			})
		case "@import":
			if r, ok := l.importRule(ctx, rule.Prelude, base, depth, visited); ok {
				out = append(out, r)
			}
		default:
			out = append(out, l.plain(rule.String(), base))
		}
	}
	return out
}

func (l *StaticLoader) importRule(ctx context.Context, prelude, base string, depth int, visited map[string]struct{}) (Rule, bool) {
	target, media := extractImportTarget(prelude)
	if target == "" {
		return nil, false
	}
	abs := resolveAbsURL(base, target)
	if abs == "" {
		return nil, false
	}
	if _, seen := visited[abs]; seen {
		return nil, false
	}
	visited[abs] = struct{}{}
	text, err := l.fetcher.FetchText(ctx, abs, "text/css,*/*;q=0.1")
	if err != nil {
		l.logger.Printf("FLATTEN skip import %s: %v", abs, err)
		return nil, false
	}
	rules := RebaseRules(l.parseSheet(ctx, text, abs, depth+1, visited), abs)
	if media == "" {
		return ConditionalRule{Condition: "", Rules: rules}, true
	}
	return l.conditional(media, rules), true
}

func (l *StaticLoader) plain(text, base string) PlainRule {
	if l.debug && Unterminated(text, cssRefPrefix, cssRefSuffixes) {
		l.logger.Printf("FLATTEN unterminated url( in rule base=%s: %.80q", base, text)
	}
	return PlainRule{Text: text}
}

func extractImportTarget(prelude string) (string, string) {
	s := strings.TrimSpace(prelude)
	if s == "" {
		return "", ""
	}
	if strings.HasPrefix(strings.ToLower(s), "url(") {
		end := strings.Index(s, ")")
		if end == -1 {
			return "", ""
		}
		return trimCSSString(s[4:end]), strings.TrimSpace(s[end+1:])
	}
	if (s[0] == '"' || s[0] == '\'') && len(s) > 1 {
		if idx := strings.IndexByte(s[1:], s[0]); idx != -1 {
			return s[1 : idx+1], strings.TrimSpace(s[idx+2:])
		}
	}
	fields := strings.Fields(s)
	return trimCSSString(fields[0]), strings.TrimSpace(strings.TrimPrefix(s, fields[0]))
}

func trimCSSString(v string) string {
	vv := strings.TrimSpace(v)
	if len(vv) >= 2 {
		if (vv[0] == '"' && vv[len(vv)-1] == '"') || (vv[0] == '\'' && vv[len(vv)-1] == '\'') {
			return vv[1 : len(vv)-1]
		}
	}
	return vv
}

func getAttr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

// LoadSheet fetches the stylesheet at href and returns its rules with
// references made absolute.
func (l *StaticLoader) LoadSheet(ctx context.Context, href string) ([]Rule, error) {
	text, err := l.fetcher.FetchText(ctx, href, "text/css,*/*;q=0.1")
	if err != nil {
		return nil, err
	}
	visited := map[string]struct{}{href: {}}
	return RebaseRules(l.parseSheet(ctx, text, href, 0, visited), href), nil
}
