package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"htmlsnap/snap"
)

// captureScript walks document.styleSheets the way the CSSOM exposes them and
// reports media and supports conditions already evaluated by the tab.
const captureScript = `(() => {
  const walk = (rules) => Array.from(rules).map((r) => {
    if (typeof CSSMediaRule !== 'undefined' && r instanceof CSSMediaRule) {
      return {kind: 'media', condition: r.conditionText, active: window.matchMedia(r.conditionText).matches, rules: walk(r.cssRules)};
    }
    if (typeof CSSSupportsRule !== 'undefined' && r instanceof CSSSupportsRule) {
      return {kind: 'supports', condition: r.conditionText, active: CSS.supports(r.conditionText), rules: walk(r.cssRules)};
    }
    return {text: r.cssText};
  });
  const sheets = Array.from(document.styleSheets).map((s) => {
    const media = s.media ? s.media.mediaText : '';
    const out = {href: s.href || '', media: media, mediaActive: !media || window.matchMedia(media).matches};
    try { out.rules = walk(s.cssRules); } catch (e) { out.blocked = true; }
    return out;
  });
  const b = document.body;
  return {
    sheets: sheets,
    body: b ? b.outerHTML : '',
    base: document.baseURI,
    width: b ? b.scrollLeft + b.scrollWidth : 0,
    height: b ? b.scrollTop + b.scrollHeight : 0,
  };
})()`

const loadedScript = `new Promise((resolve) => {
  const done = () => (document.fonts ? document.fonts.ready : Promise.resolve()).then(() => resolve(true));
  if (document.readyState === 'complete') { done(); } else { window.addEventListener('load', done); }
})`

type cssomRule struct {
	Text      string      `json:"text"`
	Kind      string      `json:"kind"`
	Condition string      `json:"condition"`
	Active    bool        `json:"active"`
	Rules     []cssomRule `json:"rules"`
}

type cssomSheet struct {
	Href        string      `json:"href"`
	Media       string      `json:"media"`
	MediaActive bool        `json:"mediaActive"`
	Blocked     bool        `json:"blocked"`
	Rules       []cssomRule `json:"rules"`
}

type capture struct {
	Sheets []cssomSheet `json:"sheets"`
	Body   string       `json:"body"`
	Base   string       `json:"base"`
	Width  int          `json:"width"`
	Height int          `json:"height"`
}

// Loader loads markup into browser tabs. Sheets the tab refuses to expose
// (cross-origin) are parsed from their source through fallback.
type Loader struct {
	b        *Browser
	fallback *snap.StaticLoader
}

// NewLoader returns a snap.FrameLoader backed by b. fallback may be nil and set
// later with SetFallback.
func NewLoader(b *Browser, fallback *snap.StaticLoader) *Loader {
	return &Loader{b: b, fallback: fallback}
}

// SetFallback sets the loader used for sheets the tab will not expose. Call it
// before the first Load; it is usually built on the Snapshotter's own fetcher
// so site headers and in-flight sharing apply to those sheets too.
func (l *Loader) SetFallback(fallback *snap.StaticLoader) {
	l.fallback = fallback
}

func (l *Loader) Load(ctx context.Context, markup, baseHref string) (snap.Frame, error) {
	doc, err := withBase(markup, baseHref)
	if err != nil {
		return nil, err
	}
	tabCtx, cancel, err := l.b.newTab(ctx)
	if err != nil {
		return nil, err
	}
	runCtx, cancelRun := context.WithTimeout(tabCtx, l.b.timeout)
	defer cancelRun()
	err = chromedp.Run(runCtx,
		chromedp.EmulateViewport(int64(l.b.width), int64(l.b.height)),
		chromedp.Navigate("about:blank"),
		setContent(doc),
		chromedp.Evaluate(loadedScript, nil, awaitPromise),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("load markup: %w", err)
	}
	return &frame{ctx: tabCtx, cancel: cancel, l: l}, nil
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

type frame struct {
	l *Loader

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	detached bool
}

func (f *frame) Capture(ctx context.Context) (*snap.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detached {
		return nil, snap.ErrDetached
	}
	runCtx, cancel := context.WithTimeout(f.ctx, f.l.b.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var c capture
	if err := chromedp.Run(runCtx, chromedp.Evaluate(captureScript, &c)); err != nil {
		return nil, fmt.Errorf("capture frame: %w", err)
	}
	sheets := make([]snap.Stylesheet, 0, len(c.Sheets))
	for _, s := range c.Sheets {
		var rules []snap.Rule
		if s.Blocked {
			rules = f.l.blockedSheet(ctx, s.Href)
		} else {
			rules = snap.RebaseRules(convertRules(s.Rules), s.Href)
		}
		if s.Media != "" {
			active := s.MediaActive
			rules = []snap.Rule{snap.ConditionalRule{
				Condition: s.Media,
				Active:    func() bool { return active },
				Rules:     rules,
			}}
		}
		sheets = append(sheets, snap.Stylesheet{Href: s.Href, Rules: rules})
	}
	return &snap.Snapshot{
		Stylesheets: sheets,
		Body:        c.Body,
		BaseHref:    c.Base,
		Width:       c.Width,
		Height:      c.Height,
	}, nil
}

func (f *frame) Detach() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.detached {
		f.detached = true
		f.cancel()
	}
	return nil
}

func (l *Loader) blockedSheet(ctx context.Context, href string) []snap.Rule {
	if l.fallback == nil || href == "" {
		return nil
	}
	rules, err := l.fallback.LoadSheet(ctx, href)
	if err != nil {
		l.b.logger.Printf("FLATTEN skip blocked stylesheet %s: %v", href, err)
		return nil
	}
	return rules
}

func convertRules(in []cssomRule) []snap.Rule {
	out := make([]snap.Rule, 0, len(in))
	for _, r := range in {
		if r.Kind == "" {
			out = append(out, snap.PlainRule{Text: r.Text})
			continue
		}
		active := r.Active
		out = append(out, snap.ConditionalRule{
			Condition: r.Condition,
			Active:    func() bool { return active },
			Rules:     convertRules(r.Rules),
		})
	}
	return out
}
