package browser

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const defaultTimeout = 25 * time.Second

// Browser drives one headless Chrome process shared by frame loading and
// rasterization. Each frame and each rasterization gets its own tab.
type Browser struct {
	browser       context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	logger        *log.Logger
	timeout       time.Duration
	width         int
	height        int
}

// New starts a headless browser. Tabs are opened with a width x height
// viewport.
func New(logger *log.Logger, timeout time.Duration, width, height int) (*Browser, error) {
	if logger == nil {
		logger = log.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("disable-extensions", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	// the first Run starts the process and binds it to browserCtx, so it must
	// not carry a deadline
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	logger.Printf("BROWSER started viewport=%dx%d timeout=%s", width, height, timeout)
	return &Browser{
		browser:       browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		logger:        logger,
		timeout:       timeout,
		width:         width,
		height:        height,
	}, nil
}

// Close shuts the browser down.
func (b *Browser) Close() {
	if b.cancelBrowser != nil {
		b.cancelBrowser()
	}
	if b.cancelAlloc != nil {
		b.cancelAlloc()
	}
}

// newTab opens a tab in the shared browser. The tab lives until ctx is done or
// the returned cancel func is called, whichever comes first; cancel may be
// called more than once.
func (b *Browser) newTab(ctx context.Context) (context.Context, context.CancelFunc, error) {
	tabCtx, cancelTab := chromedp.NewContext(b.browser)
	// the tab's event loop runs on the context of its first Run
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		return nil, nil, fmt.Errorf("open tab: %w", err)
	}
	if ctx == nil {
		return tabCtx, cancelTab, nil
	}
	stop := context.AfterFunc(ctx, cancelTab)
	return tabCtx, func() {
		stop()
		cancelTab()
	}, nil
}

// setContent replaces the tab's document with markup.
func setContent(markup string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return err
		}
		return page.SetDocumentContent(tree.Frame.ID, markup).Do(ctx)
	})
}

// withBase makes relative URLs in markup resolve against baseHref inside the
// tab: a <base> is inserted as the first head element, or the document's own
// base is made absolute.
func withBase(markup, baseHref string) (string, error) {
	if strings.TrimSpace(baseHref) == "" {
		return markup, nil
	}
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("parse markup: %w", err)
	}
	head := findElement(doc, atom.Head)
	if head == nil {
		return markup, nil
	}
	if own := findElement(head, atom.Base); own != nil {
		// the document's own base still wins; it only needs an absolute href
		for i, a := range own.Attr {
			if a.Key == "href" {
				own.Attr[i].Val = resolveRef(baseHref, a.Val)
			}
		}
	} else {
		head.InsertBefore(&html.Node{
			Type:     html.ElementNode,
			Data:     "base",
			DataAtom: atom.Base,
			Attr:     []html.Attribute{{Key: "href", Val: baseHref}},
		}, head.FirstChild)
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func resolveRef(base, ref string) string {
	bu, err := url.Parse(base)
	if err != nil {
		return ref
	}
	ru, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return bu.ResolveReference(ru).String()
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}
