package browser

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"image"
	"image/png"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"htmlsnap/snap"
)

const decodeScript = `(() => {
  const img = document.getElementById('snap');
  return img.decode().then(() => [img.naturalWidth, img.naturalHeight]);
})()`

// Rasterize decodes svgURI with the browser's image pipeline and returns its
// pixels at natural size over a transparent background.
func (b *Browser) Rasterize(ctx context.Context, svgURI string, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, &snap.DecodeError{Err: fmt.Errorf("invalid size %dx%d", width, height)}
	}
	tabCtx, cancel, err := b.newTab(ctx)
	if err != nil {
		return nil, &snap.DecodeError{Err: err}
	}
	defer cancel()
	runCtx, cancelRun := context.WithTimeout(tabCtx, b.timeout)
	defer cancelRun()

	doc := `<!DOCTYPE html><html><head><style>html,body{margin:0;padding:0;background:transparent}img{display:block}</style></head>` +
		`<body><img id="snap" src="` + html.EscapeString(svgURI) + `"></body></html>`

	var natural [2]int
	var buf []byte
	err = chromedp.Run(runCtx,
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetDefaultBackgroundColorOverride().
				WithColor(&cdp.RGBA{R: 0, G: 0, B: 0, A: 0}).Do(ctx)
		}),
		chromedp.Navigate("about:blank"),
		setContent(doc),
		chromedp.Evaluate(decodeScript, &natural, awaitPromise),
		chromedp.Screenshot("#snap", &buf, chromedp.ByQuery),
	)
	if err != nil {
		return nil, &snap.DecodeError{Err: err}
	}
	if natural[0] == 0 || natural[1] == 0 {
		return nil, &snap.DecodeError{Err: fmt.Errorf("image decoded to %dx%d", natural[0], natural[1])}
	}
	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, &snap.DecodeError{Err: err}
	}
	b.logger.Printf("RASTER %dx%d -> %dx%d", width, height, img.Bounds().Dx(), img.Bounds().Dy())
	return img, nil
}
