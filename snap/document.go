package snap

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const svgDataPrefix = "data:image/svg+xml;base64,"

// Assemble builds the SVG document embedding css and body markup in a
// foreignObject of the given size and returns it as a base64 data URI.
func Assemble(css, body string, width, height int) (string, error) {
	svg, err := AssembleSVG(css, body, width, height)
	if err != nil {
		return "", err
	}
	return svgDataPrefix + base64.StdEncoding.EncodeToString([]byte(svg)), nil
}

// AssembleSVG returns the raw SVG text produced by Assemble.
func AssembleSVG(css, body string, width, height int) (string, error) {
	bodyXML, err := serializeBody(body)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<svg xmlns='http://www.w3.org/2000/svg' width='%d' height='%d'>", width, height)
	b.WriteString("<g transform='translate(0, 0) rotate(0)'>")
	fmt.Fprintf(&b, "<foreignObject x='0' y='0' width='%d' height='%d'>", width, height)
	b.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml" xml:lang="en" lang="en"><head>`)
	b.WriteString("<style>")
	b.WriteString(html.EscapeString(css))
	b.WriteString("</style></head>")
	b.WriteString(bodyXML)
	b.WriteString("</html></foreignObject></g></svg>")
	return b.String(), nil
}

// DecodeVector returns the SVG text carried by a data URI built by Assemble.
func DecodeVector(uri string) (string, error) {
	if !strings.HasPrefix(uri, svgDataPrefix) {
		return "", fmt.Errorf("not an svg data uri")
	}
	raw, err := base64.StdEncoding.DecodeString(uri[len(svgDataPrefix):])
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// serializeBody reparses markup and renders it back as a single well-formed
// body element. Scripts are dropped; they never run inside an image.
func serializeBody(markup string) (string, error) {
	body, err := parseBody(markup)
	if err != nil {
		return "", err
	}
	prepareForXML(body)
	declareNamespaces(body, "")
	var buf bytes.Buffer
	if err := html.Render(&buf, body); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func parseBody(markup string) (*html.Node, error) {
	trimmed := strings.TrimSpace(markup)
	if strings.HasPrefix(strings.ToLower(trimmed), "<body") {
		doc, err := html.Parse(strings.NewReader(trimmed))
		if err != nil {
			return nil, err
		}
		if b := findElement(doc, atom.Body); b != nil {
			b.Parent.RemoveChild(b)
			return b, nil
		}
	}
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		ctx.AppendChild(n)
	}
	return ctx, nil
}

func prepareForXML(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode {
			switch c.DataAtom {
			case atom.Script:
				n.RemoveChild(c)
			case atom.Style, atom.Noscript, atom.Xmp, atom.Iframe, atom.Noembed, atom.Noframes:
				if c.Namespace != "" {
					prepareForXML(c)
					break
				}
				// rendered verbatim by html.Render, so escape ahead of time
				for t := c.FirstChild; t != nil; t = t.NextSibling {
					if t.Type == html.TextNode {
						t.Data = html.EscapeString(t.Data)
					}
				}
			default:
				prepareForXML(c)
			}
		}
		c = next
	}
}

var namespaceURIs = map[string]string{
	"":     "http://www.w3.org/1999/xhtml",
	"svg":  "http://www.w3.org/2000/svg",
	"math": "http://www.w3.org/1998/Math/MathML",
}

const xlinkNS = "http://www.w3.org/1999/xlink"

// declareNamespaces adds the xmlns declarations html.Render leaves out: a
// default namespace wherever an element's namespace differs from its parent's,
// and the xlink prefix on foreign roots whose subtree uses it.
func declareNamespaces(n *html.Node, parentNS string) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if c.Namespace != parentNS {
			if uri, ok := namespaceURIs[c.Namespace]; ok {
				setAttr(c, "", "xmlns", uri)
			}
			if c.Namespace != "" && usesXlink(c) {
				setAttr(c, "xmlns", "xlink", xlinkNS)
			}
		}
		declareNamespaces(c, c.Namespace)
	}
}

func usesXlink(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Namespace == "xlink" {
			return true
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && usesXlink(c) {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, ns, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == ns && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Namespace: ns, Key: key, Val: val})
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
