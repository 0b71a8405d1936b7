package snap

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// bodyRef is one resource referenced by body markup: target is the URL to
// fetch, literal is the text that stands for it in the rendered body.
type bodyRef struct {
	target  string
	literal string
}

// ExtractBodyRefs returns the resources body markup references through src
// attributes, url() values of style attributes and <style> elements, in
// document order and without repeats. Script source and text content are not
// searched.
func ExtractBodyRefs(markup string) []string {
	_, refs, err := bodyResources(markup)
	if err != nil {
		return nil
	}
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.target
	}
	return out
}

// bodyResources parses markup, drops scripts and returns the rendered body
// together with the references found in it.
func bodyResources(markup string) (string, []bodyRef, error) {
	body, err := parseBody(markup)
	if err != nil {
		return "", nil, err
	}
	dropScripts(body)

	var refs []bodyRef
	seen := map[string]struct{}{}
	add := func(target, literal string) {
		target = strings.TrimSpace(target)
		if target == "" {
			return
		}
		if _, ok := seen[literal]; ok {
			return
		}
		seen[literal] = struct{}{}
		refs = append(refs, bodyRef{target: target, literal: literal})
	}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if a.Namespace != "" {
					continue
				}
				switch a.Key {
				case "src":
					add(a.Val, html.EscapeString(a.Val))
				case "style":
					for _, ref := range ExtractCSSRefs(a.Val) {
						add(ref, html.EscapeString(ref))
					}
				}
			}
			if n.DataAtom == atom.Style {
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.TextNode {
						// raw text is rendered verbatim
						for _, ref := range ExtractCSSRefs(c.Data) {
							add(ref, ref)
						}
					}
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(body)

	var buf bytes.Buffer
	if err := html.Render(&buf, body); err != nil {
		return "", nil, err
	}
	return buf.String(), refs, nil
}

func dropScripts(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && c.DataAtom == atom.Script {
			n.RemoveChild(c)
		} else {
			dropScripts(c)
		}
		c = next
	}
}
