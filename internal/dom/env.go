package dom

import (
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// PageEnv carries the page-level facts a resolver needs beyond the snapshot
// tree itself: the base location for URL resolution and lookups for values
// only a rendering engine knows (the currently rendered image source and
// computed styles). Both lookups are optional; a nil func means "unknown".
type PageEnv struct {
	// BaseURL is the page location; discovered URLs resolve against it.
	BaseURL *url.URL

	// Doc is the document root of the snapshot, used for page-level
	// fallbacks (og:title, <title>) and aria-labelledby lookups.
	Doc *html.Node

	// RenderedSrc returns the currently rendered source of an <img> (the
	// browser's currentSrc), or "" when unknown.
	RenderedSrc func(n *html.Node) string

	// BackgroundImage returns the computed background-image value for an
	// element, or "" when unknown. InlineBackgroundImage is a snapshot-only
	// fallback that reads the style attribute.
	BackgroundImage func(n *html.Node) string
}

// AbsoluteURL resolves raw against the page base. Resolution failure hands
// back the raw string; a bad URL is the caller's miss, not the resolver's
// error.
func (e *PageEnv) AbsoluteURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || e.BaseURL == nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return e.BaseURL.ResolveReference(ref).String()
}

func (e *PageEnv) backgroundImage(n *html.Node) string {
	if e.BackgroundImage != nil {
		if v := e.BackgroundImage(n); v != "" {
			return v
		}
	}
	return InlineBackgroundImage(n)
}

func (e *PageEnv) renderedSrc(n *html.Node) string {
	if e.RenderedSrc == nil {
		return ""
	}
	return e.RenderedSrc(n)
}

// DocumentTitle returns the snapshot's <title> text.
func (e *PageEnv) DocumentTitle() string {
	if e.Doc == nil {
		return ""
	}
	if n := htmlquery.FindOne(e.Doc, "//head/title"); n != nil {
		return strings.TrimSpace(htmlquery.InnerText(n))
	}
	if n := htmlquery.FindOne(e.Doc, "//title"); n != nil {
		return strings.TrimSpace(htmlquery.InnerText(n))
	}
	return ""
}

// OpenGraphTitle returns the og:title meta content, if any.
func (e *PageEnv) OpenGraphTitle() string {
	if e.Doc == nil {
		return ""
	}
	if n := htmlquery.FindOne(e.Doc, "//meta[@property='og:title']"); n != nil {
		return strings.TrimSpace(attr(n, "content"))
	}
	return ""
}

func (e *PageEnv) elementByID(id string) *html.Node {
	if e.Doc == nil || id == "" {
		return nil
	}
	return firstDescendant(e.Doc, func(n *html.Node) bool {
		return attr(n, "id") == id
	})
}

// InlineBackgroundImage extracts a background-image value from an element's
// style attribute. It only sees author inline styles, not the computed
// cascade; live sessions override PageEnv.BackgroundImage with a real
// computed-style lookup.
func InlineBackgroundImage(n *html.Node) string {
	style := attr(n, "style")
	if style == "" {
		return ""
	}
	for _, decl := range strings.Split(style, ";") {
		name, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "background-image") {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// -- node helpers --

func attr(n *html.Node, name string) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

func isElement(n *html.Node, tag string) bool {
	return n != nil && n.Type == html.ElementNode && strings.EqualFold(n.Data, tag)
}

// firstDescendant returns the first descendant of root (document order,
// root excluded) matching pred.
func firstDescendant(root *html.Node, pred func(*html.Node) bool) *html.Node {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && pred(c) {
			return c
		}
		if found := firstDescendant(c, pred); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(htmlquery.InnerText(n))
}

// closestAncestor walks from n upward (n included) to the nearest element
// matching pred.
func closestAncestor(n *html.Node, pred func(*html.Node) bool) *html.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type == html.ElementNode && pred(cur) {
			return cur
		}
	}
	return nil
}
