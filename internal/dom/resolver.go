package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// maxResolveDepth bounds the ancestor walk when hunting for a product image
// around the hovered element. Deeply nested layouts stop here.
const maxResolveDepth = 8

// ProductAsset is the resolver's output for one hover tick. Node is
// borrowed from the snapshot; it is only valid until the next resolve or
// session termination and must never be persisted.
type ProductAsset struct {
	Node     *html.Node
	ImageURL string
	AltText  string
}

// datasetKeys are probed first, in order, as data-* attributes. They mirror
// the lazy-load vocabularies seen across storefronts.
var datasetKeys = []string{
	"src", "source", "image", "img", "thumb", "thumbnail",
	"hero", "fallback", "original", "href",
}

// rawDataAttributes are probed after the dataset keys; data-srcset values
// get first-candidate parsing like a regular srcset.
var rawDataAttributes = []string{
	"data-src", "data-srcset", "data-original", "data-image",
	"data-thumbnail", "data-href", "data-full", "data-zoom-image",
	"data-asset",
}

// Resolve maps the element under the pointer to the best candidate product
// image near it. It walks up to maxResolveDepth ancestors, trying each
// level's own sources first and probing one nested <img> before ascending.
// A nil result is a normal "no asset here" outcome.
func Resolve(env *PageEnv, start *html.Node) *ProductAsset {
	element := normalizeStart(start)
	if element == nil {
		return nil
	}

	for depth := 0; element != nil && depth < maxResolveDepth; depth++ {
		if asset := extractAsset(env, element); asset != nil {
			return asset
		}

		if nested := firstDescendant(element, func(n *html.Node) bool {
			return isElement(n, "img")
		}); nested != nil {
			if asset := extractAsset(env, nested); asset != nil {
				return asset
			}
		}

		element = parentElement(element)
	}

	return nil
}

// normalizeStart lands on an element node. Non-element starts (text nodes,
// or SVG internals in a live page) walk to the nearest image-ish ancestor.
func normalizeStart(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode {
		return n
	}
	return closestAncestor(n, func(c *html.Node) bool {
		switch strings.ToLower(c.Data) {
		case "img", "picture", "figure":
			return true
		}
		return strings.EqualFold(attr(c, "role"), "img")
	})
}

func parentElement(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return p
		}
	}
	return nil
}

// extractAsset tries one element's own image sources, in decreasing order
// of authorial confidence: a real <img>, lazy-load data attributes, then
// the computed background image.
func extractAsset(env *PageEnv, element *html.Node) *ProductAsset {
	if isElement(element, "img") {
		if u := extractImageFromImg(env, element); u != "" {
			alt := attr(element, "alt")
			if alt == "" {
				alt = attr(element, "title")
			}
			return &ProductAsset{Node: element, ImageURL: u, AltText: alt}
		}
		return nil
	}

	if u := extractImageFromDataAttributes(env, element); u != "" {
		alt := attr(element, "aria-label")
		if alt == "" {
			alt = attr(element, "data-alt")
		}
		return &ProductAsset{Node: element, ImageURL: u, AltText: alt}
	}

	if u := extractImageFromBackground(env, element); u != "" {
		alt := attr(element, "aria-label")
		if alt == "" {
			alt = attr(element, "title")
		}
		return &ProductAsset{Node: element, ImageURL: u, AltText: alt}
	}

	return nil
}

func extractImageFromImg(env *PageEnv, img *html.Node) string {
	// The rendered source wins over the declared one: srcset selection and
	// lazy-load swaps already happened in the live page.
	if cur := env.renderedSrc(img); cur != "" {
		return env.AbsoluteURL(cur)
	}
	if src := strings.TrimSpace(attr(img, "src")); src != "" {
		return env.AbsoluteURL(src)
	}
	if candidate := FirstSrcsetCandidate(attr(img, "srcset")); candidate != "" {
		return env.AbsoluteURL(candidate)
	}
	return ""
}

func extractImageFromDataAttributes(env *PageEnv, element *html.Node) string {
	for _, key := range datasetKeys {
		if v := strings.TrimSpace(attr(element, "data-"+key)); v != "" {
			return env.AbsoluteURL(v)
		}
	}
	for _, key := range rawDataAttributes {
		v := strings.TrimSpace(attr(element, key))
		if v == "" {
			continue
		}
		if key == "data-srcset" {
			if candidate := FirstSrcsetCandidate(v); candidate != "" {
				return env.AbsoluteURL(candidate)
			}
			continue
		}
		return env.AbsoluteURL(v)
	}
	return ""
}

func extractImageFromBackground(env *PageEnv, element *html.Node) string {
	background := env.backgroundImage(element)
	if background == "" || background == "none" {
		return ""
	}

	u := cssURLValue(background)
	if u == "" || strings.HasPrefix(u, "linear-gradient") {
		return ""
	}
	return env.AbsoluteURL(u)
}

// cssURLValue pulls the target out of a css url(...) token, stripping
// optional quotes. Gradients and keywords yield "".
func cssURLValue(value string) string {
	idx := strings.Index(value, "url(")
	if idx < 0 {
		return ""
	}
	rest := value[idx+len("url("):]
	end := strings.Index(rest, ")")
	if end < 0 {
		return ""
	}
	u := strings.TrimSpace(rest[:end])
	u = strings.Trim(u, `'"`)
	return strings.TrimSpace(u)
}

// FirstSrcsetCandidate returns the first URL of a srcset-style attribute:
// the first whitespace-delimited token of the first non-empty comma entry.
// Density and width descriptors are ignored on purpose; the first candidate
// is the cheapest fetch that still represents the item.
func FirstSrcsetCandidate(srcset string) string {
	for _, entry := range strings.Split(srcset, ",") {
		fields := strings.Fields(entry)
		if len(fields) > 0 && fields[0] != "" {
			return fields[0]
		}
	}
	return ""
}
