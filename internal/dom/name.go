package dom

import (
	"fmt"
	"hash/fnv"
	"strings"

	"golang.org/x/net/html"
)

// maxNameDepth bounds the ancestor walk during name inference. Name lookups
// only run at click time, so the walk can afford to read text content.
const maxNameDepth = 6

var headingTags = map[string]bool{"h1": true, "h2": true, "h3": true, "h4": true}

// InferName derives a human-readable product name for a resolved asset.
// The cascade encodes decreasing confidence: explicit authorial labels on
// the element itself, then structural proximity (labelled-by targets, data
// attributes, nearby headings), then page-level fallbacks. First non-empty
// wins; there is no scoring.
func InferName(env *PageEnv, asset *ProductAsset) string {
	if asset == nil {
		return strings.TrimSpace(env.DocumentTitle())
	}

	if direct := directName(asset); direct != "" {
		return direct
	}

	node := asset.Node
	for depth := 0; node != nil && depth < maxNameDepth; depth++ {
		if labelledBy := strings.TrimSpace(attr(node, "aria-labelledby")); labelledBy != "" {
			if label := textContent(env.elementByID(labelledBy)); label != "" {
				return label
			}
		}

		for _, key := range []string{"data-product-name", "data-name", "data-title", "data-description"} {
			if v := strings.TrimSpace(attr(node, key)); v != "" {
				return v
			}
		}

		if heading := firstDescendant(node, func(n *html.Node) bool {
			return headingTags[strings.ToLower(n.Data)]
		}); heading != nil {
			if text := textContent(heading); text != "" {
				return text
			}
		}

		node = parentElement(node)
	}

	if og := env.OpenGraphTitle(); og != "" {
		return og
	}
	return strings.TrimSpace(env.DocumentTitle())
}

func directName(asset *ProductAsset) string {
	if alt := strings.TrimSpace(asset.AltText); alt != "" {
		return alt
	}
	for _, key := range []string{"aria-label", "title", "data-product-name", "data-name"} {
		if v := strings.TrimSpace(attr(asset.Node, key)); v != "" {
			return v
		}
	}
	return ""
}

// AnchorURL finds the product page link nearest the asset: the closest
// anchor-like ancestor's target, absolutized, falling back to the page
// location itself.
func AnchorURL(env *PageEnv, asset *ProductAsset) string {
	pageURL := ""
	if env.BaseURL != nil {
		pageURL = env.BaseURL.String()
	}
	if asset == nil {
		return pageURL
	}

	anchor := closestAncestor(asset.Node, func(n *html.Node) bool {
		return isElement(n, "a") ||
			strings.EqualFold(attr(n, "role"), "link") ||
			attr(n, "data-href") != ""
	})
	if anchor == nil {
		return pageURL
	}

	// Real anchors carry their target in href; for anchor-likes the data-href
	// is the authored target and any href is incidental.
	first, second := "href", "data-href"
	if !isElement(anchor, "a") {
		first, second = second, first
	}
	href := strings.TrimSpace(attr(anchor, first))
	if href == "" {
		href = strings.TrimSpace(attr(anchor, second))
	}
	if href == "" {
		return pageURL
	}
	return env.AbsoluteURL(href)
}

// ProductID derives the stable product identity from the image URL and the
// anchor URL. Capturing the same visual item on the same page twice yields
// the same id, which is what makes the coordinator's upsert idempotent.
func ProductID(imageURL, anchorURL string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(imageURL))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(anchorURL))
	return fmt.Sprintf("product-%d", h.Sum32())
}
