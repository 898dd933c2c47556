package browser

import "golang.org/x/net/html"

// The snapshot tree and the live DOM are kept in correspondence through
// element-child index paths rooted at the document element. The page agent
// computes the same paths in JS, so a path computed on either side
// addresses the same element on the other.

func documentElement(doc *html.Node) *html.Node {
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// indexPath returns the element-child index path from the document element
// to target, or nil when target is not an element under it.
func indexPath(doc *html.Node, target *html.Node) []int {
	root := documentElement(doc)
	if root == nil || target == nil || target.Type != html.ElementNode {
		return nil
	}

	path := []int{}
	node := target
	for node != root {
		parent := node.Parent
		if parent == nil {
			return nil
		}
		idx := 0
		found := false
		for c := parent.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if c == node {
				found = true
				break
			}
			idx++
		}
		if !found {
			return nil
		}
		path = append([]int{idx}, path...)
		node = parent
	}
	return path
}

// nodeAtPath walks an element-child index path from the document element.
func nodeAtPath(doc *html.Node, path []int) *html.Node {
	node := documentElement(doc)
	if node == nil || path == nil {
		return nil
	}
	for _, want := range path {
		idx := 0
		var next *html.Node
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if idx == want {
				next = c
				break
			}
			idx++
		}
		if next == nil {
			return nil
		}
		node = next
	}
	return node
}
