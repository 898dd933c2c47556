package browser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const pathTestPage = `<!DOCTYPE html>
<html>
<head><title>Shop</title></head>
<body>
  <nav>menu</nav>
  <main>
    <div class="grid">
      <article id="card-1"><img id="img-1" src="/a.jpg"></article>
      <article id="card-2">
        text node here
        <img id="img-2" src="/b.jpg">
      </article>
    </div>
  </main>
</body>
</html>`

func parseDoc(t *testing.T) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(pathTestPage))
	require.NoError(t, err)
	return doc
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func TestIndexPathRoundTrip(t *testing.T) {
	doc := parseDoc(t)
	for _, id := range []string{"card-1", "img-1", "card-2", "img-2"} {
		node := findByID(doc, id)
		require.NotNil(t, node, id)

		path := indexPath(doc, node)
		require.NotNil(t, path, id)
		assert.Same(t, node, nodeAtPath(doc, path), id)
	}
}

func TestIndexPathSkipsTextNodes(t *testing.T) {
	doc := parseDoc(t)
	// img-2 follows a text node inside card-2; only element siblings count.
	img := findByID(doc, "img-2")
	require.NotNil(t, img)

	path := indexPath(doc, img)
	require.NotEmpty(t, path)
	assert.Equal(t, 0, path[len(path)-1])
}

func TestIndexPathDocumentElement(t *testing.T) {
	doc := parseDoc(t)
	root := documentElement(doc)
	require.NotNil(t, root)
	assert.Equal(t, "html", root.Data)

	path := indexPath(doc, root)
	require.NotNil(t, path)
	assert.Empty(t, path)
	assert.Same(t, root, nodeAtPath(doc, path))
}

func TestNodeAtPathOutOfRange(t *testing.T) {
	doc := parseDoc(t)
	assert.Nil(t, nodeAtPath(doc, []int{99}))
	assert.Nil(t, nodeAtPath(doc, nil))
}

func TestIndexPathRejectsNonElements(t *testing.T) {
	doc := parseDoc(t)
	assert.Nil(t, indexPath(doc, nil))
	assert.Nil(t, indexPath(doc, doc)) // the document node itself
}

func TestIsRestrictedURL(t *testing.T) {
	restricted := []string{
		"",
		"chrome://settings",
		"chrome-extension://abcdef/popup.html",
		"about:blank",
		"devtools://devtools/bundled/inspector.html",
		"view-source:https://example.com",
		"https://chromewebstore.google.com/detail/x",
	}
	for _, u := range restricted {
		assert.True(t, isRestrictedURL(u), u)
	}

	allowed := []string{
		"https://shop.example.com/products/parka",
		"http://localhost:3000/",
	}
	for _, u := range allowed {
		assert.False(t, isRestrictedURL(u), u)
	}
}

func TestJSArg(t *testing.T) {
	assert.Equal(t, `[1,2,3]`, jsArg([]int{1, 2, 3}))
	assert.Equal(t, `"he said \"hi\""`, jsArg(`he said "hi"`))
	assert.Equal(t, `12.5`, jsArg(12.5))
}
