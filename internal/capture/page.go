package capture

import (
	"context"
	"errors"

	"golang.org/x/net/html"

	"github.com/veyralabs/fitlens/api/schemas"
	"github.com/veyralabs/fitlens/internal/dom"
)

// ErrRestrictedPage reports a tab the capture agent is not allowed to run
// on (browser-internal pages, webstore and the like).
var ErrRestrictedPage = errors.New("capture: restricted page")

// ErrAgentUnavailable reports a tab with no capture agent attached, usually
// because the tab predates the current run.
var ErrAgentUnavailable = errors.New("capture: agent unavailable")

// Rect is an element's bounding box in viewport coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// IsEmpty reports a rect that should hide the highlight instead of
// painting it.
func (r Rect) IsEmpty() bool {
	return r.Width == 0 || r.Height == 0
}

// Events are the session callbacks a page wires to its input stream while a
// capture is active. The page must deliver them sequentially; the session
// assumes the single-threaded event-loop model of a page context.
type Events struct {
	PointerMove      func(x, y float64)
	Scroll           func()
	Click            func(x, y float64)
	KeyDown          func(key string)
	VisibilityHidden func()
}

// Page is the page-context surface the session drives. Implementations own
// hit-testing and live DOM state; the chromedp adapter is the production
// one, tests use synthetic snapshots.
type Page interface {
	// Environment returns the current DOM environment for resolution.
	Environment(ctx context.Context) (*dom.PageEnv, error)

	// ElementAt hit-tests viewport coordinates against the current DOM.
	// A nil node means nothing hoverable is there.
	ElementAt(ctx context.Context, x, y float64) (*html.Node, error)

	// BoundingRect returns the viewport-relative box of a snapshot node.
	BoundingRect(ctx context.Context, n *html.Node) (Rect, error)

	// Listen registers the session's event callbacks and suppresses the
	// page's own pointerdown/click handling while registered. The returned
	// func unregisters everything and lifts the suppression.
	Listen(ctx context.Context, events Events) (func(), error)
}

// Overlay paints the capture highlight and transient notices.
type Overlay interface {
	// Mount injects the highlight element. Fails when the page has no
	// document body to attach to.
	Mount(ctx context.Context) error
	// Update moves and sizes the highlight; an empty rect hides it.
	Update(ctx context.Context, r Rect) error
	// Remove tears the highlight down.
	Remove(ctx context.Context) error
	// Toast shows a transient, non-blocking notice.
	Toast(ctx context.Context, message string)
}

// Materializer inlines a resolved image URL (or data URI) so the capture
// survives the trip out of the page context.
type Materializer interface {
	Materialize(ctx context.Context, resource string) (schemas.InlineImage, error)
}

// Emitter carries messages out of the page context. *messaging.Router
// satisfies it.
type Emitter interface {
	Publish(ctx context.Context, msg schemas.Envelope) error
}
