package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/veyralabs/fitlens/internal/capture"
	"github.com/veyralabs/fitlens/internal/config"
	"github.com/veyralabs/fitlens/internal/dom"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Tab is an attached page target. It implements both the capture page
// surface (snapshots, hit-testing, the input event stream) and the overlay,
// all through the injected page agent.
type Tab struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    config.BrowserConfig
	toast  time.Duration
	logger *zap.Logger

	// lastDoc is the most recent snapshot; live-DOM node paths resolve
	// against it.
	mu      sync.Mutex
	lastDoc *html.Node
}

func newTab(browserCtx context.Context, cfg config.BrowserConfig, toast time.Duration, logger *zap.Logger, opts ...chromedp.ContextOption) *Tab {
	ctx, cancel := chromedp.NewContext(browserCtx, opts...)
	return &Tab{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		toast:  toast,
		logger: logger.Named("tab"),
	}
}

// Close detaches from the target.
func (t *Tab) Close() {
	t.cancel()
}

func (t *Tab) evalTimeout() time.Duration {
	if t.cfg.EvalTimeout > 0 {
		return t.cfg.EvalTimeout
	}
	return 5 * time.Second
}

func (t *Tab) run(actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(t.ctx, t.evalTimeout())
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

func (t *Tab) eval(expr string, out interface{}) error {
	return t.run(chromedp.Evaluate(expr, out))
}

func (t *Tab) evalAsync(expr string, out interface{}) error {
	return t.run(chromedp.Evaluate(expr, out,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}))
}

// ensureAgent injects the page agent; re-injection is a no-op, so this is
// safe to call before any agent-dependent eval.
func (t *Tab) ensureAgent() error {
	return t.eval(agentJS, nil)
}

// jsArg marshals a Go value for embedding into an eval expression.
func jsArg(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(raw)
}

// Environment snapshots the live DOM and wires the rendered-source and
// computed-style lookups back to the page.
func (t *Tab) Environment(ctx context.Context) (*dom.PageEnv, error) {
	if err := t.ensureAgent(); err != nil {
		return nil, fmt.Errorf("browser: inject agent: %w", err)
	}

	var rawHTML, location string
	if err := t.run(
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &rawHTML, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("browser: snapshot: %w", err)
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("browser: parse snapshot: %w", err)
	}

	t.mu.Lock()
	t.lastDoc = doc
	t.mu.Unlock()

	base, err := url.Parse(location)
	if err != nil {
		base = nil
	}

	return &dom.PageEnv{
		BaseURL: base,
		Doc:     doc,
		RenderedSrc: func(n *html.Node) string {
			return t.nodeString(doc, n, "el.currentSrc || ''")
		},
		BackgroundImage: func(n *html.Node) string {
			return t.nodeString(doc, n, "getComputedStyle(el).backgroundImage || ''")
		},
	}, nil
}

// nodeString evaluates expr (with `el` bound to the live counterpart of n)
// and returns its string value, or "" when the node cannot be addressed.
func (t *Tab) nodeString(doc, n *html.Node, expr string) string {
	path := indexPath(doc, n)
	if path == nil {
		return ""
	}
	js := fmt.Sprintf(
		`(() => { const el = window.__fitlens.nodeAt(%s); return el ? String(%s) : ''; })()`,
		jsArg(path), expr)
	var out string
	if err := t.eval(js, &out); err != nil {
		t.logger.Debug("Node eval failed", zap.Error(err))
		return ""
	}
	return out
}

// ElementAt hit-tests viewport coordinates against the live DOM and maps
// the hit back into the current snapshot.
func (t *Tab) ElementAt(ctx context.Context, x, y float64) (*html.Node, error) {
	js := fmt.Sprintf(`window.__fitlens.nodePath(document.elementFromPoint(%s, %s))`,
		jsArg(x), jsArg(y))
	var path []int
	if err := t.eval(js, &path); err != nil {
		return nil, fmt.Errorf("browser: hit test: %w", err)
	}

	t.mu.Lock()
	doc := t.lastDoc
	t.mu.Unlock()
	if doc == nil {
		return nil, nil
	}
	return nodeAtPath(doc, path), nil
}

// BoundingRect returns the live viewport box of a snapshot node.
func (t *Tab) BoundingRect(ctx context.Context, n *html.Node) (capture.Rect, error) {
	t.mu.Lock()
	doc := t.lastDoc
	t.mu.Unlock()

	path := indexPath(doc, n)
	if path == nil {
		return capture.Rect{}, nil
	}
	js := fmt.Sprintf(`(() => {
		const el = window.__fitlens.nodeAt(%s);
		if (!el) return { x: 0, y: 0, width: 0, height: 0 };
		const r = el.getBoundingClientRect();
		return { x: r.x, y: r.y, width: r.width, height: r.height };
	})()`, jsArg(path))

	var rect capture.Rect
	if err := t.eval(js, &rect); err != nil {
		return capture.Rect{}, fmt.Errorf("browser: bounding rect: %w", err)
	}
	return rect, nil
}

type pageEvent struct {
	Kind string  `json:"kind"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Key  string  `json:"key"`
}

// Listen installs the capture-phase input listeners and streams their
// events to the session callbacks. The page's own pointerdown/click
// handling is suppressed while listening. The returned func tears
// everything down.
func (t *Tab) Listen(ctx context.Context, events capture.Events) (func(), error) {
	if err := t.ensureAgent(); err != nil {
		return nil, fmt.Errorf("browser: inject agent: %w", err)
	}
	if err := t.run(chromedp.ActionFunc(func(ctx context.Context) error {
		return runtime.AddBinding(eventBinding).Do(ctx)
	})); err != nil {
		return nil, fmt.Errorf("browser: add binding: %w", err)
	}
	if err := t.eval(`window.__fitlens.install()`, nil); err != nil {
		return nil, fmt.Errorf("browser: install listeners: %w", err)
	}

	var active atomic.Bool
	active.Store(true)

	// CDP event handlers must not block, and session callbacks may call
	// back into the tab. A buffered channel with a dedicated dispatch
	// goroutine keeps delivery sequential without stalling the message
	// loop.
	queue := make(chan pageEvent, 128)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case ev := <-queue:
				t.dispatch(ev, events)
			case <-done:
				return
			}
		}
	}()

	chromedp.ListenTarget(t.ctx, func(v interface{}) {
		if !active.Load() {
			return
		}
		bc, ok := v.(*runtime.EventBindingCalled)
		if !ok || bc.Name != eventBinding {
			return
		}
		var ev pageEvent
		if err := json.Unmarshal([]byte(bc.Payload), &ev); err != nil {
			return
		}
		select {
		case queue <- ev:
		default:
			t.logger.Debug("Input event dropped", zap.String("kind", ev.Kind))
		}
	})

	unlisten := func() {
		if !active.CompareAndSwap(true, false) {
			return
		}
		close(done)
		if err := t.eval(`window.__fitlens && window.__fitlens.teardown()`, nil); err != nil {
			t.logger.Debug("Listener teardown failed", zap.Error(err))
		}
		if err := t.run(chromedp.ActionFunc(func(ctx context.Context) error {
			return runtime.RemoveBinding(eventBinding).Do(ctx)
		})); err != nil {
			t.logger.Debug("Binding removal failed", zap.Error(err))
		}
	}
	return unlisten, nil
}

func (t *Tab) dispatch(ev pageEvent, events capture.Events) {
	switch ev.Kind {
	case "move":
		if events.PointerMove != nil {
			events.PointerMove(ev.X, ev.Y)
		}
	case "scroll":
		if events.Scroll != nil {
			events.Scroll()
		}
	case "click":
		if events.Click != nil {
			events.Click(ev.X, ev.Y)
		}
	case "key":
		if events.KeyDown != nil {
			events.KeyDown(ev.Key)
		}
	case "hidden":
		if events.VisibilityHidden != nil {
			events.VisibilityHidden()
		}
	}
}

// Mount injects the highlight overlay.
func (t *Tab) Mount(ctx context.Context) error {
	if err := t.ensureAgent(); err != nil {
		return fmt.Errorf("browser: inject agent: %w", err)
	}
	var ok bool
	if err := t.eval(`window.__fitlens.mountOverlay()`, &ok); err != nil {
		return fmt.Errorf("browser: mount overlay: %w", err)
	}
	if !ok {
		return fmt.Errorf("browser: document has no body")
	}
	return nil
}

// Update moves the highlight.
func (t *Tab) Update(ctx context.Context, r capture.Rect) error {
	return t.eval(fmt.Sprintf(`window.__fitlens.updateOverlay(%s)`, jsArg(r)), nil)
}

// Remove tears the overlay down.
func (t *Tab) Remove(ctx context.Context) error {
	return t.eval(`window.__fitlens && window.__fitlens.removeOverlay()`, nil)
}

// Toast shows a transient notice. Failures are logged, never surfaced; a
// toast is advisory.
func (t *Tab) Toast(ctx context.Context, message string) {
	js := fmt.Sprintf(`window.__fitlens.toast(%s, %d)`, jsArg(message), t.toast.Milliseconds())
	if err := t.eval(js, nil); err != nil {
		t.logger.Debug("Toast failed", zap.Error(err))
	}
}

// FetchDataURI fetches a resource inside the page (with the page's
// credentials) and returns it as a data URI.
func (t *Tab) FetchDataURI(ctx context.Context, resource string) (string, error) {
	if err := t.ensureAgent(); err != nil {
		return "", fmt.Errorf("browser: inject agent: %w", err)
	}
	var out string
	js := fmt.Sprintf(`window.__fitlens.fetchDataURI(%s)`, jsArg(resource))
	if err := t.evalAsync(js, &out); err != nil {
		return "", fmt.Errorf("browser: page fetch: %w", err)
	}
	return out, nil
}
