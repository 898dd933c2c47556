// Package browser attaches to a Chrome instance over the DevTools protocol
// and adapts its tabs into the page surface the capture session drives.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/veyralabs/fitlens/api/schemas"
	"github.com/veyralabs/fitlens/internal/capture"
	"github.com/veyralabs/fitlens/internal/config"
	"github.com/veyralabs/fitlens/internal/materialize"
	"github.com/veyralabs/fitlens/internal/messaging"
)

// Pages the agent must not inject into. Matching the prefix is enough;
// anything browser-internal is off limits.
var restrictedPrefixes = []string{
	"chrome://",
	"chrome-extension://",
	"chrome-untrusted://",
	"devtools://",
	"edge://",
	"about:",
	"view-source:",
	"https://chrome.google.com/webstore",
	"https://chromewebstore.google.com",
}

func isRestrictedURL(u string) bool {
	for _, p := range restrictedPrefixes {
		if strings.HasPrefix(u, p) {
			return true
		}
	}
	return u == ""
}

// Browser owns the DevTools connection and the capture session lifecycle.
type Browser struct {
	cfg        config.BrowserConfig
	captureCfg config.CaptureConfig
	router     *messaging.Router
	fallback   *materialize.Materializer
	logger     *zap.Logger

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	tab           *Tab
	session       *capture.Session
}

// New builds an unconnected Browser.
func New(cfg config.BrowserConfig, captureCfg config.CaptureConfig, router *messaging.Router, fallback *materialize.Materializer, logger *zap.Logger) *Browser {
	return &Browser{
		cfg:        cfg,
		captureCfg: captureCfg,
		router:     router,
		fallback:   fallback,
		logger:     logger.Named("browser"),
	}
}

// Connect attaches to a remote Chrome when RemoteURL is set, otherwise
// launches a local instance.
func (b *Browser) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browserCtx != nil {
		return nil
	}

	var allocCtx context.Context
	if b.cfg.RemoteURL != "" {
		allocCtx, b.allocCancel = chromedp.NewRemoteAllocator(ctx, b.cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", b.cfg.Headless),
		)
		allocCtx, b.allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	}
	b.browserCtx, b.browserCancel = chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			b.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	// Force the browser process/connection up front so failures surface
	// here, not on the first capture.
	if err := chromedp.Run(b.browserCtx); err != nil {
		b.closeLocked()
		return fmt.Errorf("browser: connect: %w", err)
	}
	b.logger.Info("Browser attached", zap.String("remote_url", b.cfg.RemoteURL))
	return nil
}

// Close tears down the session, the tab, and the browser connection.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked()
}

func (b *Browser) closeLocked() {
	if b.session != nil {
		b.session.Cancel(context.Background())
		b.session = nil
	}
	if b.tab != nil {
		b.tab.Close()
		b.tab = nil
	}
	if b.browserCancel != nil {
		b.browserCancel()
		b.browserCancel = nil
		b.browserCtx = nil
	}
	if b.allocCancel != nil {
		b.allocCancel()
		b.allocCancel = nil
	}
}

// ActiveTab picks the capture target: the first page target passing the
// configured URL filter. Restricted pages are rejected rather than
// skipped, mirroring what a user sees when the frontmost tab cannot host
// the agent.
func (b *Browser) ActiveTab(ctx context.Context) (*Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browserCtx == nil {
		return nil, capture.ErrAgentUnavailable
	}
	if b.tab != nil {
		return b.tab, nil
	}

	infos, err := chromedp.Targets(b.browserCtx)
	if err != nil {
		return nil, fmt.Errorf("browser: list targets: %w", err)
	}
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		if b.cfg.TabURLFilter != "" && !strings.Contains(info.URL, b.cfg.TabURLFilter) {
			continue
		}
		if isRestrictedURL(info.URL) {
			return nil, fmt.Errorf("%w: %s", capture.ErrRestrictedPage, info.URL)
		}
		tab := newTab(b.browserCtx, b.cfg, b.captureCfg.ToastDuration, b.logger,
			chromedp.WithTargetID(info.TargetID))
		b.tab = tab
		b.logger.Info("Attached to tab", zap.String("url", info.URL))
		return tab, nil
	}
	return nil, fmt.Errorf("%w: no matching page target", capture.ErrAgentUnavailable)
}

// StartCapture attaches to the active tab and starts (or re-joins) a
// capture session on it.
func (b *Browser) StartCapture(ctx context.Context) error {
	tab, err := b.ActiveTab(ctx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if b.session == nil {
		mat := &pageMaterializer{tab: tab, fallback: b.fallback}
		b.session = capture.NewSession(
			tab,
			tab,
			capture.NewFrameScheduler(b.captureCfg.FrameInterval),
			mat,
			b.router,
			b.logger,
		)
	}
	session := b.session
	b.mu.Unlock()

	return session.Start(ctx)
}

// pageMaterializer inlines image URLs with the page's own credentials and
// falls back to a plain HTTP fetch when the page cannot serve them.
type pageMaterializer struct {
	tab      *Tab
	fallback *materialize.Materializer
}

func (m *pageMaterializer) Materialize(ctx context.Context, resource string) (schemas.InlineImage, error) {
	if strings.HasPrefix(resource, "data:") {
		return materialize.ParseDataURI(resource)
	}
	if uri, err := m.tab.FetchDataURI(ctx, resource); err == nil {
		return materialize.ParseDataURI(uri)
	}
	return m.fallback.Materialize(ctx, resource)
}
