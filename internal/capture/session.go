package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/veyralabs/fitlens/api/schemas"
	"github.com/veyralabs/fitlens/internal/dom"
)

// State is the session's lifecycle position.
type State string

const (
	StateIdle   State = "idle"
	StateActive State = "active"
)

// ErrOverlayMount reports that capture could not start because the
// highlight overlay had nowhere to attach.
var ErrOverlayMount = errors.New("capture: unable to mount highlight overlay")

const (
	toastHint    = "Hover an item and click to capture it."
	toastMiss    = "No product image detected there. Try another spot."
	toastWorking = "Processing image..."
	toastFailed  = "Failed to capture image. Please try again."
	toastCancel  = "Capture cancelled."
)

// Session owns one page context's capture lifecycle: event interception,
// the live highlight, per-move asset resolution, and click finalization.
// All session flags live here; every termination path resets them together
// and notifies the coordinator exactly once.
type Session struct {
	logger      *zap.Logger
	page        Page
	overlay     Overlay
	frames      FrameScheduler
	materialize Materializer
	emitter     Emitter

	mu         sync.Mutex
	state      State
	inFlight   bool // a click's materialization is running; further clicks are ignored
	generation int  // bumps on every termination; stale async work checks it
	current    *dom.ProductAsset
	currentEnv *dom.PageEnv
	unlisten   func()
}

// NewSession wires a session to its page context collaborators.
func NewSession(page Page, overlay Overlay, frames FrameScheduler, materializer Materializer, emitter Emitter, logger *zap.Logger) *Session {
	return &Session{
		logger:      logger.Named("capture"),
		page:        page,
		overlay:     overlay,
		frames:      frames,
		materialize: materializer,
		emitter:     emitter,
		state:       StateIdle,
	}
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start activates the capture session. Calling while already active is a
// no-op. Overlay mount failure fails fast and the session never activates.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateActive {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.overlay.Mount(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrOverlayMount, err)
	}

	events := Events{
		PointerMove:      func(x, y float64) { s.onPointerMove(ctx, x, y) },
		Scroll:           func() { s.onScroll(ctx) },
		Click:            func(x, y float64) { s.onClick(ctx, x, y) },
		KeyDown:          func(key string) { s.onKeyDown(ctx, key) },
		VisibilityHidden: func() { s.onVisibilityHidden(ctx) },
	}

	unlisten, err := s.page.Listen(ctx, events)
	if err != nil {
		_ = s.overlay.Remove(ctx)
		return fmt.Errorf("capture: register page listeners: %w", err)
	}

	s.mu.Lock()
	s.state = StateActive
	s.current = nil
	s.currentEnv = nil
	s.inFlight = false
	s.unlisten = unlisten
	s.mu.Unlock()

	s.emit(ctx, schemas.MsgProductCaptureActivated, nil)
	s.overlay.Toast(ctx, toastHint)
	s.logger.Info("Capture session activated")
	return nil
}

func (s *Session) onPointerMove(ctx context.Context, x, y float64) {
	if s.State() != StateActive {
		return
	}

	element, err := s.page.ElementAt(ctx, x, y)
	if err != nil || element == nil {
		s.setCurrent(ctx, nil, nil)
		return
	}

	env, err := s.page.Environment(ctx)
	if err != nil {
		s.setCurrent(ctx, nil, nil)
		return
	}

	s.setCurrent(ctx, env, dom.Resolve(env, element))
}

// setCurrent swaps the tracked asset and schedules a repaint when the
// highlighted target changed.
func (s *Session) setCurrent(ctx context.Context, env *dom.PageEnv, asset *dom.ProductAsset) {
	s.mu.Lock()
	changed := nodeOf(s.current) != nodeOf(asset)
	s.current = asset
	s.currentEnv = env
	s.mu.Unlock()

	if changed {
		s.scheduleHighlight(ctx)
	}
}

func nodeOf(a *dom.ProductAsset) interface{} {
	if a == nil {
		return nil
	}
	return a.Node
}

func (s *Session) onScroll(ctx context.Context) {
	if s.State() != StateActive {
		return
	}
	// The highlight is positioned in viewport coordinates; scrolling moves
	// the tracked element under it, so repaint from the fresh rect.
	s.scheduleHighlight(ctx)
}

func (s *Session) scheduleHighlight(ctx context.Context) {
	s.frames.Schedule(func() { s.paintHighlight(ctx) })
}

func (s *Session) paintHighlight(ctx context.Context) {
	s.mu.Lock()
	asset := s.current
	active := s.state == StateActive
	s.mu.Unlock()
	if !active {
		return
	}

	if asset == nil {
		_ = s.overlay.Update(ctx, Rect{})
		return
	}

	rect, err := s.page.BoundingRect(ctx, asset.Node)
	if err != nil {
		rect = Rect{}
	}
	_ = s.overlay.Update(ctx, rect)
}

func (s *Session) onClick(ctx context.Context, x, y float64) {
	s.mu.Lock()
	if s.state != StateActive || s.inFlight {
		s.mu.Unlock()
		return
	}
	asset := s.current
	env := s.currentEnv
	s.mu.Unlock()

	// Page default behavior is already suppressed by the listener
	// registration; a click that lands without a tracked asset retries
	// resolution from the literal click target.
	if asset == nil {
		element, err := s.page.ElementAt(ctx, x, y)
		if err == nil && element != nil {
			if freshEnv, envErr := s.page.Environment(ctx); envErr == nil {
				env = freshEnv
				asset = dom.Resolve(freshEnv, element)
			}
		}
	}

	if asset == nil {
		// Recoverable miss: notify and stay active.
		s.overlay.Toast(ctx, toastMiss)
		return
	}

	s.mu.Lock()
	if s.state != StateActive || s.inFlight {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	gen := s.generation
	s.mu.Unlock()

	s.overlay.Toast(ctx, toastWorking)
	go s.finalize(ctx, env, asset, gen)
}

// finalize runs the asynchronous tail of a click: materialize the image,
// build the metadata, emit the selection, and terminate. If the session
// already left Active (generation moved on), the result is discarded.
func (s *Session) finalize(ctx context.Context, env *dom.PageEnv, asset *dom.ProductAsset, gen int) {
	inline, err := s.materialize.Materialize(ctx, asset.ImageURL)

	s.mu.Lock()
	stale := s.state != StateActive || s.generation != gen
	if !stale {
		s.inFlight = false
	}
	s.mu.Unlock()
	if stale {
		s.logger.Debug("Discarding materialization result for terminated session")
		return
	}

	if err != nil {
		s.logger.Warn("Materialization failed", zap.String("url", asset.ImageURL), zap.Error(err))
		s.terminate(ctx, schemas.CaptureError, toastFailed)
		return
	}

	name := dom.InferName(env, asset)
	anchorURL := dom.AnchorURL(env, asset)
	payload := schemas.ProductSelectedPayload{
		ProductID:    dom.ProductID(asset.ImageURL, anchorURL),
		ProductName:  name,
		ProductImage: inline.DataURI(),
		ProductURL:   anchorURL,
	}

	s.emit(ctx, schemas.MsgProductSelected, payload)
	s.logger.Info("Product captured",
		zap.String("product_id", payload.ProductID),
		zap.String("name", name),
	)
	s.terminate(ctx, schemas.CaptureCompleted, fmt.Sprintf("Captured %q", name))
}

// Cancel terminates an active session from outside the page, as if the
// user had dismissed it. Idle sessions ignore it.
func (s *Session) Cancel(ctx context.Context) {
	s.terminate(ctx, schemas.CaptureCancelled, "")
}

func (s *Session) onKeyDown(ctx context.Context, key string) {
	if s.State() != StateActive {
		return
	}
	if key == "Escape" {
		s.terminate(ctx, schemas.CaptureCancelled, toastCancel)
	}
}

func (s *Session) onVisibilityHidden(ctx context.Context) {
	if s.State() != StateActive {
		return
	}
	// Tab switched away mid-capture; a hidden page must not keep
	// intercepting input.
	s.terminate(ctx, schemas.CaptureCancelled, "")
}

// terminate is the single exit path. It resets every session flag
// together, unregisters listeners, unmounts the overlay, and notifies the
// coordinator exactly once with the termination reason.
func (s *Session) terminate(ctx context.Context, reason schemas.CaptureReason, toastMessage string) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	s.state = StateIdle
	s.current = nil
	s.currentEnv = nil
	s.inFlight = false
	s.generation++
	unlisten := s.unlisten
	s.unlisten = nil
	s.mu.Unlock()

	s.frames.Cancel()
	if unlisten != nil {
		unlisten()
	}
	_ = s.overlay.Remove(ctx)

	s.emit(ctx, schemas.MsgProductCaptureFinished, schemas.CaptureFinishedPayload{
		Reason:  reason,
		Message: toastMessage,
	})

	if toastMessage != "" {
		s.overlay.Toast(ctx, toastMessage)
	}
	s.logger.Info("Capture session terminated", zap.String("reason", string(reason)))
}

func (s *Session) emit(ctx context.Context, t schemas.MessageType, payload interface{}) {
	env, err := schemas.NewEnvelope(t, payload)
	if err != nil {
		s.logger.Error("Failed to encode message", zap.String("type", string(t)), zap.Error(err))
		return
	}
	if err := s.emitter.Publish(ctx, env); err != nil {
		s.logger.Warn("Failed to publish message", zap.String("type", string(t)), zap.Error(err))
	}
}
