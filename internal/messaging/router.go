package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veyralabs/fitlens/api/schemas"
)

// ErrNoReceiver reports a send into a context where nothing listens for the
// message type. Callers get this outcome explicitly instead of hanging.
var ErrNoReceiver = errors.New("messaging: no receiver for message type")

// ErrShutdown reports a send after the router stopped dispatching.
var ErrShutdown = errors.New("messaging: router is shut down")

// Handler consumes one message. A non-nil response envelope answers a
// Request; Send ignores responses. Handlers run on the sender's goroutine;
// the contexts themselves are single-threaded event loops, so a handler
// must not call back into the router synchronously on the same type.
type Handler func(ctx context.Context, msg schemas.Envelope) (*schemas.Envelope, error)

// Router is the cross-context message fabric. The page session, the
// coordinator, and the UI surface each register handlers for the message
// types they consume; all interaction between them is message passing with
// structured-clone-safe payloads.
type Router struct {
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[schemas.MessageType][]Handler

	shutdownMu sync.Mutex
	isShutdown bool
}

// NewRouter builds an empty router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		logger:   logger.Named("router"),
		handlers: make(map[schemas.MessageType][]Handler),
	}
}

// Handle registers a handler for a message type. Multiple handlers may
// listen to the same type; for requests, the first non-nil response wins.
func (r *Router) Handle(t schemas.MessageType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = append(r.handlers[t], h)
}

// Send dispatches fire-and-forget. Responses are dropped; handler errors
// are logged, not propagated, because the sender has already moved on.
// Sending to a type nobody listens to returns ErrNoReceiver.
func (r *Router) Send(ctx context.Context, msg schemas.Envelope) error {
	handlers, err := r.snapshot(msg.Type)
	if err != nil {
		return err
	}

	for _, h := range handlers {
		if _, err := h(ctx, msg); err != nil {
			r.logger.Warn("Message handler failed",
				zap.String("type", string(msg.Type)),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Publish is Send for broadcast-style messages where an empty audience is
// normal (nobody has the UI open yet). ErrNoReceiver is swallowed.
func (r *Router) Publish(ctx context.Context, msg schemas.Envelope) error {
	err := r.Send(ctx, msg)
	if errors.Is(err, ErrNoReceiver) {
		return nil
	}
	return err
}

// Request dispatches and waits for the single-shot response. The envelope
// gets a request id if it has none. The first handler returning a non-nil
// response answers the request; if every handler stays silent the caller
// gets ErrNoReceiver, matching a listener that never calls sendResponse.
func (r *Router) Request(ctx context.Context, msg schemas.Envelope) (*schemas.Envelope, error) {
	handlers, err := r.snapshot(msg.Type)
	if err != nil {
		return nil, err
	}

	if msg.RequestID == "" {
		msg.RequestID = uuid.New().String()
	}

	for _, h := range handlers {
		resp, err := h(ctx, msg)
		if err != nil {
			return nil, fmt.Errorf("handler for %s: %w", msg.Type, err)
		}
		if resp != nil {
			if resp.RequestID == "" {
				resp.RequestID = msg.RequestID
			}
			return resp, nil
		}
	}
	return nil, fmt.Errorf("request %s: %w", msg.Type, ErrNoReceiver)
}

// Shutdown stops dispatching. Subsequent sends fail with ErrShutdown.
func (r *Router) Shutdown() {
	r.shutdownMu.Lock()
	defer r.shutdownMu.Unlock()
	r.isShutdown = true
}

func (r *Router) snapshot(t schemas.MessageType) ([]Handler, error) {
	r.shutdownMu.Lock()
	down := r.isShutdown
	r.shutdownMu.Unlock()
	if down {
		return nil, ErrShutdown
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	handlers, ok := r.handlers[t]
	if !ok || len(handlers) == 0 {
		return nil, fmt.Errorf("%s: %w", t, ErrNoReceiver)
	}
	out := make([]Handler, len(handlers))
	copy(out, handlers)
	return out, nil
}

// RespondOK is a convenience Ack response envelope.
func RespondOK() *schemas.Envelope {
	env, _ := schemas.NewEnvelope("", schemas.Ack{OK: true})
	return &env
}

// RespondError is a convenience failed-Ack response envelope.
func RespondError(message string) *schemas.Envelope {
	env, _ := schemas.NewEnvelope("", schemas.Ack{OK: false, Error: message})
	return &env
}
