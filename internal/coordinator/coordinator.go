// Package coordinator is the hub context: it owns persistence, brokers
// capture activation, and runs try-on generation. Everything it does is
// driven by router messages; it holds no UI and no page state.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veyralabs/fitlens/api/schemas"
	"github.com/veyralabs/fitlens/internal/capture"
	"github.com/veyralabs/fitlens/internal/materialize"
	"github.com/veyralabs/fitlens/internal/messaging"
	"github.com/veyralabs/fitlens/internal/store"
)

// User-facing failure text for capture activation. The raw error goes to
// the log; the UI gets something actionable.
const (
	msgRestrictedPage = "cannot run on this page type"
	msgReloadTab      = "reload the tab"

	// tryOnConfidence is a fixed score: the model reports none.
	tryOnConfidence = 0.9
)

// Launcher starts a capture session on the active tab.
type Launcher interface {
	StartCapture(ctx context.Context) error
}

// Generator produces a try-on composite from a user photo and a product
// image.
type Generator interface {
	GenerateTryOn(ctx context.Context, userPhoto, product schemas.InlineImage) (schemas.InlineImage, error)
}

// Materializer turns a plain image URL into an inline image. The
// coordinator only needs it for legacy captures whose stored imageUrl never
// got inlined.
type Materializer interface {
	Materialize(ctx context.Context, resource string) (schemas.InlineImage, error)
}

// Coordinator wires the store, the capture launcher, and the generative
// client behind router handlers.
type Coordinator struct {
	router      *messaging.Router
	store       *store.Store
	launcher    Launcher
	generator   Generator
	materialize Materializer
	logger      *zap.Logger
	now         func() time.Time
}

// New builds a Coordinator. Register must be called before it receives
// anything.
func New(router *messaging.Router, st *store.Store, launcher Launcher, gen Generator, mat Materializer, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		router:      router,
		store:       st,
		launcher:    launcher,
		generator:   gen,
		materialize: mat,
		logger:      logger.Named("coordinator"),
		now:         time.Now,
	}
}

// Register installs the coordinator's message handlers on the router.
func (c *Coordinator) Register() {
	c.router.Handle(schemas.MsgProductCaptureStart, c.handleCaptureStart)
	c.router.Handle(schemas.MsgProductSelected, c.handleProductSelected)
	c.router.Handle(schemas.MsgProductsGet, c.handleProductsGet)
	c.router.Handle(schemas.MsgUserPhotoUpdated, c.handleUserPhotoUpdated)
	c.router.Handle(schemas.MsgTryOnGenerate, c.handleTryOnGenerate)
}

func (c *Coordinator) handleCaptureStart(ctx context.Context, msg schemas.Envelope) (*schemas.Envelope, error) {
	err := c.launcher.StartCapture(ctx)
	if err == nil {
		return messaging.RespondOK(), nil
	}

	c.logger.Warn("Capture activation failed", zap.Error(err))
	switch {
	case errors.Is(err, capture.ErrRestrictedPage):
		return messaging.RespondError(msgRestrictedPage), nil
	case errors.Is(err, capture.ErrAgentUnavailable), errors.Is(err, messaging.ErrNoReceiver):
		return messaging.RespondError(msgReloadTab), nil
	default:
		return messaging.RespondError(err.Error()), nil
	}
}

func (c *Coordinator) handleProductSelected(ctx context.Context, msg schemas.Envelope) (*schemas.Envelope, error) {
	var p schemas.ProductSelectedPayload
	if err := msg.DecodePayload(&p); err != nil {
		return nil, fmt.Errorf("decode product:selected: %w", err)
	}

	products, err := c.store.UpsertProduct(ctx, schemas.ProductMetadata{
		ID:        p.ProductID,
		Name:      p.ProductName,
		ImageURL:  p.ProductImage,
		SourceURL: p.ProductURL,
	})
	if err != nil {
		return nil, err
	}

	env, err := schemas.NewEnvelope(schemas.MsgProductsUpdated, schemas.ProductsPayload{Products: products})
	if err != nil {
		return nil, err
	}
	if err := c.router.Publish(ctx, env); err != nil {
		c.logger.Warn("Failed to broadcast product list", zap.Error(err))
	}
	return messaging.RespondOK(), nil
}

func (c *Coordinator) handleProductsGet(ctx context.Context, msg schemas.Envelope) (*schemas.Envelope, error) {
	products, err := c.store.Products(ctx)
	if err != nil {
		return nil, err
	}
	env, err := schemas.NewEnvelope(schemas.MsgProductsUpdated, schemas.ProductsPayload{Products: products})
	if err != nil {
		return nil, err
	}
	return &env, nil
}

func (c *Coordinator) handleUserPhotoUpdated(ctx context.Context, msg schemas.Envelope) (*schemas.Envelope, error) {
	var p schemas.UserPhotoPayload
	if err := msg.DecodePayload(&p); err != nil {
		return nil, fmt.Errorf("decode user-photo:updated: %w", err)
	}

	uploadedAt := p.UploadedAt
	if uploadedAt == "" {
		uploadedAt = c.now().UTC().Format(time.RFC3339)
	}
	if err := c.store.SaveUserProfile(ctx, schemas.UserProfile{
		PhotoDataURL: p.DataURL,
		UploadedAt:   uploadedAt,
	}); err != nil {
		return nil, err
	}
	return messaging.RespondOK(), nil
}

func (c *Coordinator) handleTryOnGenerate(ctx context.Context, msg schemas.Envelope) (*schemas.Envelope, error) {
	var p schemas.TryOnGeneratePayload
	if err := msg.DecodePayload(&p); err != nil {
		return nil, fmt.Errorf("decode try-on:generate: %w", err)
	}

	userPhoto := p.UserPhoto
	if userPhoto == "" {
		profile, err := c.store.UserProfile(ctx)
		if err != nil {
			return messaging.RespondError("upload a photo first"), nil
		}
		userPhoto = profile.PhotoDataURL
	}
	user, err := materialize.ParseDataURI(userPhoto)
	if err != nil {
		return messaging.RespondError(fmt.Sprintf("invalid user photo: %v", err)), nil
	}

	// Captures are inlined at click time, but lists persisted by older
	// builds can still hold plain URLs.
	product, err := c.materialize.Materialize(ctx, p.ProductImage)
	if err != nil {
		return messaging.RespondError(fmt.Sprintf("product image unavailable: %v", err)), nil
	}

	generated, err := c.generator.GenerateTryOn(ctx, user, product)
	if err != nil {
		c.logger.Error("Try-on generation failed", zap.Error(err))
		return messaging.RespondError(truncate(err.Error(), 300)), nil
	}

	result := schemas.TryOnResult{
		RequestID:         msg.RequestID,
		GeneratedImageURL: generated.DataURI(),
		Confidence:        tryOnConfidence,
		GeneratedAt:       c.now().UTC().Format(time.RFC3339),
	}
	if err := c.store.SaveTryOnResult(ctx, result); err != nil {
		c.logger.Warn("Failed to persist try-on result", zap.Error(err))
	}

	env, err := schemas.NewEnvelope(schemas.MsgTryOnResult, schemas.TryOnResultPayload{
		RequestID:         result.RequestID,
		GeneratedImageURL: result.GeneratedImageURL,
		Confidence:        result.Confidence,
	})
	if err != nil {
		return nil, err
	}
	if err := c.router.Publish(ctx, env); err != nil {
		c.logger.Warn("Failed to broadcast try-on result", zap.Error(err))
	}
	return &env, nil
}

// ResolveAPIKey returns the generation credential: a configured key wins
// and is cached for later runs, otherwise the cached key is used.
func ResolveAPIKey(ctx context.Context, st *store.Store, configured string, logger *zap.Logger) (string, error) {
	if configured != "" {
		if err := st.CacheAPIKey(ctx, configured); err != nil {
			logger.Warn("Failed to cache API key", zap.Error(err))
		}
		return configured, nil
	}
	key, err := st.APIKey(ctx)
	if err != nil {
		return "", fmt.Errorf("no API key configured: %w", err)
	}
	return key, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
