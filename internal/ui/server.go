// Package ui serves the local control surface: a small JSON API plus a
// WebSocket event stream. It is a thin client of the message router and
// holds no domain state of its own.
package ui

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/veyralabs/fitlens/api/schemas"
	"github.com/veyralabs/fitlens/internal/messaging"
	"github.com/veyralabs/fitlens/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ResultSource reads the latest stored try-on result. *store.Store
// satisfies it.
type ResultSource interface {
	LatestTryOnResult(ctx context.Context) (schemas.TryOnResult, error)
}

// Server is the HTTP surface.
type Server struct {
	router  *messaging.Router
	results ResultSource
	hub     *Hub
	logger  *zap.Logger
	srv     *http.Server
}

// NewServer builds the server and registers the hub's broadcast handlers.
func NewServer(addr string, router *messaging.Router, results ResultSource, logger *zap.Logger) *Server {
	s := &Server{
		router:  router,
		results: results,
		hub:     NewHub(logger),
		logger:  logger.Named("ui"),
	}
	s.hub.Register(router)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler builds the route tree; split out so tests can drive it without a
// listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", s.handleProducts)
		r.Post("/user-photo", s.handleUserPhoto)
		r.Post("/capture/start", s.handleCaptureStart)
		r.Post("/try-on", s.handleTryOn)
		r.Get("/result", s.handleResult)
	})
	r.Get("/ws", s.hub.ServeWS)
	return r
}

// Run serves until ctx is cancelled, then drains.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("UI listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.Close()
	return s.srv.Shutdown(shutdownCtx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeAck(w http.ResponseWriter, ack schemas.Ack, failStatus int) {
	if ack.OK {
		s.writeJSON(w, http.StatusOK, ack)
		return
	}
	s.writeJSON(w, failStatus, ack)
}

// request routes a message and decodes the single response. ErrNoReceiver
// maps to a failed ack so the UI gets readable text instead of a 500.
func (s *Server) request(ctx context.Context, msgType schemas.MessageType, payload interface{}) (*schemas.Envelope, error) {
	env, err := schemas.NewEnvelope(msgType, payload)
	if err != nil {
		return nil, err
	}
	return s.router.Request(ctx, env)
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	resp, err := s.request(r.Context(), schemas.MsgProductsGet, nil)
	if err != nil {
		s.writeJSON(w, http.StatusBadGateway, schemas.Ack{Error: err.Error()})
		return
	}
	var p schemas.ProductsPayload
	if err := resp.DecodePayload(&p); err != nil {
		s.writeJSON(w, http.StatusInternalServerError, schemas.Ack{Error: err.Error()})
		return
	}
	if p.Products == nil {
		p.Products = []schemas.ProductMetadata{}
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUserPhoto(w http.ResponseWriter, r *http.Request) {
	var p schemas.UserPhotoPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeJSON(w, http.StatusBadRequest, schemas.Ack{Error: "invalid JSON body"})
		return
	}
	if !strings.HasPrefix(p.DataURL, "data:") {
		s.writeJSON(w, http.StatusBadRequest, schemas.Ack{Error: "dataUrl must be a data: URI"})
		return
	}

	resp, err := s.request(r.Context(), schemas.MsgUserPhotoUpdated, p)
	if err != nil {
		s.writeJSON(w, http.StatusBadGateway, schemas.Ack{Error: err.Error()})
		return
	}
	var ack schemas.Ack
	if err := resp.DecodePayload(&ack); err != nil {
		s.writeJSON(w, http.StatusInternalServerError, schemas.Ack{Error: err.Error()})
		return
	}
	s.writeAck(w, ack, http.StatusInternalServerError)
}

func (s *Server) handleCaptureStart(w http.ResponseWriter, r *http.Request) {
	resp, err := s.request(r.Context(), schemas.MsgProductCaptureStart, nil)
	if err != nil {
		if errors.Is(err, messaging.ErrNoReceiver) {
			s.writeJSON(w, http.StatusConflict, schemas.Ack{Error: "reload the tab"})
			return
		}
		s.writeJSON(w, http.StatusBadGateway, schemas.Ack{Error: err.Error()})
		return
	}
	var ack schemas.Ack
	if err := resp.DecodePayload(&ack); err != nil {
		s.writeJSON(w, http.StatusInternalServerError, schemas.Ack{Error: err.Error()})
		return
	}
	s.writeAck(w, ack, http.StatusConflict)
}

func (s *Server) handleTryOn(w http.ResponseWriter, r *http.Request) {
	var p schemas.TryOnGeneratePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeJSON(w, http.StatusBadRequest, schemas.Ack{Error: "invalid JSON body"})
		return
	}
	if p.ProductImage == "" {
		s.writeJSON(w, http.StatusBadRequest, schemas.Ack{Error: "productImage is required"})
		return
	}

	resp, err := s.request(r.Context(), schemas.MsgTryOnGenerate, p)
	if err != nil {
		s.writeJSON(w, http.StatusBadGateway, schemas.Ack{Error: err.Error()})
		return
	}

	if resp.Type == schemas.MsgTryOnResult {
		var result schemas.TryOnResultPayload
		if err := resp.DecodePayload(&result); err != nil {
			s.writeJSON(w, http.StatusInternalServerError, schemas.Ack{Error: err.Error()})
			return
		}
		s.writeJSON(w, http.StatusOK, result)
		return
	}

	var ack schemas.Ack
	if err := resp.DecodePayload(&ack); err != nil {
		s.writeJSON(w, http.StatusInternalServerError, schemas.Ack{Error: err.Error()})
		return
	}
	s.writeAck(w, ack, http.StatusUnprocessableEntity)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.results.LatestTryOnResult(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeJSON(w, http.StatusNotFound, schemas.Ack{Error: "no try-on result yet"})
			return
		}
		s.writeJSON(w, http.StatusInternalServerError, schemas.Ack{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}
