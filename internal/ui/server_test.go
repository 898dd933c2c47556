package ui

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veyralabs/fitlens/api/schemas"
	"github.com/veyralabs/fitlens/internal/messaging"
	"github.com/veyralabs/fitlens/internal/store"
)

type fakeResults struct {
	result schemas.TryOnResult
	err    error
}

func (f *fakeResults) LatestTryOnResult(ctx context.Context) (schemas.TryOnResult, error) {
	return f.result, f.err
}

type uiHarness struct {
	router  *messaging.Router
	results *fakeResults
	server  *Server
	ts      *httptest.Server
}

func newUIHarness(t *testing.T) *uiHarness {
	t.Helper()
	h := &uiHarness{
		router:  messaging.NewRouter(zap.NewNop()),
		results: &fakeResults{err: store.ErrNotFound},
	}
	h.server = NewServer("127.0.0.1:0", h.router, h.results, zap.NewNop())
	h.ts = httptest.NewServer(h.server.Handler())
	t.Cleanup(h.ts.Close)
	t.Cleanup(h.server.hub.Close)
	return h
}

func (h *uiHarness) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(h.ts.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (h *uiHarness) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(h.ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestProductsEndpoint(t *testing.T) {
	h := newUIHarness(t)
	h.router.Handle(schemas.MsgProductsGet, func(ctx context.Context, msg schemas.Envelope) (*schemas.Envelope, error) {
		env, err := schemas.NewEnvelope(schemas.MsgProductsUpdated, schemas.ProductsPayload{
			Products: []schemas.ProductMetadata{{ID: "product-1", Name: "Parka"}},
		})
		return &env, err
	})

	resp := h.get(t, "/api/products")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var p schemas.ProductsPayload
	decodeBody(t, resp, &p)
	require.Len(t, p.Products, 1)
	assert.Equal(t, "Parka", p.Products[0].Name)
}

func TestProductsEndpointEmptyListNotNull(t *testing.T) {
	h := newUIHarness(t)
	h.router.Handle(schemas.MsgProductsGet, func(ctx context.Context, msg schemas.Envelope) (*schemas.Envelope, error) {
		env, err := schemas.NewEnvelope(schemas.MsgProductsUpdated, schemas.ProductsPayload{})
		return &env, err
	})

	resp := h.get(t, "/api/products")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw map[string]interface{}
	decodeBody(t, resp, &raw)
	assert.NotNil(t, raw["products"])
}

func TestCaptureStartNoAgent(t *testing.T) {
	h := newUIHarness(t)
	// Nothing handles product:capture:start.
	resp := h.post(t, "/api/capture/start", "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var ack schemas.Ack
	decodeBody(t, resp, &ack)
	assert.Equal(t, "reload the tab", ack.Error)
}

func TestCaptureStartForwardsFailureText(t *testing.T) {
	h := newUIHarness(t)
	h.router.Handle(schemas.MsgProductCaptureStart, func(ctx context.Context, msg schemas.Envelope) (*schemas.Envelope, error) {
		return messaging.RespondError("cannot run on this page type"), nil
	})

	resp := h.post(t, "/api/capture/start", "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var ack schemas.Ack
	decodeBody(t, resp, &ack)
	assert.Equal(t, "cannot run on this page type", ack.Error)
}

func TestUserPhotoValidation(t *testing.T) {
	h := newUIHarness(t)

	resp := h.post(t, "/api/user-photo", `{"dataUrl":"https://not-a-data-uri"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.post(t, "/api/user-photo", `{broken`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUserPhotoForwarded(t *testing.T) {
	h := newUIHarness(t)
	var got schemas.UserPhotoPayload
	h.router.Handle(schemas.MsgUserPhotoUpdated, func(ctx context.Context, msg schemas.Envelope) (*schemas.Envelope, error) {
		if err := msg.DecodePayload(&got); err != nil {
			return nil, err
		}
		return messaging.RespondOK(), nil
	})

	resp := h.post(t, "/api/user-photo", `{"dataUrl":"data:image/png;base64,aGk="}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "data:image/png;base64,aGk=", got.DataURL)
}

func TestTryOnEndpoint(t *testing.T) {
	h := newUIHarness(t)
	h.router.Handle(schemas.MsgTryOnGenerate, func(ctx context.Context, msg schemas.Envelope) (*schemas.Envelope, error) {
		env, err := schemas.NewEnvelope(schemas.MsgTryOnResult, schemas.TryOnResultPayload{
			RequestID:         msg.RequestID,
			GeneratedImageURL: "data:image/png;base64,b3V0",
			Confidence:        1,
		})
		return &env, err
	})

	resp := h.post(t, "/api/try-on", `{"userPhoto":"data:image/jpeg;base64,dQ==","productImage":"data:image/png;base64,cA=="}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result schemas.TryOnResultPayload
	decodeBody(t, resp, &result)
	assert.Equal(t, "data:image/png;base64,b3V0", result.GeneratedImageURL)
	assert.NotEmpty(t, result.RequestID)
}

func TestTryOnEndpointRequiresProductImage(t *testing.T) {
	h := newUIHarness(t)
	resp := h.post(t, "/api/try-on", `{"userPhoto":"data:image/jpeg;base64,dQ=="}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTryOnEndpointSurfacesFailure(t *testing.T) {
	h := newUIHarness(t)
	h.router.Handle(schemas.MsgTryOnGenerate, func(ctx context.Context, msg schemas.Envelope) (*schemas.Envelope, error) {
		return messaging.RespondError("upload a photo first"), nil
	})

	resp := h.post(t, "/api/try-on", `{"productImage":"data:image/png;base64,cA=="}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var ack schemas.Ack
	decodeBody(t, resp, &ack)
	assert.Equal(t, "upload a photo first", ack.Error)
}

func TestResultEndpoint(t *testing.T) {
	h := newUIHarness(t)

	resp := h.get(t, "/api/result")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	h.results.err = nil
	h.results.result = schemas.TryOnResult{
		RequestID:         "req-1",
		GeneratedImageURL: "data:image/png;base64,b3V0",
	}
	resp = h.get(t, "/api/result")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result schemas.TryOnResult
	decodeBody(t, resp, &result)
	assert.Equal(t, "req-1", result.RequestID)
}

func TestWebSocketPush(t *testing.T) {
	h := newUIHarness(t)

	wsURL := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws"
	conn, _, _, err := ws.Dial(context.Background(), wsURL)
	require.NoError(t, err)
	defer conn.Close()

	// The hub registers on construction; give the read loop a beat to be
	// in place, then broadcast through the router like the coordinator
	// does.
	env, err := schemas.NewEnvelope(schemas.MsgProductsUpdated, schemas.ProductsPayload{
		Products: []schemas.ProductMetadata{{ID: "product-1", Name: "Parka"}},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		h.server.hub.mu.Lock()
		defer h.server.hub.mu.Unlock()
		return len(h.server.hub.conns) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, h.router.Publish(context.Background(), env))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	data, err := wsutil.ReadServerText(conn)
	require.NoError(t, err)

	var got schemas.Envelope
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, schemas.MsgProductsUpdated, got.Type)

	var p schemas.ProductsPayload
	require.NoError(t, got.DecodePayload(&p))
	require.Len(t, p.Products, 1)
	assert.Equal(t, "Parka", p.Products[0].Name)
}
