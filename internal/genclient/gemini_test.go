package genclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veyralabs/fitlens/api/schemas"
	"github.com/veyralabs/fitlens/internal/config"
)

// setupGeminiClient rigs up a GeminiClient pointed at a mock HTTP server.
func setupGeminiClient(t *testing.T, handler http.HandlerFunc) *GeminiClient {
	t.Helper()
	if handler == nil {
		handler = func(w http.ResponseWriter, r *http.Request) {
			t.Log("Warning: Unexpected HTTP request in test.")
			w.WriteHeader(http.StatusNotFound)
		}
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.TryOnConfig{
		APIKey:     "test-key",
		Model:      "gemini-2.5-flash-image",
		Endpoint:   server.URL,
		APITimeout: 5 * time.Second,
	}
	client, err := NewGeminiClient(cfg, zap.NewNop())
	require.NoError(t, err)
	return client
}

func testImages() (schemas.InlineImage, schemas.InlineImage) {
	user := schemas.InlineImage{MimeType: "image/jpeg", Data: "dXNlcg=="}
	product := schemas.InlineImage{MimeType: "image/png", Data: "cHJvZHVjdA=="}
	return user, product
}

func imageResponse(mime, data string) string {
	return `{"candidates":[{"content":{"parts":[` +
		`{"text":"Here is your try-on."},` +
		`{"inlineData":{"mimeType":"` + mime + `","data":"` + data + `"}}` +
		`]},"finishReason":"STOP"}]}`
}

func TestNewGeminiClient_RequiresAPIKey(t *testing.T) {
	_, err := NewGeminiClient(config.TryOnConfig{Model: "gemini-2.5-flash-image"}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API Key")
}

func TestNewGeminiClient_DefaultEndpoint(t *testing.T) {
	client, err := NewGeminiClient(config.TryOnConfig{
		APIKey: "k",
		Model:  "gemini-2.5-flash-image",
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t,
		"https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-flash-image:generateContent",
		client.endpoint)
	assert.Equal(t, config.DefaultTryOnPrompt, client.prompt)
}

func TestGenerateTryOn_Success(t *testing.T) {
	var captured geminiRequestPayload
	client := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(imageResponse("image/png", "Z2VuZXJhdGVk")))
	})

	user, product := testImages()
	got, err := client.GenerateTryOn(context.Background(), user, product)
	require.NoError(t, err)
	assert.Equal(t, schemas.InlineImage{MimeType: "image/png", Data: "Z2VuZXJhdGVk"}, got)

	// The request carries the prompt text followed by both images.
	require.Len(t, captured.Contents, 1)
	parts := captured.Contents[0].Parts
	require.Len(t, parts, 3)
	assert.Equal(t, config.DefaultTryOnPrompt, parts[0].Text)
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, user.Data, parts[1].InlineData.Data)
	require.NotNil(t, parts[2].InlineData)
	assert.Equal(t, product.Data, parts[2].InlineData.Data)
}

func TestGenerateTryOn_SkipsTextOnlyParts(t *testing.T) {
	client := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(imageResponse("image/jpeg", "aW1n")))
	})

	user, product := testImages()
	got, err := client.GenerateTryOn(context.Background(), user, product)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", got.MimeType)
	assert.Equal(t, "aW1n", got.Data)
}

func TestGenerateTryOn_APIError(t *testing.T) {
	client := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	})

	user, product := testImages()
	_, err := client.GenerateTryOn(context.Background(), user, product)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestGenerateTryOn_NoCandidates(t *testing.T) {
	client := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	})

	user, product := testImages()
	_, err := client.GenerateTryOn(context.Background(), user, product)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candidates")
}

func TestGenerateTryOn_SafetyBlocked(t *testing.T) {
	client := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`))
	})

	user, product := testImages()
	_, err := client.GenerateTryOn(context.Background(), user, product)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestGenerateTryOn_NoImageParts(t *testing.T) {
	client := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"sorry"}]},"finishReason":"STOP"}]}`))
	})

	user, product := testImages()
	_, err := client.GenerateTryOn(context.Background(), user, product)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no image parts")
}
