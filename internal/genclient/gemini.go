// Package genclient talks to the Gemini image generation API. It sends a
// single multimodal request (prompt text, user photo, product image) and
// returns the first generated image part.
package genclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/veyralabs/fitlens/api/schemas"
	"github.com/veyralabs/fitlens/internal/config"
)

// GeminiClient calls the generateContent endpoint of an image-capable
// Gemini model. Requests are single-shot: a failed generation surfaces to
// the caller, who decides whether to ask again.
type GeminiClient struct {
	apiKey     string
	endpoint   string
	prompt     string
	httpClient *http.Client
	logger     *zap.Logger
}

// -- Gemini API Request/Response Structures (Internal to this file) --

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiRequestPayload struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponsePayload struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// NewGeminiClient initializes the client from the try-on configuration.
func NewGeminiClient(cfg config.TryOnConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", cfg.Model)
	}

	prompt := cfg.Prompt
	if prompt == "" {
		prompt = config.DefaultTryOnPrompt
	}

	return &GeminiClient{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		prompt:   prompt,
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		logger: logger.Named("genclient.gemini"),
	}, nil
}

// GenerateTryOn composes the user photo onto the product image and returns
// the generated image.
func (c *GeminiClient) GenerateTryOn(ctx context.Context, userPhoto, product schemas.InlineImage) (schemas.InlineImage, error) {
	payload := geminiRequestPayload{
		Contents: []geminiContent{
			{
				Role: "user",
				Parts: []geminiPart{
					{Text: c.prompt},
					{InlineData: &geminiInlineData{MimeType: userPhoto.MimeType, Data: userPhoto.Data}},
					{InlineData: &geminiInlineData{MimeType: product.MimeType, Data: product.Data}},
				},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return schemas.InlineImage{}, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(body))
	if err != nil {
		return schemas.InlineImage{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	duration := time.Since(startTime)
	if err != nil {
		return schemas.InlineImage{}, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return schemas.InlineImage{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Gemini API returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("response", string(respBody)),
		)
		return schemas.InlineImage{}, fmt.Errorf("gemini API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var responsePayload geminiResponsePayload
	if err := json.Unmarshal(respBody, &responsePayload); err != nil {
		return schemas.InlineImage{}, fmt.Errorf("failed to decode response payload: %w", err)
	}

	if len(responsePayload.Candidates) == 0 {
		return schemas.InlineImage{}, fmt.Errorf("gemini API returned no candidates")
	}

	candidate := responsePayload.Candidates[0]
	if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "BLOCKLIST" {
		return schemas.InlineImage{}, fmt.Errorf("gemini API blocked the request (Reason: %s)", candidate.FinishReason)
	}

	for _, part := range candidate.Content.Parts {
		if part.InlineData != nil && part.InlineData.Data != "" {
			c.logger.Info("Try-on generation complete (Gemini)",
				zap.Duration("duration", duration),
				zap.Int("prompt_tokens", responsePayload.UsageMetadata.PromptTokenCount),
				zap.Int("total_tokens", responsePayload.UsageMetadata.TotalTokenCount),
			)
			return schemas.InlineImage{
				MimeType: part.InlineData.MimeType,
				Data:     part.InlineData.Data,
			}, nil
		}
	}

	return schemas.InlineImage{}, fmt.Errorf("gemini API returned no image parts (Reason: %s)", candidate.FinishReason)
}
