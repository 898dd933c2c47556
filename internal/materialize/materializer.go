package materialize

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/veyralabs/fitlens/api/schemas"
)

// ErrInvalidDataURI reports a data: input whose header/payload split is
// malformed.
var ErrInvalidDataURI = errors.New("materialize: invalid data URI")

const (
	// defaultDataURIMime is assumed for data URIs with no explicit type.
	defaultDataURIMime = "image/png"
	// defaultFetchMime is assumed for fetched bodies with no Content-Type.
	defaultFetchMime = "image/jpeg"
)

// Materializer converts a fetchable image reference into a self-contained
// inline representation. Fetches run with the capturing page's cookie
// context so protected product CDNs behave as they do for the page itself.
type Materializer struct {
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// New builds a Materializer around the given HTTP client; a nil client gets
// a plain default. The timeout bounds every fetch as a per-request deadline,
// so it applies even when the caller shares a client without one.
func New(client *http.Client, timeout time.Duration, logger *zap.Logger) *Materializer {
	if client == nil {
		client = &http.Client{}
	}
	return &Materializer{
		client:  client,
		timeout: timeout,
		logger:  logger.Named("materializer"),
	}
}

// Materialize inlines resource: data URIs pass through parsed but
// unchanged; anything else is fetched and base64 encoded. Failures
// propagate; the capture session treats them as a non-fatal capture error.
func (m *Materializer) Materialize(ctx context.Context, resource string) (schemas.InlineImage, error) {
	if strings.HasPrefix(resource, "data:") {
		return ParseDataURI(resource)
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resource, nil)
	if err != nil {
		return schemas.InlineImage{}, fmt.Errorf("materialize: build request for %s: %w", resource, err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return schemas.InlineImage{}, fmt.Errorf("materialize: fetch %s: %w", resource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return schemas.InlineImage{}, fmt.Errorf("materialize: fetch %s: status %d %s", resource, resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return schemas.InlineImage{}, fmt.Errorf("materialize: read body of %s: %w", resource, err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = defaultFetchMime
	}
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}

	m.logger.Debug("Image materialized",
		zap.String("url", resource),
		zap.Int("bytes", len(body)),
		zap.String("mime_type", mimeType),
	)

	return schemas.InlineImage{
		MimeType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(body),
	}, nil
}

// ParseDataURI splits an inline data URI into mime type and base64 payload.
// The mime type comes from the header segment before the first comma. Base64
// payloads pass through byte for byte; plain payloads (an inline SVG, say)
// are percent-decoded and base64 encoded here.
func ParseDataURI(dataURI string) (schemas.InlineImage, error) {
	if !strings.HasPrefix(dataURI, "data:") {
		return schemas.InlineImage{}, fmt.Errorf("%w: missing data: prefix", ErrInvalidDataURI)
	}

	header, payload, ok := strings.Cut(dataURI, ",")
	if !ok || payload == "" {
		return schemas.InlineImage{}, fmt.Errorf("%w: missing payload", ErrInvalidDataURI)
	}

	meta := strings.TrimPrefix(header, "data:")
	if strings.HasSuffix(meta, ";base64") {
		mimeType := strings.TrimSuffix(meta, ";base64")
		if mimeType == "" {
			mimeType = defaultDataURIMime
		}
		return schemas.InlineImage{MimeType: mimeType, Data: payload}, nil
	}

	decoded, err := url.PathUnescape(payload)
	if err != nil {
		decoded = payload
	}
	mimeType := meta
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	if mimeType == "" {
		mimeType = defaultDataURIMime
	}
	return schemas.InlineImage{
		MimeType: mimeType,
		Data:     base64.StdEncoding.EncodeToString([]byte(decoded)),
	}, nil
}
