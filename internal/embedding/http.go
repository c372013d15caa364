package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/lookalike/internal/apperr"
)

const (
	// EndpointPath is appended to the configured base URL.
	EndpointPath = "/generate-embedding"
	// UploadField is the multipart field the embedding service reads the image from.
	UploadField = "file"

	maxResponseBytes = 16 << 20
	maxErrorSnippet  = 512
	defaultFilename  = "image"
)

// HTTPClient calls an embedding service that accepts a multipart image upload and
// answers with {"embedding": [numbers]}.
type HTTPClient struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewHTTPClient creates a client for the service at baseURL. timeout bounds each call;
// zero means the caller's context is the only limit.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		endpoint:   strings.TrimRight(baseURL, "/") + EndpointPath,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Endpoint returns the full URL requests are posted to.
func (c *HTTPClient) Endpoint() string {
	return c.endpoint
}

// Embed uploads image and returns the vector from the response.
func (c *HTTPClient) Embed(ctx context.Context, image []byte, filename string) ([]float32, error) {
	if len(image) == 0 {
		return nil, apperr.ErrNoInputProvided
	}
	if filename == "" {
		filename = defaultFilename
	}

	body, contentType, err := encodeUpload(image, filename)
	if err != nil {
		return nil, fmt.Errorf("encode upload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorSnippet))
		c.logger.Warn("embedding service returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", strings.TrimSpace(string(snippet))))
		return nil, fmt.Errorf("%w: status %d", apperr.ErrUpstreamUnavailable, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	if len(raw) > maxResponseBytes {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", apperr.ErrInvalidUpstreamResponse, maxResponseBytes)
	}
	return decodeEmbedding(raw)
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func encodeUpload(image []byte, filename string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, UploadField, filepath.Base(filename)))
	h.Set("Content-Type", guessContentType(filename, image))
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// guessContentType prefers the filename extension and falls back to sniffing the bytes.
func guessContentType(filename string, data []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}

func decodeEmbedding(raw []byte) ([]float32, error) {
	var resp embeddingResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidUpstreamResponse, err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: missing or empty embedding", apperr.ErrInvalidUpstreamResponse)
	}
	vec := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		f := float32(v)
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return nil, fmt.Errorf("%w: non-finite value at index %d", apperr.ErrInvalidUpstreamResponse, i)
		}
		vec[i] = f
	}
	return vec, nil
}

func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("embedding request: %w", context.Canceled)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", apperr.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", apperr.ErrUpstreamUnavailable, err)
}
