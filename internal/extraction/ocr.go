package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder for DecodeConfig
	_ "image/png"  // register decoder for DecodeConfig
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/castlemilk/dietplanner/internal/retry"
)

// OCRUnavailableText is returned as the document text when an image cannot be
// recognised. Downstream stages treat it as ordinary, non-clinical text.
const OCRUnavailableText = "Image OCR is not supported in this deployment environment.\n" +
	"Please upload PDF / TXT / CSV files or paste text manually."

// ErrUnavailable is returned when the OCR service cannot be reached.
var ErrUnavailable = errors.New("ocr service unavailable")

// OCR turns image bytes into text.
type OCR interface {
	Recognize(ctx context.Context, data []byte, filename string) (string, error)
}

// OCRClient is an HTTP client for an external OCR worker.
type OCRClient struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config
}

// NewOCRClient creates a new OCR service client.
func NewOCRClient(baseURL string, timeout time.Duration) *OCRClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OCRClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		retryConfig: retry.DefaultOCRConfig,
	}
}

// OCRResponse is the worker's recognition result.
type OCRResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
	Engine     string  `json:"engine,omitempty"`
}

// OCRHealthResponse represents the health check response.
type OCRHealthResponse struct {
	Status  string `json:"status"`
	Engine  string `json:"engine"`
	Version string `json:"version"`
}

// HealthCheck checks if the OCR service is healthy.
func (c *OCRClient) HealthCheck(ctx context.Context) (*OCRHealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("health check failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var health OCRHealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &health, nil
}

// Ready reports whether the OCR worker is reachable and healthy.
func (c *OCRClient) Ready(ctx context.Context) error {
	health, err := c.HealthCheck(ctx)
	if err != nil {
		return err
	}
	if !healthyStatus(health.Status) {
		return fmt.Errorf("ocr service unhealthy: %s", health.Status)
	}
	return nil
}

func healthyStatus(status string) bool {
	switch strings.ToLower(status) {
	case "healthy", "ok":
		return true
	}
	return false
}

// Recognize sends an image to the OCR worker. Transport failures and 5xx
// responses are retried.
func (c *OCRClient) Recognize(ctx context.Context, data []byte, filename string) (string, error) {
	return retry.Do(ctx, c.retryConfig, func(ctx context.Context) (string, error) {
		return c.recognizeOnce(ctx, data, filename)
	})
}

func (c *OCRClient) recognizeOnce(ctx context.Context, data []byte, filename string) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write file data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ocr", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ExtractionError{
			Code:      ErrOCRUnavailable,
			Message:   "ocr request failed",
			Format:    FormatImage,
			Retryable: true,
			Cause:     fmt.Errorf("%w: %w", ErrUnavailable, err),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &ExtractionError{
			Code:      ErrOCRUnavailable,
			Message:   fmt.Sprintf("ocr failed: status %d, body: %s", resp.StatusCode, truncate(string(body), 256)),
			Format:    FormatImage,
			Retryable: resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests,
			Cause:     ErrUnavailable,
		}
	}

	var result OCRResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &ExtractionError{
			Code:    ErrOCRUnavailable,
			Message: "decode ocr response",
			Format:  FormatImage,
			Cause:   err,
		}
	}
	return result.Text, nil
}

// validateImage checks that data carries a PNG or JPEG header.
func validateImage(data []byte) (string, error) {
	_, kind, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	return kind, nil
}

func (e *Extractor) extractImage(ctx context.Context, doc Document) (*Extraction, error) {
	if _, err := validateImage(doc.Data); err != nil {
		return nil, newError(ErrCorruptDocument, FormatImage, "unreadable image", err)
	}

	out := &Extraction{Format: FormatImage, PageCount: 1}
	if e.ocr == nil {
		out.Text = OCRUnavailableText
		out.addDiagnostic("OCR is not configured; returned placeholder text")
		return out, nil
	}

	text, err := e.ocr.Recognize(ctx, doc.Data, doc.Name)
	if err != nil {
		e.logger.Warn("ocr failed, using placeholder text",
			zap.String("document", doc.Name), zap.Error(err))
		out.Text = OCRUnavailableText
		out.addDiagnostic("OCR failed; returned placeholder text")
		return out, nil
	}

	out.Text = strings.TrimSpace(text)
	if out.Text == "" {
		out.addDiagnostic("OCR returned no text")
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
