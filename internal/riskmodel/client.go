package riskmodel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/castlemilk/dietplanner/internal/classifier"
	"github.com/castlemilk/dietplanner/internal/clinical"
	"github.com/castlemilk/dietplanner/internal/retry"
)

// ErrUnavailable is returned when the model service cannot be reached.
var ErrUnavailable = errors.New("model service unavailable")

// Client calls a remote model-serving endpoint.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config
}

// NewClient creates a new model service client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		retryConfig: retry.DefaultModelConfig,
	}
}

// PredictRequest carries the features in model order.
type PredictRequest struct {
	FeatureNames []string  `json:"feature_names"`
	Features     []float64 `json:"features"`
}

// PredictResponse is the service's answer. Label takes precedence; a bare
// 0/1 Prediction is accepted from simpler servers.
type PredictResponse struct {
	Label       string   `json:"label"`
	Prediction  *int     `json:"prediction,omitempty"`
	Probability *float64 `json:"probability,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Version     string `json:"version"`
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("model service: status %d, body: %s", e.status, e.body)
}

func (e *statusError) IsRetryable() bool {
	return e.status >= http.StatusInternalServerError || e.status == http.StatusTooManyRequests
}

// HealthCheck checks if the model service is healthy.
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
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
		return nil, &statusError{status: resp.StatusCode, body: string(body)}
	}
	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &health, nil
}

// Ready reports whether the model service is healthy and has a model loaded.
func (c *Client) Ready(ctx context.Context) error {
	health, err := c.HealthCheck(ctx)
	if err != nil {
		return err
	}
	switch strings.ToLower(health.Status) {
	case "healthy", "ok":
	default:
		return fmt.Errorf("model service unhealthy: %s", health.Status)
	}
	if !health.ModelLoaded {
		return errors.New("model service has no model loaded")
	}
	return nil
}

// Predict implements classifier.RiskModel.
func (c *Client) Predict(ctx context.Context, rec clinical.FeatureRecord) (classifier.RiskLabel, error) {
	vec, ok := rec.Vector()
	if !ok {
		return "", fmt.Errorf("%w: record is incomplete", ErrShapeMismatch)
	}
	names := make([]string, len(clinical.Fields))
	for i, f := range clinical.Fields {
		names[i] = string(f)
	}
	payload, err := json.Marshal(PredictRequest{FeatureNames: names, Features: vec})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	resp, err := retry.Do(ctx, c.retryConfig, func(ctx context.Context) (*PredictResponse, error) {
		return c.predictOnce(ctx, payload)
	})
	if err != nil {
		return "", err
	}
	return resp.label()
}

func (c *Client) predictOnce(ctx context.Context, payload []byte) (*PredictResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{status: resp.StatusCode, body: truncate(string(body), 256)}
	}

	var out PredictResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func (r *PredictResponse) label() (classifier.RiskLabel, error) {
	switch {
	case r.Label != "":
		l := classifier.RiskLabel(r.Label)
		if !l.Valid() {
			return "", fmt.Errorf("model service returned label %q", r.Label)
		}
		return l, nil
	case r.Prediction != nil && *r.Prediction == 0:
		return classifier.RiskNormal, nil
	case r.Prediction != nil && *r.Prediction == 1:
		return classifier.RiskAbnormal, nil
	}
	return "", errors.New("model service returned no prediction")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
