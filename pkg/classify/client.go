package classify

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
)

// ErrUnavailable is returned when the model runner cannot be reached or
// reports that no model is loaded.
var ErrUnavailable = errors.New("model runner unavailable")

// Client talks to the model runner over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a runner client with sane defaults.
func NewClient(baseURL string) *Client {
	trimmed := strings.TrimSuffix(baseURL, "/")
	return &Client{
		baseURL: trimmed,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// PredictRequest is the payload posted to the runner.
type PredictRequest struct {
	Image     []float32 `json:"image"`
	ImageSize int       `json:"image_size"`
}

// PredictResponse carries one probability per label, in label order.
type PredictResponse struct {
	Probabilities []float32 `json:"probabilities"`
}

// Predict runs the classifier on a preprocessed image tensor.
func (c *Client) Predict(ctx context.Context, tensor []float32, size int) ([]float32, error) {
	body, err := json.Marshal(PredictRequest{Image: tensor, ImageSize: size})
	if err != nil {
		return nil, fmt.Errorf("marshal predict request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/predict", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create predict request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, ErrUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("predict failed: %s", strings.TrimSpace(string(payload)))
	}

	var out PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode predict response: %w", err)
	}
	if len(out.Probabilities) != len(Labels) {
		return nil, fmt.Errorf("runner returned %d probabilities, expected %d", len(out.Probabilities), len(Labels))
	}
	return out.Probabilities, nil
}

// Ready reports whether the runner is up and has a model loaded.
func (c *Client) Ready(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/healthz", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ErrUnavailable
	}
	return nil
}
