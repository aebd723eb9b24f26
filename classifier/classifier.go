// Package classifier talks to the fine-tuned pneumonia detection model.
// The model artifact itself is served by a separate inference endpoint;
// this service only consumes predictions.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"xray-diagnosis-service/llm"
	"xray-diagnosis-service/models"
)

// Client calls the classifier inference endpoint.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a classifier client for the given inference base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string  { return "classifier" }
func (c *Client) Model() string { return "vit-medical-xray-lora" }

// Predict sends the encoded image for binary NORMAL/PNEUMONIA inference.
func (c *Client) Predict(ctx context.Context, imageBase64 string) (*models.ClassifierResult, *llm.ProviderError) {
	if c.baseURL == "" {
		return nil, llm.Permanent(c.Name(), "inference endpoint not configured", nil)
	}

	reqBody, err := json.Marshal(map[string]string{"image": imageBase64})
	if err != nil {
		return nil, llm.Permanent(c.Name(), "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, llm.Permanent(c.Name(), "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, llm.Transient(c.Name(), "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.Transient(c.Name(), "failed to read response body", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, llm.Transient(c.Name(), fmt.Sprintf("inference error (status %d)", resp.StatusCode), nil)
	default:
		return nil, llm.Permanent(c.Name(), fmt.Sprintf("inference error (status %d)", resp.StatusCode), nil)
	}

	var result models.ClassifierResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, llm.Permanent(c.Name(), "malformed inference response", err)
	}
	if result.Prediction != "NORMAL" && result.Prediction != "PNEUMONIA" {
		return nil, llm.Permanent(c.Name(), "unexpected prediction label: "+result.Prediction, nil)
	}
	return &result, nil
}

// Analyze adapts the classifier to the VisionProvider contract so fast
// mode flows through the same normalization path as the VLM chain.
func (c *Client) Analyze(ctx context.Context, imageBase64, _ string) (map[string]any, *llm.ProviderError) {
	result, perr := c.Predict(ctx, imageBase64)
	if perr != nil {
		return nil, perr
	}
	return map[string]any{
		"prediction":    result.Prediction,
		"confidence":    result.Confidence,
		"probabilities": result.Probabilities,
	}, nil
}
