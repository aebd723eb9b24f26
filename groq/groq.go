package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"xray-diagnosis-service/llm"
	"xray-diagnosis-service/parser"
)

// Groq exposes an OpenAI-compatible chat completions API, so the vision
// request shape mirrors the OpenAI adapter with a different host.
const chatEndpoint = "https://api.groq.com/openai/v1/chat/completions"

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type imageURL struct {
	URL string `json:"url"`
}

type imageContent struct {
	Type     string   `json:"type"`
	ImageURL imageURL `json:"image_url"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Client is the Groq vision adapter.
type Client struct {
	apiKey     string
	model      string
	client     *http.Client
	maxRetries int
	endpoint   string
}

// NewClient creates a new Groq vision client.
func NewClient(apiKey, model string, timeout time.Duration, maxRetries int) *Client {
	return &Client{
		apiKey:     apiKey,
		model:      model,
		client:     &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		endpoint:   chatEndpoint,
	}
}

func (c *Client) Name() string  { return "groq" }
func (c *Client) Model() string { return c.model }

// Analyze sends the encoded chest X-ray and symptoms to the Groq vision
// endpoint and returns the decoded diagnosis payload.
func (c *Client) Analyze(ctx context.Context, imageBase64, symptoms string) (map[string]any, *llm.ProviderError) {
	if c.apiKey == "" {
		return nil, llm.Permanent(c.Name(), "API key not configured", nil)
	}

	reqBody := chatRequest{
		Model:       c.model,
		Temperature: 0.1,
		MaxTokens:   4096,
		Messages: []message{
			{
				Role: "user",
				Content: []any{
					textContent{Type: "text", Text: llm.BuildPrompt(symptoms)},
					imageContent{
						Type:     "image_url",
						ImageURL: imageURL{URL: "data:image/jpeg;base64," + imageBase64},
					},
				},
			},
		},
	}

	return llm.Retry(ctx, c.maxRetries, time.Second, func() (map[string]any, *llm.ProviderError) {
		return c.call(ctx, reqBody)
	})
}

func (c *Client) call(ctx context.Context, reqBody chatRequest) (map[string]any, *llm.ProviderError) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, llm.Permanent(c.Name(), "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, llm.Permanent(c.Name(), "failed to create request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
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
		return nil, llm.Transient(c.Name(), fmt.Sprintf("API error (status %d)", resp.StatusCode), nil)
	default:
		return nil, llm.Permanent(c.Name(), fmt.Sprintf("API error (status %d)", resp.StatusCode), nil)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, llm.Permanent(c.Name(), "failed to parse response envelope", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, llm.Permanent(c.Name(), "no choices in response", nil)
	}

	choice := chatResp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return nil, llm.Permanent(c.Name(), "response blocked by content filter", nil)
	}
	if choice.Message.Content == "" {
		return nil, llm.Permanent(c.Name(), "empty response content", nil)
	}
	if parser.IsRefusal(choice.Message.Content) {
		return nil, llm.Permanent(c.Name(), "model refused to analyze medical image", nil)
	}

	payload, err := parser.Decode(choice.Message.Content)
	if err != nil {
		return nil, llm.Permanent(c.Name(), "malformed JSON in response", err)
	}
	return payload, nil
}
