package gemini

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

const endpointFmt = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s"

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
	Temperature      float64 `json:"temperature"`
}

type geminiRequest struct {
	GenerationConfig generationConfig `json:"generationConfig,omitempty"`
	Contents         []content        `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		FinishReason string `json:"finishReason,omitempty"`
		Content      struct {
			Parts []struct {
				Text string `json:"text,omitempty"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Client is the Gemini vision adapter.
type Client struct {
	apiKey     string
	model      string
	http       *http.Client
	maxRetries int
	baseURL    string
}

// NewClient creates a new Gemini vision client.
func NewClient(apiKey, model string, timeout time.Duration, maxRetries int) *Client {
	return &Client{
		apiKey:     apiKey,
		model:      model,
		http:       &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
	}
}

func (c *Client) Name() string  { return "gemini" }
func (c *Client) Model() string { return c.model }

// Analyze sends the encoded chest X-ray and symptoms to generateContent
// and returns the decoded diagnosis payload.
func (c *Client) Analyze(ctx context.Context, imageBase64, symptoms string) (map[string]any, *llm.ProviderError) {
	if c.apiKey == "" {
		return nil, llm.Permanent(c.Name(), "API key not configured", nil)
	}

	reqBody := geminiRequest{
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			Temperature:      0.1,
		},
		Contents: []content{
			{
				Role: "user",
				Parts: []part{
					{Text: llm.BuildPrompt(symptoms)},
					{InlineData: &inlineData{MimeType: "image/jpeg", Data: imageBase64}},
				},
			},
		},
	}

	return llm.Retry(ctx, c.maxRetries, time.Second, func() (map[string]any, *llm.ProviderError) {
		return c.generateContent(ctx, reqBody)
	})
}

func (c *Client) generateContent(ctx context.Context, reqBody geminiRequest) (map[string]any, *llm.ProviderError) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, llm.Permanent(c.Name(), "failed to marshal request", err)
	}

	url := c.baseURL
	if url == "" {
		url = fmt.Sprintf(endpointFmt, c.model, c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, llm.Permanent(c.Name(), "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
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

	var genResp geminiResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return nil, llm.Permanent(c.Name(), "failed to parse response envelope", err)
	}
	if len(genResp.Candidates) == 0 {
		return nil, llm.Permanent(c.Name(), "no candidates in response", nil)
	}

	candidate := genResp.Candidates[0]
	if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "PROHIBITED_CONTENT" {
		return nil, llm.Permanent(c.Name(), "response blocked: "+candidate.FinishReason, nil)
	}

	var text string
	for _, p := range candidate.Content.Parts {
		text += p.Text
	}
	if text == "" {
		return nil, llm.Permanent(c.Name(), "empty response content", nil)
	}
	if parser.IsRefusal(text) {
		return nil, llm.Permanent(c.Name(), "model refused to analyze medical image", nil)
	}

	payload, err := parser.Decode(text)
	if err != nil {
		return nil, llm.Permanent(c.Name(), "malformed JSON in response", err)
	}
	return payload, nil
}
