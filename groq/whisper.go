package groq

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"xray-diagnosis-service/llm"
)

const transcriptionEndpoint = "https://api.groq.com/openai/v1/audio/transcriptions"

// Whisper is the Groq speech-to-text adapter (whisper-large-v3).
type Whisper struct {
	apiKey   string
	model    string
	client   *http.Client
	endpoint string
}

// NewWhisper creates a new Groq transcription client.
func NewWhisper(apiKey, model string, timeout time.Duration) *Whisper {
	return &Whisper{
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: timeout},
		endpoint: transcriptionEndpoint,
	}
}

func (w *Whisper) Name() string { return "groq" }

// Transcribe uploads the audio bytes and returns plain transcript text.
func (w *Whisper) Transcribe(ctx context.Context, audio []byte, fileName, mimeType string) (string, *llm.ProviderError) {
	if w.apiKey == "" {
		return "", llm.Permanent(w.Name(), "API key not configured", nil)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return "", llm.Permanent(w.Name(), "failed to build form", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", llm.Permanent(w.Name(), "failed to write audio payload", err)
	}
	_ = mw.WriteField("model", w.model)
	_ = mw.WriteField("language", "en")
	_ = mw.WriteField("response_format", "text")
	if err := mw.Close(); err != nil {
		return "", llm.Permanent(w.Name(), "failed to finalize form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, &buf)
	if err != nil {
		return "", llm.Permanent(w.Name(), "failed to create request", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.client.Do(req)
	if err != nil {
		return "", llm.Transient(w.Name(), "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", llm.Transient(w.Name(), "failed to read response body", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", llm.Transient(w.Name(), fmt.Sprintf("API error (status %d)", resp.StatusCode), nil)
	default:
		return "", llm.Permanent(w.Name(), fmt.Sprintf("API error (status %d)", resp.StatusCode), nil)
	}

	return strings.TrimSpace(string(body)), nil
}
