package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FailureKind classifies provider failures so the router can make an
// explicit fallback decision instead of interpreting exception types.
type FailureKind string

const (
	// FailureTransient covers rate limits, 5xx responses and timeouts.
	// Adapters retry these locally with bounded backoff.
	FailureTransient FailureKind = "transient"
	// FailurePermanent covers auth failures, malformed responses,
	// explicit refusals and content-filter blocks. Never retried.
	FailurePermanent FailureKind = "permanent"
)

// ProviderError is the typed failure returned by vision adapters.
type ProviderError struct {
	Provider string
	Kind     FailureKind
	Reason   string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient creates a retryable provider error.
func Transient(provider, reason string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: FailureTransient, Reason: reason, Err: err}
}

// Permanent creates a non-retryable provider error.
func Permanent(provider, reason string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: FailurePermanent, Reason: reason, Err: err}
}

// IsTransient reports whether err is a transient provider failure.
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == FailureTransient
}

// VisionProvider abstracts a single external vision backend.
// Implementations must be concurrency-safe; they receive the image
// already resized and base64-encoded so the encode cost is paid once
// per request, not once per attempt.
type VisionProvider interface {
	// Name returns the provider identifier used in configuration and telemetry.
	Name() string
	// Model returns the model identifier the adapter invokes.
	Model() string
	// Analyze sends the encoded image and symptom text to the backend and
	// returns the decoded JSON payload, or a typed ProviderError.
	Analyze(ctx context.Context, imageBase64, symptoms string) (map[string]any, *ProviderError)
}

// Transcriber abstracts a single speech-to-text backend.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte, fileName, mimeType string) (string, *ProviderError)
}

// Retry runs fn up to attempts times, backing off on transient failures.
// The delay grows with the attempt index (base, 2*base, 3*base, ...).
// Permanent failures abort immediately.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func() (map[string]any, *ProviderError)) (map[string]any, *ProviderError) {
	if attempts < 1 {
		attempts = 1
	}
	var last *ProviderError
	for i := 1; i <= attempts; i++ {
		payload, err := fn()
		if err == nil {
			return payload, nil
		}
		if err.Kind != FailureTransient {
			return nil, err
		}
		last = err
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, Transient(err.Provider, "context cancelled during backoff", ctx.Err())
		case <-time.After(time.Duration(i) * base):
		}
	}
	return nil, last
}
