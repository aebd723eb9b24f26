// Package router owns provider selection and response normalization. It
// walks the configured vision provider chain in order, takes the first
// structurally valid response, and maps it into the canonical diagnosis.
package router

import (
	"context"
	"errors"
	"time"

	"github.com/apex/log"

	"xray-diagnosis-service/config"
	"xray-diagnosis-service/gemini"
	"xray-diagnosis-service/groq"
	"xray-diagnosis-service/imaging"
	"xray-diagnosis-service/llm"
	"xray-diagnosis-service/metrics"
	"xray-diagnosis-service/models"
	"xray-diagnosis-service/openai"
	"xray-diagnosis-service/stubvlm"
)

// ErrAllProvidersUnavailable is returned when every provider in the chain
// failed. The handler maps it to 502.
var ErrAllProvidersUnavailable = errors.New("all_providers_unavailable")

// ErrFastModeUnavailable is returned when fast mode is requested but no
// classifier endpoint is configured. Fast mode never falls back to the
// VLM chain; the caller asked for the fine-tuned model specifically.
var ErrFastModeUnavailable = errors.New("fast_mode_unavailable")

// Router dispatches analysis requests to vision providers.
type Router struct {
	adapters map[string]llm.VisionProvider
	order    []string
	fast     llm.VisionProvider
	timeout  time.Duration
	rec      *metrics.Recorder
	encode   func(path string) (string, error)
}

// New builds a router from configuration. Providers without credentials
// are left unregistered; requesting them in the order just logs a skip.
func New(cfg *config.Config, fast llm.VisionProvider, rec *metrics.Recorder) *Router {
	adapters := map[string]llm.VisionProvider{
		"stub": stubvlm.NewClient(),
	}
	if cfg.OpenAIAPIKey != "" {
		adapters["openai"] = openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.ProviderTimeout, cfg.MaxRetries)
	}
	if cfg.GeminiAPIKey != "" {
		adapters["gemini"] = gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.ProviderTimeout, cfg.MaxRetries)
	}
	if cfg.GroqAPIKey != "" {
		adapters["groq"] = groq.NewClient(cfg.GroqAPIKey, cfg.GroqVisionModel, cfg.ProviderTimeout, cfg.MaxRetries)
	}

	// An order naming no known provider would leave an unusable chain;
	// substitute the default rather than failing every request.
	order := cfg.VisionProviderOrder
	known := map[string]bool{"openai": true, "gemini": true, "groq": true, "stub": true}
	usable := false
	for _, id := range order {
		if known[id] {
			usable = true
			break
		}
	}
	if !usable {
		if len(order) > 0 {
			log.WithField("order", order).Warn("no known provider in configured order, using default")
		}
		order = []string{"openai", "gemini"}
	}

	maxDim, quality := cfg.MaxImageDimension, cfg.JPEGQuality
	return &Router{
		adapters: adapters,
		order:    order,
		fast:     fast,
		timeout:  cfg.ProviderTimeout,
		rec:      rec,
		encode: func(path string) (string, error) {
			return imaging.PrepareForProviders(path, maxDim, quality)
		},
	}
}

// NewWithProviders builds a router over explicit adapters. Used by tests
// and by callers that manage adapter construction themselves.
func NewWithProviders(order []string, adapters map[string]llm.VisionProvider, fast llm.VisionProvider, timeout time.Duration, rec *metrics.Recorder) *Router {
	return &Router{
		adapters: adapters,
		order:    order,
		fast:     fast,
		timeout:  timeout,
		rec:      rec,
		encode: func(path string) (string, error) {
			return imaging.PrepareForProviders(path, 1024, 85)
		},
	}
}

// Providers returns the configured chain with availability flags, for the
// status endpoint. Key material never leaves the adapters.
func (r *Router) Providers() []map[string]any {
	out := make([]map[string]any, 0, len(r.order))
	for _, id := range r.order {
		_, ok := r.adapters[id]
		out = append(out, map[string]any{
			"provider":   id,
			"configured": ok,
		})
	}
	return out
}

// Analyze encodes the image once, then walks the provider chain until a
// provider returns a structurally valid payload. In fast mode only the
// fine-tuned classifier is consulted.
func (r *Router) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.NormalizedDiagnosis, error) {
	imageBase64, err := r.encode(req.ImagePath)
	if err != nil {
		return nil, err
	}

	if req.Mode == models.ModeFast {
		return r.analyzeFast(ctx, imageBase64, req.Symptoms)
	}
	return r.analyzeChain(ctx, imageBase64, req.Symptoms)
}

func (r *Router) analyzeFast(ctx context.Context, imageBase64, symptoms string) (*models.NormalizedDiagnosis, error) {
	if r.fast == nil {
		log.Warn("fast mode requested but no classifier is configured")
		return nil, ErrFastModeUnavailable
	}
	payload, perr := r.attempt(ctx, r.fast, imageBase64, symptoms)
	if perr != nil {
		return nil, ErrAllProvidersUnavailable
	}
	return Normalize(payload, r.fast.Name(), r.fast.Model()), nil
}

func (r *Router) analyzeChain(ctx context.Context, imageBase64, symptoms string) (*models.NormalizedDiagnosis, error) {
	attempted := 0
	for _, id := range r.order {
		adapter, ok := r.adapters[id]
		if !ok {
			log.WithField("provider", id).Warn("skipping unknown or unconfigured provider")
			continue
		}
		attempted++

		payload, perr := r.attempt(ctx, adapter, imageBase64, symptoms)
		if perr != nil {
			log.WithFields(log.Fields{
				"provider": adapter.Name(),
				"kind":     string(perr.Kind),
				"reason":   perr.Reason,
			}).Warn("provider failed, advancing to next in chain")
			continue
		}
		return Normalize(payload, adapter.Name(), adapter.Model()), nil
	}

	if attempted == 0 {
		log.Error("no configured providers in the vision chain")
	}
	return nil, ErrAllProvidersUnavailable
}

func (r *Router) attempt(ctx context.Context, p llm.VisionProvider, imageBase64, symptoms string) (map[string]any, *llm.ProviderError) {
	actx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	payload, perr := p.Analyze(actx, imageBase64, symptoms)
	elapsed := time.Since(start)

	result := "success"
	if perr != nil {
		result = string(perr.Kind)
	}
	r.rec.ProviderAttempt(p.Name(), result, elapsed)
	log.WithFields(log.Fields{
		"provider":    p.Name(),
		"model":       p.Model(),
		"result":      result,
		"duration_ms": elapsed.Milliseconds(),
	}).Info("vision provider attempt")

	return payload, perr
}
