// Package transcriber runs the audio transcription fallback chain and
// distills spoken descriptions into concise symptom text for the vision
// prompt.
package transcriber

import (
	"context"
	"errors"
	"strings"

	"github.com/apex/log"

	"xray-diagnosis-service/config"
	"xray-diagnosis-service/groq"
	"xray-diagnosis-service/llm"
	"xray-diagnosis-service/metrics"
	"xray-diagnosis-service/models"
	"xray-diagnosis-service/openai"
)

// ErrAllTranscribersUnavailable is returned when every backend in the
// audio chain failed.
var ErrAllTranscribersUnavailable = errors.New("all_transcribers_unavailable")

const (
	// verbatimLimit bounds the transcript excerpt used when no symptom
	// keywords are found.
	verbatimLimit = 200
	// symptomLimit bounds the extracted symptom text handed to the
	// vision prompt.
	symptomLimit = 300
)

// symptomKeywords mark sentences worth keeping from a spoken description.
var symptomKeywords = []string{
	"pain", "ache", "hurt", "sore", "cough", "breath", "breathing",
	"wheez", "fever", "chill", "fatigue", "tired", "dizzy", "nausea",
	"chest", "lung", "throat", "swelling", "pressure", "tight",
	"symptom", "sick", "congestion", "phlegm", "mucus", "sweat",
}

// leading first-person framings stripped from extracted sentences.
var leadPhrases = []string{
	"i am experiencing", "i'm experiencing", "i have been having",
	"i have", "i've been having", "i've had", "i feel", "i am feeling",
	"i'm feeling",
}

// Service walks the configured transcription chain in order.
type Service struct {
	order    []string
	adapters map[string]llm.Transcriber
	rec      *metrics.Recorder
}

// New builds the chain from configuration. Backends without credentials
// are left unregistered and skipped at call time.
func New(cfg *config.Config, rec *metrics.Recorder) *Service {
	adapters := map[string]llm.Transcriber{}
	if cfg.GroqAPIKey != "" {
		adapters["groq"] = groq.NewWhisper(cfg.GroqAPIKey, cfg.GroqWhisperModel, cfg.ProviderTimeout)
	}
	if cfg.OpenAIAPIKey != "" {
		adapters["openai"] = openai.NewWhisper(cfg.OpenAIAPIKey, cfg.ProviderTimeout)
	}

	order := cfg.AudioProviderOrder
	if len(order) == 0 {
		order = []string{"groq", "openai"}
	}
	return &Service{order: order, adapters: adapters, rec: rec}
}

// NewWithTranscribers builds the chain over explicit adapters.
func NewWithTranscribers(order []string, adapters map[string]llm.Transcriber, rec *metrics.Recorder) *Service {
	return &Service{order: order, adapters: adapters, rec: rec}
}

// Transcribe sends the audio through the fallback chain and extracts
// symptom text from the first successful transcript.
func (s *Service) Transcribe(ctx context.Context, audio []byte, fileName, mimeType string) (*models.TranscriptionResult, error) {
	for _, id := range s.order {
		adapter, ok := s.adapters[id]
		if !ok {
			log.WithField("provider", id).Warn("skipping unknown or unconfigured transcriber")
			continue
		}

		text, perr := adapter.Transcribe(ctx, audio, fileName, mimeType)
		if perr != nil {
			s.rec.TranscriptionAttempt(adapter.Name(), string(perr.Kind))
			log.WithFields(log.Fields{
				"provider": adapter.Name(),
				"kind":     string(perr.Kind),
				"reason":   perr.Reason,
			}).Warn("transcriber failed, advancing to next in chain")
			continue
		}

		s.rec.TranscriptionAttempt(adapter.Name(), "success")
		return &models.TranscriptionResult{
			Transcription: text,
			Symptoms:      ExtractSymptoms(text),
			Provider:      adapter.Name(),
		}, nil
	}
	return nil, ErrAllTranscribersUnavailable
}

// ExtractSymptoms pulls the clinically relevant sentences out of a
// transcript. When no sentence mentions a symptom keyword it falls back
// to a truncated verbatim excerpt so downstream prompts never receive
// empty symptom text for non-empty speech.
func ExtractSymptoms(transcript string) string {
	text := strings.TrimSpace(transcript)
	if text == "" {
		return ""
	}

	var kept []string
	for _, sentence := range splitSentences(text) {
		lower := strings.ToLower(sentence)
		for _, kw := range symptomKeywords {
			if strings.Contains(lower, kw) {
				kept = append(kept, stripLeadPhrase(sentence))
				break
			}
		}
	}

	if len(kept) == 0 {
		return truncate(text, verbatimLimit)
	}
	return truncate(strings.Join(kept, ". "), symptomLimit)
}

func splitSentences(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func stripLeadPhrase(sentence string) string {
	lower := strings.ToLower(sentence)
	for _, p := range leadPhrases {
		if strings.HasPrefix(lower, p) {
			rest := strings.TrimSpace(sentence[len(p):])
			if rest != "" {
				return rest
			}
		}
	}
	return sentence
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}
