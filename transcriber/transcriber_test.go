package transcriber

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xray-diagnosis-service/llm"
)

type fakeTranscriber struct {
	name  string
	text  string
	err   *llm.ProviderError
	calls int
}

func (f *fakeTranscriber) Name() string { return f.name }

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte, _, _ string) (string, *llm.ProviderError) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func TestTranscribeFirstSuccessWins(t *testing.T) {
	groq := &fakeTranscriber{name: "groq", text: "I have a bad cough."}
	oai := &fakeTranscriber{name: "openai", text: "should not be used"}
	s := NewWithTranscribers([]string{"groq", "openai"}, map[string]llm.Transcriber{
		"groq": groq, "openai": oai,
	}, nil)

	result, err := s.Transcribe(context.Background(), []byte("audio"), "voice.webm", "audio/webm")
	require.NoError(t, err)
	assert.Equal(t, "groq", result.Provider)
	assert.Equal(t, "I have a bad cough.", result.Transcription)
	assert.Equal(t, 0, oai.calls)
}

func TestTranscribeFallsBack(t *testing.T) {
	groq := &fakeTranscriber{name: "groq", err: llm.Transient("groq", "rate limited", nil)}
	oai := &fakeTranscriber{name: "openai", text: "My chest hurts when I breathe."}
	s := NewWithTranscribers([]string{"groq", "openai"}, map[string]llm.Transcriber{
		"groq": groq, "openai": oai,
	}, nil)

	result, err := s.Transcribe(context.Background(), []byte("audio"), "voice.webm", "audio/webm")
	require.NoError(t, err)
	assert.Equal(t, "openai", result.Provider)
	assert.Equal(t, 1, groq.calls)
	assert.Equal(t, 1, oai.calls)
}

func TestTranscribeAllFail(t *testing.T) {
	s := NewWithTranscribers([]string{"groq", "openai"}, map[string]llm.Transcriber{
		"groq":   &fakeTranscriber{name: "groq", err: llm.Transient("groq", "down", nil)},
		"openai": &fakeTranscriber{name: "openai", err: llm.Permanent("openai", "bad key", nil)},
	}, nil)

	_, err := s.Transcribe(context.Background(), []byte("audio"), "voice.webm", "audio/webm")
	assert.ErrorIs(t, err, ErrAllTranscribersUnavailable)
}

func TestTranscribeSkipsUnconfigured(t *testing.T) {
	oai := &fakeTranscriber{name: "openai", text: "Sharp pain in my side."}
	s := NewWithTranscribers([]string{"groq", "openai"}, map[string]llm.Transcriber{
		"openai": oai,
	}, nil)

	result, err := s.Transcribe(context.Background(), []byte("audio"), "voice.webm", "audio/webm")
	require.NoError(t, err)
	assert.Equal(t, "openai", result.Provider)
}

func TestExtractSymptomsKeepsKeywordSentences(t *testing.T) {
	transcript := "Hello, my name is Alex. I have a persistent cough and some chest pain. The weather has been nice lately."
	got := ExtractSymptoms(transcript)

	assert.Contains(t, got, "persistent cough")
	assert.Contains(t, got, "chest pain")
	assert.NotContains(t, got, "weather")
	assert.NotContains(t, got, "Alex")
}

func TestExtractSymptomsStripsLeadPhrases(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"I have a bad cough", "a bad cough"},
		{"I am experiencing shortness of breath", "shortness of breath"},
		{"I feel feverish and tired", "feverish and tired"},
		{"I've been having chest tightness", "chest tightness"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractSymptoms(tt.in))
	}
}

func TestExtractSymptomsVerbatimFallback(t *testing.T) {
	transcript := strings.Repeat("The patient arrived by car and filled out paperwork. ", 10)
	got := ExtractSymptoms(transcript)

	assert.LessOrEqual(t, len(got), verbatimLimit+len("..."))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.True(t, strings.HasPrefix(transcript, strings.TrimSuffix(got, "...")))
}

func TestExtractSymptomsCapsLength(t *testing.T) {
	transcript := strings.Repeat("I have chest pain that radiates to my shoulder and a cough. ", 20)
	got := ExtractSymptoms(transcript)
	assert.LessOrEqual(t, len(got), symptomLimit+len("..."))
}

func TestExtractSymptomsEmptyInput(t *testing.T) {
	assert.Equal(t, "", ExtractSymptoms(""))
	assert.Equal(t, "", ExtractSymptoms("   \n  "))
}
