package router

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xray-diagnosis-service/llm"
	"xray-diagnosis-service/models"
)

type fakeProvider struct {
	name    string
	payload map[string]any
	err     *llm.ProviderError
	calls   int
}

func (f *fakeProvider) Name() string  { return f.name }
func (f *fakeProvider) Model() string { return f.name + "-model" }

func (f *fakeProvider) Analyze(_ context.Context, _, _ string) (map[string]any, *llm.ProviderError) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

func writeTestImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "xray.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 32, 32))))
	return path
}

func validPayload() map[string]any {
	return map[string]any{
		"is_medical_image":   true,
		"image_type":         "chest_xray",
		"overall_impression": "No acute findings.",
		"confidence_score":   0.8,
		"urgency":            "routine",
	}
}

func newTestRouter(order []string, adapters map[string]llm.VisionProvider, fast llm.VisionProvider) *Router {
	return NewWithProviders(order, adapters, fast, time.Second, nil)
}

func TestAnalyzeFirstValidResponseWins(t *testing.T) {
	first := &fakeProvider{name: "openai", payload: validPayload()}
	second := &fakeProvider{name: "gemini", payload: validPayload()}
	r := newTestRouter([]string{"openai", "gemini"}, map[string]llm.VisionProvider{
		"openai": first,
		"gemini": second,
	}, nil)

	d, err := r.Analyze(context.Background(), models.AnalysisRequest{
		ImagePath: writeTestImage(t),
		Mode:      models.ModeDetailed,
	})
	require.NoError(t, err)
	assert.Equal(t, "openai", d.Provider)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls, "chain must stop at the first valid response")
}

func TestAnalyzeAdvancesPastFailedProvider(t *testing.T) {
	first := &fakeProvider{name: "openai", err: llm.Permanent("openai", "model refused", nil)}
	second := &fakeProvider{name: "gemini", payload: validPayload()}
	r := newTestRouter([]string{"openai", "gemini"}, map[string]llm.VisionProvider{
		"openai": first,
		"gemini": second,
	}, nil)

	d, err := r.Analyze(context.Background(), models.AnalysisRequest{
		ImagePath: writeTestImage(t),
		Mode:      models.ModeDetailed,
	})
	require.NoError(t, err)
	assert.Equal(t, "gemini", d.Provider)
	assert.Equal(t, "gemini-model", d.Model)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestAnalyzeAllProvidersFail(t *testing.T) {
	r := newTestRouter([]string{"openai", "gemini"}, map[string]llm.VisionProvider{
		"openai": &fakeProvider{name: "openai", err: llm.Transient("openai", "timeout", nil)},
		"gemini": &fakeProvider{name: "gemini", err: llm.Permanent("gemini", "blocked", nil)},
	}, nil)

	d, err := r.Analyze(context.Background(), models.AnalysisRequest{
		ImagePath: writeTestImage(t),
		Mode:      models.ModeDetailed,
	})
	assert.Nil(t, d)
	assert.ErrorIs(t, err, ErrAllProvidersUnavailable)
}

func TestAnalyzeSkipsUnknownProviders(t *testing.T) {
	known := &fakeProvider{name: "gemini", payload: validPayload()}
	r := newTestRouter([]string{"nonexistent", "gemini"}, map[string]llm.VisionProvider{
		"gemini": known,
	}, nil)

	d, err := r.Analyze(context.Background(), models.AnalysisRequest{
		ImagePath: writeTestImage(t),
		Mode:      models.ModeDetailed,
	})
	require.NoError(t, err)
	assert.Equal(t, "gemini", d.Provider)
}

func TestAnalyzeEmptyChainFails(t *testing.T) {
	r := newTestRouter([]string{"nonexistent"}, map[string]llm.VisionProvider{}, nil)
	_, err := r.Analyze(context.Background(), models.AnalysisRequest{
		ImagePath: writeTestImage(t),
		Mode:      models.ModeDetailed,
	})
	assert.ErrorIs(t, err, ErrAllProvidersUnavailable)
}

func TestAnalyzeFastModeUsesClassifierOnly(t *testing.T) {
	vlm := &fakeProvider{name: "openai", payload: validPayload()}
	fast := &fakeProvider{name: "classifier", payload: map[string]any{
		"prediction": "NORMAL",
		"confidence": 0.97,
	}}
	r := newTestRouter([]string{"openai"}, map[string]llm.VisionProvider{"openai": vlm}, fast)

	d, err := r.Analyze(context.Background(), models.AnalysisRequest{
		ImagePath: writeTestImage(t),
		Mode:      models.ModeFast,
	})
	require.NoError(t, err)
	assert.Equal(t, "classifier", d.Provider)
	assert.Equal(t, 97, d.ConfidenceScore)
	assert.Equal(t, 1, fast.calls)
	assert.Equal(t, 0, vlm.calls, "fast mode must not touch the VLM chain")
}

func TestAnalyzeFastModeWithoutClassifier(t *testing.T) {
	r := newTestRouter([]string{"openai"}, map[string]llm.VisionProvider{
		"openai": &fakeProvider{name: "openai", payload: validPayload()},
	}, nil)

	_, err := r.Analyze(context.Background(), models.AnalysisRequest{
		ImagePath: writeTestImage(t),
		Mode:      models.ModeFast,
	})
	assert.ErrorIs(t, err, ErrFastModeUnavailable)
}

func TestAnalyzeFastModeClassifierFailure(t *testing.T) {
	fast := &fakeProvider{name: "classifier", err: llm.Transient("classifier", "endpoint down", nil)}
	r := newTestRouter(nil, map[string]llm.VisionProvider{}, fast)

	_, err := r.Analyze(context.Background(), models.AnalysisRequest{
		ImagePath: writeTestImage(t),
		Mode:      models.ModeFast,
	})
	assert.ErrorIs(t, err, ErrAllProvidersUnavailable)
}

func TestAnalyzeUnreadableImage(t *testing.T) {
	r := newTestRouter([]string{"openai"}, map[string]llm.VisionProvider{
		"openai": &fakeProvider{name: "openai", payload: validPayload()},
	}, nil)

	_, err := r.Analyze(context.Background(), models.AnalysisRequest{
		ImagePath: filepath.Join(t.TempDir(), "missing.png"),
		Mode:      models.ModeDetailed,
	})
	assert.Error(t, err)
}

func TestProvidersReportsConfiguration(t *testing.T) {
	r := newTestRouter([]string{"openai", "nonexistent"}, map[string]llm.VisionProvider{
		"openai": &fakeProvider{name: "openai"},
	}, nil)

	providers := r.Providers()
	require.Len(t, providers, 2)
	assert.Equal(t, "openai", providers[0]["provider"])
	assert.Equal(t, true, providers[0]["configured"])
	assert.Equal(t, false, providers[1]["configured"])
}
