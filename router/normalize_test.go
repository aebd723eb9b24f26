package router

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xray-diagnosis-service/models"
)

func TestScaleConfidence(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want int
	}{
		{"fraction", 0.92, 92},
		{"fraction rounds", 0.456, 46},
		{"exactly one is full confidence", 1.0, 100},
		{"zero", 0, 0},
		{"negative clamps to zero", -0.5, 0},
		{"already percent", 92, 92},
		{"percent above range clamps", 150, 100},
		{"percent rounds", 87.6, 88},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scaleConfidence(tt.in))
		})
	}
}

func TestNormalizeFullPayload(t *testing.T) {
	payload := map[string]any{
		"is_medical_image": true,
		"image_type":       "chest_xray",
		"critical_findings": []any{
			map[string]any{
				"term":                   "Consolidation",
				"status":                 "present",
				"confidence":             0.9,
				"severity":               "moderate",
				"anatomical_location":    "right lower lobe",
				"radiology_summary":      "Focal airspace opacity in the right lower lobe.",
				"plain_language_summary": "There is a patch in the lower right lung.",
			},
			map[string]any{
				"term":                   "Pleural Effusion",
				"status":                 "absent",
				"confidence":             0.85,
				"severity":               "none",
				"radiology_summary":      "No pleural fluid identified.",
				"plain_language_summary": "No fluid around the lungs.",
			},
		},
		"symptom_response":          "Your cough and fever are consistent with the image.",
		"overall_impression":        "Findings suggest right lower lobe pneumonia.",
		"symptom_correlation":       "The opacity matches the reported productive cough.",
		"patient_friendly_summary":  "The X-ray shows signs of a lung infection.",
		"priority_recommendations":  []any{map[string]any{"action": "Seek medical evaluation", "urgency": "urgent", "rationale": "Consolidation requires treatment.", "timeline": "Within 24 hours"}},
		"confidence_score":          0.92,
		"urgency":                   "urgent",
	}

	d := Normalize(payload, "openai", "gpt-4o-mini")

	assert.Equal(t, "openai", d.Provider)
	assert.Equal(t, "gpt-4o-mini", d.Model)
	assert.True(t, d.IsMedicalImage)
	assert.Equal(t, "chest_xray", d.ImageType)
	assert.Equal(t, 92, d.ConfidenceScore)
	assert.Equal(t, "urgent", d.Urgency)

	require.Len(t, d.Findings, 2)
	consolidation := d.Findings[0]
	assert.Equal(t, "Consolidation", consolidation.Term)
	assert.Equal(t, models.StatusPresent, consolidation.Status)
	assert.Equal(t, 90, consolidation.Confidence)
	assert.Equal(t, "moderate", consolidation.Severity)
	assert.Equal(t, "right lower lobe", consolidation.AnatomicalLocation)

	// Absent finding with no real severity reads as normal.
	effusion := d.Findings[1]
	assert.Equal(t, models.StatusAbsent, effusion.Status)
	assert.Equal(t, "normal", effusion.Severity)

	require.Len(t, d.Recommendations, 1)
	assert.Equal(t, "URGENT", d.Recommendations[0].Priority)
	assert.Equal(t, "Seek medical evaluation", d.Recommendations[0].Text)
	assert.Equal(t, "Within 24 hours", d.Recommendations[0].Timeline)
}

func TestNormalizeNarrativeSectionOrder(t *testing.T) {
	payload := map[string]any{
		"symptom_response":         "Noted your chest pain.",
		"overall_impression":       "Mild interstitial changes.",
		"symptom_correlation":      "Pain is not explained by the image.",
		"patient_friendly_summary": "Mostly normal with small changes.",
		"critical_findings": []any{
			map[string]any{"term": "Infiltrate", "status": "uncertain", "confidence": 0.4, "radiology_summary": "Possible faint infiltrate."},
		},
		"confidence_score": 0.6,
	}

	d := Normalize(payload, "gemini", "gemini-2.5-flash")

	symptoms := strings.Index(d.Narrative, "Regarding Your Symptoms")
	impression := strings.Index(d.Narrative, "Overall Impression")
	correlation := strings.Index(d.Narrative, "Symptom Correlation")
	summary := strings.Index(d.Narrative, "Patient-Friendly Summary")
	findings := strings.Index(d.Narrative, "Pulmonary Findings")

	for _, idx := range []int{symptoms, impression, correlation, summary, findings} {
		require.GreaterOrEqual(t, idx, 0)
	}
	assert.Less(t, symptoms, impression)
	assert.Less(t, impression, correlation)
	assert.Less(t, correlation, summary)
	assert.Less(t, summary, findings)
}

func TestNormalizeEmptyPayloadFallbackNarrative(t *testing.T) {
	d := Normalize(map[string]any{}, "openai", "gpt-4o-mini")
	assert.Equal(t, "No significant abnormalities detected.", d.Narrative)
	assert.Empty(t, d.Findings)
	assert.Equal(t, 0, d.ConfidenceScore)
	assert.Equal(t, "routine", d.Urgency)
}

func TestNormalizeStringRecommendations(t *testing.T) {
	payload := map[string]any{
		"priority_recommendations": []any{
			"Rest and stay hydrated",
			map[string]any{"action": "Follow up with your doctor", "urgency": "routine"},
		},
		"confidence_score": 0.8,
	}

	d := Normalize(payload, "openai", "gpt-4o-mini")

	require.Len(t, d.Recommendations, 2)
	assert.Equal(t, models.PriorityMedium, d.Recommendations[0].Priority)
	assert.Equal(t, "Rest and stay hydrated", d.Recommendations[0].Text)
	assert.NotEmpty(t, d.Recommendations[0].Rationale)
	assert.Equal(t, "ROUTINE", d.Recommendations[1].Priority)
}

func TestNormalizeCapsFindings(t *testing.T) {
	var findings []any
	for i := 0; i < 7; i++ {
		findings = append(findings, map[string]any{"term": "Infiltrate", "status": "uncertain", "confidence": 0.5})
	}
	d := Normalize(map[string]any{"critical_findings": findings}, "openai", "gpt-4o-mini")
	assert.Len(t, d.Findings, maxFindings)
}

func TestNormalizeMalformedInputNeverPanics(t *testing.T) {
	inputs := []any{
		nil,
		"just a string",
		42,
		[]any{"not", "an", "object"},
		map[string]any{"critical_findings": "not a list"},
		map[string]any{"confidence_score": "high"},
		map[string]any{"priority_recommendations": []any{42}},
	}
	for _, in := range inputs {
		d := Normalize(in, "openai", "gpt-4o-mini")
		require.NotNil(t, d)
		assert.Equal(t, 0, d.ConfidenceScore)
		assert.Empty(t, d.Findings)
		assert.NotEmpty(t, d.Narrative)
	}
}

func TestNormalizeMissingFieldDefaults(t *testing.T) {
	payload := map[string]any{
		"critical_findings": []any{map[string]any{}},
	}
	d := Normalize(payload, "groq", "llama-3.2-11b-vision-preview")

	require.Len(t, d.Findings, 1)
	f := d.Findings[0]
	assert.Equal(t, "Pulmonary Finding", f.Term)
	assert.Equal(t, models.StatusUncertain, f.Status)
	assert.Equal(t, 50, f.Confidence)
	assert.NotEmpty(t, f.Summary)
	assert.NotEmpty(t, f.PatientExplanation)
	assert.Equal(t, "unknown", d.ImageType)
}

func TestNormalizeIdempotent(t *testing.T) {
	payload := map[string]any{
		"is_medical_image": true,
		"image_type":       "chest_xray",
		"critical_findings": []any{
			map[string]any{
				"term":                   "Consolidation",
				"status":                 "present",
				"confidence":             0.9,
				"severity":               "moderate",
				"radiology_summary":      "Focal opacity.",
				"plain_language_summary": "A patch in the lung.",
			},
		},
		"overall_impression": "Probable pneumonia.",
		"priority_recommendations": []any{
			map[string]any{"action": "See a doctor", "urgency": "urgent", "timeline": "Within 24 hours"},
		},
		"confidence_score": 0.92,
		"urgency":          "urgent",
	}

	first := Normalize(payload, "openai", "gpt-4o-mini")

	data, err := json.Marshal(first)
	require.NoError(t, err)
	var roundTripped map[string]any
	require.NoError(t, json.Unmarshal(data, &roundTripped))

	second := Normalize(roundTripped, "openai", "gpt-4o-mini")
	assert.Equal(t, first, second)
}

func TestNormalizeClassifierPayload(t *testing.T) {
	payload := map[string]any{
		"prediction":    "PNEUMONIA",
		"confidence":    0.87,
		"probabilities": map[string]any{"NORMAL": 0.13, "PNEUMONIA": 0.87},
	}

	d := Normalize(payload, "classifier", "vit-medical-xray-lora")

	assert.Equal(t, 87, d.ConfidenceScore)
	assert.Equal(t, "urgent", d.Urgency)
	require.Len(t, d.Findings, 1)
	assert.Equal(t, "Pneumonia", d.Findings[0].Term)
	assert.Equal(t, models.StatusPresent, d.Findings[0].Status)
	assert.Equal(t, 87, d.Findings[0].Confidence)
	require.Len(t, d.Recommendations, 1)
	assert.Equal(t, models.PriorityUrgent, d.Recommendations[0].Priority)
}

func TestNormalizeClassifierNormalPrediction(t *testing.T) {
	payload := map[string]any{"prediction": "NORMAL", "confidence": 0.95}
	d := Normalize(payload, "classifier", "vit-medical-xray-lora")

	assert.Equal(t, "routine", d.Urgency)
	require.Len(t, d.Findings, 1)
	assert.Equal(t, models.StatusAbsent, d.Findings[0].Status)
	assert.Equal(t, "normal", d.Findings[0].Severity)
}
