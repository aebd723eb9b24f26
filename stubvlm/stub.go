package stubvlm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"xray-diagnosis-service/llm"
)

// Client is a deterministic, no-network vision provider intended for CI
// and local end-to-end runs. It emits schema-valid diagnosis JSON so the
// normalizer, formatter and handlers exercise the full pipeline.
type Client struct{}

func NewClient() *Client { return &Client{} }

func (c *Client) Name() string  { return "stub" }
func (c *Client) Model() string { return "stub-vlm" }

func (c *Client) Analyze(_ context.Context, imageBase64, symptoms string) (map[string]any, *llm.ProviderError) {
	// Derive a stable pseudo-confidence from the input so repeated runs
	// on the same image are reproducible.
	sum := sha256.Sum256([]byte(imageBase64 + symptoms))
	conf := 0.55 + float64(binary.BigEndian.Uint16(sum[:2])%40)/100.0

	return map[string]any{
		"is_medical_image":  true,
		"image_type":        "chest_xray",
		"provided_symptoms": symptoms,
		"critical_findings": []any{
			map[string]any{
				"term":                   "Consolidation",
				"status":                 "absent",
				"confidence":             conf,
				"severity":               "none",
				"radiology_summary":      "Lung fields appear clear without focal consolidation.",
				"plain_language_summary": "No sign of a lung infection patch.",
			},
		},
		"symptom_response":         fmt.Sprintf("Reported symptoms noted: %s", orDefault(symptoms, "none reported")),
		"overall_impression":       "No acute cardiopulmonary abnormality identified.",
		"patient_friendly_summary": "The X-ray looks within normal limits.",
		"priority_recommendations": []any{
			map[string]any{
				"action":    "Routine follow-up",
				"urgency":   "routine",
				"rationale": "No abnormality requiring escalation.",
				"timeline":  "As needed",
			},
		},
		"confidence_score": conf,
		"urgency":          "routine",
	}, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
