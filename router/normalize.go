package router

import (
	"encoding/json"

	"xray-diagnosis-service/models"
)

// Normalize converts a raw provider result into the canonical diagnosis.
// It never fails: input that cannot be mapped produces a zero-confidence
// diagnosis with empty findings instead of an error, so a single weird
// response cannot take down a request that already consumed a provider
// call.
func Normalize(raw any, provider, model string) *models.NormalizedDiagnosis {
	data, err := json.Marshal(raw)
	if err != nil {
		return safeDiagnosis(provider, model)
	}

	// The classifier contract is disjoint from the VLM schema; the
	// prediction label is the discriminator.
	var probe struct {
		Prediction string `json:"prediction"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return safeDiagnosis(provider, model)
	}
	if probe.Prediction != "" {
		var cp classifierPayload
		if err := json.Unmarshal(data, &cp); err != nil {
			return safeDiagnosis(provider, model)
		}
		return cp.toDiagnosis(provider, model)
	}

	var vp vlmPayload
	if err := json.Unmarshal(data, &vp); err != nil {
		return safeDiagnosis(provider, model)
	}
	return vp.toDiagnosis(provider, model)
}

func safeDiagnosis(provider, model string) *models.NormalizedDiagnosis {
	return &models.NormalizedDiagnosis{
		Provider:        provider,
		Model:           model,
		IsMedicalImage:  false,
		ImageType:       "unknown",
		Findings:        []models.Finding{},
		Recommendations: []models.Recommendation{},
		Urgency:         "routine",
		ConfidenceScore: 0,
		Narrative:       "The analysis response could not be interpreted. Please retry the request.",
	}
}
