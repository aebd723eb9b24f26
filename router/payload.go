package router

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"xray-diagnosis-service/models"
)

// maxFindings caps how many findings survive normalization; the prompt
// schema asks for four canonical pulmonary terms.
const maxFindings = 4

// vlmPayload is the tagged variant for the shared schema every VLM
// adapter prompts for. Alternate field names observed across providers
// are folded in here so the mapping into the canonical diagnosis stays
// exhaustive and testable instead of spread over ad hoc lookups.
type vlmPayload struct {
	IsMedicalImage     *bool               `json:"is_medical_image"`
	ImageType          string              `json:"image_type"`
	CriticalFindings   []rawFinding        `json:"critical_findings"`
	Findings           []rawFinding        `json:"findings"`
	SymptomResponse    string              `json:"symptom_response"`
	SymptomCorrelation string              `json:"symptom_correlation"`
	OverallImpression  string              `json:"overall_impression"`
	Diagnosis          string              `json:"diagnosis"`
	PatientSummary     string              `json:"patient_friendly_summary"`
	PlainSummary       string              `json:"plain_language_summary"`
	PriorityRecs       []rawRecommendation `json:"priority_recommendations"`
	Recs               []rawRecommendation `json:"recommendations"`
	ConfidenceScore    *float64            `json:"confidence_score"`
	Urgency            string              `json:"urgency"`
	Narrative          string              `json:"diagnosis_narrative"`
}

// rawFinding tolerates both the prompt schema field names and the
// canonical names, so re-normalizing an already-normalized dict is a
// no-op.
type rawFinding struct {
	Term                 string   `json:"term"`
	Status               string   `json:"status"`
	Severity             string   `json:"severity"`
	Confidence           *float64 `json:"confidence"`
	AnatomicalLocation   string   `json:"anatomical_location"`
	RadiologySummary     string   `json:"radiology_summary"`
	PlainLanguageSummary string   `json:"plain_language_summary"`
	Summary              string   `json:"summary"`
	PatientExplanation   string   `json:"patient_explanation"`
}

// rawRecommendation accepts either a bare string or a structured object;
// providers mix both shapes in the same list.
type rawRecommendation struct {
	Text             string `json:"text"`
	Action           string `json:"action"`
	Rationale        string `json:"rationale"`
	Urgency          string `json:"urgency"`
	Priority         string `json:"priority"`
	Timeline         string `json:"timeline"`
	FollowUpTimeline string `json:"follow_up_timeline"`

	plain bool
}

func (r *rawRecommendation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.Text = s
		r.plain = true
		return nil
	}
	type alias rawRecommendation
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = rawRecommendation(a)
	return nil
}

// classifierPayload is the tagged variant for the fine-tuned pneumonia
// classifier's inference contract.
type classifierPayload struct {
	Prediction    string             `json:"prediction"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// scaleConfidence converts a provider-native confidence into an integer
// percent. Values at or below 1.0 are treated as fractions; anything
// larger is assumed percent-like and clamped to [0,100].
func scaleConfidence(c float64) int {
	if c <= 1.0 {
		if c < 0 {
			c = 0
		}
		return int(math.Round(c * 100))
	}
	return int(math.Round(math.Min(c, 100)))
}

func (p *vlmPayload) toDiagnosis(provider, model string) *models.NormalizedDiagnosis {
	confidence := 0
	if p.ConfidenceScore != nil {
		confidence = scaleConfidence(*p.ConfidenceScore)
	}

	rawFindings := p.CriticalFindings
	if len(rawFindings) == 0 {
		rawFindings = p.Findings
	}
	if len(rawFindings) > maxFindings {
		rawFindings = rawFindings[:maxFindings]
	}

	findings := make([]models.Finding, 0, len(rawFindings))
	for _, rf := range rawFindings {
		findings = append(findings, rf.toFinding())
	}

	rawRecs := p.PriorityRecs
	if len(rawRecs) == 0 {
		rawRecs = p.Recs
	}
	recommendations := make([]models.Recommendation, 0, len(rawRecs))
	for _, rr := range rawRecs {
		recommendations = append(recommendations, rr.toRecommendation())
	}

	urgency := p.Urgency
	if urgency == "" {
		urgency = "routine"
	}

	imageType := p.ImageType
	if imageType == "" {
		imageType = "unknown"
	}

	isMedical := true
	if p.IsMedicalImage != nil {
		isMedical = *p.IsMedicalImage
	}

	return &models.NormalizedDiagnosis{
		Provider:        provider,
		Model:           model,
		IsMedicalImage:  isMedical,
		ImageType:       imageType,
		Findings:        findings,
		Recommendations: recommendations,
		Urgency:         strings.ToLower(urgency),
		ConfidenceScore: confidence,
		Narrative:       p.buildNarrative(findings),
	}
}

func (rf *rawFinding) toFinding() models.Finding {
	term := rf.Term
	if term == "" {
		term = "Pulmonary Finding"
	}
	status := strings.ToLower(rf.Status)
	if status == "" {
		status = string(models.StatusUncertain)
	}

	severity := strings.ToLower(rf.Severity)
	if severity == "" {
		severity = "none"
	}
	// An "absent severe finding" is a provider artifact; absent findings
	// with no real severity read as normal.
	if status == string(models.StatusAbsent) && (severity == "none" || severity == "normal") {
		severity = "normal"
	}

	confidence := 50
	if rf.Confidence != nil {
		confidence = scaleConfidence(*rf.Confidence)
	}

	summary := rf.RadiologySummary
	if summary == "" {
		summary = rf.Summary
	}
	if summary == "" {
		summary = "No radiology summary provided."
	}
	explanation := rf.PlainLanguageSummary
	if explanation == "" {
		explanation = rf.PatientExplanation
	}
	if explanation == "" {
		explanation = "No patient explanation provided."
	}

	return models.Finding{
		Term:               term,
		Status:             models.FindingStatus(status),
		Severity:           severity,
		Confidence:         confidence,
		AnatomicalLocation: rf.AnatomicalLocation,
		Summary:            summary,
		PatientExplanation: explanation,
	}
}

func (rr *rawRecommendation) toRecommendation() models.Recommendation {
	if rr.plain {
		return models.Recommendation{
			Priority:  models.PriorityMedium,
			Text:      rr.Text,
			Rationale: "General clinical guidance.",
			Timeline:  "As needed",
		}
	}

	priority := rr.Urgency
	if priority == "" {
		priority = rr.Priority
	}
	if priority == "" {
		priority = "routine"
	}

	text := rr.Action
	if text == "" {
		text = rr.Text
	}
	if text == "" {
		text = "No recommendation details provided."
	}

	timeline := rr.FollowUpTimeline
	if timeline == "" {
		timeline = rr.Timeline
	}
	if timeline == "" {
		timeline = "As needed"
	}

	return models.Recommendation{
		Priority:  strings.ToUpper(priority),
		Text:      text,
		Rationale: rr.Rationale,
		Timeline:  timeline,
	}
}

// buildNarrative assembles the diagnosis text in fixed section order.
// Absent sections are omitted entirely, never replaced with filler.
func (p *vlmPayload) buildNarrative(findings []models.Finding) string {
	// Already-normalized input carries its narrative verbatim.
	if p.Narrative != "" {
		return p.Narrative
	}

	impression := p.OverallImpression
	if impression == "" {
		impression = p.Diagnosis
	}
	patientSummary := p.PatientSummary
	if patientSummary == "" {
		patientSummary = p.PlainSummary
	}

	var sections []string
	if p.SymptomResponse != "" {
		sections = append(sections, "**Regarding Your Symptoms:** "+p.SymptomResponse)
	}
	if impression != "" {
		sections = append(sections, "**Overall Impression:** "+impression)
	}
	if p.SymptomCorrelation != "" {
		sections = append(sections, "**Symptom Correlation:** "+p.SymptomCorrelation)
	}
	if patientSummary != "" {
		sections = append(sections, "**Patient-Friendly Summary:** "+patientSummary)
	}
	if len(findings) > 0 {
		sections = append(sections, "**Pulmonary Findings:**")
		for _, f := range findings {
			sections = append(sections, fmt.Sprintf("- %s: %s (Confidence %d%%) - %s",
				f.Term, titleCase(string(f.Status)), f.Confidence, f.Summary))
		}
	}

	if len(sections) == 0 {
		if impression != "" {
			return impression
		}
		return "No significant abnormalities detected."
	}
	return strings.Join(sections, "\n")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (p *classifierPayload) toDiagnosis(provider, model string) *models.NormalizedDiagnosis {
	confidence := scaleConfidence(p.Confidence)
	present := p.Prediction == "PNEUMONIA"

	status := models.StatusAbsent
	severity := "normal"
	urgency := "routine"
	summary := "Classifier found no radiographic evidence of pneumonia."
	explanation := "The automated screening model did not detect pneumonia in this X-ray."
	recommendation := models.Recommendation{
		Priority:  models.PriorityRoutine,
		Text:      "Routine follow-up as clinically indicated",
		Rationale: "Screening classifier reported a normal study.",
		Timeline:  "As needed",
	}
	if present {
		status = models.StatusPresent
		severity = "moderate"
		urgency = "urgent"
		summary = fmt.Sprintf("Classifier detected pneumonia with %d%% confidence.", confidence)
		explanation = "The automated screening model found signs consistent with pneumonia."
		recommendation = models.Recommendation{
			Priority:  models.PriorityUrgent,
			Text:      "Clinical review of the study and patient evaluation",
			Rationale: "Screening classifier flagged probable pneumonia.",
			Timeline:  "Within 24 hours",
		}
	}

	narrative := fmt.Sprintf("**Overall Impression:** Automated screening classified this study as %s (confidence %d%%).",
		p.Prediction, confidence)
	if prob, ok := p.Probabilities["PNEUMONIA"]; ok {
		narrative += fmt.Sprintf(" Pneumonia probability: %d%%.", scaleConfidence(prob))
	}

	return &models.NormalizedDiagnosis{
		Provider:        provider,
		Model:           model,
		IsMedicalImage:  true,
		ImageType:       "chest_xray",
		Findings: []models.Finding{{
			Term:               "Pneumonia",
			Status:             status,
			Severity:           severity,
			Confidence:         confidence,
			Summary:            summary,
			PatientExplanation: explanation,
		}},
		Recommendations: []models.Recommendation{recommendation},
		Urgency:         urgency,
		ConfidenceScore: confidence,
		Narrative:       narrative,
	}
}
