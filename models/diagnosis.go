package models

// AnalysisMode selects between the fine-tuned classifier and the VLM chain.
type AnalysisMode string

const (
	ModeFast     AnalysisMode = "fast"
	ModeDetailed AnalysisMode = "detailed"
)

// FindingStatus is the model's judgement about a single clinical observation.
type FindingStatus string

const (
	StatusPresent   FindingStatus = "present"
	StatusAbsent    FindingStatus = "absent"
	StatusUncertain FindingStatus = "uncertain"
)

// Priority levels for recommendations, uppercased on the wire.
const (
	PriorityRoutine  = "ROUTINE"
	PriorityMedium   = "MEDIUM"
	PriorityUrgent   = "URGENT"
	PriorityEmergent = "EMERGENT"
)

// AnalysisRequest is the per-request input assembled by the upload handler.
// It is created once per HTTP request and discarded after the response.
type AnalysisRequest struct {
	ImagePath       string       `json:"image_path"`
	Symptoms        string       `json:"symptoms"`
	Mode            AnalysisMode `json:"analysis_mode"`
	RequestedRegion string       `json:"requested_body_region,omitempty"`
}

// Finding is a single structured clinical observation.
// Confidence is always an integer percent 0-100 regardless of the
// provider's native scale.
type Finding struct {
	Term               string        `json:"term"`
	Status             FindingStatus `json:"status"`
	Severity           string        `json:"severity"`
	Confidence         int           `json:"confidence"`
	AnatomicalLocation string        `json:"anatomical_location,omitempty"`
	Summary            string        `json:"summary"`
	PatientExplanation string        `json:"patient_explanation"`
}

// Recommendation is a prioritized next step for the patient or clinician.
type Recommendation struct {
	Priority  string `json:"priority"`
	Text      string `json:"text"`
	Rationale string `json:"rationale,omitempty"`
	Timeline  string `json:"timeline,omitempty"`
}

// NormalizedDiagnosis is the canonical analysis result. It is constructed
// exactly once per successful provider call inside the router and never
// mutated afterward; every downstream consumer depends on this shape.
type NormalizedDiagnosis struct {
	Provider        string           `json:"provider"`
	Model           string           `json:"model"`
	IsMedicalImage  bool             `json:"is_medical_image"`
	ImageType       string           `json:"image_type"`
	Findings        []Finding        `json:"findings"`
	Recommendations []Recommendation `json:"recommendations"`
	Urgency         string           `json:"urgency"`
	ConfidenceScore int              `json:"confidence_score"`
	Narrative       string           `json:"diagnosis_narrative"`
}

// TranscriptionResult is the outcome of the audio fallback chain.
type TranscriptionResult struct {
	Transcription string `json:"transcription"`
	Symptoms      string `json:"symptoms"`
	Provider      string `json:"provider"`
}

// ClassifierResult is the raw contract of the fine-tuned pneumonia
// classifier inference endpoint (fast mode).
type ClassifierResult struct {
	Prediction    string             `json:"prediction"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
}
