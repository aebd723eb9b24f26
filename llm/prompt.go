package llm

import "fmt"

// diagnosisPrompt is the shared instruction set for every vision backend.
// All providers are asked for the same JSON schema so the normalizer can
// treat their payloads as one tagged variant.
const diagnosisPrompt = `You are a JSON-generation AI. Your ONLY task is to generate valid JSON that follows the exact structure provided below. Do not add any explanations, markdown, or text outside the JSON.

PATIENT SYMPTOMS: %[1]s

Generate a JSON object with this exact structure and these exact field names:
{
  "is_medical_image": true,
  "image_type": "chest_xray",
  "provided_symptoms": "%[1]s",
  "critical_findings": [
    {
      "term": "Consolidation",
      "status": "present|absent|uncertain",
      "confidence": 0.0,
      "radiology_summary": "Describe what you see",
      "plain_language_summary": "Explain it for the patient",
      "anatomical_location": "Where in the lungs, if applicable",
      "severity": "none|mild|moderate|severe"
    },
    {
      "term": "Air Bronchogram",
      "status": "present|absent|uncertain",
      "confidence": 0.0,
      "radiology_summary": "Describe what you see",
      "plain_language_summary": "Explain it for the patient",
      "anatomical_location": "Where in the lungs, if applicable",
      "severity": "none|mild|moderate|severe"
    },
    {
      "term": "Pleural Effusion",
      "status": "present|absent|uncertain",
      "confidence": 0.0,
      "radiology_summary": "Describe what you see",
      "plain_language_summary": "Explain it for the patient",
      "anatomical_location": "Where in the lungs, if applicable",
      "severity": "none|mild|moderate|severe"
    },
    {
      "term": "Infiltrate",
      "status": "present|absent|uncertain",
      "confidence": 0.0,
      "radiology_summary": "Describe what you see",
      "plain_language_summary": "Explain it for the patient",
      "anatomical_location": "Where in the lungs, if applicable",
      "severity": "none|mild|moderate|severe"
    }
  ],
  "symptom_response": "Acknowledge the symptoms and explain what they might indicate medically.",
  "symptom_correlation": "Explain how the symptoms relate to your X-ray findings.",
  "overall_impression": "Your medical conclusion based on both image and symptoms.",
  "patient_friendly_summary": "Simple explanation for the patient.",
  "priority_recommendations": [
    {
      "action": "Recommended action",
      "urgency": "routine|urgent|emergency",
      "rationale": "Why this is needed",
      "timeline": "When to act"
    }
  ],
  "confidence_score": 0.0,
  "urgency": "routine|urgent|emergency"
}

Analyze the chest X-ray image and fill in the JSON fields above. The 'symptom_response' field is REQUIRED and must be filled with a meaningful response to the reported symptoms.`

// BuildPrompt formats the shared diagnosis prompt with the patient symptoms.
func BuildPrompt(symptoms string) string {
	if symptoms == "" {
		symptoms = "No specific symptoms provided"
	}
	return fmt.Sprintf(diagnosisPrompt, symptoms)
}
