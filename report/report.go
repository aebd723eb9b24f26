// Package report renders a normalized diagnosis as a structured plain
// text report for the response payload.
package report

import (
	"strings"
	"text/template"

	"xray-diagnosis-service/models"
)

const reportTemplate = `=== TECHNICAL ASSESSMENT ===
Analyzed by: {{.Provider}} ({{.Model}})
Image type: {{.ImageType}}
Overall confidence: {{.ConfidenceScore}}%
Urgency: {{.Urgency}}

=== KEY FINDINGS ===
{{- if .Findings}}
{{- range .Findings}}
* {{.Term}} [{{.Status}}, severity: {{.Severity}}, confidence: {{.Confidence}}%{{if .AnatomicalLocation}}, location: {{.AnatomicalLocation}}{{end}}]
  {{.Summary}}
  In plain terms: {{.PatientExplanation}}
{{- end}}
{{- else}}
No structured findings were reported for this study.
{{- end}}

=== IMPRESSION ===
{{.Narrative}}

=== RECOMMENDATIONS ===
{{- if .Recommendations}}
{{- range .Recommendations}}
* [{{.Priority}}] {{.Text}}{{if .Timeline}} ({{.Timeline}}){{end}}
{{- if .Rationale}}
  Rationale: {{.Rationale}}
{{- end}}
{{- end}}
{{- else}}
No specific recommendations were provided.
{{- end}}

=== EDUCATIONAL NOTES ===
Confidence percentages reflect the analysis model's certainty about each
observation, not the probability of disease. Findings marked "absent"
indicate the model looked for the condition and did not see it.

=== LIMITATIONS ===
This is an automated analysis intended for educational purposes. It is
not a medical diagnosis and must not replace review by a qualified
radiologist or treating physician.
`

var tmpl = template.Must(template.New("report").Parse(reportTemplate))

// Render produces the plain text report. Rendering cannot fail for a
// well-formed diagnosis; an unexpected template error yields the
// narrative alone.
func Render(d *models.NormalizedDiagnosis) string {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, d); err != nil {
		return d.Narrative
	}
	return sb.String()
}
