package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{
			name:     "bare object",
			response: `{"confidence_score": 0.9}`,
			want:     `{"confidence_score": 0.9}`,
		},
		{
			name:     "markdown fenced",
			response: "Here is the analysis:\n```json\n{\"urgency\": \"routine\"}\n```\nLet me know.",
			want:     `{"urgency": "routine"}`,
		},
		{
			name:     "prose wrapped",
			response: `Based on the image, {"image_type": "chest_xray"} is my assessment.`,
			want:     `{"image_type": "chest_xray"}`,
		},
		{
			name:     "nested objects",
			response: `{"a": {"b": {"c": 1}}, "d": 2}`,
			want:     `{"a": {"b": {"c": 1}}, "d": 2}`,
		},
		{
			name:     "braces inside strings",
			response: `{"note": "use {curly} braces", "ok": true}`,
			want:     `{"note": "use {curly} braces", "ok": true}`,
		},
		{
			name:     "escaped quote inside string",
			response: `{"note": "she said \"hi {there}\"", "ok": true}`,
			want:     `{"note": "she said \"hi {there}\"", "ok": true}`,
		},
		{
			name:     "no JSON at all",
			response: "I cannot find anything notable in this text.",
			wantErr:  true,
		},
		{
			name:     "truncated object falls back to greedy span",
			response: `{"a": {"b": 1}`,
			want:     `{"a": {"b": 1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.response)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoJSON)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode(t *testing.T) {
	payload, err := Decode("```json\n{\"confidence_score\": 0.85, \"urgency\": \"routine\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, 0.85, payload["confidence_score"])
	assert.Equal(t, "routine", payload["urgency"])

	_, err = Decode(`{"broken": `)
	assert.Error(t, err)

	_, err = Decode("no json here")
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestIsRefusal(t *testing.T) {
	assert.True(t, IsRefusal("I'm sorry, but I can't help with that request."))
	assert.True(t, IsRefusal("I am unable to provide a medical diagnosis."))
	assert.True(t, IsRefusal("Please consult a healthcare professional."))
	assert.False(t, IsRefusal(`{"is_medical_image": true}`))
	assert.False(t, IsRefusal("The lung fields are clear."))
}
