package parser

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when no top-level JSON object can be located in
// the provider output.
var ErrNoJSON = errors.New("no JSON object found in response")

// refusalPhrases mark responses where the model declined to analyze the
// image. A refusal is a permanent adapter failure, not a crash.
var refusalPhrases = []string{
	"unable to provide",
	"cannot analyze",
	"not a medical professional",
	"consult a healthcare",
	"i'm sorry, but i can't",
}

// IsRefusal reports whether the response text is an explicit model refusal.
func IsRefusal(response string) bool {
	lower := strings.ToLower(response)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// ExtractJSON pulls the first top-level JSON object out of arbitrary
// surrounding text. Providers frequently wrap JSON in prose or markdown
// code fences, so the scan is brace-matched and string-aware rather than
// fence-dependent.
func ExtractJSON(response string) (string, error) {
	start := strings.Index(response, "{")
	if start == -1 {
		return "", ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return response[start : i+1], nil
				}
			}
		}
	}

	// Unbalanced braces: fall back to the greedy span so truncated but
	// repairable output still reaches the decoder for a proper error.
	end := strings.LastIndex(response, "}")
	if end <= start {
		return "", ErrNoJSON
	}
	return response[start : end+1], nil
}

// Decode extracts and unmarshals the first JSON object in the response.
func Decode(response string) (map[string]any, error) {
	raw, err := ExtractJSON(strings.TrimSpace(response))
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
