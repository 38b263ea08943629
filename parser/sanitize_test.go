package parser

import "testing"

func TestSanitize(t *testing.T) {
	options := map[string]any{
		"language":    "en",
		"api_key":     "sk-secret",
		"API_KEY":     "sk-secret-upper",
		"ocr":         true,
		"credentials": map[string]any{"password": "hunter2", "region": "eu"},
	}

	sanitized := Sanitize(options)

	if sanitized["language"] != "en" || sanitized["ocr"] != true {
		t.Error("expected non-sensitive values to pass through")
	}
	if sanitized["api_key"] != redactedMask {
		t.Errorf("expected api_key masked, got %v", sanitized["api_key"])
	}
	if sanitized["API_KEY"] != redactedMask {
		t.Errorf("expected key matching to be case-insensitive, got %v", sanitized["API_KEY"])
	}

	nested := sanitized["credentials"].(map[string]any)
	if nested["password"] != redactedMask {
		t.Errorf("expected nested password masked, got %v", nested["password"])
	}
	if nested["region"] != "eu" {
		t.Errorf("expected nested non-sensitive value kept, got %v", nested["region"])
	}

	// The input map is not mutated.
	if options["api_key"] != "sk-secret" {
		t.Error("expected Sanitize to copy, not mutate")
	}
}
