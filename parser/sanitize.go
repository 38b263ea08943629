package parser

import "strings"

// Keys whose values must never reach a log line.
var sensitiveKeys = map[string]struct{}{
	"api_key":       {},
	"password":      {},
	"token":         {},
	"secret":        {},
	"authorization": {},
}

const redactedMask = "***REDACTED***"

// Sanitize returns a copy of an options map with sensitive values
// masked, recursing into nested maps. Safe to hand to log.Printf.
func Sanitize(options map[string]any) map[string]any {
	sanitized := make(map[string]any, len(options))
	for key, value := range options {
		if _, sensitive := sensitiveKeys[strings.ToLower(key)]; sensitive {
			sanitized[key] = redactedMask
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			sanitized[key] = Sanitize(nested)
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}
