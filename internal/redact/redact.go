// Package redact masks sensitive substrings in free text before it is
// persisted to a session log. Redaction is irreversible and idempotent.
package redact

// Redact applies the fixed rule list in order and returns the sanitized text.
// Applying Redact to its own output yields the same string.
func Redact(text string) string {
	for _, rule := range rules {
		text = rule.Pattern.ReplaceAllString(text, rule.Replacement)
	}
	return text
}

// ContainsSecrets reports whether any redaction rule matches the text without
// modifying it. Intended for warning-only callers; each invocation evaluates
// the patterns from a fresh cursor, so concurrent callers never share match
// state.
func ContainsSecrets(text string) bool {
	for _, rule := range rules {
		if rule.Pattern.MatchString(text) {
			return true
		}
	}
	return false
}
