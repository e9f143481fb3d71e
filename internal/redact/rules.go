package redact

import "regexp"

// Rule is one ordered redaction pattern. Rules are applied sequentially and
// their replacement text never matches a later rule's pattern, so a second
// pass over already-redacted text is a no-op.
type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
}

const placeholder = "[REDACTED]"

// rules is the fixed, versioned rule list shared by every writer.
// Order matters: multi-line PEM blocks go first so later single-line rules
// never see key material, and credential header lines go before the generic
// bearer rule so an Authorization header collapses to a single placeholder.
var rules = []Rule{
	{
		Name:        "pem-private-key",
		Pattern:     regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`),
		Replacement: "[REDACTED PRIVATE KEY]",
	},
	{
		Name:        "credential-header",
		Pattern:     regexp.MustCompile(`(?im)\b(authorization|proxy-authorization|cookie|set-cookie|x-api-key|api-key|x-auth-token)\s*:[ \t]*[^\r\n;]+`),
		Replacement: "$1: " + placeholder,
	},
	{
		Name:        "openai-key",
		Pattern:     regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}\b`),
		Replacement: placeholder,
	},
	{
		Name:        "stripe-key",
		Pattern:     regexp.MustCompile(`\b[sp]k_(?:live|test)_[A-Za-z0-9]{16,}\b`),
		Replacement: placeholder,
	},
	{
		Name:        "github-token",
		Pattern:     regexp.MustCompile(`\b(?:gh[pousr]_[A-Za-z0-9]{20,}|github_pat_[A-Za-z0-9_]{22,})\b`),
		Replacement: placeholder,
	},
	{
		Name:        "slack-token",
		Pattern:     regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`),
		Replacement: placeholder,
	},
	{
		Name:        "aws-access-key",
		Pattern:     regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
		Replacement: placeholder,
	},
	{
		Name:        "google-api-key",
		Pattern:     regexp.MustCompile(`\bAIza[0-9A-Za-z_-]{35}\b`),
		Replacement: placeholder,
	},
	{
		Name:        "bearer-token",
		Pattern:     regexp.MustCompile(`(?i)\bbearer[ \t]+[A-Za-z0-9._~+/-]{4,}=*`),
		Replacement: "Bearer " + placeholder,
	},
	{
		Name:        "jwt",
		Pattern:     regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{4,}\.[A-Za-z0-9_-]{4,}\b`),
		Replacement: placeholder,
	},
	{
		Name:        "url-basic-auth",
		Pattern:     regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://)([^/\s:@]+):([^/\s@]+)@`),
		Replacement: "${1}" + placeholder + ":" + placeholder + "@",
	},
	{
		Name:        "json-secret-field",
		Pattern:     regexp.MustCompile(`(?i)"([A-Za-z0-9_.-]*(?:access[_-]?token|refresh[_-]?token|id[_-]?token|csrf[_-]?token|session[_-]?id|api[_-]?key|secret|password|authorization)[A-Za-z0-9_.-]*)"\s*:\s*"[^"]+"`),
		Replacement: `"$1": "` + placeholder + `"`,
	},
	{
		Name:        "kv-credential",
		Pattern:     regexp.MustCompile(`(?i)\b([A-Za-z0-9_.-]*(?:key|secret|token|password|passwd|pwd|credential|auth)[A-Za-z0-9_.-]*)([ \t]*[=:][ \t]*)["']?([^\s"',;&]{8,})["']?`),
		Replacement: "$1$2" + placeholder,
	},
	{
		Name:        "storage-set-item",
		Pattern:     regexp.MustCompile(`(?i)\b(localStorage|sessionStorage)\.setItem\(\s*(["'][^"']*["'])\s*,\s*["'][^"']*["']\s*\)`),
		Replacement: `$1.setItem($2, "` + placeholder + `")`,
	},
	{
		Name:        "cookie-assignment",
		Pattern:     regexp.MustCompile(`(?i)\bdocument\.cookie\s*=\s*["'][^"']*["']`),
		Replacement: `document.cookie = "` + placeholder + `"`,
	},
}

// Rules exposes the rule list for tests and tooling. Callers must not mutate it.
func Rules() []Rule {
	return rules
}
