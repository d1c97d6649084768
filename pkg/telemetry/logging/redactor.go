package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Redactor hides tenant identities and secrets in log fields.
//
// Values logged under a tenant field ("tenant", "key", "tenant_key") are
// replaced by a stable hash so that a tenant's records can still be
// correlated. Other string values are scanned for emails, IP addresses and
// bearer tokens.
type Redactor struct {
	patterns []redactPattern
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// tenantFields are log keys whose values are tenant keys.
var tenantFields = map[string]bool{
	"tenant":     true,
	"key":        true,
	"tenant_key": true,
}

// NewRedactor creates a Redactor with the built-in patterns.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []redactPattern{
			{
				regex:       regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-._~+/]+=*`),
				replacement: "Bearer ***",
			},
			{
				regex:       regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
				replacement: "***@***",
			},
			{
				regex:       regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
				replacement: "*.*.*.*",
			},
		},
	}
}

// HashKey returns a short stable digest of a tenant key ("key:3fa2c1d0").
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "key:" + hex.EncodeToString(sum[:4])
}

// RedactString masks secrets in a free-form string.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// RedactArgs redacts variadic log arguments of the form k1, v1, k2, v2, ...
func (r *Redactor) RedactArgs(args ...any) []any {
	if len(args) == 0 {
		return args
	}

	redacted := make([]any, len(args))
	copy(redacted, args)

	for i := 1; i < len(redacted); i += 2 {
		str, ok := redacted[i].(string)
		if !ok {
			continue
		}

		if key, ok := redacted[i-1].(string); ok && tenantFields[strings.ToLower(key)] {
			redacted[i] = HashKey(str)
			continue
		}
		redacted[i] = r.RedactString(str)
	}

	return redacted
}
