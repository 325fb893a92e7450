package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// RedactPattern is a custom redaction rule.
type RedactPattern struct {
	// Name identifies the pattern.
	Name string

	// Pattern is the regular expression to match.
	Pattern string

	// Replacement is substituted for each match.
	Replacement string
}

// Redactor masks secrets in log output: API keys, bearer tokens, and
// password-like fields by pattern, plus anything logged under a sensitive
// key name.
type Redactor struct {
	patterns map[string]*redactPattern
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Built-in pattern names.
const (
	PatternAPIKey      = "api_key"
	PatternBearerToken = "bearer_token"
	PatternPassword    = "password"
	PatternCookie      = "cookie"
)

// NewRedactor creates a Redactor with the built-in patterns plus any custom
// ones. Custom patterns with invalid regular expressions are skipped.
func NewRedactor(customPatterns []RedactPattern) *Redactor {
	r := &Redactor{
		patterns: make(map[string]*redactPattern),
	}

	r.addDefaultPatterns()

	for _, p := range customPatterns {
		regex, err := regexp.Compile(p.Pattern)
		if err != nil {
			continue
		}
		r.patterns[p.Name] = &redactPattern{
			name:        p.Name,
			regex:       regex,
			replacement: p.Replacement,
		}
	}

	return r
}

// addDefaultPatterns adds the built-in secret patterns.
func (r *Redactor) addDefaultPatterns() {
	patterns := map[string]struct {
		regex       string
		replacement string
	}{
		// API keys (sk- prefixed, or explicit api_key fields)
		PatternAPIKey: {
			regex:       `(sk-[a-zA-Z0-9]+|api[-_]?key[-_:]\s*[a-zA-Z0-9]+)`,
			replacement: "sk-***",
		},

		// Bearer tokens
		PatternBearerToken: {
			regex:       `Bearer\s+[a-zA-Z0-9\-._~+/]+=*`,
			replacement: "Bearer ***",
		},

		// Generic password fields
		PatternPassword: {
			regex:       `(password|passwd|pwd)[:=]\s*[^\s]+`,
			replacement: "$1: ***",
		},

		// Session cookies
		PatternCookie: {
			regex:       `(cookie|set-cookie)[:=]\s*[^\s]+`,
			replacement: "$1: ***",
		},
	}

	for name, p := range patterns {
		r.patterns[name] = &redactPattern{
			name:        name,
			regex:       regexp.MustCompile(p.regex),
			replacement: p.replacement,
		}
	}
}

// RedactString redacts secrets from a string value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}

	redacted := value
	for _, pattern := range r.patterns {
		redacted = pattern.regex.ReplaceAllString(redacted, pattern.replacement)
	}

	return redacted
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook that masks sensitive
// attributes by key name and applies the string patterns to values.
func (r *Redactor) ReplaceAttr(groups []string, a slog.Attr) slog.Attr {
	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, "***")
	}
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	}
	return a
}

// isSensitiveKey checks if a key name indicates secret material.
func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)

	sensitiveKeys := []string{
		"password", "passwd", "pwd",
		"secret", "token", "api_key", "apikey",
		"authorization",
		"session_id", "message_id",
		"private_key", "privatekey",
	}

	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}

	return false
}
