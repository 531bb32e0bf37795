package logging

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder replaces anything that looks like a secret.
const RedactedPlaceholder = "[REDACTED]"

var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),                // OpenAI keys
	regexp.MustCompile(`AIza[A-Za-z0-9_-]{35}`),                // Google / Gemini keys
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]{20,}`), // Authorization headers
	regexp.MustCompile(`(?i)toolbox_session=[A-Za-z0-9_-]+`),   // session cookie values
	regexp.MustCompile(`(?i)redis://[^:@/\s]*:[^@\s]+@`),       // Redis URLs with a password
	regexp.MustCompile(`(?i)(password|secret|token|api_?key)\s*[:=]\s*[^\s,;]{6,}`),
	regexp.MustCompile(`\$2[aby]\$\d{2}\$[./A-Za-z0-9]{53}`), // bcrypt hashes
}

// sensitiveNames are substrings of field or variable names whose values are
// never logged.
var sensitiveNames = []string{
	"PASSWORD",
	"SECRET",
	"TOKEN",
	"API_KEY",
	"APIKEY",
	"SESSION_ID",
	"COOKIE",
	"REDIS_URL",
	"IMAGE_BASE64",
	"IMAGEBASE64",
}

// RedactSensitiveData replaces every secret-looking substring of value.
//
// Example:
//
//	RedactSensitiveData("key sk-abcdefghijklmnopqrstuv") // "key [REDACTED]"
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}
	for _, p := range sensitivePatterns {
		value = p.ReplaceAllString(value, RedactedPlaceholder)
	}
	return value
}

// IsSensitiveField reports whether a field named name must be redacted
// regardless of its value.
func IsSensitiveField(name string) bool {
	upper := strings.ToUpper(name)
	for _, s := range sensitiveNames {
		if strings.Contains(upper, s) {
			return true
		}
	}
	return false
}

// ContainsSensitiveData reports whether value matches any secret pattern.
func ContainsSensitiveData(value string) bool {
	for _, p := range sensitivePatterns {
		if p.MatchString(value) {
			return true
		}
	}
	return false
}
