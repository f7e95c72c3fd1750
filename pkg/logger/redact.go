package logger

import (
	"regexp"
	"unicode/utf8"
)

// maxRedactedLen caps upstream bodies kept on errors and in log lines.
const maxRedactedLen = 2048

var (
	emailPattern      = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	credentialPattern = regexp.MustCompile(`(?i)\b(basic|bearer)\s+[A-Za-z0-9._~+/=\-]+`)
	secretPairPattern = regexp.MustCompile(`(?i)("?(?:[a-z_]*token|secret|password|api[_-]?key|authorization|recaptcha)"?\s*[:=]\s*)("[^"]*"|[^\s,&}]+)`)
)

// Redact masks email addresses, HTTP credentials and secret-looking key/value
// pairs in s, then truncates it. Use it on every upstream body before it is
// logged or attached to an error.
func Redact(s string) string {
	s = credentialPattern.ReplaceAllString(s, "$1 [REDACTED]")
	s = secretPairPattern.ReplaceAllString(s, `$1"[REDACTED]"`)
	s = emailPattern.ReplaceAllString(s, "[EMAIL]")
	if len(s) > maxRedactedLen {
		cut := maxRedactedLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "...(truncated)"
	}
	return s
}
