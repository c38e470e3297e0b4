package observability

import (
	"strings"
	"unicode"
)

// clean drops control characters other than whitespace and caps the rune count.
func clean(value string, limit int) string {
	out := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, value)
	if runes := []rune(out); len(runes) > limit {
		out = string(runes[:limit])
	}
	return out
}

// SanitizeRoute makes a route pattern safe for log fields.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return clean(route, 180)
}

// SanitizeMethod makes an HTTP method safe for log fields.
func SanitizeMethod(method string) string {
	return clean(method, 10)
}

// SanitizeSubject bounds an authenticated subject (admin username or service account).
func SanitizeSubject(subject string) string {
	return clean(subject, 64)
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok || local == "" {
		return ""
	}
	return local[:1] + "***@" + domain
}
