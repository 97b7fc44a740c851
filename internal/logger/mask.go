package logger

import "regexp"

// Patterns for credentials that must never appear in log output:
// Discord bot tokens, Gemini API keys, and recording access keys in URLs.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:Bot\s+)?[A-Za-z0-9_-]{24,}\.[A-Za-z0-9_-]{6,7}\.[A-Za-z0-9_-]{27,}`),
	regexp.MustCompile(`AIza[A-Za-z0-9_-]{30,}`),
	regexp.MustCompile(`\?key=[a-zA-Z0-9]{6,}`),
}

// Mask redacts credentials in s, keeping a short prefix for correlation.
func Mask(s string) string {
	for _, re := range sensitivePatterns {
		s = re.ReplaceAllStringFunc(s, func(m string) string {
			if len(m) > 5 && m[:5] == "?key=" {
				return "?key=***"
			}
			if len(m) > 8 {
				return m[:8] + "***"
			}
			return "***"
		})
	}
	return s
}
