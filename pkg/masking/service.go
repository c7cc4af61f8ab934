// Package masking redacts sensitive data from outbound feedback: secret-like
// strings, PII, and absolute home paths are replaced with placeholders before
// any text leaves the server.
package masking

import (
	"log/slog"
	"regexp"
)

// Pattern is one redaction rule applied to outbound text.
type Pattern struct {
	Name        string
	Pattern     string
	Replacement string
	Description string
}

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// builtinPatterns covers the categories the feedback builder must never leak.
// Order matters: secret assignments run before the generic token patterns so
// the more specific replacement wins.
func builtinPatterns() []Pattern {
	return []Pattern{
		{
			Name:        "api_key_assignment",
			Pattern:     `(?i)(api[_-]?key|apikey|secret|token|password|passwd|authorization)(["']?\s*[:=]\s*["']?(?:bearer\s+)?)[^\s"',;]{6,}`,
			Replacement: `$1$2[REDACTED_SECRET]`,
			Description: "Key/value assignments of secret-bearing names",
		},
		{
			Name:        "bearer_token",
			Pattern:     `(?i)bearer\s+[A-Za-z0-9._~+/-]{16,}=*`,
			Replacement: `Bearer [REDACTED_TOKEN]`,
			Description: "HTTP bearer tokens",
		},
		{
			Name:        "openai_key",
			Pattern:     `sk-[A-Za-z0-9_-]{20,}`,
			Replacement: `[REDACTED_API_KEY]`,
			Description: "OpenAI-style API keys",
		},
		{
			Name:        "email",
			Pattern:     `[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`,
			Replacement: `[REDACTED_EMAIL]`,
			Description: "Email addresses",
		},
		{
			Name:        "ssn",
			Pattern:     `\b\d{3}-\d{2}-\d{4}\b`,
			Replacement: `[REDACTED_SSN]`,
			Description: "US social security numbers",
		},
		{
			Name:        "credit_card",
			Pattern:     `\b(?:\d[ -]?){13,16}\b`,
			Replacement: `[REDACTED_CARD]`,
			Description: "Credit card numbers",
		},
		{
			Name:        "phone",
			Pattern:     `\b(?:\+\d{1,3}[ .-])?\(?\d{3}\)?[ .-]?\d{3}[ .-]?\d{4}\b`,
			Replacement: `[REDACTED_PHONE]`,
			Description: "Phone numbers",
		},
		{
			Name:        "home_path",
			Pattern:     `(?:/home/|/Users/|C:\\Users\\)[^\s/\\]+`,
			Replacement: `[HOME]`,
			Description: "Absolute home directory paths",
		},
	}
}

// Service applies redaction patterns to outbound text. Created once at
// startup; thread-safe and stateless aside from compiled patterns.
type Service struct {
	patterns []*CompiledPattern
}

// NewService compiles the built-in patterns plus any extras. Invalid patterns
// are logged and skipped — a bad extra pattern must not disable redaction.
func NewService(extras ...Pattern) *Service {
	s := &Service{}
	for _, p := range append(builtinPatterns(), extras...) {
		compiled, err := regexp.Compile(p.Pattern)
		if err != nil {
			slog.Error("Failed to compile masking pattern, skipping",
				"pattern", p.Name, "error", err)
			continue
		}
		s.patterns = append(s.patterns, &CompiledPattern{
			Name:        p.Name,
			Regex:       compiled,
			Replacement: p.Replacement,
		})
	}
	return s
}

// Sanitize applies every compiled pattern to the text, in order.
func (s *Service) Sanitize(text string) string {
	if text == "" {
		return text
	}
	for _, p := range s.patterns {
		text = p.Regex.ReplaceAllString(text, p.Replacement)
	}
	return text
}
