package handler

import (
	"regexp"
	"strings"
)

// Audit trigger heuristics: a thought is audit-worthy iff any of
//  1. a fenced config block is present,
//  2. a fenced code block with a recognized language tag is present,
//  3. the text contains unified-diff markers,
//  4. programming-keyword heuristics match.
// Everything else short-circuits to the non-audit response.

var (
	configBlockRegex = regexp.MustCompile("```(?:config|ganaudit-config)\\s*\\n")
	codeBlockRegex   = regexp.MustCompile("```([A-Za-z][A-Za-z0-9+#-]*)\\s*\\n")
)

// recognizedLanguages are the fenced-block tags that mark auditable code.
var recognizedLanguages = map[string]struct{}{
	"go": {}, "golang": {}, "js": {}, "javascript": {}, "ts": {}, "typescript": {},
	"py": {}, "python": {}, "rust": {}, "java": {}, "c": {}, "cpp": {}, "c++": {},
	"csharp": {}, "cs": {}, "rb": {}, "ruby": {}, "php": {}, "swift": {}, "kotlin": {},
	"scala": {}, "sh": {}, "bash": {}, "shell": {}, "sql": {}, "html": {}, "css": {},
}

// programmingKeywords match bare code pasted without fences. Require two
// distinct hits to keep prose with a stray keyword out of the audit path.
var programmingKeywords = []string{
	"func ", "def ", "class ", "import ", "package ", "return ", "const ",
	"var ", "let ", "public ", "private ", "=> ", "interface ", "struct ",
}

// shouldAudit reports whether the thought text warrants a Codex audit.
func shouldAudit(text string) bool {
	if configBlockRegex.MatchString(text) {
		return true
	}
	if hasRecognizedCodeBlock(text) {
		return true
	}
	if hasDiffMarkers(text) {
		return true
	}
	return keywordHits(text) >= 2
}

func hasRecognizedCodeBlock(text string) bool {
	for _, match := range codeBlockRegex.FindAllStringSubmatch(text, -1) {
		if _, ok := recognizedLanguages[strings.ToLower(match[1])]; ok {
			return true
		}
	}
	return false
}

func hasDiffMarkers(text string) bool {
	return strings.Contains(text, "--- ") &&
		strings.Contains(text, "+++ ") &&
		strings.Contains(text, "@@")
}

func keywordHits(text string) int {
	hits := 0
	for _, keyword := range programmingKeywords {
		if strings.Contains(text, keyword) {
			hits++
		}
	}
	return hits
}
