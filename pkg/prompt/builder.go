// Package prompt builds the system prompt block injected into each audit
// request. Composition is a pure function of the inputs; an LRU cache avoids
// recomposing for repeated (task, scope, rubric) combinations.
package prompt

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codeready-toolchain/ganaudit/pkg/models"
)

// separator is a visual delimiter for prompt sections.
const separator = "═══════════════════════════════════════════════════════════════════════════════"

const auditOpener = `You are an adversarial code auditor. Score the candidate strictly against the rubric, cite concrete evidence for every deduction, and never award points for effort or intent.`

const auditRules = `RULES:
1. Score each rubric dimension 0-100 independently before computing the overall.
2. Every inline comment must name a file path and line.
3. A pass verdict requires no critical findings and an overall at or above the threshold.
4. Do not rewrite the candidate; report what is wrong and how to fix it.`

// cacheSize bounds the composed-prompt cache. Composition is cheap; the
// cache only shortcuts the common single-task iteration loop.
const cacheSize = 128

// Builder composes audit system prompts. Thread-safe; the only state is the
// composition cache.
type Builder struct {
	cache *lru.Cache[string, string]
}

// NewBuilder creates a prompt builder.
func NewBuilder() *Builder {
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(fmt.Sprintf("prompt.NewBuilder: %v", err))
	}
	return &Builder{cache: cache}
}

// BuildSystemPrompt composes the system prompt for an audit request.
// Identical inputs always produce identical output.
func (b *Builder) BuildSystemPrompt(task string, scope models.ContextScope, rubric []models.RubricDimension) string {
	key := cacheKey(task, scope, rubric)
	if cached, ok := b.cache.Get(key); ok {
		return cached
	}

	var sb strings.Builder
	sb.WriteString(auditOpener)
	sb.WriteString("\n\n")
	sb.WriteString(separator)
	sb.WriteString("\n\nTASK:\n")
	sb.WriteString(task)
	sb.WriteString("\n\nSCOPE: ")
	sb.WriteString(string(scope))
	sb.WriteString("\n\nRUBRIC:\n")
	for _, d := range rubric {
		fmt.Fprintf(&sb, "- %s (weight %d)\n", d.Name, d.Weight)
	}
	sb.WriteString("\n")
	sb.WriteString(auditRules)

	composed := sb.String()
	b.cache.Add(key, composed)
	return composed
}

func cacheKey(task string, scope models.ContextScope, rubric []models.RubricDimension) string {
	var sb strings.Builder
	sb.WriteString(task)
	sb.WriteByte(0)
	sb.WriteString(string(scope))
	for _, d := range rubric {
		fmt.Fprintf(&sb, "%c%s=%d", 0, d.Name, d.Weight)
	}
	return sb.String()
}
