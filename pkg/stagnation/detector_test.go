package stagnation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/ganaudit/pkg/models"
)

func iterationsOf(codes ...string) []models.IterationRecord {
	records := make([]models.IterationRecord, len(codes))
	for i, code := range codes {
		records[i] = models.IterationRecord{ThoughtNumber: i + 1, Code: code}
	}
	return records
}

func TestIsStagnant_IdenticalContent(t *testing.T) {
	d := NewDetector(0.95, 0.99)
	code := "func add(a, b int) int { return a + b }"

	assert.True(t, d.IsStagnant(iterationsOf(code, code, code)))
	assert.True(t, d.IsIdentical(iterationsOf(code, code, code)))
}

func TestIsStagnant_WhitespaceAndCommentsIgnored(t *testing.T) {
	d := NewDetector(0.95, 0.99)

	a := "func add(a, b int) int { return a + b }"
	b := "// new attempt\nfunc  add(a, b int)  int {\n\treturn a + b\n}"
	c := "func add(a, b int) int { return a + b } /* unchanged */"

	assert.True(t, d.IsStagnant(iterationsOf(a, b, c)),
		"comment and whitespace changes alone are stagnation")
}

func TestIsStagnant_DivergentContent(t *testing.T) {
	d := NewDetector(0.95, 0.99)

	assert.False(t, d.IsStagnant(iterationsOf(
		"func add(a, b int) int { return a + b }",
		"type Server struct { addr string; timeout time.Duration }",
		"var ErrNotFound = errors.New(\"not found\")",
	)))
}

func TestIsStagnant_WindowTooSmall(t *testing.T) {
	d := NewDetector(0.95, 0.99)
	code := "same content"

	assert.False(t, d.IsStagnant(iterationsOf(code)))
	assert.False(t, d.IsStagnant(iterationsOf(code, code)))
	assert.False(t, d.IsStagnant(nil))
}

func TestIsStagnant_OnlyRecentWindowCounts(t *testing.T) {
	d := NewDetector(0.95, 0.99)
	same := "func main() { run() }"

	// Early divergence followed by three identical iterations is stagnant.
	records := iterationsOf("totally different early draft", same, same, same)
	assert.True(t, d.IsStagnant(records))
}

func TestIsStagnant_Deterministic(t *testing.T) {
	d := NewDetector(0.95, 0.99)
	records := iterationsOf("a b c", "a b d", "a b e")

	first := d.IsStagnant(records)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, d.IsStagnant(records))
	}
}

func TestSimilarity(t *testing.T) {
	set := func(tokens ...string) map[string]struct{} {
		s := make(map[string]struct{})
		for _, tok := range tokens {
			s[tok] = struct{}{}
		}
		return s
	}

	tests := []struct {
		a, b map[string]struct{}
		want float64
	}{
		{set("a", "b"), set("a", "b"), 1},
		{set("a", "b"), set("c", "d"), 0},
		{set("a", "b", "c"), set("a", "b", "d"), 0.5},
		{set(), set(), 1},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestIdenticalIsStrongerThanStagnant(t *testing.T) {
	// Thresholds far apart to expose the gap: mostly-similar content is
	// stagnant but not identical.
	d := NewDetector(0.60, 0.99)

	a := "alpha beta gamma delta epsilon zeta"
	b := "alpha beta gamma delta epsilon eta"
	c := "alpha beta gamma delta epsilon theta"

	assert.True(t, d.IsStagnant(iterationsOf(a, b, c)))
	assert.False(t, d.IsIdentical(iterationsOf(a, b, c)))
}
