// Package stagnation flags sessions whose candidate content has stopped
// changing. Detection is a pure function of the iteration window: tokenize
// each candidate with comments stripped and whitespace collapsed, then
// compare token sets pairwise with Jaccard similarity.
package stagnation

import (
	"regexp"
	"strings"

	"github.com/codeready-toolchain/ganaudit/pkg/models"
)

// windowSize is how many recent iterations the detector inspects.
const windowSize = 3

var (
	lineCommentRegex  = regexp.MustCompile(`(?m)(//|#)[^\n]*`)
	blockCommentRegex = regexp.MustCompile(`(?s)/\*.*?\*/`)
	tokenRegex        = regexp.MustCompile(`[A-Za-z0-9_]+|[^\sA-Za-z0-9_]`)
)

// Detector computes stagnation over a window of recent iterations.
type Detector struct {
	stagnationThreshold float64
	identicalThreshold  float64
}

// NewDetector creates a detector with the given similarity thresholds.
// identicalThreshold is the stronger signal and must be >= stagnationThreshold.
func NewDetector(stagnationThreshold, identicalThreshold float64) *Detector {
	return &Detector{
		stagnationThreshold: stagnationThreshold,
		identicalThreshold:  identicalThreshold,
	}
}

// IsStagnant reports whether every pairwise similarity within the window of
// the most recent iterations reaches the stagnation threshold. Fewer
// iterations than the window size can never be stagnant.
func (d *Detector) IsStagnant(iterations []models.IterationRecord) bool {
	return d.allPairsAbove(iterations, d.stagnationThreshold)
}

// IsIdentical reports the stronger signal: all pairwise similarities reach
// the identical-content threshold.
func (d *Detector) IsIdentical(iterations []models.IterationRecord) bool {
	return d.allPairsAbove(iterations, d.identicalThreshold)
}

func (d *Detector) allPairsAbove(iterations []models.IterationRecord, threshold float64) bool {
	if len(iterations) < windowSize {
		return false
	}
	window := iterations[len(iterations)-windowSize:]

	sets := make([]map[string]struct{}, len(window))
	for i, rec := range window {
		sets[i] = tokenSet(rec.Code)
	}

	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			if Similarity(sets[i], sets[j]) < threshold {
				return false
			}
		}
	}
	return true
}

// Similarity is the Jaccard index of two token sets: |A∩B| / |A∪B|.
// Two empty sets count as identical.
func Similarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 1
	}
	return float64(intersection) / float64(union)
}

// tokenSet normalizes candidate content into a token set: comments removed,
// whitespace collapsed, identifiers and punctuation split into tokens.
func tokenSet(code string) map[string]struct{} {
	code = blockCommentRegex.ReplaceAllString(code, " ")
	code = lineCommentRegex.ReplaceAllString(code, " ")
	code = strings.Join(strings.Fields(code), " ")

	set := make(map[string]struct{})
	for _, token := range tokenRegex.FindAllString(code, -1) {
		set[token] = struct{}{}
	}
	return set
}
