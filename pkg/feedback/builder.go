// Package feedback turns an audit review plus session history into the
// structured improvement document consumed by the upstream agent. Building is
// deterministic and does no I/O; all outbound text passes through the masking
// service before emission.
package feedback

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/codeready-toolchain/ganaudit/pkg/masking"
	"github.com/codeready-toolchain/ganaudit/pkg/models"
)

// Severity buckets for evidence rows.
const (
	SeverityCritical = "critical"
	SeverityMajor    = "major"
	SeverityMinor    = "minor"
)

// acceptableDimensionScore is the per-dimension bar used for unmet
// acceptance criteria and traceability coverage.
const acceptableDimensionScore = 85

// EvidenceRow is one row of the evidence table.
type EvidenceRow struct {
	Issue      string `json:"issue"`
	Severity   string `json:"severity"`
	Location   string `json:"location"`
	Proof      string `json:"proof"`
	FixSummary string `json:"fixSummary"`
}

// ProposedDiff is a unified-diff fragment for a small isolated fix.
type ProposedDiff struct {
	Path    string `json:"path"`
	Diff    string `json:"diff"`
	IsTest  bool   `json:"isTest"`
	Comment string `json:"comment"`
}

// TraceabilityRow maps an acceptance criterion to implementation and tests.
type TraceabilityRow struct {
	Criterion      string `json:"criterion"`
	Implementation string `json:"implementation"`
	Tests          string `json:"tests"`
	Covered        bool   `json:"covered"`
}

// FollowUp is one priority-ordered actionable item.
type FollowUp struct {
	Priority int    `json:"priority"`
	Action   string `json:"action"`
}

// Document is the complete structured feedback payload.
type Document struct {
	Ship          bool              `json:"ship"`
	Summary       []string          `json:"summary"`
	Evidence      []EvidenceRow     `json:"evidence,omitempty"`
	ProposedDiffs []ProposedDiff    `json:"proposedDiffs,omitempty"`
	ReproCommands []string          `json:"reproCommands,omitempty"`
	Traceability  []TraceabilityRow `json:"traceability,omitempty"`
	UnmetCriteria []string          `json:"unmetCriteria,omitempty"`
	FollowUps     []FollowUp        `json:"followUps,omitempty"`
}

// Builder assembles feedback documents.
type Builder struct {
	sanitizer *masking.Service
}

// NewBuilder creates a builder backed by the given sanitizer.
func NewBuilder(sanitizer *masking.Service) *Builder {
	return &Builder{sanitizer: sanitizer}
}

// Build produces the feedback document for one audit. history is the
// session's iterations up to and including this audit.
func (b *Builder) Build(review *models.AuditReview, history []models.IterationRecord) *Document {
	doc := &Document{
		Ship: review.Verdict == models.VerdictPass,
	}

	dims := sortedDimensions(review.Dimensions)
	criticalCount := countCritical(review.Review.Inline)

	doc.Summary = b.summaryBullets(review, dims, criticalCount, len(history))
	doc.Evidence = b.evidenceRows(review.Review.Inline)
	doc.ProposedDiffs = b.proposedDiffs(review.Review.Inline)
	doc.ReproCommands = b.reproCommands(review.Review.Inline)
	doc.Traceability, doc.UnmetCriteria = b.traceability(dims)
	doc.FollowUps = b.followUps(dims, criticalCount)

	b.sanitizeDocument(doc)
	return doc
}

// summaryBullets emits 3–6 executive bullets: verdict, strongest and weakest
// dimensions, critical-issue count, risk level, and the iteration number when
// history holds more than one record.
func (b *Builder) summaryBullets(review *models.AuditReview, dims []models.DimensionScore, criticalCount, historyLen int) []string {
	bullets := []string{
		fmt.Sprintf("Verdict: %s (overall %d/100)", review.Verdict, review.Overall),
	}
	if len(dims) > 0 {
		strongest := dims[len(dims)-1]
		weakest := dims[0]
		bullets = append(bullets,
			fmt.Sprintf("Strongest dimension: %s (%d)", strongest.Name, strongest.Score),
			fmt.Sprintf("Weakest dimension: %s (%d)", weakest.Name, weakest.Score))
	}
	bullets = append(bullets, fmt.Sprintf("Critical issues: %d", criticalCount))
	bullets = append(bullets, fmt.Sprintf("Risk level: %s", riskLevel(review.Overall, criticalCount)))
	if historyLen > 1 {
		bullets = append(bullets, fmt.Sprintf("Iteration %d of this session", historyLen))
	}
	return bullets
}

func (b *Builder) evidenceRows(inline []models.InlineComment) []EvidenceRow {
	rows := make([]EvidenceRow, 0, len(inline))
	for _, c := range inline {
		rows = append(rows, EvidenceRow{
			Issue:      firstSentence(c.Comment),
			Severity:   severityOf(c.Comment),
			Location:   fmt.Sprintf("%s:%d", c.Path, c.Line),
			Proof:      c.Comment,
			FixSummary: fixSummary(c.Comment),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return severityRank(rows[i].Severity) < severityRank(rows[j].Severity)
	})
	return rows
}

// proposedDiffs emits placeholder unified-diff fragments for isolated fixes,
// test files first so fixes land test-first.
func (b *Builder) proposedDiffs(inline []models.InlineComment) []ProposedDiff {
	var diffs []ProposedDiff
	for _, c := range inline {
		if c.Path == "" {
			continue
		}
		diffs = append(diffs, ProposedDiff{
			Path:    c.Path,
			IsTest:  strings.HasSuffix(strings.TrimSuffix(c.Path, path.Ext(c.Path)), "_test"),
			Diff:    fmt.Sprintf("--- a/%s\n+++ b/%s\n@@ -%d,1 +%d,1 @@\n", c.Path, c.Path, c.Line, c.Line),
			Comment: firstSentence(c.Comment),
		})
	}
	sort.SliceStable(diffs, func(i, j int) bool {
		if diffs[i].IsTest != diffs[j].IsTest {
			return diffs[i].IsTest
		}
		return diffs[i].Path < diffs[j].Path
	})
	return diffs
}

// reproCommands emits one deterministic test command per affected package.
func (b *Builder) reproCommands(inline []models.InlineComment) []string {
	seen := make(map[string]struct{})
	var commands []string
	for _, c := range inline {
		if c.Path == "" {
			continue
		}
		dir := path.Dir(c.Path)
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		commands = append(commands, fmt.Sprintf("go test ./%s/...", dir))
	}
	sort.Strings(commands)
	return commands
}

// traceability maps each rubric dimension to an acceptance criterion with its
// coverage status; dimensions under the bar become unmet criteria.
func (b *Builder) traceability(dims []models.DimensionScore) ([]TraceabilityRow, []string) {
	rows := make([]TraceabilityRow, 0, len(dims))
	var unmet []string
	for _, d := range dims {
		covered := d.Score >= acceptableDimensionScore
		rows = append(rows, TraceabilityRow{
			Criterion:      fmt.Sprintf("%s meets the audit bar", d.Name),
			Implementation: "candidate under audit",
			Tests:          "see repro commands",
			Covered:        covered,
		})
		if !covered {
			unmet = append(unmet, fmt.Sprintf("%s scored %d, below %d", d.Name, d.Score, acceptableDimensionScore))
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Criterion < rows[j].Criterion })
	sort.Strings(unmet)
	return rows, unmet
}

// followUps orders work by leverage: critical issues, then the weakest
// dimensions in ascending score order.
func (b *Builder) followUps(dims []models.DimensionScore, criticalCount int) []FollowUp {
	var followUps []FollowUp
	priority := 1
	if criticalCount > 0 {
		followUps = append(followUps, FollowUp{
			Priority: priority,
			Action:   fmt.Sprintf("Resolve the %d critical issue(s) before anything else", criticalCount),
		})
		priority++
	}
	for _, d := range dims {
		if d.Score >= acceptableDimensionScore {
			break
		}
		followUps = append(followUps, FollowUp{
			Priority: priority,
			Action:   fmt.Sprintf("Raise %s from %d toward %d", d.Name, d.Score, acceptableDimensionScore),
		})
		priority++
	}
	return followUps
}

func (b *Builder) sanitizeDocument(doc *Document) {
	for i := range doc.Summary {
		doc.Summary[i] = b.sanitizer.Sanitize(doc.Summary[i])
	}
	for i := range doc.Evidence {
		doc.Evidence[i].Issue = b.sanitizer.Sanitize(doc.Evidence[i].Issue)
		doc.Evidence[i].Proof = b.sanitizer.Sanitize(doc.Evidence[i].Proof)
		doc.Evidence[i].FixSummary = b.sanitizer.Sanitize(doc.Evidence[i].FixSummary)
		doc.Evidence[i].Location = b.sanitizer.Sanitize(doc.Evidence[i].Location)
	}
	for i := range doc.ProposedDiffs {
		doc.ProposedDiffs[i].Comment = b.sanitizer.Sanitize(doc.ProposedDiffs[i].Comment)
		doc.ProposedDiffs[i].Diff = b.sanitizer.Sanitize(doc.ProposedDiffs[i].Diff)
	}
	for i := range doc.UnmetCriteria {
		doc.UnmetCriteria[i] = b.sanitizer.Sanitize(doc.UnmetCriteria[i])
	}
	for i := range doc.FollowUps {
		doc.FollowUps[i].Action = b.sanitizer.Sanitize(doc.FollowUps[i].Action)
	}
}

// sortedDimensions returns dimensions ascending by score, name as tiebreak.
func sortedDimensions(dims []models.DimensionScore) []models.DimensionScore {
	sorted := make([]models.DimensionScore, len(dims))
	copy(sorted, dims)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score < sorted[j].Score
		}
		return sorted[i].Name < sorted[j].Name
	})
	return sorted
}

// HasCriticalIssue reports whether any inline comment is flagged critical.
// Shared with the completion evaluator's critical-persistence kill switch.
func HasCriticalIssue(inline []models.InlineComment) bool {
	return countCritical(inline) > 0
}

func countCritical(inline []models.InlineComment) int {
	count := 0
	for _, c := range inline {
		if severityOf(c.Comment) == SeverityCritical {
			count++
		}
	}
	return count
}

// severityOf buckets a comment by its marker keywords.
func severityOf(comment string) string {
	lower := strings.ToLower(comment)
	switch {
	case strings.Contains(lower, "critical") || strings.Contains(lower, "security") ||
		strings.Contains(lower, "vulnerability") || strings.Contains(lower, "data loss"):
		return SeverityCritical
	case strings.Contains(lower, "bug") || strings.Contains(lower, "incorrect") ||
		strings.Contains(lower, "race") || strings.Contains(lower, "leak"):
		return SeverityMajor
	default:
		return SeverityMinor
	}
}

func severityRank(severity string) int {
	switch severity {
	case SeverityCritical:
		return 0
	case SeverityMajor:
		return 1
	default:
		return 2
	}
}

func riskLevel(overall, criticalCount int) string {
	switch {
	case criticalCount > 0 || overall < 50:
		return "high"
	case overall < 85:
		return "medium"
	default:
		return "low"
	}
}

func firstSentence(s string) string {
	if idx := strings.IndexAny(s, ".!?\n"); idx > 0 {
		return strings.TrimSpace(s[:idx+1])
	}
	return strings.TrimSpace(s)
}

// fixSummary extracts an imperative fix hint from the comment when one is
// marked, falling back to the first sentence.
func fixSummary(comment string) string {
	lower := strings.ToLower(comment)
	for _, marker := range []string{"fix:", "suggestion:", "should "} {
		if idx := strings.Index(lower, marker); idx >= 0 {
			return strings.TrimSpace(comment[idx:])
		}
	}
	return firstSentence(comment)
}
