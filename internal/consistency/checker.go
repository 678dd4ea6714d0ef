// Package consistency performs pairwise claim comparison across waves
// to detect contradictions and numeric discrepancies. The comparison is
// intentionally quadratic across waves; the memory manager keeps both
// sides bounded, so the absolute cost stays finite for any workflow
// length.
package consistency

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/praxislabs/thesisd/internal/claims"
)

// Severity weights feed the consistency score deduction.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

var severityWeight = map[Severity]float64{
	SeverityHigh:   15,
	SeverityMedium: 8,
	SeverityLow:    3,
}

// InconsistencyType classifies a finding.
type InconsistencyType string

const (
	TypeContradiction   InconsistencyType = "CONTRADICTION"
	TypeNumericMismatch InconsistencyType = "NUMERIC_MISMATCH"
)

// ClaimRef points at one side of a finding.
type ClaimRef struct {
	ClaimID  string `json:"claim_id"`
	Document string `json:"document"`
	Excerpt  string `json:"excerpt"`
}

// Inconsistency is one cross-wave finding.
type Inconsistency struct {
	Type     InconsistencyType `json:"type"`
	Severity Severity          `json:"severity"`
	Topic    string            `json:"topic"`
	Detail   string            `json:"detail"`
	Earlier  ClaimRef          `json:"earlier"`
	Later    ClaimRef          `json:"later"`
}

// Report is the outcome of checking one wave against its predecessors.
type Report struct {
	Score           float64         `json:"score"`
	Pass            bool            `json:"pass"`
	TotalClaims     int             `json:"total_claims"`
	ComparedPairs   int             `json:"compared_pairs"`
	Inconsistencies []Inconsistency `json:"inconsistencies,omitempty"`
}

// opposingPair is one row of the contradiction table: two patterns that
// cannot both hold over a shared subject.
type opposingPair struct {
	name  string
	topic string
	a     *regexp.Regexp
	b     *regexp.Regexp
}

var opposingPairs = []opposingPair{
	{
		name:  "effect-direction",
		topic: "effect",
		a:     regexp.MustCompile(`(?i)\bpositive\s+effect\b`),
		b:     regexp.MustCompile(`(?i)\bnegative\s+effect\b`),
	},
	{
		name:  "significance",
		topic: "significance",
		a:     regexp.MustCompile(`(?i)\b(statistically\s+)?significant\b`),
		b:     regexp.MustCompile(`(?i)\b(not\s+(statistically\s+)?significant|no\s+significant)\b`),
	},
	{
		name:  "support",
		topic: "support",
		a:     regexp.MustCompile(`(?i)\bsupports?\b|\bconfirms?\b`),
		b:     regexp.MustCompile(`(?i)\brefutes?\b|\bcontradicts?\b`),
	},
	{
		name:  "trend-direction",
		topic: "trend",
		a:     regexp.MustCompile(`(?i)\bincreases?\b|\bincreased\b`),
		b:     regexp.MustCompile(`(?i)\bdecreases?\b|\bdecreased\b`),
	},
}

// Checker compares claims across completed waves.
type Checker struct {
	threshold float64
}

// NewChecker creates a checker with the given pass threshold.
func NewChecker(threshold float64) *Checker {
	return &Checker{threshold: threshold}
}

// Check compares the completed wave's claims against the accumulated
// claims of all earlier waves. With no earlier claims the report is a
// clean 100.
func (c *Checker) Check(current, previous []claims.Claim) Report {
	report := Report{
		Score:       100,
		Pass:        true,
		TotalClaims: len(current) + len(previous),
	}
	if len(previous) == 0 || len(current) == 0 {
		return report
	}

	for i := range previous {
		for j := range current {
			report.ComparedPairs++
			report.Inconsistencies = append(report.Inconsistencies,
				comparePair(&previous[i], &current[j])...)
		}
	}

	var deduction float64
	for _, inc := range report.Inconsistencies {
		deduction += severityWeight[inc.Severity]
	}
	score := 100 - deduction/(float64(report.TotalClaims)*10)
	report.Score = math.Max(0, math.Min(100, score))
	report.Pass = report.Score >= c.threshold

	return report
}

// comparePair detects contradictions and numeric mismatches between two
// claims from different waves.
func comparePair(earlier, later *claims.Claim) []Inconsistency {
	var findings []Inconsistency

	// Contradictions require a shared subject: overlapping content words
	// beyond the opposing phrases themselves.
	if sharedSubject(earlier.Text, later.Text) {
		for _, pair := range opposingPairs {
			forward := pair.a.MatchString(earlier.Text) && pair.b.MatchString(later.Text)
			backward := pair.b.MatchString(earlier.Text) && pair.a.MatchString(later.Text)

			// The significance pair's positive pattern is a substring of
			// its negative pattern; a text matching the negative form
			// must not count as the positive form too.
			if pair.name == "significance" {
				if pair.b.MatchString(earlier.Text) {
					forward = false
				}
				if pair.b.MatchString(later.Text) {
					backward = false
				}
			}

			if forward || backward {
				findings = append(findings, Inconsistency{
					Type:     TypeContradiction,
					Severity: SeverityHigh,
					Topic:    pair.topic,
					Detail:   fmt.Sprintf("opposing %s statements across waves", pair.name),
					Earlier:  ref(earlier),
					Later:    ref(later),
				})
			}
		}
	}

	findings = append(findings, numericMismatches(earlier, later)...)
	return findings
}

// numberContext captures a numeric value and the noun context before it.
var numberContext = regexp.MustCompile(`([A-Za-z가-힣][A-Za-z가-힣-]*)\s+(?:was|were|of|is|at|=|:)?\s*(-?\d+(?:\.\d+)?)`)

// numericMismatches flags the same noun context carrying values that
// differ by more than 10% (MEDIUM) or 20% (HIGH).
func numericMismatches(earlier, later *claims.Claim) []Inconsistency {
	earlierVals := extractNumbers(earlier.Text)
	if len(earlierVals) == 0 {
		return nil
	}
	laterVals := extractNumbers(later.Text)

	var findings []Inconsistency
	for ctx, a := range earlierVals {
		b, ok := laterVals[ctx]
		if !ok {
			continue
		}
		diff := relativeDiff(a, b)
		var severity Severity
		switch {
		case diff > 0.20:
			severity = SeverityHigh
		case diff > 0.10:
			severity = SeverityMedium
		default:
			continue
		}
		findings = append(findings, Inconsistency{
			Type:     TypeNumericMismatch,
			Severity: severity,
			Topic:    ctx,
			Detail:   fmt.Sprintf("%s reported as %v and %v (%.0f%% apart)", ctx, a, b, diff*100),
			Earlier:  ref(earlier),
			Later:    ref(later),
		})
	}
	return findings
}

func extractNumbers(text string) map[string]float64 {
	result := make(map[string]float64)
	for _, m := range numberContext.FindAllStringSubmatch(text, -1) {
		ctx := strings.ToLower(m[1])
		if stopwords[ctx] {
			continue
		}
		if v, err := strconv.ParseFloat(m[2], 64); err == nil {
			result[ctx] = v
		}
	}
	return result
}

func relativeDiff(a, b float64) float64 {
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return 0
	}
	return math.Abs(a-b) / denom
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "on": true, "in": true,
	"to": true, "and": true, "or": true, "has": true, "have": true, "had": true,
	"is": true, "are": true, "was": true, "were": true, "that": true, "this": true,
	"with": true, "for": true, "by": true, "at": true, "from": true,
}

// sharedSubject requires at least two overlapping content words.
func sharedSubject(a, b string) bool {
	overlap := 0
	bWords := contentWords(b)
	for w := range contentWords(a) {
		if bWords[w] {
			overlap++
			if overlap >= 2 {
				return true
			}
		}
	}
	return false
}

func contentWords(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:()[]\"'")
		if w == "" || stopwords[w] {
			continue
		}
		words[w] = true
	}
	return words
}

func ref(c *claims.Claim) ClaimRef {
	excerpt := c.Text
	if len(excerpt) > 120 {
		excerpt = excerpt[:120] + "..."
	}
	return ClaimRef{ClaimID: c.ID, Document: c.Document, Excerpt: excerpt}
}
