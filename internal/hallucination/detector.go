// Package hallucination classifies text spans by hallucination risk.
// The pattern set is a data table of (level, name, language, pattern)
// rows so rules can be tuned or extended per language without touching
// the classifier itself.
package hallucination

import "regexp"

// Level is the action a span demands. Higher levels take priority.
type Level int

const (
	// Pass means no risky pattern matched.
	Pass Level = iota
	// Verify marks vague generalizations that merit a source request.
	Verify
	// Soften marks high-certainty rhetoric that weakens academic prose.
	Soften
	// RequireSource marks statistical assertions that must cite a source.
	RequireSource
	// Block marks absolute universal claims that are categorically
	// unsupportable in scholarly text.
	Block
)

// String returns the level name used in diagnostics and logs.
func (l Level) String() string {
	switch l {
	case Pass:
		return "PASS"
	case Verify:
		return "VERIFY"
	case Soften:
		return "SOFTEN"
	case RequireSource:
		return "REQUIRE_SOURCE"
	case Block:
		return "BLOCK"
	}
	return "UNKNOWN"
}

// Rule is one row of the pattern table.
type Rule struct {
	Level   Level
	Name    string
	Lang    string // "en" or "ko"
	Pattern *regexp.Regexp
}

// Match records a rule that fired and the span that triggered it.
type Match struct {
	Rule  string `json:"rule"`
	Level Level  `json:"level"`
	Span  string `json:"span"`
}

// Result is the classification of one text.
type Result struct {
	Level   Level   `json:"level"`
	Matches []Match `json:"matches,omitempty"`
}

// defaultRules is the shipped English + Korean pattern table.
var defaultRules = []Rule{
	// BLOCK: absolute universal claims.
	{Block, "universal-all-studies", "en", regexp.MustCompile(`(?i)\ball\s+studies\s+(agree|show|confirm)\b`)},
	{Block, "universal-every", "en", regexp.MustCompile(`(?i)\bevery\s+(study|researcher|case|participant)\b`)},
	{Block, "universal-never", "en", regexp.MustCompile(`(?i)\bnever\b`)},
	{Block, "universal-completely", "en", regexp.MustCompile(`(?i)\bcompletely\s+(proves?|disproves?|explains?)\b`)},
	{Block, "universal-all-studies", "ko", regexp.MustCompile(`모든\s*연구(가|는)?\s*(일치|동의|증명)`)},
	{Block, "universal-always", "ko", regexp.MustCompile(`항상\s*(그렇|사실|참)`)},

	// REQUIRE_SOURCE: statistical assertions.
	{RequireSource, "stat-p-value", "en", regexp.MustCompile(`(?i)\bp\s*[<>=≤≥]\s*\.?\d`)},
	{RequireSource, "stat-effect-size", "en", regexp.MustCompile(`(?i)\b(effect\s+size\s+)?[dg]\s*=\s*-?[\d.]+`)},
	{RequireSource, "stat-correlation", "en", regexp.MustCompile(`(?i)\b[rβ]\s*=\s*-?[\d.]+`)},
	{RequireSource, "stat-variance", "en", regexp.MustCompile(`(?i)\d+(\.\d+)?\s*%\s+of\s+(the\s+)?variance`)},
	{RequireSource, "stat-variance", "ko", regexp.MustCompile(`분산의\s*\d+(\.\d+)?\s*%`)},
	{RequireSource, "stat-significant", "ko", regexp.MustCompile(`통계적으로\s*유의`)},

	// SOFTEN: overconfident rhetoric.
	{Soften, "certainty-percent", "en", regexp.MustCompile(`(?i)\b100\s*%\s+(certain|sure|accurate|effective)\b`)},
	{Soften, "certainty-exception", "en", regexp.MustCompile(`(?i)\bwithout\s+exception\b`)},
	{Soften, "certainty-undoubtedly", "en", regexp.MustCompile(`(?i)\b(undoubtedly|unquestionably)\b`)},
	{Soften, "certainty-obviously", "en", regexp.MustCompile(`(?i)\b(obviously|clearly\s+proves)\b`)},
	{Soften, "certainty-undoubtedly", "ko", regexp.MustCompile(`의심할\s*여지\s*없이`)},
	{Soften, "certainty-obviously", "ko", regexp.MustCompile(`명백히|분명히`)},

	// VERIFY: vague generalizations.
	{Verify, "vague-in-general", "en", regexp.MustCompile(`(?i)\bin\s+general\b`)},
	{Verify, "vague-most-studies", "en", regexp.MustCompile(`(?i)\bmost\s+(studies|researchers|scholars)\b`)},
	{Verify, "vague-in-general", "ko", regexp.MustCompile(`일반적으로`)},
	{Verify, "vague-most-studies", "ko", regexp.MustCompile(`대부분의\s*연구`)},
}

// Detector classifies text against a rule table.
type Detector struct {
	rules []Rule
}

// NewDetector creates a detector with the default English + Korean rules.
func NewDetector() *Detector {
	return &Detector{rules: defaultRules}
}

// NewDetectorWithRules creates a detector with a custom rule table.
func NewDetectorWithRules(rules []Rule) *Detector {
	return &Detector{rules: rules}
}

// Detect classifies text. The result level is the highest level among
// all matched rules; all matches are reported for diagnostics.
func (d *Detector) Detect(text string) Result {
	result := Result{Level: Pass}
	if text == "" {
		return result
	}

	for _, rule := range d.rules {
		span := rule.Pattern.FindString(text)
		if span == "" {
			continue
		}
		result.Matches = append(result.Matches, Match{
			Rule:  rule.Name,
			Level: rule.Level,
			Span:  span,
		})
		if rule.Level > result.Level {
			result.Level = rule.Level
		}
	}
	return result
}

// Overconfident reports whether the text trips any SOFTEN or BLOCK rule.
// The SRCS uncertainty axis penalizes overconfident claims.
func (d *Detector) Overconfident(text string) bool {
	r := d.Detect(text)
	for _, m := range r.Matches {
		if m.Level == Soften || m.Level == Block {
			return true
		}
	}
	return false
}
