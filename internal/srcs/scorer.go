// Package srcs computes the four-axis evaluative quality score for a
// claim: citation, grounding, uncertainty and verifiability. SRCS is
// the deep gate signal; the predictive pTCS gate consumes its axes.
package srcs

import (
	"regexp"

	"github.com/praxislabs/thesisd/internal/claims"
	"github.com/praxislabs/thesisd/internal/hallucination"
)

// Weights blend the four axes into the total.
type Weights struct {
	Citation      float64 `json:"citation"`
	Grounding     float64 `json:"grounding"`
	Uncertainty   float64 `json:"uncertainty"`
	Verifiability float64 `json:"verifiability"`
}

// DefaultWeights is the standard weight vector.
var DefaultWeights = Weights{Citation: 0.35, Grounding: 0.35, Uncertainty: 0.10, Verifiability: 0.20}

// PhilosophicalWeights shifts weight toward uncertainty and
// verifiability for philosophical projects.
var PhilosophicalWeights = Weights{Citation: 0.30, Grounding: 0.30, Uncertainty: 0.15, Verifiability: 0.25}

// DefaultPassThreshold is the minimum passing total.
const DefaultPassThreshold = 75.0

// Score is a scored claim.
type Score struct {
	ClaimID       string  `json:"claim_id"`
	Citation      float64 `json:"citation"`
	Grounding     float64 `json:"grounding"`
	Uncertainty   float64 `json:"uncertainty"`
	Verifiability float64 `json:"verifiability"`
	Total         float64 `json:"total"`
	Pass          bool    `json:"pass"`
}

// Total computes the weighted sum of axes.
func (w Weights) Total(cs, gs, us, vs float64) float64 {
	return cs*w.Citation + gs*w.Grounding + us*w.Uncertainty + vs*w.Verifiability
}

// Scorer computes SRCS scores.
type Scorer struct {
	weights       Weights
	threshold     float64
	philosophical bool
	detector      *hallucination.Detector
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithThreshold overrides the pass threshold.
func WithThreshold(threshold float64) Option {
	return func(s *Scorer) { s.threshold = threshold }
}

// WithPhilosophical switches to the philosophical weight vector and
// grounding pattern set.
func WithPhilosophical() Option {
	return func(s *Scorer) {
		s.philosophical = true
		s.weights = PhilosophicalWeights
	}
}

// NewScorer creates a scorer with default weights and threshold.
func NewScorer(detector *hallucination.Detector, opts ...Option) *Scorer {
	s := &Scorer{
		weights:   DefaultWeights,
		threshold: DefaultPassThreshold,
		detector:  detector,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Weights returns the active weight vector.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score computes the four axes and weighted total for one claim.
func (s *Scorer) Score(c *claims.Claim) Score {
	cs := s.citationScore(c)
	gs := s.groundingScore(c)
	us := s.uncertaintyScore(c)
	vs := s.verifiabilityScore(c)
	total := s.weights.Total(cs, gs, us, vs)

	return Score{
		ClaimID:       c.ID,
		Citation:      cs,
		Grounding:     gs,
		Uncertainty:   us,
		Verifiability: vs,
		Total:         total,
		Pass:          total >= s.threshold,
	}
}

// ScoreAll scores a batch of claims.
func (s *Scorer) ScoreAll(batch []claims.Claim) []Score {
	scores := make([]Score, len(batch))
	for i := range batch {
		scores[i] = s.Score(&batch[i])
	}
	return scores
}

// citationScore averages per-source citation quality.
func (s *Scorer) citationScore(c *claims.Claim) float64 {
	if len(c.Sources) == 0 {
		return 0
	}

	var sum float64
	for _, src := range c.Sources {
		var score float64
		switch src.Type {
		case claims.SourcePrimary:
			score += 40
		case claims.SourceSecondary:
			score += 25
		case claims.SourceTertiary:
			score += 10
		}
		if src.Verified {
			score += 30
		}
		if src.Reference != "" {
			score += 20
		}
		if src.DOI != "" {
			score += 10
		}
		sum += score
	}
	return clamp(sum / float64(len(c.Sources)))
}

// Grounding pattern sets. Statistical patterns apply to the empirical
// family; theoretical patterns to theory-driven claim types; the
// philosophical set replaces both for philosophical projects.
var (
	statisticalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b[rdgβ]\s*=\s*-?[\d.]+`),
		regexp.MustCompile(`(?i)\bp\s*[<>=≤≥]\s*\.?\d`),
		regexp.MustCompile(`(?i)\b[nN]\s*=\s*\d+`),
	}
	theoreticalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b\w+('s)?\s+theory\b|\btheory\s+of\b`),
		regexp.MustCompile(`(?i)\bframework\b|\bmodel\s+of\b`),
		regexp.MustCompile(`(?i)\baccording\s+to\b|\bsuggests?\b|\bproposes?\b`),
	}
	philosophicalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bpremise\b|\bpremises\b`),
		regexp.MustCompile(`(?i)\bconclusion\b|\bit\s+follows\s+that\b|\btherefore\b`),
		regexp.MustCompile(`(?i)\bnecessary\s+condition\b|\bsufficient\s+condition\b`),
	}
)

const groundingPatternBonus = 15

// groundingScore rewards claims whose text shows its evidential work.
func (s *Scorer) groundingScore(c *claims.Claim) float64 {
	var score float64
	if len(c.Sources) > 0 {
		score = 30
	}

	for _, p := range s.groundingPatterns(c.Type) {
		if p.MatchString(c.Text) {
			score += groundingPatternBonus
		}
	}

	// Statistics without any source is a grounding defect regardless of
	// which pattern set matched.
	if len(c.Sources) == 0 && containsAny(c.Text, statisticalPatterns) {
		score -= 15
	}

	return clamp(score)
}

func (s *Scorer) groundingPatterns(t claims.ClaimType) []*regexp.Regexp {
	if s.philosophical {
		return philosophicalPatterns
	}
	switch t {
	case claims.TypeEmpirical, claims.TypeFactual:
		return statisticalPatterns
	default:
		return theoreticalPatterns
	}
}

var (
	hedgingPattern     = regexp.MustCompile(`(?i)\b(may|might|could|suggests?|appears?|likely|tends?\s+to)\b|수\s*있다|가능성`)
	conditionalPattern = regexp.MustCompile(`(?i)\b(if|assuming|provided\s+that|under\s+the\s+condition|would)\b|만약`)
)

// uncertaintyScore rewards calibrated epistemic framing.
func (s *Scorer) uncertaintyScore(c *claims.Claim) float64 {
	score := 35.0
	if c.Uncertainty != "" {
		score += 30
	}
	if hedgingPattern.MatchString(c.Text) {
		score += 10
	}
	if conditionalPattern.MatchString(c.Text) {
		score += 10
	}
	if s.detector.Overconfident(c.Text) {
		score -= 20
	}
	return clamp(score)
}

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// verifiabilityScore averages per-source traceability.
func (s *Scorer) verifiabilityScore(c *claims.Claim) float64 {
	if len(c.Sources) == 0 {
		return 0
	}

	var sum float64
	for _, src := range c.Sources {
		score := 20.0
		if src.DOI != "" {
			score += 40
		} else if s.philosophical && len(src.Reference) > 50 {
			// Classical texts rarely carry DOIs; detailed bibliographic
			// information substitutes.
			score += 40
		}
		if src.Verified {
			score += 30
		}
		if yearPattern.MatchString(src.Reference) {
			score += 10
		}
		if len(src.Reference) > 50 {
			score += 5
		}
		sum += score
	}
	return clamp(sum / float64(len(c.Sources)))
}

func containsAny(text string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
