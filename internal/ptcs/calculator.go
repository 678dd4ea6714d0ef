// Package ptcs computes the predictive confidence score at claim,
// agent, phase and workflow granularity. pTCS is the strong gate
// criterion: any unit below threshold is in failure regardless of its
// deep SRCS evaluation. The calculation is pure arithmetic over already
// extracted data so it stays well under the real-time budget and never
// calls an LLM.
package ptcs

import (
	"regexp"

	"github.com/praxislabs/thesisd/internal/claims"
	"github.com/praxislabs/thesisd/internal/srcs"
)

// Band is a display colour for humans. Bands never change decisions.
type Band string

const (
	BandRed    Band = "R"
	BandYellow Band = "Y"
	BandCyan   Band = "C"
	BandGreen  Band = "G"
)

// bandFor maps a score to its display band.
func bandFor(score float64) Band {
	switch {
	case score >= 90:
		return BandGreen
	case score >= 75:
		return BandCyan
	case score >= 60:
		return BandYellow
	default:
		return BandRed
	}
}

// ClaimScore is the predictive confidence for a single claim.
type ClaimScore struct {
	ClaimID string  `json:"claim_id"`
	Score   float64 `json:"score"`
	Band    Band    `json:"band"`
}

// AgentScore aggregates an agent's claims.
type AgentScore struct {
	Agent          string  `json:"agent"`
	Score          float64 `json:"score"` // mean of claim scores
	Min            float64 `json:"min"`
	ClaimCount     int     `json:"claim_count"`
	BelowThreshold int     `json:"below_threshold"`
	Band           Band    `json:"band"`
}

// PhaseScore aggregates agents within a phase, weighted by claim count.
type PhaseScore struct {
	Phase      string  `json:"phase"`
	Score      float64 `json:"score"`
	AgentCount int     `json:"agent_count"`
	ClaimCount int     `json:"claim_count"`
	Band       Band    `json:"band"`
}

// WorkflowScore aggregates phases, weighted by claim count.
type WorkflowScore struct {
	Score      float64 `json:"score"`
	PhaseCount int     `json:"phase_count"`
	ClaimCount int     `json:"claim_count"`
	Band       Band    `json:"band"`
}

// Calculator computes pTCS at all granularities.
type Calculator struct {
	threshold float64
}

// NewCalculator creates a calculator with the given gate threshold.
func NewCalculator(threshold float64) *Calculator {
	return &Calculator{threshold: threshold}
}

// Threshold returns the configured gate threshold.
func (c *Calculator) Threshold() float64 {
	return c.threshold
}

var hedgingPattern = regexp.MustCompile(`(?i)\b(may|might|could|suggests?|appears?|likely)\b|수\s*있다`)

// Claim computes the predictive score for one claim: a blend of the
// claim's self-reported confidence and its SRCS axes, nudged by
// structural features (sources present, hedged phrasing).
func (c *Calculator) Claim(claim *claims.Claim, score srcs.Score) ClaimScore {
	value := 0.45*claim.Confidence + 0.45*score.Total
	if len(claim.Sources) > 0 {
		value += 5
	}
	if hedgingPattern.MatchString(claim.Text) {
		value += 5
	}
	value = clamp(value)

	return ClaimScore{
		ClaimID: claim.ID,
		Score:   value,
		Band:    bandFor(value),
	}
}

// Agent aggregates claim scores for one agent. An agent with no claims
// scores the threshold exactly: nothing to evaluate is not a failure.
func (c *Calculator) Agent(agent string, claimScores []ClaimScore) AgentScore {
	if len(claimScores) == 0 {
		return AgentScore{
			Agent: agent,
			Score: c.threshold,
			Min:   c.threshold,
			Band:  bandFor(c.threshold),
		}
	}

	var sum float64
	min := claimScores[0].Score
	below := 0
	for _, cs := range claimScores {
		sum += cs.Score
		if cs.Score < min {
			min = cs.Score
		}
		if cs.Score < c.threshold {
			below++
		}
	}
	mean := sum / float64(len(claimScores))

	return AgentScore{
		Agent:          agent,
		Score:          mean,
		Min:            min,
		ClaimCount:     len(claimScores),
		BelowThreshold: below,
		Band:           bandFor(mean),
	}
}

// Phase aggregates agent scores, weighting each agent by its claim count.
func (c *Calculator) Phase(phase string, agents []AgentScore) PhaseScore {
	var weightedSum float64
	totalClaims := 0
	for _, a := range agents {
		weightedSum += a.Score * float64(a.ClaimCount)
		totalClaims += a.ClaimCount
	}

	score := c.threshold
	if totalClaims > 0 {
		score = weightedSum / float64(totalClaims)
	}

	return PhaseScore{
		Phase:      phase,
		Score:      score,
		AgentCount: len(agents),
		ClaimCount: totalClaims,
		Band:       bandFor(score),
	}
}

// Workflow aggregates phase scores, weighting each phase by claim count.
func (c *Calculator) Workflow(phases []PhaseScore) WorkflowScore {
	var weightedSum float64
	totalClaims := 0
	for _, p := range phases {
		weightedSum += p.Score * float64(p.ClaimCount)
		totalClaims += p.ClaimCount
	}

	score := c.threshold
	if totalClaims > 0 {
		score = weightedSum / float64(totalClaims)
	}

	return WorkflowScore{
		Score:      score,
		PhaseCount: len(phases),
		ClaimCount: totalClaims,
		Band:       bandFor(score),
	}
}

// Failing reports whether a score is below the gate threshold.
func (c *Calculator) Failing(score float64) bool {
	return score < c.threshold
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
