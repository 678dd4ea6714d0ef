// Package gra implements the claim-grounding validation discipline:
// schema checks, hallucination screening and source requirements per
// claim type.
package gra

import (
	"fmt"

	"github.com/praxislabs/thesisd/internal/claims"
	"github.com/praxislabs/thesisd/internal/hallucination"
)

// Result reports the outcome of validating one claim.
type Result struct {
	ClaimID  string   `json:"claim_id"`
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`

	// Detection carries the hallucination screening outcome so
	// downstream scorers do not re-run the detector.
	Detection hallucination.Result `json:"detection"`
}

// Validator validates claims against the data model.
type Validator struct {
	detector *hallucination.Detector
}

// NewValidator creates a validator using the given detector.
func NewValidator(detector *hallucination.Detector) *Validator {
	return &Validator{detector: detector}
}

// Validate runs the ordered check sequence on a single claim.
func (v *Validator) Validate(c *claims.Claim) Result {
	result := Result{ClaimID: c.ID, Valid: true}

	fail := func(format string, args ...any) {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
	}
	warn := func(format string, args ...any) {
		result.Warnings = append(result.Warnings, fmt.Sprintf(format, args...))
	}

	// 1. Required fields.
	if c.ID == "" {
		fail("claim is missing an id")
	}
	if c.Text == "" {
		fail("claim %s is missing text", c.ID)
	}
	if c.Type == "" {
		fail("claim %s is missing a claim_type", c.ID)
	}
	if c.Confidence <= 0 {
		fail("claim %s is missing a confidence value", c.ID)
	}
	if !result.Valid {
		return result
	}

	// 2. Known claim type.
	if !c.Type.Valid() {
		fail("claim %s has unknown claim_type %q", c.ID, c.Type)
		return result
	}

	// 3. Hallucination screening on the claim text.
	result.Detection = v.detector.Detect(c.Text)
	switch result.Detection.Level {
	case hallucination.Block:
		fail("claim %s contains an absolute universal assertion (%s)", c.ID, firstSpan(result.Detection))
	case hallucination.RequireSource:
		if len(c.Sources) == 0 {
			fail("claim %s: Statistical claim requires source (%s)", c.ID, firstSpan(result.Detection))
		} else {
			warn("claim %s makes a statistical assertion; verify the cited source covers it", c.ID)
		}
	case hallucination.Soften:
		warn("claim %s uses overconfident language (%s)", c.ID, firstSpan(result.Detection))
	case hallucination.Verify:
		warn("claim %s generalizes vaguely (%s); consider adding a source", c.ID, firstSpan(result.Detection))
	}

	// 4. Source type validity.
	for i, s := range c.Sources {
		if !s.Type.Valid() {
			fail("claim %s source %d has invalid type %q", c.ID, i, s.Type)
		}
	}

	// 5. Type-specific source requirement.
	if c.Type.RequiresPrimarySource() && !c.HasPrimarySource() {
		fail("claim %s: %s requires PRIMARY source", c.ID, c.Type)
	}

	// 6. Confidence below the type threshold is advisory, not fatal.
	if threshold := c.Type.MinConfidence(); c.Confidence < threshold {
		warn("claim %s confidence %.0f is below the %s threshold %.0f", c.ID, c.Confidence, c.Type, threshold)
	}

	return result
}

// ValidateAll validates a batch and reports per-claim results.
func (v *Validator) ValidateAll(batch []claims.Claim) []Result {
	results := make([]Result, len(batch))
	for i := range batch {
		results[i] = v.Validate(&batch[i])
	}
	return results
}

func firstSpan(r hallucination.Result) string {
	if len(r.Matches) == 0 {
		return ""
	}
	return r.Matches[0].Span
}
