// Package claims defines the structured claim model and extracts claims
// from agent markdown outputs. Claims are the unit of quality evaluation:
// every gate, scorer and consistency check operates on them.
package claims

import "errors"

// Validation errors.
var (
	ErrUnknownClaimType  = errors.New("unknown claim type")
	ErrUnknownSourceType = errors.New("unknown source type")
)

// ClaimType classifies the epistemic kind of a claim.
type ClaimType string

const (
	TypeFactual        ClaimType = "FACTUAL"
	TypeEmpirical      ClaimType = "EMPIRICAL"
	TypeTheoretical    ClaimType = "THEORETICAL"
	TypeMethodological ClaimType = "METHODOLOGICAL"
	TypeInterpretive   ClaimType = "INTERPRETIVE"
	TypeSpeculative    ClaimType = "SPECULATIVE"
)

// minConfidence maps each claim type to its minimum acceptable confidence.
var minConfidence = map[ClaimType]float64{
	TypeFactual:        95,
	TypeEmpirical:      85,
	TypeMethodological: 80,
	TypeTheoretical:    75,
	TypeInterpretive:   70,
	TypeSpeculative:    60,
}

// Valid reports whether the claim type is a known enum value.
func (t ClaimType) Valid() bool {
	_, ok := minConfidence[t]
	return ok
}

// MinConfidence returns the minimum confidence threshold for the type.
// Unknown types return 0.
func (t ClaimType) MinConfidence() float64 {
	return minConfidence[t]
}

// RequiresPrimarySource reports whether the type demands at least one
// PRIMARY source to survive validation.
func (t ClaimType) RequiresPrimarySource() bool {
	return t == TypeEmpirical || t == TypeTheoretical
}

// SourceType classifies the provenance quality of a source.
type SourceType string

const (
	SourcePrimary   SourceType = "PRIMARY"
	SourceSecondary SourceType = "SECONDARY"
	SourceTertiary  SourceType = "TERTIARY"
)

// Valid reports whether the source type is a known enum value.
func (t SourceType) Valid() bool {
	switch t {
	case SourcePrimary, SourceSecondary, SourceTertiary:
		return true
	}
	return false
}

// Source is a reference backing a claim. Owned by its claim.
type Source struct {
	Type      SourceType `json:"type" yaml:"type"`
	Reference string     `json:"reference" yaml:"reference"`
	DOI       string     `json:"doi,omitempty" yaml:"doi,omitempty"`
	Verified  bool       `json:"verified" yaml:"verified"`
}

// Claim is a structured, source-backed assertion extracted from an
// agent output.
type Claim struct {
	// ID is stable within the producing document.
	ID          string    `json:"id" yaml:"id"`
	Text        string    `json:"text" yaml:"text"`
	Type        ClaimType `json:"claim_type" yaml:"claim_type"`
	Sources     []Source  `json:"sources" yaml:"sources"`
	Confidence  float64   `json:"confidence" yaml:"confidence"`
	Uncertainty string    `json:"uncertainty,omitempty" yaml:"uncertainty,omitempty"`

	// Document names the agent output the claim was extracted from.
	// Set by the extractor, not present in the claim block itself.
	Document string `json:"document,omitempty" yaml:"-"`
}

// HasPrimarySource reports whether any source is PRIMARY.
func (c *Claim) HasPrimarySource() bool {
	for _, s := range c.Sources {
		if s.Type == SourcePrimary {
			return true
		}
	}
	return false
}
