package gra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxislabs/thesisd/internal/claims"
	"github.com/praxislabs/thesisd/internal/hallucination"
)

func newValidator() *Validator {
	return NewValidator(hallucination.NewDetector())
}

func validClaim() claims.Claim {
	return claims.Claim{
		ID:         "LIT-001",
		Text:       "Mindfulness interventions were associated with lower stress.",
		Type:       claims.TypeEmpirical,
		Confidence: 88,
		Sources: []claims.Source{
			{Type: claims.SourcePrimary, Reference: "Shapiro et al. (2018)", Verified: true},
		},
	}
}

func TestValidatePasses(t *testing.T) {
	c := validClaim()
	result := newValidator().Validate(&c)

	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidateMissingFields(t *testing.T) {
	v := newValidator()

	tests := []struct {
		name   string
		mutate func(*claims.Claim)
	}{
		{"missing id", func(c *claims.Claim) { c.ID = "" }},
		{"missing text", func(c *claims.Claim) { c.Text = "" }},
		{"missing type", func(c *claims.Claim) { c.Type = "" }},
		{"missing confidence", func(c *claims.Claim) { c.Confidence = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validClaim()
			tt.mutate(&c)
			result := v.Validate(&c)
			assert.False(t, result.Valid)
			assert.NotEmpty(t, result.Errors)
		})
	}
}

func TestValidateUnknownType(t *testing.T) {
	c := validClaim()
	c.Type = "GUESSWORK"
	result := newValidator().Validate(&c)

	assert.False(t, result.Valid)
}

func TestValidateBlockLevelFails(t *testing.T) {
	c := validClaim()
	c.Text = "Every study confirms the effect."
	result := newValidator().Validate(&c)

	assert.False(t, result.Valid)
	assert.Equal(t, hallucination.Block, result.Detection.Level)
}

func TestValidateStatisticalWithoutSource(t *testing.T) {
	c := validClaim()
	c.Text = "p < .001"
	c.Sources = nil
	result := newValidator().Validate(&c)

	require.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "Statistical claim requires source")
}

func TestValidateStatisticalWithSourceWarns(t *testing.T) {
	c := validClaim()
	c.Text = "The effect size was d = 0.45."
	result := newValidator().Validate(&c)

	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Warnings)
}

func TestValidateEmpiricalRequiresPrimary(t *testing.T) {
	c := validClaim()
	c.Sources = []claims.Source{
		{Type: claims.SourceSecondary, Reference: "A textbook"},
	}
	result := newValidator().Validate(&c)

	require.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "EMPIRICAL requires PRIMARY source")
}

func TestValidateInvalidSourceType(t *testing.T) {
	c := validClaim()
	c.Sources = append(c.Sources, claims.Source{Type: "QUATERNARY", Reference: "x"})
	result := newValidator().Validate(&c)

	assert.False(t, result.Valid)
}

func TestValidateLowConfidenceWarnsOnly(t *testing.T) {
	c := validClaim()
	c.Confidence = 70 // below the EMPIRICAL threshold of 85
	result := newValidator().Validate(&c)

	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Warnings)
}

func TestValidateAll(t *testing.T) {
	a := validClaim()
	b := validClaim()
	b.ID = "LIT-002"
	b.Sources = nil

	results := newValidator().ValidateAll([]claims.Claim{a, b})
	require.Len(t, results, 2)
	assert.True(t, results[0].Valid)
	assert.False(t, results[1].Valid)
}
