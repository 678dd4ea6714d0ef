package claims

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlDocument = `# Literature Search Results

Some narrative text about the search.

## Claims

` + "```yaml" + `
claims:
  - id: LIT-001
    text: Mindfulness interventions reduce reported stress in college students.
    claim_type: EMPIRICAL
    sources:
      - type: PRIMARY
        reference: Shapiro et al. (2018). Journal of Counseling Psychology.
        doi: 10.1037/cou0000268
        verified: true
    confidence: 85
    uncertainty: Effect sizes vary widely across intervention formats.
  - id: LIT-002
    text: Self-determination theory frames motivation as a continuum.
    claim_type: THEORETICAL
    sources:
      - type: PRIMARY
        reference: Deci & Ryan (2000). Psychological Inquiry.
        verified: false
    confidence: 80
    uncertainty: ""
` + "```" + `

## Next Steps

More narrative.
`

func TestExtractYAMLBlock(t *testing.T) {
	e := NewExtractor()

	extracted, err := e.Extract("wave1-searcher.md", yamlDocument)
	require.NoError(t, err)
	require.Len(t, extracted, 2)

	assert.Equal(t, "LIT-001", extracted[0].ID)
	assert.Equal(t, "LIT-002", extracted[1].ID)
	assert.Equal(t, TypeEmpirical, extracted[0].Type)
	assert.Equal(t, TypeTheoretical, extracted[1].Type)
	assert.Equal(t, 85.0, extracted[0].Confidence)
	require.Len(t, extracted[0].Sources, 1)
	assert.Equal(t, SourcePrimary, extracted[0].Sources[0].Type)
	assert.Equal(t, "10.1037/cou0000268", extracted[0].Sources[0].DOI)
	assert.True(t, extracted[0].Sources[0].Verified)

	for _, c := range extracted {
		assert.Equal(t, "wave1-searcher.md", c.Document)
	}
}

func TestExtractMissingSection(t *testing.T) {
	e := NewExtractor()

	extracted, err := e.Extract("doc.md", "# Just Narrative\n\nNo claims here.\n")
	require.NoError(t, err)
	assert.Empty(t, extracted)
}

func TestExtractEmptyList(t *testing.T) {
	e := NewExtractor()

	doc := "## Claims\n\n```yaml\nclaims: []\n```\n"
	extracted, err := e.Extract("doc.md", doc)
	require.NoError(t, err)
	assert.Empty(t, extracted)
}

func TestExtractCaseInsensitiveHeading(t *testing.T) {
	e := NewExtractor()

	doc := "### CLAIMS\n\n```yaml\nclaims:\n  - id: A-1\n    text: t\n    claim_type: SPECULATIVE\n    confidence: 60\n```\n"
	extracted, err := e.Extract("doc.md", doc)
	require.NoError(t, err)
	require.Len(t, extracted, 1)
	assert.Equal(t, "A-1", extracted[0].ID)
}

func TestExtractInvalidYAML(t *testing.T) {
	e := NewExtractor()

	doc := "## Claims\n\n```yaml\nclaims: [unclosed\n```\n"
	_, err := e.Extract("doc.md", doc)
	assert.Error(t, err)
}

func TestExtractPlainTextBlocks(t *testing.T) {
	e := NewExtractor()

	doc := `Analysis narrative.

Claim RD-001
Type: METHODOLOGICAL
Statement: A mixed-methods design fits the research questions.
Sources: PRIMARY: Creswell (2014); Tashakkori & Teddlie (2010)
Confidence: 80
Uncertainty: Depends on sampling access.

Claim RD-002
Type: SPECULATIVE
Statement: Longitudinal follow-up may reveal decay effects.
Sources: none
Confidence: 55
`
	extracted, err := e.Extract("design.md", doc)
	require.NoError(t, err)
	require.Len(t, extracted, 2)

	first := extracted[0]
	assert.Equal(t, "RD-001", first.ID)
	assert.Equal(t, TypeMethodological, first.Type)
	require.Len(t, first.Sources, 2)
	assert.Equal(t, SourcePrimary, first.Sources[0].Type)
	assert.Equal(t, "Creswell (2014)", first.Sources[0].Reference)
	assert.Equal(t, SourceSecondary, first.Sources[1].Type)

	second := extracted[1]
	assert.Equal(t, 55.0, second.Confidence)
	assert.Empty(t, second.Sources)
}

func TestClaimTypeThresholds(t *testing.T) {
	assert.Equal(t, 95.0, TypeFactual.MinConfidence())
	assert.Equal(t, 85.0, TypeEmpirical.MinConfidence())
	assert.Equal(t, 60.0, TypeSpeculative.MinConfidence())
	assert.True(t, TypeEmpirical.RequiresPrimarySource())
	assert.True(t, TypeTheoretical.RequiresPrimarySource())
	assert.False(t, TypeInterpretive.RequiresPrimarySource())
	assert.False(t, ClaimType("GUESS").Valid())
}
