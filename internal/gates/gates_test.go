package gates

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecideTruthTable(t *testing.T) {
	g := NewGate(75, 75, nil)

	tests := []struct {
		name string
		ptcs float64
		srcs float64
		want Decision
	}{
		{"both pass", 80, 80, DecisionPass},
		{"both at threshold", 75, 75, DecisionPass},
		{"srcs below", 80, 70, DecisionManualReview},
		{"ptcs below", 70, 95, DecisionFail},
		{"both below", 50, 50, DecisionFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Decide(tt.ptcs, tt.srcs))
		})
	}
}

func TestEvaluateProducesResult(t *testing.T) {
	g := NewGate(75, 75, nil)

	result := g.Evaluate(context.Background(), "wave-1-gate", KindCrossValidation, 82, 78, map[string]any{"wave": 1})

	assert.NotEmpty(t, result.ID)
	assert.Equal(t, "wave-1-gate", result.Name)
	assert.Equal(t, KindCrossValidation, result.Kind)
	assert.True(t, result.Pass)
	assert.Equal(t, DecisionPass, result.Decision)
	assert.False(t, result.Timestamp.IsZero())
}

func TestResultLogAppendAndRead(t *testing.T) {
	log := NewResultLog(filepath.Join(t.TempDir(), "00-session", "gate-results.json"))
	g := NewGate(75, 75, nil)

	first := g.Evaluate(context.Background(), "wave-1-gate", KindCrossValidation, 82, 78, nil)
	second := g.Evaluate(context.Background(), "wave-2-gate", KindDualConfidence, 60, 90, nil)

	require.NoError(t, log.Append(first))
	require.NoError(t, log.Append(second))

	all, err := log.All()
	require.NoError(t, err)
	require.Len(t, all, 2)

	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, DecisionFail, all[1].Decision)
}

func TestResultLogEmpty(t *testing.T) {
	log := NewResultLog(filepath.Join(t.TempDir(), "gate-results.json"))

	all, err := log.All()
	require.NoError(t, err)
	assert.Empty(t, all)
}
