package memory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newBudget(t *testing.T, max int) *Budget {
	t.Helper()
	b, err := NewBudget(filepath.Join(t.TempDir(), "memory", BudgetFilename), max, zap.NewNop())
	require.NoError(t, err)
	return b
}

func TestBudget_AddAndRelease(t *testing.T) {
	b := newBudget(t, 1000)

	require.NoError(t, b.Add("phase1-wave1", 300))
	require.NoError(t, b.Add("phase2", 200))
	assert.Equal(t, 500, b.Usage())
	assert.InDelta(t, 0.5, b.Utilization(), 1e-9)
	assert.Equal(t, 300, b.PhaseUsage()["phase1-wave1"])

	require.NoError(t, b.Release("phase1-wave1", 250))
	assert.Equal(t, 250, b.Usage())
	assert.Equal(t, 50, b.PhaseUsage()["phase1-wave1"])
}

func TestBudget_ReleaseClampsAtZero(t *testing.T) {
	b := newBudget(t, 1000)
	require.NoError(t, b.Add("phase0", 10))
	require.NoError(t, b.Release("phase0", 500))
	assert.Equal(t, 0, b.Usage())
	assert.Equal(t, 0, b.PhaseUsage()["phase0"])
}

func TestBudget_ZeroTokensAreNoOps(t *testing.T) {
	b := newBudget(t, 1000)
	require.NoError(t, b.Add("phase0", 0))
	require.NoError(t, b.Release("phase0", -5))
	assert.Equal(t, 0, b.Usage())
}

func TestBudget_CheckpointAlerts(t *testing.T) {
	b := newBudget(t, 1000)

	// 0.5: silent.
	require.NoError(t, b.Add("phase0", 500))
	alert, err := b.Checkpoint("step-8")
	require.NoError(t, err)
	assert.Nil(t, alert)

	// 0.76: warning.
	require.NoError(t, b.Add("phase0", 260))
	alert, err = b.Checkpoint("step-18")
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, AlertWarning, alert.Level)

	// 0.89: still only a warning, not critical.
	require.NoError(t, b.Add("phase0", 130))
	alert, err = b.Checkpoint("step-83")
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, AlertWarning, alert.Level)

	// 0.90 exactly: critical.
	require.NoError(t, b.Add("phase0", 10))
	alert, err = b.Checkpoint("step-89")
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, AlertCritical, alert.Level)
	assert.False(t, alert.Escalate)

	// Over budget: critical with escalation, data untouched.
	require.NoError(t, b.Add("phase0", 200))
	alert, err = b.Checkpoint("step-108")
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, AlertCritical, alert.Level)
	assert.True(t, alert.Escalate)
	assert.Equal(t, 1100, b.Usage())

	assert.Len(t, b.History(), 5)
	assert.Len(t, b.Alerts(), 4)
}

func TestBudget_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), BudgetFilename)
	b, err := NewBudget(path, 1000, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, b.Add("phase3", 400))
	_, err = b.Checkpoint("step-114")
	require.NoError(t, err)

	// A different configured max does not override the persisted one.
	reopened, err := NewBudget(path, 9999, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1000, reopened.Max())
	assert.Equal(t, 400, reopened.Usage())
	assert.Equal(t, 400, reopened.PhaseUsage()["phase3"])
	require.Len(t, reopened.History(), 1)
	assert.Equal(t, "step-114", reopened.History()[0].Checkpoint)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("ab"))

	// 40 latin chars, whitespace excluded: 10 tokens.
	latin := "aaaa bbbb cccc dddd eeee ffff gggg hhhh "
	assert.Equal(t, 10, EstimateTokens(latin))

	// CJK counts one token per rune.
	assert.Equal(t, 5, EstimateTokens("연구가설검"))
	mixed := "test 연구"
	assert.Equal(t, 1+2, EstimateTokens(mixed))
}

func TestTruncateToTokens(t *testing.T) {
	assert.Equal(t, "short", TruncateToTokens("short", 10))

	long := "alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima"
	cut := TruncateToTokens(long, 5)
	assert.LessOrEqual(t, EstimateTokens(cut), 5)
	assert.NotEmpty(t, cut)
	assert.True(t, len(cut) < len(long))
}
