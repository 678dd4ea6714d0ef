package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxislabs/thesisd/internal/steps"
)

func waveOutput(step int) AgentOutput {
	return AgentOutput{
		Agent:   fmt.Sprintf("agent-%d", step),
		Step:    step,
		Phase:   steps.Phase1Wave1,
		Content: sampleOutput,
	}
}

func TestWindow_EvictsOldestThroughLevel1(t *testing.T) {
	mgr, budget, _ := newTestManager(t, 50000)
	w := NewWindow(3, mgr)
	ctx := context.Background()

	for step := 9; step <= 11; step++ {
		evicted, err := w.Push(ctx, waveOutput(step))
		require.NoError(t, err)
		assert.Nil(t, evicted)
	}
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, 3*waveOutput(9).Tokens(), budget.Usage())

	// The fourth push evicts the first output.
	evicted, err := w.Push(ctx, waveOutput(12))
	require.NoError(t, err)
	require.NotNil(t, evicted)
	assert.Equal(t, "agent-9", evicted.Agent)
	assert.Equal(t, 3, w.Len())

	contents := w.Contents()
	require.Len(t, contents, 3)
	assert.Equal(t, "agent-10", contents[0].Agent)
	assert.Equal(t, "agent-12", contents[2].Agent)

	// Live charge is three raw outputs plus one summary.
	assert.Equal(t, 3*waveOutput(9).Tokens()+evicted.SummaryTokens, budget.Usage())
}

func TestWindow_Flush(t *testing.T) {
	mgr, budget, _ := newTestManager(t, 50000)
	w := NewWindow(3, mgr)
	ctx := context.Background()

	for step := 9; step <= 10; step++ {
		_, err := w.Push(ctx, waveOutput(step))
		require.NoError(t, err)
	}

	summaries, err := w.Flush(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, 0, w.Len())

	// Post-flush, only summaries remain charged.
	want := summaries[0].SummaryTokens + summaries[1].SummaryTokens
	assert.Equal(t, want, budget.Usage())
}

func TestWindow_DefaultSize(t *testing.T) {
	mgr, _, _ := newTestManager(t, 50000)
	assert.Equal(t, DefaultWindowSize, NewWindow(0, mgr).size)
	assert.Equal(t, DefaultWindowSize, NewWindow(-2, mgr).size)
}
