package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecInvokerEchoesStdin(t *testing.T) {
	inv := NewExecInvoker("cat", nil, nil)

	res, err := inv.Invoke(context.Background(), Request{
		Agent:  "search-agent",
		Step:   9,
		Prompt: "Collect the primary literature.",
	})
	require.NoError(t, err)
	assert.False(t, res.Failed)
	assert.Contains(t, res.Output, `"search-agent"`)
	assert.Contains(t, res.Output, "Collect the primary literature.")
}

func TestExecInvokerFailureWithoutOutput(t *testing.T) {
	inv := NewExecInvoker("false", nil, nil)

	_, err := inv.Invoke(context.Background(), Request{Agent: "a", Step: 1})
	assert.Error(t, err)
}

func TestExecInvokerCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	inv := NewExecInvoker("sleep", []string{"10"}, nil)
	_, err := inv.Invoke(ctx, Request{Agent: "a", Step: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
