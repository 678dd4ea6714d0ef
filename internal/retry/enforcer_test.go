package retry

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/praxislabs/thesisd/internal/agent"
	"github.com/praxislabs/thesisd/internal/config"
)

// goodOutput is long enough to pass the minimum-length classifier.
var goodOutput = strings.Repeat("The study found a moderate positive effect. ", 5)

func testConfig() config.RetryConfig {
	return config.RetryConfig{
		MaxRetries:      3,
		Delay:           config.Duration(time.Millisecond),
		MinOutputLength: 100,
	}
}

func newEnforcer(t *testing.T, invoker agent.Invoker, cfg config.RetryConfig) (*Enforcer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "retry-state.json")
	e, err := NewEnforcer(invoker, path, cfg, zap.NewNop())
	require.NoError(t, err)
	return e, path
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		res    agent.Result
		failed bool
	}{
		{"explicit flag", agent.Result{Failed: true, FailReason: "tool crash"}, true},
		{"explicit flag without reason", agent.Result{Failed: true}, true},
		{"short output", agent.Result{Output: "done"}, true},
		{"error text", agent.Result{Output: "Error: could not load corpus. " + goodOutput}, true},
		{"refusal text", agent.Result{Output: "I cannot complete this analysis. " + goodOutput}, true},
		{"korean error text", agent.Result{Output: "처리 중 오류가 발생했습니다. " + goodOutput}, true},
		{"healthy output", agent.Result{Output: goodOutput}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, failed := Classify(&tt.res, 100)
			assert.Equal(t, tt.failed, failed)
			if failed {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestInvoke_SucceedsFirstTry(t *testing.T) {
	script := agent.NewScriptedInvoker()
	script.Script("writer", &agent.Result{Output: goodOutput})
	e, _ := newEnforcer(t, script, testConfig())

	res, err := e.Invoke(context.Background(), agent.Request{Agent: "writer", Step: 110}, nil)
	require.NoError(t, err)
	assert.Equal(t, goodOutput, res.Output)
	assert.Len(t, script.Calls(), 1)
}

func TestInvoke_RetriesWithAugmentedPrompt(t *testing.T) {
	script := agent.NewScriptedInvoker()
	script.Script("writer",
		&agent.Result{Failed: true, FailReason: "confidence below threshold"},
		&agent.Result{Output: goodOutput})
	e, _ := newEnforcer(t, script, testConfig())

	res, err := e.Invoke(context.Background(),
		agent.Request{Agent: "writer", Step: 110, Prompt: "Draft the chapter."}, nil)
	require.NoError(t, err)
	assert.Equal(t, goodOutput, res.Output)

	calls := script.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "Draft the chapter.", calls[0].Prompt)
	assert.Contains(t, calls[1].Prompt, "Draft the chapter.")
	assert.Contains(t, calls[1].Prompt, "## Retry guidance")
	assert.Contains(t, calls[1].Prompt, "confidence below threshold")
	assert.Contains(t, calls[1].Prompt, "calibrated hedging")
}

func TestInvoke_AcceptCallbackDrivesRetry(t *testing.T) {
	script := agent.NewScriptedInvoker()
	script.Script("writer",
		&agent.Result{Output: goodOutput},
		&agent.Result{Output: goodOutput + " Confidence: high."})
	e, _ := newEnforcer(t, script, testConfig())

	attempts := 0
	res, err := e.Invoke(context.Background(),
		agent.Request{Agent: "writer", Step: 111},
		func(res *agent.Result) (bool, string) {
			attempts++
			if attempts == 1 {
				return false, "pTCS 62.0 below threshold 75.0"
			}
			return true, ""
		})
	require.NoError(t, err)
	assert.Contains(t, res.Output, "Confidence: high.")

	calls := script.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].Prompt, "pTCS 62.0 below threshold 75.0")
}

func TestInvoke_Exhaustion(t *testing.T) {
	script := agent.NewScriptedInvoker()
	for i := 0; i < 4; i++ {
		script.Script("writer", &agent.Result{Failed: true, FailReason: "still failing"})
	}
	e, path := newEnforcer(t, script, testConfig())

	_, err := e.Invoke(context.Background(), agent.Request{Agent: "writer", Step: 112}, nil)
	require.ErrorIs(t, err, ErrExhausted)
	assert.Contains(t, err.Error(), "still failing")

	// Initial attempt plus three retries.
	assert.Len(t, script.Calls(), 4)

	store, err := OpenStore(path)
	require.NoError(t, err)
	assert.Equal(t, 4, store.Count("writer/step-112"))
	assert.Len(t, store.History("writer/step-112"), 4)
}

func TestInvoke_StateSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retry-state.json")

	// First process: two failures, then a crash.
	script := agent.NewScriptedInvoker()
	script.Script("writer", &agent.Result{Failed: true, FailReason: "incomplete"})
	store, err := OpenStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Record("writer/step-113", "incomplete"))
	require.NoError(t, store.Record("writer/step-113", "incomplete"))

	// Second process resumes with two attempts already burned: only two
	// invocations remain in the budget.
	script2 := agent.NewScriptedInvoker()
	for i := 0; i < 4; i++ {
		script2.Script("writer", &agent.Result{Failed: true, FailReason: "incomplete"})
	}
	e, err := NewEnforcer(script2, path, testConfig(), zap.NewNop())
	require.NoError(t, err)

	_, err = e.Invoke(context.Background(), agent.Request{Agent: "writer", Step: 113}, nil)
	require.ErrorIs(t, err, ErrExhausted)
	assert.Len(t, script2.Calls(), 2)

	// The resumed first attempt already carries the persisted reason.
	assert.Contains(t, script2.Calls()[0].Prompt, "incomplete")
}

func TestInvoke_SuccessClearsLiveEntryKeepsHistory(t *testing.T) {
	script := agent.NewScriptedInvoker()
	script.Script("writer",
		&agent.Result{Failed: true, FailReason: "first failure"},
		&agent.Result{Output: goodOutput})
	e, path := newEnforcer(t, script, testConfig())

	_, err := e.Invoke(context.Background(), agent.Request{Agent: "writer", Step: 114}, nil)
	require.NoError(t, err)

	store, err := OpenStore(path)
	require.NoError(t, err)
	assert.Equal(t, 0, store.Count("writer/step-114"))
	history := store.History("writer/step-114")
	require.Len(t, history, 1)
	assert.Equal(t, "first failure", history[0].Reason)
}

func TestInvoke_ContextCancelledDuringDelay(t *testing.T) {
	script := agent.NewScriptedInvoker()
	script.Script("writer", &agent.Result{Failed: true, FailReason: "slow"})
	cfg := testConfig()
	cfg.Delay = config.Duration(time.Hour)
	e, _ := newEnforcer(t, script, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.Invoke(ctx, agent.Request{Agent: "writer", Step: 115}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
