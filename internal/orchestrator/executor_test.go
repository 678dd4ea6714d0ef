package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxislabs/thesisd/internal/agent"
	"github.com/praxislabs/thesisd/internal/checklist"
	"github.com/praxislabs/thesisd/internal/config"
	"github.com/praxislabs/thesisd/internal/consistency"
	"github.com/praxislabs/thesisd/internal/gates"
	"github.com/praxislabs/thesisd/internal/logging"
	"github.com/praxislabs/thesisd/internal/retry"
	"github.com/praxislabs/thesisd/internal/session"
	"github.com/praxislabs/thesisd/internal/steps"
)

// passingOutput clears every stage of the quality pipeline: a sourced
// empirical claim with statistics in the text, hedged phrasing and an
// explicit uncertainty statement.
const passingOutput = `## Findings

The intervention may reduce reported stress (d = 0.45, p < .05, N = 120)
according to the cited trial, though the effect size varies by format.

## Claims

` + "```yaml" + `
claims:
  - id: C-001
    text: The intervention may reduce reported stress (d = 0.45, p < .05, N = 120).
    claim_type: EMPIRICAL
    sources:
      - type: PRIMARY
        reference: Shapiro et al. (2018). Journal of Counseling Psychology, 65(4).
        doi: 10.1037/cou0000268
        verified: true
    confidence: 88
    uncertainty: Effect size varies across intervention formats.
` + "```" + `
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Retry.Delay = config.Duration(time.Millisecond)
	return cfg
}

func scaffoldProject(t *testing.T, cfg *config.Config) string {
	t.Helper()
	sess := &session.Session{
		Research: session.Research{
			Topic: "Mindfulness and Stress",
			Mode:  session.ModeTopic,
			Type:  session.TypeQuantitative,
		},
	}
	root, err := InitProject(cfg, t.TempDir(), sess, nil)
	require.NoError(t, err)
	return root
}

func approveAll(t *testing.T, root string) {
	t.Helper()
	dir := filepath.Join(root, "00-session")
	for _, cp := range steps.Checkpoints {
		writeApproval(t, dir, cp, "approved")
	}
}

func loadSession(t *testing.T, root string) *session.Session {
	t.Helper()
	sess, err := session.NewStore(filepath.Join(root, "00-session", "session.json")).Load()
	require.NoError(t, err)
	return sess
}

func TestRunFullWorkflow(t *testing.T) {
	cfg := testConfig(t)
	root := scaffoldProject(t, cfg)
	approveAll(t, root)

	invoker := agent.InvokerFunc(func(ctx context.Context, req agent.Request) (*agent.Result, error) {
		return &agent.Result{Output: passingOutput, TokenCount: 150}, nil
	})

	o, err := New(cfg, root, invoker, nil)
	require.NoError(t, err)
	defer o.Close()

	ctx := context.Background()
	require.NoError(t, o.Run(ctx))

	sess := loadSession(t, root)
	require.NotNil(t, sess.Completion)
	assert.Equal(t, CompletionDone, sess.Completion.State)
	assert.Equal(t, steps.TotalSteps, sess.Workflow.CurrentStep)
	assert.Equal(t, 146, sess.Workflow.LastCheckpoint)

	list, err := os.ReadFile(filepath.Join(root, "00-session", checklist.Filename))
	require.NoError(t, err)
	assert.Contains(t, string(list), "Progress: 150/150")

	// Step events and quality outcomes land in separate audit logs; the
	// compact state mirror tracks the live session.
	execLog, err := os.ReadFile(filepath.Join(root, "00-session", logging.WorkflowLogFilename))
	require.NoError(t, err)
	assert.Contains(t, string(execLog), "workflow completed at step 150")
	valLog, err := os.ReadFile(filepath.Join(root, "00-session", logging.CrossValidationLogFilename))
	require.NoError(t, err)
	assert.Contains(t, string(valLog), "wave 1 consistency")
	mirror, err := os.ReadFile(filepath.Join(root, "memory", "session.json"))
	require.NoError(t, err)
	assert.Contains(t, string(mirror), `"current_step":150`)

	// Wave 1 produced one claim per step.
	wave1, err := o.claimStore.ByWave(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, wave1, 14)

	// Each wave left a consistency report beside the literature outputs.
	for wave := 1; wave <= 5; wave++ {
		report := filepath.Join(root, "01-literature",
			fmt.Sprintf("wave-%d-consistency.json", wave))
		assert.FileExists(t, report)
	}

	// Phase 1 synthesized its waves; the consumed caches moved to the
	// archive.
	assert.FileExists(t, filepath.Join(root, "memory", "phase-1-synthesis.md"))
	caches, err := os.ReadDir(filepath.Join(root, "memory", "wave-cache"))
	require.NoError(t, err)
	assert.Empty(t, caches)

	// Every boundary recorded its gate kind alongside the per-step
	// dual-confidence results.
	assert.FileExists(t, filepath.Join(root, "00-session", "gate-results.json"))
	results, err := o.gateLog.All()
	require.NoError(t, err)
	kinds := map[gates.Kind]int{}
	for _, r := range results {
		kinds[r.Kind]++
	}
	assert.Equal(t, steps.TotalSteps, kinds[gates.KindDualConfidence])
	assert.Equal(t, 5, kinds[gates.KindCrossValidation], "one per wave")
	assert.NotZero(t, kinds[gates.KindSRCSEvaluation])
	assert.NotZero(t, kinds[gates.KindQualityAssurance])

	var labels []string
	for _, snap := range sess.ContextSnapshots {
		labels = append(labels, snap.Label)
	}
	assert.Contains(t, labels, "checkpoint-8-approved")
	assert.Contains(t, labels, "checkpoint-146-approved")
}

func TestRunFailsAfterRetryExhaustion(t *testing.T) {
	cfg := testConfig(t)
	root := scaffoldProject(t, cfg)

	invoker := agent.NewScriptedInvoker()
	for i := 0; i < cfg.Retry.MaxRetries+1; i++ {
		invoker.Script("", &agent.Result{Output: "error: model refused"})
	}

	o, err := New(cfg, root, invoker, nil)
	require.NoError(t, err)
	defer o.Close()

	err = o.Run(context.Background())
	require.ErrorIs(t, err, retry.ErrExhausted)

	calls := invoker.Calls()
	require.Len(t, calls, cfg.Retry.MaxRetries+1)
	assert.NotContains(t, calls[0].Prompt, "Retry guidance")
	assert.Contains(t, calls[1].Prompt, "## Retry guidance")

	sess := loadSession(t, root)
	require.NotNil(t, sess.Completion)
	assert.Equal(t, CompletionFailed, sess.Completion.State)
	assert.Equal(t, 1, sess.Workflow.CurrentStep, "a failed step never advances")
}

func TestCheckpointReworkRegressesAndRedoes(t *testing.T) {
	cfg := testConfig(t)
	root := scaffoldProject(t, cfg)
	approveAll(t, root)
	writeApproval(t, filepath.Join(root, "00-session"), 8, "rework 6 tighten the scope")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu      sync.Mutex
		visits8 int
		calls   []agent.Request
	)
	invoker := agent.InvokerFunc(func(ctx context.Context, req agent.Request) (*agent.Result, error) {
		mu.Lock()
		calls = append(calls, req)
		if req.Step == 8 {
			visits8++
			if visits8 == 2 {
				// The human re-approves after the redone work.
				os.WriteFile(approvalPath(filepath.Join(root, "00-session"), 8),
					[]byte("approved"), 0o644)
			}
		}
		mu.Unlock()
		if req.Step == 9 {
			cancel()
			return nil, ctx.Err()
		}
		return &agent.Result{Output: passingOutput, TokenCount: 150}, nil
	})

	o, err := New(cfg, root, invoker, nil)
	require.NoError(t, err)
	defer o.Close()

	err = o.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	sess := loadSession(t, root)
	require.Len(t, sess.ReworkHistory, 1)
	assert.Equal(t, 9, sess.ReworkHistory[0].FromStep)
	assert.Equal(t, 6, sess.ReworkHistory[0].ToStep)
	assert.Equal(t, "tighten the scope", sess.ReworkHistory[0].Reason)
	assert.Equal(t, 8, sess.Workflow.LastCheckpoint)

	mu.Lock()
	defer mu.Unlock()
	var atStep6 []agent.Request
	for _, req := range calls {
		if req.Step == 6 {
			atStep6 = append(atStep6, req)
		}
	}
	require.Len(t, atStep6, 2, "step 6 runs once before and once after the rework")
	assert.NotContains(t, atStep6[0].Context, "Recovery context")
	assert.Contains(t, atStep6[1].Context, "Recovery context")
	assert.Contains(t, atStep6[1].Context, "tighten the scope")
}

func TestOversizedCorpusRunsThroughChunkedProcessor(t *testing.T) {
	cfg := testConfig(t)
	cfg.RLM.ChunkSize = 2
	root := scaffoldProject(t, cfg)
	approveAll(t, root)

	corpus := `[
		{"id": "SRC-001", "content": "Trial one reports d = 0.41."},
		{"id": "SRC-002", "content": "Trial two reports d = 0.47."},
		{"id": "SRC-003", "content": "Trial three reports d = 0.44."}
	]`
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "01-literature", "corpus.json"), []byte(corpus), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu    sync.Mutex
		calls []agent.Request
	)
	invoker := agent.InvokerFunc(func(ctx context.Context, req agent.Request) (*agent.Result, error) {
		mu.Lock()
		calls = append(calls, req)
		mu.Unlock()
		if req.Step == 0 {
			// Chunk analysis requests carry no step; echo the items so
			// the merged synthesis is traceable.
			return &agent.Result{Output: req.Prompt, TokenCount: 50}, nil
		}
		if req.Step == 24 {
			cancel()
			return nil, ctx.Err()
		}
		return &agent.Result{Output: passingOutput, TokenCount: 150}, nil
	})

	o, err := New(cfg, root, invoker, nil)
	require.NoError(t, err)
	defer o.Close()

	err = o.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// Three items in chunks of two mean two chunk invocations, archived
	// analyses and a merged synthesis on disk.
	assert.FileExists(t, filepath.Join(root, "01-literature", "corpus-synthesis.md"))
	assert.FileExists(t, filepath.Join(root, "memory", "rlm-chunks", "chunk-000.json"))
	assert.FileExists(t, filepath.Join(root, "memory", "rlm-chunks", "chunk-001.json"))

	mu.Lock()
	defer mu.Unlock()
	var step23 []agent.Request
	for _, req := range calls {
		if req.Step == 23 {
			step23 = append(step23, req)
		}
	}
	require.Len(t, step23, 1)
	assert.Contains(t, step23[0].Context, "## Corpus synthesis")
	assert.Contains(t, step23[0].Context, "SRC-001")
}

func TestRunPausesAtUnattendedCheckpoint(t *testing.T) {
	cfg := testConfig(t)
	root := scaffoldProject(t, cfg)

	invoker := agent.InvokerFunc(func(ctx context.Context, req agent.Request) (*agent.Result, error) {
		return &agent.Result{Output: passingOutput, TokenCount: 150}, nil
	})

	o, err := New(cfg, root, invoker, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = o.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, o.Close())

	sess := loadSession(t, root)
	require.NotNil(t, sess.Completion)
	assert.Equal(t, CompletionAwaitingHITL, sess.Completion.State)
	assert.Equal(t, 9, sess.Workflow.CurrentStep,
		"the step advanced; only the checkpoint decision is outstanding")

	// The human approves while the process is down; resuming picks the
	// decision up and drives the workflow to the end.
	approveAll(t, root)

	o2, err := New(cfg, root, invoker, nil)
	require.NoError(t, err)
	defer o2.Close()
	require.NoError(t, o2.Resume(context.Background()))

	sess = loadSession(t, root)
	require.NotNil(t, sess.Completion)
	assert.Equal(t, CompletionDone, sess.Completion.State)
}

func TestCurrentStatus(t *testing.T) {
	cfg := testConfig(t)
	root := scaffoldProject(t, cfg)

	o, err := New(cfg, root, agent.NewScriptedInvoker(), nil)
	require.NoError(t, err)
	defer o.Close()

	status, err := o.CurrentStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, status.Step)
	assert.Equal(t, 0, status.ChecklistDone)
	assert.Equal(t, steps.TotalSteps, status.ChecklistTotal)
	assert.Empty(t, status.Completion)
}

func TestConsistencyRemediation(t *testing.T) {
	report := consistency.Report{
		Score: 60,
		Inconsistencies: []consistency.Inconsistency{{
			Type:     consistency.TypeContradiction,
			Severity: consistency.SeverityHigh,
			Topic:    "effect",
			Detail:   "opposing effect statements across waves",
			Earlier:  consistency.ClaimRef{ClaimID: "LIT-001"},
			Later:    consistency.ClaimRef{ClaimID: "LIT-101"},
		}},
	}

	note := consistencyRemediation(2, report)
	assert.Contains(t, note, "Wave 2")
	assert.Contains(t, note, "consistency score 60.0")
	assert.Contains(t, note, "effect")
	assert.Contains(t, note, "LIT-001")
	assert.Contains(t, note, "LIT-101")
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "hitl-1-approve-scope-and-questions", slugify("HITL-1: approve scope and questions"))
	assert.Equal(t, "wave-1-summary-and-cache", slugify("Wave 1 summary and cache"))
	assert.Equal(t, "statistical-analysis-plan", slugify("Statistical analysis plan"))
}

func TestInitProjectScaffold(t *testing.T) {
	cfg := testConfig(t)
	start := t.TempDir()
	sess := &session.Session{
		Research: session.Research{
			Topic: "Phenomenology of Attention",
			Mode:  session.ModeQuestion,
			Type:  session.TypePhilosophical,
		},
	}

	root, err := InitProject(cfg, start, sess, nil)
	require.NoError(t, err)
	wantDir := fmt.Sprintf("thesis-phenomenology-of-attention-%s",
		time.Now().UTC().Format("2006-01-02"))
	assert.Equal(t, wantDir, filepath.Base(root))

	for _, dir := range projectDirs {
		assert.DirExists(t, filepath.Join(root, dir))
	}
	assert.FileExists(t, filepath.Join(root, "00-session", "session.json"))
	assert.FileExists(t, filepath.Join(root, "00-session", checklist.Filename))
	assert.FileExists(t, filepath.Join(root, "memory", "session.json"))

	// The marker lives beside the projects under the output root.
	assert.FileExists(t, filepath.Join(start, cfg.Paths.OutputRoot, ".current-working-dir.txt"))

	// A second init of the same topic refuses to clobber the project.
	_, err = InitProject(cfg, start, &session.Session{
		Research: session.Research{Topic: "Phenomenology of Attention"},
	}, nil)
	assert.ErrorContains(t, err, "already exists")
}
