// Package orchestrator drives the 150-step authoring workflow: it
// invokes agents strictly sequentially, pushes every output through
// extraction, validation, scoring and the dual-confidence gate, keeps
// session, checklist and memory in lockstep, and blocks at human
// checkpoints. The only parallelism in the system lives one package
// over, in the chunked processor.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/praxislabs/thesisd/internal/agent"
	"github.com/praxislabs/thesisd/internal/checklist"
	"github.com/praxislabs/thesisd/internal/claims"
	"github.com/praxislabs/thesisd/internal/config"
	"github.com/praxislabs/thesisd/internal/consistency"
	"github.com/praxislabs/thesisd/internal/gates"
	"github.com/praxislabs/thesisd/internal/gra"
	"github.com/praxislabs/thesisd/internal/hallucination"
	"github.com/praxislabs/thesisd/internal/logging"
	"github.com/praxislabs/thesisd/internal/memory"
	"github.com/praxislabs/thesisd/internal/paths"
	"github.com/praxislabs/thesisd/internal/ptcs"
	"github.com/praxislabs/thesisd/internal/retry"
	"github.com/praxislabs/thesisd/internal/rlm"
	"github.com/praxislabs/thesisd/internal/session"
	"github.com/praxislabs/thesisd/internal/srcs"
	"github.com/praxislabs/thesisd/internal/steps"
)

// Terminal completion states written to the session.
const (
	CompletionDone         = "completed"
	CompletionAwaitingHITL = "paused-awaiting-hitl"
	CompletionFailed       = "failed-after-retries"
)

// Orchestrator owns one project's execution.
type Orchestrator struct {
	cfg      *config.Config
	root     string
	resolver *paths.Resolver
	logger   *zap.Logger
	audit    *logging.AuditLog
	valLog   *logging.AuditLog

	sessions   *session.Store
	list       *checklist.Manager
	budget     *memory.Budget
	mem        *memory.Manager
	window     *memory.Window
	extractor  *claims.Extractor
	claimStore *claims.Store
	detector   *hallucination.Detector
	validator  *gra.Validator
	scorer     *srcs.Scorer
	calc       *ptcs.Calculator
	gate       *gates.Gate
	gateLog    *gates.ResultLog
	checker    *consistency.Checker
	enforcer   *retry.Enforcer
	processor  *rlm.Processor

	// phaseAgents and phaseSRCS accumulate per-step scores for the
	// phase-boundary gates. Lost on restart, which only costs the phase
	// rollup, never a step gate decision.
	phaseAgents map[steps.Phase][]ptcs.AgentScore
	phaseSRCS   map[steps.Phase][]float64

	// recovery is injected into the next request after a resume.
	recovery string
}

// New wires an orchestrator over an existing project. Close releases
// the claim store.
func New(cfg *config.Config, projectRoot string, invoker agent.Invoker, logger *zap.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	resolver := paths.NewResolver(cfg.Paths.OutputRoot, logger)
	sessionDir := filepath.Join(projectRoot, "00-session")

	budget, err := memory.NewBudget(
		filepath.Join(resolver.MemoryDir(projectRoot), memory.BudgetFilename),
		cfg.Memory.MaxBudgetTokens, logger,
		memory.WithAlertThresholds(cfg.Memory.WarnUtilization, cfg.Memory.CriticalUtilization))
	if err != nil {
		return nil, err
	}
	mem := memory.NewManager(resolver, projectRoot, budget, logger,
		memory.WithCompressionLimits(cfg.Memory.SummaryTokens,
			cfg.Memory.WaveCacheTokens, cfg.Memory.SynthesisTokens))

	claimStore, err := claims.NewStore(filepath.Join(sessionDir, "claims.db"))
	if err != nil {
		return nil, err
	}

	enforcer, err := retry.NewEnforcer(invoker,
		filepath.Join(sessionDir, "retry-state.json"), cfg.Retry, logger)
	if err != nil {
		claimStore.Close()
		return nil, err
	}

	researchType := session.TypeUnset
	sessions := session.NewStore(resolver.SessionFile(projectRoot)).
		WithMirror(filepath.Join(resolver.MemoryDir(projectRoot), "session.json"))
	if sess, err := sessions.Load(); err == nil {
		researchType = sess.Research.Type
	} else if !errors.Is(err, session.ErrNotFound) {
		claimStore.Close()
		return nil, err
	}

	detector := hallucination.NewDetector()
	scorerOpts := []srcs.Option{srcs.WithThreshold(cfg.Quality.SRCSThreshold)}
	if cfg.Quality.Philosophical || researchType == session.TypePhilosophical {
		scorerOpts = append(scorerOpts, srcs.WithPhilosophical())
	}

	return &Orchestrator{
		cfg:        cfg,
		root:       projectRoot,
		resolver:   resolver,
		logger:     logger,
		audit:      logging.NewAuditLog(filepath.Join(sessionDir, logging.WorkflowLogFilename)),
		valLog:     logging.NewAuditLog(filepath.Join(sessionDir, logging.CrossValidationLogFilename)),
		sessions:   sessions,
		list:       checklist.NewManager(filepath.Join(sessionDir, checklist.Filename), researchType, logger),
		budget:     budget,
		mem:        mem,
		window:     memory.NewWindow(cfg.Memory.WindowSize, mem),
		extractor:  claims.NewExtractor(),
		claimStore: claimStore,
		detector:   detector,
		validator:  gra.NewValidator(detector),
		scorer:     srcs.NewScorer(detector, scorerOpts...),
		calc:       ptcs.NewCalculator(cfg.Quality.PTCSThreshold),
		gate:       gates.NewGate(cfg.Quality.PTCSThreshold, cfg.Quality.SRCSThreshold, logger),
		gateLog:    gates.NewResultLog(filepath.Join(sessionDir, "gate-results.json")),
		checker:    consistency.NewChecker(cfg.Quality.ConsistencyThreshold),
		enforcer:   enforcer,
		processor: rlm.NewProcessor(invoker, mem, resolver, projectRoot, logger,
			rlm.WithChunkSize(cfg.RLM.ChunkSize),
			rlm.WithWorkers(cfg.RLM.Workers),
			rlm.WithTokenCaps(cfg.RLM.ChunkAnalysisLimit,
				cfg.RLM.ChunkSummaryLimit, cfg.RLM.MergeLimit)),
		phaseAgents: map[steps.Phase][]ptcs.AgentScore{},
		phaseSRCS:   map[steps.Phase][]float64{},
	}, nil
}

// Close releases held resources.
func (o *Orchestrator) Close() error {
	return o.claimStore.Close()
}

// Run executes the workflow from the session's current step to the end
// or a terminal condition. Cancellation returns without advancing the
// in-flight step.
func (o *Orchestrator) Run(ctx context.Context) error {
	sess, err := o.sessions.Load()
	if err != nil {
		return err
	}
	if sess.Completion != nil && sess.Completion.State == CompletionDone {
		o.logger.Info("workflow already complete")
		return nil
	}

	step := sess.Workflow.CurrentStep
	for step <= steps.TotalSteps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.runStep(ctx, step); err != nil {
			return err
		}
		// Follow the session: forward after an advance, backward after
		// a checkpoint rework. The final step does not advance.
		sess, err = o.sessions.Load()
		if err != nil {
			return err
		}
		if sess.Workflow.CurrentStep == step {
			break
		}
		step = sess.Workflow.CurrentStep
	}

	if err := o.sessions.Complete(CompletionDone, ""); err != nil {
		return err
	}
	o.audit.Append("workflow completed at step %d", steps.TotalSteps)
	o.logger.Info("workflow completed")
	return nil
}

// runStep executes one step end to end: invoke, evaluate, persist,
// advance, mark, boundary work, checkpoint.
func (o *Orchestrator) runStep(ctx context.Context, step int) error {
	item, err := o.list.ItemAt(step)
	if err != nil {
		return err
	}
	agentName := slugify(item.Title)
	phase, err := steps.PhaseOf(step)
	if err != nil {
		return err
	}

	o.logger.Info("executing step",
		zap.Int("step", step),
		zap.String("phase", string(phase)),
		zap.String("agent", agentName))
	if err := o.list.Mark(step, checklist.StatusInProgress); err != nil {
		return err
	}

	extra, err := o.corpusContext(ctx, step, agentName)
	if err != nil {
		return err
	}

	outcome, err := o.invokeStep(ctx, step, agentName, item.Title, extra)
	if errors.Is(err, retry.ErrExhausted) {
		if cerr := o.sessions.Complete(CompletionFailed, err.Error()); cerr != nil {
			return errors.Join(err, cerr)
		}
		o.audit.Append("step %d failed after retries: %v", step, err)
		return err
	}
	if err != nil {
		return err
	}

	wave := steps.Wave(step)
	if len(outcome.claims) > 0 {
		if err := o.claimStore.SaveBatch(ctx, string(phase), wave, outcome.claims); err != nil {
			return err
		}
	}

	gateResult := o.gate.Evaluate(ctx, fmt.Sprintf("step-%d-%s", step, agentName),
		gates.KindDualConfidence, outcome.agentScore.Score, outcome.srcsMean,
		map[string]any{
			"step":   step,
			"agent":  agentName,
			"claims": len(outcome.claims),
		})
	if err := o.gateLog.Append(gateResult); err != nil {
		return err
	}

	if _, err := o.window.Push(ctx, memory.AgentOutput{
		Agent:      agentName,
		Step:       step,
		Phase:      phase,
		Content:    outcome.result.Output,
		TokenCount: outcome.result.TokenCount,
	}); err != nil {
		return err
	}

	o.phaseAgents[phase] = append(o.phaseAgents[phase], outcome.agentScore)
	o.phaseSRCS[phase] = append(o.phaseSRCS[phase], outcome.srcsMean)

	// Persist position before boundary work so a crash between the two
	// re-runs only the idempotent parts.
	if step < steps.TotalSteps {
		if _, err := o.sessions.Advance(step+1, agentName); err != nil {
			return err
		}
	}
	if err := o.list.Mark(step, checklist.StatusCompleted); err != nil {
		return err
	}
	o.valLog.Append("step %d (%s) %s: pTCS %.1f SRCS %.1f claims %d",
		step, agentName, gateResult.Decision, outcome.agentScore.Score,
		outcome.srcsMean, len(outcome.claims))

	if err := o.boundaryWork(ctx, step, phase, wave, string(gateResult.Decision)); err != nil {
		return err
	}

	if steps.IsCheckpoint(step) {
		if err := o.checkpoint(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

// stepOutcome is everything the quality pipeline produced for a step.
type stepOutcome struct {
	result     *agent.Result
	claims     []claims.Claim
	agentScore ptcs.AgentScore
	srcsMean   float64
}

// invokeStep calls the agent through the retry enforcer; the accept
// callback runs the full quality pipeline on each attempt.
func (o *Orchestrator) invokeStep(ctx context.Context, step int, agentName, task, extra string) (*stepOutcome, error) {
	outcome := &stepOutcome{}
	docName := fmt.Sprintf("step-%03d-%s", step, agentName)

	req := agent.Request{
		Agent:   agentName,
		Step:    step,
		Prompt:  fmt.Sprintf("Step %d of %d: %s.", step, steps.TotalSteps, task),
		Context: o.contextPayload() + extra,
	}
	o.recovery = ""

	res, err := o.enforcer.Invoke(ctx, req, func(res *agent.Result) (bool, string) {
		extracted, err := o.extractor.Extract(docName, res.Output)
		if err != nil {
			return false, "claim extraction failed: " + err.Error()
		}

		detection := o.detector.Detect(res.Output)
		if detection.Level == hallucination.Block {
			return false, "blocked language: " + detection.Matches[0].Span
		}

		for _, validation := range o.validator.ValidateAll(extracted) {
			if !validation.Valid {
				return false, fmt.Sprintf("claim %s rejected: %s",
					validation.ClaimID, validation.Errors[0])
			}
		}

		scores := o.scorer.ScoreAll(extracted)
		claimScores := make([]ptcs.ClaimScore, len(extracted))
		var srcsSum float64
		for i := range extracted {
			claimScores[i] = o.calc.Claim(&extracted[i], scores[i])
			srcsSum += scores[i].Total
		}

		agentScore := o.calc.Agent(agentName, claimScores)
		if o.calc.Failing(agentScore.Score) {
			return false, fmt.Sprintf("pTCS %.1f below threshold %.1f",
				agentScore.Score, o.calc.Threshold())
		}

		outcome.claims = extracted
		outcome.agentScore = agentScore
		if len(extracted) > 0 {
			outcome.srcsMean = srcsSum / float64(len(extracted))
		} else {
			// No claims to evaluate; the SRCS signal is vacuous and
			// must not block administrative steps.
			outcome.srcsMean = o.cfg.Quality.SRCSThreshold
		}
		return true, ""
	})
	if err != nil {
		return nil, err
	}
	outcome.result = res
	return outcome, nil
}

// An oversized literature corpus is dropped under 01-literature as
// corpus.json. When present at the start of deep analysis it runs
// through the chunked processor; only the merged synthesis enters the
// step context.
const (
	corpusFilename          = "corpus.json"
	corpusSynthesisFilename = "corpus-synthesis.md"

	// deepAnalysisStart is the first step of wave 2.
	deepAnalysisStart = 23
)

func (o *Orchestrator) corpusContext(ctx context.Context, step int, agentName string) (string, error) {
	if step != deepAnalysisStart {
		return "", nil
	}
	data, err := os.ReadFile(filepath.Join(o.root, "01-literature", corpusFilename))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read corpus: %w", err)
	}
	var items []rlm.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return "", fmt.Errorf("decode corpus: %w", err)
	}
	if len(items) == 0 {
		return "", nil
	}

	synthesis, err := o.processor.Process(ctx, agentName, items)
	if err != nil {
		return "", err
	}
	outPath, err := o.resolver.OutputPath(o.root, steps.Phase1Wave2, corpusSynthesisFilename)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(outPath, []byte(synthesis.Text), 0o644); err != nil {
		return "", fmt.Errorf("write corpus synthesis: %w", err)
	}
	o.audit.Append("corpus of %d items processed in %d chunks at step %d",
		synthesis.ItemCount, synthesis.ChunkCount, step)
	return "## Corpus synthesis\n\n" + synthesis.Text + "\n\n", nil
}

// contextPayload assembles the compressed-memory view an agent gets:
// recovery note, live wave caches, then the verbatim window.
func (o *Orchestrator) contextPayload() string {
	var b strings.Builder
	if o.recovery != "" {
		b.WriteString("## Recovery context\n\n")
		b.WriteString(o.recovery)
		b.WriteString("\n\n")
	}

	if caches, err := o.mem.WaveCaches(); err == nil && len(caches) > 0 {
		b.WriteString("## Wave summaries\n\n")
		for _, cache := range caches {
			fmt.Fprintf(&b, "Wave %d (%s): %s\n\n", cache.Wave, cache.GateResult, cache.Summary)
		}
	}

	window := o.window.Contents()
	if len(window) > 0 {
		b.WriteString("## Recent outputs\n\n")
		for _, out := range window {
			fmt.Fprintf(&b, "### Step %d — %s\n\n%s\n\n", out.Step, out.Agent, out.Content)
		}
	}
	return b.String()
}

// boundaryWork performs wave-end and phase-end duties: cross-wave
// consistency, Level-2/3 compression, raw archive, session snapshot.
func (o *Orchestrator) boundaryWork(ctx context.Context, step int, phase steps.Phase, wave int, gateDecision string) error {
	if steps.IsWaveEnd(step) {
		if _, err := o.window.Flush(ctx); err != nil {
			return err
		}
		if err := o.crossWaveCheck(ctx, wave); err != nil {
			return err
		}
		if _, err := o.mem.CompressWave(ctx, wave, gateDecision); err != nil {
			return err
		}
		o.audit.Append("wave %d closed at step %d", wave, step)
	}

	if steps.IsPhaseEnd(step) {
		if _, err := o.window.Flush(ctx); err != nil {
			return err
		}
		if err := o.phaseGates(ctx, phase); err != nil {
			return err
		}
		if score, ok := o.phaseRollup(phase); ok {
			o.valLog.Append("phase %s pTCS %.1f over %d agents", phase, score.Score, score.AgentCount)
		}
		if synthPath, err := o.mem.CompressPhase(ctx, phase); err != nil {
			// Phases without compressible output (the hitl bridge on a
			// fresh resume) must not wedge the workflow.
			o.logger.Warn("phase synthesis skipped",
				zap.String("phase", string(phase)), zap.Error(err))
		} else {
			o.logger.Info("phase synthesis written", zap.String("path", synthPath))
		}
		if err := o.mem.ArchivePhase(ctx); err != nil {
			return err
		}
		if err := o.sessions.Snapshot("phase-end-" + string(phase)); err != nil {
			return err
		}
		o.audit.Append("phase %s closed at step %d", phase, step)
	}
	return nil
}

// crossWaveCheck compares the finished wave's claims against all prior
// waves and persists the report beside the literature outputs.
func (o *Orchestrator) crossWaveCheck(ctx context.Context, wave int) error {
	current, err := o.claimStore.ByWave(ctx, wave)
	if err != nil {
		return err
	}
	previous, err := o.claimStore.BeforeWave(ctx, wave)
	if err != nil {
		return err
	}

	report := o.checker.Check(current, previous)
	reportPath, err := o.resolver.OutputPath(o.root, steps.Phase1Wave1,
		fmt.Sprintf("wave-%d-consistency.json", wave))
	if err != nil {
		return err
	}
	if err := writeJSON(reportPath, report); err != nil {
		return err
	}

	gateResult := o.gate.Evaluate(ctx, fmt.Sprintf("wave-%d-cross-validation", wave),
		gates.KindCrossValidation, report.Score, report.Score,
		map[string]any{
			"wave":           wave,
			"findings":       len(report.Inconsistencies),
			"compared_pairs": report.ComparedPairs,
		})
	if err := o.gateLog.Append(gateResult); err != nil {
		return err
	}

	if !report.Pass {
		// A failing wave does not block; the next agent invocation
		// carries the findings and must reconcile them before building
		// on the wave's claims.
		o.recovery = consistencyRemediation(wave, report)
		o.logger.Warn("cross-wave consistency below threshold",
			zap.Int("wave", wave),
			zap.Float64("score", report.Score),
			zap.Int("findings", len(report.Inconsistencies)))
	}
	o.valLog.Append("wave %d consistency %.1f (%d findings, gate %s)",
		wave, report.Score, len(report.Inconsistencies), gateResult.Decision)
	return nil
}

// consistencyRemediation turns a failing cross-wave report into the
// reconciliation instruction injected into the next step's context.
func consistencyRemediation(wave int, report consistency.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b,
		"Wave %d produced claims inconsistent with earlier waves (consistency score %.1f). Reconcile these before building on them:\n",
		wave, report.Score)
	for i, inc := range report.Inconsistencies {
		if i == maxRemediationFindings {
			fmt.Fprintf(&b, "- and %d more in wave-%d-consistency.json\n",
				len(report.Inconsistencies)-i, wave)
			break
		}
		fmt.Fprintf(&b, "- [%s] %s: %s (claims %s vs %s)\n",
			inc.Severity, inc.Topic, inc.Detail, inc.Earlier.ClaimID, inc.Later.ClaimID)
	}
	return b.String()
}

const maxRemediationFindings = 5

// phaseGates records the phase-boundary gate results: the SRCS
// evaluation over the phase's per-step means, and the quality gate
// combining the phase pTCS rollup with that SRCS mean.
func (o *Orchestrator) phaseGates(ctx context.Context, phase steps.Phase) error {
	srcsVals := o.phaseSRCS[phase]
	if len(srcsVals) == 0 {
		return nil
	}
	var sum float64
	for _, v := range srcsVals {
		sum += v
	}
	srcsMean := sum / float64(len(srcsVals))

	// Single-signal kinds carry their score on both axes.
	srcsGate := o.gate.Evaluate(ctx, fmt.Sprintf("phase-%s-srcs", phase),
		gates.KindSRCSEvaluation, srcsMean, srcsMean,
		map[string]any{
			"phase": string(phase),
			"steps": len(srcsVals),
		})
	if err := o.gateLog.Append(srcsGate); err != nil {
		return err
	}

	rollup, ok := o.phaseRollup(phase)
	if !ok {
		return nil
	}
	qaGate := o.gate.Evaluate(ctx, fmt.Sprintf("phase-%s-quality", phase),
		gates.KindQualityAssurance, rollup.Score, srcsMean,
		map[string]any{
			"phase":  string(phase),
			"agents": rollup.AgentCount,
		})
	if err := o.gateLog.Append(qaGate); err != nil {
		return err
	}
	o.valLog.Append("phase %s gates: srcs %s, quality %s",
		phase, srcsGate.Decision, qaGate.Decision)
	return nil
}

func (o *Orchestrator) phaseRollup(phase steps.Phase) (ptcs.PhaseScore, bool) {
	agents := o.phaseAgents[phase]
	if len(agents) == 0 {
		return ptcs.PhaseScore{}, false
	}
	return o.calc.Phase(string(phase), agents), true
}

// checkpoint records a budget observation, then blocks until a human
// decision. Rework regresses the session; cancellation records the
// paused state for the next resume.
func (o *Orchestrator) checkpoint(ctx context.Context, step int) error {
	alert, err := o.budget.Checkpoint(fmt.Sprintf("step-%d", step))
	if err != nil {
		return err
	}
	if alert != nil && alert.Escalate {
		o.audit.Append("memory budget over limit at step %d (%.2f), human decision required",
			step, alert.Utilization)
	}

	sessionDir := filepath.Join(o.root, "00-session")
	o.audit.Append("checkpoint %d awaiting approval", step)

	decision, err := WaitForApproval(ctx, sessionDir, step, o.logger)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if cerr := o.sessions.Complete(CompletionAwaitingHITL,
			fmt.Sprintf("checkpoint %d awaiting approval", step)); cerr != nil {
			return errors.Join(err, cerr)
		}
		return err
	}
	if err != nil {
		return err
	}

	switch decision.State {
	case StateApproved:
		if _, err := o.sessions.Update(map[string]any{
			"workflow": map[string]any{"last_checkpoint": step},
		}); err != nil {
			return err
		}
		if err := o.sessions.Snapshot(fmt.Sprintf("checkpoint-%d-approved", step)); err != nil {
			return err
		}
		o.audit.Append("checkpoint %d approved: %s", step, decision.Reason)
		return nil
	case StateReworkRequested:
		if _, err := o.sessions.Rework(decision.ReworkStep, decision.Reason); err != nil {
			return err
		}
		// Consume the decision so the checkpoint blocks again after the
		// redone work instead of replaying the same rework.
		if err := os.Remove(approvalPath(sessionDir, step)); err != nil && !os.IsNotExist(err) {
			return err
		}
		o.recovery = fmt.Sprintf(
			"Checkpoint %d requested rework. Reason: %s. Redo the work from step %d addressing this.",
			step, decision.Reason, decision.ReworkStep)
		o.audit.Append("checkpoint %d requested rework to step %d: %s",
			step, decision.ReworkStep, decision.Reason)
		return nil
	default:
		return fmt.Errorf("checkpoint %d returned unexpected state %q", step, decision.State)
	}
}

func slugify(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteRune('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
