package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/praxislabs/thesisd/internal/checklist"
	"github.com/praxislabs/thesisd/internal/memory"
	"github.com/praxislabs/thesisd/internal/steps"
)

// Resume rebuilds in-process state from disk — checklist position,
// compressed memory levels, pending checkpoint — injects a recovery
// context into the next agent request, and continues the run.
func (o *Orchestrator) Resume(ctx context.Context) error {
	sess, err := o.sessions.Load()
	if err != nil {
		return err
	}
	if err := o.resolver.Validate(sess, o.root); err != nil {
		return err
	}
	if err := o.mem.Restore(); err != nil {
		return err
	}
	if err := o.list.Load(); err != nil {
		if !errors.Is(err, checklist.ErrNotFound) {
			return err
		}
		// A project without a checklist regenerates one and resyncs
		// it to the session position: the session file is the
		// authority on progress.
		if err := o.list.Create(); err != nil {
			return err
		}
		for s := 1; s < sess.Workflow.CurrentStep; s++ {
			if err := o.list.Mark(s, checklist.StatusCompleted); err != nil {
				return err
			}
		}
	}

	step := sess.Workflow.CurrentStep
	phase := sess.Workflow.CurrentPhase
	done, total, _ := o.list.Progress()

	pending, hasPending := o.pendingCheckpoint(step, sess.Workflow.LastCheckpoint)

	recovery := fmt.Sprintf(
		"This workflow was interrupted and is resuming at step %d of %d (phase %s, %d/%d checklist items complete, last approved checkpoint %d).",
		step, steps.TotalSteps, phase, done, total, sess.Workflow.LastCheckpoint)
	if hasPending {
		recovery += fmt.Sprintf(" Checkpoint %d is still awaiting a human decision.", pending)
	}
	o.recovery = recovery

	o.logger.Info("resuming workflow",
		zap.Int("step", step),
		zap.String("phase", phase),
		zap.Int("checklist_done", done))
	o.audit.Append("resumed at step %d (phase %s)", step, phase)

	// The checkpoint the previous process stopped at settles first: a
	// decision file written while the process was down is applied, an
	// absent one blocks again.
	if hasPending {
		if err := o.checkpoint(ctx, pending); err != nil {
			return err
		}
	}
	return o.Run(ctx)
}

// pendingCheckpoint reports the most recent checkpoint strictly before
// current whose decision was never processed into the session. A
// checkpoint blocks only after its step ran, so current is always past
// the checkpoint it stopped at.
func (o *Orchestrator) pendingCheckpoint(current, lastApproved int) (int, bool) {
	pending := 0
	for _, cp := range steps.Checkpoints {
		if cp >= current {
			break
		}
		if cp > lastApproved {
			pending = cp
		}
	}
	return pending, pending != 0
}

// Status is a read-only snapshot for the status command.
type Status struct {
	Step           int            `json:"step"`
	Phase          string         `json:"phase"`
	ChecklistDone  int            `json:"checklist_done"`
	ChecklistTotal int            `json:"checklist_total"`
	LastCheckpoint int            `json:"last_checkpoint"`
	BudgetUsage    int            `json:"budget_usage"`
	BudgetMax      int            `json:"budget_max"`
	Utilization    float64        `json:"utilization"`
	BudgetAlerts   []memory.Alert `json:"budget_alerts,omitempty"`
	Completion     string         `json:"completion,omitempty"`
	ReworkCount    int            `json:"rework_count"`
}

// CurrentStatus summarizes the project without mutating anything.
func (o *Orchestrator) CurrentStatus() (*Status, error) {
	sess, err := o.sessions.Load()
	if err != nil {
		return nil, err
	}
	done, total, _ := o.list.Progress()

	status := &Status{
		Step:           sess.Workflow.CurrentStep,
		Phase:          sess.Workflow.CurrentPhase,
		ChecklistDone:  done,
		ChecklistTotal: total,
		LastCheckpoint: sess.Workflow.LastCheckpoint,
		BudgetUsage:    o.budget.Usage(),
		BudgetMax:      o.budget.Max(),
		Utilization:    o.budget.Utilization(),
		BudgetAlerts:   o.budget.Alerts(),
		ReworkCount:    len(sess.ReworkHistory),
	}
	if sess.Completion != nil {
		status.Completion = sess.Completion.State
	}
	return status, nil
}
