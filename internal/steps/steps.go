// Package steps defines the fixed 150-step workflow table: phase
// boundaries, wave boundaries and HITL checkpoint positions. It is the
// single source of truth for step→phase mapping; session, checklist and
// orchestrator all consult it.
package steps

import "fmt"

// TotalSteps is the length of the workflow.
const TotalSteps = 150

// Phase identifies a workflow segment.
type Phase string

const (
	Phase0      Phase = "phase0"       // initialization
	Phase1Wave1 Phase = "phase1-wave1" // literature: search
	Phase1Wave2 Phase = "phase1-wave2" // literature: deep analysis
	Phase1Wave3 Phase = "phase1-wave3" // literature: critical
	Phase1Wave4 Phase = "phase1-wave4" // literature: synthesis
	Phase1Wave5 Phase = "phase1-wave5" // literature: quality
	HITL2       Phase = "hitl-2"       // checkpoint bridge before design
	Phase2      Phase = "phase2"       // research design
	Phase3      Phase = "phase3"       // thesis writing
	Phase4      Phase = "phase4"       // publication strategy
	Completion  Phase = "completion"
)

// phaseRange is one row of the step table.
type phaseRange struct {
	phase Phase
	first int
	last  int
}

// table maps contiguous step ranges to phases, in order.
var table = []phaseRange{
	{Phase0, 1, 8},
	{Phase1Wave1, 9, 22},
	{Phase1Wave2, 23, 40},
	{Phase1Wave3, 41, 58},
	{Phase1Wave4, 59, 72},
	{Phase1Wave5, 73, 83},
	{HITL2, 84, 89},
	{Phase2, 90, 108},
	{Phase3, 109, 125},
	{Phase4, 126, 146},
	{Completion, 147, 150},
}

// Checkpoints are the HITL checkpoint steps, in order. Execution blocks
// after each until a human decision is recorded.
var Checkpoints = []int{8, 18, 83, 89, 108, 109, 114, 125, 146}

// ResearchTypeBranch is the step window where the checklist emits
// either quantitative or philosophical agent items.
var ResearchTypeBranch = struct{ First, Last int }{95, 98}

// Valid reports whether step is within the workflow.
func Valid(step int) bool {
	return step >= 1 && step <= TotalSteps
}

// PhaseOf returns the phase owning a step.
func PhaseOf(step int) (Phase, error) {
	for _, r := range table {
		if step >= r.first && step <= r.last {
			return r.phase, nil
		}
	}
	return "", fmt.Errorf("step %d outside workflow range 1..%d", step, TotalSteps)
}

// Range returns the first and last step of a phase.
func Range(phase Phase) (first, last int, err error) {
	for _, r := range table {
		if r.phase == phase {
			return r.first, r.last, nil
		}
	}
	return 0, 0, fmt.Errorf("unknown phase %q", phase)
}

// Phases returns all phases in execution order.
func Phases() []Phase {
	result := make([]Phase, len(table))
	for i, r := range table {
		result[i] = r.phase
	}
	return result
}

// Wave returns the literature wave number (1-5) for a step, or 0 when
// the step is outside phase 1.
func Wave(step int) int {
	phase, err := PhaseOf(step)
	if err != nil {
		return 0
	}
	switch phase {
	case Phase1Wave1:
		return 1
	case Phase1Wave2:
		return 2
	case Phase1Wave3:
		return 3
	case Phase1Wave4:
		return 4
	case Phase1Wave5:
		return 5
	}
	return 0
}

// WavePhase maps a literature wave number back to its phase.
func WavePhase(wave int) (Phase, bool) {
	switch wave {
	case 1:
		return Phase1Wave1, true
	case 2:
		return Phase1Wave2, true
	case 3:
		return Phase1Wave3, true
	case 4:
		return Phase1Wave4, true
	case 5:
		return Phase1Wave5, true
	}
	return "", false
}

// IsCheckpoint reports whether a checkpoint blocks after this step.
func IsCheckpoint(step int) bool {
	for _, cp := range Checkpoints {
		if cp == step {
			return true
		}
	}
	return false
}

// IsWaveEnd reports whether this step closes a literature wave.
func IsWaveEnd(step int) bool {
	for _, r := range table {
		if Wave(r.last) != 0 && step == r.last {
			return true
		}
	}
	return false
}

// IsPhaseEnd reports whether this step closes its phase. The wave rows
// all belong to phase 1, so only the final wave closes it.
func IsPhaseEnd(step int) bool {
	for i, r := range table {
		if step != r.last {
			continue
		}
		if Wave(step) != 0 && i+1 < len(table) && Wave(table[i+1].first) != 0 {
			return false
		}
		return true
	}
	return false
}
