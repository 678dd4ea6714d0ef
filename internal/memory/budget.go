package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BudgetFilename is the accounting file inside memory/.
const BudgetFilename = "memory-budget.json"

// Alert thresholds. 0.89 utilization stays silent; 0.90 is critical.
const (
	WarnUtilization     = 0.75
	CriticalUtilization = 0.90
)

// AlertLevel classifies a budget alert.
type AlertLevel string

const (
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// Alert records a threshold crossing observed at a checkpoint.
type Alert struct {
	Level       AlertLevel `json:"level"`
	Utilization float64    `json:"utilization"`
	Checkpoint  string     `json:"checkpoint"`
	Escalate    bool       `json:"escalate,omitempty"` // utilization >= 1.0, human decides
	At          time.Time  `json:"at"`
}

// HistoryEntry is one checkpoint observation.
type HistoryEntry struct {
	Checkpoint  string    `json:"checkpoint"`
	Usage       int       `json:"usage"`
	Utilization float64   `json:"utilization"`
	At          time.Time `json:"at"`
}

// budgetState is the persisted shape of memory-budget.json.
type budgetState struct {
	MaxTokens    int            `json:"max_tokens"`
	CurrentUsage int            `json:"current_usage"`
	PhaseUsage   map[string]int `json:"phase_usage"`
	Alerts       []Alert        `json:"alerts"`
	History      []HistoryEntry `json:"history"`
}

// Budget tracks live-context token accounting for a project. It is
// single-writer (the orchestrator) and persisted after every mutation
// so a crash never loses accounting.
type Budget struct {
	mu       sync.Mutex
	path     string
	state    budgetState
	warn     float64
	critical float64
	logger   *zap.Logger
}

// BudgetOption configures a Budget.
type BudgetOption func(*Budget)

// WithAlertThresholds overrides the default warning/critical
// utilization thresholds. Zero values keep the defaults.
func WithAlertThresholds(warn, critical float64) BudgetOption {
	return func(b *Budget) {
		if warn > 0 {
			b.warn = warn
		}
		if critical > 0 {
			b.critical = critical
		}
	}
}

// NewBudget opens or creates the budget file at path with the given
// maximum. An existing file wins over the passed maximum, so a resumed
// project keeps its original budget.
func NewBudget(path string, maxTokens int, logger *zap.Logger, opts ...BudgetOption) (*Budget, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Budget{
		path:     path,
		logger:   logger,
		warn:     WarnUtilization,
		critical: CriticalUtilization,
		state: budgetState{
			MaxTokens:  maxTokens,
			PhaseUsage: map[string]int{},
		},
	}
	for _, opt := range opts {
		opt(b)
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &b.state); err != nil {
			return nil, fmt.Errorf("decode budget file: %w", err)
		}
		if b.state.PhaseUsage == nil {
			b.state.PhaseUsage = map[string]int{}
		}
		return b, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read budget file: %w", err)
	}
	return b, b.persistLocked()
}

// Add charges tokens against a phase.
func (b *Budget) Add(phase string, tokens int) error {
	if tokens <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.CurrentUsage += tokens
	b.state.PhaseUsage[phase] += tokens
	return b.persistLocked()
}

// Release frees tokens previously charged to a phase, clamping at zero.
// Callers release only after the matching on-disk archive succeeded.
func (b *Budget) Release(phase string, tokens int) error {
	if tokens <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.CurrentUsage -= tokens
	if b.state.CurrentUsage < 0 {
		b.state.CurrentUsage = 0
	}
	b.state.PhaseUsage[phase] -= tokens
	if b.state.PhaseUsage[phase] < 0 {
		b.state.PhaseUsage[phase] = 0
	}
	return b.persistLocked()
}

// Checkpoint recomputes utilization, records a history entry and emits
// a threshold alert when one applies. Over-budget (>= 1.0) never drops
// data; the alert carries an escalation flag for a human decision.
func (b *Budget) Checkpoint(label string) (*Alert, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	util := b.utilizationLocked()
	now := time.Now().UTC()
	b.state.History = append(b.state.History, HistoryEntry{
		Checkpoint:  label,
		Usage:       b.state.CurrentUsage,
		Utilization: util,
		At:          now,
	})

	var alert *Alert
	switch {
	case util >= b.critical:
		alert = &Alert{
			Level:       AlertCritical,
			Utilization: util,
			Checkpoint:  label,
			Escalate:    util >= 1.0,
			At:          now,
		}
		b.logger.Error("memory budget critical",
			zap.String("checkpoint", label),
			zap.Float64("utilization", util),
			zap.Bool("escalate", alert.Escalate))
	case util >= b.warn:
		alert = &Alert{Level: AlertWarning, Utilization: util, Checkpoint: label, At: now}
		b.logger.Warn("memory budget warning",
			zap.String("checkpoint", label),
			zap.Float64("utilization", util))
	}
	if alert != nil {
		b.state.Alerts = append(b.state.Alerts, *alert)
	}

	if err := b.persistLocked(); err != nil {
		return nil, err
	}
	return alert, nil
}

// Usage returns current live-token usage.
func (b *Budget) Usage() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.CurrentUsage
}

// Max returns the token ceiling.
func (b *Budget) Max() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.MaxTokens
}

// Utilization returns usage/max.
func (b *Budget) Utilization() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.utilizationLocked()
}

// PhaseUsage returns a copy of per-phase charges.
func (b *Budget) PhaseUsage() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int, len(b.state.PhaseUsage))
	for k, v := range b.state.PhaseUsage {
		out[k] = v
	}
	return out
}

// History returns a copy of checkpoint observations.
func (b *Budget) History() []HistoryEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]HistoryEntry, len(b.state.History))
	copy(out, b.state.History)
	return out
}

// Alerts returns a copy of emitted alerts.
func (b *Budget) Alerts() []Alert {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Alert, len(b.state.Alerts))
	copy(out, b.state.Alerts)
	return out
}

func (b *Budget) utilizationLocked() float64 {
	if b.state.MaxTokens <= 0 {
		return 0
	}
	return float64(b.state.CurrentUsage) / float64(b.state.MaxTokens)
}

func (b *Budget) persistLocked() error {
	data, err := json.MarshalIndent(&b.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode budget: %w", err)
	}
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create budget directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "budget-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp budget file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp budget file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp budget file: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace budget file: %w", err)
	}
	return nil
}
