// Package checklist renders and maintains the 150-item workflow
// checklist as a human-readable markdown file. The checklist is a view
// over progress, not an authority: the session file decides position,
// the checklist follows it.
package checklist

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/praxislabs/thesisd/internal/session"
	"github.com/praxislabs/thesisd/internal/steps"
)

// Filename is the checklist's name inside 00-session.
const Filename = "todo-checklist.md"

var (
	ErrNotFound      = errors.New("checklist file not found")
	ErrUnknownStep   = errors.New("step outside checklist range")
	ErrUnknownStatus = errors.New("unknown checklist status")
)

// itemRe matches a rendered checklist row.
var itemRe = regexp.MustCompile(`^- \[( |~|x)\] Step (\d+): (.+)$`)

// boxes maps each status to its rendered checkbox character.
var boxes = map[Status]string{
	StatusPending:    " ",
	StatusInProgress: "~",
	StatusCompleted:  "x",
}

func statusForBox(box string) Status {
	for status, b := range boxes {
		if b == box {
			return status
		}
	}
	return StatusPending
}

// Manager owns a project's checklist file.
type Manager struct {
	mu     sync.Mutex
	path   string
	rt     session.ResearchType
	items  []Item
	logger *zap.Logger
}

// NewManager creates a manager for the checklist at path. The research
// type selects the methodology branch items.
func NewManager(path string, rt session.ResearchType, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{path: path, rt: rt, logger: logger}
}

// Create writes a fresh all-pending checklist. Fails if one exists.
func (m *Manager) Create() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.path); err == nil {
		return fmt.Errorf("checklist already exists at %s", m.path)
	}
	m.items = Generate(m.rt)
	return m.writeLocked()
}

// Load parses an existing checklist file.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked()
}

func (m *Manager) loadLocked() error {
	f, err := os.Open(m.path)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, m.path)
	}
	if err != nil {
		return fmt.Errorf("open checklist: %w", err)
	}
	defer f.Close()

	parsed := make(map[int]Item, steps.TotalSteps)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		match := itemRe.FindStringSubmatch(scanner.Text())
		if match == nil {
			continue
		}
		step, err := strconv.Atoi(match[2])
		if err != nil || !steps.Valid(step) {
			continue
		}
		parsed[step] = Item{Step: step, Title: match[3], Status: statusForBox(match[1])}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read checklist: %w", err)
	}

	// Regenerate from the table and overlay parsed state, so a file with
	// missing rows self-heals on the next save.
	items := Generate(m.rt)
	for i := range items {
		if p, ok := parsed[items[i].Step]; ok {
			items[i].Status = p.Status
			items[i].Title = p.Title
		}
	}
	m.items = items
	return nil
}

// Mark sets one step's status and persists. Only the named step
// changes; neighbours keep whatever state they carry. Setting the
// status a step already has is a no-op.
func (m *Manager) Mark(step int, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !steps.Valid(step) {
		return fmt.Errorf("%w: %d", ErrUnknownStep, step)
	}
	if _, ok := boxes[status]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	if err := m.ensureLoadedLocked(); err != nil {
		return err
	}

	idx := step - 1
	if m.items[idx].Status == status {
		return nil
	}
	m.items[idx].Status = status
	return m.writeLocked()
}

// Progress returns completed count, total, and percentage.
func (m *Manager) Progress() (done, total int, percent float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoadedLocked(); err != nil {
		return 0, steps.TotalSteps, 0
	}
	for _, item := range m.items {
		if item.Status == StatusCompleted {
			done++
		}
	}
	total = len(m.items)
	if total > 0 {
		percent = float64(done) / float64(total) * 100
	}
	return done, total, percent
}

// Current returns the first item not yet completed, or false when
// everything is done.
func (m *Manager) Current() (Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoadedLocked(); err != nil {
		return Item{}, false
	}
	for _, item := range m.items {
		if item.Status != StatusCompleted {
			return item, true
		}
	}
	return Item{}, false
}

// ItemAt returns the item for a step.
func (m *Manager) ItemAt(step int) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !steps.Valid(step) {
		return Item{}, fmt.Errorf("%w: %d", ErrUnknownStep, step)
	}
	if err := m.ensureLoadedLocked(); err != nil {
		return Item{}, err
	}
	return m.items[step-1], nil
}

// PhaseProgress returns completed and total counts for one phase.
func (m *Manager) PhaseProgress(phase steps.Phase) (done, total int, err error) {
	first, last, err := steps.Range(phase)
	if err != nil {
		return 0, 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoadedLocked(); err != nil {
		return 0, 0, err
	}
	for _, item := range m.items {
		if item.Step < first || item.Step > last {
			continue
		}
		total++
		if item.Status == StatusCompleted {
			done++
		}
	}
	return done, total, nil
}

func (m *Manager) ensureLoadedLocked() error {
	if m.items != nil {
		return nil
	}
	return m.loadLocked()
}

// writeLocked renders and atomically replaces the checklist file.
func (m *Manager) writeLocked() error {
	var b strings.Builder
	b.WriteString("# Thesis Workflow Checklist\n\n")
	if m.rt != session.TypeUnset {
		fmt.Fprintf(&b, "Research type: %s\n\n", m.rt)
	}

	var currentPhase steps.Phase
	done := 0
	for _, item := range m.items {
		phase, err := steps.PhaseOf(item.Step)
		if err != nil {
			return err
		}
		if phase != currentPhase {
			fmt.Fprintf(&b, "## %s\n\n", phaseTitles[phase])
			currentPhase = phase
		}
		if item.Status == StatusCompleted {
			done++
		}
		fmt.Fprintf(&b, "- [%s] Step %d: %s\n", boxes[item.Status], item.Step, item.Title)
		if last, _ := lastOfPhase(phase); item.Step == last {
			b.WriteString("\n")
		}
	}

	b.WriteString("---\n")
	fmt.Fprintf(&b, "Progress: %d/%d (%.0f%%)", done, len(m.items),
		float64(done)/float64(len(m.items))*100)
	if next, ok := firstOpen(m.items); ok {
		phase, _ := steps.PhaseOf(next.Step)
		fmt.Fprintf(&b, " | Current: Step %d | Phase: %s", next.Step, phase)
	} else {
		b.WriteString(" | Complete")
	}
	b.WriteString("\n")

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checklist directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "checklist-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checklist file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp checklist file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp checklist file: %w", err)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace checklist file: %w", err)
	}
	return nil
}

func lastOfPhase(phase steps.Phase) (int, error) {
	_, last, err := steps.Range(phase)
	return last, err
}

func firstOpen(items []Item) (Item, bool) {
	for _, item := range items {
		if item.Status != StatusCompleted {
			return item, true
		}
	}
	return Item{}, false
}
