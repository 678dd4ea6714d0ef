package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/praxislabs/thesisd/internal/steps"
)

// Store owns a project's session.json. The session file is single-writer:
// exactly one orchestrator process operates on a project at a time.
type Store struct {
	mu     sync.Mutex
	path   string
	mirror string
}

// NewStore creates a store over the session file at path
// (<project>/00-session/session.json).
func NewStore(path string) *Store {
	return &Store{path: path}
}

// WithMirror makes every write also refresh the compact live-state
// mirror at mirrorPath (<project>/memory/session.json).
func (s *Store) WithMirror(mirrorPath string) *Store {
	s.mirror = mirrorPath
	return s
}

// Path returns the session file location.
func (s *Store) Path() string {
	return s.path
}

// Init writes a fresh session. Fails if one already exists.
func (s *Store) Init(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return fmt.Errorf("session already exists at %s", s.path)
	}

	now := time.Now().UTC()
	sess.Version = CurrentVersion
	sess.CreatedAt = now
	sess.UpdatedAt = now
	if sess.Workflow.TotalSteps == 0 {
		sess.Workflow.TotalSteps = steps.TotalSteps
	}
	if sess.Workflow.CurrentStep == 0 {
		sess.Workflow.CurrentStep = 1
	}
	if sess.Workflow.CurrentPhase == "" {
		phase, err := steps.PhaseOf(sess.Workflow.CurrentStep)
		if err != nil {
			return err
		}
		sess.Workflow.CurrentPhase = string(phase)
	}

	return s.writeLocked(sess)
}

// Load reads and validates the session.
func (s *Store) Load() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (*Session, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if !KnownVersions[sess.Version] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, sess.Version)
	}
	return &sess, nil
}

// Update applies a deep-merge patch, stamps updated_at and writes
// atomically. Dicts merge recursively; non-dict leaves (lists included)
// are replaced.
func (s *Store) Update(patch map[string]any) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.loadLocked()
	if err != nil {
		return nil, err
	}

	current, err := toMap(sess)
	if err != nil {
		return nil, err
	}
	merged := deepMerge(current, patch)

	var updated Session
	buf, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode merged session: %w", err)
	}
	if err := json.Unmarshal(buf, &updated); err != nil {
		return nil, fmt.Errorf("merged session no longer matches schema: %w", err)
	}
	if !KnownVersions[updated.Version] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, updated.Version)
	}
	if updated.Workflow.CurrentStep < sess.Workflow.CurrentStep {
		return nil, fmt.Errorf("%w: %d -> %d", ErrStepRegression,
			sess.Workflow.CurrentStep, updated.Workflow.CurrentStep)
	}

	updated.UpdatedAt = time.Now().UTC()
	if err := s.writeLocked(&updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Advance moves current_step forward by at most one and keeps
// current_phase in lockstep with the step table. Re-advancing to the
// current step is a no-op, which makes crash-recovery replays safe.
func (s *Store) Advance(step int, agent string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	if !steps.Valid(step) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStep, step)
	}
	if step < sess.Workflow.CurrentStep {
		return nil, fmt.Errorf("%w: %d -> %d", ErrStepRegression, sess.Workflow.CurrentStep, step)
	}
	if step > sess.Workflow.CurrentStep+1 {
		return nil, fmt.Errorf("%w: %d -> %d", ErrStepSkip, sess.Workflow.CurrentStep, step)
	}

	phase, err := steps.PhaseOf(step)
	if err != nil {
		return nil, err
	}

	sess.Workflow.CurrentStep = step
	sess.Workflow.CurrentPhase = string(phase)
	sess.Workflow.LastAgent = agent
	sess.UpdatedAt = time.Now().UTC()

	if err := s.writeLocked(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Rework records an explicit gate-driven regression to an earlier step.
// This is the only sanctioned way current_step moves backward.
func (s *Store) Rework(toStep int, reason string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	if !steps.Valid(toStep) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStep, toStep)
	}

	phase, err := steps.PhaseOf(toStep)
	if err != nil {
		return nil, err
	}

	sess.ReworkHistory = append(sess.ReworkHistory, ReworkRecord{
		FromStep: sess.Workflow.CurrentStep,
		ToStep:   toStep,
		Reason:   reason,
		At:       time.Now().UTC(),
	})
	sess.Workflow.CurrentStep = toStep
	sess.Workflow.CurrentPhase = string(phase)
	sess.UpdatedAt = time.Now().UTC()

	if err := s.writeLocked(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Snapshot appends a labelled copy of the workflow state.
func (s *Store) Snapshot(label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.loadLocked()
	if err != nil {
		return err
	}

	sess.ContextSnapshots = append(sess.ContextSnapshots, Snapshot{
		Label:    label,
		TakenAt:  time.Now().UTC(),
		Workflow: sess.Workflow,
	})
	sess.UpdatedAt = time.Now().UTC()
	return s.writeLocked(sess)
}

// Complete writes a terminal completion record.
func (s *Store) Complete(state, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.loadLocked()
	if err != nil {
		return err
	}

	sess.Completion = &CompletionRecord{State: state, Detail: detail, At: time.Now().UTC()}
	sess.UpdatedAt = time.Now().UTC()
	return s.writeLocked(sess)
}

// writeLocked writes the session atomically: temp file in the same
// directory, then rename.
func (s *Store) writeLocked(sess *Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace session file: %w", err)
	}
	if s.mirror != "" {
		return s.writeMirrorLocked(sess)
	}
	return nil
}

// stateMirror is the compact view agents read instead of the full
// session file.
type stateMirror struct {
	WorkingDir string            `json:"working_dir"`
	Workflow   Workflow          `json:"workflow"`
	Completion *CompletionRecord `json:"completion,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func (s *Store) writeMirrorLocked(sess *Session) error {
	data, err := json.Marshal(stateMirror{
		WorkingDir: sess.WorkingDir,
		Workflow:   sess.Workflow,
		Completion: sess.Completion,
		UpdatedAt:  sess.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode session mirror: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.mirror), 0o755); err != nil {
		return fmt.Errorf("create mirror directory: %w", err)
	}
	if err := os.WriteFile(s.mirror, data, 0o644); err != nil {
		return fmt.Errorf("write session mirror: %w", err)
	}
	return nil
}

func toMap(sess *Session) (map[string]any, error) {
	buf, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(buf, &m); err != nil {
		return nil, fmt.Errorf("decode session map: %w", err)
	}
	return m, nil
}
