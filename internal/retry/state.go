package retry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Attempt is one recorded failure.
type Attempt struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// entry accumulates failures for one agent/step pair.
type entry struct {
	Count   int       `json:"count"`
	History []Attempt `json:"history"`
}

// Store persists retry accounting so a crash mid-retry does not reset
// the budget. Cleared entries keep their history under a tombstone key
// for the audit trail.
type Store struct {
	mu      sync.Mutex
	path    string
	entries map[string]*entry
	cleared map[string]*entry
}

// storeState is the persisted shape of retry-state.json.
type storeState struct {
	Entries map[string]*entry `json:"entries"`
	Cleared map[string]*entry `json:"cleared,omitempty"`
}

// OpenStore loads or creates the retry state file.
func OpenStore(path string) (*Store, error) {
	s := &Store{
		path:    path,
		entries: map[string]*entry{},
		cleared: map[string]*entry{},
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read retry state: %w", err)
	}
	var state storeState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode retry state: %w", err)
	}
	if state.Entries != nil {
		s.entries = state.Entries
	}
	if state.Cleared != nil {
		s.cleared = state.Cleared
	}
	return s, nil
}

// Count returns recorded failures for a key.
func (s *Store) Count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e.Count
	}
	return 0
}

// LastReason returns the most recent failure reason, or "".
func (s *Store) LastReason(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || len(e.History) == 0 {
		return ""
	}
	return e.History[len(e.History)-1].Reason
}

// Record adds a failure and persists.
func (s *Store) Record(key, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	e.Count++
	e.History = append(e.History, Attempt{Reason: reason, At: time.Now().UTC()})
	return s.persistLocked()
}

// Clear marks a key succeeded: the live entry goes away but its history
// is retained.
func (s *Store) Clear(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	delete(s.entries, key)
	s.cleared[key] = e
	return s.persistLocked()
}

// History returns a copy of the recorded failures for a key, live or
// cleared.
func (s *Store) History(key string) []Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e, ok = s.cleared[key]
	}
	if !ok {
		return nil
	}
	out := make([]Attempt, len(e.History))
	copy(out, e.History)
	return out
}

func (s *Store) persistLocked() error {
	state := storeState{Entries: s.entries, Cleared: s.cleared}
	data, err := json.MarshalIndent(&state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode retry state: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create retry state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "retry-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp retry state: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp retry state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp retry state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace retry state: %w", err)
	}
	return nil
}
