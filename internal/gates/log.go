package gates

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ResultLog is the append-only gate result list persisted as
// gate-results.json under the project's session directory. Results are
// never mutated after being written; rework produces a new entry.
type ResultLog struct {
	mu   sync.Mutex
	path string
}

// NewResultLog creates a result log at path.
func NewResultLog(path string) *ResultLog {
	return &ResultLog{path: path}
}

// Append adds a result to the log. The full list is rewritten through a
// temp file and rename so a crash never leaves a torn file.
func (l *ResultLog) Append(result Result) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	results, err := l.readLocked()
	if err != nil {
		return err
	}
	results = append(results, result)

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encode gate results: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create gate results directory: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write gate results: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replace gate results: %w", err)
	}
	return nil
}

// All returns every recorded result in append order.
func (l *ResultLog) All() ([]Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readLocked()
}

func (l *ResultLog) readLocked() ([]Result, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return []Result{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read gate results: %w", err)
	}

	var results []Result
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("decode gate results: %w", err)
	}
	return results, nil
}
