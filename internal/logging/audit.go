package logging

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Audit log filenames under a project's 00-session directory.
const (
	WorkflowLogFilename        = "workflow-execution.log"
	CrossValidationLogFilename = "cross-validation.log"
)

// AuditLog is an append-only plain-text log that humans can read after
// the fact. Each project keeps two: workflow-execution.log for step and
// checkpoint events, cross-validation.log for gate and consistency
// outcomes. Entries are flushed on every write so a crash loses at most
// the entry being written.
type AuditLog struct {
	mu   sync.Mutex
	path string
}

// NewAuditLog creates an audit log writing to path. The file is created
// on first write, not on construction.
func NewAuditLog(path string) *AuditLog {
	return &AuditLog{path: path}
}

// Append writes a timestamped entry.
func (a *AuditLog) Append(format string, args ...any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s\n", time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}
