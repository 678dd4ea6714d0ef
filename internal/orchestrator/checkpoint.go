package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ApprovalState is a human checkpoint decision.
type ApprovalState string

const (
	StateAwaiting        ApprovalState = "awaiting"
	StateApproved        ApprovalState = "approved"
	StateReworkRequested ApprovalState = "rework-requested"
)

// Decision is the parsed content of a checkpoint approval file.
type Decision struct {
	State      ApprovalState
	ReworkStep int // set when State is rework-requested
	Reason     string
}

// pollInterval backs up the filesystem watch; some editors and network
// mounts do not deliver create events reliably.
const pollInterval = 2 * time.Second

// approvalPath names the decision file for a checkpoint step.
func approvalPath(sessionDir string, checkpoint int) string {
	return filepath.Join(sessionDir, fmt.Sprintf("checkpoint-%d.approval", checkpoint))
}

// parseDecision reads an approval file. Format, one decision per file:
//
//	approved [reason]
//	rework <step> [reason]
func parseDecision(path string) (*Decision, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	line := strings.TrimSpace(string(data))
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty approval file %s", path)
	}

	switch strings.ToLower(fields[0]) {
	case "approved", "approve":
		return &Decision{
			State:  StateApproved,
			Reason: strings.Join(fields[1:], " "),
		}, nil
	case "rework":
		if len(fields) < 2 {
			return nil, fmt.Errorf("rework decision in %s names no target step", path)
		}
		step, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("rework target in %s is not a step number: %q", path, fields[1])
		}
		return &Decision{
			State:      StateReworkRequested,
			ReworkStep: step,
			Reason:     strings.Join(fields[2:], " "),
		}, nil
	default:
		return nil, fmt.Errorf("unrecognized decision %q in %s", fields[0], path)
	}
}

// WaitForApproval blocks until a human decision file appears for the
// checkpoint, watching the session directory with a poll fallback.
// Cancellation returns ctx.Err() with the checkpoint still awaiting.
func WaitForApproval(ctx context.Context, sessionDir string, checkpoint int, logger *zap.Logger) (*Decision, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	path := approvalPath(sessionDir, checkpoint)

	// The decision may predate the wait (approval given while the
	// process was down).
	if decision, err := parseDecision(path); err == nil {
		return decision, nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create approval watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(sessionDir); err != nil {
		return nil, fmt.Errorf("watch session directory: %w", err)
	}

	logger.Info("awaiting human checkpoint decision",
		zap.Int("checkpoint", checkpoint),
		zap.String("approval_file", path))

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case event := <-watcher.Events:
			if event.Name != path || !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
		case err := <-watcher.Errors:
			logger.Warn("approval watcher error, relying on polling", zap.Error(err))
		case <-ticker.C:
		}

		decision, err := parseDecision(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			// A malformed file is a human mistake to fix, not a crash.
			logger.Warn("unreadable approval file", zap.Error(err))
			continue
		}
		return decision, nil
	}
}
