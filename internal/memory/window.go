package memory

import (
	"context"
	"sync"
)

// DefaultWindowSize keeps the three most recent full outputs verbatim.
const DefaultWindowSize = 3

// Window is a constant-size FIFO of full agent outputs. Agents that
// need the verbatim text of their immediate predecessors read from
// here; anything older has been folded into a Level-1 summary.
type Window struct {
	mu      sync.Mutex
	size    int
	entries []AgentOutput
	mgr     *Manager
}

// NewWindow creates a sliding window over the manager's Level-1 path.
// Sizes below one fall back to the default.
func NewWindow(size int, mgr *Manager) *Window {
	if size < 1 {
		size = DefaultWindowSize
	}
	return &Window{size: size, mgr: mgr}
}

// Push admits a full output, charging its raw tokens, and evicts the
// oldest through Level-1 compression when the window overflows. The
// evicted output's summary is returned, nil when nothing was evicted.
func (w *Window) Push(ctx context.Context, out AgentOutput) (*AgentSummary, error) {
	if err := w.mgr.budget.Add(string(out.Phase), out.Tokens()); err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.entries = append(w.entries, out)
	var evicted *AgentOutput
	if len(w.entries) > w.size {
		evicted = &w.entries[0]
		w.entries = append([]AgentOutput(nil), w.entries[1:]...)
	}
	w.mu.Unlock()

	if evicted == nil {
		return nil, nil
	}
	return w.mgr.CompressAgent(ctx, *evicted)
}

// Flush evicts everything through Level-1, emptying the window. Called
// at wave and phase boundaries before Level-2/3 compression.
func (w *Window) Flush(ctx context.Context) ([]*AgentSummary, error) {
	w.mu.Lock()
	pending := w.entries
	w.entries = nil
	w.mu.Unlock()

	summaries := make([]*AgentSummary, 0, len(pending))
	for _, out := range pending {
		s, err := w.mgr.CompressAgent(ctx, out)
		if err != nil {
			return summaries, err
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// Contents returns the current verbatim outputs, oldest first.
func (w *Window) Contents() []AgentOutput {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]AgentOutput, len(w.entries))
	copy(out, w.entries)
	return out
}

// Len reports the number of live verbatim outputs.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}
