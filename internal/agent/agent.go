// Package agent defines the boundary to the external LLM runtime. The
// orchestrator core never talks to a model directly; the host process
// supplies an Invoker and the core treats its outputs as opaque
// markdown to be validated, scored and compressed.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrScriptExhausted is returned by the mock when it runs out of
// scripted results.
var ErrScriptExhausted = errors.New("scripted invoker has no result for request")

// Request is one unit of work for an external agent.
type Request struct {
	Agent   string // agent name, e.g. "search-agent"
	Step    int
	Prompt  string
	Context string // compressed memory payload injected by the caller
}

// Result is what an agent produced.
type Result struct {
	Output     string // markdown
	TokenCount int
	Failed     bool // agent self-reported failure
	FailReason string
}

// Invoker executes agent requests. Implementations are expected to be
// safe for sequential reuse; the core never invokes concurrently except
// inside the chunked processor.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Result, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, req Request) (*Result, error)

func (f InvokerFunc) Invoke(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

// ScriptedInvoker replays canned results per agent name, in order.
// Used in tests and dry runs.
type ScriptedInvoker struct {
	mu      sync.Mutex
	scripts map[string][]*Result
	calls   []Request
}

// NewScriptedInvoker creates an empty scripted invoker.
func NewScriptedInvoker() *ScriptedInvoker {
	return &ScriptedInvoker{scripts: map[string][]*Result{}}
}

// Script queues results for an agent name. The empty name is a
// fallback consumed by any agent without its own script.
func (s *ScriptedInvoker) Script(agentName string, results ...*Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[agentName] = append(s.scripts[agentName], results...)
}

// Invoke pops the next scripted result for the request's agent.
func (s *ScriptedInvoker) Invoke(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)

	queue := s.scripts[req.Agent]
	if len(queue) == 0 {
		queue = s.scripts[""]
		if len(queue) == 0 {
			return nil, fmt.Errorf("%w: agent %q step %d", ErrScriptExhausted, req.Agent, req.Step)
		}
		s.scripts[""] = queue[1:]
		return queue[0], nil
	}
	s.scripts[req.Agent] = queue[1:]
	return queue[0], nil
}

// Calls returns every request seen, in order.
func (s *ScriptedInvoker) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.calls))
	copy(out, s.calls)
	return out
}
