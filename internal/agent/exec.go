package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// ExecInvoker runs an external command per invocation: the request JSON
// goes to the command's stdin and its stdout becomes the result. A
// non-zero exit with output is a self-reported failure the retry layer
// can act on; a non-zero exit without output is an error.
type ExecInvoker struct {
	command string
	args    []string
	logger  *zap.Logger
}

// NewExecInvoker creates an invoker for the given command line.
func NewExecInvoker(command string, args []string, logger *zap.Logger) *ExecInvoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecInvoker{command: command, args: args, logger: logger}
}

func (e *ExecInvoker) Invoke(ctx context.Context, req Request) (*Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode agent request: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.command, e.args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug("invoking agent command",
		zap.String("agent", req.Agent),
		zap.Int("step", req.Step),
		zap.String("command", e.command))

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	output := stdout.String()
	if runErr != nil {
		if output == "" {
			return nil, fmt.Errorf("agent command failed: %w: %s",
				runErr, strings.TrimSpace(stderr.String()))
		}
		return &Result{
			Output:     output,
			Failed:     true,
			FailReason: fmt.Sprintf("agent command exited: %v", runErr),
		}, nil
	}
	return &Result{Output: output}, nil
}
