// Package retry re-invokes agents whose output failed quality
// evaluation, with an augmented prompt carrying the failure reason.
// Retry counts survive crashes through a persisted state file, and
// exhaustion always surfaces to a human, never silently.
package retry

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/praxislabs/thesisd/internal/agent"
	"github.com/praxislabs/thesisd/internal/config"
)

// ErrExhausted means the retry budget ran out; the caller escalates to
// a human checkpoint.
var ErrExhausted = errors.New("retry budget exhausted, human review required")

// failurePatterns classify output text that indicates the agent did
// not actually complete its task. English and Korean rows.
var failurePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)^\s*error[:\s]`),
	regexp.MustCompile(`(?i)\bI (cannot|can't|am unable to)\b`),
	regexp.MustCompile(`(?i)\bunable to (complete|comply|proceed)\b`),
	regexp.MustCompile(`(?i)\bfailed to (generate|produce|complete)\b`),
	regexp.MustCompile(`오류가\s*발생`),
	regexp.MustCompile(`(작업|요청)(을|를)?\s*(완료|수행)할\s*수\s*없`),
}

// Classify inspects an agent result for failure signals: the explicit
// flag, implausibly short output, and failure text. It never sees
// quality scores; those arrive through the accept callback.
func Classify(res *agent.Result, minOutputLength int) (reason string, failed bool) {
	if res.Failed {
		if res.FailReason != "" {
			return res.FailReason, true
		}
		return "agent reported failure", true
	}
	trimmed := strings.TrimSpace(res.Output)
	if len(trimmed) < minOutputLength {
		return fmt.Sprintf("output too short (%d chars, minimum %d)", len(trimmed), minOutputLength), true
	}
	for _, pattern := range failurePatterns {
		if pattern.MatchString(trimmed) {
			return "output contains failure text: " + pattern.String(), true
		}
	}
	return "", false
}

// AcceptFunc evaluates a structurally-sound result against quality
// gates. A false return triggers a retry with the given reason.
type AcceptFunc func(res *agent.Result) (ok bool, reason string)

// Enforcer wraps an Invoker with classification, pacing, persistent
// retry accounting and prompt augmentation.
type Enforcer struct {
	invoker    agent.Invoker
	store      *Store
	maxRetries int
	delay      time.Duration
	minOutput  int
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewEnforcer creates an enforcer persisting retry state at statePath
// (conventionally 00-session/retry-state.json).
func NewEnforcer(invoker agent.Invoker, statePath string, cfg config.RetryConfig, logger *zap.Logger) (*Enforcer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := OpenStore(statePath)
	if err != nil {
		return nil, err
	}

	e := &Enforcer{
		invoker:    invoker,
		store:      store,
		maxRetries: cfg.MaxRetries,
		delay:      cfg.Delay.Duration(),
		minOutput:  cfg.MinOutputLength,
		logger:     logger,
	}
	if cfg.InvokesPerMinute > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.InvokesPerMinute)/60, 1)
	}
	return e, nil
}

// Invoke runs the request, retrying on classification or acceptance
// failure up to the configured budget. The attempt counter resumes
// from persisted state, so a crash mid-retry does not grant a fresh
// budget. Exhaustion returns ErrExhausted with the last reason.
func (e *Enforcer) Invoke(ctx context.Context, req agent.Request, accept AcceptFunc) (*agent.Result, error) {
	key := stateKey(req)
	basePrompt := req.Prompt
	lastReason := e.store.LastReason(key)
	if lastReason != "" {
		req.Prompt = augment(basePrompt, lastReason)
	}

	for attempt := e.store.Count(key); attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(e.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		res, err := e.invoker.Invoke(ctx, req)
		reason := ""
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, err
			}
			reason = "invocation error: " + err.Error()
		default:
			var failed bool
			reason, failed = Classify(res, e.minOutput)
			if !failed && accept != nil {
				if ok, acceptReason := accept(res); !ok {
					reason = acceptReason
					failed = true
				}
			}
			if !failed {
				if err := e.store.Clear(key); err != nil {
					return nil, err
				}
				return res, nil
			}
		}

		if err := e.store.Record(key, reason); err != nil {
			return nil, err
		}
		e.logger.Warn("agent attempt failed",
			zap.String("agent", req.Agent),
			zap.Int("step", req.Step),
			zap.Int("attempt", attempt+1),
			zap.String("reason", reason))
		req.Prompt = augment(basePrompt, reason)
		lastReason = reason
	}

	return nil, fmt.Errorf("%w: agent %s step %d, last failure: %s",
		ErrExhausted, req.Agent, req.Step, lastReason)
}

func stateKey(req agent.Request) string {
	return fmt.Sprintf("%s/step-%d", req.Agent, req.Step)
}

// augment appends failure context and quality requirements to the
// original prompt for the next attempt.
func augment(prompt, reason string) string {
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\n## Retry guidance\n\n")
	fmt.Fprintf(&b, "The previous attempt was rejected: %s\n\n", reason)
	b.WriteString("Requirements for this attempt:\n")
	b.WriteString("- Ground every factual claim in a cited source with an identifier.\n")
	b.WriteString("- State confidence explicitly for each major claim.\n")
	b.WriteString("- Avoid absolute language; use calibrated hedging where evidence is partial.\n")
	b.WriteString("- Produce a complete markdown document, not a fragment.\n")
	return b.String()
}
