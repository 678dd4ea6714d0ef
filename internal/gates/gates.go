// Package gates combines the predictive (pTCS) and evaluative (SRCS)
// confidence signals into gate decisions, and persists immutable gate
// results per project.
package gates

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/praxislabs/thesisd/internal/gates"

// Decision is the outcome of a dual-confidence evaluation.
type Decision string

const (
	DecisionPass         Decision = "PASS"
	DecisionFail         Decision = "FAIL"
	DecisionManualReview Decision = "MANUAL_REVIEW"
)

// Kind identifies the gate variant that produced a result.
type Kind string

const (
	KindCrossValidation  Kind = "cross_validation"
	KindSRCSEvaluation   Kind = "srcs_evaluation"
	KindQualityAssurance Kind = "quality_assurance"
	KindDualConfidence   Kind = "dual_confidence"
)

// Result is an immutable record of one gate evaluation.
type Result struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Kind      Kind           `json:"kind"`
	PTCS      float64        `json:"ptcs"`
	SRCS      float64        `json:"srcs"`
	Pass      bool           `json:"pass"`
	Decision  Decision       `json:"decision"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Gate evaluates the dual-confidence truth table.
//
// pTCS is the strong criterion: a unit below the pTCS threshold fails
// regardless of its SRCS. SRCS below threshold with passing pTCS
// requests manual review. The two signals are never folded into one
// number; their semantics differ.
type Gate struct {
	ptcsThreshold float64
	srcsThreshold float64
	logger        *zap.Logger

	evalCounter metric.Int64Counter
	failCounter metric.Int64Counter
}

// NewGate creates a dual-confidence gate.
func NewGate(ptcsThreshold, srcsThreshold float64, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Gate{
		ptcsThreshold: ptcsThreshold,
		srcsThreshold: srcsThreshold,
		logger:        logger,
	}

	meter := otel.Meter(instrumentationName)
	var err error
	g.evalCounter, err = meter.Int64Counter(
		"thesisd.gates.evaluations_total",
		metric.WithDescription("Total gate evaluations"),
		metric.WithUnit("{evaluation}"),
	)
	if err != nil {
		logger.Warn("failed to create evaluation counter", zap.Error(err))
	}
	g.failCounter, err = meter.Int64Counter(
		"thesisd.gates.failures_total",
		metric.WithDescription("Total gate failures"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		logger.Warn("failed to create failure counter", zap.Error(err))
	}

	return g
}

// Decide applies the truth table to a pTCS/SRCS pair.
func (g *Gate) Decide(ptcsScore, srcsScore float64) Decision {
	if ptcsScore < g.ptcsThreshold {
		return DecisionFail
	}
	if srcsScore < g.srcsThreshold {
		return DecisionManualReview
	}
	return DecisionPass
}

// Evaluate produces an immutable gate result for a named gate point.
func (g *Gate) Evaluate(ctx context.Context, name string, kind Kind, ptcsScore, srcsScore float64, details map[string]any) Result {
	decision := g.Decide(ptcsScore, srcsScore)

	result := Result{
		ID:        uuid.New().String(),
		Name:      name,
		Kind:      kind,
		PTCS:      ptcsScore,
		SRCS:      srcsScore,
		Pass:      decision == DecisionPass,
		Decision:  decision,
		Timestamp: time.Now().UTC(),
		Details:   details,
	}

	attrs := metric.WithAttributes(
		attribute.String("gate", name),
		attribute.String("kind", string(kind)),
		attribute.String("decision", string(decision)),
	)
	if g.evalCounter != nil {
		g.evalCounter.Add(ctx, 1, attrs)
	}
	if decision == DecisionFail && g.failCounter != nil {
		g.failCounter.Add(ctx, 1, attrs)
	}

	g.logger.Info("gate evaluated",
		zap.String("gate", name),
		zap.String("kind", string(kind)),
		zap.Float64("ptcs", ptcsScore),
		zap.Float64("srcs", srcsScore),
		zap.String("decision", string(decision)),
	)

	return result
}
