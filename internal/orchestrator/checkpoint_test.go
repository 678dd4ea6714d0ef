package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeApproval(t *testing.T, dir string, checkpoint int, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(approvalPath(dir, checkpoint), []byte(content), 0o644))
}

func TestParseDecisionApproved(t *testing.T) {
	dir := t.TempDir()
	writeApproval(t, dir, 8, "approved scope and questions look solid\n")

	decision, err := parseDecision(approvalPath(dir, 8))
	require.NoError(t, err)
	assert.Equal(t, StateApproved, decision.State)
	assert.Equal(t, "scope and questions look solid", decision.Reason)
}

func TestParseDecisionApproveAliasAndBareWord(t *testing.T) {
	dir := t.TempDir()
	writeApproval(t, dir, 18, "Approve")

	decision, err := parseDecision(approvalPath(dir, 18))
	require.NoError(t, err)
	assert.Equal(t, StateApproved, decision.State)
	assert.Empty(t, decision.Reason)
}

func TestParseDecisionRework(t *testing.T) {
	dir := t.TempDir()
	writeApproval(t, dir, 83, "rework 41 wave 3 citations are too thin\n")

	decision, err := parseDecision(approvalPath(dir, 83))
	require.NoError(t, err)
	assert.Equal(t, StateReworkRequested, decision.State)
	assert.Equal(t, 41, decision.ReworkStep)
	assert.Equal(t, "wave 3 citations are too thin", decision.Reason)
}

func TestParseDecisionOnlyFirstLineCounts(t *testing.T) {
	dir := t.TempDir()
	writeApproval(t, dir, 8, "approved\nrework 3 ignored trailing note\n")

	decision, err := parseDecision(approvalPath(dir, 8))
	require.NoError(t, err)
	assert.Equal(t, StateApproved, decision.State)
}

func TestParseDecisionRejectsMalformed(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"empty":           "\n\n",
		"unknown verb":    "ship it",
		"rework no step":  "rework",
		"rework bad step": "rework soon",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			writeApproval(t, dir, 89, content)
			_, err := parseDecision(approvalPath(dir, 89))
			assert.Error(t, err)
		})
	}
}

func TestWaitForApprovalPreexistingDecision(t *testing.T) {
	dir := t.TempDir()
	writeApproval(t, dir, 8, "approved")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	decision, err := WaitForApproval(ctx, dir, 8, nil)
	require.NoError(t, err)
	assert.Equal(t, StateApproved, decision.State)
}

func TestWaitForApprovalFileAppears(t *testing.T) {
	dir := t.TempDir()

	go func() {
		time.Sleep(50 * time.Millisecond)
		os.WriteFile(approvalPath(dir, 18), []byte("approved literature map accepted"), 0o644)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	decision, err := WaitForApproval(ctx, dir, 18, nil)
	require.NoError(t, err)
	assert.Equal(t, StateApproved, decision.State)
	assert.Equal(t, "literature map accepted", decision.Reason)
}

func TestWaitForApprovalIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()

	go func() {
		time.Sleep(20 * time.Millisecond)
		os.WriteFile(filepath.Join(dir, "session.json"), []byte("{}"), 0o644)
		time.Sleep(30 * time.Millisecond)
		os.WriteFile(approvalPath(dir, 108), []byte("rework 95 redo the analysis plan"), 0o644)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	decision, err := WaitForApproval(ctx, dir, 108, nil)
	require.NoError(t, err)
	assert.Equal(t, StateReworkRequested, decision.State)
	assert.Equal(t, 95, decision.ReworkStep)
}

func TestWaitForApprovalCancellation(t *testing.T) {
	dir := t.TempDir()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := WaitForApproval(ctx, dir, 8, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
