package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/praxislabs/thesisd/internal/agent"
	"github.com/praxislabs/thesisd/internal/orchestrator"
	"github.com/praxislabs/thesisd/internal/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the workflow from the current step",
	Long: `Execute the workflow from the session's current step until it
completes, fails after retries, or blocks at an unattended human
checkpoint. SIGINT and SIGTERM pause the run; the session records the
position for a later resume.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWorkflow(false)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume an interrupted workflow",
	Long: `Validate the project layout, restore compressed memory and the
checklist, settle any checkpoint decision recorded while the process
was down, then continue execution with recovery context injected into
the next agent request.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWorkflow(true)
	},
}

func executeWorkflow(resume bool) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Agent.Command == "" {
		return errors.New("no agent command configured (set agent.command)")
	}

	tel, err := telemetry.Setup(context.Background(), cfg.Telemetry, version, logger)
	if err != nil {
		return err
	}
	defer tel.Shutdown(context.Background())

	root, err := resolveProject(cfg, logger)
	if err != nil {
		return err
	}

	invoker := agent.NewExecInvoker(cfg.Agent.Command, cfg.Agent.Args, logger)
	o, err := orchestrator.New(cfg, root, invoker, logger)
	if err != nil {
		return err
	}
	defer o.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if resume {
		err = o.Resume(ctx)
	} else {
		err = o.Run(ctx)
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Info("workflow paused", zap.String("project", root))
		fmt.Fprintln(os.Stderr, "Workflow paused; run `thesisd resume` to continue.")
		return nil
	case err != nil:
		return err
	}
	return nil
}
