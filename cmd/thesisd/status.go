package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/praxislabs/thesisd/internal/agent"
	"github.com/praxislabs/thesisd/internal/orchestrator"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print workflow status as JSON",
	Long: `Print the project's position, checklist progress, memory budget
utilization and completion state without mutating anything.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	root, err := resolveProject(cfg, logger)
	if err != nil {
		return err
	}

	// Status never invokes an agent; a scripted invoker satisfies the
	// constructor.
	o, err := orchestrator.New(cfg, root, agent.NewScriptedInvoker(), logger)
	if err != nil {
		return err
	}
	defer o.Close()

	status, err := o.CurrentStatus()
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
