// Package main implements the thesisd CLI: project scaffolding and
// workflow execution for the thesis authoring orchestrator.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/praxislabs/thesisd/internal/config"
	"github.com/praxislabs/thesisd/internal/logging"
	"github.com/praxislabs/thesisd/internal/paths"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
)

var (
	configPath  string
	projectRoot string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "thesisd",
	Short: "Thesis authoring workflow orchestrator",
	Long: `thesisd drives a 150-step doctoral thesis authoring workflow:
sequential agent execution, hierarchical memory compression, claim
validation with dual-confidence gates, and human checkpoints.

Agent invocations are delegated to the command named in the agent
section of the configuration file.`,
	Version:       fmt.Sprintf("%s (%s)", version, gitCommit),
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&projectRoot, "project", "", "project root (default: auto-discover)")
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
}

// setup loads configuration and builds the logger shared by every
// command.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// resolveProject honors the --project flag, then falls back to the
// resolver's discovery chain from the current directory.
func resolveProject(cfg *config.Config, logger *zap.Logger) (string, error) {
	if projectRoot != "" {
		return projectRoot, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}
	return paths.NewResolver(cfg.Paths.OutputRoot, logger).ResolveActiveProject(cwd)
}
