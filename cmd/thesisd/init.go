package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/praxislabs/thesisd/internal/orchestrator"
	"github.com/praxislabs/thesisd/internal/session"
)

var (
	initTopic         string
	initMode          string
	initType          string
	initDiscipline    string
	initCitationStyle string
	initQuestions     []string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a new thesis project",
	Long: `Create the project directory tree, the session file and the
150-item checklist for a new thesis project under the configured
output root.

Examples:
  thesisd init --topic "Mindfulness and Stress" --type quantitative
  thesisd init --topic "Phenomenology of Attention" --type philosophical \
    --question "What structures attention in lived experience?"`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initTopic, "topic", "", "thesis topic (required)")
	initCmd.Flags().StringVar(&initMode, "mode", string(session.ModeTopic), "start mode: topic, question, review, learning, paper-upload, proposal")
	initCmd.Flags().StringVar(&initType, "type", string(session.TypeQuantitative), "research type: quantitative, qualitative, mixed, philosophical")
	initCmd.Flags().StringVar(&initDiscipline, "discipline", "", "academic discipline")
	initCmd.Flags().StringVar(&initCitationStyle, "citation-style", "apa7",
		"citation style: "+strings.Join(session.CitationStyleNames(), ", "))
	initCmd.Flags().StringArrayVar(&initQuestions, "question", nil, "research question (repeatable)")
	initCmd.MarkFlagRequired("topic")
}

func runInit(cmd *cobra.Command, args []string) error {
	mode := session.Mode(initMode)
	if !mode.Valid() {
		return fmt.Errorf("unknown mode %q", initMode)
	}
	researchType := session.ResearchType(initType)
	if !researchType.Valid() {
		return fmt.Errorf("unknown research type %q (expected quantitative, qualitative, mixed or philosophical)", initType)
	}
	style, err := session.LookupCitationStyle(initCitationStyle)
	if err != nil {
		return fmt.Errorf("%w (expected %s)", err, strings.Join(session.CitationStyleNames(), ", "))
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}

	sess := &session.Session{
		Research: session.Research{
			Topic:             initTopic,
			Mode:              mode,
			Type:              researchType,
			Discipline:        initDiscipline,
			ResearchQuestions: initQuestions,
		},
		Options: session.Options{
			CitationStyle:  style.Name,
			CitationConfig: &style,
		},
	}

	root, err := orchestrator.InitProject(cfg, cwd, sess, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Project initialized at %s\n", root)
	return nil
}
