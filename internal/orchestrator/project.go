package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/praxislabs/thesisd/internal/checklist"
	"github.com/praxislabs/thesisd/internal/config"
	"github.com/praxislabs/thesisd/internal/paths"
	"github.com/praxislabs/thesisd/internal/session"
)

// projectDirs is the scaffold created for every new project.
var projectDirs = []string{
	"00-session",
	"01-literature",
	"02-research-design",
	"03-thesis",
	"04-publication",
	"memory",
	"memory/wave-cache",
	"_temp",
	"_archive",
}

// InitProject scaffolds a new thesis project under startDir's output
// root, writes the initial session and checklist, and records the
// project in the marker file. Returns the project root.
func InitProject(cfg *config.Config, startDir string, sess *session.Session, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sess.Research.TopicSlug == "" {
		sess.Research.TopicSlug = slugify(sess.Research.Topic)
	}
	if sess.Research.TopicSlug == "" {
		return "", fmt.Errorf("project needs a topic")
	}

	workingDir := fmt.Sprintf("thesis-%s-%s",
		sess.Research.TopicSlug, time.Now().UTC().Format("2006-01-02"))
	root := filepath.Join(startDir, cfg.Paths.OutputRoot, workingDir)
	if _, err := os.Stat(root); err == nil {
		return "", fmt.Errorf("project already exists at %s", root)
	}
	for _, dir := range projectDirs {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return "", fmt.Errorf("scaffold %s: %w", dir, err)
		}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve project root: %w", err)
	}
	sess.WorkingDir = workingDir
	sess.Paths = session.Paths{
		BaseDir:      startDir,
		OutputDir:    cfg.Paths.OutputRoot,
		AbsolutePath: absRoot,
	}

	resolver := paths.NewResolver(cfg.Paths.OutputRoot, logger)
	store := session.NewStore(resolver.SessionFile(root)).
		WithMirror(filepath.Join(resolver.MemoryDir(root), "session.json"))
	if err := store.Init(sess); err != nil {
		return "", err
	}

	list := checklist.NewManager(
		filepath.Join(root, "00-session", checklist.Filename), sess.Research.Type, logger)
	if err := list.Create(); err != nil {
		return "", err
	}

	if err := resolver.WriteMarker(startDir, absRoot); err != nil {
		return "", err
	}

	logger.Info("project initialized",
		zap.String("root", root),
		zap.String("topic", sess.Research.Topic),
		zap.String("research_type", string(sess.Research.Type)))
	return root, nil
}
