// Package paths answers "where is the active project and where should
// this output go" for every subsystem. It is the only component that
// interprets the on-disk project layout; everything else receives
// absolute paths from it.
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/praxislabs/thesisd/internal/session"
	"github.com/praxislabs/thesisd/internal/steps"
)

// EnvProjectOverride points the resolver at an explicit session file.
// This is the supported deployment handle.
const EnvProjectOverride = "THESISD_PROJECT"

// markerFile records the active project for multi-project roots.
const markerFile = ".current-working-dir.txt"

// Resolution and validation errors.
var (
	ErrNoProject     = errors.New("no active project found")
	ErrPathMismatch  = errors.New("session path does not match resolved path")
	ErrUnmappedPhase = errors.New("phase has no output directory")
	ErrSlugMismatch  = errors.New("project directory name does not match session slug")
)

// phaseDirs maps phase keys to their fixed directory names. All five
// literature waves share one directory; the hitl-2 bridge feeds the
// research-design directory and completion records live with the session.
var phaseDirs = map[steps.Phase]string{
	steps.Phase0:      "00-session",
	steps.Phase1Wave1: "01-literature",
	steps.Phase1Wave2: "01-literature",
	steps.Phase1Wave3: "01-literature",
	steps.Phase1Wave4: "01-literature",
	steps.Phase1Wave5: "01-literature",
	steps.HITL2:       "02-research-design",
	steps.Phase2:      "02-research-design",
	steps.Phase3:      "03-thesis",
	steps.Phase4:      "04-publication",
	steps.Completion:  "00-session",
}

// requiredDirs are the phase directories every project must carry.
var requiredDirs = []string{
	"00-session", "01-literature", "02-research-design", "03-thesis", "04-publication",
}

// Resolver locates projects and maps phases to directories.
type Resolver struct {
	outputRoot string // e.g. "thesis-output"
	logger     *zap.Logger
}

// NewResolver creates a resolver. outputRoot is the directory that
// holds all thesis projects, relative to a start directory.
func NewResolver(outputRoot string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{outputRoot: outputRoot, logger: logger}
}

// ResolveActiveProject finds the active project root starting from
// startDir. Resolution order: environment override, marker file,
// walk-up for a session file, most recently modified project.
func (r *Resolver) ResolveActiveProject(startDir string) (string, error) {
	// (a) Explicit override: the variable names a session file.
	if override := os.Getenv(EnvProjectOverride); override != "" {
		root, err := projectRootFromSessionFile(override)
		if err != nil {
			return "", fmt.Errorf("%s: %w", EnvProjectOverride, err)
		}
		return root, nil
	}

	start, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolve start directory: %w", err)
	}

	// (b) Marker file under the output root.
	marker := filepath.Join(start, r.outputRoot, markerFile)
	if data, err := os.ReadFile(marker); err == nil {
		candidate := strings.TrimSpace(string(data))
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(start, r.outputRoot, candidate)
		}
		if hasSessionFile(candidate) {
			return candidate, nil
		}
		r.logger.Warn("marker file points at a directory without a session; ignoring",
			zap.String("marker", marker), zap.String("target", candidate))
	}

	// (c) Walk up from start looking for a directory that contains
	// 00-session/session.json.
	for dir := start; ; dir = filepath.Dir(dir) {
		if hasSessionFile(dir) {
			return dir, nil
		}
		if dir == filepath.Dir(dir) {
			break
		}
	}

	// (d) Most recently modified project under the output root.
	if root, ok := r.newestProject(filepath.Join(start, r.outputRoot)); ok {
		return root, nil
	}

	return "", fmt.Errorf("%w (searched from %s)", ErrNoProject, start)
}

// OutputPath maps a phase and filename to an absolute location inside
// the project, creating the phase directory on first use.
func (r *Resolver) OutputPath(projectRoot string, phase steps.Phase, filename string) (string, error) {
	dir, ok := phaseDirs[phase]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnmappedPhase, phase)
	}
	full := filepath.Join(projectRoot, dir)
	if err := os.MkdirAll(full, 0o755); err != nil {
		return "", fmt.Errorf("create phase directory: %w", err)
	}
	return filepath.Join(full, filename), nil
}

// SessionFile returns the canonical session.json location.
func (r *Resolver) SessionFile(projectRoot string) string {
	return filepath.Join(projectRoot, "00-session", "session.json")
}

// MemoryDir returns the compressed-memory directory.
func (r *Resolver) MemoryDir(projectRoot string) string {
	return filepath.Join(projectRoot, "memory")
}

// TempDir holds recent raw outputs before their wave closes.
func (r *Resolver) TempDir(projectRoot string) string {
	return filepath.Join(projectRoot, "_temp")
}

// ArchiveDir holds compressed older raw outputs.
func (r *Resolver) ArchiveDir(projectRoot string) string {
	return filepath.Join(projectRoot, "_archive")
}

// Validate checks that the session's recorded absolute path equals the
// resolved root, that the directory name matches the recorded slug, and
// that the required phase directories exist (creating any missing ones
// with a warning).
func (r *Resolver) Validate(sess *session.Session, resolvedRoot string) error {
	recorded := sess.Paths.AbsolutePath
	if recorded != "" && filepath.Clean(recorded) != filepath.Clean(resolvedRoot) {
		return fmt.Errorf("%w: recorded %s, resolved %s", ErrPathMismatch, recorded, resolvedRoot)
	}

	if sess.WorkingDir != "" && filepath.Base(resolvedRoot) != sess.WorkingDir {
		return fmt.Errorf("%w: directory %s, session records %s",
			ErrSlugMismatch, filepath.Base(resolvedRoot), sess.WorkingDir)
	}

	for _, dir := range requiredDirs {
		full := filepath.Join(resolvedRoot, dir)
		if _, err := os.Stat(full); os.IsNotExist(err) {
			r.logger.Warn("missing phase directory; creating", zap.String("dir", full))
			if err := os.MkdirAll(full, 0o755); err != nil {
				return fmt.Errorf("create missing phase directory %s: %w", dir, err)
			}
		}
	}
	return nil
}

// WriteMarker records the active project in the output root's marker file.
func (r *Resolver) WriteMarker(startDir, projectRoot string) error {
	dir := filepath.Join(startDir, r.outputRoot)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output root: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, markerFile), []byte(projectRoot+"\n"), 0o644); err != nil {
		return fmt.Errorf("write marker file: %w", err)
	}
	return nil
}

func hasSessionFile(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, "00-session", "session.json"))
	return err == nil && !info.IsDir()
}

func projectRootFromSessionFile(sessionFile string) (string, error) {
	info, err := os.Stat(sessionFile)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNoProject, sessionFile)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory, expected a session file", ErrNoProject, sessionFile)
	}
	// <root>/00-session/session.json
	return filepath.Dir(filepath.Dir(sessionFile)), nil
}

// newestProject returns the most recently modified project directory
// (one containing a session file) under root.
func (r *Resolver) newestProject(root string) (string, bool) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", false
	}

	var newest string
	var newestMod int64
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(root, entry.Name())
		if !hasSessionFile(candidate) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if mod := info.ModTime().UnixNano(); newest == "" || mod > newestMod {
			newest = candidate
			newestMod = mod
		}
	}
	return newest, newest != ""
}
