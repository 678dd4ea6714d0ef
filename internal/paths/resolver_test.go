package paths

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/praxislabs/thesisd/internal/session"
	"github.com/praxislabs/thesisd/internal/steps"
)

// makeProject creates a minimal project with a session file under
// root/thesis-output and returns its path.
func makeProject(t *testing.T, root, name string) string {
	t.Helper()
	project := filepath.Join(root, "thesis-output", name)
	require.NoError(t, os.MkdirAll(filepath.Join(project, "00-session"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(project, "00-session", "session.json"), []byte("{}"), 0o644))
	return project
}

func TestResolveActiveProject_EnvOverride(t *testing.T) {
	root := t.TempDir()
	project := makeProject(t, root, "thesis-ml-education")
	t.Setenv(EnvProjectOverride, filepath.Join(project, "00-session", "session.json"))

	r := NewResolver("thesis-output", zap.NewNop())
	got, err := r.ResolveActiveProject(root)
	require.NoError(t, err)
	assert.Equal(t, project, got)
}

func TestResolveActiveProject_EnvOverrideMissingFile(t *testing.T) {
	t.Setenv(EnvProjectOverride, filepath.Join(t.TempDir(), "nope", "session.json"))

	r := NewResolver("thesis-output", zap.NewNop())
	_, err := r.ResolveActiveProject(t.TempDir())
	assert.ErrorIs(t, err, ErrNoProject)
}

func TestResolveActiveProject_MarkerFile(t *testing.T) {
	root := t.TempDir()
	makeProject(t, root, "thesis-older")
	active := makeProject(t, root, "thesis-active")

	r := NewResolver("thesis-output", zap.NewNop())
	require.NoError(t, r.WriteMarker(root, active))

	got, err := r.ResolveActiveProject(root)
	require.NoError(t, err)
	assert.Equal(t, active, got)
}

func TestResolveActiveProject_MarkerRelativePath(t *testing.T) {
	root := t.TempDir()
	project := makeProject(t, root, "thesis-rel")
	marker := filepath.Join(root, "thesis-output", ".current-working-dir.txt")
	require.NoError(t, os.WriteFile(marker, []byte("thesis-rel\n"), 0o644))

	r := NewResolver("thesis-output", zap.NewNop())
	got, err := r.ResolveActiveProject(root)
	require.NoError(t, err)
	assert.Equal(t, project, got)
}

func TestResolveActiveProject_StaleMarkerFallsThrough(t *testing.T) {
	root := t.TempDir()
	project := makeProject(t, root, "thesis-real")
	marker := filepath.Join(root, "thesis-output", ".current-working-dir.txt")
	require.NoError(t, os.WriteFile(marker, []byte(filepath.Join(root, "gone")+"\n"), 0o644))

	r := NewResolver("thesis-output", zap.NewNop())
	got, err := r.ResolveActiveProject(root)
	require.NoError(t, err)
	assert.Equal(t, project, got)
}

func TestResolveActiveProject_WalkUp(t *testing.T) {
	root := t.TempDir()
	project := makeProject(t, root, "thesis-walk")
	nested := filepath.Join(project, "01-literature", "drafts")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	r := NewResolver("thesis-output", zap.NewNop())
	got, err := r.ResolveActiveProject(nested)
	require.NoError(t, err)
	assert.Equal(t, project, got)
}

func TestResolveActiveProject_NewestWins(t *testing.T) {
	root := t.TempDir()
	old := makeProject(t, root, "thesis-old")
	recent := makeProject(t, root, "thesis-new")

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	r := NewResolver("thesis-output", zap.NewNop())
	got, err := r.ResolveActiveProject(root)
	require.NoError(t, err)
	assert.Equal(t, recent, got)
}

func TestResolveActiveProject_NoneFound(t *testing.T) {
	r := NewResolver("thesis-output", zap.NewNop())
	_, err := r.ResolveActiveProject(t.TempDir())
	assert.ErrorIs(t, err, ErrNoProject)
}

func TestOutputPath_PhaseMapping(t *testing.T) {
	root := t.TempDir()
	r := NewResolver("thesis-output", zap.NewNop())

	cases := map[steps.Phase]string{
		steps.Phase0:      "00-session",
		steps.Phase1Wave3: "01-literature",
		steps.HITL2:       "02-research-design",
		steps.Phase2:      "02-research-design",
		steps.Phase3:      "03-thesis",
		steps.Phase4:      "04-publication",
		steps.Completion:  "00-session",
	}
	for phase, dir := range cases {
		got, err := r.OutputPath(root, phase, "out.md")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, dir, "out.md"), got)
		assert.DirExists(t, filepath.Join(root, dir))
	}
}

func TestOutputPath_UnknownPhase(t *testing.T) {
	r := NewResolver("thesis-output", zap.NewNop())
	_, err := r.OutputPath(t.TempDir(), steps.Phase("phase9"), "out.md")
	assert.ErrorIs(t, err, ErrUnmappedPhase)
}

func TestValidate(t *testing.T) {
	root := t.TempDir()
	project := makeProject(t, root, "thesis-ml-education")
	r := NewResolver("thesis-output", zap.NewNop())

	sess := &session.Session{WorkingDir: "thesis-ml-education"}
	sess.Paths.AbsolutePath = project

	require.NoError(t, r.Validate(sess, project))
	for _, dir := range requiredDirs {
		assert.DirExists(t, filepath.Join(project, dir))
	}

	t.Run("path mismatch", func(t *testing.T) {
		err := r.Validate(sess, filepath.Join(root, "elsewhere"))
		assert.ErrorIs(t, err, ErrPathMismatch)
	})

	t.Run("slug mismatch", func(t *testing.T) {
		bad := &session.Session{WorkingDir: "thesis-something-else"}
		bad.Paths.AbsolutePath = project
		err := r.Validate(bad, project)
		assert.ErrorIs(t, err, ErrSlugMismatch)
	})
}
