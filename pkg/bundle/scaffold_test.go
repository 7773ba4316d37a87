package bundle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pobuild/pob/pkg/config"
	"github.com/pobuild/pob/pkg/testutil"
)

func newScaffolder(t *testing.T, env *testutil.Environment, fake *testutil.FakeGit) *Scaffolder {
	t.Helper()
	store, err := config.Load(env.ProjectsRoot)
	require.NoError(t, err)
	return NewScaffolder(store, fake, env.WorkRoot)
}

func TestCreateCapturesPatchesAndOverrides(t *testing.T) {
	env := testutil.NewEnvironment(t)
	env.WriteBoardINI("alpha", "[demo]\nPROJECT_CHIP = x\n")
	env.MarkGitRoot("")
	env.WriteWorkFile("new_file.txt", "fresh content\n")

	fake := &testutil.FakeGit{
		ChangedFilesFn: func(repoPath string) ([]string, error) {
			return []string{"main.c", "new_file.txt"}, nil
		},
		IsTrackedFn: func(repoPath, file string) bool { return file == "main.c" },
		DiffFn: func(repoPath, file string, staged bool) (string, error) {
			return "--- a/main.c\n+++ b/main.c\n", nil
		},
	}
	s := newScaffolder(t, env, fake)
	require.NoError(t, s.Create("demo", "po_fix", NewOptions{}))

	bundleDir := filepath.Join(env.ProjectsRoot, "alpha", "po", "po_fix")
	patch, err := os.ReadFile(filepath.Join(bundleDir, "patches", "main.c.patch"))
	require.NoError(t, err)
	assert.Contains(t, string(patch), "+++ b/main.c")

	override, err := os.ReadFile(filepath.Join(bundleDir, "overrides", "new_file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "fresh content\n", string(override))

	assert.FileExists(t, filepath.Join(bundleDir, "patches", ".gitkeep"))
	assert.FileExists(t, filepath.Join(bundleDir, "overrides", ".gitkeep"))
}

func TestCreateRejectsBadNameBeforeMutation(t *testing.T) {
	env := testutil.NewEnvironment(t)
	env.WriteBoardINI("alpha", "[demo]\nPROJECT_CHIP = x\n")
	s := newScaffolder(t, env, &testutil.FakeGit{})

	require.Error(t, s.Create("demo", "hotfix", NewOptions{}))
	assert.NoDirExists(t, filepath.Join(env.ProjectsRoot, "alpha", "po"))
}

func TestCreateFailsWhenBundleExists(t *testing.T) {
	env := testutil.NewEnvironment(t)
	env.WriteBoardINI("alpha", "[demo]\nPROJECT_CHIP = x\n")
	env.WriteBundleKeepFiles("alpha", "po_fix")
	env.MarkGitRoot("")

	s := newScaffolder(t, env, &testutil.FakeGit{})
	assert.Error(t, s.Create("demo", "po_fix", NewOptions{}))
}

func TestCreateRequireExistingUpdatesBundle(t *testing.T) {
	env := testutil.NewEnvironment(t)
	env.WriteBoardINI("alpha", "[demo]\nPROJECT_CHIP = x\n")
	env.MarkGitRoot("")

	s := newScaffolder(t, env, &testutil.FakeGit{})
	require.Error(t, s.Create("demo", "po_fix", NewOptions{RequireExisting: true}),
		"update of a missing bundle fails")

	env.WriteBundleKeepFiles("alpha", "po_fix")
	env.WriteWorkFile("extra.txt", "v2\n")
	fake := &testutil.FakeGit{
		ChangedFilesFn: func(repoPath string) ([]string, error) { return []string{"extra.txt"}, nil },
	}
	s = newScaffolder(t, env, fake)
	require.NoError(t, s.Create("demo", "po_fix", NewOptions{RequireExisting: true}))
	assert.FileExists(t, filepath.Join(env.ProjectsRoot, "alpha", "po", "po_fix", "overrides", "extra.txt"))
}

func TestCreateHonorsFileSelection(t *testing.T) {
	env := testutil.NewEnvironment(t)
	env.WriteBoardINI("alpha", "[demo]\nPROJECT_CHIP = x\n")
	env.MarkGitRoot("")
	env.WriteWorkFile("keep.txt", "keep\n")
	env.WriteWorkFile("drop.txt", "drop\n")

	fake := &testutil.FakeGit{
		ChangedFilesFn: func(repoPath string) ([]string, error) {
			return []string{"keep.txt", "drop.txt"}, nil
		},
	}
	s := newScaffolder(t, env, fake)
	require.NoError(t, s.Create("demo", "po_fix", NewOptions{Files: []string{"keep.txt"}}))

	overrides := filepath.Join(env.ProjectsRoot, "alpha", "po", "po_fix", "overrides")
	assert.FileExists(t, filepath.Join(overrides, "keep.txt"))
	assert.NoFileExists(t, filepath.Join(overrides, "drop.txt"))
}

func TestCandidatesAppliesIgnorePatterns(t *testing.T) {
	env := testutil.NewEnvironment(t)
	env.WriteBoardINI("alpha", "[demo]\nPROJECT_PO_IGNORE = *.o build/\n")
	env.MarkGitRoot("")

	fake := &testutil.FakeGit{
		ChangedFilesFn: func(repoPath string) ([]string, error) {
			return []string{"src/main.o", "build/out.bin", "src/main.c"}, nil
		},
	}
	s := newScaffolder(t, env, fake)
	candidates, err := s.Candidates("demo")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "src/main.c", candidates[0].WorkRel)
}

func TestCandidatesQualifySubRepositoryPaths(t *testing.T) {
	env := testutil.NewEnvironment(t)
	env.WriteBoardINI("alpha", "[demo]\nPROJECT_CHIP = x\n")
	env.MarkGitRoot("uboot")

	fake := &testutil.FakeGit{
		StagedFilesFn:  func(repoPath string) ([]string, error) { return []string{"drivers/net.c"}, nil },
		ChangedFilesFn: func(repoPath string) ([]string, error) { return []string{"drivers/net.c"}, nil },
	}
	s := newScaffolder(t, env, fake)
	candidates, err := s.Candidates("demo")
	require.NoError(t, err)
	require.Len(t, candidates, 1, "staged and working lists are a union")
	assert.Equal(t, "uboot/drivers/net.c", candidates[0].WorkRel)
	assert.Equal(t, "drivers/net.c", candidates[0].RepoRel)
	assert.True(t, candidates[0].Staged)
}
