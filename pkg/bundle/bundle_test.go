package bundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pobuild/pob/pkg/config"
	"github.com/pobuild/pob/pkg/testutil"
)

func TestValidateName(t *testing.T) {
	for _, name := range []string{"po", "po_fix", "po_test01", "po1"} {
		assert.NoError(t, ValidateName(name), name)
	}
	for _, name := range []string{"", "patch", "po-fix", "Po_fix", "po fix", "po_FIX"} {
		assert.Error(t, ValidateName(name), name)
	}
}

func TestUsedByFollowsInheritance(t *testing.T) {
	env := testutil.NewEnvironment(t)
	env.WriteBoardINI("alpha", `
[base]
PROJECT_PO_CONFIG = po_shared

[base-variant]
PROJECT_PO_CONFIG = po_extra

[other]
PROJECT_PO_CONFIG = po_shared -po_shared
`)
	store, err := config.Load(env.ProjectsRoot)
	require.NoError(t, err)

	assert.Equal(t, []string{"base", "base-variant"}, UsedBy(store, "po_shared"),
		"variant inherits the bundle; whole-bundle excludes do not count as use")
	assert.Equal(t, []string{"base-variant"}, UsedBy(store, "po_extra"))
	assert.Empty(t, UsedBy(store, "po_ghost"))
}

func TestListReportsBundleContentsAndState(t *testing.T) {
	env := testutil.NewEnvironment(t)
	env.WriteBoardINI("alpha", "[demo]\nPROJECT_PO_CONFIG = po_a po_b\n")
	env.WritePatch("alpha", "po_a", "main.c.patch", "diff")
	env.WriteOverride("alpha", "po_a", "cfg/file.txt", "x")
	env.WriteBundleKeepFiles("alpha", "po_b")

	store, err := config.Load(env.ProjectsRoot)
	require.NoError(t, err)

	infos, err := List(store, env.WorkRoot, "demo")
	require.NoError(t, err)
	require.Len(t, infos, 2)

	assert.Equal(t, "po_a", infos[0].Name)
	assert.Equal(t, []string{"main.c.patch"}, infos[0].Patches)
	assert.Equal(t, []string{"cfg/file.txt"}, infos[0].Overrides)
	assert.False(t, infos[0].PatchApplied)

	assert.Equal(t, "po_b", infos[1].Name)
	assert.Empty(t, infos[1].Patches, "keep files are not content")
	assert.Empty(t, infos[1].Overrides)
}

func TestListUnknownProject(t *testing.T) {
	env := testutil.NewEnvironment(t)
	store, err := config.Load(env.ProjectsRoot)
	require.NoError(t, err)
	_, err = List(store, env.WorkRoot, "nope")
	assert.Error(t, err)
}
