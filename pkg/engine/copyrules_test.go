package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pobuild/pob/pkg/testutil"
)

func TestParseCopyRules(t *testing.T) {
	rules := parseCopyRules(`a.txt:dest/a.txt \ data/*:dest/data/ \ broken_entry \ `)
	require.Len(t, rules, 2)
	assert.Equal(t, CopyRule{Source: "a.txt", Target: "dest/a.txt"}, rules[0])
	assert.Equal(t, CopyRule{Source: "data/*", Target: "dest/data/"}, rules[1])

	assert.Empty(t, parseCopyRules(""))
}

func TestApplyCopyRuleSingleFile(t *testing.T) {
	env := testutil.NewEnvironment(t)
	env.WriteBoardINI("test_board", "[demo]\nPROJECT_PO_CONFIG = po_a\n")
	env.WriteCommonINI("[po-po_a]\nPROJECT_PO_FILE_COPY = test_custom.txt:custom_dest.txt\n")
	env.WriteCustomFile("test_board", "po_a", "custom", "test_custom.txt", "custom content\n")
	env.MarkGitRoot("")

	e := newEngine(t, env, &testutil.FakeGit{})
	require.NoError(t, e.Apply("demo"))

	assert.Equal(t, "custom content\n", env.ReadWorkFile("custom_dest.txt"))
}

func TestApplyCopyRuleWildcardCopiesRecursively(t *testing.T) {
	env := testutil.NewEnvironment(t)
	env.WriteBoardINI("test_board", "[demo]\nPROJECT_PO_CONFIG = po_a\n")
	env.WriteCommonINI("[po-po_a]\nPROJECT_PO_FILE_COPY = *:dest/\n")
	env.WriteCustomFile("test_board", "po_a", "custom", "a.txt", "a\n")
	env.WriteCustomFile("test_board", "po_a", "custom", "data/b.txt", "b\n")
	env.MarkGitRoot("")

	e := newEngine(t, env, &testutil.FakeGit{})
	require.NoError(t, e.Apply("demo"))

	assert.Equal(t, "a\n", env.ReadWorkFile("dest/a.txt"))
	assert.Equal(t, "b\n", env.ReadWorkFile("dest/data/b.txt"), "matched directories are copied with their structure")
}

func TestApplyCopyRuleSubtreePatternExcludesSiblings(t *testing.T) {
	env := testutil.NewEnvironment(t)
	env.WriteBoardINI("test_board", "[demo]\nPROJECT_PO_CONFIG = po_a\n")
	env.WriteCommonINI("[po-po_a]\nPROJECT_PO_FILE_COPY = data/*:dest/data/\n")
	env.WriteCustomFile("test_board", "po_a", "custom", "data/inner.txt", "inner\n")
	env.WriteCustomFile("test_board", "po_a", "custom", "data/nested/deep.txt", "deep\n")
	env.WriteCustomFile("test_board", "po_a", "custom", "sibling.txt", "sibling\n")
	env.MarkGitRoot("")

	e := newEngine(t, env, &testutil.FakeGit{})
	require.NoError(t, e.Apply("demo"))

	assert.Equal(t, "inner\n", env.ReadWorkFile("dest/data/inner.txt"))
	assert.Equal(t, "deep\n", env.ReadWorkFile("dest/data/nested/deep.txt"))
	assert.False(t, env.WorkFileExists("dest/data/sibling.txt"))
	assert.False(t, env.WorkFileExists("dest/sibling.txt"))
}

func TestApplyCopyRuleHonorsConfiguredSourceDir(t *testing.T) {
	env := testutil.NewEnvironment(t)
	env.WriteBoardINI("test_board", "[demo]\nPROJECT_PO_CONFIG = po_a\n")
	env.WriteCommonINI("[po-po_a]\nPROJECT_PO_DIR = files/\nPROJECT_PO_FILE_COPY = tool.cfg:etc/tool.cfg\n")
	env.WriteCustomFile("test_board", "po_a", "files", "tool.cfg", "cfg\n")
	env.MarkGitRoot("")

	e := newEngine(t, env, &testutil.FakeGit{})
	require.NoError(t, e.Apply("demo"))

	assert.Equal(t, "cfg\n", env.ReadWorkFile("etc/tool.cfg"))
}

func TestApplyCopyRuleMatchingNothingSucceeds(t *testing.T) {
	env := testutil.NewEnvironment(t)
	env.WriteBoardINI("test_board", "[demo]\nPROJECT_PO_CONFIG = po_a\n")
	env.WriteCommonINI("[po-po_a]\nPROJECT_PO_FILE_COPY = missing.txt:dest.txt\n")
	env.WriteCustomFile("test_board", "po_a", "custom", "unrelated.txt", "x\n")
	env.MarkGitRoot("")

	e := newEngine(t, env, &testutil.FakeGit{})
	require.NoError(t, e.Apply("demo"))

	assert.False(t, env.WorkFileExists("dest.txt"))
}

func TestApplyMultipleCopyRules(t *testing.T) {
	env := testutil.NewEnvironment(t)
	env.WriteBoardINI("test_board", "[demo]\nPROJECT_PO_CONFIG = po_a\n")
	env.WriteCommonINI("[po-po_a]\nPROJECT_PO_FILE_COPY = one.txt:first.txt \\ two.txt:sub/second.txt\n")
	env.WriteCustomFile("test_board", "po_a", "custom", "one.txt", "1\n")
	env.WriteCustomFile("test_board", "po_a", "custom", "two.txt", "2\n")
	env.MarkGitRoot("")

	e := newEngine(t, env, &testutil.FakeGit{})
	require.NoError(t, e.Apply("demo"))

	assert.Equal(t, "1\n", env.ReadWorkFile("first.txt"))
	assert.Equal(t, "2\n", env.ReadWorkFile("sub/second.txt"))
}

func TestRevertLeavesCopiedFilesInPlace(t *testing.T) {
	env := testutil.NewEnvironment(t)
	env.WriteBoardINI("test_board", "[demo]\nPROJECT_PO_CONFIG = po_a\n")
	env.WriteCommonINI("[po-po_a]\nPROJECT_PO_FILE_COPY = test_custom.txt:custom_dest.txt\n")
	env.WriteCustomFile("test_board", "po_a", "custom", "test_custom.txt", "custom content\n")
	env.MarkGitRoot("")

	e := newEngine(t, env, &testutil.FakeGit{})
	require.NoError(t, e.Apply("demo"))
	require.NoError(t, e.Revert("demo"))

	assert.Equal(t, "custom content\n", env.ReadWorkFile("custom_dest.txt"), "copied files need manual cleanup")
}
