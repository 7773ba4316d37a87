// Package testutil builds isolated on-disk fixtures for engine and bundle
// tests: a projects root with boards, bundles and ini files, plus a separate
// working tree posing as the checked-out source.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Environment is a temp-dir fixture with a projects root and a working tree.
type Environment struct {
	t            *testing.T
	ProjectsRoot string
	WorkRoot     string
}

// NewEnvironment creates the two roots under t.TempDir.
func NewEnvironment(t *testing.T) *Environment {
	t.Helper()
	base := t.TempDir()
	env := &Environment{
		t:            t,
		ProjectsRoot: filepath.Join(base, "vprojects"),
		WorkRoot:     filepath.Join(base, "work"),
	}
	env.mkdir(env.ProjectsRoot)
	env.mkdir(env.WorkRoot)
	return env
}

func (env *Environment) mkdir(path string) {
	env.t.Helper()
	if err := os.MkdirAll(path, 0755); err != nil {
		env.t.Fatalf("mkdir %s: %v", path, err)
	}
}

func (env *Environment) write(path, content string) {
	env.t.Helper()
	env.mkdir(filepath.Dir(path))
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		env.t.Fatalf("write %s: %v", path, err)
	}
}

// WriteBoardINI writes the single ini file of a board.
func (env *Environment) WriteBoardINI(board, content string) string {
	path := filepath.Join(env.ProjectsRoot, board, board+".ini")
	env.write(path, content)
	return path
}

// WritePatch stores a patch file inside a bundle's patches tree.
func (env *Environment) WritePatch(board, bundle, rel, content string) string {
	path := filepath.Join(env.ProjectsRoot, board, "po", bundle, "patches", rel)
	env.write(path, content)
	return path
}

// WriteOverride stores an override file inside a bundle's overrides tree.
func (env *Environment) WriteOverride(board, bundle, rel, content string) string {
	path := filepath.Join(env.ProjectsRoot, board, "po", bundle, "overrides", rel)
	env.write(path, content)
	return path
}

// WriteCommonINI writes the shared common/common.ini file.
func (env *Environment) WriteCommonINI(content string) string {
	path := filepath.Join(env.ProjectsRoot, "common", "common.ini")
	env.write(path, content)
	return path
}

// WriteCustomFile stores a file inside a bundle's copy-source tree.
func (env *Environment) WriteCustomFile(board, bundle, dir, rel, content string) string {
	path := filepath.Join(env.ProjectsRoot, board, "po", bundle, dir, rel)
	env.write(path, content)
	return path
}

// WriteBundleKeepFiles creates the .gitkeep placeholders of a bundle.
func (env *Environment) WriteBundleKeepFiles(board, bundle string) {
	env.write(filepath.Join(env.ProjectsRoot, board, "po", bundle, "patches", ".gitkeep"), "")
	env.write(filepath.Join(env.ProjectsRoot, board, "po", bundle, "overrides", ".gitkeep"), "")
}

// WriteWorkFile writes a file into the working tree.
func (env *Environment) WriteWorkFile(rel, content string) string {
	path := filepath.Join(env.WorkRoot, rel)
	env.write(path, content)
	return path
}

// MarkGitRoot makes rel (or the work root for "") look like a git root.
func (env *Environment) MarkGitRoot(rel string) {
	env.mkdir(filepath.Join(env.WorkRoot, rel, ".git"))
}

// ReadWorkFile returns a working-tree file's content.
func (env *Environment) ReadWorkFile(rel string) string {
	env.t.Helper()
	data, err := os.ReadFile(filepath.Join(env.WorkRoot, rel))
	if err != nil {
		env.t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

// WorkFileExists reports whether a working-tree file exists.
func (env *Environment) WorkFileExists(rel string) bool {
	_, err := os.Stat(filepath.Join(env.WorkRoot, rel))
	return err == nil
}
