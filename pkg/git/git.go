// Package git shells out to the git command line. The engine never computes
// or applies hunks itself; everything diff-shaped is delegated here, behind
// an interface so the engine's control flow is testable with a fake.
package git

import (
	"os/exec"
	"strings"

	"github.com/pobuild/pob/pkg/errors"
	"github.com/pobuild/pob/pkg/logging"
)

// Client is the external version-control collaborator.
type Client interface {
	// Apply applies a unified-diff file to the repository's working tree.
	Apply(repoPath, patchFile string) error
	// ReverseApply undoes a previously applied unified-diff file.
	ReverseApply(repoPath, patchFile string) error
	// IsTracked reports whether file (repo-relative) exists at the current
	// revision.
	IsTracked(repoPath, file string) bool
	// Restore restores file (repo-relative) from the current revision.
	Restore(repoPath, file string) error
	// StagedFiles lists repo-relative paths with staged changes.
	StagedFiles(repoPath string) ([]string, error)
	// ChangedFiles lists repo-relative modified and untracked paths.
	ChangedFiles(repoPath string) ([]string, error)
	// Diff returns the unified diff for file against its last committed
	// revision; staged selects the index instead of the working tree.
	Diff(repoPath, file string, staged bool) (string, error)
}

// CLI runs the real git binary.
type CLI struct{}

// NewCLI returns a Client backed by the git executable.
func NewCLI() *CLI {
	return &CLI{}
}

func (c *CLI) run(repoPath string, args ...string) (string, string, error) {
	logging.LogCommand("git", args)
	cmd := exec.Command("git", args...)
	cmd.Dir = repoPath
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Apply implements Client.
func (c *CLI) Apply(repoPath, patchFile string) error {
	_, stderr, err := c.run(repoPath, "apply", patchFile)
	if err != nil {
		return errors.Wrapf(err, errors.ErrPatchApply, "git apply %s failed: %s", patchFile, strings.TrimSpace(stderr))
	}
	return nil
}

// ReverseApply implements Client.
func (c *CLI) ReverseApply(repoPath, patchFile string) error {
	_, stderr, err := c.run(repoPath, "apply", "--reverse", patchFile)
	if err != nil {
		return errors.Wrapf(err, errors.ErrPatchRevert, "git apply --reverse %s failed: %s", patchFile, strings.TrimSpace(stderr))
	}
	return nil
}

// IsTracked implements Client.
func (c *CLI) IsTracked(repoPath, file string) bool {
	_, _, err := c.run(repoPath, "ls-files", "--error-unmatch", file)
	return err == nil
}

// Restore implements Client.
func (c *CLI) Restore(repoPath, file string) error {
	_, stderr, err := c.run(repoPath, "checkout", "--", file)
	if err != nil {
		return errors.Wrapf(err, errors.ErrGitCommand, "git checkout -- %s failed: %s", file, strings.TrimSpace(stderr))
	}
	return nil
}

// StagedFiles implements Client.
func (c *CLI) StagedFiles(repoPath string) ([]string, error) {
	stdout, stderr, err := c.run(repoPath, "diff", "--name-only", "--cached")
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrGitCommand, "git diff --cached failed: %s", strings.TrimSpace(stderr))
	}
	return splitLines(stdout), nil
}

// ChangedFiles implements Client.
func (c *CLI) ChangedFiles(repoPath string) ([]string, error) {
	stdout, stderr, err := c.run(repoPath, "ls-files", "--modified", "--others", "--exclude-standard")
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrGitCommand, "git ls-files failed: %s", strings.TrimSpace(stderr))
	}
	return splitLines(stdout), nil
}

// Diff implements Client.
func (c *CLI) Diff(repoPath, file string, staged bool) (string, error) {
	args := []string{"diff"}
	if staged {
		args = append(args, "--cached")
	}
	args = append(args, "--", file)
	stdout, stderr, err := c.run(repoPath, args...)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrGitCommand, "git diff -- %s failed: %s", file, strings.TrimSpace(stderr))
	}
	return stdout, nil
}

func splitLines(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
