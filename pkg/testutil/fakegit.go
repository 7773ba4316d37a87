package testutil

import "sync"

// GitCall records one invocation on the FakeGit client.
type GitCall struct {
	Op   string
	Repo string
	Arg  string
}

// FakeGit implements git.Client with overridable behavior per method and a
// call log. Zero value: every mutation succeeds and does nothing, nothing is
// tracked, listings are empty. Tests override only what they exercise.
type FakeGit struct {
	mu    sync.Mutex
	calls []GitCall

	ApplyFn        func(repoPath, patchFile string) error
	ReverseApplyFn func(repoPath, patchFile string) error
	IsTrackedFn    func(repoPath, file string) bool
	RestoreFn      func(repoPath, file string) error
	StagedFilesFn  func(repoPath string) ([]string, error)
	ChangedFilesFn func(repoPath string) ([]string, error)
	DiffFn         func(repoPath, file string, staged bool) (string, error)
}

func (f *FakeGit) record(op, repo, arg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, GitCall{Op: op, Repo: repo, Arg: arg})
}

// Calls returns the recorded invocations in order.
func (f *FakeGit) Calls() []GitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]GitCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsFor returns only the recorded invocations of one operation.
func (f *FakeGit) CallsFor(op string) []GitCall {
	var out []GitCall
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Apply implements git.Client.
func (f *FakeGit) Apply(repoPath, patchFile string) error {
	f.record("apply", repoPath, patchFile)
	if f.ApplyFn != nil {
		return f.ApplyFn(repoPath, patchFile)
	}
	return nil
}

// ReverseApply implements git.Client.
func (f *FakeGit) ReverseApply(repoPath, patchFile string) error {
	f.record("reverse-apply", repoPath, patchFile)
	if f.ReverseApplyFn != nil {
		return f.ReverseApplyFn(repoPath, patchFile)
	}
	return nil
}

// IsTracked implements git.Client.
func (f *FakeGit) IsTracked(repoPath, file string) bool {
	f.record("is-tracked", repoPath, file)
	if f.IsTrackedFn != nil {
		return f.IsTrackedFn(repoPath, file)
	}
	return false
}

// Restore implements git.Client.
func (f *FakeGit) Restore(repoPath, file string) error {
	f.record("restore", repoPath, file)
	if f.RestoreFn != nil {
		return f.RestoreFn(repoPath, file)
	}
	return nil
}

// StagedFiles implements git.Client.
func (f *FakeGit) StagedFiles(repoPath string) ([]string, error) {
	f.record("staged-files", repoPath, "")
	if f.StagedFilesFn != nil {
		return f.StagedFilesFn(repoPath)
	}
	return nil, nil
}

// ChangedFiles implements git.Client.
func (f *FakeGit) ChangedFiles(repoPath string) ([]string, error) {
	f.record("changed-files", repoPath, "")
	if f.ChangedFilesFn != nil {
		return f.ChangedFilesFn(repoPath)
	}
	return nil, nil
}

// Diff implements git.Client.
func (f *FakeGit) Diff(repoPath, file string, staged bool) (string, error) {
	f.record("diff", repoPath, file)
	if f.DiffFn != nil {
		return f.DiffFn(repoPath, file, staged)
	}
	return "", nil
}
