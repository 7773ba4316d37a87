package bundle

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pobuild/pob/pkg/config"
	"github.com/pobuild/pob/pkg/engine"
	"github.com/pobuild/pob/pkg/errors"
	"github.com/pobuild/pob/pkg/git"
	"github.com/pobuild/pob/pkg/logging"
	"github.com/pobuild/pob/pkg/repos"
)

// Candidate is one repository change eligible for capture into a bundle.
type Candidate struct {
	Repo    repos.Repository
	RepoRel string // path relative to the owning repository
	WorkRel string // path relative to the working tree root
	Staged  bool
	Tracked bool
}

// NewOptions controls bundle scaffolding.
type NewOptions struct {
	// Files restricts capture to these working-tree-relative paths. Empty
	// means every candidate.
	Files []string
	// RequireExisting turns creation into an update of an existing bundle.
	RequireExisting bool
}

// Scaffolder captures working-tree changes into bundle directories.
type Scaffolder struct {
	store    *config.Store
	git      git.Client
	workRoot string
	ignore   []string
}

// NewScaffolder builds a Scaffolder over the given configuration store, git
// collaborator and working-tree root.
func NewScaffolder(store *config.Store, client git.Client, workRoot string) *Scaffolder {
	return &Scaffolder{store: store, git: client, workRoot: workRoot}
}

// AddIgnore adds capture ignore patterns on top of the project's own.
func (s *Scaffolder) AddIgnore(patterns ...string) {
	s.ignore = append(s.ignore, patterns...)
}

// Candidates collects the staged and working changes of every discovered
// repository, filtered by the project's ignore patterns.
func (s *Scaffolder) Candidates(projectName string) ([]Candidate, error) {
	project, err := s.store.Project(projectName)
	if err != nil {
		return nil, err
	}
	ignore := s.ignorePatterns(project)

	var all []Candidate
	for _, repo := range repos.Discover(s.workRoot) {
		staged, err := s.git.StagedFiles(repo.Path)
		if err != nil {
			return nil, err
		}
		changed, err := s.git.ChangedFiles(repo.Path)
		if err != nil {
			return nil, err
		}

		stagedSet := make(map[string]bool, len(staged))
		for _, f := range staged {
			stagedSet[f] = true
		}
		seen := make(map[string]bool)
		for _, f := range append(staged, changed...) {
			if seen[f] {
				continue
			}
			seen[f] = true
			if ignored(ignore, f) {
				continue
			}
			workRel := f
			if repo.Name != repos.RootName {
				workRel = path.Join(filepath.ToSlash(repo.Name), f)
			}
			all = append(all, Candidate{
				Repo:    repo,
				RepoRel: f,
				WorkRel: workRel,
				Staged:  stagedSet[f],
				Tracked: s.git.IsTracked(repo.Path, f),
			})
		}
	}
	return all, nil
}

// Create scaffolds (or, with opts.RequireExisting, updates) a bundle from
// the current repository changes. Tracked files become patches, untracked
// files become overrides.
func (s *Scaffolder) Create(projectName, bundleName string, opts NewOptions) error {
	logger := logging.GetLogger("bundle")
	done := logging.LogOperationStart(logger, "po_new")
	defer done()

	if err := ValidateName(bundleName); err != nil {
		return err
	}
	project, err := s.store.Project(projectName)
	if err != nil {
		return err
	}

	dir := Dir(project, bundleName)
	_, statErr := os.Stat(dir)
	if opts.RequireExisting && statErr != nil {
		return errors.Newf(errors.ErrBundleNotFound, "bundle '%s' does not exist at %s", bundleName, dir)
	}
	if !opts.RequireExisting && statErr == nil {
		return errors.Newf(errors.ErrBundleExists, "bundle '%s' already exists at %s", bundleName, dir)
	}

	candidates, err := s.Candidates(projectName)
	if err != nil {
		return err
	}
	candidates = selectCandidates(candidates, opts.Files)
	if len(candidates) == 0 {
		logger.Warn().Str("project", projectName).Msg("No changes to capture")
	}

	if err := s.scaffold(dir); err != nil {
		return err
	}
	for _, c := range candidates {
		if c.Tracked {
			if err := s.capturePatch(dir, c); err != nil {
				return err
			}
		} else if err := s.captureOverride(dir, c); err != nil {
			return err
		}
	}
	logger.Info().Str("bundle", bundleName).Int("files", len(candidates)).Msg("Bundle scaffolded")
	return nil
}

// scaffold creates the bundle skeleton with keep files so empty bundles
// survive version control.
func (s *Scaffolder) scaffold(dir string) error {
	for _, sub := range []string{engine.PatchesDirName, engine.OverridesDirName} {
		subDir := filepath.Join(dir, sub)
		if err := os.MkdirAll(subDir, 0755); err != nil {
			return errors.Wrapf(err, errors.ErrDirCreate, "failed to create %s", subDir)
		}
		keep := filepath.Join(subDir, engine.KeepFile)
		if err := os.WriteFile(keep, nil, 0644); err != nil {
			return errors.Wrapf(err, errors.ErrFileCreate, "failed to create %s", keep)
		}
	}
	return nil
}

func (s *Scaffolder) capturePatch(dir string, c Candidate) error {
	logger := logging.GetLogger("bundle")
	diff, err := s.git.Diff(c.Repo.Path, c.RepoRel, c.Staged)
	if err != nil {
		return err
	}
	if strings.TrimSpace(diff) == "" {
		logger.Warn().Str("file", c.WorkRel).Msg("No diff output for tracked file, skipping")
		return nil
	}
	dest := filepath.Join(dir, engine.PatchesDirName, filepath.FromSlash(c.WorkRel)+".patch")
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrDirCreate, "failed to create directory for %s", dest)
	}
	if err := os.WriteFile(dest, []byte(diff), 0644); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to write %s", dest)
	}
	logger.Info().Str("file", c.WorkRel).Msg("Patch captured")
	return nil
}

func (s *Scaffolder) captureOverride(dir string, c Candidate) error {
	logger := logging.GetLogger("bundle")
	src := filepath.Join(s.workRoot, filepath.FromSlash(c.WorkRel))
	dest := filepath.Join(dir, engine.OverridesDirName, filepath.FromSlash(c.WorkRel))
	if err := copyFile(src, dest); err != nil {
		return err
	}
	logger.Info().Str("file", c.WorkRel).Msg("Override captured")
	return nil
}

// selectCandidates keeps only candidates named in files (working-tree
// relative). Empty files keeps everything.
func selectCandidates(candidates []Candidate, files []string) []Candidate {
	if len(files) == 0 {
		return candidates
	}
	want := make(map[string]bool, len(files))
	for _, f := range files {
		want[filepath.ToSlash(f)] = true
	}
	var out []Candidate
	for _, c := range candidates {
		if want[c.WorkRel] {
			out = append(out, c)
		}
	}
	return out
}

// ignorePatterns combines the project's PROJECT_PO_IGNORE tokens with the
// lines of a .gitignore at the working tree root.
func (s *Scaffolder) ignorePatterns(project *config.Project) []string {
	patterns := append([]string{}, s.ignore...)
	patterns = append(patterns, strings.Fields(project.Get("PROJECT_PO_IGNORE"))...)
	data, err := os.ReadFile(filepath.Join(s.workRoot, ".gitignore"))
	if err != nil {
		return patterns
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// ignored matches a repo-relative path against ignore patterns. A trailing
// "/" makes a pattern a directory prefix; otherwise patterns glob against
// the full path and the base name.
func ignored(patterns []string, rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range patterns {
		p = strings.TrimPrefix(p, "/")
		if strings.HasSuffix(p, "/") {
			if rel+"/" == p || strings.HasPrefix(rel, p) {
				return true
			}
			continue
		}
		if ok, _ := path.Match(p, rel); ok {
			return true
		}
		if ok, _ := path.Match(p, path.Base(rel)); ok {
			return true
		}
	}
	return false
}

func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrDirCreate, "failed to create directory for %s", dest)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to read %s", src)
	}
	info, err := os.Stat(src)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", src)
	}
	if err := os.WriteFile(dest, data, info.Mode().Perm()); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to write %s", dest)
	}
	return nil
}
