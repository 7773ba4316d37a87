// Package engine applies and reverts patch/override bundles against a
// working tree. It is the state machine behind po_apply and po_revert: the
// bundle list comes from the project's directive, mutation of tracked files
// is delegated to the git collaborator, and progress is recorded in the
// working tree's flag files after every bundle.
package engine

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pobuild/pob/pkg/config"
	"github.com/pobuild/pob/pkg/errors"
	"github.com/pobuild/pob/pkg/git"
	"github.com/pobuild/pob/pkg/logging"
	"github.com/pobuild/pob/pkg/pospec"
	"github.com/pobuild/pob/pkg/repos"
	"github.com/pobuild/pob/pkg/state"
)

const (
	// PODirName is the bundle directory under a board root.
	PODirName = "po"
	// PatchesDirName holds a bundle's unified-diff files.
	PatchesDirName = "patches"
	// OverridesDirName holds a bundle's verbatim override files.
	OverridesDirName = "overrides"
	// KeepFile is the placeholder that keeps empty directories in VCS and is
	// ignored during apply and revert.
	KeepFile = ".gitkeep"
)

// Engine mutates one working tree according to project directives.
type Engine struct {
	store    *config.Store
	git      git.Client
	workRoot string
}

// New builds an Engine over the given configuration store, git collaborator
// and working-tree root.
func New(store *config.Store, client git.Client, workRoot string) *Engine {
	return &Engine{store: store, git: client, workRoot: workRoot}
}

// Apply applies every effective bundle of the project, in directive order.
// Bundles already recorded in the flag files are skipped, so a second Apply
// is a no-op success. A patch failure aborts the operation; bundles fully
// applied before the failure stay applied and recorded.
func (e *Engine) Apply(projectName string) error {
	logger := logging.GetLogger("engine")
	done := logging.LogOperationStart(logger, "po_apply")
	defer done()

	project, err := e.store.Project(projectName)
	if err != nil {
		return err
	}
	spec := pospec.Parse(project.POConfig())
	bundles := spec.Effective()
	if len(bundles) == 0 {
		logger.Warn().Str("project", projectName).Msg("No PO directive configured, nothing to apply")
		return nil
	}

	st := state.New(e.workRoot)
	repositories := repos.Discover(e.workRoot)

	for _, bundle := range bundles {
		bundleDir := filepath.Join(project.PODir(), bundle)
		if err := e.applyPatches(bundle, bundleDir, repositories, st); err != nil {
			logger.Error().Err(err).Str("bundle", bundle).Msg("po apply aborted by patch error")
			return err
		}
		if err := e.applyOverrides(bundle, bundleDir, spec.ExcludedFiles(bundle), st); err != nil {
			logger.Error().Err(err).Str("bundle", bundle).Msg("po apply aborted by override error")
			return err
		}
		if copySpec, ok := e.store.CopySpec(bundle); ok {
			if err := e.applyCopies(bundle, bundleDir, copySpec); err != nil {
				logger.Error().Err(err).Str("bundle", bundle).Msg("po apply aborted by copy error")
				return err
			}
		}
		logger.Info().Str("bundle", bundle).Str("project", projectName).Msg("Bundle applied")
	}
	logger.Info().Str("project", projectName).Msg("po apply finished")
	return nil
}

// Revert undoes every effective bundle of the project in reverse directive
// order. Bundles not recorded in the flag files are skipped. A reverse-apply
// conflict aborts the operation; bundles already reverted stay reverted.
func (e *Engine) Revert(projectName string) error {
	logger := logging.GetLogger("engine")
	done := logging.LogOperationStart(logger, "po_revert")
	defer done()

	project, err := e.store.Project(projectName)
	if err != nil {
		return err
	}
	spec := pospec.Parse(project.POConfig())
	bundles := spec.Effective()
	if len(bundles) == 0 {
		logger.Warn().Str("project", projectName).Msg("No PO directive configured, nothing to revert")
		return nil
	}

	st := state.New(e.workRoot)
	repositories := repos.Discover(e.workRoot)

	for i := len(bundles) - 1; i >= 0; i-- {
		bundle := bundles[i]
		bundleDir := filepath.Join(project.PODir(), bundle)
		if err := e.revertPatches(bundle, bundleDir, repositories, st); err != nil {
			logger.Error().Err(err).Str("bundle", bundle).Msg("po revert aborted by patch error")
			return err
		}
		if err := e.revertOverrides(bundle, bundleDir, spec.ExcludedFiles(bundle), repositories, st); err != nil {
			logger.Error().Err(err).Str("bundle", bundle).Msg("po revert aborted by override error")
			return err
		}
		if copySpec, ok := e.store.CopySpec(bundle); ok {
			e.revertCopies(bundle, copySpec)
		}
		logger.Info().Str("bundle", bundle).Str("project", projectName).Msg("Bundle reverted")
	}
	logger.Info().Str("project", projectName).Msg("po revert finished")
	return nil
}

// bundleFiles walks a bundle subtree and returns paths relative to dir,
// in deterministic walk order, skipping keep files. A missing dir yields nil.
func bundleFiles(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, nil
	}
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == KeepFile {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to walk %s", dir)
	}
	return files, nil
}

func (e *Engine) applyPatches(bundle, bundleDir string, repositories []repos.Repository, st *state.Store) error {
	logger := logging.GetLogger("engine")
	patchesDir := filepath.Join(bundleDir, PatchesDirName)

	if st.Contains(state.Patches, bundle) {
		logger.Info().Str("bundle", bundle).Msg("Patches already applied, skipping")
		return nil
	}
	files, err := bundleFiles(patchesDir)
	if err != nil {
		return err
	}

	applied := 0
	for _, rel := range files {
		repo, ok := repos.Owner(repositories, filepath.Dir(rel))
		if !ok {
			logger.Error().Str("patch", rel).Str("bundle", bundle).
				Msg("No repository found for patch target, skipping")
			continue
		}
		patchFile := filepath.Join(patchesDir, rel)
		logger.Info().Str("patch", rel).Str("repository", repo.Name).Msg("Applying patch")
		if err := e.git.Apply(repo.Path, patchFile); err != nil {
			return err
		}
		applied++
	}
	if applied > 0 {
		if err := st.Append(state.Patches, bundle); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyOverrides(bundle, bundleDir string, excluded map[string]bool, st *state.Store) error {
	logger := logging.GetLogger("engine")
	overridesDir := filepath.Join(bundleDir, OverridesDirName)

	if st.Contains(state.Overrides, bundle) {
		logger.Info().Str("bundle", bundle).Msg("Overrides already applied, skipping")
		return nil
	}
	files, err := bundleFiles(overridesDir)
	if err != nil {
		return err
	}

	copied := 0
	for _, rel := range files {
		if excluded[filepath.ToSlash(rel)] {
			logger.Debug().Str("file", rel).Str("bundle", bundle).Msg("Override excluded by directive")
			continue
		}
		src := filepath.Join(overridesDir, rel)
		dest := filepath.Join(e.workRoot, rel)
		if err := copyFile(src, dest); err != nil {
			return err
		}
		logger.Info().Str("file", rel).Str("bundle", bundle).Msg("Override applied")
		copied++
	}
	if copied > 0 {
		if err := st.Append(state.Overrides, bundle); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) revertPatches(bundle, bundleDir string, repositories []repos.Repository, st *state.Store) error {
	logger := logging.GetLogger("engine")
	patchesDir := filepath.Join(bundleDir, PatchesDirName)

	if !st.Contains(state.Patches, bundle) {
		logger.Debug().Str("bundle", bundle).Msg("Patches not recorded as applied, skipping")
		return nil
	}
	files, err := bundleFiles(patchesDir)
	if err != nil {
		return err
	}

	for _, rel := range files {
		repo, ok := repos.Owner(repositories, filepath.Dir(rel))
		if !ok {
			logger.Error().Str("patch", rel).Str("bundle", bundle).
				Msg("No repository found for patch target, skipping")
			continue
		}
		patchFile := filepath.Join(patchesDir, rel)
		logger.Info().Str("patch", rel).Str("repository", repo.Name).Msg("Reverting patch")
		if err := e.git.ReverseApply(repo.Path, patchFile); err != nil {
			return err
		}
	}
	return st.Remove(state.Patches, bundle)
}

func (e *Engine) revertOverrides(bundle, bundleDir string, excluded map[string]bool, repositories []repos.Repository, st *state.Store) error {
	logger := logging.GetLogger("engine")
	overridesDir := filepath.Join(bundleDir, OverridesDirName)

	if !st.Contains(state.Overrides, bundle) {
		logger.Debug().Str("bundle", bundle).Msg("Overrides not recorded as applied, skipping")
		return nil
	}
	files, err := bundleFiles(overridesDir)
	if err != nil {
		return err
	}

	for _, rel := range files {
		if excluded[filepath.ToSlash(rel)] {
			continue
		}
		dest := filepath.Join(e.workRoot, rel)
		if _, err := os.Stat(dest); err != nil {
			logger.Debug().Str("file", rel).Msg("Override target missing, skipping")
			continue
		}

		repo, ok := repos.Owner(repositories, filepath.Dir(rel))
		repoRel := rel
		if ok && repo.Name != repos.RootName {
			repoRel, _ = filepath.Rel(repo.Name, rel)
		}
		if ok && e.git.IsTracked(repo.Path, repoRel) {
			// tracked at the pre-override revision: restore it
			if err := e.git.Restore(repo.Path, repoRel); err != nil {
				return err
			}
			logger.Info().Str("file", rel).Msg("Override restored from version control")
		} else {
			// the override created this file; remove it
			if err := os.Remove(dest); err != nil {
				logger.Warn().Err(err).Str("file", rel).Msg("Failed to remove override file")
				continue
			}
			logger.Info().Str("file", rel).Msg("Override file removed")
		}
	}
	return st.Remove(state.Overrides, bundle)
}

func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrDirCreate, "failed to create directory for %s", dest)
	}
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to open %s", src)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", src)
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileCreate, "failed to create %s", dest)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to copy %s to %s", src, dest)
	}
	return nil
}

// WorkRoot exposes the tree the engine mutates, for callers that combine the
// engine with repository discovery or scaffolding.
func (e *Engine) WorkRoot() string {
	return e.workRoot
}
