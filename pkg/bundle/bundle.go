// Package bundle manages the lifecycle of patch/override bundles under a
// board's po directory: scaffolding new bundles from repository changes,
// deleting bundles together with their configuration references, and
// reporting bundle contents.
package bundle

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/pobuild/pob/pkg/config"
	"github.com/pobuild/pob/pkg/engine"
	"github.com/pobuild/pob/pkg/errors"
	"github.com/pobuild/pob/pkg/pospec"
	"github.com/pobuild/pob/pkg/state"
)

// nameRe is the bundle naming convention. Names live in directive strings
// and directory names, so the charset stays deliberately narrow.
var nameRe = regexp.MustCompile(`^po[a-z0-9_]*$`)

// ValidateName rejects bundle names outside the po_* convention.
func ValidateName(name string) error {
	if !nameRe.MatchString(name) {
		return errors.Newf(errors.ErrBundleName,
			"invalid bundle name '%s': must match %s", name, nameRe.String())
	}
	return nil
}

// Dir returns the directory of a bundle under its project's board.
func Dir(project *config.Project, bundleName string) string {
	return filepath.Join(project.PODir(), bundleName)
}

// UsedBy returns the sorted names of projects whose effective bundle set
// includes bundleName.
func UsedBy(store *config.Store, bundleName string) []string {
	var users []string
	for _, name := range store.Names() {
		project, err := store.Project(name)
		if err != nil {
			continue
		}
		spec := pospec.Parse(project.POConfig())
		for _, b := range spec.Effective() {
			if b == bundleName {
				users = append(users, name)
				break
			}
		}
	}
	sort.Strings(users)
	return users
}

// Info describes one effective bundle of a project.
type Info struct {
	Name            string
	Patches         []string
	Overrides       []string
	PatchApplied    bool
	OverrideApplied bool
}

// List inventories the effective bundles of a project: their patch and
// override files plus whether the working tree's flag files record them.
func List(store *config.Store, workRoot, projectName string) ([]Info, error) {
	project, err := store.Project(projectName)
	if err != nil {
		return nil, err
	}
	st := state.New(workRoot)

	spec := pospec.Parse(project.POConfig())
	var infos []Info
	for _, name := range spec.Effective() {
		dir := Dir(project, name)
		patches, err := treeFiles(filepath.Join(dir, engine.PatchesDirName))
		if err != nil {
			return nil, err
		}
		overrides, err := treeFiles(filepath.Join(dir, engine.OverridesDirName))
		if err != nil {
			return nil, err
		}
		infos = append(infos, Info{
			Name:            name,
			Patches:         patches,
			Overrides:       overrides,
			PatchApplied:    st.Contains(state.Patches, name),
			OverrideApplied: st.Contains(state.Overrides, name),
		})
	}
	return infos, nil
}

// treeFiles lists the files of a bundle subtree relative to dir, slash
// separated, skipping keep files. A missing dir yields nil.
func treeFiles(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, nil
	}
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == engine.KeepFile {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to walk %s", dir)
	}
	return files, nil
}
