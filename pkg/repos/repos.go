// Package repos discovers the version-controlled repositories a working
// tree is made of, so patch and override artifacts can be targeted at the
// right sub-repository.
package repos

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/beevik/etree"

	"github.com/pobuild/pob/pkg/logging"
)

// RootName is the logical name of the repository at the working-tree root.
const RootName = "root"

// Repository is a discovered version-control root plus the logical name used
// to qualify patch and override paths when more than one repository is in
// scope.
type Repository struct {
	Path string
	Name string
}

// Discover returns the repositories under root, freshly resolved on every
// call. Three strategies are tried in order, first success wins:
//
//  1. root itself is a git root: single repository named "root".
//  2. a .repo/manifest.xml declares sub-project paths: every declared path
//     that holds a .git becomes a repository. A malformed manifest falls
//     through to strategy 3 instead of failing.
//  3. recursive walk collecting every directory that is itself a git root.
//
// An empty result is valid; callers proceed with zero repositories.
func Discover(root string) []Repository {
	logger := logging.GetLogger("repos")

	if isGitRoot(root) {
		logger.Debug().Str("root", root).Msg("Single-repository mode")
		return []Repository{{Path: root, Name: RootName}}
	}

	manifest := filepath.Join(root, ".repo", "manifest.xml")
	if _, err := os.Stat(manifest); err == nil {
		if found, ok := fromManifest(root, manifest); ok {
			logger.Debug().Int("repositories", len(found)).Msg("Manifest-driven discovery")
			return found
		}
		logger.Warn().Str("manifest", manifest).Msg("Malformed manifest, falling back to recursive discovery")
	}

	found := recursive(root)
	logger.Debug().Int("repositories", len(found)).Str("root", root).Msg("Recursive discovery")
	return found
}

// FindByName resolves a repository by its logical name.
func FindByName(repositories []Repository, name string) (Repository, bool) {
	for _, repo := range repositories {
		if repo.Name == name {
			return repo, true
		}
	}
	return Repository{}, false
}

// Owner returns the repository whose logical name is the longest
// path-component prefix of relDir ("" means the working-tree root). This is
// how patch artifacts stored under patches/<repo>/<path> find their target
// when the intermediate directories are part of the mirrored file path.
func Owner(repositories []Repository, relDir string) (Repository, bool) {
	if relDir == "" || relDir == "." {
		return FindByName(repositories, RootName)
	}

	var best Repository
	bestLen := -1
	for _, repo := range repositories {
		if repo.Name == RootName {
			if bestLen < 0 {
				best, bestLen = repo, 0
			}
			continue
		}
		if relDir == repo.Name || strings.HasPrefix(relDir, repo.Name+string(filepath.Separator)) {
			if len(repo.Name) > bestLen {
				best, bestLen = repo, len(repo.Name)
			}
		}
	}
	return best, bestLen >= 0
}

func isGitRoot(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".git"))
	// .git may be a file in worktree/submodule setups
	return err == nil && (info.IsDir() || info.Mode().IsRegular())
}

func fromManifest(root, manifest string) ([]Repository, bool) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(manifest); err != nil {
		return nil, false
	}
	top := doc.Root()
	if top == nil || top.Tag != "manifest" {
		return nil, false
	}

	var found []Repository
	for _, project := range top.FindElements("//project") {
		path := project.SelectAttrValue("path", "")
		if path == "" {
			continue
		}
		repoPath := filepath.Join(root, path)
		if !isGitRoot(repoPath) {
			continue
		}
		name := path
		if path == "." {
			name = RootName
		}
		found = append(found, Repository{Path: repoPath, Name: name})
	}
	return found, true
}

func recursive(root string) []Repository {
	var found []Repository
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" || d.Name() == ".repo" {
			return filepath.SkipDir
		}
		if path != root && isGitRoot(path) {
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return nil
			}
			found = append(found, Repository{Path: path, Name: rel})
			// nested repositories below a found root are not collected
			return filepath.SkipDir
		}
		return nil
	})
	return found
}
