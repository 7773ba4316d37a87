// Package state persists which bundles have been applied to a working tree.
//
// Two flag files live at the working-tree root, one for patches and one for
// overrides, each a newline-separated list of bundle names in application
// order. Presence of a name means that bundle's material is in the tree.
package state

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pobuild/pob/pkg/errors"
	"github.com/pobuild/pob/pkg/logging"
)

// Kind selects one of the two durable markers.
type Kind string

const (
	// Patches is the marker for applied patch sets.
	Patches Kind = "patch_applied"
	// Overrides is the marker for applied override sets.
	Overrides Kind = "override_applied"
)

// Store reads and writes the flag files of one working tree.
type Store struct {
	WorkRoot string
}

// New returns a Store rooted at workRoot.
func New(workRoot string) *Store {
	return &Store{WorkRoot: workRoot}
}

func (s *Store) path(kind Kind) string {
	return filepath.Join(s.WorkRoot, string(kind))
}

// Applied returns the recorded bundle names in application order. A missing
// or unreadable marker degrades to "no bundles recorded" rather than failing.
func (s *Store) Applied(kind Kind) []string {
	data, err := os.ReadFile(s.path(kind))
	if err != nil {
		if !os.IsNotExist(err) {
			logger := logging.GetLogger("state")
			logger.Warn().Err(err).Str("flag", string(kind)).
				Msg("Cannot read flag file, treating as empty")
		}
		return nil
	}
	var names []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names
}

// Contains reports whether a bundle is recorded in the marker.
func (s *Store) Contains(kind Kind, bundle string) bool {
	for _, name := range s.Applied(kind) {
		if name == bundle {
			return true
		}
	}
	return false
}

// Append records a bundle as applied. Appending an already recorded name is
// a no-op so re-applies cannot duplicate entries.
func (s *Store) Append(kind Kind, bundle string) error {
	if s.Contains(kind, bundle) {
		return nil
	}
	f, err := os.OpenFile(s.path(kind), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to open flag file %s", s.path(kind))
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(bundle + "\n"); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to write flag file %s", s.path(kind))
	}
	return nil
}

// Remove strips a bundle from the marker, deleting the file outright when it
// was the last recorded name. Markers are never left behind as empty files.
func (s *Store) Remove(kind Kind, bundle string) error {
	var remaining []string
	for _, name := range s.Applied(kind) {
		if name != bundle {
			remaining = append(remaining, name)
		}
	}
	if len(remaining) == 0 {
		if err := os.Remove(s.path(kind)); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to remove flag file %s", s.path(kind))
		}
		return nil
	}
	content := strings.Join(remaining, "\n") + "\n"
	if err := os.WriteFile(s.path(kind), []byte(content), 0644); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to rewrite flag file %s", s.path(kind))
	}
	return nil
}

// Exists reports whether the marker file is present at all.
func (s *Store) Exists(kind Kind) bool {
	_, err := os.Stat(s.path(kind))
	return err == nil
}
