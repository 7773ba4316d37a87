package engine

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pobuild/pob/pkg/config"
	"github.com/pobuild/pob/pkg/errors"
	"github.com/pobuild/pob/pkg/logging"
)

// CustomDirName is the default bundle subdirectory for copy-rule sources
// when the [po-<bundle>] section sets no PROJECT_PO_DIR.
const CustomDirName = "custom"

// CopyRule is one parsed "source:target" entry of a PROJECT_PO_FILE_COPY
// value. Source is a path or glob relative to the bundle's copy directory;
// Target is a destination path, resolved against the working tree when
// relative.
type CopyRule struct {
	Source string
	Target string
}

// parseCopyRules splits a raw PROJECT_PO_FILE_COPY value into rules.
// Entries are separated by backslashes; blank entries and entries without a
// colon are dropped.
func parseCopyRules(raw string) []CopyRule {
	logger := logging.GetLogger("engine")
	var rules []CopyRule
	for _, entry := range strings.Split(raw, `\`) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		colon := strings.Index(entry, ":")
		if colon < 0 {
			logger.Warn().Str("entry", entry).Msg("Copy rule without target, ignored")
			continue
		}
		rules = append(rules, CopyRule{
			Source: strings.TrimSpace(entry[:colon]),
			Target: strings.TrimSpace(entry[colon+1:]),
		})
	}
	return rules
}

// applyCopies executes a bundle's custom copy rules. Sources live under the
// bundle's copy directory; a missing directory or a rule matching nothing is
// tolerated, a failing copy aborts the apply.
func (e *Engine) applyCopies(bundle, bundleDir string, spec config.CopySpec) error {
	logger := logging.GetLogger("engine")

	dir := spec.Dir
	if dir == "" {
		dir = CustomDirName
	}
	customDir := filepath.Join(bundleDir, dir)
	if info, err := os.Stat(customDir); err != nil || !info.IsDir() {
		logger.Debug().Str("bundle", bundle).Str("dir", customDir).Msg("No copy directory, skipping")
		return nil
	}

	rules := parseCopyRules(spec.FileCopy)
	if len(rules) == 0 {
		logger.Warn().Str("bundle", bundle).Msg("Copy section has no usable rules")
		return nil
	}
	for _, rule := range rules {
		if err := e.executeCopyRule(bundle, customDir, rule); err != nil {
			return err
		}
	}
	return nil
}

// executeCopyRule copies everything one rule selects. Wildcard sources are
// expanded with glob; matched directories are copied recursively with their
// structure preserved relative to the pattern's static prefix.
func (e *Engine) executeCopyRule(bundle, customDir string, rule CopyRule) error {
	logger := logging.GetLogger("engine")

	absPattern := filepath.Join(customDir, filepath.FromSlash(rule.Source))
	hasWildcard := strings.ContainsAny(rule.Source, "*?[")

	var matches []string
	if hasWildcard {
		found, err := filepath.Glob(absPattern)
		if err != nil {
			return errors.Wrapf(err, errors.ErrConfigInvalid,
				"bad copy pattern '%s' for bundle %s", rule.Source, bundle)
		}
		matches = found
	} else if _, err := os.Stat(absPattern); err == nil {
		matches = []string{absPattern}
	}

	files, matchedDir, err := expandCopySources(matches)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		logger.Warn().Str("source", rule.Source).Str("bundle", bundle).
			Msg("Copy rule matched nothing, skipping")
		return nil
	}

	baseRoot := filepath.Join(customDir, staticPrefix(rule.Source))
	if !hasWildcard && matchedDir {
		baseRoot = absPattern
	}

	target := rule.Target
	if !filepath.IsAbs(target) {
		target = filepath.Join(e.workRoot, filepath.FromSlash(target))
	}
	targetInfo, statErr := os.Stat(target)
	targetIsDir := len(files) > 1 || hasWildcard || matchedDir ||
		strings.HasSuffix(rule.Target, "/") ||
		(statErr == nil && targetInfo.IsDir())

	for _, src := range files {
		dest := target
		if targetIsDir {
			rel, relErr := filepath.Rel(baseRoot, src)
			if relErr != nil || rel == "." {
				rel = filepath.Base(src)
			}
			dest = filepath.Join(target, rel)
		}
		if err := copyFile(src, dest); err != nil {
			return err
		}
		logger.Info().Str("file", src).Str("dest", dest).Str("bundle", bundle).Msg("Copy rule applied")
	}
	return nil
}

// expandCopySources turns glob matches into the flat file set to copy,
// walking matched directories. Reports whether any match was a directory.
func expandCopySources(matches []string) ([]string, bool, error) {
	seen := make(map[string]bool)
	matchedDir := false
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			seen[match] = true
			continue
		}
		matchedDir = true
		walkErr := filepath.WalkDir(match, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				seen[path] = true
			}
			return nil
		})
		if walkErr != nil {
			return nil, matchedDir, errors.Wrapf(walkErr, errors.ErrFileAccess, "failed to walk %s", match)
		}
	}
	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, matchedDir, nil
}

// staticPrefix returns the leading path components of a pattern up to the
// first one containing a wildcard.
func staticPrefix(pattern string) string {
	var prefix []string
	for _, part := range strings.Split(filepath.ToSlash(pattern), "/") {
		if strings.ContainsAny(part, "*?[") {
			break
		}
		prefix = append(prefix, part)
	}
	return filepath.FromSlash(strings.Join(prefix, "/"))
}

// revertCopies cannot undo copy rules: targets may sit anywhere in or
// outside the tree and carry no marker. The targets are named so the
// cleanup can happen by hand.
func (e *Engine) revertCopies(bundle string, spec config.CopySpec) {
	logger := logging.GetLogger("engine")
	rules := parseCopyRules(spec.FileCopy)
	if len(rules) == 0 {
		return
	}
	logger.Warn().Str("bundle", bundle).
		Msg("Copied files are not reverted automatically, manual cleanup may be required")
	for _, rule := range rules {
		logger.Warn().Str("target", rule.Target).Str("bundle", bundle).Msg("Copy rule target")
	}
}
