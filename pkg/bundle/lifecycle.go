package bundle

import (
	"os"
	"strings"

	"github.com/pobuild/pob/pkg/config"
	"github.com/pobuild/pob/pkg/errors"
	"github.com/pobuild/pob/pkg/logging"
	"github.com/pobuild/pob/pkg/pospec"
)

// Lifecycle removes bundles and scrubs their configuration references.
type Lifecycle struct {
	store *config.Store
}

// NewLifecycle builds a Lifecycle over the given configuration store.
func NewLifecycle(store *config.Store) *Lifecycle {
	return &Lifecycle{store: store}
}

// Delete removes a bundle's directory tree, then rewrites every board ini
// file stripping directive tokens that name the bundle. A rewrite failure
// after the directory is gone is reported but not rolled back.
func (l *Lifecycle) Delete(projectName, bundleName string) error {
	logger := logging.GetLogger("bundle")
	done := logging.LogOperationStart(logger, "po_del")
	defer done()

	if err := ValidateName(bundleName); err != nil {
		return err
	}
	project, err := l.store.Project(projectName)
	if err != nil {
		return err
	}
	dir := Dir(project, bundleName)
	if _, err := os.Stat(dir); err != nil {
		return errors.Newf(errors.ErrBundleNotFound, "bundle '%s' does not exist at %s", bundleName, dir)
	}

	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to remove %s", dir)
	}
	logger.Info().Str("bundle", bundleName).Str("dir", dir).Msg("Bundle directory removed")

	for _, iniFile := range l.store.IniFiles() {
		if err := stripDirectiveToken(iniFile, bundleName); err != nil {
			return err
		}
	}

	// remove the board's po dir once the last bundle is gone
	poDir := project.PODir()
	if entries, err := os.ReadDir(poDir); err == nil && len(entries) == 0 {
		_ = os.Remove(poDir)
	}
	logger.Info().Str("bundle", bundleName).Msg("Bundle deleted")
	return nil
}

// stripDirectiveToken rewrites one ini file, dropping every
// PROJECT_PO_CONFIG token whose base name equals bundleName. All other
// lines, token ordering and comments are preserved byte for byte. Files
// without a matching token are left untouched.
func stripDirectiveToken(path, bundleName string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to read %s", path)
	}

	changed := false
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		rewritten, ok := stripTokensFromLine(line, bundleName)
		if ok {
			lines[i] = rewritten
			changed = true
		}
	}
	if !changed {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", path)
	}
	out := strings.Join(lines, "\n")
	if err := os.WriteFile(path, []byte(out), info.Mode().Perm()); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to rewrite %s", path)
	}
	return nil
}

// stripTokensFromLine handles one line: if it assigns PROJECT_PO_CONFIG and
// carries tokens naming the bundle, those tokens are removed and ok is true.
func stripTokensFromLine(line, bundleName string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, ";") || strings.HasPrefix(trimmed, "#") {
		return line, false
	}
	eq := strings.Index(line, "=")
	if eq < 0 {
		return line, false
	}
	key := strings.TrimSpace(line[:eq])
	if !strings.EqualFold(key, config.KeyPOConfig) {
		return line, false
	}

	value := line[eq+1:]
	comment := ""
	if i := strings.IndexAny(value, "#;"); i >= 0 {
		comment = value[i:]
		value = value[:i]
	}

	fields := strings.Fields(value)
	kept := make([]string, 0, len(fields))
	for _, token := range fields {
		if pospec.BaseName(token) == bundleName {
			continue
		}
		kept = append(kept, token)
	}
	if len(kept) == len(fields) {
		return line, false
	}
	out := line[:eq+1]
	if len(kept) > 0 {
		out += " " + strings.Join(kept, " ")
	}
	if comment != "" {
		out += " " + comment
	}
	return out, true
}
